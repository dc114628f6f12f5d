package capture

import (
	"sync"
	"testing"
	"time"
)

func TestTickerSource_EmitsChunks(t *testing.T) {
	src := NewTickerSource(5*time.Millisecond, func(seq int) []byte {
		return []byte{byte(seq)}
	})

	var mu sync.Mutex
	var chunks [][]byte
	err := src.Start(func(data []byte) {
		mu.Lock()
		chunks = append(chunks, data)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer src.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(chunks)
		mu.Unlock()
		if n >= 3 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}
	for i := 0; i < 3; i++ {
		if chunks[i][0] != byte(i) {
			t.Errorf("chunk %d out of order: %d", i, chunks[i][0])
		}
	}
}

func TestTickerSource_StopHaltsEmission(t *testing.T) {
	src := NewTickerSource(5*time.Millisecond, func(int) []byte { return []byte{0} })

	var mu sync.Mutex
	count := 0
	_ = src.Start(func([]byte) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	time.Sleep(20 * time.Millisecond)
	src.Stop()

	mu.Lock()
	after := count
	mu.Unlock()
	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count > after+1 {
		t.Errorf("chunks kept arriving after Stop: %d -> %d", after, count)
	}
}

func TestTickerSource_StartIdempotent(t *testing.T) {
	src := NewTickerSource(time.Hour, nil)
	defer src.Stop()

	if err := src.Start(func([]byte) {}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := src.Start(func([]byte) {}); err != nil {
		t.Errorf("repeat Start should be a no-op, got %v", err)
	}
}

func TestSineChunk_EvenLength(t *testing.T) {
	chunk := SineChunk(0)
	if len(chunk)%2 != 0 {
		t.Error("PCM16 chunk must have even byte length")
	}
	if len(chunk) == 0 {
		t.Error("chunk should not be empty")
	}
}
