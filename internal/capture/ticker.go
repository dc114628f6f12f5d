package capture

import (
	"math"
	"sync"
	"time"

	"github.com/neokaiyuan/ask-goodnotes/internal/audio"
)

const defaultInterval = time.Second

// TickerSource is a synthetic capture collaborator: it emits one encoded
// chunk per interval while running. The demo client uses it in place of a
// real microphone; the engine treats the chunk bytes as opaque either way.
type TickerSource struct {
	interval time.Duration
	gen      func(seq int) []byte

	mu   sync.Mutex
	stop chan struct{}
}

func NewTickerSource(interval time.Duration, gen func(seq int) []byte) *TickerSource {
	if interval <= 0 {
		interval = defaultInterval
	}
	if gen == nil {
		gen = SineChunk
	}
	return &TickerSource{interval: interval, gen: gen}
}

// SineChunk produces one interval's worth of a 440 Hz tone as PCM16 bytes.
func SineChunk(seq int) []byte {
	const rate = 16000
	samples := make([]float32, rate)
	phase := float64(seq) * float64(rate)
	for i := range samples {
		samples[i] = float32(0.3 * math.Sin(2*math.Pi*440*(phase+float64(i))/rate))
	}
	return audio.EncodePCM16(samples)
}

func (s *TickerSource) Start(onChunk func(data []byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}
	stop := make(chan struct{})
	s.stop = stop

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		seq := 0
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				onChunk(s.gen(seq))
				seq++
			}
		}
	}()
	return nil
}

func (s *TickerSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}
