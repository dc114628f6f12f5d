package session

import (
	"context"
	"sync"
	"testing"

	"github.com/neokaiyuan/ask-goodnotes/internal/audio"
	"github.com/neokaiyuan/ask-goodnotes/internal/playback"
	"github.com/neokaiyuan/ask-goodnotes/internal/transport"
)

// controlledSink completes renders only when the test says so.
type controlledSink struct {
	mu          sync.Mutex
	rendered    []*transport.AudioFrame
	stopped     []*transport.AudioFrame
	dones       []chan struct{}
	renderStart chan struct{}
}

func newControlledSink() *controlledSink {
	return &controlledSink{renderStart: make(chan struct{}, 16)}
}

func (s *controlledSink) Render(frame *transport.AudioFrame) (<-chan struct{}, error) {
	s.mu.Lock()
	s.rendered = append(s.rendered, frame)
	done := make(chan struct{})
	s.dones = append(s.dones, done)
	s.mu.Unlock()
	s.renderStart <- struct{}{}
	return done, nil
}

func (s *controlledSink) ForceStop(frame *transport.AudioFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = append(s.stopped, frame)
}

func (s *controlledSink) complete(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.dones[i])
}

// Full round trip: record three chunks, stop, receive two response frames,
// and issue stop-audio while the second frame is rendering. The first frame
// must complete naturally, the second must be forcibly halted, and the
// session must come back to ready with an empty queue.
func TestScenario_StopAudioMidSecondFrame(t *testing.T) {
	conn := newMockConn()
	rec := &mockRecorder{}
	capture := &mockCapture{}
	control := &mockControl{}
	sink := newControlledSink()
	queue := playback.NewQueue(sink, nil)

	s := New(Config{
		Conn:     conn,
		Recorder: rec,
		Player:   queue,
		Capture:  capture,
		Control:  control,
	})
	defer s.Close()

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}

	capture.emit([]byte{1})
	capture.emit([]byte{2})
	capture.emit([]byte{3})

	if err := s.StopRecording(ctx); err != nil {
		t.Fatalf("StopRecording failed: %v", err)
	}
	if len(rec.submitted) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(rec.submitted))
	}

	// backend streams two PCM frames
	conn.frames <- transport.InboundFrame{Binary: true, Data: audio.EncodePCM16([]float32{0.1, 0.1})}
	conn.frames <- transport.InboundFrame{Binary: true, Data: audio.EncodePCM16([]float32{0.2, 0.2})}

	<-sink.renderStart // first frame rendering
	waitFor(t, func() bool { return s.State() == StatePlaying }, "session never reached playing")

	sink.complete(0)
	<-sink.renderStart // second frame rendering

	if err := s.StopAudio(ctx); err != nil {
		t.Fatalf("StopAudio failed: %v", err)
	}

	sink.mu.Lock()
	rendered := len(sink.rendered)
	stopped := len(sink.stopped)
	sink.mu.Unlock()

	if rendered != 2 {
		t.Errorf("expected both frames to have begun rendering, got %d", rendered)
	}
	if stopped == 0 {
		t.Error("second frame should have been force-stopped")
	}
	if queue.Pending() != 0 {
		t.Errorf("queue should be empty, %d pending", queue.Pending())
	}
	if control.stopProcessingCalls() != 1 {
		t.Error("backend should be told to stop generation")
	}

	waitFor(t, func() bool { return s.State() == StateConnected }, "session never returned to ready")
}
