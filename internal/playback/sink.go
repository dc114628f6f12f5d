package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/neokaiyuan/ask-goodnotes/internal/audio"
	"github.com/neokaiyuan/ask-goodnotes/internal/transport"
)

// TimedSink renders frames in real time: each render completes after the
// frame's wall-clock duration at the sink's output rate. It stands in for a
// hardware output device in the demo client and in end-to-end runs.
type TimedSink struct {
	rate int
	log  *slog.Logger

	mu    sync.Mutex
	stops map[*transport.AudioFrame]chan struct{}
}

func NewTimedSink(outputRate int, log *slog.Logger) *TimedSink {
	if outputRate <= 0 {
		outputRate = audio.PlaybackSampleRate
	}
	if log == nil {
		log = slog.Default()
	}
	return &TimedSink{
		rate:  outputRate,
		log:   log.With("component", "sink"),
		stops: make(map[*transport.AudioFrame]chan struct{}),
	}
}

func (s *TimedSink) Render(frame *transport.AudioFrame) (<-chan struct{}, error) {
	samples := frame.Samples
	if frame.SampleRate != s.rate {
		samples = audio.Resample(samples, frame.SampleRate, s.rate)
	}
	duration := time.Duration(len(samples)) * time.Second / time.Duration(s.rate)

	done := make(chan struct{})
	stop := make(chan struct{})

	s.mu.Lock()
	s.stops[frame] = stop
	s.mu.Unlock()

	go func() {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-stop:
		}

		s.mu.Lock()
		delete(s.stops, frame)
		s.mu.Unlock()
		close(done)
	}()

	return done, nil
}

func (s *TimedSink) ForceStop(frame *transport.AudioFrame) {
	s.mu.Lock()
	stop, ok := s.stops[frame]
	if ok {
		delete(s.stops, frame)
	}
	s.mu.Unlock()

	if ok {
		close(stop)
	}
}
