package playback

import (
	"context"
	"log/slog"
	"sync"

	"github.com/neokaiyuan/ask-goodnotes/internal/audio"
	"github.com/neokaiyuan/ask-goodnotes/internal/transport"
)

// Queue decodes inbound PCM16 payloads and renders the resulting frames
// sequentially through the sink. Frames play in strict arrival order; the
// loop awaits exactly one render completion at a time. Cancel halts the
// in-flight render immediately and discards everything pending; the next
// enqueue after a cancel starts a fresh run.
type Queue struct {
	sink transport.PlaybackSink
	log  *slog.Logger

	mu       sync.Mutex
	frames   []*transport.AudioFrame
	ctx      context.Context
	cancelFn context.CancelFunc
	playing  bool
	active   *transport.AudioFrame
	onStart  func()
	onEnd    func()
}

func NewQueue(sink transport.PlaybackSink, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		sink: sink,
		log:  log.With("component", "playback"),
	}
}

// SetCallbacks registers observers for the run starting (first frame of an
// idle queue) and ending (queue drained or cancelled).
func (q *Queue) SetCallbacks(onStart, onEnd func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onStart = onStart
	q.onEnd = onEnd
}

// EnqueueRaw decodes the payload and appends the frame, kicking off the
// playback loop if it is idle. Decode happens here, synchronously, so frame
// order matches arrival order. A malformed payload is dropped without
// disturbing the loop.
func (q *Queue) EnqueueRaw(data []byte) {
	samples, err := audio.DecodePCM16(data)
	if err != nil {
		q.log.Warn("dropping undecodable frame", "error", err)
		return
	}
	frame := &transport.AudioFrame{
		Samples:    samples,
		SampleRate: audio.PlaybackSampleRate,
	}

	q.mu.Lock()
	q.frames = append(q.frames, frame)
	wasIdle := !q.playing
	var ctx context.Context
	var onStart func()
	if wasIdle {
		q.ctx, q.cancelFn = context.WithCancel(context.Background())
		q.playing = true
		ctx = q.ctx
		onStart = q.onStart
	}
	q.mu.Unlock()

	if wasIdle {
		if onStart != nil {
			onStart()
		}
		go q.run(ctx)
	}
}

func (q *Queue) run(ctx context.Context) {
	for {
		q.mu.Lock()
		if ctx.Err() != nil {
			q.mu.Unlock()
			return
		}
		if len(q.frames) == 0 {
			q.playing = false
			q.active = nil
			onEnd := q.onEnd
			q.mu.Unlock()
			if onEnd != nil {
				onEnd()
			}
			return
		}
		frame := q.frames[0]
		q.frames = q.frames[1:]

		// Render under the lock: a concurrent Cancel cannot slip in
		// between the dequeue and the render starting, so a pending frame
		// never begins rendering once Cancel has returned.
		done, err := q.sink.Render(frame)
		if err != nil {
			q.mu.Unlock()
			q.log.Warn("render failed, dropping frame", "error", err)
			continue
		}
		q.active = frame
		q.mu.Unlock()

		select {
		case <-done:
			q.mu.Lock()
			q.active = nil
			q.mu.Unlock()
		case <-ctx.Done():
			// Cancel force-stops the frame it saw as active; stopping our
			// own frame here too keeps the pair idempotent-safe.
			q.sink.ForceStop(frame)
			return
		}
	}
}

// Cancel discards every pending frame and halts the in-flight render rather
// than waiting for its completion signal. Calling it while nothing is
// playing is a no-op.
func (q *Queue) Cancel() {
	q.mu.Lock()
	if !q.playing && len(q.frames) == 0 {
		q.mu.Unlock()
		return
	}
	wasPlaying := q.playing
	active := q.active
	q.frames = nil
	q.active = nil
	q.playing = false
	if q.cancelFn != nil {
		q.cancelFn()
		q.cancelFn = nil
	}
	q.ctx = nil
	onEnd := q.onEnd
	q.mu.Unlock()

	if active != nil {
		q.sink.ForceStop(active)
	}
	if wasPlaying && onEnd != nil {
		onEnd()
	}
}

// Playing reports whether a run is in progress or frames are pending.
func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing || len(q.frames) > 0
}

func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}
