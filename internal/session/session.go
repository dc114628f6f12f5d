package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/neokaiyuan/ask-goodnotes/internal/router"
	"github.com/neokaiyuan/ask-goodnotes/internal/shared"
	"github.com/neokaiyuan/ask-goodnotes/internal/transport"
)

type State string

const (
	StateIdle             State = "idle"
	StateConnecting       State = "connecting"
	StateConnected        State = "connected"
	StateRecording        State = "recording"
	StateAwaitingResponse State = "awaiting_response"
	StatePlaying          State = "playing"
	StateFailed           State = "failed"
)

// ConnectionManager is the capability the session holds over the connection.
// The handle itself stays with the realtime manager.
type ConnectionManager interface {
	Connect(ctx context.Context) error
	Disconnect()
	OnFailed(fn func(error))
	OnStateChange(fn func(transport.ConnState))
	Frames() <-chan transport.InboundFrame
	ClientID() string
}

// Recorder is the chunk uploader surface the session drives.
type Recorder interface {
	Begin(ctx context.Context) error
	Submit(ctx context.Context, data []byte) error
	End(ctx context.Context) error
	Active() bool
}

// Player is the playback queue surface the session drives.
type Player interface {
	EnqueueRaw(data []byte)
	Cancel()
	Playing() bool
	SetCallbacks(onStart, onEnd func())
}

type Config struct {
	Conn     ConnectionManager
	Recorder Recorder
	Player   Player
	Capture  transport.CaptureSource
	Control  transport.ControlClient
	Signals  transport.SignalSink
	Log      *slog.Logger
}

// Session composes the engine: capture feeds the uploader, inbound frames
// route to playback and transcripts, and a single authoritative State gates
// every user action and backend event.
type Session struct {
	conn        ConnectionManager
	rec         Recorder
	player      Player
	capture     transport.CaptureSource
	control     transport.ControlClient
	signals     transport.SignalSink
	transcripts *TranscriptStore
	frameRouter *router.FrameRouter
	log         *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	state     State
	capturing bool
	failure   error
	onState   func(State)
	onFailure func(error)
}

type playerAudioSink struct {
	player Player
}

func (s playerAudioSink) EnqueueRaw(data []byte) {
	s.player.EnqueueRaw(data)
}

func New(cfg Config) *Session {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "session", "client_id", cfg.Conn.ClientID())

	s := &Session{
		conn:        cfg.Conn,
		rec:         cfg.Recorder,
		player:      cfg.Player,
		capture:     cfg.Capture,
		control:     cfg.Control,
		signals:     cfg.Signals,
		transcripts: NewTranscriptStore(),
		log:         log,
		state:       StateIdle,
	}

	s.frameRouter = router.New(playerAudioSink{player: cfg.Player}, s.transcripts, cfg.Signals, log)

	cfg.Player.SetCallbacks(s.onPlaybackStart, s.onPlaybackEnd)
	cfg.Conn.OnStateChange(s.onConnState)
	cfg.Conn.OnFailed(s.onConnFailed)

	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Transcripts() *TranscriptStore {
	return s.transcripts
}

// OnStateChange registers an observer for session state transitions.
func (s *Session) OnStateChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onState = fn
}

// OnFailure registers the observer for fatal, user-visible failures.
func (s *Session) OnFailure(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFailure = fn
}

// Start connects and begins consuming inbound frames.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("start from %s", s.state)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.setState(StateConnecting)

	s.wg.Add(1)
	go s.frameLoop()

	if err := s.conn.Connect(ctx); err != nil {
		// reconnection is already scheduled; the session stays Connecting
		s.log.Warn("initial connect failed", "error", err)
	}
	return nil
}

func (s *Session) frameLoop() {
	defer s.wg.Done()

	frames := s.conn.Frames()
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			s.frameRouter.Route(frame)
		}
	}
}

// StartRecording begins a capture run. Valid only when Connected. A capture
// failure is fatal to starting the run and surfaces to the caller; the
// session stays Connected.
func (s *Session) StartRecording(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateConnected {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot start recording from %s", state)
	}
	s.mu.Unlock()

	if err := s.rec.Begin(ctx); err != nil {
		return fmt.Errorf("begin recording: %w", err)
	}

	if err := s.capture.Start(s.onChunkCaptured); err != nil {
		_ = s.rec.End(ctx)
		return fmt.Errorf("%w: %v", shared.ErrCaptureUnavailable, err)
	}

	s.mu.Lock()
	s.capturing = true
	s.mu.Unlock()

	s.setState(StateRecording)
	return nil
}

func (s *Session) onChunkCaptured(data []byte) {
	err := s.rec.Submit(s.ctx, data)
	if err == nil {
		return
	}

	if errors.Is(err, shared.ErrUploadRejected) {
		// the recording run is invalid; stop feeding it
		s.log.Warn("chunk rejected, halting capture")
		s.stopCapture()
		return
	}
	s.log.Warn("chunk submit failed", "error", err)
}

// StopRecording ends the capture run and signals the backend; the session
// waits for the synthesized response.
func (s *Session) StopRecording(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRecording {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot stop recording from %s", state)
	}
	s.mu.Unlock()

	s.stopCapture()
	s.setState(StateAwaitingResponse)

	if err := s.rec.End(ctx); err != nil {
		s.log.Warn("stop recording signal failed", "error", err)
		return err
	}
	return nil
}

// StopAudio hard-cancels playback and, when a response is pending or
// rendering, tells the backend to stop generating. Valid from every
// non-terminal state except Idle and Connecting.
func (s *Session) StopAudio(ctx context.Context) error {
	s.mu.Lock()
	state := s.state
	switch state {
	case StateIdle, StateConnecting, StateFailed:
		s.mu.Unlock()
		return fmt.Errorf("cannot stop audio from %s", state)
	}
	s.mu.Unlock()

	if state == StateRecording {
		s.stopCapture()
		_ = s.rec.End(ctx)
	}

	s.player.Cancel()

	if state == StateAwaitingResponse || state == StatePlaying {
		if err := s.control.StopProcessing(ctx, s.conn.ClientID()); err != nil {
			s.log.Warn("stop processing signal failed", "error", err)
		}
	}

	s.setState(StateConnected)
	return nil
}

func (s *Session) stopCapture() {
	s.mu.Lock()
	capturing := s.capturing
	s.capturing = false
	s.mu.Unlock()

	if capturing {
		s.capture.Stop()
	}
}

func (s *Session) onPlaybackStart() {
	s.mu.Lock()
	if s.state != StateAwaitingResponse && s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.setState(StatePlaying)
}

func (s *Session) onPlaybackEnd() {
	s.mu.Lock()
	if s.state != StatePlaying {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.setState(StateConnected)
}

func (s *Session) onConnState(state transport.ConnState) {
	switch state {
	case transport.ConnOpen:
		s.mu.Lock()
		if s.state != StateConnecting {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		s.setState(StateConnected)
		s.negotiate()

	case transport.ConnConnecting:
		s.mu.Lock()
		if s.state == StateConnecting || s.state == StateFailed || s.state == StateIdle {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		// unexpected close: a live recording run cannot survive it
		s.stopCapture()
		s.setState(StateConnecting)
	}
}

// negotiate kicks off the media path when the signal sink can initiate one.
// Each successful open re-offers; a reconnected transport needs a fresh
// negotiation.
func (s *Session) negotiate() {
	neg, ok := s.signals.(transport.SignalNegotiator)
	if !ok {
		return
	}

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := neg.Offer(ctx); err != nil {
		s.log.Warn("media path offer failed", "error", err)
	}
}

func (s *Session) onConnFailed(err error) {
	s.stopCapture()
	s.player.Cancel()

	s.mu.Lock()
	s.failure = err
	onFailure := s.onFailure
	s.mu.Unlock()

	s.setState(StateFailed)
	s.log.Error("session failed", "error", err)
	if onFailure != nil {
		onFailure(err)
	}
}

// Failure returns the fatal error once the session is Failed.
func (s *Session) Failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Close shuts the session down deliberately.
func (s *Session) Close() {
	s.stopCapture()
	s.player.Cancel()
	s.conn.Disconnect()

	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	if s.state == StateFailed && next != StateFailed {
		// terminal
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = next
	fn := s.onState
	s.mu.Unlock()

	if prev != next {
		s.log.Debug("state transition", "from", prev, "to", next)
		if fn != nil {
			fn(next)
		}
	}
}
