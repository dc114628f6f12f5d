package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/neokaiyuan/ask-goodnotes/internal/shared"
	"github.com/neokaiyuan/ask-goodnotes/internal/transport"
)

// Manager owns the one logical duplex connection for a client. It dials,
// runs the pumps, and schedules bounded reconnection with a fixed delay.
// At most one reconnect attempt is pending at a time; scheduling a new one
// cancels the prior timer.
type Manager struct {
	cfg      Config
	clientID string
	dial     DialFunc
	log      *slog.Logger

	frames chan transport.InboundFrame

	mu         sync.Mutex
	state      transport.ConnState
	conn       *Conn
	attempts   int
	retryTimer *time.Timer
	suppress   bool

	onFailed      func(error)
	onStateChange func(transport.ConnState)
}

func NewManager(cfg Config, clientID string, dial DialFunc, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if dial == nil {
		dial = GorillaDial
	}
	cfg = cfg.withDefaults()

	return &Manager{
		cfg:      cfg,
		clientID: clientID,
		dial:     dial,
		log:      log.With("component", "realtime"),
		frames:   make(chan transport.InboundFrame, cfg.BufferSizes.Frames),
		state:    transport.ConnClosed,
	}
}

// OnFailed registers the callback fired when reconnection is exhausted.
func (m *Manager) OnFailed(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFailed = fn
}

func (m *Manager) OnStateChange(fn func(transport.ConnState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

func (m *Manager) endpoint() string {
	return m.cfg.URL + "/" + m.clientID
}

// Connect opens the connection. Calling it while already open or connecting
// is a no-op.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state != transport.ConnClosed {
		m.mu.Unlock()
		return nil
	}
	m.state = transport.ConnConnecting
	m.suppress = false
	m.attempts = 0
	m.mu.Unlock()

	m.notifyState(transport.ConnConnecting)
	return m.dialAndAttach(ctx)
}

func (m *Manager) dialAndAttach(ctx context.Context) error {
	sock, err := m.dial(ctx, m.endpoint())
	if err != nil {
		m.log.Warn("dial failed", "endpoint", m.endpoint(), "error", err)
		m.handleClosed(nil)
		return shared.NewTransportError("dial", err)
	}

	var conn *Conn
	conn = newConn(sock, m.frames, m.cfg.BufferSizes.Send, func() {
		m.handleClosed(conn)
	}, m.log)

	m.mu.Lock()
	if m.suppress {
		m.mu.Unlock()
		_ = sock.Close()
		return nil
	}
	m.conn = conn
	m.state = transport.ConnOpen
	m.attempts = 0
	m.mu.Unlock()

	conn.start()
	m.log.Info("connection open", "client_id", m.clientID)
	m.notifyState(transport.ConnOpen)
	return nil
}

// handleClosed reacts to an unexpected close or a failed dial. from is the
// conn that observed the close, or nil for dial failures; stale closes from
// an already replaced conn are ignored.
func (m *Manager) handleClosed(from *Conn) {
	m.mu.Lock()
	if from != nil && m.conn != from {
		m.mu.Unlock()
		return
	}
	m.conn = nil

	if m.suppress {
		m.state = transport.ConnClosed
		m.mu.Unlock()
		m.notifyState(transport.ConnClosed)
		return
	}

	if m.attempts >= m.cfg.MaxReconnects {
		m.state = transport.ConnClosed
		onFailed := m.onFailed
		m.mu.Unlock()

		m.log.Error("reconnect attempts exhausted", "attempts", m.cfg.MaxReconnects)
		m.notifyState(transport.ConnClosed)
		if onFailed != nil {
			onFailed(shared.ErrReconnectExhausted)
		}
		return
	}

	m.attempts++
	m.state = transport.ConnConnecting
	if m.retryTimer != nil {
		m.retryTimer.Stop()
	}
	attempt := m.attempts
	m.retryTimer = time.AfterFunc(m.cfg.ReconnectDelay, m.retryConnect)
	m.mu.Unlock()

	m.log.Info("reconnect scheduled", "attempt", attempt, "delay", m.cfg.ReconnectDelay)
	m.notifyState(transport.ConnConnecting)
}

func (m *Manager) retryConnect() {
	m.mu.Lock()
	if m.suppress || m.state != transport.ConnConnecting {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	_ = m.dialAndAttach(context.Background())
}

// Disconnect closes deliberately and suppresses reconnection.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.suppress = true
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	conn := m.conn
	if conn == nil {
		m.state = transport.ConnClosed
	}
	m.mu.Unlock()

	if conn != nil {
		conn.close()
	} else {
		m.notifyState(transport.ConnClosed)
	}
}

func (m *Manager) SendText(_ context.Context, text string) error {
	conn, ok := m.liveConn()
	if !ok {
		return shared.ErrNotConnected
	}
	return conn.sendText(text)
}

func (m *Manager) SendBinary(_ context.Context, data []byte) error {
	conn, ok := m.liveConn()
	if !ok {
		return shared.ErrNotConnected
	}
	return conn.sendBinary(data)
}

func (m *Manager) liveConn() (*Conn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != transport.ConnOpen || m.conn == nil {
		m.log.Warn("send while connection not open", "state", m.state)
		return nil, false
	}
	return m.conn, true
}

func (m *Manager) Frames() <-chan transport.InboundFrame {
	return m.frames
}

func (m *Manager) State() transport.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) ClientID() string {
	return m.clientID
}

func (m *Manager) notifyState(state transport.ConnState) {
	m.mu.Lock()
	fn := m.onStateChange
	m.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}
