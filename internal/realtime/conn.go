package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/neokaiyuan/ask-goodnotes/internal/shared"
	"github.com/neokaiyuan/ask-goodnotes/internal/transport"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// Socket is the subset of the websocket connection the pumps rely on.
// Narrowed so tests can stand in for the network.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

type DialFunc func(ctx context.Context, url string) (Socket, error)

func GorillaDial(ctx context.Context, url string) (Socket, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return ws, nil
}

type outMessage struct {
	binary bool
	data   []byte
}

// Conn runs the read/write pumps for one live socket. Inbound frames are
// delivered to the channel owned by the Manager so consumers survive
// reconnects.
type Conn struct {
	sock     Socket
	frames   chan<- transport.InboundFrame
	send     chan outMessage
	done     chan struct{}
	onClosed func()

	closeOnce sync.Once
	log       *slog.Logger
}

func newConn(sock Socket, frames chan<- transport.InboundFrame, sendBuf int, onClosed func(), log *slog.Logger) *Conn {
	return &Conn{
		sock:     sock,
		frames:   frames,
		send:     make(chan outMessage, sendBuf),
		done:     make(chan struct{}),
		onClosed: onClosed,
		log:      log,
	}
}

func (c *Conn) start() {
	go c.writePump()
	go c.readPump()
}

func (c *Conn) sendText(text string) error {
	return c.enqueue(outMessage{binary: false, data: []byte(text)})
}

func (c *Conn) sendBinary(data []byte) error {
	return c.enqueue(outMessage{binary: true, data: data})
}

func (c *Conn) enqueue(msg outMessage) error {
	select {
	case <-c.done:
		c.log.Warn("send on closed connection")
		return shared.ErrNotConnected
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		c.log.Warn("send on closed connection")
		return shared.ErrNotConnected
	default:
		c.log.Warn("send buffer full, dropping message")
		return nil
	}
}

func (c *Conn) readPump() {
	defer c.close()

	c.sock.SetReadLimit(maxMessageSize)
	_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		mt, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("websocket read error", "error", err)
			}
			return
		}

		var frame transport.InboundFrame
		switch mt {
		case websocket.BinaryMessage:
			frame = transport.InboundFrame{Binary: true, Data: data}
		case websocket.TextMessage:
			frame = transport.InboundFrame{Text: string(data)}
		default:
			continue
		}

		select {
		case c.frames <- frame:
		case <-c.done:
			return
		default:
			c.log.Warn("frame buffer full, dropping frame")
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			mt := websocket.TextMessage
			if msg.binary {
				mt = websocket.BinaryMessage
			}
			if err := c.sock.WriteMessage(mt, msg.data); err != nil {
				c.log.Warn("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.sock.Close()
		if c.onClosed != nil {
			c.onClosed()
		}
	})
}
