package devserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/neokaiyuan/ask-goodnotes/internal/audio"
	"github.com/neokaiyuan/ask-goodnotes/internal/router"
	"github.com/neokaiyuan/ask-goodnotes/internal/transport"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the development stand-in for the remote processor. It accepts
// the duplex websocket, echoes media-path signaling, collects uploaded
// chunks, and streams back a canned transcript and PCM16 response so the
// full client loop can run locally.
type Server struct {
	log *slog.Logger

	mu         sync.Mutex
	conns      map[string]*clientConn
	recordings map[string]*recording
}

type clientConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *clientConn) writeText(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(text))
}

func (c *clientConn) writeBinary(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

func (c *clientConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.writeText(string(data))
}

type recording struct {
	chunks  [][]byte
	nextSeq int
	done    bool
	cancel  chan struct{}
}

func New(log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:        log.With("component", "devserver"),
		conns:      make(map[string]*clientConn),
		recordings: make(map[string]*recording),
	}
}

func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/:client_id", s.handleWebSocket)
	e.POST("/recordings/:client_id/start", s.handleStartRecording)
	e.POST("/recordings/:client_id/chunks", s.handleSubmitChunk)
	e.POST("/recordings/:client_id/stop", s.handleStopRecording)
	e.POST("/recordings/:client_id/processing/stop", s.handleStopProcessing)
}

func (s *Server) handleWebSocket(c echo.Context) error {
	clientID := c.Param("client_id")

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return err
	}

	conn := &clientConn{ws: ws}
	s.mu.Lock()
	s.conns[clientID] = conn
	s.mu.Unlock()

	s.log.Info("client connected", "client_id", clientID)
	s.readLoop(clientID, conn)

	s.mu.Lock()
	if s.conns[clientID] == conn {
		delete(s.conns, clientID)
	}
	s.mu.Unlock()
	s.log.Info("client disconnected", "client_id", clientID)
	return nil
}

func (s *Server) readLoop(clientID string, conn *clientConn) {
	defer conn.ws.Close()

	for {
		mt, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		var msg transport.SignalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Debug("ignoring malformed message", "client_id", clientID)
			continue
		}

		switch msg.Type {
		case transport.SignalOffer:
			// echo the offer back as the answer
			_ = conn.writeJSON(transport.SignalMessage{
				Type: transport.SignalAnswer,
				SDP:  msg.SDP,
			})
		case transport.SignalICECandidate:
			_ = conn.writeJSON(transport.SignalMessage{
				Type:      transport.SignalICECandidate,
				Candidate: msg.Candidate,
			})
		default:
			s.log.Debug("ignoring message", "type", msg.Type)
		}
	}
}

func (s *Server) handleStartRecording(c echo.Context) error {
	clientID := c.Param("client_id")

	s.mu.Lock()
	if rec, ok := s.recordings[clientID]; ok && rec.cancel != nil {
		close(rec.cancel)
	}
	s.recordings[clientID] = &recording{}
	s.mu.Unlock()

	s.log.Info("recording started", "client_id", clientID)
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleSubmitChunk(c echo.Context) error {
	clientID := c.Param("client_id")

	s.mu.Lock()
	rec, ok := s.recordings[clientID]
	s.mu.Unlock()
	if !ok || rec.done {
		return c.String(http.StatusBadRequest, "no active recording")
	}

	seq, err := strconv.Atoi(c.FormValue("sequence"))
	if err != nil || seq < 0 {
		return c.String(http.StatusBadRequest, "bad sequence")
	}

	file, err := c.FormFile("chunk")
	if err != nil {
		return c.String(http.StatusBadRequest, "missing chunk")
	}
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != rec.nextSeq {
		s.log.Warn("out-of-order chunk", "client_id", clientID, "got", seq, "want", rec.nextSeq)
		return c.String(http.StatusBadRequest, "out-of-order chunk")
	}
	rec.chunks = append(rec.chunks, data)
	rec.nextSeq++
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleStopRecording(c echo.Context) error {
	clientID := c.Param("client_id")

	s.mu.Lock()
	rec, ok := s.recordings[clientID]
	if !ok || rec.done {
		s.mu.Unlock()
		return c.String(http.StatusBadRequest, "no active recording")
	}
	rec.done = true
	rec.cancel = make(chan struct{})
	cancel := rec.cancel
	chunkCount := len(rec.chunks)
	s.mu.Unlock()

	s.log.Info("recording stopped", "client_id", clientID, "chunks", chunkCount)
	go s.respond(clientID, cancel)
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleStopProcessing(c echo.Context) error {
	clientID := c.Param("client_id")

	s.mu.Lock()
	rec, ok := s.recordings[clientID]
	if ok && rec.cancel != nil {
		close(rec.cancel)
		rec.cancel = nil
	}
	s.mu.Unlock()

	s.log.Info("processing stopped", "client_id", clientID)
	return c.NoContent(http.StatusOK)
}

// respond streams the canned reply: a user transcript, an agent transcript,
// then a run of PCM16 frames at the playback rate.
func (s *Server) respond(clientID string, cancel <-chan struct{}) {
	conn := s.conn(clientID)
	if conn == nil {
		s.log.Warn("no websocket for response", "client_id", clientID)
		return
	}

	_ = conn.writeText(router.PrefixInput + "What does my note say?")
	_ = conn.writeText(router.PrefixOutput + "Your note covers three action items for tomorrow.")

	for i := 0; i < 4; i++ {
		select {
		case <-cancel:
			s.log.Info("response cancelled", "client_id", clientID)
			return
		case <-time.After(50 * time.Millisecond):
		}
		if err := conn.writeBinary(toneFrame(i)); err != nil {
			return
		}
	}
}

func (s *Server) conn(clientID string) *clientConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[clientID]
}

// toneFrame is 200 ms of a low tone at the playback rate.
func toneFrame(i int) []byte {
	n := audio.PlaybackSampleRate / 5
	samples := make([]float32, n)
	for j := range samples {
		samples[j] = float32(0.2 * math.Sin(2*math.Pi*220*float64(i*n+j)/audio.PlaybackSampleRate))
	}
	return audio.EncodePCM16(samples)
}
