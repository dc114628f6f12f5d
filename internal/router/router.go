package router

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/neokaiyuan/ask-goodnotes/internal/transport"
)

const (
	PrefixInput  = "INPUT:"
	PrefixOutput = "OUTPUT:"
)

// AudioSink receives raw binary audio payloads in arrival order.
type AudioSink interface {
	EnqueueRaw(data []byte)
}

// FrameRouter classifies inbound frames and forwards them to the right
// consumer. It holds no state; every call is independent.
type FrameRouter struct {
	audio       AudioSink
	transcripts transport.TranscriptSink
	signals     transport.SignalSink
	log         *slog.Logger
}

func New(audio AudioSink, transcripts transport.TranscriptSink, signals transport.SignalSink, log *slog.Logger) *FrameRouter {
	if log == nil {
		log = slog.Default()
	}
	return &FrameRouter{
		audio:       audio,
		transcripts: transcripts,
		signals:     signals,
		log:         log.With("component", "router"),
	}
}

func (r *FrameRouter) Route(frame transport.InboundFrame) {
	if frame.Binary {
		if r.audio != nil {
			r.audio.EnqueueRaw(frame.Data)
		}
		return
	}

	text := frame.Text
	switch {
	case strings.HasPrefix(text, PrefixInput):
		if r.transcripts != nil {
			r.transcripts.SetInput(strings.TrimPrefix(text, PrefixInput))
		}
	case strings.HasPrefix(text, PrefixOutput):
		if r.transcripts != nil {
			r.transcripts.SetOutput(strings.TrimPrefix(text, PrefixOutput))
		}
	default:
		r.routeSignal(text)
	}
}

func (r *FrameRouter) routeSignal(text string) {
	if !strings.HasPrefix(strings.TrimSpace(text), "{") {
		r.log.Debug("ignoring unrecognized text frame")
		return
	}

	var msg transport.SignalMessage
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		r.log.Debug("ignoring malformed signal frame", "error", err)
		return
	}

	switch msg.Type {
	case transport.SignalAnswer, transport.SignalICECandidate, transport.SignalOffer:
		if r.signals == nil {
			return
		}
		if err := r.signals.HandleSignal(msg); err != nil {
			r.log.Warn("signal handling failed", "type", msg.Type, "error", err)
		}
	default:
		r.log.Debug("ignoring unrecognized message type", "type", msg.Type)
	}
}
