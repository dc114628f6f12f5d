package transport

import "encoding/json"

type ConnState string

const (
	ConnClosed     ConnState = "closed"
	ConnConnecting ConnState = "connecting"
	ConnOpen       ConnState = "open"
)

// InboundFrame is a single message as delivered by the connection. The
// transport guarantees message boundaries; frames are either binary audio or
// text.
type InboundFrame struct {
	Binary bool
	Data   []byte
	Text   string
}

// OutboundChunk is one sequence-numbered unit of encoded captured audio.
// Final is always false at submission time; the end of a recording run is a
// separate control call.
type OutboundChunk struct {
	ClientID string
	Sequence int
	Data     []byte
	Final    bool
}

// AudioFrame is a decoded unit of inbound audio, samples normalized to
// [-1, 1].
type AudioFrame struct {
	Samples    []float32
	SampleRate int
}

// SignalMessage is the JSON envelope for the optional media path. Only the
// fields relevant to each type are populated.
type SignalMessage struct {
	Type      string          `json:"type"`
	SDP       string          `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

const (
	SignalOffer        = "offer"
	SignalAnswer       = "answer"
	SignalICECandidate = "ice-candidate"
)
