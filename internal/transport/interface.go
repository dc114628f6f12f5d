package transport

import "context"

// Connection is the send/observe capability handed to higher layers. The
// underlying handle stays with the connection manager.
type Connection interface {
	SendText(ctx context.Context, text string) error
	SendBinary(ctx context.Context, data []byte) error
	Frames() <-chan InboundFrame
	State() ConnState
}

// PlaybackSink renders decoded frames. Render returns a channel that closes
// when the frame has finished naturally; ForceStop halts an in-flight render
// without waiting for that signal. ForceStop must tolerate repeat calls and
// frames that already completed.
type PlaybackSink interface {
	Render(frame *AudioFrame) (<-chan struct{}, error)
	ForceStop(frame *AudioFrame)
}

// CaptureSource produces encoded chunks while recording is active. The engine
// treats chunk bytes as opaque.
type CaptureSource interface {
	Start(onChunk func(data []byte)) error
	Stop()
}

// ControlClient covers the request/response control endpoints invoked around
// the streaming path.
type ControlClient interface {
	StartRecording(ctx context.Context, clientID string) error
	SubmitChunk(ctx context.Context, chunk OutboundChunk) error
	StopRecording(ctx context.Context, clientID string) error
	StopProcessing(ctx context.Context, clientID string) error
}

// TranscriptSink receives transcript updates. Each value is the complete
// current text, not a delta.
type TranscriptSink interface {
	SetInput(text string)
	SetOutput(text string)
}

// SignalSink consumes media-path signaling messages routed off the
// connection.
type SignalSink interface {
	HandleSignal(msg SignalMessage) error
}

// SignalNegotiator is implemented by signal sinks that also initiate the
// media path. Negotiation starts once the connection is open.
type SignalNegotiator interface {
	Offer(ctx context.Context) error
}
