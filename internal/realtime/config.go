package realtime

import "time"

const (
	defaultReconnectDelay = 3 * time.Second
	defaultMaxReconnects  = 5
	defaultFrameBuffer    = 128
)

type Config struct {
	// URL is the websocket base endpoint; the client id is appended as the
	// final path segment.
	URL string

	ReconnectDelay time.Duration
	MaxReconnects  int

	BufferSizes BufferSizes
	ICEServers  []ICEServerConfig
}

type BufferSizes struct {
	Frames int
	Send   int
}

type ICEServerConfig struct {
	URLs       []string
	Username   string
	Credential string
}

func (c Config) withDefaults() Config {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = defaultMaxReconnects
	}
	if c.BufferSizes.Frames <= 0 {
		c.BufferSizes.Frames = defaultFrameBuffer
	}
	if c.BufferSizes.Send <= 0 {
		c.BufferSizes.Send = defaultFrameBuffer
	}
	return c
}
