package tunnel

import (
	"time"

	"github.com/danmuck/deskwire/internal/protocol/message"
	"github.com/danmuck/deskwire/internal/qos"
)

// Config defines tunnel timing and fast-path thresholds.
type Config struct {
	// RequestTimeout applies to requests issued without an explicit timeout.
	RequestTimeout time.Duration
	// DataAckThreshold is the message length above which a DataAck is sent.
	DataAckThreshold uint32
	// DecodeTimeout bounds payload conversion for one message.
	DecodeTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestTimeout:   10 * time.Second,
		DataAckThreshold: 32768,
		DecodeTimeout:    30 * time.Second,
	}
}

func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.DataAckThreshold == 0 {
		c.DataAckThreshold = d.DataAckThreshold
	}
	if c.DecodeTimeout <= 0 {
		c.DecodeTimeout = d.DecodeTimeout
	}
	return c
}

// Hooks are the tunnel's outward notifications. Any may be nil. They run on
// tunnel goroutines. OnMessage and the byte hooks must not wait on tunnel
// requests; OnClosed runs after close completes and may call Disconnect.
type Hooks struct {
	// OnMessage receives every decoded message that did not settle a request.
	OnMessage       func(message.Message)
	OnBytesReceived func(n int)
	OnBytesSent     func(n int)
	// OnClosed fires exactly once. cause is nil after Disconnect.
	OnClosed func(cause error)
}

type Options struct {
	Config  Config
	Hooks   Hooks
	QoS     qos.Strategy
	Decoder *message.Decoder
	IDs     *IDGenerator
}
