// Package outlet provides named multi-channel telemetry outputs.
//
// An outlet is declared once with its stream description, accepts one flat
// float32 sample per push and is destroyed with Close. The shipped transport
// publishes over NATS: the description as JSON on
// lsl.streams.<source>.info and samples as CBOR on lsl.streams.<source>.data.
package outlet

import (
	"errors"
)

// Errors returned by outlets and providers.
var (
	ErrClosed         = errors.New("outlet closed")
	ErrChannelCount   = errors.New("sample length does not match channel count")
	ErrInvalidInfo    = errors.New("invalid stream info")
	ErrSourceIDInUse  = errors.New("source id already declared")
	ErrNotConnected   = errors.New("outlet transport not connected")
	ErrStreamNotFound = errors.New("stream not found")
)

// Provider declares outlets.
type Provider interface {
	Declare(info StreamInfo) (Outlet, error)
}

// Outlet is one declared output stream. Implementations must be safe to
// Close more than once.
type Outlet interface {
	Info() StreamInfo
	PushSample(values []float32) error
	Close() error
}
