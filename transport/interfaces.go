// Package transport provides transport interfaces and implementations for
// carrying framed payloads over byte-oriented links.
package transport

import (
	"context"
)

// Transport is the base interface for all transport implementations.
type Transport interface {
	// Start begins the transport's connection and payload handling.
	// The provided context controls the transport's lifetime.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the transport.
	Stop() error
	// IsConnected returns true if the transport is currently connected.
	IsConnected() bool
	// SetPayloadHandler sets the callback for incoming payloads.
	SetPayloadHandler(fn PayloadHandler)
	// SetStateHandler sets the callback for transport state changes.
	SetStateHandler(fn StateHandler)
	// Send frames and transmits a payload over the transport.
	Send(payload []byte) error
}

// PayloadHandler is called when a payload is received. The slice is only
// valid for the duration of the call.
type PayloadHandler func(payload []byte, source PayloadSource)

// StateHandler is called when the transport state changes.
type StateHandler func(transport Transport, event Event)

// Event represents transport state change events.
type Event int

const (
	// EventConnected is fired when the transport connects.
	EventConnected Event = iota
	// EventDisconnected is fired when the transport disconnects.
	EventDisconnected
	// EventReconnecting is fired when the transport is attempting to reconnect.
	EventReconnecting
	// EventError is fired when an error occurs.
	EventError
)

func (e Event) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventReconnecting:
		return "reconnecting"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// PayloadSource indicates where a payload originated from.
type PayloadSource int

const (
	// PayloadSourceSerial indicates the payload came from a serial port.
	PayloadSourceSerial PayloadSource = iota
	// PayloadSourceMQTT indicates the payload came from an MQTT tunnel.
	PayloadSourceMQTT
	// PayloadSourceLoopback indicates the payload came from a loopback pair.
	PayloadSourceLoopback
)

func (s PayloadSource) String() string {
	switch s {
	case PayloadSourceSerial:
		return "serial"
	case PayloadSourceMQTT:
		return "mqtt"
	case PayloadSourceLoopback:
		return "loopback"
	default:
		return "unknown"
	}
}
