// Package loopback connects two lines back to back in memory.
//
// Each direction of the pair is a bounded bytepipe.Queue, so a slow
// receiver sees the same refused-byte behavior as a full UART FIFO.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kabili207/sdlink/core/codec"
	"github.com/kabili207/sdlink/core/line"
	"github.com/kabili207/sdlink/transport"
	"github.com/kabili207/sdlink/transport/bytepipe"
)

// Compile-time interface check.
var _ transport.Transport = (*Endpoint)(nil)

// DefaultWireSize is the default capacity of each direction.
const DefaultWireSize = 4096

// Config holds the configuration for a loopback pair.
type Config struct {
	// WireSize is the capacity of each direction. Defaults to 4096.
	WireSize int
	// Limits bounds payload size on both ends.
	Limits codec.Limits
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Endpoint is one end of a loopback pair.
type Endpoint struct {
	line     *line.Line
	in       *bytepipe.Queue
	wireSize int
	log      *slog.Logger

	txMu   sync.Mutex
	rxMu   sync.Mutex
	mu     sync.RWMutex
	cancel context.CancelFunc
	done   chan struct{}

	payloadHandler transport.PayloadHandler
	stateHandler   transport.StateHandler
}

// NewPair creates two endpoints wired to each other.
func NewPair(cfg Config) (*Endpoint, *Endpoint, error) {
	if cfg.WireSize == 0 {
		cfg.WireSize = DefaultWireSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	aToB := bytepipe.New(cfg.WireSize)
	bToA := bytepipe.New(cfg.WireSize)

	a, err := newEndpoint("a", aToB, bToA, cfg)
	if err != nil {
		return nil, nil, err
	}
	b, err := newEndpoint("b", bToA, aToB, cfg)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func newEndpoint(name string, out, in *bytepipe.Queue, cfg Config) (*Endpoint, error) {
	lc := line.Config{Sink: out, Source: in, Limits: cfg.Limits}
	if !cfg.Limits.Bounded() {
		lc.BufferSize = cfg.WireSize
	}
	l, err := line.New(lc)
	if err != nil {
		return nil, fmt.Errorf("creating %s line: %w", name, err)
	}
	return &Endpoint{
		line:     l,
		in:       in,
		wireSize: cfg.WireSize,
		log:      cfg.Logger.WithGroup("loopback").With("end", name),
	}, nil
}

// Line returns the endpoint's line for direct polling.
func (e *Endpoint) Line() *line.Line {
	return e.line
}

// Counters returns the line statistics.
func (e *Endpoint) Counters() *line.Counters {
	return e.line.Counters()
}

// Start begins dispatching received payloads to the payload handler.
func (e *Endpoint) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.done != nil {
		e.mu.Unlock()
		return errors.New("already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	done := e.done
	handler := e.stateHandler
	e.mu.Unlock()

	pump := &transport.Pump{
		Receiver:   e,
		Dispatch:   e.dispatch,
		Wake:       e.in.Ready(),
		BufferSize: e.payloadCap(),
		Logger:     e.log,
	}
	go func() {
		defer close(done)
		if err := pump.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			e.log.Error("loopback receive failed", "error", err)
		}
	}()

	if handler != nil {
		handler(e, transport.EventConnected)
	}
	return nil
}

// Stop halts dispatching.
func (e *Endpoint) Stop() error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	handler := e.stateHandler
	e.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	if handler != nil {
		handler(e, transport.EventDisconnected)
	}
	return nil
}

// IsConnected returns true while the endpoint is started.
func (e *Endpoint) IsConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.done != nil
}

// SetPayloadHandler sets the callback for incoming payloads.
func (e *Endpoint) SetPayloadHandler(fn transport.PayloadHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.payloadHandler = fn
}

// SetStateHandler sets the callback for transport state changes.
func (e *Endpoint) SetStateHandler(fn transport.StateHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stateHandler = fn
}

// Send frames payload onto the wire toward the peer.
func (e *Endpoint) Send(payload []byte) error {
	e.txMu.Lock()
	defer e.txMu.Unlock()
	return e.line.Send(payload)
}

// ReceiveFrame polls the line directly; it serializes with the pump.
func (e *Endpoint) ReceiveFrame(out []byte) (int, bool, error) {
	e.rxMu.Lock()
	defer e.rxMu.Unlock()
	return e.line.ReceiveFrame(out)
}

func (e *Endpoint) dispatch(payload []byte) {
	e.mu.RLock()
	handler := e.payloadHandler
	e.mu.RUnlock()
	if handler != nil {
		handler(payload, transport.PayloadSourceLoopback)
	}
}

func (e *Endpoint) payloadCap() int {
	if m := e.line.Limits().Max(); m != codec.NoLimit {
		return m
	}
	return e.wireSize
}
