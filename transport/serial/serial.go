// Package serial provides a serial transport for framed payloads.
//
// Payloads are framed with flag delimiters, byte stuffing and a CRC-16, and
// written to the port as one burst per frame. A read goroutine feeds raw
// port bytes into a bounded queue that the line polls, so corrupted or
// partial frames on the wire are discarded and the receiver resynchronizes
// on the next flag.
package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/kabili207/sdlink/core/codec"
	"github.com/kabili207/sdlink/core/line"
	"github.com/kabili207/sdlink/transport"
	"github.com/kabili207/sdlink/transport/bytepipe"
	"go.bug.st/serial"
)

// Compile-time interface check.
var _ transport.Transport = (*Transport)(nil)

const (
	// DefaultBaudRate is the default baud rate for serial connections.
	DefaultBaudRate = 115200

	// DefaultReadTimeout bounds each port read so the read loop notices
	// cancellation.
	DefaultReadTimeout = 100 * time.Millisecond

	// readBufSize is the size of the serial read buffer.
	readBufSize = 1024
)

// Port is the part of a serial port the transport uses.
type Port interface {
	io.ReadWriteCloser
}

// openPort opens a serial port; replaced in tests.
var openPort = func(name string, mode *serial.Mode) (Port, error) {
	return serial.Open(name, mode)
}

// Config holds the configuration for a serial transport.
type Config struct {
	// Port is the serial port path (e.g., "/dev/ttyUSB0" or "COM3").
	Port string
	// BaudRate is the serial baud rate. Defaults to 115200.
	BaudRate int
	// Limits bounds payload size. The zero value uses codec.DefaultLimits.
	Limits codec.Limits
	// BufferSize is the receive buffer size; required when Limits is
	// unbounded.
	BufferSize int
	// PollInterval is how often the line is polled without new bytes.
	PollInterval time.Duration
	// ReadTimeout bounds each port read. Defaults to 100ms.
	ReadTimeout time.Duration
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Transport implements transport.Transport over a serial connection.
type Transport struct {
	cfg  Config
	port Port
	log  *slog.Logger

	line *line.Line
	in   *bytepipe.Queue
	out  *bytepipe.Queue
	pump *transport.Pump

	mu        sync.RWMutex
	txMu      sync.Mutex
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}

	payloadHandler transport.PayloadHandler
	stateHandler   transport.StateHandler
}

// New creates a new serial transport with the given configuration.
func New(cfg Config) *Transport {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = transport.DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Transport{
		cfg: cfg,
		log: cfg.Logger.WithGroup("serial"),
	}
}

// Start opens the serial port and begins reading payloads.
func (t *Transport) Start(ctx context.Context) error {
	if t.cfg.Port == "" {
		return errors.New("serial port is required")
	}

	mode := &serial.Mode{
		BaudRate: t.cfg.BaudRate,
	}

	port, err := openPort(t.cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("opening serial port: %w", err)
	}
	if p, ok := port.(interface{ SetReadTimeout(time.Duration) error }); ok {
		if err := p.SetReadTimeout(t.cfg.ReadTimeout); err != nil {
			port.Close()
			return fmt.Errorf("setting read timeout: %w", err)
		}
	}

	if err := t.attach(port); err != nil {
		port.Close()
		return err
	}

	t.mu.Lock()
	t.connected = true
	t.done = make(chan struct{})
	handler := t.stateHandler
	t.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		t.readLoop(runCtx, port)
	}()
	go func() {
		defer wg.Done()
		if err := t.pump.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			t.log.Error("serial receive failed", "error", err)
		}
	}()
	done := t.done
	go func() {
		wg.Wait()
		close(done)
	}()

	t.log.Info("connected to serial port", "port", t.cfg.Port, "baud", t.cfg.BaudRate)

	if handler != nil {
		handler(t, transport.EventConnected)
	}

	return nil
}

// attach builds the line and queues around an open port.
func (t *Transport) attach(port Port) error {
	lim := t.cfg.Limits
	if lim.MaxPayload == 0 {
		lim = codec.DefaultLimits()
	}
	maxPayload := lim.Max()
	if maxPayload == codec.NoLimit {
		maxPayload = t.cfg.BufferSize
	}

	in := bytepipe.New(max(t.cfg.BufferSize, codec.FrameCapacity(maxPayload)))
	out := bytepipe.New(codec.FrameCapacity(max(maxPayload, 0)))
	l, err := line.New(line.Config{
		Sink:       out,
		Source:     in,
		Limits:     lim,
		BufferSize: t.cfg.BufferSize,
	})
	if err != nil {
		return fmt.Errorf("configuring line: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.port = port
	t.line = l
	t.in = in
	t.out = out
	t.pump = &transport.Pump{
		Receiver:   l,
		Dispatch:   t.dispatch,
		Wake:       in.Ready(),
		Interval:   t.cfg.PollInterval,
		BufferSize: maxPayload,
		Logger:     t.log,
	}
	return nil
}

// Stop closes the serial port and stops the read loop.
func (t *Transport) Stop() error {
	t.mu.Lock()
	handler := t.stateHandler
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	t.mu.Lock()
	t.connected = false
	port := t.port
	t.port = nil
	done := t.done
	t.mu.Unlock()

	var err error
	if port != nil {
		err = port.Close()
	}

	// Wait for read loop and pump to finish
	if done != nil {
		<-done
	}

	if handler != nil {
		handler(t, transport.EventDisconnected)
	}

	return err
}

// IsConnected returns true if the serial port is open.
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// SetPayloadHandler sets the callback for incoming payloads.
func (t *Transport) SetPayloadHandler(fn transport.PayloadHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.payloadHandler = fn
}

// SetStateHandler sets the callback for transport state changes.
func (t *Transport) SetStateHandler(fn transport.StateHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateHandler = fn
}

// Counters returns the line statistics, or nil before Start.
func (t *Transport) Counters() *line.Counters {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.line == nil {
		return nil
	}
	return t.line.Counters()
}

// Send frames payload and writes it to the serial port.
func (t *Transport) Send(payload []byte) error {
	t.mu.RLock()
	port := t.port
	connected := t.connected
	t.mu.RUnlock()

	if !connected || port == nil {
		return errors.New("not connected")
	}

	t.txMu.Lock()
	defer t.txMu.Unlock()

	if err := t.line.Send(payload); err != nil {
		t.out.Drain()
		return fmt.Errorf("framing payload: %w", err)
	}

	if _, err := port.Write(t.out.Drain()); err != nil {
		return fmt.Errorf("writing to serial port: %w", err)
	}

	return nil
}

// readLoop continuously reads from the serial port into the receive queue.
func (t *Transport) readLoop(ctx context.Context, port Port) {
	buf := make([]byte, readBufSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := port.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return // context cancelled, clean shutdown
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				t.handleDisconnect(err)
				return
			}
			t.log.Error("serial read error", "error", err)
			t.notify(transport.EventError)
			t.handleDisconnect(err)
			return
		}

		if n == 0 {
			continue // read timeout
		}

		before := t.in.Dropped()
		t.in.Write(buf[:n])
		if dropped := t.in.Dropped() - before; dropped > 0 {
			t.log.Debug("receive queue full, bytes dropped", "dropped", dropped)
		}
	}
}

func (t *Transport) dispatch(payload []byte) {
	t.mu.RLock()
	handler := t.payloadHandler
	t.mu.RUnlock()

	if handler != nil {
		handler(payload, transport.PayloadSourceSerial)
	}
}

func (t *Transport) notify(ev transport.Event) {
	t.mu.RLock()
	handler := t.stateHandler
	t.mu.RUnlock()

	if handler != nil {
		handler(t, ev)
	}
}

func (t *Transport) handleDisconnect(err error) {
	t.mu.Lock()
	t.connected = false
	handler := t.stateHandler
	t.mu.Unlock()

	if err != nil {
		t.log.Error("serial disconnected", "error", err)
	}

	if handler != nil {
		handler(t, transport.EventDisconnected)
	}
}
