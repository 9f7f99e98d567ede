// Package line drives framed payloads over a non-blocking byte transport.
//
// A Line owns a receive accumulation buffer and two scratch regions, one per
// direction. Send frames a payload and hands it to a ByteSink one byte at a
// time; Receive pulls whatever a ByteSource has ready, scans the
// accumulated bytes for flag-delimited candidates and returns the first one
// that deframes. Rejected candidates are consumed, so noise on the line
// costs bounded work and the receiver resynchronizes on the next flag.
//
// Nothing blocks and nothing runs in the background: callers poll Receive.
// Send and Receive touch disjoint state, so one goroutine may send while
// another receives, but neither method may be called concurrently with
// itself on the same Line.
package line

import (
	"errors"
	"fmt"

	"github.com/kabili207/sdlink/core/codec"
	"github.com/kabili207/sdlink/core/locator"
	"github.com/kabili207/sdlink/core/ring"
)

// maxFills bounds the source reads of one ReceiveFrame call.
const maxFills = 2

var (
	// ErrConfig is returned for a nil Line or when the direction requested
	// has no I/O capability.
	ErrConfig = errors.New("line not configured")
	// ErrTransport is returned when the sink refuses a byte.
	ErrTransport = errors.New("transport refused byte")
)

// ByteSink accepts one outbound byte. SendByte must not block; false means
// the byte was not accepted now and nothing was queued.
type ByteSink interface {
	SendByte(b byte) bool
}

// ByteSource yields one inbound byte. ReceiveByte must not block; ok is
// false when no byte is ready.
type ByteSource interface {
	ReceiveByte() (b byte, ok bool)
}

// SinkFunc is func type of ByteSink.
type SinkFunc func(byte) bool

// SendByte implements ByteSink.
func (f SinkFunc) SendByte(b byte) bool { return f(b) }

// SourceFunc is func type of ByteSource.
type SourceFunc func() (byte, bool)

// ReceiveByte implements ByteSource.
func (f SourceFunc) ReceiveByte() (byte, bool) { return f() }

// Config holds the configuration for a Line.
type Config struct {
	// Sink transmits outbound bytes. Nil disables Send.
	Sink ByteSink
	// Source provides inbound bytes. Nil disables Receive.
	Source ByteSource
	// Limits bounds payload size. The zero value uses codec.DefaultLimits.
	Limits codec.Limits
	// BufferSize is the receive accumulation buffer capacity. It defaults
	// to codec.FrameCapacity(MaxPayload) and is required when the payload
	// bound is disabled.
	BufferSize int
}

// Line is one end of a framed serial link.
type Line struct {
	sink   ByteSink
	source ByteSource
	limits codec.Limits

	rx      *ring.Buffer
	loc     *locator.Locator
	txFrame []byte
	rxFrame []byte

	counters Counters
}

// New creates a Line from cfg.
func New(cfg Config) (*Line, error) {
	lim := cfg.Limits
	if lim.MaxPayload == 0 {
		lim = codec.DefaultLimits()
	}
	if lim.Bounded() && lim.Max() < 0 {
		return nil, fmt.Errorf("%w: invalid max payload %d", ErrConfig, lim.MaxPayload)
	}

	size := cfg.BufferSize
	if size == 0 {
		if !lim.Bounded() {
			return nil, fmt.Errorf("%w: buffer size is required without a payload limit", ErrConfig)
		}
		size = codec.FrameCapacity(lim.Max())
	}
	if size < 2 {
		return nil, fmt.Errorf("%w: buffer size %d too small", ErrConfig, size)
	}

	candidateMax := size - 2
	if lim.Bounded() {
		candidateMax = min(candidateMax, lim.CandidateMax())
	}
	loc, err := locator.New(locator.Rule{
		Head:         []byte{codec.Flag},
		Tail:         []byte{codec.Flag},
		MinLen:       0,
		MaxLen:       candidateMax,
		Policy:       locator.PolicyExact,
		ShareMarkers: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	l := &Line{
		sink:    cfg.Sink,
		source:  cfg.Source,
		limits:  lim,
		rx:      ring.New(size),
		loc:     loc,
		rxFrame: make([]byte, candidateMax+2),
	}
	if lim.Bounded() {
		l.txFrame = make([]byte, codec.FrameCapacity(lim.Max()))
	}
	return l, nil
}

// Limits returns the payload limits of the line.
func (l *Line) Limits() codec.Limits {
	return l.limits
}

// Counters returns the line's statistics counters.
func (l *Line) Counters() *Counters {
	return &l.counters
}

// Send frames payload and writes it to the sink. The size check happens
// before any byte is written. If the sink refuses a byte Send returns
// ErrTransport at once; bytes already written stay on the wire and the
// peer discards the truncated frame.
func (l *Line) Send(payload []byte) error {
	if l == nil || l.sink == nil {
		return fmt.Errorf("%w: no sink", ErrConfig)
	}
	if err := l.limits.Check(len(payload)); err != nil {
		return err
	}

	need := codec.FrameCapacity(len(payload))
	if len(l.txFrame) < need {
		l.txFrame = make([]byte, need)
	}
	buf := l.txFrame
	copy(buf, payload)
	n, err := l.limits.Frame(buf, len(payload))
	if err != nil {
		return err
	}

	for i, b := range buf[:n] {
		if !l.sink.SendByte(b) {
			l.counters.SendFailures.Add(1)
			return fmt.Errorf("%w: after %d of %d bytes", ErrTransport, i, n)
		}
		l.counters.BytesSent.Add(1)
	}
	l.counters.FramesSent.Add(1)
	return nil
}

// Receive copies the next valid payload into out and returns its length.
// Zero means no complete frame is available yet; call again later. Frames
// whose payload does not fit in out are discarded. Work per call is bounded
// by the receive buffer size, not by how much the source has ready.
func (l *Line) Receive(out []byte) (int, error) {
	n, _, err := l.ReceiveFrame(out)
	return n, err
}

// ReceiveFrame is like Receive but also reports whether a frame was
// found, which distinguishes an empty payload from no frame at all.
//
// A call reads at most two buffers' worth of bytes from the source.
func (l *Line) ReceiveFrame(out []byte) (n int, ok bool, err error) {
	if l == nil || l.source == nil {
		return 0, false, fmt.Errorf("%w: no source", ErrConfig)
	}

	// One fill and scan, plus one refill when the first fill stopped on a
	// full buffer: a frame that spans the whole buffer behind a retained
	// flag completes on the second pass. Work per call stays bounded even
	// if the source never runs dry.
	for pass := 0; pass < maxFills; pass++ {
		full := l.fill()
		for {
			size, found := l.loc.Next(l.rx, l.rxFrame)
			if !found {
				break
			}
			if size == 2 {
				// Adjacent flags: idle fill between frames.
				continue
			}

			payload, err := l.limits.Deframe(l.rxFrame[:size])
			if err != nil {
				l.countRejected(err)
				continue
			}
			if len(payload) > len(out) {
				l.counters.RejectedShortOutput.Add(1)
				continue
			}

			l.counters.FramesReceived.Add(1)
			return copy(out, payload), true, nil
		}
		if !full {
			break
		}
	}
	return 0, false, nil
}

// fill pulls ready bytes from the source until it runs dry or the buffer
// is full, and reports whether it stopped because the buffer was full.
func (l *Line) fill() bool {
	for !l.rx.IsFull() {
		b, ok := l.source.ReceiveByte()
		if !ok {
			return false
		}
		l.rx.PushByte(b)
		l.counters.BytesReceived.Add(1)
	}
	return true
}

// Reset discards every buffered inbound byte.
func (l *Line) Reset() {
	if l == nil {
		return
	}
	l.rx.Flush()
}

// Buffered returns the number of inbound bytes waiting to be scanned. The
// closing flag of the last frame is kept as a possible opening flag, so an
// idle line that has received traffic reports 1.
func (l *Line) Buffered() int {
	if l == nil {
		return 0
	}
	return l.rx.Len()
}

func (l *Line) countRejected(err error) {
	switch {
	case errors.Is(err, codec.ErrIntegrity):
		l.counters.RejectedIntegrity.Add(1)
	case errors.Is(err, codec.ErrCapacity):
		l.counters.RejectedOversize.Add(1)
	default:
		l.counters.RejectedFraming.Add(1)
	}
}
