package transport

import (
	"context"
	"log/slog"
	"time"
)

// DefaultPollInterval is how often a Pump polls its receiver when not woken.
const DefaultPollInterval = 10 * time.Millisecond

// Receiver is the receive half of a line.
type Receiver interface {
	ReceiveFrame(out []byte) (n int, ok bool, err error)
}

// Pump drives a Receiver from outside, polling it on a ticker and whenever
// Wake fires, and dispatches every payload it yields.
type Pump struct {
	Receiver Receiver
	// Dispatch is called for every received payload.
	Dispatch func(payload []byte)
	// Wake, if set, triggers an immediate drain.
	Wake <-chan struct{}
	// Interval between polls. Defaults to DefaultPollInterval.
	Interval time.Duration
	// BufferSize is the payload buffer size.
	BufferSize int
	Logger     *slog.Logger

	buf []byte
}

// Run polls until ctx is cancelled or the receiver fails.
func (p *Pump) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-p.Wake:
		}
		if _, err := p.Drain(); err != nil {
			return err
		}
	}
}

// Drain receives until no complete frame is left and returns the number of
// payloads dispatched.
func (p *Pump) Drain() (int, error) {
	if p.buf == nil {
		p.buf = make([]byte, max(p.BufferSize, 1))
	}
	count := 0
	for {
		n, ok, err := p.Receiver.ReceiveFrame(p.buf)
		if err != nil {
			return count, err
		}
		if !ok {
			return count, nil
		}
		count++
		if p.Dispatch != nil {
			p.Dispatch(p.buf[:n])
		} else if p.Logger != nil {
			p.Logger.Debug("dropping payload, no handler", "len", n)
		}
	}
}
