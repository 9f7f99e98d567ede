package line

import "sync/atomic"

// Counters tracks line statistics using atomic counters.
// All fields are safe for concurrent access.
type Counters struct {
	FramesSent          atomic.Uint64 // Frames fully written to the sink
	BytesSent           atomic.Uint64 // Bytes accepted by the sink
	SendFailures        atomic.Uint64 // Sends aborted by a refused byte
	FramesReceived      atomic.Uint64 // Payloads returned by Receive
	BytesReceived       atomic.Uint64 // Bytes pulled from the source
	RejectedFraming     atomic.Uint64 // Candidates with bad flags or escaping
	RejectedIntegrity   atomic.Uint64 // Candidates failing the CRC check
	RejectedOversize    atomic.Uint64 // Valid frames above the payload limit
	RejectedShortOutput atomic.Uint64 // Valid frames larger than the output buffer
}

// CountersSnapshot is a plain-value copy of Counters for reading.
type CountersSnapshot struct {
	FramesSent          uint64
	BytesSent           uint64
	SendFailures        uint64
	FramesReceived      uint64
	BytesReceived       uint64
	RejectedFraming     uint64
	RejectedIntegrity   uint64
	RejectedOversize    uint64
	RejectedShortOutput uint64
}

// Rejected returns the total number of discarded candidates.
func (s CountersSnapshot) Rejected() uint64 {
	return s.RejectedFraming + s.RejectedIntegrity + s.RejectedOversize + s.RejectedShortOutput
}

// Snapshot returns a point-in-time copy of all counters.
func (c *Counters) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		FramesSent:          c.FramesSent.Load(),
		BytesSent:           c.BytesSent.Load(),
		SendFailures:        c.SendFailures.Load(),
		FramesReceived:      c.FramesReceived.Load(),
		BytesReceived:       c.BytesReceived.Load(),
		RejectedFraming:     c.RejectedFraming.Load(),
		RejectedIntegrity:   c.RejectedIntegrity.Load(),
		RejectedOversize:    c.RejectedOversize.Load(),
		RejectedShortOutput: c.RejectedShortOutput.Load(),
	}
}

// Reset zeroes all counters.
func (c *Counters) Reset() {
	c.FramesSent.Store(0)
	c.BytesSent.Store(0)
	c.SendFailures.Store(0)
	c.FramesReceived.Store(0)
	c.BytesReceived.Store(0)
	c.RejectedFraming.Store(0)
	c.RejectedIntegrity.Store(0)
	c.RejectedOversize.Store(0)
	c.RejectedShortOutput.Store(0)
}
