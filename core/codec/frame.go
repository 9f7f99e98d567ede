package codec

import "fmt"

const (
	// DefaultMaxPayload is the default maximum payload size of a frame.
	DefaultMaxPayload = 256
	// NoLimit disables the payload bound. CRC-16 detection strength drops
	// as frames grow, so unbounded frames trade integrity for length.
	NoLimit = -1
	// frameOverhead is the two flags plus the checksum, before escaping.
	frameOverhead = 2 + ChecksumSize
)

// FrameCapacity returns the worst-case wire size of a frame carrying a
// payload of n bytes: every payload and checksum byte escaped, plus flags.
func FrameCapacity(n int) int {
	return n*2 + 6
}

// Limits constrains frame encode/decode payload size.
type Limits struct {
	// MaxPayload is the largest payload accepted or produced. NoLimit
	// disables the check. Zero means DefaultMaxPayload.
	MaxPayload int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxPayload: DefaultMaxPayload}
}

// Bounded reports whether a payload bound is enforced.
func (l Limits) Bounded() bool {
	return l.MaxPayload != NoLimit
}

func (l Limits) maxPayload() int {
	if l.MaxPayload == 0 {
		return DefaultMaxPayload
	}
	return l.MaxPayload
}

// Max returns the effective payload bound, or NoLimit.
func (l Limits) Max() int {
	if !l.Bounded() {
		return NoLimit
	}
	return l.maxPayload()
}

// CandidateMax returns the largest escaped region (between the flags) a
// valid frame can have, or NoLimit.
func (l Limits) CandidateMax() int {
	if !l.Bounded() {
		return NoLimit
	}
	return FrameCapacity(l.maxPayload()) - 2
}

// Check returns ErrCapacity if a payload of n bytes exceeds the limits.
func (l Limits) Check(n int) error {
	if l.Bounded() && n > l.maxPayload() {
		return fmt.Errorf("%w: payload of %d bytes, max %d", ErrCapacity, n, l.maxPayload())
	}
	return nil
}

// Frame builds a frame in place from the payload held in buf[:n] and
// returns the frame length. The checksum is appended, the payload and
// checksum escaped, and the result enclosed in flags:
//
//	0x7E <escaped(payload || CRC16_BE(payload))> 0x7E
//
// buf needs FrameCapacity(n) bytes in the worst case. The payload bound is
// checked before buf is touched; any later failure leaves buf undefined.
func (l Limits) Frame(buf []byte, n int) (int, error) {
	if err := l.Check(n); err != nil {
		return 0, err
	}
	if n < 0 || n+frameOverhead > len(buf) {
		return 0, fmt.Errorf("%w: frame needs at least %d bytes, have %d", ErrCapacity, n+frameOverhead, len(buf))
	}

	AppendChecksum(buf[:n], Checksum(buf[:n]))
	m, err := escapeShift(buf, n+ChecksumSize, 1)
	if err != nil {
		return 0, err
	}
	if m+2 > len(buf) {
		return 0, fmt.Errorf("%w: frame needs %d bytes, have %d", ErrCapacity, m+2, len(buf))
	}
	buf[0] = Flag
	buf[m+1] = Flag
	return m + 2, nil
}

// Deframe recovers the payload from a complete frame in place and returns
// it as a sub-slice of frame. On error the contents of frame are undefined.
//
// Checks run in order: boundary flags (ErrFraming), escaping (ErrFraming),
// checksum (ErrIntegrity), payload bound (ErrCapacity).
func (l Limits) Deframe(frame []byte) ([]byte, error) {
	if len(frame) < 2 || frame[0] != Flag || frame[len(frame)-1] != Flag {
		return nil, fmt.Errorf("%w: missing boundary flag", ErrFraming)
	}

	body := frame[1 : len(frame)-1]
	m, err := UnescapeInPlace(body)
	if err != nil {
		return nil, err
	}
	body = body[:m]

	if !VerifyChecksum(body) {
		return nil, fmt.Errorf("%w: over %d bytes", ErrIntegrity, len(body))
	}
	payload := body[:m-ChecksumSize]
	if err := l.Check(len(payload)); err != nil {
		return nil, err
	}
	return payload, nil
}

// EncodeFrame frames payload into a newly allocated slice using the
// default limits.
func EncodeFrame(payload []byte) ([]byte, error) {
	lim := DefaultLimits()
	if err := lim.Check(len(payload)); err != nil {
		return nil, err
	}
	buf := make([]byte, FrameCapacity(len(payload)))
	copy(buf, payload)
	n, err := lim.Frame(buf, len(payload))
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// DecodeFrame deframes a copy of frame using the default limits; frame is
// left untouched.
func DecodeFrame(frame []byte) ([]byte, error) {
	buf := make([]byte, len(frame))
	copy(buf, frame)
	payload, err := DefaultLimits().Deframe(buf)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}
