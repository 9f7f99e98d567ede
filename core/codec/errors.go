package codec

import "errors"

var (
	// ErrCapacity is returned when a payload exceeds the configured maximum
	// or a buffer is too small for the required expansion.
	ErrCapacity = errors.New("capacity exceeded")
	// ErrFraming is returned for a missing boundary flag, an unescaped flag
	// inside a frame, or an invalid or truncated escape sequence.
	ErrFraming = errors.New("framing error")
	// ErrIntegrity is returned when the frame checksum does not verify.
	ErrIntegrity = errors.New("checksum mismatch")
)
