package codec

import "fmt"

const (
	// Flag delimits every frame on the wire.
	Flag byte = 0x7E
	// Escape introduces an escaped byte inside a frame.
	Escape byte = 0x7D
	// escapeXor is applied to the byte following Escape.
	escapeXor byte = 0x20
)

func needsEscape(b byte) bool {
	return b == Flag || b == Escape
}

// EscapedLen returns the length data has once escaped.
func EscapedLen(data []byte) int {
	n := len(data)
	for _, b := range data {
		if needsEscape(b) {
			n++
		}
	}
	return n
}

// EscapeInPlace escapes buf[:n] in place, using buf[n:] as room for the
// expansion, and returns the escaped length. It returns ErrCapacity when
// len(buf) cannot hold the result; buf is unchanged in that case but
// callers should treat it as undefined.
func EscapeInPlace(buf []byte, n int) (int, error) {
	return escapeShift(buf, n, 0)
}

// escapeShift escapes buf[:n] into buf[shift:shift+m] and returns m.
// Bytes are processed from the back so the write position always sits at
// or past the read position.
func escapeShift(buf []byte, n, shift int) (int, error) {
	if n < 0 || n > len(buf) {
		return 0, fmt.Errorf("%w: region of %d bytes in buffer of %d", ErrCapacity, n, len(buf))
	}
	m := EscapedLen(buf[:n])
	if shift+m > len(buf) {
		return 0, fmt.Errorf("%w: escaping needs %d bytes, have %d", ErrCapacity, shift+m, len(buf))
	}

	w := shift + m
	for i := n - 1; i >= 0; i-- {
		b := buf[i]
		if needsEscape(b) {
			w -= 2
			buf[w] = Escape
			buf[w+1] = b ^ escapeXor
		} else {
			w--
			buf[w] = b
		}
	}
	return m, nil
}

// UnescapeInPlace reverses EscapeInPlace over buf and returns the
// unescaped length. On error the contents of buf are undefined.
func UnescapeInPlace(buf []byte) (int, error) {
	w := 0
	for r := 0; r < len(buf); r++ {
		b := buf[r]
		switch b {
		case Flag:
			return 0, fmt.Errorf("%w: unescaped flag at offset %d", ErrFraming, r)
		case Escape:
			r++
			if r == len(buf) {
				return 0, fmt.Errorf("%w: truncated escape sequence", ErrFraming)
			}
			b = buf[r] ^ escapeXor
			if !needsEscape(b) {
				return 0, fmt.Errorf("%w: invalid escape target %#02x", ErrFraming, buf[r])
			}
		}
		buf[w] = b
		w++
	}
	return w, nil
}
