// Package ring provides a fixed-capacity FIFO byte ring buffer.
//
// The buffer never grows: pushes beyond capacity are either truncated or
// refused, and random access is relative to the logical head. A Buffer is
// not safe for concurrent use.
package ring

// Buffer is a fixed-capacity FIFO over bytes.
type Buffer struct {
	buf  []byte
	head int
	n    int
}

// New creates a Buffer holding at most capacity bytes.
func New(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{buf: make([]byte, capacity)}
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return len(b.buf) }

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int { return b.n }

// Free returns the remaining room.
func (b *Buffer) Free() int { return len(b.buf) - b.n }

// IsFull reports whether no more bytes can be pushed.
func (b *Buffer) IsFull() bool { return b.n == len(b.buf) }

// IsEmpty reports whether the buffer holds no bytes.
func (b *Buffer) IsEmpty() bool { return b.n == 0 }

// Push appends p at the tail and returns the number of bytes stored. When
// p does not fit, Push stores the prefix that fits if partial is true and
// nothing otherwise.
func (b *Buffer) Push(p []byte, partial bool) int {
	if len(p) > b.Free() {
		if !partial {
			return 0
		}
		p = p[:b.Free()]
	}
	for _, c := range p {
		b.buf[(b.head+b.n)%len(b.buf)] = c
		b.n++
	}
	return len(p)
}

// PushByte appends c and reports whether it was stored.
func (b *Buffer) PushByte(c byte) bool {
	if b.IsFull() {
		return false
	}
	b.buf[(b.head+b.n)%len(b.buf)] = c
	b.n++
	return true
}

// Pull removes up to len(p) bytes from the head into p and returns the
// number retrieved.
func (b *Buffer) Pull(p []byte) int {
	n := b.Peek(p)
	b.Discard(n)
	return n
}

// Peek copies up to len(p) bytes from the head into p without removing
// them.
func (b *Buffer) Peek(p []byte) int {
	n := min(len(p), b.n)
	for i := 0; i < n; i++ {
		p[i] = b.buf[(b.head+i)%len(b.buf)]
	}
	return n
}

// Discard drops up to n bytes from the head and returns the number dropped.
func (b *Buffer) Discard(n int) int {
	n = max(0, min(n, b.n))
	if n == 0 {
		return 0
	}
	b.head = (b.head + n) % len(b.buf)
	b.n -= n
	if b.n == 0 {
		b.head = 0
	}
	return n
}

// At returns the byte offset bytes from the head without removing it. It
// panics if offset is out of range, like a slice index.
func (b *Buffer) At(offset int) byte {
	if offset < 0 || offset >= b.n {
		panic("ring: offset out of range")
	}
	return b.buf[(b.head+offset)%len(b.buf)]
}

// Flush empties the buffer.
func (b *Buffer) Flush() {
	b.head = 0
	b.n = 0
}
