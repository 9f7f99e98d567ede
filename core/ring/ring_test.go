package ring

import (
	"bytes"
	"testing"
)

func TestBuffer_PushPull(t *testing.T) {
	b := New(4)
	if !b.IsEmpty() {
		t.Fatal("new buffer should be empty")
	}
	if b.Cap() != 4 {
		t.Errorf("Cap() = %d, want 4", b.Cap())
	}

	if n := b.Push([]byte{1, 2, 3}, false); n != 3 {
		t.Errorf("Push() = %d, want 3", n)
	}
	if b.Len() != 3 {
		t.Errorf("Len() = %d, want 3", b.Len())
	}

	out := make([]byte, 2)
	if n := b.Pull(out); n != 2 {
		t.Fatalf("Pull() = %d, want 2", n)
	}
	if !bytes.Equal(out, []byte{1, 2}) {
		t.Errorf("Pull() data = %v, want [1 2]", out)
	}
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
}

func TestBuffer_PushPartial(t *testing.T) {
	b := New(4)
	if n := b.Push([]byte{1, 2, 3, 4, 5}, false); n != 0 {
		t.Errorf("non-partial Push() = %d, want 0", n)
	}
	if !b.IsEmpty() {
		t.Error("refused push should leave the buffer empty")
	}

	if n := b.Push([]byte{1, 2, 3, 4, 5}, true); n != 4 {
		t.Errorf("partial Push() = %d, want 4", n)
	}
	if !b.IsFull() {
		t.Error("expected full buffer")
	}
	if b.PushByte(9) {
		t.Error("PushByte() on full buffer should fail")
	}
}

func TestBuffer_Wraparound(t *testing.T) {
	b := New(4)
	b.Push([]byte{1, 2, 3}, false)
	b.Discard(2)
	if n := b.Push([]byte{4, 5, 6}, false); n != 3 {
		t.Fatalf("Push() = %d, want 3", n)
	}

	for i, want := range []byte{3, 4, 5, 6} {
		if got := b.At(i); got != want {
			t.Errorf("At(%d) = %d, want %d", i, got, want)
		}
	}

	out := make([]byte, 8)
	n := b.Pull(out)
	if !bytes.Equal(out[:n], []byte{3, 4, 5, 6}) {
		t.Errorf("Pull() = %v, want [3 4 5 6]", out[:n])
	}
	if !b.IsEmpty() {
		t.Error("expected empty buffer after Pull")
	}
}

func TestBuffer_PeekLeavesState(t *testing.T) {
	b := New(8)
	b.Push([]byte("abc"), false)

	out := make([]byte, 3)
	if n := b.Peek(out); n != 3 {
		t.Fatalf("Peek() = %d, want 3", n)
	}
	if string(out) != "abc" {
		t.Errorf("Peek() data = %q, want %q", out, "abc")
	}
	if b.Len() != 3 {
		t.Errorf("Len() after Peek = %d, want 3", b.Len())
	}
}

func TestBuffer_DiscardAndFlush(t *testing.T) {
	b := New(8)
	b.Push([]byte("abcdef"), false)

	if n := b.Discard(2); n != 2 {
		t.Errorf("Discard(2) = %d, want 2", n)
	}
	if b.At(0) != 'c' {
		t.Errorf("At(0) = %q, want 'c'", b.At(0))
	}
	if n := b.Discard(10); n != 4 {
		t.Errorf("Discard(10) = %d, want 4", n)
	}
	if n := b.Discard(1); n != 0 {
		t.Errorf("Discard(1) on empty = %d, want 0", n)
	}

	b.Push([]byte("xy"), false)
	b.Flush()
	if !b.IsEmpty() || b.Free() != 8 {
		t.Errorf("after Flush: Len() = %d, Free() = %d", b.Len(), b.Free())
	}
}

func TestBuffer_AtOutOfRange(t *testing.T) {
	b := New(2)
	b.PushByte(1)
	for _, off := range []int{1, -1} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("At(%d) did not panic", off)
				}
			}()
			b.At(off)
		}()
	}
}

func TestBuffer_ZeroCapacity(t *testing.T) {
	b := New(0)
	if !b.IsFull() || !b.IsEmpty() {
		t.Errorf("zero buffer: IsFull() = %v, IsEmpty() = %v", b.IsFull(), b.IsEmpty())
	}
	if n := b.Push([]byte{1}, true); n != 0 {
		t.Errorf("Push() = %d, want 0", n)
	}
	if b.PushByte(1) {
		t.Error("PushByte() should fail")
	}
	if n := b.Pull(make([]byte, 1)); n != 0 {
		t.Errorf("Pull() = %d, want 0", n)
	}
}
