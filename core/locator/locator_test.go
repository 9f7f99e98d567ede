package locator

import (
	"bytes"
	"errors"
	"testing"

	"github.com/kabili207/sdlink/core/ring"
)

func flagRule(maxLen int) Rule {
	return Rule{
		Head:   []byte{0x7E},
		Tail:   []byte{0x7E},
		MinLen: 0,
		MaxLen: maxLen,
		Policy: PolicyExact,
	}
}

func newLocator(t *testing.T, rule Rule) *Locator {
	t.Helper()
	l, err := New(rule)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l
}

func fill(t *testing.T, capacity int, data []byte) *ring.Buffer {
	t.Helper()
	b := ring.New(capacity)
	if n := b.Push(data, false); n != len(data) {
		t.Fatalf("Push() = %d, want %d", n, len(data))
	}
	return b
}

// next calls Next and fails the test if no region is found.
func next(t *testing.T, l *Locator, b *ring.Buffer, dst []byte) int {
	t.Helper()
	n, ok := l.Next(b, dst)
	if !ok {
		t.Fatal("Next() found no region")
	}
	return n
}

func TestNew_InvalidRule(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{"empty head", Rule{Tail: []byte{1}, MaxLen: 4}},
		{"empty tail", Rule{Head: []byte{1}, MaxLen: 4}},
		{"negative min", Rule{Head: []byte{1}, Tail: []byte{1}, MinLen: -1, MaxLen: 4}},
		{"max below min", Rule{Head: []byte{1}, Tail: []byte{1}, MinLen: 5, MaxLen: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.rule); !errors.Is(err, ErrInvalidRule) {
				t.Errorf("New() error = %v, want %v", err, ErrInvalidRule)
			}
		})
	}
}

func TestNext_SingleRegion(t *testing.T) {
	l := newLocator(t, flagRule(8))
	b := fill(t, 16, []byte{0x7E, 1, 2, 3, 0x7E})

	dst := make([]byte, 16)
	n := next(t, l, b, dst)
	if want := []byte{0x7E, 1, 2, 3, 0x7E}; !bytes.Equal(dst[:n], want) {
		t.Errorf("Next() = %x, want %x", dst[:n], want)
	}
	if !b.IsEmpty() {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
	if _, ok := l.Next(b, dst); ok {
		t.Error("second Next() found a region")
	}
}

func TestNext_SkipsGarbage(t *testing.T) {
	l := newLocator(t, flagRule(8))
	b := fill(t, 16, []byte{0xAA, 0xBB, 0x7E, 9, 0x7E})

	dst := make([]byte, 16)
	n := next(t, l, b, dst)
	if want := []byte{0x7E, 9, 0x7E}; !bytes.Equal(dst[:n], want) {
		t.Errorf("Next() = %x, want %x", dst[:n], want)
	}
}

func TestNext_GarbageOnlyIsDropped(t *testing.T) {
	l := newLocator(t, flagRule(8))
	b := fill(t, 16, []byte{1, 2, 3})

	if _, ok := l.Next(b, make([]byte, 16)); ok {
		t.Error("Next() found a region in garbage")
	}
	if !b.IsEmpty() {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
}

func TestNext_IncompleteIsKept(t *testing.T) {
	l := newLocator(t, flagRule(8))
	b := fill(t, 16, []byte{0x7E, 1, 2})

	if _, ok := l.Next(b, make([]byte, 16)); ok {
		t.Fatal("Next() found a region in incomplete data")
	}
	if b.Len() != 3 {
		t.Errorf("Len() = %d, want 3", b.Len())
	}

	b.Push([]byte{3, 0x7E}, false)
	if n := next(t, l, b, make([]byte, 16)); n != 5 {
		t.Errorf("Next() = %d, want 5", n)
	}
}

func TestNext_TooLongRejectsHead(t *testing.T) {
	l := newLocator(t, flagRule(2))
	b := fill(t, 16, []byte{0x7E, 1, 2, 3, 0x7E, 4, 0x7E})

	dst := make([]byte, 16)
	n := next(t, l, b, dst)
	if want := []byte{0x7E, 4, 0x7E}; !bytes.Equal(dst[:n], want) {
		t.Errorf("Next() = %x, want %x", dst[:n], want)
	}
}

func TestNext_ShareMarkers(t *testing.T) {
	rule := flagRule(8)
	rule.ShareMarkers = true
	l := newLocator(t, rule)
	b := fill(t, 16, []byte{0x7E, 1, 0x7E, 2, 0x7E})

	dst := make([]byte, 16)
	n := next(t, l, b, dst)
	if want := []byte{0x7E, 1, 0x7E}; !bytes.Equal(dst[:n], want) {
		t.Errorf("first Next() = %x, want %x", dst[:n], want)
	}
	n = next(t, l, b, dst)
	if want := []byte{0x7E, 2, 0x7E}; !bytes.Equal(dst[:n], want) {
		t.Errorf("second Next() = %x, want %x", dst[:n], want)
	}
	// The closing marker stays buffered.
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
}

func TestNext_MinLenPolicies(t *testing.T) {
	data := []byte{0x7E, 1, 0x7E, 2, 3, 0x7E}

	// Exact drops the short region and restarts at the next head.
	exact := flagRule(8)
	exact.MinLen = 2
	if n := next(t, newLocator(t, exact), fill(t, 16, data), make([]byte, 16)); n != 4 {
		t.Errorf("exact Next() = %d, want 4", n)
	}

	// Extend skips the early tail.
	extend := exact
	extend.Policy = PolicyExtend
	dst := make([]byte, 16)
	n := next(t, newLocator(t, extend), fill(t, 16, data), dst)
	if !bytes.Equal(dst[:n], data) {
		t.Errorf("extend Next() = %x, want %x", dst[:n], data)
	}
}

func TestNext_MultiByteMarkers(t *testing.T) {
	l := newLocator(t, Rule{
		Head:   []byte{0xC0, 0x3E},
		Tail:   []byte{0x0D, 0x0A},
		MaxLen: NoLimit,
	})
	b := fill(t, 16, []byte{0x00, 0xC0, 0x3E, 'h', 'i', 0x0D, 0x0A, 0xC0})

	dst := make([]byte, 16)
	n := next(t, l, b, dst)
	if want := []byte{0xC0, 0x3E, 'h', 'i', 0x0D, 0x0A}; !bytes.Equal(dst[:n], want) {
		t.Errorf("Next() = %x, want %x", dst[:n], want)
	}

	if _, ok := l.Next(b, dst); ok {
		t.Error("second Next() found a region")
	}
	// A possible partial head is retained.
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
}

func TestNext_FullBufferWithoutTailMakesProgress(t *testing.T) {
	l := newLocator(t, flagRule(NoLimit))
	b := fill(t, 4, []byte{0x7E, 1, 2, 3})

	if _, ok := l.Next(b, make([]byte, 4)); ok {
		t.Error("Next() found a region without a tail")
	}
	if b.IsFull() {
		t.Error("full buffer without a tail must drop its head")
	}
}

func TestNext_ShortDestination(t *testing.T) {
	l := newLocator(t, flagRule(8))
	b := fill(t, 16, []byte{0x7E, 1, 2, 3, 0x7E})

	dst := make([]byte, 2)
	if n := next(t, l, b, dst); n != 5 {
		t.Errorf("Next() = %d, want 5", n)
	}
	if !b.IsEmpty() {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
}

func TestPolicy_String(t *testing.T) {
	tests := []struct {
		p    Policy
		want string
	}{
		{PolicyExact, "exact"},
		{PolicyExtend, "extend"},
		{Policy(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("Policy(%d).String() = %q, want %q", tt.p, got, tt.want)
		}
	}
}
