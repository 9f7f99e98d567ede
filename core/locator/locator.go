// Package locator finds marker-delimited regions inside a ring buffer.
//
// A Locator scans from the head of a ring.Buffer for a region that begins
// with a head marker, ends with a tail marker and whose body (the bytes in
// between) respects a length window. Every call consumes what it returns
// and any garbage it skips, so repeated calls always make forward progress.
package locator

import (
	"errors"
	"fmt"

	"github.com/kabili207/sdlink/core/ring"
)

// NoLimit disables the MaxLen bound of a Rule.
const NoLimit = -1

// Policy controls how a tail marker that closes a too-short body is treated.
type Policy int

const (
	// PolicyExact ends a region at the first tail after the head; a body
	// outside the length window rejects the head.
	PolicyExact Policy = iota
	// PolicyExtend skips tails that would close a body shorter than
	// MinLen and keeps looking for a later one.
	PolicyExtend
)

func (p Policy) String() string {
	switch p {
	case PolicyExact:
		return "exact"
	case PolicyExtend:
		return "extend"
	default:
		return "unknown"
	}
}

// ErrInvalidRule is returned by New for an unusable Rule.
var ErrInvalidRule = errors.New("invalid locator rule")

// Rule describes the regions a Locator returns.
type Rule struct {
	Head   []byte
	Tail   []byte
	MinLen int // minimum body length
	MaxLen int // maximum body length, or NoLimit
	Policy Policy
	// ShareMarkers leaves the tail marker of a returned region in the
	// buffer so it can also open the next region.
	ShareMarkers bool
}

// Locator returns successive regions matching its Rule.
type Locator struct {
	rule Rule
}

// New validates rule and creates a Locator for it.
func New(rule Rule) (*Locator, error) {
	switch {
	case len(rule.Head) == 0:
		return nil, fmt.Errorf("%w: empty head marker", ErrInvalidRule)
	case len(rule.Tail) == 0:
		return nil, fmt.Errorf("%w: empty tail marker", ErrInvalidRule)
	case rule.MinLen < 0:
		return nil, fmt.Errorf("%w: negative minimum length", ErrInvalidRule)
	case rule.MaxLen != NoLimit && rule.MaxLen < rule.MinLen:
		return nil, fmt.Errorf("%w: maximum length %d below minimum %d", ErrInvalidRule, rule.MaxLen, rule.MinLen)
	}
	return &Locator{rule: rule}, nil
}

// Rule returns the locator's rule.
func (l *Locator) Rule() Rule {
	return l.rule
}

// Next consumes the next matching region from buf and copies it, markers
// included, into dst. It returns the full region length, which exceeds
// len(dst) if dst was too short to hold it; the region is consumed either
// way. ok is false when buf holds no complete region yet.
func (l *Locator) Next(buf *ring.Buffer, dst []byte) (n int, ok bool) {
	hl, tl := len(l.rule.Head), len(l.rule.Tail)

	for {
		start := l.find(buf, l.rule.Head, 0, buf.Len()-hl)
		if start < 0 {
			// Keep what could be the start of a head marker split across reads.
			buf.Discard(buf.Len() - (hl - 1))
			return 0, false
		}
		buf.Discard(start)

		from := hl
		if l.rule.Policy == PolicyExtend {
			from += l.rule.MinLen
		}
		last := buf.Len() - tl
		bounded := l.rule.MaxLen != NoLimit
		if bounded {
			last = min(last, hl+l.rule.MaxLen)
		}

		end := l.find(buf, l.rule.Tail, from, last)
		if end < 0 {
			tooLong := bounded && buf.Len()-tl >= hl+l.rule.MaxLen
			if tooLong || buf.IsFull() {
				buf.Discard(hl)
				continue
			}
			return 0, false
		}
		if end-hl < l.rule.MinLen {
			buf.Discard(hl)
			continue
		}

		n = end + tl
		for i, m := 0, min(n, len(dst)); i < m; i++ {
			dst[i] = buf.At(i)
		}
		if l.rule.ShareMarkers {
			buf.Discard(end)
		} else {
			buf.Discard(n)
		}
		return n, true
	}
}

// find returns the first offset in [from, last] at which marker matches,
// or -1.
func (l *Locator) find(buf *ring.Buffer, marker []byte, from, last int) int {
	for i := from; i <= last; i++ {
		if matchAt(buf, marker, i) {
			return i
		}
	}
	return -1
}

func matchAt(buf *ring.Buffer, marker []byte, off int) bool {
	for j, c := range marker {
		if buf.At(off+j) != c {
			return false
		}
	}
	return true
}
