package latch

// Savepoint names one latch held during a descent, in acquisition order, so
// a mini-transaction can release them in reverse without the caller having
// to track the order itself.
type Savepoint struct {
	Latch   *Latch
	Shared  bool
	release func()
}

// Stack is the savepoint stack spec §0 names as part of the page-latch
// layer: every latch taken during one tree descent is pushed here, and
// ReleaseAll unwinds it root-to-leaf in reverse (leaf-to-root) order.
type Stack struct {
	entries []Savepoint
}

// NewStack returns an empty savepoint stack.
func NewStack() *Stack {
	return &Stack{}
}

// PushShared records an S-latch already held by the caller.
func (s *Stack) PushShared(l *Latch) {
	s.entries = append(s.entries, Savepoint{Latch: l, Shared: true, release: l.RUnlock})
}

// PushExclusive records an X-latch already held by the caller.
func (s *Stack) PushExclusive(l *Latch) {
	s.entries = append(s.entries, Savepoint{Latch: l, Shared: false, release: l.Unlock})
}

// ReleaseAbove releases every savepoint pushed after index i, in reverse
// order, without touching savepoints at or below i. Used by optimistic
// descents that want to drop ancestor S-latches as soon as a leaf X-latch
// is confirmed safe to hold alone.
func (s *Stack) ReleaseAbove(i int) {
	for j := len(s.entries) - 1; j > i; j-- {
		s.entries[j].release()
	}
	s.entries = s.entries[:i+1]
}

// ReleaseAll releases every savepoint, leaf-first.
func (s *Stack) ReleaseAll() {
	for j := len(s.entries) - 1; j >= 0; j-- {
		s.entries[j].release()
	}
	s.entries = nil
}

// Len reports how many latches are currently tracked.
func (s *Stack) Len() int { return len(s.entries) }
