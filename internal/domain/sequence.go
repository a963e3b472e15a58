package domain

import "sync/atomic"

// Sequence hands out strictly increasing numbers. It is safe for concurrent
// use and is owned by whoever constructs the engine.
type Sequence struct {
	last atomic.Uint64
}

// NewSequence creates a sequence whose first Next returns start+1.
func NewSequence(start uint64) *Sequence {
	s := &Sequence{}
	s.last.Store(start)
	return s
}

// Next returns the next number.
func (s *Sequence) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the last number handed out.
func (s *Sequence) Current() uint64 {
	return s.last.Load()
}

// NextOrderID mints an order identifier.
func (s *Sequence) NextOrderID() OrderID {
	return OrderID(s.Next())
}
