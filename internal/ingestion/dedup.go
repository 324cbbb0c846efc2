package ingestion

import "sync"

// DefaultDedupCapacity is the signature set size that triggers a reset.
const DefaultDedupCapacity = 1000

// SignatureSet remembers recently seen transaction signatures.
//
// Once the set grows past its capacity it is cleared entirely, so memory stays
// bounded at the cost of letting an old signature through again. Storage
// deduplicates by id downstream.
type SignatureSet struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	capacity int
	resets   int
}

// NewSignatureSet creates a set that clears itself past capacity.
func NewSignatureSet(capacity int) *SignatureSet {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &SignatureSet{
		seen:     make(map[string]struct{}, capacity+1),
		capacity: capacity,
	}
}

// Add records sig and reports whether it was new.
func (s *SignatureSet) Add(sig string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[sig]; ok {
		return false
	}
	s.seen[sig] = struct{}{}
	if len(s.seen) > s.capacity {
		s.seen = make(map[string]struct{}, s.capacity+1)
		s.resets++
	}
	return true
}

// Len returns the number of remembered signatures.
func (s *SignatureSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// Resets returns how many times the set has been cleared.
func (s *SignatureSet) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}
