package webcodecs

import (
	"io"
	"sync"
	"sync/atomic"
)

// backendSlot holds the live backend of one codec instance. Every backend
// call happens under mu. The generation changes on every reset and close;
// a job whose generation no longer matches must not touch the
// backend.
type backendSlot[B io.Closer] struct {
	mu         sync.Mutex
	backend    B
	present    bool
	generation atomic.Uint64

	// Timestamp of the last submitted unit, used to stamp flushed output.
	lastTimestamp int64
}

// clear starts a new generation and closes the backend. It blocks until any
// job currently holding the slot returns.
func (s *backendSlot[B]) clear() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen := s.generation.Add(1)
	return gen, s.dropLocked()
}

// store installs backend if gen is still current. It returns false, leaving
// the caller to close backend, when gen is stale.
func (s *backendSlot[B]) store(gen uint64, backend B) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation.Load() {
		return false, nil
	}
	err := s.dropLocked()
	s.backend = backend
	s.present = true
	s.lastTimestamp = 0
	return true, err
}

// with runs fn with the backend while holding the slot. fn is not called
// and stale is true when gen is no longer current.
func (s *backendSlot[B]) with(gen uint64, fn func(backend B, present bool)) (stale bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation.Load() {
		return true
	}
	fn(s.backend, s.present)
	return false
}

// current returns the live generation without taking the slot lock.
func (s *backendSlot[B]) current() uint64 {
	return s.generation.Load()
}

func (s *backendSlot[B]) dropLocked() error {
	if !s.present {
		return nil
	}
	var zero B
	backend := s.backend
	s.backend = zero
	s.present = false
	return backend.Close()
}

// release closes the backend if gen is still current.
func (s *backendSlot[B]) release(gen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation.Load() {
		return nil
	}
	return s.dropLocked()
}
