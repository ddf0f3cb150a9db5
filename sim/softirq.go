package sim

import (
	"github.com/jangala-dev/tinygo-uartq/internal/syncutil"
	"github.com/jangala-dev/tinygo-uartq/uartq"
)

// SoftIRQ is a software-triggerable interrupt line. Pend marks it pending;
// Service runs its handler and clears it, so raises that arrive before the
// line is serviced coalesce into one handler run.
type SoftIRQ struct {
	mu      syncutil.Mutex
	pending bool
	raised  uint32
	handler func()
}

var _ uartq.Trigger = (*SoftIRQ)(nil)

// NewSoftIRQ returns an idle line that runs handler when serviced. handler
// may be nil.
func NewSoftIRQ(handler func()) *SoftIRQ {
	return &SoftIRQ{handler: handler}
}

// Pend raises the line.
func (s *SoftIRQ) Pend() {
	s.mu.Lock()
	s.pending = true
	s.raised++
	s.mu.Unlock()
}

// Pending reports whether the line is raised and not yet serviced.
func (s *SoftIRQ) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Raised returns how many times Pend has been called.
func (s *SoftIRQ) Raised() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raised
}

// Service clears the line and runs the handler if the line was pending. It
// reports whether the handler ran.
func (s *SoftIRQ) Service() bool {
	s.mu.Lock()
	if !s.pending {
		s.mu.Unlock()
		return false
	}
	s.pending = false
	h := s.handler
	s.mu.Unlock()

	if h != nil {
		h()
	}
	return true
}
