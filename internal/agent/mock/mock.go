// Package mock provides a test double for the agent service as consumed by
// the dictation handler and the readiness check.
//
// Example:
//
//	svc := &mock.Service{Ready: true, Reply: "done"}
//	h := dictate.NewHandler(svc, log, opts...)
//	...
//	if got := svc.Inputs(); len(got) != 1 { ... }
package mock

import "sync"

// Service is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	// Ready is returned by IsReady.
	Ready bool

	// Reply is returned by ProcessText unless ReplyFunc is set.
	Reply string

	// ReplyFunc, when set, computes the reply. It may block or panic to
	// simulate slow or failing turns.
	ReplyFunc func(text string) string

	inputs []string
}

// ProcessText records text and returns the configured reply.
func (s *Service) ProcessText(text string) string {
	s.mu.Lock()
	s.inputs = append(s.inputs, text)
	fn, reply := s.ReplyFunc, s.Reply
	s.mu.Unlock()

	if fn != nil {
		return fn(text)
	}
	return reply
}

// IsReady returns Ready.
func (s *Service) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Ready
}

// SetReady changes the readiness reported by IsReady.
func (s *Service) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Ready = ready
}

// Inputs returns a copy of every text passed to ProcessText, in call order.
func (s *Service) Inputs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.inputs...)
}
