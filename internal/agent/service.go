package agent

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// ServiceNotReadyMessage is returned by [Service.ProcessText] while the
// runtime is not ready.
const ServiceNotReadyMessage = "I'm still starting up. Please wait a moment and try again."

// Service hands out the single [Runtime] of the process, constructing it on
// first use, and never lets a failure escape to its callers.
type Service struct {
	factory func() *Runtime
	once    sync.Once
	rt      atomic.Pointer[Runtime]
}

// NewService returns a Service that builds its runtime with factory.
func NewService(factory func() *Runtime) *Service {
	return &Service{factory: factory}
}

// Get returns the runtime, constructing it on the first call. Concurrent
// first callers block until construction is done. It returns nil if the
// Service was closed before anything constructed the runtime.
func (s *Service) Get() *Runtime {
	s.once.Do(func() {
		s.rt.Store(s.factory())
	})
	return s.rt.Load()
}

// Warm starts construction in the background.
func (s *Service) Warm() {
	go s.Get()
}

// IsReady reports runtime readiness without triggering construction.
func (s *Service) IsReady() bool {
	rt := s.rt.Load()
	return rt != nil && rt.IsReady()
}

// ProcessText answers text through the runtime. It returns
// [ServiceNotReadyMessage] while the runtime is not ready and converts
// panics into an apologetic reply.
func (s *Service) ProcessText(text string) (reply string) {
	defer func() {
		if p := recover(); p != nil {
			reply = ErrorReply(fmt.Errorf("%v", p))
		}
	}()

	rt := s.Get()
	if rt == nil || !rt.IsReady() {
		return ServiceNotReadyMessage
	}
	return rt.Process(text)
}

// Close closes the runtime if one was constructed and prevents later
// construction. If construction is in progress Close waits for it.
func (s *Service) Close() error {
	s.once.Do(func() {})
	if rt := s.rt.Load(); rt != nil {
		return rt.Close()
	}
	return nil
}
