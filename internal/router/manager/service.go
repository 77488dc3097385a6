package manager

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultShutdownTimeout bounds how long Stop waits for pools to drain
const DefaultShutdownTimeout = 30 * time.Second

// RouterService wraps a Router to implement lifecycle.Service interface.
// This enables coordinated startup/shutdown with other services.
type RouterService struct {
	router          *Router
	shutdownTimeout time.Duration
	onStarted       func(started bool)
	mu              sync.Mutex
	running         bool
	stopCh          chan struct{}
}

// NewRouterService creates a service wrapper for the router.
func NewRouterService(router *Router) *RouterService {
	return &RouterService{
		router:          router,
		shutdownTimeout: DefaultShutdownTimeout,
		stopCh:          make(chan struct{}),
	}
}

// WithShutdownTimeout overrides how long Stop waits for the drain.
func (s *RouterService) WithShutdownTimeout(d time.Duration) *RouterService {
	if d > 0 {
		s.shutdownTimeout = d
	}
	return s
}

// WithStartedCallback registers a hook invoked when the router finishes
// starting and when it stops or pauses. The health layer uses it to track
// whether processing is up behind the initial configuration sync.
func (s *RouterService) WithStartedCallback(fn func(started bool)) *RouterService {
	s.onStarted = fn
	return s
}

func (s *RouterService) notifyStarted(started bool) {
	if s.onStarted != nil {
		s.onStarted(started)
	}
}

// Name returns the service identifier.
func (s *RouterService) Name() string {
	return "message-router"
}

// Start begins message processing and blocks until ctx is cancelled.
// Fails when the initial configuration sync never succeeds.
func (s *RouterService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if err := s.router.Start(); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}
	s.notifyStarted(true)

	// Block until context cancelled or Stop called
	select {
	case <-ctx.Done():
	case <-s.stopCh:
	}

	return nil
}

// Stop gracefully stops message processing: rejects new messages, waits for
// in-flight work to drain, then terminates consumers and pools.
func (s *RouterService) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	timeout := s.shutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remain := time.Until(deadline); remain < timeout {
			timeout = remain
		}
	}
	s.router.Shutdown(timeout)
	s.running = false
	s.notifyStarted(false)

	// Signal Start to return
	select {
	case <-s.stopCh:
		// Already closed
	default:
		close(s.stopCh)
	}

	return nil
}

// Health returns nil if the router is healthy.
func (s *RouterService) Health() error {
	return s.router.Healthy()
}

// Pause stops message processing promptly without the drain wait.
// Used by standby service when losing the leader role.
func (s *RouterService) Pause() {
	s.router.Stop()
	s.notifyStarted(false)
}

// Resume starts message processing, re-fetching the configuration.
// Used by standby service when becoming primary.
func (s *RouterService) Resume() {
	if err := s.router.Start(); err != nil {
		slog.Error("Failed to resume message router", "error", err)
		return
	}
	s.notifyStarted(true)
}
