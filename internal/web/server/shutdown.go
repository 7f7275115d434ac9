package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ShutdownHook is a function called during graceful shutdown
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   ShutdownHook
}

// RegisterHook adds a hook that runs after the listener stops accepting
// requests. Hooks run in registration order; a failing hook does not stop the others.
func (s *Server) RegisterHook(name string, hook ShutdownHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, namedHook{name: name, fn: hook})
}

// Shutdown drains in-flight requests and then runs the hooks. Only the first
// call has any effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		start := time.Now()
		if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("shutting down http server: %w", shutdownErr)
			s.logger.Error("http server shutdown failed", zap.Error(shutdownErr))
		}

		s.mu.Lock()
		hooks := make([]namedHook, len(s.hooks))
		copy(hooks, s.hooks)
		s.mu.Unlock()

		for _, h := range hooks {
			if hookErr := h.fn(ctx); hookErr != nil {
				s.logger.Error("shutdown hook failed", zap.String("hook", h.name), zap.Error(hookErr))
			}
		}
		s.logger.Info("http server stopped", zap.Duration("took", time.Since(start)))
	})
	return err
}
