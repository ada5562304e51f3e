// internal/browser/scope.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
	"github.com/hffmnnj/nano-banana-cli/internal/observability"
)

// ErrScopeClosed is returned when registering into a scope that has already shut down.
var ErrScopeClosed = errors.New("browser scope is shut down")

// Scope owns every live session of one command invocation. It is created by the
// entry point and handed down explicitly; both normal completion and signal
// handling end it through ShutdownAll.
type Scope struct {
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]schemas.Session
	closed   bool

	once        sync.Once
	shutdownErr error
}

// NewScope creates an empty scope. A nil logger defers to the global logger at
// the time of each message, for scopes created before logging is configured.
func NewScope(logger *zap.Logger) *Scope {
	s := &Scope{sessions: make(map[string]schemas.Session)}
	if logger != nil {
		s.logger = logger.Named("scope")
	}
	return s
}

func (s *Scope) log() *zap.Logger {
	if s.logger != nil {
		return s.logger
	}
	return observability.GetLogger().Named("scope")
}

// Register tracks a live session. A session launched after shutdown began is
// closed immediately so it cannot leak past the process.
func (s *Scope) Register(ctx context.Context, sess schemas.Session) error {
	s.mu.Lock()
	if !s.closed {
		s.sessions[sess.ID()] = sess
		s.mu.Unlock()
		s.log().Debug("Session registered.", zap.String("session_id", sess.ID()))
		return nil
	}
	s.mu.Unlock()

	if err := sess.Close(ctx); err != nil {
		s.log().Warn("Failed to close session registered after shutdown.", zap.String("session_id", sess.ID()), zap.Error(err))
	}
	return ErrScopeClosed
}

// Deregister forgets a session after a clean close.
func (s *Scope) Deregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Live returns the number of registered sessions.
func (s *Scope) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ShutdownAll closes every registered session concurrently. Individual close
// failures are logged and do not stop the others. Only the first call does any
// work; a concurrent call blocks until it finishes, and every call returns the
// first call's result.
func (s *Scope) ShutdownAll(ctx context.Context) error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		pending := make([]schemas.Session, 0, len(s.sessions))
		for _, sess := range s.sessions {
			pending = append(pending, sess)
		}
		s.sessions = make(map[string]schemas.Session)
		s.mu.Unlock()

		if len(pending) == 0 {
			return
		}
		s.log().Info("Closing live browser sessions.", zap.Int("count", len(pending)))

		var (
			g        errgroup.Group
			failedMu sync.Mutex
			failed   []error
		)
		for _, sess := range pending {
			g.Go(func() error {
				if err := sess.Close(ctx); err != nil {
					s.log().Warn("Error during session close in shutdown.", zap.String("session_id", sess.ID()), zap.Error(err))
					failedMu.Lock()
					failed = append(failed, fmt.Errorf("session %s: %w", sess.ID(), err))
					failedMu.Unlock()
				}
				// Never abort sibling closes.
				return nil
			})
		}
		_ = g.Wait()
		s.shutdownErr = errors.Join(failed...)
	})
	return s.shutdownErr
}
