// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
	"github.com/hffmnnj/nano-banana-cli/internal/config"
)

// closeTimeout bounds a close performed on behalf of a relaunch or a failed launch.
const closeTimeout = 15 * time.Second

// LaunchOptions are the per-launch settings; everything else comes from BrowserConfig.
type LaunchOptions struct {
	ProfileDir string
	Headless   bool
}

// Launcher starts a browser process. A returned Session is fully usable.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (schemas.Session, error)
}

// Manager owns the session bound to the configured profile directory. It can
// replace that session with one in a different visibility mode; the profile
// directory, and the login state persisted in it, carry over.
type Manager struct {
	launcher Launcher
	cfg      config.BrowserConfig
	scope    *Scope
	logger   *zap.Logger

	mu      sync.Mutex
	current schemas.Session
}

// NewManager creates a manager. Sessions it launches are registered in scope.
func NewManager(launcher Launcher, cfg config.BrowserConfig, scope *Scope, logger *zap.Logger) *Manager {
	return &Manager{
		launcher: launcher,
		cfg:      cfg,
		scope:    scope,
		logger:   logger.Named("browser_manager"),
	}
}

// Current returns the live session, or nil.
func (m *Manager) Current() schemas.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Launch starts a session against the profile directory. Failures are reported
// as *schemas.BrowserLaunchFailureError.
func (m *Manager) Launch(ctx context.Context, headless bool) (schemas.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return nil, fmt.Errorf("a session is already live (%s); close or relaunch it", m.current.ID())
	}
	return m.launchLocked(ctx, headless)
}

func (m *Manager) launchLocked(ctx context.Context, headless bool) (schemas.Session, error) {
	opts := LaunchOptions{ProfileDir: m.cfg.ProfileDir, Headless: headless}
	m.logger.Info("Launching browser.", zap.String("profile_dir", opts.ProfileDir), zap.Bool("headless", headless))

	sess, err := m.launcher.Launch(ctx, opts)
	if err != nil {
		var launchErr *schemas.BrowserLaunchFailureError
		if errors.As(err, &launchErr) {
			return nil, err
		}
		return nil, &schemas.BrowserLaunchFailureError{ProfileDir: opts.ProfileDir, Err: err}
	}

	if err := m.scope.Register(ctx, sess); err != nil {
		return nil, &schemas.BrowserLaunchFailureError{ProfileDir: opts.ProfileDir, Err: err}
	}
	m.current = sess
	m.logger.Debug("Browser session ready.", zap.String("session_id", sess.ID()))
	return sess, nil
}

// Relaunch closes the current session, pauses so the browser releases its locks
// on the shared profile, launches a new session in the requested mode and, when
// resumeURL is set, navigates its primary page there.
func (m *Manager) Relaunch(ctx context.Context, headless bool, resumeURL string) (schemas.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old := m.current; old != nil {
		m.logger.Info("Relaunching browser.", zap.String("old_session_id", old.ID()), zap.Bool("headless", headless))
		m.closeLocked(ctx, old)
		if err := Sleep(ctx, m.cfg.RelaunchPause); err != nil {
			return nil, err
		}
	}

	sess, err := m.launchLocked(ctx, headless)
	if err != nil {
		return nil, err
	}

	if resumeURL != "" {
		if err := sess.Primary().Navigate(ctx, resumeURL); err != nil {
			// The session is usable even if the resume navigation failed.
			m.logger.Warn("Resume navigation failed after relaunch.", zap.String("url", resumeURL), zap.Error(err))
		}
	}
	return sess, nil
}

// Close closes sess. It is idempotent and tolerates close failures, which are
// logged rather than returned.
func (m *Manager) Close(ctx context.Context, sess schemas.Session) {
	if sess == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked(ctx, sess)
}

func (m *Manager) closeLocked(ctx context.Context, sess schemas.Session) {
	closeCtx, cancel := context.WithTimeout(Detach(ctx), closeTimeout)
	defer cancel()

	if err := sess.Close(closeCtx); err != nil {
		m.logger.Warn("Error while closing browser session.", zap.String("session_id", sess.ID()), zap.Error(err))
	}
	m.scope.Deregister(sess.ID())
	if m.current != nil && m.current.ID() == sess.ID() {
		m.current = nil
	}
}
