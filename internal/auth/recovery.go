// internal/auth/recovery.go
package auth

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
	"github.com/hffmnnj/nano-banana-cli/internal/config"
)

// Relauncher replaces the live session with a new one, in the requested
// visibility mode, against the same profile.
type Relauncher interface {
	Relaunch(ctx context.Context, headless bool, resumeURL string) (schemas.Session, error)
}

// Recovery handles a sign-in wall met mid-flow: it brings up a visible browser,
// waits for the operator to sign in, and returns to the requested mode. The
// login persists in the shared profile, so it survives the relaunches.
type Recovery struct {
	detector   *Detector
	relauncher Relauncher
	cfg        config.AuthConfig
	appURL     string
	logger     *zap.Logger
}

// NewRecovery creates a Recovery.
func NewRecovery(detector *Detector, relauncher Relauncher, cfg config.AuthConfig, appURL string, logger *zap.Logger) *Recovery {
	return &Recovery{
		detector:   detector,
		relauncher: relauncher,
		cfg:        cfg,
		appURL:     appURL,
		logger:     logger.Named("auth_recovery"),
	}
}

// Recover returns a signed-in session in the requested visibility mode. The
// caller repeats its navigation on the returned session's pages.
func (r *Recovery) Recover(ctx context.Context, current schemas.Session, headless bool) (schemas.Session, error) {
	if !r.cfg.Interactive {
		return nil, &schemas.AuthenticationRequiredError{Reason: "interactive sign-in is disabled"}
	}

	sess := current
	if current.Headless() {
		var err error
		sess, err = r.relauncher.Relaunch(ctx, false, r.appURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open a visible browser for sign-in: %w", err)
		}
	}

	r.logger.Warn("Sign-in required. Complete the sign-in in the browser window.",
		zap.Duration("timeout", r.cfg.SignInTimeout))
	if err := r.WaitForSignIn(ctx, sess.Primary()); err != nil {
		return nil, err
	}
	r.logger.Info("Sign-in detected.")

	if !headless {
		return sess, nil
	}
	resumed, err := r.relauncher.Relaunch(ctx, true, "")
	if err != nil {
		return nil, fmt.Errorf("failed to return to headless mode after sign-in: %w", err)
	}
	return resumed, nil
}

// WaitForSignIn polls page until it sits on the application address with no
// sign-in signal visible, bounded by the configured sign-in timeout.
func (r *Recovery) WaitForSignIn(ctx context.Context, page schemas.Page) error {
	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.SignInTimeout)
	defer cancel()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if r.signedIn(waitCtx, page) {
			return nil
		}
		select {
		case <-ticker.C:
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			url, _ := page.CurrentURL(ctx)
			return &schemas.AuthenticationRequiredError{
				URL:    url,
				Reason: fmt.Sprintf("sign-in was not completed within %v", r.cfg.SignInTimeout),
			}
		}
	}
}

func (r *Recovery) signedIn(ctx context.Context, page schemas.Page) bool {
	url, err := page.CurrentURL(ctx)
	if err != nil || !r.detector.IsAppURL(url) {
		return false
	}
	// The app may render a signed-out shell at its own address.
	_, signal := r.detector.engine.Probe(ctx, page, r.detector.signals)
	return !signal
}
