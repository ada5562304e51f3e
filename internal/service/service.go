// Package service wires the components together behind the two operations the
// command line exposes: signing in and generating images.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
	"github.com/hffmnnj/nano-banana-cli/internal/auth"
	"github.com/hffmnnj/nano-banana-cli/internal/browser"
	"github.com/hffmnnj/nano-banana-cli/internal/capture"
	"github.com/hffmnnj/nano-banana-cli/internal/config"
	"github.com/hffmnnj/nano-banana-cli/internal/orchestrator"
	"github.com/hffmnnj/nano-banana-cli/internal/selector"
	"github.com/hffmnnj/nano-banana-cli/internal/workflow"
)

// SignInOptions parameterize SignIn.
type SignInOptions struct {
	Headless bool
}

// GenerateRequest parameterizes Generate.
type GenerateRequest struct {
	Prompt string
	Count  int
	// Output is the base output path; empty selects DefaultOutputPath.
	Output      string
	Headless    bool
	Interactive bool
	// KeepOpen leaves the session and its pages open after the run.
	KeepOpen bool
}

// Service is the caller-facing surface. Every session it launches is
// registered in the scope handed to New, so Shutdown (or the owner of the
// scope) can close them on interruption.
type Service struct {
	cfg      *config.Config
	scope    *browser.Scope
	manager  *browser.Manager
	detector *auth.Detector
	workflow *workflow.Workflow
	logger   *zap.Logger
}

// New builds the component graph on top of launcher.
func New(cfg *config.Config, launcher browser.Launcher, scope *browser.Scope, logger *zap.Logger) (*Service, error) {
	registry, err := selector.NewRegistry(cfg.Selectors)
	if err != nil {
		return nil, fmt.Errorf("invalid selectors configuration: %w", err)
	}
	engine := selector.NewEngine(cfg.Generation, logger)
	detector, err := auth.NewDetector(cfg.Target, engine, registry, logger)
	if err != nil {
		return nil, err
	}
	wf := workflow.New(cfg.Generation, cfg.Target.AppURL, engine, registry, detector,
		capture.NewCapturer(cfg.Download, logger), logger)

	return &Service{
		cfg:      cfg,
		scope:    scope,
		manager:  browser.NewManager(launcher, cfg.Browser, scope, logger),
		detector: detector,
		workflow: wf,
		logger:   logger.Named("service"),
	}, nil
}

// SignIn opens the application and, unless the profile is already signed in,
// waits for the operator to sign in. The login persists in the profile.
func (s *Service) SignIn(ctx context.Context, opts SignInOptions) error {
	sess, err := s.manager.Launch(ctx, opts.Headless)
	if err != nil {
		return err
	}
	defer s.closeCurrent(ctx)

	page := sess.Primary()
	if err := page.Navigate(ctx, s.cfg.Target.AppURL); err != nil {
		return fmt.Errorf("failed to open %s: %w", s.cfg.Target.AppURL, err)
	}
	if err := browser.Sleep(ctx, s.cfg.Generation.SettleDelay); err != nil {
		return err
	}

	if s.detector.Classify(ctx, page) == auth.Authenticated {
		s.logger.Info("Already signed in.", zap.String("profile_dir", sess.ProfileDir()))
		return nil
	}
	if opts.Headless {
		url, _ := page.CurrentURL(ctx)
		return &schemas.AuthenticationRequiredError{URL: url, Reason: "signing in needs a visible browser window"}
	}

	s.logger.Info("Complete the sign-in in the browser window.", zap.Duration("timeout", s.cfg.Auth.SignInTimeout))
	if err := s.recovery(true).WaitForSignIn(ctx, page); err != nil {
		return err
	}
	s.logger.Info("Signed in. The login is saved in the profile.", zap.String("profile_dir", sess.ProfileDir()))
	return nil
}

// Generate runs req and returns its report. With a single image the first
// failure is returned; with several, an error is returned only when every
// attempt failed.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*orchestrator.Report, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("prompt must not be empty")
	}
	if req.Count < 1 {
		return nil, fmt.Errorf("count must be at least 1, got %d", req.Count)
	}
	if req.Output == "" {
		req.Output = DefaultOutputPath(time.Now())
	}

	sess, err := s.manager.Launch(ctx, req.Headless)
	if err != nil {
		return nil, err
	}
	if !req.KeepOpen {
		defer s.closeCurrent(ctx)
	}

	orch := orchestrator.New(s.workflow, s.recovery(req.Interactive), s.cfg.Generation, s.logger)
	return orch.GenerateMany(ctx, sess, orchestrator.Request{
		Prompt:    req.Prompt,
		Count:     req.Count,
		Output:    req.Output,
		Headless:  req.Headless,
		KeepPages: req.KeepOpen || s.cfg.Browser.KeepPages,
	})
}

// Shutdown closes every session still registered. It runs once; later calls
// return the first result.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.scope.ShutdownAll(ctx)
}

func (s *Service) recovery(interactive bool) *auth.Recovery {
	cfg := s.cfg.Auth
	cfg.Interactive = interactive
	return auth.NewRecovery(s.detector, s.manager, cfg, s.cfg.Target.AppURL, s.logger)
}

// closeCurrent closes whichever session is live now; recovery may have
// replaced the one originally launched.
func (s *Service) closeCurrent(ctx context.Context) {
	s.manager.Close(ctx, s.manager.Current())
}

// DefaultOutputPath is the output path used when none is given.
func DefaultOutputPath(now time.Time) string {
	return "nano-banana-" + now.Format("20060102-150405") + ".png"
}

