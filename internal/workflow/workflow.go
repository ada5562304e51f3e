// Package workflow drives one image generation through the application's UI:
// navigate, enter image creation mode, verify the quality tier, enter and
// submit the prompt, wait for the result and capture the download.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
	"github.com/hffmnnj/nano-banana-cli/internal/auth"
	"github.com/hffmnnj/nano-banana-cli/internal/capture"
	"github.com/hffmnnj/nano-banana-cli/internal/config"
	"github.com/hffmnnj/nano-banana-cli/internal/selector"
)

// dialogPasses bounds how many stacked dialogs are dismissed after navigation.
const dialogPasses = 3

// Workflow composes selector resolution, auth detection and download capture
// into the generation state machine. It holds no per-attempt state and is safe
// for concurrent use across attempts on different pages.
type Workflow struct {
	cfg      config.GenerationConfig
	appURL   string
	engine   *selector.Engine
	registry *selector.Registry
	detector *auth.Detector
	capturer *capture.Capturer
	logger   *zap.Logger
}

// New creates a Workflow.
func New(
	cfg config.GenerationConfig,
	appURL string,
	engine *selector.Engine,
	registry *selector.Registry,
	detector *auth.Detector,
	capturer *capture.Capturer,
	logger *zap.Logger,
) *Workflow {
	return &Workflow{
		cfg:      cfg,
		appURL:   appURL,
		engine:   engine,
		registry: registry,
		detector: detector,
		capturer: capturer,
		logger:   logger.Named("workflow"),
	}
}

// Run performs the whole sequence for a. Each phase runs under its own watchdog.
func (w *Workflow) Run(ctx context.Context, a *Attempt) (string, error) {
	if err := w.SubmitPhase(ctx, a); err != nil {
		return "", err
	}
	return w.CompletePhase(ctx, a)
}

// SubmitPhase takes a from Idle to Submitted. When the page lands behind the
// sign-in wall it returns an *schemas.AuthenticationRequiredError and leaves a
// in Idle, so that the caller can recover the session and Rebind.
func (w *Workflow) SubmitPhase(ctx context.Context, a *Attempt) error {
	return w.watchdog(ctx, a, w.cfg.WatchdogTimeout(), generationExpired, func(ctx context.Context) error {
		if err := w.Navigate(ctx, a); err != nil {
			return err
		}
		if err := w.EnterCreationMode(ctx, a); err != nil {
			return a.fail(err)
		}
		if err := w.EnsureTopTier(ctx, a); err != nil {
			return a.fail(err)
		}
		if err := w.EnterPrompt(ctx, a); err != nil {
			return a.fail(err)
		}
		if err := w.Submit(ctx, a); err != nil {
			return a.fail(err)
		}
		return nil
	})
}

// CompletePhase takes a submitted attempt to Captured and returns its output path.
// Waiting for the result and capturing the download are bounded separately, so
// a slow result never eats into the download's budget.
func (w *Workflow) CompletePhase(ctx context.Context, a *Attempt) (string, error) {
	err := w.watchdog(ctx, a, w.cfg.WatchdogTimeout(), generationExpired, func(ctx context.Context) error {
		if err := w.AwaitResult(ctx, a); err != nil {
			return a.fail(err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	var path string
	err = w.watchdog(ctx, a, w.captureLimit(), downloadExpired, func(ctx context.Context) error {
		w.RevealDownload(ctx, a)
		p, err := w.Capture(ctx, a)
		if err != nil {
			return a.fail(err)
		}
		path = p
		return nil
	})
	return path, err
}

// captureLimit bounds revealing and capturing the download: the capture's own
// wait plus the margin for resolving and clicking the control.
func (w *Workflow) captureLimit() time.Duration {
	return w.capturer.Timeout() + w.cfg.WatchdogMargin
}

// expiry builds the error reported when a watchdog fires after elapsed.
type expiry func(elapsed time.Duration) error

func generationExpired(elapsed time.Duration) error {
	return &schemas.GenerationTimeoutError{Elapsed: elapsed}
}

func downloadExpired(elapsed time.Duration) error {
	return &schemas.DownloadFailureError{
		Detail: fmt.Sprintf("no completed download within %v", elapsed.Round(time.Millisecond)),
		Err:    context.DeadlineExceeded,
	}
}

// watchdog bounds fn by limit, so a hang in any step is reported as the
// phase's own failure kind rather than blocking forever.
func (w *Workflow) watchdog(ctx context.Context, a *Attempt, limit time.Duration, expired expiry, fn func(ctx context.Context) error) error {
	wctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	start := time.Now()
	err := fn(wctx)
	if err == nil {
		return nil
	}
	if errors.Is(wctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		w.log(a).Error("Watchdog expired.", zap.Duration("limit", limit), zap.Stringer("state", a.State()), zap.Error(err))
		failure := expired(time.Since(start))
		a.fail(failure)
		a.err = failure
		return failure
	}
	return err
}

func (w *Workflow) advance(a *Attempt, to State) {
	w.log(a).Debug("State transition.", zap.Stringer("from", a.state), zap.Stringer("to", to))
	a.state = to
}

func (w *Workflow) log(a *Attempt) *zap.Logger {
	return w.logger.With(zap.Int("attempt", a.Index), zap.String("page_id", a.Page.ID()))
}
