// Package orchestrator fans one prompt out over several pages of a session.
// Submissions run first, in order; the long waits for results then run
// concurrently, with every attempt's failure isolated to its own result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
	"github.com/hffmnnj/nano-banana-cli/internal/config"
	"github.com/hffmnnj/nano-banana-cli/internal/workflow"
)

// closeTimeout bounds closing a finished attempt's page.
const closeTimeout = 10 * time.Second

// Recoverer returns a signed-in session in the requested visibility mode.
type Recoverer interface {
	Recover(ctx context.Context, current schemas.Session, headless bool) (schemas.Session, error)
}

// Request describes one generation run.
type Request struct {
	Prompt   string
	Count    int
	Output   string
	Headless bool
	// KeepPages leaves attempt pages open for inspection.
	KeepPages bool
}

// Orchestrator runs requests against a session.
type Orchestrator struct {
	workflow *workflow.Workflow
	recovery Recoverer
	cfg      config.GenerationConfig
	logger   *zap.Logger
}

// New creates an Orchestrator.
func New(wf *workflow.Workflow, recovery Recoverer, cfg config.GenerationConfig, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		workflow: wf,
		recovery: recovery,
		cfg:      cfg,
		logger:   logger.Named("orchestrator"),
	}
}

// GenerateMany runs req.Count attempts on sess. With a single attempt the
// workflow runs on the primary page and its error is returned as is. With
// several, the report is returned with a nil error unless every attempt failed,
// in which case the last failure is returned too.
func (o *Orchestrator) GenerateMany(ctx context.Context, sess schemas.Session, req Request) (*Report, error) {
	if req.Count < 1 {
		return nil, fmt.Errorf("count must be at least 1, got %d", req.Count)
	}
	if req.Count == 1 {
		return o.generateOne(ctx, sess, req)
	}

	sess, err := o.signedIn(ctx, sess, req.Headless)
	if err != nil {
		return nil, err
	}

	report := &Report{Prompt: req.Prompt, Results: make([]Result, req.Count)}
	attempts := o.open(ctx, sess, req, report)
	if !req.KeepPages {
		defer o.closeAll(attempts)
	}

	submitted := o.submitAll(ctx, attempts, report)
	o.completeAll(ctx, submitted, report)

	failures := report.Failures()
	o.logger.Info("Generation finished.",
		zap.Int("succeeded", req.Count-len(failures)),
		zap.Int("failed", len(failures)))
	for _, f := range failures {
		o.logger.Warn("Attempt failed.", zap.Int("attempt", f.Index), zap.String("kind", string(f.Kind)), zap.String("error", f.Error))
	}
	if len(failures) == req.Count {
		return report, fmt.Errorf("all %d attempts failed: %w", req.Count, report.LastError())
	}
	return report, nil
}

func (o *Orchestrator) generateOne(ctx context.Context, sess schemas.Session, req Request) (*Report, error) {
	report := &Report{Prompt: req.Prompt}
	a := workflow.NewAttempt(1, req.Prompt, MultiOutputPath(req.Output, 1, 1), sess.Primary())

	err := o.workflow.SubmitPhase(ctx, a)
	var authErr *schemas.AuthenticationRequiredError
	if errors.As(err, &authErr) {
		if sess, err = o.recover(ctx, sess, req.Headless); err != nil {
			report.Results = []Result{failed(1, a.Output, err)}
			return report, err
		}
		a.Rebind(sess.Primary())
		err = o.workflow.SubmitPhase(ctx, a)
	}

	path := a.Output
	if err == nil {
		path, err = o.workflow.CompletePhase(ctx, a)
	}
	if err != nil {
		report.Results = []Result{failed(1, a.Output, err)}
		return report, err
	}
	report.Results = []Result{succeeded(1, path)}
	return report, nil
}

// signedIn makes sure sess is past the sign-in wall before pages are opened,
// since the pages of a session share its login state.
func (o *Orchestrator) signedIn(ctx context.Context, sess schemas.Session, headless bool) (schemas.Session, error) {
	probe := workflow.NewAttempt(0, "", "", sess.Primary())
	err := o.workflow.Navigate(ctx, probe)
	var authErr *schemas.AuthenticationRequiredError
	if errors.As(err, &authErr) {
		return o.recover(ctx, sess, headless)
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (o *Orchestrator) recover(ctx context.Context, sess schemas.Session, headless bool) (schemas.Session, error) {
	o.logger.Info("Recovering from the sign-in wall.")
	return o.recovery.Recover(ctx, sess, headless)
}

// open creates one page per attempt. An attempt whose page cannot be opened is
// recorded as failed and gets no Attempt.
func (o *Orchestrator) open(ctx context.Context, sess schemas.Session, req Request, report *Report) []*workflow.Attempt {
	var attempts []*workflow.Attempt
	for i := 1; i <= req.Count; i++ {
		path := MultiOutputPath(req.Output, i, req.Count)
		page, err := sess.NewPage(ctx)
		if err != nil {
			report.Results[i-1] = failed(i, path, fmt.Errorf("failed to open a page: %w", err))
			continue
		}
		attempts = append(attempts, workflow.NewAttempt(i, req.Prompt, path, page))
	}
	return attempts
}

// submitAll runs the submit phase for every attempt in index order, paced by
// the submit interval, and returns those that submitted.
func (o *Orchestrator) submitAll(ctx context.Context, attempts []*workflow.Attempt, report *Report) []*workflow.Attempt {
	limiter := rate.NewLimiter(rate.Every(o.cfg.SubmitInterval), 1)
	var submitted []*workflow.Attempt
	for _, a := range attempts {
		if err := limiter.Wait(ctx); err != nil {
			report.Results[a.Index-1] = failed(a.Index, a.Output, err)
			continue
		}
		if err := o.workflow.SubmitPhase(ctx, a); err != nil {
			o.logger.Warn("Submission failed.", zap.Int("attempt", a.Index), zap.Error(err))
			report.Results[a.Index-1] = failed(a.Index, a.Output, err)
			continue
		}
		submitted = append(submitted, a)
	}
	return submitted
}

// completeAll waits for and captures every submitted attempt concurrently.
func (o *Orchestrator) completeAll(ctx context.Context, attempts []*workflow.Attempt, report *Report) {
	var g errgroup.Group
	if o.cfg.MaxParallelWaits > 0 {
		g.SetLimit(o.cfg.MaxParallelWaits)
	}
	for _, a := range attempts {
		g.Go(func() error {
			path, err := o.workflow.CompletePhase(ctx, a)
			if err != nil {
				report.Results[a.Index-1] = failed(a.Index, a.Output, err)
				return nil
			}
			report.Results[a.Index-1] = succeeded(a.Index, path)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) closeAll(attempts []*workflow.Attempt) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	for _, a := range attempts {
		if err := a.Page.Close(ctx); err != nil {
			o.logger.Debug("Failed to close an attempt page.", zap.Int("attempt", a.Index), zap.Error(err))
		}
	}
}
