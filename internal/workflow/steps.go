// internal/workflow/steps.go
package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
	"github.com/hffmnnj/nano-banana-cli/internal/browser"
	"github.com/hffmnnj/nano-banana-cli/internal/auth"
	"github.com/hffmnnj/nano-banana-cli/internal/selector"
)

// fastPoll is used right after the loading indicator disappears, when the
// result is expected imminently.
const fastPoll = 100 * time.Millisecond

// Navigate opens the application and lets it hydrate. A sign-in wall is not a
// failure: the attempt stays Idle and an AuthenticationRequiredError is
// returned for the caller to recover from.
func (w *Workflow) Navigate(ctx context.Context, a *Attempt) error {
	log := w.log(a)
	if err := a.Page.Navigate(ctx, w.appURL); err != nil {
		return a.fail(fmt.Errorf("failed to open %s: %w", w.appURL, err))
	}
	// The app shell renders asynchronously after the document loads.
	if err := browser.Sleep(ctx, w.cfg.SettleDelay); err != nil {
		return a.fail(err)
	}

	if w.detector.Classify(ctx, a.Page) == auth.AuthRequired {
		url, _ := a.Page.CurrentURL(ctx)
		log.Info("Sign-in wall detected after navigation.", zap.String("url", url))
		return &schemas.AuthenticationRequiredError{URL: url, Reason: "the application redirected to sign-in"}
	}

	dismiss := w.registry.Target(selector.DismissDialog)
	for i := 0; i < dialogPasses; i++ {
		if _, ok := w.engine.Probe(ctx, a.Page, dismiss); !ok {
			break
		}
		if !w.engine.ClickFirstVisible(ctx, a.Page, dismiss, w.cfg.ClickTimeout) {
			break
		}
		log.Debug("Dismissed a dialog.")
		_ = browser.Sleep(ctx, w.cfg.TransitionDelay)
	}

	w.advance(a, Navigated)
	return nil
}

// EnterCreationMode switches the composer to image creation. It is a no-op when
// the mode is already active.
func (w *Workflow) EnterCreationMode(ctx context.Context, a *Attempt) error {
	if _, ok := w.engine.Probe(ctx, a.Page, w.registry.Target(selector.ImageCreationActive)); ok {
		w.log(a).Debug("Image creation mode already active.")
		w.advance(a, CreationModeActive)
		return nil
	}

	entry, err := w.engine.ResolveVisible(ctx, a.Page, w.registry.Target(selector.ImageCreationEntry), 0)
	if err != nil {
		return err
	}
	if err := w.engine.Click(ctx, a.Page, entry, w.cfg.ClickTimeout); err != nil {
		return fmt.Errorf("failed to enter image creation mode: %w", err)
	}
	if err := browser.Sleep(ctx, w.cfg.TransitionDelay); err != nil {
		return err
	}
	w.advance(a, CreationModeActive)
	return nil
}

// EnterPrompt replaces whatever the composer holds with the attempt's prompt.
func (w *Workflow) EnterPrompt(ctx context.Context, a *Attempt) error {
	input, err := w.engine.ResolveVisible(ctx, a.Page, w.registry.Target(selector.PromptInput), 0)
	if err != nil {
		return err
	}
	if err := w.engine.Click(ctx, a.Page, input, w.cfg.ClickTimeout); err != nil {
		w.log(a).Debug("Could not focus the prompt input by clicking.", zap.Error(err))
	}
	if err := a.Page.Clear(ctx, input); err != nil {
		return fmt.Errorf("failed to clear the prompt input: %w", err)
	}
	if err := a.Page.TypeText(ctx, input, a.Prompt); err != nil {
		return fmt.Errorf("failed to type the prompt: %w", err)
	}
	w.advance(a, PromptEntered)
	return nil
}

// Submit clicks the send control, or presses Enter when none is clickable.
func (w *Workflow) Submit(ctx context.Context, a *Attempt) error {
	if !w.engine.ClickFirstVisible(ctx, a.Page, w.registry.Target(selector.SubmitButton), w.cfg.ClickTimeout) {
		w.log(a).Debug("No clickable submit control; pressing Enter.")
		if err := a.Page.PressKey(ctx, "Enter"); err != nil {
			return fmt.Errorf("failed to submit the prompt: %w", err)
		}
	}
	w.advance(a, Submitted)
	w.log(a).Info("Prompt submitted.")
	return nil
}

// AwaitResult polls for the generated image until the generation timeout. A
// loading indicator that was seen and then disappears shortens the next poll.
func (w *Workflow) AwaitResult(ctx context.Context, a *Attempt) error {
	log := w.log(a)
	w.advance(a, AwaitingResult)

	start := time.Now()
	wctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	result := w.registry.Target(selector.ResultImage)
	loading := w.registry.Target(selector.LoadingIndicator)
	wasLoading := false

	for {
		if h, ok := w.engine.Probe(wctx, a.Page, result); ok {
			a.result = h
			log.Info("Result image visible.", zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
			w.advance(a, ResultVisible)
			return nil
		}

		interval := w.cfg.PollInterval
		_, isLoading := w.engine.Probe(wctx, a.Page, loading)
		if wasLoading && !isLoading {
			log.Debug("Loading indicator cleared.")
			interval = min(interval, fastPoll)
		}
		wasLoading = isLoading

		if err := browser.Sleep(wctx, interval); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &schemas.GenerationTimeoutError{Elapsed: time.Since(start)}
		}
	}
}

// RevealDownload hovers the result so that its action controls render. It never
// fails; the capture step resolves the download control independently.
func (w *Workflow) RevealDownload(ctx context.Context, a *Attempt) {
	if a.result != nil {
		if err := a.Page.Hover(ctx, a.result); err != nil {
			w.log(a).Debug("Hovering the result failed.", zap.Error(err))
		}
		_ = browser.Sleep(ctx, w.cfg.TransitionDelay)
	}
	w.advance(a, DownloadRevealed)
}

// Capture clicks the download control and moves the file to a.Output.
func (w *Workflow) Capture(ctx context.Context, a *Attempt) (string, error) {
	trigger := func(ctx context.Context) error {
		button, err := w.engine.ResolveVisible(ctx, a.Page, w.registry.Target(selector.DownloadButton), 0)
		if err != nil {
			return err
		}
		// Engine.Click falls back to a DOM click when an overlay intercepts the pointer.
		return w.engine.Click(ctx, a.Page, button, w.cfg.ClickTimeout)
	}

	path, err := w.capturer.Capture(ctx, a.Page, trigger, a.Output)
	if err != nil {
		return "", err
	}
	w.advance(a, Captured)
	return path, nil
}
