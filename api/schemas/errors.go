package schemas

import (
	"errors"
	"fmt"
	"time"
)

// This file defines the typed failures that cross a workflow-step boundary. Each
// carries a machine-classifiable Kind and a human recovery Hint, so the command
// layer can print actionable advice and the orchestrator can record per-attempt
// failures without string matching.

// ErrorKind classifies a propagated failure.
type ErrorKind string

const (
	KindSelectorNotFound       ErrorKind = "selector_not_found"
	KindAuthenticationRequired ErrorKind = "authentication_required"
	KindGenerationTimeout      ErrorKind = "generation_timeout"
	KindDownloadFailure        ErrorKind = "download_failure"
	KindBrowserLaunchFailure   ErrorKind = "browser_launch_failure"
	KindTierSwitchFailure      ErrorKind = "tier_switch_failure"
)

// ClassifiedError is implemented by every error in the taxonomy.
type ClassifiedError interface {
	error
	Kind() ErrorKind
	Hint() string
}

// SelectorNotFoundError means a required UI element never resolved through any strategy.
type SelectorNotFoundError struct {
	Target string
}

func (e *SelectorNotFoundError) Error() string {
	return fmt.Sprintf("could not locate %s on the page", e.Target)
}

func (e *SelectorNotFoundError) Kind() ErrorKind { return KindSelectorNotFound }

func (e *SelectorNotFoundError) Hint() string {
	return "the page layout may have changed; retry with --debug, or add a selector override for this element in the config file"
}

// NewSelectorNotFoundError creates a new SelectorNotFoundError.
func NewSelectorNotFoundError(target string) *SelectorNotFoundError {
	return &SelectorNotFoundError{Target: target}
}

// AuthenticationRequiredError means the application demanded a sign-in that could not be completed.
type AuthenticationRequiredError struct {
	URL    string
	Reason string
}

func (e *AuthenticationRequiredError) Error() string {
	msg := "authentication required"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.URL != "" {
		msg += fmt.Sprintf(" (at %s)", e.URL)
	}
	return msg
}

func (e *AuthenticationRequiredError) Kind() ErrorKind { return KindAuthenticationRequired }

func (e *AuthenticationRequiredError) Hint() string {
	return "run `nano-banana signin` to sign in with a visible browser, then retry"
}

// GenerationTimeoutError means the result never became visible within the budget.
type GenerationTimeoutError struct {
	Elapsed time.Duration
}

func (e *GenerationTimeoutError) Error() string {
	return fmt.Sprintf("image generation did not complete after %.0f seconds", e.Seconds())
}

// Seconds is the elapsed wait in whole seconds.
func (e *GenerationTimeoutError) Seconds() float64 { return e.Elapsed.Round(time.Second).Seconds() }

func (e *GenerationTimeoutError) Kind() ErrorKind { return KindGenerationTimeout }

func (e *GenerationTimeoutError) Hint() string {
	return "retry, the service may be overloaded; or raise generation.timeout"
}

// DownloadFailureError means the image was produced but the file never materialized.
type DownloadFailureError struct {
	Detail string
	Err    error
}

func (e *DownloadFailureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("download failed: %s: %v", e.Detail, e.Err)
	}
	return "download failed: " + e.Detail
}

func (e *DownloadFailureError) Unwrap() error { return e.Err }

func (e *DownloadFailureError) Kind() ErrorKind { return KindDownloadFailure }

func (e *DownloadFailureError) Hint() string {
	return "the image was generated but could not be saved; check the output directory is writable and retry"
}

// BrowserLaunchFailureError means the browser process failed to start.
type BrowserLaunchFailureError struct {
	ProfileDir string
	Err        error
}

func (e *BrowserLaunchFailureError) Error() string {
	return fmt.Sprintf("failed to launch browser with profile %s: %v", e.ProfileDir, e.Err)
}

func (e *BrowserLaunchFailureError) Unwrap() error { return e.Err }

func (e *BrowserLaunchFailureError) Kind() ErrorKind { return KindBrowserLaunchFailure }

func (e *BrowserLaunchFailureError) Hint() string {
	return "make sure Chrome or Chromium is installed (or set browser.exec_path) and no other browser is using the profile directory"
}

// TierSwitchFailureError means a requested quality-tier switch could not be completed.
type TierSwitchFailureError struct {
	Want string
	Have string
	Err  error
}

func (e *TierSwitchFailureError) Error() string {
	have := e.Have
	if have == "" {
		have = "unknown"
	}
	msg := fmt.Sprintf("could not switch quality tier to %q (active: %s)", e.Want, have)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TierSwitchFailureError) Unwrap() error { return e.Err }

func (e *TierSwitchFailureError) Kind() ErrorKind { return KindTierSwitchFailure }

func (e *TierSwitchFailureError) Hint() string {
	return "select the tier once by hand in a `nano-banana signin` window, or set generation.require_top_tier=false"
}

// KindOf returns the kind of the first classified error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var ce ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind()
	}
	return ""
}

// HintOf returns the recovery hint of the first classified error in err's chain, or "".
func HintOf(err error) string {
	var ce ClassifiedError
	if errors.As(err, &ce) {
		return ce.Hint()
	}
	return ""
}
