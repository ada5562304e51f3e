// internal/workflow/attempt.go
package workflow

import (
	"fmt"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
)

// State is a stage of one generation attempt.
type State int

const (
	Idle State = iota
	Navigated
	CreationModeActive
	ModelVerified
	PromptEntered
	Submitted
	AwaitingResult
	ResultVisible
	DownloadRevealed
	Captured
	Failed
)

var stateNames = [...]string{
	Idle:               "idle",
	Navigated:          "navigated",
	CreationModeActive: "creation_mode_active",
	ModelVerified:      "model_verified",
	PromptEntered:      "prompt_entered",
	Submitted:          "submitted",
	AwaitingResult:     "awaiting_result",
	ResultVisible:      "result_visible",
	DownloadRevealed:   "download_revealed",
	Captured:           "captured",
	Failed:             "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Captured || s == Failed }

// Attempt is one prompt bound to one page and one output path. It is owned by
// a single goroutine at a time, so it carries no lock.
type Attempt struct {
	Index  int
	Prompt string
	Output string
	Page   schemas.Page

	state  State
	failed State
	err    error
	result schemas.ElementHandle
}

// NewAttempt creates an attempt in the Idle state.
func NewAttempt(index int, prompt, output string, page schemas.Page) *Attempt {
	return &Attempt{Index: index, Prompt: prompt, Output: output, Page: page}
}

// State returns the current stage.
func (a *Attempt) State() State { return a.state }

// FailedAt returns the stage the attempt was in when it failed.
func (a *Attempt) FailedAt() State { return a.failed }

// Err returns the failure reason, or nil.
func (a *Attempt) Err() error { return a.err }

// Rebind moves a suspended attempt to a new page, as happens after the session
// is relaunched for sign-in.
func (a *Attempt) Rebind(page schemas.Page) {
	a.Page = page
	a.state = Idle
	a.err = nil
	a.result = nil
}

func (a *Attempt) fail(err error) error {
	if a.state != Failed {
		a.failed = a.state
		a.state = Failed
		a.err = err
	}
	return err
}
