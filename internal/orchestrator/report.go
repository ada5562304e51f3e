// internal/orchestrator/report.go
package orchestrator

import (
	"fmt"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Status is the terminal outcome of one attempt.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Result records one attempt. It is written only by the goroutine running that
// attempt, into its own slot of Report.Results.
type Result struct {
	Index  int               `json:"index"`
	Path   string            `json:"path"`
	Status Status            `json:"status"`
	Error  string            `json:"error,omitempty"`
	Kind   schemas.ErrorKind `json:"kind,omitempty"`
	Hint   string            `json:"hint,omitempty"`

	Err error `json:"-"`
}

func succeeded(index int, path string) Result {
	return Result{Index: index, Path: path, Status: StatusSucceeded}
}

func failed(index int, path string, err error) Result {
	return Result{
		Index:  index,
		Path:   path,
		Status: StatusFailed,
		Error:  err.Error(),
		Kind:   schemas.KindOf(err),
		Hint:   schemas.HintOf(err),
		Err:    err,
	}
}

// Report aggregates the results of one generation request, in attempt order.
type Report struct {
	Prompt  string   `json:"prompt"`
	Results []Result `json:"results"`
}

// Paths returns the output paths of the successful attempts, in attempt order.
func (r *Report) Paths() []string {
	var out []string
	for _, res := range r.Results {
		if res.Status == StatusSucceeded {
			out = append(out, res.Path)
		}
	}
	return out
}

// Failures returns the failed attempts, in attempt order.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// LastError returns the error of the last failed attempt, or nil.
func (r *Report) LastError() error {
	f := r.Failures()
	if len(f) == 0 {
		return nil
	}
	return f[len(f)-1].Err
}

// JSON renders the report for machine consumption.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// MultiOutputPath derives the output path of attempt i (1-based) out of total.
// A single attempt uses base unchanged; otherwise "-i" is inserted before the
// extension, so "cat.png" becomes "cat-2.png".
func MultiOutputPath(base string, i, total int) string {
	if total <= 1 {
		return base
	}
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(base, ext), i, ext)
}
