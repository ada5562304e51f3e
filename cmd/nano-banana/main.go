// File: cmd/nano-banana/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hffmnnj/nano-banana-cli/cmd"
	"github.com/hffmnnj/nano-banana-cli/internal/browser"
	"github.com/hffmnnj/nano-banana-cli/internal/observability"
)

const (
	panicLogFile = "panic.log"

	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

// Define function variables for dependency injection/mocking in tests.
var (
	osWriteFile = os.WriteFile
	// Allows mocking os.Exit in tests.
	osExit = os.Exit
	// Allows overriding the shutdown bound in tests.
	shutdownTimeout = 20 * time.Second
)

// main is the entry point of the application.
func main() {
	defer handlePanic()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The scope owns every browser session of this invocation. Both the normal
	// path and the signal path end it through the same one-shot ShutdownAll.
	scope := browser.NewScope(nil)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	go handleSignals(signals, cancel, scope)

	err := cmd.Execute(ctx, scope)
	if ctx.Err() != nil {
		// Only the signal handler cancels ctx, and it owns the exit status from then on.
		select {}
	}
	shutdown(scope)

	if err != nil {
		osExit(exitFailure)
		return
	}
	osExit(exitOK)
}

// handleSignals reacts to the first signal by abandoning in-flight work,
// closing every live session and exiting with the cancellation status. Later
// signals only produce a notice; cleanup is never started twice.
func handleSignals(signals <-chan os.Signal, cancel context.CancelFunc, scope *browser.Scope) {
	sig, ok := <-signals
	if !ok {
		return
	}
	fmt.Fprintf(os.Stderr, "\nReceived %v, closing the browser...\n", sig)
	go func() {
		for range signals {
			fmt.Fprintln(os.Stderr, "Shutdown already in progress.")
		}
	}()

	cancel()
	shutdown(scope)
	osExit(exitInterrupted)
}

func shutdown(scope *browser.Scope) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := scope.ShutdownAll(ctx); err != nil {
		observability.GetLogger().Warn("Some browser sessions did not close cleanly.", zap.Error(err))
	}
	observability.Sync()
}

// handlePanic logs a panic to panicLogFile and exits non-zero.
func handlePanic() {
	if r := recover(); r != nil {
		observability.Sync()

		panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
		if err := osWriteFile(panicLogFile, []byte(panicMessage), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
			fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
			osExit(exitFailure)
			return
		}

		fmt.Fprintf(os.Stderr, "\nnano-banana crashed. Details were written to %s.\n", panicLogFile)
		osExit(exitFailure)
	}
}
