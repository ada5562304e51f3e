// File: cmd/generate.go
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hffmnnj/nano-banana-cli/internal/browser"
	"github.com/hffmnnj/nano-banana-cli/internal/observability"
	"github.com/hffmnnj/nano-banana-cli/internal/orchestrator"
	"github.com/hffmnnj/nano-banana-cli/internal/service"
)

func newGenerateCmd(scope *browser.Scope) *cobra.Command {
	generateCmd := &cobra.Command{
		Use:   "generate [prompt...]",
		Short: "Generate one or more images from a prompt",
		Example: `  nano-banana generate "a banana surfing a wave at sunset"
  nano-banana generate -n 3 -o banana.png "a banana in a tuxedo"
  nano-banana generate --headless=false "watch the browser work"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			svc, cfg, err := newService(cmd, scope)
			if err != nil {
				return err
			}

			count, _ := cmd.Flags().GetInt("count")
			output, _ := cmd.Flags().GetString("output")
			noInteractive, _ := cmd.Flags().GetBool("no-interactive")
			keepOpen, _ := cmd.Flags().GetBool("keep-open")
			asJSON, _ := cmd.Flags().GetBool("json")

			req := service.GenerateRequest{
				Prompt:      strings.Join(args, " "),
				Count:       count,
				Output:      output,
				Headless:    cfg.Browser.Headless,
				Interactive: cfg.Auth.Interactive && !noInteractive,
				KeepOpen:    keepOpen,
			}
			logger.Info("Generating.", zap.Int("count", req.Count), zap.Bool("headless", req.Headless))

			report, err := svc.Generate(ctx, req)
			if report != nil {
				if perr := printReport(cmd, report, asJSON); perr != nil {
					return perr
				}
			}
			if err != nil {
				return err
			}

			if keepOpen {
				logger.Info("Browser left open for inspection. Press Ctrl+C to close it and exit.")
				<-ctx.Done()
			}
			return nil
		},
	}

	generateCmd.Flags().IntP("count", "n", 1, "number of images to generate in parallel tabs")
	generateCmd.Flags().StringP("output", "o", "", "output path; with -n > 1 an index is added before the extension (default nano-banana-<timestamp>.png)")
	generateCmd.Flags().Bool("headless", true, "run the browser without a window; --headless=false shows it (overrides browser.headless)")
	generateCmd.Flags().Bool("no-interactive", false, "fail instead of opening a window when sign-in is required")
	generateCmd.Flags().Bool("keep-open", false, "keep the browser and its tabs open after finishing, for debugging")
	generateCmd.Flags().Bool("json", false, "print a JSON report instead of the saved paths")
	generateCmd.Flags().Duration("timeout", 0, "how long to wait for each image (overrides generation.timeout)")

	return generateCmd
}

// printReport writes saved paths to stdout and failures to stderr, or the whole
// report as JSON to stdout.
func printReport(cmd *cobra.Command, report *orchestrator.Report, asJSON bool) error {
	if asJSON {
		data, err := report.JSON()
		if err != nil {
			return fmt.Errorf("failed to render the report: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	for _, p := range report.Paths() {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	failures := report.Failures()
	// A lone failed attempt is reported by the returned error instead.
	if len(report.Results) > 1 {
		for _, f := range failures {
			fmt.Fprintf(cmd.ErrOrStderr(), "Image %d failed: %s\n", f.Index, f.Error)
			if f.Hint != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "  Hint: %s\n", f.Hint)
			}
		}
	}
	return nil
}
