// File: cmd/signin.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hffmnnj/nano-banana-cli/internal/browser"
	"github.com/hffmnnj/nano-banana-cli/internal/service"
)

func newSignInCmd(scope *browser.Scope) *cobra.Command {
	signInCmd := &cobra.Command{
		Use:   "signin",
		Short: "Open a browser window to sign in; the login is kept in the profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cfg, err := newService(cmd, scope)
			if err != nil {
				return err
			}
			// Signing in needs a window, so the configured browser.headless is ignored here.
			headless, _ := cmd.Flags().GetBool("check")
			if err := svc.SignIn(cmd.Context(), service.SignInOptions{Headless: headless}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in. Profile: %s\n", cfg.Browser.ProfileDir)
			return nil
		},
	}
	signInCmd.Flags().Bool("check", false, "only check the stored login, headless, without waiting for a sign-in")
	return signInCmd
}
