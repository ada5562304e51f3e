// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
	"github.com/hffmnnj/nano-banana-cli/internal/browser"
	"github.com/hffmnnj/nano-banana-cli/internal/config"
	"github.com/hffmnnj/nano-banana-cli/internal/observability"
	"github.com/hffmnnj/nano-banana-cli/internal/service"
)

type contextKey string

const configKey contextKey = "config"

var (
	cfgFile string
	debug   bool

	// newLauncher builds the browser launcher. Tests replace it with a fake.
	newLauncher = func(cfg *config.Config, logger *zap.Logger) browser.Launcher {
		return browser.NewChromeLauncher(cfg.Browser, cfg.Target, logger)
	}
)

// NewRootCommand builds the command tree. Sessions launched by any command are
// registered in scope, which the caller owns and shuts down.
func NewRootCommand(scope *browser.Scope) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nano-banana",
		Short: "Generate images with Gemini's Nano Banana model by driving the web app in a browser.",
		Long: `nano-banana drives the Gemini web application through a real browser: it types
your prompt, waits for the image and saves it to disk. Run "nano-banana signin"
once to store your login in the browser profile.`,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			if debug {
				v.Set("logger.level", "debug")
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "nano-banana"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting nano-banana.", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml, then ~/.nano-banana/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable diagnostic logging")
	rootCmd.PersistentFlags().String("profile", "", "browser profile directory holding the login (default ~/.nano-banana/profile)")
	rootCmd.PersistentFlags().String("log-file", "", "also write JSON logs to this file, rotated")
	rootCmd.SetVersionTemplate(`{{printf "nano-banana version %s\n" .Version}}`)

	rootCmd.AddCommand(newSignInCmd(scope))
	rootCmd.AddCommand(newGenerateCmd(scope))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command line and reports a failure, with its recovery hint,
// on stderr.
func Execute(ctx context.Context, scope *browser.Scope) error {
	rootCmd := NewRootCommand(scope)
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.GetLogger().Debug("Command execution failed.", zap.Error(err))
		printError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	if hint := schemas.HintOf(err); hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", hint)
	}
}

// initializeConfig layers the config file and NANOBANANA_* environment
// variables over the defaults already set on v, and binds the flags of cmd.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if dir, err := config.ExpandPath("~/.nano-banana"); err == nil {
			v.AddConfigPath(dir)
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return bindFlags(cmd, v)
}

// flagKeys maps command flags onto the configuration keys they override.
var flagKeys = map[string]string{
	"profile":  "browser.profile_dir",
	"headless": "browser.headless",
	"timeout":  "generation.timeout",
	"log-file": "logger.log_file",
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// configFromContext returns the configuration stored by the root command.
func configFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

func newService(cmd *cobra.Command, scope *browser.Scope) (*service.Service, *config.Config, error) {
	cfg, err := configFromContext(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	logger := observability.GetLogger()
	svc, err := service.New(cfg, newLauncher(cfg, logger), scope, logger)
	if err != nil {
		return nil, nil, err
	}
	return svc, cfg, nil
}
