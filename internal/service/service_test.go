// internal/service/service_test.go
package service_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
	"github.com/hffmnnj/nano-banana-cli/internal/browser"
	"github.com/hffmnnj/nano-banana-cli/internal/config"
	"github.com/hffmnnj/nano-banana-cli/internal/mocks"
	"github.com/hffmnnj/nano-banana-cli/internal/service"
)

const (
	appURL    = "https://gemini.google.com/app"
	signInURL = "https://accounts.google.com/ServiceLogin"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Browser.ProfileDir = filepath.Join(t.TempDir(), "profile")
	cfg.Browser.RelaunchPause = time.Millisecond
	cfg.Generation.SettleDelay = time.Millisecond
	cfg.Generation.TransitionDelay = time.Millisecond
	cfg.Generation.Timeout = 500 * time.Millisecond
	cfg.Generation.PollInterval = 10 * time.Millisecond
	cfg.Generation.WatchdogMargin = 300 * time.Millisecond
	cfg.Generation.StrategyTimeout = 20 * time.Millisecond
	cfg.Generation.ClickTimeout = 100 * time.Millisecond
	cfg.Generation.SubmitInterval = time.Millisecond
	cfg.Download.Timeout = 500 * time.Millisecond
	cfg.Download.PollInterval = 10 * time.Millisecond
	cfg.Auth.SignInTimeout = 2 * time.Second
	cfg.Auth.PollInterval = 5 * time.Millisecond
	return cfg
}

func appScript(image string) mocks.AppScript {
	return mocks.AppScript{ActiveTier: "Pro", TopTierSlug: "pro", ResultDelay: 20 * time.Millisecond, Image: []byte(image)}
}

// appLauncher serves application pages gated on the profile's login state.
// Visible windows simulate an operator signing in when operatorSignsIn is set.
func appLauncher(profiles *mocks.ProfileStore, operatorSignsIn bool) *mocks.FakeLauncher {
	return &mocks.FakeLauncher{
		PrimaryFunc: func(opts browser.LaunchOptions) *mocks.FakePage {
			page := profiles.Gate(mocks.NewAppPage("primary", appScript("primary")), opts.ProfileDir, signInURL)
			if operatorSignsIn && !opts.Headless {
				time.AfterFunc(30*time.Millisecond, func() {
					profiles.SignIn(opts.ProfileDir)
					page.SetURL(appURL)
				})
			}
			return page
		},
		PageFunc: func(opts browser.LaunchOptions, index int) *mocks.FakePage {
			page := mocks.NewAppPage(fmt.Sprintf("page-%d", index), appScript(fmt.Sprintf("image-%d", index)))
			return profiles.Gate(page, opts.ProfileDir, signInURL)
		},
	}
}

func newService(t *testing.T, cfg *config.Config, launcher browser.Launcher) (*service.Service, *browser.Scope) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	scope := browser.NewScope(logger)
	svc, err := service.New(cfg, launcher, scope, logger)
	require.NoError(t, err)
	return svc, scope
}

func TestGenerate(t *testing.T) {
	cfg := testConfig(t)
	profiles := mocks.NewProfileStore()
	profiles.SignIn(cfg.Browser.ProfileDir)
	launcher := appLauncher(profiles, false)
	svc, scope := newService(t, cfg, launcher)

	out := filepath.Join(t.TempDir(), "fruit.png")
	report, err := svc.Generate(context.Background(), service.GenerateRequest{
		Prompt: "a banana", Count: 2, Output: out, Headless: true, Interactive: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(filepath.Dir(out), "fruit-1.png"),
		filepath.Join(filepath.Dir(out), "fruit-2.png"),
	}, report.Paths())

	assert.Equal(t, 0, scope.Live(), "the session is closed after the run")
	require.Len(t, launcher.Launches(), 1)
	assert.True(t, launcher.Launches()[0].Headless)
	assert.Equal(t, cfg.Browser.ProfileDir, launcher.Launches()[0].ProfileDir)
}

func TestGenerate_KeepOpen(t *testing.T) {
	cfg := testConfig(t)
	profiles := mocks.NewProfileStore()
	profiles.SignIn(cfg.Browser.ProfileDir)
	launcher := appLauncher(profiles, false)
	svc, scope := newService(t, cfg, launcher)

	_, err := svc.Generate(context.Background(), service.GenerateRequest{
		Prompt: "x", Count: 2, Output: filepath.Join(t.TempDir(), "o.png"), KeepOpen: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, scope.Live())
	for _, p := range launcher.Sessions()[0].Pages() {
		assert.False(t, p.Closed())
	}

	require.NoError(t, svc.Shutdown(context.Background()))
	assert.Equal(t, 0, scope.Live())
	assert.Equal(t, 1, launcher.Sessions()[0].Closes())
}

func TestGenerate_SignInRecoveryClosesReplacementSession(t *testing.T) {
	cfg := testConfig(t)
	launcher := appLauncher(mocks.NewProfileStore(), true)
	svc, scope := newService(t, cfg, launcher)

	report, err := svc.Generate(context.Background(), service.GenerateRequest{
		Prompt: "x", Count: 1, Output: filepath.Join(t.TempDir(), "o.png"), Headless: true, Interactive: true,
	})
	require.NoError(t, err)
	assert.Len(t, report.Paths(), 1)
	assert.Len(t, launcher.Launches(), 3)
	assert.Equal(t, 0, scope.Live())
	for _, s := range launcher.Sessions() {
		assert.Equal(t, 1, s.Closes())
	}
}

func TestGenerate_InvalidRequests(t *testing.T) {
	cfg := testConfig(t)
	launcher := appLauncher(mocks.NewProfileStore(), false)
	svc, _ := newService(t, cfg, launcher)

	_, err := svc.Generate(context.Background(), service.GenerateRequest{Prompt: "  ", Count: 1})
	assert.Error(t, err)
	_, err = svc.Generate(context.Background(), service.GenerateRequest{Prompt: "x", Count: 0})
	assert.Error(t, err)
	assert.Empty(t, launcher.Launches(), "nothing is launched for an invalid request")
}

func TestGenerate_LaunchFailure(t *testing.T) {
	cfg := testConfig(t)
	launcher := &mocks.FakeLauncher{LaunchErr: errors.New("chrome not found")}
	svc, _ := newService(t, cfg, launcher)

	_, err := svc.Generate(context.Background(), service.GenerateRequest{Prompt: "x", Count: 1, Output: filepath.Join(t.TempDir(), "o.png")})
	assert.Equal(t, schemas.KindBrowserLaunchFailure, schemas.KindOf(err))
	assert.NotEmpty(t, schemas.HintOf(err))
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()

	t.Run("already signed in", func(t *testing.T) {
		cfg := testConfig(t)
		profiles := mocks.NewProfileStore()
		profiles.SignIn(cfg.Browser.ProfileDir)
		launcher := appLauncher(profiles, false)
		svc, scope := newService(t, cfg, launcher)

		require.NoError(t, svc.SignIn(ctx, service.SignInOptions{}))
		assert.Equal(t, 0, scope.Live())
		require.Len(t, launcher.Launches(), 1)
		assert.False(t, launcher.Launches()[0].Headless)
	})

	t.Run("waits for the operator", func(t *testing.T) {
		cfg := testConfig(t)
		profiles := mocks.NewProfileStore()
		svc, scope := newService(t, cfg, appLauncher(profiles, true))

		require.NoError(t, svc.SignIn(ctx, service.SignInOptions{}))
		assert.True(t, profiles.SignedIn(cfg.Browser.ProfileDir))
		assert.Equal(t, 0, scope.Live())
	})

	t.Run("headless cannot sign in", func(t *testing.T) {
		cfg := testConfig(t)
		svc, _ := newService(t, cfg, appLauncher(mocks.NewProfileStore(), false))

		err := svc.SignIn(ctx, service.SignInOptions{Headless: true})
		var authErr *schemas.AuthenticationRequiredError
		require.ErrorAs(t, err, &authErr)
		assert.Contains(t, authErr.URL, "accounts.google.com")
	})

	t.Run("times out", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.SignInTimeout = 50 * time.Millisecond
		svc, scope := newService(t, cfg, appLauncher(mocks.NewProfileStore(), false))

		err := svc.SignIn(ctx, service.SignInOptions{})
		assert.Equal(t, schemas.KindAuthenticationRequired, schemas.KindOf(err))
		assert.Equal(t, 0, scope.Live())
	})
}

func TestNew_RejectsUnknownSelectorTarget(t *testing.T) {
	cfg := testConfig(t)
	cfg.Selectors = map[string][]string{"submit_buton": {"css:button"}}
	_, err := service.New(cfg, &mocks.FakeLauncher{}, browser.NewScope(zaptest.NewLogger(t)), zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "submit_buton")
}

func TestDefaultOutputPath(t *testing.T) {
	now := time.Date(2026, 3, 7, 9, 5, 4, 0, time.UTC)
	assert.Equal(t, "nano-banana-20260307-090504.png", service.DefaultOutputPath(now))
}
