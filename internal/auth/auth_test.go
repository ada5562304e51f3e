// internal/auth/auth_test.go
package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
	"github.com/hffmnnj/nano-banana-cli/internal/auth"
	"github.com/hffmnnj/nano-banana-cli/internal/browser"
	"github.com/hffmnnj/nano-banana-cli/internal/config"
	"github.com/hffmnnj/nano-banana-cli/internal/mocks"
	"github.com/hffmnnj/nano-banana-cli/internal/selector"
)

const (
	appURL    = "https://gemini.google.com/app"
	signInURL = "https://accounts.google.com/ServiceLogin"
)

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Browser.ProfileDir = "/profiles/test"
	cfg.Browser.RelaunchPause = time.Millisecond
	cfg.Generation.StrategyTimeout = 20 * time.Millisecond
	cfg.Auth.SignInTimeout = 2 * time.Second
	cfg.Auth.PollInterval = 5 * time.Millisecond
	return cfg
}

func newDetector(t *testing.T, cfg *config.Config) *auth.Detector {
	t.Helper()
	logger := zaptest.NewLogger(t)
	registry, err := selector.NewRegistry(nil)
	require.NoError(t, err)
	d, err := auth.NewDetector(cfg.Target, selector.NewEngine(cfg.Generation, logger), registry, logger)
	require.NoError(t, err)
	return d
}

func TestClassify(t *testing.T) {
	cfg := testConfig()
	d := newDetector(t, cfg)
	ctx := context.Background()

	t.Run("sign-in address", func(t *testing.T) {
		page := mocks.NewFakePage("p")
		page.SetURL(signInURL + "?continue=x")
		assert.Equal(t, auth.AuthRequired, d.Classify(ctx, page))
	})

	t.Run("sign-in rule precedes the app rule", func(t *testing.T) {
		page := mocks.NewFakePage("p")
		page.SetURL(appURL + "?redirect=ServiceLogin")
		require.True(t, d.IsAppURL(appURL+"?redirect=ServiceLogin"))
		assert.Equal(t, auth.AuthRequired, d.Classify(ctx, page))
	})

	t.Run("app address skips the DOM probe", func(t *testing.T) {
		page := mocks.NewFakePage("p").Add(`input[type="email"]`, mocks.Visible("email"))
		page.SetURL(appURL)
		assert.Equal(t, auth.Authenticated, d.Classify(ctx, page))
		assert.Empty(t, page.Queries())
	})

	t.Run("sign-in form on another address", func(t *testing.T) {
		page := mocks.NewFakePage("p").Add(`input[type="email"]`, mocks.Visible("email"))
		page.SetURL("https://consent.example.com/")
		assert.Equal(t, auth.AuthRequired, d.Classify(ctx, page))
	})

	t.Run("hidden sign-in form does not count", func(t *testing.T) {
		page := mocks.NewFakePage("p").Add(`input[type="email"]`, mocks.Hidden("email"))
		page.SetURL("https://consent.example.com/")
		assert.Equal(t, auth.Authenticated, d.Classify(ctx, page))
	})

	t.Run("faults fail open", func(t *testing.T) {
		page := mocks.NewFakePage("p")
		require.NoError(t, page.Close(ctx))
		assert.Equal(t, auth.Authenticated, d.Classify(ctx, page))
	})
}

func TestNewDetector_InvalidPattern(t *testing.T) {
	cfg := testConfig()
	cfg.Target.SignInPatterns = []string{"("}
	registry, err := selector.NewRegistry(nil)
	require.NoError(t, err)
	_, err = auth.NewDetector(cfg.Target, selector.NewEngine(cfg.Generation, zaptest.NewLogger(t)), registry, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "sign_in_patterns")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "authenticated", auth.Authenticated.String())
	assert.Equal(t, "auth-required", auth.AuthRequired.String())
}

// gatedLauncher serves pages that redirect to sign-in until the profile is signed
// in. Visible launches simulate an operator completing sign-in shortly after.
func gatedLauncher(profiles *mocks.ProfileStore) *mocks.FakeLauncher {
	return &mocks.FakeLauncher{
		PrimaryFunc: func(opts browser.LaunchOptions) *mocks.FakePage {
			page := profiles.Gate(mocks.NewFakePage("primary"), opts.ProfileDir, signInURL)
			if !opts.Headless {
				time.AfterFunc(30*time.Millisecond, func() {
					profiles.SignIn(opts.ProfileDir)
					page.SetURL(appURL)
				})
			}
			return page
		},
	}
}

func TestRecovery_RelaunchPreservesProfileState(t *testing.T) {
	cfg := testConfig()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	profiles := mocks.NewProfileStore()
	launcher := gatedLauncher(profiles)
	manager := browser.NewManager(launcher, cfg.Browser, browser.NewScope(logger), logger)
	d := newDetector(t, cfg)

	sess, err := manager.Launch(ctx, true)
	require.NoError(t, err)
	require.NoError(t, sess.Primary().Navigate(ctx, appURL))
	require.Equal(t, auth.AuthRequired, d.Classify(ctx, sess.Primary()))

	recovery := auth.NewRecovery(d, manager, cfg.Auth, appURL, logger)
	resumed, err := recovery.Recover(ctx, sess, true)
	require.NoError(t, err)
	assert.True(t, resumed.Headless(), "recovery returns to the requested mode")

	launches := launcher.Launches()
	require.Len(t, launches, 3)
	assert.False(t, launches[1].Headless, "sign-in happens in a visible window")
	for _, l := range launches {
		assert.Equal(t, cfg.Browser.ProfileDir, l.ProfileDir)
	}

	require.NoError(t, resumed.Primary().Navigate(ctx, appURL))
	assert.Equal(t, auth.Authenticated, d.Classify(ctx, resumed.Primary()))
	manager.Close(ctx, resumed)
}

func TestRecovery_NonInteractive(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Interactive = false
	logger := zaptest.NewLogger(t)
	launcher := &mocks.FakeLauncher{}
	manager := browser.NewManager(launcher, cfg.Browser, browser.NewScope(logger), logger)

	sess, err := manager.Launch(context.Background(), true)
	require.NoError(t, err)

	recovery := auth.NewRecovery(newDetector(t, cfg), manager, cfg.Auth, appURL, logger)
	_, err = recovery.Recover(context.Background(), sess, true)
	assert.Equal(t, schemas.KindAuthenticationRequired, schemas.KindOf(err))
	assert.Contains(t, schemas.HintOf(err), "nano-banana signin")
	assert.Len(t, launcher.Launches(), 1, "no relaunch without interaction")
}

func TestWaitForSignIn_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.SignInTimeout = 50 * time.Millisecond
	logger := zaptest.NewLogger(t)
	recovery := auth.NewRecovery(newDetector(t, cfg), nil, cfg.Auth, appURL, logger)

	page := mocks.NewFakePage("p")
	page.SetURL(signInURL)

	start := time.Now()
	err := recovery.WaitForSignIn(context.Background(), page)
	assert.Less(t, time.Since(start), time.Second)

	var authErr *schemas.AuthenticationRequiredError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, signInURL, authErr.URL)
}

func TestWaitForSignIn_SignedOutShell(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.SignInTimeout = time.Second
	recovery := auth.NewRecovery(newDetector(t, cfg), nil, cfg.Auth, appURL, zaptest.NewLogger(t))

	page := mocks.NewFakePage("p").Add(`a[aria-label^="Sign in" i]`, mocks.Visible("sign in"))
	page.SetURL(appURL)
	go func() {
		time.Sleep(30 * time.Millisecond)
		page.Remove(`a[aria-label^="Sign in" i]`)
	}()

	require.NoError(t, recovery.WaitForSignIn(context.Background(), page))
}
