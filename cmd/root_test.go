// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
	"github.com/hffmnnj/nano-banana-cli/internal/browser"
	"github.com/hffmnnj/nano-banana-cli/internal/config"
	"github.com/hffmnnj/nano-banana-cli/internal/mocks"
)

const fastConfig = `
browser:
  relaunch_pause: 1ms
generation:
  settle_delay: 1ms
  transition_delay: 1ms
  timeout: 500ms
  poll_interval: 10ms
  watchdog_margin: 300ms
  strategy_timeout: 20ms
  click_timeout: 100ms
  submit_interval: 1ms
download:
  timeout: 500ms
  poll_interval: 10ms
auth:
  sign_in_timeout: 100ms
  poll_interval: 5ms
`

// resetForTest restores package state and installs launcher for the test.
func resetForTest(t *testing.T, launcher browser.Launcher) {
	t.Helper()
	original := newLauncher
	t.Cleanup(func() {
		newLauncher = original
		cfgFile = ""
		debug = false
	})
	cfgFile = ""
	debug = false
	if launcher != nil {
		newLauncher = func(*config.Config, *zap.Logger) browser.Launcher { return launcher }
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func appLauncher() *mocks.FakeLauncher {
	script := func(image string) mocks.AppScript {
		return mocks.AppScript{ActiveTier: "Pro", TopTierSlug: "pro", ResultDelay: 10 * time.Millisecond, Image: []byte(image)}
	}
	return &mocks.FakeLauncher{
		PrimaryFunc: func(browser.LaunchOptions) *mocks.FakePage { return mocks.NewAppPage("primary", script("primary")) },
		PageFunc: func(_ browser.LaunchOptions, index int) *mocks.FakePage {
			return mocks.NewAppPage(fmt.Sprintf("page-%d", index), script(fmt.Sprintf("image-%d", index)))
		},
	}
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	scope := browser.NewScope(zaptest.NewLogger(t))
	root := NewRootCommand(scope)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	require.NoError(t, scope.ShutdownAll(context.Background()))
	return stdout.String(), stderr.String(), err
}

func TestRootCmd_VersionFlag(t *testing.T) {
	resetForTest(t, nil)
	out, _, err := run(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "nano-banana version "+Version)
}

func TestVersionCmd(t *testing.T) {
	resetForTest(t, nil)
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "nano-banana version "+Version+"\n", out)
}

func TestGenerateCmd_RequiresPrompt(t *testing.T) {
	resetForTest(t, appLauncher())
	_, _, err := run(t, "generate")
	assert.ErrorContains(t, err, "requires at least 1 arg(s)")
}

func TestGenerateCmd_WindowIsControlledByHeadlessOnly(t *testing.T) {
	launcher := appLauncher()
	resetForTest(t, launcher)
	_, _, err := run(t, "generate", "--show", "a banana")
	assert.ErrorContains(t, err, "unknown flag: --show")
	assert.Empty(t, launcher.Launches())
}

func TestGenerateCmd_PrintsPaths(t *testing.T) {
	launcher := appLauncher()
	resetForTest(t, launcher)
	dir := t.TempDir()
	profile := filepath.Join(dir, "profile")

	out, _, err := run(t, "--config", writeConfig(t, fastConfig), "--profile", profile,
		"generate", "-n", "2", "-o", filepath.Join(dir, "banana.png"), "a", "banana")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, []string{filepath.Join(dir, "banana-1.png"), filepath.Join(dir, "banana-2.png")}, lines)
	for i, p := range lines {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("image-%d", i+1), string(data))
	}

	require.Len(t, launcher.Launches(), 1)
	assert.Equal(t, profile, launcher.Launches()[0].ProfileDir)
	assert.True(t, launcher.Launches()[0].Headless)
}

func TestGenerateCmd_VisibleWindowAndJSON(t *testing.T) {
	launcher := appLauncher()
	resetForTest(t, launcher)
	dir := t.TempDir()

	out, _, err := run(t, "--config", writeConfig(t, fastConfig), "--profile", filepath.Join(dir, "p"),
		"generate", "--headless=false", "--json", "-o", filepath.Join(dir, "one.png"), "a banana")
	require.NoError(t, err)
	assert.False(t, launcher.Launches()[0].Headless)

	var report struct {
		Prompt  string `json:"prompt"`
		Results []struct {
			Index  int    `json:"index"`
			Path   string `json:"path"`
			Status string `json:"status"`
		} `json:"results"`
	}
	require.NoError(t, jsoniter.Unmarshal([]byte(out), &report))
	assert.Equal(t, "a banana", report.Prompt)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "succeeded", report.Results[0].Status)
	assert.Equal(t, filepath.Join(dir, "one.png"), report.Results[0].Path)
}

func TestSignInCmd_CheckWhenSignedOut(t *testing.T) {
	launcher := &mocks.FakeLauncher{
		PrimaryFunc: func(browser.LaunchOptions) *mocks.FakePage {
			p := mocks.NewFakePage("primary")
			p.OnNavigate = func(string) string { return "https://accounts.google.com/ServiceLogin" }
			return p
		},
	}
	resetForTest(t, launcher)

	_, _, err := run(t, "--config", writeConfig(t, fastConfig), "--profile", filepath.Join(t.TempDir(), "p"), "signin", "--check")
	assert.Equal(t, schemas.KindAuthenticationRequired, schemas.KindOf(err))
	require.Len(t, launcher.Launches(), 1)
	assert.True(t, launcher.Launches()[0].Headless)
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	resetForTest(t, appLauncher())
	path := writeConfig(t, "generation:\n  timeout: 0s\n")
	_, _, err := run(t, "--config", path, "generate", "x")
	assert.ErrorContains(t, err, "failed to load or validate config")
}

func TestInitializeConfig_EnvironmentOverride(t *testing.T) {
	resetForTest(t, nil)
	t.Setenv("NANOBANANA_BROWSER_PROFILE_DIR", "/tmp/from-env")
	t.Setenv("NANOBANANA_GENERATION_TIMEOUT", "42s")

	v := viper.New()
	config.SetDefaults(v)
	cfgFile = writeConfig(t, "browser:\n  profile_dir: /tmp/from-file\n")
	require.NoError(t, initializeConfig(&cobra.Command{}, v))

	assert.Equal(t, "/tmp/from-env", v.GetString("browser.profile_dir"))
	assert.Equal(t, 42*time.Second, v.GetDuration("generation.timeout"))
}

func TestPrintError_IncludesHint(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, &schemas.AuthenticationRequiredError{Reason: "interactive sign-in is disabled"})
	assert.Contains(t, buf.String(), "Error: ")
	assert.Contains(t, buf.String(), "Hint: run `nano-banana signin`")
}
