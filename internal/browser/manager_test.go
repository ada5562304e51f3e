// internal/browser/manager_test.go
package browser_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
	"github.com/hffmnnj/nano-banana-cli/internal/browser"
	"github.com/hffmnnj/nano-banana-cli/internal/config"
	"github.com/hffmnnj/nano-banana-cli/internal/mocks"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newManager(t *testing.T, launcher browser.Launcher) (*browser.Manager, *browser.Scope) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	scope := browser.NewScope(logger)
	cfg := config.BrowserConfig{ProfileDir: "/profiles/default", RelaunchPause: 5 * time.Millisecond}
	return browser.NewManager(launcher, cfg, scope, logger), scope
}

func TestManager_Launch(t *testing.T) {
	launcher := &mocks.FakeLauncher{}
	m, scope := newManager(t, launcher)

	sess, err := m.Launch(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, sess.Headless())
	assert.Equal(t, "/profiles/default", sess.ProfileDir())
	assert.Equal(t, 1, scope.Live())
	assert.Same(t, sess, m.Current())

	_, err = m.Launch(context.Background(), true)
	assert.Error(t, err, "a second live session on one profile is refused")
}

func TestManager_LaunchFailureIsClassified(t *testing.T) {
	launcher := &mocks.FakeLauncher{LaunchErr: errors.New("exec: \"google-chrome\": executable file not found")}
	m, scope := newManager(t, launcher)

	_, err := m.Launch(context.Background(), true)
	require.Error(t, err)
	assert.Equal(t, schemas.KindBrowserLaunchFailure, schemas.KindOf(err))
	assert.Contains(t, err.Error(), "/profiles/default")
	assert.Zero(t, scope.Live())
	assert.Nil(t, m.Current())
}

func TestManager_Relaunch(t *testing.T) {
	launcher := &mocks.FakeLauncher{}
	m, scope := newManager(t, launcher)

	first, err := m.Launch(context.Background(), true)
	require.NoError(t, err)

	second, err := m.Relaunch(context.Background(), false, "https://app.example/resume")
	require.NoError(t, err)

	sessions := launcher.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, 1, sessions[0].Closes(), "the old session is closed before the new launch")
	assert.NotEqual(t, first.ID(), second.ID())
	assert.False(t, second.Headless())
	assert.Equal(t, first.ProfileDir(), second.ProfileDir(), "relaunch reuses the profile")
	assert.Equal(t, 1, scope.Live())

	url, err := second.Primary().CurrentURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://app.example/resume", url)
}

func TestManager_CloseIsIdempotent(t *testing.T) {
	launcher := &mocks.FakeLauncher{}
	m, scope := newManager(t, launcher)

	sess, err := m.Launch(context.Background(), true)
	require.NoError(t, err)
	launcher.Sessions()[0].CloseErr = errors.New("browser already gone")

	m.Close(context.Background(), sess)
	m.Close(context.Background(), sess)
	m.Close(context.Background(), nil)

	assert.Zero(t, scope.Live())
	assert.Nil(t, m.Current())
}

func TestScope_ShutdownAll(t *testing.T) {
	logger := zaptest.NewLogger(t)
	scope := browser.NewScope(logger)
	ctx := context.Background()

	healthy := mocks.NewFakeSession("healthy", "/p1", true, mocks.NewFakePage("a"))
	failing := mocks.NewFakeSession("failing", "/p2", true, mocks.NewFakePage("b"))
	failing.CloseErr = errors.New("close failed")
	slow := new(mocks.MockSession)
	slow.On("ID").Return("slow")
	slow.On("Close", mock.Anything).Run(func(mock.Arguments) { time.Sleep(20 * time.Millisecond) }).Return(nil).Once()

	require.NoError(t, scope.Register(ctx, healthy))
	require.NoError(t, scope.Register(ctx, failing))
	require.NoError(t, scope.Register(ctx, slow))

	err := scope.ShutdownAll(ctx)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failing"))
	assert.Equal(t, 1, healthy.Closes(), "one failing close does not stop the others")
	assert.Equal(t, 1, failing.Closes())
	slow.AssertExpectations(t)
	assert.Zero(t, scope.Live())

	// A second shutdown is a no-op that reports the same outcome.
	assert.Equal(t, err, scope.ShutdownAll(ctx))
	assert.Equal(t, 1, healthy.Closes())
	slow.AssertNumberOfCalls(t, "Close", 1)
}

func TestScope_RegisterAfterShutdown(t *testing.T) {
	scope := browser.NewScope(zaptest.NewLogger(t))
	require.NoError(t, scope.ShutdownAll(context.Background()))

	late := mocks.NewFakeSession("late", "/p", true, mocks.NewFakePage("a"))
	err := scope.Register(context.Background(), late)
	assert.ErrorIs(t, err, browser.ErrScopeClosed)
	assert.Equal(t, 1, late.Closes(), "a late session is closed instead of leaking")
}

func TestScope_ConcurrentShutdown(t *testing.T) {
	scope := browser.NewScope(zaptest.NewLogger(t))
	sess := mocks.NewFakeSession("s", "/p", true, mocks.NewFakePage("a"))
	require.NoError(t, scope.Register(context.Background(), sess))

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			_ = scope.ShutdownAll(context.Background())
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	assert.Equal(t, 1, sess.Closes())
}

func TestScope_ConcurrentShutdownWaitsForFirst(t *testing.T) {
	scope := browser.NewScope(zaptest.NewLogger(t))
	entered := make(chan struct{})
	unblock := make(chan struct{})
	sess := &mocks.MockSession{}
	sess.On("ID").Return("slow")
	sess.On("Close", mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-unblock
	}).Return(errors.New("stuck renderer")).Once()
	require.NoError(t, scope.Register(context.Background(), sess))

	first := make(chan error, 1)
	go func() { first <- scope.ShutdownAll(context.Background()) }()
	<-entered

	second := make(chan error, 1)
	go func() { second <- scope.ShutdownAll(context.Background()) }()

	select {
	case <-second:
		t.Fatal("a concurrent ShutdownAll returned before the first finished")
	case <-time.After(30 * time.Millisecond):
	}

	close(unblock)
	errFirst := <-first
	errSecond := <-second
	require.Error(t, errFirst)
	assert.Equal(t, errFirst, errSecond)
	sess.AssertNumberOfCalls(t, "Close", 1)
}
