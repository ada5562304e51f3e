// internal/browser/chrome.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
	"github.com/hffmnnj/nano-banana-cli/internal/browser/stealth"
	"github.com/hffmnnj/nano-banana-cli/internal/config"
)

// pageStartTimeout bounds opening a new tab in a running browser.
const pageStartTimeout = 30 * time.Second

// ChromeLauncher launches Chrome/Chromium through chromedp.
type ChromeLauncher struct {
	cfg        config.BrowserConfig
	navTimeout time.Duration
	persona    schemas.Persona
	logger     *zap.Logger
}

var _ Launcher = (*ChromeLauncher)(nil)

// NewChromeLauncher creates a launcher for the given browser and target settings.
func NewChromeLauncher(cfg config.BrowserConfig, target config.TargetConfig, logger *zap.Logger) *ChromeLauncher {
	return &ChromeLauncher{
		cfg:        cfg,
		navTimeout: target.NavTimeout,
		persona:    PersonaFor(cfg),
		logger:     logger.Named("chrome"),
	}
}

// Launch starts a browser process bound to opts.ProfileDir. The browser outlives
// ctx; only Close ends it.
func (l *ChromeLauncher) Launch(ctx context.Context, opts LaunchOptions) (schemas.Session, error) {
	if err := os.MkdirAll(opts.ProfileDir, 0o700); err != nil {
		return nil, &schemas.BrowserLaunchFailureError{ProfileDir: opts.ProfileDir, Err: err}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), AllocatorOptions(l.cfg, opts)...)
	sugar := l.logger.Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	timeout := l.cfg.LaunchTimeout
	if timeout <= 0 {
		timeout = pageStartTimeout
	}
	// The first Run starts the process; it must not carry a deadline or the
	// browser would be killed when the deadline passes.
	if err := startTarget(ctx, browserCtx, timeout, stealth.Apply(l.persona, l.logger)); err != nil {
		browserCancel()
		allocCancel()
		return nil, &schemas.BrowserLaunchFailureError{ProfileDir: opts.ProfileDir, Err: err}
	}

	s := &chromeSession{
		id:            uuid.NewString(),
		profileDir:    opts.ProfileDir,
		headless:      opts.Headless,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		launcher:      l,
		pages:         make(map[string]*chromePage),
		downloads:     semaphore.NewWeighted(1),
	}
	s.logger = l.logger.With(zap.String("session_id", s.id))
	s.primary = s.adopt(browserCtx, browserCancel, true)

	s.logger.Info("Browser launched.", zap.Bool("headless", opts.Headless), zap.String("profile_dir", opts.ProfileDir))
	return s, nil
}

// startTarget runs tasks as the first action on target without binding the
// target's lifetime to ctx.
func startTarget(ctx, target context.Context, timeout time.Duration, tasks chromedp.Tasks) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(target, tasks) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("browser did not start within %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// chromeSession is one browser process with its pages.
type chromeSession struct {
	id         string
	profileDir string
	headless   bool

	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	launcher      *ChromeLauncher
	logger        *zap.Logger

	primary *chromePage

	mu     sync.Mutex
	pages  map[string]*chromePage
	closed bool

	// downloads admits one download route at a time; routing is browser-wide.
	downloads *semaphore.Weighted

	closeOnce sync.Once
	closeErr  error
}

var _ schemas.Session = (*chromeSession)(nil)

func (s *chromeSession) ID() string { return s.id }
func (s *chromeSession) ProfileDir() string { return s.profileDir }
func (s *chromeSession) Headless() bool { return s.headless }
func (s *chromeSession) Primary() schemas.Page { return s.primary }

// NewPage opens a new tab in the same browser, sharing its cookies and storage.
func (s *chromeSession) NewPage(ctx context.Context) (schemas.Page, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, errors.New("browser session is closed")
	}

	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx)
	if err := startTarget(ctx, tabCtx, pageStartTimeout, stealth.Apply(s.launcher.persona, s.logger)); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	p := s.adopt(tabCtx, tabCancel, false)
	s.logger.Debug("Page opened.", zap.String("page_id", p.id))
	return p, nil
}

func (s *chromeSession) adopt(ctx context.Context, cancel context.CancelFunc, primary bool) *chromePage {
	id := uuid.NewString()
	if c := chromedp.FromContext(ctx); c != nil && c.Target != nil {
		id = c.Target.TargetID.String()
	}
	p := &chromePage{
		id:         id,
		session:    s,
		ctx:        ctx,
		cancel:     cancel,
		primary:    primary,
		navTimeout: s.launcher.navTimeout,
		logger:     s.logger.With(zap.String("page_id", id)),
	}
	s.mu.Lock()
	s.pages[id] = p
	s.mu.Unlock()
	return p
}

func (s *chromeSession) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pages, id)
}

// Close shuts the browser down gracefully, then waits for the process to exit.
// Only the first call does any work.
func (s *chromeSession) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		done := make(chan error, 1)
		go func() {
			err := chromedp.Cancel(s.browserCtx)
			s.allocCancel()
			done <- err
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.closeErr = fmt.Errorf("failed to close browser: %w", err)
			}
		case <-ctx.Done():
			// Force the process down; the allocator kills it on cancel.
			s.browserCancel()
			s.allocCancel()
			s.closeErr = fmt.Errorf("timed out closing browser: %w", ctx.Err())
		}
		s.logger.Info("Browser closed.")
	})
	return s.closeErr
}
