// internal/auth/detector.go
package auth

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
	"github.com/hffmnnj/nano-banana-cli/internal/config"
	"github.com/hffmnnj/nano-banana-cli/internal/selector"
)

// State is the outcome of classifying a page.
type State int

const (
	Authenticated State = iota
	AuthRequired
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case AuthRequired:
		return "auth-required"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Detector decides whether a page is behind the sign-in wall.
type Detector struct {
	signIn  []*regexp.Regexp
	app     []*regexp.Regexp
	engine  *selector.Engine
	signals selector.Target
	logger  *zap.Logger
}

// NewDetector compiles the address patterns from cfg.
func NewDetector(cfg config.TargetConfig, engine *selector.Engine, registry *selector.Registry, logger *zap.Logger) (*Detector, error) {
	signIn, err := compileAll(cfg.SignInPatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid target.sign_in_patterns: %w", err)
	}
	app, err := compileAll(cfg.AppPatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid target.app_patterns: %w", err)
	}
	return &Detector{
		signIn:  signIn,
		app:     app,
		engine:  engine,
		signals: registry.Target(selector.SignInSignal),
		logger:  logger.Named("auth"),
	}, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Classify applies three rules in order: a sign-in address means AuthRequired;
// an application address means Authenticated; otherwise a visible sign-in form
// signal means AuthRequired. A fault while probing classifies as Authenticated,
// since the workflow re-verifies by waiting for app elements anyway.
func (d *Detector) Classify(ctx context.Context, page schemas.Page) State {
	log := d.logger.With(zap.String("page_id", page.ID()))

	url, err := page.CurrentURL(ctx)
	if err != nil {
		log.Debug("Could not read the page address; assuming authenticated.", zap.Error(err))
		return Authenticated
	}

	if d.IsSignInURL(url) {
		log.Debug("Sign-in address detected.", zap.String("url", url))
		return AuthRequired
	}
	if d.IsAppURL(url) {
		return Authenticated
	}

	if h, ok := d.engine.Probe(ctx, page, d.signals); ok {
		log.Debug("Sign-in form signal visible.", zap.String("url", url), zap.String("element", h.Description()))
		return AuthRequired
	}
	return Authenticated
}

// IsSignInURL reports whether url belongs to the account provider.
func (d *Detector) IsSignInURL(url string) bool { return matchAny(d.signIn, url) }

// IsAppURL reports whether url is the application's main address.
func (d *Detector) IsAppURL(url string) bool { return matchAny(d.app, url) }

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
