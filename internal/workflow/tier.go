// internal/workflow/tier.go
package workflow

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
	"github.com/hffmnnj/nano-banana-cli/internal/browser"
	"github.com/hffmnnj/nano-banana-cli/internal/selector"
)

// EnsureTopTier makes the best configured quality tier active before submission.
// While the active tier is unknown (no indicator, or one showing no configured
// label), missing selection controls are tolerated. A switch that was made but
// not confirmed, or that could not be made away from a known lower tier, is a
// TierSwitchFailureError unless generation.require_top_tier is off, in which
// case it is only reported.
func (w *Workflow) EnsureTopTier(ctx context.Context, a *Attempt) error {
	log := w.log(a)
	want := w.cfg.TopTier()

	indicator, err := w.engine.ResolveVisible(ctx, a.Page, w.registry.Target(selector.TierIndicator), 0)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("Quality tier indicator not found; continuing with the default tier.", zap.Error(err))
		w.advance(a, ModelVerified)
		return nil
	}

	have := w.readTier(ctx, a, indicator)
	if have == want {
		log.Debug("Top quality tier already active.", zap.String("tier", want))
		w.advance(a, ModelVerified)
		return nil
	}

	log.Info("Switching quality tier.", zap.String("from", have), zap.String("to", want))
	if committed, err := w.switchTier(ctx, a, indicator, want); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Close a menu that may have been left open.
		_ = a.Page.PressKey(ctx, "Escape")
		if have == "" && !committed {
			log.Warn("Quality tier unknown and its controls not found; continuing with the default tier.", zap.Error(err))
			w.advance(a, ModelVerified)
			return nil
		}
		return w.tierFailure(a, &schemas.TierSwitchFailureError{Want: want, Have: have, Err: err})
	}

	// The indicator element may be re-rendered by the switch; resolve it again.
	if indicator, err = w.engine.ResolveVisible(ctx, a.Page, w.registry.Target(selector.TierIndicator), 0); err == nil {
		have = w.readTier(ctx, a, indicator)
	} else {
		have = ""
	}
	if have != want {
		return w.tierFailure(a, &schemas.TierSwitchFailureError{Want: want, Have: have})
	}

	log.Info("Quality tier switched.", zap.String("tier", want))
	w.advance(a, ModelVerified)
	return nil
}

// switchTier opens the tier menu and picks want. committed reports whether the
// option was clicked, i.e. whether the page may now be on a different tier.
func (w *Workflow) switchTier(ctx context.Context, a *Attempt, indicator schemas.ElementHandle, want string) (committed bool, err error) {
	if err := w.engine.Click(ctx, a.Page, indicator, w.cfg.ClickTimeout); err != nil {
		return false, err
	}
	if err := browser.Sleep(ctx, w.cfg.TransitionDelay); err != nil {
		return false, err
	}
	option, err := w.engine.ResolveVisible(ctx, a.Page, w.registry.Tier(want), 0)
	if err != nil {
		return false, err
	}
	if err := w.engine.Click(ctx, a.Page, option, w.cfg.ClickTimeout); err != nil {
		return false, err
	}
	return true, browser.Sleep(ctx, w.cfg.TransitionDelay)
}

func (w *Workflow) tierFailure(a *Attempt, err *schemas.TierSwitchFailureError) error {
	if w.cfg.RequireTopTier {
		return err
	}
	w.log(a).Warn("Continuing without the top quality tier.", zap.Error(err))
	w.advance(a, ModelVerified)
	return nil
}

// readTier returns the configured tier label shown by the indicator, or "".
func (w *Workflow) readTier(ctx context.Context, a *Attempt, indicator schemas.ElementHandle) string {
	text, err := a.Page.TextContent(ctx, indicator)
	if err != nil {
		w.log(a).Debug("Could not read the tier indicator.", zap.Error(err))
		return ""
	}
	return MatchTier(text, w.cfg.Tiers)
}

// MatchTier returns the first label in tiers that appears in text as a whole
// word, case-insensitively, or "" when none does.
func MatchTier(text string, tiers []string) string {
	for _, label := range tiers {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(strings.TrimSpace(label)) + `\b`)
		if err != nil {
			continue
		}
		if re.MatchString(text) {
			return label
		}
	}
	return ""
}
