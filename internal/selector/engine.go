// internal/selector/engine.go
package selector

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
	"github.com/hffmnnj/nano-banana-cli/internal/config"
)

// minQueryInterval bounds how often a single strategy re-queries the page.
const minQueryInterval = 50 * time.Millisecond

// Engine resolves logical targets to concrete elements by walking their
// strategies in order. Failures of an individual strategy are never raised;
// they fall through to the next one.
type Engine struct {
	strategyTimeout time.Duration
	queryInterval   time.Duration
	logger          *zap.Logger
}

// NewEngine creates an Engine with the per-strategy timeout from cfg.
func NewEngine(cfg config.GenerationConfig, logger *zap.Logger) *Engine {
	interval := cfg.StrategyTimeout / 8
	if interval < minQueryInterval {
		interval = minQueryInterval
	}
	return &Engine{
		strategyTimeout: cfg.StrategyTimeout,
		queryInterval:   interval,
		logger:          logger.Named("selector"),
	}
}

// StrategyTimeout is the bound applied to each strategy.
func (e *Engine) StrategyTimeout() time.Duration { return e.strategyTimeout }

// ResolveVisible returns the first visible element found by target's strategies,
// tried in declared order, each bounded by the per-strategy timeout. A positive
// timeout additionally bounds the whole resolution. When every strategy is
// exhausted it returns a *schemas.SelectorNotFoundError.
func (e *Engine) ResolveVisible(ctx context.Context, scope schemas.Page, target Target, timeout time.Duration) (schemas.ElementHandle, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	h := e.firstMatch(ctx, scope, target, e.strategyTimeout, func(ctx context.Context, h schemas.ElementHandle) bool {
		visible, err := scope.IsVisible(ctx, h)
		return err == nil && visible
	})
	if h == nil {
		if ctx.Err() != nil && ctx.Err() != context.DeadlineExceeded {
			// The caller gave up; report that instead of a missing element.
			return nil, ctx.Err()
		}
		return nil, schemas.NewSelectorNotFoundError(target.String())
	}
	return h, nil
}

// ClickFirstVisible clicks the first visible, enabled element found by target's
// strategies. The click itself is bounded by clickTimeout. It reports success
// instead of raising, so callers can compose it into best-effort steps.
func (e *Engine) ClickFirstVisible(ctx context.Context, scope schemas.Page, target Target, clickTimeout time.Duration) bool {
	h := e.firstMatch(ctx, scope, target, e.strategyTimeout, func(ctx context.Context, h schemas.ElementHandle) bool {
		return e.clickable(ctx, scope, h)
	})
	if h == nil {
		return false
	}
	if err := e.Click(ctx, scope, h, clickTimeout); err != nil {
		e.logger.Debug("Click failed.", zap.String("target", target.Name), zap.Error(err))
		return false
	}
	return true
}

// Probe makes a single, non-waiting pass over target's strategies and returns
// the first visible element, if any.
func (e *Engine) Probe(ctx context.Context, scope schemas.Page, target Target) (schemas.ElementHandle, bool) {
	h := e.firstMatch(ctx, scope, target, 0, func(ctx context.Context, h schemas.ElementHandle) bool {
		visible, err := scope.IsVisible(ctx, h)
		return err == nil && visible
	})
	return h, h != nil
}

// Click performs a pointer click bounded by timeout, falling back to a DOM-level
// click when the pointer click fails (typically an overlay intercepting it).
func (e *Engine) Click(ctx context.Context, scope schemas.Page, h schemas.ElementHandle, timeout time.Duration) error {
	clickCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := scope.Click(clickCtx, h)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	e.logger.Debug("Pointer click failed, falling back to DOM click.",
		zap.String("element", h.Description()), zap.Error(err))

	domCtx, domCancel := context.WithTimeout(ctx, timeout)
	defer domCancel()
	return scope.ClickDOM(domCtx, h)
}

func (e *Engine) clickable(ctx context.Context, scope schemas.Page, h schemas.ElementHandle) bool {
	visible, err := scope.IsVisible(ctx, h)
	if err != nil || !visible {
		return false
	}
	disabled, err := scope.IsDisabled(ctx, h)
	return err == nil && !disabled
}

// firstMatch walks strategies in order. Each strategy is re-queried until one of
// its candidates satisfies accept or its own timeout elapses; a zero timeout
// means a single query per strategy.
func (e *Engine) firstMatch(
	ctx context.Context,
	scope schemas.Page,
	target Target,
	perStrategy time.Duration,
	accept func(context.Context, schemas.ElementHandle) bool,
) schemas.ElementHandle {
	log := e.logger.With(zap.String("target", target.Name), zap.String("page_id", scope.ID()))

	for i, strategy := range target.Strategies {
		if ctx.Err() != nil {
			return nil
		}
		if h := e.tryStrategy(ctx, scope, strategy, perStrategy, accept, log); h != nil {
			if i > 0 {
				log.Debug("Resolved through fallback strategy.", zap.Int("position", i), zap.String("strategy", strategy.Description))
			}
			return h
		}
	}
	log.Debug("All strategies exhausted.", zap.Int("strategies", len(target.Strategies)))
	return nil
}

func (e *Engine) tryStrategy(
	ctx context.Context,
	scope schemas.Page,
	strategy Strategy,
	timeout time.Duration,
	accept func(context.Context, schemas.ElementHandle) bool,
	log *zap.Logger,
) schemas.ElementHandle {
	sctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for {
		candidates, err := strategy.Resolve(sctx, scope)
		if err != nil {
			log.Debug("Strategy query failed.", zap.String("strategy", strategy.Description), zap.Error(err))
		}
		for _, h := range candidates {
			if accept(sctx, h) {
				return h
			}
		}

		if timeout <= 0 {
			return nil
		}
		select {
		case <-sctx.Done():
			return nil
		case <-time.After(e.queryInterval):
		}
	}
}
