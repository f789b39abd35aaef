package seeder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	StrategySettle   = "settle"
	StrategySelector = "selector"
)

// ErrTransientAutomation marks failures of the browser sequence itself
// (navigation timeout, missing selector). Retrying the run may succeed.
var ErrTransientAutomation = errors.New("transient automation error")

// LoginDetector decides when the submitted login has landed. Wait is run as
// a chromedp action right after the submit click.
type LoginDetector interface {
	Name() string
	Wait(ctx context.Context) error
}

// NewDetector builds the detector named by cfg.Strategy.
func NewDetector(cfg Config) (LoginDetector, error) {
	switch cfg.Strategy {
	case StrategySettle, "":
		return &settleDetector{quiet: cfg.SettleQuiet, interval: 250 * time.Millisecond, probe: evaluatePage}, nil
	case StrategySelector:
		return &selectorDetector{selector: cfg.SuccessSelector}, nil
	}
	return nil, fmt.Errorf("unknown login strategy %q", cfg.Strategy)
}

type selectorDetector struct {
	selector string
}

func (d *selectorDetector) Name() string { return StrategySelector }

func (d *selectorDetector) Wait(ctx context.Context) error {
	return chromedp.WaitVisible(d.selector, chromedp.ByQuery).Do(ctx)
}

// pageState is what the settle heuristic samples on every tick.
type pageState struct {
	Ready     string `json:"ready"`
	Resources int    `json:"resources"`
}

const pageStateJS = `({ready: document.readyState, resources: performance.getEntriesByType("resource").length})`

func evaluatePage(ctx context.Context) (pageState, error) {
	var st pageState
	err := chromedp.Evaluate(pageStateJS, &st).Do(ctx)
	return st, err
}

// settleDetector waits until the document is complete and no new resource
// has been fetched for the quiet period. It cannot tell a rejected login
// from an accepted one.
type settleDetector struct {
	quiet    time.Duration
	interval time.Duration
	probe    func(ctx context.Context) (pageState, error)
}

func (d *settleDetector) Name() string { return StrategySettle }

func (d *settleDetector) Wait(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	var (
		last      = -1
		stableFor time.Duration
		lastErr   error
	)
	for {
		st, err := d.probe(ctx)
		switch {
		case err != nil:
			// Navigation in flight destroys the execution context; keep polling.
			lastErr = err
			stableFor = 0
		case st.Ready == "complete" && st.Resources == last:
			stableFor += d.interval
		default:
			stableFor = 0
		}
		if err == nil {
			last = st.Resources
		}
		if err == nil && st.Ready == "complete" && stableFor >= d.quiet {
			return nil
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("page did not settle: %w (last probe error: %v)", ctx.Err(), lastErr)
			}
			return fmt.Errorf("page did not settle: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
