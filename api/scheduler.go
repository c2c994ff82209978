/*
scheduler.go - Automated period-end rollover scheduler

PURPOSE:
  Periodically checks for active budgets whose fiscal period has ended and
  rolls them into the following period automatically.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Detects (company, period) groups where the current date is past the
    period end
  - Skips groups whose target period already has budgets
  - Carries amounts unchanged unless an adjustment factor is configured

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Factor: Adjustment applied to rolled amounts (default: carry as-is)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRolloverScheduler(store, rollover, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerRollover endpoint (manual rollover)
  - budget/rollover.go: Rollover mechanics
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/crane/fiscal-engine/budget"
	"github.com/crane/fiscal-engine/engine"
	"github.com/crane/fiscal-engine/fiscal"
)

// RolloverScheduler rolls ended fiscal periods forward on a timer.
type RolloverScheduler struct {
	Budgets       budget.Store
	Rollover      *budget.Rollover
	Log           *zap.Logger
	CheckInterval time.Duration
	Factor        decimal.Decimal // zero carries amounts unchanged
	Enabled       bool

	Now func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRolloverScheduler creates a new scheduler.
func NewRolloverScheduler(budgets budget.Store, rollover *budget.Rollover, log *zap.Logger) *RolloverScheduler {
	return &RolloverScheduler{
		Budgets:       budgets,
		Rollover:      rollover,
		Log:           log,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Now:           time.Now,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (rs *RolloverScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Log.Info("Rollover scheduler disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run()

	rs.Log.Info("Rollover scheduler started", zap.Duration("interval", rs.CheckInterval))
}

// Stop stops the scheduler.
func (rs *RolloverScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.Log.Info("Rollover scheduler stopped")
	}
}

func (rs *RolloverScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.checkAndProcess()

	for {
		select {
		case <-rs.ticker.C:
			rs.checkAndProcess()
		case <-rs.stop:
			return
		}
	}
}

// rolloverGroup is one (company, period) batch due for rollover.
type rolloverGroup struct {
	companyID engine.CompanyID
	fiscal    fiscal.Key
}

func (rs *RolloverScheduler) checkAndProcess() {
	ctx := context.Background()
	now := rs.Now()

	budgets, err := rs.Budgets.Budgets(ctx, budget.Filter{ActiveOnly: true})
	if err != nil {
		rs.Log.Error("Rollover scheduler failed to list budgets", zap.Error(err))
		return
	}

	// Collect distinct (company, period) pairs whose period has ended.
	seen := map[rolloverGroup]bool{}
	var due []rolloverGroup
	for _, b := range budgets {
		g := rolloverGroup{companyID: b.CompanyID, fiscal: b.Fiscal}
		if seen[g] {
			continue
		}
		seen[g] = true

		period, err := fiscal.Resolve(b.Fiscal)
		if err != nil {
			rs.Log.Warn("Rollover scheduler skipping unparseable period",
				zap.String("budget_id", string(b.ID)),
				zap.String("fiscal_period", string(b.Fiscal)))
			continue
		}
		if now.After(period.End) {
			due = append(due, g)
		}
	}

	processed := 0
	skipped := 0
	for _, g := range due {
		target, err := fiscal.Next(g.fiscal)
		if err != nil {
			continue
		}

		result, err := rs.Rollover.Run(ctx, g.companyID, g.fiscal, target, rs.Factor)
		switch {
		case engine.IsConflict(err):
			// Target period already has budgets; rolled earlier or by hand.
			skipped++
		case err != nil:
			rs.Log.Error("Rollover scheduler failed",
				zap.String("company_id", string(g.companyID)),
				zap.String("source_period", string(g.fiscal)),
				zap.String("target_period", string(target)),
				zap.Error(err))
		default:
			processed++
			rs.Log.Info("Rolled budgets forward",
				zap.String("company_id", string(g.companyID)),
				zap.String("source_period", string(g.fiscal)),
				zap.String("target_period", string(target)),
				zap.Int("created", result.CreatedCount))
		}
	}

	if processed > 0 || skipped > 0 {
		rs.Log.Info("Rollover scheduler pass completed",
			zap.Int("processed", processed),
			zap.Int("skipped", skipped))
	}
}

// RunNow triggers an immediate check (for testing/admin).
func (rs *RolloverScheduler) RunNow() {
	rs.checkAndProcess()
}
