package application

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tokengate/tokengate/platform"
	"github.com/tokengate/tokengate/verification/domain"
)

// SweepStats summarizes one reconciliation pass.
type SweepStats struct {
	Checked int
	Valid   int
	Expired int
	Failed  int
}

// ReverifyResult is the outcome of an on-demand re-check of one user.
type ReverifyResult struct {
	Verified []string `json:"verified"` // role ids still valid
	Revoked  []string `json:"revoked"`  // role ids removed
	Errors   []string `json:"errors"`
}

// Reconciler periodically re-evaluates every active ledger row against fresh
// holdings and revokes roles that no longer qualify. It runs as its own
// goroutine so the sweep never blocks interactive verification.
type Reconciler struct {
	ledger     domain.AssignmentLedger
	rules      domain.RuleRepository
	assets     platform.AssetSource
	roles      platform.RoleMutator
	interval   time.Duration
	pageSize   int
	rowTimeout time.Duration
	now        func() time.Time
}

func NewReconciler(
	ledger domain.AssignmentLedger,
	rules domain.RuleRepository,
	assets platform.AssetSource,
	roles platform.RoleMutator,
	interval time.Duration,
	pageSize int,
	rowTimeout time.Duration,
) *Reconciler {
	return &Reconciler{
		ledger:     ledger,
		rules:      rules,
		assets:     assets,
		roles:      roles,
		interval:   interval,
		pageSize:   pageSize,
		rowTimeout: rowTimeout,
		now:        time.Now,
	}
}

// Start launches the periodic sweep loop. It returns immediately; the loop
// stops when ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	go r.runLoop(ctx)
}

func (r *Reconciler) runLoop(ctx context.Context) {
	logrus.Infof("[RECONCILER] sweep loop started, interval %s", r.interval)

	// First pass right away so a long-stopped instance catches up.
	r.Sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("[RECONCILER] sweep loop stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep pages through active rows oldest-checked first and re-verifies each
// one. A failing row is logged and skipped; it is retried on the next
// scheduled run, never inline.
func (r *Reconciler) Sweep(ctx context.Context) SweepStats {
	var stats SweepStats
	cutoff := r.now().UTC()

	// Failed rows keep their old last_checked and stay in the result set, so
	// the offset advances past them; touched/expired rows drop out on their
	// own. This bounds each row to one check per sweep.
	offset := 0
	for {
		rows, err := r.ledger.ListActiveCheckedBefore(ctx, cutoff, r.pageSize, offset)
		if err != nil {
			logrus.WithError(err).Error("[RECONCILER] listing active assignments failed, aborting sweep")
			return stats
		}

		for _, row := range rows {
			stats.Checked++
			switch r.checkRow(ctx, row) {
			case rowValid:
				stats.Valid++
			case rowExpired:
				stats.Expired++
			case rowFailed:
				stats.Failed++
				offset++
			}

			if ctx.Err() != nil {
				return stats
			}
		}

		if len(rows) < r.pageSize {
			break
		}
	}

	logrus.Infof("[RECONCILER] sweep done: checked=%d valid=%d expired=%d failed=%d",
		stats.Checked, stats.Valid, stats.Expired, stats.Failed)
	return stats
}

type rowOutcome int

const (
	rowValid rowOutcome = iota
	rowExpired
	rowFailed
)

// checkRow re-verifies one ledger row under its own timeout so a stalled
// external call cannot stall the whole sweep.
func (r *Reconciler) checkRow(ctx context.Context, row *domain.RoleAssignment) rowOutcome {
	rowCtx, cancel := context.WithTimeout(ctx, r.rowTimeout)
	defer cancel()

	rule, err := r.rules.GetByID(rowCtx, row.RuleID)
	if err != nil && err != domain.ErrRuleNotFound {
		logrus.WithError(err).Warnf("[RECONCILER] rule lookup failed for assignment %s", row.ID)
		return rowFailed
	}

	stillValid := false
	if rule != nil {
		// A deleted rule means the role has no backing criterion left, so the
		// row is treated as no longer valid and the role removed.
		assets, err := r.assets.GetAssets(rowCtx, row.Address)
		if err != nil {
			logrus.WithError(err).Warnf("[RECONCILER] asset fetch failed for %s, will retry next run", row.Address)
			return rowFailed
		}
		stillValid = rule.MatchesHoldings(assets)
	}

	if stillValid {
		if err := r.ledger.Touch(rowCtx, row.ID, r.now()); err != nil {
			logrus.WithError(err).Warnf("[RECONCILER] touch failed for assignment %s", row.ID)
			return rowFailed
		}
		return rowValid
	}

	if err := r.roles.RevokeRole(rowCtx, row.UserID, row.RoleID, row.ServerID); err != nil {
		// Rate limit or transient failure: leave the row active and retry on
		// the next scheduled run.
		logrus.WithError(err).Warnf("[RECONCILER] revoke of role %s for user %s failed, will retry next run", row.RoleID, row.UserID)
		return rowFailed
	}
	if err := r.ledger.MarkExpired(rowCtx, row.ID); err != nil {
		logrus.WithError(err).Errorf("[RECONCILER] mark expired failed for assignment %s", row.ID)
		return rowFailed
	}

	logrus.Infof("[RECONCILER] assignment %s expired: user %s no longer qualifies for role %s", row.ID, row.UserID, row.RoleID)
	return rowExpired
}

// ReverifyUser re-checks every active assignment of one user in one server,
// on demand. The sweep and this call may race on the same rows; both derive
// validity from the same ground truth, so last writer wins is fine.
func (r *Reconciler) ReverifyUser(ctx context.Context, userID, serverID string) (*ReverifyResult, error) {
	rows, err := r.ledger.ListActiveByUser(ctx, userID, serverID)
	if err != nil {
		return nil, err
	}

	result := &ReverifyResult{
		Verified: []string{},
		Revoked:  []string{},
		Errors:   []string{},
	}
	for _, row := range rows {
		switch r.checkRow(ctx, row) {
		case rowValid:
			result.Verified = append(result.Verified, row.RoleID)
		case rowExpired:
			result.Revoked = append(result.Revoked, row.RoleID)
		case rowFailed:
			result.Errors = append(result.Errors, row.RoleID)
		}
	}
	return result, nil
}
