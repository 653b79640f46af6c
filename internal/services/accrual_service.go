package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/jonboulle/clockwork"

	"github.com/SOLdier200/xessex-sub002/internal/models"
	"github.com/SOLdier200/xessex-sub002/internal/rewards"
	"github.com/SOLdier200/xessex-sub002/internal/solana"
)

// AccrualService runs the twice-daily credit accrual: read on-chain
// balances for all linked wallets, snapshot them, and credit each holder
// their half-day slice of the tier's monthly allowance.
type AccrualService struct {
	db        *sql.DB
	ledger    *LedgerService
	balances  solana.BalanceSource
	clock     clockwork.Clock
	tierTable []rewards.Tier
}

func NewAccrualService(db *sql.DB, ledger *LedgerService, balances solana.BalanceSource, clock clockwork.Clock, tierTable []rewards.Tier) *AccrualService {
	if tierTable == nil {
		tierTable = rewards.DefaultTierTable()
	}
	return &AccrualService{db: db, ledger: ledger, balances: balances, clock: clock, tierTable: tierTable}
}

// AccrualRunSummary reports what one run did, for the cron response and logs.
type AccrualRunSummary struct {
	DateKey            string `json:"date_key"`
	Slot               string `json:"slot"`
	WeekKey            string `json:"week_key"`
	Wallets            int    `json:"wallets"`
	Credited           int    `json:"credited"`
	TierZero           int    `json:"tier_zero"`
	NoData             int    `json:"no_data"`
	Duplicate          int    `json:"duplicate"`
	Failed             int    `json:"failed"`
	SnapshotsCreated   int    `json:"snapshots_created"`
	SnapshotsUpdated   int    `json:"snapshots_updated"`
	SnapshotsUnchanged int    `json:"snapshots_unchanged"`
}

// Snapshot outcomes for the run summary.
const (
	snapshotNone = iota
	snapshotCreated
	snapshotUpdated
	snapshotUnchanged
)

type accrualTarget struct {
	userID string
	wallet string
}

// Run executes one accrual slot. A wallet whose balance could not be read
// is skipped entirely, never defaulted to zero, so a flaky RPC cannot
// demote anyone's tier. Re-running the same slot is a no-op per user.
func (s *AccrualService) Run(ctx context.Context) (*AccrualRunSummary, error) {
	now := s.clock.Now()
	summary := &AccrualRunSummary{
		DateKey: rewards.DateKey(now),
		Slot:    rewards.Slot(now),
		WeekKey: rewards.WeekOf(now).WeekKey,
	}

	days, err := rewards.DaysInMonth(summary.DateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve month length: %w", err)
	}

	targets, err := s.loadTargets(ctx)
	if err != nil {
		return nil, err
	}
	summary.Wallets = len(targets)
	if len(targets) == 0 {
		return summary, nil
	}

	wallets := make([]string, 0, len(targets))
	for _, t := range targets {
		wallets = append(wallets, t.wallet)
	}
	balances, err := s.balances.GetBalances(ctx, wallets)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}

	for _, target := range targets {
		balance, ok := balances[target.wallet]
		if !ok {
			summary.NoData++
			continue
		}
		outcome, err := s.accrueOne(ctx, target, balance, summary.DateKey, summary.Slot, summary.WeekKey, days)
		switch outcome {
		case snapshotCreated:
			summary.SnapshotsCreated++
		case snapshotUpdated:
			summary.SnapshotsUpdated++
		case snapshotUnchanged:
			summary.SnapshotsUnchanged++
		}
		switch {
		case errors.Is(err, ErrAlreadyProcessed):
			summary.Duplicate++
		case errors.Is(err, errTierZero):
			summary.TierZero++
		case err != nil:
			summary.Failed++
			log.Printf("[ACCRUAL] wallet %s failed: %v", target.wallet, err)
		default:
			summary.Credited++
		}
	}

	log.Printf("[ACCRUAL] %s %s: %d wallets, %d credited, %d tier-zero, %d no-data, %d duplicate, %d failed, snapshots %d/%d/%d created/updated/unchanged",
		summary.DateKey, summary.Slot, summary.Wallets, summary.Credited, summary.TierZero, summary.NoData, summary.Duplicate, summary.Failed,
		summary.SnapshotsCreated, summary.SnapshotsUpdated, summary.SnapshotsUnchanged)
	return summary, nil
}

var errTierZero = errors.New("balance below minimum tier")

func (s *AccrualService) loadTargets(ctx context.Context) ([]accrualTarget, error) {
	// Every linked wallet accrues; tier gating comes solely from token
	// holdings. Subscription checks apply to reward pools, not accrual.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, wallet_address FROM users
		WHERE wallet_address <> ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accrual targets: %w", err)
	}
	defer rows.Close()

	var targets []accrualTarget
	for rows.Next() {
		var t accrualTarget
		if err := rows.Scan(&t.userID, &t.wallet); err != nil {
			return nil, fmt.Errorf("failed to scan accrual target: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// accrueOne snapshots the balance, then posts the accrual. The snapshot
// and any carry reset commit on their own, so a duplicate accrual key
// cannot roll them back. Tier zero keeps the snapshot, zeroes the carry
// and posts nothing.
func (s *AccrualService) accrueOne(ctx context.Context, target accrualTarget, balanceAtomic int64, dateKey, slot, weekKey string, daysInMonth int) (int, error) {
	tier := rewards.TierForBalance(s.tierTable, balanceAtomic)

	outcome, err := s.snapshotOne(ctx, target, balanceAtomic, tier, dateKey, weekKey)
	if err != nil {
		return outcome, err
	}
	if tier == 0 {
		return outcome, errTierZero
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return outcome, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var carryIn int64
	err = tx.QueryRowContext(ctx,
		`SELECT carry_micro FROM credit_accounts WHERE user_id = $1 FOR UPDATE`,
		target.userID).Scan(&carryIn)
	if err != nil && err != sql.ErrNoRows {
		return outcome, fmt.Errorf("failed to read carry: %w", err)
	}

	accrual, carryOut := rewards.Accrue(rewards.MonthlyCreditsForTier(s.tierTable, tier), carryIn, daysInMonth)

	refID := fmt.Sprintf("%s:%s:%s", target.userID, dateKey, slot)
	if err := s.ledger.AppendTx(ctx, tx, target.userID, accrual, "daily accrual", models.RefTypeDailyAccrual, refID, weekKey); err != nil {
		return outcome, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO credit_accounts (user_id, balance_micro, carry_micro, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET balance_micro = credit_accounts.balance_micro + $2,
		    carry_micro = $3,
		    updated_at = NOW()`,
		target.userID, accrual, carryOut)
	if err != nil {
		return outcome, fmt.Errorf("failed to apply accrual: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return outcome, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return outcome, nil
}

// snapshotOne records today's balance and tier, writing only when
// something changed. Any tier change, up or down, zeroes the stored
// carry in the same transaction so remainders never leak across
// allowance levels.
func (s *AccrualService) snapshotOne(ctx context.Context, target accrualTarget, balanceAtomic int64, tier int, dateKey, weekKey string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return snapshotNone, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Latest known tier; on a rerun this is today's earlier row.
	var prevTier sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		SELECT tier FROM wallet_balance_snapshots
		WHERE wallet = $1 AND date_key <= $2
		ORDER BY date_key DESC, id DESC LIMIT 1`,
		target.wallet, dateKey).Scan(&prevTier)
	if err != nil && err != sql.ErrNoRows {
		return snapshotNone, fmt.Errorf("failed to read previous snapshot: %w", err)
	}

	outcome := snapshotCreated
	var curBalance int64
	var curTier int
	err = tx.QueryRowContext(ctx, `
		SELECT balance_atomic, tier FROM wallet_balance_snapshots
		WHERE wallet = $1 AND date_key = $2`,
		target.wallet, dateKey).Scan(&curBalance, &curTier)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO wallet_balance_snapshots (wallet, date_key, week_key, balance_atomic, tier, user_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`,
			target.wallet, dateKey, weekKey, balanceAtomic, tier, target.userID)
		if err != nil {
			return snapshotNone, fmt.Errorf("failed to insert snapshot: %w", err)
		}
	case err != nil:
		return snapshotNone, fmt.Errorf("failed to read snapshot: %w", err)
	case curBalance == balanceAtomic && curTier == tier:
		outcome = snapshotUnchanged
	default:
		outcome = snapshotUpdated
		_, err = tx.ExecContext(ctx, `
			UPDATE wallet_balance_snapshots
			SET balance_atomic = $3, tier = $4, updated_at = NOW()
			WHERE wallet = $1 AND date_key = $2`,
			target.wallet, dateKey, balanceAtomic, tier)
		if err != nil {
			return snapshotNone, fmt.Errorf("failed to update snapshot: %w", err)
		}
	}

	if tier == 0 || (prevTier.Valid && int(prevTier.Int64) != tier) {
		_, err = tx.ExecContext(ctx,
			`UPDATE credit_accounts SET carry_micro = 0, updated_at = NOW() WHERE user_id = $1`,
			target.userID)
		if err != nil {
			return snapshotNone, fmt.Errorf("failed to zero carry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return snapshotNone, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return outcome, nil
}

// HandleRun serves the accrual cron endpoint.
func (s *AccrualService) HandleRun(w http.ResponseWriter, r *http.Request) {
	summary, err := s.Run(r.Context())
	if errors.Is(err, ErrDataUnavailable) {
		SendErrorResponse(w, http.StatusBadGateway, "Balance source unavailable")
		return
	}
	if err != nil {
		log.Printf("[ACCRUAL] run failed: %v", err)
		SendErrorResponse(w, http.StatusInternalServerError, "Accrual run failed")
		return
	}
	SendJSONResponse(w, http.StatusOK, summary)
}
