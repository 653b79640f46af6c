package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/SOLdier200/xessex-sub002/internal/middleware"
	"github.com/SOLdier200/xessex-sub002/internal/models"
)

// LedgerService owns the append-only credit ledger and the derived
// per-user balances. Every balance change goes through an entry row,
// and the (ref_type, ref_id) unique constraint makes retries safe.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

// Credit appends a positive entry and applies it to the user's balance
// in a single transaction. Returns ErrAlreadyProcessed when the same
// (refType, refID) has been posted before.
func (s *LedgerService) Credit(ctx context.Context, userID string, amountMicro int64, reason, refType, refID, weekKey string) error {
	if amountMicro <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amountMicro)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.AppendTx(ctx, tx, userID, amountMicro, reason, refType, refID, weekKey); err != nil {
		return err
	}
	if err := s.applyBalanceTx(ctx, tx, userID, amountMicro); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Printf("[LEDGER] credited %d micro to user %s (%s %s)", amountMicro, userID, refType, refID)
	return nil
}

// CreditWithCarry is Credit plus an update of the account's carry
// remainder, used by the accrual engine so the accrual entry and the
// new carry land atomically.
func (s *LedgerService) CreditWithCarry(ctx context.Context, userID string, amountMicro, carryOutMicro int64, reason, refType, refID, weekKey string) error {
	if amountMicro < 0 || carryOutMicro < 0 {
		return fmt.Errorf("accrual amounts must be non-negative, got %d / %d", amountMicro, carryOutMicro)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.AppendTx(ctx, tx, userID, amountMicro, reason, refType, refID, weekKey); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO credit_accounts (user_id, balance_micro, carry_micro, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET balance_micro = credit_accounts.balance_micro + $2,
		    carry_micro = $3,
		    updated_at = NOW()`,
		userID, amountMicro, carryOutMicro)
	if err != nil {
		return fmt.Errorf("failed to apply accrual to account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Debit appends a negative entry after verifying the balance covers it.
// The account row is locked for the duration of the transaction.
func (s *LedgerService) Debit(ctx context.Context, userID string, amountMicro int64, reason, refType, refID, weekKey string) error {
	if amountMicro <= 0 {
		return fmt.Errorf("debit amount must be positive, got %d", amountMicro)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.DebitTx(ctx, tx, userID, amountMicro, reason, refType, refID, weekKey); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Printf("[LEDGER] debited %d micro from user %s (%s %s)", amountMicro, userID, refType, refID)
	return nil
}

// DebitTx performs a balance-checked debit inside an existing transaction,
// so callers can combine the spend with their own writes.
func (s *LedgerService) DebitTx(ctx context.Context, tx *sql.Tx, userID string, amountMicro int64, reason, refType, refID, weekKey string) error {
	var balance int64
	err := tx.QueryRowContext(ctx,
		`SELECT balance_micro FROM credit_accounts WHERE user_id = $1 FOR UPDATE`,
		userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return ErrInsufficientBalance
	}
	if err != nil {
		return fmt.Errorf("failed to lock account: %w", err)
	}
	if balance < amountMicro {
		return ErrInsufficientBalance
	}

	if err := s.AppendTx(ctx, tx, userID, -amountMicro, reason, refType, refID, weekKey); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE credit_accounts
		SET balance_micro = balance_micro - $2, updated_at = NOW()
		WHERE user_id = $1 AND balance_micro >= $2`,
		userID, amountMicro)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// CreditTx appends a positive entry and applies it inside an existing transaction.
func (s *LedgerService) CreditTx(ctx context.Context, tx *sql.Tx, userID string, amountMicro int64, reason, refType, refID, weekKey string) error {
	if amountMicro <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amountMicro)
	}
	if err := s.AppendTx(ctx, tx, userID, amountMicro, reason, refType, refID, weekKey); err != nil {
		return err
	}
	return s.applyBalanceTx(ctx, tx, userID, amountMicro)
}

// AppendTx inserts the ledger entry. ON CONFLICT DO NOTHING plus the
// rows-affected check turns a duplicate reference into ErrAlreadyProcessed
// without aborting the surrounding transaction.
func (s *LedgerService) AppendTx(ctx context.Context, tx *sql.Tx, userID string, amountMicro int64, reason, refType, refID, weekKey string) error {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO credit_ledger (user_id, amount_micro, reason, ref_type, ref_id, week_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (ref_type, ref_id) DO NOTHING`,
		userID, amountMicro, reason, refType, refID, weekKey)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

func (s *LedgerService) applyBalanceTx(ctx context.Context, tx *sql.Tx, userID string, deltaMicro int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_accounts (user_id, balance_micro, carry_micro, updated_at)
		VALUES ($1, $2, 0, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET balance_micro = credit_accounts.balance_micro + $2, updated_at = NOW()`,
		userID, deltaMicro)
	if err != nil {
		return fmt.Errorf("failed to apply balance change: %w", err)
	}
	return nil
}

// Account returns the user's account, creating a zero view when absent.
func (s *LedgerService) Account(ctx context.Context, userID string) (*models.CreditAccount, error) {
	account := &models.CreditAccount{UserID: userID}
	err := s.db.QueryRowContext(ctx,
		`SELECT balance_micro, carry_micro, updated_at FROM credit_accounts WHERE user_id = $1`,
		userID).Scan(&account.BalanceMicro, &account.CarryMicro, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return account, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return account, nil
}

// History returns the most recent ledger entries for a user.
func (s *LedgerService) History(ctx context.Context, userID string, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount_micro, reason, ref_type, ref_id, week_key, created_at
		FROM credit_ledger
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger history: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.AmountMicro, &e.Reason, &e.RefType, &e.RefID, &e.WeekKey, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// HandleHistory returns the authenticated user's recent ledger entries
// together with their current balance.
func (s *LedgerService) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		SendErrorResponse(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.History(r.Context(), userID, limit)
	if err != nil {
		log.Printf("[LEDGER] failed to load history for %s: %v", userID, err)
		SendErrorResponse(w, http.StatusInternalServerError, "Failed to load credit history")
		return
	}
	account, err := s.Account(r.Context(), userID)
	if err != nil {
		log.Printf("[LEDGER] failed to load account for %s: %v", userID, err)
		SendErrorResponse(w, http.StatusInternalServerError, "Failed to load account")
		return
	}

	SendJSONResponse(w, http.StatusOK, map[string]interface{}{
		"balanceMicro": account.BalanceMicro,
		"entries":      entries,
	})
}
