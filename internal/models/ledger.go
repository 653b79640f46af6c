package models

import (
	"time"
)

// Credit amounts are stored in micro-credits: 1 credit = 1000 micro.
// Token emission amounts carry 6 decimals: 1 token = 1_000_000 micro.
const (
	CreditMicro int64 = 1000
	TokenMicro  int64 = 1_000_000
	TicketMicro int64 = CreditMicro // 1 credit buys 1 ticket
)

// LedgerEntry is an immutable, append-only credit ledger row. The
// (RefType, RefID) pair is the idempotency key: re-delivery of the same
// logical event is a no-op.
type LedgerEntry struct {
	ID          int64     `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	AmountMicro int64     `json:"amount_micro" db:"amount_micro"` // signed
	Reason      string    `json:"reason" db:"reason"`
	RefType     string    `json:"ref_type" db:"ref_type"`
	RefID       string    `json:"ref_id" db:"ref_id"`
	WeekKey     string    `json:"week_key" db:"week_key"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// CreditAccount is the mutable balance row updated transactionally
// alongside the ledger entry that justifies each change. CarryMicro holds
// the fractional accrual remainder between runs.
type CreditAccount struct {
	UserID       string    `json:"user_id" db:"user_id"`
	BalanceMicro int64     `json:"balance_micro" db:"balance_micro"`
	CarryMicro   int64     `json:"carry_micro" db:"carry_micro"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Ledger ref types.
const (
	RefTypeDailyAccrual = "DAILY_ACCRUAL"
	RefTypeVoteCredit   = "VOTE_CREDIT"
	RefTypeLikeReceived = "LIKE_RECEIVED"
	RefTypeRaffleBuy    = "RAFFLE_BUY"
	RefTypeRaffleWin    = "RAFFLE_WIN"
)
