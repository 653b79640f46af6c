package models

import "time"

// Raffle statuses, forward-only: OPEN -> DRAWN.
const (
	RaffleOpen  = "OPEN"
	RaffleDrawn = "DRAWN"
)

// Winner statuses. PENDING -> CLAIMED (user action) or PENDING -> EXPIRED
// (time-based rollover); both terminal.
const (
	WinnerPending = "PENDING"
	WinnerClaimed = "CLAIMED"
	WinnerExpired = "EXPIRED"
)

// Raffle is one row per weekKey. The prize pool at draw time is
// userPool + matchPool + rollover.
type Raffle struct {
	ID                    string     `json:"id" db:"id"`
	WeekKey               string     `json:"week_key" db:"week_key"`
	Status                string     `json:"status" db:"status"`
	UserPoolCreditsMicro  int64      `json:"user_pool_credits_micro" db:"user_pool_credits_micro"`
	MatchPoolCreditsMicro int64      `json:"match_pool_credits_micro" db:"match_pool_credits_micro"`
	RolloverCreditsMicro  int64      `json:"rollover_credits_micro" db:"rollover_credits_micro"`
	OpensAt               time.Time  `json:"opens_at" db:"opens_at"`
	ClosesAt              time.Time  `json:"closes_at" db:"closes_at"`
	DrawnAt               *time.Time `json:"drawn_at,omitempty" db:"drawn_at"`
}

// RaffleTicket aggregates a user's entries in one raffle.
type RaffleTicket struct {
	RaffleID string `json:"raffle_id" db:"raffle_id"`
	UserID   string `json:"user_id" db:"user_id"`
	Quantity int64  `json:"quantity" db:"quantity"`
}

// RaffleWinner holds one drawn place and its claimable prize.
type RaffleWinner struct {
	ID                string     `json:"id" db:"id"`
	RaffleID          string     `json:"raffle_id" db:"raffle_id"`
	UserID            string     `json:"user_id" db:"user_id"`
	Place             int        `json:"place" db:"place"` // 1..3
	PrizeCreditsMicro int64      `json:"prize_credits_micro" db:"prize_credits_micro"`
	Status            string     `json:"status" db:"status"`
	ExpiresAt         time.Time  `json:"expires_at" db:"expires_at"`
	ClaimedAt         *time.Time `json:"claimed_at,omitempty" db:"claimed_at"`
}

// RaffleMatchBudget tracks the weekly 1:1 match cap and how much of it has
// been consumed. CapMicro of zero means uncapped.
type RaffleMatchBudget struct {
	WeekKey      string `json:"week_key" db:"week_key"`
	CapMicro     int64  `json:"cap_micro" db:"cap_micro"`
	MatchedMicro int64  `json:"matched_micro" db:"matched_micro"`
}
