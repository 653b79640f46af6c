package models

import "time"

// WalletBalanceSnapshot records the on-chain balance observed for a wallet
// at one accrual run, plus the tier derived from it. One row per
// (wallet, dateKey); kept for audit and to detect tier transitions.
type WalletBalanceSnapshot struct {
	ID            int64     `json:"id" db:"id"`
	Wallet        string    `json:"wallet" db:"wallet"`
	DateKey       string    `json:"date_key" db:"date_key"`
	WeekKey       string    `json:"week_key" db:"week_key"`
	BalanceAtomic int64     `json:"balance_atomic" db:"balance_atomic"`
	Tier          int       `json:"tier" db:"tier"`
	UserID        string    `json:"user_id" db:"user_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// User is the read-only collaborator row consulted for wallet linkage and
// reward eligibility. Account management itself is out of scope.
type User struct {
	ID                 string `json:"id" db:"id"`
	WalletAddress      string `json:"wallet_address" db:"wallet_address"`
	SubscriptionStatus string `json:"subscription_status" db:"subscription_status"`
	Role               string `json:"role" db:"role"`
}

// Subscription statuses considered "in good standing".
const SubscriptionActive = "ACTIVE"

// Notification is the fire-and-forget sink row for winner announcements.
type Notification struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Subject   string    `json:"subject" db:"subject"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
