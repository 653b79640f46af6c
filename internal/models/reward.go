package models

import "time"

// Reward pool ref types. The taxonomy is fixed; a RewardEvent's RefID is
// "{weekKey}:{userId}:{refType}".
const (
	PoolWeeklyScore  = "weekly_score"
	PoolAllTimeScore = "alltime_score"
	PoolVoter        = "voter"
	PoolMVM          = "mvm"
	PoolComments     = "comments"
)

// Reward event statuses.
const (
	RewardPending = "PENDING"
	RewardPaid    = "PAID"
	RewardClaimed = "CLAIMED"
)

// RewardBatch commits one week's distribution: created exactly once per
// weekKey (uniqueness constraint), immutable afterwards.
type RewardBatch struct {
	ID          string    `json:"id" db:"id"`
	WeekKey     string    `json:"week_key" db:"week_key"`
	WeekIndex   int       `json:"week_index" db:"week_index"`
	MerkleRoot  string    `json:"merkle_root" db:"merkle_root"`
	TotalAmount int64     `json:"total_amount" db:"total_amount"`
	TotalUsers  int       `json:"total_users" db:"total_users"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// RewardEvent is one user's contribution from one pool. Merkle index and
// proof are assigned per aggregated user, so multiple events for the same
// user share them. Proof is a comma-joined list of hex sibling hashes.
type RewardEvent struct {
	ID          int64     `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Type        string    `json:"type" db:"type"`
	Amount      int64     `json:"amount" db:"amount"`
	Status      string    `json:"status" db:"status"`
	WeekKey     string    `json:"week_key" db:"week_key"`
	RefType     string    `json:"ref_type" db:"ref_type"`
	RefID       string    `json:"ref_id" db:"ref_id"`
	MerkleIndex int       `json:"merkle_index" db:"merkle_index"`
	MerkleProof string    `json:"merkle_proof" db:"merkle_proof"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// WeeklyUserStat accumulates per-week score received and quality comments,
// written best-effort by the vote engine and read by the distributor.
type WeeklyUserStat struct {
	WeekKey         string `json:"week_key" db:"week_key"`
	UserID          string `json:"user_id" db:"user_id"`
	ScoreReceived   int    `json:"score_received" db:"score_received"`
	QualityComments int    `json:"quality_comments" db:"quality_comments"`
}

// WeeklyVoterStat counts votes cast, feeding the voter-participation pool.
type WeeklyVoterStat struct {
	WeekKey   string `json:"week_key" db:"week_key"`
	UserID    string `json:"user_id" db:"user_id"`
	VotesCast int    `json:"votes_cast" db:"votes_cast"`
}

// AllTimeUserStat is the lifetime score-received counter.
type AllTimeUserStat struct {
	UserID        string `json:"user_id" db:"user_id"`
	ScoreReceived int    `json:"score_received" db:"score_received"`
}

// MonthlyUserStat carries most-valued-member points per month.
type MonthlyUserStat struct {
	MonthKey  string `json:"month_key" db:"month_key"`
	UserID    string `json:"user_id" db:"user_id"`
	MVMPoints int    `json:"mvm_points" db:"mvm_points"`
}
