package models

import "time"

// Comment carries only what the vote engine touches: the author (for the
// self-vote check and score-received stats) and the cached counters.
type Comment struct {
	ID             string    `json:"id" db:"id"`
	AuthorID       string    `json:"author_id" db:"author_id"`
	Score          int       `json:"score" db:"score"`
	MemberLikes    int       `json:"member_likes" db:"member_likes"`
	MemberDislikes int       `json:"member_dislikes" db:"member_dislikes"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Vote is one row per (comment, voter). Member and moderator votes live in
// parallel tables with identical shape but different scoring weights.
// CreatedAt is the first-vote timestamp and never changes; the flip lock is
// a pure function of CreatedAt, FlipCount and now.
type Vote struct {
	CommentID     string    `json:"comment_id" db:"comment_id"`
	VoterID       string    `json:"voter_id" db:"voter_id"`
	Value         int       `json:"value" db:"value"`           // -1 or +1
	FlipCount     int       `json:"flip_count" db:"flip_count"` // 0 or 1
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	LastChangedAt time.Time `json:"last_changed_at" db:"last_changed_at"`
}

// Voter roles.
const (
	RoleMember = "MEMBER"
	RoleMod    = "MOD"
	RoleAdmin  = "ADMIN"
)

// VoteStatus is what vote endpoints return: the updated counters plus the
// caller's lock state.
type VoteStatus struct {
	CommentID         string `json:"comment_id"`
	Value             int    `json:"value"`
	Score             int    `json:"score"`
	MemberLikes       int    `json:"member_likes"`
	MemberDislikes    int    `json:"member_dislikes"`
	Locked            bool   `json:"locked"`
	LockReason        string `json:"lock_reason,omitempty"`
	SecondsLeftToFlip int    `json:"seconds_left_to_flip"`
}
