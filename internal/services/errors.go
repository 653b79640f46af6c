package services

import "errors"

var (
	// ErrAlreadyProcessed is returned when a ledger reference has already been posted
	ErrAlreadyProcessed = errors.New("reference already processed")

	// ErrInsufficientBalance is returned when a debit exceeds the account balance
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrSelfVote is returned when a user votes on their own comment
	ErrSelfVote = errors.New("cannot vote on own comment")

	// ErrFlipAlreadyUsed is returned when a vote has already been flipped once
	ErrFlipAlreadyUsed = errors.New("vote flip already used")

	// ErrVoteWindowExpired is returned when the flip window has elapsed
	ErrVoteWindowExpired = errors.New("vote flip window expired")

	// ErrRaffleLocked is returned when another process holds the raffle lock
	ErrRaffleLocked = errors.New("raffle run already in progress")

	// ErrDataUnavailable is returned when an upstream data source cannot be read
	ErrDataUnavailable = errors.New("data source unavailable")

	// ErrWeekAlreadyDistributed is returned on a duplicate weekly distribution
	ErrWeekAlreadyDistributed = errors.New("week already distributed")

	// ErrNotFound is returned when a requested row does not exist
	ErrNotFound = errors.New("not found")
)
