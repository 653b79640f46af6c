package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"

	"github.com/SOLdier200/xessex-sub002/internal/config"
	"github.com/SOLdier200/xessex-sub002/internal/middleware"
	"github.com/SOLdier200/xessex-sub002/internal/models"
	"github.com/SOLdier200/xessex-sub002/internal/rewards"
)

const (
	// Credits granted as vote side effects, in micro-credits.
	voteCastCreditMicro     = 1 * models.CreditMicro
	likeReceivedCreditMicro = 2 * models.CreditMicro
)

// VoteService applies member and moderator votes to comments. A vote may
// be flipped once, and only within the flip window after it was cast.
// After that it is locked for good.
type VoteService struct {
	db        *sql.DB
	redis     *redis.Client
	ledger    *LedgerService
	notifier  Notifier
	clock     clockwork.Clock
	cfg       *config.EngineConfig
	validator *ValidationHelper
}

func NewVoteService(db *sql.DB, redisClient *redis.Client, ledger *LedgerService, notifier Notifier, clock clockwork.Clock, cfg *config.EngineConfig) *VoteService {
	return &VoteService{
		db:        db,
		redis:     redisClient,
		ledger:    ledger,
		notifier:  notifier,
		clock:     clock,
		cfg:       cfg,
		validator: NewValidationHelper(),
	}
}

// voteWeight returns the score delta a vote contributes. Likes scale with
// the voter's role, dislikes always count -1.
func (s *VoteService) voteWeight(role string, value int) int64 {
	if value < 0 {
		return s.cfg.DislikeDelta
	}
	if role == models.RoleMod || role == models.RoleAdmin {
		return s.cfg.ModLikeDelta
	}
	return s.cfg.MemberLikeDelta
}

func voteTable(role string) string {
	if role == models.RoleMod || role == models.RoleAdmin {
		return "comment_mod_votes"
	}
	return "comment_votes"
}

// CastVote records or flips a vote and updates the comment score in one
// transaction. Stats and credit side effects run after commit and never
// fail the vote itself.
func (s *VoteService) CastVote(ctx context.Context, commentID, voterID, role string, value int) (*models.VoteStatus, error) {
	if value != 1 && value != -1 {
		return nil, fmt.Errorf("vote value must be 1 or -1, got %d", value)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	comment := models.Comment{ID: commentID}
	err = tx.QueryRowContext(ctx,
		`SELECT author_id, score, member_likes, member_dislikes FROM comments WHERE id = $1 FOR UPDATE`,
		commentID).Scan(&comment.AuthorID, &comment.Score, &comment.MemberLikes, &comment.MemberDislikes)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock comment: %w", err)
	}
	if comment.AuthorID == voterID {
		return nil, ErrSelfVote
	}

	table := voteTable(role)
	now := s.clock.Now().UTC()

	var existing models.Vote
	err = tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT value, flip_count, created_at FROM %s WHERE comment_id = $1 AND voter_id = $2 FOR UPDATE`, table),
		commentID, voterID).Scan(&existing.Value, &existing.FlipCount, &existing.CreatedAt)

	var scoreDelta int64
	oldValue := 0
	switch {
	case err == sql.ErrNoRows:
		scoreDelta = s.voteWeight(role, value)
		if err := s.insertVote(ctx, tx, table, commentID, voterID, role, value, now); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("failed to query vote: %w", err)
	case existing.Value == value:
		// Same vote again is a no-op.
		existing.CommentID = commentID
		return s.statusFor(&existing, &comment, now), tx.Commit()
	default:
		if now.Sub(existing.CreatedAt) > s.cfg.FlipWindow {
			return nil, ErrVoteWindowExpired
		}
		if existing.FlipCount >= 1 {
			return nil, ErrFlipAlreadyUsed
		}
		oldValue = existing.Value
		scoreDelta = s.voteWeight(role, value) - s.voteWeight(role, oldValue)
		if err := s.flipVote(ctx, tx, table, commentID, voterID, role, oldValue, value, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	firstVote := err == sql.ErrNoRows
	s.applySideEffects(ctx, commentID, voterID, comment.AuthorID, value, scoreDelta, firstVote)

	comment.Score += int(scoreDelta)
	likeDelta, dislikeDelta := memberCounterDeltas(role, value, oldValue)
	comment.MemberLikes += likeDelta
	comment.MemberDislikes += dislikeDelta

	vote := models.Vote{CommentID: commentID, Value: value, FlipCount: existing.FlipCount, CreatedAt: existing.CreatedAt}
	if firstVote {
		vote.CreatedAt = now
	} else {
		vote.FlipCount = existing.FlipCount + 1
	}
	return s.statusFor(&vote, &comment, now), nil
}

func (s *VoteService) insertVote(ctx context.Context, tx *sql.Tx, table, commentID, voterID, role string, value int, now time.Time) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (comment_id, voter_id, value, flip_count, created_at, last_changed_at)
		VALUES ($1, $2, $3, 0, $4, $4)`, table),
		commentID, voterID, value, now)
	if err != nil {
		return fmt.Errorf("failed to insert vote: %w", err)
	}
	return s.applyScore(ctx, tx, commentID, role, s.voteWeight(role, value), value, 0)
}

func (s *VoteService) flipVote(ctx context.Context, tx *sql.Tx, table, commentID, voterID, role string, oldValue, newValue int, now time.Time) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET value = $3, flip_count = flip_count + 1, last_changed_at = $4
		WHERE comment_id = $1 AND voter_id = $2`, table),
		commentID, voterID, newValue, now)
	if err != nil {
		return fmt.Errorf("failed to flip vote: %w", err)
	}
	delta := s.voteWeight(role, newValue) - s.voteWeight(role, oldValue)
	return s.applyScore(ctx, tx, commentID, role, delta, newValue, oldValue)
}

// memberCounterDeltas returns how a vote moves the member like/dislike
// counters. Mod votes move the score but not the member counters.
func memberCounterDeltas(role string, newValue, oldValue int) (likeDelta, dislikeDelta int) {
	if role != models.RoleMember {
		return 0, 0
	}
	if newValue > 0 {
		likeDelta++
	} else {
		dislikeDelta++
	}
	if oldValue > 0 {
		likeDelta--
	} else if oldValue < 0 {
		dislikeDelta--
	}
	return likeDelta, dislikeDelta
}

// applyScore updates the comment score plus the member counters.
func (s *VoteService) applyScore(ctx context.Context, tx *sql.Tx, commentID, role string, delta int64, newValue, oldValue int) error {
	likeDelta, dislikeDelta := memberCounterDeltas(role, newValue, oldValue)
	_, err := tx.ExecContext(ctx, `
		UPDATE comments
		SET score = score + $2, member_likes = member_likes + $3, member_dislikes = member_dislikes + $4
		WHERE id = $1`,
		commentID, delta, likeDelta, dislikeDelta)
	if err != nil {
		return fmt.Errorf("failed to update comment score: %w", err)
	}
	return nil
}

// applySideEffects updates weekly stats and grants vote credits. Each
// effect is independent and only logged on failure. On a flip, delta is
// the net score movement, so the stat metrics track the comment score.
func (s *VoteService) applySideEffects(ctx context.Context, commentID, voterID, authorID string, value int, delta int64, firstVote bool) {
	weekKey := rewards.WeekOf(s.clock.Now()).WeekKey

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO weekly_user_stats (week_key, user_id, score_received, quality_comments)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (week_key, user_id) DO UPDATE
		SET score_received = weekly_user_stats.score_received + $3`,
		weekKey, authorID, delta); err != nil {
		log.Printf("[VOTE] failed to update weekly stats for %s: %v", authorID, err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO all_time_user_stats (user_id, score_received)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET score_received = all_time_user_stats.score_received + $2`,
		authorID, delta); err != nil {
		log.Printf("[VOTE] failed to update all-time stats for %s: %v", authorID, err)
	}

	if !firstVote {
		return
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO weekly_voter_stats (week_key, user_id, votes_cast)
		VALUES ($1, $2, 1)
		ON CONFLICT (week_key, user_id) DO UPDATE
		SET votes_cast = weekly_voter_stats.votes_cast + 1`,
		weekKey, voterID); err != nil {
		log.Printf("[VOTE] failed to update voter stats for %s: %v", voterID, err)
	}

	voteRef := fmt.Sprintf("vote_credit_%s_%s", voterID, commentID)
	if err := s.ledger.Credit(ctx, voterID, voteCastCreditMicro, "vote cast", models.RefTypeVoteCredit, voteRef, weekKey); err != nil && !errors.Is(err, ErrAlreadyProcessed) {
		log.Printf("[VOTE] failed to credit voter %s: %v", voterID, err)
	}

	if value > 0 {
		s.creditLikeReceived(ctx, weekKey, authorID, commentID, voterID)
	}
}

// creditLikeReceived grants the comment author a like credit, at most once
// per (author, comment, voter) per week. The Redis key is the fast guard,
// the ledger reference is the durable one.
func (s *VoteService) creditLikeReceived(ctx context.Context, weekKey, authorID, commentID, voterID string) {
	key := fmt.Sprintf("like_rcvd:%s:%s:%s:%s", weekKey, authorID, commentID, voterID)
	if s.redis != nil {
		ok, err := s.redis.SetNX(ctx, key, 1, 8*24*time.Hour).Result()
		if err != nil {
			log.Printf("[VOTE] redis guard failed for %s: %v", key, err)
		} else if !ok {
			return
		}
	}
	if err := s.ledger.Credit(ctx, authorID, likeReceivedCreditMicro, "like received", models.RefTypeLikeReceived, key, weekKey); err != nil && !errors.Is(err, ErrAlreadyProcessed) {
		log.Printf("[VOTE] failed to credit author %s: %v", authorID, err)
	}
}

func (s *VoteService) statusFor(v *models.Vote, c *models.Comment, now time.Time) *models.VoteStatus {
	status := &models.VoteStatus{
		CommentID:      v.CommentID,
		Value:          v.Value,
		Score:          c.Score,
		MemberLikes:    c.MemberLikes,
		MemberDislikes: c.MemberDislikes,
	}
	secondsLeft := int(s.cfg.FlipWindow.Seconds()) - int(now.Sub(v.CreatedAt).Seconds())
	if secondsLeft < 0 {
		secondsLeft = 0
	}
	switch {
	case secondsLeft == 0:
		status.Locked = true
		status.LockReason = ReasonVoteWindowExpired
	case v.FlipCount >= 1:
		status.Locked = true
		status.LockReason = ReasonFlipAlreadyUsed
	default:
		status.SecondsLeftToFlip = secondsLeft
	}
	return status
}

// VoteStatusFor reports the comment counters plus the caller's lock
// state. A caller who has not voted gets the counters with no lock.
func (s *VoteService) VoteStatusFor(ctx context.Context, commentID, voterID, role string) (*models.VoteStatus, error) {
	comment := models.Comment{ID: commentID}
	err := s.db.QueryRowContext(ctx,
		`SELECT author_id, score, member_likes, member_dislikes FROM comments WHERE id = $1`,
		commentID).Scan(&comment.AuthorID, &comment.Score, &comment.MemberLikes, &comment.MemberDislikes)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load comment: %w", err)
	}

	vote := models.Vote{CommentID: commentID}
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT value, flip_count, created_at FROM %s WHERE comment_id = $1 AND voter_id = $2`, voteTable(role)),
		commentID, voterID).Scan(&vote.Value, &vote.FlipCount, &vote.CreatedAt)
	if err == sql.ErrNoRows {
		return &models.VoteStatus{
			CommentID:      commentID,
			Score:          comment.Score,
			MemberLikes:    comment.MemberLikes,
			MemberDislikes: comment.MemberDislikes,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load vote: %w", err)
	}
	return s.statusFor(&vote, &comment, s.clock.Now().UTC()), nil
}

// HandleVoteStatus serves GET /comments/{commentID}/vote.
func (s *VoteService) HandleVoteStatus(w http.ResponseWriter, r *http.Request) {
	voterID := middleware.UserID(r.Context())
	if voterID == "" {
		SendErrorResponse(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	commentID := chi.URLParam(r, "commentID")
	if commentID == "" {
		SendErrorResponse(w, http.StatusBadRequest, "Comment ID is required")
		return
	}

	status, err := s.VoteStatusFor(r.Context(), commentID, voterID, middleware.Role(r.Context()))
	switch {
	case errors.Is(err, ErrNotFound):
		SendErrorResponse(w, http.StatusNotFound, "Comment not found")
	case err != nil:
		log.Printf("[VOTE] status failed for comment %s: %v", commentID, err)
		SendErrorResponse(w, http.StatusInternalServerError, "Failed to load vote status")
	default:
		SendJSONResponse(w, http.StatusOK, status)
	}
}

type castVoteRequest struct {
	Value int `json:"value" validate:"required,oneof=1 -1"`
}

// HandleCastVote processes POST /comments/{commentID}/vote for members.
func (s *VoteService) HandleCastVote(w http.ResponseWriter, r *http.Request) {
	s.handleVote(w, r, models.RoleMember)
}

// HandleModVote processes POST /mod/comments/{commentID}/vote. The role
// from the token decides the weight; the route is mod-gated upstream.
func (s *VoteService) HandleModVote(w http.ResponseWriter, r *http.Request) {
	s.handleVote(w, r, middleware.Role(r.Context()))
}

func (s *VoteService) handleVote(w http.ResponseWriter, r *http.Request, role string) {
	voterID := middleware.UserID(r.Context())
	if voterID == "" {
		SendErrorResponse(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	commentID := chi.URLParam(r, "commentID")
	if commentID == "" {
		SendErrorResponse(w, http.StatusBadRequest, "Comment ID is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var req castVoteRequest
	if err := decoder.Decode(&req); err != nil {
		SendErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.validator.ValidateStruct(req); err != nil {
		SendErrorResponse(w, http.StatusBadRequest, "Vote value must be 1 or -1")
		return
	}

	status, err := s.CastVote(r.Context(), commentID, voterID, role, req.Value)
	switch {
	case errors.Is(err, ErrNotFound):
		SendErrorResponse(w, http.StatusNotFound, "Comment not found")
	case errors.Is(err, ErrSelfVote):
		SendErrorWithReason(w, http.StatusForbidden, "You cannot vote on your own comment", ReasonSelfVote)
	case errors.Is(err, ErrVoteWindowExpired):
		SendErrorWithReason(w, http.StatusConflict, "Vote is locked", ReasonVoteWindowExpired)
	case errors.Is(err, ErrFlipAlreadyUsed):
		SendErrorWithReason(w, http.StatusConflict, "Vote is locked", ReasonFlipAlreadyUsed)
	case err != nil:
		log.Printf("[VOTE] cast failed for comment %s: %v", commentID, err)
		SendErrorResponse(w, http.StatusInternalServerError, "Failed to record vote")
	default:
		SendJSONResponse(w, http.StatusOK, status)
	}
}
