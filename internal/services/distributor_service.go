package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"

	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/mr-tron/base58"

	"github.com/SOLdier200/xessex-sub002/internal/config"
	"github.com/SOLdier200/xessex-sub002/internal/merkle"
	"github.com/SOLdier200/xessex-sub002/internal/middleware"
	"github.com/SOLdier200/xessex-sub002/internal/models"
	"github.com/SOLdier200/xessex-sub002/internal/rewards"
)

// DistributorService turns one closed week into an immutable reward
// batch: split the week's token emission across the five pools, compute
// per-user amounts, and commit a merkle tree of aggregated claims.
type DistributorService struct {
	db        *sql.DB
	clock     clockwork.Clock
	cfg       *config.EngineConfig
	validator *ValidationHelper
}

func NewDistributorService(db *sql.DB, clock clockwork.Clock, cfg *config.EngineConfig) *DistributorService {
	return &DistributorService{db: db, clock: clock, cfg: cfg, validator: NewValidationHelper()}
}

// DistributionSummary reports one committed batch.
type DistributionSummary struct {
	WeekKey    string         `json:"week_key"`
	WeekIndex  int            `json:"week_index"`
	MerkleRoot string         `json:"merkle_root"`
	TotalMicro int64          `json:"total_micro"`
	TotalUsers int            `json:"total_users"`
	PoolEvents map[string]int `json:"pool_events"`
}

// recipient is a user eligible for at least one pool, with the decoded
// 32-byte wallet used in their merkle leaf.
type recipient struct {
	userID string
	wallet [32]byte
	active bool
}

// Distribute computes and commits the reward batch for weekKey. A week
// can be distributed exactly once; the unique constraint on
// reward_batches.week_key is the final arbiter.
func (s *DistributorService) Distribute(ctx context.Context, weekKey string, weekIndex int) (*DistributionSummary, error) {
	if weekIndex < 0 {
		return nil, fmt.Errorf("week index must be non-negative, got %d", weekIndex)
	}

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM reward_batches WHERE week_key = $1)`,
		weekKey).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing batch: %w", err)
	}
	if exists {
		return nil, ErrWeekAlreadyDistributed
	}

	recipients, err := s.loadRecipients(ctx)
	if err != nil {
		return nil, err
	}

	emission := rewards.WeeklyEmissionMicro(weekIndex)
	likesMicro := rewards.BpsShare(emission, rewards.LikesPoolBps)
	mvmMicro := rewards.BpsShare(emission, rewards.MVMPoolBps)
	commentsMicro := rewards.BpsShare(emission, rewards.CommentsPoolBps)

	weeklyBps := rewards.BpsBase - s.cfg.AllTimeBps - s.cfg.VoterBps
	if weeklyBps < 0 {
		return nil, fmt.Errorf("alltime and voter bps exceed the likes pool")
	}
	weeklyMicro := rewards.BpsShare(likesMicro, weeklyBps)
	alltimeMicro := rewards.BpsShare(likesMicro, s.cfg.AllTimeBps)
	voterMicro := rewards.BpsShare(likesMicro, s.cfg.VoterBps)

	pools := map[string]map[string]int64{}

	weeklyEntries, err := s.loadMetric(ctx, `
		SELECT user_id, score_received FROM weekly_user_stats
		WHERE week_key = $1 AND score_received >= $2`,
		weekKey, s.cfg.MinWeeklyScore)
	if err != nil {
		return nil, err
	}
	pools[models.PoolWeeklyScore] = rewards.SplitRankedPool(weeklyMicro, filterEligible(weeklyEntries, recipients, true))

	alltimeEntries, err := s.loadMetric(ctx, `
		SELECT user_id, score_received FROM all_time_user_stats
		WHERE score_received >= $1`,
		s.cfg.MinAllTimeScore)
	if err != nil {
		return nil, err
	}
	pools[models.PoolAllTimeScore] = rewards.SplitRankedPool(alltimeMicro, filterEligible(alltimeEntries, recipients, true))

	// Voter participation only needs a linked wallet, not an active
	// subscription.
	voterEntries, err := s.loadMetric(ctx, `
		SELECT user_id, votes_cast FROM weekly_voter_stats
		WHERE week_key = $1 AND votes_cast >= $2`,
		weekKey, s.cfg.MinVotesCast)
	if err != nil {
		return nil, err
	}
	pools[models.PoolVoter] = rewards.SplitProportional(voterMicro, filterEligible(voterEntries, recipients, false))

	monthKey, err := rewards.MonthKey(weekKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive month key: %w", err)
	}
	mvmEntries, err := s.loadMetric(ctx, `
		SELECT user_id, mvm_points FROM monthly_user_stats
		WHERE month_key = $1 AND mvm_points >= $2`,
		monthKey, s.cfg.MinMvmPoints)
	if err != nil {
		return nil, err
	}
	// Same ranked payout rule as the score pools. An empty MVM month
	// withholds the pool rather than spreading it.
	pools[models.PoolMVM] = rewards.SplitRankedPool(mvmMicro, filterEligible(mvmEntries, recipients, true))

	commentEntries, err := s.loadMetric(ctx, `
		SELECT user_id, quality_comments FROM weekly_user_stats
		WHERE week_key = $1 AND quality_comments > 0`,
		weekKey)
	if err != nil {
		return nil, err
	}
	pools[models.PoolComments] = rewards.SplitProportional(commentsMicro, filterEligible(commentEntries, recipients, true))

	return s.commitBatch(ctx, weekKey, weekIndex, recipients, pools)
}

func (s *DistributorService) loadRecipients(ctx context.Context) (map[string]recipient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, wallet_address, subscription_status FROM users
		WHERE wallet_address <> ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipients: %w", err)
	}
	defer rows.Close()

	recipients := make(map[string]recipient)
	for rows.Next() {
		var id, wallet, status string
		if err := rows.Scan(&id, &wallet, &status); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		decoded, err := base58.Decode(wallet)
		if err != nil || len(decoded) != 32 {
			log.Printf("[DISTRIBUTE] user %s has an invalid wallet address, skipping", id)
			continue
		}
		r := recipient{userID: id, active: status == models.SubscriptionActive}
		copy(r.wallet[:], decoded)
		recipients[id] = r
	}
	return recipients, rows.Err()
}

func (s *DistributorService) loadMetric(ctx context.Context, query string, args ...interface{}) ([]rewards.RankedEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pool metric: %w", err)
	}
	defer rows.Close()

	var entries []rewards.RankedEntry
	for rows.Next() {
		var e rewards.RankedEntry
		if err := rows.Scan(&e.UserID, &e.Metric); err != nil {
			return nil, fmt.Errorf("failed to scan pool metric: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func filterEligible(entries []rewards.RankedEntry, recipients map[string]recipient, requireActive bool) []rewards.RankedEntry {
	out := entries[:0:0]
	for _, e := range entries {
		r, ok := recipients[e.UserID]
		if !ok {
			continue
		}
		if requireActive && !r.active {
			continue
		}
		out = append(out, e)
	}
	return out
}

// commitBatch aggregates pool amounts per user, builds the merkle tree
// over (index, wallet, total) leaves ordered by user id, and writes the
// batch plus every event in one transaction.
func (s *DistributorService) commitBatch(ctx context.Context, weekKey string, weekIndex int, recipients map[string]recipient, pools map[string]map[string]int64) (*DistributionSummary, error) {
	totals := make(map[string]int64)
	for _, alloc := range pools {
		for userID, amount := range alloc {
			totals[userID] += amount
		}
	}

	userIDs := make([]string, 0, len(totals))
	for userID := range totals {
		userIDs = append(userIDs, userID)
	}
	sort.Strings(userIDs)

	summary := &DistributionSummary{
		WeekKey:    weekKey,
		WeekIndex:  weekIndex,
		TotalUsers: len(userIDs),
		PoolEvents: make(map[string]int),
	}

	indexByUser := make(map[string]int, len(userIDs))
	proofByUser := make(map[string]string, len(userIDs))
	if len(userIDs) > 0 {
		leaves := make([]merkle.Hash, len(userIDs))
		for i, userID := range userIDs {
			indexByUser[userID] = i
			leaves[i] = merkle.LeafHash(uint32(i), recipients[userID].wallet, uint64(totals[userID]))
			summary.TotalMicro += totals[userID]
		}
		tree, err := merkle.Build(leaves)
		if err != nil {
			return nil, fmt.Errorf("failed to build merkle tree: %w", err)
		}
		summary.MerkleRoot = merkle.EncodeRoot(tree.Root())
		for i, userID := range userIDs {
			proof, err := tree.Proof(i)
			if err != nil {
				return nil, fmt.Errorf("failed to build proof: %w", err)
			}
			proofByUser[userID] = merkle.EncodeProof(proof)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var batchID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO reward_batches (id, week_key, week_index, merkle_root, total_amount, total_users, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, NOW())
		RETURNING id`,
		weekKey, weekIndex, summary.MerkleRoot, summary.TotalMicro, summary.TotalUsers).Scan(&batchID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrWeekAlreadyDistributed
		}
		return nil, fmt.Errorf("failed to insert reward batch: %w", err)
	}

	// Stable event order: pool taxonomy order, then user id.
	for _, pool := range []string{models.PoolWeeklyScore, models.PoolAllTimeScore, models.PoolVoter, models.PoolMVM, models.PoolComments} {
		alloc := pools[pool]
		users := make([]string, 0, len(alloc))
		for userID := range alloc {
			users = append(users, userID)
		}
		sort.Strings(users)
		for _, userID := range users {
			refID := fmt.Sprintf("%s:%s:%s", weekKey, userID, pool)
			_, err = tx.ExecContext(ctx, `
				INSERT INTO reward_events (user_id, type, amount, status, week_key, ref_type, ref_id, merkle_index, merkle_proof, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`,
				userID, pool, alloc[userID], models.RewardPending, weekKey, pool, refID, indexByUser[userID], proofByUser[userID])
			if err != nil {
				return nil, fmt.Errorf("failed to insert reward event: %w", err)
			}
			summary.PoolEvents[pool]++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Printf("[DISTRIBUTE] week %s (index %d): %d users, %d micro, root %s",
		weekKey, weekIndex, summary.TotalUsers, summary.TotalMicro, summary.MerkleRoot)
	return summary, nil
}

type distributeRequest struct {
	WeekKey   string `json:"week_key" validate:"omitempty,len=10"`
	WeekIndex int    `json:"week_index" validate:"min=0"`
}

// HandleDistribute serves the weekly distribution cron endpoint. An
// omitted week_key means the week that just ended.
func (s *DistributorService) HandleDistribute(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var req distributeRequest
	if err := decoder.Decode(&req); err != nil {
		SendErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.validator.ValidateStruct(req); err != nil {
		SendErrorResponse(w, http.StatusBadRequest, "week_key must be YYYY-MM-DD and week_index non-negative")
		return
	}
	if req.WeekKey == "" {
		prev, err := rewards.PrevWeekKey(rewards.WeekOf(s.clock.Now()).WeekKey)
		if err != nil {
			SendErrorResponse(w, http.StatusInternalServerError, "Failed to resolve week")
			return
		}
		req.WeekKey = prev
	}

	summary, err := s.Distribute(r.Context(), req.WeekKey, req.WeekIndex)
	switch {
	case errors.Is(err, ErrWeekAlreadyDistributed):
		SendErrorWithReason(w, http.StatusConflict, "Week has already been distributed", ReasonAlreadyProcessed)
	case err != nil:
		log.Printf("[DISTRIBUTE] failed for %s: %v", req.WeekKey, err)
		SendErrorResponse(w, http.StatusInternalServerError, "Distribution failed")
	default:
		SendJSONResponse(w, http.StatusOK, summary)
	}
}

// HandleWeekRewards serves GET /rewards/week for the authenticated user.
func (s *DistributorService) HandleWeekRewards(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		SendErrorResponse(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	weekKey := r.URL.Query().Get("week")
	if weekKey == "" {
		prev, err := rewards.PrevWeekKey(rewards.WeekOf(s.clock.Now()).WeekKey)
		if err != nil {
			SendErrorResponse(w, http.StatusInternalServerError, "Failed to resolve week")
			return
		}
		weekKey = prev
	}

	var root string
	err := s.db.QueryRowContext(r.Context(),
		`SELECT merkle_root FROM reward_batches WHERE week_key = $1`, weekKey).Scan(&root)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, http.StatusNotFound, "Week has not been distributed")
		return
	}
	if err != nil {
		log.Printf("[DISTRIBUTE] failed to load batch %s: %v", weekKey, err)
		SendErrorResponse(w, http.StatusInternalServerError, "Failed to load rewards")
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, user_id, type, amount, status, week_key, ref_type, ref_id, merkle_index, merkle_proof, created_at
		FROM reward_events
		WHERE week_key = $1 AND user_id = $2
		ORDER BY type`,
		weekKey, userID)
	if err != nil {
		log.Printf("[DISTRIBUTE] failed to load events for %s: %v", userID, err)
		SendErrorResponse(w, http.StatusInternalServerError, "Failed to load rewards")
		return
	}
	defer rows.Close()

	var events []models.RewardEvent
	var total int64
	for rows.Next() {
		var e models.RewardEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Amount, &e.Status, &e.WeekKey, &e.RefType, &e.RefID, &e.MerkleIndex, &e.MerkleProof, &e.CreatedAt); err != nil {
			log.Printf("[DISTRIBUTE] failed to scan event: %v", err)
			SendErrorResponse(w, http.StatusInternalServerError, "Failed to load rewards")
			return
		}
		total += e.Amount
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		log.Printf("[DISTRIBUTE] failed to read events: %v", err)
		SendErrorResponse(w, http.StatusInternalServerError, "Failed to load rewards")
		return
	}

	SendJSONResponse(w, http.StatusOK, map[string]interface{}{
		"week_key":    weekKey,
		"merkle_root": root,
		"total_micro": total,
		"events":      events,
	})
}
