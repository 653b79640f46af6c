package services

import (
	"context"
	crand "crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"

	"github.com/SOLdier200/xessex-sub002/internal/config"
	"github.com/SOLdier200/xessex-sub002/internal/lock"
	"github.com/SOLdier200/xessex-sub002/internal/middleware"
	"github.com/SOLdier200/xessex-sub002/internal/models"
	"github.com/SOLdier200/xessex-sub002/internal/rewards"
)

// Prize split across the three places, in percent. Third place takes the
// remainder so the three prizes always sum to the pool exactly.
const (
	firstPlacePct  = 50
	secondPlacePct = 30
)

const raffleLockTTL = 10 * time.Minute

// RaffleService runs the weekly credit raffle: tickets bought with
// credits feed a pool, the platform matches it up to a weekly budget,
// expired prizes roll forward, and three weighted winners are drawn.
type RaffleService struct {
	db        *sql.DB
	redis     *redis.Client
	ledger    *LedgerService
	notifier  Notifier
	clock     clockwork.Clock
	cfg       *config.EngineConfig
	validator *ValidationHelper

	// entropy is the randomness source for draws; tests replace it.
	entropy io.Reader
}

func NewRaffleService(db *sql.DB, redisClient *redis.Client, ledger *LedgerService, notifier Notifier, clock clockwork.Clock, cfg *config.EngineConfig) *RaffleService {
	return &RaffleService{
		db:        db,
		redis:     redisClient,
		ledger:    ledger,
		notifier:  notifier,
		clock:     clock,
		cfg:       cfg,
		validator: NewValidationHelper(),
		entropy:   crand.Reader,
	}
}

// RaffleRunSummary reports one weekly run for the cron response.
type RaffleRunSummary struct {
	CurrentWeek string   `json:"current_week"`
	Ensured     []string `json:"ensured"`
	Drawn       []string `json:"drawn"`
	Winners     int      `json:"winners"`
	Expired     int      `json:"expired"`
}

// RunWeekly is the Sunday-night cron entry point. It takes a short
// advisory lock so overlapping cron fires cannot double-draw, ensures
// the current and next week's raffles exist, then closes and draws
// every raffle past its close time. Weeks missed by a down cron are
// caught up in the same pass.
func (s *RaffleService) RunWeekly(ctx context.Context) (*RaffleRunSummary, error) {
	if s.redis != nil {
		advisory := lock.New(s.redis, "raffle-weekly", raffleLockTTL)
		acquired, err := advisory.TryAcquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire raffle lock: %w", err)
		}
		if !acquired {
			return nil, ErrRaffleLocked
		}
		defer func() {
			if err := advisory.Release(ctx); err != nil {
				log.Printf("[RAFFLE] failed to release lock: %v", err)
			}
		}()
	}

	now := s.clock.Now()
	week := rewards.WeekOf(now)
	summary := &RaffleRunSummary{CurrentWeek: week.WeekKey}

	for _, w := range []struct {
		key      string
		opensAt  time.Time
		closesAt time.Time
	}{
		{week.WeekKey, week.OpensAt, week.ClosesAt},
		{week.NextWeekKey, week.NextOpensAt, week.NextClosesAt},
	} {
		created, err := s.ensureRaffle(ctx, w.key, w.opensAt, w.closesAt)
		if err != nil {
			return nil, err
		}
		if created {
			summary.Ensured = append(summary.Ensured, w.key)
		}
	}

	expired, err := s.expireStalePrizes(ctx, now)
	if err != nil {
		return nil, err
	}
	summary.Expired = expired

	due, err := s.dueRaffles(ctx, now)
	if err != nil {
		return nil, err
	}
	for _, raffle := range due {
		winners, err := s.closeAndDraw(ctx, raffle, week.WeekKey)
		if err != nil {
			return nil, fmt.Errorf("failed to draw raffle %s: %w", raffle.WeekKey, err)
		}
		summary.Drawn = append(summary.Drawn, raffle.WeekKey)
		summary.Winners += winners
	}

	log.Printf("[RAFFLE] weekly run: ensured %v, drawn %v, %d winners, %d prizes expired",
		summary.Ensured, summary.Drawn, summary.Winners, summary.Expired)
	return summary, nil
}

func (s *RaffleService) ensureRaffle(ctx context.Context, weekKey string, opensAt, closesAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO raffles (id, week_key, status, user_pool_credits_micro, match_pool_credits_micro, rollover_credits_micro, opens_at, closes_at)
		VALUES (gen_random_uuid(), $1, $2, 0, 0, 0, $3, $4)
		ON CONFLICT (week_key) DO NOTHING`,
		weekKey, models.RaffleOpen, opensAt, closesAt)
	if err != nil {
		return false, fmt.Errorf("failed to ensure raffle %s: %w", weekKey, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rows > 0, nil
}

// expireStalePrizes marks overdue PENDING prizes EXPIRED and credits
// their sum to the current week's raffle as rollover. The rollover lands
// exactly once because the expiry update is the guard: a prize row flips
// to EXPIRED at most once.
func (s *RaffleService) expireStalePrizes(ctx context.Context, now time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		UPDATE raffle_winners
		SET status = $1
		WHERE status = $2 AND expires_at <= $3
		RETURNING prize_credits_micro`,
		models.WinnerExpired, models.WinnerPending, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire prizes: %w", err)
	}
	var total int64
	count := 0
	for rows.Next() {
		var prize int64
		if err := rows.Scan(&prize); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan expired prize: %w", err)
		}
		total += prize
		count++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if total > 0 {
		weekKey := rewards.WeekOf(now).WeekKey
		_, err = tx.ExecContext(ctx, `
			UPDATE raffles
			SET rollover_credits_micro = rollover_credits_micro + $2
			WHERE week_key = $1 AND status = $3`,
			weekKey, total, models.RaffleOpen)
		if err != nil {
			return 0, fmt.Errorf("failed to roll over expired prizes: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return count, nil
}

func (s *RaffleService) dueRaffles(ctx context.Context, now time.Time) ([]models.Raffle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, week_key, status, user_pool_credits_micro, match_pool_credits_micro, rollover_credits_micro, opens_at, closes_at
		FROM raffles
		WHERE status = $1 AND closes_at <= $2
		ORDER BY closes_at ASC`,
		models.RaffleOpen, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due raffles: %w", err)
	}
	defer rows.Close()

	var due []models.Raffle
	for rows.Next() {
		var r models.Raffle
		if err := rows.Scan(&r.ID, &r.WeekKey, &r.Status, &r.UserPoolCreditsMicro, &r.MatchPoolCreditsMicro, &r.RolloverCreditsMicro, &r.OpensAt, &r.ClosesAt); err != nil {
			return nil, fmt.Errorf("failed to scan raffle: %w", err)
		}
		due = append(due, r)
	}
	return due, rows.Err()
}

// closeAndDraw finalizes one raffle: apply the platform match, pick
// winners, record them, announce, and mark it DRAWN. A raffle with no
// tickets forwards whatever rollover it carried to the current week.
func (s *RaffleService) closeAndDraw(ctx context.Context, raffle models.Raffle, currentWeekKey string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Re-check status under lock: a concurrent run may have drawn it.
	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM raffles WHERE id = $1 FOR UPDATE`,
		raffle.ID).Scan(&status)
	if err != nil {
		return 0, fmt.Errorf("failed to lock raffle: %w", err)
	}
	if status != models.RaffleOpen {
		return 0, tx.Commit()
	}

	matchMicro, err := s.applyMatch(ctx, tx, raffle.WeekKey, raffle.UserPoolCreditsMicro)
	if err != nil {
		return 0, err
	}
	poolMicro := raffle.UserPoolCreditsMicro + matchMicro + raffle.RolloverCreditsMicro

	tickets, err := s.loadTickets(ctx, tx, raffle.ID)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	var winners []models.RaffleWinner
	leftoverMicro := int64(0)
	if len(tickets) == 0 {
		leftoverMicro = poolMicro
	} else {
		winners, leftoverMicro, err = s.pickWinners(tickets, poolMicro)
		if err != nil {
			return 0, err
		}
	}

	expiresAt := raffle.ClosesAt.Add(s.cfg.ClaimWindow)
	for i := range winners {
		winners[i].RaffleID = raffle.ID
		winners[i].ExpiresAt = expiresAt
		err = tx.QueryRowContext(ctx, `
			INSERT INTO raffle_winners (id, raffle_id, user_id, place, prize_credits_micro, status, expires_at)
			VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)
			RETURNING id`,
			raffle.ID, winners[i].UserID, winners[i].Place, winners[i].PrizeCreditsMicro, models.WinnerPending, expiresAt).
			Scan(&winners[i].ID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert winner: %w", err)
		}
	}

	if leftoverMicro > 0 && raffle.WeekKey != currentWeekKey {
		_, err = tx.ExecContext(ctx, `
			UPDATE raffles
			SET rollover_credits_micro = rollover_credits_micro + $2
			WHERE week_key = $1 AND status = $3`,
			currentWeekKey, leftoverMicro, models.RaffleOpen)
		if err != nil {
			return 0, fmt.Errorf("failed to forward leftover pool: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE raffles
		SET status = $2, match_pool_credits_micro = $3, drawn_at = $4
		WHERE id = $1`,
		raffle.ID, models.RaffleDrawn, matchMicro, now)
	if err != nil {
		return 0, fmt.Errorf("failed to mark raffle drawn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, w := range winners {
		subject := fmt.Sprintf("You won the %s raffle", raffle.WeekKey)
		body := fmt.Sprintf("Place %d, prize %d credits. Claim before %s.",
			w.Place, w.PrizeCreditsMicro/models.CreditMicro, expiresAt.Format("2006-01-02"))
		if err := s.notifier.Notify(ctx, w.UserID, subject, body); err != nil {
			log.Printf("[RAFFLE] failed to notify winner %s: %v", w.UserID, err)
		}
	}
	return len(winners), nil
}

// applyMatch grants the platform's 1:1 match, limited to what remains
// of the weekly budget. A cap of zero means the match is uncapped.
func (s *RaffleService) applyMatch(ctx context.Context, tx *sql.Tx, weekKey string, userPoolMicro int64) (int64, error) {
	if userPoolMicro <= 0 {
		return 0, nil
	}
	capMicro := s.cfg.MatchCapMicro
	if capMicro <= 0 {
		return userPoolMicro, nil
	}

	var matched int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO raffle_match_budgets (week_key, cap_micro, matched_micro)
		VALUES ($1, $2, 0)
		ON CONFLICT (week_key) DO UPDATE SET cap_micro = raffle_match_budgets.cap_micro
		RETURNING matched_micro`,
		weekKey, capMicro).Scan(&matched)
	if err != nil {
		return 0, fmt.Errorf("failed to load match budget: %w", err)
	}

	remaining := capMicro - matched
	if remaining <= 0 {
		return 0, nil
	}
	matchMicro := userPoolMicro
	if matchMicro > remaining {
		matchMicro = remaining
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE raffle_match_budgets
		SET matched_micro = matched_micro + $2
		WHERE week_key = $1`,
		weekKey, matchMicro)
	if err != nil {
		return 0, fmt.Errorf("failed to consume match budget: %w", err)
	}
	return matchMicro, nil
}

func (s *RaffleService) loadTickets(ctx context.Context, tx *sql.Tx, raffleID string) ([]models.RaffleTicket, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT user_id, quantity FROM raffle_tickets
		WHERE raffle_id = $1 AND quantity > 0
		ORDER BY user_id`,
		raffleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tickets: %w", err)
	}
	defer rows.Close()

	var tickets []models.RaffleTicket
	for rows.Next() {
		var t models.RaffleTicket
		if err := rows.Scan(&t.UserID, &t.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// pickWinners draws up to three distinct winners, each user's chance
// proportional to their ticket count, without replacement. Prize shares
// for places that cannot be filled are returned as leftover.
func (s *RaffleService) pickWinners(tickets []models.RaffleTicket, poolMicro int64) ([]models.RaffleWinner, int64, error) {
	prizes := []int64{
		poolMicro * firstPlacePct / 100,
		poolMicro * secondPlacePct / 100,
	}
	prizes = append(prizes, poolMicro-prizes[0]-prizes[1])

	pool := make([]models.RaffleTicket, len(tickets))
	copy(pool, tickets)

	var winners []models.RaffleWinner
	leftover := int64(0)
	for place := 1; place <= 3; place++ {
		prize := prizes[place-1]
		if len(pool) == 0 {
			leftover += prize
			continue
		}
		idx, err := s.drawIndex(pool)
		if err != nil {
			return nil, 0, err
		}
		winners = append(winners, models.RaffleWinner{
			UserID:            pool[idx].UserID,
			Place:             place,
			PrizeCreditsMicro: prize,
			Status:            models.WinnerPending,
		})
		pool = append(pool[:idx], pool[idx+1:]...)
	}
	return winners, leftover, nil
}

func (s *RaffleService) drawIndex(pool []models.RaffleTicket) (int, error) {
	total := int64(0)
	for _, t := range pool {
		total += t.Quantity
	}
	if total <= 0 {
		return 0, fmt.Errorf("ticket pool has no weight")
	}
	n, err := crand.Int(s.entropy, big.NewInt(total))
	if err != nil {
		return 0, fmt.Errorf("failed to draw random ticket: %w", err)
	}
	target := n.Int64()
	for i, t := range pool {
		if target < t.Quantity {
			return i, nil
		}
		target -= t.Quantity
	}
	return len(pool) - 1, nil
}

// BuyTickets spends credits on raffle entries for the currently open
// week. The caller's requestID is the idempotency key, so a retried
// request cannot double-charge.
func (s *RaffleService) BuyTickets(ctx context.Context, userID, requestID string, quantity int64) (*models.Raffle, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	week := rewards.WeekOf(s.clock.Now())
	costMicro := quantity * s.cfg.TicketPriceMicro

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raffle models.Raffle
	err = tx.QueryRowContext(ctx, `
		SELECT id, week_key, status, user_pool_credits_micro, match_pool_credits_micro, rollover_credits_micro, opens_at, closes_at
		FROM raffles
		WHERE week_key = $1 AND status = $2
		FOR UPDATE`,
		week.WeekKey, models.RaffleOpen).
		Scan(&raffle.ID, &raffle.WeekKey, &raffle.Status, &raffle.UserPoolCreditsMicro, &raffle.MatchPoolCreditsMicro, &raffle.RolloverCreditsMicro, &raffle.OpensAt, &raffle.ClosesAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load open raffle: %w", err)
	}

	reason := fmt.Sprintf("raffle tickets x%d", quantity)
	if err := s.ledger.DebitTx(ctx, tx, userID, costMicro, reason, models.RefTypeRaffleBuy, requestID, week.WeekKey); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO raffle_tickets (raffle_id, user_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (raffle_id, user_id) DO UPDATE
		SET quantity = raffle_tickets.quantity + $3`,
		raffle.ID, userID, quantity)
	if err != nil {
		return nil, fmt.Errorf("failed to record tickets: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE raffles SET user_pool_credits_micro = user_pool_credits_micro + $2 WHERE id = $1`,
		raffle.ID, costMicro)
	if err != nil {
		return nil, fmt.Errorf("failed to grow prize pool: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	raffle.UserPoolCreditsMicro += costMicro
	return &raffle, nil
}

// Claim converts a PENDING prize into ledger credits. The winner row id
// doubles as the ledger reference, so claiming is naturally idempotent.
func (s *RaffleService) Claim(ctx context.Context, userID, winnerID string) (int64, error) {
	now := s.clock.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var prize int64
	var status string
	var expiresAt time.Time
	var weekKey string
	err = tx.QueryRowContext(ctx, `
		SELECT w.prize_credits_micro, w.status, w.expires_at, r.week_key
		FROM raffle_winners w
		JOIN raffles r ON r.id = w.raffle_id
		WHERE w.id = $1 AND w.user_id = $2
		FOR UPDATE OF w`,
		winnerID, userID).Scan(&prize, &status, &expiresAt, &weekKey)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load prize: %w", err)
	}
	if status != models.WinnerPending || !expiresAt.After(now) {
		return 0, ErrAlreadyProcessed
	}

	refID := "raffle_win:" + winnerID
	if err := s.ledger.CreditTx(ctx, tx, userID, prize, "raffle prize", models.RefTypeRaffleWin, refID, weekKey); err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE raffle_winners SET status = $2, claimed_at = $3 WHERE id = $1`,
		winnerID, models.WinnerClaimed, now)
	if err != nil {
		return 0, fmt.Errorf("failed to mark prize claimed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return prize, nil
}

// RaffleStatus is the public view of the current raffle.
type RaffleStatus struct {
	Raffle       *models.Raffle `json:"raffle,omitempty"`
	MyTickets    int64          `json:"my_tickets"`
	TotalTickets int64          `json:"total_tickets"`
	PoolMicro    int64          `json:"pool_micro"`
}

// Status reports the open raffle for the current week and how the
// caller stands in it.
func (s *RaffleService) Status(ctx context.Context, userID string) (*RaffleStatus, error) {
	week := rewards.WeekOf(s.clock.Now())
	status := &RaffleStatus{}

	var raffle models.Raffle
	err := s.db.QueryRowContext(ctx, `
		SELECT id, week_key, status, user_pool_credits_micro, match_pool_credits_micro, rollover_credits_micro, opens_at, closes_at
		FROM raffles WHERE week_key = $1`,
		week.WeekKey).
		Scan(&raffle.ID, &raffle.WeekKey, &raffle.Status, &raffle.UserPoolCreditsMicro, &raffle.MatchPoolCreditsMicro, &raffle.RolloverCreditsMicro, &raffle.OpensAt, &raffle.ClosesAt)
	if err == sql.ErrNoRows {
		return status, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load raffle: %w", err)
	}
	status.Raffle = &raffle

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0),
		       COALESCE(SUM(quantity) FILTER (WHERE user_id = $2), 0)
		FROM raffle_tickets WHERE raffle_id = $1`,
		raffle.ID, userID).Scan(&status.TotalTickets, &status.MyTickets)
	if err != nil {
		return nil, fmt.Errorf("failed to count tickets: %w", err)
	}

	matchMicro := raffle.MatchPoolCreditsMicro
	if raffle.Status == models.RaffleOpen {
		// Project the match the pool would receive if it closed now.
		matchMicro = raffle.UserPoolCreditsMicro
		if s.cfg.MatchCapMicro > 0 && matchMicro > s.cfg.MatchCapMicro {
			matchMicro = s.cfg.MatchCapMicro
		}
	}
	status.PoolMicro = raffle.UserPoolCreditsMicro + matchMicro + raffle.RolloverCreditsMicro
	return status, nil
}

type buyTicketsRequest struct {
	RequestID string `json:"request_id" validate:"required,max=128"`
	Quantity  int64  `json:"quantity" validate:"required,min=1,max=10000"`
}

type claimRequest struct {
	WinnerID string `json:"winner_id" validate:"required,max=128"`
}

// HandleRunWeekly serves the raffle cron endpoint.
func (s *RaffleService) HandleRunWeekly(w http.ResponseWriter, r *http.Request) {
	summary, err := s.RunWeekly(r.Context())
	if errors.Is(err, ErrRaffleLocked) {
		SendErrorResponse(w, http.StatusConflict, "Raffle run already in progress")
		return
	}
	if err != nil {
		log.Printf("[RAFFLE] weekly run failed: %v", err)
		SendErrorResponse(w, http.StatusInternalServerError, "Raffle run failed")
		return
	}
	SendJSONResponse(w, http.StatusOK, summary)
}

// HandleBuy serves POST /raffles/buy.
func (s *RaffleService) HandleBuy(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		SendErrorResponse(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var req buyTicketsRequest
	if err := decoder.Decode(&req); err != nil {
		SendErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.validator.ValidateStruct(req); err != nil {
		SendErrorResponse(w, http.StatusBadRequest, "request_id and a positive quantity are required")
		return
	}

	raffle, err := s.BuyTickets(r.Context(), userID, req.RequestID, req.Quantity)
	switch {
	case errors.Is(err, ErrNotFound):
		SendErrorResponse(w, http.StatusConflict, "No raffle is open for ticket purchases")
	case errors.Is(err, ErrAlreadyProcessed):
		SendErrorWithReason(w, http.StatusOK, "Purchase already processed", ReasonAlreadyProcessed)
	case errors.Is(err, ErrInsufficientBalance):
		SendErrorWithReason(w, http.StatusPaymentRequired, "Not enough credits", ReasonInsufficientBalance)
	case err != nil:
		log.Printf("[RAFFLE] ticket purchase failed for %s: %v", userID, err)
		SendErrorResponse(w, http.StatusInternalServerError, "Failed to buy tickets")
	default:
		SendJSONResponse(w, http.StatusOK, raffle)
	}
}

// HandleClaim serves POST /raffles/claim.
func (s *RaffleService) HandleClaim(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		SendErrorResponse(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var req claimRequest
	if err := decoder.Decode(&req); err != nil {
		SendErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.validator.ValidateStruct(req); err != nil {
		SendErrorResponse(w, http.StatusBadRequest, "winner_id is required")
		return
	}

	prize, err := s.Claim(r.Context(), userID, req.WinnerID)
	switch {
	case errors.Is(err, ErrNotFound):
		SendErrorResponse(w, http.StatusNotFound, "Prize not found")
	case errors.Is(err, ErrAlreadyProcessed):
		SendErrorWithReason(w, http.StatusConflict, "Prize already claimed or expired", ReasonAlreadyProcessed)
	case err != nil:
		log.Printf("[RAFFLE] claim failed for %s: %v", userID, err)
		SendErrorResponse(w, http.StatusInternalServerError, "Failed to claim prize")
	default:
		SendJSONResponse(w, http.StatusOK, map[string]int64{"prize_credits_micro": prize})
	}
}

// HandleStatus serves GET /raffles/status.
func (s *RaffleService) HandleStatus(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	status, err := s.Status(r.Context(), userID)
	if err != nil {
		log.Printf("[RAFFLE] status failed: %v", err)
		SendErrorResponse(w, http.StatusInternalServerError, "Failed to load raffle status")
		return
	}
	SendJSONResponse(w, http.StatusOK, status)
}
