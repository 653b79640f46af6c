package services

import (
	"bytes"
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jonboulle/clockwork"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"

	"github.com/SOLdier200/xessex-sub002/internal/config"
	"github.com/SOLdier200/xessex-sub002/internal/merkle"
	"github.com/SOLdier200/xessex-sub002/internal/rewards"
)

func distributorTestConfig() *config.EngineConfig {
	return &config.EngineConfig{
		AllTimeBps:      1500,
		VoterBps:        1000,
		MinWeeklyScore:  1,
		MinAllTimeScore: 1,
		MinVotesCast:    1,
		MinMvmPoints:    1,
	}
}

func newDistributorService(t *testing.T) (*DistributorService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewDistributorService(db, clockwork.NewFakeClock(), distributorTestConfig()), mock
}

func TestDistributorService_Distribute(t *testing.T) {
	service, mock := newDistributorService(t)

	var wallet32 [32]byte
	copy(wallet32[:], bytes.Repeat([]byte{1}, 32))
	wallet := base58.Encode(wallet32[:])

	// Week 0 emission 666,667 tokens; likes pool 75%, weekly sub-pool 75%
	// of that after the all-time and voter carve-outs. A single ranked
	// user takes the full 80% base plus the rank-1 ladder share.
	emission := rewards.WeeklyEmissionMicro(0)
	likes := rewards.BpsShare(emission, rewards.LikesPoolBps)
	weekly := rewards.BpsShare(likes, 7500)
	expected := weekly*80/100 + (weekly * 20 / 100 * 20_000 / 100_000)

	leaf := merkle.LeafHash(0, wallet32, uint64(expected))
	tree, err := merkle.Build([]merkle.Hash{leaf})
	assert.NoError(t, err)
	root := merkle.EncodeRoot(tree.Root())

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("2026-09-06").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT id, wallet_address, subscription_status FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "wallet_address", "subscription_status"}).
			AddRow("user-1", wallet, "ACTIVE"))
	mock.ExpectQuery("SELECT user_id, score_received FROM weekly_user_stats").
		WithArgs("2026-09-06", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "score_received"}).AddRow("user-1", int64(10)))
	mock.ExpectQuery("SELECT user_id, score_received FROM all_time_user_stats").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "score_received"}))
	mock.ExpectQuery("SELECT user_id, votes_cast FROM weekly_voter_stats").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "votes_cast"}))
	mock.ExpectQuery("SELECT user_id, mvm_points FROM monthly_user_stats").
		WithArgs("2026-09", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "mvm_points"}))
	mock.ExpectQuery("SELECT user_id, quality_comments FROM weekly_user_stats").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "quality_comments"}))

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO reward_batches").
		WithArgs("2026-09-06", 0, root, expected, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("batch-1"))
	mock.ExpectExec("INSERT INTO reward_events").
		WithArgs("user-1", "weekly_score", expected, "PENDING", "2026-09-06", "weekly_score", "2026-09-06:user-1:weekly_score", 0, "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	summary, err := service.Distribute(context.Background(), "2026-09-06", 0)
	assert.NoError(t, err)
	assert.Equal(t, root, summary.MerkleRoot)
	assert.Equal(t, expected, summary.TotalMicro)
	assert.Equal(t, 1, summary.TotalUsers)
	assert.Equal(t, 1, summary.PoolEvents["weekly_score"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDistributorService_MVMPoolUsesRankLadder(t *testing.T) {
	service, mock := newDistributorService(t)

	var walletA32, walletB32 [32]byte
	copy(walletA32[:], bytes.Repeat([]byte{1}, 32))
	copy(walletB32[:], bytes.Repeat([]byte{2}, 32))
	walletA := base58.Encode(walletA32[:])
	walletB := base58.Encode(walletB32[:])

	// Two users with equal MVM points split the 80% base evenly, but the
	// ladder pays rank 1 (user id tiebreak) 20% and rank 2 12%, so their
	// totals must differ.
	emission := rewards.WeeklyEmissionMicro(0)
	mvm := rewards.BpsShare(emission, rewards.MVMPoolBps)
	base := mvm * 80 / 100
	ladder := mvm * 20 / 100
	expectedA := base/2 + ladder*20_000/100_000
	expectedB := base/2 + ladder*12_000/100_000

	leaves := []merkle.Hash{
		merkle.LeafHash(0, walletA32, uint64(expectedA)),
		merkle.LeafHash(1, walletB32, uint64(expectedB)),
	}
	tree, err := merkle.Build(leaves)
	assert.NoError(t, err)
	root := merkle.EncodeRoot(tree.Root())
	proofA, err := tree.Proof(0)
	assert.NoError(t, err)
	proofB, err := tree.Proof(1)
	assert.NoError(t, err)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("2026-09-06").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT id, wallet_address, subscription_status FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "wallet_address", "subscription_status"}).
			AddRow("user-a", walletA, "ACTIVE").
			AddRow("user-b", walletB, "ACTIVE"))
	mock.ExpectQuery("SELECT user_id, score_received FROM weekly_user_stats").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "score_received"}))
	mock.ExpectQuery("SELECT user_id, score_received FROM all_time_user_stats").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "score_received"}))
	mock.ExpectQuery("SELECT user_id, votes_cast FROM weekly_voter_stats").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "votes_cast"}))
	mock.ExpectQuery("SELECT user_id, mvm_points FROM monthly_user_stats").
		WithArgs("2026-09", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "mvm_points"}).
			AddRow("user-a", int64(10)).
			AddRow("user-b", int64(10)))
	mock.ExpectQuery("SELECT user_id, quality_comments FROM weekly_user_stats").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "quality_comments"}))

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO reward_batches").
		WithArgs("2026-09-06", 0, root, expectedA+expectedB, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("batch-1"))
	mock.ExpectExec("INSERT INTO reward_events").
		WithArgs("user-a", "mvm", expectedA, "PENDING", "2026-09-06", "mvm", "2026-09-06:user-a:mvm", 0, merkle.EncodeProof(proofA)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO reward_events").
		WithArgs("user-b", "mvm", expectedB, "PENDING", "2026-09-06", "mvm", "2026-09-06:user-b:mvm", 1, merkle.EncodeProof(proofB)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	summary, err := service.Distribute(context.Background(), "2026-09-06", 0)
	assert.NoError(t, err)
	assert.Equal(t, 2, summary.PoolEvents["mvm"])
	assert.Greater(t, expectedA, expectedB)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDistributorService_DuplicateWeekRejected(t *testing.T) {
	service, mock := newDistributorService(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("2026-09-06").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := service.Distribute(context.Background(), "2026-09-06", 5)
	assert.ErrorIs(t, err, ErrWeekAlreadyDistributed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDistributorService_NegativeWeekIndexRejected(t *testing.T) {
	service, _ := newDistributorService(t)
	_, err := service.Distribute(context.Background(), "2026-09-06", -1)
	assert.Error(t, err)
}

func TestFilterEligible(t *testing.T) {
	recipients := map[string]recipient{
		"active":   {userID: "active", active: true},
		"inactive": {userID: "inactive", active: false},
	}
	entries := []rewards.RankedEntry{
		{UserID: "active", Metric: 10},
		{UserID: "inactive", Metric: 20},
		{UserID: "no-wallet", Metric: 30},
	}

	strict := filterEligible(entries, recipients, true)
	assert.Len(t, strict, 1)
	assert.Equal(t, "active", strict[0].UserID)

	// Wallet-only pools keep lapsed subscribers, but a user without a
	// linked wallet can never receive on-chain rewards.
	walletOnly := filterEligible(entries, recipients, false)
	assert.Len(t, walletOnly, 2)
}
