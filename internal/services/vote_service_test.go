package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"

	"github.com/SOLdier200/xessex-sub002/internal/config"
)

func voteTestConfig() *config.EngineConfig {
	return &config.EngineConfig{
		FlipWindow:      time.Minute,
		MemberLikeDelta: 5,
		ModLikeDelta:    15,
		DislikeDelta:    -1,
	}
}

func newVoteService(t *testing.T) (*VoteService, sqlmock.Sqlmock, *clockwork.FakeClock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := clockwork.NewFakeClock()
	ledger := NewLedgerService(db)
	service := NewVoteService(db, nil, ledger, NewNotifyService(db), clock, voteTestConfig())
	return service, mock, clock
}

func commentRows(authorID string, score, likes, dislikes int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"author_id", "score", "member_likes", "member_dislikes"}).
		AddRow(authorID, score, likes, dislikes)
}

func expectCreditSideEffect(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO credit_ledger").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO credit_accounts").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func TestVoteService_FirstVote(t *testing.T) {
	service, mock, _ := newVoteService(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT author_id, score").
		WithArgs("c1").
		WillReturnRows(commentRows("author-1", 0, 0, 0))
	mock.ExpectQuery("SELECT value, flip_count, created_at FROM comment_votes").
		WithArgs("c1", "voter-1").
		WillReturnRows(sqlmock.NewRows([]string{"value", "flip_count", "created_at"}))
	mock.ExpectExec("INSERT INTO comment_votes").
		WithArgs("c1", "voter-1", 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE comments").
		WithArgs("c1", int64(5), 1, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// Post-commit side effects: stats, voter credit, author like credit.
	mock.ExpectExec("INSERT INTO weekly_user_stats").
		WithArgs(sqlmock.AnyArg(), "author-1", int64(5)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO all_time_user_stats").
		WithArgs("author-1", int64(5)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO weekly_voter_stats").WillReturnResult(sqlmock.NewResult(1, 1))
	expectCreditSideEffect(mock)
	expectCreditSideEffect(mock)

	status, err := service.CastVote(ctx, "c1", "voter-1", "MEMBER", 1)
	assert.NoError(t, err)
	assert.False(t, status.Locked)
	assert.Equal(t, 60, status.SecondsLeftToFlip)
	assert.Equal(t, 5, status.Score)
	assert.Equal(t, 1, status.MemberLikes)
	assert.Equal(t, 0, status.MemberDislikes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVoteService_FlipWithinWindow(t *testing.T) {
	service, mock, clock := newVoteService(t)
	ctx := context.Background()
	castAt := clock.Now().UTC().Add(-10 * time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT author_id, score").
		WithArgs("c1").
		WillReturnRows(commentRows("author-1", 5, 1, 0))
	mock.ExpectQuery("SELECT value, flip_count, created_at FROM comment_votes").
		WithArgs("c1", "voter-1").
		WillReturnRows(sqlmock.NewRows([]string{"value", "flip_count", "created_at"}).AddRow(1, 0, castAt))
	mock.ExpectExec("UPDATE comment_votes").
		WithArgs("c1", "voter-1", -1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE comments").
		WithArgs("c1", int64(-6), -1, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// Flips move the author's stats by the same net delta as the comment
	// score, and grant no fresh credits.
	mock.ExpectExec("INSERT INTO weekly_user_stats").
		WithArgs(sqlmock.AnyArg(), "author-1", int64(-6)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO all_time_user_stats").
		WithArgs("author-1", int64(-6)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	status, err := service.CastVote(ctx, "c1", "voter-1", "MEMBER", -1)
	assert.NoError(t, err)
	assert.True(t, status.Locked)
	assert.Equal(t, ReasonFlipAlreadyUsed, status.LockReason)
	assert.Equal(t, -1, status.Score)
	assert.Equal(t, 0, status.MemberLikes)
	assert.Equal(t, 1, status.MemberDislikes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVoteService_FlipAfterWindowExpired(t *testing.T) {
	service, mock, clock := newVoteService(t)
	castAt := clock.Now().UTC().Add(-61 * time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT author_id, score").
		WithArgs("c1").
		WillReturnRows(commentRows("author-1", 5, 1, 0))
	mock.ExpectQuery("SELECT value, flip_count, created_at FROM comment_votes").
		WithArgs("c1", "voter-1").
		WillReturnRows(sqlmock.NewRows([]string{"value", "flip_count", "created_at"}).AddRow(1, 0, castAt))
	mock.ExpectRollback()

	_, err := service.CastVote(context.Background(), "c1", "voter-1", "MEMBER", -1)
	assert.ErrorIs(t, err, ErrVoteWindowExpired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVoteService_SecondFlipRejected(t *testing.T) {
	service, mock, clock := newVoteService(t)
	castAt := clock.Now().UTC().Add(-20 * time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT author_id, score").
		WithArgs("c1").
		WillReturnRows(commentRows("author-1", -1, 0, 1))
	mock.ExpectQuery("SELECT value, flip_count, created_at FROM comment_votes").
		WithArgs("c1", "voter-1").
		WillReturnRows(sqlmock.NewRows([]string{"value", "flip_count", "created_at"}).AddRow(-1, 1, castAt))
	mock.ExpectRollback()

	_, err := service.CastVote(context.Background(), "c1", "voter-1", "MEMBER", 1)
	assert.ErrorIs(t, err, ErrFlipAlreadyUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVoteService_SelfVoteRejected(t *testing.T) {
	service, mock, _ := newVoteService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT author_id, score").
		WithArgs("c1").
		WillReturnRows(commentRows("voter-1", 0, 0, 0))
	mock.ExpectRollback()

	_, err := service.CastVote(context.Background(), "c1", "voter-1", "MEMBER", 1)
	assert.ErrorIs(t, err, ErrSelfVote)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVoteService_SameValueIsNoOp(t *testing.T) {
	service, mock, clock := newVoteService(t)
	castAt := clock.Now().UTC().Add(-5 * time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT author_id, score").
		WithArgs("c1").
		WillReturnRows(commentRows("author-1", 5, 1, 0))
	mock.ExpectQuery("SELECT value, flip_count, created_at FROM comment_votes").
		WithArgs("c1", "voter-1").
		WillReturnRows(sqlmock.NewRows([]string{"value", "flip_count", "created_at"}).AddRow(1, 0, castAt))
	mock.ExpectCommit()

	status, err := service.CastVote(context.Background(), "c1", "voter-1", "MEMBER", 1)
	assert.NoError(t, err)
	assert.Equal(t, 1, status.Value)
	assert.Equal(t, 5, status.Score)
	assert.False(t, status.Locked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVoteService_ModVoteUsesModTable(t *testing.T) {
	service, mock, _ := newVoteService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT author_id, score").
		WithArgs("c1").
		WillReturnRows(commentRows("author-1", 0, 0, 0))
	mock.ExpectQuery("SELECT value, flip_count, created_at FROM comment_mod_votes").
		WithArgs("c1", "mod-1").
		WillReturnRows(sqlmock.NewRows([]string{"value", "flip_count", "created_at"}))
	mock.ExpectExec("INSERT INTO comment_mod_votes").
		WithArgs("c1", "mod-1", 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE comments").
		WithArgs("c1", int64(15), 0, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectExec("INSERT INTO weekly_user_stats").
		WithArgs(sqlmock.AnyArg(), "author-1", int64(15)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO all_time_user_stats").
		WithArgs("author-1", int64(15)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO weekly_voter_stats").WillReturnResult(sqlmock.NewResult(1, 1))
	expectCreditSideEffect(mock)
	expectCreditSideEffect(mock)

	_, err := service.CastVote(context.Background(), "c1", "mod-1", "MOD", 1)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVoteService_StatusReportsLockState(t *testing.T) {
	service, mock, clock := newVoteService(t)
	castAt := clock.Now().UTC().Add(-90 * time.Second)

	mock.ExpectQuery("SELECT author_id, score").
		WithArgs("c1").
		WillReturnRows(commentRows("author-1", 5, 1, 0))
	mock.ExpectQuery("SELECT value, flip_count, created_at FROM comment_votes").
		WithArgs("c1", "voter-1").
		WillReturnRows(sqlmock.NewRows([]string{"value", "flip_count", "created_at"}).AddRow(1, 0, castAt))

	status, err := service.VoteStatusFor(context.Background(), "c1", "voter-1", "MEMBER")
	assert.NoError(t, err)
	assert.True(t, status.Locked)
	assert.Equal(t, ReasonVoteWindowExpired, status.LockReason)
	assert.Zero(t, status.SecondsLeftToFlip)
	assert.Equal(t, 5, status.Score)
	assert.Equal(t, 1, status.MemberLikes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVoteService_StatusWithoutVote(t *testing.T) {
	service, mock, _ := newVoteService(t)

	mock.ExpectQuery("SELECT author_id, score").
		WithArgs("c1").
		WillReturnRows(commentRows("author-1", 12, 3, 1))
	mock.ExpectQuery("SELECT value, flip_count, created_at FROM comment_votes").
		WithArgs("c1", "voter-1").
		WillReturnRows(sqlmock.NewRows([]string{"value", "flip_count", "created_at"}))

	status, err := service.VoteStatusFor(context.Background(), "c1", "voter-1", "MEMBER")
	assert.NoError(t, err)
	assert.False(t, status.Locked)
	assert.Zero(t, status.Value)
	assert.Equal(t, 12, status.Score)
	assert.Equal(t, 3, status.MemberLikes)
	assert.Equal(t, 1, status.MemberDislikes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVoteService_DislikeAlwaysMinusOne(t *testing.T) {
	service := &VoteService{cfg: voteTestConfig()}
	assert.Equal(t, int64(-1), service.voteWeight("MEMBER", -1))
	assert.Equal(t, int64(-1), service.voteWeight("MOD", -1))
	assert.Equal(t, int64(-1), service.voteWeight("ADMIN", -1))
	assert.Equal(t, int64(5), service.voteWeight("MEMBER", 1))
	assert.Equal(t, int64(15), service.voteWeight("ADMIN", 1))
}
