package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// Notifier delivers in-app notifications. Kept as an interface so the
// raffle and distributor tests can swap in a recorder.
type Notifier interface {
	Notify(ctx context.Context, userID, subject, body string) error
}

type NotifyService struct {
	db *sql.DB
}

func NewNotifyService(db *sql.DB) *NotifyService {
	return &NotifyService{db: db}
}

func (s *NotifyService) Notify(ctx context.Context, userID, subject, body string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, subject, body, created_at)
		VALUES ($1, $2, $3, NOW())`,
		userID, subject, body)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	log.Printf("[NOTIFY] %q -> user %s", subject, userID)
	return nil
}
