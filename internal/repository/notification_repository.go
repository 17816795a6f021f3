package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Dan9191/advance-service/internal/models"
)

// NotificationRepository persists in-app notifications
type NotificationRepository struct {
	q queryable
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{q: db}
}

// Create inserts a notification
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode notification payload: %w", err)
	}
	query := `
		INSERT INTO notifications (recipient_id, type, payload)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	err = r.q.QueryRowContext(ctx, query, n.RecipientID, string(n.Type), payload).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification for user %d: %w", n.RecipientID, err)
	}
	return nil
}

// ListByRecipient returns the newest notifications for a user
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID int64, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, recipient_id, type, payload, read_at, created_at
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY id DESC
		LIMIT $2`
	rows, err := r.q.QueryContext(ctx, query, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications for user %d: %w", recipientID, err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		var (
			ntype   string
			payload []byte
			readAt  sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &ntype, &payload, &readAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if err := json.Unmarshal(payload, &n.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode notification payload: %w", err)
		}
		n.Type = models.NotificationType(ntype)
		n.ReadAt = timePtr(readAt)
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return notifications, nil
}
