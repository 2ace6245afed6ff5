package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage"
)

// RecordDelivery persists one scheduled notification attempt. A blank id is
// replaced with a new UUID.
func (s *Store) RecordDelivery(ctx context.Context, delivery storage.DeliveryRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if delivery.UserID <= 0 {
		return fmt.Errorf("user id is required")
	}
	delivery.Kind = strings.TrimSpace(delivery.Kind)
	if delivery.Kind == "" {
		return fmt.Errorf("delivery kind is required")
	}
	switch delivery.Status {
	case storage.DeliverySent, storage.DeliveryFailed:
	default:
		return fmt.Errorf("delivery status %q is invalid", delivery.Status)
	}
	if strings.TrimSpace(delivery.ID) == "" {
		delivery.ID = uuid.NewString()
	}
	if delivery.SentAt.IsZero() {
		delivery.SentAt = s.clock()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO notification_deliveries (id, user_id, kind, message, status, last_error, sent_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		delivery.ID,
		delivery.UserID,
		delivery.Kind,
		delivery.Message,
		delivery.Status,
		delivery.LastError,
		toMillis(delivery.SentAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		if isForeignKeyConstraintError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

// ListDeliveries lists one user's deliveries newest-first.
func (s *Store) ListDeliveries(ctx context.Context, userID int64, limit int) ([]storage.DeliveryRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, user_id, kind, message, status, last_error, sent_at
FROM notification_deliveries
WHERE user_id = ?
ORDER BY sent_at DESC, id DESC
LIMIT ?
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []storage.DeliveryRecord
	for rows.Next() {
		var (
			record storage.DeliveryRecord
			sentAt int64
		)
		if err := rows.Scan(&record.ID, &record.UserID, &record.Kind, &record.Message, &record.Status, &record.LastError, &sentAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		record.SentAt = fromMillis(sentAt)
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return out, nil
}
