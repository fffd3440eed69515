package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var _ NotificationRepository = (*NotificationRepo)(nil)

// NotificationRepo handles database operations for activity events.
type NotificationRepo struct {
	db *DB
}

func NewNotificationRepo(db *DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

func (r *NotificationRepo) Create(n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.DetectedAt.IsZero() {
		n.DetectedAt = time.Now().UTC()
	}
	if n.Meta == nil {
		n.Meta = map[string]any{}
	}

	metaJSON, err := json.Marshal(n.Meta)
	if err != nil {
		return fmt.Errorf("failed to marshal meta: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO notifications (id, user_id, source_id, title, message, link, detected_at, seen, played, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.UserID, nullIfEmpty(n.SourceID), n.Title, n.Message, n.Link,
		formatTime(n.DetectedAt), boolToInt(n.Seen), boolToInt(n.Played), string(metaJSON))
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *NotificationRepo) ListRecent(userID string, unplayedOnly bool, limit, offset int) ([]Notification, error) {
	query := `
		SELECT n.id, n.user_id, COALESCE(n.source_id, ''), COALESCE(s.name, ''),
		       n.title, n.message, n.link, n.detected_at, n.seen, n.played, n.meta
		FROM notifications n
		LEFT JOIN sources s ON s.id = n.source_id
		WHERE 1=1`
	args := []any{}
	if userID != "" {
		query += ` AND n.user_id = ?`
		args = append(args, userID)
	}
	if unplayedOnly {
		query += ` AND n.played = 0`
	}
	query += ` ORDER BY n.detected_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, *n)
	}
	return notifications, rows.Err()
}

// GetActive returns the newest unplayed notification without marking it.
func (r *NotificationRepo) GetActive(userID string) (*Notification, error) {
	query := `
		SELECT n.id, n.user_id, COALESCE(n.source_id, ''), COALESCE(s.name, ''),
		       n.title, n.message, n.link, n.detected_at, n.seen, n.played, n.meta
		FROM notifications n
		LEFT JOIN sources s ON s.id = n.source_id
		WHERE n.played = 0`
	args := []any{}
	if userID != "" {
		query += ` AND n.user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY n.detected_at DESC LIMIT 1`

	n, err := scanNotification(r.db.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active notification: %w", err)
	}
	return n, nil
}

func (r *NotificationRepo) MarkRead(userID string, ids []string, played bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := fmt.Sprintf(`UPDATE notifications SET seen = 1, played = ? WHERE id IN (%s)`, placeholders)
	args := []any{boolToInt(played)}
	for _, id := range ids {
		args = append(args, id)
	}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}

	res, err := r.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return res.RowsAffected()
}

func (r *NotificationRepo) ClearAll(userID string) (int64, error) {
	query := `UPDATE notifications SET seen = 1, played = 1`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}

	res, err := r.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clear notifications: %w", err)
	}
	return res.RowsAffected()
}

func (r *NotificationRepo) DeleteAll(userID string, olderThan *time.Time) (int64, error) {
	query := `DELETE FROM notifications WHERE 1=1`
	args := []any{}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	if olderThan != nil {
		query += ` AND detected_at < ?`
		args = append(args, formatTime(*olderThan))
	}

	res, err := r.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notifications: %w", err)
	}
	return res.RowsAffected()
}

func (r *NotificationRepo) GetNotificationCount() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM notifications`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}

// nullIfEmpty maps an empty string to NULL so the source_id foreign key
// accepts notifications whose source has since been deleted.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanNotification(row rowScanner) (*Notification, error) {
	var (
		n           Notification
		detectedStr string
		seen        int
		played      int
		metaJSON    string
	)

	err := row.Scan(&n.ID, &n.UserID, &n.SourceID, &n.SourceName,
		&n.Title, &n.Message, &n.Link, &detectedStr, &seen, &played, &metaJSON)
	if err != nil {
		return nil, err
	}

	n.Seen = seen != 0
	n.Played = played != 0

	if n.DetectedAt, err = parseTime(detectedStr); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metaJSON), &n.Meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal meta: %w", err)
	}

	return &n, nil
}
