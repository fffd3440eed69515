package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"webnotify/app/source"
)

var _ SourceRepository = (*SourceRepo)(nil)

// SourceRepo handles database operations for monitored sources. The source
// config and baseline travel as JSON blobs in dedicated columns, so the
// evaluator's read-modify-write stays a single-row affair.
type SourceRepo struct {
	db *DB
}

func NewSourceRepo(db *DB) *SourceRepo {
	return &SourceRepo{db: db}
}

func (r *SourceRepo) GetSource(id string) (*source.Source, error) {
	row := r.db.QueryRow(`
		SELECT id, user_id, name, check_url, enabled, config, baseline, last_checked, created_at, updated_at
		FROM sources WHERE id = ?
	`, id)

	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return src, nil
}

func (r *SourceRepo) GetEnabledSources() ([]source.Source, error) {
	rows, err := r.db.Query(`
		SELECT id, user_id, name, check_url, enabled, config, baseline, last_checked, created_at, updated_at
		FROM sources WHERE enabled = 1 ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled sources: %w", err)
	}
	defer rows.Close()

	return collectSources(rows)
}

func (r *SourceRepo) GetSources(userID string) ([]source.Source, error) {
	query := `
		SELECT id, user_id, name, check_url, enabled, config, baseline, last_checked, created_at, updated_at
		FROM sources`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	return collectSources(rows)
}

func (r *SourceRepo) GetSourceCount() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM sources`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sources: %w", err)
	}
	return count, nil
}

func (r *SourceRepo) CreateSource(src *source.Source) error {
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	src.CreatedAt = now
	src.UpdatedAt = now

	configJSON, baselineJSON, err := marshalBlobs(src)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO sources (id, user_id, name, check_url, enabled, config, baseline, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, src.ID, src.UserID, src.Name, src.URL, boolToInt(src.Enabled), configJSON, baselineJSON,
		formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}
	return nil
}

// UpsertSeed registers a seed-file source, updating URL, enabled flag and
// config on conflict. The baseline is preserved on update so re-seeding
// never resets change detection.
func (r *SourceRepo) UpsertSeed(seed source.Seed) (string, error) {
	configJSON, err := json.Marshal(seed.Config)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	var existingID string
	err = r.db.QueryRow(`SELECT id FROM sources WHERE user_id = ? AND name = ?`, seed.User, seed.Name).Scan(&existingID)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to check existing source: %w", err)
	}

	now := formatTime(time.Now().UTC())

	if existingID != "" {
		_, err = r.db.Exec(`
			UPDATE sources SET check_url = ?, enabled = ?, config = ?, updated_at = ?
			WHERE id = ?
		`, seed.URL, boolToInt(*seed.Enabled), string(configJSON), now, existingID)
		if err != nil {
			return "", fmt.Errorf("failed to update source: %w", err)
		}
		return existingID, nil
	}

	id := uuid.NewString()
	_, err = r.db.Exec(`
		INSERT INTO sources (id, user_id, name, check_url, enabled, config, baseline, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, '{}', ?, ?)
	`, id, seed.User, seed.Name, seed.URL, boolToInt(*seed.Enabled), string(configJSON), now, now)
	if err != nil {
		return "", fmt.Errorf("failed to insert source: %w", err)
	}
	return id, nil
}

func (r *SourceRepo) CommitCheck(id string, baseline source.Baseline, checkedAt time.Time) error {
	baselineJSON, err := json.Marshal(baseline)
	if err != nil {
		return fmt.Errorf("failed to marshal baseline: %w", err)
	}

	_, err = r.db.Exec(`
		UPDATE sources SET baseline = ?, last_checked = ?, updated_at = ?
		WHERE id = ?
	`, string(baselineJSON), formatTime(checkedAt), formatTime(checkedAt), id)
	if err != nil {
		return fmt.Errorf("failed to commit check: %w", err)
	}
	return nil
}

func (r *SourceRepo) TouchLastChecked(id string, checkedAt time.Time) error {
	_, err := r.db.Exec(`
		UPDATE sources SET last_checked = ? WHERE id = ?
	`, formatTime(checkedAt), id)
	if err != nil {
		return fmt.Errorf("failed to touch last_checked: %w", err)
	}
	return nil
}

// ---- row mapping helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*source.Source, error) {
	var (
		src           source.Source
		enabled       int
		configJSON    string
		baselineJSON  string
		lastChecked   sql.NullString
		createdAtStr  string
		updatedAtStr  string
	)

	err := row.Scan(&src.ID, &src.UserID, &src.Name, &src.URL, &enabled,
		&configJSON, &baselineJSON, &lastChecked, &createdAtStr, &updatedAtStr)
	if err != nil {
		return nil, err
	}

	src.Enabled = enabled != 0

	if err := json.Unmarshal([]byte(configJSON), &src.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := json.Unmarshal([]byte(baselineJSON), &src.Baseline); err != nil {
		return nil, fmt.Errorf("failed to unmarshal baseline: %w", err)
	}

	if src.LastChecked, err = parseNullTime(lastChecked); err != nil {
		return nil, err
	}
	if src.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, err
	}
	if src.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return nil, err
	}

	return &src, nil
}

func collectSources(rows *sql.Rows) ([]source.Source, error) {
	var sources []source.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

func marshalBlobs(src *source.Source) (string, string, error) {
	configJSON, err := json.Marshal(src.Config)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal config: %w", err)
	}
	baselineJSON, err := json.Marshal(src.Baseline)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal baseline: %w", err)
	}
	return string(configJSON), string(baselineJSON), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
