package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"downbeat/internal/domain"
	"downbeat/internal/repository"
)

const createStatusCacheTable = `
CREATE TABLE IF NOT EXISTS status_cache (
	external_task_id TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// StatusCacheRepository stores normalized status payloads keyed by external
// task id.
type StatusCacheRepository struct {
	db *sql.DB
}

func NewStatusCacheRepository(db *sql.DB) repository.StatusCache {
	return &StatusCacheRepository{db: db}
}

func (r *StatusCacheRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createStatusCacheTable); err != nil {
		return fmt.Errorf("create status cache table: %w", err)
	}
	return nil
}

func (r *StatusCacheRepository) Load(ctx context.Context) (map[string]domain.StatusUpdate, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT external_task_id, payload FROM status_cache`)
	if err != nil {
		return nil, fmt.Errorf("query status cache: %w", err)
	}
	defer rows.Close()

	cached := make(map[string]domain.StatusUpdate)
	for rows.Next() {
		var (
			taskID  string
			payload string
		)
		if err := rows.Scan(&taskID, &payload); err != nil {
			return nil, fmt.Errorf("scan status cache row: %w", err)
		}
		var update domain.StatusUpdate
		if err := json.Unmarshal([]byte(payload), &update); err != nil {
			// a corrupt slot is not worth failing startup over
			continue
		}
		cached[taskID] = update
	}
	return cached, rows.Err()
}

func (r *StatusCacheRepository) Put(ctx context.Context, externalTaskID string, update domain.StatusUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("encode status payload: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO status_cache (external_task_id, payload, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(external_task_id) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
		externalTaskID,
		string(payload),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert status cache: %w", err)
	}
	return nil
}

func (r *StatusCacheRepository) Delete(ctx context.Context, externalTaskID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM status_cache WHERE external_task_id=?`, externalTaskID); err != nil {
		return fmt.Errorf("delete status cache slot: %w", err)
	}
	return nil
}
