package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/manthysbr/placeharvest/internal/core/domain"
)

const enrichmentColumns = `id, place_id, website_url, status, attempts, last_error, created_at, started_at, completed_at, updated_at`

func (r *Repository) SaveEnrichmentTask(ctx context.Context, t *domain.WebsiteEnrichmentTask) error {
	query := `
	INSERT INTO website_enrichment_tasks (` + enrichmentColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		status = excluded.status,
		attempts = excluded.attempts,
		last_error = excluded.last_error,
		started_at = excluded.started_at,
		completed_at = excluded.completed_at,
		updated_at = excluded.updated_at;
	`
	return r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			string(t.ID), string(t.PlaceID), t.WebsiteURL, string(t.Status), t.Attempts,
			nullString(t.LastError), t.CreatedAt, t.StartedAt, t.CompletedAt, t.UpdatedAt,
		)
		return err
	})
}

func (r *Repository) GetEnrichmentTask(ctx context.Context, id domain.EnrichmentTaskID) (*domain.WebsiteEnrichmentTask, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+enrichmentColumns+` FROM website_enrichment_tasks WHERE id = ?`, string(id))

	var t domain.WebsiteEnrichmentTask
	var idStr, placeIDStr, statusStr string
	var lastError sql.NullString
	var startedAt, completedAt sql.NullTime
	err := row.Scan(
		&idStr, &placeIDStr, &t.WebsiteURL, &statusStr, &t.Attempts,
		&lastError, &t.CreatedAt, &startedAt, &completedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: enrichment task %s", domain.ErrTaskNotFound, id)
		}
		return nil, err
	}

	t.ID = domain.EnrichmentTaskID(idStr)
	t.PlaceID = domain.PlaceID(placeIDStr)
	t.Status = domain.TaskStatus(statusStr)
	t.LastError = stringPtr(lastError)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	t.StartedAt = nullTime(startedAt)
	t.CompletedAt = nullTime(completedAt)
	return &t, nil
}

// FindPendingEnrichmentIDs is global: enrichment tasks belong to no campaign.
func (r *Repository) FindPendingEnrichmentIDs(ctx context.Context, maxAttempts int) ([]domain.EnrichmentTaskID, error) {
	query := `
	SELECT id FROM website_enrichment_tasks
	WHERE status = ? OR (status = ? AND attempts < ?)
	ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, string(domain.TaskStatusPending), string(domain.TaskStatusFailed), maxAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []domain.EnrichmentTaskID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		ids = append(ids, domain.EnrichmentTaskID(s))
	}
	return ids, rows.Err()
}
