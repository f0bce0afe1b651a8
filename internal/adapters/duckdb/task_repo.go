package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/manthysbr/placeharvest/internal/core/domain"
)

const taskColumns = `id, campaign_id, search_seed, geoname, status, attempts, last_error, places_extracted, created_at, started_at, completed_at, updated_at`

func taskArgs(t *domain.ExtractionTask) ([]any, error) {
	geonameJSON, err := json.Marshal(t.Geoname)
	if err != nil {
		return nil, fmt.Errorf("failed to encode geoname of task %s: %w", t.ID, err)
	}
	return []any{
		string(t.ID), string(t.CampaignID), t.SearchSeed, string(geonameJSON),
		string(t.Status), t.Attempts, nullString(t.LastError), t.PlacesExtracted,
		t.CreatedAt, t.StartedAt, t.CompletedAt, t.UpdatedAt,
	}, nil
}

func insertTask(ctx context.Context, ex execer, t *domain.ExtractionTask) error {
	args, err := taskArgs(t)
	if err != nil {
		return err
	}
	query := `
	INSERT INTO extraction_tasks (` + taskColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO NOTHING;
	`
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert task %s: %w", t.ID, err)
	}
	return nil
}

func upsertTask(ctx context.Context, ex execer, t *domain.ExtractionTask) error {
	args, err := taskArgs(t)
	if err != nil {
		return err
	}
	query := `
	INSERT INTO extraction_tasks (` + taskColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		status = excluded.status,
		attempts = excluded.attempts,
		last_error = excluded.last_error,
		places_extracted = excluded.places_extracted,
		started_at = excluded.started_at,
		completed_at = excluded.completed_at,
		updated_at = excluded.updated_at;
	`
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save task %s: %w", t.ID, err)
	}
	return nil
}

func (r *Repository) SaveTask(ctx context.Context, t *domain.ExtractionTask) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		return upsertTask(ctx, tx, t)
	})
}

// RecordTaskOutcome saves a completed or failed task and, for a final
// outcome, bumps the matching campaign counter. Both happen or neither does.
func (r *Repository) RecordTaskOutcome(ctx context.Context, t *domain.ExtractionTask, final bool) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := upsertTask(ctx, tx, t); err != nil {
			return err
		}
		if !final {
			return nil
		}
		return incrementCounter(ctx, tx, t.CampaignID, t.Status)
	})
}

func (r *Repository) GetTask(ctx context.Context, id domain.TaskID) (*domain.ExtractionTask, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM extraction_tasks WHERE id = ?`, string(id))
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
		}
		return nil, err
	}
	return t, nil
}

func (r *Repository) ListCampaignTasks(ctx context.Context, id domain.CampaignID) ([]*domain.ExtractionTask, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM extraction_tasks WHERE campaign_id = ? ORDER BY created_at ASC, id ASC`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.ExtractionTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// FindPendingIDs returns pending tasks and failed ones with attempts left,
// oldest first.
func (r *Repository) FindPendingIDs(ctx context.Context, id domain.CampaignID, maxAttempts int) ([]domain.TaskID, error) {
	query := `
	SELECT id FROM extraction_tasks
	WHERE campaign_id = ?
	  AND (status = ? OR (status = ? AND attempts < ?))
	ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query,
		string(id), string(domain.TaskStatusPending), string(domain.TaskStatusFailed), maxAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []domain.TaskID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		ids = append(ids, domain.TaskID(s))
	}
	return ids, rows.Err()
}

func scanTask(s scanner) (*domain.ExtractionTask, error) {
	var t domain.ExtractionTask
	var idStr, campaignIDStr, geonameJSON, statusStr string
	var lastError sql.NullString
	var startedAt, completedAt sql.NullTime

	err := s.Scan(
		&idStr, &campaignIDStr, &t.SearchSeed, &geonameJSON,
		&statusStr, &t.Attempts, &lastError, &t.PlacesExtracted,
		&t.CreatedAt, &startedAt, &completedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.ID = domain.TaskID(idStr)
	t.CampaignID = domain.CampaignID(campaignIDStr)
	t.Status = domain.TaskStatus(statusStr)
	if err := json.Unmarshal([]byte(geonameJSON), &t.Geoname); err != nil {
		return nil, fmt.Errorf("failed to decode geoname of task %s: %w", idStr, err)
	}
	t.LastError = stringPtr(lastError)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	t.StartedAt = nullTime(startedAt)
	t.CompletedAt = nullTime(completedAt)
	return &t, nil
}
