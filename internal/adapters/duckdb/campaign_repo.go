package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/manthysbr/placeharvest/internal/core/domain"
)

const campaignColumns = `id, title, status, config, total_tasks, completed_tasks, failed_tasks, created_at, started_at, completed_at, updated_at`

// SaveCampaign upserts the campaign row and inserts tasks it has not stored
// yet. Existing task rows are left alone: once created they are updated
// through SaveTask and RecordTaskOutcome only.
func (r *Repository) SaveCampaign(ctx context.Context, c *domain.Campaign) error {
	configJSON, err := json.Marshal(c.Config)
	if err != nil {
		return fmt.Errorf("failed to encode campaign config: %w", err)
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		query := `
		INSERT INTO campaigns (` + campaignColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			status = excluded.status,
			config = excluded.config,
			total_tasks = excluded.total_tasks,
			completed_tasks = excluded.completed_tasks,
			failed_tasks = excluded.failed_tasks,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at;
		`
		_, err := tx.ExecContext(ctx, query,
			string(c.ID), c.Title, string(c.Status), string(configJSON),
			c.TotalTasks, c.CompletedTasks, c.FailedTasks,
			c.CreatedAt, c.StartedAt, c.CompletedAt, c.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save campaign %s: %w", c.ID, err)
		}

		for _, t := range c.Tasks {
			if err := insertTask(ctx, tx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetCampaign loads the campaign with its tasks in creation order.
func (r *Repository) GetCampaign(ctx context.Context, id domain.CampaignID) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, string(id))
	c, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrCampaignNotFound, id)
		}
		return nil, err
	}

	tasks, err := r.ListCampaignTasks(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Tasks = tasks
	return c, nil
}

// ListCampaigns returns campaigns newest first, without their tasks.
func (r *Repository) ListCampaigns(ctx context.Context) ([]*domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+campaignColumns+` FROM campaigns ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []*domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *Repository) DeleteCampaign(ctx context.Context, id domain.CampaignID) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM extraction_tasks WHERE campaign_id = ?`, string(id)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM campaigns WHERE id = ?`, string(id))
		return err
	})
}

func (r *Repository) IncrementCompleted(ctx context.Context, id domain.CampaignID) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		return incrementCounter(ctx, tx, id, domain.TaskStatusCompleted)
	})
}

func (r *Repository) IncrementFailed(ctx context.Context, id domain.CampaignID) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		return incrementCounter(ctx, tx, id, domain.TaskStatusFailed)
	})
}

func incrementCounter(ctx context.Context, ex execer, id domain.CampaignID, outcome domain.TaskStatus) error {
	var query string
	switch outcome {
	case domain.TaskStatusCompleted:
		query = `UPDATE campaigns SET completed_tasks = completed_tasks + 1, updated_at = ? WHERE id = ?`
	case domain.TaskStatusFailed:
		query = `UPDATE campaigns SET failed_tasks = failed_tasks + 1, updated_at = ? WHERE id = ?`
	default:
		return fmt.Errorf("%w: no campaign counter for task status %s", domain.ErrTaskState, outcome)
	}

	res, err := ex.ExecContext(ctx, query, time.Now().UTC(), string(id))
	if err != nil {
		return fmt.Errorf("failed to increment campaign %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrCampaignNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCampaign(s scanner) (*domain.Campaign, error) {
	var c domain.Campaign
	var idStr, statusStr, configJSON string
	var startedAt, completedAt sql.NullTime

	err := s.Scan(
		&idStr, &c.Title, &statusStr, &configJSON,
		&c.TotalTasks, &c.CompletedTasks, &c.FailedTasks,
		&c.CreatedAt, &startedAt, &completedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.ID = domain.CampaignID(idStr)
	c.Status = domain.CampaignStatus(statusStr)
	if err := json.Unmarshal([]byte(configJSON), &c.Config); err != nil {
		return nil, fmt.Errorf("failed to decode config of campaign %s: %w", idStr, err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	c.StartedAt = nullTime(startedAt)
	c.CompletedAt = nullTime(completedAt)
	return &c, nil
}
