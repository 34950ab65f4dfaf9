package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/timebot/internal/models"
)

const activityColumns = `id, user_id, category_id, description, tags, start_time, end_time,
	duration_minutes, client_ref, created_at`

// CreateActivity inserts an activity. A repeated (user, client_ref) pair
// returns the previously stored row with created=false.
func (s *Store) CreateActivity(ctx context.Context, na models.NewActivity) (a models.Activity, created bool, err error) {
	var ref *string
	if na.ClientRef != "" {
		ref = &na.ClientRef
	}
	tags := pq.StringArray(na.Tags)
	if tags == nil {
		tags = pq.StringArray{}
	}

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &a, `
			INSERT INTO activities (user_id, category_id, description, tags, start_time, end_time, client_ref)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (user_id, client_ref) WHERE client_ref IS NOT NULL DO NOTHING
			RETURNING `+activityColumns,
			na.UserID, na.CategoryID, na.Description, tags, na.StartTime.UTC(), na.EndTime.UTC(), ref)
		switch {
		case err == nil:
			created = true
			return nil
		case errors.Is(err, sql.ErrNoRows) && ref != nil:
			return tx.GetContext(ctx, &a,
				`SELECT `+activityColumns+` FROM activities WHERE user_id = $1 AND client_ref = $2`,
				na.UserID, *ref)
		default:
			return classify("insert activity", err)
		}
	})
	return a, created, err
}

// RecentActivities returns up to limit activities, newest start first.
func (s *Store) RecentActivities(ctx context.Context, userID int64, limit int) ([]models.Activity, error) {
	acts := []models.Activity{}
	err := s.db.SelectContext(ctx, &acts,
		`SELECT `+activityColumns+` FROM activities WHERE user_id = $1 ORDER BY start_time DESC, id DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, classify("recent activities", err)
	}
	return acts, nil
}

// DeleteActivity removes an activity owned by userID.
func (s *Store) DeleteActivity(ctx context.Context, userID, activityID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM activities WHERE id = $1 AND user_id = $2`, activityID, userID)
	if err != nil {
		return classify("delete activity", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete activity %d: %w", activityID, ErrNotFound)
	}
	return nil
}
