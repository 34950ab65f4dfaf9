package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/timebot/internal/models"
)

const categoryColumns = `id, user_id, name, emoji, created_at`

// Categories lists a user's categories in creation order.
func (s *Store) Categories(ctx context.Context, userID int64) ([]models.Category, error) {
	cats := []models.Category{}
	err := s.db.SelectContext(ctx, &cats,
		`SELECT `+categoryColumns+` FROM categories WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, classify("list categories", err)
	}
	return cats, nil
}

// CreateCategory adds a category. Duplicate names yield ErrConflict and an
// unknown user ErrReference.
func (s *Store) CreateCategory(ctx context.Context, userID int64, nc models.NewCategory) (models.Category, error) {
	var c models.Category
	err := s.db.GetContext(ctx, &c, `
		INSERT INTO categories (user_id, name, emoji) VALUES ($1, $2, $3)
		RETURNING `+categoryColumns,
		userID, nc.Name, nc.Emoji)
	return c, classify("create category", err)
}

// DeleteCategory removes a category owned by userID. The last remaining
// category cannot be deleted.
func (s *Store) DeleteCategory(ctx context.Context, userID, categoryID int64) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var ids []int64
		// Lock the user's categories so concurrent deletes cannot both pass the guard.
		if err := tx.SelectContext(ctx, &ids,
			`SELECT id FROM categories WHERE user_id = $1 FOR UPDATE`, userID); err != nil {
			return classify("lock categories", err)
		}
		owned := false
		for _, id := range ids {
			if id == categoryID {
				owned = true
				break
			}
		}
		if !owned {
			return fmt.Errorf("delete category %d: %w", categoryID, ErrNotFound)
		}
		if len(ids) == 1 {
			return ErrLastCategory
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = $1 AND user_id = $2`, categoryID, userID)
		return classify("delete category", err)
	})
}

// CategoryOwned reports whether categoryID belongs to userID.
func (s *Store) CategoryOwned(ctx context.Context, userID, categoryID int64) (bool, error) {
	var ok bool
	err := s.db.GetContext(ctx, &ok,
		`SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1 AND user_id = $2)`, categoryID, userID)
	if err != nil {
		return false, classify("category owned", err)
	}
	return ok, nil
}
