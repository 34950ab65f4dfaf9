package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"unicode"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/timebot/internal/models"
)

const userColumns = `id, telegram_id, username, first_name, timezone, created_at`

// UserByTelegramID looks a user up by Telegram account id.
func (s *Store) UserByTelegramID(ctx context.Context, telegramID int64) (models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID)
	return u, classify("user by telegram id", err)
}

// UserByID loads a user.
func (s *Store) UserByID(ctx context.Context, id int64) (models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return u, classify("user by id", err)
}

// CreateUser registers a user and seeds its categories in one transaction.
// created is false when the Telegram id was already registered; the stored
// user is returned unchanged in that case.
func (s *Store) CreateUser(ctx context.Context, nu models.NewUser, seed []string) (u models.User, created bool, err error) {
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &u, `
			INSERT INTO users (telegram_id, username, first_name, timezone)
			VALUES ($1, $2, $3, COALESCE(NULLIF($4, ''), 'Europe/Moscow'))
			ON CONFLICT (telegram_id) DO NOTHING
			RETURNING `+userColumns,
			nu.TelegramID, nu.Username, nu.FirstName, nu.Timezone)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				// Conflict: nothing was inserted.
				return tx.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, nu.TelegramID)
			}
			return classify("insert user", err)
		}
		created = true
		for _, entry := range seed {
			emoji, name := SplitCategoryLabel(entry)
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO categories (user_id, name, emoji) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
				u.ID, name, emoji); err != nil {
				return classify("seed category", err)
			}
		}
		return nil
	})
	return u, created, err
}

// SplitCategoryLabel splits an "emoji name" label. A label whose first word
// contains a letter or digit has no emoji.
func SplitCategoryLabel(label string) (emoji, name string) {
	label = strings.TrimSpace(label)
	first, rest, ok := strings.Cut(label, " ")
	if !ok || strings.IndexFunc(first, isWordRune) >= 0 {
		return "", label
	}
	return first, strings.TrimSpace(rest)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
