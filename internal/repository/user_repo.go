package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"noticeboard/internal/model"
)

type UserRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewUserRepository(db *pgxpool.Pool, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// ListActiveRecipients resolves the recipient set for a dispatch: every
// active user except the author. target_user_types is intentionally not a
// filter here; see DESIGN.md.
func (r *UserRepository) ListActiveRecipients(ctx context.Context, excludeUserID int64) ([]model.User, error) {
	query := `
		SELECT id, name, email, user_type, is_active, created_at
		FROM users
		WHERE is_active AND id <> $1
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.UserType, &u.IsActive, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}
