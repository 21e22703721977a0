package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopool/internal/models"
	"gopool/internal/repositories/interfaces"
	"gopool/internal/utils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type friendshipRepository struct {
	db *pgxpool.Pool
}

func NewFriendshipRepository(db *pgxpool.Pool) interfaces.FriendshipRepository {
	return &friendshipRepository{db: db}
}

func (r *friendshipRepository) Create(ctx context.Context, friendship *models.Friendship) error {
	if friendship.ID == "" {
		friendship.ID = uuid.NewString()
	}
	friendship.CreatedAt = time.Now()

	query := `INSERT INTO friendships (id, user_low, user_high, blocked, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Exec(ctx, query,
		friendship.ID, friendship.UserLow, friendship.UserHigh, friendship.Blocked, friendship.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.ErrFriendshipExists
		}
		return fmt.Errorf("failed to create friendship: %w", err)
	}
	return nil
}

func (r *friendshipRepository) Exists(ctx context.Context, userA, userB string) (bool, error) {
	low, high := utils.OrderPair(userA, userB)

	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM friendships WHERE user_low = $1 AND user_high = $2)`
	if err := r.db.QueryRow(ctx, query, low, high).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check friendship: %w", err)
	}
	return exists, nil
}

func (r *friendshipRepository) GetByUser(ctx context.Context, userID string) ([]*models.Friendship, error) {
	query := `SELECT id, user_low, user_high, blocked, created_at
		FROM friendships WHERE user_low = $1 OR user_high = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query friendships: %w", err)
	}
	defer rows.Close()

	friendships, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Friendship, error) {
		var f models.Friendship
		err := row.Scan(&f.ID, &f.UserLow, &f.UserHigh, &f.Blocked, &f.CreatedAt)
		return &f, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan friendships: %w", err)
	}
	return friendships, nil
}

func (r *friendshipRepository) SetBlocked(ctx context.Context, userA, userB string, blocked bool) error {
	low, high := utils.OrderPair(userA, userB)

	query := `UPDATE friendships SET blocked = $3 WHERE user_low = $1 AND user_high = $2`
	tag, err := r.db.Exec(ctx, query, low, high, blocked)
	if err != nil {
		return fmt.Errorf("failed to update friendship: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.NewDomainError(models.CodeNotFound, "friendship not found")
	}
	return nil
}
