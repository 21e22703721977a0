package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopool/internal/models"
	"gopool/internal/repositories/interfaces"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type userRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) interfaces.UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, email, phone, first_name, last_name, role, status, wallet_balance, currency, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Phone, &u.FirstName, &u.LastName,
		&u.Role, &u.Status, &u.WalletBalance, &u.Currency, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

func (r *userRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id::text = $1 OR email = $1 OR phone = $1`
	return scanUser(r.db.QueryRow(ctx, query, identifier))
}

func (r *userRepository) GetByRole(ctx context.Context, role models.UserRole) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = $1 ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, role)
	if err != nil {
		return nil, fmt.Errorf("failed to query users by role: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}
	return users, nil
}

func (r *userRepository) UpdateWalletBalance(ctx context.Context, userID string, newBalance float64) error {
	query := `UPDATE users SET wallet_balance = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, userID, newBalance)
	if err != nil {
		return fmt.Errorf("failed to update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// DebitWallet is guarded by the balance check in the same statement, so
// two concurrent debits can never overdraw.
func (r *userRepository) DebitWallet(ctx context.Context, userID string, amount float64) error {
	query := `UPDATE users SET wallet_balance = wallet_balance - $2, updated_at = NOW()
		WHERE id = $1 AND wallet_balance >= $2`
	tag, err := r.db.Exec(ctx, query, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to debit wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, userID); getErr != nil {
			return getErr
		}
		return models.ErrInsufficientFunds
	}
	return nil
}

func (r *userRepository) CreditWallet(ctx context.Context, userID string, amount float64) error {
	query := `UPDATE users SET wallet_balance = wallet_balance + $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to credit wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) GetCards(ctx context.Context, userID string) ([]*models.Card, error) {
	query := `SELECT id, user_id, card_number, brand, card_limit, created_at
		FROM cards WHERE user_id = $1 ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var cards []*models.Card
	for rows.Next() {
		var c models.Card
		var createdAt time.Time
		if err := rows.Scan(&c.ID, &c.UserID, &c.CardNumber, &c.Brand, &c.Limit, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		c.CreatedAt = createdAt
		cards = append(cards, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating card rows: %w", err)
	}
	return cards, nil
}

func (r *userRepository) UpdateCardLimit(ctx context.Context, userID, cardNumber string, newLimit float64) error {
	query := `UPDATE cards SET card_limit = $3 WHERE user_id = $1 AND card_number = $2`
	tag, err := r.db.Exec(ctx, query, userID, cardNumber, newLimit)
	if err != nil {
		return fmt.Errorf("failed to update card limit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrCardNotFound
	}
	return nil
}
