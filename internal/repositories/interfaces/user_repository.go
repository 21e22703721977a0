package interfaces

import (
	"context"

	"gopool/internal/models"
)

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)

	// GetByIdentifier resolves a user by id, email or phone.
	GetByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	GetByRole(ctx context.Context, role models.UserRole) ([]*models.User, error)

	UpdateWalletBalance(ctx context.Context, userID string, newBalance float64) error

	// DebitWallet subtracts amount conditional on sufficient balance;
	// returns ErrInsufficientFunds otherwise.
	DebitWallet(ctx context.Context, userID string, amount float64) error
	CreditWallet(ctx context.Context, userID string, amount float64) error

	GetCards(ctx context.Context, userID string) ([]*models.Card, error)
	UpdateCardLimit(ctx context.Context, userID, cardNumber string, newLimit float64) error
}

type FriendshipRepository interface {
	// Create inserts the canonical-ordered pair; returns
	// ErrFriendshipExists when a row for the pair already exists.
	Create(ctx context.Context, friendship *models.Friendship) error

	Exists(ctx context.Context, userA, userB string) (bool, error)
	GetByUser(ctx context.Context, userID string) ([]*models.Friendship, error)
	SetBlocked(ctx context.Context, userA, userB string, blocked bool) error
}

type LedgerRepository interface {
	Record(ctx context.Context, entry *models.LedgerEntry) error
	GetByUser(ctx context.Context, userID string, limit int) ([]*models.LedgerEntry, error)
	GetByTrip(ctx context.Context, tripID string) ([]*models.LedgerEntry, error)
}
