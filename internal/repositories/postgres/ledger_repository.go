package postgres

import (
	"context"
	"fmt"
	"time"

	"gopool/internal/models"
	"gopool/internal/repositories/interfaces"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ledgerRepository struct {
	db *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) interfaces.LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) Record(ctx context.Context, entry *models.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now()

	query := `INSERT INTO ledger_entries
		(id, user_id, trip_id, direction, amount, currency, method, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.UserID, entry.TripID, entry.Direction,
		entry.Amount, entry.Currency, entry.Method, entry.TransactionID, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record ledger entry: %w", err)
	}
	return nil
}

const ledgerColumns = `id, user_id, trip_id, direction, amount, currency, method, transaction_id, created_at`

func collectLedgerEntries(rows pgx.Rows) ([]*models.LedgerEntry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.LedgerEntry, error) {
		var e models.LedgerEntry
		err := row.Scan(&e.ID, &e.UserID, &e.TripID, &e.Direction,
			&e.Amount, &e.Currency, &e.Method, &e.TransactionID, &e.CreatedAt)
		return &e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan ledger entries: %w", err)
	}
	return entries, nil
}

func (r *ledgerRepository) GetByUser(ctx context.Context, userID string, limit int) ([]*models.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()
	return collectLedgerEntries(rows)
}

func (r *ledgerRepository) GetByTrip(ctx context.Context, tripID string) ([]*models.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE trip_id = $1 ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trip ledger entries: %w", err)
	}
	defer rows.Close()
	return collectLedgerEntries(rows)
}
