package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrWalletNotFound is returned when a user has no wallet row.
var ErrWalletNotFound = errors.New("wallet not found")

// Repository handles database operations for wallets and their ledger.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new wallet repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetByUserID retrieves a user's wallet.
func (r *Repository) GetByUserID(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	query := `
		SELECT id, user_id, balance, updated_at
		FROM wallets
		WHERE user_id = $1
	`

	var w Wallet
	err := r.db.QueryRow(ctx, query, userID).Scan(&w.ID, &w.UserID, &w.Balance, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet for user %s: %w", userID, err)
	}
	return &w, nil
}

// Credit atomically increases the balance and writes the ledger entry in one
// transaction. A missing wallet row is created on first credit.
func (r *Repository) Credit(ctx context.Context, userID uuid.UUID, rideID *uuid.UUID, txType TransactionType, amount float64, description string) error {
	if amount < 0 {
		return fmt.Errorf("credit amount must be non-negative, got %.2f", amount)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin wallet credit: %w", err)
	}
	defer tx.Rollback(ctx)

	var walletID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO wallets (id, user_id, balance, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = NOW()
		RETURNING id`,
		uuid.New(), userID, amount,
	).Scan(&walletID)
	if err != nil {
		return fmt.Errorf("failed to credit wallet for user %s: %w", userID, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO wallet_transactions (id, wallet_id, ride_id, transaction_type, amount, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		uuid.New(), walletID, rideID, txType, amount, description,
	)
	if err != nil {
		return fmt.Errorf("failed to write wallet ledger entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit wallet credit: %w", err)
	}
	return nil
}

// HasRefundForRide reports whether a refund ledger entry already exists for
// the ride. This is the durable idempotency guard for refund orchestration.
func (r *Repository) HasRefundForRide(ctx context.Context, rideID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM wallet_transactions
			WHERE ride_id = $1 AND transaction_type = 'refund'
		)
	`

	var exists bool
	if err := r.db.QueryRow(ctx, query, rideID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check refund ledger for ride %s: %w", rideID, err)
	}
	return exists, nil
}

// ListTransactions returns the user's ledger, newest first.
func (r *Repository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, error) {
	query := `
		SELECT t.id, t.wallet_id, t.ride_id, t.transaction_type, t.amount, t.description, t.created_at
		FROM wallet_transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE w.user_id = $1
		ORDER BY t.created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.WalletID, &t.RideID, &t.Type, &t.Amount, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wallet transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
