package repository

import (
	"context"
	"fmt"

	"scrimbet/database"
	"scrimbet/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// queryable is satisfied by both the pool and a transaction
type queryable interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserAccountRepository reads and writes user_accounts rows
type UserAccountRepository struct {
	q queryable
}

// NewUserAccountRepository creates a new user account repository
func NewUserAccountRepository(db *database.DB) *UserAccountRepository {
	return &UserAccountRepository{q: db.Pool}
}

// newUserAccountRepositoryWithTx creates a new user account repository with a transaction
func newUserAccountRepositoryWithTx(tx queryable) *UserAccountRepository {
	return &UserAccountRepository{q: tx}
}

// GetByUserID retrieves one account, nil if it was never stored
func (r *UserAccountRepository) GetByUserID(ctx context.Context, userID int64) (*models.UserAccount, error) {
	query := `
		SELECT user_id, balance, experience, matches_played, matches_won,
		       last_attendance_date, created_at, updated_at
		FROM user_accounts
		WHERE user_id = $1
	`

	var acc models.UserAccount
	err := r.q.QueryRow(ctx, query, userID).Scan(
		&acc.UserID,
		&acc.Balance,
		&acc.Experience,
		&acc.MatchesPlayed,
		&acc.MatchesWon,
		&acc.LastAttendanceDate,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %d: %w", userID, err)
	}

	return &acc, nil
}

// GetAll returns every stored account
func (r *UserAccountRepository) GetAll(ctx context.Context) ([]*models.UserAccount, error) {
	query := `
		SELECT user_id, balance, experience, matches_played, matches_won,
		       last_attendance_date, created_at, updated_at
		FROM user_accounts
		ORDER BY user_id
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.UserAccount
	for rows.Next() {
		var acc models.UserAccount
		err := rows.Scan(
			&acc.UserID,
			&acc.Balance,
			&acc.Experience,
			&acc.MatchesPlayed,
			&acc.MatchesWon,
			&acc.LastAttendanceDate,
			&acc.CreatedAt,
			&acc.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, &acc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}

	return accounts, nil
}

// Upsert writes the account's current values, inserting the row if needed
func (r *UserAccountRepository) Upsert(ctx context.Context, acc *models.UserAccount) error {
	query := `
		INSERT INTO user_accounts
		(user_id, balance, experience, matches_played, matches_won, last_attendance_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			balance = EXCLUDED.balance,
			experience = EXCLUDED.experience,
			matches_played = EXCLUDED.matches_played,
			matches_won = EXCLUDED.matches_won,
			last_attendance_date = EXCLUDED.last_attendance_date,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		acc.UserID,
		acc.Balance,
		acc.Experience,
		acc.MatchesPlayed,
		acc.MatchesWon,
		acc.LastAttendanceDate,
	).Scan(&acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert account %d: %w", acc.UserID, err)
	}

	return nil
}
