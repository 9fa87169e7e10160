package repository

import (
	"context"
	"fmt"

	"scrimbet/database"
	"scrimbet/models"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
)

// PostgresAccountStore persists ledger accounts in user_accounts
type PostgresAccountStore struct {
	db *database.DB
}

// NewPostgresAccountStore creates a store backed by db
func NewPostgresAccountStore(db *database.DB) *PostgresAccountStore {
	return &PostgresAccountStore{db: db}
}

// Load returns every stored account keyed by user id
func (s *PostgresAccountStore) Load(ctx context.Context) (map[int64]*models.UserAccount, error) {
	accounts, err := NewUserAccountRepository(s.db).GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	out := make(map[int64]*models.UserAccount, len(accounts))
	for _, acc := range accounts {
		out[acc.UserID] = acc
	}

	log.WithField("accounts", len(out)).Info("Loaded accounts from database")
	return out, nil
}

// Save upserts the given accounts in one transaction; either all of them are
// written or none
func (s *PostgresAccountStore) Save(ctx context.Context, accounts []*models.UserAccount) error {
	if len(accounts) == 0 {
		return nil
	}

	err := s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		repo := newUserAccountRepositoryWithTx(tx)
		for _, acc := range accounts {
			if err := repo.Upsert(ctx, acc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save %d accounts: %w", len(accounts), err)
	}

	log.WithField("accounts", len(accounts)).Debug("Saved accounts to database")
	return nil
}
