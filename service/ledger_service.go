package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"scrimbet/events"
	"scrimbet/models"

	log "github.com/sirupsen/logrus"
)

// ledgerService keeps every account in memory and writes changed accounts
// through to the store. Memory is authoritative: a failed write is logged and
// the account stays dirty until a later write or Flush succeeds.
type ledgerService struct {
	mu       sync.Mutex
	accounts map[int64]*models.UserAccount
	dirty    map[int64]struct{}

	store AccountStore
	bus   *events.Bus
	now   func() time.Time
}

// NewLedgerService creates a ledger backed by store; call Load before use
func NewLedgerService(store AccountStore, bus *events.Bus) LedgerService {
	return &ledgerService{
		accounts: make(map[int64]*models.UserAccount),
		dirty:    make(map[int64]struct{}),
		store:    store,
		bus:      bus,
		now:      time.Now,
	}
}

func (s *ledgerService) Load(ctx context.Context) error {
	loaded, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = make(map[int64]*models.UserAccount, len(loaded))
	for id, acc := range loaded {
		acc.UserID = id
		s.accounts[id] = acc
	}
	s.dirty = make(map[int64]struct{})

	log.WithField("accounts", len(s.accounts)).Info("Loaded ledger accounts")
	return nil
}

func (s *ledgerService) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveDirtyLocked(ctx)
}

func (s *ledgerService) GetBalance(ctx context.Context, userID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountLocked(userID).Balance
}

func (s *ledgerService) GetAccount(ctx context.Context, userID int64) *models.UserAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountLocked(userID).Clone()
}

func (s *ledgerService) Accounts(ctx context.Context) []*models.UserAccount {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.UserAccount, 0, len(s.accounts))
	for _, acc := range s.accounts {
		out = append(out, acc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (s *ledgerService) Credit(ctx context.Context, userID int64, amount int64, txType models.TransactionType, metadata map[string]any) int64 {
	var newBalance int64
	s.mutate(ctx, func(tb *events.TransactionalBus) []int64 {
		acc := s.accountLocked(userID)
		old := acc.Balance
		acc.Balance = models.AddBalance(old, amount)
		newBalance = acc.Balance
		if acc.Balance == old {
			return nil
		}
		s.publishChange(tb, acc, old, txType, metadata)
		return []int64{userID}
	})
	return newBalance
}

func (s *ledgerService) Debit(ctx context.Context, userID int64, amount int64, txType models.TransactionType, metadata map[string]any) bool {
	if amount <= 0 {
		return false
	}

	ok := false
	s.mutate(ctx, func(tb *events.TransactionalBus) []int64 {
		acc := s.accountLocked(userID)
		if acc.Balance < amount {
			return nil
		}
		old := acc.Balance
		acc.Balance -= amount
		ok = true
		s.publishChange(tb, acc, old, txType, metadata)
		return []int64{userID}
	})

	if !ok {
		log.WithFields(log.Fields{
			"userID": userID,
			"amount": amount,
			"type":   txType,
		}).Debug("Debit rejected")
	}
	return ok
}

func (s *ledgerService) TryTransfer(ctx context.Context, fromUserID, toUserID int64, amount int64) bool {
	if amount <= 0 {
		return false
	}

	ok := false
	s.mutate(ctx, func(tb *events.TransactionalBus) []int64 {
		from := s.accountLocked(fromUserID)
		to := s.accountLocked(toUserID)
		if from.Balance < amount || to.Balance > math.MaxInt64-amount {
			return nil
		}
		oldFrom := from.Balance
		from.Balance -= amount
		s.publishChange(tb, from, oldFrom, models.TransactionTypeTransferOut, map[string]any{
			"recipient_id":    toUserID,
			"transfer_amount": amount,
		})

		oldTo := to.Balance
		to.Balance += amount
		s.publishChange(tb, to, oldTo, models.TransactionTypeTransferIn, map[string]any{
			"sender_id":       fromUserID,
			"transfer_amount": amount,
		})

		ok = true
		return []int64{fromUserID, toUserID}
	})
	return ok
}

// DebitUpTo takes min(balance, amount) and returns what was taken
func (s *ledgerService) DebitUpTo(ctx context.Context, userID int64, amount int64, txType models.TransactionType, metadata map[string]any) int64 {
	if amount <= 0 {
		return 0
	}

	var taken int64
	s.mutate(ctx, func(tb *events.TransactionalBus) []int64 {
		acc := s.accountLocked(userID)
		taken = min(acc.Balance, amount)
		if taken == 0 {
			return nil
		}
		old := acc.Balance
		acc.Balance -= taken
		s.publishChange(tb, acc, old, txType, metadata)
		return []int64{userID}
	})
	return taken
}

func (s *ledgerService) ClaimAttendance(ctx context.Context, userID int64, date string, reward int64) (int64, error) {
	var (
		newBalance int64
		err        error
	)
	s.mutate(ctx, func(tb *events.TransactionalBus) []int64 {
		acc := s.accountLocked(userID)
		if acc.LastAttendanceDate != nil && *acc.LastAttendanceDate == date {
			newBalance = acc.Balance
			err = fmt.Errorf("attendance already claimed for %s: %w", date, models.ErrDuplicateAction)
			return nil
		}

		claimed := date
		acc.LastAttendanceDate = &claimed
		old := acc.Balance
		acc.Balance = models.AddBalance(old, reward)
		newBalance = acc.Balance
		if acc.Balance != old {
			s.publishChange(tb, acc, old, models.TransactionTypeAttendance, map[string]any{"date": date})
		}
		return []int64{userID}
	})
	return newBalance, err
}

func (s *ledgerService) RecordMatchResult(ctx context.Context, userID int64, won bool) {
	s.mutate(ctx, func(tb *events.TransactionalBus) []int64 {
		acc := s.accountLocked(userID)
		acc.MatchesPlayed++
		if won {
			acc.MatchesWon++
		}
		return []int64{userID}
	})
}

// mutate runs fn under the ledger lock, writes the accounts it reports as
// changed, and releases the events fn raised once the lock is dropped
func (s *ledgerService) mutate(ctx context.Context, fn func(tb *events.TransactionalBus) []int64) {
	tb := events.NewTransactionalBus(s.bus)

	s.mu.Lock()
	changed := fn(tb)
	if len(changed) > 0 {
		now := s.now()
		for _, id := range changed {
			s.accounts[id].UpdatedAt = now
			s.dirty[id] = struct{}{}
		}
		if err := s.saveDirtyLocked(ctx); err != nil {
			log.WithFields(log.Fields{
				"users": changed,
				"error": err,
			}).Error("Failed to persist ledger change, will retry on next flush")
		}
	}
	s.mu.Unlock()

	// a rejected mutation leaves nothing to announce
	if len(changed) == 0 {
		tb.Discard()
		return
	}
	if tb.Pending() == 0 {
		return
	}
	if err := tb.Flush(ctx); err != nil {
		log.WithError(err).Error("Failed to flush ledger events")
	}
}

// accountLocked returns the account for userID, creating it on first reference
func (s *ledgerService) accountLocked(userID int64) *models.UserAccount {
	acc, ok := s.accounts[userID]
	if !ok {
		now := s.now()
		acc = &models.UserAccount{UserID: userID, CreatedAt: now, UpdatedAt: now}
		s.accounts[userID] = acc
		s.dirty[userID] = struct{}{}
	}
	return acc
}

func (s *ledgerService) saveDirtyLocked(ctx context.Context) error {
	if len(s.dirty) == 0 {
		return nil
	}

	batch := make([]*models.UserAccount, 0, len(s.dirty))
	for id := range s.dirty {
		batch = append(batch, s.accounts[id].Clone())
	}

	// a write that already started should finish even if the request is cancelled
	if err := s.store.Save(context.WithoutCancel(ctx), batch); err != nil {
		return fmt.Errorf("failed to save %d accounts: %w", len(batch), err)
	}
	clear(s.dirty)
	return nil
}

func (s *ledgerService) publishChange(tb *events.TransactionalBus, acc *models.UserAccount, old int64, txType models.TransactionType, metadata map[string]any) {
	tb.Publish(events.BalanceChangeEvent{
		UserID:          acc.UserID,
		OldBalance:      old,
		NewBalance:      acc.Balance,
		ChangeAmount:    acc.Balance - old,
		TransactionType: txType,
		Metadata:        metadata,
	})
}
