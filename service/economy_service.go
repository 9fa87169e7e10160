package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scrimbet/models"

	log "github.com/sirupsen/logrus"
)

type economyService struct {
	ledger           LedgerService
	location         *time.Location
	attendanceReward int64
}

// NewEconomyService creates a new economy service. Attendance days roll over
// at midnight in location.
func NewEconomyService(ledger LedgerService, location *time.Location, attendanceReward int64) EconomyService {
	return &economyService{
		ledger:           ledger,
		location:         location,
		attendanceReward: attendanceReward,
	}
}

func (s *economyService) ClaimAttendance(ctx context.Context, userID int64, now time.Time) (*models.AttendanceResult, error) {
	date := AttendanceDate(now, s.location)

	newBalance, err := s.ledger.ClaimAttendance(ctx, userID, date, s.attendanceReward)
	if err != nil {
		if errors.Is(err, models.ErrDuplicateAction) {
			next := NextAttendanceReset(now, s.location)
			return nil, fmt.Errorf("next claim opens in %s: %w", next.Sub(now).Round(time.Minute), err)
		}
		return nil, fmt.Errorf("failed to claim attendance: %w", err)
	}

	log.WithFields(log.Fields{
		"userID":     userID,
		"date":       date,
		"reward":     s.attendanceReward,
		"newBalance": newBalance,
	}).Info("Attendance claimed")

	return &models.AttendanceResult{
		UserID:     userID,
		Date:       date,
		Reward:     s.attendanceReward,
		NewBalance: newBalance,
	}, nil
}

func (s *economyService) Grant(ctx context.Context, actor models.Actor, userID int64, amount int64) (int64, error) {
	if !actor.Admin {
		return 0, fmt.Errorf("only admins can grant points: %w", models.ErrUnauthorized)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("grant amount must be positive: %w", models.ErrInvalidAmount)
	}

	newBalance := s.ledger.Credit(ctx, userID, amount, models.TransactionTypeGrant, map[string]any{
		"granted_by": actor.ID,
	})

	log.WithFields(log.Fields{
		"adminID":    actor.ID,
		"userID":     userID,
		"amount":     amount,
		"newBalance": newBalance,
	}).Info("Points granted")

	return newBalance, nil
}

func (s *economyService) Revoke(ctx context.Context, actor models.Actor, userID int64, amount int64) (*models.RevokeResult, error) {
	if !actor.Admin {
		return nil, fmt.Errorf("only admins can revoke points: %w", models.ErrUnauthorized)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("revoke amount must be positive: %w", models.ErrInvalidAmount)
	}

	revoked := s.ledger.DebitUpTo(ctx, userID, amount, models.TransactionTypeRevoke, map[string]any{
		"revoked_by": actor.ID,
		"requested":  amount,
	})
	result := &models.RevokeResult{
		UserID:     userID,
		Requested:  amount,
		Revoked:    revoked,
		NewBalance: s.ledger.GetBalance(ctx, userID),
	}

	log.WithFields(log.Fields{
		"adminID":   actor.ID,
		"userID":    userID,
		"requested": amount,
		"revoked":   revoked,
	}).Info("Points revoked")

	return result, nil
}

func (s *economyService) Transfer(ctx context.Context, fromUserID, toUserID int64, amount int64) (*models.TransferResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("transfer amount must be positive: %w", models.ErrInvalidAmount)
	}
	if fromUserID == toUserID {
		return nil, models.ErrSelfTransfer
	}

	if !s.ledger.TryTransfer(ctx, fromUserID, toUserID, amount) {
		return nil, fmt.Errorf("insufficient balance: have %d, need %d: %w",
			s.ledger.GetBalance(ctx, fromUserID), amount, models.ErrInsufficientFunds)
	}

	result := &models.TransferResult{
		FromUserID:       fromUserID,
		ToUserID:         toUserID,
		Amount:           amount,
		SenderBalance:    s.ledger.GetBalance(ctx, fromUserID),
		RecipientBalance: s.ledger.GetBalance(ctx, toUserID),
	}

	log.WithFields(log.Fields{
		"from":   fromUserID,
		"to":     toUserID,
		"amount": amount,
	}).Info("Points transferred")

	return result, nil
}
