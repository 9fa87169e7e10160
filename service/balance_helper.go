package service

import (
	"context"
	"fmt"

	"scrimbet/events"
	"scrimbet/models"

	log "github.com/sirupsen/logrus"
)

// RecordBalanceChange records a balance history entry for a ledger change.
// The ledger stays authoritative; history is an audit trail written after the fact.
func RecordBalanceChange(ctx context.Context, repo BalanceHistoryRepository, event events.BalanceChangeEvent) error {
	history := &models.BalanceHistory{
		UserID:              event.UserID,
		BalanceBefore:       event.OldBalance,
		BalanceAfter:        event.NewBalance,
		ChangeAmount:        event.ChangeAmount,
		TransactionType:     event.TransactionType,
		TransactionMetadata: event.Metadata,
	}
	if err := repo.Record(ctx, history); err != nil {
		return fmt.Errorf("failed to record balance history: %w", err)
	}
	return nil
}

// SubscribeBalanceHistory records every balance change emitted on bus
func SubscribeBalanceHistory(bus *events.Bus, repo BalanceHistoryRepository) {
	bus.Subscribe(events.EventTypeBalanceChange, func(ctx context.Context, event events.Event) {
		change, ok := event.(events.BalanceChangeEvent)
		if !ok {
			return
		}
		if err := RecordBalanceChange(ctx, repo, change); err != nil {
			log.WithFields(log.Fields{
				"userID":          change.UserID,
				"transactionType": change.TransactionType,
				"error":           err,
			}).Error("Failed to record balance history")
		}
	})
}
