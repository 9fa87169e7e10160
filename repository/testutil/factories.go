package testutil

import (
	"time"

	"scrimbet/models"
)

// CreateTestAccount creates an account with a balance and no match record
func CreateTestAccount(userID int64, balance int64) *models.UserAccount {
	now := time.Now()
	return &models.UserAccount{
		UserID:    userID,
		Balance:   balance,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CreateTestAccountWithRecord creates an account with a match record
func CreateTestAccountWithRecord(userID int64, balance, played, won int64) *models.UserAccount {
	acc := CreateTestAccount(userID, balance)
	acc.MatchesPlayed = played
	acc.MatchesWon = won
	return acc
}

// CreateTestBalanceHistory creates a test balance history entry
func CreateTestBalanceHistory(userID int64, transactionType models.TransactionType) *models.BalanceHistory {
	return &models.BalanceHistory{
		UserID:          userID,
		BalanceBefore:   10000,
		BalanceAfter:    9000,
		ChangeAmount:    -1000,
		TransactionType: transactionType,
		TransactionMetadata: map[string]any{
			"test": true,
		},
		CreatedAt: time.Now(),
	}
}

// CreateTestBalanceHistoryWithAmounts creates a test balance history with specific amounts
func CreateTestBalanceHistoryWithAmounts(userID int64, before, after int64, transactionType models.TransactionType) *models.BalanceHistory {
	history := CreateTestBalanceHistory(userID, transactionType)
	history.BalanceBefore = before
	history.BalanceAfter = after
	history.ChangeAmount = after - before
	return history
}
