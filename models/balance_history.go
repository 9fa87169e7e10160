package models

import (
	"time"
)

// TransactionType represents the type of balance change
type TransactionType string

const (
	TransactionTypeAttendance     TransactionType = "attendance"
	TransactionTypeGrant          TransactionType = "grant"
	TransactionTypeRevoke         TransactionType = "revoke"
	TransactionTypeTransferIn     TransactionType = "transfer_in"
	TransactionTypeTransferOut    TransactionType = "transfer_out"
	TransactionTypeWagerBet       TransactionType = "wager_bet"
	TransactionTypeWagerPayout    TransactionType = "wager_payout"
	TransactionTypeWagerRefund    TransactionType = "wager_refund"
	TransactionTypeMatchBet       TransactionType = "match_bet"
	TransactionTypeMatchPayout    TransactionType = "match_payout"
	TransactionTypeMatchBetRefund TransactionType = "match_bet_refund"
)

// BalanceHistory represents a historical balance change
type BalanceHistory struct {
	ID                  int64           `db:"id"`
	UserID              int64           `db:"user_id"`
	BalanceBefore       int64           `db:"balance_before"`
	BalanceAfter        int64           `db:"balance_after"`
	ChangeAmount        int64           `db:"change_amount"`
	TransactionType     TransactionType `db:"transaction_type"`
	TransactionMetadata map[string]any  `db:"transaction_metadata"`
	CreatedAt           time.Time       `db:"created_at"`
}
