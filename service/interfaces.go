package service

import (
	"context"
	"time"

	"scrimbet/models"
)

// AccountStore persists ledger records
type AccountStore interface {
	// Load returns every stored account keyed by user id
	Load(ctx context.Context) (map[int64]*models.UserAccount, error)

	// Save persists the given accounts; accounts not passed keep their stored values
	Save(ctx context.Context, accounts []*models.UserAccount) error
}

// BalanceHistoryRepository defines the interface for balance history tracking
type BalanceHistoryRepository interface {
	// Record creates a new balance history entry
	Record(ctx context.Context, history *models.BalanceHistory) error

	// GetByUser returns the most recent balance history for a user, newest first
	GetByUser(ctx context.Context, userID int64, limit int) ([]*models.BalanceHistory, error)
}

// LedgerService is the only component that mutates balances and account stats.
// Every mutation is atomic with respect to every other mutation.
type LedgerService interface {
	// Load replaces the in-memory accounts with the stored ones
	Load(ctx context.Context) error

	// Flush persists accounts whose last write failed
	Flush(ctx context.Context) error

	// GetBalance returns the user's balance, creating an empty account if needed
	GetBalance(ctx context.Context, userID int64) int64

	// GetAccount returns a copy of the user's account
	GetAccount(ctx context.Context, userID int64) *models.UserAccount

	// Accounts returns a copy of every account
	Accounts(ctx context.Context) []*models.UserAccount

	// Credit adds amount (which may be negative), flooring the result at zero and
	// capping it at the largest representable balance
	Credit(ctx context.Context, userID int64, amount int64, txType models.TransactionType, metadata map[string]any) int64

	// Debit subtracts a positive amount only if the balance covers it
	Debit(ctx context.Context, userID int64, amount int64, txType models.TransactionType, metadata map[string]any) bool

	// DebitUpTo subtracts min(balance, amount) and returns what was taken
	DebitUpTo(ctx context.Context, userID int64, amount int64, txType models.TransactionType, metadata map[string]any) int64

	// TryTransfer moves a positive amount between two users, or does nothing
	TryTransfer(ctx context.Context, fromUserID, toUserID int64, amount int64) bool

	// ClaimAttendance credits reward once per date
	ClaimAttendance(ctx context.Context, userID int64, date string, reward int64) (int64, error)

	// RecordMatchResult counts one played match, and one win if won
	RecordMatchResult(ctx context.Context, userID int64, won bool)
}

// EconomyService defines attendance and administrative balance operations
type EconomyService interface {
	// ClaimAttendance credits the daily reward once per calendar day in the configured timezone
	ClaimAttendance(ctx context.Context, userID int64, now time.Time) (*models.AttendanceResult, error)

	// Grant credits points to a user; admin only
	Grant(ctx context.Context, actor models.Actor, userID int64, amount int64) (int64, error)

	// Revoke removes up to amount points from a user; admin only
	Revoke(ctx context.Context, actor models.Actor, userID int64, amount int64) (*models.RevokeResult, error)

	// Transfer moves points between two users
	Transfer(ctx context.Context, fromUserID, toUserID int64, amount int64) (*models.TransferResult, error)
}

// WagerService runs the single-player wager games
type WagerService interface {
	// Start debits the bet and opens a session
	Start(ctx context.Context, userID int64, game models.GameType, bet int64) (*models.WagerSnapshot, error)

	// Reveal opens one mines cell
	Reveal(ctx context.Context, sessionID string, userID int64, cell int) (*models.WagerSnapshot, error)

	// CashOut settles a mines or crash session at its current multiplier
	CashOut(ctx context.Context, sessionID string, userID int64) (*models.WagerSnapshot, error)

	// Choose plays a rock paper scissors hand
	Choose(ctx context.Context, sessionID string, userID int64, choice string) (*models.WagerSnapshot, error)

	// Snapshot returns the current view of a session
	Snapshot(sessionID string) (*models.WagerSnapshot, error)

	// Active returns the user's unresolved session for a game type
	Active(userID int64, game models.GameType) (*models.WagerSnapshot, bool)

	// PruneResolved forgets sessions resolved longer ago than olderThan
	PruneResolved(olderThan time.Duration) int

	// Close stops all timers; pending sessions are refunded
	Close(ctx context.Context)
}

// MatchService runs scrim lobbies, drafts and the match betting pool
type MatchService interface {
	Create(ctx context.Context, host int64, capacity int) (*models.MatchSnapshot, error)
	Join(ctx context.Context, matchID, userID int64) (*models.MatchSnapshot, error)
	Leave(ctx context.Context, matchID, userID int64) (*models.MatchSnapshot, error)
	Start(ctx context.Context, matchID int64, actor models.Actor, captainA, captainB int64) (*models.MatchSnapshot, error)
	Pick(ctx context.Context, matchID, captainID, pickedID int64) (*models.MatchSnapshot, error)
	Undo(ctx context.Context, matchID int64, actor models.Actor) (*models.MatchSnapshot, error)
	PlaceBet(ctx context.Context, matchID, bettor int64, team int, amount int64) (*models.MatchSnapshot, error)
	DeclareResult(ctx context.Context, matchID int64, actor models.Actor, winningTeam int) (*models.MatchSettlement, error)
	Cancel(ctx context.Context, matchID int64, actor models.Actor) (*models.MatchSnapshot, error)
	End(ctx context.Context, matchID int64, actor models.Actor) error
	Redraft(ctx context.Context, matchID int64, actor models.Actor) (*models.MatchSnapshot, error)
	Rematch(ctx context.Context, matchID int64, actor models.Actor) (*models.MatchSnapshot, error)
	Get(matchID int64) (*models.MatchSnapshot, error)
	List() []*models.MatchSnapshot
	PruneFinished(olderThan time.Duration) int
	Close()
}

// StatsService defines read-only views over the ledger
type StatsService interface {
	// GetWallet returns balance, experience and last attendance
	GetWallet(ctx context.Context, userID int64) *models.Wallet

	// GetRecord returns the user's match record
	GetRecord(ctx context.Context, userID int64) *models.PlayerRecord

	// Leaderboard ranks by win rate (users at the minimum match count), matches
	// played, or balance; limit <= 0 uses the configured size
	Leaderboard(ctx context.Context, order models.LeaderboardOrder, limit int) []*models.LeaderboardEntry
}
