package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// GameType identifies a wager mini-game
type GameType string

const (
	GameTypeMines GameType = "mines"
	GameTypeCrash GameType = "crash"
	GameTypeRPS   GameType = "rps"
)

// Valid reports whether g is a known game type
func (g GameType) Valid() bool {
	switch g {
	case GameTypeMines, GameTypeCrash, GameTypeRPS:
		return true
	}
	return false
}

// WagerStatus is the settlement state of a wager session
type WagerStatus string

const (
	WagerStatusPending  WagerStatus = "pending"
	WagerStatusWon      WagerStatus = "won"
	WagerStatusLost     WagerStatus = "lost"
	WagerStatusRefunded WagerStatus = "refunded"
)

// WagerEndReason explains why a session was resolved
type WagerEndReason string

const (
	WagerEndNone    WagerEndReason = ""
	WagerEndCashOut WagerEndReason = "cash_out"
	WagerEndBomb    WagerEndReason = "bomb"
	WagerEndCrash   WagerEndReason = "crash"
	WagerEndWin     WagerEndReason = "win"
	WagerEndLoss    WagerEndReason = "loss"
	WagerEndTie     WagerEndReason = "tie"
	WagerEndTimeout WagerEndReason = "timeout"
	// WagerEndShutdown refunds sessions still open when the bot stops
	WagerEndShutdown WagerEndReason = "shutdown"
)

// MinesCell is one cell of a mines board as shown to the player. Hidden cells
// carry no bomb or multiplier information.
type MinesCell struct {
	Index      int             `json:"index"`
	Revealed   bool            `json:"revealed"`
	Bomb       bool            `json:"bomb"`
	Multiplier decimal.Decimal `json:"multiplier"`
}

// WagerSnapshot is the plain-data view of a wager session
type WagerSnapshot struct {
	SessionID  string          `json:"session_id"`
	UserID     int64           `json:"user_id"`
	Game       GameType        `json:"game"`
	Bet        int64           `json:"bet"`
	Status     WagerStatus     `json:"status"`
	EndReason  WagerEndReason  `json:"end_reason,omitempty"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Payout     int64           `json:"payout"`
	Balance    int64           `json:"balance"`
	StartedAt  time.Time       `json:"started_at"`
	ResolvedAt time.Time       `json:"resolved_at,omitempty"`

	// mines
	Policy  string      `json:"policy,omitempty"`
	Cells   []MinesCell `json:"cells,omitempty"`
	Reveals int         `json:"reveals,omitempty"`

	// crash; CrashPoint is only set once the round is over
	Ticks      int              `json:"ticks,omitempty"`
	CrashPoint *decimal.Decimal `json:"crash_point,omitempty"`

	// rps
	PlayerChoice string `json:"player_choice,omitempty"`
	BotChoice    string `json:"bot_choice,omitempty"`
}

// IsResolved reports whether the session has settled
func (s *WagerSnapshot) IsResolved() bool {
	return s.Status != WagerStatusPending
}
