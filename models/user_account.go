package models

import (
	"math"
	"time"
)

// AttendanceDateLayout is the ISO calendar date format stored in LastAttendanceDate.
const AttendanceDateLayout = "2006-01-02"

// UserAccount is the per-user ledger record
type UserAccount struct {
	UserID             int64     `json:"user_id" db:"user_id"`
	Balance            int64     `json:"balance" db:"balance"`
	Experience         int64     `json:"experience" db:"experience"`
	MatchesPlayed      int64     `json:"matches_played" db:"matches_played"`
	MatchesWon         int64     `json:"matches_won" db:"matches_won"`
	LastAttendanceDate *string   `json:"last_attendance_date" db:"last_attendance_date"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// MatchesLost is derived; every played match is either won or lost
func (a *UserAccount) MatchesLost() int64 {
	return a.MatchesPlayed - a.MatchesWon
}

// WinRate returns the win percentage rounded to two decimals, 0 when no match was played
func (a *UserAccount) WinRate() float64 {
	if a.MatchesPlayed == 0 {
		return 0
	}
	rate := float64(a.MatchesWon) / float64(a.MatchesPlayed) * 100
	return float64(int64(rate*100+0.5)) / 100
}

// Clone returns a deep copy safe to hand outside the ledger lock
func (a *UserAccount) Clone() *UserAccount {
	c := *a
	if a.LastAttendanceDate != nil {
		d := *a.LastAttendanceDate
		c.LastAttendanceDate = &d
	}
	return &c
}

// AddBalance applies a signed change to a non-negative balance. The result
// never drops below zero and saturates at math.MaxInt64 instead of wrapping.
func AddBalance(balance, amount int64) int64 {
	if amount > 0 && balance > math.MaxInt64-amount {
		return math.MaxInt64
	}
	return max(0, balance+amount)
}
