package models

// Wallet is the account summary shown to its owner
type Wallet struct {
	UserID             int64   `json:"user_id"`
	Balance            int64   `json:"balance"`
	Experience         int64   `json:"experience"`
	LastAttendanceDate *string `json:"last_attendance_date"`
}

// PlayerRecord is a user's match record
type PlayerRecord struct {
	UserID        int64   `json:"user_id"`
	MatchesPlayed int64   `json:"matches_played"`
	MatchesWon    int64   `json:"matches_won"`
	MatchesLost   int64   `json:"matches_lost"`
	WinRate       float64 `json:"win_rate"` // Percentage as 0-100
}

// LeaderboardOrder selects how the leaderboard is ranked
type LeaderboardOrder string

const (
	LeaderboardByWinRate       LeaderboardOrder = "win_rate"
	LeaderboardByMatchesPlayed LeaderboardOrder = "matches_played"
	LeaderboardByBalance       LeaderboardOrder = "balance"
)

// LeaderboardEntry represents a user's entry in the leaderboard
type LeaderboardEntry struct {
	Rank    int          `json:"rank"`
	Record  PlayerRecord `json:"record"`
	Balance int64        `json:"balance"`
}

// NewPlayerRecord derives the record view of an account
func NewPlayerRecord(a *UserAccount) PlayerRecord {
	return PlayerRecord{
		UserID:        a.UserID,
		MatchesPlayed: a.MatchesPlayed,
		MatchesWon:    a.MatchesWon,
		MatchesLost:   a.MatchesLost(),
		WinRate:       a.WinRate(),
	}
}
