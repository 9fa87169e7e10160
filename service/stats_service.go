package service

import (
	"context"
	"sort"

	"scrimbet/models"
)

const (
	defaultLeaderboardSize   = 20
	defaultMinMatchesForRate = 20
)

// StatsConfig tunes the leaderboard
type StatsConfig struct {
	// MinMatchesForWinRate keeps users with few matches off the win rate board
	MinMatchesForWinRate int64
	// LeaderboardSize is used when a caller passes no limit
	LeaderboardSize int
}

// statsService implements the StatsService interface
type statsService struct {
	ledger LedgerService
	cfg    StatsConfig
}

// NewStatsService creates a new stats service. A zero StatsConfig gets the
// defaults of twenty entries and a twenty match minimum.
func NewStatsService(ledger LedgerService, cfg StatsConfig) StatsService {
	if cfg.MinMatchesForWinRate <= 0 {
		cfg.MinMatchesForWinRate = defaultMinMatchesForRate
	}
	if cfg.LeaderboardSize <= 0 {
		cfg.LeaderboardSize = defaultLeaderboardSize
	}
	return &statsService{
		ledger: ledger,
		cfg:    cfg,
	}
}

func (s *statsService) GetWallet(ctx context.Context, userID int64) *models.Wallet {
	acc := s.ledger.GetAccount(ctx, userID)
	return &models.Wallet{
		UserID:             acc.UserID,
		Balance:            acc.Balance,
		Experience:         acc.Experience,
		LastAttendanceDate: acc.LastAttendanceDate,
	}
}

func (s *statsService) GetRecord(ctx context.Context, userID int64) *models.PlayerRecord {
	record := models.NewPlayerRecord(s.ledger.GetAccount(ctx, userID))
	return &record
}

// Leaderboard ranks users by win rate among those with enough matches, by
// matches played, or by balance among users holding points
func (s *statsService) Leaderboard(ctx context.Context, order models.LeaderboardOrder, limit int) []*models.LeaderboardEntry {
	if limit <= 0 {
		limit = s.cfg.LeaderboardSize
	}

	accounts := s.ledger.Accounts(ctx)
	entries := make([]*models.LeaderboardEntry, 0, len(accounts))
	for _, acc := range accounts {
		if !s.qualifies(order, acc) {
			continue
		}
		entries = append(entries, &models.LeaderboardEntry{
			Record:  models.NewPlayerRecord(acc),
			Balance: acc.Balance,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch order {
		case models.LeaderboardByBalance:
			if a.Balance != b.Balance {
				return a.Balance > b.Balance
			}
		case models.LeaderboardByMatchesPlayed:
			if a.Record.MatchesPlayed != b.Record.MatchesPlayed {
				return a.Record.MatchesPlayed > b.Record.MatchesPlayed
			}
		default:
			if a.Record.WinRate != b.Record.WinRate {
				return a.Record.WinRate > b.Record.WinRate
			}
			if a.Record.MatchesWon != b.Record.MatchesWon {
				return a.Record.MatchesWon > b.Record.MatchesWon
			}
		}
		return a.Record.UserID < b.Record.UserID
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i, entry := range entries {
		entry.Rank = i + 1
	}
	return entries
}

func (s *statsService) qualifies(order models.LeaderboardOrder, acc *models.UserAccount) bool {
	switch order {
	case models.LeaderboardByBalance:
		return acc.Balance > 0
	case models.LeaderboardByMatchesPlayed:
		return acc.MatchesPlayed > 0
	default:
		return acc.MatchesPlayed >= s.cfg.MinMatchesForWinRate
	}
}
