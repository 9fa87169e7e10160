package models

import (
	"slices"
	"time"
)

// BettingPoolSummary aggregates the bets of a match
type BettingPoolSummary struct {
	Team1Total int64      `json:"team1_total"`
	Team2Total int64      `json:"team2_total"`
	Total      int64      `json:"total"`
	Bets       []MatchBet `json:"bets"`
}

// MatchSnapshot is a copy of a match safe to render outside the match lock
type MatchSnapshot struct {
	ID              int64              `json:"id"`
	Host            int64              `json:"host"`
	Capacity        int                `json:"capacity"`
	State           MatchState         `json:"state"`
	Outcome         MatchOutcome       `json:"outcome,omitempty"`
	WinningTeam     int                `json:"winning_team,omitempty"`
	Roster          []int64            `json:"roster"`
	Captains        [2]int64           `json:"captains"`
	Team1           []int64            `json:"team1"`
	Team2           []int64            `json:"team2"`
	Undrafted       []int64            `json:"undrafted"`
	DraftOrder      []int              `json:"draft_order"`
	DraftTurn       int                `json:"draft_turn"`
	NextPickTeam    int                `json:"next_pick_team,omitempty"`
	PickHistory     []DraftPick        `json:"pick_history"`
	BettingOpen     bool               `json:"betting_open"`
	BettingClosesAt time.Time          `json:"betting_closes_at,omitempty"`
	ResultDeadline  time.Time          `json:"result_deadline,omitempty"`
	Pool            BettingPoolSummary `json:"pool"`
	ParentID        int64              `json:"parent_id,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	FinishedAt      time.Time          `json:"finished_at,omitempty"`
}

// Snapshot copies the match into its plain-data view
func (m *Match) Snapshot() *MatchSnapshot {
	bets := m.OrderedBets()
	pool := BettingPoolSummary{Bets: bets}
	for _, b := range bets {
		pool.Total += b.Amount
		if b.Team == Team1 {
			pool.Team1Total += b.Amount
		} else {
			pool.Team2Total += b.Amount
		}
	}

	return &MatchSnapshot{
		ID:              m.ID,
		Host:            m.Host,
		Capacity:        m.Capacity,
		State:           m.State,
		Outcome:         m.Outcome,
		WinningTeam:     m.WinningTeam,
		Roster:          slices.Clone(m.Roster),
		Captains:        m.Captains,
		Team1:           slices.Clone(m.Teams[Team1]),
		Team2:           slices.Clone(m.Teams[Team2]),
		Undrafted:       m.Undrafted(),
		DraftOrder:      slices.Clone(m.DraftOrder),
		DraftTurn:       m.DraftTurn,
		NextPickTeam:    m.NextPickTeam(),
		PickHistory:     slices.Clone(m.PickHistory),
		BettingOpen:     m.BettingOpen,
		BettingClosesAt: m.BettingClosesAt,
		ResultDeadline:  m.ResultDeadline,
		Pool:            pool,
		ParentID:        m.ParentID,
		CreatedAt:       m.CreatedAt,
		FinishedAt:      m.FinishedAt,
	}
}
