package models

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// MatchState represents where a match is in its lifecycle
type MatchState string

const (
	MatchStateOpen           MatchState = "open"
	MatchStateFull           MatchState = "full"
	MatchStateDrafting       MatchState = "drafting"
	MatchStateAwaitingResult MatchState = "awaiting_result"
	MatchStateFinished       MatchState = "finished"
	MatchStateCancelled      MatchState = "cancelled"
)

// MatchOutcome records how a terminal match ended
type MatchOutcome string

const (
	MatchOutcomeNone      MatchOutcome = ""
	MatchOutcomeDeclared  MatchOutcome = "declared"
	MatchOutcomeCancelled MatchOutcome = "cancelled"
	MatchOutcomeTimedOut  MatchOutcome = "timed_out"
)

const (
	Team1 = 1
	Team2 = 2

	DefaultMatchCapacity = 10
)

// Actor identifies who is invoking a privileged match operation. Admin is
// resolved by the chat platform; the match only trusts it for host-or-admin checks.
type Actor struct {
	ID    int64
	Admin bool
}

// MatchBet is a single stake on one team of a match
type MatchBet struct {
	Bettor   int64     `json:"bettor"`
	Amount   int64     `json:"amount"`
	Team     int       `json:"team"`
	PlacedAt time.Time `json:"placed_at"`
}

// DraftPick is one entry of the pick history
type DraftPick struct {
	Team   int   `json:"team"`
	UserID int64 `json:"user_id"`
}

// MatchPayout is what one winning bettor receives
type MatchPayout struct {
	UserID int64 `json:"user_id"`
	Stake  int64 `json:"stake"`
	Amount int64 `json:"amount"`
}

// MatchSettlement is the outcome of declaring a winner
type MatchSettlement struct {
	MatchID     int64
	WinningTeam int
	Winners     []int64 // participants credited with a win, de-duplicated
	Losers      []int64
	TotalPool   int64
	WinningPool int64
	Payouts     []MatchPayout
}

// DraftRandom is the randomness the draft needs
type DraftRandom interface {
	Intn(n int) int
}

// Match is a drafted team game with a parimutuel betting pool. It is not safe
// for concurrent use; the match service serializes access per match.
type Match struct {
	ID              int64
	Host            int64
	Capacity        int
	Roster          []int64
	Captains        [2]int64 // Captains[0] leads team 1
	Teams           map[int][]int64
	DraftOrder      []int
	DraftTurn       int
	PickHistory     []DraftPick
	State           MatchState
	Outcome         MatchOutcome
	WinningTeam     int
	Bets            map[int64]*MatchBet
	BetOrder        []int64
	BettingOpen     bool
	BettingClosesAt time.Time
	ResultDeadline  time.Time
	ParentID        int64
	CreatedAt       time.Time
	FinishedAt      time.Time
}

// NewMatch creates an open lobby with the host as its first member
func NewMatch(id, host int64, capacity int, now time.Time) *Match {
	if capacity <= 0 {
		capacity = DefaultMatchCapacity
	}
	m := &Match{
		ID:        id,
		Host:      host,
		Capacity:  capacity,
		Roster:    []int64{host},
		Teams:     map[int][]int64{Team1: {}, Team2: {}},
		Bets:      make(map[int64]*MatchBet),
		State:     MatchStateOpen,
		CreatedAt: now,
	}
	m.syncCapacityState()
	return m
}

// NewRedraft starts a fresh match with the same roster, ready for a new draft
func NewRedraft(id int64, prev *Match, now time.Time) *Match {
	m := NewMatch(id, prev.Host, prev.Capacity, now)
	m.Roster = slices.Clone(prev.Roster)
	m.ParentID = prev.ID
	m.syncCapacityState()
	return m
}

// NewRematch starts a fresh match with the same roster and teams, skipping the
// draft. The caller opens the betting window.
func NewRematch(id int64, prev *Match, now time.Time) *Match {
	m := NewMatch(id, prev.Host, prev.Capacity, now)
	m.Roster = slices.Clone(prev.Roster)
	m.Captains = prev.Captains
	m.Teams = map[int][]int64{
		Team1: slices.Clone(prev.Teams[Team1]),
		Team2: slices.Clone(prev.Teams[Team2]),
	}
	m.DraftOrder = slices.Clone(prev.DraftOrder)
	m.PickHistory = slices.Clone(prev.PickHistory)
	m.DraftTurn = len(m.DraftOrder)
	m.ParentID = prev.ID
	m.State = MatchStateAwaitingResult
	return m
}

// IsTerminal reports whether no further transition is possible
func (m *Match) IsTerminal() bool {
	return m.State == MatchStateFinished || m.State == MatchStateCancelled
}

// IsParticipant reports whether userID is on the roster
func (m *Match) IsParticipant(userID int64) bool {
	return slices.Contains(m.Roster, userID)
}

func (m *Match) canModerate(actor Actor) bool {
	return actor.ID == m.Host || actor.Admin
}

func (m *Match) syncCapacityState() {
	switch m.State {
	case MatchStateOpen, MatchStateFull:
		if len(m.Roster) >= m.Capacity {
			m.State = MatchStateFull
		} else {
			m.State = MatchStateOpen
		}
	}
}

// AddParticipant adds a user to the lobby
func (m *Match) AddParticipant(userID int64) error {
	if m.State == MatchStateFull {
		return ErrMatchFull
	}
	if m.State != MatchStateOpen {
		return fmt.Errorf("cannot join match in state %s: %w", m.State, ErrInvalidState)
	}
	if m.IsParticipant(userID) {
		return ErrDuplicateAction
	}
	m.Roster = append(m.Roster, userID)
	m.syncCapacityState()
	return nil
}

// RemoveParticipant removes a non-host user from the lobby
func (m *Match) RemoveParticipant(userID int64) error {
	if m.State != MatchStateOpen && m.State != MatchStateFull {
		return fmt.Errorf("cannot leave match in state %s: %w", m.State, ErrInvalidState)
	}
	if userID == m.Host {
		return fmt.Errorf("host cannot leave their own match: %w", ErrUnauthorized)
	}
	idx := slices.Index(m.Roster, userID)
	if idx < 0 {
		return ErrNotParticipant
	}
	m.Roster = slices.Delete(m.Roster, idx, idx+1)
	m.syncCapacityState()
	return nil
}

// StartDraft seeds the captains and the pick order. Captains are shuffled onto
// the two teams before the first-pick side is drawn. It returns true when the
// roster holds only the captains, so the draft is already complete.
func (m *Match) StartDraft(actor Actor, captainA, captainB int64, r DraftRandom) (bool, error) {
	if actor.ID != m.Host {
		return false, fmt.Errorf("only the host can start the draft: %w", ErrUnauthorized)
	}
	if m.State != MatchStateFull {
		return false, fmt.Errorf("cannot start draft in state %s: %w", m.State, ErrInvalidState)
	}
	if captainA == captainB {
		return false, fmt.Errorf("captains must be two different players: %w", ErrInvalidState)
	}
	if !m.IsParticipant(captainA) || !m.IsParticipant(captainB) {
		return false, fmt.Errorf("captains must be on the roster: %w", ErrNotParticipant)
	}

	if r.Intn(2) == 1 {
		captainA, captainB = captainB, captainA
	}
	m.Captains = [2]int64{captainA, captainB}
	m.Teams = map[int][]int64{Team1: {captainA}, Team2: {captainB}}
	m.DraftOrder = SnakeOrder(1+r.Intn(2), len(m.Roster)-2)
	m.DraftTurn = 0
	m.PickHistory = nil
	m.State = MatchStateDrafting

	if len(m.DraftOrder) == 0 {
		m.State = MatchStateAwaitingResult
		return true, nil
	}
	return false, nil
}

// SnakeOrder returns the team sequence for picks, starting with first and
// alternating in mirrored pairs: 1,2,2,1,1,2,2,1 for first=1.
func SnakeOrder(first, picks int) []int {
	second := OtherTeam(first)
	order := make([]int, max(picks, 0))
	for i := range order {
		if ((i+1)/2)%2 == 0 {
			order[i] = first
		} else {
			order[i] = second
		}
	}
	return order
}

// OtherTeam returns the opposing team number
func OtherTeam(team int) int {
	if team == Team1 {
		return Team2
	}
	return Team1
}

// NextPickTeam returns the team whose captain picks next, 0 when none
func (m *Match) NextPickTeam() int {
	if m.State != MatchStateDrafting || m.DraftTurn >= len(m.DraftOrder) {
		return 0
	}
	return m.DraftOrder[m.DraftTurn]
}

// Undrafted returns roster members not yet on a team, in roster order
func (m *Match) Undrafted() []int64 {
	out := make([]int64, 0, len(m.Roster))
	for _, id := range m.Roster {
		if !slices.Contains(m.Teams[Team1], id) && !slices.Contains(m.Teams[Team2], id) {
			out = append(out, id)
		}
	}
	return out
}

// Pick drafts a player for the captain whose turn it is. It returns true once
// the final pick moved the match to AwaitingResult.
func (m *Match) Pick(actorID, picked int64) (bool, error) {
	if m.State != MatchStateDrafting {
		return false, fmt.Errorf("cannot pick in state %s: %w", m.State, ErrInvalidState)
	}
	team := m.NextPickTeam()
	if actorID != m.Captains[team-1] {
		return false, fmt.Errorf("it is team %d captain's turn: %w", team, ErrUnauthorized)
	}
	if !m.IsParticipant(picked) {
		return false, ErrNotParticipant
	}
	if !slices.Contains(m.Undrafted(), picked) {
		return false, ErrDuplicateAction
	}

	m.Teams[team] = append(m.Teams[team], picked)
	m.PickHistory = append(m.PickHistory, DraftPick{Team: team, UserID: picked})
	m.DraftTurn++

	if m.DraftTurn == len(m.DraftOrder) {
		m.State = MatchStateAwaitingResult
		return true, nil
	}
	return false, nil
}

// UndoPick reverts the most recent pick
func (m *Match) UndoPick(actor Actor) (DraftPick, error) {
	if !m.canModerate(actor) {
		return DraftPick{}, fmt.Errorf("only the host or an admin can undo: %w", ErrUnauthorized)
	}
	if m.State != MatchStateDrafting {
		return DraftPick{}, fmt.Errorf("cannot undo in state %s: %w", m.State, ErrInvalidState)
	}
	if len(m.PickHistory) == 0 {
		return DraftPick{}, ErrNothingToUndo
	}

	last := m.PickHistory[len(m.PickHistory)-1]
	m.PickHistory = m.PickHistory[:len(m.PickHistory)-1]
	members := m.Teams[last.Team]
	if idx := slices.Index(members, last.UserID); idx >= 0 {
		m.Teams[last.Team] = slices.Delete(members, idx, idx+1)
	}
	m.DraftTurn--
	return last, nil
}

// OpenBetting starts the betting window
func (m *Match) OpenBetting(now time.Time, window time.Duration) {
	m.BettingOpen = true
	m.BettingClosesAt = now.Add(window)
}

// CloseBetting ends the betting window; it never reopens for this match
func (m *Match) CloseBetting() {
	m.BettingOpen = false
}

// ValidateBet checks a bet before any money moves
func (m *Match) ValidateBet(bettor int64, team int, amount, minBet int64) error {
	if m.State != MatchStateAwaitingResult || !m.BettingOpen {
		return ErrBettingClosed
	}
	if team != Team1 && team != Team2 {
		return ErrInvalidTeam
	}
	if amount <= 0 || amount < minBet {
		return fmt.Errorf("minimum bet is %d: %w", minBet, ErrInvalidAmount)
	}
	if _, exists := m.Bets[bettor]; exists {
		return ErrDuplicateAction
	}
	var pool int64
	for _, b := range m.Bets {
		pool += b.Amount
	}
	if pool > math.MaxInt64-amount {
		return fmt.Errorf("pool is full: %w", ErrInvalidAmount)
	}
	return nil
}

// RecordBet registers a bet whose stake has already been debited
func (m *Match) RecordBet(bettor int64, team int, amount int64, now time.Time) *MatchBet {
	bet := &MatchBet{Bettor: bettor, Amount: amount, Team: team, PlacedAt: now}
	m.Bets[bettor] = bet
	m.BetOrder = append(m.BetOrder, bettor)
	return bet
}

// OrderedBets returns bets in placement order
func (m *Match) OrderedBets() []MatchBet {
	out := make([]MatchBet, 0, len(m.BetOrder))
	for _, id := range m.BetOrder {
		out = append(out, *m.Bets[id])
	}
	return out
}

// DeclareWinner finishes the match and computes stats and pool payouts. The
// caller applies the settlement to the ledger.
func (m *Match) DeclareWinner(actor Actor, team int, now time.Time) (*MatchSettlement, error) {
	if !m.canModerate(actor) {
		return nil, fmt.Errorf("only the host or an admin can declare a result: %w", ErrUnauthorized)
	}
	if m.IsTerminal() {
		return nil, ErrDuplicateAction
	}
	if m.State != MatchStateAwaitingResult {
		return nil, fmt.Errorf("cannot declare result in state %s: %w", m.State, ErrInvalidState)
	}
	if team != Team1 && team != Team2 {
		return nil, ErrInvalidTeam
	}

	m.CloseBetting()
	m.State = MatchStateFinished
	m.Outcome = MatchOutcomeDeclared
	m.WinningTeam = team
	m.FinishedAt = now

	payouts, total, winning := CalculatePoolPayouts(m.OrderedBets(), team)
	return &MatchSettlement{
		MatchID:     m.ID,
		WinningTeam: team,
		Winners:     uniqueIDs(m.Captains[team-1], m.Teams[team]),
		Losers:      uniqueIDs(m.Captains[OtherTeam(team)-1], m.Teams[OtherTeam(team)]),
		TotalPool:   total,
		WinningPool: winning,
		Payouts:     payouts,
	}, nil
}

// Cancel closes the match without a result and returns the bets to refund
func (m *Match) Cancel(actor Actor, now time.Time) ([]MatchBet, error) {
	if !m.canModerate(actor) {
		return nil, fmt.Errorf("only the host or an admin can cancel: %w", ErrUnauthorized)
	}
	if m.IsTerminal() {
		return nil, ErrDuplicateAction
	}

	m.CloseBetting()
	m.State = MatchStateCancelled
	m.Outcome = MatchOutcomeCancelled
	m.FinishedAt = now
	return m.OrderedBets(), nil
}

// Expire closes an unresolved match once its result deadline passed. Nothing
// is credited. It returns false if the match was no longer awaiting a result.
func (m *Match) Expire(now time.Time) bool {
	if m.State != MatchStateAwaitingResult {
		return false
	}
	m.CloseBetting()
	m.State = MatchStateFinished
	m.Outcome = MatchOutcomeTimedOut
	m.FinishedAt = now
	return true
}

// CalculatePoolPayouts splits the pool among bettors on the winning team in
// proportion to their stake, flooring each share. Nobody is paid when no one
// backed the winner. Shares are computed exactly so large stakes cannot wrap.
func CalculatePoolPayouts(bets []MatchBet, winningTeam int) ([]MatchPayout, int64, int64) {
	var totalPool, winningPool int64
	for _, b := range bets {
		totalPool += b.Amount
		if b.Team == winningTeam {
			winningPool += b.Amount
		}
	}
	if winningPool == 0 {
		return nil, totalPool, 0
	}

	total := decimal.NewFromInt(totalPool)
	winning := decimal.NewFromInt(winningPool)

	payouts := make([]MatchPayout, 0, len(bets))
	for _, b := range bets {
		if b.Team != winningTeam {
			continue
		}
		payouts = append(payouts, MatchPayout{
			UserID: b.Bettor,
			Stake:  b.Amount,
			Amount: poolShare(b.Amount, total, winning),
		})
	}
	return payouts, totalPool, winningPool
}

// poolShare returns floor(stake*total/winning); all operands are positive
func poolShare(stake int64, total, winning decimal.Decimal) int64 {
	q, _ := decimal.NewFromInt(stake).Mul(total).QuoRem(winning, 0)
	return q.IntPart()
}

func uniqueIDs(first int64, rest []int64) []int64 {
	out := []int64{first}
	for _, id := range rest {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
