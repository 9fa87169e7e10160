package models

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRandom returns the queued values in order
type scriptedRandom struct {
	values []int
	next   int
}

func (r *scriptedRandom) Intn(n int) int {
	v := r.values[r.next%len(r.values)] % n
	r.next++
	return v
}

var testNow = time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

func fullMatch(t *testing.T) *Match {
	t.Helper()
	m := NewMatch(1, 100, 10, testNow)
	for id := int64(101); id <= 109; id++ {
		require.NoError(t, m.AddParticipant(id))
	}
	require.Equal(t, MatchStateFull, m.State)
	return m
}

// draftedMatch returns a match whose captains are 100 (team 1) and 101 (team 2)
// with team 1 picking first.
func draftedMatch(t *testing.T) *Match {
	t.Helper()
	m := fullMatch(t)
	done, err := m.StartDraft(Actor{ID: 100}, 100, 101, &scriptedRandom{values: []int{0, 0}})
	require.NoError(t, err)
	require.False(t, done)

	for _, id := range m.Undrafted() {
		team := m.NextPickTeam()
		_, err := m.Pick(m.Captains[team-1], id)
		require.NoError(t, err)
	}
	require.Equal(t, MatchStateAwaitingResult, m.State)
	m.OpenBetting(testNow, 210*time.Second)
	return m
}

func TestSnakeOrder(t *testing.T) {
	assert.Equal(t, []int{1, 2, 2, 1, 1, 2, 2, 1}, SnakeOrder(1, 8))
	assert.Equal(t, []int{2, 1, 1, 2, 2, 1, 1, 2}, SnakeOrder(2, 8))
	assert.Equal(t, []int{2, 1, 1}, SnakeOrder(2, 3))
	assert.Empty(t, SnakeOrder(1, 0))
}

func TestMatch_Lobby(t *testing.T) {
	m := NewMatch(1, 100, 3, testNow)
	assert.Equal(t, MatchStateOpen, m.State)
	assert.Equal(t, []int64{100}, m.Roster)

	require.NoError(t, m.AddParticipant(200))
	assert.ErrorIs(t, m.AddParticipant(200), ErrDuplicateAction)

	require.NoError(t, m.AddParticipant(300))
	assert.Equal(t, MatchStateFull, m.State)
	assert.ErrorIs(t, m.AddParticipant(400), ErrMatchFull)

	t.Run("host cannot leave", func(t *testing.T) {
		assert.ErrorIs(t, m.RemoveParticipant(100), ErrUnauthorized)
		assert.Len(t, m.Roster, 3)
	})

	t.Run("non member leave is rejected", func(t *testing.T) {
		assert.ErrorIs(t, m.RemoveParticipant(999), ErrNotParticipant)
	})

	t.Run("leaving a full match reopens it", func(t *testing.T) {
		require.NoError(t, m.RemoveParticipant(200))
		assert.Equal(t, MatchStateOpen, m.State)
		assert.Equal(t, []int64{100, 300}, m.Roster)
	})
}

func TestMatch_StartDraft(t *testing.T) {
	tests := []struct {
		name     string
		actor    Actor
		captainA int64
		captainB int64
		wantErr  error
	}{
		{"non host", Actor{ID: 101, Admin: true}, 100, 101, ErrUnauthorized},
		{"same captain twice", Actor{ID: 100}, 101, 101, ErrInvalidState},
		{"captain not on roster", Actor{ID: 100}, 101, 555, ErrNotParticipant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := fullMatch(t)
			_, err := m.StartDraft(tt.actor, tt.captainA, tt.captainB, &scriptedRandom{values: []int{0}})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, MatchStateFull, m.State)
		})
	}

	t.Run("not full", func(t *testing.T) {
		m := NewMatch(1, 100, 10, testNow)
		require.NoError(t, m.AddParticipant(101))
		_, err := m.StartDraft(Actor{ID: 100}, 100, 101, &scriptedRandom{values: []int{0}})
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("captains are shuffled and second team can pick first", func(t *testing.T) {
		m := fullMatch(t)
		done, err := m.StartDraft(Actor{ID: 100}, 100, 101, &scriptedRandom{values: []int{1, 1}})
		require.NoError(t, err)
		assert.False(t, done)
		assert.Equal(t, [2]int64{101, 100}, m.Captains)
		assert.Equal(t, []int64{101}, m.Teams[Team1])
		assert.Equal(t, []int64{100}, m.Teams[Team2])
		assert.Equal(t, SnakeOrder(Team2, 8), m.DraftOrder)
		assert.Equal(t, Team2, m.NextPickTeam())
		assert.Len(t, m.Undrafted(), 8)
	})

	t.Run("two player roster skips picking", func(t *testing.T) {
		m := NewMatch(1, 100, 2, testNow)
		require.NoError(t, m.AddParticipant(101))
		done, err := m.StartDraft(Actor{ID: 100}, 100, 101, &scriptedRandom{values: []int{0}})
		require.NoError(t, err)
		assert.True(t, done)
		assert.Equal(t, MatchStateAwaitingResult, m.State)
	})
}

func TestMatch_Pick(t *testing.T) {
	m := fullMatch(t)
	_, err := m.StartDraft(Actor{ID: 100}, 100, 101, &scriptedRandom{values: []int{0, 0}})
	require.NoError(t, err)

	t.Run("wrong captain", func(t *testing.T) {
		_, err := m.Pick(101, 102)
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.Equal(t, 0, m.DraftTurn)
	})

	t.Run("outsider", func(t *testing.T) {
		_, err := m.Pick(100, 999)
		assert.ErrorIs(t, err, ErrNotParticipant)
	})

	t.Run("already drafted", func(t *testing.T) {
		_, err := m.Pick(100, 101)
		assert.ErrorIs(t, err, ErrDuplicateAction)
	})

	t.Run("full sequence partitions the roster", func(t *testing.T) {
		for !m.IsTerminal() && m.State == MatchStateDrafting {
			team := m.NextPickTeam()
			_, err := m.Pick(m.Captains[team-1], m.Undrafted()[0])
			require.NoError(t, err)
		}
		assert.Equal(t, MatchStateAwaitingResult, m.State)
		assert.Empty(t, m.Undrafted())

		all := append(append([]int64{}, m.Teams[Team1]...), m.Teams[Team2]...)
		assert.ElementsMatch(t, m.Roster, all)
		assert.Len(t, m.Teams[Team1], 5)
		assert.Len(t, m.Teams[Team2], 5)
		assert.Len(t, m.PickHistory, 8)
	})
}

func TestMatch_UndoPick(t *testing.T) {
	m := fullMatch(t)
	_, err := m.StartDraft(Actor{ID: 100}, 100, 101, &scriptedRandom{values: []int{0, 0}})
	require.NoError(t, err)

	_, err = m.UndoPick(Actor{ID: 100})
	assert.ErrorIs(t, err, ErrNothingToUndo)

	before := m.Snapshot()
	_, err = m.Pick(100, 105)
	require.NoError(t, err)

	_, err = m.UndoPick(Actor{ID: 105})
	assert.ErrorIs(t, err, ErrUnauthorized)

	undone, err := m.UndoPick(Actor{ID: 999, Admin: true})
	require.NoError(t, err)
	assert.Equal(t, DraftPick{Team: Team1, UserID: 105}, undone)

	after := m.Snapshot()
	assert.Equal(t, before.DraftTurn, after.DraftTurn)
	assert.Equal(t, before.Team1, after.Team1)
	assert.Equal(t, before.Team2, after.Team2)
	assert.Equal(t, before.Undrafted, after.Undrafted)
	assert.Empty(t, after.PickHistory)
}

func TestMatch_Bets(t *testing.T) {
	m := draftedMatch(t)

	assert.ErrorIs(t, m.ValidateBet(500, 3, 1000, 1000), ErrInvalidTeam)
	assert.ErrorIs(t, m.ValidateBet(500, Team1, 999, 1000), ErrInvalidAmount)
	assert.ErrorIs(t, m.ValidateBet(500, Team1, 0, 0), ErrInvalidAmount)
	require.NoError(t, m.ValidateBet(500, Team1, 1000, 1000))

	m.RecordBet(500, Team1, 1000, testNow)
	assert.ErrorIs(t, m.ValidateBet(500, Team2, 1000, 1000), ErrDuplicateAction)

	m.CloseBetting()
	assert.ErrorIs(t, m.ValidateBet(501, Team2, 1000, 1000), ErrBettingClosed)
}

func TestMatch_BetsRejectPoolOverflow(t *testing.T) {
	m := draftedMatch(t)
	m.RecordBet(500, Team1, math.MaxInt64-10, testNow)

	assert.ErrorIs(t, m.ValidateBet(501, Team2, 1000, 1000), ErrInvalidAmount)
	assert.NoError(t, m.ValidateBet(501, Team2, 10, 1))
}

func TestCalculatePoolPayouts(t *testing.T) {
	bets := []MatchBet{
		{Bettor: 1, Amount: 1000, Team: Team1},
		{Bettor: 2, Amount: 2000, Team: Team2},
		{Bettor: 3, Amount: 500, Team: Team1},
	}

	payouts, total, winning := CalculatePoolPayouts(bets, Team1)
	assert.Equal(t, int64(3500), total)
	assert.Equal(t, int64(1500), winning)
	assert.Equal(t, []MatchPayout{
		{UserID: 1, Stake: 1000, Amount: 2333},
		{UserID: 3, Stake: 500, Amount: 1166},
	}, payouts)

	var paid int64
	for _, p := range payouts {
		paid += p.Amount
	}
	assert.LessOrEqual(t, paid, total)

	t.Run("stakes whose product exceeds int64", func(t *testing.T) {
		large := []MatchBet{
			{Bettor: 1, Amount: 4_000_000_000, Team: Team1},
			{Bettor: 2, Amount: 3_000_000_000, Team: Team2},
		}
		payouts, total, winning := CalculatePoolPayouts(large, Team1)
		assert.Equal(t, int64(7_000_000_000), total)
		assert.Equal(t, int64(4_000_000_000), winning)
		assert.Equal(t, []MatchPayout{{UserID: 1, Stake: 4_000_000_000, Amount: 7_000_000_000}}, payouts)
	})

	t.Run("large uneven shares floor", func(t *testing.T) {
		large := []MatchBet{
			{Bettor: 1, Amount: 4_000_000_001, Team: Team1},
			{Bettor: 2, Amount: 3_000_000_000, Team: Team2},
			{Bettor: 3, Amount: 2_000_000_000, Team: Team1},
		}
		payouts, total, winning := CalculatePoolPayouts(large, Team1)
		assert.Equal(t, int64(9_000_000_001), total)
		assert.Equal(t, int64(6_000_000_001), winning)
		// 4000000001*9000000001/6000000001 and 2000000000*9000000001/6000000001
		assert.Equal(t, []MatchPayout{
			{UserID: 1, Stake: 4_000_000_001, Amount: 6_000_000_001},
			{UserID: 3, Stake: 2_000_000_000, Amount: 2_999_999_999},
		}, payouts)

		var paid int64
		for _, p := range payouts {
			assert.Positive(t, p.Amount)
			paid += p.Amount
		}
		assert.LessOrEqual(t, paid, total)
	})

	t.Run("nobody backed the winner", func(t *testing.T) {
		payouts, total, winning := CalculatePoolPayouts(bets[1:2], Team1)
		assert.Empty(t, payouts)
		assert.Equal(t, int64(2000), total)
		assert.Zero(t, winning)
	})
}

func TestMatch_DeclareWinner(t *testing.T) {
	m := draftedMatch(t)
	m.RecordBet(1, Team1, 1000, testNow)
	m.RecordBet(2, Team2, 2000, testNow)

	_, err := m.DeclareWinner(Actor{ID: 102}, Team1, testNow)
	assert.ErrorIs(t, err, ErrUnauthorized)

	settlement, err := m.DeclareWinner(Actor{ID: 100}, Team2, testNow)
	require.NoError(t, err)
	assert.Equal(t, MatchStateFinished, m.State)
	assert.False(t, m.BettingOpen)
	assert.Equal(t, int64(3000), settlement.TotalPool)
	assert.Equal(t, []MatchPayout{{UserID: 2, Stake: 2000, Amount: 3000}}, settlement.Payouts)

	// captain appears once even though they lead the team list
	assert.Len(t, settlement.Winners, 5)
	assert.Len(t, settlement.Losers, 5)
	assert.Equal(t, m.Captains[1], settlement.Winners[0])

	_, err = m.DeclareWinner(Actor{ID: 100}, Team1, testNow)
	assert.ErrorIs(t, err, ErrDuplicateAction)
	_, err = m.Cancel(Actor{ID: 100}, testNow)
	assert.ErrorIs(t, err, ErrDuplicateAction)
}

func TestMatch_CancelAndExpire(t *testing.T) {
	t.Run("cancel returns every bet", func(t *testing.T) {
		m := draftedMatch(t)
		m.RecordBet(1, Team1, 1000, testNow)
		m.RecordBet(2, Team2, 2000, testNow)

		refunds, err := m.Cancel(Actor{ID: 7, Admin: true}, testNow)
		require.NoError(t, err)
		assert.Len(t, refunds, 2)
		assert.Equal(t, MatchStateCancelled, m.State)
		assert.False(t, m.BettingOpen)
	})

	t.Run("expire only closes unresolved matches", func(t *testing.T) {
		m := draftedMatch(t)
		assert.True(t, m.Expire(testNow))
		assert.Equal(t, MatchStateFinished, m.State)
		assert.Equal(t, MatchOutcomeTimedOut, m.Outcome)
		assert.False(t, m.Expire(testNow))
	})
}

func TestMatch_Continuations(t *testing.T) {
	prev := draftedMatch(t)
	_, err := prev.DeclareWinner(Actor{ID: 100}, Team1, testNow)
	require.NoError(t, err)

	redraft := NewRedraft(2, prev, testNow)
	assert.Equal(t, MatchStateFull, redraft.State)
	assert.Equal(t, prev.Roster, redraft.Roster)
	assert.Empty(t, redraft.Teams[Team1])
	assert.Equal(t, int64(1), redraft.ParentID)

	rematch := NewRematch(3, prev, testNow)
	assert.Equal(t, MatchStateAwaitingResult, rematch.State)
	assert.Equal(t, prev.Teams, rematch.Teams)
	assert.Equal(t, prev.Captains, rematch.Captains)
	assert.Empty(t, rematch.Bets)
	assert.False(t, rematch.BettingOpen)

	// the copies are independent
	rematch.Teams[Team1][0] = 42
	assert.NotEqual(t, int64(42), prev.Teams[Team1][0])
}
