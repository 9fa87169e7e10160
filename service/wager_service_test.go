package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"scrimbet/events"
	"scrimbet/games"
	"scrimbet/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testWagerConfig() WagerConfig {
	crash := games.DefaultCrashConfig()
	crash.Tick = time.Hour // tests drive ticks by hand
	return WagerConfig{
		MinBet:       1000,
		Mines:        games.DefaultMinesConfig(),
		MinesTimeout: time.Hour,
		Crash:        crash,
		RPS:          games.DefaultRPSConfig(),
		RPSTimeout:   time.Hour,
	}
}

func newTestWagers(t *testing.T, balances map[int64]int64, rng games.Random, configure func(*WagerConfig)) (*wagerService, *ledgerService, *events.Bus) {
	t.Helper()

	ledger, _, bus := newTestLedger(t, balances)
	cfg := testWagerConfig()
	if configure != nil {
		configure(&cfg)
	}
	if rng == nil {
		rng = &stubRandom{}
	}

	svc, err := newWagerService(ledger, bus, rng, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close(context.Background()) })
	return svc, ledger, bus
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestWagerService_StartValidation(t *testing.T) {
	ctx := context.Background()
	svc, ledger, _ := newTestWagers(t, map[int64]int64{1: 10000, 2: 500}, nil, nil)

	_, err := svc.Start(ctx, 1, models.GameTypeMines, 999)
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = svc.Start(ctx, 1, "slots", 1000)
	assert.ErrorIs(t, err, models.ErrInvalidState)

	_, err = svc.Start(ctx, 2, models.GameTypeMines, 1000)
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
	assert.Equal(t, int64(500), ledger.GetBalance(ctx, 2))
	_, active := svc.Active(2, models.GameTypeMines)
	assert.False(t, active, "a failed debit creates no session")

	assert.Equal(t, int64(10000), ledger.GetBalance(ctx, 1))
}

func TestWagerService_OneActiveSessionPerGame(t *testing.T) {
	ctx := context.Background()
	svc, ledger, _ := newTestWagers(t, map[int64]int64{1: 10000}, nil, nil)

	first, err := svc.Start(ctx, 1, models.GameTypeMines, 1000)
	require.NoError(t, err)
	assert.Equal(t, models.WagerStatusPending, first.Status)
	assert.Equal(t, int64(9000), first.Balance)

	_, err = svc.Start(ctx, 1, models.GameTypeMines, 1000)
	assert.ErrorIs(t, err, models.ErrConcurrentSession)
	assert.Equal(t, int64(9000), ledger.GetBalance(ctx, 1))

	_, err = svc.Start(ctx, 1, models.GameTypeRPS, 1000)
	assert.NoError(t, err, "other game types are independent")

	active, ok := svc.Active(1, models.GameTypeMines)
	require.True(t, ok)
	assert.Equal(t, first.SessionID, active.SessionID)
}

func TestWagerService_ConcurrentStartsDebitOnce(t *testing.T) {
	ctx := context.Background()
	svc, ledger, _ := newTestWagers(t, map[int64]int64{1: 10000}, nil, nil)

	var (
		wg      sync.WaitGroup
		started atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Start(ctx, 1, models.GameTypeMines, 1000); err == nil {
				started.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, int64(9000), ledger.GetBalance(ctx, 1))
}

func TestWagerService_MinesCashOut(t *testing.T) {
	ctx := context.Background()
	svc, ledger, _ := newTestWagers(t, map[int64]int64{1: 10000}, nil, nil)

	snap, err := svc.Start(ctx, 1, models.GameTypeMines, 1000)
	require.NoError(t, err)
	assert.Equal(t, string(games.PolicyAdditive), snap.Policy)
	assert.Len(t, snap.Cells, 16)

	_, err = svc.CashOut(ctx, snap.SessionID, 1)
	assert.ErrorIs(t, err, models.ErrInvalidState, "at least one reveal is required")

	// cells 15 and 14 hold 2.0 and 1.5
	_, err = svc.Reveal(ctx, snap.SessionID, 1, 15)
	require.NoError(t, err)
	snap, err = svc.Reveal(ctx, snap.SessionID, 1, 14)
	require.NoError(t, err)
	assert.True(t, snap.Multiplier.Equal(dec("3.5")), "got %s", snap.Multiplier)
	assert.Equal(t, 2, snap.Reveals)

	_, err = svc.Reveal(ctx, snap.SessionID, 1, 14)
	assert.ErrorIs(t, err, models.ErrDuplicateAction)
	_, err = svc.Reveal(ctx, snap.SessionID, 1, 16)
	assert.ErrorIs(t, err, models.ErrInvalidCell)

	snap, err = svc.CashOut(ctx, snap.SessionID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.WagerStatusWon, snap.Status)
	assert.Equal(t, models.WagerEndCashOut, snap.EndReason)
	assert.Equal(t, int64(3500), snap.Payout)
	assert.Equal(t, int64(12500), snap.Balance)
	assert.Equal(t, int64(12500), ledger.GetBalance(ctx, 1))
	for _, cell := range snap.Cells {
		assert.True(t, cell.Revealed)
	}

	_, err = svc.CashOut(ctx, snap.SessionID, 1)
	assert.ErrorIs(t, err, models.ErrSessionExpired)
	assert.Equal(t, int64(12500), ledger.GetBalance(ctx, 1))
}

func TestWagerService_MinesMultiplicative(t *testing.T) {
	ctx := context.Background()
	svc, ledger, _ := newTestWagers(t, map[int64]int64{1: 10000}, nil, func(cfg *WagerConfig) {
		cfg.Mines.Policy = games.PolicyMultiplicative
	})

	snap, err := svc.Start(ctx, 1, models.GameTypeMines, 1000)
	require.NoError(t, err)
	assert.True(t, snap.Multiplier.Equal(dec("1")))

	_, err = svc.Reveal(ctx, snap.SessionID, 1, 15)
	require.NoError(t, err)
	_, err = svc.Reveal(ctx, snap.SessionID, 1, 14)
	require.NoError(t, err)

	snap, err = svc.CashOut(ctx, snap.SessionID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), snap.Payout)
	assert.Equal(t, int64(12000), ledger.GetBalance(ctx, 1))
}

func TestWagerService_MinesBomb(t *testing.T) {
	ctx := context.Background()
	svc, ledger, _ := newTestWagers(t, map[int64]int64{1: 10000}, nil, nil)

	snap, err := svc.Start(ctx, 1, models.GameTypeMines, 1000)
	require.NoError(t, err)
	_, err = svc.Reveal(ctx, snap.SessionID, 1, 15)
	require.NoError(t, err)

	snap, err = svc.Reveal(ctx, snap.SessionID, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, models.WagerStatusLost, snap.Status)
	assert.Equal(t, models.WagerEndBomb, snap.EndReason)
	assert.Equal(t, int64(0), snap.Payout)
	assert.True(t, snap.Cells[3].Bomb, "the whole board is revealed")
	assert.Equal(t, int64(9000), ledger.GetBalance(ctx, 1))

	_, err = svc.Reveal(ctx, snap.SessionID, 1, 14)
	assert.ErrorIs(t, err, models.ErrSessionExpired)
	_, err = svc.CashOut(ctx, snap.SessionID, 1)
	assert.ErrorIs(t, err, models.ErrSessionExpired)

	_, err = svc.Start(ctx, 1, models.GameTypeMines, 1000)
	assert.NoError(t, err, "a resolved session frees the slot")
}

func TestWagerService_MinesClearedBoardPaysOut(t *testing.T) {
	ctx := context.Background()
	svc, ledger, _ := newTestWagers(t, map[int64]int64{1: 10000}, nil, nil)

	snap, err := svc.Start(ctx, 1, models.GameTypeMines, 1000)
	require.NoError(t, err)

	for cell := 6; cell < 16; cell++ {
		snap, err = svc.Reveal(ctx, snap.SessionID, 1, cell)
		require.NoError(t, err)
	}

	assert.Equal(t, models.WagerStatusWon, snap.Status)
	assert.True(t, snap.Multiplier.Equal(dec("9.1")), "got %s", snap.Multiplier)
	assert.Equal(t, int64(9100), snap.Payout)
	assert.Equal(t, int64(18100), ledger.GetBalance(ctx, 1))
}

func TestWagerService_MinesInactivityTimeout(t *testing.T) {
	ctx := context.Background()
	svc, ledger, _ := newTestWagers(t, map[int64]int64{1: 10000}, nil, func(cfg *WagerConfig) {
		cfg.MinesTimeout = 50 * time.Millisecond
	})

	snap, err := svc.Start(ctx, 1, models.GameTypeMines, 1000)
	require.NoError(t, err)
	_, err = svc.Reveal(ctx, snap.SessionID, 1, 15)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		s, err := svc.Snapshot(snap.SessionID)
		return err == nil && s.IsResolved()
	}, 2*time.Second, 10*time.Millisecond)

	snap, err = svc.Snapshot(snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.WagerStatusLost, snap.Status)
	assert.Equal(t, models.WagerEndTimeout, snap.EndReason)
	assert.Equal(t, int64(9000), ledger.GetBalance(ctx, 1))

	_, err = svc.CashOut(ctx, snap.SessionID, 1)
	assert.ErrorIs(t, err, models.ErrSessionExpired)
}

func TestWagerService_CrashCashOutAtCurrentTick(t *testing.T) {
	ctx := context.Background()
	// bucket 1.10-1.30, midpoint 1.20
	rng := &stubRandom{floats: []float64{0.02, 0.5}}
	svc, ledger, _ := newTestWagers(t, map[int64]int64{1: 10000}, rng, nil)

	snap, err := svc.Start(ctx, 1, models.GameTypeCrash, 1000)
	require.NoError(t, err)
	assert.True(t, snap.Multiplier.Equal(dec("0.5")))
	assert.Nil(t, snap.CrashPoint, "the crash point stays hidden while running")

	sess := svc.sessions[snap.SessionID]
	for i := 0; i < 10; i++ {
		require.False(t, svc.crashTick(sess))
	}

	snap, err = svc.CashOut(ctx, snap.SessionID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.WagerStatusWon, snap.Status)
	assert.True(t, snap.Multiplier.Equal(dec("0.77")), "got %s", snap.Multiplier)
	assert.Equal(t, int64(770), snap.Payout)
	require.NotNil(t, snap.CrashPoint)
	assert.True(t, snap.CrashPoint.Equal(dec("1.20")))
	assert.Equal(t, int64(9770), ledger.GetBalance(ctx, 1))

	assert.True(t, svc.crashTick(sess), "ticks stop after a cash out")
	_, err = svc.CashOut(ctx, snap.SessionID, 1)
	assert.ErrorIs(t, err, models.ErrSessionExpired)
	assert.Equal(t, int64(9770), ledger.GetBalance(ctx, 1))
}

func TestWagerService_CrashLoss(t *testing.T) {
	ctx := context.Background()
	rng := &stubRandom{floats: []float64{0.02, 0.5}}
	svc, ledger, _ := newTestWagers(t, map[int64]int64{1: 10000}, rng, nil)

	snap, err := svc.Start(ctx, 1, models.GameTypeCrash, 1000)
	require.NoError(t, err)

	sess := svc.sessions[snap.SessionID]
	ticks := 0
	for !svc.crashTick(sess) {
		ticks++
	}
	// 0.5 * 1.045^20 is the first value at or above 1.20
	assert.Equal(t, 19, ticks)

	snap, err = svc.Snapshot(snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.WagerStatusLost, snap.Status)
	assert.Equal(t, models.WagerEndCrash, snap.EndReason)
	assert.Equal(t, 20, snap.Ticks)
	assert.Equal(t, int64(9000), ledger.GetBalance(ctx, 1))

	_, err = svc.CashOut(ctx, snap.SessionID, 1)
	assert.ErrorIs(t, err, models.ErrSessionExpired)
}

func TestWagerService_CrashBelowBaseLosesImmediately(t *testing.T) {
	ctx := context.Background()
	rng := &stubRandom{floats: []float64{0.0, 0.0}}
	svc, ledger, _ := newTestWagers(t, map[int64]int64{1: 10000}, rng, func(cfg *WagerConfig) {
		cfg.Crash.Base = dec("0.60")
	})

	snap, err := svc.Start(ctx, 1, models.GameTypeCrash, 1000)
	require.NoError(t, err)
	assert.Equal(t, models.WagerStatusLost, snap.Status)
	assert.Equal(t, int64(9000), ledger.GetBalance(ctx, 1))
}

func TestWagerService_CrashCashOutHonoredOnce(t *testing.T) {
	ctx := context.Background()
	rng := &stubRandom{floats: []float64{0.999, 1.0}}
	svc, ledger, _ := newTestWagers(t, map[int64]int64{1: 10000}, rng, nil)

	snap, err := svc.Start(ctx, 1, models.GameTypeCrash, 1000)
	require.NoError(t, err)
	sess := svc.sessions[snap.SessionID]

	var (
		wg       sync.WaitGroup
		cashouts atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			svc.crashTick(sess)
		}()
		go func() {
			defer wg.Done()
			if _, err := svc.CashOut(ctx, snap.SessionID, 1); err == nil {
				cashouts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), cashouts.Load())
	snap, err = svc.Snapshot(snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(9000)+snap.Payout, ledger.GetBalance(ctx, 1))
}

func TestWagerService_RPS(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		botIndex    int
		status      models.WagerStatus
		reason      models.WagerEndReason
		payout      int64
		wantBalance int64
	}{
		{"tie refunds", 0, models.WagerStatusRefunded, models.WagerEndTie, 1000, 10000},
		{"loss forfeits", 1, models.WagerStatusLost, models.WagerEndLoss, 0, 9000},
		{"win pays the drawn multiplier", 2, models.WagerStatusWon, models.WagerEndWin, 1550, 10550},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := &stubRandom{ints: []int{tt.botIndex}, floats: []float64{0.5}}
			svc, ledger, _ := newTestWagers(t, map[int64]int64{1: 10000}, rng, nil)

			snap, err := svc.Start(ctx, 1, models.GameTypeRPS, 1000)
			require.NoError(t, err)

			snap, err = svc.Choose(ctx, snap.SessionID, 1, "rock")
			require.NoError(t, err)
			assert.Equal(t, tt.status, snap.Status)
			assert.Equal(t, tt.reason, snap.EndReason)
			assert.Equal(t, tt.payout, snap.Payout)
			assert.Equal(t, "rock", snap.PlayerChoice)
			assert.Equal(t, tt.wantBalance, ledger.GetBalance(ctx, 1))

			_, err = svc.Choose(ctx, snap.SessionID, 1, "paper")
			assert.ErrorIs(t, err, models.ErrSessionExpired)
		})
	}
}

func TestWagerService_RPSInvalidChoiceKeepsSession(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestWagers(t, map[int64]int64{1: 10000}, nil, nil)

	snap, err := svc.Start(ctx, 1, models.GameTypeRPS, 1000)
	require.NoError(t, err)

	_, err = svc.Choose(ctx, snap.SessionID, 1, "lizard")
	assert.ErrorIs(t, err, models.ErrInvalidChoice)

	snap, err = svc.Snapshot(snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.WagerStatusPending, snap.Status)
}

func TestWagerService_RPSTimeoutRefunds(t *testing.T) {
	ctx := context.Background()
	svc, ledger, _ := newTestWagers(t, map[int64]int64{1: 10000}, nil, func(cfg *WagerConfig) {
		cfg.RPSTimeout = 30 * time.Millisecond
	})

	snap, err := svc.Start(ctx, 1, models.GameTypeRPS, 1000)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return ledger.GetBalance(ctx, 1) == 10000
	}, 2*time.Second, 10*time.Millisecond)

	snap, err = svc.Snapshot(snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.WagerStatusRefunded, snap.Status)
	assert.Equal(t, models.WagerEndTimeout, snap.EndReason)

	_, err = svc.Choose(ctx, snap.SessionID, 1, "rock")
	assert.ErrorIs(t, err, models.ErrSessionExpired)
	assert.Equal(t, int64(10000), ledger.GetBalance(ctx, 1))
}

func TestWagerService_SessionAccess(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestWagers(t, map[int64]int64{1: 10000}, nil, nil)

	snap, err := svc.Start(ctx, 1, models.GameTypeRPS, 1000)
	require.NoError(t, err)

	_, err = svc.Choose(ctx, snap.SessionID, 2, "rock")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = svc.Reveal(ctx, snap.SessionID, 1, 0)
	assert.ErrorIs(t, err, models.ErrInvalidState)

	_, err = svc.CashOut(ctx, snap.SessionID, 1)
	assert.ErrorIs(t, err, models.ErrInvalidState)

	_, err = svc.Snapshot("missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestWagerService_Cooldown(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	svc, ledger, _ := newTestWagers(t, map[int64]int64{1: 10000, 2: 0}, &stubRandom{ints: []int{0}}, func(cfg *WagerConfig) {
		cfg.Cooldowns = map[models.GameType]time.Duration{models.GameTypeRPS: 5 * time.Second}
	})
	svc.now = clock.Now

	snap, err := svc.Start(ctx, 1, models.GameTypeRPS, 1000)
	require.NoError(t, err)
	_, err = svc.Choose(ctx, snap.SessionID, 1, "rock")
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	_, err = svc.Start(ctx, 1, models.GameTypeRPS, 1000)
	assert.ErrorIs(t, err, models.ErrCooldown)
	assert.Equal(t, int64(10000), ledger.GetBalance(ctx, 1))

	clock.Advance(4 * time.Second)
	_, err = svc.Start(ctx, 1, models.GameTypeRPS, 1000)
	assert.NoError(t, err)

	// a rejected start does not burn the cooldown
	_, err = svc.Start(ctx, 2, models.GameTypeRPS, 1000)
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
	ledger.Credit(ctx, 2, 1000, models.TransactionTypeGrant, nil)
	_, err = svc.Start(ctx, 2, models.GameTypeRPS, 1000)
	assert.NoError(t, err)
}

func TestWagerService_PruneResolved(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestWagers(t, map[int64]int64{1: 10000}, &stubRandom{ints: []int{1}}, nil)

	resolved, err := svc.Start(ctx, 1, models.GameTypeRPS, 1000)
	require.NoError(t, err)
	_, err = svc.Choose(ctx, resolved.SessionID, 1, "rock")
	require.NoError(t, err)

	pending, err := svc.Start(ctx, 1, models.GameTypeMines, 1000)
	require.NoError(t, err)

	assert.Equal(t, 0, svc.PruneResolved(time.Hour))
	assert.Equal(t, 1, svc.PruneResolved(0))

	_, err = svc.Snapshot(resolved.SessionID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = svc.Snapshot(pending.SessionID)
	assert.NoError(t, err)
}

func TestWagerService_CloseRefundsOpenSessions(t *testing.T) {
	ctx := context.Background()
	svc, ledger, _ := newTestWagers(t, map[int64]int64{1: 10000}, &stubRandom{floats: []float64{0.999, 1.0}}, nil)

	mines, err := svc.Start(ctx, 1, models.GameTypeMines, 1000)
	require.NoError(t, err)
	_, err = svc.Start(ctx, 1, models.GameTypeCrash, 2000)
	require.NoError(t, err)
	assert.Equal(t, int64(7000), ledger.GetBalance(ctx, 1))

	svc.Close(ctx)

	assert.Equal(t, int64(10000), ledger.GetBalance(ctx, 1))
	snap, err := svc.Snapshot(mines.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.WagerStatusRefunded, snap.Status)
	assert.Equal(t, models.WagerEndShutdown, snap.EndReason)

	_, err = svc.Start(ctx, 1, models.GameTypeRPS, 1000)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestWagerService_EmitsSettledEvent(t *testing.T) {
	ctx := context.Background()
	svc, _, bus := newTestWagers(t, map[int64]int64{1: 10000}, &stubRandom{ints: []int{2}, floats: []float64{0.5}}, nil)

	settled := make(chan events.WagerSettledEvent, 1)
	bus.Subscribe(events.EventTypeWagerSettled, func(ctx context.Context, event events.Event) {
		settled <- event.(events.WagerSettledEvent)
	})

	snap, err := svc.Start(ctx, 1, models.GameTypeRPS, 1000)
	require.NoError(t, err)
	_, err = svc.Choose(ctx, snap.SessionID, 1, "rock")
	require.NoError(t, err)

	select {
	case event := <-settled:
		assert.Equal(t, snap.SessionID, event.SessionID)
		assert.Equal(t, models.WagerStatusWon, event.Status)
		assert.Equal(t, int64(1550), event.Payout)
		assert.Equal(t, "1.55", event.Multiplier)
	case <-time.After(2 * time.Second):
		t.Fatal("settled event not delivered")
	}
}
