package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"scrimbet/events"
	"scrimbet/models"

	log "github.com/sirupsen/logrus"
)

// MatchConfig holds the scrim match settings
type MatchConfig struct {
	MinBet          int64
	DefaultCapacity int
	BettingWindow   time.Duration
	ResultTimeout   time.Duration
}

// matchEntry owns one match. Lock order is entry.mu before the registry lock;
// the registry never locks an entry.
type matchEntry struct {
	mu           sync.Mutex
	match        *models.Match
	removed      bool
	bettingTimer *time.Timer
	resultTimer  *time.Timer

	finishedAt atomic.Int64 // unix nanos once terminal, read without mu when pruning
}

type matchService struct {
	mu      sync.RWMutex
	matches map[int64]*matchEntry
	hosts   map[int64]int64 // host -> their non-terminal match
	nextID  atomic.Int64
	closed  bool

	ledger LedgerService
	bus    *events.Bus
	rng    models.DraftRandom
	cfg    MatchConfig
	now    func() time.Time
}

// NewMatchService creates the match registry
func NewMatchService(ledger LedgerService, bus *events.Bus, rng models.DraftRandom, cfg MatchConfig) MatchService {
	return newMatchService(ledger, bus, rng, cfg)
}

func newMatchService(ledger LedgerService, bus *events.Bus, rng models.DraftRandom, cfg MatchConfig) *matchService {
	if cfg.DefaultCapacity <= 0 {
		cfg.DefaultCapacity = models.DefaultMatchCapacity
	}
	return &matchService{
		matches: make(map[int64]*matchEntry),
		hosts:   make(map[int64]int64),
		ledger:  ledger,
		bus:     bus,
		rng:     rng,
		cfg:     cfg,
		now:     time.Now,
	}
}

func (s *matchService) Create(ctx context.Context, host int64, capacity int) (*models.MatchSnapshot, error) {
	if capacity <= 0 {
		capacity = s.cfg.DefaultCapacity
	}
	if capacity < 2 {
		return nil, fmt.Errorf("a match needs room for two captains: %w", models.ErrInvalidState)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("matches are closed: %w", models.ErrInvalidState)
	}
	if existing, ok := s.hosts[host]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("match %d is still running: %w", existing, models.ErrConcurrentSession)
	}
	m := models.NewMatch(s.nextID.Add(1), host, capacity, s.now())
	e := &matchEntry{match: m}
	s.matches[m.ID] = e
	s.hosts[host] = m.ID
	s.mu.Unlock()

	log.WithFields(log.Fields{
		"matchID":  m.ID,
		"host":     host,
		"capacity": capacity,
	}).Info("Match created")

	e.mu.Lock()
	defer e.mu.Unlock()
	s.emitTransition(ctx, m, "")
	return m.Snapshot(), nil
}

func (s *matchService) Join(ctx context.Context, matchID, userID int64) (*models.MatchSnapshot, error) {
	return s.withMatch(ctx, matchID, func(e *matchEntry) error {
		return e.match.AddParticipant(userID)
	})
}

func (s *matchService) Leave(ctx context.Context, matchID, userID int64) (*models.MatchSnapshot, error) {
	return s.withMatch(ctx, matchID, func(e *matchEntry) error {
		return e.match.RemoveParticipant(userID)
	})
}

func (s *matchService) Start(ctx context.Context, matchID int64, actor models.Actor, captainA, captainB int64) (*models.MatchSnapshot, error) {
	return s.withMatch(ctx, matchID, func(e *matchEntry) error {
		complete, err := e.match.StartDraft(actor, captainA, captainB, s.rng)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"matchID":  matchID,
			"captains": e.match.Captains,
			"order":    e.match.DraftOrder,
		}).Info("Draft started")
		if complete {
			s.openBettingLocked(e)
		}
		return nil
	})
}

func (s *matchService) Pick(ctx context.Context, matchID, captainID, pickedID int64) (*models.MatchSnapshot, error) {
	return s.withMatch(ctx, matchID, func(e *matchEntry) error {
		complete, err := e.match.Pick(captainID, pickedID)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"matchID": matchID,
			"captain": captainID,
			"picked":  pickedID,
			"turn":    e.match.DraftTurn,
		}).Debug("Draft pick")
		if complete {
			s.openBettingLocked(e)
		}
		return nil
	})
}

func (s *matchService) Undo(ctx context.Context, matchID int64, actor models.Actor) (*models.MatchSnapshot, error) {
	return s.withMatch(ctx, matchID, func(e *matchEntry) error {
		undone, err := e.match.UndoPick(actor)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"matchID": matchID,
			"actor":   actor.ID,
			"team":    undone.Team,
			"userID":  undone.UserID,
		}).Info("Draft pick undone")
		return nil
	})
}

func (s *matchService) PlaceBet(ctx context.Context, matchID, bettor int64, team int, amount int64) (*models.MatchSnapshot, error) {
	return s.withMatch(ctx, matchID, func(e *matchEntry) error {
		m := e.match
		now := s.now()
		if m.BettingOpen && !now.Before(m.BettingClosesAt) {
			m.CloseBetting()
		}
		if err := m.ValidateBet(bettor, team, amount, s.cfg.MinBet); err != nil {
			return err
		}

		if !s.ledger.Debit(ctx, bettor, amount, models.TransactionTypeMatchBet, map[string]any{
			"match_id": matchID,
			"team":     team,
		}) {
			return fmt.Errorf("bet of %d exceeds balance of %d: %w", amount, s.ledger.GetBalance(ctx, bettor), models.ErrInsufficientFunds)
		}
		m.RecordBet(bettor, team, amount, now)

		s.bus.Emit(ctx, events.MatchBetPlacedEvent{
			MatchID: matchID,
			Bettor:  bettor,
			Team:    team,
			Amount:  amount,
		})
		log.WithFields(log.Fields{
			"matchID": matchID,
			"bettor":  bettor,
			"team":    team,
			"amount":  amount,
		}).Info("Match bet placed")
		return nil
	})
}

func (s *matchService) DeclareResult(ctx context.Context, matchID int64, actor models.Actor, winningTeam int) (*models.MatchSettlement, error) {
	e, err := s.entry(matchID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, fmt.Errorf("match %d: %w", matchID, models.ErrNotFound)
	}

	old := e.match.State
	settlement, err := e.match.DeclareWinner(actor, winningTeam, s.now())
	if err != nil {
		return nil, err
	}
	s.finishLocked(e)

	for _, id := range settlement.Winners {
		s.ledger.RecordMatchResult(ctx, id, true)
	}
	for _, id := range settlement.Losers {
		s.ledger.RecordMatchResult(ctx, id, false)
	}

	var paidOut int64
	for _, p := range settlement.Payouts {
		if p.Amount <= 0 {
			continue
		}
		s.ledger.Credit(ctx, p.UserID, p.Amount, models.TransactionTypeMatchPayout, map[string]any{
			"match_id": matchID,
			"stake":    p.Stake,
		})
		paidOut += p.Amount
	}

	s.emitTransition(ctx, e.match, old)
	s.bus.Emit(ctx, events.MatchSettledEvent{
		MatchID:     matchID,
		WinningTeam: winningTeam,
		TotalPool:   settlement.TotalPool,
		WinningPool: settlement.WinningPool,
		PaidOut:     paidOut,
		Winners:     len(settlement.Payouts),
	})

	log.WithFields(log.Fields{
		"matchID":     matchID,
		"actor":       actor.ID,
		"winningTeam": winningTeam,
		"totalPool":   settlement.TotalPool,
		"winningPool": settlement.WinningPool,
		"paidOut":     paidOut,
	}).Info("Match result declared")

	return settlement, nil
}

func (s *matchService) Cancel(ctx context.Context, matchID int64, actor models.Actor) (*models.MatchSnapshot, error) {
	return s.withMatch(ctx, matchID, func(e *matchEntry) error {
		return s.cancelLocked(ctx, e, actor)
	})
}

// End cancels a match that is still running, with refunds, and removes it
// from the registry
func (s *matchService) End(ctx context.Context, matchID int64, actor models.Actor) error {
	e, err := s.entry(matchID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return fmt.Errorf("match %d: %w", matchID, models.ErrNotFound)
	}

	m := e.match
	if actor.ID != m.Host && !actor.Admin {
		return fmt.Errorf("only the host or an admin can end a match: %w", models.ErrUnauthorized)
	}
	if !m.IsTerminal() {
		if err := s.cancelLocked(ctx, e, actor); err != nil {
			return err
		}
	}

	e.removed = true
	s.mu.Lock()
	delete(s.matches, matchID)
	s.mu.Unlock()

	log.WithFields(log.Fields{
		"matchID": matchID,
		"actor":   actor.ID,
	}).Info("Match ended")
	return nil
}

func (s *matchService) Redraft(ctx context.Context, matchID int64, actor models.Actor) (*models.MatchSnapshot, error) {
	return s.continueMatch(ctx, matchID, actor, "redraft", func(id int64, prev *models.Match, now time.Time) *models.Match {
		return models.NewRedraft(id, prev, now)
	})
}

func (s *matchService) Rematch(ctx context.Context, matchID int64, actor models.Actor) (*models.MatchSnapshot, error) {
	return s.continueMatch(ctx, matchID, actor, "rematch", func(id int64, prev *models.Match, now time.Time) *models.Match {
		return models.NewRematch(id, prev, now)
	})
}

func (s *matchService) Get(matchID int64) (*models.MatchSnapshot, error) {
	e, err := s.entry(matchID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, fmt.Errorf("match %d: %w", matchID, models.ErrNotFound)
	}
	return e.match.Snapshot(), nil
}

// List returns every registered match ordered by id
func (s *matchService) List() []*models.MatchSnapshot {
	s.mu.RLock()
	entries := make([]*matchEntry, 0, len(s.matches))
	for _, e := range s.matches {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*models.MatchSnapshot, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed {
			out = append(out, e.match.Snapshot())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *matchService) PruneFinished(olderThan time.Duration) int {
	cutoff := s.now().Add(-olderThan).UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.matches {
		if at := e.finishedAt.Load(); at != 0 && at <= cutoff {
			delete(s.matches, id)
			removed++
		}
	}
	if removed > 0 {
		log.WithField("matches", removed).Debug("Pruned finished matches")
	}
	return removed
}

// Close stops every timer. Matches stay in memory; nothing is refunded.
func (s *matchService) Close() {
	s.mu.Lock()
	s.closed = true
	entries := make([]*matchEntry, 0, len(s.matches))
	for _, e := range s.matches {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		stopTimersLocked(e)
		e.mu.Unlock()
	}
}

func (s *matchService) entry(matchID int64) (*matchEntry, error) {
	s.mu.RLock()
	e, ok := s.matches[matchID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("match %d: %w", matchID, models.ErrNotFound)
	}
	return e, nil
}

// withMatch runs fn under the match lock and emits a state change event if fn
// moved the match to a new state
func (s *matchService) withMatch(ctx context.Context, matchID int64, fn func(e *matchEntry) error) (*models.MatchSnapshot, error) {
	e, err := s.entry(matchID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, fmt.Errorf("match %d: %w", matchID, models.ErrNotFound)
	}

	old := e.match.State
	if err := fn(e); err != nil {
		return nil, err
	}
	s.emitTransition(ctx, e.match, old)
	return e.match.Snapshot(), nil
}

func (s *matchService) continueMatch(ctx context.Context, matchID int64, actor models.Actor, kind string, build func(id int64, prev *models.Match, now time.Time) *models.Match) (*models.MatchSnapshot, error) {
	prevEntry, err := s.entry(matchID)
	if err != nil {
		return nil, err
	}

	prevEntry.mu.Lock()
	defer prevEntry.mu.Unlock()

	if prevEntry.removed {
		return nil, fmt.Errorf("match %d: %w", matchID, models.ErrNotFound)
	}

	prev := prevEntry.match
	if actor.ID != prev.Host && !actor.Admin {
		return nil, fmt.Errorf("only the host or an admin can start a %s: %w", kind, models.ErrUnauthorized)
	}
	if prev.State != models.MatchStateFinished {
		return nil, fmt.Errorf("cannot %s a match in state %s: %w", kind, prev.State, models.ErrInvalidState)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("matches are closed: %w", models.ErrInvalidState)
	}
	if existing, ok := s.hosts[prev.Host]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("match %d is still running: %w", existing, models.ErrConcurrentSession)
	}
	m := build(s.nextID.Add(1), prev, s.now())
	e := &matchEntry{match: m}
	s.matches[m.ID] = e
	s.hosts[m.Host] = m.ID
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if m.State == models.MatchStateAwaitingResult {
		s.openBettingLocked(e)
	}

	log.WithFields(log.Fields{
		"matchID":  m.ID,
		"parentID": matchID,
		"kind":     kind,
		"actor":    actor.ID,
	}).Info("Match continued")

	s.emitTransition(ctx, m, "")
	return m.Snapshot(), nil
}

// openBettingLocked opens the betting window and arms the betting and result
// timers. Both callbacks re-check the match state, so a late fire is harmless.
func (s *matchService) openBettingLocked(e *matchEntry) {
	now := s.now()
	m := e.match
	m.OpenBetting(now, s.cfg.BettingWindow)
	m.ResultDeadline = now.Add(s.cfg.ResultTimeout)

	e.bettingTimer = time.AfterFunc(s.cfg.BettingWindow, func() { s.onBettingClosed(e) })
	e.resultTimer = time.AfterFunc(s.cfg.ResultTimeout, func() { s.onResultTimeout(e) })

	log.WithFields(log.Fields{
		"matchID":        m.ID,
		"closesAt":       m.BettingClosesAt,
		"resultDeadline": m.ResultDeadline,
	}).Info("Match betting opened")
}

func (s *matchService) onBettingClosed(e *matchEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.match.BettingOpen {
		return
	}
	e.match.CloseBetting()
	log.WithFields(log.Fields{
		"matchID": e.match.ID,
		"bets":    len(e.match.Bets),
	}).Info("Match betting closed")
}

func (s *matchService) onResultTimeout(e *matchEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.match.State
	if !e.match.Expire(s.now()) {
		return
	}
	s.finishLocked(e)
	s.emitTransition(context.Background(), e.match, old)

	log.WithFields(log.Fields{
		"matchID": e.match.ID,
		"bets":    len(e.match.Bets),
	}).Warn("Match result timed out without a declared winner")
}

func (s *matchService) cancelLocked(ctx context.Context, e *matchEntry, actor models.Actor) error {
	m := e.match
	refunds, err := m.Cancel(actor, s.now())
	if err != nil {
		return err
	}
	s.finishLocked(e)

	var refunded int64
	for _, bet := range refunds {
		s.ledger.Credit(ctx, bet.Bettor, bet.Amount, models.TransactionTypeMatchBetRefund, map[string]any{
			"match_id": m.ID,
		})
		refunded += bet.Amount
	}

	log.WithFields(log.Fields{
		"matchID":  m.ID,
		"actor":    actor.ID,
		"bets":     len(refunds),
		"refunded": refunded,
	}).Info("Match cancelled")
	return nil
}

// finishLocked stops the timers, marks the match for pruning and frees the
// host to open another one
func (s *matchService) finishLocked(e *matchEntry) {
	stopTimersLocked(e)
	e.finishedAt.Store(e.match.FinishedAt.UnixNano())

	s.mu.Lock()
	if s.hosts[e.match.Host] == e.match.ID {
		delete(s.hosts, e.match.Host)
	}
	s.mu.Unlock()
}

func stopTimersLocked(e *matchEntry) {
	if e.bettingTimer != nil {
		e.bettingTimer.Stop()
	}
	if e.resultTimer != nil {
		e.resultTimer.Stop()
	}
}

func (s *matchService) emitTransition(ctx context.Context, m *models.Match, old models.MatchState) {
	if old == m.State {
		return
	}
	s.bus.Emit(ctx, events.MatchStateChangeEvent{
		MatchID:  m.ID,
		OldState: old,
		NewState: m.State,
	})
}
