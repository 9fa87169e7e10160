package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"scrimbet/events"
	"scrimbet/games"
	"scrimbet/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// WagerConfig holds the wager engine settings
type WagerConfig struct {
	MinBet       int64
	Mines        games.MinesConfig
	MinesTimeout time.Duration
	Crash        games.CrashConfig
	RPS          games.RPSConfig
	RPSTimeout   time.Duration
	Cooldowns    map[models.GameType]time.Duration
}

// Validate checks every game's settings
func (c WagerConfig) Validate() error {
	if c.MinBet <= 0 {
		return fmt.Errorf("minimum bet must be positive")
	}
	if err := c.Mines.Validate(); err != nil {
		return fmt.Errorf("invalid mines config: %w", err)
	}
	if err := c.Crash.Validate(); err != nil {
		return fmt.Errorf("invalid crash config: %w", err)
	}
	if err := c.RPS.Validate(); err != nil {
		return fmt.Errorf("invalid rps config: %w", err)
	}
	if c.MinesTimeout <= 0 || c.RPSTimeout <= 0 {
		return fmt.Errorf("session timeouts must be positive")
	}
	return nil
}

// wagerSession is one game in progress. Fields below mu are guarded by it;
// resolved flips exactly once, from whichever of the player or a timer gets
// there first.
type wagerSession struct {
	id        string
	userID    int64
	game      models.GameType
	bet       int64
	startedAt time.Time

	resolved   atomic.Bool
	resolvedAt atomic.Int64 // unix nanos, read without mu when pruning

	mu         sync.Mutex
	status     models.WagerStatus
	reason     models.WagerEndReason
	multiplier decimal.Decimal
	payout     int64
	balance    int64

	board *games.MinesBoard
	round *games.CrashRound
	hand  *games.RPSResult

	timer    *time.Timer
	timerGen int
	stop     chan struct{}
}

type wagerService struct {
	mu       sync.RWMutex
	sessions map[string]*wagerSession
	active   map[cooldownKey]string
	closed   bool

	ledger    LedgerService
	bus       *events.Bus
	rng       games.Random
	cfg       WagerConfig
	cooldowns *cooldowns
	now       func() time.Time
	wg        sync.WaitGroup
}

// NewWagerService creates the wager engine
func NewWagerService(ledger LedgerService, bus *events.Bus, rng games.Random, cfg WagerConfig) (WagerService, error) {
	return newWagerService(ledger, bus, rng, cfg)
}

func newWagerService(ledger LedgerService, bus *events.Bus, rng games.Random, cfg WagerConfig) (*wagerService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &wagerService{
		sessions:  make(map[string]*wagerSession),
		active:    make(map[cooldownKey]string),
		ledger:    ledger,
		bus:       bus,
		rng:       rng,
		cfg:       cfg,
		cooldowns: newCooldowns(cfg.Cooldowns),
		now:       time.Now,
	}, nil
}

func (s *wagerService) Start(ctx context.Context, userID int64, game models.GameType, bet int64) (*models.WagerSnapshot, error) {
	if !game.Valid() {
		return nil, fmt.Errorf("unknown game %q: %w", game, models.ErrInvalidState)
	}
	if bet < s.cfg.MinBet {
		return nil, fmt.Errorf("minimum bet is %d: %w", s.cfg.MinBet, models.ErrInvalidAmount)
	}

	now := s.now()
	key := cooldownKey{userID: userID, game: game}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("wagers are closed: %w", models.ErrInvalidState)
	}
	if id, ok := s.active[key]; ok {
		if existing := s.sessions[id]; existing != nil && !existing.resolved.Load() {
			s.mu.Unlock()
			return nil, fmt.Errorf("%s session %s is still running: %w", game, id, models.ErrConcurrentSession)
		}
	}

	reservation, wait := s.cooldowns.reserve(userID, game, now)
	if wait > 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("try again in %s: %w", wait.Round(100*time.Millisecond), models.ErrCooldown)
	}

	sess, err := s.newSession(userID, game, bet, now)
	if err != nil {
		s.cooldowns.release(reservation, now)
		s.mu.Unlock()
		return nil, err
	}

	if !s.ledger.Debit(ctx, userID, bet, models.TransactionTypeWagerBet, map[string]any{
		"session_id": sess.id,
		"game":       string(game),
	}) {
		s.cooldowns.release(reservation, now)
		s.mu.Unlock()
		return nil, fmt.Errorf("bet of %d exceeds balance of %d: %w", bet, s.ledger.GetBalance(ctx, userID), models.ErrInsufficientFunds)
	}

	s.sessions[sess.id] = sess
	s.active[key] = sess.id
	s.mu.Unlock()

	s.bus.Emit(ctx, events.WagerStartedEvent{
		SessionID: sess.id,
		UserID:    userID,
		Game:      game,
		Bet:       bet,
	})

	log.WithFields(log.Fields{
		"sessionID": sess.id,
		"userID":    userID,
		"game":      game,
		"bet":       bet,
	}).Info("Wager started")

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.balance = s.ledger.GetBalance(ctx, userID)
	s.armLocked(sess)
	return s.snapshotLocked(sess), nil
}

func (s *wagerService) Reveal(ctx context.Context, sessionID string, userID int64, cell int) (*models.WagerSnapshot, error) {
	sess, err := s.lookup(sessionID, userID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.game != models.GameTypeMines {
		return nil, fmt.Errorf("cannot reveal a cell in %s: %w", sess.game, models.ErrInvalidState)
	}
	if sess.resolved.Load() {
		return nil, models.ErrSessionExpired
	}

	res, err := sess.board.Reveal(cell)
	if err != nil {
		return nil, err
	}

	switch {
	case res.Bomb:
		s.settleLocked(ctx, sess, models.WagerStatusLost, models.WagerEndBomb, res.Multiplier, 0)
	case sess.board.SafeRemaining() == 0:
		// every safe cell is open, nothing left to risk
		m, err := sess.board.CashOut()
		if err != nil {
			return nil, fmt.Errorf("failed to settle cleared board: %w", err)
		}
		s.settleLocked(ctx, sess, models.WagerStatusWon, models.WagerEndCashOut, m, games.Payout(sess.bet, m))
	default:
		sess.multiplier = res.Multiplier
		s.resetTimerLocked(sess, s.cfg.MinesTimeout)
		s.bus.Emit(ctx, events.WagerUpdatedEvent{
			SessionID:  sess.id,
			UserID:     sess.userID,
			Game:       sess.game,
			Multiplier: res.Multiplier.String(),
			Ticks:      sess.board.Reveals(),
		})
	}

	return s.snapshotLocked(sess), nil
}

func (s *wagerService) CashOut(ctx context.Context, sessionID string, userID int64) (*models.WagerSnapshot, error) {
	sess, err := s.lookup(sessionID, userID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.resolved.Load() {
		return nil, models.ErrSessionExpired
	}

	var m decimal.Decimal
	switch sess.game {
	case models.GameTypeMines:
		m, err = sess.board.CashOut()
	case models.GameTypeCrash:
		m, err = sess.round.CashOut()
	default:
		return nil, fmt.Errorf("cannot cash out of %s: %w", sess.game, models.ErrInvalidState)
	}
	if errors.Is(err, games.ErrRoundOver) {
		return nil, models.ErrSessionExpired
	}
	if err != nil {
		return nil, err
	}

	s.settleLocked(ctx, sess, models.WagerStatusWon, models.WagerEndCashOut, m, games.Payout(sess.bet, m))
	return s.snapshotLocked(sess), nil
}

func (s *wagerService) Choose(ctx context.Context, sessionID string, userID int64, choice string) (*models.WagerSnapshot, error) {
	sess, err := s.lookup(sessionID, userID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.game != models.GameTypeRPS {
		return nil, fmt.Errorf("cannot choose a hand in %s: %w", sess.game, models.ErrInvalidState)
	}
	if sess.resolved.Load() {
		return nil, models.ErrSessionExpired
	}

	player, err := games.ParseChoice(choice)
	if err != nil {
		return nil, err
	}

	hand := games.PlayRPS(s.cfg.RPS, s.rng, player)
	sess.hand = &hand

	switch hand.Outcome {
	case games.RPSTie:
		s.settleLocked(ctx, sess, models.WagerStatusRefunded, models.WagerEndTie, decimal.NewFromInt(1), sess.bet)
	case games.RPSWin:
		s.settleLocked(ctx, sess, models.WagerStatusWon, models.WagerEndWin, hand.Multiplier, games.Payout(sess.bet, hand.Multiplier))
	default:
		s.settleLocked(ctx, sess, models.WagerStatusLost, models.WagerEndLoss, decimal.Zero, 0)
	}

	return s.snapshotLocked(sess), nil
}

func (s *wagerService) Snapshot(sessionID string) (*models.WagerSnapshot, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("wager session %s: %w", sessionID, models.ErrNotFound)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.snapshotLocked(sess), nil
}

func (s *wagerService) Active(userID int64, game models.GameType) (*models.WagerSnapshot, bool) {
	s.mu.RLock()
	sess := s.sessions[s.active[cooldownKey{userID: userID, game: game}]]
	s.mu.RUnlock()
	if sess == nil || sess.resolved.Load() {
		return nil, false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.snapshotLocked(sess), true
}

func (s *wagerService) PruneResolved(olderThan time.Duration) int {
	now := s.now()
	cutoff := now.Add(-olderThan).UnixNano()

	s.mu.Lock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.resolved.Load() && sess.resolvedAt.Load() <= cutoff {
			delete(s.sessions, id)
			removed++
		}
	}
	s.mu.Unlock()

	limiters := s.cooldowns.prune(now)
	if removed > 0 || limiters > 0 {
		log.WithFields(log.Fields{
			"sessions":  removed,
			"cooldowns": limiters,
		}).Debug("Pruned wager sessions")
	}
	return removed
}

func (s *wagerService) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pending := make([]*wagerSession, 0, len(s.active))
	for _, sess := range s.sessions {
		if !sess.resolved.Load() {
			pending = append(pending, sess)
		}
	}
	s.mu.Unlock()

	for _, sess := range pending {
		sess.mu.Lock()
		if s.settleLocked(ctx, sess, models.WagerStatusRefunded, models.WagerEndShutdown, decimal.Zero, sess.bet) {
			log.WithField("sessionID", sess.id).Warn("Refunded wager still open at shutdown")
		}
		sess.mu.Unlock()
	}

	s.wg.Wait()
}

func (s *wagerService) newSession(userID int64, game models.GameType, bet int64, now time.Time) (*wagerSession, error) {
	sess := &wagerSession{
		id:        uuid.NewString(),
		userID:    userID,
		game:      game,
		bet:       bet,
		startedAt: now,
		status:    models.WagerStatusPending,
	}

	switch game {
	case models.GameTypeMines:
		board, err := games.NewMinesBoard(s.cfg.Mines, s.rng)
		if err != nil {
			return nil, fmt.Errorf("failed to create mines board: %w", err)
		}
		sess.board = board
		sess.multiplier = board.Multiplier()
	case models.GameTypeCrash:
		sess.round = games.NewCrashRound(s.cfg.Crash, s.rng)
		sess.multiplier = sess.round.Current()
	}
	return sess, nil
}

func (s *wagerService) lookup(sessionID string, userID int64) (*wagerSession, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("wager session %s: %w", sessionID, models.ErrNotFound)
	}
	if sess.userID != userID {
		return nil, fmt.Errorf("session belongs to another player: %w", models.ErrUnauthorized)
	}
	return sess, nil
}

// armLocked starts the inactivity timer or the crash ticker
func (s *wagerService) armLocked(sess *wagerSession) {
	switch sess.game {
	case models.GameTypeMines:
		s.resetTimerLocked(sess, s.cfg.MinesTimeout)
	case models.GameTypeRPS:
		s.resetTimerLocked(sess, s.cfg.RPSTimeout)
	case models.GameTypeCrash:
		if sess.round.State() == games.CrashCrashed {
			s.settleLocked(context.Background(), sess, models.WagerStatusLost, models.WagerEndCrash, sess.round.Current(), 0)
			return
		}
		sess.stop = make(chan struct{})
		s.wg.Add(1)
		go s.runCrash(sess, sess.stop)
	}
}

// resetTimerLocked replaces the session's timeout. A callback from an older
// timer that already fired sees a stale generation and does nothing.
func (s *wagerService) resetTimerLocked(sess *wagerSession, d time.Duration) {
	if sess.timer != nil {
		sess.timer.Stop()
	}
	sess.timerGen++
	gen := sess.timerGen
	sess.timer = time.AfterFunc(d, func() { s.onTimeout(sess, gen) })
}

func (s *wagerService) onTimeout(sess *wagerSession, gen int) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if gen != sess.timerGen || sess.resolved.Load() {
		return
	}

	ctx := context.Background()
	switch sess.game {
	case models.GameTypeMines:
		sess.board.Forfeit()
		s.settleLocked(ctx, sess, models.WagerStatusLost, models.WagerEndTimeout, sess.board.Multiplier(), 0)
	case models.GameTypeRPS:
		s.settleLocked(ctx, sess, models.WagerStatusRefunded, models.WagerEndTimeout, decimal.Zero, sess.bet)
	}

	log.WithFields(log.Fields{
		"sessionID": sess.id,
		"userID":    sess.userID,
		"game":      sess.game,
	}).Info("Wager session timed out")
}

func (s *wagerService) runCrash(sess *wagerSession, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Crash.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.crashTick(sess) {
				return
			}
		}
	}
}

// crashTick advances a crash round by one step and reports whether it ended
func (s *wagerService) crashTick(sess *wagerSession) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.resolved.Load() {
		return true
	}

	m, crashed := sess.round.Tick()
	if crashed {
		s.settleLocked(context.Background(), sess, models.WagerStatusLost, models.WagerEndCrash, m, 0)
		return true
	}

	sess.multiplier = m
	s.bus.Emit(context.Background(), events.WagerUpdatedEvent{
		SessionID:  sess.id,
		UserID:     sess.userID,
		Game:       sess.game,
		Multiplier: m.StringFixed(2),
		Ticks:      sess.round.Ticks(),
	})
	return false
}

// settleLocked resolves the session and credits payout. It returns false if
// the session had already been resolved, in which case nothing changes.
func (s *wagerService) settleLocked(ctx context.Context, sess *wagerSession, status models.WagerStatus, reason models.WagerEndReason, multiplier decimal.Decimal, payout int64) bool {
	if !sess.resolved.CompareAndSwap(false, true) {
		return false
	}

	sess.resolvedAt.Store(s.now().UnixNano())
	sess.status = status
	sess.reason = reason
	sess.multiplier = multiplier
	sess.payout = payout

	if sess.timer != nil {
		sess.timer.Stop()
	}
	sess.timerGen++
	if sess.stop != nil {
		close(sess.stop)
		sess.stop = nil
	}

	if payout > 0 {
		txType := models.TransactionTypeWagerPayout
		if status == models.WagerStatusRefunded {
			txType = models.TransactionTypeWagerRefund
		}
		sess.balance = s.ledger.Credit(ctx, sess.userID, payout, txType, map[string]any{
			"session_id": sess.id,
			"game":       string(sess.game),
			"multiplier": multiplier.String(),
		})
	} else {
		sess.balance = s.ledger.GetBalance(ctx, sess.userID)
	}

	s.mu.Lock()
	key := cooldownKey{userID: sess.userID, game: sess.game}
	if s.active[key] == sess.id {
		delete(s.active, key)
	}
	s.mu.Unlock()

	s.bus.Emit(ctx, events.WagerSettledEvent{
		SessionID:  sess.id,
		UserID:     sess.userID,
		Game:       sess.game,
		Bet:        sess.bet,
		Payout:     payout,
		Status:     status,
		Reason:     reason,
		Multiplier: multiplier.String(),
	})

	log.WithFields(log.Fields{
		"sessionID":  sess.id,
		"userID":     sess.userID,
		"game":       sess.game,
		"bet":        sess.bet,
		"payout":     payout,
		"status":     status,
		"reason":     reason,
		"multiplier": multiplier.String(),
	}).Info("Wager settled")
	return true
}

func (s *wagerService) snapshotLocked(sess *wagerSession) *models.WagerSnapshot {
	snap := &models.WagerSnapshot{
		SessionID:  sess.id,
		UserID:     sess.userID,
		Game:       sess.game,
		Bet:        sess.bet,
		Status:     sess.status,
		EndReason:  sess.reason,
		Multiplier: sess.multiplier,
		Payout:     sess.payout,
		Balance:    sess.balance,
		StartedAt:  sess.startedAt,
	}
	resolved := sess.resolved.Load()
	if resolved {
		snap.ResolvedAt = time.Unix(0, sess.resolvedAt.Load())
	}

	switch sess.game {
	case models.GameTypeMines:
		snap.Policy = string(sess.board.Policy())
		snap.Cells = sess.board.View()
		snap.Reveals = sess.board.Reveals()
	case models.GameTypeCrash:
		snap.Ticks = sess.round.Ticks()
		if resolved {
			crashAt := sess.round.CrashPoint()
			snap.CrashPoint = &crashAt
		}
	case models.GameTypeRPS:
		if sess.hand != nil {
			snap.PlayerChoice = string(sess.hand.Player)
			snap.BotChoice = string(sess.hand.Bot)
		}
	}
	return snap
}
