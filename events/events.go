package events

import (
	"context"
	"sync"

	"scrimbet/models"

	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChange    EventType = "balance_change"
	EventTypeWagerStarted     EventType = "wager_started"
	EventTypeWagerUpdated     EventType = "wager_updated"
	EventTypeWagerSettled     EventType = "wager_settled"
	EventTypeMatchStateChange EventType = "match_state_change"
	EventTypeMatchBetPlaced   EventType = "match_bet_placed"
	EventTypeMatchSettled     EventType = "match_settled"
)

// AllEventTypes lists every event type, for subscribers that forward everything
var AllEventTypes = []EventType{
	EventTypeBalanceChange,
	EventTypeWagerStarted,
	EventTypeWagerUpdated,
	EventTypeWagerSettled,
	EventTypeMatchStateChange,
	EventTypeMatchBetPlaced,
	EventTypeMatchSettled,
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangeEvent represents a balance change that occurred
type BalanceChangeEvent struct {
	UserID          int64                  `json:"user_id"`
	OldBalance      int64                  `json:"old_balance"`
	NewBalance      int64                  `json:"new_balance"`
	ChangeAmount    int64                  `json:"change_amount"`
	TransactionType models.TransactionType `json:"transaction_type"`
	Metadata        map[string]any         `json:"metadata,omitempty"`
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// WagerStartedEvent is emitted once a wager stake has been debited
type WagerStartedEvent struct {
	SessionID string          `json:"session_id"`
	UserID    int64           `json:"user_id"`
	Game      models.GameType `json:"game"`
	Bet       int64           `json:"bet"`
}

func (e WagerStartedEvent) Type() EventType {
	return EventTypeWagerStarted
}

// WagerUpdatedEvent carries progress of a running round, such as a crash tick
type WagerUpdatedEvent struct {
	SessionID  string          `json:"session_id"`
	UserID     int64           `json:"user_id"`
	Game       models.GameType `json:"game"`
	Multiplier string          `json:"multiplier"`
	Ticks      int             `json:"ticks"`
}

func (e WagerUpdatedEvent) Type() EventType {
	return EventTypeWagerUpdated
}

// WagerSettledEvent represents the terminal outcome of a wager session
type WagerSettledEvent struct {
	SessionID  string                `json:"session_id"`
	UserID     int64                 `json:"user_id"`
	Game       models.GameType       `json:"game"`
	Bet        int64                 `json:"bet"`
	Payout     int64                 `json:"payout"`
	Status     models.WagerStatus    `json:"status"`
	Reason     models.WagerEndReason `json:"reason"`
	Multiplier string                `json:"multiplier"`
}

func (e WagerSettledEvent) Type() EventType {
	return EventTypeWagerSettled
}

// MatchStateChangeEvent represents a match state transition
type MatchStateChangeEvent struct {
	MatchID  int64             `json:"match_id"`
	OldState models.MatchState `json:"old_state"`
	NewState models.MatchState `json:"new_state"`
}

func (e MatchStateChangeEvent) Type() EventType {
	return EventTypeMatchStateChange
}

// MatchBetPlacedEvent represents an accepted bet on a match
type MatchBetPlacedEvent struct {
	MatchID int64 `json:"match_id"`
	Bettor  int64 `json:"bettor"`
	Team    int   `json:"team"`
	Amount  int64 `json:"amount"`
}

func (e MatchBetPlacedEvent) Type() EventType {
	return EventTypeMatchBetPlaced
}

// MatchSettledEvent represents a declared result and its pool distribution
type MatchSettledEvent struct {
	MatchID     int64 `json:"match_id"`
	WinningTeam int   `json:"winning_team"`
	TotalPool   int64 `json:"total_pool"`
	WinningPool int64 `json:"winning_pool"`
	PaidOut     int64 `json:"paid_out"`
	Winners     int   `json:"winners"`
}

func (e MatchSettledEvent) Type() EventType {
	return EventTypeMatchSettled
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type on main event bus")
}

// SubscribeMany adds the same handler for several event types
func (b *Bus) SubscribeMany(eventTypes []EventType, handler Handler) {
	for _, eventType := range eventTypes {
		b.Subscribe(eventType, handler)
	}
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers on main event bus")

	// Call handlers asynchronously to avoid blocking
	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// TransactionalBus holds events raised while a mutation is in progress and
// releases them to the main bus once the mutation is complete.
type TransactionalBus struct {
	real    *Bus
	pending []Event // stashed until Flush
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	log.WithFields(log.Fields{
		"eventType":    e.Type(),
		"pendingCount": len(b.pending),
	}).Debug("Adding event to transactional bus pending queue")
	b.pending = append(b.pending, e)
}

// Pending returns how many events are waiting for Flush
func (b *TransactionalBus) Pending() int {
	return len(b.pending)
}

// Flush is called after the mutating lock has been released
func (b *TransactionalBus) Flush(ctx context.Context) error {
	log.WithFields(log.Fields{
		"pendingEventCount": len(b.pending),
	}).Debug("Flushing pending events from transactional bus to main event bus")

	// Handlers outlive the request that raised the event
	eventCtx := context.Background()

	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
	return nil
}

// called when the mutation was rejected
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
