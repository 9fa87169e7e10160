package service

import (
	"sync"
	"time"

	"scrimbet/models"

	"golang.org/x/time/rate"
)

type cooldownKey struct {
	userID int64
	game   models.GameType
}

// cooldowns rate limits game starts per user and game type. Each pair gets a
// one-token bucket refilled once per period.
type cooldowns struct {
	mu       sync.Mutex
	periods  map[models.GameType]time.Duration
	limiters map[cooldownKey]*rate.Limiter
}

func newCooldowns(periods map[models.GameType]time.Duration) *cooldowns {
	return &cooldowns{
		periods:  periods,
		limiters: make(map[cooldownKey]*rate.Limiter),
	}
}

// reserve takes the user's token for game at now. A positive wait means the
// user is still cooling down and nothing was taken. A non-nil reservation can
// be handed back with release if the start fails later.
func (c *cooldowns) reserve(userID int64, game models.GameType, now time.Time) (*rate.Reservation, time.Duration) {
	period := c.periods[game]
	if period <= 0 {
		return nil, 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := cooldownKey{userID: userID, game: game}
	lim, ok := c.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(period), 1)
		c.limiters[key] = lim
	}

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return nil, period
	}
	if wait := r.DelayFrom(now); wait > 0 {
		r.CancelAt(now)
		return nil, wait
	}
	return r, 0
}

// release returns a token taken by reserve
func (c *cooldowns) release(r *rate.Reservation, now time.Time) {
	if r == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r.CancelAt(now)
}

// prune drops limiters whose bucket has refilled
func (c *cooldowns) prune(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, lim := range c.limiters {
		if lim.TokensAt(now) >= 1 {
			delete(c.limiters, key)
			removed++
		}
	}
	return removed
}
