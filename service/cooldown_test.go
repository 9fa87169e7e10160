package service

import (
	"testing"
	"time"

	"scrimbet/models"

	"github.com/stretchr/testify/assert"
)

func TestCooldowns_ReserveAndWait(t *testing.T) {
	c := newCooldowns(map[models.GameType]time.Duration{
		models.GameTypeMines: 7 * time.Second,
	})
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	r, wait := c.reserve(1, models.GameTypeMines, start)
	assert.NotNil(t, r)
	assert.Zero(t, wait)

	_, wait = c.reserve(1, models.GameTypeMines, start.Add(2*time.Second))
	assert.InDelta(t, float64(5*time.Second), float64(wait), float64(time.Millisecond))

	// other users and other games are independent
	_, wait = c.reserve(2, models.GameTypeMines, start.Add(2*time.Second))
	assert.Zero(t, wait)
	_, wait = c.reserve(1, models.GameTypeRPS, start.Add(2*time.Second))
	assert.Zero(t, wait, "no cooldown configured for rps")

	_, wait = c.reserve(1, models.GameTypeMines, start.Add(8*time.Second))
	assert.Zero(t, wait)
}

func TestCooldowns_Release(t *testing.T) {
	c := newCooldowns(map[models.GameType]time.Duration{
		models.GameTypeCrash: 10 * time.Second,
	})
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	r, _ := c.reserve(1, models.GameTypeCrash, now)
	c.release(r, now)

	_, wait := c.reserve(1, models.GameTypeCrash, now)
	assert.Zero(t, wait, "a released token can be taken again")
}

func TestCooldowns_Prune(t *testing.T) {
	c := newCooldowns(map[models.GameType]time.Duration{
		models.GameTypeRPS: 5 * time.Second,
	})
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	c.reserve(1, models.GameTypeRPS, now)
	c.reserve(2, models.GameTypeRPS, now.Add(4*time.Second))

	assert.Equal(t, 1, c.prune(now.Add(8*time.Second)))
	assert.Len(t, c.limiters, 1)
}
