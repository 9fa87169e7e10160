package games

import (
	"math/rand"
	"sync"
	"time"
)

// Random is the source of randomness for the games. *rand.Rand satisfies it,
// but is not safe for concurrent use; use NewRandom for shared sources.
type Random interface {
	Float64() float64
	Intn(n int) int
	Shuffle(n int, swap func(i, j int))
}

type lockedRandom struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRandom returns a goroutine-safe random source. A zero seed seeds from the clock.
func NewRandom(seed int64) Random {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedRandom{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRandom) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRandom) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

func (l *lockedRandom) Shuffle(n int, swap func(i, j int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Shuffle(n, swap)
}
