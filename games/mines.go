package games

import (
	"errors"
	"fmt"

	"scrimbet/models"

	"github.com/shopspring/decimal"
)

// AccumulationPolicy decides how revealed cell values combine
type AccumulationPolicy string

const (
	// PolicyMultiplicative starts at 1.0 and multiplies every revealed value
	PolicyMultiplicative AccumulationPolicy = "multiplicative"
	// PolicyAdditive starts at 0.0 and sums every revealed value
	PolicyAdditive AccumulationPolicy = "additive"
)

// MinesConfig describes a mines board
type MinesConfig struct {
	Cells  int
	Bombs  int
	Pool   []decimal.Decimal
	Policy AccumulationPolicy
	// SumPlaces rounds the running additive sum; ignored for multiplicative boards
	SumPlaces int32
	// MinRevealsToCashOut is the number of safe reveals required before cashing out
	MinRevealsToCashOut int
}

// DefaultMinesConfig is a 4x4 board with 6 bombs and additive accumulation
func DefaultMinesConfig() MinesConfig {
	return MinesConfig{
		Cells:               16,
		Bombs:               6,
		Pool:                mustDecimals("0.5", "0.5", "0.6", "0.6", "0.7", "0.8", "0.9", "1.0", "1.5", "2.0"),
		Policy:              PolicyAdditive,
		SumPlaces:           4,
		MinRevealsToCashOut: 1,
	}
}

// Validate checks the layout is consistent
func (c MinesConfig) Validate() error {
	if c.Bombs <= 0 || c.Bombs >= c.Cells {
		return fmt.Errorf("bomb count %d must be between 1 and %d", c.Bombs, c.Cells-1)
	}
	if c.Cells-c.Bombs != len(c.Pool) {
		return fmt.Errorf("board has %d safe cells but the multiplier pool has %d values", c.Cells-c.Bombs, len(c.Pool))
	}
	if c.Policy != PolicyMultiplicative && c.Policy != PolicyAdditive {
		return fmt.Errorf("unknown accumulation policy %q", c.Policy)
	}
	if c.MinRevealsToCashOut < 0 {
		return fmt.Errorf("minimum reveals must not be negative")
	}
	return nil
}

// StartingMultiplier is the identity value of the policy
func (c MinesConfig) StartingMultiplier() decimal.Decimal {
	if c.Policy == PolicyMultiplicative {
		return decimal.NewFromInt(1)
	}
	return decimal.Zero
}

// MineCell is a cell of the hidden layout
type MineCell struct {
	Bomb       bool
	Multiplier decimal.Decimal
	Revealed   bool
}

// RevealResult is the effect of revealing one cell
type RevealResult struct {
	Index      int
	Bomb       bool
	Value      decimal.Decimal
	Multiplier decimal.Decimal
}

// ErrRoundOver is returned for any action on a round that already ended
var ErrRoundOver = errors.New("round already over")

// MinesBoard is one round of mines. It is not safe for concurrent use.
type MinesBoard struct {
	cfg        MinesConfig
	cells      []MineCell
	multiplier decimal.Decimal
	reveals    int
	finished   bool
}

// NewMinesBoard places the bombs and shuffles the multiplier pool onto the safe cells
func NewMinesBoard(cfg MinesConfig, r Random) (*MinesBoard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mines config: %w", err)
	}

	positions := make([]int, cfg.Cells)
	for i := range positions {
		positions[i] = i
	}
	r.Shuffle(len(positions), func(i, j int) { positions[i], positions[j] = positions[j], positions[i] })

	pool := append([]decimal.Decimal(nil), cfg.Pool...)
	r.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	cells := make([]MineCell, cfg.Cells)
	for _, pos := range positions[:cfg.Bombs] {
		cells[pos].Bomb = true
	}
	next := 0
	for i := range cells {
		if !cells[i].Bomb {
			cells[i].Multiplier = pool[next]
			next++
		}
	}

	return &MinesBoard{cfg: cfg, cells: cells, multiplier: cfg.StartingMultiplier()}, nil
}

// NewMinesBoardFromLayout builds a board with a fixed layout
func NewMinesBoardFromLayout(cfg MinesConfig, layout []MineCell) (*MinesBoard, error) {
	if cfg.Policy != PolicyMultiplicative && cfg.Policy != PolicyAdditive {
		return nil, fmt.Errorf("unknown accumulation policy %q", cfg.Policy)
	}
	if len(layout) == 0 {
		return nil, fmt.Errorf("layout must not be empty")
	}
	cells := make([]MineCell, len(layout))
	copy(cells, layout)
	cfg.Cells = len(cells)
	return &MinesBoard{cfg: cfg, cells: cells, multiplier: cfg.StartingMultiplier()}, nil
}

// Reveal opens a cell. A bomb finishes the board and reveals everything.
func (b *MinesBoard) Reveal(index int) (RevealResult, error) {
	if b.finished {
		return RevealResult{}, ErrRoundOver
	}
	if index < 0 || index >= len(b.cells) {
		return RevealResult{}, models.ErrInvalidCell
	}
	cell := &b.cells[index]
	if cell.Revealed {
		return RevealResult{}, fmt.Errorf("cell %d already revealed: %w", index, models.ErrDuplicateAction)
	}

	cell.Revealed = true
	if cell.Bomb {
		b.finished = true
		b.RevealAll()
		return RevealResult{Index: index, Bomb: true, Multiplier: b.multiplier}, nil
	}

	switch b.cfg.Policy {
	case PolicyMultiplicative:
		b.multiplier = b.multiplier.Mul(cell.Multiplier)
	case PolicyAdditive:
		b.multiplier = b.multiplier.Add(cell.Multiplier).Round(b.cfg.SumPlaces)
	}
	b.reveals++

	return RevealResult{Index: index, Value: cell.Multiplier, Multiplier: b.multiplier}, nil
}

// CashOut finishes the board and returns the multiplier to pay out
func (b *MinesBoard) CashOut() (decimal.Decimal, error) {
	if b.finished {
		return decimal.Zero, ErrRoundOver
	}
	if b.reveals < b.cfg.MinRevealsToCashOut {
		return decimal.Zero, fmt.Errorf("reveal at least %d cell(s) before cashing out: %w", b.cfg.MinRevealsToCashOut, models.ErrInvalidState)
	}
	b.finished = true
	b.RevealAll()
	return b.multiplier, nil
}

// Forfeit ends the board as a loss, as when the player stops responding
func (b *MinesBoard) Forfeit() {
	b.finished = true
	b.RevealAll()
}

// RevealAll exposes the whole layout
func (b *MinesBoard) RevealAll() {
	for i := range b.cells {
		b.cells[i].Revealed = true
	}
}

func (b *MinesBoard) Multiplier() decimal.Decimal { return b.multiplier }
func (b *MinesBoard) Reveals() int                { return b.reveals }
func (b *MinesBoard) Finished() bool              { return b.finished }
func (b *MinesBoard) Policy() AccumulationPolicy  { return b.cfg.Policy }

// SafeRemaining counts safe cells that are still hidden
func (b *MinesBoard) SafeRemaining() int {
	n := 0
	for _, c := range b.cells {
		if !c.Bomb && !c.Revealed {
			n++
		}
	}
	return n
}

// View returns the player-facing cells; hidden cells carry no information
func (b *MinesBoard) View() []models.MinesCell {
	out := make([]models.MinesCell, len(b.cells))
	for i, c := range b.cells {
		out[i] = models.MinesCell{Index: i, Revealed: c.Revealed}
		if c.Revealed {
			out[i].Bomb = c.Bomb
			out[i].Multiplier = c.Multiplier
		}
	}
	return out
}
