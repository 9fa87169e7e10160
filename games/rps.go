package games

import (
	"fmt"
	"strings"

	"scrimbet/models"

	"github.com/shopspring/decimal"
)

// Choice is a rock-paper-scissors hand
type Choice string

const (
	Rock     Choice = "rock"
	Paper    Choice = "paper"
	Scissors Choice = "scissors"
)

var choices = []Choice{Rock, Paper, Scissors}

// ParseChoice accepts a hand name in any case
func ParseChoice(raw string) (Choice, error) {
	c := Choice(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case Rock, Paper, Scissors:
		return c, nil
	}
	return "", fmt.Errorf("%q: %w", raw, models.ErrInvalidChoice)
}

// Beats reports whether c wins against other
func (c Choice) Beats(other Choice) bool {
	return (c == Rock && other == Scissors) ||
		(c == Paper && other == Rock) ||
		(c == Scissors && other == Paper)
}

// RPSOutcome is the result from the player's point of view
type RPSOutcome string

const (
	RPSWin  RPSOutcome = "win"
	RPSLose RPSOutcome = "lose"
	RPSTie  RPSOutcome = "tie"
)

// RPSConfig bounds the win multiplier
type RPSConfig struct {
	WinLow  decimal.Decimal
	WinHigh decimal.Decimal
}

// DefaultRPSConfig pays a random 1.10x to 2.00x on a win
func DefaultRPSConfig() RPSConfig {
	return RPSConfig{
		WinLow:  decimal.RequireFromString("1.10"),
		WinHigh: decimal.RequireFromString("2.00"),
	}
}

// Validate checks the win range
func (c RPSConfig) Validate() error {
	if !c.WinLow.IsPositive() || c.WinHigh.LessThan(c.WinLow) {
		return fmt.Errorf("invalid rps win range %s-%s", c.WinLow, c.WinHigh)
	}
	return nil
}

// RPSResult is a resolved hand
type RPSResult struct {
	Player     Choice
	Bot        Choice
	Outcome    RPSOutcome
	Multiplier decimal.Decimal // set on a win only
}

// Resolve compares two hands
func Resolve(player, bot Choice) RPSOutcome {
	switch {
	case player == bot:
		return RPSTie
	case player.Beats(bot):
		return RPSWin
	default:
		return RPSLose
	}
}

// PlayRPS draws the bot's hand uniformly and, on a player win, the multiplier
func PlayRPS(cfg RPSConfig, r Random, player Choice) RPSResult {
	bot := choices[r.Intn(len(choices))]
	result := RPSResult{Player: player, Bot: bot, Outcome: Resolve(player, bot)}
	if result.Outcome == RPSWin {
		result.Multiplier = UniformMultiplier(r, cfg.WinLow, cfg.WinHigh, 2)
	}
	return result
}
