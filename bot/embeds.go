package bot

import (
	"fmt"
	"strings"

	"scrimbet/bot/common"
	"scrimbet/events"
	"scrimbet/models"

	"github.com/bwmarrin/discordgo"
)

// Discord color constants
const (
	ColorPrimary = 0x5865F2 // Discord blurple
	ColorSuccess = 0x57F287 // Green
	ColorDanger  = 0xED4245 // Red
	ColorWarning = 0xFEE75C // Yellow
)

var gameTitles = map[models.GameType]string{
	models.GameTypeMines: "💣 Mines",
	models.GameTypeCrash: "📈 Crash",
	models.GameTypeRPS:   "✊ Rock Paper Scissors",
}

// buildWagerSettledEmbed creates the log line for a finished wager session
func buildWagerSettledEmbed(e events.WagerSettledEvent) *discordgo.MessageEmbed {
	title, ok := gameTitles[e.Game]
	if !ok {
		title = string(e.Game)
	}

	color := ColorPrimary
	outcome := "Settled"
	switch e.Status {
	case models.WagerStatusWon:
		color, outcome = ColorSuccess, "Won"
	case models.WagerStatusLost:
		color, outcome = ColorDanger, "Lost"
	case models.WagerStatusRefunded:
		color, outcome = ColorWarning, "Refunded"
	}

	net := e.Payout - e.Bet
	netDisplay := common.FormatPoints(net)
	if net > 0 {
		netDisplay = "+" + netDisplay
	}

	return &discordgo.MessageEmbed{
		Title: fmt.Sprintf("%s · %s", title, outcome),
		Description: fmt.Sprintf("%s bet **%s** and received **%s**",
			common.UserMention(e.UserID),
			common.FormatPoints(e.Bet),
			common.FormatPoints(e.Payout),
		),
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Multiplier", Value: common.FormatMultiplier(e.Multiplier), Inline: true},
			{Name: "Net", Value: netDisplay, Inline: true},
			{Name: "Reason", Value: strings.ReplaceAll(string(e.Reason), "_", " "), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Session " + e.SessionID,
		},
	}
}

// buildMatchSettledEmbed creates the log line for a declared match result
func buildMatchSettledEmbed(e events.MatchSettledEvent) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("🏆 Match #%d · Team %d wins", e.MatchID, e.WinningTeam),
		Color: ColorSuccess,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Total Pool", Value: common.FormatPoints(e.TotalPool), Inline: true},
			{Name: "Winning Side", Value: common.FormatPoints(e.WinningPool), Inline: true},
			{Name: "Paid Out", Value: fmt.Sprintf("%s to %d bettors", common.FormatPoints(e.PaidOut), e.Winners), Inline: true},
		},
	}

	if e.TotalPool > 0 && e.WinningPool == 0 {
		embed.Color = ColorWarning
		embed.Description = "Nobody backed the winning team. The pool is not paid out."
	}
	return embed
}
