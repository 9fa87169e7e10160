package bot

import (
	"context"

	"scrimbet/events"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// MessageSender is the part of a discord session the notifier posts through
type MessageSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// LogNotifier posts wager and match settlements to a log channel
type LogNotifier struct {
	sender    MessageSender
	channelID string
}

func NewLogNotifier(sender MessageSender, channelID string) *LogNotifier {
	return &LogNotifier{
		sender:    sender,
		channelID: channelID,
	}
}

// Subscribe registers the notifier for settlement events
func (n *LogNotifier) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.EventTypeWagerSettled, n.handleEvent)
	bus.Subscribe(events.EventTypeMatchSettled, n.handleEvent)
}

func (n *LogNotifier) handleEvent(ctx context.Context, event events.Event) {
	var embed *discordgo.MessageEmbed
	switch e := event.(type) {
	case events.WagerSettledEvent:
		embed = buildWagerSettledEmbed(e)
	case events.MatchSettledEvent:
		embed = buildMatchSettledEmbed(e)
	default:
		return
	}

	if _, err := n.sender.ChannelMessageSendEmbed(n.channelID, embed); err != nil {
		log.WithFields(log.Fields{
			"channelID": n.channelID,
			"eventType": event.Type(),
			"error":     err,
		}).Error("Failed to post settlement to log channel")
	}
}
