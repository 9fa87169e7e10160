package bot

import (
	"fmt"

	"scrimbet/events"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// Config holds bot configuration
type Config struct {
	Token        string
	LogChannelID string
}

// Bot owns the discord session used to post to the log channel. Commands are
// handled by the chat front end, which calls the services directly.
type Bot struct {
	config   Config
	session  *discordgo.Session
	notifier *LogNotifier
}

func New(config Config, eventBus *events.Bus) (*Bot, error) {
	if config.Token == "" || config.LogChannelID == "" {
		return nil, fmt.Errorf("discord token and log channel are required")
	}

	dg, err := discordgo.New("Bot " + config.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds

	// Open websocket connection
	if err := dg.Open(); err != nil {
		return nil, fmt.Errorf("error opening connection: %w", err)
	}

	bot := &Bot{
		config:   config,
		session:  dg,
		notifier: NewLogNotifier(dg, config.LogChannelID),
	}
	bot.notifier.Subscribe(eventBus)

	log.WithField("channelID", config.LogChannelID).Info("Settlement log channel enabled")
	return bot, nil
}

func (b *Bot) Close() error {
	return b.session.Close()
}
