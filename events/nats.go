package events

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const (
	// StreamName is the JetStream stream holding forwarded events
	StreamName    = "scrimbet_events"
	subjectPrefix = "scrimbet.events."
)

// Subject returns the NATS subject an event type is published on
func Subject(eventType EventType) string {
	return subjectPrefix + string(eventType)
}

// streamPublisher is the part of JetStream the forwarder needs
type streamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSPublisher forwards bus events to a JetStream stream so other services
// (leaderboards, audit) can consume them
type NATSPublisher struct {
	servers              string
	nc                   *nats.Conn
	js                   streamPublisher
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

// NewNATSPublisher creates a publisher; call Connect before Attach
func NewNATSPublisher(servers string) *NATSPublisher {
	return &NATSPublisher{
		servers:              servers,
		reconnectDelay:       2 * time.Second,
		maxReconnectAttempts: 10,
	}
}

// Connect establishes a connection to the NATS server and ensures the stream exists
func (p *NATSPublisher) Connect(ctx context.Context) error {
	opts := []nats.Option{
		nats.Name("scrimbet"),
		nats.MaxReconnects(p.maxReconnectAttempts),
		nats.ReconnectWait(p.reconnectDelay),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Error("NATS disconnected with error")
			} else {
				log.Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(p.servers, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.StreamInfo(StreamName); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:        StreamName,
			Subjects:    []string{subjectPrefix + "*"},
			Retention:   nats.LimitsPolicy,
			MaxAge:      7 * 24 * time.Hour,
			Storage:     nats.FileStorage,
			Replicas:    1,
			Description: "Ledger, wager and match events",
		})
		if err != nil {
			nc.Close()
			return fmt.Errorf("failed to create stream %s: %w", StreamName, err)
		}
		log.WithField("stream", StreamName).Info("Created JetStream stream")
	}

	p.nc = nc
	p.js = js

	log.WithField("servers", p.servers).Info("Connected to NATS with JetStream")
	return nil
}

// Attach subscribes the publisher to every event type on the bus
func (p *NATSPublisher) Attach(bus *Bus) {
	bus.SubscribeMany(AllEventTypes, p.Handle)
}

// Handle publishes one event; failures are logged since the bus is fire and forget
func (p *NATSPublisher) Handle(ctx context.Context, event Event) {
	if err := p.Publish(event); err != nil {
		log.WithFields(log.Fields{
			"eventType": event.Type(),
			"error":     err,
		}).Error("Failed to forward event to NATS")
	}
}

// Publish encodes and publishes one event
func (p *NATSPublisher) Publish(event Event) error {
	if p.js == nil {
		return fmt.Errorf("not connected to NATS JetStream")
	}

	data, err := sonic.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Type(), err)
	}

	subject := Subject(event.Type())
	if _, err := p.js.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish message to subject %s: %w", subject, err)
	}

	log.WithFields(log.Fields{
		"subject": subject,
		"size":    len(data),
	}).Debug("Published event to NATS")
	return nil
}

// Close drains the connection
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}
