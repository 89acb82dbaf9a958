// Package relay publishes dashboard events to NATS JetStream so consumers
// other than the browser gateway (alerting, indexers) can tap the same
// stream.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/lanewatch/lanewatch/go/internal/timeboost"
)

// JetStreamConfig holds configuration for the event relay stream.
type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration
	MaxMsgs         int64
	Replicas        int
	DuplicateWindow time.Duration
	PublishTimeout  time.Duration
}

// DefaultJetStreamConfig returns the default relay configuration.
func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "TIMEBOOST_EVENTS",
		SubjectPrefix:   "timeboost.events",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		MaxMsgs:         -1,
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
		PublishTimeout:  5 * time.Second,
	}
}

// Publisher relays dashboard events to a JetStream stream, one subject per
// network and event type.
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

// NewPublisher connects to NATS and ensures the relay stream exists.
func NewPublisher(cfg JetStreamConfig) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &Publisher{nc: nc, js: js, config: cfg}
	if err := p.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return p, nil
}

func (p *Publisher) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Express-lane auction dashboard event stream",
		Subjects:    []string{fmt.Sprintf("%s.>", p.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		MaxMsgs:     p.config.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    p.config.Replicas,
		Duplicates:  p.config.DuplicateWindow,
	}

	if _, err := p.js.Stream(ctx, p.config.StreamName); err == nil {
		return nil
	}
	if _, err := p.js.CreateStream(ctx, sc); err != nil {
		return err
	}
	log.Info().Str("stream", p.config.StreamName).Msg("created JetStream stream")
	return nil
}

// Publish implements timeboost.Sink. Publishing happens with its own
// timeout and never blocks the monitor; failures are logged, not
// propagated, since the relay is a best-effort tap.
func (p *Publisher) Publish(evt *timeboost.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal relay event")
		return
	}

	subject := p.subjectFor(evt)
	ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishTimeout)
	defer cancel()

	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(evt.ID)); err != nil {
		log.Error().
			Err(err).
			Str("subject", subject).
			Str("event_id", evt.ID).
			Msg("failed to relay event")
		return
	}

	log.Debug().
		Str("subject", subject).
		Str("event_type", string(evt.Type)).
		Msg("event relayed")
}

func (p *Publisher) subjectFor(evt *timeboost.Event) string {
	return fmt.Sprintf("%s.%s.%s",
		p.config.SubjectPrefix,
		strings.ToLower(evt.Network),
		strings.ToLower(string(evt.Type)))
}

// Close tears down the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
