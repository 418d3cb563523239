// Package natsrc receives chat events published on a NATS subject, so a
// game client or any other bridge can feed speakerlog with raw
// "Name@World" senders.
package natsrc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/john/speakerlog/internal/message"
)

// Platform tags messages received through NATS
const Platform = "nats"

// Event is the JSON payload expected on the subject
type Event struct {
	Channel   string `json:"channel"`
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Source subscribes to a NATS subject and forwards decoded events
type Source struct {
	url     string
	token   string
	subject string
	log     *zap.Logger
}

// New creates a NATS source
func New(url, token, subject string, log *zap.Logger) *Source {
	return &Source{
		url:     url,
		token:   token,
		subject: subject,
		log:     log.With(zap.String("source", Platform)),
	}
}

// Start connects, subscribes and forwards events until ctx is cancelled
func (s *Source) Start(ctx context.Context, messageChan chan<- message.Message) error {
	opts := []nats.Option{
		nats.Name("speakerlog"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			s.log.Info("NATS reconnected")
		}),
	}
	if s.token != "" {
		opts = append(opts, nats.Token(s.token))
	}

	nc, err := nats.Connect(s.url, opts...)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	sub, err := nc.Subscribe(s.subject, func(msg *nats.Msg) {
		chatMessage, err := Decode(msg.Data)
		if err != nil {
			s.log.Warn("Dropping malformed chat event", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}

		select {
		case messageChan <- chatMessage:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.subject, err)
	}
	s.log.Info("Subscribed to chat subject", zap.String("subject", s.subject))

	<-ctx.Done()

	s.log.Info("Unsubscribing from NATS")
	if err := sub.Unsubscribe(); err != nil {
		s.log.Warn("NATS unsubscribe failed", zap.Error(err))
	}

	return ctx.Err()
}

// Decode parses a JSON chat event. The sender is kept verbatim.
func Decode(data []byte) (message.Message, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return message.Message{}, fmt.Errorf("decode chat event: %w", err)
	}

	ts := ev.Timestamp
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339)
	}

	return message.Message{
		Platform:  Platform,
		Timestamp: ts,
		Channel:   ev.Channel,
		Sender:    ev.Sender,
		Body:      ev.Body,
	}, nil
}
