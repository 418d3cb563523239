package twitch

import (
	"context"
	"strings"
	"time"

	"github.com/gempir/go-twitch-irc/v4"
	"go.uber.org/zap"

	"github.com/john/speakerlog/internal/message"
)

// Platform is the realm given to every Twitch sender
const Platform = "twitch"

// Connector manages Twitch chat connections
type Connector struct {
	username string
	oauth    string
	channels []string
	client   *twitch.Client
	log      *zap.Logger
}

// New creates a new Twitch connector. An empty username joins
// anonymously, which is enough to read chat.
func New(username, oauth string, channels []string, log *zap.Logger) *Connector {
	return &Connector{
		username: username,
		oauth:    oauth,
		channels: channels,
		log:      log.With(zap.String("source", Platform)),
	}
}

// Start begins listening to Twitch chat
func (c *Connector) Start(ctx context.Context, messageChan chan<- message.Message) error {
	if c.username == "" {
		c.client = twitch.NewAnonymousClient()
	} else {
		c.client = twitch.NewClient(c.username, c.oauth)
	}

	c.client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		select {
		case messageChan <- toMessage(msg):
		case <-ctx.Done():
			return
		}
	})

	c.client.OnConnect(func() {
		c.log.Info("Connected to Twitch IRC")
	})

	c.client.OnReconnectMessage(func(msg twitch.ReconnectMessage) {
		c.log.Info("Reconnecting to Twitch IRC")
	})

	c.client.Join(c.channels...)
	c.log.Info("Joining Twitch channels", zap.Strings("channels", c.channels))

	go func() {
		if err := c.client.Connect(); err != nil && err != twitch.ErrClientDisconnected {
			c.log.Error("Twitch IRC connection error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	c.log.Info("Disconnecting from Twitch IRC")
	if err := c.client.Disconnect(); err != nil {
		c.log.Warn("Twitch IRC disconnect failed", zap.Error(err))
	}

	return ctx.Err()
}

// toMessage converts a PRIVMSG into a chat message whose sender is the
// login name with the platform as its realm, e.g. "ludwig@twitch".
// Display names can be localized and differ from the login, so they are
// only used when the login is missing.
func toMessage(msg twitch.PrivateMessage) message.Message {
	name := msg.User.Name
	if name == "" {
		name = msg.User.DisplayName
	}

	ts := msg.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	return message.Message{
		Platform:  Platform,
		Timestamp: ts.UTC().Format(time.RFC3339),
		Channel:   strings.TrimPrefix(msg.Channel, "#"),
		Sender:    name + "@" + Platform,
		Body:      msg.Message,
	}
}
