package kick

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	kickchat "github.com/johanvandegriff/kick-chat-wrapper"
	"go.uber.org/zap"

	"github.com/john/speakerlog/internal/message"
)

// Platform is the realm given to every Kick sender
const Platform = "kick"

// channelAPI is the Kick endpoint used to look up chatroom IDs
var channelAPI = "https://kick.com/api/v2/channels/"

// ChannelResponse represents the API response from Kick
type ChannelResponse struct {
	ID       int    `json:"id"`
	Slug     string `json:"slug"`
	Chatroom struct {
		ID int `json:"id"`
	} `json:"chatroom"`
}

// ChannelConfig represents a Kick channel with optional pre-configured chatroom ID
type ChannelConfig struct {
	Slug       string
	ChatroomID int // 0 means not pre-configured, needs resolution
}

// Connector manages Kick chat connections
type Connector struct {
	channels []ChannelConfig
	idToSlug map[int]string // chatroom ID -> channel slug
	client   *kickchat.Client
	log      *zap.Logger
}

// New creates a new Kick connector
func New(channels []ChannelConfig, log *zap.Logger) *Connector {
	return &Connector{
		channels: channels,
		idToSlug: make(map[int]string),
		log:      log.With(zap.String("source", Platform)),
	}
}

// Start begins listening to Kick chat
func (c *Connector) Start(ctx context.Context, messageChan chan<- message.Message) error {
	c.resolveChannels(ctx)
	if len(c.idToSlug) == 0 {
		return fmt.Errorf("no valid Kick channels could be resolved")
	}

	client, err := kickchat.NewClient()
	if err != nil {
		return fmt.Errorf("create Kick client: %w", err)
	}
	c.client = client
	c.log.Info("Connected to Kick WebSocket")

	for chatroomID, slug := range c.idToSlug {
		if err := c.client.JoinChannelByID(chatroomID); err != nil {
			c.log.Warn("Failed to join Kick channel",
				zap.String("channel", slug), zap.Int("chatroom_id", chatroomID), zap.Error(err))
			continue
		}
		c.log.Info("Joined Kick channel", zap.String("channel", slug))
	}

	messages := c.client.ListenForMessages()

	go func() {
		for {
			select {
			case msg, ok := <-messages:
				if !ok {
					c.log.Info("Kick message channel closed")
					return
				}

				chatMessage, ok := c.convertMessage(msg)
				if !ok {
					continue
				}

				select {
				case messageChan <- chatMessage:
				case <-ctx.Done():
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	<-ctx.Done()

	c.log.Info("Disconnecting from Kick chat")
	c.client.Close()

	return ctx.Err()
}

// resolveChannels fills idToSlug, resolving slugs without a configured
// chatroom ID through the Kick API. Unresolvable channels are skipped.
func (c *Connector) resolveChannels(ctx context.Context) {
	client := &http.Client{Timeout: 10 * time.Second}

	for _, channel := range c.channels {
		if channel.ChatroomID > 0 {
			c.idToSlug[channel.ChatroomID] = channel.Slug
			c.log.Info("Using pre-configured Kick channel",
				zap.String("channel", channel.Slug), zap.Int("chatroom_id", channel.ChatroomID))
			continue
		}

		info, err := ResolveChannel(ctx, client, channel.Slug)
		if err != nil {
			c.log.Warn("Failed to resolve Kick channel, skipping",
				zap.String("channel", channel.Slug), zap.Error(err))
			continue
		}
		c.idToSlug[info.Chatroom.ID] = info.Slug
		c.log.Info("Resolved Kick channel",
			zap.String("channel", info.Slug), zap.Int("chatroom_id", info.Chatroom.ID))
	}
}

// ResolveChannel fetches channel information from the Kick API
func ResolveChannel(ctx context.Context, client *http.Client, slug string) (*ChannelResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, channelAPI+slug, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// Browser-like headers; the API sits behind CloudFlare
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", "https://kick.com/")
	req.Header.Set("Origin", "https://kick.com")
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Site", "same-origin")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var info ChannelResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode channel response: %w", err)
	}
	if info.Chatroom.ID == 0 {
		return nil, fmt.Errorf("channel %q has no chatroom", slug)
	}
	if info.Slug == "" {
		info.Slug = slug
	}

	return &info, nil
}

// convertMessage converts a Kick chat message; the sender's realm is the platform
func (c *Connector) convertMessage(msg kickchat.ChatMessage) (message.Message, bool) {
	slug, ok := c.idToSlug[msg.ChatroomID]
	if !ok {
		c.log.Warn("Received message from unknown chatroom", zap.Int("chatroom_id", msg.ChatroomID))
		return message.Message{}, false
	}

	return message.Message{
		Platform:  Platform,
		Timestamp: msg.CreatedAt.UTC().Format(time.RFC3339),
		Channel:   slug,
		Sender:    msg.Sender.Username + "@" + Platform,
		Body:      msg.Content,
	}, true
}
