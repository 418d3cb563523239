package twitch

import (
	"testing"
	"time"

	"github.com/gempir/go-twitch-irc/v4"
	"github.com/stretchr/testify/assert"

	"github.com/john/speakerlog/internal/identity"
)

func TestToMessage(t *testing.T) {
	sent := time.Date(2025, 12, 30, 10, 30, 0, 0, time.UTC)
	msg := twitch.PrivateMessage{
		User:    twitch.User{Name: "ludwig", DisplayName: "Ludwig"},
		Channel: "#ludwig",
		Message: "hello, chat",
		Time:    sent,
	}

	got := toMessage(msg)

	assert.Equal(t, "twitch", got.Platform)
	assert.Equal(t, "ludwig", got.Channel)
	assert.Equal(t, "ludwig@twitch", got.Sender)
	assert.Equal(t, "hello, chat", got.Body)
	assert.Equal(t, "2025-12-30T10:30:00Z", got.Timestamp)
	assert.Equal(t, identity.Identity{Name: "ludwig", Realm: "twitch"}, identity.Parse(got.Sender))
}

func TestToMessage_LocalizedDisplayNameMatchesLogin(t *testing.T) {
	got := toMessage(twitch.PrivateMessage{
		User:    twitch.User{Name: "kr_streamer", DisplayName: "한국스트리머"},
		Channel: "#kr_streamer",
		Message: "안녕",
	})

	assert.Equal(t, "kr_streamer@twitch", got.Sender)
	assert.True(t, identity.Matches(identity.Parse(got.Sender), identity.Parse("KR_Streamer@twitch")))
}

func TestToMessage_FallsBackToDisplayName(t *testing.T) {
	got := toMessage(twitch.PrivateMessage{
		User:    twitch.User{DisplayName: "Someone"},
		Channel: "chan",
	})

	assert.Equal(t, "Someone@twitch", got.Sender)
	assert.NotEmpty(t, got.Timestamp)
}
