package speaker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/john/speakerlog/internal/csvlog"
	"github.com/john/speakerlog/internal/identity"
	"github.com/john/speakerlog/internal/message"
)

func newTestLogger(t *testing.T, target string) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out", "chat.csv")
	return New(target, csvlog.NewWriter(path), zap.NewNop()), path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestOnEvent_EndToEnd(t *testing.T) {
	l, path := newTestLogger(t, "Alice@Leviathan")

	err := l.OnEvent(message.Message{Channel: "Say", Sender: "Alice@Leviathan", Body: "Hi,\nthere"})
	require.NoError(t, err)

	assert.Equal(t, csvlog.Header+"\n"+`Say,Alice,Leviathan,"Hi, there"`+"\n", readFile(t, path))
}

func TestOnEvent_ReplacesEachLineBreak(t *testing.T) {
	l, path := newTestLogger(t, "Alice")

	require.NoError(t, l.OnEvent(message.Message{Channel: "Say", Sender: "Alice", Body: "a\r\nb\rc\nd"}))

	lines := strings.Split(strings.TrimSuffix(readFile(t, path), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Say,Alice,,a  b c d", lines[1])
}

func TestOnEvent_DisabledTargetNeverTouchesFile(t *testing.T) {
	l, path := newTestLogger(t, "  ")

	for _, sender := range []string{"", "Alice", "Alice@Leviathan", "@"} {
		require.NoError(t, l.OnEvent(message.Message{Channel: "Say", Sender: sender, Body: "hi"}))
	}

	_, err := os.Stat(filepath.Dir(path))
	assert.True(t, os.IsNotExist(err), "output directory should not exist")
	assert.Equal(t, Stats{Seen: 4}, l.Stats())
}

func TestOnEvent_NonMatchingSendersSkipped(t *testing.T) {
	l, path := newTestLogger(t, "Alice@Leviathan")

	require.NoError(t, l.OnEvent(message.Message{Channel: "Say", Sender: "Bob@Leviathan", Body: "no"}))
	require.NoError(t, l.OnEvent(message.Message{Channel: "Say", Sender: "Alice@Odin", Body: "no"}))
	require.NoError(t, l.OnEvent(message.Message{Channel: "Say", Sender: "Alice", Body: "no"}))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, Stats{Seen: 3}, l.Stats())
}

func TestOnEvent_NameOnlyTargetMatchesAnyRealm(t *testing.T) {
	l, path := newTestLogger(t, "alice")

	require.NoError(t, l.OnEvent(message.Message{Channel: "Shout", Sender: "Alice@Odin", Body: "one"}))
	require.NoError(t, l.OnEvent(message.Message{Channel: "Say", Sender: "ALICE@Leviathan", Body: "two"}))
	require.NoError(t, l.OnEvent(message.Message{Channel: "Say", Sender: "Alice", Body: "three"}))

	assert.Equal(t, csvlog.Header+"\n"+
		"Shout,Alice,Odin,one\n"+
		"Say,ALICE,Leviathan,two\n"+
		"Say,Alice,,three\n", readFile(t, path))
}

func TestOnEvent_OneHeaderForManyEvents(t *testing.T) {
	l, path := newTestLogger(t, "Alice")

	const n = 20
	for i := 0; i < n; i++ {
		require.NoError(t, l.OnEvent(message.Message{Channel: "Say", Sender: "Alice", Body: "x"}))
	}

	content := readFile(t, path)
	assert.Equal(t, 1, strings.Count(content, csvlog.Header))
	assert.Equal(t, n+1, strings.Count(content, "\n"))
	assert.Equal(t, Stats{Seen: n, Matched: n, Written: n}, l.Stats())
}

func TestOnEvent_ReturnsIOError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	l := New("Alice", csvlog.NewWriter(filepath.Join(blocker, "chat.csv")), zap.NewNop())
	err := l.OnEvent(message.Message{Channel: "Say", Sender: "Alice", Body: "hi"})

	var ioErr *csvlog.IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, Stats{Seen: 1, Matched: 1, Failed: 1}, l.Stats())
}

func TestSetTarget(t *testing.T) {
	l, path := newTestLogger(t, "")
	assert.True(t, l.Target().IsZero())

	l.SetTarget(" Bob @ Odin ")
	assert.Equal(t, identity.Identity{Name: "Bob", Realm: "Odin"}, l.Target())

	require.NoError(t, l.OnEvent(message.Message{Channel: "Tell", Sender: "bob@odin", Body: "psst"}))
	assert.Equal(t, csvlog.Header+"\nTell,bob,odin,psst\n", readFile(t, path))

	l.SetTarget("")
	assert.True(t, l.Target().IsZero())
	assert.Equal(t, path, l.OutputPath())
}

func TestStart_LogsFailuresAndKeepsGoing(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	core, logs := observer.New(zap.WarnLevel)
	l := New("Alice", csvlog.NewWriter(filepath.Join(blocker, "chat.csv")), zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messageChan := make(chan message.Message, 3)
	messageChan <- message.Message{Platform: "nats", Channel: "Say", Sender: "Alice", Body: "one"}
	messageChan <- message.Message{Platform: "nats", Channel: "Say", Sender: "Bob", Body: "skip"}
	messageChan <- message.Message{Platform: "nats", Channel: "Say", Sender: "Alice", Body: "two"}

	done := make(chan error, 1)
	go func() { done <- l.Start(ctx, messageChan) }()

	require.Eventually(t, func() bool { return l.Stats().Seen == 3 }, time.Second, 5*time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, Stats{Seen: 3, Matched: 2, Failed: 2}, l.Stats())
	assert.Equal(t, 2, logs.FilterMessage("Failed to write chat CSV row").Len())
}

func TestStart_ReturnsWhenChannelClosed(t *testing.T) {
	l, path := newTestLogger(t, "Alice")

	messageChan := make(chan message.Message, 2)
	messageChan <- message.Message{Channel: "Say", Sender: "Alice", Body: "first"}
	messageChan <- message.Message{Channel: "Say", Sender: "Alice", Body: "second"}
	close(messageChan)

	require.NoError(t, l.Start(context.Background(), messageChan))
	assert.Equal(t, csvlog.Header+"\nSay,Alice,,first\nSay,Alice,,second\n", readFile(t, path))
}

func TestStart_DrainsQueuedOnShutdown(t *testing.T) {
	l, path := newTestLogger(t, "Alice")

	const queued = 10
	messageChan := make(chan message.Message, queued)
	for i := 0; i < queued; i++ {
		messageChan <- message.Message{Channel: "Say", Sender: "Alice", Body: "queued"}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, l.Start(ctx, messageChan), context.Canceled)

	assert.Empty(t, messageChan)
	assert.Equal(t, Stats{Seen: queued, Matched: queued, Written: queued}, l.Stats())
	lines := strings.Split(strings.TrimSuffix(readFile(t, path), "\n"), "\n")
	require.Len(t, lines, queued+1)
	assert.Equal(t, csvlog.Header, lines[0])
}
