package speaker

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/john/speakerlog/internal/csvlog"
	"github.com/john/speakerlog/internal/identity"
	"github.com/john/speakerlog/internal/message"
)

var lineBreaks = strings.NewReplacer("\r", " ", "\n", " ")

// Stats counts what the logger has done since it was created
type Stats struct {
	Seen    int64 `json:"seen"`
	Matched int64 `json:"matched"`
	Written int64 `json:"written"`
	Failed  int64 `json:"failed"`
}

// Logger filters chat messages by sender and appends the matching ones
// to a CSV file.
type Logger struct {
	writer *csvlog.Writer
	log    *zap.Logger

	mu     sync.RWMutex
	target identity.Identity

	seen    atomic.Int64
	matched atomic.Int64
	written atomic.Int64
	failed  atomic.Int64
}

// New creates a logger for the given target ("Name" or "Name@Realm").
// An empty target leaves logging disabled until SetTarget is called.
func New(target string, writer *csvlog.Writer, log *zap.Logger) *Logger {
	return &Logger{
		writer: writer,
		log:    log,
		target: identity.Parse(target),
	}
}

// SetTarget replaces the identity messages are matched against
func (l *Logger) SetTarget(raw string) {
	target := identity.Parse(raw)

	l.mu.Lock()
	l.target = target
	l.mu.Unlock()

	if target.IsZero() {
		l.log.Info("Speaker logging disabled")
		return
	}
	l.log.Info("Speaker target updated", zap.String("target", target.String()))
}

// Target returns the current target identity
func (l *Logger) Target() identity.Identity {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.target
}

// OutputPath returns the CSV file rows are appended to
func (l *Logger) OutputPath() string {
	return l.writer.Path()
}

// Stats returns a snapshot of the counters
func (l *Logger) Stats() Stats {
	return Stats{
		Seen:    l.seen.Load(),
		Matched: l.matched.Load(),
		Written: l.written.Load(),
		Failed:  l.failed.Load(),
	}
}

// OnEvent appends msg to the CSV file if its sender matches the target.
// Non-matching messages and a disabled target are not errors. A failed
// write returns a *csvlog.IOError; the message is not retried.
func (l *Logger) OnEvent(msg message.Message) error {
	l.seen.Add(1)

	target := l.Target()
	if target.IsZero() {
		return nil
	}

	sender := identity.Parse(msg.Sender)
	if !identity.Matches(sender, target) {
		return nil
	}
	l.matched.Add(1)

	body := lineBreaks.Replace(msg.Body)
	if err := l.writer.Append(msg.Channel, sender.Name, sender.Realm, body); err != nil {
		l.failed.Add(1)
		return err
	}

	l.written.Add(1)
	return nil
}

// Start consumes messages in delivery order until ctx is cancelled.
// Write failures are logged and the loop moves on to the next message.
// On cancellation, messages already queued are handled before returning.
func (l *Logger) Start(ctx context.Context, messageChan <-chan message.Message) error {
	for {
		select {
		case msg, ok := <-messageChan:
			if !ok {
				return nil
			}
			l.handle(msg)

		case <-ctx.Done():
			l.log.Info("Speaker logger shutting down, draining queued messages...")
			l.drain(messageChan)
			l.log.Info("Speaker logger stopped", zap.Any("stats", l.Stats()))
			return ctx.Err()
		}
	}
}

// drain handles whatever is buffered in messageChan without blocking
func (l *Logger) drain(messageChan <-chan message.Message) {
	for {
		select {
		case msg, ok := <-messageChan:
			if !ok {
				return
			}
			l.handle(msg)
		default:
			return
		}
	}
}

func (l *Logger) handle(msg message.Message) {
	if err := l.OnEvent(msg); err != nil {
		l.log.Warn("Failed to write chat CSV row",
			zap.String("platform", msg.Platform),
			zap.String("channel", msg.Channel),
			zap.Error(err),
		)
	}
}
