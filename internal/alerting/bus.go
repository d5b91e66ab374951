package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"energy-flow-monitor/internal/rules"
)

// defaultHistorySize bounds the dispatch history ring buffer.
const defaultHistorySize = 256

// Routing maps severities onto transport flags, mirroring the
// push/email preferences of the host platform's notification service.
type Routing struct {
	PushGeneral  bool
	PushWarnings bool
	PushAlarms   bool
	MailWarnings bool
	MailAlarms   bool
}

type sentRecord struct {
	Key string
	At  time.Time
}

// Bus owns the notification dispatch path: severity routing, per-rule
// rate limits, and a size-bounded ring buffer of what was sent. It is
// constructed once at process start and shared by reference.
type Bus struct {
	notifiers []Notifier
	routing   Routing
	logger    zerolog.Logger

	mu   sync.Mutex
	ring []sentRecord
	next int
	full bool
}

// NewBus constructs a dispatch bus over the given channels.
func NewBus(notifiers []Notifier, routing Routing, logger zerolog.Logger) *Bus {
	return &Bus{
		notifiers: notifiers,
		routing:   routing,
		logger:    logger.With().Str("component", "alert_bus").Logger(),
		ring:      make([]sentRecord, defaultHistorySize),
	}
}

// Dispatch sends one active rule's message through every channel,
// honoring the rule's rate limit. Returns false when the dispatch was
// rate limited.
func (b *Bus) Dispatch(ctx context.Context, rule rules.Rule, message string, now time.Time) bool {
	if rule.MaxPerPeriod != nil && b.countSince(rule.Key, now.Add(-rule.MaxPerPeriod.Per)) >= rule.MaxPerPeriod.Max {
		b.logger.Debug().Str("rule", rule.Key).Msg("notification rate limited")
		return false
	}

	note := Notification{
		Title:      rule.Name,
		Message:    message,
		Level:      rule.Severity,
		Push:       b.shouldPush(rule.Severity),
		Email:      b.shouldMail(rule.Severity),
		Persistent: true,
	}

	for _, notifier := range b.notifiers {
		if err := notifier.Notify(ctx, note); err != nil {
			b.logger.Error().Err(err).Str("rule", rule.Key).Msg("notification channel failed")
		}
	}

	b.record(rule.Key, now)
	return true
}

// SentCount reports how many dispatches of a rule fall inside the
// rolling window ending at now.
func (b *Bus) SentCount(key string, window time.Duration, now time.Time) int {
	return b.countSince(key, now.Add(-window))
}

func (b *Bus) shouldPush(severity string) bool {
	switch severity {
	case rules.SeverityAlarm:
		return b.routing.PushAlarms
	case rules.SeverityWarning:
		return b.routing.PushWarnings
	default:
		return b.routing.PushGeneral
	}
}

func (b *Bus) shouldMail(severity string) bool {
	switch severity {
	case rules.SeverityAlarm:
		return b.routing.MailAlarms
	case rules.SeverityWarning:
		return b.routing.MailWarnings
	default:
		return false
	}
}

func (b *Bus) record(key string, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ring[b.next] = sentRecord{Key: key, At: at}
	b.next++
	if b.next == len(b.ring) {
		b.next = 0
		b.full = true
	}
}

func (b *Bus) countSince(key string, cutoff time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	limit := b.next
	if b.full {
		limit = len(b.ring)
	}
	count := 0
	for i := 0; i < limit; i++ {
		if b.ring[i].Key == key && !b.ring[i].At.Before(cutoff) {
			count++
		}
	}
	return count
}
