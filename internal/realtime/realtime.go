// Package realtime carries row-level change events and presence snapshots between the API
// and subscribed clients.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

const (
	changesPrefix  = "campus.changes"
	presencePrefix = "campus.presence"
)

// ChangeEvent describes one row mutation. Record holds the new row; Old holds the prior
// row for updates and the removed row for deletes.
type ChangeEvent struct {
	Table  string          `json:"table"`
	Op     Op              `json:"op"`
	Record json.RawMessage `json:"record,omitempty"`
	Old    json.RawMessage `json:"old,omitempty"`
	At     time.Time       `json:"at"`
}

// PresenceMember is one tracked client on a presence channel.
type PresenceMember struct {
	UserID   string    `json:"userId"`
	OnlineAt time.Time `json:"onlineAt"`
}

// PresenceSnapshot is the full member list of a channel after a track or untrack.
type PresenceSnapshot struct {
	Channel string           `json:"channel"`
	Members []PresenceMember `json:"members"`
	At      time.Time        `json:"at"`
}

// Message is a raw payload delivered to a subscriber.
type Message struct {
	Subject string
	Data    []byte
}

type Handler func(Message)

type Subscription interface {
	Unsubscribe() error
}

// Bus is a subject-addressed publish/subscribe transport. Subjects are dot-separated;
// subscriptions accept "*" for one token and a trailing ">" for the remainder.
type Bus interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(subject string, handler Handler) (Subscription, error)
	Close() error
}

// ChangeSubject is the subject a change to table with op is published on. An empty op
// yields the wildcard subject matching every op.
func ChangeSubject(table string, op Op) string {
	token := string(op)
	if token == "" {
		token = "*"
	}
	return fmt.Sprintf("%s.%s.%s", changesPrefix, sanitizeToken(table), token)
}

func PresenceSubject(channel string) string {
	return fmt.Sprintf("%s.%s", presencePrefix, sanitizeToken(channel))
}

// sanitizeToken keeps caller-supplied names from introducing extra subject tokens or wildcards.
func sanitizeToken(value string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, value)
}

// PublishChange encodes event and publishes it on its change subject.
func PublishChange(ctx context.Context, bus Bus, event ChangeEvent) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	return bus.Publish(ctx, ChangeSubject(event.Table, event.Op), data)
}

// NewChange builds a change event from a typed row.
func NewChange(table string, op Op, record any) (ChangeEvent, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return ChangeEvent{}, fmt.Errorf("marshal %s record: %w", table, err)
	}
	event := ChangeEvent{Table: table, Op: op, At: time.Now().UTC()}
	if op == OpDelete {
		event.Old = data
	} else {
		event.Record = data
	}
	return event, nil
}

// SubscribeChanges delivers decoded change events for table; an empty op means every op.
// Payloads that fail to decode are logged and skipped.
func SubscribeChanges(bus Bus, table string, op Op, logger *zap.Logger, fn func(ChangeEvent)) (Subscription, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return bus.Subscribe(ChangeSubject(table, op), func(msg Message) {
		var event ChangeEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logger.Warn("realtime: decode change event", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		fn(event)
	})
}

func PublishPresence(ctx context.Context, bus Bus, snapshot PresenceSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal presence snapshot: %w", err)
	}
	return bus.Publish(ctx, PresenceSubject(snapshot.Channel), data)
}

func SubscribePresence(bus Bus, channel string, logger *zap.Logger, fn func(PresenceSnapshot)) (Subscription, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return bus.Subscribe(PresenceSubject(channel), func(msg Message) {
		var snapshot PresenceSnapshot
		if err := json.Unmarshal(msg.Data, &snapshot); err != nil {
			logger.Warn("realtime: decode presence snapshot", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		fn(snapshot)
	})
}

// subjectMatches reports whether subject satisfies pattern under NATS wildcard rules.
func subjectMatches(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, token := range pt {
		if token == ">" {
			return i == len(pt)-1 && len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if token != "*" && token != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
