package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// Notification is one row change published by the notify_watchers trigger.
// Reconnected notifications carry no row: they tell consumers that anything
// sent while the connection was down may have been missed.
type Notification struct {
	Table       string
	Op          string
	ID          string
	Reconnected bool
}

// ParseNotification decodes a trigger payload of the form "table,op,id".
func ParseNotification(payload string) (Notification, error) {
	parts := strings.SplitN(payload, ",", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return Notification{}, fmt.Errorf("malformed notification payload %q", payload)
	}
	switch parts[1] {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return Notification{}, fmt.Errorf("unknown notification op %q", parts[1])
	}
	return Notification{Table: parts[0], Op: parts[1], ID: parts[2]}, nil
}

const pingInterval = 90 * time.Second

type Listener struct {
	listener *pq.Listener
	channel  string
	out      chan Notification
	logger   *zap.Logger
}

func NewListener(databaseURL, channel string, minReconnect, maxReconnect time.Duration, logger *zap.Logger) *Listener {
	logger = logger.With(zap.String("channel", channel))
	events := func(event pq.ListenerEventType, err error) {
		switch event {
		case pq.ListenerEventConnected:
			logger.Info("notification listener connected")
		case pq.ListenerEventDisconnected:
			logger.Warn("notification listener disconnected", zap.Error(err))
		case pq.ListenerEventReconnected:
			logger.Info("notification listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			logger.Warn("notification listener connection attempt failed", zap.Error(err))
		}
	}
	return &Listener{
		listener: pq.NewListener(databaseURL, minReconnect, maxReconnect, events),
		channel:  channel,
		out:      make(chan Notification, 256),
		logger:   logger,
	}
}

func (l *Listener) Notifications() <-chan Notification {
	return l.out
}

// Run forwards notifications until ctx is cancelled. pq reconnects on its
// own; each reconnect is surfaced as a Reconnected notification.
func (l *Listener) Run(ctx context.Context) error {
	defer close(l.out)
	defer l.listener.Close()
	if err := l.listener.Listen(l.channel); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-l.listener.Notify:
			if n == nil {
				if !l.emit(ctx, Notification{Reconnected: true}) {
					return nil
				}
				continue
			}
			parsed, err := ParseNotification(n.Extra)
			if err != nil {
				l.logger.Warn("dropping notification", zap.Error(err))
				continue
			}
			if !l.emit(ctx, parsed) {
				return nil
			}
		case <-ticker.C:
			go func() {
				if err := l.listener.Ping(); err != nil {
					l.logger.Warn("notification listener ping failed", zap.Error(err))
				}
			}()
		}
	}
}

func (l *Listener) emit(ctx context.Context, n Notification) bool {
	select {
	case l.out <- n:
		return true
	case <-ctx.Done():
		return false
	}
}
