package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventGrantSuccess         ActivityEventType = "auth.grant.success"
	ActivityEventGrantFailure         ActivityEventType = "auth.grant.failure"
	ActivityEventAccountRegistered    ActivityEventType = "account.registered"
	ActivityEventRegistrationRejected ActivityEventType = "account.registration.rejected"
	ActivityEventClientCreated        ActivityEventType = "client.created"
	ActivityEventClientDeleted        ActivityEventType = "client.deleted"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	Username   string
	ClientID   string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// LoggerActivitySink writes every event as an info entry.
func LoggerActivitySink(logger Logger) ActivitySink {
	logger = normalizeLogger(logger)
	return ActivitySinkFunc(func(_ context.Context, event ActivityEvent) error {
		args := []any{
			"event", string(event.EventType),
			"occurred_at", event.OccurredAt,
		}
		if event.UserID != "" {
			args = append(args, "user_id", event.UserID)
		}
		if event.Username != "" {
			args = append(args, "username", event.Username)
		}
		if event.ClientID != "" {
			args = append(args, "client_id", event.ClientID)
		}
		for k, v := range event.Metadata {
			args = append(args, k, v)
		}
		logger.Info("activity", args...)
		return nil
	})
}

// recordActivity is best effort, sink failures are logged and dropped.
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if sink == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := sink.Record(ctx, event); err != nil && logger != nil {
		logger.Warn("failed to record activity", "event", string(event.EventType), "error", err)
	}
}
