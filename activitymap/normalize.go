package activitymap

import (
	"context"
	"strings"
	"time"

	auth "github.com/goliatone/go-auth-server"
)

const (
	// MetadataKeyUsername stores the username carried by grant and registration events.
	MetadataKeyUsername = "username"
	// MetadataKeyClientID stores the client a grant was requested for.
	MetadataKeyClientID = "client_id"
)

const (
	defaultChannel = "auth"
	defaultActorID = "system"

	ObjectTypeUser   = "user"
	ObjectTypeClient = "client"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	actorFallback string
	now           auth.Clock
}

// Normalize converts an auth.ActivityEvent into a generic normalized shape.
// Client events are about the client, every other event about the user.
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	objectType, objectID := ObjectTypeUser, strings.TrimSpace(event.UserID)
	if strings.HasPrefix(string(event.EventType), "client.") {
		objectType, objectID = ObjectTypeClient, strings.TrimSpace(event.ClientID)
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now().UTC()
	}

	return Normalized{
		ActorID:    firstNonEmpty(strings.TrimSpace(event.UserID), options.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel sets the default channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithActorFallback sets the actor id used when the event has no user.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithClock sets the clock used for events without a timestamp.
func WithClock(clock auth.Clock) Option {
	return func(opts *normalizeOptions) {
		if clock != nil {
			opts.now = clock
		}
	}
}

// NewSink returns an ActivitySink that logs every event in normalized form.
func NewSink(logger auth.Logger, opts ...Option) auth.ActivitySink {
	if logger == nil {
		logger = auth.NoopLogger()
	}
	return auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
		n := Normalize(event, opts...)
		args := []any{
			"verb", n.Verb,
			"actor_id", n.ActorID,
			"object_type", n.ObjectType,
			"object_id", n.ObjectID,
			"channel", n.Channel,
			"occurred_at", n.OccurredAt,
		}
		for k, v := range n.Metadata {
			args = append(args, k, v)
		}
		logger.Info("activity", args...)
		return nil
	})
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
}

func normalizeMetadata(event auth.ActivityEvent) map[string]any {
	metadata := cloneMap(event.Metadata)

	set := func(key, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[key]; !exists {
			metadata[key] = value
		}
	}

	set(MetadataKeyUsername, event.Username)
	if !strings.HasPrefix(string(event.EventType), "client.") {
		set(MetadataKeyClientID, event.ClientID)
	}

	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
