package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// EventType enumerates the security events this subsystem records.
type EventType string

const (
	EventLoginSuccess          EventType = "login_success"
	EventLoginFailure          EventType = "login_failure"
	EventLogout                EventType = "logout"
	EventPasswordChange        EventType = "password_change"
	EventPasswordReset         EventType = "password_reset"
	EventEmailVerified         EventType = "email_verified"
	EventTwoFactorEnabled      EventType = "2fa_enabled"
	EventTwoFactorDisabled     EventType = "2fa_disabled"
	EventTwoFactorVerification EventType = "2fa_verification"
	EventAccountCreated        EventType = "account_created"
	EventProfileUpdated        EventType = "profile_updated"
	EventRateLimitExceeded     EventType = "rate_limit_exceeded"
)

// Event is one append-only audit record. UserID is empty for anonymous or
// identifier-only events.
type Event struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id,omitempty"`
	Type      EventType         `json:"event_type"`
	Success   bool              `json:"success"`
	Details   map[string]string `json:"details,omitempty"`
	IPAddress string            `json:"ip_address,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Sink receives dispatched audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

// NewChannelSink creates a ChannelSink with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events exposes the receive side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink creates a JSONWriterSink that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// MultiSink fans one event out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}
