package audit

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/axiohq/credcore/internal/storage"
)

const cacheKey = "audit:log"

// Log is the dual-write audit logger. Appends always land in the cache ring;
// remote inserts run through the async dispatcher and are fire-and-forget.
type Log struct {
	cache      storage.Cache
	remote     storage.Remote
	dispatcher *Dispatcher
	logger     *zap.Logger
	maxCached  int
	now        func() time.Time
}

// LogOptions configures a [Log].
type LogOptions struct {
	Dispatch   Config
	ExtraSink  Sink // optional caller-provided sink, fed after the remote write
	MaxCached  int  // cache ring capacity, default 500
	Now        func() time.Time
	Logger     *zap.Logger
}

// NewLog wires the dual-write logger. The dispatcher's sink inserts into
// security_audit_logs and then forwards to the optional extra sink.
func NewLog(cache storage.Cache, remote storage.Remote, opts LogOptions) *Log {
	if opts.MaxCached <= 0 {
		opts.MaxCached = 500
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	l := &Log{
		cache:     cache,
		remote:    remote,
		logger:    opts.Logger,
		maxCached: opts.MaxCached,
		now:       opts.Now,
	}

	sink := Sink(remoteSink{remote: remote, logger: opts.Logger})
	if opts.ExtraSink != nil {
		sink = MultiSink{sink, opts.ExtraSink}
	}
	l.dispatcher = NewDispatcher(opts.Dispatch, sink)

	return l
}

// Append records an event. The cache write is the floor guarantee; the remote
// append is asynchronous and best-effort.
func (l *Log) Append(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}

	events, err := l.cached(ctx)
	if err != nil {
		return err
	}
	events = append(events, event)
	if len(events) > l.maxCached {
		events = events[len(events)-l.maxCached:]
	}
	data, err := json.Marshal(events)
	if err != nil {
		return err
	}
	if err := l.cache.Set(ctx, cacheKey, data); err != nil {
		return err
	}

	l.dispatcher.Emit(ctx, event)
	return nil
}

// Query returns up to limit events for userID, newest first. The remote store
// is preferred for cross-device history; the cache is the fallback.
func (l *Log) Query(ctx context.Context, userID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.remote.Query(ctx, storage.TableAuditLogs, storage.Filter{"user_id": userID})
	if err == nil {
		events := make([]Event, 0, len(rows))
		for _, row := range rows {
			events = append(events, eventFromRow(row))
		}
		return sortAndTrim(events, limit), nil
	}
	l.logger.Debug("audit query falling back to cache", zap.Error(err))

	cached, err := l.cached(ctx)
	if err != nil {
		return nil, err
	}
	events := cached[:0:0]
	for _, e := range cached {
		if e.UserID == userID {
			events = append(events, e)
		}
	}
	return sortAndTrim(events, limit), nil
}

// Dropped reports events discarded by the dispatcher buffer.
func (l *Log) Dropped() uint64 {
	return l.dispatcher.Dropped()
}

// Close drains the dispatcher.
func (l *Log) Close() {
	l.dispatcher.Close()
}

func (l *Log) cached(ctx context.Context) ([]Event, error) {
	data, ok, err := l.cache.Get(ctx, cacheKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		// A corrupt ring is abandoned rather than propagated; the log is
		// best-effort local history.
		l.logger.Warn("discarding corrupt audit cache", zap.Error(err))
		return nil, nil
	}
	return events, nil
}

func sortAndTrim(events []Event, limit int) []Event {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	if len(events) > limit {
		events = events[:limit]
	}
	return events
}

// remoteSink inserts dispatched events into security_audit_logs. Failures are
// logged at debug level and never retried; the syncer does not replay audit
// events (local cache is the floor guarantee).
type remoteSink struct {
	remote storage.Remote
	logger *zap.Logger
}

func (s remoteSink) Emit(ctx context.Context, event Event) {
	var details []byte
	if len(event.Details) > 0 {
		details, _ = json.Marshal(event.Details)
	}
	err := s.remote.Insert(ctx, storage.TableAuditLogs, storage.Row{
		"id":         event.ID,
		"user_id":    event.UserID,
		"event_type": string(event.Type),
		"success":    event.Success,
		"details":    string(details),
		"ip_address": event.IPAddress,
		"user_agent": event.UserAgent,
		"created_at": event.Timestamp,
	})
	if err != nil {
		s.logger.Debug("audit remote append failed", zap.Error(err))
	}
}

func eventFromRow(row storage.Row) Event {
	e := Event{
		ID:        stringAt(row, "id"),
		UserID:    stringAt(row, "user_id"),
		Type:      EventType(stringAt(row, "event_type")),
		IPAddress: stringAt(row, "ip_address"),
		UserAgent: stringAt(row, "user_agent"),
	}
	if b, ok := row["success"].(bool); ok {
		e.Success = b
	}
	if ts, ok := row["created_at"].(time.Time); ok {
		e.Timestamp = ts
	}
	if d := stringAt(row, "details"); d != "" {
		_ = json.Unmarshal([]byte(d), &e.Details)
	}
	return e
}

func stringAt(row storage.Row, key string) string {
	s, _ := row[key].(string)
	return s
}
