// Package diagnostics keeps a bounded local log of app events (page views,
// saves, copies, render faults) and summarizes it.
package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"p2pcalc/modules/state"
)

const (
	StorageKey = "p2p_calc_analytics_v1"
	maxEvents  = 500
	lastEvents = 10

	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
)

// Event types recorded by the service.
const (
	EventPageView         = "page_view"
	EventCalculationSaved = "calculation_saved"
	EventHistoryCleared   = "history_cleared"
	EventHistoryImported  = "history_imported"
	EventHistoryExported  = "history_exported"
	EventMessageRelayed   = "message_relayed"
	EventRenderFault      = "render_fault"
)

type Event struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
	TS      int64          `json:"ts"` // Unix milliseconds
}

type Summary struct {
	Total      int            `json:"total"`
	Today      int            `json:"today"`
	ThisWeek   int            `json:"thisWeek"`
	ThisMonth  int            `json:"thisMonth"`
	ByType     map[string]int `json:"byType"`
	LastEvents []Event        `json:"lastEvents"`
}

// Recorder appends events to one JSON list in storage. Storage errors are
// logged and never returned to callers.
type Recorder struct {
	mu      *sync.Mutex
	storage state.Storage
	key     string
	log     *zap.SugaredLogger
	now     func() time.Time
}

func NewRecorder(storage state.Storage, log *zap.SugaredLogger) *Recorder {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Recorder{mu: &sync.Mutex{}, storage: storage, key: StorageKey, log: log, now: time.Now}
}

// Scoped returns a recorder over the event log of one scope, typically a
// user id. The empty scope is the unscoped log. Scoped recorders share the
// parent's lock and storage.
func (r *Recorder) Scoped(scope string) *Recorder {
	scoped := *r
	scoped.key = StorageKey
	if scope != "" {
		scoped.key = StorageKey + ":" + scope
	}
	return &scoped
}

// Key reports the storage key the events live under.
func (r *Recorder) Key() string {
	return r.key
}

// Track records an event of the given type.
func (r *Recorder) Track(ctx context.Context, eventType string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := r.read(ctx)
	events = append(events, Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		Payload: payload,
		TS:      r.now().UnixMilli(),
	})
	if len(events) > maxEvents {
		events = events[len(events)-maxEvents:]
	}
	r.write(ctx, events)
	r.log.Debugf("diagnostics: %s %v", eventType, payload)
}

// List returns the stored events, oldest first.
func (r *Recorder) List(ctx context.Context) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read(ctx)
}

func (r *Recorder) Clear(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.write(ctx, []Event{})
}

// Export renders the stored events as indented JSON.
func (r *Recorder) Export(ctx context.Context) ([]byte, error) {
	events := r.List(ctx)
	if events == nil {
		events = []Event{}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding events: %w", err)
	}
	return data, nil
}

// Summary counts events in the trailing day, week (7 days) and month
// (30 days), per type, and returns the last ten newest first.
func (r *Recorder) Summary(ctx context.Context) Summary {
	events := r.List(ctx)
	now := r.now().UnixMilli()

	s := Summary{Total: len(events), ByType: make(map[string]int), LastEvents: []Event{}}
	for _, e := range events {
		age := time.Duration(now-e.TS) * time.Millisecond
		if age < day {
			s.Today++
		}
		if age < week {
			s.ThisWeek++
		}
		if age < month {
			s.ThisMonth++
		}
		s.ByType[e.Type]++
	}
	for i := len(events) - 1; i >= 0 && len(s.LastEvents) < lastEvents; i-- {
		s.LastEvents = append(s.LastEvents, events[i])
	}
	return s
}

func (r *Recorder) read(ctx context.Context) []Event {
	raw, ok, err := r.storage.GetItem(ctx, r.key)
	if err != nil {
		r.log.Warnf("diagnostics: read error: %v", err)
		return nil
	}
	if !ok || raw == "" {
		return nil
	}
	var events []Event
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		r.log.Warnf("diagnostics: discarding corrupt event log: %v", err)
		return nil
	}
	return events
}

func (r *Recorder) write(ctx context.Context, events []Event) {
	data, err := json.Marshal(events)
	if err != nil {
		r.log.Warnf("diagnostics: encode error: %v", err)
		return
	}
	if err := r.storage.SetItem(ctx, r.key, string(data)); err != nil {
		r.log.Warnf("diagnostics: write error: %v", err)
	}
}
