package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"p2pcalc/modules/state"
)

type brokenStorage struct{}

func (brokenStorage) GetItem(context.Context, string) (string, bool, error) {
	return "", false, errors.New("down")
}
func (brokenStorage) SetItem(context.Context, string, string) error { return errors.New("down") }
func (brokenStorage) RemoveItem(context.Context, string) error      { return nil }

func TestTrackAndList(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(state.NewMemoryStorage(), nil)

	r.Track(ctx, EventPageView, map[string]any{"page": "calculator"})
	r.Track(ctx, EventCalculationSaved, nil)

	events := r.List(ctx)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != EventPageView || events[0].Payload["page"] != "calculator" {
		t.Errorf("first event = %+v", events[0])
	}
	if events[0].ID == "" || events[0].ID == events[1].ID {
		t.Errorf("ids not unique: %q %q", events[0].ID, events[1].ID)
	}
}

func TestTrackKeepsRecent(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(state.NewMemoryStorage(), nil)
	for i := 0; i < maxEvents+5; i++ {
		r.Track(ctx, EventPageView, map[string]any{"n": i})
	}

	events := r.List(ctx)
	if len(events) != maxEvents {
		t.Fatalf("got %d events, want %d", len(events), maxEvents)
	}
	// Payload numbers come back as float64 after the JSON round trip.
	if events[0].Payload["n"] != float64(5) {
		t.Errorf("oldest kept event = %+v, want n=5", events[0])
	}
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := NewRecorder(state.NewMemoryStorage(), nil)

	for _, age := range []time.Duration{40 * day, 10 * day, 3 * day, time.Hour, time.Minute} {
		r.now = func() time.Time { return now.Add(-age) }
		r.Track(ctx, EventPageView, nil)
	}
	r.now = func() time.Time { return now }
	r.Track(ctx, EventRenderFault, nil)

	s := r.Summary(ctx)
	if s.Total != 6 || s.Today != 3 || s.ThisWeek != 4 || s.ThisMonth != 5 {
		t.Errorf("Summary = total %d today %d week %d month %d, want 6/3/4/5", s.Total, s.Today, s.ThisWeek, s.ThisMonth)
	}
	if s.ByType[EventPageView] != 5 || s.ByType[EventRenderFault] != 1 {
		t.Errorf("ByType = %v", s.ByType)
	}
	if len(s.LastEvents) != 6 || s.LastEvents[0].Type != EventRenderFault {
		t.Errorf("LastEvents not newest first: %+v", s.LastEvents)
	}
}

func TestSummaryLastTen(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(state.NewMemoryStorage(), nil)
	for i := 0; i < 15; i++ {
		r.Track(ctx, EventPageView, map[string]any{"n": i})
	}
	last := r.Summary(ctx).LastEvents
	if len(last) != lastEvents || last[0].Payload["n"] != float64(14) {
		t.Errorf("LastEvents = %d items, first %+v", len(last), last[0])
	}
}

func TestClearAndExport(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(state.NewMemoryStorage(), nil)
	r.Track(ctx, EventHistoryExported, map[string]any{"format": "csv"})

	data, err := r.Export(ctx)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	var exported []Event
	if err := json.Unmarshal(data, &exported); err != nil || len(exported) != 1 {
		t.Fatalf("Export() = %s, %v", data, err)
	}

	r.Clear(ctx)
	if got := r.List(ctx); len(got) != 0 {
		t.Errorf("List() after Clear = %v", got)
	}
	if data, _ := r.Export(ctx); string(data) != "[]" {
		t.Errorf("Export() after Clear = %s", data)
	}
}

func TestCorruptAndFailingStorage(t *testing.T) {
	ctx := context.Background()
	storage := state.NewMemoryStorage()
	storage.SetItem(ctx, StorageKey, "{not json")
	r := NewRecorder(storage, nil)
	if got := r.List(ctx); len(got) != 0 {
		t.Errorf("corrupt log List() = %v", got)
	}
	r.Track(ctx, EventPageView, nil)
	if got := r.List(ctx); len(got) != 1 {
		t.Errorf("List() after recovery = %d events", len(got))
	}

	broken := NewRecorder(brokenStorage{}, nil)
	broken.Track(ctx, EventPageView, nil)
	if s := broken.Summary(ctx); s.Total != 0 {
		t.Errorf("Summary() on failing storage = %+v", s)
	}
}

func TestScopedLogsAreIndependent(t *testing.T) {
	ctx := context.Background()
	root := NewRecorder(state.NewMemoryStorage(), nil)
	alice, bob := root.Scoped("1"), root.Scoped("2")

	alice.Track(ctx, EventPageView, nil)
	bob.Track(ctx, EventPageView, nil)
	bob.Track(ctx, EventCalculationSaved, nil)

	if alice.Key() != StorageKey+":1" || root.Scoped("").Key() != StorageKey {
		t.Errorf("keys = %q, %q", alice.Key(), root.Scoped("").Key())
	}
	if got := root.List(ctx); len(got) != 0 {
		t.Errorf("unscoped log sees %d scoped events", len(got))
	}

	alice.Clear(ctx)
	if got := alice.List(ctx); len(got) != 0 {
		t.Errorf("alice after clear = %d events", len(got))
	}
	if got := bob.Summary(ctx); got.Total != 2 {
		t.Errorf("bob after alice's clear = %+v", got)
	}
}
