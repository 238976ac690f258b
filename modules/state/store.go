package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultPersistTimeout = 3 * time.Second

// Store owns the calculator state. Each mutation replaces its slice of state
// under a lock and persists the full snapshot before returning. Persistence
// failures are logged; the in-memory state stays authoritative.
type Store struct {
	mu      sync.Mutex
	state   Snapshot
	storage Storage
	key     string

	log            *zap.SugaredLogger
	persistTimeout time.Duration

	listenersMu sync.Mutex
	listeners   map[int]func(Snapshot)
	nextID      int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for persistence diagnostics.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithPersistTimeout bounds each storage write.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.persistTimeout = d
		}
	}
}

// Open creates a store backed by storage and restores the snapshot saved
// under key. A missing, corrupt or incompatible snapshot yields defaults.
func Open(ctx context.Context, storage Storage, key string, opts ...Option) *Store {
	s := &Store{
		state:          defaultSnapshot(),
		storage:        storage,
		key:            key,
		log:            zap.NewNop().Sugar(),
		persistTimeout: defaultPersistTimeout,
		listeners:      make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.restore(ctx)
	return s
}

func (s *Store) restore(ctx context.Context) {
	if s.storage == nil {
		return
	}

	raw, ok, err := s.storage.GetItem(ctx, s.key)
	if err != nil {
		s.log.Warnf("Could not read persisted state %q: %v", s.key, err)
		return
	}
	if !ok {
		s.log.Debugf("No persisted state under %q, starting with defaults", s.key)
		return
	}

	snap, err := DecodeSnapshot(raw)
	if err != nil {
		s.log.Warnf("Discarding persisted state %q: %v", s.key, err)
	}
	s.state = snap
}

// Key returns the storage key the store persists under.
func (s *Store) Key() string {
	return s.key
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *Store) Inputs() Inputs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Inputs
}

func (s *Store) Preferences() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Preferences
}

func (s *Store) History() []HistoryItem {
	return s.Snapshot().History
}

func (s *Store) QuickButtons() []QuickButton {
	return s.Snapshot().QuickButtons
}

// Subscribe registers fn to run after every mutation with the new state.
// The returned function removes the listener.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// update applies fn under the lock, persists, then notifies listeners.
func (s *Store) update(fn func(*Snapshot)) {
	s.mu.Lock()
	fn(&s.state)
	snap := s.state.clone()
	s.persist(snap)
	s.mu.Unlock()

	s.notify(snap)
}

func (s *Store) persist(snap Snapshot) {
	if s.storage == nil {
		return
	}

	raw, err := EncodeSnapshot(snap)
	if err != nil {
		s.log.Errorf("Failed to encode state %q: %v", s.key, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()
	if err := s.storage.SetItem(ctx, s.key, raw); err != nil {
		s.log.Warnf("Failed to persist state %q, continuing in memory: %v", s.key, err)
	}
}

func (s *Store) notify(snap Snapshot) {
	s.listenersMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(snap.clone())
	}
}

func (s *Store) SetFiatInput(text string) {
	s.update(func(st *Snapshot) { st.Fiat = text })
}

func (s *Store) SetCryptoInput(text string) {
	s.update(func(st *Snapshot) { st.Crypto = text })
}

func (s *Store) SetProfitInput(text string) {
	s.update(func(st *Snapshot) { st.Profit = text })
}

func (s *Store) SetCommissionInput(text string) {
	s.update(func(st *Snapshot) { st.Commission = text })
}

func (s *Store) SetSellInput(text string) {
	s.update(func(st *Snapshot) { st.Sell = text })
}

// ResetCalculator clears the raw inputs. History, preferences and quick
// buttons are untouched.
func (s *Store) ResetCalculator() {
	s.update(func(st *Snapshot) { st.Inputs = Inputs{} })
}

// AddToHistory prepends item and evicts the oldest entries beyond MaxHistory.
func (s *Store) AddToHistory(item HistoryItem) {
	s.update(func(st *Snapshot) {
		history := make([]HistoryItem, 0, min(len(st.History)+1, MaxHistory))
		history = append(history, item)
		for _, h := range st.History {
			if len(history) == MaxHistory {
				break
			}
			history = append(history, h)
		}
		st.History = history
	})
}

// SetHistory replaces the whole log. Callers dedup by ID; the store only
// enforces the size cap.
func (s *Store) SetHistory(items []HistoryItem) {
	if len(items) > MaxHistory {
		items = items[:MaxHistory]
	}
	history := append(make([]HistoryItem, 0, len(items)), items...)
	s.update(func(st *Snapshot) { st.History = history })
}

func (s *Store) ClearHistory() {
	s.update(func(st *Snapshot) { st.History = []HistoryItem{} })
}

func (s *Store) SetQuickButtons(items []QuickButton) {
	buttons := capQuickButtons(items)
	s.update(func(st *Snapshot) { st.QuickButtons = buttons })
}

// AddQuickButton prepends item, dropping the last buttons beyond MaxQuickButtons.
func (s *Store) AddQuickButton(item QuickButton) {
	s.update(func(st *Snapshot) {
		st.QuickButtons = capQuickButtons(append([]QuickButton{item}, st.QuickButtons...))
	})
}

// RemoveQuickButton removes every button with the given value.
func (s *Store) RemoveQuickButton(value string) {
	s.update(func(st *Snapshot) {
		kept := make([]QuickButton, 0, len(st.QuickButtons))
		for _, b := range st.QuickButtons {
			if b.Value != value {
				kept = append(kept, b)
			}
		}
		st.QuickButtons = kept
	})
}

// UpdateQuickButton relabels every button with the given value.
func (s *Store) UpdateQuickButton(value, label string) {
	s.update(func(st *Snapshot) {
		buttons := append(make([]QuickButton, 0, len(st.QuickButtons)), st.QuickButtons...)
		for i := range buttons {
			if buttons[i].Value == value {
				buttons[i].Label = label
			}
		}
		st.QuickButtons = buttons
	})
}

func (s *Store) SetLanguage(lang Language) error {
	if !lang.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidLanguage, lang)
	}
	s.update(func(st *Snapshot) { st.Language = lang })
	return nil
}

func (s *Store) SetTheme(theme Theme) error {
	if !theme.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, theme)
	}
	s.update(func(st *Snapshot) { st.Theme = theme })
	return nil
}

// ToggleTheme switches between light and dark and returns the new theme.
func (s *Store) ToggleTheme() Theme {
	var next Theme
	s.update(func(st *Snapshot) {
		if st.Theme == ThemeDark {
			st.Theme = ThemeLight
		} else {
			st.Theme = ThemeDark
		}
		next = st.Theme
	})
	return next
}

func (s *Store) SetShowCommission(show bool) {
	s.update(func(st *Snapshot) { st.ShowCommission = show })
}

// ToggleCommission flips commission visibility and returns the new value.
func (s *Store) ToggleCommission() bool {
	var show bool
	s.update(func(st *Snapshot) {
		st.ShowCommission = !st.ShowCommission
		show = st.ShowCommission
	})
	return show
}
