package state

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

type failingStorage struct {
	writes int
}

func (f *failingStorage) GetItem(context.Context, string) (string, bool, error) {
	return "", false, errors.New("storage unavailable")
}

func (f *failingStorage) SetItem(context.Context, string, string) error {
	f.writes++
	return errors.New("quota exceeded")
}

func (f *failingStorage) RemoveItem(context.Context, string) error {
	return nil
}

func newTestStore(t *testing.T) (*Store, *MemoryStorage) {
	t.Helper()
	storage := NewMemoryStorage()
	return Open(context.Background(), storage, StorageKey), storage
}

func historyItem(n int) HistoryItem {
	return HistoryItem{
		ID:             fmt.Sprintf("id-%d", n),
		Timestamp:      int64(1700000000000 + n),
		FiatAmount:     float64(1000 * n),
		CryptoAmount:   float64(10 * n),
		ProfitTarget:   float64(n),
		CalculatedRate: 100,
	}
}

func TestOpenDefaults(t *testing.T) {
	store, _ := newTestStore(t)
	snap := store.Snapshot()

	if snap.Theme != ThemeLight || snap.Language != LanguageRU {
		t.Errorf("defaults = %s/%s, want light/ru", snap.Theme, snap.Language)
	}
	if snap.History == nil || len(snap.History) != 0 {
		t.Errorf("History = %v, want empty non-nil", snap.History)
	}
	if snap.ShowCommission {
		t.Error("ShowCommission should default to false")
	}
}

func TestInputsPersistAcrossReload(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	store := Open(ctx, storage, StorageKey)
	store.SetFiatInput("5 000")
	store.SetCryptoInput("65.91")
	store.SetProfitInput("100")
	store.SetCommissionInput("0.1")
	store.SetSellInput("78")

	reloaded := Open(ctx, storage, StorageKey)
	got := reloaded.Inputs()
	want := Inputs{Fiat: "5 000", Crypto: "65.91", Profit: "100", Commission: "0.1", Sell: "78"}
	if got != want {
		t.Errorf("Inputs after reload = %+v, want %+v", got, want)
	}
}

func TestResetCalculatorKeepsEverythingElse(t *testing.T) {
	store, _ := newTestStore(t)
	store.SetFiatInput("5000")
	store.SetCryptoInput("65.91")
	store.AddToHistory(historyItem(1))
	store.AddQuickButton(QuickButton{Label: "5k", Value: "5000"})
	if err := store.SetTheme(ThemeDark); err != nil {
		t.Fatal(err)
	}
	store.SetShowCommission(true)

	store.ResetCalculator()

	snap := store.Snapshot()
	if snap.Inputs != (Inputs{}) {
		t.Errorf("Inputs = %+v, want empty", snap.Inputs)
	}
	if len(snap.History) != 1 || len(snap.QuickButtons) != 1 {
		t.Errorf("history/buttons touched: %d/%d", len(snap.History), len(snap.QuickButtons))
	}
	if snap.Theme != ThemeDark || !snap.ShowCommission {
		t.Errorf("preferences touched: %+v", snap.Preferences)
	}
}

func TestAddToHistoryCap(t *testing.T) {
	store, _ := newTestStore(t)
	total := MaxHistory + 17

	for i := 1; i <= total; i++ {
		store.AddToHistory(historyItem(i))
	}

	history := store.History()
	if len(history) != MaxHistory {
		t.Fatalf("len(history) = %d, want %d", len(history), MaxHistory)
	}
	for i, item := range history {
		want := fmt.Sprintf("id-%d", total-i)
		if item.ID != want {
			t.Fatalf("history[%d].ID = %s, want %s", i, item.ID, want)
		}
	}
}

func TestSetHistoryAndClear(t *testing.T) {
	store, storage := newTestStore(t)

	items := make([]HistoryItem, 0, MaxHistory+5)
	for i := 0; i < MaxHistory+5; i++ {
		items = append(items, historyItem(i))
	}
	store.SetHistory(items)
	if got := len(store.History()); got != MaxHistory {
		t.Errorf("SetHistory kept %d items, want %d", got, MaxHistory)
	}

	// Mutating the caller's slice must not leak into the store.
	items[0].ID = "mutated"
	if store.History()[0].ID != "id-0" {
		t.Error("store aliases caller slice")
	}

	store.ClearHistory()
	if got := len(store.History()); got != 0 {
		t.Errorf("len after clear = %d", got)
	}

	raw, ok, _ := storage.GetItem(context.Background(), StorageKey)
	if !ok || !strings.Contains(raw, `"history":[]`) {
		t.Errorf("cleared history not persisted: %s", raw)
	}
}

func TestQuickButtons(t *testing.T) {
	store, _ := newTestStore(t)

	for i := 0; i < 20; i++ {
		store.AddQuickButton(QuickButton{Label: fmt.Sprintf("b%d", i), Value: fmt.Sprint(i * 1000)})
		if n := len(store.QuickButtons()); n > MaxQuickButtons {
			t.Fatalf("quick buttons = %d, exceeds %d", n, MaxQuickButtons)
		}
	}

	buttons := store.QuickButtons()
	if buttons[0].Label != "b19" {
		t.Errorf("newest button first, got %s", buttons[0].Label)
	}

	store.SetQuickButtons([]QuickButton{
		{Label: "1k", Value: "1000"},
		{Label: "also 1k", Value: "1000"},
		{Label: "5k", Value: "5000"},
	})
	store.UpdateQuickButton("5000", "five")
	store.RemoveQuickButton("1000")

	buttons = store.QuickButtons()
	if len(buttons) != 1 || buttons[0] != (QuickButton{Label: "five", Value: "5000"}) {
		t.Errorf("buttons = %+v", buttons)
	}
}

func TestPreferences(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.SetLanguage("de"); !errors.Is(err, ErrInvalidLanguage) {
		t.Errorf("SetLanguage(de) err = %v", err)
	}
	if err := store.SetTheme("sepia"); !errors.Is(err, ErrInvalidTheme) {
		t.Errorf("SetTheme(sepia) err = %v", err)
	}
	if p := store.Preferences(); p.Language != LanguageRU || p.Theme != ThemeLight {
		t.Errorf("invalid values changed state: %+v", p)
	}

	if err := store.SetLanguage(LanguageEN); err != nil {
		t.Fatal(err)
	}
	if got := store.ToggleTheme(); got != ThemeDark {
		t.Errorf("ToggleTheme = %s", got)
	}
	if got := store.ToggleTheme(); got != ThemeLight {
		t.Errorf("ToggleTheme = %s", got)
	}
	if !store.ToggleCommission() || store.ToggleCommission() {
		t.Error("ToggleCommission should flip")
	}
}

func TestSubscribe(t *testing.T) {
	store, _ := newTestStore(t)

	var themes []Theme
	cancel := store.Subscribe(func(s Snapshot) { themes = append(themes, s.Theme) })
	store.ToggleTheme()
	cancel()
	store.ToggleTheme()

	if len(themes) != 1 || themes[0] != ThemeDark {
		t.Errorf("listener saw %v", themes)
	}
}

func TestPersistenceFailureIsSwallowed(t *testing.T) {
	storage := &failingStorage{}
	store := Open(context.Background(), storage, StorageKey)

	store.SetFiatInput("100")
	store.AddToHistory(historyItem(1))

	if storage.writes != 2 {
		t.Errorf("writes = %d, want 2", storage.writes)
	}
	if store.Inputs().Fiat != "100" || len(store.History()) != 1 {
		t.Error("in-memory state lost after failed persistence")
	}
}

func TestRestoreCorruptOrForeignSnapshot(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"Not JSON", "{{{"},
		{"Foreign version", `{"version":99,"state":{"theme":"dark","fiatInput":"1"}}`},
		{"Array", `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := NewMemoryStorage()
			storage.SetItem(context.Background(), StorageKey, tt.raw)

			store := Open(context.Background(), storage, StorageKey)
			snap := store.Snapshot()
			if snap.Theme != DefaultTheme || snap.Language != DefaultLanguage || snap.Fiat != "" {
				t.Errorf("expected defaults, got %+v", snap)
			}
		})
	}
}

func TestRestoreDefaultsMalformedFields(t *testing.T) {
	raw := `{"version":0,"state":{
		"fiatInput":"5000",
		"cryptoInput":42,
		"theme":"neon",
		"language":"en",
		"history":[{"id":"a","fiatAmount":1,"cryptoAmount":1},{"fiatAmount":2}],
		"quickButtons":"oops",
		"unknownField":true
	}}`
	storage := NewMemoryStorage()
	storage.SetItem(context.Background(), StorageKey, raw)

	snap := Open(context.Background(), storage, StorageKey).Snapshot()

	if snap.Fiat != "5000" || snap.Crypto != "" {
		t.Errorf("inputs = %+v", snap.Inputs)
	}
	if snap.Theme != ThemeLight || snap.Language != LanguageEN {
		t.Errorf("preferences = %+v", snap.Preferences)
	}
	if len(snap.History) != 1 || snap.History[0].ID != "a" {
		t.Errorf("history = %+v", snap.History)
	}
	if snap.QuickButtons == nil || len(snap.QuickButtons) != 0 {
		t.Errorf("quick buttons = %+v", snap.QuickButtons)
	}
}

func TestFileStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "state.json")
	storage := NewFileStorage(path)

	store := Open(ctx, storage, StorageKey)
	store.SetFiatInput("5000")
	sell := 78.5
	item := historyItem(3)
	item.SellPrice = &sell
	store.AddToHistory(item)

	other := Open(ctx, NewFileStorage(path), StorageKey)
	snap := other.Snapshot()
	if snap.Fiat != "5000" {
		t.Errorf("Fiat = %q", snap.Fiat)
	}
	if len(snap.History) != 1 || snap.History[0].SellPrice == nil || *snap.History[0].SellPrice != sell {
		t.Errorf("history = %+v", snap.History)
	}

	if err := storage.RemoveItem(ctx, StorageKey); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := storage.GetItem(ctx, StorageKey); ok {
		t.Error("key still present after RemoveItem")
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	store, _ := newTestStore(t)
	sell := 1.0
	item := historyItem(1)
	item.SellPrice = &sell
	store.AddToHistory(item)

	snap := store.Snapshot()
	*snap.History[0].SellPrice = 99
	snap.History[0].ID = "changed"

	again := store.Snapshot()
	if again.History[0].ID != "id-1" || *again.History[0].SellPrice != 1 {
		t.Error("Snapshot shares memory with the store")
	}
}
