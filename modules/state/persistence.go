package state

import (
	"encoding/json"
	"fmt"
)

// persistedSnapshot is the document written under the storage key.
type persistedSnapshot struct {
	Version int      `json:"version"`
	State   Snapshot `json:"state"`
}

// EncodeSnapshot serializes s into the persisted document.
func EncodeSnapshot(s Snapshot) (string, error) {
	data, err := json.Marshal(persistedSnapshot{Version: snapshotVersion, State: s})
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return string(data), nil
}

// DecodeSnapshot restores a snapshot from its persisted document. Fields that
// are missing or malformed keep their defaults; only a document that is not a
// JSON object at all, or carries a foreign version, is an error. The returned
// snapshot is usable even when err is non-nil.
func DecodeSnapshot(raw string) (Snapshot, error) {
	snap := defaultSnapshot()

	var envelope struct {
		Version *int                       `json:"version"`
		State   map[string]json.RawMessage `json:"state"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return snap, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	// Version 0 is what a freshly created client-side store writes.
	if envelope.Version != nil && *envelope.Version != 0 && *envelope.Version != snapshotVersion {
		return snap, fmt.Errorf("snapshot version mismatch (expected %d, got %d)", snapshotVersion, *envelope.Version)
	}

	fields := envelope.State
	decodeField(fields, "fiatInput", &snap.Fiat)
	decodeField(fields, "cryptoInput", &snap.Crypto)
	decodeField(fields, "profitInput", &snap.Profit)
	decodeField(fields, "commissionInput", &snap.Commission)
	decodeField(fields, "sellInput", &snap.Sell)
	decodeField(fields, "isCommissionVisible", &snap.ShowCommission)

	var theme Theme
	if decodeField(fields, "theme", &theme) && theme.Valid() {
		snap.Theme = theme
	}
	var lang Language
	if decodeField(fields, "language", &lang) && lang.Valid() {
		snap.Language = lang
	}

	var history []HistoryItem
	if decodeField(fields, "history", &history) {
		snap.History = sanitizeHistory(history)
	}
	var buttons []QuickButton
	if decodeField(fields, "quickButtons", &buttons) {
		snap.QuickButtons = capQuickButtons(buttons)
	}
	return snap, nil
}

// decodeField unmarshals fields[name] into dst and reports success. dst is
// left untouched on failure.
func decodeField[T any](fields map[string]json.RawMessage, name string, dst *T) bool {
	raw, ok := fields[name]
	if !ok {
		return false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	*dst = v
	return true
}

func sanitizeHistory(items []HistoryItem) []HistoryItem {
	out := make([]HistoryItem, 0, min(len(items), MaxHistory))
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		out = append(out, item)
		if len(out) == MaxHistory {
			break
		}
	}
	return out
}

func capQuickButtons(items []QuickButton) []QuickButton {
	if len(items) > MaxQuickButtons {
		items = items[:MaxQuickButtons]
	}
	return append(make([]QuickButton, 0, len(items)), items...)
}
