package state

import (
	"errors"
	"time"
)

const (
	// StorageKey is the versioned key the snapshot lives under. Bumping it
	// discards snapshots written by older, incompatible schemas.
	StorageKey = "p2p-calculator-v4"

	snapshotVersion = 4

	// MaxHistory caps the history log; older entries are evicted first.
	MaxHistory = 50
	// MaxQuickButtons caps the quick-amount shortcuts.
	MaxQuickButtons = 12
)

// Theme is the UI color scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Language is the UI locale.
type Language string

const (
	LanguageRU Language = "ru"
	LanguageEN Language = "en"
)

const (
	DefaultTheme    = ThemeLight
	DefaultLanguage = LanguageRU
)

var (
	ErrInvalidTheme    = errors.New("invalid theme")
	ErrInvalidLanguage = errors.New("invalid language")
)

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// Valid reports whether l is a supported language.
func (l Language) Valid() bool {
	return l == LanguageRU || l == LanguageEN
}

// HistoryItem is one saved calculation. Items are never mutated after creation.
type HistoryItem struct {
	ID             string   `json:"id"`
	Timestamp      int64    `json:"timestamp"` // Unix milliseconds
	FiatAmount     float64  `json:"fiatAmount"`
	CryptoAmount   float64  `json:"cryptoAmount"`
	ProfitTarget   float64  `json:"profitTarget"`
	CalculatedRate float64  `json:"calculatedRate"`
	SellPrice      *float64 `json:"sellPrice,omitempty"`
}

// Time returns the creation time of the item.
func (h HistoryItem) Time() time.Time {
	return time.UnixMilli(h.Timestamp)
}

// QuickButton fills the fiat input with Value when tapped.
type QuickButton struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Inputs are the raw strings typed on the calculator screen.
type Inputs struct {
	Fiat       string `json:"fiatInput"`
	Crypto     string `json:"cryptoInput"`
	Profit     string `json:"profitInput"`
	Commission string `json:"commissionInput"`
	Sell       string `json:"sellInput"`
}

// Preferences are the persisted UI settings.
type Preferences struct {
	Theme          Theme    `json:"theme"`
	Language       Language `json:"language"`
	ShowCommission bool     `json:"isCommissionVisible"`
}

// Snapshot is the complete persisted state.
type Snapshot struct {
	Inputs
	Preferences
	History      []HistoryItem `json:"history"`
	QuickButtons []QuickButton `json:"quickButtons"`
}

func defaultSnapshot() Snapshot {
	return Snapshot{
		Preferences: Preferences{
			Theme:    DefaultTheme,
			Language: DefaultLanguage,
		},
		History:      []HistoryItem{},
		QuickButtons: []QuickButton{},
	}
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.History = append(make([]HistoryItem, 0, len(s.History)), s.History...)
	for i, item := range out.History {
		if item.SellPrice != nil {
			v := *item.SellPrice
			out.History[i].SellPrice = &v
		}
	}
	out.QuickButtons = append(make([]QuickButton, 0, len(s.QuickButtons)), s.QuickButtons...)
	return out
}
