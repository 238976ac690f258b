// Package telegram adapts the calculator to the Telegram Mini App host: host
// capabilities, init data verification and the Bot API message relay.
package telegram

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"p2pcalc/commontypes"
)

type ImpactStyle string

const (
	ImpactLight  ImpactStyle = "light"
	ImpactMedium ImpactStyle = "medium"
	ImpactHeavy  ImpactStyle = "heavy"
)

type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
)

// Host is the set of Mini App capabilities the service can ask for. Calls
// are fire-and-forget; a host that lacks a capability ignores it.
type Host interface {
	Ready()
	Expand()
	SetHeaderColor(color string)
	SetBackgroundColor(color string)
	ImpactOccurred(style ImpactStyle)
	NotificationOccurred(kind NotificationType)
	SelectionChanged()
	ShowAlert(message string)
	OpenLink(url string)
	User() *WebAppUser
}

// Header and background colors per theme.
const (
	ColorLight = "#ffffff"
	ColorDark  = "#111827"
)

// ApplyTheme pushes the colors for a theme ("light" or "dark") to host.
func ApplyTheme(host Host, theme string) {
	color := ColorLight
	if theme == "dark" {
		color = ColorDark
	}
	host.SetHeaderColor(color)
	host.SetBackgroundColor(color)
}

// NoopHost is used when the app runs outside Telegram. Alerts and links fall
// back to the log, everything else does nothing.
type NoopHost struct {
	log *zap.SugaredLogger
}

func NewNoopHost(log *zap.SugaredLogger) *NoopHost {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &NoopHost{log: log}
}

func (h *NoopHost) Ready()                                {}
func (h *NoopHost) Expand()                               {}
func (h *NoopHost) SetHeaderColor(string)                 {}
func (h *NoopHost) SetBackgroundColor(string)             {}
func (h *NoopHost) ImpactOccurred(ImpactStyle)            {}
func (h *NoopHost) NotificationOccurred(NotificationType) {}
func (h *NoopHost) SelectionChanged()                     {}
func (h *NoopHost) User() *WebAppUser                     { return nil }

func (h *NoopHost) ShowAlert(message string) {
	h.log.Infof("alert (no host): %s", message)
}

func (h *NoopHost) OpenLink(url string) {
	h.log.Infof("open link (no host): %s", url)
}

// SessionHost records host calls as actions; the Mini App bridge replays them
// against window.Telegram.WebApp when it receives the response.
type SessionHost struct {
	mu      sync.Mutex
	user    *WebAppUser
	actions []commontypes.Action
}

func NewSessionHost(user *WebAppUser) *SessionHost {
	return &SessionHost{user: user}
}

func (h *SessionHost) record(method string, params ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if params == nil {
		params = []any{}
	}
	h.actions = append(h.actions, commontypes.Action{Method: method, Parameters: params})
}

func (h *SessionHost) Ready()                        { h.record("ready") }
func (h *SessionHost) Expand()                       { h.record("expand") }
func (h *SessionHost) SetHeaderColor(color string)   { h.record("setHeaderColor", color) }
func (h *SessionHost) SetBackgroundColor(c string)   { h.record("setBackgroundColor", c) }
func (h *SessionHost) ImpactOccurred(s ImpactStyle)  { h.record("HapticFeedback.impactOccurred", string(s)) }
func (h *SessionHost) SelectionChanged()             { h.record("HapticFeedback.selectionChanged") }
func (h *SessionHost) ShowAlert(message string)      { h.record("showAlert", message) }
func (h *SessionHost) OpenLink(url string)           { h.record("openLink", url) }
func (h *SessionHost) User() *WebAppUser             { return h.user }

func (h *SessionHost) NotificationOccurred(kind NotificationType) {
	h.record("HapticFeedback.notificationOccurred", string(kind))
}

// Actions returns the recorded calls in order.
func (h *SessionHost) Actions() []commontypes.Action {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]commontypes.Action, len(h.actions))
	copy(out, h.actions)
	return out
}

// SelectHost picks the host for one request: a SessionHost when initData is
// signed by botToken, a NoopHost otherwise.
func SelectHost(initData, botToken string, maxAge time.Duration, log *zap.SugaredLogger) Host {
	if initData == "" || botToken == "" {
		return NewNoopHost(log)
	}
	data, err := VerifyInitData(initData, botToken, maxAge)
	if err != nil {
		if log != nil {
			log.Warnf("Ignoring init data: %v", err)
		}
		return NewNoopHost(log)
	}
	return NewSessionHost(data.User)
}
