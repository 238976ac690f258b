package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	DefaultRelayLimit  = 5
	DefaultRelayWindow = time.Minute
	maxRelayBodyBytes  = 64 << 10
)

// Sender delivers a message through the Bot API.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) (int, []byte, error)
}

// Relay forwards messages from the Mini App to the Bot API. Each chat may
// send at most limit messages per fixed window.
type Relay struct {
	sender   Sender
	token    string
	limit    int
	window   time.Duration
	maxAge   time.Duration
	counters *cache.Cache
	log      *zap.SugaredLogger
}

type RelayOption func(*Relay)

func WithRelayLogger(log *zap.SugaredLogger) RelayOption {
	return func(r *Relay) {
		if log != nil {
			r.log = log
		}
	}
}

// WithInitDataMaxAge rejects init data older than d.
func WithInitDataMaxAge(d time.Duration) RelayOption {
	return func(r *Relay) { r.maxAge = d }
}

// NewRelay builds the handler. An empty token makes every request fail with
// 500, matching a deployment without the bot configured.
func NewRelay(sender Sender, token string, limit int, window time.Duration, opts ...RelayOption) *Relay {
	if limit <= 0 {
		limit = DefaultRelayLimit
	}
	if window <= 0 {
		window = DefaultRelayWindow
	}
	r := &Relay{
		sender:   sender,
		token:    token,
		limit:    limit,
		window:   window,
		counters: cache.New(window, 2*window),
		log:      zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type relayRequest struct {
	ChatID   any    `json:"chatId"`
	Text     string `json:"text"`
	InitData string `json:"initData"`
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	if r.token == "" || r.sender == nil {
		writeError(w, http.StatusInternalServerError, "TELEGRAM_BOT_TOKEN not configured")
		return
	}

	var body relayRequest
	dec := json.NewDecoder(io.LimitReader(req.Body, maxRelayBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	chatID := chatIDString(body.ChatID)
	if chatID == "" || strings.TrimSpace(body.Text) == "" {
		writeError(w, http.StatusBadRequest, "Missing chatId or text")
		return
	}

	if body.InitData != "" {
		if _, err := VerifyInitData(body.InitData, r.token, r.maxAge); err != nil {
			r.log.Warnf("Rejected relay request for chat %s: %v", chatID, err)
			writeError(w, http.StatusForbidden, "Invalid initData signature")
			return
		}
	}

	if !r.allow(chatID) {
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return
	}

	status, upstream, err := r.sender.SendMessage(req.Context(), chatID, body.Text)
	if err != nil {
		r.log.Warnf("Relay to chat %s failed: %v", chatID, err)
		details := "upstream unreachable"
		if errors.Is(err, ErrCircuitOpen) {
			details = err.Error()
		}
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "Failed to send message", "details": details})
		return
	}

	code := http.StatusOK
	if status < 200 || status >= 300 {
		code = http.StatusBadRequest
	}
	if !json.Valid(upstream) {
		writeJSON(w, code, map[string]string{"error": "Unexpected response from Telegram", "details": string(upstream)})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(bytes.TrimSpace(upstream))
}

// allow counts one message for chatID in the current window.
func (r *Relay) allow(chatID string) bool {
	key := "chat:" + chatID
	if err := r.counters.Add(key, 1, r.window); err == nil {
		return true
	}
	n, err := r.counters.IncrementInt(key, 1)
	if err != nil {
		// The window expired between Add and IncrementInt.
		r.counters.Set(key, 1, r.window)
		return true
	}
	return n <= r.limit
}

func chatIDString(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case json.Number:
		if id.String() == "0" {
			return ""
		}
		return id.String()
	default:
		return ""
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
