package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultAPIBaseURL = "https://api.telegram.org"
	apiTimeout        = 10 * time.Second
	maxResponseBytes  = 1 << 20
)

// BotClient talks to the Bot API. Calls share one rate limiter and one
// circuit breaker.
type BotClient struct {
	baseURL string
	token   string
	client  *http.Client
	limiter *rate.Limiter
	breaker *CircuitBreaker
	log     *zap.SugaredLogger
}

type ClientOption func(*BotClient)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *BotClient) { c.baseURL = baseURL }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *BotClient) { c.client = client }
}

func WithLimiter(l *rate.Limiter) ClientOption {
	return func(c *BotClient) { c.limiter = l }
}

func WithCircuitBreaker(cb *CircuitBreaker) ClientOption {
	return func(c *BotClient) { c.breaker = cb }
}

func WithClientLogger(log *zap.SugaredLogger) ClientOption {
	return func(c *BotClient) {
		if log != nil {
			c.log = log
		}
	}
}

func NewBotClient(token string, opts ...ClientOption) *BotClient {
	c := &BotClient{
		baseURL: defaultAPIBaseURL,
		token:   token,
		client:  &http.Client{Timeout: apiTimeout},
		// Telegram allows about 30 messages per second per bot.
		limiter: rate.NewLimiter(rate.Every(time.Second/30), 30),
		breaker: NewCircuitBreaker(0, 0),
		log:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token reports the configured bot token.
func (c *BotClient) Token() string {
	return c.token
}

// CircuitState reports the breaker state for diagnostics.
func (c *BotClient) CircuitState() string {
	return c.breaker.State()
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// SendMessage calls sendMessage and returns Telegram's status code and raw
// body. An error means Telegram was not reached.
func (c *BotClient) SendMessage(ctx context.Context, chatID, text string) (int, []byte, error) {
	if !c.breaker.CanAttempt() {
		return 0, nil, ErrCircuitOpen
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	payload, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return 0, nil, fmt.Errorf("encoding sendMessage request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("creating sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		// The URL carries the token; keep it out of logs and errors.
		return 0, nil, fmt.Errorf("calling sendMessage: %w", redactURLError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.breaker.RecordFailure()
		return 0, nil, fmt.Errorf("reading sendMessage response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		c.breaker.RecordFailure()
		c.log.Warnf("Telegram sendMessage returned %d", resp.StatusCode)
	} else {
		c.breaker.RecordSuccess()
	}
	return resp.StatusCode, body, nil
}

func redactURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
