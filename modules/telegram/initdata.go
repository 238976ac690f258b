package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidInitData is returned when init data is malformed, unsigned,
// carries a wrong signature or is too old.
var ErrInvalidInitData = errors.New("invalid telegram init data")

const webAppDataKey = "WebAppData"

// WebAppUser is the user object Telegram embeds in init data.
type WebAppUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
}

// InitData is the parsed launch payload of a Mini App.
type InitData struct {
	Values   url.Values
	User     *WebAppUser
	AuthDate time.Time
	QueryID  string
	Hash     string
}

// ParseInitData decodes the query-string payload without checking its
// signature.
func ParseInitData(raw string) (InitData, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return InitData{}, fmt.Errorf("%w: %v", ErrInvalidInitData, err)
	}

	data := InitData{
		Values:  values,
		QueryID: values.Get("query_id"),
		Hash:    values.Get("hash"),
	}
	if s := values.Get("auth_date"); s != "" {
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return InitData{}, fmt.Errorf("%w: auth_date: %v", ErrInvalidInitData, err)
		}
		data.AuthDate = time.Unix(sec, 0)
	}
	if s := values.Get("user"); s != "" {
		var user WebAppUser
		if err := json.Unmarshal([]byte(s), &user); err != nil {
			return InitData{}, fmt.Errorf("%w: user: %v", ErrInvalidInitData, err)
		}
		data.User = &user
	}
	return data, nil
}

// VerifyInitData checks the payload signature against botToken. When maxAge
// is positive, payloads whose auth_date is older than maxAge are rejected.
func VerifyInitData(raw, botToken string, maxAge time.Duration) (InitData, error) {
	return verifyInitDataAt(raw, botToken, maxAge, time.Now())
}

func verifyInitDataAt(raw, botToken string, maxAge time.Duration, now time.Time) (InitData, error) {
	data, err := ParseInitData(raw)
	if err != nil {
		return InitData{}, err
	}
	if data.Hash == "" {
		return InitData{}, fmt.Errorf("%w: missing hash", ErrInvalidInitData)
	}

	got, err := hex.DecodeString(data.Hash)
	if err != nil {
		return InitData{}, fmt.Errorf("%w: hash is not hex", ErrInvalidInitData)
	}
	if !hmac.Equal(got, signature(data.Values, botToken)) {
		return InitData{}, fmt.Errorf("%w: signature mismatch", ErrInvalidInitData)
	}

	if maxAge > 0 {
		if data.AuthDate.IsZero() {
			return InitData{}, fmt.Errorf("%w: missing auth_date", ErrInvalidInitData)
		}
		if now.Sub(data.AuthDate) > maxAge {
			return InitData{}, fmt.Errorf("%w: expired", ErrInvalidInitData)
		}
	}
	return data, nil
}

// SignInitData encodes values with a valid hash for botToken. It is what
// Telegram does on its side; the service uses it for local development.
func SignInitData(values url.Values, botToken string) string {
	signed := url.Values{}
	for k, v := range values {
		if k != "hash" {
			signed[k] = v
		}
	}
	signed.Set("hash", hex.EncodeToString(signature(signed, botToken)))
	return signed.Encode()
}

func signature(values url.Values, botToken string) []byte {
	secret := hmac.New(sha256.New, []byte(webAppDataKey))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(dataCheckString(values)))
	return mac.Sum(nil)
}

// dataCheckString joins every field except hash as sorted key=value lines.
func dataCheckString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}
	return strings.Join(lines, "\n")
}
