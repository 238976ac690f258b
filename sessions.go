package main

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
	"weak"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"p2pcalc/modules/diagnostics"
	"p2pcalc/modules/state"
	"p2pcalc/modules/telegram"
)

const initDataHeader = "X-Telegram-Init-Data"

// sessionManager hands out one state.Store per storage key. The cache holds
// idle stores for the session TTL; live tracks every store still referenced
// anywhere, so a request that outlives eviction and the next request share
// one instance instead of overwriting each other's snapshots.
type sessionManager struct {
	mu      sync.Mutex
	storage state.Storage
	stores  *cache.Cache
	live    map[string]weak.Pointer[state.Store]
	log     *zap.SugaredLogger
}

func newSessionManager(storage state.Storage, ttl time.Duration, log *zap.SugaredLogger) *sessionManager {
	m := &sessionManager{
		storage: storage,
		stores:  cache.New(ttl, 2*ttl),
		live:    make(map[string]weak.Pointer[state.Store]),
		log:     log,
	}
	m.stores.OnEvicted(m.evicted)
	return m
}

// evicted drops bookkeeping for stores nothing references any more.
func (m *sessionManager) evicted(key string, _ interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, p := range m.live {
		if p.Value() == nil {
			delete(m.live, k)
		}
	}
	m.log.Debugf("Evicted idle state %q", key)
}

// userScope is the per-user suffix of every storage key. Anonymous callers
// share the empty scope.
func userScope(user *telegram.WebAppUser) string {
	if user == nil || user.ID == 0 {
		return ""
	}
	return strconv.FormatInt(user.ID, 10)
}

func storageKey(user *telegram.WebAppUser) string {
	if scope := userScope(user); scope != "" {
		return state.StorageKey + ":" + scope
	}
	return state.StorageKey
}

func (m *sessionManager) store(ctx context.Context, key string) *state.Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.stores.Get(key); ok {
		s := v.(*state.Store)
		m.stores.Set(key, s, cache.DefaultExpiration)
		return s
	}
	if s := m.live[key].Value(); s != nil {
		m.stores.Set(key, s, cache.DefaultExpiration)
		return s
	}

	s := state.Open(ctx, m.storage, key, state.WithLogger(m.log))
	m.stores.Set(key, s, cache.DefaultExpiration)
	m.live[key] = weak.Make(s)
	m.log.Debugf("Opened state %q", key)
	return s
}

func (a *app) host(r *http.Request) telegram.Host {
	return telegram.SelectHost(r.Header.Get(initDataHeader), a.botToken, a.initDataMaxAge, a.log)
}

// session resolves the host and store for a request.
func (a *app) session(r *http.Request) (*state.Store, telegram.Host) {
	host := a.host(r)
	return a.sessions.store(r.Context(), storageKey(host.User())), host
}

// recorder returns the diagnostics log of the user behind host.
func (a *app) recorder(host telegram.Host) *diagnostics.Recorder {
	return a.diag.Scoped(userScope(host.User()))
}
