package main

import (
	"context"
	"runtime"
	"testing"
	"time"

	"go.uber.org/zap"

	"p2pcalc/modules/state"
	"p2pcalc/modules/telegram"
)

func TestStorageKey(t *testing.T) {
	tests := []struct {
		user *telegram.WebAppUser
		want string
	}{
		{nil, state.StorageKey},
		{&telegram.WebAppUser{}, state.StorageKey},
		{&telegram.WebAppUser{ID: 42}, state.StorageKey + ":42"},
	}
	for _, tt := range tests {
		if got := storageKey(tt.user); got != tt.want {
			t.Errorf("storageKey(%+v) = %q, want %q", tt.user, got, tt.want)
		}
	}
}

func TestSessionStoreSurvivesEvictionWhileReferenced(t *testing.T) {
	ctx := context.Background()
	storage := state.NewMemoryStorage()
	m := newSessionManager(storage, time.Hour, zap.NewNop().Sugar())

	held := m.store(ctx, "k")
	held.SetFiatInput("5000")

	m.stores.Delete("k")
	again := m.store(ctx, "k")
	if again != held {
		t.Fatal("a second store was opened while the first is still in use")
	}

	// A late write through the old reference must not clobber the newer one.
	again.SetCryptoInput("65.91")
	held.SetProfitInput("100")

	reopened := state.Open(ctx, storage, "k")
	in := reopened.Inputs()
	if in.Fiat != "5000" || in.Crypto != "65.91" || in.Profit != "100" {
		t.Errorf("persisted inputs = %+v", in)
	}
	runtime.KeepAlive(held)
}

func TestSessionStoreReusedWithinTTL(t *testing.T) {
	m := newSessionManager(state.NewMemoryStorage(), time.Hour, zap.NewNop().Sugar())
	a := m.store(context.Background(), "a")
	if m.store(context.Background(), "a") != a {
		t.Error("store not reused")
	}
	if m.store(context.Background(), "b") == a {
		t.Error("different keys share a store")
	}
}
