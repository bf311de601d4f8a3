package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"darkbet-backend/internal/api"
	"darkbet-backend/internal/auth"
	"darkbet-backend/internal/engine"
	"darkbet-backend/internal/events"
	"darkbet-backend/internal/market"
	"darkbet-backend/internal/resolution"
	"darkbet-backend/internal/settlement"
	"darkbet-backend/internal/vault"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestServer(t *testing.T, clock *testClock, owner *auth.Signer) *httptest.Server {
	ts, _ := newAPIServer(t, clock, owner)
	return ts
}

func newAPIServer(t *testing.T, clock *testClock, owner *auth.Signer) (*httptest.Server, *api.Server) {
	t.Helper()
	markets := market.NewManager(market.DefaultParams(), market.NewRoles(owner.Address(), owner.Address()),
		market.WithClock(clock.Now))
	v := vault.New()
	eng := engine.New(markets, v, nil, nil)
	srv := api.NewServer(api.Deps{
		Markets: markets,
		Engine:  eng,
		Coord:   resolution.NewCoordinator(markets, eng.Book(), nil, nil),
		Settler: settlement.New(markets, eng.Book(), v, nil, nil),
		Vault:   v,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, srv
}

func newSigner(t *testing.T) *auth.Signer {
	t.Helper()
	s, err := auth.GenerateSigner()
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return s
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	owner, bettor := newSigner(t), newSigner(t)
	ts := newTestServer(t, clock, owner)

	admin := New(ts.URL+"/", owner, time.Second)
	admin.Clock = clock.Now
	user := New(ts.URL, bettor, time.Second)
	user.Clock = clock.Now

	if _, err := user.Deposit(ctx, "0.5"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	m, err := admin.CreateMarket(ctx, "Will the bridge reopen by May?", "Resolves YES on public reopening.", "general", clock.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	q, err := user.Quote(ctx, m.ID, false, "0.02")
	if err != nil || q.Shares != "4" {
		t.Fatalf("quote = %+v, %v", q, err)
	}

	salt, err := engine.NewSalt()
	if err != nil {
		t.Fatal(err)
	}
	hash := engine.CommitHash(false, salt, bettor.Address())
	if _, err := user.Commit(ctx, m.ID, hash.Hex(), "0.02"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	pos, err := user.Reveal(ctx, m.ID, false, salt.Hex())
	if err != nil || !pos.Revealed {
		t.Fatalf("reveal = %+v, %v", pos, err)
	}

	clock.Advance(90 * time.Minute)
	if _, err := admin.Resolve(ctx, m.ID, "no", "bridge still closed"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	claim, err := user.Claim(ctx, m.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claim.Net != "0.018" || claim.Fee != "0.002" {
		t.Errorf("claim = %+v", claim)
	}

	got, err := user.GetMarket(ctx, m.ID)
	if err != nil || got.Status != market.StatusResolved {
		t.Errorf("market = %+v, %v", got, err)
	}
	bal, err := user.Balance(ctx, bettor.Address().Hex())
	if err != nil || bal.Balance != "0.498" {
		t.Errorf("balance = %+v, %v", bal, err)
	}
}

func TestClientErrorKinds(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	owner := newSigner(t)
	ts := newTestServer(t, clock, owner)

	c := New(ts.URL, owner, time.Second)
	c.Clock = clock.Now

	if _, err := c.GetMarket(ctx, 42); !errors.Is(err, market.ErrNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
	if _, err := c.Refund(ctx, 42); market.KindOf(err) != market.KindNotFound {
		t.Errorf("refund kind = %s", market.KindOf(err))
	}

	// a skewed clock makes every signed call fail authentication
	c.Clock = func() time.Time { return clock.Now().Add(-time.Hour) }
	if _, err := c.Deposit(ctx, "1"); !errors.Is(err, market.ErrUnauthorized) {
		t.Errorf("expected Unauthorized, got %v", err)
	}

	anon := New(ts.URL, nil, time.Second)
	if _, err := anon.Claim(ctx, 1); !errors.Is(err, market.ErrUnauthorized) {
		t.Errorf("unsigned client: expected Unauthorized, got %v", err)
	}
}

func TestClientNonAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := New(ts.URL, nil, time.Second).GetMarket(context.Background(), 1)
	if err == nil || market.KindOf(err) != market.KindInternal {
		t.Fatalf("expected plain error, got %v", err)
	}
}

func TestSubscribe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	ts, srv := newAPIServer(t, clock, newSigner(t))
	hub := srv.Hub()
	go hub.Run(ctx)

	stream, err := New(ts.URL, nil, time.Second).Subscribe(ctx, 3)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stream.Close()

	for hub.ClientCount() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("client never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	_ = hub.Handle(ctx, events.New(events.MarketCreated, 4, "", clock.Now()))
	_ = hub.Handle(ctx, events.New(events.MarketResolved, 3, "", clock.Now()).With("status", "resolved"))

	select {
	case ev := <-stream.Events():
		if ev.MarketID != 3 || ev.Type != events.MarketResolved || ev.Data["status"] != "resolved" {
			t.Errorf("event = %+v", ev)
		}
	case <-ctx.Done():
		t.Fatal("no event received")
	}

	if err := stream.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
	for range stream.Events() {
	}
	if err := stream.Err(); err != nil {
		t.Errorf("stream error after close: %v", err)
	}
}
