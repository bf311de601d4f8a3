package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"darkbet-backend/internal/api"
	"darkbet-backend/internal/auth"
	"darkbet-backend/internal/engine"
	"darkbet-backend/internal/market"
	"darkbet-backend/internal/resolution"
	"darkbet-backend/internal/settlement"
	"darkbet-backend/internal/vault"
)

const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// startServer runs the API with a clock that tests can move forward
func startServer(t *testing.T, offset *atomic.Int64) string {
	t.Helper()
	signer, err := auth.NewSigner(testKey)
	if err != nil {
		t.Fatal(err)
	}
	clock := func() time.Time { return time.Now().Add(time.Duration(offset.Load())) }
	markets := market.NewManager(market.DefaultParams(), market.NewRoles(signer.Address(), signer.Address()),
		market.WithClock(clock))
	v := vault.New()
	eng := engine.New(markets, v, nil, nil)
	srv := api.NewServer(api.Deps{
		Markets: markets,
		Engine:  eng,
		Coord:   resolution.NewCoordinator(markets, eng.Book(), nil, nil),
		Settler: settlement.New(markets, eng.Book(), v, nil, nil),
		Vault:   v,
		MaxSkew: 24 * time.Hour,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func mustDecode[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decode %q: %v", s, err)
	}
	return v
}

func TestCLIFlow(t *testing.T) {
	var offset atomic.Int64
	url := startServer(t, &offset)
	base := []string{"--api", url, "--key", testKey}
	cli := func(args ...string) (int, string, string) {
		return runCLI(t, append(append([]string{}, base...), args...)...)
	}

	code, out, errOut := cli("deposit", "--amount", "1")
	if code != exitOK {
		t.Fatalf("deposit exit %d: %s", code, errOut)
	}

	code, out, errOut = cli("create-market",
		"--title", "Will the ferry strike end this week?",
		"--description", "Resolves YES if service resumes before Sunday.",
		"--expires-at", "+1h", "--category", "politics")
	if code != exitOK {
		t.Fatalf("create exit %d: %s", code, errOut)
	}
	m := mustDecode[market.MarketJSON](t, out)
	if m.ID != 1 || m.Category != "politics" {
		t.Fatalf("market = %+v", m)
	}

	code, out, errOut = cli("make-commit", "--outcome", "yes")
	if code != exitOK {
		t.Fatalf("make-commit exit %d: %s", code, errOut)
	}
	commit := mustDecode[commitOutput](t, out)

	code, _, errOut = cli("commit-bet", "--market-id", "1", "--commit-hash", commit.CommitHash, "--amount", "0.05")
	if code != exitOK {
		t.Fatalf("commit exit %d: %s", code, errOut)
	}
	code, out, errOut = cli("reveal-bet", "--market-id", "1", "--outcome", "yes", "--salt", commit.Salt)
	if code != exitOK {
		t.Fatalf("reveal exit %d: %s", code, errOut)
	}
	if pos := mustDecode[engine.PositionJSON](t, out); !pos.Revealed {
		t.Fatalf("position = %+v", pos)
	}

	code, _, errOut = cli("resolve-market", "--market-id", "1", "--outcome", "yes")
	if code != exitError || mustDecode[api.ErrorResponse](t, errOut).Kind != market.KindNotExpiredYet {
		t.Fatalf("early resolve: exit %d %s", code, errOut)
	}

	offset.Store(int64(2 * time.Hour))
	code, _, errOut = cli("resolve-market", "--market-id", "1", "--outcome", "yes", "--reasoning", "service resumed")
	if code != exitOK {
		t.Fatalf("resolve exit %d: %s", code, errOut)
	}

	code, out, errOut = cli("claim-winnings", "--market-id", "1")
	if code != exitOK {
		t.Fatalf("claim exit %d: %s", code, errOut)
	}
	if claim := mustDecode[settlement.ClaimJSON](t, out); claim.Net != "0.045" {
		t.Errorf("claim = %+v", claim)
	}

	code, _, errOut = cli("claim-refund", "--market-id", "1")
	if code != exitError || mustDecode[api.ErrorResponse](t, errOut).Kind != market.KindRefundNotAvailable {
		t.Errorf("refund after reveal: exit %d %s", code, errOut)
	}

	code, out, _ = runCLI(t, "--api", url, "get-market", "--market-id", "1")
	if code != exitOK || mustDecode[market.MarketJSON](t, out).Status != market.StatusResolved {
		t.Errorf("get-market: exit %d %s", code, out)
	}
}

func TestCLIProtocolErrors(t *testing.T) {
	var offset atomic.Int64
	url := startServer(t, &offset)

	code, _, errOut := runCLI(t, "--api", url, "get-market", "--market-id", "99")
	if code != exitError {
		t.Fatalf("exit = %d", code)
	}
	resp := mustDecode[api.ErrorResponse](t, errOut)
	if resp.Kind != market.KindNotFound || resp.Error == "" {
		t.Errorf("error body = %+v", resp)
	}

	code, _, errOut = runCLI(t, "--api", url, "--key", testKey, "commit-bet",
		"--market-id", "99", "--commit-hash", "0x1234", "--amount", "0.01")
	if code != exitError || mustDecode[api.ErrorResponse](t, errOut).Kind != market.KindInvalidInput {
		t.Errorf("bad hash: exit %d %s", code, errOut)
	}
}

func TestCLIUsage(t *testing.T) {
	cases := [][]string{
		{},
		{"frobnicate"},
		{"claim-winnings", "--market-id", "1"},
		{"--key", testKey, "claim-winnings"},
		{"--key", testKey, "commit-bet", "--market-id", "x"},
		{"--key", "not-a-key", "get-market", "--market-id", "1"},
		{"make-commit", "--outcome", "yes"},
	}
	for _, args := range cases {
		t.Setenv("PRIVATE_KEY", "")
		if code, _, _ := runCLI(t, args...); code != exitUsage {
			t.Errorf("%v: exit = %d, want %d", args, code, exitUsage)
		}
	}
}

func TestMakeCommitIsDeterministic(t *testing.T) {
	salt := "0x" + strings.Repeat("ab", 32)
	addr := "0x00000000000000000000000000000000000a11ce"
	code, out, errOut := runCLI(t, "make-commit", "--outcome", "no", "--salt", salt, "--address", addr)
	if code != exitOK {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	got := mustDecode[commitOutput](t, out)

	parsed, err := engine.ParseSalt(salt)
	if err != nil {
		t.Fatal(err)
	}
	want := engine.CommitHash(false, parsed, common.HexToAddress(addr))
	if got.CommitHash != want.Hex() || got.Outcome != "no" || got.Salt != salt {
		t.Errorf("make-commit = %+v, want hash %s", got, want.Hex())
	}
}

func TestParseExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if got, err := parseExpiry("+90m", now); err != nil || !got.Equal(now.Add(90*time.Minute)) {
		t.Errorf("relative = %v, %v", got, err)
	}
	if got, err := parseExpiry("2026-04-01T00:00:00Z", now); err != nil || got.Month() != time.April {
		t.Errorf("absolute = %v, %v", got, err)
	}
	if _, err := parseExpiry("next week", now); market.KindOf(err) != market.KindInvalidInput {
		t.Errorf("expected InvalidInput, got %v", err)
	}
}
