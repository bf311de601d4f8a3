package auth

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"darkbet-backend/internal/market"
)

// well-known development key (hardhat account #0)
const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var testAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func TestNewSigner(t *testing.T) {
	s, err := NewSigner(testKey)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	if s.Address() != testAddr {
		t.Errorf("address = %s, want %s", s.Address().Hex(), testAddr.Hex())
	}
	if _, err := NewSigner(""); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := NewSigner("0xzz"); err == nil {
		t.Error("expected error for malformed key")
	}
}

func TestSignAndVerifyMessage(t *testing.T) {
	s, _ := NewSigner(testKey)
	msg := []byte("darkbet")
	sig, err := s.SignMessageHex(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	ok, err := VerifySignature(msg, sig, testAddr)
	if err != nil || !ok {
		t.Fatalf("verify: ok=%v err=%v", ok, err)
	}
	ok, err = VerifySignature([]byte("tampered"), sig, testAddr)
	if err != nil || ok {
		t.Errorf("tampered message verified: ok=%v err=%v", ok, err)
	}
	if _, err := VerifySignature(msg, "0x1234", testAddr); err == nil {
		t.Error("expected error for short signature")
	}
}

func TestRequestRoundTrip(t *testing.T) {
	s, _ := NewSigner(testKey)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"market_id":1,"outcome":true}`)

	newReq := func() *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/api/markets/1/reveal", bytes.NewReader(body))
		if err := s.SignRequest(r, body, now); err != nil {
			t.Fatalf("sign request: %v", err)
		}
		return r
	}

	r := newReq()
	caller, err := Verify(r, body, time.Minute, now.Add(30*time.Second))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if caller != testAddr {
		t.Errorf("caller = %s", caller.Hex())
	}

	cases := []struct {
		name   string
		mutate func(*http.Request) ([]byte, time.Time)
	}{
		{"stale", func(*http.Request) ([]byte, time.Time) { return body, now.Add(2 * time.Minute) }},
		{"body swapped", func(*http.Request) ([]byte, time.Time) { return []byte(`{"market_id":2}`), now }},
		{"path swapped", func(r *http.Request) ([]byte, time.Time) {
			r.URL.Path = "/api/markets/2/reveal"
			return body, now
		}},
		{"address swapped", func(r *http.Request) ([]byte, time.Time) {
			r.Header.Set(HeaderAddress, "0x0000000000000000000000000000000000000b0b")
			return body, now
		}},
		{"missing signature", func(r *http.Request) ([]byte, time.Time) {
			r.Header.Del(HeaderSignature)
			return body, now
		}},
		{"bad timestamp", func(r *http.Request) ([]byte, time.Time) {
			r.Header.Set(HeaderTimestamp, "yesterday")
			return body, now
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newReq()
			b, at := tc.mutate(r)
			if _, err := Verify(r, b, time.Minute, at); !errors.Is(err, market.ErrUnauthorized) {
				t.Fatalf("expected Unauthorized, got %v", err)
			}
		})
	}
}

func TestCanonicalMessage(t *testing.T) {
	got := string(CanonicalMessage("post", "/api/markets", 1700000000, nil))
	want := "POST\n/api/markets\n1700000000\n0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"
	if got != want {
		t.Errorf("canonical message = %q", got)
	}
}
