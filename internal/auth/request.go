package auth

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"darkbet-backend/internal/market"
)

// Request headers carrying the caller's identity
const (
	HeaderAddress   = "X-Darkbet-Address"
	HeaderTimestamp = "X-Darkbet-Timestamp"
	HeaderSignature = "X-Darkbet-Signature"
)

// DefaultMaxSkew is the accepted distance between a request timestamp and
// the server clock.
const DefaultMaxSkew = 5 * time.Minute

// CanonicalMessage is the text a caller signs for one request:
// METHOD \n PATH \n UNIX_SECONDS \n keccak256(body).
func CanonicalMessage(method, path string, ts int64, body []byte) []byte {
	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte('\n')
	b.WriteString(path)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(ts, 10))
	b.WriteByte('\n')
	b.WriteString(crypto.Keccak256Hash(body).Hex())
	return []byte(b.String())
}

// SignRequest sets the identity headers on req for the given body
func (s *Signer) SignRequest(req *http.Request, body []byte, now time.Time) error {
	ts := now.Unix()
	sig, err := s.SignMessageHex(CanonicalMessage(req.Method, req.URL.Path, ts, body))
	if err != nil {
		return err
	}
	req.Header.Set(HeaderAddress, s.address.Hex())
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, sig)
	return nil
}

// Verify authenticates a signed request and returns the caller. Every
// failure is reported as Unauthorized.
func Verify(r *http.Request, body []byte, maxSkew time.Duration, now time.Time) (common.Address, error) {
	addrHex := r.Header.Get(HeaderAddress)
	tsRaw := r.Header.Get(HeaderTimestamp)
	sigHex := r.Header.Get(HeaderSignature)
	if addrHex == "" || tsRaw == "" || sigHex == "" {
		return common.Address{}, market.Errorf(market.KindUnauthorized, "missing signature headers")
	}
	if !common.IsHexAddress(addrHex) {
		return common.Address{}, market.Errorf(market.KindUnauthorized, "invalid address %q", addrHex)
	}
	claimed := common.HexToAddress(addrHex)

	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return common.Address{}, market.Errorf(market.KindUnauthorized, "invalid timestamp %q", tsRaw)
	}
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > maxSkew {
		return common.Address{}, market.Errorf(market.KindUnauthorized, "timestamp outside the %s window", maxSkew)
	}

	recovered, err := RecoverAddress(CanonicalMessage(r.Method, r.URL.Path, ts, body), sigHex)
	if err != nil {
		return common.Address{}, market.Wrap(market.KindUnauthorized, err, "bad signature")
	}
	if recovered != claimed {
		return common.Address{}, market.Errorf(market.KindUnauthorized, "signature does not match %s", claimed.Hex())
	}
	return claimed, nil
}
