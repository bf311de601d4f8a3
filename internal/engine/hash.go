package engine

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"darkbet-backend/internal/market"
)

// Salt is the secret blinding value of a commitment
type Salt [32]byte

// Hex returns the 0x-prefixed hex encoding of the salt
func (s Salt) Hex() string {
	return hexutil.Encode(s[:])
}

// CommitHash computes keccak256(abi.encodePacked(bool outcome, bytes32 salt,
// address user)), the same digest the contracts and the web client produce.
func CommitHash(outcome bool, salt Salt, user common.Address) common.Hash {
	var o byte
	if outcome {
		o = 1
	}
	return crypto.Keccak256Hash([]byte{o}, salt[:], user.Bytes())
}

// NewSalt draws a random salt
func NewSalt() (Salt, error) {
	var s Salt
	if _, err := rand.Read(s[:]); err != nil {
		return Salt{}, fmt.Errorf("read random salt: %w", err)
	}
	return s, nil
}

// ParseSalt decodes a 0x-prefixed 32 byte hex salt
func ParseSalt(s string) (Salt, error) {
	b, err := decodeHex32(s)
	if err != nil {
		return Salt{}, market.Errorf(market.KindInvalidInput, "salt: %v", err)
	}
	var salt Salt
	copy(salt[:], b)
	return salt, nil
}

// ParseCommitHash decodes a 0x-prefixed 32 byte hex commitment hash
func ParseCommitHash(s string) (common.Hash, error) {
	b, err := decodeHex32(s)
	if err != nil {
		return common.Hash{}, market.Errorf(market.KindInvalidInput, "commit hash: %v", err)
	}
	return common.BytesToHash(b), nil
}

func decodeHex32(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("want 32 bytes, got %d", len(b))
	}
	return b, nil
}
