package engine

import (
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"darkbet-backend/internal/market"
)

// Commitment is a hidden wager: the hash binds outcome, salt and committer
type Commitment struct {
	MarketID  uint64
	User      common.Address
	Hash      common.Hash
	Amount    *big.Int
	Timestamp time.Time
	Revealed  bool
	Refunded  bool
}

// Bet is a revealed wager. It exists iff its commitment is revealed.
type Bet struct {
	MarketID   uint64
	User       common.Address
	Outcome    bool
	Shares     *big.Int
	Amount     *big.Int
	RevealedAt time.Time
	Claimed    bool
}

// Position is everything one user holds in one market
type Position struct {
	Commitment Commitment
	Bet        *Bet // nil until revealed
}

func (p Position) clone() Position {
	c := p
	c.Commitment.Amount = new(big.Int).Set(p.Commitment.Amount)
	if p.Bet != nil {
		b := *p.Bet
		b.Shares = new(big.Int).Set(p.Bet.Shares)
		b.Amount = new(big.Int).Set(p.Bet.Amount)
		c.Bet = &b
	}
	return c
}

// PositionJSON is the JSON representation of a position
type PositionJSON struct {
	MarketID    uint64  `json:"market_id"`
	User        string  `json:"user"`
	CommitHash  string  `json:"commit_hash"`
	Amount      string  `json:"amount"`
	CommittedAt string  `json:"committed_at"`
	Revealed    bool    `json:"revealed"`
	Refunded    bool    `json:"refunded"`
	Outcome     *bool   `json:"outcome,omitempty"`
	Shares      *string `json:"shares,omitempty"`
	RevealedAt  *string `json:"revealed_at,omitempty"`
	Claimed     bool    `json:"claimed"`
}

// ToJSON converts a Position to its JSON representation
func (p Position) ToJSON() PositionJSON {
	pj := PositionJSON{
		MarketID:    p.Commitment.MarketID,
		User:        p.Commitment.User.Hex(),
		CommitHash:  p.Commitment.Hash.Hex(),
		Amount:      market.FormatEther(p.Commitment.Amount),
		CommittedAt: p.Commitment.Timestamp.UTC().Format(time.RFC3339),
		Revealed:    p.Commitment.Revealed,
		Refunded:    p.Commitment.Refunded,
	}
	if p.Bet != nil {
		o := p.Bet.Outcome
		s := market.FormatEther(p.Bet.Shares)
		r := p.Bet.RevealedAt.UTC().Format(time.RFC3339)
		pj.Outcome = &o
		pj.Shares = &s
		pj.RevealedAt = &r
		pj.Claimed = p.Bet.Claimed
	}
	return pj
}

// Book tracks all positions. Writes happen only while the owning market is
// held through market.Manager.Mutate, so each (market, user) pair has a
// single writer.
type Book struct {
	mu        sync.RWMutex
	positions map[uint64]map[common.Address]*Position // marketID -> user -> Position
}

// NewBook creates an empty position book
func NewBook() *Book {
	return &Book{
		positions: make(map[uint64]map[common.Address]*Position),
	}
}

// Get returns a copy of a user's position in a market
func (b *Book) Get(marketID uint64, user common.Address) (Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pos, ok := b.positions[marketID][user]
	if !ok {
		return Position{}, false
	}
	return pos.clone(), true
}

// Put stores a position. Callers must hold the market through Mutate.
func (b *Book) Put(p Position) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := p.Commitment.MarketID
	if _, ok := b.positions[id]; !ok {
		b.positions[id] = make(map[common.Address]*Position)
	}
	c := p.clone()
	b.positions[id][p.Commitment.User] = &c
}

// Market returns every position in a market ordered by commit time
func (b *Book) Market(marketID uint64) []Position {
	b.mu.RLock()
	result := make([]Position, 0, len(b.positions[marketID]))
	for _, pos := range b.positions[marketID] {
		result = append(result, pos.clone())
	}
	b.mu.RUnlock()

	sortPositions(result)
	return result
}

// User returns every position held by a user ordered by market
func (b *Book) User(user common.Address) []Position {
	b.mu.RLock()
	var result []Position
	for _, users := range b.positions {
		if pos, ok := users[user]; ok {
			result = append(result, pos.clone())
		}
	}
	b.mu.RUnlock()

	sortPositions(result)
	return result
}

func sortPositions(ps []Position) {
	sort.Slice(ps, func(i, j int) bool {
		a, c := ps[i].Commitment, ps[j].Commitment
		if a.MarketID != c.MarketID {
			return a.MarketID < c.MarketID
		}
		if !a.Timestamp.Equal(c.Timestamp) {
			return a.Timestamp.Before(c.Timestamp)
		}
		return a.User.Hex() < c.User.Hex()
	})
}
