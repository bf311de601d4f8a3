package market

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Status represents the lifecycle stage of a prediction market
type Status int

const (
	StatusActive            Status = iota // Accepting commitments and reveals
	StatusResolving                       // Expired, awaiting the resolver
	StatusResolved                        // Outcome determined, winnings claimable
	StatusResolvedUndecided               // Resolver could not decide, stakes refundable
	StatusCancelled                       // Cancelled by creator or owner, stakes refundable
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusResolving:
		return "resolving"
	case StatusResolved:
		return "resolved"
	case StatusResolvedUndecided:
		return "resolved_undecided"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further status transition is possible.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusResolvedUndecided || s == StatusCancelled
}

// Open reports whether reveals are still accepted in this status.
func (s Status) Open() bool {
	return s == StatusActive || s == StatusResolving
}

// ParseStatus parses the text form produced by String.
func ParseStatus(s string) (Status, error) {
	for st := StatusActive; st <= StatusCancelled; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, Errorf(KindInvalidInput, "unknown status %q", s)
}

func (s Status) MarshalText() ([]byte, error) {
	if s < StatusActive || s > StatusCancelled {
		return nil, fmt.Errorf("invalid status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	st, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Category is the topical category of a market
type Category int

const (
	CategoryGeneral Category = iota
	CategorySports
	CategoryWeather
	CategoryPolitics
	CategoryEntertainment
	CategoryTechnology
	CategoryEconomics
	CategoryCrypto
)

var categoryNames = [...]string{
	"general",
	"sports",
	"weather",
	"politics",
	"entertainment",
	"technology",
	"economics",
	"crypto",
}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "unknown"
	}
	return categoryNames[c]
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return c >= 0 && int(c) < len(categoryNames)
}

// ParseCategory accepts a category name or its numeric code.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CategoryGeneral, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		c := Category(n)
		if !c.Valid() {
			return 0, Errorf(KindInvalidInput, "unknown category %d", n)
		}
		return c, nil
	}
	for i, name := range categoryNames {
		if name == s {
			return Category(i), nil
		}
	}
	return 0, Errorf(KindInvalidInput, "unknown category %q", s)
}

// Market represents a binary prediction market. Amounts are in wei, shares
// in units of 1e-18 share.
type Market struct {
	ID                  uint64
	Creator             common.Address
	Title               string
	Description         string
	Category            Category
	CreatedAt           time.Time
	ExpiresAt           time.Time
	Status              Status
	TotalPool           *big.Int
	YesPool             *big.Int
	NoPool              *big.Int
	YesShares           *big.Int
	NoShares            *big.Int
	Participants        uint64
	Outcome             *bool // nil until resolved with a decision
	ResolutionReasoning string
	ResolvedAt          *time.Time
	EventSeq            uint64 // sequence number of the last event published for this market
}

// Pool returns the pool backing one side.
func (m *Market) Pool(outcome bool) *big.Int {
	if outcome {
		return m.YesPool
	}
	return m.NoPool
}

// Shares returns the total shares issued on one side.
func (m *Market) Shares(outcome bool) *big.Int {
	if outcome {
		return m.YesShares
	}
	return m.NoShares
}

// NextEventSeq advances and returns the market's event sequence. Call it
// from inside Manager.Mutate so the number orders with the state change.
func (m *Market) NextEventSeq() uint64 {
	m.EventSeq++
	return m.EventSeq
}

// Clone returns a deep copy of the market.
func (m *Market) Clone() *Market {
	c := *m
	c.TotalPool = new(big.Int).Set(m.TotalPool)
	c.YesPool = new(big.Int).Set(m.YesPool)
	c.NoPool = new(big.Int).Set(m.NoPool)
	c.YesShares = new(big.Int).Set(m.YesShares)
	c.NoShares = new(big.Int).Set(m.NoShares)
	if m.Outcome != nil {
		o := *m.Outcome
		c.Outcome = &o
	}
	if m.ResolvedAt != nil {
		t := *m.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

// MarketJSON is the JSON representation of a market
type MarketJSON struct {
	ID                  uint64  `json:"id"`
	Creator             string  `json:"creator"`
	Title               string  `json:"title"`
	Description         string  `json:"description"`
	Category            string  `json:"category"`
	CreatedAt           string  `json:"created_at"`
	ExpiresAt           string  `json:"expires_at"`
	Status              Status  `json:"status"`
	TotalPool           string  `json:"total_pool"`
	YesPool             string  `json:"yes_pool"`
	NoPool              string  `json:"no_pool"`
	YesShares           string  `json:"yes_shares"`
	NoShares            string  `json:"no_shares"`
	Participants        uint64  `json:"participants"`
	Outcome             *bool   `json:"outcome,omitempty"`
	ResolutionReasoning string  `json:"resolution_reasoning,omitempty"`
	ResolvedAt          *string `json:"resolved_at,omitempty"`
	EventSeq            uint64  `json:"event_seq"`
}

// ToJSON converts a Market to its JSON representation
func (m *Market) ToJSON() MarketJSON {
	mj := MarketJSON{
		ID:                  m.ID,
		Creator:             m.Creator.Hex(),
		Title:               m.Title,
		Description:         m.Description,
		Category:            m.Category.String(),
		CreatedAt:           m.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt:           m.ExpiresAt.UTC().Format(time.RFC3339),
		Status:              m.Status,
		TotalPool:           FormatEther(m.TotalPool),
		YesPool:             FormatEther(m.YesPool),
		NoPool:              FormatEther(m.NoPool),
		YesShares:           FormatEther(m.YesShares),
		NoShares:            FormatEther(m.NoShares),
		Participants:        m.Participants,
		Outcome:             m.Outcome,
		ResolutionReasoning: m.ResolutionReasoning,
		EventSeq:            m.EventSeq,
	}
	if m.ResolvedAt != nil {
		s := m.ResolvedAt.UTC().Format(time.RFC3339)
		mj.ResolvedAt = &s
	}
	return mj
}
