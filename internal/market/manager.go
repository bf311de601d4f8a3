package market

import (
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"darkbet-backend/internal/events"
)

// entry serializes all writes to one market and publishes immutable
// snapshots for lock-free reads.
type entry struct {
	mu   sync.Mutex
	snap atomic.Pointer[Market]
}

// Manager manages all prediction markets
type Manager struct {
	mu      sync.RWMutex
	markets []*entry // index = id - 1

	params Params
	roles  *Roles
	clock  Clock
	events events.Publisher
	log    *zap.Logger
	paused atomic.Bool
}

// Option configures a Manager
type Option func(*Manager)

// WithClock replaces the wall clock
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithPublisher sets the event publisher
func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) { m.events = p }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager creates a new market manager
func NewManager(params Params, roles *Roles, opts ...Option) *Manager {
	m := &Manager{
		params: params,
		roles:  roles,
		clock:  SystemClock,
		events: events.Discard{},
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Params returns the protocol parameters
func (m *Manager) Params() Params { return m.params }

// Roles returns the privileged identities
func (m *Manager) Roles() *Roles { return m.roles }

// Now returns the current protocol time
func (m *Manager) Now() time.Time { return m.clock() }

// CreateMarketRequest is the request to create a new market
type CreateMarketRequest struct {
	Title       string
	Description string
	Category    Category
	ExpiresAt   time.Time
	Creator     common.Address
}

// Create creates a new prediction market
func (m *Manager) Create(req CreateMarketRequest) (*Market, error) {
	if m.paused.Load() {
		return nil, ErrPaused
	}
	title := strings.TrimSpace(req.Title)
	description := strings.TrimSpace(req.Description)
	switch {
	case title == "":
		return nil, Errorf(KindInvalidInput, "title is required")
	case description == "":
		return nil, Errorf(KindInvalidInput, "description is required")
	case req.Creator == (common.Address{}):
		return nil, Errorf(KindInvalidInput, "creator is required")
	case !req.Category.Valid():
		return nil, Errorf(KindInvalidInput, "unknown category %d", int(req.Category))
	}

	now := m.clock()
	window := req.ExpiresAt.Sub(now)
	if window < m.params.MinWindow || window > m.params.MaxWindow {
		return nil, Errorf(KindInvalidExpiration,
			"expiry must be between %s and %s from now", m.params.MinWindow, m.params.MaxWindow)
	}

	m.mu.Lock()
	mkt := &Market{
		ID:          uint64(len(m.markets)) + 1,
		Creator:     req.Creator,
		Title:       title,
		Description: description,
		Category:    req.Category,
		CreatedAt:   now,
		ExpiresAt:   req.ExpiresAt,
		Status:      StatusActive,
		TotalPool:   new(big.Int),
		YesPool:     new(big.Int),
		NoPool:      new(big.Int),
		YesShares:   new(big.Int),
		NoShares:    new(big.Int),
		EventSeq:    1,
	}
	e := &entry{}
	e.snap.Store(mkt)
	m.markets = append(m.markets, e)
	m.mu.Unlock()

	m.log.Info("market created",
		zap.Uint64("market_id", mkt.ID),
		zap.String("creator", mkt.Creator.Hex()),
		zap.Time("expires_at", mkt.ExpiresAt))
	ev := events.New(events.MarketCreated, mkt.ID, mkt.Creator.Hex(), now).
		With("title", mkt.Title).
		With("category", mkt.Category.String()).
		With("expires_at", mkt.ExpiresAt.UTC().Format(time.RFC3339))
	ev.Seq = mkt.EventSeq
	m.events.Publish(ev)

	return mkt.Clone(), nil
}

func (m *Manager) lookup(id uint64) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id == 0 || id > uint64(len(m.markets)) {
		return nil, Errorf(KindNotFound, "market %d not found", id)
	}
	return m.markets[id-1], nil
}

// Get retrieves a snapshot of a market by ID
func (m *Manager) Get(id uint64) (*Market, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.snap.Load().Clone(), nil
}

// List returns snapshots of all markets ordered by ID
func (m *Manager) List() []*Market {
	m.mu.RLock()
	entries := make([]*entry, len(m.markets))
	copy(entries, m.markets)
	m.mu.RUnlock()

	markets := make([]*Market, 0, len(entries))
	for _, e := range entries {
		markets = append(markets, e.snap.Load().Clone())
	}
	return markets
}

// Count returns the number of markets ever created
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.markets)
}

// Mutate runs fn with exclusive access to a working copy of the market.
// The copy is published only when fn returns nil, so a failed fn leaves
// the market untouched. All state changes of a market go through Mutate.
func (m *Manager) Mutate(id uint64, fn func(*Market) error) (*Market, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.snap.Load().Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	e.snap.Store(next)
	return next.Clone(), nil
}

// Pause blocks market creation, commits and reveals. Owner only.
func (m *Manager) Pause(caller common.Address) error {
	if err := m.roles.RequireOwner(caller); err != nil {
		return err
	}
	m.paused.Store(true)
	m.log.Warn("protocol paused", zap.String("by", caller.Hex()))
	return nil
}

// Unpause lifts a pause. Owner only.
func (m *Manager) Unpause(caller common.Address) error {
	if err := m.roles.RequireOwner(caller); err != nil {
		return err
	}
	m.paused.Store(false)
	m.log.Info("protocol unpaused", zap.String("by", caller.Hex()))
	return nil
}

// Paused reports whether the protocol is paused
func (m *Manager) Paused() bool {
	return m.paused.Load()
}
