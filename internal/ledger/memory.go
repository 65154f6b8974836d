package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type accountState struct {
	account  Account
	holdings map[string]Holding
	trades   []TradeRecord
}

func (s *accountState) snapshot() *Snapshot {
	snap := &Snapshot{Account: s.account, Holdings: s.holdings}
	return snap.clone()
}

// MemoryStore keeps the ledger in process memory. Every returned value is
// a copy.
type MemoryStore struct {
	mu       sync.RWMutex
	defaults Defaults
	accounts map[string]*accountState
	now      func() time.Time
}

func NewMemoryStore(defaults Defaults) *MemoryStore {
	return &MemoryStore{
		defaults: defaults,
		accounts: make(map[string]*accountState),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// state returns the account, creating it when missing. Caller holds mu.
func (m *MemoryStore) state(accountID string) *accountState {
	s, ok := m.accounts[accountID]
	if !ok {
		s = &accountState{
			account:  newAccount(accountID, m.defaults, m.now()),
			holdings: make(map[string]Holding),
		}
		m.accounts[accountID] = s
	}
	return s
}

func (m *MemoryStore) Snapshot(ctx context.Context, accountID string) (*Snapshot, error) {
	m.mu.RLock()
	if s, ok := m.accounts[accountID]; ok {
		defer m.mu.RUnlock()
		return s.snapshot(), nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state(accountID).snapshot(), nil
}

func (m *MemoryStore) Apply(ctx context.Context, accountID string, mut Mutation) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state(accountID)
	now := m.now()

	var held *Holding
	if mut.Holding != nil {
		if h, ok := s.holdings[mut.Holding.Symbol]; ok {
			held = &h
		}
	}
	acct, pos, err := next(s.account, held, mut, now)
	if err != nil {
		return nil, err
	}

	s.account = acct
	if pos != nil {
		if pos.Quantity == 0 {
			delete(s.holdings, pos.Symbol)
		} else {
			s.holdings[pos.Symbol] = *pos
		}
	}
	if mut.Trade != nil {
		s.trades = append(s.trades, settle(*mut.Trade, accountID, now))
	}
	return s.snapshot(), nil
}

func (m *MemoryStore) Reset(ctx context.Context, accountID string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state(accountID)
	s.account.Cash = s.account.InitialValue
	s.account.RealizedGains = decimal.Zero
	s.account.IsInitialized = false
	s.account.Version++
	s.account.UpdatedAt = m.now()
	s.holdings = make(map[string]Holding)
	s.trades = nil

	acct := s.account
	return &acct, nil
}

func (m *MemoryStore) Trades(ctx context.Context, accountID string, f TradeFilter) ([]TradeRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state(accountID)
	var matched []TradeRecord
	for i := len(s.trades) - 1; i >= 0; i-- {
		t := s.trades[i]
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Symbol != "" && t.Symbol != f.Symbol {
			continue
		}
		matched = append(matched, t)
	}

	total := len(matched)
	if f.Offset >= total {
		return []TradeRecord{}, total, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func (m *MemoryStore) UpdateSettings(ctx context.Context, accountID string, settings Settings) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state(accountID)
	acct, err := applySettings(s.account, settings, m.now())
	if err != nil {
		return nil, err
	}
	s.account = acct
	return &acct, nil
}
