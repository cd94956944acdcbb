// Package memory provides in-process implementations of the storage ports.
// It backs storage.driver=memory and the end-to-end service tests.
package memory

import (
	"context"
	"sync"
	"time"

	"exchange-core/internal/core/domain"

	"github.com/google/uuid"
)

// Store holds identities and balances behind one lock so that removing an
// identity removes its balances atomically, the way the foreign key does in
// PostgreSQL. Identities and Balances return the two port views.
type Store struct {
	mu           sync.RWMutex
	identities   map[uuid.UUID]*domain.Identity
	byIdentifier map[string]uuid.UUID
	balances     map[uuid.UUID]map[domain.Currency]domain.BalanceRecord

	// keyLocks serializes balance mutations per (owner, currency).
	keyLocks sync.Map // domain.BalanceKey -> *sync.Mutex

	now func() time.Time
}

// NewStore creates an empty store. A nil now means time.Now in UTC.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{
		identities:   make(map[uuid.UUID]*domain.Identity),
		byIdentifier: make(map[string]uuid.UUID),
		balances:     make(map[uuid.UUID]map[domain.Currency]domain.BalanceRecord),
		now:          now,
	}
}

// Identities returns the credential store view.
func (s *Store) Identities() *IdentityRepo {
	return &IdentityRepo{store: s}
}

// Balances returns the balance ledger view.
func (s *Store) Balances() *BalanceLedger {
	return &BalanceLedger{store: s}
}

// Ping implements ports.HealthChecker.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Name implements ports.HealthChecker.
func (s *Store) Name() string {
	return "memory"
}

func (s *Store) keyLock(key domain.BalanceKey) *sync.Mutex {
	m, _ := s.keyLocks.LoadOrStore(key, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// purgeOwnerLocked drops the owner's balances and their key locks.
// Caller holds s.mu.
func (s *Store) purgeOwnerLocked(ownerID uuid.UUID) {
	for c := range s.balances[ownerID] {
		s.keyLocks.Delete(domain.BalanceKey{OwnerID: ownerID, Currency: c})
	}
	delete(s.balances, ownerID)
}
