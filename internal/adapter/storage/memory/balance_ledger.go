package memory

import (
	"context"
	"fmt"

	"exchange-core/internal/core/domain"
	"exchange-core/internal/core/ports"

	"github.com/google/uuid"
)

// BalanceLedger implements ports.BalanceLedger in memory.
type BalanceLedger struct {
	store *Store
}

func (l *BalanceLedger) Get(ctx context.Context, ownerID uuid.UUID, currency domain.Currency) (*domain.BalanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := l.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.balances[ownerID][currency]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (l *BalanceLedger) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.BalanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := l.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.BalanceRecord, 0, len(s.balances[ownerID]))
	for _, rec := range s.balances[ownerID] {
		out = append(out, rec)
	}
	return out, nil
}

// EnsureAll inserts zero records for the missing currencies. Existing
// records are left untouched.
func (l *BalanceLedger) EnsureAll(ctx context.Context, ownerID uuid.UUID, currencies []domain.Currency) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := l.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.identities[ownerID]; !ok {
		return fmt.Errorf("owner %s: %w", ownerID, ports.ErrRecordNotFound)
	}

	recs := s.ownerBalancesLocked(ownerID)
	now := s.now()
	for _, c := range currencies {
		if _, ok := recs[c]; ok {
			continue
		}
		rec := domain.ZeroBalance(ownerID, c)
		rec.UpdatedAt = now
		recs[c] = rec
	}
	return nil
}

// Update holds the (owner, currency) key lock across read, fn and write.
// Only Update writes non-zero amounts, so the key lock alone rules out lost
// updates; s.mu is held just long enough to read and to publish.
func (l *BalanceLedger) Update(ctx context.Context, ownerID uuid.UUID, currency domain.Currency, fn ports.BalanceMutation) (*domain.BalanceRecord, error) {
	s := l.store
	key := domain.BalanceKey{OwnerID: ownerID, Currency: currency}
	mu := s.keyLock(key)
	mu.Lock()
	defer mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	_, exists := s.identities[ownerID]
	current, ok := s.balances[ownerID][currency]
	s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("owner %s: %w", ownerID, ports.ErrRecordNotFound)
	}
	if !ok {
		current = domain.ZeroBalance(ownerID, currency)
	}

	next, err := fn(current.Amount)
	if err != nil {
		return nil, err
	}
	if next.IsNegative() {
		return nil, fmt.Errorf("%s %s: %w", ownerID, currency, ports.ErrNegativeBalance)
	}
	if !domain.ValidAmount(next) {
		return nil, fmt.Errorf("%s %s: %w", ownerID, currency, ports.ErrAmountOutOfRange)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// The owner may have been deleted while fn ran.
	if _, ok := s.identities[ownerID]; !ok {
		return nil, fmt.Errorf("owner %s: %w", ownerID, ports.ErrRecordNotFound)
	}
	rec := domain.BalanceRecord{
		OwnerID:   ownerID,
		Currency:  currency,
		Amount:    next,
		UpdatedAt: s.now(),
	}
	s.ownerBalancesLocked(ownerID)[currency] = rec
	return &rec, nil
}

// ownerBalancesLocked returns the owner's record map, creating it.
// Caller holds s.mu for writing.
func (s *Store) ownerBalancesLocked(ownerID uuid.UUID) map[domain.Currency]domain.BalanceRecord {
	recs, ok := s.balances[ownerID]
	if !ok {
		recs = make(map[domain.Currency]domain.BalanceRecord)
		s.balances[ownerID] = recs
	}
	return recs
}
