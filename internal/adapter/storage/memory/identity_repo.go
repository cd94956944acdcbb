package memory

import (
	"context"
	"fmt"

	"exchange-core/internal/core/domain"
	"exchange-core/internal/core/ports"

	"github.com/google/uuid"
)

// IdentityRepo implements ports.IdentityRepository in memory.
// Identities are cloned on the way in and out.
type IdentityRepo struct {
	store *Store
}

func (r *IdentityRepo) Create(ctx context.Context, identity *domain.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.identities[identity.ID]; ok {
		return fmt.Errorf("identity %s: %w", identity.ID, ports.ErrDuplicate)
	}
	if _, ok := s.byIdentifier[identity.Identifier]; ok {
		return fmt.Errorf("identifier %q: %w", identity.Identifier, ports.ErrDuplicate)
	}
	s.identities[identity.ID] = identity.Clone()
	s.byIdentifier[identity.Identifier] = identity.ID
	return nil
}

func (r *IdentityRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[id]
	if !ok {
		return nil, nil
	}
	return identity.Clone(), nil
}

func (r *IdentityRepo) GetByIdentifier(ctx context.Context, identifier string) (*domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byIdentifier[identifier]
	if !ok {
		return nil, nil
	}
	return s.identities[id].Clone(), nil
}

// Update runs fn under the store's write lock, which serializes all identity
// mutations. fn must not call back into the store.
func (r *IdentityRepo) Update(ctx context.Context, id uuid.UUID, fn ports.IdentityMutation) (*domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.identities[id]
	if !ok {
		return nil, fmt.Errorf("identity %s: %w", id, ports.ErrRecordNotFound)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = current.ID

	if next.Identifier != current.Identifier {
		if owner, taken := s.byIdentifier[next.Identifier]; taken && owner != id {
			return nil, fmt.Errorf("identifier %q: %w", next.Identifier, ports.ErrDuplicate)
		}
		delete(s.byIdentifier, current.Identifier)
		s.byIdentifier[next.Identifier] = id
	}

	s.identities[id] = next
	return next.Clone(), nil
}

// Delete removes the identity and its balances in one critical section.
func (r *IdentityRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[id]
	if !ok {
		return nil
	}
	delete(s.byIdentifier, identity.Identifier)
	delete(s.identities, id)
	s.purgeOwnerLocked(id)
	return nil
}
