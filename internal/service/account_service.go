package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"exchange-core/internal/core/domain"
	"exchange-core/internal/core/ports"
	"exchange-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AccountServiceImpl implements ports.AccountService.
type AccountServiceImpl struct {
	identities  ports.IdentityRepository
	hasher      ports.PasswordHasher
	tokens      ports.TokenIssuer
	revocations ports.RevocationStore // optional
	clock       ports.Clock
	tokenTTL    time.Duration
	log         zerolog.Logger
}

// NewAccountService creates a new AccountServiceImpl. revocations may be nil,
// in which case tokens stay valid until they expire.
func NewAccountService(
	identities ports.IdentityRepository,
	hasher ports.PasswordHasher,
	tokens ports.TokenIssuer,
	revocations ports.RevocationStore,
	clock ports.Clock,
	tokenTTL time.Duration,
	log zerolog.Logger,
) *AccountServiceImpl {
	if clock == nil {
		clock = SystemClock{}
	}
	return &AccountServiceImpl{
		identities:  identities,
		hasher:      hasher,
		tokens:      tokens,
		revocations: revocations,
		clock:       clock,
		tokenTTL:    tokenTTL,
		log:         log,
	}
}

// Register creates a new ACTIVE identity.
func (s *AccountServiceImpl) Register(ctx context.Context, req ports.RegisterRequest) (*domain.Identity, error) {
	identifier := domain.NormalizeIdentifier(req.Identifier)
	if identifier == "" {
		return nil, apperror.Validation("identifier is required")
	}
	if req.Password == "" {
		return nil, apperror.Validation("password is required")
	}
	role := req.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !role.IsValid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown role %q", role))
	}

	existing, err := s.identities.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, apperror.Unavailable(fmt.Errorf("check identifier: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrConflict("identifier already taken")
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash password: %w", err))
	}

	now := s.clock.Now()
	identity := &domain.Identity{
		ID:           uuid.New(),
		Identifier:   identifier,
		PasswordHash: passwordHash,
		Status:       domain.IdentityStatusActive,
		Role:         role,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			return nil, apperror.ErrConflict("identifier already taken")
		}
		return nil, apperror.Unavailable(fmt.Errorf("create identity: %w", err))
	}

	s.log.Info().
		Str("identity_id", identity.ID.String()).
		Str("role", string(identity.Role)).
		Msg("identity registered")

	return identity, nil
}

// Login verifies credentials and issues a bearer token.
// Checks run in order: unknown identifier, wrong password, banned.
func (s *AccountServiceImpl) Login(ctx context.Context, identifier, password string) (*domain.Token, error) {
	identity, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if err := s.verifyPassword(identity, password); err != nil {
		return nil, err
	}

	if identity.IsBanned() {
		return nil, apperror.ErrAccountBanned()
	}

	verifiedDigest := identity.PasswordHash
	var upgraded string
	if s.hasher.NeedsRehash(verifiedDigest) {
		// Best effort; the login itself does not depend on it.
		if upgraded, err = s.hasher.Hash(password); err != nil {
			s.log.Warn().Err(err).Str("identity_id", identity.ID.String()).Msg("password rehash failed")
			upgraded = ""
		}
	}

	now := s.clock.Now()
	updated, err := s.identities.Update(ctx, identity.ID, func(current *domain.Identity) error {
		if current.IsBanned() {
			return apperror.ErrAccountBanned()
		}
		if current.PasswordHash != verifiedDigest {
			// Password changed since it was verified.
			return apperror.ErrInvalidCredentials()
		}
		if upgraded != "" {
			current.PasswordHash = upgraded
		}
		current.LastLoginAt = &now
		return nil
	})
	if err != nil {
		return nil, s.mapUpdateError("record login", err)
	}

	token, err := s.tokens.Issue(updated, s.tokenTTL)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("issue token: %w", err))
	}

	ev := s.log.Info().Str("identity_id", updated.ID.String())
	if upgraded != "" {
		ev = ev.Bool("rehashed", true)
	}
	ev.Msg("login succeeded")

	return token, nil
}

// Authenticate validates a bearer token and checks it against the
// revocation cut-off of its subject.
func (s *AccountServiceImpl) Authenticate(ctx context.Context, tokenString string) (*ports.TokenClaims, error) {
	claims, err := s.tokens.Validate(tokenString)
	if err != nil {
		if apperror.CodeOf(err) == apperror.CodeTokenInvalid {
			return nil, err
		}
		return nil, apperror.Wrap(apperror.CodeTokenInvalid, "Invalid or expired token", http.StatusUnauthorized, err)
	}

	if s.revocations == nil {
		return claims, nil
	}

	cutoff, ok, err := s.revocations.RevokedBefore(ctx, claims.Subject)
	if err != nil {
		return nil, apperror.Unavailable(fmt.Errorf("check revocation: %w", err))
	}
	if ok && claims.IssuedAt.Before(cutoff) {
		return nil, apperror.ErrTokenInvalid()
	}

	return claims, nil
}

// GetIdentity returns the identity with the given id.
func (s *AccountServiceImpl) GetIdentity(ctx context.Context, id uuid.UUID) (*domain.Identity, error) {
	identity, err := s.identities.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Unavailable(fmt.Errorf("get identity: %w", err))
	}
	if identity == nil {
		return nil, apperror.ErrNotFound("account")
	}
	return identity, nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *AccountServiceImpl) ChangePassword(ctx context.Context, identifier, currentPassword, newPassword string) error {
	if newPassword == "" {
		return apperror.Validation("new password is required")
	}

	identity, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		return err
	}

	if err := s.verifyPassword(identity, currentPassword); err != nil {
		return err
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("hash password: %w", err))
	}

	verifiedDigest := identity.PasswordHash
	now := s.clock.Now()
	_, err = s.identities.Update(ctx, identity.ID, func(current *domain.Identity) error {
		if current.PasswordHash != verifiedDigest {
			return apperror.ErrInvalidCredentials()
		}
		current.PasswordHash = newHash
		current.UpdatedAt = now
		return nil
	})
	if err != nil {
		return s.mapUpdateError("change password", err)
	}

	s.revoke(ctx, identity.ID, now, "password changed")
	s.log.Info().Str("identity_id", identity.ID.String()).Msg("password changed")

	return nil
}

// ChangeUsername renames an identity. Renaming to the current identifier is
// a successful no-op.
func (s *AccountServiceImpl) ChangeUsername(ctx context.Context, currentIdentifier, newIdentifier string) (*domain.Identity, error) {
	next := domain.NormalizeIdentifier(newIdentifier)
	if next == "" {
		return nil, apperror.Validation("new identifier is required")
	}

	identity, err := s.findByIdentifier(ctx, currentIdentifier)
	if err != nil {
		return nil, err
	}
	if identity.Identifier == next {
		return identity, nil
	}

	taken, err := s.identities.GetByIdentifier(ctx, next)
	if err != nil {
		return nil, apperror.Unavailable(fmt.Errorf("check identifier: %w", err))
	}
	if taken != nil && taken.ID != identity.ID {
		return nil, apperror.ErrConflict("identifier already taken")
	}

	now := s.clock.Now()
	updated, err := s.identities.Update(ctx, identity.ID, func(current *domain.Identity) error {
		current.Identifier = next
		current.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, s.mapUpdateError("change identifier", err)
	}

	s.log.Info().Str("identity_id", identity.ID.String()).Msg("identifier changed")

	return updated, nil
}

// Ban moves an ACTIVE identity to BANNED.
func (s *AccountServiceImpl) Ban(ctx context.Context, identifier string) error {
	identity, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		return err
	}
	if identity.IsBanned() {
		return apperror.ErrAlreadyBanned()
	}

	now := s.clock.Now()
	_, err = s.identities.Update(ctx, identity.ID, func(current *domain.Identity) error {
		if current.IsBanned() {
			return apperror.ErrAlreadyBanned()
		}
		current.Status = domain.IdentityStatusBanned
		current.UpdatedAt = now
		return nil
	})
	if err != nil {
		return s.mapUpdateError("ban identity", err)
	}

	s.revoke(ctx, identity.ID, now, "identity banned")
	s.log.Warn().Str("identity_id", identity.ID.String()).Msg("identity banned")

	return nil
}

// DeleteAccount removes the identity and its balances after verifying the password.
func (s *AccountServiceImpl) DeleteAccount(ctx context.Context, identifier, password string) error {
	identity, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		return err
	}

	if err := s.verifyPassword(identity, password); err != nil {
		return err
	}

	if err := s.identities.Delete(ctx, identity.ID); err != nil {
		return apperror.Unavailable(fmt.Errorf("delete identity: %w", err))
	}

	s.revoke(ctx, identity.ID, s.clock.Now(), "identity deleted")
	s.log.Info().Str("identity_id", identity.ID.String()).Msg("identity deleted")

	return nil
}

func (s *AccountServiceImpl) findByIdentifier(ctx context.Context, identifier string) (*domain.Identity, error) {
	identity, err := s.identities.GetByIdentifier(ctx, domain.NormalizeIdentifier(identifier))
	if err != nil {
		return nil, apperror.Unavailable(fmt.Errorf("get identity: %w", err))
	}
	if identity == nil {
		return nil, apperror.ErrNotFound("account")
	}
	return identity, nil
}

func (s *AccountServiceImpl) verifyPassword(identity *domain.Identity, password string) error {
	ok, err := s.hasher.Verify(password, identity.PasswordHash)
	if err != nil {
		s.log.Error().Err(err).Str("identity_id", identity.ID.String()).Msg("stored password digest unreadable")
		return apperror.InternalError(fmt.Errorf("verify password: %w", err))
	}
	if !ok {
		return apperror.ErrInvalidCredentials()
	}
	return nil
}

// mapUpdateError translates IdentityRepository.Update failures. Business
// errors raised inside the mutation pass through.
func (s *AccountServiceImpl) mapUpdateError(op string, err error) error {
	var appErr *apperror.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, ports.ErrRecordNotFound):
		return apperror.ErrNotFound("account")
	case errors.Is(err, ports.ErrDuplicate):
		return apperror.ErrConflict("identifier already taken")
	default:
		return apperror.Unavailable(fmt.Errorf("%s: %w", op, err))
	}
}

// revoke records a token cut-off. The state change it follows is already
// committed, so a failure is logged rather than returned.
func (s *AccountServiceImpl) revoke(ctx context.Context, id uuid.UUID, at time.Time, reason string) {
	if s.revocations == nil {
		return
	}
	// iat has second precision; tokens issued within the same second survive.
	cutoff := at.Truncate(time.Second)
	if err := s.revocations.RevokeBefore(ctx, id, cutoff); err != nil {
		s.log.Error().Err(err).
			Str("identity_id", id.String()).
			Str("reason", reason).
			Msg("token revocation failed")
	}
}
