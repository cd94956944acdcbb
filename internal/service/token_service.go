package service

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"exchange-core/internal/core/domain"
	"exchange-core/internal/core/ports"
	"exchange-core/pkg/apperror"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// jwtClaims is the wire form of a bearer token.
type jwtClaims struct {
	Identifier string `json:"idf"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// JWTTokenIssuer implements ports.TokenIssuer using HS256 JWT.
type JWTTokenIssuer struct {
	secret []byte
	issuer string
	clock  ports.Clock
	parser *jwt.Parser
}

// NewJWTTokenIssuer creates a new JWT token issuer. A nil clock means SystemClock.
func NewJWTTokenIssuer(secret string, issuer string, clock ports.Clock) *JWTTokenIssuer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &JWTTokenIssuer{
		secret: []byte(secret),
		issuer: issuer,
		clock:  clock,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(clock.Now),
		),
	}
}

// Issue creates a signed JWT for the given identity.
func (s *JWTTokenIssuer) Issue(identity *domain.Identity, ttl time.Duration) (*domain.Token, error) {
	if identity == nil {
		return nil, errors.New("issue token: nil identity")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("issue token: non-positive ttl %s", ttl)
	}

	// NumericDate has second precision; keep the returned times consistent with it.
	now := s.clock.Now().UTC().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	claims := jwtClaims{
		Identifier: identity.Identifier,
		Role:       string(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity.ID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}

	return &domain.Token{
		Value:     tokenString,
		Subject:   identity.ID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// Validate parses and validates a JWT token, returning the claims.
// Every failure is reported as TokenInvalid.
func (s *JWTTokenIssuer) Validate(tokenString string) (*ports.TokenClaims, error) {
	claims := &jwtClaims{}
	token, err := s.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, invalidToken(fmt.Errorf("parsing token: %w", err))
	}
	if !token.Valid {
		return nil, invalidToken(errors.New("invalid token claims"))
	}

	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, invalidToken(fmt.Errorf("invalid subject in token: %w", err))
	}
	if claims.IssuedAt == nil {
		return nil, invalidToken(errors.New("missing iat claim"))
	}
	role := domain.Role(claims.Role)
	if !role.IsValid() {
		return nil, invalidToken(fmt.Errorf("invalid role claim %q", claims.Role))
	}

	return &ports.TokenClaims{
		TokenID:    claims.ID,
		Subject:    subject,
		Identifier: claims.Identifier,
		Role:       role,
		IssuedAt:   claims.IssuedAt.Time,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}

func invalidToken(err error) *apperror.AppError {
	return apperror.Wrap(apperror.CodeTokenInvalid, "Invalid or expired token", http.StatusUnauthorized, err)
}
