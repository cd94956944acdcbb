package domain

import (
	"time"

	"github.com/google/uuid"
)

// Token is a signed bearer token issued to an identity. It is never persisted.
type Token struct {
	Value     string    `json:"token"`
	Subject   uuid.UUID `json:"subject"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
