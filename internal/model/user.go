package model

import (
	"strings"
	"time"
)

// Role is the authorization role carried in the access token's "role"
// claim.  Tokens are issued by the identity service; this service only
// reads the claim.
type Role string

const (
	RoleStudent  Role = "STUDENT"
	RoleChef     Role = "CHEF"
	RoleReceiver Role = "RECEIVER"
	RoleAdmin    Role = "ADMIN"
	// RoleSystem is never present in a token.  It marks transitions driven
	// by the payment callback or the background sweeper.
	RoleSystem Role = "SYSTEM"
)

// ParseRole normalizes a role claim.  SYSTEM is refused so that a forged
// token can not impersonate internal actors.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleStudent, RoleChef, RoleReceiver, RoleAdmin:
		return r, true
	}
	return "", false
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   uint64
	Role Role
}

// SystemActor is used for automatic transitions.
var SystemActor = Actor{Role: RoleSystem}

// Student mirrors the `students` table.  TrustScore starts at zero; a
// negative score blocks new reservations.
//
// Fields:
//  ID         – student id, equal to the token subject.
//  Name       – display name.
//  TrustScore – current reliability score.
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last update timestamp.
type Student struct {
	ID         uint64    `json:"id"`
	Name       string    `json:"name"`
	TrustScore int       `json:"trust_score"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TrustEvent is one append-only row of the trust score ledger.  Penalties
// carry the reservation id, which is unique across the ledger.
type TrustEvent struct {
	ID            uint64    `json:"id"`
	StudentID     uint64    `json:"student_id"`
	ReservationID *uint64   `json:"reservation_id,omitempty"`
	Delta         int       `json:"delta"`
	Reason        string    `json:"reason"`
	ActorID       *uint64   `json:"actor_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
