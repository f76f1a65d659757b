package types

import "time"

// Role is the authorization level of a user. It is fixed at signup and
// authoritative for every access decision in the system.
type Role string

// Supported roles.
const (
	// RoleConsumer creates pickup requests and accumulates reward points.
	RoleConsumer Role = "consumer"

	// RoleCollector claims, rejects, and completes pickup requests.
	RoleCollector Role = "collector"

	// RoleAdmin has read-only visibility into analytics and the user list.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleConsumer, RoleCollector, RoleAdmin:
		return true
	}
	return false
}

// User represents an account in the system.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Name is the user's display name.
	Name string `json:"name" db:"name"`

	// Phone is the unique phone number the user signs in with.
	Phone string `json:"phone" db:"phone"`

	// Role indicates the user's authorization level.
	Role Role `json:"role" db:"role"`

	// Points is the reward balance. Non-negative, only ever incremented
	// by completed pickups.
	Points int `json:"points" db:"points"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PartySummary is the minimal identity joined into a pickup request for
// its requester and collector.
type PartySummary struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}
