// Package models - user.go defines the User model: the identity directory
// backing the registry's global admin bit. TDDB itself only
// needs "is this caller a global admin"; per-module ownership is tracked by
// the Storage Port's OwnerRecord, not here.
package models

import "time"

// User represents an account known to the identity directory.
type User struct {
	ID        string
	Email     string
	Name      string
	IsAdmin   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
