// admin.go adapts the identity directory's IsAdmin lookup to the registry
// core's AdminChecker interface, keeping the global admin bit revocable
// without reissuing tokens.
package auth

import (
	"context"
	"log/slog"
)

// adminLookup is the subset of UserRepository that AdminChecker needs.
// Defined here rather than imported to avoid a dependency on the db package
// from the registry's auth boundary.
type adminLookup interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// DBAdminChecker implements registry.AdminChecker by consulting the identity
// directory on every call. JWTs carry no admin claim precisely so that
// revoking admin access takes effect immediately, not at next token refresh.
type DBAdminChecker struct {
	users adminLookup
	log   *slog.Logger
}

// NewDBAdminChecker constructs a DBAdminChecker backed by users.
func NewDBAdminChecker(users adminLookup, logger *slog.Logger) *DBAdminChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &DBAdminChecker{users: users, log: logger}
}

// IsAdmin reports whether userID holds the global admin bit. Lookup errors
// are logged and treated as non-admin rather than propagated, since the
// registry.AdminChecker interface has no error return.
func (c *DBAdminChecker) IsAdmin(userID string) bool {
	isAdmin, err := c.users.IsAdmin(context.Background(), userID)
	if err != nil {
		c.log.Error("admin lookup failed", "user_id", userID, "error", err)
		return false
	}
	return isAdmin
}
