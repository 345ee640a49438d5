// Package registry is the Registry Core: it
// orchestrates the compile-diff-save pipeline, enforces ownership/privilege,
// and serves every read path, all under the per-module Lock Manager.
package registry

import (
	"context"
	"log/slog"

	"github.com/typedefdb/tddb/internal/parser"
	"github.com/typedefdb/tddb/internal/storage"
)

// AdminChecker resolves whether a caller holds the global admin bit. The registry core never authenticates a caller itself — that is the
// auth/ package's job — it only asks this interface.
type AdminChecker interface {
	IsAdmin(userID string) bool
}

// Core is the Registry Core. The zero value is not usable; use New.
type Core struct {
	store  storage.Store
	parser parser.Port
	locks  *LockManager
	admin  AdminChecker
	log    *slog.Logger
}

// New constructs a Core. logger may be nil, in which case slog.Default() is
// used.
func New(store storage.Store, p parser.Port, locks *LockManager, admin AdminChecker, logger *slog.Logger) *Core {
	if logger == nil {
		logger = slog.Default()
	}
	return &Core{store: store, parser: p, locks: locks, admin: admin, log: logger}
}

// withReadCtx is a thin wrapper so read paths (reads.go) share the same
// caller-identity convention as writes.
func withReadCtx(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return WithCaller(ctx, userID)
}
