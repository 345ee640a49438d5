package auth

import (
	"context"
	"errors"
	"testing"
)

type fakeAdminLookup struct {
	isAdmin bool
	err     error
}

func (f fakeAdminLookup) IsAdmin(ctx context.Context, userID string) (bool, error) {
	return f.isAdmin, f.err
}

func TestDBAdminChecker_IsAdmin(t *testing.T) {
	checker := NewDBAdminChecker(fakeAdminLookup{isAdmin: true}, nil)
	if !checker.IsAdmin("user-1") {
		t.Error("expected IsAdmin = true")
	}
}

func TestDBAdminChecker_NotAdmin(t *testing.T) {
	checker := NewDBAdminChecker(fakeAdminLookup{isAdmin: false}, nil)
	if checker.IsAdmin("user-1") {
		t.Error("expected IsAdmin = false")
	}
}

func TestDBAdminChecker_LookupError(t *testing.T) {
	checker := NewDBAdminChecker(fakeAdminLookup{err: errors.New("db down")}, nil)
	if checker.IsAdmin("user-1") {
		t.Error("expected IsAdmin = false on lookup error")
	}
}
