package memory

import (
	"context"
	"testing"

	"github.com/typedefdb/tddb/internal/storage"
)

func TestInitAndLoadModuleInfoAt(t *testing.T) {
	s := New()
	ctx := context.Background()

	info := storage.ModuleInfo{
		ModuleName:  "Kb",
		VersionTime: 1,
		Spec:        "module Kb {};",
		MD5:         "abc",
		Types:       map[string]storage.TypeInfo{},
		Funcs:       map[string]storage.FuncInfo{},
	}
	if err := s.InitModuleRecord(ctx, info); err != nil {
		t.Fatalf("InitModuleRecord: %v", err)
	}

	exists, err := s.ModuleExists(ctx, "Kb")
	if err != nil || !exists {
		t.Fatalf("ModuleExists: %v %v", exists, err)
	}

	got, err := s.LoadModuleInfoAt(ctx, "Kb", 1)
	if err != nil {
		t.Fatalf("LoadModuleInfoAt: %v", err)
	}
	if got.MD5 != "abc" {
		t.Fatalf("unexpected MD5: %s", got.MD5)
	}
}

func TestReleaseAndRollback(t *testing.T) {
	s := New()
	ctx := context.Background()

	base := storage.ModuleInfo{
		ModuleName: "Kb", VersionTime: 1,
		Types: map[string]storage.TypeInfo{}, Funcs: map[string]storage.FuncInfo{},
	}
	if err := s.InitModuleRecord(ctx, base); err != nil {
		t.Fatalf("InitModuleRecord: %v", err)
	}

	vt, err := s.GenerateNewModuleVersion(ctx, "Kb")
	if err != nil {
		t.Fatalf("GenerateNewModuleVersion: %v", err)
	}
	next := base
	next.VersionTime = vt
	next.Released = true
	if err := s.WriteModuleRecord(ctx, next); err != nil {
		t.Fatalf("WriteModuleRecord: %v", err)
	}
	if err := s.SetModuleReleaseVersion(ctx, "Kb", vt); err != nil {
		t.Fatalf("SetModuleReleaseVersion: %v", err)
	}

	rel, err := s.LastReleasedModuleVersion(ctx, "Kb")
	if err != nil {
		t.Fatalf("LastReleasedModuleVersion: %v", err)
	}
	if rel.VersionTime != vt {
		t.Fatalf("expected released versionTime %d, got %d", vt, rel.VersionTime)
	}

	if err := s.RemoveRecordsAtVersion(ctx, "Kb", vt); err != nil {
		t.Fatalf("RemoveRecordsAtVersion: %v", err)
	}
	if err := s.RemoveModuleVersionIfNotCurrent(ctx, "Kb", vt); err != nil {
		t.Fatalf("RemoveModuleVersionIfNotCurrent: %v", err)
	}
	head, err := s.LastModuleVersionIncludingUnreleased(ctx, "Kb")
	if err != nil {
		t.Fatalf("LastModuleVersionIncludingUnreleased: %v", err)
	}
	if head.VersionTime != base.VersionTime {
		t.Fatalf("expected rollback to restore head %d, got %d", base.VersionTime, head.VersionTime)
	}
}

func TestOwnersAndRegistrationRequests(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.AddOwnerToModule(ctx, storage.OwnerRecord{ModuleName: "Kb", UserID: "alice"}); err != nil {
		t.Fatalf("AddOwnerToModule: %v", err)
	}
	owners, err := s.GetOwnersForModule(ctx, "Kb")
	if err != nil || len(owners) != 1 {
		t.Fatalf("GetOwnersForModule: %v %v", owners, err)
	}

	if err := s.AddNewModuleRegistrationRequest(ctx, storage.RegistrationRequest{ModuleName: "New", UserID: "bob"}); err != nil {
		t.Fatalf("AddNewModuleRegistrationRequest: %v", err)
	}
	owner, err := s.GetOwnerForNewModuleRegistrationRequest(ctx, "New")
	if err != nil || owner != "bob" {
		t.Fatalf("GetOwnerForNewModuleRegistrationRequest: %v %v", owner, err)
	}
	if err := s.RemoveNewModuleRegistrationRequest(ctx, "New"); err != nil {
		t.Fatalf("RemoveNewModuleRegistrationRequest: %v", err)
	}
	if _, err := s.GetOwnerForNewModuleRegistrationRequest(ctx, "New"); err == nil {
		t.Fatalf("expected error after removal")
	}
}
