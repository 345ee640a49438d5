package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/typedefdb/tddb/internal/storage"
)

func TestReleaseModule_PromotesPreReleaseEntities(t *testing.T) {
	ctx := context.Background()
	core, store := newTestCore(fakeAdmin{"root": true})

	info := storage.ModuleInfo{
		ModuleName:  "Kb",
		VersionTime: 1,
		Types: map[string]storage.TypeInfo{
			"Genome": {TypeVersion: "0.3", Supported: true},
		},
		Funcs: map[string]storage.FuncInfo{
			"annotate": {FuncVersion: "0.1", Supported: true},
		},
	}
	if err := store.InitModuleRecord(ctx, info); err != nil {
		t.Fatalf("InitModuleRecord: %v", err)
	}
	if err := store.WriteTypeParseRecord(ctx, storage.ParseRecord{ModuleName: "Kb", Name: "Genome", Version: "0.3", ModuleVersion: 1}); err != nil {
		t.Fatalf("WriteTypeParseRecord: %v", err)
	}
	if err := store.WriteTypeSchemaRecord(ctx, storage.SchemaRecord{ModuleName: "Kb", TypeName: "Genome", TypeVersion: "0.3", ModuleVersion: 1}); err != nil {
		t.Fatalf("WriteTypeSchemaRecord: %v", err)
	}
	if err := store.WriteFuncParseRecord(ctx, storage.ParseRecord{ModuleName: "Kb", Name: "annotate", Version: "0.1", ModuleVersion: 1}); err != nil {
		t.Fatalf("WriteFuncParseRecord: %v", err)
	}
	if err := store.AddOwnerToModule(ctx, storage.OwnerRecord{ModuleName: "Kb", UserID: "alice"}); err != nil {
		t.Fatalf("AddOwnerToModule: %v", err)
	}

	if err := core.ReleaseModule(ctx, "mallory", "Kb"); !errors.Is(err, ErrNoSuchPrivilege) {
		t.Fatalf("expected ErrNoSuchPrivilege for non-owner, got %v", err)
	}

	if err := core.ReleaseModule(ctx, "alice", "Kb"); err != nil {
		t.Fatalf("ReleaseModule: %v", err)
	}

	released, err := store.LastReleasedModuleVersion(ctx, "Kb")
	if err != nil {
		t.Fatalf("LastReleasedModuleVersion: %v", err)
	}
	if released.VersionTime == 1 {
		t.Fatal("expected release to mint a new versionTime since pre-release entities existed")
	}
	if got := released.Types["Genome"].TypeVersion; got != "1.0" {
		t.Fatalf("expected Genome promoted to 1.0, got %s", got)
	}
	if got := released.Funcs["annotate"].FuncVersion; got != "1.0" {
		t.Fatalf("expected annotate promoted to 1.0, got %s", got)
	}
}

func TestReleaseModule_NoPreReleaseEntitiesJustFlipsFlag(t *testing.T) {
	ctx := context.Background()
	core, store := newTestCore(fakeAdmin{"root": true})

	info := storage.ModuleInfo{
		ModuleName:  "Kb",
		VersionTime: 5,
		Types: map[string]storage.TypeInfo{
			"Genome": {TypeVersion: "1.0", Supported: true},
		},
		Funcs: map[string]storage.FuncInfo{},
	}
	if err := store.InitModuleRecord(ctx, info); err != nil {
		t.Fatalf("InitModuleRecord: %v", err)
	}
	if err := store.AddOwnerToModule(ctx, storage.OwnerRecord{ModuleName: "Kb", UserID: "alice"}); err != nil {
		t.Fatalf("AddOwnerToModule: %v", err)
	}

	if err := core.ReleaseModule(ctx, "alice", "Kb"); err != nil {
		t.Fatalf("ReleaseModule: %v", err)
	}
	released, err := store.LastReleasedModuleVersion(ctx, "Kb")
	if err != nil {
		t.Fatalf("LastReleasedModuleVersion: %v", err)
	}
	if released.VersionTime != 5 {
		t.Fatalf("expected existing versionTime 5 marked released, got %d", released.VersionTime)
	}
}

func TestStopAndResumeModuleSupport(t *testing.T) {
	ctx := context.Background()
	core, store := newTestCore(fakeAdmin{"root": true})
	if err := store.InitModuleRecord(ctx, moduleInfoFixture("Kb", 1)); err != nil {
		t.Fatalf("InitModuleRecord: %v", err)
	}

	if err := core.StopModuleSupport(ctx, "alice", "Kb"); !errors.Is(err, ErrNoSuchPrivilege) {
		t.Fatalf("expected ErrNoSuchPrivilege for non-admin, got %v", err)
	}
	if err := core.StopModuleSupport(ctx, "root", "Kb"); err != nil {
		t.Fatalf("StopModuleSupport: %v", err)
	}
	supported, err := store.SupportedState(ctx, "Kb")
	if err != nil || supported {
		t.Fatalf("expected module retired, got supported=%v err=%v", supported, err)
	}

	if _, err := core.GetModuleInfo(ctx, "alice", "Kb", false); !errors.Is(err, ErrNoSuchModule) {
		t.Fatalf("expected ErrNoSuchModule for retired module reads, got %v", err)
	}

	if err := core.ResumeModuleSupport(ctx, "root", "Kb"); err != nil {
		t.Fatalf("ResumeModuleSupport: %v", err)
	}
	supported, err = store.SupportedState(ctx, "Kb")
	if err != nil || !supported {
		t.Fatalf("expected module supported again, got supported=%v err=%v", supported, err)
	}
}

func TestRemoveModule(t *testing.T) {
	ctx := context.Background()
	core, store := newTestCore(fakeAdmin{"root": true})
	if err := store.InitModuleRecord(ctx, moduleInfoFixture("Kb", 1)); err != nil {
		t.Fatalf("InitModuleRecord: %v", err)
	}

	if err := core.RemoveModule(ctx, "alice", "Kb"); !errors.Is(err, ErrNoSuchPrivilege) {
		t.Fatalf("expected ErrNoSuchPrivilege for non-admin, got %v", err)
	}
	if err := core.RemoveModule(ctx, "root", "Kb"); err != nil {
		t.Fatalf("RemoveModule: %v", err)
	}
	exists, err := store.ModuleExists(ctx, "Kb")
	if err != nil || exists {
		t.Fatalf("expected module gone, got exists=%v err=%v", exists, err)
	}
}
