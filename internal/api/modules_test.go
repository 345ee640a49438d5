package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/typedefdb/tddb/internal/storage"
)

func TestGetModuleInfoHandler(t *testing.T) {
	r, store, _ := newTestRouter(fakeAdmin{"root": true})
	ctx := context.Background()
	if err := store.InitModuleRecord(ctx, storage.ModuleInfo{
		ModuleName: "Kb", VersionTime: 1, Released: true,
		Types: map[string]storage.TypeInfo{}, Funcs: map[string]storage.FuncInfo{},
	}); err != nil {
		t.Fatalf("InitModuleRecord: %v", err)
	}

	w := doRequest(r, http.MethodGet, "/v1/modules/Kb", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var info storage.ModuleInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.ModuleName != "Kb" {
		t.Fatalf("unexpected body: %+v", info)
	}

	w = doRequest(r, http.MethodGet, "/v1/modules/Nope", "alice", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown module, got %d: %s", w.Code, w.Body.String())
	}
}

func TestListModulesHandler(t *testing.T) {
	r, store, _ := newTestRouter(fakeAdmin{"root": true})
	ctx := context.Background()
	if err := store.InitModuleRecord(ctx, storage.ModuleInfo{ModuleName: "Kb", VersionTime: 1}); err != nil {
		t.Fatalf("InitModuleRecord: %v", err)
	}
	if err := store.InitModuleRecord(ctx, storage.ModuleInfo{ModuleName: "Other", VersionTime: 1}); err != nil {
		t.Fatalf("InitModuleRecord: %v", err)
	}
	if err := store.ChangeSupportedState(ctx, "Other", false); err != nil {
		t.Fatalf("ChangeSupportedState: %v", err)
	}

	w := doRequest(r, http.MethodGet, "/v1/modules", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var names []string
	if err := json.Unmarshal(w.Body.Bytes(), &names); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(names) != 1 || names[0] != "Kb" {
		t.Fatalf("expected only Kb, got %v", names)
	}

	w = doRequest(r, http.MethodGet, "/v1/modules?retired=true", "alice", "")
	if err := json.Unmarshal(w.Body.Bytes(), &names); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected both modules with retired=true, got %v", names)
	}
}

func TestSaveModuleHandler_RequiresAuth(t *testing.T) {
	r, _, _ := newTestRouter(fakeAdmin{"root": true})
	w := doRequest(r, http.MethodPost, "/v1/modules/Kb/save", "", `{"spec_document":"module Kb {}\n"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a caller identity, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSaveModuleHandler_RejectsMalformedBody(t *testing.T) {
	r, store, _ := newTestRouter(fakeAdmin{"root": true})
	ctx := context.Background()
	if err := store.InitModuleRecord(ctx, storage.ModuleInfo{ModuleName: "Kb", VersionTime: 1}); err != nil {
		t.Fatalf("InitModuleRecord: %v", err)
	}
	w := doRequest(r, http.MethodPost, "/v1/modules/Kb/save", "alice", "{not json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON body, got %d: %s", w.Code, w.Body.String())
	}
}

func TestReleaseModuleHandler_ForbiddenForNonOwner(t *testing.T) {
	r, store, _ := newTestRouter(fakeAdmin{"root": true})
	ctx := context.Background()
	if err := store.InitModuleRecord(ctx, storage.ModuleInfo{ModuleName: "Kb", VersionTime: 1}); err != nil {
		t.Fatalf("InitModuleRecord: %v", err)
	}
	w := doRequest(r, http.MethodPost, "/v1/modules/Kb/release", "mallory", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner release, got %d: %s", w.Code, w.Body.String())
	}
}

func TestStopAndResumeModuleSupportHandlers(t *testing.T) {
	r, store, _ := newTestRouter(fakeAdmin{"root": true})
	ctx := context.Background()
	if err := store.InitModuleRecord(ctx, storage.ModuleInfo{ModuleName: "Kb", VersionTime: 1}); err != nil {
		t.Fatalf("InitModuleRecord: %v", err)
	}

	w := doRequest(r, http.MethodPost, "/v1/modules/Kb/support/stop", "alice", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin stop, got %d", w.Code)
	}

	w = doRequest(r, http.MethodPost, "/v1/modules/Kb/support/stop", "root", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for admin stop, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(r, http.MethodPost, "/v1/modules/Kb/support/resume", "root", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for admin resume, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRemoveModuleHandler(t *testing.T) {
	r, store, _ := newTestRouter(fakeAdmin{"root": true})
	ctx := context.Background()
	if err := store.InitModuleRecord(ctx, storage.ModuleInfo{ModuleName: "Kb", VersionTime: 1}); err != nil {
		t.Fatalf("InitModuleRecord: %v", err)
	}

	w := doRequest(r, http.MethodDelete, "/v1/modules/Kb", "root", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}
	exists, err := store.ModuleExists(ctx, "Kb")
	if err != nil || exists {
		t.Fatalf("expected module removed, got exists=%v err=%v", exists, err)
	}
}

func TestResolveTypeDefHandler(t *testing.T) {
	r, store, _ := newTestRouter(fakeAdmin{"root": true})
	ctx := context.Background()
	if err := store.InitModuleRecord(ctx, storage.ModuleInfo{
		ModuleName: "Kb", VersionTime: 1, Released: true,
		Types: map[string]storage.TypeInfo{"Genome": {TypeVersion: "1.0", Supported: true}},
		Funcs: map[string]storage.FuncInfo{},
	}); err != nil {
		t.Fatalf("InitModuleRecord: %v", err)
	}
	if err := store.SetModuleReleaseVersion(ctx, "Kb", 1); err != nil {
		t.Fatalf("SetModuleReleaseVersion: %v", err)
	}

	w := doRequest(r, http.MethodGet, "/v1/modules/Kb/types/Genome/resolve", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["version"] != "1.0" {
		t.Fatalf("unexpected resolved version: %+v", body)
	}
}
