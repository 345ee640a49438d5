package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/typedefdb/tddb/internal/storage"
)

func TestAddAndRemoveOwnerHandlers(t *testing.T) {
	r, store, _ := newTestRouter(fakeAdmin{"root": true})
	ctx := context.Background()
	if err := store.InitModuleRecord(ctx, storage.ModuleInfo{ModuleName: "Kb", VersionTime: 1}); err != nil {
		t.Fatalf("InitModuleRecord: %v", err)
	}

	w := doRequest(r, http.MethodPost, "/v1/modules/Kb/owners", "root", `{"user_id":"alice","with_change_owners_privilege":true}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 adding first owner as admin, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(r, http.MethodPost, "/v1/modules/Kb/owners", "mallory", `{"user_id":"bob"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a non-owner caller, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(r, http.MethodGet, "/v1/owners/alice/modules", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var mods []string
	if err := json.Unmarshal(w.Body.Bytes(), &mods); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(mods) != 1 || mods[0] != "Kb" {
		t.Fatalf("expected [Kb], got %v", mods)
	}

	w = doRequest(r, http.MethodDelete, "/v1/modules/Kb/owners/alice", "root", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 removing owner as admin, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAddOwnerHandler_RejectsMissingUserID(t *testing.T) {
	r, store, _ := newTestRouter(fakeAdmin{"root": true})
	ctx := context.Background()
	if err := store.InitModuleRecord(ctx, storage.ModuleInfo{ModuleName: "Kb", VersionTime: 1}); err != nil {
		t.Fatalf("InitModuleRecord: %v", err)
	}
	w := doRequest(r, http.MethodPost, "/v1/modules/Kb/owners", "root", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing required user_id, got %d: %s", w.Code, w.Body.String())
	}
}
