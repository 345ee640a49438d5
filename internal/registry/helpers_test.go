package registry

import (
	"time"

	"github.com/typedefdb/tddb/internal/storage"
	"github.com/typedefdb/tddb/internal/storage/memory"
)

// newTestCore builds a Core over a fresh in-memory Store with a 1s lock
// timeout, short enough to keep deadlock-path tests fast but long enough
// that ordinary test bodies never trip it by accident.
func newTestCore(admin fakeAdmin) (*Core, *memory.Store) {
	store := memory.New()
	core := New(store, nil, NewLockManager(time.Second), admin, nil)
	return core, store
}

func moduleInfoFixture(module string, versionTime int64) storage.ModuleInfo {
	return storage.ModuleInfo{
		ModuleName:  module,
		VersionTime: versionTime,
		Released:    true,
		Types:       map[string]storage.TypeInfo{},
		Funcs:       map[string]storage.FuncInfo{},
	}
}
