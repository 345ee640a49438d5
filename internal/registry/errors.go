package registry

import "errors"

// Error kinds surfaced by the Registry Core. Wrapped with %w at the
// point of detection so callers can still errors.Is/As to the underlying
// Storage/Parser Port failure.
var (
	// ErrNoSuchModule means the requested module is unknown or retired.
	ErrNoSuchModule = errors.New("registry: no such module")
	// ErrNoSuchType means resolution did not land on a type record.
	ErrNoSuchType = errors.New("registry: no such type")
	// ErrNoSuchFunc means resolution did not land on a function record.
	ErrNoSuchFunc = errors.New("registry: no such func")
	// ErrNoSuchPrivilege means the caller lacks owner/admin rights.
	ErrNoSuchPrivilege = errors.New("registry: no such privilege")
	// ErrSpecParse covers malformed includes, multi-module specs, duplicate
	// version collisions, pinned-version mismatches, missing schema
	// generation for a registered type, "no difference" no-op saves, and
	// unknown AST node kinds.
	ErrSpecParse = errors.New("registry: spec parse error")
	// ErrTypeStorage wraps any Storage Port failure, surfaced unchanged.
	ErrTypeStorage = errors.New("registry: type storage error")
	// ErrBadJSONSchemaDocument means a stored document failed JSON-Schema
	// parsing.
	ErrBadJSONSchemaDocument = errors.New("registry: bad json schema document")
	// ErrDeadlockSuspected means a lock wait exceeded the configured timeout.
	ErrDeadlockSuspected = errors.New("registry: deadlock suspected")
	// ErrConcurrentModification means a caller-supplied expectedPreviousVersion
	// no longer matches the module's current head.
	ErrConcurrentModification = errors.New("registry: concurrent modification")
)
