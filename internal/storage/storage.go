// Package storage defines the Storage Port: the persistence interface the
// registry core depends on for module, type, function, reference, owner and
// registration-request state. Concrete adapters live in
// subpackages (postgres, memory); the core never imports them directly.
package storage

import "context"

// ModuleInfo is one committed snapshot of a module — the persisted form of a
// ModuleVersion, keyed by its versionTime.
type ModuleInfo struct {
	ModuleName    string
	VersionTime   int64
	Spec          string
	MD5           string
	Description   string
	UploadedBy    string
	UploadMethod  string
	UploadComment string
	Released      bool
	// IncludedModules maps a dependency module name to the versionTime of
	// the ModuleVersion it was compiled against.
	IncludedModules map[string]int64
	Types           map[string]TypeInfo
	Funcs           map[string]FuncInfo
}

// TypeInfo is a named type's state within one ModuleInfo.
type TypeInfo struct {
	TypeName    string
	TypeVersion string // "<major>.<minor>"
	Supported   bool
}

// FuncInfo is a named function's state within one ModuleInfo.
type FuncInfo struct {
	FuncName    string
	FuncVersion string
	Supported   bool
}

// SchemaRecord is the immutable JSON-Schema document for one type version.
// A (ModuleName, TypeName, MD5) tuple may correspond to several
// TypeVersions.
type SchemaRecord struct {
	ModuleName    string
	TypeName      string
	TypeVersion   string
	ModuleVersion int64
	JSONSchema    string
	MD5           string
}

// ParseRecord is the immutable AST fragment for one type or function at a
// specific version. Exactly one of Typedef/Funcdef is populated.
type ParseRecord struct {
	ModuleName    string
	Name          string
	Version       string
	ModuleVersion int64
	TypedefJSON   []byte
	FuncdefJSON   []byte
}

// RefInfo is a directed dependency edge: the dep-entity depends on the
// ref-entity.
type RefInfo struct {
	DepModule        string
	DepName          string
	DepVersion       string
	DepModuleVersion int64
	RefModule        string
	RefName          string
	RefVersion       string // may be "" at collection time for intra-module refs; back-filled before persisting
	IsFunc           bool   // dep side is a func rather than a type
}

// OwnerRecord is one (module, user) ownership grant.
type OwnerRecord struct {
	ModuleName                string
	UserID                    string
	WithChangeOwnersPrivilege bool
}

// RegistrationRequest is a pending new-module request.
type RegistrationRequest struct {
	ModuleName string
	UserID     string
}

// Store is the full Storage Port capability set the registry core consumes.
// Implementations must make every write atomic on its single key; the core
// composes multi-write operations into logical transactions keyed by
// VersionTime (generated by GenerateNewModuleVersion) and relies on
// RemoveModuleVersionIfNotCurrent for rollback.
type Store interface {
	// Module
	ModuleExists(ctx context.Context, module string) (bool, error)
	InitModuleRecord(ctx context.Context, info ModuleInfo) error
	AllModuleVersions(ctx context.Context, module string) (map[int64]bool, error) // versionTime -> released
	LastReleasedModuleVersion(ctx context.Context, module string) (ModuleInfo, error)
	LastModuleVersionIncludingUnreleased(ctx context.Context, module string) (ModuleInfo, error)
	GenerateNewModuleVersion(ctx context.Context, module string) (int64, error)
	WriteModuleRecord(ctx context.Context, info ModuleInfo) error
	SetModuleReleaseVersion(ctx context.Context, module string, versionTime int64) error
	RemoveModuleVersionIfNotCurrent(ctx context.Context, module string, versionTime int64) error
	SupportedState(ctx context.Context, module string) (bool, error)
	ChangeSupportedState(ctx context.Context, module string, supported bool) error
	RemoveModule(ctx context.Context, module string) error
	AllRegisteredModules(ctx context.Context, includeRetired bool) ([]string, error)

	// Type / Func parse & schema records
	WriteTypeSchemaRecord(ctx context.Context, rec SchemaRecord) error
	WriteTypeParseRecord(ctx context.Context, rec ParseRecord) error
	WriteFuncParseRecord(ctx context.Context, rec ParseRecord) error
	GetTypeSchemaRecord(ctx context.Context, module, typeName, version string) (SchemaRecord, error)
	GetTypeParseRecord(ctx context.Context, module, typeName, version string) (ParseRecord, error)
	GetFuncParseRecord(ctx context.Context, module, funcName, version string) (ParseRecord, error)
	CheckTypeSchemaRecordExists(ctx context.Context, module, typeName, version string) (bool, error)
	GetAllTypeVersions(ctx context.Context, module, typeName string) (map[string]bool, error) // version -> released
	GetTypeVersionsByMD5(ctx context.Context, module, typeName, md5 string) ([]string, error)
	GetTypeMD5(ctx context.Context, module, typeName, version string) (string, error)

	// Refs
	AddRefs(ctx context.Context, typeRefs, funcRefs []RefInfo) error
	GetTypeRefsByDep(ctx context.Context, module, typeName, version string) ([]RefInfo, error)
	GetTypeRefsByRef(ctx context.Context, module, typeName, version string) ([]RefInfo, error)
	GetFuncRefsByDep(ctx context.Context, module, funcName, version string) ([]RefInfo, error)
	GetFuncRefsByRef(ctx context.Context, module, funcName, version string) ([]RefInfo, error)
	GetModuleVersionsForTypeVersion(ctx context.Context, module, typeName, version string) ([]int64, error)

	// Owners / registration requests
	GetOwnersForModule(ctx context.Context, module string) ([]OwnerRecord, error)
	AddOwnerToModule(ctx context.Context, owner OwnerRecord) error
	RemoveOwnerFromModule(ctx context.Context, module, userID string) error
	GetModulesForOwner(ctx context.Context, userID string) ([]string, error)
	AddNewModuleRegistrationRequest(ctx context.Context, req RegistrationRequest) error
	GetNewModuleRegistrationRequests(ctx context.Context) ([]RegistrationRequest, error)
	GetOwnerForNewModuleRegistrationRequest(ctx context.Context, module string) (string, error)
	RemoveNewModuleRegistrationRequest(ctx context.Context, module string) error

	// RemoveRecordsAtVersion deletes every record stamped with versionTime
	// across all collections, used by rollbackModuleTransaction.
	RemoveRecordsAtVersion(ctx context.Context, module string, versionTime int64) error
}
