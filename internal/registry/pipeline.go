package registry

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/typedefdb/tddb/internal/ast"
	"github.com/typedefdb/tddb/internal/jsonschemadoc"
	"github.com/typedefdb/tddb/internal/parser"
	"github.com/typedefdb/tddb/internal/storage"
	"github.com/typedefdb/tddb/internal/telemetry"
)

// saveModuleOutcome classifies a completed SaveModule call for the
// save_module_outcomes_total metric.
func saveModuleOutcome(dryRun bool, err error) string {
	if err != nil {
		if errors.Is(err, ErrSpecParse) && strings.Contains(err.Error(), "no difference") {
			return "no_change"
		}
		return "rolled_back"
	}
	if dryRun {
		return "dry_run"
	}
	return "committed"
}

// SaveModuleInput gathers every input to the save-module pipeline (spec
// §4.4).
type SaveModuleInput struct {
	Module                    string
	SpecDocument              string
	AddedTypes                []string
	UnregisteredTypes         []string
	UserID                    string
	DryRun                    bool
	ModuleVersionRestrictions map[string]string
	ExpectedPreviousVersion   *int64
	UploadMethod              string
	UploadComment             string
	Description               string
}

// TypeChange describes the outcome for one modified type; functions are
// not reported here.
type TypeChange struct {
	Unregistered  bool
	NewAbsoluteID string
	JSONSchemaDoc []byte
}

// componentChange is the core's internal bookkeeping record for one changed
// or deleted type/func, mirroring the ComponentChange helper in
// TypeDefinitionDB.java.
type componentChange struct {
	isType     bool
	isDeletion bool
	name       string
	newVersion string
	jsonSchema []byte
	typedef    *ast.Typedef
	funcdef    *ast.Funcdef
	refs       []typeRef
}

// SaveModule runs the full compile-diff-version-persist pipeline (spec
// §4.4). On success it returns the TypeChange map for every modified type.
func (c *Core) SaveModule(ctx context.Context, in SaveModuleInput) (result map[string]TypeChange, err error) {
	start := time.Now()
	defer func() {
		telemetry.SaveModuleDuration.Observe(time.Since(start).Seconds())
		telemetry.SaveModuleOutcomesTotal.WithLabelValues(saveModuleOutcome(in.DryRun, err)).Inc()
	}()

	// Preconditions, checked in order, fail fast.
	if err := c.checkOwnerOrAdmin(ctx, in.UserID, in.Module); err != nil {
		return nil, err
	}
	if err := c.checkModuleSupported(ctx, in.Module); err != nil {
		return nil, err
	}
	if in.ExpectedPreviousVersion != nil {
		head, err := c.store.LastModuleVersionIncludingUnreleased(ctx, in.Module)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTypeStorage, err)
		}
		if head.VersionTime != *in.ExpectedPreviousVersion {
			return nil, fmt.Errorf("%w: expected previous version %d, head is %d",
				ErrConcurrentModification, *in.ExpectedPreviousVersion, head.VersionTime)
		}
	}

	// Step 1: rewrite includes.
	rewritten, directIncludes, err := rewriteIncludes(in.SpecDocument)
	if err != nil {
		return nil, err
	}

	// Step 2: resolve include closure, outside the write lock.
	deps, includedVersions, depInfos, err := resolveIncludeClosure(ctx, c.store, directIncludes, in.ModuleVersionRestrictions)
	if err != nil {
		return nil, err
	}

	// Step 3: compile.
	compiled, err := c.parser.Compile(rewritten, deps)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpecParse, err)
	}
	if compiled.Service == nil || len(compiled.Service.Modules) != 1 {
		return nil, fmt.Errorf("%w: spec must compile to exactly one module", ErrSpecParse)
	}
	newModule := compiled.Service.Modules[0]

	err = c.locks.WithWriteLock(ctx, in.Module, func(ctx context.Context) error {
		result, err = c.commitSaveModule(ctx, in, rewritten, newModule, compiled, includedVersions, directIncludes, depInfos)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Core) commitSaveModule(
	ctx context.Context,
	in SaveModuleInput,
	rewrittenSpec string,
	newModule *ast.Module,
	compiled parser.Result,
	includedVersions map[string]int64,
	directIncludes []string,
	depInfos map[string]storage.ModuleInfo,
) (map[string]TypeChange, error) {
	// Step 5: load current ModuleInfo, compute new MD5.
	info, err := c.store.LastModuleVersionIncludingUnreleased(ctx, in.Module)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTypeStorage, err)
	}
	moduleJSON, err := ast.MarshalModule(newModule)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpecParse, err)
	}
	newMD5 := md5Hex(moduleJSON)

	// Step 6: validate caller-declared type lists.
	addedSet := toSet(in.AddedTypes)
	unregSet := toSet(in.UnregisteredTypes)
	for name := range unregSet {
		if t, ok := info.Types[name]; !ok || !t.Supported {
			return nil, fmt.Errorf("%w: %s is not currently supported", ErrSpecParse, name)
		}
	}
	for name := range addedSet {
		if t, ok := info.Types[name]; ok && t.Supported {
			return nil, fmt.Errorf("%w: %s is already supported", ErrSpecParse, name)
		}
		if unregSet[name] {
			return nil, fmt.Errorf("%w: %s is in both addedTypes and unregisteredTypes", ErrSpecParse, name)
		}
		if newModule.TypedefByName(name) == nil {
			return nil, fmt.Errorf("%w: added type %s has no typedef component", ErrSpecParse, name)
		}
	}

	// Registered set = old supported types U addedTypes \ unregisteredTypes.
	registered := make(map[string]bool)
	for name, t := range info.Types {
		if t.Supported {
			registered[name] = true
		}
	}
	for name := range addedSet {
		registered[name] = true
	}
	for name := range unregSet {
		delete(registered, name)
	}

	var changes []componentChange
	seenTypes := make(map[string]bool)
	seenFuncs := make(map[string]bool)

	// Step 7: classify each component.
	for _, comp := range newModule.Components {
		switch t := comp.(type) {
		case *ast.Typedef:
			if !registered[t.Name] {
				continue // auxiliary alias, not a registered type
			}
			seenTypes[t.Name] = true
			cc, err := c.classifyType(ctx, in.Module, t, info, newModule, registered, depInfos, compiled.JSONSchemas[t.Name], addedSet[t.Name])
			if err != nil {
				return nil, err
			}
			if cc != nil {
				changes = append(changes, *cc)
			}
		case *ast.Funcdef:
			seenFuncs[t.Name] = true
			cc, err := c.classifyFunc(ctx, in.Module, t, info, newModule, registered, depInfos)
			if err != nil {
				return nil, err
			}
			if cc != nil {
				changes = append(changes, *cc)
			}
		}
	}

	// Previously-supported type/func missing from the new AST: implicitly
	// unregistered, logged at warn.
	for name, t := range info.Types {
		if !t.Supported || seenTypes[name] {
			continue
		}
		c.log.Warn("type present in prior version but absent from new spec; implicitly unregistering",
			"module", in.Module, "type", name)
		unregSet[name] = true
		changes = append(changes, componentChange{isType: true, isDeletion: true, name: name})
	}
	for name, f := range info.Funcs {
		if !f.Supported || seenFuncs[name] {
			continue
		}
		changes = append(changes, componentChange{isType: false, isDeletion: true, name: name})
	}

	// Step 9: no-op short-circuit.
	includesUnchanged := includedModulesEqual(info.IncludedModules, includedVersions, directIncludes)
	if info.MD5 == newMD5 && includesUnchanged && len(changes) == 0 {
		if rewrittenSpec == info.Spec {
			return nil, fmt.Errorf("%w: no difference", ErrSpecParse)
		}
	}

	if in.DryRun {
		return buildTypeChangeResult(in.Module, changes), nil
	}

	// Step 10: commit.
	return c.commit(ctx, in, rewrittenSpec, newMD5, info, changes, includedVersions, directIncludes)
}

func (c *Core) classifyType(
	ctx context.Context,
	module string,
	t *ast.Typedef,
	info storage.ModuleInfo,
	newModule *ast.Module,
	registered map[string]bool,
	depInfos map[string]storage.ModuleInfo,
	jsonSchema []byte,
	isNew bool,
) (*componentChange, error) {
	if _, err := jsonschemadoc.Compile(fmt.Sprintf("%s.%s", module, t.Name), jsonSchema); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadJSONSchemaDocument, err)
	}

	var change Change
	if isNew || info.Types[t.Name].TypeVersion == "" {
		change = NotCompatible // new type: always gets a version; treat as a change
	} else {
		oldRec, err := c.store.GetTypeParseRecord(ctx, module, t.Name, info.Types[t.Name].TypeVersion)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTypeStorage, err)
		}
		oldTypedef, err := ast.UnmarshalTypedef(oldRec.TypedefJSON)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSpecParse, err)
		}
		change, err = findChange(oldTypedef, t)
		if err != nil {
			return nil, err
		}
		if change == NoChange {
			oldSchema, err := c.store.GetTypeSchemaRecord(ctx, module, t.Name, info.Types[t.Name].TypeVersion)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrTypeStorage, err)
			}
			if oldSchema.JSONSchema == string(jsonSchema) {
				return nil, nil // unchanged schema bytes: skip
			}
		}
	}

	var newVersion SemanticVersion
	if isNew || info.Types[t.Name].TypeVersion == "" {
		newVersion = newEntityVersion()
	} else {
		prev, err := ParseSemanticVersion(info.Types[t.Name].TypeVersion)
		if err != nil {
			return nil, err
		}
		newVersion = nextVersion(prev, change)
	}

	refs, err := collectRefs(t.AliasType, newModule, registered, depInfos)
	if err != nil {
		return nil, err
	}

	return &componentChange{
		isType:     true,
		name:       t.Name,
		newVersion: newVersion.String(),
		jsonSchema: jsonSchema,
		typedef:    ast.CloneTypedef(t),
		refs:       refs,
	}, nil
}

func (c *Core) classifyFunc(
	ctx context.Context,
	module string,
	f *ast.Funcdef,
	info storage.ModuleInfo,
	newModule *ast.Module,
	registered map[string]bool,
	depInfos map[string]storage.ModuleInfo,
) (*componentChange, error) {
	existing, exists := info.Funcs[f.Name]
	var change Change
	if !exists || existing.FuncVersion == "" {
		change = NotCompatible
	} else {
		oldRec, err := c.store.GetFuncParseRecord(ctx, module, f.Name, existing.FuncVersion)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTypeStorage, err)
		}
		oldFuncdef, err := ast.UnmarshalFuncdef(oldRec.FuncdefJSON)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSpecParse, err)
		}
		change, err = findFuncChange(oldFuncdef, f)
		if err != nil {
			return nil, err
		}
		if change == NoChange {
			return nil, nil // no structural change: skip
		}
	}

	var newVersion SemanticVersion
	if !exists || existing.FuncVersion == "" {
		newVersion = newEntityVersion()
	} else {
		prev, err := ParseSemanticVersion(existing.FuncVersion)
		if err != nil {
			return nil, err
		}
		newVersion = nextVersion(prev, change)
	}

	refs, err := collectFuncRefs(f, newModule, registered, depInfos)
	if err != nil {
		return nil, err
	}

	return &componentChange{
		isType:     false,
		name:       f.Name,
		newVersion: newVersion.String(),
		funcdef:    ast.CloneFuncdef(f),
		refs:       refs,
	}, nil
}

func (c *Core) commit(
	ctx context.Context,
	in SaveModuleInput,
	rewrittenSpec string,
	newMD5 string,
	prevInfo storage.ModuleInfo,
	changes []componentChange,
	includedVersions map[string]int64,
	directIncludes []string,
) (map[string]TypeChange, error) {
	versionTime, err := c.store.GenerateNewModuleVersion(ctx, in.Module)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTypeStorage, err)
	}

	rollback := func(cause error) (map[string]TypeChange, error) {
		c.log.Warn("saveModule rolling back", "module", in.Module, "versionTime", versionTime, "cause", cause)
		if err := c.rollbackModuleTransaction(ctx, in.Module, versionTime); err != nil {
			c.log.Error("rollback failed", "module", in.Module, "versionTime", versionTime, "error", err)
		}
		return nil, cause
	}

	newInfo := storage.ModuleInfo{
		ModuleName:      in.Module,
		VersionTime:     versionTime,
		Spec:            rewrittenSpec,
		MD5:             newMD5,
		Description:     in.Description,
		UploadedBy:      in.UserID,
		UploadMethod:    in.UploadMethod,
		UploadComment:   in.UploadComment,
		Released:        prevInfo.Released,
		IncludedModules: directIncludedVersions(includedVersions, directIncludes),
		Types:           cloneTypeMap(prevInfo.Types),
		Funcs:           cloneFuncMap(prevInfo.Funcs),
	}

	result := make(map[string]TypeChange)

	// First pass: apply every change to newInfo.Types/Funcs and persist the
	// parse/schema records. Refs are attributed in a second pass once
	// newInfo reflects every entity's post-commit version, so intra-module
	// refs collected with refVersion == "" can be resolved against it.
	for _, ch := range changes {
		if ch.isDeletion {
			if ch.isType {
				ti := newInfo.Types[ch.name]
				ti.Supported = false
				newInfo.Types[ch.name] = ti
				result[ch.name] = TypeChange{Unregistered: true}
			} else {
				fi := newInfo.Funcs[ch.name]
				fi.Supported = false
				newInfo.Funcs[ch.name] = fi
			}
			continue
		}

		if ch.isType {
			if err := c.store.WriteTypeParseRecord(ctx, storage.ParseRecord{
				ModuleName: in.Module, Name: ch.name, Version: ch.newVersion,
				ModuleVersion: versionTime, TypedefJSON: mustMarshalTypedef(ch.typedef),
			}); err != nil {
				return rollback(fmt.Errorf("%w: %v", ErrTypeStorage, err))
			}
			if err := c.store.WriteTypeSchemaRecord(ctx, storage.SchemaRecord{
				ModuleName: in.Module, TypeName: ch.name, TypeVersion: ch.newVersion,
				ModuleVersion: versionTime, JSONSchema: string(ch.jsonSchema), MD5: md5Hex(ch.jsonSchema),
			}); err != nil {
				return rollback(fmt.Errorf("%w: %v", ErrTypeStorage, err))
			}
			newInfo.Types[ch.name] = storage.TypeInfo{TypeName: ch.name, TypeVersion: ch.newVersion, Supported: true}
			result[ch.name] = TypeChange{NewAbsoluteID: fmt.Sprintf("%s.%s-%s", in.Module, ch.name, ch.newVersion), JSONSchemaDoc: ch.jsonSchema}
		} else {
			if err := c.store.WriteFuncParseRecord(ctx, storage.ParseRecord{
				ModuleName: in.Module, Name: ch.name, Version: ch.newVersion,
				ModuleVersion: versionTime, FuncdefJSON: mustMarshalFuncdef(ch.funcdef),
			}); err != nil {
				return rollback(fmt.Errorf("%w: %v", ErrTypeStorage, err))
			}
			newInfo.Funcs[ch.name] = storage.FuncInfo{FuncName: ch.name, FuncVersion: ch.newVersion, Supported: true}
		}
	}

	var typeRefs, funcRefs []storage.RefInfo
	for _, ch := range changes {
		if ch.isDeletion {
			continue
		}
		if ch.isType {
			for _, r := range ch.refs {
				typeRefs = append(typeRefs, attributeRef(c.resolveRefVersion(r, in.Module, newInfo), in.Module, ch.name, ch.newVersion, versionTime, false))
			}
		} else {
			for _, r := range ch.refs {
				funcRefs = append(funcRefs, attributeRef(c.resolveRefVersion(r, in.Module, newInfo), in.Module, ch.name, ch.newVersion, versionTime, true))
			}
		}
	}

	if err := c.store.WriteModuleRecord(ctx, newInfo); err != nil {
		return rollback(fmt.Errorf("%w: %v", ErrTypeStorage, err))
	}
	if len(typeRefs) > 0 || len(funcRefs) > 0 {
		if err := c.store.AddRefs(ctx, typeRefs, funcRefs); err != nil {
			return rollback(fmt.Errorf("%w: %v", ErrTypeStorage, err))
		}
	}

	return result, nil
}

// rollbackModuleTransaction deletes every record stamped with versionTime
// and, if that version is still the module's head, points the head back at
// the previous versionTime.
func (c *Core) rollbackModuleTransaction(ctx context.Context, module string, versionTime int64) error {
	if err := c.store.RemoveRecordsAtVersion(ctx, module, versionTime); err != nil {
		return err
	}
	return c.store.RemoveModuleVersionIfNotCurrent(ctx, module, versionTime)
}

func buildTypeChangeResult(module string, changes []componentChange) map[string]TypeChange {
	result := make(map[string]TypeChange)
	for _, ch := range changes {
		if !ch.isType {
			continue
		}
		if ch.isDeletion {
			result[ch.name] = TypeChange{Unregistered: true}
			continue
		}
		result[ch.name] = TypeChange{
			NewAbsoluteID: fmt.Sprintf("%s.%s-%s", module, ch.name, ch.newVersion),
			JSONSchemaDoc: ch.jsonSchema,
		}
	}
	return result
}

// resolveRefVersion back-fills r.refVersion for an intra-module reference
// collected before this commit's version numbers were known. Cross-module
// refs already carry a version from the dependency's loaded ModuleInfo and
// are returned unchanged. newInfo must already reflect every type change
// made by this commit, including types left untouched (carried over from
// prevInfo by cloneTypeMap).
func (c *Core) resolveRefVersion(r typeRef, module string, newInfo storage.ModuleInfo) typeRef {
	if r.refVersion != "" || r.refModule != module {
		return r
	}
	if ti, ok := newInfo.Types[r.refName]; ok {
		r.refVersion = ti.TypeVersion
	}
	return r
}

func attributeRef(r typeRef, depModule, depName, depVersion string, depModuleVersion int64, isFunc bool) storage.RefInfo {
	return storage.RefInfo{
		DepModule: depModule, DepName: depName, DepVersion: depVersion, DepModuleVersion: depModuleVersion,
		RefModule: r.refModule, RefName: r.refName, RefVersion: r.refVersion, IsFunc: isFunc,
	}
}

func directIncludedVersions(all map[string]int64, direct []string) map[string]int64 {
	out := make(map[string]int64, len(direct))
	for _, d := range direct {
		out[d] = all[d]
	}
	return out
}

func includedModulesEqual(old map[string]int64, all map[string]int64, direct []string) bool {
	newMap := directIncludedVersions(all, direct)
	if len(old) != len(newMap) {
		return false
	}
	for k, v := range old {
		if newMap[k] != v {
			return false
		}
	}
	return true
}

func toSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func mustMarshalTypedef(t *ast.Typedef) []byte {
	b, err := ast.MarshalTypedef(t)
	if err != nil {
		panic(err) // unreachable: t was just cloned from a successfully compiled AST
	}
	return b
}

func mustMarshalFuncdef(f *ast.Funcdef) []byte {
	b, err := ast.MarshalFuncdef(f)
	if err != nil {
		panic(err)
	}
	return b
}
