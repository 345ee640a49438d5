// Package memory is an in-process fake of the Storage Port, used by the
// registry and api unit tests as a scratch module graph with no database
// dependency. It is a map-backed generalization
// of the hand-built row-fixture style used elsewhere in this repo's sqlmock
// tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/typedefdb/tddb/internal/storage"
)

type moduleRecord struct {
	versions  map[int64]storage.ModuleInfo
	released  int64
	head      int64
	supported bool
	exists    bool
}

// Store is an in-process, mutex-guarded implementation of storage.Store.
type Store struct {
	mu sync.Mutex

	modules map[string]*moduleRecord

	typeSchemas map[schemaKey]storage.SchemaRecord
	typeParses  map[parseKey]storage.ParseRecord
	funcParses  map[parseKey]storage.ParseRecord

	typeRefs []storage.RefInfo
	funcRefs []storage.RefInfo

	owners  map[string][]storage.OwnerRecord
	pending map[string]storage.RegistrationRequest

	nextVersionTime int64
}

type schemaKey struct {
	module, typeName, version string
}

type parseKey struct {
	module, name, version string
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		modules:     make(map[string]*moduleRecord),
		typeSchemas: make(map[schemaKey]storage.SchemaRecord),
		typeParses:  make(map[parseKey]storage.ParseRecord),
		funcParses:  make(map[parseKey]storage.ParseRecord),
		owners:      make(map[string][]storage.OwnerRecord),
		pending:     make(map[string]storage.RegistrationRequest),
	}
}

func (s *Store) rec(module string) *moduleRecord {
	r, ok := s.modules[module]
	if !ok {
		r = &moduleRecord{versions: make(map[int64]storage.ModuleInfo), supported: true}
		s.modules[module] = r
	}
	return r
}

func (s *Store) ModuleExists(ctx context.Context, module string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.modules[module]
	return ok && r.exists, nil
}

func (s *Store) InitModuleRecord(ctx context.Context, info storage.ModuleInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rec(info.ModuleName)
	r.exists = true
	r.supported = true
	r.versions[info.VersionTime] = info
	r.head = info.VersionTime
	if info.Released {
		r.released = info.VersionTime
	}
	if info.VersionTime > s.nextVersionTime {
		s.nextVersionTime = info.VersionTime
	}
	return nil
}

func (s *Store) AllModuleVersions(ctx context.Context, module string) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.modules[module]
	if !ok {
		return nil, fmt.Errorf("memory: module %s not found", module)
	}
	out := make(map[int64]bool, len(r.versions))
	for vt, info := range r.versions {
		out[vt] = info.Released
	}
	return out, nil
}

func (s *Store) LastReleasedModuleVersion(ctx context.Context, module string) (storage.ModuleInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.modules[module]
	if !ok || r.released == 0 {
		return storage.ModuleInfo{}, fmt.Errorf("memory: no released version for module %s", module)
	}
	return r.versions[r.released], nil
}

func (s *Store) LastModuleVersionIncludingUnreleased(ctx context.Context, module string) (storage.ModuleInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.modules[module]
	if !ok || r.head == 0 {
		return storage.ModuleInfo{}, fmt.Errorf("memory: no version for module %s", module)
	}
	return r.versions[r.head], nil
}

func (s *Store) LoadModuleInfoAt(ctx context.Context, module string, versionTime int64) (storage.ModuleInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.modules[module]
	if !ok {
		return storage.ModuleInfo{}, fmt.Errorf("memory: module %s not found", module)
	}
	info, ok := r.versions[versionTime]
	if !ok {
		return storage.ModuleInfo{}, fmt.Errorf("memory: module %s has no version %d", module, versionTime)
	}
	return info, nil
}

func (s *Store) GenerateNewModuleVersion(ctx context.Context, module string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextVersionTime++
	return s.nextVersionTime, nil
}

func (s *Store) WriteModuleRecord(ctx context.Context, info storage.ModuleInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rec(info.ModuleName)
	r.exists = true
	r.versions[info.VersionTime] = info
	r.head = info.VersionTime
	if info.Released {
		r.released = info.VersionTime
	}
	return nil
}

func (s *Store) SetModuleReleaseVersion(ctx context.Context, module string, versionTime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.modules[module]
	if !ok {
		return fmt.Errorf("memory: module %s not found", module)
	}
	info, ok := r.versions[versionTime]
	if !ok {
		return fmt.Errorf("memory: module %s has no version %d", module, versionTime)
	}
	info.Released = true
	r.versions[versionTime] = info
	r.released = versionTime
	return nil
}

func (s *Store) RemoveModuleVersionIfNotCurrent(ctx context.Context, module string, versionTime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.modules[module]
	if !ok {
		return nil
	}
	delete(r.versions, versionTime)
	if r.head == versionTime {
		var best int64
		for vt := range r.versions {
			if vt > best {
				best = vt
			}
		}
		r.head = best
	}
	if r.released == versionTime {
		r.released = 0
		for vt, info := range r.versions {
			if info.Released && vt > r.released {
				r.released = vt
			}
		}
	}
	return nil
}

func (s *Store) SupportedState(ctx context.Context, module string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.modules[module]
	if !ok {
		return false, fmt.Errorf("memory: module %s not found", module)
	}
	return r.supported, nil
}

func (s *Store) ChangeSupportedState(ctx context.Context, module string, supported bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.modules[module]
	if !ok {
		return fmt.Errorf("memory: module %s not found", module)
	}
	r.supported = supported
	return nil
}

func (s *Store) RemoveModule(ctx context.Context, module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.modules, module)
	delete(s.owners, module)
	delete(s.pending, module)
	for k := range s.typeSchemas {
		if k.module == module {
			delete(s.typeSchemas, k)
		}
	}
	for k := range s.typeParses {
		if k.module == module {
			delete(s.typeParses, k)
		}
	}
	for k := range s.funcParses {
		if k.module == module {
			delete(s.funcParses, k)
		}
	}
	return nil
}

func (s *Store) AllRegisteredModules(ctx context.Context, includeRetired bool) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for name, r := range s.modules {
		if !r.exists {
			continue
		}
		if !includeRetired && !r.supported {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) WriteTypeSchemaRecord(ctx context.Context, rec storage.SchemaRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typeSchemas[schemaKey{rec.ModuleName, rec.TypeName, rec.TypeVersion}] = rec
	return nil
}

func (s *Store) WriteTypeParseRecord(ctx context.Context, rec storage.ParseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typeParses[parseKey{rec.ModuleName, rec.Name, rec.Version}] = rec
	return nil
}

func (s *Store) WriteFuncParseRecord(ctx context.Context, rec storage.ParseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funcParses[parseKey{rec.ModuleName, rec.Name, rec.Version}] = rec
	return nil
}

func (s *Store) GetTypeSchemaRecord(ctx context.Context, module, typeName, version string) (storage.SchemaRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.typeSchemas[schemaKey{module, typeName, version}]
	if !ok {
		return storage.SchemaRecord{}, fmt.Errorf("memory: no schema record for %s.%s-%s", module, typeName, version)
	}
	return rec, nil
}

func (s *Store) GetTypeParseRecord(ctx context.Context, module, typeName, version string) (storage.ParseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.typeParses[parseKey{module, typeName, version}]
	if !ok {
		return storage.ParseRecord{}, fmt.Errorf("memory: no parse record for %s.%s-%s", module, typeName, version)
	}
	return rec, nil
}

func (s *Store) GetFuncParseRecord(ctx context.Context, module, funcName, version string) (storage.ParseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.funcParses[parseKey{module, funcName, version}]
	if !ok {
		return storage.ParseRecord{}, fmt.Errorf("memory: no parse record for %s.%s-%s", module, funcName, version)
	}
	return rec, nil
}

func (s *Store) CheckTypeSchemaRecordExists(ctx context.Context, module, typeName, version string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.typeSchemas[schemaKey{module, typeName, version}]
	return ok, nil
}

func (s *Store) GetAllTypeVersions(ctx context.Context, module, typeName string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool)
	for k, rec := range s.typeParses {
		if k.module == module && k.name == typeName {
			released := false
			if r, ok := s.modules[module]; ok {
				if info, ok := r.versions[rec.ModuleVersion]; ok {
					released = info.Released
				}
			}
			out[k.version] = released
		}
	}
	return out, nil
}

func (s *Store) GetTypeVersionsByMD5(ctx context.Context, module, typeName, md5 string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k, rec := range s.typeSchemas {
		if k.module == module && k.typeName == typeName && rec.MD5 == md5 {
			out = append(out, k.version)
		}
	}
	return out, nil
}

func (s *Store) GetTypeMD5(ctx context.Context, module, typeName, version string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.typeSchemas[schemaKey{module, typeName, version}]
	if !ok {
		return "", fmt.Errorf("memory: no schema record for %s.%s-%s", module, typeName, version)
	}
	return rec.MD5, nil
}

func (s *Store) AddRefs(ctx context.Context, typeRefs, funcRefs []storage.RefInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typeRefs = append(s.typeRefs, typeRefs...)
	s.funcRefs = append(s.funcRefs, funcRefs...)
	return nil
}

func (s *Store) GetTypeRefsByDep(ctx context.Context, module, typeName, version string) ([]storage.RefInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.RefInfo
	for _, r := range s.typeRefs {
		if r.DepModule == module && r.DepName == typeName && r.DepVersion == version {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) GetTypeRefsByRef(ctx context.Context, module, typeName, version string) ([]storage.RefInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.RefInfo
	for _, r := range s.typeRefs {
		if r.RefModule == module && r.RefName == typeName && r.RefVersion == version {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) GetFuncRefsByDep(ctx context.Context, module, funcName, version string) ([]storage.RefInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.RefInfo
	for _, r := range s.funcRefs {
		if r.DepModule == module && r.DepName == funcName && r.DepVersion == version {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) GetFuncRefsByRef(ctx context.Context, module, funcName, version string) ([]storage.RefInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.RefInfo
	for _, r := range s.funcRefs {
		if r.RefModule == module && r.RefName == funcName && r.RefVersion == version {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) GetModuleVersionsForTypeVersion(ctx context.Context, module, typeName, version string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.modules[module]
	if !ok {
		return nil, nil
	}
	var out []int64
	for vt, info := range r.versions {
		if ti, ok := info.Types[typeName]; ok && ti.TypeVersion == version {
			out = append(out, vt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Store) GetOwnersForModule(ctx context.Context, module string) ([]storage.OwnerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.OwnerRecord(nil), s.owners[module]...), nil
}

func (s *Store) AddOwnerToModule(ctx context.Context, owner storage.OwnerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.owners[owner.ModuleName] {
		if o.UserID == owner.UserID {
			s.owners[owner.ModuleName][i] = owner
			return nil
		}
	}
	s.owners[owner.ModuleName] = append(s.owners[owner.ModuleName], owner)
	return nil
}

func (s *Store) RemoveOwnerFromModule(ctx context.Context, module, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []storage.OwnerRecord
	for _, o := range s.owners[module] {
		if o.UserID != userID {
			kept = append(kept, o)
		}
	}
	s.owners[module] = kept
	return nil
}

func (s *Store) GetModulesForOwner(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for module, owners := range s.owners {
		for _, o := range owners {
			if o.UserID == userID {
				out = append(out, module)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) AddNewModuleRegistrationRequest(ctx context.Context, req storage.RegistrationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[req.ModuleName]; ok {
		return fmt.Errorf("memory: registration request for %s already pending", req.ModuleName)
	}
	s.pending[req.ModuleName] = req
	return nil
}

func (s *Store) GetNewModuleRegistrationRequests(ctx context.Context) ([]storage.RegistrationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.RegistrationRequest, 0, len(s.pending))
	for _, r := range s.pending {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModuleName < out[j].ModuleName })
	return out, nil
}

func (s *Store) GetOwnerForNewModuleRegistrationRequest(ctx context.Context, module string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.pending[module]
	if !ok {
		return "", fmt.Errorf("memory: no pending request for %s", module)
	}
	return req.UserID, nil
}

func (s *Store) RemoveNewModuleRegistrationRequest(ctx context.Context, module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, module)
	return nil
}

func (s *Store) RemoveRecordsAtVersion(ctx context.Context, module string, versionTime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, rec := range s.typeParses {
		if k.module == module && rec.ModuleVersion == versionTime {
			delete(s.typeParses, k)
		}
	}
	for k, rec := range s.typeSchemas {
		if k.module == module && rec.ModuleVersion == versionTime {
			delete(s.typeSchemas, k)
		}
	}
	for k, rec := range s.funcParses {
		if k.module == module && rec.ModuleVersion == versionTime {
			delete(s.funcParses, k)
		}
	}
	var keptTypeRefs []storage.RefInfo
	for _, r := range s.typeRefs {
		if r.DepModule == module && r.DepModuleVersion == versionTime {
			continue
		}
		keptTypeRefs = append(keptTypeRefs, r)
	}
	s.typeRefs = keptTypeRefs
	var keptFuncRefs []storage.RefInfo
	for _, r := range s.funcRefs {
		if r.DepModule == module && r.DepModuleVersion == versionTime {
			continue
		}
		keptFuncRefs = append(keptFuncRefs, r)
	}
	s.funcRefs = keptFuncRefs
	if r, ok := s.modules[module]; ok {
		delete(r.versions, versionTime)
	}
	return nil
}

var _ storage.Store = (*Store)(nil)
