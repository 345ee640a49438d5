// Package postgres implements the Storage Port against PostgreSQL, following
// the query style of the repositories in internal/db/repositories
// (database/sql with the lib/pq driver, no ORM).
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/typedefdb/tddb/internal/storage"
)

// Store is a database/sql-backed implementation of storage.Store.
type Store struct {
	db *sql.DB
}

// New wraps an open *sql.DB (see internal/db.Connect) as a Storage Port.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) ModuleExists(ctx context.Context, module string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM modules WHERE module_name = $1)`, module).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check module exists: %w", err)
	}
	return exists, nil
}

func (s *Store) InitModuleRecord(ctx context.Context, info storage.ModuleInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init module record: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO modules (module_name, supported, head_version_time, released_version_time, next_version_time)
		VALUES ($1, TRUE, $2, $3, $4)
		ON CONFLICT (module_name) DO NOTHING
	`, info.ModuleName, info.VersionTime, releasedVersionTimeOrNil(info), info.VersionTime+1)
	if err != nil {
		return fmt.Errorf("init module record: %w", err)
	}
	if err := writeModuleVersionTx(ctx, tx, info); err != nil {
		return err
	}
	return tx.Commit()
}

func releasedVersionTimeOrNil(info storage.ModuleInfo) interface{} {
	if info.Released {
		return info.VersionTime
	}
	return nil
}

func writeModuleVersionTx(ctx context.Context, tx *sql.Tx, info storage.ModuleInfo) error {
	includedJSON, err := json.Marshal(info.IncludedModules)
	if err != nil {
		return fmt.Errorf("marshal included modules: %w", err)
	}
	typesJSON, err := json.Marshal(info.Types)
	if err != nil {
		return fmt.Errorf("marshal types: %w", err)
	}
	funcsJSON, err := json.Marshal(info.Funcs)
	if err != nil {
		return fmt.Errorf("marshal funcs: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO module_versions
			(module_name, version_time, spec, md5, description, uploaded_by, upload_method,
			 upload_comment, released, included_modules, types, funcs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (module_name, version_time) DO UPDATE SET
			spec = EXCLUDED.spec, md5 = EXCLUDED.md5, description = EXCLUDED.description,
			uploaded_by = EXCLUDED.uploaded_by, upload_method = EXCLUDED.upload_method,
			upload_comment = EXCLUDED.upload_comment, released = EXCLUDED.released,
			included_modules = EXCLUDED.included_modules, types = EXCLUDED.types, funcs = EXCLUDED.funcs
	`, info.ModuleName, info.VersionTime, info.Spec, info.MD5, info.Description, info.UploadedBy,
		info.UploadMethod, info.UploadComment, info.Released, includedJSON, typesJSON, funcsJSON)
	if err != nil {
		return fmt.Errorf("write module version: %w", err)
	}
	return nil
}

func (s *Store) AllModuleVersions(ctx context.Context, module string) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version_time, released FROM module_versions WHERE module_name = $1`, module)
	if err != nil {
		return nil, fmt.Errorf("list module versions: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var vt int64
		var released bool
		if err := rows.Scan(&vt, &released); err != nil {
			return nil, fmt.Errorf("scan module version: %w", err)
		}
		out[vt] = released
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("module %s not found", module)
	}
	return out, rows.Err()
}

func scanModuleVersionRow(row *sql.Row) (storage.ModuleInfo, error) {
	var info storage.ModuleInfo
	var includedJSON, typesJSON, funcsJSON []byte
	err := row.Scan(&info.ModuleName, &info.VersionTime, &info.Spec, &info.MD5, &info.Description,
		&info.UploadedBy, &info.UploadMethod, &info.UploadComment, &info.Released,
		&includedJSON, &typesJSON, &funcsJSON)
	if err != nil {
		return storage.ModuleInfo{}, err
	}
	if err := json.Unmarshal(includedJSON, &info.IncludedModules); err != nil {
		return storage.ModuleInfo{}, fmt.Errorf("unmarshal included modules: %w", err)
	}
	if err := json.Unmarshal(typesJSON, &info.Types); err != nil {
		return storage.ModuleInfo{}, fmt.Errorf("unmarshal types: %w", err)
	}
	if err := json.Unmarshal(funcsJSON, &info.Funcs); err != nil {
		return storage.ModuleInfo{}, fmt.Errorf("unmarshal funcs: %w", err)
	}
	return info, nil
}

const moduleVersionCols = `module_name, version_time, spec, md5, description, uploaded_by,
	upload_method, upload_comment, released, included_modules, types, funcs`

func (s *Store) LastReleasedModuleVersion(ctx context.Context, module string) (storage.ModuleInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+moduleVersionCols+`
		FROM module_versions
		WHERE module_name = $1 AND released = TRUE
		ORDER BY version_time DESC
		LIMIT 1
	`, module)
	info, err := scanModuleVersionRow(row)
	if err == sql.ErrNoRows {
		return storage.ModuleInfo{}, fmt.Errorf("no released version for module %s", module)
	}
	if err != nil {
		return storage.ModuleInfo{}, fmt.Errorf("last released module version: %w", err)
	}
	return info, nil
}

func (s *Store) LastModuleVersionIncludingUnreleased(ctx context.Context, module string) (storage.ModuleInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+moduleVersionCols+`
		FROM module_versions
		WHERE module_name = $1
		ORDER BY version_time DESC
		LIMIT 1
	`, module)
	info, err := scanModuleVersionRow(row)
	if err == sql.ErrNoRows {
		return storage.ModuleInfo{}, fmt.Errorf("no version for module %s", module)
	}
	if err != nil {
		return storage.ModuleInfo{}, fmt.Errorf("last module version: %w", err)
	}
	return info, nil
}

// LoadModuleInfoAt implements the historicalModuleLoader extension the
// registry core uses to resolve version-pinned includes and historical
// lookups.
func (s *Store) LoadModuleInfoAt(ctx context.Context, module string, versionTime int64) (storage.ModuleInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+moduleVersionCols+`
		FROM module_versions
		WHERE module_name = $1 AND version_time = $2
	`, module, versionTime)
	info, err := scanModuleVersionRow(row)
	if err == sql.ErrNoRows {
		return storage.ModuleInfo{}, fmt.Errorf("module %s has no version %d", module, versionTime)
	}
	if err != nil {
		return storage.ModuleInfo{}, fmt.Errorf("load module info at: %w", err)
	}
	return info, nil
}

func (s *Store) GenerateNewModuleVersion(ctx context.Context, module string) (int64, error) {
	var next int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE modules SET next_version_time = next_version_time + 1
		WHERE module_name = $1
		RETURNING next_version_time - 1
	`, module).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("generate new module version: %w", err)
	}
	return next, nil
}

func (s *Store) WriteModuleRecord(ctx context.Context, info storage.ModuleInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write module record: %w", err)
	}
	defer tx.Rollback()
	if err := writeModuleVersionTx(ctx, tx, info); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE modules SET head_version_time = $2 WHERE module_name = $1 AND ($3 OR head_version_time < $2)
	`, info.ModuleName, info.VersionTime, info.VersionTime == 0)
	if err != nil {
		return fmt.Errorf("update module head: %w", err)
	}
	if info.Released {
		if _, err := tx.ExecContext(ctx, `
			UPDATE modules SET released_version_time = $2
			WHERE module_name = $1 AND (released_version_time IS NULL OR released_version_time < $2)
		`, info.ModuleName, info.VersionTime); err != nil {
			return fmt.Errorf("update module released version: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) SetModuleReleaseVersion(ctx context.Context, module string, versionTime int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set module release version: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`UPDATE module_versions SET released = TRUE WHERE module_name = $1 AND version_time = $2`,
		module, versionTime); err != nil {
		return fmt.Errorf("mark version released: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE modules SET released_version_time = $2
		WHERE module_name = $1 AND (released_version_time IS NULL OR released_version_time < $2)
	`, module, versionTime); err != nil {
		return fmt.Errorf("update module released version: %w", err)
	}
	return tx.Commit()
}

func (s *Store) RemoveModuleVersionIfNotCurrent(ctx context.Context, module string, versionTime int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM module_versions mv
		WHERE mv.module_name = $1 AND mv.version_time = $2
		  AND NOT EXISTS (
		      SELECT 1 FROM modules m
		      WHERE m.module_name = $1 AND m.head_version_time = $2
		  )
	`, module, versionTime)
	if err != nil {
		return fmt.Errorf("remove module version if not current: %w", err)
	}
	return nil
}

func (s *Store) SupportedState(ctx context.Context, module string) (bool, error) {
	var supported bool
	err := s.db.QueryRowContext(ctx,
		`SELECT supported FROM modules WHERE module_name = $1`, module).Scan(&supported)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("module %s not found", module)
	}
	if err != nil {
		return false, fmt.Errorf("supported state: %w", err)
	}
	return supported, nil
}

func (s *Store) ChangeSupportedState(ctx context.Context, module string, supported bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE modules SET supported = $2 WHERE module_name = $1`, module, supported)
	if err != nil {
		return fmt.Errorf("change supported state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("module %s not found", module)
	}
	return nil
}

func (s *Store) RemoveModule(ctx context.Context, module string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM modules WHERE module_name = $1`, module)
	if err != nil {
		return fmt.Errorf("remove module: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("module %s not found", module)
	}
	for _, table := range []string{"type_schema_records", "type_parse_records", "func_parse_records"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE module_name = $1`, module); err != nil {
			return fmt.Errorf("remove module %s: %w", table, err)
		}
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM refs WHERE dep_module = $1 OR ref_module = $1`, module); err != nil {
		return fmt.Errorf("remove module refs: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM module_registration_requests WHERE module_name = $1`, module); err != nil {
		return fmt.Errorf("remove module registration request: %w", err)
	}
	return nil
}

func (s *Store) AllRegisteredModules(ctx context.Context, includeRetired bool) ([]string, error) {
	query := `SELECT module_name FROM modules`
	if !includeRetired {
		query += ` WHERE supported = TRUE`
	}
	query += ` ORDER BY module_name`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("all registered modules: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan module name: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *Store) WriteTypeSchemaRecord(ctx context.Context, rec storage.SchemaRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO type_schema_records (module_name, type_name, type_version, module_version, json_schema, md5)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (module_name, type_name, type_version) DO UPDATE SET
			module_version = EXCLUDED.module_version, json_schema = EXCLUDED.json_schema, md5 = EXCLUDED.md5
	`, rec.ModuleName, rec.TypeName, rec.TypeVersion, rec.ModuleVersion, rec.JSONSchema, rec.MD5)
	if err != nil {
		return fmt.Errorf("write type schema record: %w", err)
	}
	return nil
}

func (s *Store) WriteTypeParseRecord(ctx context.Context, rec storage.ParseRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO type_parse_records (module_name, name, version, module_version, typedef_json)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (module_name, name, version) DO UPDATE SET
			module_version = EXCLUDED.module_version, typedef_json = EXCLUDED.typedef_json
	`, rec.ModuleName, rec.Name, rec.Version, rec.ModuleVersion, rec.TypedefJSON)
	if err != nil {
		return fmt.Errorf("write type parse record: %w", err)
	}
	return nil
}

func (s *Store) WriteFuncParseRecord(ctx context.Context, rec storage.ParseRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO func_parse_records (module_name, name, version, module_version, funcdef_json)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (module_name, name, version) DO UPDATE SET
			module_version = EXCLUDED.module_version, funcdef_json = EXCLUDED.funcdef_json
	`, rec.ModuleName, rec.Name, rec.Version, rec.ModuleVersion, rec.FuncdefJSON)
	if err != nil {
		return fmt.Errorf("write func parse record: %w", err)
	}
	return nil
}

func (s *Store) GetTypeSchemaRecord(ctx context.Context, module, typeName, version string) (storage.SchemaRecord, error) {
	var rec storage.SchemaRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT module_name, type_name, type_version, module_version, json_schema, md5
		FROM type_schema_records WHERE module_name = $1 AND type_name = $2 AND type_version = $3
	`, module, typeName, version).Scan(&rec.ModuleName, &rec.TypeName, &rec.TypeVersion,
		&rec.ModuleVersion, &rec.JSONSchema, &rec.MD5)
	if err == sql.ErrNoRows {
		return storage.SchemaRecord{}, fmt.Errorf("no schema record for %s.%s-%s", module, typeName, version)
	}
	if err != nil {
		return storage.SchemaRecord{}, fmt.Errorf("get type schema record: %w", err)
	}
	return rec, nil
}

func (s *Store) GetTypeParseRecord(ctx context.Context, module, typeName, version string) (storage.ParseRecord, error) {
	var rec storage.ParseRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT module_name, name, version, module_version, typedef_json
		FROM type_parse_records WHERE module_name = $1 AND name = $2 AND version = $3
	`, module, typeName, version).Scan(&rec.ModuleName, &rec.Name, &rec.Version,
		&rec.ModuleVersion, &rec.TypedefJSON)
	if err == sql.ErrNoRows {
		return storage.ParseRecord{}, fmt.Errorf("no parse record for %s.%s-%s", module, typeName, version)
	}
	if err != nil {
		return storage.ParseRecord{}, fmt.Errorf("get type parse record: %w", err)
	}
	return rec, nil
}

func (s *Store) GetFuncParseRecord(ctx context.Context, module, funcName, version string) (storage.ParseRecord, error) {
	var rec storage.ParseRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT module_name, name, version, module_version, funcdef_json
		FROM func_parse_records WHERE module_name = $1 AND name = $2 AND version = $3
	`, module, funcName, version).Scan(&rec.ModuleName, &rec.Name, &rec.Version,
		&rec.ModuleVersion, &rec.FuncdefJSON)
	if err == sql.ErrNoRows {
		return storage.ParseRecord{}, fmt.Errorf("no parse record for %s.%s-%s", module, funcName, version)
	}
	if err != nil {
		return storage.ParseRecord{}, fmt.Errorf("get func parse record: %w", err)
	}
	return rec, nil
}

func (s *Store) CheckTypeSchemaRecordExists(ctx context.Context, module, typeName, version string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM type_schema_records WHERE module_name = $1 AND type_name = $2 AND type_version = $3)
	`, module, typeName, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check type schema record exists: %w", err)
	}
	return exists, nil
}

func (s *Store) GetAllTypeVersions(ctx context.Context, module, typeName string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tp.version, COALESCE(mv.released, FALSE)
		FROM type_parse_records tp
		LEFT JOIN module_versions mv ON mv.module_name = tp.module_name AND mv.version_time = tp.module_version
		WHERE tp.module_name = $1 AND tp.name = $2
	`, module, typeName)
	if err != nil {
		return nil, fmt.Errorf("get all type versions: %w", err)
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var v string
		var released bool
		if err := rows.Scan(&v, &released); err != nil {
			return nil, fmt.Errorf("scan type version: %w", err)
		}
		out[v] = out[v] || released
	}
	return out, rows.Err()
}

func (s *Store) GetTypeVersionsByMD5(ctx context.Context, module, typeName, md5 string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type_version FROM type_schema_records
		WHERE module_name = $1 AND type_name = $2 AND md5 = $3
	`, module, typeName, md5)
	if err != nil {
		return nil, fmt.Errorf("get type versions by md5: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan type version: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) GetTypeMD5(ctx context.Context, module, typeName, version string) (string, error) {
	var md5 string
	err := s.db.QueryRowContext(ctx, `
		SELECT md5 FROM type_schema_records WHERE module_name = $1 AND type_name = $2 AND type_version = $3
	`, module, typeName, version).Scan(&md5)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no schema record for %s.%s-%s", module, typeName, version)
	}
	if err != nil {
		return "", fmt.Errorf("get type md5: %w", err)
	}
	return md5, nil
}

func (s *Store) AddRefs(ctx context.Context, typeRefs, funcRefs []storage.RefInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("add refs: %w", err)
	}
	defer tx.Rollback()
	for _, r := range append(append([]storage.RefInfo{}, typeRefs...), funcRefs...) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO refs (dep_module, dep_name, dep_version, dep_module_version, ref_module, ref_name, ref_version, is_func)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, r.DepModule, r.DepName, r.DepVersion, r.DepModuleVersion, r.RefModule, r.RefName, r.RefVersion, r.IsFunc)
		if err != nil {
			return fmt.Errorf("insert ref: %w", err)
		}
	}
	return tx.Commit()
}

func queryRefs(ctx context.Context, db *sql.DB, where string, args ...interface{}) ([]storage.RefInfo, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT dep_module, dep_name, dep_version, dep_module_version, ref_module, ref_name, ref_version, is_func
		FROM refs WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query refs: %w", err)
	}
	defer rows.Close()
	var out []storage.RefInfo
	for rows.Next() {
		var r storage.RefInfo
		if err := rows.Scan(&r.DepModule, &r.DepName, &r.DepVersion, &r.DepModuleVersion,
			&r.RefModule, &r.RefName, &r.RefVersion, &r.IsFunc); err != nil {
			return nil, fmt.Errorf("scan ref: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetTypeRefsByDep(ctx context.Context, module, typeName, version string) ([]storage.RefInfo, error) {
	return queryRefs(ctx, s.db, "dep_module = $1 AND dep_name = $2 AND dep_version = $3 AND is_func = FALSE",
		module, typeName, version)
}

func (s *Store) GetTypeRefsByRef(ctx context.Context, module, typeName, version string) ([]storage.RefInfo, error) {
	return queryRefs(ctx, s.db, "ref_module = $1 AND ref_name = $2 AND ref_version = $3 AND is_func = FALSE",
		module, typeName, version)
}

func (s *Store) GetFuncRefsByDep(ctx context.Context, module, funcName, version string) ([]storage.RefInfo, error) {
	return queryRefs(ctx, s.db, "dep_module = $1 AND dep_name = $2 AND dep_version = $3 AND is_func = TRUE",
		module, funcName, version)
}

func (s *Store) GetFuncRefsByRef(ctx context.Context, module, funcName, version string) ([]storage.RefInfo, error) {
	return queryRefs(ctx, s.db, "ref_module = $1 AND ref_name = $2 AND ref_version = $3 AND is_func = TRUE",
		module, funcName, version)
}

func (s *Store) GetModuleVersionsForTypeVersion(ctx context.Context, module, typeName, version string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mv.version_time FROM module_versions mv
		WHERE mv.module_name = $1 AND mv.types->$2->>'TypeVersion' = $3
		ORDER BY mv.version_time
	`, module, typeName, version)
	if err != nil {
		return nil, fmt.Errorf("get module versions for type version: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var vt int64
		if err := rows.Scan(&vt); err != nil {
			return nil, fmt.Errorf("scan module version: %w", err)
		}
		out = append(out, vt)
	}
	return out, rows.Err()
}

func (s *Store) GetOwnersForModule(ctx context.Context, module string) ([]storage.OwnerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT module_name, user_id, with_change_owners_privilege FROM module_owners WHERE module_name = $1
	`, module)
	if err != nil {
		return nil, fmt.Errorf("get owners for module: %w", err)
	}
	defer rows.Close()
	var out []storage.OwnerRecord
	for rows.Next() {
		var o storage.OwnerRecord
		if err := rows.Scan(&o.ModuleName, &o.UserID, &o.WithChangeOwnersPrivilege); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) AddOwnerToModule(ctx context.Context, owner storage.OwnerRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO module_owners (module_name, user_id, with_change_owners_privilege)
		VALUES ($1, $2, $3)
		ON CONFLICT (module_name, user_id) DO UPDATE SET with_change_owners_privilege = EXCLUDED.with_change_owners_privilege
	`, owner.ModuleName, owner.UserID, owner.WithChangeOwnersPrivilege)
	if err != nil {
		return fmt.Errorf("add owner to module: %w", err)
	}
	return nil
}

func (s *Store) RemoveOwnerFromModule(ctx context.Context, module, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM module_owners WHERE module_name = $1 AND user_id = $2`, module, userID)
	if err != nil {
		return fmt.Errorf("remove owner from module: %w", err)
	}
	return nil
}

func (s *Store) GetModulesForOwner(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT module_name FROM module_owners WHERE user_id = $1 ORDER BY module_name`, userID)
	if err != nil {
		return nil, fmt.Errorf("get modules for owner: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan module name: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *Store) AddNewModuleRegistrationRequest(ctx context.Context, req storage.RegistrationRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO module_registration_requests (module_name, user_id) VALUES ($1, $2)
	`, req.ModuleName, req.UserID)
	if err != nil {
		return fmt.Errorf("add new module registration request: %w", err)
	}
	return nil
}

func (s *Store) GetNewModuleRegistrationRequests(ctx context.Context) ([]storage.RegistrationRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT module_name, user_id FROM module_registration_requests ORDER BY module_name`)
	if err != nil {
		return nil, fmt.Errorf("get new module registration requests: %w", err)
	}
	defer rows.Close()
	var out []storage.RegistrationRequest
	for rows.Next() {
		var r storage.RegistrationRequest
		if err := rows.Scan(&r.ModuleName, &r.UserID); err != nil {
			return nil, fmt.Errorf("scan registration request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetOwnerForNewModuleRegistrationRequest(ctx context.Context, module string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM module_registration_requests WHERE module_name = $1`, module).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no pending request for %s", module)
	}
	if err != nil {
		return "", fmt.Errorf("get owner for new module registration request: %w", err)
	}
	return userID, nil
}

func (s *Store) RemoveNewModuleRegistrationRequest(ctx context.Context, module string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM module_registration_requests WHERE module_name = $1`, module)
	if err != nil {
		return fmt.Errorf("remove new module registration request: %w", err)
	}
	return nil
}

func (s *Store) RemoveRecordsAtVersion(ctx context.Context, module string, versionTime int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("remove records at version: %w", err)
	}
	defer tx.Rollback()

	stmts := []struct {
		query string
		args  []interface{}
	}{
		{`DELETE FROM type_parse_records WHERE module_name = $1 AND module_version = $2`, []interface{}{module, versionTime}},
		{`DELETE FROM type_schema_records WHERE module_name = $1 AND module_version = $2`, []interface{}{module, versionTime}},
		{`DELETE FROM func_parse_records WHERE module_name = $1 AND module_version = $2`, []interface{}{module, versionTime}},
		{`DELETE FROM refs WHERE dep_module = $1 AND dep_module_version = $2`, []interface{}{module, versionTime}},
		{`DELETE FROM module_versions WHERE module_name = $1 AND version_time = $2`, []interface{}{module, versionTime}},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
			return fmt.Errorf("remove records at version: %w", err)
		}
	}
	return tx.Commit()
}

var _ storage.Store = (*Store)(nil)
