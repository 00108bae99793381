package store

import (
	"database/sql"
	"fmt"
)

const jarCols = `id, service_id, jar_name, file_size, last_modified, is_third_party,
	file_path, decompile_path, COALESCE(version_no, 0), COALESCE(last_version_no, 0),
	last_error, created_at, updated_at`

const classCols = `id, service_id, class_full_name, file_size, last_modified,
	file_path, decompile_path, COALESCE(source_version_id, 0),
	COALESCE(version_no, 0), COALESCE(last_version_no, 0),
	last_error, created_at, updated_at`

func scanJarFile(row interface{ Scan(...any) error }) (*JarFile, error) {
	var jf JarFile
	var modified, created, updated string
	var thirdParty int
	err := row.Scan(&jf.ID, &jf.ServiceID, &jf.JarName, &jf.FileSize, &modified,
		&thirdParty, &jf.FilePath, &jf.DecompilePath, &jf.VersionNo, &jf.LastVersionNo,
		&jf.LastError, &created, &updated)
	if err != nil {
		return nil, err
	}
	jf.LastModified = parseTime(modified)
	jf.IsThirdParty = thirdParty != 0
	jf.CreatedAt = parseTime(created)
	jf.UpdatedAt = parseTime(updated)
	return &jf, nil
}

func scanClassFile(row interface{ Scan(...any) error }) (*ClassFile, error) {
	var cf ClassFile
	var modified, created, updated string
	err := row.Scan(&cf.ID, &cf.ServiceID, &cf.ClassFullName, &cf.FileSize, &modified,
		&cf.FilePath, &cf.DecompilePath, &cf.SourceVersionID, &cf.VersionNo,
		&cf.LastVersionNo, &cf.LastError, &created, &updated)
	if err != nil {
		return nil, err
	}
	cf.LastModified = parseTime(modified)
	cf.CreatedAt = parseTime(created)
	cf.UpdatedAt = parseTime(updated)
	return &cf, nil
}

// UpsertJarFile inserts jf or refreshes size, mtime and classification on
// the existing (service_id, jar_name) row. Reports whether a row was created.
func (s *Store) UpsertJarFile(jf *JarFile) (created bool, err error) {
	ts := fmtTime(now())
	third := 0
	if jf.IsThirdParty {
		third = 1
	}

	var existingID, existingSize int64
	err = s.db.QueryRow(`SELECT id, file_size FROM jar_files WHERE service_id = ? AND jar_name = ?`,
		jf.ServiceID, jf.JarName).Scan(&existingID, &existingSize)
	switch {
	case err == sql.ErrNoRows:
		res, err := s.db.Exec(`INSERT INTO jar_files (service_id, jar_name, file_size,
			last_modified, is_third_party, file_path, decompile_path, last_error,
			created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, '', '', '', ?, ?)`,
			jf.ServiceID, jf.JarName, jf.FileSize, fmtTime(jf.LastModified), third, ts, ts)
		if err != nil {
			return false, fmt.Errorf("insert jar %s: %w", jf.JarName, err)
		}
		jf.ID, err = res.LastInsertId()
		return true, err
	case err != nil:
		return false, fmt.Errorf("look up jar %s: %w", jf.JarName, err)
	}

	// A size change means different binary content: the row's version
	// assignment no longer applies and is cleared for the next pass.
	if jf.FileSize != existingSize {
		_, err = s.db.Exec(`UPDATE jar_files SET file_size=?, last_modified=?,
			is_third_party=?, version_no=NULL, updated_at=? WHERE id=?`,
			jf.FileSize, fmtTime(jf.LastModified), third, ts, existingID)
	} else {
		_, err = s.db.Exec(`UPDATE jar_files SET file_size=?, last_modified=?,
			is_third_party=?, updated_at=? WHERE id=?`,
			jf.FileSize, fmtTime(jf.LastModified), third, ts, existingID)
	}
	if err != nil {
		return false, fmt.Errorf("update jar %s: %w", jf.JarName, err)
	}
	jf.ID = existingID
	return false, nil
}

// UpsertClassFile is the class-file analogue of UpsertJarFile,
// keyed on (service_id, class_full_name).
func (s *Store) UpsertClassFile(cf *ClassFile) (created bool, err error) {
	ts := fmtTime(now())

	var existingID, existingSize int64
	err = s.db.QueryRow(`SELECT id, file_size FROM class_files WHERE service_id = ? AND class_full_name = ?`,
		cf.ServiceID, cf.ClassFullName).Scan(&existingID, &existingSize)
	switch {
	case err == sql.ErrNoRows:
		res, err := s.db.Exec(`INSERT INTO class_files (service_id, class_full_name,
			file_size, last_modified, file_path, decompile_path, last_error,
			created_at, updated_at)
			VALUES (?, ?, ?, ?, '', '', '', ?, ?)`,
			cf.ServiceID, cf.ClassFullName, cf.FileSize, fmtTime(cf.LastModified), ts, ts)
		if err != nil {
			return false, fmt.Errorf("insert class %s: %w", cf.ClassFullName, err)
		}
		cf.ID, err = res.LastInsertId()
		return true, err
	case err != nil:
		return false, fmt.Errorf("look up class %s: %w", cf.ClassFullName, err)
	}

	if cf.FileSize != existingSize {
		_, err = s.db.Exec(`UPDATE class_files SET file_size=?, last_modified=?,
			version_no=NULL, updated_at=? WHERE id=?`,
			cf.FileSize, fmtTime(cf.LastModified), ts, existingID)
	} else {
		_, err = s.db.Exec(`UPDATE class_files SET file_size=?, last_modified=?, updated_at=?
			WHERE id=?`,
			cf.FileSize, fmtTime(cf.LastModified), ts, existingID)
	}
	if err != nil {
		return false, fmt.Errorf("update class %s: %w", cf.ClassFullName, err)
	}
	cf.ID = existingID
	return false, nil
}

// JarFilesForService returns every JAR row observed for a service.
func (s *Store) JarFilesForService(serviceID int64) ([]*JarFile, error) {
	return s.queryJars(`SELECT `+jarCols+` FROM jar_files WHERE service_id = ? ORDER BY jar_name`, serviceID)
}

// ClassFilesForService returns every class row observed for a service.
func (s *Store) ClassFilesForService(serviceID int64) ([]*ClassFile, error) {
	return s.queryClasses(`SELECT `+classCols+` FROM class_files WHERE service_id = ? ORDER BY class_full_name`, serviceID)
}

// JarFilesByName returns every observation of one jar_name across the fleet.
func (s *Store) JarFilesByName(jarName string) ([]*JarFile, error) {
	return s.queryJars(`SELECT `+jarCols+` FROM jar_files WHERE jar_name = ? ORDER BY id`, jarName)
}

// ClassFilesByName returns every observation of one class_full_name across the fleet.
func (s *Store) ClassFilesByName(classFullName string) ([]*ClassFile, error) {
	return s.queryClasses(`SELECT `+classCols+` FROM class_files WHERE class_full_name = ? ORDER BY id`, classFullName)
}

// GetJarFile fetches one (service, jar_name) row; sql.ErrNoRows when absent.
func (s *Store) GetJarFile(serviceID int64, jarName string) (*JarFile, error) {
	row := s.db.QueryRow(`SELECT `+jarCols+` FROM jar_files
		WHERE service_id = ? AND jar_name = ?`, serviceID, jarName)
	return scanJarFile(row)
}

// GetClassFile fetches one (service, class_full_name) row; sql.ErrNoRows when absent.
func (s *Store) GetClassFile(serviceID int64, classFullName string) (*ClassFile, error) {
	row := s.db.QueryRow(`SELECT `+classCols+` FROM class_files
		WHERE service_id = ? AND class_full_name = ?`, serviceID, classFullName)
	return scanClassFile(row)
}

// DistinctJarNames lists every jar_name known to the store, optionally
// restricted to internal (non-third-party) rows.
func (s *Store) DistinctJarNames(internalOnly bool) ([]string, error) {
	q := `SELECT DISTINCT jar_name FROM jar_files`
	if internalOnly {
		q += ` WHERE is_third_party = 0`
	}
	q += ` ORDER BY jar_name`
	return s.queryStrings(q)
}

// DistinctClassNames lists every class_full_name known to the store.
func (s *Store) DistinctClassNames() ([]string, error) {
	return s.queryStrings(`SELECT DISTINCT class_full_name FROM class_files ORDER BY class_full_name`)
}

// SetJarRetrieved records the local copy of a fetched JAR.
func (s *Store) SetJarRetrieved(id int64, filePath string) error {
	_, err := s.db.Exec(`UPDATE jar_files SET file_path=?, last_error='', updated_at=? WHERE id=?`,
		filePath, fmtTime(now()), id)
	return err
}

// SetJarDecompiled records the decompile output directory for a JAR row.
func (s *Store) SetJarDecompiled(id int64, decompilePath string) error {
	_, err := s.db.Exec(`UPDATE jar_files SET decompile_path=?, last_error='', updated_at=? WHERE id=?`,
		decompilePath, fmtTime(now()), id)
	return err
}

// SetJarFailed records a per-artifact failure without touching prior output.
func (s *Store) SetJarFailed(id int64, cause string) error {
	_, err := s.db.Exec(`UPDATE jar_files SET last_error=?, updated_at=? WHERE id=?`,
		cause, fmtTime(now()), id)
	return err
}

// SetClassRetrieved records the local copy of a fetched class file.
func (s *Store) SetClassRetrieved(id int64, filePath string) error {
	_, err := s.db.Exec(`UPDATE class_files SET file_path=?, last_error='', updated_at=? WHERE id=?`,
		filePath, fmtTime(now()), id)
	return err
}

// SetClassDecompiled records the decompile output directory for a class row.
func (s *Store) SetClassDecompiled(id int64, decompilePath string) error {
	_, err := s.db.Exec(`UPDATE class_files SET decompile_path=?, last_error='', updated_at=? WHERE id=?`,
		decompilePath, fmtTime(now()), id)
	return err
}

// SetClassFailed records a per-artifact failure on a class row.
func (s *Store) SetClassFailed(id int64, cause string) error {
	_, err := s.db.Exec(`UPDATE class_files SET last_error=?, updated_at=? WHERE id=?`,
		cause, fmtTime(now()), id)
	return err
}

// SetClassSourceVersion points a class row at its decompiled source version.
func (s *Store) SetClassSourceVersion(classFileID, sourceVersionID int64) error {
	_, err := s.db.Exec(`UPDATE class_files SET source_version_id=?, updated_at=? WHERE id=?`,
		sourceVersionID, fmtTime(now()), classFileID)
	return err
}

// SearchJarNames returns distinct jar names containing the substring.
func (s *Store) SearchJarNames(query string) ([]string, error) {
	return s.queryStrings(`SELECT DISTINCT jar_name FROM jar_files
		WHERE jar_name LIKE '%' || ? || '%' ORDER BY jar_name`, query)
}

// SearchClassNames returns distinct class names containing the substring.
func (s *Store) SearchClassNames(query string) ([]string, error) {
	return s.queryStrings(`SELECT DISTINCT class_full_name FROM class_files
		WHERE class_full_name LIKE '%' || ? || '%' ORDER BY class_full_name`, query)
}

func (s *Store) queryJars(q string, args ...any) ([]*JarFile, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query jar files: %w", err)
	}
	defer rows.Close()

	var out []*JarFile
	for rows.Next() {
		jf, err := scanJarFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, jf)
	}
	return out, rows.Err()
}

func (s *Store) queryClasses(q string, args ...any) ([]*ClassFile, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query class files: %w", err)
	}
	defer rows.Close()

	var out []*ClassFile
	for rows.Next() {
		cf, err := scanClassFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cf)
	}
	return out, rows.Err()
}

func (s *Store) queryStrings(q string, args ...any) ([]string, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
