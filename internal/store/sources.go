package store

import (
	"database/sql"
	"fmt"
)

const sourceVersionCols = `id, java_source_file_id, version, file_path, file_content,
	file_size, file_hash, line_count, created_at, updated_at`

func scanSourceVersion(row interface{ Scan(...any) error }) (*SourceVersion, error) {
	var sv SourceVersion
	var created, updated string
	err := row.Scan(&sv.ID, &sv.SourceIdentityID, &sv.Version, &sv.FilePath,
		&sv.FileContent, &sv.FileSize, &sv.FileHash, &sv.LineCount, &created, &updated)
	if err != nil {
		return nil, err
	}
	sv.CreatedAt = parseTime(created)
	sv.UpdatedAt = parseTime(updated)
	return &sv, nil
}

// GetOrCreateIdentity returns the SourceIdentity for a fully-qualified
// class name, creating it on first sight. Concurrent creation races are
// resolved by the retry-once policy on the unique name index.
func (s *Store) GetOrCreateIdentity(classFullName string) (*SourceIdentity, error) {
	for attempt := 0; attempt < 2; attempt++ {
		ident, err := s.GetIdentity(classFullName)
		if err == nil {
			return ident, nil
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("look up identity %s: %w", classFullName, err)
		}

		ts := fmtTime(now())
		res, err := s.db.Exec(`INSERT INTO java_source_files (class_full_name, created_at, updated_at)
			VALUES (?, ?, ?)`, classFullName, ts, ts)
		if err != nil {
			if IsConflict(err) {
				continue // someone else inserted it; re-read
			}
			return nil, fmt.Errorf("insert identity %s: %w", classFullName, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		return &SourceIdentity{ID: id, ClassFullName: classFullName}, nil
	}
	return s.GetIdentity(classFullName)
}

// GetIdentity fetches the identity row for a class name; sql.ErrNoRows when absent.
func (s *Store) GetIdentity(classFullName string) (*SourceIdentity, error) {
	var ident SourceIdentity
	var created, updated string
	err := s.db.QueryRow(`SELECT id, class_full_name, created_at, updated_at
		FROM java_source_files WHERE class_full_name = ?`, classFullName).
		Scan(&ident.ID, &ident.ClassFullName, &created, &updated)
	if err != nil {
		return nil, err
	}
	ident.CreatedAt = parseTime(created)
	ident.UpdatedAt = parseTime(updated)
	return &ident, nil
}

// FindSourceVersion looks up the version row for (identity, content hash);
// sql.ErrNoRows when absent.
func (s *Store) FindSourceVersion(identityID int64, fileHash string) (*SourceVersion, error) {
	row := s.db.QueryRow(`SELECT `+sourceVersionCols+` FROM java_source_file_versions
		WHERE java_source_file_id = ? AND file_hash = ?`, identityID, fileHash)
	return scanSourceVersion(row)
}

// GetSourceVersion fetches a version row by id.
func (s *Store) GetSourceVersion(id int64) (*SourceVersion, error) {
	row := s.db.QueryRow(`SELECT `+sourceVersionCols+` FROM java_source_file_versions
		WHERE id = ?`, id)
	return scanSourceVersion(row)
}

// GetOrCreateSourceVersion deduplicates on (identity, hash): an existing row
// is reused, otherwise sv is inserted. A lost insert race falls back to the
// winner's row. Reports whether a new row was created.
func (s *Store) GetOrCreateSourceVersion(sv *SourceVersion) (created bool, err error) {
	existing, err := s.FindSourceVersion(sv.SourceIdentityID, sv.FileHash)
	if err == nil {
		*sv = *existing
		return false, nil
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("look up source version: %w", err)
	}

	ts := fmtTime(now())
	res, err := s.db.Exec(`INSERT INTO java_source_file_versions
		(java_source_file_id, version, file_path, file_content, file_size, file_hash,
		 line_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sv.SourceIdentityID, sv.Version, sv.FilePath, sv.FileContent, sv.FileSize,
		sv.FileHash, sv.LineCount, ts, ts)
	if err != nil {
		if IsConflict(err) {
			existing, err2 := s.FindSourceVersion(sv.SourceIdentityID, sv.FileHash)
			if err2 != nil {
				return false, fmt.Errorf("reread after conflict: %w", err2)
			}
			*sv = *existing
			return false, nil
		}
		return false, fmt.Errorf("insert source version: %w", err)
	}
	sv.ID, err = res.LastInsertId()
	return true, err
}

// SetSourceVersionLabel rewrites the version token set for a version row.
func (s *Store) SetSourceVersionLabel(id int64, label string) error {
	_, err := s.db.Exec(`UPDATE java_source_file_versions SET version=?, updated_at=? WHERE id=?`,
		label, fmtTime(now()), id)
	return err
}

// LinkJarSource records that a JAR row contains a source version.
// Linking the same pair twice is a no-op.
func (s *Store) LinkJarSource(jarFileID, sourceVersionID int64) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO java_source_in_jar_files
		(jar_file_id, java_source_file_version_id, created_at) VALUES (?, ?, ?)`,
		jarFileID, sourceVersionID, fmtTime(now()))
	if err != nil {
		return fmt.Errorf("link jar %d to source version %d: %w", jarFileID, sourceVersionID, err)
	}
	return nil
}

// SourceVersionsForJar returns the versions linked from one JAR row,
// keyed by class full name.
func (s *Store) SourceVersionsForJar(jarFileID int64) (map[string]*SourceVersion, error) {
	rows, err := s.db.Query(`SELECT f.class_full_name, v.id, v.java_source_file_id,
		v.version, v.file_path, v.file_content, v.file_size, v.file_hash, v.line_count,
		v.created_at, v.updated_at
		FROM java_source_in_jar_files l
		JOIN java_source_file_versions v ON v.id = l.java_source_file_version_id
		JOIN java_source_files f ON f.id = v.java_source_file_id
		WHERE l.jar_file_id = ?`, jarFileID)
	if err != nil {
		return nil, fmt.Errorf("source versions for jar %d: %w", jarFileID, err)
	}
	defer rows.Close()

	out := make(map[string]*SourceVersion)
	for rows.Next() {
		var name string
		var sv SourceVersion
		var created, updated string
		if err := rows.Scan(&name, &sv.ID, &sv.SourceIdentityID, &sv.Version, &sv.FilePath,
			&sv.FileContent, &sv.FileSize, &sv.FileHash, &sv.LineCount, &created, &updated); err != nil {
			return nil, err
		}
		sv.CreatedAt = parseTime(created)
		sv.UpdatedAt = parseTime(updated)
		out[name] = &sv
	}
	return out, rows.Err()
}

// LinkedVersionIDsForJar returns the source-version ids linked from one JAR row.
func (s *Store) LinkedVersionIDsForJar(jarFileID int64) ([]int64, error) {
	rows, err := s.db.Query(`SELECT java_source_file_version_id
		FROM java_source_in_jar_files WHERE jar_file_id = ?`, jarFileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ReplaceJarLinks deletes a JAR row's links and relinks it to the given
// version ids, in one transaction. Used when merging rows of the same
// assigned version.
func (s *Store) ReplaceJarLinks(jarFileID int64, versionIDs []int64) error {
	return s.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM java_source_in_jar_files WHERE jar_file_id = ?`, jarFileID); err != nil {
			return fmt.Errorf("clear links for jar %d: %w", jarFileID, err)
		}
		ts := fmtTime(now())
		for _, vid := range versionIDs {
			if _, err := tx.Exec(`INSERT OR IGNORE INTO java_source_in_jar_files
				(jar_file_id, java_source_file_version_id, created_at) VALUES (?, ?, ?)`,
				jarFileID, vid, ts); err != nil {
				return fmt.Errorf("relink jar %d: %w", jarFileID, err)
			}
		}
		return nil
	})
}

// OrphanCount is the dry-run report line of the orphan sweeper.
type OrphanCount struct {
	SourceIdentityID int64
	ClassFullName    string
	VersionIDs       []int64
}

const orphanPredicate = `
	NOT EXISTS (SELECT 1 FROM class_files c WHERE c.source_version_id = v.id)
	AND NOT EXISTS (SELECT 1 FROM java_source_in_jar_files l WHERE l.java_source_file_version_id = v.id)`

// OrphanSourceVersions finds versions referenced by neither a class row nor
// a jar link, grouped by identity.
func (s *Store) OrphanSourceVersions() ([]OrphanCount, error) {
	return s.orphanVersions(`SELECT v.id, f.id, f.class_full_name
		FROM java_source_file_versions v
		JOIN java_source_files f ON f.id = v.java_source_file_id
		WHERE `+orphanPredicate+`
		ORDER BY f.class_full_name, v.id`)
}

// OrphanSourceVersionsForService narrows the orphan search to identities
// the given service references: its class rows carry the identity's name,
// or its jar rows link a sibling version of the identity.
func (s *Store) OrphanSourceVersionsForService(serviceID int64) ([]OrphanCount, error) {
	return s.orphanVersions(`SELECT v.id, f.id, f.class_full_name
		FROM java_source_file_versions v
		JOIN java_source_files f ON f.id = v.java_source_file_id
		WHERE `+orphanPredicate+`
		  AND (EXISTS (SELECT 1 FROM class_files c2
				WHERE c2.service_id = ? AND c2.class_full_name = f.class_full_name)
		    OR EXISTS (SELECT 1 FROM java_source_in_jar_files l2
				JOIN java_source_file_versions v2 ON v2.id = l2.java_source_file_version_id
				JOIN jar_files j ON j.id = l2.jar_file_id
				WHERE j.service_id = ? AND v2.java_source_file_id = f.id))
		ORDER BY f.class_full_name, v.id`, serviceID, serviceID)
}

func (s *Store) orphanVersions(query string, args ...any) ([]OrphanCount, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("find orphan source versions: %w", err)
	}
	defer rows.Close()

	var out []OrphanCount
	byIdentity := make(map[int64]int)
	for rows.Next() {
		var versionID, identityID int64
		var name string
		if err := rows.Scan(&versionID, &identityID, &name); err != nil {
			return nil, err
		}
		idx, ok := byIdentity[identityID]
		if !ok {
			idx = len(out)
			byIdentity[identityID] = idx
			out = append(out, OrphanCount{SourceIdentityID: identityID, ClassFullName: name})
		}
		out[idx].VersionIDs = append(out[idx].VersionIDs, versionID)
	}
	return out, rows.Err()
}

// DeleteOrphanVersions removes one identity's orphaned versions, and the
// identity itself if no versions remain, in a single transaction.
func (s *Store) DeleteOrphanVersions(o OrphanCount) (identityRemoved bool, err error) {
	err = s.WithTx(func(tx *sql.Tx) error {
		for _, vid := range o.VersionIDs {
			if _, err := tx.Exec(`DELETE FROM java_source_file_versions WHERE id = ?`, vid); err != nil {
				return fmt.Errorf("delete source version %d: %w", vid, err)
			}
		}
		var remaining int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM java_source_file_versions
			WHERE java_source_file_id = ?`, o.SourceIdentityID).Scan(&remaining); err != nil {
			return err
		}
		if remaining == 0 {
			if _, err := tx.Exec(`DELETE FROM java_source_files WHERE id = ?`, o.SourceIdentityID); err != nil {
				return fmt.Errorf("delete identity %d: %w", o.SourceIdentityID, err)
			}
			identityRemoved = true
		}
		return nil
	})
	return identityRemoved, err
}
