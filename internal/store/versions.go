package store

import (
	"database/sql"
	"fmt"
)

// AssignJarVersions writes the size→version mapping for one jar_name and
// fans last_version_no out to every row of that name, in one transaction.
// Readers see either the old numbering or the new, never a mix.
func (s *Store) AssignJarVersions(jarName string, sizeToVersion map[int64]int64, lastVersion int64) error {
	return s.WithTx(func(tx *sql.Tx) error {
		ts := fmtTime(now())
		for size, version := range sizeToVersion {
			if _, err := tx.Exec(`UPDATE jar_files SET version_no=?, updated_at=?
				WHERE jar_name=? AND file_size=?`, version, ts, jarName, size); err != nil {
				return fmt.Errorf("assign version for %s size %d: %w", jarName, size, err)
			}
		}
		if _, err := tx.Exec(`UPDATE jar_files SET last_version_no=?, updated_at=?
			WHERE jar_name=?`, lastVersion, ts, jarName); err != nil {
			return fmt.Errorf("set last version for %s: %w", jarName, err)
		}
		return nil
	})
}

// AssignClassVersions is the class-file analogue of AssignJarVersions.
func (s *Store) AssignClassVersions(classFullName string, sizeToVersion map[int64]int64, lastVersion int64) error {
	return s.WithTx(func(tx *sql.Tx) error {
		ts := fmtTime(now())
		for size, version := range sizeToVersion {
			if _, err := tx.Exec(`UPDATE class_files SET version_no=?, updated_at=?
				WHERE class_full_name=? AND file_size=?`, version, ts, classFullName, size); err != nil {
				return fmt.Errorf("assign version for %s size %d: %w", classFullName, size, err)
			}
		}
		if _, err := tx.Exec(`UPDATE class_files SET last_version_no=?, updated_at=?
			WHERE class_full_name=?`, lastVersion, ts, classFullName); err != nil {
			return fmt.Errorf("set last version for %s: %w", classFullName, err)
		}
		return nil
	})
}

// JarVersionTokens yields (source_version_id, jar_name, version_no) for every
// link whose JAR row has an assigned version.
func (s *Store) JarVersionTokens() (map[int64][]string, error) {
	rows, err := s.db.Query(`SELECT l.java_source_file_version_id, j.jar_name, j.version_no
		FROM java_source_in_jar_files l
		JOIN jar_files j ON j.id = l.jar_file_id
		WHERE j.version_no IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("query jar version tokens: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]string)
	for rows.Next() {
		var svID, version int64
		var jarName string
		if err := rows.Scan(&svID, &jarName, &version); err != nil {
			return nil, err
		}
		out[svID] = append(out[svID], fmt.Sprintf("jar:%s@%d", jarName, version))
	}
	return out, rows.Err()
}

// ClassVersionTokens yields (source_version_id, class name, version_no) for
// every class row pointing at a source version with an assigned version.
func (s *Store) ClassVersionTokens() (map[int64][]string, error) {
	rows, err := s.db.Query(`SELECT c.source_version_id, c.class_full_name, c.version_no
		FROM class_files c
		WHERE c.source_version_id IS NOT NULL AND c.version_no IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("query class version tokens: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]string)
	for rows.Next() {
		var svID, version int64
		var name string
		if err := rows.Scan(&svID, &name, &version); err != nil {
			return nil, err
		}
		out[svID] = append(out[svID], fmt.Sprintf("class:%s@%d", name, version))
	}
	return out, rows.Err()
}

// SourceVersionLabels returns the current version label of every version row.
func (s *Store) SourceVersionLabels() (map[int64]string, error) {
	rows, err := s.db.Query(`SELECT id, version FROM java_source_file_versions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var id int64
		var label string
		if err := rows.Scan(&id, &label); err != nil {
			return nil, err
		}
		out[id] = label
	}
	return out, rows.Err()
}

// VersionStats summarizes version assignment coverage for one artifact kind.
type VersionStats struct {
	TotalFiles   int
	UniqueNames  int
	WithVersions int
}

// JarVersionStats reports coverage over internal JAR rows.
func (s *Store) JarVersionStats() (*VersionStats, error) {
	var st VersionStats
	if err := s.db.QueryRow(`SELECT COUNT(*), COUNT(DISTINCT jar_name),
		COUNT(version_no) FROM jar_files WHERE is_third_party = 0`).
		Scan(&st.TotalFiles, &st.UniqueNames, &st.WithVersions); err != nil {
		return nil, err
	}
	return &st, nil
}

// ClassVersionStats reports coverage over class rows.
func (s *Store) ClassVersionStats() (*VersionStats, error) {
	var st VersionStats
	if err := s.db.QueryRow(`SELECT COUNT(*), COUNT(DISTINCT class_full_name),
		COUNT(version_no) FROM class_files`).
		Scan(&st.TotalFiles, &st.UniqueNames, &st.WithVersions); err != nil {
		return nil, err
	}
	return &st, nil
}
