package store

import (
	"database/sql"
	"fmt"
	"time"
)

// GetDiffSummary fetches the cached summary for one diff key;
// sql.ErrNoRows when absent.
func (s *Store) GetDiffSummary(kind ArtifactKind, name string, from, to int64) (*DiffSummary, error) {
	var ds DiffSummary
	var created string
	err := s.db.QueryRow(`SELECT id, artifact_kind, artifact_name, from_version,
		to_version, insertions, deletions, files_changed, created_at
		FROM diff_cache
		WHERE artifact_kind = ? AND artifact_name = ? AND from_version = ? AND to_version = ?`,
		string(kind), name, from, to).
		Scan(&ds.ID, &ds.ArtifactKind, &ds.ArtifactName, &ds.FromVersion, &ds.ToVersion,
			&ds.Insertions, &ds.Deletions, &ds.FilesChanged, &created)
	if err != nil {
		return nil, err
	}
	ds.CreatedAt = parseTime(created)
	return &ds, nil
}

// DiffFiles returns the per-file rows of one cached diff, optionally
// narrowed to a single file path.
func (s *Store) DiffFiles(diffCacheID int64, filePath string) ([]*DiffFile, error) {
	q := `SELECT id, diff_cache_id, file_path, change_type, additions, deletions,
		change_percentage, unified_text
		FROM diff_cache_files WHERE diff_cache_id = ?`
	args := []any{diffCacheID}
	if filePath != "" {
		q += ` AND file_path = ?`
		args = append(args, filePath)
	}
	q += ` ORDER BY file_path`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query diff files: %w", err)
	}
	defer rows.Close()

	var out []*DiffFile
	for rows.Next() {
		var df DiffFile
		if err := rows.Scan(&df.ID, &df.DiffCacheID, &df.FilePath, &df.ChangeType,
			&df.Additions, &df.Deletions, &df.ChangePercentage, &df.UnifiedText); err != nil {
			return nil, err
		}
		out = append(out, &df)
	}
	return out, rows.Err()
}

// PutDiff stores a freshly computed diff, replacing any stale entry for
// the same key. Summary and files land in one transaction.
func (s *Store) PutDiff(summary *DiffSummary, files []*DiffFile) error {
	return s.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM diff_cache
			WHERE artifact_kind = ? AND artifact_name = ? AND from_version = ? AND to_version = ?`,
			string(summary.ArtifactKind), summary.ArtifactName,
			summary.FromVersion, summary.ToVersion); err != nil {
			return fmt.Errorf("evict stale diff: %w", err)
		}

		summary.CreatedAt = now()
		res, err := tx.Exec(`INSERT INTO diff_cache (artifact_kind, artifact_name,
			from_version, to_version, insertions, deletions, files_changed, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			string(summary.ArtifactKind), summary.ArtifactName, summary.FromVersion,
			summary.ToVersion, summary.Insertions, summary.Deletions,
			summary.FilesChanged, fmtTime(summary.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert diff summary: %w", err)
		}
		summary.ID, err = res.LastInsertId()
		if err != nil {
			return err
		}

		for _, df := range files {
			df.DiffCacheID = summary.ID
			res, err := tx.Exec(`INSERT INTO diff_cache_files (diff_cache_id, file_path,
				change_type, additions, deletions, change_percentage, unified_text)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				df.DiffCacheID, df.FilePath, df.ChangeType, df.Additions, df.Deletions,
				df.ChangePercentage, df.UnifiedText)
			if err != nil {
				return fmt.Errorf("insert diff file %s: %w", df.FilePath, err)
			}
			if df.ID, err = res.LastInsertId(); err != nil {
				return err
			}
		}
		return nil
	})
}

// InvalidateDiff drops the cached entry for one key.
func (s *Store) InvalidateDiff(kind ArtifactKind, name string, from, to int64) error {
	_, err := s.db.Exec(`DELETE FROM diff_cache
		WHERE artifact_kind = ? AND artifact_name = ? AND from_version = ? AND to_version = ?`,
		string(kind), name, from, to)
	return err
}

// DiffFresh reports whether a cache row created at cachedAt is still valid
// against the newest updated_at among the endpoint source versions.
func DiffFresh(cachedAt, newestEndpoint time.Time) bool {
	return !newestEndpoint.After(cachedAt)
}
