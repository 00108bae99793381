package store

import (
	"database/sql"
	"fmt"
)

// schemaVersion is the current schema version. Increment when adding migrations.
const schemaVersion = 1

// migrations maps version numbers to SQL statements that bring the schema
// from (version-1) to (version). Version 1 is the initial schema.
var migrations = map[int]string{
	1: `
-- Deployed service instances, one row per (service_name, environment).
CREATE TABLE IF NOT EXISTS services (
	id                          INTEGER PRIMARY KEY AUTOINCREMENT,
	service_name                TEXT    NOT NULL,
	environment                 TEXT    NOT NULL DEFAULT 'production',
	host                        TEXT    NOT NULL DEFAULT '',
	port                        INTEGER NOT NULL DEFAULT 22,
	username                    TEXT    NOT NULL DEFAULT '',
	password                    TEXT    NOT NULL DEFAULT '',
	server_base_path            TEXT    NOT NULL DEFAULT '',
	jar_path                    TEXT    NOT NULL DEFAULT '',
	classes_path                TEXT    NOT NULL DEFAULT '',
	jar_decompile_output_dir    TEXT    NOT NULL DEFAULT '',
	class_decompile_output_dir  TEXT    NOT NULL DEFAULT '',
	description                 TEXT    NOT NULL DEFAULT '',
	created_at                  TEXT    NOT NULL,
	updated_at                  TEXT    NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_services_name_env ON services(service_name, environment);

-- JAR archives observed in a service's lib directory.
CREATE TABLE IF NOT EXISTS jar_files (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	service_id      INTEGER NOT NULL REFERENCES services(id),
	jar_name        TEXT    NOT NULL,
	file_size       INTEGER NOT NULL DEFAULT 0,
	last_modified   TEXT    NOT NULL DEFAULT '',
	is_third_party  INTEGER NOT NULL DEFAULT 0,
	file_path       TEXT    NOT NULL DEFAULT '',
	decompile_path  TEXT    NOT NULL DEFAULT '',
	version_no      INTEGER,
	last_version_no INTEGER,
	last_error      TEXT    NOT NULL DEFAULT '',
	created_at      TEXT    NOT NULL,
	updated_at      TEXT    NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_jar_files_service_name ON jar_files(service_id, jar_name);
CREATE INDEX IF NOT EXISTS idx_jar_files_name ON jar_files(jar_name);

-- Loose compiled classes observed in a service's classes directory.
CREATE TABLE IF NOT EXISTS class_files (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	service_id        INTEGER NOT NULL REFERENCES services(id),
	class_full_name   TEXT    NOT NULL,
	file_size         INTEGER NOT NULL DEFAULT 0,
	last_modified     TEXT    NOT NULL DEFAULT '',
	file_path         TEXT    NOT NULL DEFAULT '',
	decompile_path    TEXT    NOT NULL DEFAULT '',
	source_version_id INTEGER REFERENCES java_source_file_versions(id),
	version_no        INTEGER,
	last_version_no   INTEGER,
	last_error        TEXT    NOT NULL DEFAULT '',
	created_at        TEXT    NOT NULL,
	updated_at        TEXT    NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_class_files_service_name ON class_files(service_id, class_full_name);
CREATE INDEX IF NOT EXISTS idx_class_files_name ON class_files(class_full_name);

-- Stable identity for a fully-qualified class name.
CREATE TABLE IF NOT EXISTS java_source_files (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	class_full_name TEXT    NOT NULL UNIQUE,
	created_at      TEXT    NOT NULL,
	updated_at      TEXT    NOT NULL
);

-- One row per distinct content blob of an identity, content-addressed by hash.
CREATE TABLE IF NOT EXISTS java_source_file_versions (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	java_source_file_id INTEGER NOT NULL REFERENCES java_source_files(id) ON DELETE CASCADE,
	version             TEXT    NOT NULL DEFAULT '',
	file_path           TEXT    NOT NULL DEFAULT '',
	file_content        TEXT    NOT NULL DEFAULT '',
	file_size           INTEGER NOT NULL DEFAULT 0,
	file_hash           TEXT    NOT NULL,
	line_count          INTEGER NOT NULL DEFAULT 0,
	created_at          TEXT    NOT NULL,
	updated_at          TEXT    NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_source_versions_id_hash ON java_source_file_versions(java_source_file_id, file_hash);
CREATE INDEX IF NOT EXISTS idx_source_versions_hash ON java_source_file_versions(file_hash);

-- Which concrete JAR rows contain which concrete source versions.
CREATE TABLE IF NOT EXISTS java_source_in_jar_files (
	id                          INTEGER PRIMARY KEY AUTOINCREMENT,
	jar_file_id                 INTEGER NOT NULL REFERENCES jar_files(id) ON DELETE CASCADE,
	java_source_file_version_id INTEGER NOT NULL REFERENCES java_source_file_versions(id) ON DELETE CASCADE,
	created_at                  TEXT    NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_jar_source_links ON java_source_in_jar_files(jar_file_id, java_source_file_version_id);
CREATE INDEX IF NOT EXISTS idx_jar_source_links_version ON java_source_in_jar_files(java_source_file_version_id);

-- Memoized cross-version diff summaries.
CREATE TABLE IF NOT EXISTS diff_cache (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	artifact_kind TEXT    NOT NULL,
	artifact_name TEXT    NOT NULL,
	from_version  INTEGER NOT NULL,
	to_version    INTEGER NOT NULL,
	insertions    INTEGER NOT NULL DEFAULT 0,
	deletions     INTEGER NOT NULL DEFAULT 0,
	files_changed INTEGER NOT NULL DEFAULT 0,
	created_at    TEXT    NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_diff_cache_key ON diff_cache(artifact_kind, artifact_name, from_version, to_version);

-- Per-file unified diffs belonging to a diff_cache row.
CREATE TABLE IF NOT EXISTS diff_cache_files (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	diff_cache_id     INTEGER NOT NULL REFERENCES diff_cache(id) ON DELETE CASCADE,
	file_path         TEXT    NOT NULL,
	change_type       TEXT    NOT NULL,
	additions         INTEGER NOT NULL DEFAULT 0,
	deletions         INTEGER NOT NULL DEFAULT 0,
	change_percentage INTEGER NOT NULL DEFAULT 0,
	unified_text      TEXT    NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_diff_cache_files_path ON diff_cache_files(diff_cache_id, file_path);

-- Key-value store for pipeline metadata (schema version, cursors, etc).
CREATE TABLE IF NOT EXISTS pipeline_state (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);
`,
}

// runMigrations brings the schema up to schemaVersion, recording the
// applied version in pipeline_state under the "schema_version" key.
func runMigrations(db *sql.DB) error {
	// Bootstrap the state table so the version lookup below works on
	// a fresh database.
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS pipeline_state (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("bootstrap pipeline_state: %w", err)
	}

	var current int
	err := db.QueryRow(`SELECT CAST(value AS INTEGER) FROM pipeline_state WHERE key = 'schema_version'`).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read schema version: %w", err)
	}

	for v := current + 1; v <= schemaVersion; v++ {
		stmts, ok := migrations[v]
		if !ok {
			return fmt.Errorf("missing migration for schema version %d", v)
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", v, err)
		}
		if _, err := tx.Exec(stmts); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", v, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO pipeline_state (key, value, updated_at) VALUES ('schema_version', ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			fmt.Sprint(v), fmtTime(now()),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", v, err)
		}
	}
	return nil
}
