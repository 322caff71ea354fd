// Package manifest provides the catalog for tracking archive structure and provenance.
package manifest

// Schema contains the SQL schema definitions for the archive catalog (manifest.db).
// The catalog is a SQLite database that records the group tree, the arrays each
// group holds, and the ingest runs that produced them. It is the index an
// archive reopens from; array data itself stays in the backend files.

// CreateGroupsTableSQL creates the groups table.
// One row per group path; metadata is stored as a JSON object.
const CreateGroupsTableSQL = `
CREATE TABLE IF NOT EXISTS groups (
    path TEXT PRIMARY KEY,
    metadata TEXT NOT NULL DEFAULT '{}',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
)`

// CreateArraysTableSQL creates the arrays table.
// One row per array; shape is a JSON array of int64 extents and locator
// points into the backend that holds the element data.
const CreateArraysTableSQL = `
CREATE TABLE IF NOT EXISTS arrays (
    group_path TEXT NOT NULL,
    name TEXT NOT NULL,
    dtype TEXT NOT NULL,
    shape TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT '',
    locator TEXT NOT NULL,
    digest TEXT NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (group_path, name),
    FOREIGN KEY (group_path) REFERENCES groups(path)
)`

// CreateArraysIndexesSQL creates indexes for catalog inspection queries.
var CreateArraysIndexesSQL = []string{
	// Index for role-filtered listings (frame-indexed arrays are the hot set)
	`CREATE INDEX IF NOT EXISTS idx_arrays_role ON arrays(role)`,

	// Index for dtype-filtered listings
	`CREATE INDEX IF NOT EXISTS idx_arrays_dtype ON arrays(dtype)`,

	// Index for locator lookups during reconciliation
	`CREATE INDEX IF NOT EXISTS idx_arrays_locator ON arrays(locator)`,
}

// CreateProvenanceTableSQL creates the provenance table.
// One row per ingest run; run_id doubles as the idempotency key so a
// retried ingest never records twice.
const CreateProvenanceTableSQL = `
CREATE TABLE IF NOT EXISTS provenance (
    run_id TEXT PRIMARY KEY,
    format_id TEXT NOT NULL,
    group_path TEXT NOT NULL,
    digest TEXT NOT NULL,
    input_bytes INTEGER NOT NULL,
    parsed_at INTEGER NOT NULL
)`

// CreateProvenanceIndexesSQL creates indexes for provenance queries.
var CreateProvenanceIndexesSQL = []string{
	// Index for per-group run history
	`CREATE INDEX IF NOT EXISTS idx_provenance_group ON provenance(group_path)`,

	// Index for per-format run history
	`CREATE INDEX IF NOT EXISTS idx_provenance_format ON provenance(format_id)`,

	// Index for TTL-based cleanup of old runs
	`CREATE INDEX IF NOT EXISTS idx_provenance_parsed ON provenance(parsed_at)`,
}

// CreateSnapshotsTableSQL creates the snapshots table.
// Each row holds a serialized bloom filter over the catalog's array paths,
// giving reopened sessions a fast negative existence check without a query.
const CreateSnapshotsTableSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
    snapshot_id INTEGER PRIMARY KEY AUTOINCREMENT,
    filter BLOB NOT NULL,
    array_count INTEGER NOT NULL,
    created_at INTEGER NOT NULL
)`

// CreateSnapshotsIndexSQL creates an index for pruning old snapshots.
const CreateSnapshotsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_snapshots_created ON snapshots(created_at)`

// AnalyzeSQL runs ANALYZE to keep the SQLite query planner informed about index statistics.
const AnalyzeSQL = `ANALYZE`

// AllSchemaSQL returns all SQL statements needed to initialize the catalog.
func AllSchemaSQL() []string {
	statements := []string{
		CreateGroupsTableSQL,
		CreateArraysTableSQL,
		CreateProvenanceTableSQL,
		CreateSnapshotsTableSQL,
		CreateSnapshotsIndexSQL,
	}
	statements = append(statements, CreateArraysIndexesSQL...)
	statements = append(statements, CreateProvenanceIndexesSQL...)
	return statements
}
