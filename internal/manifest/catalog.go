package manifest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/reparc/reparc/internal/bloom"
	"github.com/reparc/reparc/pkg/types"
)

// Catalog records archive structure in manifest.db.
type Catalog interface {
	CatalogReader

	// PutGroup upserts a group row with its metadata.
	PutGroup(ctx context.Context, path string, metadata types.Metadata) error

	// DeleteGroup removes a group and its whole subtree, arrays included.
	DeleteGroup(ctx context.Context, path string) error

	// PutArray upserts one array row.
	PutArray(ctx context.Context, rec *ArrayRecord) error

	// DeleteArray removes one array row.
	DeleteArray(ctx context.Context, groupPath, name string) error

	// RecordRun records an ingest run. run_id is the idempotency key:
	// recording the same run twice returns the stored row without error.
	RecordRun(ctx context.Context, rec *RunRecord) (string, error)

	// DeleteExpiredRuns removes provenance rows past TTL.
	DeleteExpiredRuns(ctx context.Context, ttl time.Duration) ([]string, error)

	// SaveSnapshot persists the current bloom filter over array paths.
	SaveSnapshot(ctx context.Context) (int64, error)

	// Close closes the catalog database connections.
	Close() error
}

// GroupRecord represents a group row in the catalog.
type GroupRecord struct {
	Path      string
	Metadata  types.Metadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ArrayRecord represents an array row in the catalog.
type ArrayRecord struct {
	GroupPath string
	Name      string
	DType     types.DType
	Shape     types.Shape
	Role      types.AxisRole
	Locator   string
	Digest    string
	UpdatedAt time.Time
}

// ArrayPath returns the full archive path of the array.
func (r *ArrayRecord) ArrayPath() string {
	return strings.TrimSuffix(r.GroupPath, types.PathSeparator) + types.PathSeparator + r.Name
}

// RunRecord represents one ingest run in the provenance table.
type RunRecord struct {
	RunID      string
	FormatID   string
	GroupPath  string
	Digest     string
	InputBytes int64
	ParsedAt   time.Time
}

// snapshotKeep bounds how many bloom snapshots are retained.
const snapshotKeep = 8

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	mu     sync.Mutex // Write-only lock (reads don't need this)

	// Prepared statement cache (for read connection)
	insertArrayStmt *sql.Stmt
	findStmtCache   map[string]*sql.Stmt
	findStmtMu      sync.RWMutex

	// Bloom filter over array paths for fast negative Exists
	filter   *bloom.PathFilter
	filterMu sync.RWMutex
}

// NewCatalog creates a new SQLite-based catalog.
func NewCatalog(dbPath string) (*SQLiteCatalog, error) {
	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)

	// Read connection pool: concurrent readers via read-only mode
	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	// Enable read_uncommitted on read connections for snapshot isolation without blocking
	if _, err := readDB.Exec("PRAGMA read_uncommitted = true"); err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("manifest: failed to set read_uncommitted pragma: %w", err)
	}

	catalog := &SQLiteCatalog{
		db:            db,
		readDB:        readDB,
		dbPath:        dbPath,
		findStmtCache: make(map[string]*sql.Stmt),
	}

	// Initialize schema (uses write connection)
	if err := catalog.initSchema(); err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("manifest: failed to initialize schema: %w", err)
	}

	// Prepare cached upsert statement on write connection
	insertStmt, err := db.Prepare(`
		INSERT INTO arrays (
			group_path, name, dtype, shape, role, locator, digest, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(group_path, name) DO UPDATE SET
			dtype = excluded.dtype,
			shape = excluded.shape,
			role = excluded.role,
			locator = excluded.locator,
			digest = excluded.digest,
			updated_at = excluded.updated_at`)
	if err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("manifest: failed to prepare array upsert: %w", err)
	}
	catalog.insertArrayStmt = insertStmt

	// Load the newest bloom snapshot, or rebuild from the arrays table
	if err := catalog.loadFilter(context.Background()); err != nil {
		insertStmt.Close()
		readDB.Close()
		db.Close()
		return nil, err
	}

	return catalog, nil
}

// initSchema creates all required tables and indexes.
func (c *SQLiteCatalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// loadFilter restores the bloom filter from the newest snapshot row,
// falling back to a scan of the arrays table.
func (c *SQLiteCatalog) loadFilter(ctx context.Context) error {
	var blob []byte
	err := c.db.QueryRowContext(ctx,
		"SELECT filter FROM snapshots ORDER BY snapshot_id DESC LIMIT 1",
	).Scan(&blob)

	if err == nil {
		filter, derr := bloom.Deserialize(blob)
		if derr == nil {
			c.filterMu.Lock()
			c.filter = filter
			c.filterMu.Unlock()
			return nil
		}
		// Corrupt snapshot: fall through to a rebuild
	} else if err != sql.ErrNoRows {
		return fmt.Errorf("manifest: failed to load snapshot: %w", err)
	}

	return c.rebuildFilter(ctx)
}

// rebuildFilter scans the arrays table into a fresh bloom filter.
func (c *SQLiteCatalog) rebuildFilter(ctx context.Context) error {
	var count int64
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM arrays").Scan(&count); err != nil {
		return fmt.Errorf("manifest: failed to count arrays: %w", err)
	}

	expected := int(count)
	if expected < 1024 {
		expected = 1024
	}
	filter := bloom.NewWithEstimates(expected, 0.01)

	rows, err := c.db.QueryContext(ctx, "SELECT group_path, name FROM arrays")
	if err != nil {
		return fmt.Errorf("manifest: failed to scan arrays: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var groupPath, name string
		if err := rows.Scan(&groupPath, &name); err != nil {
			return fmt.Errorf("manifest: failed to scan array row: %w", err)
		}
		rec := ArrayRecord{GroupPath: groupPath, Name: name}
		filter.AddPath(rec.ArrayPath())
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("manifest: error iterating arrays: %w", err)
	}

	c.filterMu.Lock()
	c.filter = filter
	c.filterMu.Unlock()
	return nil
}

// PutGroup upserts a group row with its metadata.
func (c *SQLiteCatalog) PutGroup(ctx context.Context, path string, metadata types.Metadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	metaJSON, err := encodeMetadata(metadata)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO groups (path, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		path, metaJSON, now, now,
	)
	if err != nil {
		return fmt.Errorf("manifest: failed to upsert group: %w", err)
	}
	return nil
}

// GetGroup retrieves a single group by path.
func (c *SQLiteCatalog) GetGroup(ctx context.Context, path string) (*GroupRecord, error) {
	row := c.readDB.QueryRowContext(ctx,
		"SELECT path, metadata, created_at, updated_at FROM groups WHERE path = ?", path)
	return scanGroupRecord(row)
}

// ListGroups returns all groups ordered by path.
func (c *SQLiteCatalog) ListGroups(ctx context.Context) ([]*GroupRecord, error) {
	rows, err := c.readDB.QueryContext(ctx,
		"SELECT path, metadata, created_at, updated_at FROM groups ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to query groups: %w", err)
	}
	defer rows.Close()

	var records []*GroupRecord
	for rows.Next() {
		rec, err := scanGroupRows(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest: error iterating groups: %w", err)
	}
	return records, nil
}

// DeleteGroup removes a group and its whole subtree, arrays included.
func (c *SQLiteCatalog) DeleteGroup(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("manifest: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	subtree := strings.TrimSuffix(path, types.PathSeparator) + types.PathSeparator + "%"
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM arrays WHERE group_path = ? OR group_path LIKE ?", path, subtree); err != nil {
		return fmt.Errorf("manifest: failed to delete subtree arrays: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM groups WHERE path = ? OR path LIKE ?", path, subtree); err != nil {
		return fmt.Errorf("manifest: failed to delete subtree groups: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("manifest: failed to commit transaction: %w", err)
	}
	return nil
}

// PutArray upserts one array row and feeds the bloom filter.
func (c *SQLiteCatalog) PutArray(ctx context.Context, rec *ArrayRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	shapeJSON, err := json.Marshal(rec.Shape)
	if err != nil {
		return fmt.Errorf("manifest: failed to encode shape: %w", err)
	}

	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err = c.insertArrayStmt.ExecContext(ctx,
		rec.GroupPath, rec.Name, string(rec.DType), string(shapeJSON),
		string(rec.Role), rec.Locator, rec.Digest, updatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("manifest: failed to upsert array: %w", err)
	}

	c.filterMu.Lock()
	c.filter.AddPath(rec.ArrayPath())
	c.filterMu.Unlock()
	return nil
}

// GetArray retrieves a single array row.
func (c *SQLiteCatalog) GetArray(ctx context.Context, groupPath, name string) (*ArrayRecord, error) {
	row := c.readDB.QueryRowContext(ctx, `
		SELECT group_path, name, dtype, shape, role, locator, digest, updated_at
		FROM arrays
		WHERE group_path = ? AND name = ?`, groupPath, name)
	return scanArrayRecord(row)
}

// ListArrays returns all arrays of a group ordered by name.
func (c *SQLiteCatalog) ListArrays(ctx context.Context, groupPath string) ([]*ArrayRecord, error) {
	query := `
		SELECT group_path, name, dtype, shape, role, locator, digest, updated_at
		FROM arrays
		WHERE group_path = ?
		ORDER BY name`

	stmt, err := c.getOrPrepareStmt(query)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to prepare array listing: %w", err)
	}

	rows, err := stmt.QueryContext(ctx, groupPath)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to query arrays: %w", err)
	}
	defer rows.Close()

	return collectArrayRows(rows)
}

// AllArrays returns every array row ordered by group path and name.
func (c *SQLiteCatalog) AllArrays(ctx context.Context) ([]*ArrayRecord, error) {
	rows, err := c.readDB.QueryContext(ctx, `
		SELECT group_path, name, dtype, shape, role, locator, digest, updated_at
		FROM arrays
		ORDER BY group_path, name`)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to query arrays: %w", err)
	}
	defer rows.Close()

	return collectArrayRows(rows)
}

// DeleteArray removes one array row. The bloom filter keeps the stale
// path; Exists resolves it against the table.
func (c *SQLiteCatalog) DeleteArray(ctx context.Context, groupPath, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx,
		"DELETE FROM arrays WHERE group_path = ? AND name = ?", groupPath, name)
	if err != nil {
		return fmt.Errorf("manifest: failed to delete array: %w", err)
	}
	return nil
}

// Exists reports whether an array path is catalogued. The bloom filter
// answers definite misses without touching the database.
func (c *SQLiteCatalog) Exists(ctx context.Context, groupPath, name string) (bool, error) {
	rec := ArrayRecord{GroupPath: groupPath, Name: name}

	c.filterMu.RLock()
	might := c.filter.MightContain(rec.ArrayPath())
	c.filterMu.RUnlock()
	if !might {
		return false, nil
	}

	var one int
	err := c.readDB.QueryRowContext(ctx,
		"SELECT 1 FROM arrays WHERE group_path = ? AND name = ?", groupPath, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("manifest: failed to check array: %w", err)
	}
	return true, nil
}

// RecordRun records an ingest run; run_id is the idempotency key.
func (c *SQLiteCatalog) RecordRun(ctx context.Context, rec *RunRecord) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Check if the run is already recorded
	var existing string
	err := c.db.QueryRowContext(ctx,
		"SELECT run_id FROM provenance WHERE run_id = ?", rec.RunID).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("manifest: failed to check run: %w", err)
	}

	parsedAt := rec.ParsedAt
	if parsedAt.IsZero() {
		parsedAt = time.Now()
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO provenance (run_id, format_id, group_path, digest, input_bytes, parsed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.FormatID, rec.GroupPath, rec.Digest, rec.InputBytes, parsedAt.Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("manifest: failed to record run: %w", err)
	}
	return rec.RunID, nil
}

// ListRuns returns the ingest runs recorded for a group, newest first.
func (c *SQLiteCatalog) ListRuns(ctx context.Context, groupPath string) ([]*RunRecord, error) {
	query := `
		SELECT run_id, format_id, group_path, digest, input_bytes, parsed_at
		FROM provenance
		WHERE group_path = ?
		ORDER BY parsed_at DESC`

	stmt, err := c.getOrPrepareStmt(query)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to prepare run listing: %w", err)
	}

	rows, err := stmt.QueryContext(ctx, groupPath)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to query runs: %w", err)
	}
	defer rows.Close()

	return collectRunRows(rows)
}

// DeleteExpiredRuns removes provenance rows whose parsed_at is past TTL.
func (c *SQLiteCatalog) DeleteExpiredRuns(ctx context.Context, ttl time.Duration) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-ttl).Unix()

	rows, err := c.db.QueryContext(ctx,
		"SELECT run_id FROM provenance WHERE parsed_at < ?", cutoff)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to find expired runs: %w", err)
	}

	var expired []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("manifest: failed to scan run id: %w", err)
		}
		expired = append(expired, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("manifest: error iterating expired runs: %w", err)
	}
	rows.Close()

	if _, err := c.db.ExecContext(ctx,
		"DELETE FROM provenance WHERE parsed_at < ?", cutoff); err != nil {
		return nil, fmt.Errorf("manifest: failed to delete expired runs: %w", err)
	}

	return expired, nil
}

// CountGroups returns the number of groups in the catalog.
func (c *SQLiteCatalog) CountGroups(ctx context.Context) (int64, error) {
	var count int64
	err := c.readDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM groups").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("manifest: failed to count groups: %w", err)
	}
	return count, nil
}

// CountArrays returns the number of arrays in the catalog.
func (c *SQLiteCatalog) CountArrays(ctx context.Context) (int64, error) {
	var count int64
	err := c.readDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM arrays").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("manifest: failed to count arrays: %w", err)
	}
	return count, nil
}

// CountRuns returns the number of recorded ingest runs.
func (c *SQLiteCatalog) CountRuns(ctx context.Context) (int64, error) {
	var count int64
	err := c.readDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM provenance").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("manifest: failed to count runs: %w", err)
	}
	return count, nil
}

// SaveSnapshot persists the current bloom filter and trims old snapshots.
func (c *SQLiteCatalog) SaveSnapshot(ctx context.Context) (int64, error) {
	c.filterMu.RLock()
	blob, err := c.filter.Serialize()
	count := int64(c.filter.Count())
	c.filterMu.RUnlock()
	if err != nil {
		return 0, fmt.Errorf("manifest: failed to serialize filter: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx,
		"INSERT INTO snapshots (filter, array_count, created_at) VALUES (?, ?, ?)",
		blob, count, time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("manifest: failed to insert snapshot: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("manifest: failed to read snapshot id: %w", err)
	}

	// Trim old snapshots, keeping the newest few
	_, err = c.db.ExecContext(ctx, `
		DELETE FROM snapshots WHERE snapshot_id NOT IN (
			SELECT snapshot_id FROM snapshots ORDER BY snapshot_id DESC LIMIT ?
		)`, snapshotKeep)
	if err != nil {
		return 0, fmt.Errorf("manifest: failed to trim snapshots: %w", err)
	}

	return id, nil
}

// getOrPrepareStmt returns a cached prepared statement or creates one.
func (c *SQLiteCatalog) getOrPrepareStmt(query string) (*sql.Stmt, error) {
	c.findStmtMu.RLock()
	if stmt, ok := c.findStmtCache[query]; ok {
		c.findStmtMu.RUnlock()
		return stmt, nil
	}
	c.findStmtMu.RUnlock()

	c.findStmtMu.Lock()
	defer c.findStmtMu.Unlock()

	// Double-check after acquiring write lock
	if stmt, ok := c.findStmtCache[query]; ok {
		return stmt, nil
	}

	stmt, err := c.readDB.Prepare(query)
	if err != nil {
		return nil, err
	}
	c.findStmtCache[query] = stmt
	return stmt, nil
}

// Close closes the catalog database connections.
func (c *SQLiteCatalog) Close() error {
	c.findStmtMu.Lock()
	for _, stmt := range c.findStmtCache {
		stmt.Close()
	}
	c.findStmtCache = make(map[string]*sql.Stmt)
	c.findStmtMu.Unlock()

	if c.insertArrayStmt != nil {
		c.insertArrayStmt.Close()
	}

	if err := c.readDB.Close(); err != nil {
		c.db.Close()
		return fmt.Errorf("manifest: failed to close read database: %w", err)
	}
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("manifest: failed to close database: %w", err)
	}
	return nil
}

// scanGroupRecord scans a row into a GroupRecord.
func scanGroupRecord(row *sql.Row) (*GroupRecord, error) {
	var rec GroupRecord
	var metaJSON string
	var createdAt, updatedAt int64

	err := row.Scan(&rec.Path, &metaJSON, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("manifest: group not found")
		}
		return nil, fmt.Errorf("manifest: failed to scan group: %w", err)
	}

	rec.Metadata, err = decodeMetadata(metaJSON)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)
	return &rec, nil
}

// scanGroupRows scans rows into a GroupRecord.
func scanGroupRows(rows *sql.Rows) (*GroupRecord, error) {
	var rec GroupRecord
	var metaJSON string
	var createdAt, updatedAt int64

	if err := rows.Scan(&rec.Path, &metaJSON, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("manifest: failed to scan group: %w", err)
	}

	var err error
	rec.Metadata, err = decodeMetadata(metaJSON)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)
	return &rec, nil
}

// scanArrayRecord scans a row into an ArrayRecord.
func scanArrayRecord(row *sql.Row) (*ArrayRecord, error) {
	var rec ArrayRecord
	var dtype, role, shapeJSON string
	var updatedAt int64

	err := row.Scan(&rec.GroupPath, &rec.Name, &dtype, &shapeJSON,
		&role, &rec.Locator, &rec.Digest, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("manifest: array not found")
		}
		return nil, fmt.Errorf("manifest: failed to scan array: %w", err)
	}

	if err := json.Unmarshal([]byte(shapeJSON), &rec.Shape); err != nil {
		return nil, fmt.Errorf("manifest: failed to decode shape: %w", err)
	}
	rec.DType = types.DType(dtype)
	rec.Role = types.AxisRole(role)
	rec.UpdatedAt = time.Unix(updatedAt, 0)
	return &rec, nil
}

// scanArrayRows scans rows into an ArrayRecord.
func scanArrayRows(rows *sql.Rows) (*ArrayRecord, error) {
	var rec ArrayRecord
	var dtype, role, shapeJSON string
	var updatedAt int64

	err := rows.Scan(&rec.GroupPath, &rec.Name, &dtype, &shapeJSON,
		&role, &rec.Locator, &rec.Digest, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to scan array: %w", err)
	}

	if err := json.Unmarshal([]byte(shapeJSON), &rec.Shape); err != nil {
		return nil, fmt.Errorf("manifest: failed to decode shape: %w", err)
	}
	rec.DType = types.DType(dtype)
	rec.Role = types.AxisRole(role)
	rec.UpdatedAt = time.Unix(updatedAt, 0)
	return &rec, nil
}

func collectArrayRows(rows *sql.Rows) ([]*ArrayRecord, error) {
	var records []*ArrayRecord
	for rows.Next() {
		rec, err := scanArrayRows(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest: error iterating arrays: %w", err)
	}
	return records, nil
}

// scanRunRows scans rows into a RunRecord.
func scanRunRows(rows *sql.Rows) (*RunRecord, error) {
	var rec RunRecord
	var parsedAt int64

	err := rows.Scan(&rec.RunID, &rec.FormatID, &rec.GroupPath,
		&rec.Digest, &rec.InputBytes, &parsedAt)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to scan run: %w", err)
	}
	rec.ParsedAt = time.Unix(parsedAt, 0)
	return &rec, nil
}

func collectRunRows(rows *sql.Rows) ([]*RunRecord, error) {
	var records []*RunRecord
	for rows.Next() {
		rec, err := scanRunRows(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest: error iterating runs: %w", err)
	}
	return records, nil
}

// encodeMetadata renders metadata as a JSON object.
func encodeMetadata(meta types.Metadata) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("manifest: failed to encode metadata: %w", err)
	}
	return string(data), nil
}

// decodeMetadata parses a JSON metadata object, keeping integral
// numbers as int64 rather than collapsing everything to float64.
func decodeMetadata(raw string) (types.Metadata, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var parsed map[string]any
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("manifest: failed to decode metadata: %w", err)
	}

	meta := make(types.Metadata, len(parsed))
	for k, v := range parsed {
		if num, ok := v.(json.Number); ok {
			if i, err := num.Int64(); err == nil {
				meta[k] = i
				continue
			}
			f, err := num.Float64()
			if err != nil {
				return nil, fmt.Errorf("manifest: metadata key %q: bad number %q", k, num.String())
			}
			meta[k] = f
			continue
		}
		nv, ok := types.NormalizeMetaValue(v)
		if !ok {
			return nil, fmt.Errorf("manifest: metadata key %q: unsupported value type %T", k, v)
		}
		meta[k] = nv
	}
	return meta, nil
}
