package manifest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/reparc/reparc/pkg/types"
)

// Finder answers filtered catalog queries without loading array data.
// The CLI inspection commands and reconciliation build on it.
type Finder struct {
	catalog *SQLiteCatalog
}

// NewFinder creates a catalog finder.
func NewFinder(catalog *SQLiteCatalog) *Finder {
	return &Finder{catalog: catalog}
}

const arraySelectSQL = `
	SELECT group_path, name, dtype, shape, role, locator, digest, updated_at
	FROM arrays`

// FindArraysByRole returns arrays carrying the given axis role.
func (f *Finder) FindArraysByRole(ctx context.Context, role types.AxisRole) ([]*ArrayRecord, error) {
	query := arraySelectSQL + `
	WHERE role = ?
	ORDER BY group_path, name`

	return f.executeQuery(ctx, query, string(role))
}

// FindArraysByDType returns arrays with the given element type.
func (f *Finder) FindArraysByDType(ctx context.Context, dtype types.DType) ([]*ArrayRecord, error) {
	query := arraySelectSQL + `
	WHERE dtype = ?
	ORDER BY group_path, name`

	return f.executeQuery(ctx, query, string(dtype))
}

// FindArrayByLocator returns the array row referencing a backend locator,
// or nil when no row references it.
func (f *Finder) FindArrayByLocator(ctx context.Context, locator string) (*ArrayRecord, error) {
	query := arraySelectSQL + `
	WHERE locator = ?
	LIMIT 1`

	records, err := f.executeQuery(ctx, query, locator)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// FindArraysUnder returns every array whose group lies at or below prefix.
func (f *Finder) FindArraysUnder(ctx context.Context, prefix string) ([]*ArrayRecord, error) {
	query := arraySelectSQL + `
	WHERE group_path = ? OR group_path LIKE ?
	ORDER BY group_path, name`

	subtree := strings.TrimSuffix(prefix, types.PathSeparator) + types.PathSeparator + "%"
	return f.executeQuery(ctx, query, prefix, subtree)
}

// ArrayFilter combines optional array predicates. Nil fields match all.
type ArrayFilter struct {
	GroupPrefix *string
	Role        *types.AxisRole
	DType       *types.DType
	Locator     *string
}

// FindResult reports how selective a filtered lookup was.
type FindResult struct {
	Arrays       []*ArrayRecord
	TotalScanned int
	TotalSkipped int
	SkipRatio    float64
}

// FindArrays performs a filtered lookup and returns detailed results.
func (f *Finder) FindArrays(ctx context.Context, filter ArrayFilter) (*FindResult, error) {
	totalCount, err := f.catalog.CountArrays(ctx)
	if err != nil {
		return nil, fmt.Errorf("finder: failed to count arrays: %w", err)
	}

	var conditions []string
	var args []any

	if filter.GroupPrefix != nil {
		conditions = append(conditions, "(group_path = ? OR group_path LIKE ?)")
		subtree := strings.TrimSuffix(*filter.GroupPrefix, types.PathSeparator) + types.PathSeparator + "%"
		args = append(args, *filter.GroupPrefix, subtree)
	}
	if filter.Role != nil {
		conditions = append(conditions, "role = ?")
		args = append(args, string(*filter.Role))
	}
	if filter.DType != nil {
		conditions = append(conditions, "dtype = ?")
		args = append(args, string(*filter.DType))
	}
	if filter.Locator != nil {
		conditions = append(conditions, "locator = ?")
		args = append(args, *filter.Locator)
	}

	query := arraySelectSQL
	if len(conditions) > 0 {
		query += "\n\tWHERE " + strings.Join(conditions, " AND ")
	}
	query += "\n\tORDER BY group_path, name"

	records, err := f.executeQuery(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	matched := len(records)
	skipped := int(totalCount) - matched

	var ratio float64
	if totalCount > 0 {
		ratio = float64(skipped) / float64(totalCount)
	}

	return &FindResult{
		Arrays:       records,
		TotalScanned: int(totalCount),
		TotalSkipped: skipped,
		SkipRatio:    ratio,
	}, nil
}

// RunFilter combines optional provenance predicates. Nil fields match all.
type RunFilter struct {
	FormatID    *string
	GroupPrefix *string
	Since       *time.Time
}

// FindRuns performs a filtered provenance lookup, newest first.
func (f *Finder) FindRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error) {
	var conditions []string
	var args []any

	if filter.FormatID != nil {
		conditions = append(conditions, "format_id = ?")
		args = append(args, *filter.FormatID)
	}
	if filter.GroupPrefix != nil {
		conditions = append(conditions, "(group_path = ? OR group_path LIKE ?)")
		subtree := strings.TrimSuffix(*filter.GroupPrefix, types.PathSeparator) + types.PathSeparator + "%"
		args = append(args, *filter.GroupPrefix, subtree)
	}
	if filter.Since != nil {
		conditions = append(conditions, "parsed_at >= ?")
		args = append(args, filter.Since.Unix())
	}

	query := `
	SELECT run_id, format_id, group_path, digest, input_bytes, parsed_at
	FROM provenance`
	if len(conditions) > 0 {
		query += "\n\tWHERE " + strings.Join(conditions, " AND ")
	}
	query += "\n\tORDER BY parsed_at DESC"

	rows, err := f.catalog.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finder: failed to query runs: %w", err)
	}
	defer rows.Close()

	return collectRunRows(rows)
}

// executeQuery runs an array query against the read pool.
func (f *Finder) executeQuery(ctx context.Context, query string, args ...any) ([]*ArrayRecord, error) {
	rows, err := f.catalog.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finder: failed to execute query: %w", err)
	}
	defer rows.Close()

	records, err := collectArrayRows(rows)
	if err != nil {
		return nil, err
	}
	return records, nil
}
