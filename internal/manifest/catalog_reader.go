package manifest

import (
	"context"
	"time"
)

// CatalogReader is the read-only interface used by tree restoration,
// reconciliation, and the CLI inspection commands.
type CatalogReader interface {
	// GetGroup retrieves a single group by path.
	GetGroup(ctx context.Context, path string) (*GroupRecord, error)

	// ListGroups returns all groups ordered by path.
	ListGroups(ctx context.Context) ([]*GroupRecord, error)

	// GetArray retrieves a single array row.
	GetArray(ctx context.Context, groupPath, name string) (*ArrayRecord, error)

	// ListArrays returns all arrays of a group ordered by name.
	ListArrays(ctx context.Context, groupPath string) ([]*ArrayRecord, error)

	// AllArrays returns every array row ordered by group path and name.
	AllArrays(ctx context.Context) ([]*ArrayRecord, error)

	// Exists reports whether an array path is catalogued.
	Exists(ctx context.Context, groupPath, name string) (bool, error)

	// ListRuns returns the ingest runs recorded for a group, newest first.
	ListRuns(ctx context.Context, groupPath string) ([]*RunRecord, error)

	// CountGroups returns the number of groups in the catalog.
	CountGroups(ctx context.Context) (int64, error)

	// CountArrays returns the number of arrays in the catalog.
	CountArrays(ctx context.Context) (int64, error)
}

// RunLister narrows CatalogReader for provenance-only consumers.
type RunLister interface {
	ListRuns(ctx context.Context, groupPath string) ([]*RunRecord, error)
	DeleteExpiredRuns(ctx context.Context, ttl time.Duration) ([]string, error)
}
