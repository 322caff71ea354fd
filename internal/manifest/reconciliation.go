package manifest

import (
	"context"
	"fmt"
	"time"

	"github.com/reparc/reparc/internal/backend"
)

// LocatorLister is satisfied by backends that can enumerate the
// locators of the arrays they currently hold.
type LocatorLister interface {
	Locators() []backend.Locator
}

// Report contains the results of a catalog-backend reconciliation.
type Report struct {
	// DanglingEntries are catalog rows whose locator no longer exists in
	// the backend.
	DanglingEntries []DanglingEntry
	// OrphanedLocators are backend arrays with no catalog row.
	OrphanedLocators []backend.Locator
	// TotalCatalogEntries is the number of array rows checked.
	TotalCatalogEntries int
	// TotalBackendArrays is the number of backend locators scanned.
	TotalBackendArrays int
	// RunAt is when the reconciliation was performed.
	RunAt time.Time
}

// DanglingEntry represents a catalog row pointing to a missing backend array.
type DanglingEntry struct {
	ArrayPath string
	Locator   string
}

// HasIssues returns true if the report contains any dangling entries or
// orphaned locators.
func (r *Report) HasIssues() bool {
	return len(r.DanglingEntries) > 0 || len(r.OrphanedLocators) > 0
}

// Reconcile checks consistency between the catalog and a backend. It
// detects dangling catalog rows (rows whose locator the backend no
// longer holds) and orphaned backend arrays (locators no row references).
func Reconcile(ctx context.Context, catalog CatalogReader, lister LocatorLister) (*Report, error) {
	report := &Report{
		RunAt: time.Now(),
	}

	// Step 1: collect every array row from the catalog.
	records, err := catalog.AllArrays(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconciliation: failed to list catalog arrays: %w", err)
	}
	report.TotalCatalogEntries = len(records)

	catalogLocators := make(map[backend.Locator]string, len(records))
	for _, rec := range records {
		catalogLocators[backend.Locator(rec.Locator)] = rec.ArrayPath()
	}

	// Step 2: snapshot the backend's live locators.
	live := lister.Locators()
	report.TotalBackendArrays = len(live)

	liveSet := make(map[backend.Locator]struct{}, len(live))
	for _, loc := range live {
		liveSet[loc] = struct{}{}
	}

	// Step 3: catalog rows whose locator is gone are dangling.
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, ok := liveSet[backend.Locator(rec.Locator)]; !ok {
			report.DanglingEntries = append(report.DanglingEntries, DanglingEntry{
				ArrayPath: rec.ArrayPath(),
				Locator:   rec.Locator,
			})
		}
	}

	// Step 4: backend locators no row references are orphans.
	for _, loc := range live {
		if _, tracked := catalogLocators[loc]; !tracked {
			report.OrphanedLocators = append(report.OrphanedLocators, loc)
		}
	}

	return report, nil
}
