// Package observability provides operation statistics tracking for archive inspection and performance monitoring.
package observability

import (
	"sync"
	"testing"
	"time"
)

// TestRecordOpConcurrent tests concurrent RecordOp calls for race conditions.
func TestRecordOpConcurrent(t *testing.T) {
	os := NewOpStats(1 * time.Hour)
	var wg sync.WaitGroup
	numGoroutines := 10
	recordsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				os.RecordOp("/md_run/prod_1", OpRead)
				os.RecordOp("/md_run/prod_2", OpWrite)
				os.RecordOp("/samples", OpSelect)
			}
		}(i)
	}

	wg.Wait()

	// Verify counts
	top := os.GetTopPaths(10)
	if len(top) != 3 {
		t.Errorf("expected 3 paths, got %d", len(top))
	}

	// Each path should have been recorded numGoroutines * recordsPerGoroutine times
	expectedFreq := int64(numGoroutines * recordsPerGoroutine)
	for _, stat := range top {
		if stat.Frequency != expectedFreq {
			t.Errorf("expected frequency %d for %s, got %d", expectedFreq, stat.Path, stat.Frequency)
		}
	}

	counters := os.Counters()
	if counters.Reads != expectedFreq {
		t.Errorf("expected %d reads, got %d", expectedFreq, counters.Reads)
	}
	if counters.Writes != expectedFreq {
		t.Errorf("expected %d writes, got %d", expectedFreq, counters.Writes)
	}
	if counters.Selects != expectedFreq {
		t.Errorf("expected %d selects, got %d", expectedFreq, counters.Selects)
	}
}

// TestGetTopFormatsOrdering tests that GetTopFormats returns results sorted by frequency.
func TestGetTopFormatsOrdering(t *testing.T) {
	os := NewOpStats(1 * time.Hour)

	// Record dispatches with different frequencies
	for i := 0; i < 10; i++ {
		os.RecordDispatch("xyz", OutcomeOK)
	}
	for i := 0; i < 5; i++ {
		os.RecordDispatch("orca", OutcomeOK)
	}
	for i := 0; i < 20; i++ {
		os.RecordDispatch("crest", OutcomeOK)
	}

	top := os.GetTopFormats(3)
	if len(top) != 3 {
		t.Errorf("expected 3 formats, got %d", len(top))
	}

	// Should be ordered: crest (20), xyz (10), orca (5)
	if top[0].Format != "crest" || top[0].Frequency != 20 {
		t.Errorf("expected crest with frequency 20, got %s with %d", top[0].Format, top[0].Frequency)
	}
	if top[1].Format != "xyz" || top[1].Frequency != 10 {
		t.Errorf("expected xyz with frequency 10, got %s with %d", top[1].Format, top[1].Frequency)
	}
	if top[2].Format != "orca" || top[2].Frequency != 5 {
		t.Errorf("expected orca with frequency 5, got %s with %d", top[2].Format, top[2].Frequency)
	}
}

// TestDispatchOutcomeCounters tests that dispatch outcomes feed the session counters.
func TestDispatchOutcomeCounters(t *testing.T) {
	os := NewOpStats(1 * time.Hour)

	for i := 0; i < 5; i++ {
		os.RecordDispatch("xyz", OutcomeOK)
	}
	for i := 0; i < 3; i++ {
		os.RecordDispatch("xyz", OutcomeParseError)
	}
	for i := 0; i < 2; i++ {
		os.RecordDispatch("xyz", OutcomeContractViolation)
	}

	counters := os.Counters()
	if counters.Dispatches != 10 {
		t.Errorf("expected 10 dispatches, got %d", counters.Dispatches)
	}
	if counters.ParseFailures != 3 {
		t.Errorf("expected 3 parse failures, got %d", counters.ParseFailures)
	}
	if counters.ContractViolations != 2 {
		t.Errorf("expected 2 contract violations, got %d", counters.ContractViolations)
	}

	top := os.GetTopFormats(1)
	if len(top) != 1 {
		t.Fatalf("expected 1 format, got %d", len(top))
	}
	if top[0].Outcomes[OutcomeOK] != 5 {
		t.Errorf("expected 5 ok outcomes, got %d", top[0].Outcomes[OutcomeOK])
	}
	if top[0].Outcomes[OutcomeParseError] != 3 {
		t.Errorf("expected 3 parse_error outcomes, got %d", top[0].Outcomes[OutcomeParseError])
	}
}

// TestValidationCounters tests that validation runs and violations are counted.
func TestValidationCounters(t *testing.T) {
	os := NewOpStats(1 * time.Hour)

	os.RecordOp("/md_run", OpValidate)
	os.RecordViolations(4)
	os.RecordOp("/md_run", OpValidate)
	os.RecordViolations(0)

	counters := os.Counters()
	if counters.Validations != 2 {
		t.Errorf("expected 2 validations, got %d", counters.Validations)
	}
	if counters.ViolationsFound != 4 {
		t.Errorf("expected 4 violations found, got %d", counters.ViolationsFound)
	}
}

// TestPruneRemovesOldEntries tests that Prune removes entries older than the window.
func TestPruneRemovesOldEntries(t *testing.T) {
	window := 100 * time.Millisecond
	os := NewOpStats(window)

	// Record an operation
	os.RecordOp("/md_run", OpRead)

	// Verify it exists
	top := os.GetTopPaths(10)
	if len(top) != 1 {
		t.Errorf("expected 1 path before prune, got %d", len(top))
	}

	// Wait for the window to expire
	time.Sleep(window + 50*time.Millisecond)

	// Prune
	os.Prune()

	// Verify it's gone but counters survive
	top = os.GetTopPaths(10)
	if len(top) != 0 {
		t.Errorf("expected 0 paths after prune, got %d", len(top))
	}
	if got := os.Counters().Reads; got != 1 {
		t.Errorf("expected read counter to survive prune, got %d", got)
	}
}

// TestGetTopPathsDeepCopy tests that returned stats cannot mutate internal state.
func TestGetTopPathsDeepCopy(t *testing.T) {
	os := NewOpStats(1 * time.Hour)

	os.RecordOp("/md_run", OpRead)

	top := os.GetTopPaths(1)
	if len(top) != 1 {
		t.Fatalf("expected 1 path, got %d", len(top))
	}

	// Mutate the returned copy
	top[0].Ops[OpWrite] = 99
	top[0].Frequency = 99

	fresh := os.GetTopPaths(1)
	if fresh[0].Frequency != 1 {
		t.Errorf("internal frequency mutated: got %d", fresh[0].Frequency)
	}
	if _, ok := fresh[0].Ops[OpWrite]; ok {
		t.Errorf("internal ops map mutated")
	}
}
