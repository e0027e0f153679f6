// Package store consolidates resolution results across runs: one record per
// address, never downgraded by a weaker result. Backends are in-memory,
// SQLite and Postgres; every merge is atomic for its record.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/sells-group/microarea-cli/internal/model"
)

// RunStatus is the lifecycle state of a geocoding run.
type RunStatus string

const (
	RunStatusRunning     RunStatus = "running"
	RunStatusComplete    RunStatus = "complete"
	RunStatusInterrupted RunStatus = "interrupted"
)

// RunStats are the counters recorded when a run finishes.
type RunStats struct {
	Total    int `json:"total"`
	Resolved int `json:"resolved"`
	Manual   int `json:"manual"`
	Replaced int `json:"replaced"`
	Kept     int `json:"kept"`
	Failed   int `json:"failed,omitempty"`
}

// Run is one pass of the resolver over an input file.
type Run struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	Status     RunStatus  `json:"status"`
	Stats      RunStats   `json:"stats"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// MergeOutcome reports what a Merge call did.
type MergeOutcome struct {
	// Replaced is true when the incoming result was stored.
	Replaced bool
	// Previous is the stored confidence before the merge; none when the
	// address was new.
	Previous model.Confidence
	Created  bool
	Stored   model.ResolutionResult
}

// Store is the persistence interface for consolidated results.
type Store interface {
	// Merge folds incoming into the record for rec.Key() inside one
	// transaction and records the attempts under runID.
	Merge(ctx context.Context, rec model.AddressRecord, incoming model.ResolutionResult, runID string) (MergeOutcome, error)
	// Get returns nil, nil when the address has no record.
	Get(ctx context.Context, key model.Key) (*model.ConsolidatedRecord, error)
	// List returns every record ordered by unit, micro-area and address.
	List(ctx context.Context) ([]model.ConsolidatedRecord, error)

	CreateRun(ctx context.Context, source string) (*Run, error)
	FinishRun(ctx context.Context, runID string, status RunStatus, stats RunStats) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

func sortRecords(recs []model.ConsolidatedRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i].Key(), recs[j].Key()
		if a.Unit != b.Unit {
			return a.Unit < b.Unit
		}
		if a.MicroArea != b.MicroArea {
			return a.MicroArea < b.MicroArea
		}
		return a.Address < b.Address
	})
}
