package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/microarea-cli/internal/model"
)

// MemoryStore keeps everything in process. It backs dry runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[model.Key]model.ConsolidatedRecord
	runs    map[string]Run
	now     func() time.Time
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		records: make(map[model.Key]model.ConsolidatedRecord),
		runs:    make(map[string]Run),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Merge(_ context.Context, rec model.AddressRecord, incoming model.ResolutionResult, runID string) (MergeOutcome, error) {
	key := rec.Key()
	if !key.Valid() {
		return MergeOutcome{}, eris.Errorf("memory: invalid key %s", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *model.ResolutionResult
	out := MergeOutcome{}
	if cur, ok := s.records[key]; ok {
		existing = &cur.Result
		out.Previous = cur.Result.Confidence
	} else {
		out.Created = true
	}

	kept, replaced := Merge(existing, incoming)
	out.Replaced = replaced
	out.Stored = kept
	if replaced {
		s.records[key] = model.ConsolidatedRecord{
			AddressRecord: normalizedRecord(rec),
			Result:        kept,
			RunID:         runID,
			UpdatedAt:     s.now(),
		}
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, key model.Key) (*model.ConsolidatedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) List(context.Context) ([]model.ConsolidatedRecord, error) {
	s.mu.Lock()
	out := make([]model.ConsolidatedRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.mu.Unlock()
	sortRecords(out)
	return out, nil
}

func (s *MemoryStore) CreateRun(_ context.Context, source string) (*Run, error) {
	r := Run{ID: uuid.New().String(), Source: source, Status: RunStatusRunning, StartedAt: s.now()}
	s.mu.Lock()
	s.runs[r.ID] = r
	s.mu.Unlock()
	return &r, nil
}

func (s *MemoryStore) FinishRun(_ context.Context, runID string, status RunStatus, stats RunStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return eris.Errorf("memory: run not found: %s", runID)
	}
	now := s.now()
	r.Status = status
	r.Stats = stats
	r.FinishedAt = &now
	s.runs[runID] = r
	return nil
}

func (s *MemoryStore) ListRuns(_ context.Context, limit int) ([]Run, error) {
	s.mu.Lock()
	out := make([]Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// normalizedRecord trims the identity fields the way Key does.
func normalizedRecord(rec model.AddressRecord) model.AddressRecord {
	k := rec.Key()
	rec.Unit, rec.MicroArea, rec.Address = k.Unit, k.MicroArea, k.Address
	return rec
}
