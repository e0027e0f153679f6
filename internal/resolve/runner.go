package resolve

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/microarea-cli/internal/model"
	"github.com/sells-group/microarea-cli/internal/store"
)

// Resolver is the part of Chain the runner depends on.
type Resolver interface {
	Resolve(ctx context.Context, rec model.AddressRecord) model.ResolutionResult
}

// Runner drives one geocoding pass: resolve each record, merge it into the
// store, move on. Records are handled one at a time so an interrupted run
// leaves every merged record intact.
type Runner struct {
	resolver      Resolver
	store         store.Store
	progressEvery int
}

// NewRunner returns a Runner over the given resolver and store.
func NewRunner(r Resolver, st store.Store) *Runner {
	return &Runner{resolver: r, store: st, progressEvery: 25}
}

// Run processes recs and returns the run summary. A record the store
// refuses is counted as failed and put on the review list; the loop moves
// on. Cancelling ctx stops the loop between records; the run is then marked
// interrupted and the partial summary returned without error.
func (r *Runner) Run(ctx context.Context, source string, recs []model.AddressRecord) (*Summary, error) {
	// Bookkeeping writes must land even after an interrupt.
	bg := context.WithoutCancel(ctx)

	run, err := r.store.CreateRun(bg, source)
	if err != nil {
		return nil, eris.Wrap(err, "resolve: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("source", source))
	log.Info("resolve: run started", zap.Int("records", len(recs)))

	sum := NewSummary()
	for i, rec := range recs {
		if ctx.Err() != nil {
			sum.Interrupted = true
			log.Warn("resolve: interrupted", zap.Int("processed", i), zap.Int("remaining", len(recs)-i))
			break
		}

		res := r.resolver.Resolve(ctx, rec)
		sum.Add(rec, res)
		out, err := r.merge(bg, rec, res, run.ID)
		if err != nil {
			log.Error("resolve: record not stored", zap.Stringer("key", rec.Key()), zap.Error(err))
			sum.AddFailure(rec, res, err)
			continue
		}
		sum.AddMerge(out)

		if r.progressEvery > 0 && (i+1)%r.progressEvery == 0 {
			log.Info("resolve: progress", zap.Int("done", i+1), zap.Int("total", len(recs)))
		}
	}

	status := store.RunStatusComplete
	if sum.Interrupted {
		status = store.RunStatusInterrupted
	}
	if err := r.store.FinishRun(bg, run.ID, status, sum.Stats()); err != nil {
		return sum, eris.Wrap(err, "resolve: finish run")
	}
	log.Info("resolve: run finished",
		zap.String("status", string(status)),
		zap.Int("total", sum.Total),
		zap.Int("resolved", sum.Resolved()),
		zap.Int("review", len(sum.Review)),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

// merge stores one result. A record without a full key never reaches the
// store.
func (r *Runner) merge(ctx context.Context, rec model.AddressRecord, res model.ResolutionResult, runID string) (store.MergeOutcome, error) {
	if k := rec.Key(); !k.Valid() {
		return store.MergeOutcome{}, eris.Errorf("resolve: incomplete key %s", k)
	}
	out, err := r.store.Merge(ctx, rec, res, runID)
	return out, eris.Wrapf(err, "resolve: merge %s", rec.Key())
}
