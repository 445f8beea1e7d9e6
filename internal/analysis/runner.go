package analysis

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/record-overlap/internal/config"
	"github.com/record-overlap/internal/debug"
	"github.com/record-overlap/internal/hashcheck"
	"github.com/record-overlap/internal/keys"
	"github.com/record-overlap/internal/log"
	"github.com/record-overlap/internal/normalize"
	"github.com/record-overlap/internal/overlap"
)

// Report is the complete result set of one run.
type Report struct {
	RunID      string              `json:"run_id"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Backend    string              `json:"backend"`
	Workers    int                 `json:"workers"`
	Sources    []SourceSummary     `json:"sources"`
	Fields     []FieldProfile      `json:"fields"`
	Keys       []overlap.KeyResult `json:"keys"`
	Hash       *hashcheck.Report   `json:"hash,omitempty"`
	HashReason string              `json:"hash_skipped,omitempty"`
	Exports    []string            `json:"exports,omitempty"`
}

// Key returns the result for the named key.
func (r *Report) Key(name string) (overlap.KeyResult, bool) {
	for _, k := range r.Keys {
		if k.Name == name {
			return k, true
		}
	}
	return overlap.KeyResult{}, false
}

// Runner executes analyses for one configuration.
type Runner struct {
	cfg    *config.Analysis
	logger *log.Logger
}

// NewRunner validates cfg and returns a runner.
func NewRunner(cfg *config.Analysis, logger *log.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Runner{cfg: cfg, logger: logger}, nil
}

// Run performs the analysis. Only source errors and staging failures are
// returned; per-key problems are reported through each KeyResult.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	runID := uuid.NewString()
	logger := r.logger.With(log.String("run_id", runID))
	report := &Report{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
		Backend:   r.cfg.Engine.Backend,
		Workers:   r.cfg.Engine.WorkerCount(),
	}
	logger.Info("Starting overlap analysis",
		log.String("backend", report.Backend),
		log.Int("workers", report.Workers),
		log.Int("keys", len(r.cfg.Keys)))

	plan, err := Prepare(ctx, r.cfg, logger)
	if err != nil {
		return nil, err
	}
	defer plan.Close()

	store, err := r.openStore(ctx, runID)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	var checker *hashcheck.Checker
	if plan.HashAvailable() {
		checker = hashcheck.NewChecker(r.cfg.Hash.SampleSize, r.cfg.Hash.Truncate)
	} else if r.cfg.Hash.Enabled {
		report.HashReason = mappingReason(plan.HashErrors)
		logger.Warn("Hash check skipped", log.String("reason", report.HashReason))
	} else {
		report.HashReason = "disabled"
	}

	prof := newProfiler()
	for _, side := range normalize.Sides {
		done := debug.Timing(logger, "staging source "+side.String())
		rows, err := r.stage(ctx, plan, store, side, checker, prof)
		done()
		if err != nil {
			return nil, err
		}
		plan.Sources[side].Rows = rows
	}
	if err := store.Seal(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to seal staging store")
	}
	report.Sources = plan.Sources[:]
	report.Fields = prof.profiles(plan)

	engine := overlap.NewEngine(store, overlap.Options{
		KeyTimeout: r.cfg.Engine.KeyTimeout,
		MaxPairs:   r.cfg.Engine.MaxPairs,
		TopGroups:  r.cfg.Engine.TopGroups,
	}, logger)
	report.Keys = r.analyzeKeys(ctx, plan, engine)

	if checker != nil {
		done := debug.Timing(logger, "hash check")
		hash, err := r.checkHashes(ctx, store, checker)
		done()
		if err != nil {
			report.HashReason = err.Error()
			logger.Error("Hash check failed", log.Error(err))
		} else {
			report.Hash = hash
		}
	}

	if dir := r.cfg.Export.Dir; dir != "" {
		files, err := exportKeys(ctx, store, engine, report.Keys, dir)
		if err != nil {
			return nil, err
		}
		report.Exports = files
	}

	report.FinishedAt = time.Now().UTC()
	logger.Info("Overlap analysis complete",
		log.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

func (r *Runner) openStore(ctx context.Context, runID string) (overlap.Store, error) {
	switch r.cfg.Engine.Backend {
	case config.BackendMemory:
		return overlap.NewMemoryStore(), nil
	case config.BackendSQLite:
		store, err := overlap.OpenSQLite(ctx, overlap.SQLiteOptions{
			ScratchDir: r.cfg.Engine.ScratchDir,
			RunID:      runID,
			MaxConns:   r.cfg.Engine.WorkerCount(),
		})
		if err != nil {
			return nil, err
		}
		r.logger.Debug("Opened staging store", log.String("dir", store.Dir()))
		return store, nil
	}
	return nil, fmt.Errorf("unknown backend %q", r.cfg.Engine.Backend)
}

// stage reads one source to the end, writing key values and emails to the
// store in batches.
func (r *Runner) stage(ctx context.Context, plan *Plan, store overlap.Store, side normalize.Side, checker *hashcheck.Checker, prof *profiler) (int64, error) {
	reader := plan.readers[side]
	proj := plan.projectors[side]
	batchSize := r.cfg.Engine.BatchSize
	if batchSize <= 0 {
		batchSize = 5000
	}

	type stagedKey struct {
		id  int
		def keys.Def
	}
	var active []stagedKey
	for i, kp := range plan.Keys {
		if kp.Available() {
			active = append(active, stagedKey{id: i, def: kp.Def})
		}
	}

	entries := make([]overlap.Entry, 0, batchSize)
	var emails []overlap.EmailEntry
	debugEnabled := r.logger.DebugEnabled()
	flush := func() error {
		debug.DebugOutput(r.logger, debugEnabled, "Flushing side %s: %d key values, %d emails", side, len(entries), len(emails))
		if len(entries) > 0 {
			if err := store.Stage(ctx, side, entries); err != nil {
				return err
			}
			entries = entries[:0]
		}
		if len(emails) > 0 {
			if err := store.StageEmails(ctx, side, emails); err != nil {
				return err
			}
			emails = emails[:0]
		}
		return nil
	}

	var rows int64
	for {
		values, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, err
		}
		rows++

		row := proj.Row(values)
		prof.observe(side, row)
		recordID := row.Get(normalize.FieldID).String()
		if plan.Sources[side].RowIDs || row.Get(normalize.FieldID).IsNull() {
			recordID = fmt.Sprintf("row-%d", rows)
		}

		for _, k := range active {
			if value, ok := k.def.Build(row); ok {
				entries = append(entries, overlap.Entry{KeyID: k.id, RecordID: recordID, Value: value})
			}
		}

		if checker != nil {
			hash, hasHash := proj.RawText(values, r.cfg.Hash.HashField)
			checker.Observe(side, hash)
			if email := row.Get(r.cfg.Hash.EmailField); !email.IsNull() {
				raw, _ := proj.RawText(values, r.cfg.Hash.EmailField)
				emails = append(emails, overlap.EmailEntry{
					RecordID: recordID,
					Key:      email.String(),
					Email:    raw,
					Hash:     hash,
					HasHash:  hasHash,
				})
			}
		}

		if len(entries) >= batchSize || len(emails) >= batchSize {
			if err := ctx.Err(); err != nil {
				return rows, err
			}
			if err := flush(); err != nil {
				return rows, err
			}
		}
	}
	if err := flush(); err != nil {
		return rows, err
	}

	r.logger.Info("Staged source",
		log.String("side", side.String()),
		log.String("name", plan.Sources[side].Name),
		log.Int64("rows", rows))
	return rows, nil
}

// analyzeKeys runs every available key on a worker pool bounded by
// engine.workers. Results keep the configured key order.
func (r *Runner) analyzeKeys(ctx context.Context, plan *Plan, engine *overlap.Engine) []overlap.KeyResult {
	results := make([]overlap.KeyResult, len(plan.Keys))

	var g errgroup.Group
	g.SetLimit(r.cfg.Engine.WorkerCount())
	for i, kp := range plan.Keys {
		if !kp.Available() {
			results[i] = overlap.Unavailable(kp.Def, kp.Errors)
			continue
		}
		i, kp := i, kp
		g.Go(func() error {
			results[i] = engine.Analyze(ctx, i, kp.Def)
			return nil
		})
	}
	g.Wait()

	return results
}

// checkHashes validates every email matched across both sides. The pair
// walk is capped at engine.max_pairs.
func (r *Runner) checkHashes(ctx context.Context, store overlap.Store, checker *hashcheck.Checker) (*hashcheck.Report, error) {
	limit := r.cfg.Engine.MaxPairs
	fetch := limit
	if limit >= 0 {
		fetch = limit + 1
	}

	var seen int64
	err := store.EmailPairs(ctx, fetch, func(p overlap.EmailPair) error {
		seen++
		if limit >= 0 && seen > limit {
			checker.MarkTruncated()
			return nil
		}
		checker.Add(hashcheck.Pair{
			Email:    p.A.Email,
			RecordA:  p.A.RecordID,
			RecordB:  p.B.RecordID,
			HashA:    p.A.Hash,
			HasHashA: p.A.HasHash,
			HashB:    p.B.Hash,
			HasHashB: p.B.HasHash,
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to walk email pairs")
	}

	report := checker.Report()
	return &report, nil
}

func mappingReason(errs []*normalize.MappingError) string {
	kp := KeyPlan{Errors: errs}
	return kp.Reason()
}
