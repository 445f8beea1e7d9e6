package overlap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/record-overlap/internal/keys"
	"github.com/record-overlap/internal/log"
	"github.com/record-overlap/internal/normalize"
)

// Status is the outcome of one key's analysis.
type Status string

const (
	StatusComputed    Status = "computed"
	StatusEmpty       Status = "empty"
	StatusUnavailable Status = "unavailable"
	StatusFailed      Status = "failed"
)

// KeyResult is the complete outcome for one key. Every requested key gets
// one, whether or not it could be computed.
type KeyResult struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
	Status Status   `json:"status"`
	Reason string   `json:"reason,omitempty"`

	Counts
	MatchedA int64 `json:"matched_a"`
	MatchedB int64 `json:"matched_b"`
	Statistics

	PairsCapped    bool    `json:"pairs_capped"`
	TopGroupsA     []Group `json:"top_groups_a,omitempty"`
	TopGroupsB     []Group `json:"top_groups_b,omitempty"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`

	Err error `json:"-"`
}

// Unavailable builds the result for a key whose fields cannot be resolved.
func Unavailable(def keys.Def, errs []*normalize.MappingError) KeyResult {
	reasons := make([]string, len(errs))
	for i, e := range errs {
		reasons[i] = e.Error()
	}
	var err error
	if len(errs) > 0 {
		err = errs[0]
	}
	return KeyResult{
		Name:   def.Name,
		Fields: def.Fields,
		Status: StatusUnavailable,
		Reason: strings.Join(reasons, "; "),
		Err:    err,
	}
}

// Options bound the cost of one key's analysis.
type Options struct {
	// KeyTimeout caps the wall time of one key; zero disables it.
	KeyTimeout time.Duration
	// MaxPairs flags keys whose match count exceeds it and caps pair
	// exports; a negative value disables the cap.
	MaxPairs int64
	// TopGroups is how many duplicated values to report per side.
	TopGroups int
}

// Engine computes overlap results over a sealed Store.
type Engine struct {
	store  Store
	opts   Options
	logger *log.Logger
}

// NewEngine creates an engine over store.
func NewEngine(store Store, opts Options, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Discard()
	}
	return &Engine{store: store, opts: opts, logger: logger}
}

// Analyze computes one key. Failures are captured in the result rather
// than returned so that one key never aborts the others.
func (e *Engine) Analyze(ctx context.Context, keyID int, def keys.Def) KeyResult {
	start := time.Now()
	result := e.analyze(ctx, keyID, def)
	result.ElapsedSeconds = Round(time.Since(start).Seconds(), 3)
	return result
}

func (e *Engine) analyze(ctx context.Context, keyID int, def keys.Def) KeyResult {
	logger := e.logger.With(log.String("key", def.Name), log.Int("key_id", keyID))

	if e.opts.KeyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.KeyTimeout)
		defer cancel()
	}

	result := KeyResult{Name: def.Name, Fields: def.Fields}

	counts, err := e.store.Count(ctx, keyID)
	if err != nil {
		return e.failed(logger, result, err)
	}
	result.Counts = counts
	result.MatchedA = counts.MatchedA()
	result.MatchedB = counts.MatchedB()
	result.Statistics = Compute(counts.Matches, counts.ATotal, counts.BTotal)
	result.ValueJaccard = ValueJaccard(counts.DistinctCommon, counts.DistinctA, counts.DistinctB)

	if counts.ATotal == 0 || counts.BTotal == 0 {
		var sides []string
		if counts.ATotal == 0 {
			sides = append(sides, normalize.SideA.String())
		}
		if counts.BTotal == 0 {
			sides = append(sides, normalize.SideB.String())
		}
		empty := &EmptyKeyDomainError{Key: def.Name, Sides: sides}
		logger.Warn("No eligible records for key", log.String("sides", strings.Join(sides, ",")))
		result.Status = StatusEmpty
		result.Reason = empty.Error()
		result.Err = empty
		return result
	}

	if e.opts.MaxPairs >= 0 && counts.Matches > e.opts.MaxPairs {
		result.PairsCapped = true
		logger.Warn("Match count exceeds pair cap, duplicate-heavy key",
			log.Int64("matches", counts.Matches),
			log.Int64("max_pairs", e.opts.MaxPairs),
			log.Int64("largest_group", counts.LargestGroup))
	}

	if e.opts.TopGroups > 0 {
		for _, side := range normalize.Sides {
			groups, err := e.store.TopGroups(ctx, keyID, side, e.opts.TopGroups)
			if err != nil {
				return e.failed(logger, result, errors.Wrapf(err, "side %s", side))
			}
			if side == normalize.SideA {
				result.TopGroupsA = groups
			} else {
				result.TopGroupsB = groups
			}
		}
	}

	result.Status = StatusComputed
	logger.Info("Key analysed",
		log.Int64("matches", counts.Matches),
		log.Int64("a_only", counts.AOnly),
		log.Int64("b_only", counts.BOnly),
		log.Any("jaccard", result.Jaccard))
	return result
}

func (e *Engine) failed(logger *log.Logger, result KeyResult, err error) KeyResult {
	if errors.Is(err, context.DeadlineExceeded) {
		err = errors.Wrapf(err, "timed out after %s", e.opts.KeyTimeout)
	}
	logger.Error("Key analysis failed", log.Error(err))
	result.Status = StatusFailed
	result.Reason = err.Error()
	result.Err = err
	result.Counts = Counts{}
	result.MatchedA, result.MatchedB = 0, 0
	result.Statistics = Statistics{}
	return result
}

// ExportLimit is the number of pairs to export for a key.
func (e *Engine) ExportLimit() int64 {
	return e.opts.MaxPairs
}

func (r KeyResult) String() string {
	return fmt.Sprintf("%s[%s] matches=%d a_only=%d b_only=%d", r.Name, r.Status, r.Matches, r.AOnly, r.BOnly)
}
