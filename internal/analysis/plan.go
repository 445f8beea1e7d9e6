// Package analysis runs one overlap analysis: it reads both sources,
// stages their key values, analyses every key on a bounded worker pool and
// validates email hashes.
package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/record-overlap/internal/config"
	"github.com/record-overlap/internal/keys"
	"github.com/record-overlap/internal/log"
	"github.com/record-overlap/internal/normalize"
	"github.com/record-overlap/internal/source"
)

// SourceSummary describes one opened source.
type SourceSummary struct {
	Side     normalize.Side `json:"side"`
	Name     string         `json:"name"`
	Kind     string         `json:"kind"`
	Location string         `json:"location"`
	Columns  []string       `json:"columns"`
	Rows     int64          `json:"rows"`
	// RowIDs is set when the id field is unresolved and records are
	// identified by their 1-based row number instead.
	RowIDs bool `json:"row_ids,omitempty"`
}

// KeyPlan is one requested key and the reasons it cannot be computed.
type KeyPlan struct {
	Def    keys.Def
	Errors []*normalize.MappingError
}

// Available reports whether every field of the key resolves on both sides.
func (k KeyPlan) Available() bool { return len(k.Errors) == 0 }

// Plan is the resolved shape of a run: open sources, projectors and key
// availability. Close releases the sources.
type Plan struct {
	Sources    [2]SourceSummary
	Keys       []KeyPlan
	HashFields [2]bool
	HashErrors []*normalize.MappingError

	cfg        *config.Analysis
	mapping    *normalize.Mapping
	readers    [2]source.Reader
	projectors [2]*normalize.Projector
}

// Prepare opens both sources and resolves every key against their
// headers. A missing source is fatal.
func Prepare(ctx context.Context, cfg *config.Analysis, logger *log.Logger) (*Plan, error) {
	if logger == nil {
		logger = log.Discard()
	}
	mapping, err := cfg.Mapping()
	if err != nil {
		return nil, err
	}

	p := &Plan{cfg: cfg, mapping: mapping}
	for _, side := range normalize.Sides {
		src := sourceConfig(cfg, side)
		r, err := source.Open(ctx, src)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.readers[side] = r
		p.Sources[side] = SourceSummary{
			Side:     side,
			Name:     src.Name,
			Kind:     src.ResolvedKind(),
			Location: src.Location(),
			Columns:  r.Columns(),
		}
		logger.Debug("Opened source",
			log.String("side", side.String()),
			log.String("name", src.Name),
			log.Int("columns", len(r.Columns())))
	}

	fields := append([]string{normalize.FieldID}, keys.Fields(cfg.Keys)...)
	if cfg.Hash.Enabled {
		fields = append(fields, cfg.Hash.EmailField, cfg.Hash.HashField)
	}

	var unresolved [2]map[string]*normalize.MappingError
	for _, side := range normalize.Sides {
		proj, errs := mapping.Projector(side, p.readers[side].Columns(), fields)
		p.projectors[side] = proj
		unresolved[side] = make(map[string]*normalize.MappingError, len(errs))
		for _, e := range errs {
			unresolved[side][e.Field] = e
		}
		if !proj.Has(normalize.FieldID) {
			p.Sources[side].RowIDs = true
			logger.Warn("No id column, using row numbers as record ids", log.String("side", side.String()))
		}
	}

	for _, def := range cfg.Keys {
		kp := KeyPlan{Def: def}
		for _, f := range def.Fields {
			for _, side := range normalize.Sides {
				if e := unresolved[side][f]; e != nil {
					kp.Errors = append(kp.Errors, e)
				}
			}
		}
		if !kp.Available() {
			logger.Warn("Key unavailable",
				log.String("key", def.Name),
				log.String("reason", kp.Reason()))
		}
		p.Keys = append(p.Keys, kp)
	}

	if cfg.Hash.Enabled {
		for _, side := range normalize.Sides {
			if e := unresolved[side][cfg.Hash.EmailField]; e != nil {
				p.HashErrors = append(p.HashErrors, e)
			}
			p.HashFields[side] = p.projectors[side].Has(cfg.Hash.HashField)
			if !p.HashFields[side] {
				logger.Warn("No stored hash column, every matched email counts as missing",
					log.String("side", side.String()))
			}
		}
	}

	return p, nil
}

// Reason joins the key's mapping errors.
func (k KeyPlan) Reason() string {
	reasons := make([]string, len(k.Errors))
	for i, e := range k.Errors {
		reasons[i] = e.Error()
	}
	return strings.Join(reasons, "; ")
}

// HashAvailable reports whether the email field resolves on both sides.
func (p *Plan) HashAvailable() bool {
	return p.cfg.Hash.Enabled && len(p.HashErrors) == 0
}

// Close closes both sources.
func (p *Plan) Close() error {
	var firstErr error
	for i, r := range p.readers {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close source %s: %w", normalize.Side(i), err)
		}
		p.readers[i] = nil
	}
	return firstErr
}

func sourceConfig(cfg *config.Analysis, side normalize.Side) config.Source {
	src := cfg.Sources.A
	if side == normalize.SideB {
		src = cfg.Sources.B
	}
	if src.Name == "" {
		src.Name = strings.ToUpper(side.String())
	}
	return src
}
