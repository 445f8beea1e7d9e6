package overlap

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/record-overlap/internal/normalize"
)

// ErrSealed is returned when staging into a sealed store.
var ErrSealed = errors.New("store is sealed")

type memGroup struct {
	ids [2][]string
}

type emailGroup struct {
	entries [2][]EmailEntry
}

// MemoryStore groups staged values in hash maps. It suits inputs that fit
// comfortably in memory and is the reference implementation in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	keys   map[int]map[string]*memGroup
	emails map[string]*emailGroup
	sealed bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys:   make(map[int]map[string]*memGroup),
		emails: make(map[string]*emailGroup),
	}
}

func (s *MemoryStore) Stage(ctx context.Context, side normalize.Side, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return ErrSealed
	}
	for _, e := range entries {
		groups, ok := s.keys[e.KeyID]
		if !ok {
			groups = make(map[string]*memGroup)
			s.keys[e.KeyID] = groups
		}
		g, ok := groups[e.Value]
		if !ok {
			g = &memGroup{}
			groups[e.Value] = g
		}
		g.ids[side] = append(g.ids[side], e.RecordID)
	}
	return ctx.Err()
}

func (s *MemoryStore) StageEmails(ctx context.Context, side normalize.Side, entries []EmailEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return ErrSealed
	}
	for _, e := range entries {
		g, ok := s.emails[e.Key]
		if !ok {
			g = &emailGroup{}
			s.emails[e.Key] = g
		}
		g.entries[side] = append(g.entries[side], e)
	}
	return ctx.Err()
}

func (s *MemoryStore) Seal(ctx context.Context) error {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
	return ctx.Err()
}

func (s *MemoryStore) Count(ctx context.Context, keyID int) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c Counts
	for _, g := range s.keys[keyID] {
		a, b := int64(len(g.ids[normalize.SideA])), int64(len(g.ids[normalize.SideB]))
		c.ATotal += a
		c.BTotal += b
		if a > 0 {
			c.DistinctA++
		}
		if b > 0 {
			c.DistinctB++
		}
		switch {
		case a > 0 && b > 0:
			c.Matches += a * b
			c.DistinctCommon++
			if a*b > c.LargestGroup {
				c.LargestGroup = a * b
			}
		case a > 0:
			c.AOnly += a
		default:
			c.BOnly += b
		}
	}
	return c, ctx.Err()
}

func (s *MemoryStore) TopGroups(ctx context.Context, keyID int, side normalize.Side, n int) ([]Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Group
	for value, g := range s.keys[keyID] {
		if c := int64(len(g.ids[side])); c > 1 {
			out = append(out, Group{Value: value, Count: c})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out, ctx.Err()
}

func (s *MemoryStore) Exclusive(ctx context.Context, keyID int, side normalize.Side, fn func(recordID, value string) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	other := normalize.SideB
	if side == normalize.SideB {
		other = normalize.SideA
	}
	groups := s.keys[keyID]
	for _, value := range sortedValues(groups) {
		g := groups[value]
		if len(g.ids[other]) > 0 {
			continue
		}
		for _, id := range g.ids[side] {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(id, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *MemoryStore) Pairs(ctx context.Context, keyID int, limit int64, fn func(Pair) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var emitted int64
	groups := s.keys[keyID]
	for _, value := range sortedValues(groups) {
		g := groups[value]
		for _, a := range g.ids[normalize.SideA] {
			for _, b := range g.ids[normalize.SideB] {
				if limit >= 0 && emitted >= limit {
					return nil
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := fn(Pair{RecordA: a, RecordB: b, Value: value}); err != nil {
					return err
				}
				emitted++
			}
		}
	}
	return nil
}

func (s *MemoryStore) EmailPairs(ctx context.Context, limit int64, fn func(EmailPair) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.emails))
	for k := range s.emails {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var emitted int64
	for _, k := range keys {
		g := s.emails[k]
		for _, a := range g.entries[normalize.SideA] {
			for _, b := range g.entries[normalize.SideB] {
				if limit >= 0 && emitted >= limit {
					return nil
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := fn(EmailPair{Key: k, A: a, B: b}); err != nil {
					return err
				}
				emitted++
			}
		}
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.keys = nil
	s.emails = nil
	s.mu.Unlock()
	return nil
}

func sortedValues(groups map[string]*memGroup) []string {
	values := make([]string, 0, len(groups))
	for v := range groups {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}
