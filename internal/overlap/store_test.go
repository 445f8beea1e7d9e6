package overlap

import (
	"context"
	"os"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/record-overlap/internal/keys"
	"github.com/record-overlap/internal/normalize"
)

type storeFactory func(t *testing.T) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(context.Background(), SQLiteOptions{ScratchDir: t.TempDir(), RunID: "test", MaxConns: 2})
			require.NoError(t, err)
			return s
		},
	}
}

// stage builds key values for def from raw rows and stages them.
func stage(t *testing.T, s Store, side normalize.Side, keyID int, def keys.Def, rows ...map[string]any) {
	t.Helper()
	var entries []Entry
	for i, r := range rows {
		row := normalize.Row{}
		for f, v := range r {
			row[f] = normalize.Normalize(v)
		}
		if value, ok := def.Build(row); ok {
			entries = append(entries, Entry{KeyID: keyID, RecordID: recordID(side, i), Value: value})
		}
	}
	require.NoError(t, s.Stage(context.Background(), side, entries))
}

func recordID(side normalize.Side, i int) string {
	return side.String() + string(rune('0'+i))
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer s.Close()
			fn(t, s)
		})
	}
}

func TestSingleFieldExactMatch(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		def := keys.Single(normalize.FieldSurname)
		stage(t, s, normalize.SideA, 1, def, map[string]any{normalize.FieldSurname: "Smith"})
		stage(t, s, normalize.SideB, 1, def, map[string]any{normalize.FieldSurname: "smith "})
		require.NoError(t, s.Seal(ctx))

		c, err := s.Count(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), c.Matches)
		assert.Equal(t, int64(0), c.AOnly)
		assert.Equal(t, int64(0), c.BOnly)
	})
}

func TestCompoundKeyNullExclusion(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		def := keys.Compound("FullName", normalize.FieldFirstName, normalize.FieldSurname)
		stage(t, s, normalize.SideA, 1, def,
			map[string]any{normalize.FieldFirstName: "Jane", normalize.FieldSurname: nil},
			map[string]any{normalize.FieldFirstName: "John", normalize.FieldSurname: "Citizen"},
		)
		stage(t, s, normalize.SideB, 1, def,
			map[string]any{normalize.FieldFirstName: "jane", normalize.FieldSurname: ""},
			map[string]any{normalize.FieldFirstName: "JOHN", normalize.FieldSurname: "citizen"},
		)
		require.NoError(t, s.Seal(ctx))

		c, err := s.Count(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), c.Matches)
		assert.Equal(t, int64(0), c.AOnly, "null compound keys contribute to neither matches nor a_only")
		assert.Equal(t, int64(1), c.ATotal)
		assert.Equal(t, int64(1), c.BTotal)
	})
}

func TestDuplicateExplosion(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		def := keys.Compound("SurnameState", normalize.FieldSurname, normalize.FieldState)
		smithVic := map[string]any{normalize.FieldSurname: "Smith", normalize.FieldState: "vic"}
		stage(t, s, normalize.SideA, 3, def, smithVic, smithVic, smithVic,
			map[string]any{normalize.FieldSurname: "Jones", normalize.FieldState: "NSW"})
		stage(t, s, normalize.SideB, 3, def, smithVic, smithVic)
		require.NoError(t, s.Seal(ctx))

		c, err := s.Count(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(6), c.Matches, "3 x 2 cartesian contribution")
		assert.Equal(t, int64(6), c.LargestGroup)
		assert.Equal(t, int64(1), c.AOnly)
		assert.Equal(t, int64(0), c.BOnly)
		assert.Equal(t, int64(2), c.DistinctA)
		assert.Equal(t, int64(1), c.DistinctB)
		assert.Equal(t, int64(1), c.DistinctCommon)
		assert.Equal(t, int64(3), c.MatchedA())
		assert.Equal(t, int64(2), c.MatchedB())

		top, err := s.TopGroups(ctx, 3, normalize.SideA, 5)
		require.NoError(t, err)
		require.Len(t, top, 1)
		assert.Equal(t, Group{Value: "SMITH VIC", Count: 3}, top[0])

		var pairs []Pair
		require.NoError(t, s.Pairs(ctx, 3, 4, func(p Pair) error {
			pairs = append(pairs, p)
			return nil
		}))
		assert.Len(t, pairs, 4, "pair export honours the limit")
	})
}

func TestAccountingInvariantUniqueKeys(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		def := keys.Single(normalize.FieldEmail)
		var a, b []map[string]any
		for _, e := range []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com", "e@x.com"} {
			a = append(a, map[string]any{normalize.FieldEmail: e})
		}
		for _, e := range []string{"C@X.COM", " d@x.com", "f@x.com"} {
			b = append(b, map[string]any{normalize.FieldEmail: e})
		}
		stage(t, s, normalize.SideA, 7, def, a...)
		stage(t, s, normalize.SideB, 7, def, b...)
		require.NoError(t, s.Seal(ctx))

		c, err := s.Count(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, c.ATotal, c.Matches+c.AOnly)
		assert.Equal(t, c.BTotal, c.Matches+c.BOnly)
		assert.Equal(t, int64(2), c.Matches)
		assert.LessOrEqual(t, c.Matches, min(c.ATotal, c.BTotal))

		var onlyA []string
		require.NoError(t, s.Exclusive(ctx, 7, normalize.SideA, func(id, value string) error {
			onlyA = append(onlyA, value)
			return nil
		}))
		sort.Strings(onlyA)
		assert.Equal(t, []string{"A@X.COM", "B@X.COM", "E@X.COM"}, onlyA)

		var onlyB []string
		require.NoError(t, s.Exclusive(ctx, 7, normalize.SideB, func(id, value string) error {
			onlyB = append(onlyB, id)
			return nil
		}))
		assert.Equal(t, []string{"b2"}, onlyB)
	})
}

func TestCountUnknownKey(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		require.NoError(t, s.Seal(context.Background()))
		c, err := s.Count(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, Counts{}, c)
	})
}

func TestEmailPairs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.StageEmails(ctx, normalize.SideA, []EmailEntry{
			{RecordID: "a1", Key: "JANE@X.COM", Email: "Jane@x.com", Hash: "AA", HasHash: true},
			{RecordID: "a2", Key: "SOLO@X.COM", Email: "solo@x.com"},
		}))
		require.NoError(t, s.StageEmails(ctx, normalize.SideB, []EmailEntry{
			{RecordID: "b1", Key: "JANE@X.COM", Email: "jane@x.com"},
		}))
		require.NoError(t, s.Seal(ctx))

		var pairs []EmailPair
		require.NoError(t, s.EmailPairs(ctx, -1, func(p EmailPair) error {
			pairs = append(pairs, p)
			return nil
		}))
		require.Len(t, pairs, 1)
		assert.Equal(t, "JANE@X.COM", pairs[0].Key)
		assert.Equal(t, "Jane@x.com", pairs[0].A.Email)
		assert.True(t, pairs[0].A.HasHash)
		assert.Equal(t, "AA", pairs[0].A.Hash)
		assert.False(t, pairs[0].B.HasHash)
		assert.Equal(t, "b1", pairs[0].B.RecordID)
	})
}

func TestMemoryStoreSealed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Seal(context.Background()))
	assert.ErrorIs(t, s.Stage(context.Background(), normalize.SideA, []Entry{{KeyID: 1, RecordID: "x", Value: "v"}}), ErrSealed)
}

func TestSQLiteStoreRemovesScratchDir(t *testing.T) {
	root := t.TempDir()
	s, err := OpenSQLite(context.Background(), SQLiteOptions{ScratchDir: root})
	require.NoError(t, err)

	dir := s.Dir()
	_, err = os.Stat(dir)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}
