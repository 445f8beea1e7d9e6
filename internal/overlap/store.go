package overlap

import (
	"context"

	"github.com/record-overlap/internal/normalize"
)

// Entry is one staged (record, key value) pair.
type Entry struct {
	KeyID    int
	RecordID string
	Value    string
}

// EmailEntry is a staged email with its stored hash.
type EmailEntry struct {
	RecordID string
	Key      string // normalized email used for the join
	Email    string // raw email as read from the source
	Hash     string
	HasHash  bool
}

// EmailPair is one email joined across both sides.
type EmailPair struct {
	Key string
	A   EmailEntry
	B   EmailEntry
}

// Counts are the raw join / anti-join counts for one key.
type Counts struct {
	Matches   int64 `json:"matches"`
	AOnly     int64 `json:"a_only"`
	BOnly     int64 `json:"b_only"`
	ATotal    int64 `json:"a_total"`
	BTotal    int64 `json:"b_total"`
	DistinctA int64 `json:"distinct_a"`
	DistinctB int64 `json:"distinct_b"`
	// DistinctCommon counts the values present on both sides.
	DistinctCommon int64 `json:"distinct_common"`
	LargestGroup   int64 `json:"largest_group"`
}

// MatchedA is the number of side A records with at least one counterpart.
func (c Counts) MatchedA() int64 { return c.ATotal - c.AOnly }

// MatchedB is the number of side B records with at least one counterpart.
func (c Counts) MatchedB() int64 { return c.BTotal - c.BOnly }

// Group is one key value and how many records on a side share it.
type Group struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// Pair is one matched record pair.
type Pair struct {
	RecordA string
	RecordB string
	Value   string
}

// Store holds the staged key values of one run and answers grouped
// queries over them. Staging happens before Seal; queries after it may run
// concurrently.
type Store interface {
	Stage(ctx context.Context, side normalize.Side, entries []Entry) error
	StageEmails(ctx context.Context, side normalize.Side, entries []EmailEntry) error
	Seal(ctx context.Context) error

	Count(ctx context.Context, keyID int) (Counts, error)
	TopGroups(ctx context.Context, keyID int, side normalize.Side, n int) ([]Group, error)
	Exclusive(ctx context.Context, keyID int, side normalize.Side, fn func(recordID, value string) error) error
	Pairs(ctx context.Context, keyID int, limit int64, fn func(Pair) error) error
	EmailPairs(ctx context.Context, limit int64, fn func(EmailPair) error) error

	Close() error
}
