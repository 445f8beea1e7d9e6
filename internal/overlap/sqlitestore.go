package overlap

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/record-overlap/internal/normalize"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS key_values (
	key_id    INTEGER NOT NULL,
	side      INTEGER NOT NULL,
	record_id TEXT    NOT NULL,
	value     TEXT    NOT NULL
);
CREATE TABLE IF NOT EXISTS email_entries (
	side      INTEGER NOT NULL,
	record_id TEXT    NOT NULL,
	email_key TEXT    NOT NULL,
	email     TEXT    NOT NULL,
	hash      TEXT
);
`

const sqliteIndexes = `
CREATE INDEX IF NOT EXISTS idx_key_values ON key_values(key_id, value, side);
CREATE INDEX IF NOT EXISTS idx_email_entries ON email_entries(email_key, side);
ANALYZE;
`

// SQLiteOptions configure an on-disk staging store.
type SQLiteOptions struct {
	// ScratchDir is the parent directory for the run's private directory.
	// Empty means os.TempDir().
	ScratchDir string
	// RunID names the private directory; a random one is used when empty.
	RunID string
	// MaxConns bounds concurrent readers after Seal.
	MaxConns int
}

// SQLiteStore stages key values in a SQLite database inside a private
// scratch directory. Grouping is done by SQLite, which spills sort and
// group b-trees to disk, so inputs need not fit in memory. Close removes
// the directory.
type SQLiteStore struct {
	db  *sql.DB
	dir string
}

// OpenSQLite creates the scratch directory and the staging database.
func OpenSQLite(ctx context.Context, opts SQLiteOptions) (*SQLiteStore, error) {
	root := opts.ScratchDir
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create scratch directory %s", root)
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	dir, err := os.MkdirTemp(root, "overlap-"+runID+"-")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create run scratch directory")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(OFF)&_pragma=synchronous(OFF)&_pragma=temp_store(FILE)&_pragma=busy_timeout(10000)",
		filepath.Join(dir, "staging.db"))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		os.RemoveAll(dir)
		return nil, errors.Wrap(err, "failed to open staging database")
	}

	conns := opts.MaxConns
	if conns < 1 {
		conns = 1
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		os.RemoveAll(dir)
		return nil, errors.Wrap(err, "failed to create staging schema")
	}

	return &SQLiteStore{db: db, dir: dir}, nil
}

// Dir returns the run's scratch directory.
func (s *SQLiteStore) Dir() string { return s.dir }

func (s *SQLiteStore) Stage(ctx context.Context, side normalize.Side, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.inTx(ctx, `INSERT INTO key_values (key_id, side, record_id, value) VALUES (?, ?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, e := range entries {
				if _, err := stmt.ExecContext(ctx, e.KeyID, int(side), e.RecordID, e.Value); err != nil {
					return err
				}
			}
			return nil
		})
}

func (s *SQLiteStore) StageEmails(ctx context.Context, side normalize.Side, entries []EmailEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.inTx(ctx, `INSERT INTO email_entries (side, record_id, email_key, email, hash) VALUES (?, ?, ?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, e := range entries {
				hash := sql.NullString{String: e.Hash, Valid: e.HasHash}
				if _, err := stmt.ExecContext(ctx, int(side), e.RecordID, e.Key, e.Email, hash); err != nil {
					return err
				}
			}
			return nil
		})
}

func (s *SQLiteStore) inTx(ctx context.Context, query string, fn func(*sql.Stmt) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin staging transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return errors.Wrap(err, "failed to prepare staging statement")
	}
	defer stmt.Close()

	if err := fn(stmt); err != nil {
		return errors.Wrap(err, "failed to stage batch")
	}
	return errors.Wrap(tx.Commit(), "failed to commit staging batch")
}

func (s *SQLiteStore) Seal(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteIndexes)
	return errors.Wrap(err, "failed to index staging tables")
}

func (s *SQLiteStore) Count(ctx context.Context, keyID int) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(a * b), 0),
			COALESCE(SUM(CASE WHEN b = 0 THEN a ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN a = 0 THEN b ELSE 0 END), 0),
			COALESCE(SUM(a), 0),
			COALESCE(SUM(b), 0),
			COUNT(CASE WHEN a > 0 THEN 1 END),
			COUNT(CASE WHEN b > 0 THEN 1 END),
			COUNT(CASE WHEN a > 0 AND b > 0 THEN 1 END),
			COALESCE(MAX(a * b), 0)
		FROM (
			SELECT SUM(side = 0) AS a, SUM(side = 1) AS b
			FROM key_values
			WHERE key_id = ?
			GROUP BY value
		)`, keyID).Scan(
		&c.Matches, &c.AOnly, &c.BOnly, &c.ATotal, &c.BTotal,
		&c.DistinctA, &c.DistinctB, &c.DistinctCommon, &c.LargestGroup,
	)
	if err != nil {
		return Counts{}, errors.Wrapf(err, "failed to count key %d", keyID)
	}
	return c, nil
}

func (s *SQLiteStore) TopGroups(ctx context.Context, keyID int, side normalize.Side, n int) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT value, COUNT(*) AS n
		FROM key_values
		WHERE key_id = ? AND side = ?
		GROUP BY value
		HAVING COUNT(*) > 1
		ORDER BY n DESC, value
		LIMIT ?`, keyID, int(side), n)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query duplicate groups for key %d", keyID)
	}
	defer rows.Close()

	var out []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.Value, &g.Count); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Exclusive(ctx context.Context, keyID int, side normalize.Side, fn func(recordID, value string) error) error {
	other := normalize.SideB
	if side == normalize.SideB {
		other = normalize.SideA
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT k.record_id, k.value
		FROM key_values k
		WHERE k.key_id = ? AND k.side = ?
		  AND NOT EXISTS (
			SELECT 1 FROM key_values o
			WHERE o.key_id = k.key_id AND o.value = k.value AND o.side = ?
		  )
		ORDER BY k.value, k.record_id`, keyID, int(side), int(other))
	if err != nil {
		return errors.Wrapf(err, "failed to query exclusive records for key %d", keyID)
	}
	defer rows.Close()

	for rows.Next() {
		var id, value string
		if err := rows.Scan(&id, &value); err != nil {
			return err
		}
		if err := fn(id, value); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) Pairs(ctx context.Context, keyID int, limit int64, fn func(Pair) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.record_id, b.record_id, a.value
		FROM key_values a
		JOIN key_values b ON b.key_id = a.key_id AND b.value = a.value AND b.side = 1
		WHERE a.key_id = ? AND a.side = 0
		ORDER BY a.value, a.record_id, b.record_id
		LIMIT ?`, keyID, limit)
	if err != nil {
		return errors.Wrapf(err, "failed to query pairs for key %d", keyID)
	}
	defer rows.Close()

	for rows.Next() {
		var p Pair
		if err := rows.Scan(&p.RecordA, &p.RecordB, &p.Value); err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) EmailPairs(ctx context.Context, limit int64, fn func(EmailPair) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.email_key, a.record_id, a.email, a.hash, b.record_id, b.email, b.hash
		FROM email_entries a
		JOIN email_entries b ON b.email_key = a.email_key AND b.side = 1
		WHERE a.side = 0
		ORDER BY a.email_key, a.record_id, b.record_id
		LIMIT ?`, limit)
	if err != nil {
		return errors.Wrap(err, "failed to query email pairs")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p            EmailPair
			hashA, hashB sql.NullString
		)
		if err := rows.Scan(&p.Key, &p.A.RecordID, &p.A.Email, &hashA, &p.B.RecordID, &p.B.Email, &hashB); err != nil {
			return err
		}
		p.A.Key, p.B.Key = p.Key, p.Key
		p.A.Hash, p.A.HasHash = hashA.String, hashA.Valid
		p.B.Hash, p.B.HasHash = hashB.String, hashB.Valid
		if err := fn(p); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Close closes the database and removes the scratch directory.
func (s *SQLiteStore) Close() error {
	dbErr := s.db.Close()
	dirErr := os.RemoveAll(s.dir)
	if dbErr != nil {
		return errors.Wrap(dbErr, "failed to close staging database")
	}
	return errors.Wrap(dirErr, "failed to remove scratch directory")
}
