package analysis

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/record-overlap/internal/normalize"
	"github.com/record-overlap/internal/overlap"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// ExportFileName turns a key name into a safe file name prefix.
func ExportFileName(key string) string {
	name := strings.Trim(unsafeFileChars.ReplaceAllString(key, "_"), "_")
	if name == "" {
		return "key"
	}
	return name
}

// exportKeys writes the a-only, b-only and (capped) match record lists of
// every computed key into dir.
func exportKeys(ctx context.Context, store overlap.Store, engine *overlap.Engine, results []overlap.KeyResult, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create export dir %s", dir)
	}

	var files []string
	for keyID, res := range results {
		if res.Status != overlap.StatusComputed {
			continue
		}
		prefix := filepath.Join(dir, ExportFileName(res.Name))

		for _, side := range normalize.Sides {
			path := prefix + "_" + side.String() + "_only.csv"
			err := writeCSV(path, []string{"record_id", "value"}, func(w *csv.Writer) error {
				return store.Exclusive(ctx, keyID, side, func(recordID, value string) error {
					return w.Write([]string{recordID, value})
				})
			})
			if err != nil {
				return files, errors.Wrapf(err, "failed to export %s", path)
			}
			files = append(files, path)
		}

		path := prefix + "_matches.csv"
		err := writeCSV(path, []string{"record_id_a", "record_id_b", "value"}, func(w *csv.Writer) error {
			return store.Pairs(ctx, keyID, engine.ExportLimit(), func(p overlap.Pair) error {
				return w.Write([]string{p.RecordA, p.RecordB, p.Value})
			})
		})
		if err != nil {
			return files, errors.Wrapf(err, "failed to export %s", path)
		}
		files = append(files, path)
	}
	return files, nil
}

func writeCSV(path string, header []string, fill func(*csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := fill(w); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
