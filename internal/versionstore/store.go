// Package versionstore keeps the append-only history of security versions:
// one row per (security key, effective date), every column stored as text.
//
// Rows are never updated or deleted. Idempotency comes from recreating the
// table and reloading, not from upserts, so appending the same file twice
// duplicates its rows. Reads deduplicate to one version per effective date.
//
// Two backends share the Store interface: PostgreSQL through pgx for
// deployments and embedded SQLite through sqlx for local runs and tests.
package versionstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/secmaster/internal/security"
)

// DefaultTable is the backing table name.
const DefaultTable = "security_master"

// ErrNotFound is returned when no version matches a lookup.
var ErrNotFound = errors.New("security version not found")

// UnavailableError reports a store that could not be reached or a query
// that failed. It is distinct from ErrNotFound so callers can tell "no data"
// from "store down".
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("version store unavailable: %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func unavailable(op string, err error) error {
	return &UnavailableError{Op: op, Err: err}
}

// Store is the durable version history.
type Store interface {
	// RecreateSchema drops and recreates the backing table with one text
	// column per model column. Only for full reloads.
	RecreateSchema(ctx context.Context, columns []string) error

	// OpenWriter acquires a connection for bulk appends. The caller must
	// Close the writer to release it.
	OpenWriter(ctx context.Context) (Writer, error)

	// Latest returns the version with the greatest effective date.
	Latest(ctx context.Context, key security.Key) (security.Version, error)

	// AllVersions returns at most one version per effective date, newest
	// first. An unknown key yields ErrNotFound.
	AllVersions(ctx context.Context, key security.Key) ([]security.Version, error)

	// VersionAsOf returns the version effective exactly on date.
	VersionAsOf(ctx context.Context, key security.Key, date string) (security.Version, error)

	// Ping checks that the store answers.
	Ping(ctx context.Context) error

	Close() error
}

// Writer appends rows over one held connection.
type Writer interface {
	// Append inserts rows without deduplication and returns the count.
	Append(ctx context.Context, rows []security.Record) (int64, error)
	Close() error
}

// AppendBatch appends rows over a short-lived writer.
func AppendBatch(ctx context.Context, s Store, rows []security.Record) (int64, error) {
	w, err := s.OpenWriter(ctx)
	if err != nil {
		return 0, err
	}
	defer w.Close()
	return w.Append(ctx, rows)
}

// validateColumns rejects an empty or duplicated column set, and one that
// lacks any key column or the effective-date column.
func validateColumns(columns []string) error {
	if len(columns) == 0 {
		return errors.New("no columns")
	}
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if strings.TrimSpace(c) == "" {
			return errors.New("blank column name")
		}
		if seen[c] {
			return fmt.Errorf("duplicate column %q", c)
		}
		seen[c] = true
	}
	for _, c := range append(append([]string{}, security.KeyColumns...), security.ColEffectiveDate) {
		if !seen[c] {
			return fmt.Errorf("missing required column %q", c)
		}
	}
	return nil
}

// rowValues orders a record by columns as driver arguments.
func rowValues(rec security.Record, columns []string) []any {
	vals := make([]any, len(columns))
	for i, c := range columns {
		vals[i] = rec[c]
	}
	return vals
}

// toVersion converts a scanned row. NULLs become blank strings.
func toVersion(row map[string]any) security.Version {
	rec := make(security.Record, len(row))
	for col, v := range row {
		switch x := v.(type) {
		case nil:
			rec[col] = ""
		case string:
			rec[col] = x
		case []byte:
			rec[col] = string(x)
		default:
			rec[col] = fmt.Sprint(x)
		}
	}
	return security.NewVersion(rec)
}

// dedupeByDate keeps the first version seen for each effective date.
// Input must already be ordered newest first.
func dedupeByDate(versions []security.Version) []security.Version {
	out := versions[:0]
	seen := make(map[string]bool, len(versions))
	for _, v := range versions {
		if seen[v.EffectiveDate] {
			continue
		}
		seen[v.EffectiveDate] = true
		out = append(out, v)
	}
	return out
}

// quoteIdentifier safely quotes a SQL identifier.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// keyPredicate renders "col1 = $1 AND col2 = $2 ..." over the key columns.
// placeholder renders the n-th (1-indexed) bind parameter.
func keyPredicate(placeholder func(n int) string) string {
	parts := make([]string, len(security.KeyColumns))
	for i, col := range security.KeyColumns {
		parts[i] = fmt.Sprintf("%s = %s", quoteIdentifier(col), placeholder(i+1))
	}
	return strings.Join(parts, " AND ")
}

func keyArgs(key security.Key, extra ...any) []any {
	vals := key.Values()
	args := make([]any, 0, len(vals)+len(extra))
	for _, v := range vals {
		args = append(args, v)
	}
	return append(args, extra...)
}

func createTableSQL(table string, columns []string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = quoteIdentifier(c) + " TEXT"
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdentifier(table), strings.Join(defs, ", "))
}

func createIndexSQL(table string) string {
	cols := make([]string, 0, len(security.KeyColumns)+1)
	for _, c := range security.KeyColumns {
		cols = append(cols, quoteIdentifier(c))
	}
	cols = append(cols, quoteIdentifier(security.ColEffectiveDate))
	return fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
		quoteIdentifier(table+"_key_idx"), quoteIdentifier(table), strings.Join(cols, ", "))
}

func dropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + quoteIdentifier(table)
}
