package versionstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/secmaster/internal/security"
)

// pgUndefinedTable is the SQLSTATE for a missing relation.
const pgUndefinedTable = "42P01"

// Postgres stores versions in a PostgreSQL table.
type Postgres struct {
	pool  *pgxpool.Pool
	table string

	mu      sync.RWMutex
	columns []string
}

// NewPostgres creates a store over pool. An empty table uses DefaultTable.
func NewPostgres(pool *pgxpool.Pool, table string) *Postgres {
	if table == "" {
		table = DefaultTable
	}
	return &Postgres{pool: pool, table: table}
}

func pgPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

// pgLatestSQL orders same-date ties by physical row position, matching
// pgAllVersionsSQL so Latest is always the head of AllVersions.
func pgLatestSQL(table string) string {
	return fmt.Sprintf("SELECT * FROM %s WHERE %s ORDER BY %s DESC, ctid LIMIT 1",
		quoteIdentifier(table), keyPredicate(pgPlaceholder), quoteIdentifier(security.ColEffectiveDate))
}

func pgAllVersionsSQL(table string) string {
	date := quoteIdentifier(security.ColEffectiveDate)
	return fmt.Sprintf("SELECT DISTINCT ON (%s) * FROM %s WHERE %s ORDER BY %s DESC, ctid",
		date, quoteIdentifier(table), keyPredicate(pgPlaceholder), date)
}

func pgAsOfSQL(table string) string {
	n := len(security.KeyColumns) + 1
	return fmt.Sprintf("SELECT * FROM %s WHERE %s AND %s = $%d ORDER BY ctid LIMIT 1",
		quoteIdentifier(table), keyPredicate(pgPlaceholder), quoteIdentifier(security.ColEffectiveDate), n)
}

const pgColumnsSQL = `SELECT column_name FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
ORDER BY ordinal_position`

// RecreateSchema drops and recreates the table in one transaction.
func (p *Postgres) RecreateSchema(ctx context.Context, columns []string) error {
	if err := validateColumns(columns); err != nil {
		return fmt.Errorf("recreate schema: %w", err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return unavailable("recreate schema", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range []string{dropTableSQL(p.table), createTableSQL(p.table, columns), createIndexSQL(p.table)} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return unavailable("recreate schema", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable("recreate schema", err)
	}

	p.mu.Lock()
	p.columns = append([]string(nil), columns...)
	p.mu.Unlock()

	slog.Info("version table recreated", "table", p.table, "columns", len(columns))
	return nil
}

// Columns returns the table's columns, loading them when the schema was
// created by another process.
func (p *Postgres) Columns(ctx context.Context) ([]string, error) {
	p.mu.RLock()
	cols := p.columns
	p.mu.RUnlock()
	if cols != nil {
		return cols, nil
	}

	rows, err := p.pool.Query(ctx, pgColumnsSQL, p.table)
	if err != nil {
		return nil, unavailable("columns", err)
	}
	cols, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, unavailable("columns", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s: %w", p.table, ErrNotFound)
	}

	p.mu.Lock()
	p.columns = cols
	p.mu.Unlock()
	return cols, nil
}

// OpenWriter acquires one pooled connection for the writer's lifetime.
func (p *Postgres) OpenWriter(ctx context.Context) (Writer, error) {
	cols, err := p.Columns(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, unavailable("acquire connection", err)
	}
	return &pgWriter{conn: conn, table: p.table, columns: cols}, nil
}

type pgWriter struct {
	conn    *pgxpool.Conn
	table   string
	columns []string
}

// Append bulk-loads rows with COPY.
func (w *pgWriter) Append(ctx context.Context, rows []security.Record) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	src := make([][]any, len(rows))
	for i, rec := range rows {
		src[i] = rowValues(rec, w.columns)
	}
	n, err := w.conn.CopyFrom(ctx, pgx.Identifier{w.table}, w.columns, pgx.CopyFromRows(src))
	if err != nil {
		return n, unavailable("append", err)
	}
	return n, nil
}

// Close releases the connection back to the pool. Safe to call twice.
func (w *pgWriter) Close() error {
	if w.conn != nil {
		w.conn.Release()
		w.conn = nil
	}
	return nil
}

func (p *Postgres) query(ctx context.Context, op, sql string, args ...any) ([]security.Version, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, p.queryError(op, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, p.queryError(op, err)
	}
	if len(maps) == 0 {
		return nil, ErrNotFound
	}
	out := make([]security.Version, len(maps))
	for i, m := range maps {
		out[i] = toVersion(m)
	}
	return out, nil
}

// queryError treats a missing table as "no data".
func (p *Postgres) queryError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
		return ErrNotFound
	}
	return unavailable(op, err)
}

func (p *Postgres) Latest(ctx context.Context, key security.Key) (security.Version, error) {
	vs, err := p.query(ctx, "latest", pgLatestSQL(p.table), keyArgs(key)...)
	if err != nil {
		return security.Version{}, err
	}
	return vs[0], nil
}

func (p *Postgres) AllVersions(ctx context.Context, key security.Key) ([]security.Version, error) {
	vs, err := p.query(ctx, "all versions", pgAllVersionsSQL(p.table), keyArgs(key)...)
	if err != nil {
		return nil, err
	}
	return dedupeByDate(vs), nil
}

func (p *Postgres) VersionAsOf(ctx context.Context, key security.Key, date string) (security.Version, error) {
	vs, err := p.query(ctx, "version as of", pgAsOfSQL(p.table), keyArgs(key, date)...)
	if err != nil {
		return security.Version{}, err
	}
	return vs[0], nil
}

// Close is a no-op; the pool is owned by the caller.
func (p *Postgres) Close() error { return nil }

// Ping checks the pool can reach the server.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}
