package versionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/JonMunkholm/secmaster/internal/security"
)

// SQLite stores versions in an embedded database file.
type SQLite struct {
	db    *sqlx.DB
	table string

	mu      sync.RWMutex
	columns []string
}

// OpenSQLite opens or creates the database at path. An empty table uses
// DefaultTable.
func OpenSQLite(ctx context.Context, path, table string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path required")
	}
	if table == "" {
		table = DefaultTable
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; writers queue for the single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, unavailable("ping", err)
	}
	return &SQLite{db: db, table: table}, nil
}

func sqlitePlaceholder(int) string { return "?" }

func sqliteSelectSQL(table string) string {
	return fmt.Sprintf("SELECT * FROM %s WHERE %s ORDER BY %s DESC, rowid",
		quoteIdentifier(table), keyPredicate(sqlitePlaceholder), quoteIdentifier(security.ColEffectiveDate))
}

func sqliteAsOfSQL(table string) string {
	return fmt.Sprintf("SELECT * FROM %s WHERE %s AND %s = ? ORDER BY rowid LIMIT 1",
		quoteIdentifier(table), keyPredicate(sqlitePlaceholder), quoteIdentifier(security.ColEffectiveDate))
}

func insertSQL(table string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdentifier(c)
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdentifier(table), strings.Join(quoted, ", "), marks)
}

func (s *SQLite) RecreateSchema(ctx context.Context, columns []string) error {
	if err := validateColumns(columns); err != nil {
		return fmt.Errorf("recreate schema: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return unavailable("recreate schema", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{dropTableSQL(s.table), createTableSQL(s.table, columns), createIndexSQL(s.table)} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return unavailable("recreate schema", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable("recreate schema", err)
	}

	s.mu.Lock()
	s.columns = append([]string(nil), columns...)
	s.mu.Unlock()

	slog.Info("version table recreated", "table", s.table, "columns", len(columns))
	return nil
}

// Columns returns the table's columns.
func (s *SQLite) Columns(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	cols := s.columns
	s.mu.RUnlock()
	if cols != nil {
		return cols, nil
	}

	if err := s.db.SelectContext(ctx, &cols, "SELECT name FROM pragma_table_info(?) ORDER BY cid", s.table); err != nil {
		return nil, unavailable("columns", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s: %w", s.table, ErrNotFound)
	}

	s.mu.Lock()
	s.columns = cols
	s.mu.Unlock()
	return cols, nil
}

// OpenWriter holds the database's single connection until Close.
func (s *SQLite) OpenWriter(ctx context.Context) (Writer, error) {
	cols, err := s.Columns(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, unavailable("acquire connection", err)
	}
	return &sqliteWriter{conn: conn, insert: insertSQL(s.table, cols), columns: cols}, nil
}

type sqliteWriter struct {
	conn    *sqlx.Conn
	insert  string
	columns []string
}

// Append inserts rows in one transaction.
func (w *sqliteWriter) Append(ctx context.Context, rows []security.Record) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := w.conn.BeginTxx(ctx, nil)
	if err != nil {
		return 0, unavailable("append", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, w.insert)
	if err != nil {
		return 0, unavailable("append", err)
	}
	defer stmt.Close()

	for _, rec := range rows {
		if _, err := stmt.ExecContext(ctx, rowValues(rec, w.columns)...); err != nil {
			return 0, unavailable("append", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable("append", err)
	}
	return int64(len(rows)), nil
}

func (w *sqliteWriter) Close() error {
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}

func (s *SQLite) query(ctx context.Context, op, query string, args ...any) ([]security.Version, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, s.queryError(op, err)
	}
	defer rows.Close()

	var out []security.Version
	for rows.Next() {
		m := make(map[string]any)
		if err := rows.MapScan(m); err != nil {
			return nil, unavailable(op, err)
		}
		out = append(out, toVersion(m))
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *SQLite) queryError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) || strings.Contains(err.Error(), "no such table") {
		return ErrNotFound
	}
	return unavailable(op, err)
}

func (s *SQLite) Latest(ctx context.Context, key security.Key) (security.Version, error) {
	vs, err := s.query(ctx, "latest", sqliteSelectSQL(s.table)+" LIMIT 1", keyArgs(key)...)
	if err != nil {
		return security.Version{}, err
	}
	return vs[0], nil
}

func (s *SQLite) AllVersions(ctx context.Context, key security.Key) ([]security.Version, error) {
	vs, err := s.query(ctx, "all versions", sqliteSelectSQL(s.table), keyArgs(key)...)
	if err != nil {
		return nil, err
	}
	return dedupeByDate(vs), nil
}

func (s *SQLite) VersionAsOf(ctx context.Context, key security.Key, date string) (security.Version, error) {
	vs, err := s.query(ctx, "version as of", sqliteAsOfSQL(s.table), keyArgs(key, date)...)
	if err != nil {
		return security.Version{}, err
	}
	return vs[0], nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping checks the database is open.
func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}
