package versionstore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/secmaster/internal/security"
)

var testColumns = append(append([]string{}, security.KeyColumns...), "price", security.ColEffectiveDate)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "versions.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.RecreateSchema(context.Background(), testColumns))
	return s
}

func rec(figi, date, price string) security.Record {
	return security.Record{
		security.ColFIGI:          figi,
		security.ColCUSIP:         "037833100",
		security.ColSEDOL:         "2046251",
		security.ColISIN:          "US0378331008",
		security.ColCompanyName:   "Apple Inc.",
		security.ColCurrency:      "USD",
		security.ColAssetClass:    "Equity",
		security.ColAssetGroup:    "Domestic Equity",
		"price":                   price,
		security.ColEffectiveDate: date,
	}
}

func TestSQLite_AllVersionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	n, err := AppendBatch(ctx, s, []security.Record{
		rec("BBG000BLNNH3", "2024-01-01", "10"),
		rec("BBG000BLNNH3", "2024-01-03", "30"),
		rec("BBG000BLNNH3", "2024-01-02", "20"),
		rec("BBG00ABCDEF3", "2024-01-05", "99"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	key := rec("BBG000BLNNH3", "", "").Key()
	versions, err := s.AllVersions(ctx, key)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, "2024-01-03", versions[0].EffectiveDate)
	assert.Equal(t, "2024-01-02", versions[1].EffectiveDate)
	assert.Equal(t, "2024-01-01", versions[2].EffectiveDate)
	assert.Equal(t, "20", versions[1].Fields["price"])
	assert.Equal(t, key, versions[0].Key)

	latest, err := s.Latest(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, versions[0], latest)
}

func TestSQLite_DuplicateDatesCollapse(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	_, err := AppendBatch(ctx, s, []security.Record{
		rec("BBG000BLNNH3", "2024-01-02", "first"),
		rec("BBG000BLNNH3", "2024-01-02", "second"),
		rec("BBG000BLNNH3", "2024-01-01", "old"),
	})
	require.NoError(t, err)

	key := rec("BBG000BLNNH3", "", "").Key()
	versions, err := s.AllVersions(ctx, key)
	require.NoError(t, err)
	require.Len(t, versions, 2)

	dates := map[string]bool{}
	for _, v := range versions {
		assert.False(t, dates[v.EffectiveDate], "duplicate date %s", v.EffectiveDate)
		dates[v.EffectiveDate] = true
	}
	assert.Equal(t, "first", versions[0].Fields["price"], "ties resolve to insertion order")

	latest, err := s.Latest(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, versions[0].Fields["price"], latest.Fields["price"])
}

func TestSQLite_VersionAsOf(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)
	_, err := AppendBatch(ctx, s, []security.Record{
		rec("BBG000BLNNH3", "2024-01-01", "10"),
		rec("BBG000BLNNH3", "2024-01-02", "20"),
	})
	require.NoError(t, err)

	key := rec("BBG000BLNNH3", "", "").Key()
	v, err := s.VersionAsOf(ctx, key, "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, "10", v.Fields["price"])

	_, err = s.VersionAsOf(ctx, key, "2024-01-05")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_NotFoundVersusUnavailable(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)
	key := rec("BBG000BLNNH3", "", "").Key()

	_, err := s.Latest(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.AllVersions(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Close())
	_, err = s.Latest(ctx, key)
	var ue *UnavailableError
	assert.True(t, errors.As(err, &ue), "closed store error = %v, want UnavailableError", err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_RecreateSchemaTruncates(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)
	_, err := AppendBatch(ctx, s, []security.Record{rec("BBG000BLNNH3", "2024-01-01", "10")})
	require.NoError(t, err)

	require.NoError(t, s.RecreateSchema(ctx, testColumns))
	_, err = s.Latest(ctx, rec("BBG000BLNNH3", "", "").Key())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ColumnsFromExistingTable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "versions.db")

	first, err := OpenSQLite(ctx, path, "")
	require.NoError(t, err)
	require.NoError(t, first.RecreateSchema(ctx, testColumns))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(ctx, path, "")
	require.NoError(t, err)
	defer second.Close()

	cols, err := second.Columns(ctx)
	require.NoError(t, err)
	assert.Equal(t, testColumns, cols)

	n, err := AppendBatch(ctx, second, []security.Record{rec("BBG000BLNNH3", "2024-01-01", "10")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRecreateSchema_RejectsBadColumns(t *testing.T) {
	s := openTestSQLite(t)
	tests := []struct {
		name string
		cols []string
	}{
		{"empty", nil},
		{"missing key", []string{"figi", "applied_date"}},
		{"duplicate", append(append([]string{}, testColumns...), "price")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, s.RecreateSchema(context.Background(), tt.cols))
		})
	}
}

func TestWriter_AppendEmpty(t *testing.T) {
	s := openTestSQLite(t)
	w, err := s.OpenWriter(context.Background())
	require.NoError(t, err)
	n, err := w.Append(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func TestPostgresSQL(t *testing.T) {
	latest := pgLatestSQL("security_master")
	all := pgAllVersionsSQL("security_master")
	asOf := pgAsOfSQL("security_master")

	assert.True(t, strings.HasPrefix(all, `SELECT DISTINCT ON ("applied_date") * FROM "security_master" WHERE "figi" = $1 AND "cusip" = $2`))
	assert.True(t, strings.HasSuffix(all, `ORDER BY "applied_date" DESC, ctid`))
	assert.True(t, strings.HasSuffix(latest, `ORDER BY "applied_date" DESC, ctid LIMIT 1`))
	assert.Contains(t, latest, `"asset_group" = $8`)
	assert.Contains(t, asOf, `"applied_date" = $9`)
}

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct{ in, want string }{
		{"figi", `"figi"`},
		{`we"ird`, `"we""ird"`},
		{"field_0001", `"field_0001"`},
	}
	for _, tt := range tests {
		if got := quoteIdentifier(tt.in); got != tt.want {
			t.Errorf("quoteIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
