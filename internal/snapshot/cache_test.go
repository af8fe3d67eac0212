package snapshot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/secmaster/internal/rules"
	"github.com/JonMunkholm/secmaster/internal/security"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client), mr
}

func record(figi, currency, date string) security.Record {
	return security.Record{
		security.ColFIGI:          figi,
		security.ColCUSIP:         "037833100",
		security.ColSEDOL:         "2046251",
		security.ColISIN:          "US0378331008",
		security.ColCompanyName:   "Apple Inc.",
		security.ColCurrency:      currency,
		security.ColAssetClass:    "Equity",
		security.ColAssetGroup:    "Domestic Equity",
		"price":                   "10",
		security.ColEffectiveDate: date,
	}
}

func TestCache_UpsertGet(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	r1 := record("BBG000BLNNH3", "USD", "2024-01-01")
	key := r1.Key()
	require.NoError(t, c.Upsert(ctx, key.String(), r1))

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, r1, got)

	r2 := security.Record{security.ColFIGI: "BBG000BLNNH3", security.ColEffectiveDate: "2024-01-02"}
	require.NoError(t, c.Upsert(ctx, key.String(), r2))
	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, r2, got, "upsert replaces the whole record")

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCache_GetMissing(t *testing.T) {
	c, _ := newTestCache(t)
	_, err := c.Get(context.Background(), record("X", "USD", "").Key())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCache_Unavailable(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	_, err := c.Get(context.Background(), record("X", "USD", "").Key())
	var ue *UnavailableError
	assert.True(t, errors.As(err, &ue), "error = %v, want UnavailableError", err)
	assert.False(t, errors.Is(err, ErrNotFound))

	_, err = c.Count(context.Background())
	assert.True(t, errors.As(err, &ue))
}

func TestCache_IndexesFollowOverwrites(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	id := "fixed-id"
	require.NoError(t, c.Upsert(ctx, id, record("BBG000BLNNH3", "USD", "2024-01-01")))

	found, err := c.Search(ctx, security.ColCurrency, "USD")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, id, found[0].ID)

	require.NoError(t, c.Upsert(ctx, id, record("BBG000BLNNH3", "EUR", "2024-01-02")))

	members, _ := mr.Members(IndexKey(security.ColCurrency, "USD"))
	assert.Empty(t, members, "stale index set should be emptied")
	found, err = c.Search(ctx, security.ColCurrency, "USD")
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = c.Search(ctx, security.ColCurrency, "EUR")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "2024-01-02", found[0].Fields[security.ColEffectiveDate])
}

func TestCache_SearchDropsStaleMembers(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.NoError(t, c.Upsert(ctx, "a", record("BBG000BLNNH3", "USD", "2024-01-01")))
	require.NoError(t, c.IndexAdd(ctx, security.ColCurrency, "USD", "ghost"))

	members, err := mr.Members(IndexKey(security.ColCurrency, "USD"))
	require.NoError(t, err)
	assert.Len(t, members, 2)

	found, err := c.Search(ctx, security.ColCurrency, "USD")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "a", found[0].ID)

	members, err = mr.Members(IndexKey(security.ColCurrency, "USD"))
	require.NoError(t, err)
	assert.Equal(t, []string{RecordKey("a")}, members)
}

func TestCache_ScanAndClear(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	for _, figi := range []string{"BBG000000001", "BBG000000002", "BBG000000003"} {
		r := record(figi, "USD", "2024-01-01")
		require.NoError(t, c.Upsert(ctx, r.Key().String(), r))
	}
	require.NoError(t, c.PushIssues(ctx, []rules.Issue{{RowNumber: 1, Field: "FIGI", Severity: rules.Warning}}))

	entries, err := c.Scan(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = c.Scan(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	require.NoError(t, c.Clear(ctx))
	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	for _, k := range mr.Keys() {
		assert.False(t, strings.HasPrefix(k, RecordPrefix) || strings.HasPrefix(k, IndexPrefix), "key %s survived Clear", k)
	}
	assert.False(t, mr.Exists(TraceList))
}

func TestLoader_PipelinesAndFallbackKeys(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	blank1 := record("BBG000BLNNH3", "USD", "2024-01-01")
	blank1[security.ColCUSIP] = ""
	blank2 := blank1.Clone()
	blank2["price"] = "20"

	shared1 := record("BBG00ABCDEF3", "GBP", "2024-01-01")
	shared2 := record("BBG00ABCDEF3", "GBP", "2024-01-02")

	l := c.NewLoader("vendor_2024-01-02.csv", 2)
	for _, r := range []security.Record{blank1, blank2, shared1, shared2, record("BBG000000009", "JPY", "2024-01-01")} {
		require.NoError(t, l.Add(ctx, r))
	}
	require.NoError(t, l.Flush(ctx))
	assert.Equal(t, int64(5), l.Loaded())

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n, "two fallback keys plus two composite keys")

	got, err := c.Get(ctx, shared1.Key())
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", got[security.ColEffectiveDate], "last loaded row wins")

	_, err = c.Get(ctx, blank1.Key())
	assert.ErrorIs(t, err, ErrNotFound, "blank-key rows never land under the pipe-joined key")

	found, err := c.Search(ctx, security.ColFIGI, "BBG000BLNNH3")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.NotEqual(t, found[0].ID, found[1].ID)
	for _, e := range found {
		assert.True(t, strings.HasPrefix(e.ID, "record:vendor_2024-01-02.csv:"), "id %s", e.ID)
	}
}

func TestEntryID(t *testing.T) {
	full := record("BBG000BLNNH3", "USD", "2024-01-01")
	assert.Equal(t, full.Key().String(), EntryID("f.csv", full))

	partial := full.Clone()
	partial[security.ColSEDOL] = " "
	a, b := EntryID("f.csv", partial), EntryID("f.csv", partial)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "record:f.csv:"))
}

func TestRuleTrace(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	issues := []rules.Issue{
		{RowNumber: 1, UniqueKey: "a|b", Field: "FIGI", Severity: rules.Warning, Message: rules.MsgEmpty},
		{RowNumber: 2, UniqueKey: "c|d", Field: "ISIN", FieldValue: "X", Severity: rules.Error, Message: "bad"},
	}
	require.NoError(t, c.PushIssues(ctx, issues))
	require.NoError(t, c.PushIssues(ctx, nil))

	got, err := c.RuleTrace(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, issues, got)

	got, err = c.RuleTrace(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
