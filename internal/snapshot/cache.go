// Package snapshot holds the most recently loaded version of every security
// in Redis for fast point lookups.
//
// Layout:
//
//	security:<composite key>       hash of the full record
//	index:<column>:<value>         set of record keys with that key-field value
//	security_keys                  sorted set of record keys by load time
//	rule_trace                     list of JSON-encoded validation issues
//
// An upsert replaces the whole hash and moves its index memberships in one
// Lua script, so reverse indexes never point at values a record no longer
// has. Loads are last-write-wins: the entry reflects the last row loaded for
// a key, not necessarily the one with the latest effective date.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/secmaster/internal/security"
)

// Key layout.
const (
	RecordPrefix = "security:"
	IndexPrefix  = "index:"
	KeysSet      = "security_keys"
	TraceList    = "rule_trace"
)

// DefaultScanLimit bounds Scan when no limit is given.
const DefaultScanLimit = 1000

// ErrNotFound is returned when no entry exists for a key.
var ErrNotFound = errors.New("snapshot entry not found")

// UnavailableError reports a failed Redis call.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("snapshot cache unavailable: %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func unavailable(op string, err error) error {
	return &UnavailableError{Op: op, Err: err}
}

// Options configures the Redis client.
type Options struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

// Connect creates a client and verifies it with PING.
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		PoolSize:    opts.PoolSize,
		DialTimeout: opts.DialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, unavailable("ping", err)
	}
	return client, nil
}

// Entry is one cached record.
type Entry struct {
	ID     string          `json:"id"`
	Fields security.Record `json:"fields"`
}

// Cache is the Redis-backed snapshot store.
type Cache struct {
	client redis.UniversalClient
	now    func() time.Time
}

// New wraps client.
func New(client redis.UniversalClient) *Cache {
	return &Cache{client: client, now: time.Now}
}

// RecordKey returns the Redis key for a record id.
func RecordKey(id string) string { return RecordPrefix + id }

// IndexKey returns the reverse-index set for a column value.
func IndexKey(column, value string) string {
	return IndexPrefix + column + ":" + value
}

// upsertScript replaces a record hash and moves its index memberships.
//
//	KEYS[1]   record key
//	KEYS[2]   key sorted set
//	KEYS[3..] index sets to join
//	ARGV[1]   sorted set score
//	ARGV[2]   index prefix
//	ARGV[3]   n, number of indexed columns
//	ARGV[4..3+n]  indexed column names
//	ARGV[4+n..]   field/value pairs
var upsertScript = redis.NewScript(`
local key = KEYS[1]
local prefix = ARGV[2]
local n = tonumber(ARGV[3])
for i = 1, n do
  local col = ARGV[3 + i]
  local old = redis.call('HGET', key, col)
  if old and old ~= '' then
    redis.call('SREM', prefix .. col .. ':' .. old, key)
  end
end
redis.call('DEL', key)
local i = 4 + n
while i <= #ARGV do
  local j = math.min(i + 199, #ARGV)
  redis.call('HSET', key, unpack(ARGV, i, j))
  i = j + 1
end
for k = 3, #KEYS do
  redis.call('SADD', KEYS[k], key)
end
redis.call('ZADD', KEYS[2], ARGV[1], key)
return 1
`)

// upsertArgs builds the script keys and arguments for one record.
func (c *Cache) upsertArgs(id string, rec security.Record) ([]string, []any) {
	rk := RecordKey(id)
	keys := []string{rk, KeysSet}
	for _, col := range security.KeyColumns {
		if v := rec[col]; strings.TrimSpace(v) != "" {
			keys = append(keys, IndexKey(col, v))
		}
	}

	args := make([]any, 0, 3+len(security.KeyColumns)+2*len(rec))
	args = append(args, c.now().UnixMicro(), IndexPrefix, len(security.KeyColumns))
	for _, col := range security.KeyColumns {
		args = append(args, col)
	}
	for f, v := range rec {
		args = append(args, f, v)
	}
	return keys, args
}

// Upsert replaces the entry for id with rec.
func (c *Cache) Upsert(ctx context.Context, id string, rec security.Record) error {
	keys, args := c.upsertArgs(id, rec)
	if err := upsertScript.Run(ctx, c.client, keys, args...).Err(); err != nil {
		return unavailable("upsert", err)
	}
	return nil
}

// Get returns the entry for key.
func (c *Cache) Get(ctx context.Context, key security.Key) (security.Record, error) {
	return c.GetByID(ctx, key.String())
}

// GetByID returns the entry stored under id, which may be a fallback id.
func (c *Cache) GetByID(ctx context.Context, id string) (security.Record, error) {
	m, err := c.client.HGetAll(ctx, RecordKey(id)).Result()
	if err != nil {
		return nil, unavailable("get", err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return security.Record(m), nil
}

// IndexAdd adds id to the reverse index for column=value.
func (c *Cache) IndexAdd(ctx context.Context, column, value, id string) error {
	if err := c.client.SAdd(ctx, IndexKey(column, value), RecordKey(id)).Err(); err != nil {
		return unavailable("index add", err)
	}
	return nil
}

// Search returns every entry whose column equals value. Members pointing at
// missing or changed records are removed from the index as they are found.
func (c *Cache) Search(ctx context.Context, column, value string) ([]Entry, error) {
	ik := IndexKey(column, value)
	members, err := c.client.SMembers(ctx, ik).Result()
	if err != nil {
		return nil, unavailable("search", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	records, err := c.fetch(ctx, members)
	if err != nil {
		return nil, err
	}

	var out []Entry
	var stale []any
	for i, rec := range records {
		if rec == nil || rec[column] != value {
			stale = append(stale, members[i])
			continue
		}
		out = append(out, Entry{ID: strings.TrimPrefix(members[i], RecordPrefix), Fields: rec})
	}
	if len(stale) > 0 {
		if err := c.client.SRem(ctx, ik, stale...).Err(); err != nil {
			return out, unavailable("search cleanup", err)
		}
	}
	return out, nil
}

// Scan returns up to limit entries in load order.
func (c *Cache) Scan(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultScanLimit
	}
	keys, err := c.client.ZRange(ctx, KeysSet, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, unavailable("scan", err)
	}
	records, err := c.fetch(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(keys))
	for i, rec := range records {
		if rec == nil {
			continue
		}
		out = append(out, Entry{ID: strings.TrimPrefix(keys[i], RecordPrefix), Fields: rec})
	}
	return out, nil
}

// Count returns the number of tracked keys.
func (c *Cache) Count(ctx context.Context) (int64, error) {
	n, err := c.client.ZCard(ctx, KeysSet).Result()
	if err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

// fetch loads hashes for record keys in one pipeline. Missing hashes are nil.
func (c *Cache) fetch(ctx context.Context, keys []string) ([]security.Record, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	pipe := c.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HGetAll(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable("fetch", err)
	}
	out := make([]security.Record, len(keys))
	for i, cmd := range cmds {
		if m := cmd.Val(); len(m) > 0 {
			out[i] = security.Record(m)
		}
	}
	return out, nil
}

// Clear removes every record, index, the key set and the rule trace.
func (c *Cache) Clear(ctx context.Context) error {
	for _, pattern := range []string{RecordPrefix + "*", IndexPrefix + "*"} {
		iter := c.client.Scan(ctx, 0, pattern, 500).Iterator()
		batch := make([]string, 0, 500)
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == cap(batch) {
				if err := c.client.Unlink(ctx, batch...).Err(); err != nil {
					return unavailable("clear", err)
				}
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return unavailable("clear", err)
		}
		if len(batch) > 0 {
			if err := c.client.Unlink(ctx, batch...).Err(); err != nil {
				return unavailable("clear", err)
			}
		}
	}
	if err := c.client.Del(ctx, KeysSet, TraceList).Err(); err != nil {
		return unavailable("clear", err)
	}
	return nil
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}
