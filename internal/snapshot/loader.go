package snapshot

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/secmaster/internal/security"
)

// DefaultFlushSize is the number of queued upserts sent per pipeline.
const DefaultFlushSize = 100

// EntryID returns the cache id for a row: the composite key when every key
// field is present, otherwise a random id scoped to the source file so rows
// without full identifiers are neither dropped nor collapsed together.
func EntryID(file string, rec security.Record) string {
	key := rec.Key()
	if key.Complete() {
		return key.String()
	}
	return fmt.Sprintf("record:%s:%s", file, uuid.NewString())
}

// Loader pipelines upserts for one source file. It is not safe for
// concurrent use; give each worker its own Loader.
type Loader struct {
	cache     *Cache
	file      string
	flushSize int
	pipe      redis.Pipeliner
	pending   int
	loaded    int64
}

// NewLoader creates a loader for rows from file.
func (c *Cache) NewLoader(file string, flushSize int) *Loader {
	if flushSize <= 0 {
		flushSize = DefaultFlushSize
	}
	return &Loader{
		cache:     c,
		file:      file,
		flushSize: flushSize,
		pipe:      c.client.Pipeline(),
	}
}

// Add queues an upsert for rec and flushes when the pipeline is full.
func (l *Loader) Add(ctx context.Context, rec security.Record) error {
	keys, args := l.cache.upsertArgs(EntryID(l.file, rec), rec)
	upsertScript.Eval(ctx, l.pipe, keys, args...)
	l.pending++
	if l.pending >= l.flushSize {
		return l.Flush(ctx)
	}
	return nil
}

// Flush sends every queued upsert.
func (l *Loader) Flush(ctx context.Context) error {
	if l.pending == 0 {
		return nil
	}
	n := l.pending
	l.pending = 0
	if _, err := l.pipe.Exec(ctx); err != nil {
		return unavailable("load", err)
	}
	l.loaded += int64(n)
	return nil
}

// Loaded returns the number of rows written so far.
func (l *Loader) Loaded() int64 { return l.loaded }
