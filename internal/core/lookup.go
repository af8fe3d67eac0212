package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JonMunkholm/secmaster/internal/rules"
	"github.com/JonMunkholm/secmaster/internal/security"
	"github.com/JonMunkholm/secmaster/internal/snapshot"
	"github.com/JonMunkholm/secmaster/internal/versionstore"
)

var (
	// ErrInvalidDate is returned for an as-of date not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("invalid applied date")

	// ErrEmptyKey is returned when every key field of a lookup is blank.
	ErrEmptyKey = errors.New("empty security key")

	// ErrUnindexedField is returned when searching a column without a
	// reverse index. Only the key columns are indexed.
	ErrUnindexedField = errors.New("field is not indexed")
)

// Detail is a point lookup: the newest version, the deduplicated history
// and the derived ages.
type Detail struct {
	Latest   security.Version   `json:"latest"`
	Versions []security.Version `json:"versions"`

	// DaysSinceLastUpdate is the gap in days between the two newest
	// versions. Nil with fewer than two versions.
	DaysSinceLastUpdate *int `json:"days_since_last_update"`

	// Age is the number of days between today and the newest version.
	Age *int `json:"age"`
}

// Latest returns the version with the greatest applied date.
func (s *Service) Latest(ctx context.Context, key security.Key) (security.Version, error) {
	if key == (security.Key{}) {
		return security.Version{}, ErrEmptyKey
	}

	timer := prometheus.NewTimer(lookupDuration.WithLabelValues("latest"))
	defer timer.ObserveDuration()

	return s.store.Latest(ctx, key)
}

// Versions returns the history for key, one version per applied date,
// newest first.
func (s *Service) Versions(ctx context.Context, key security.Key) ([]security.Version, error) {
	if key == (security.Key{}) {
		return nil, ErrEmptyKey
	}

	timer := prometheus.NewTimer(lookupDuration.WithLabelValues("versions"))
	defer timer.ObserveDuration()

	return s.store.AllVersions(ctx, key)
}

// AsOf returns the version applied exactly on date.
func (s *Service) AsOf(ctx context.Context, key security.Key, date string) (security.Version, error) {
	if key == (security.Key{}) {
		return security.Version{}, ErrEmptyKey
	}
	if _, err := time.Parse(security.DateLayout, date); err != nil {
		return security.Version{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}

	timer := prometheus.NewTimer(lookupDuration.WithLabelValues("as_of"))
	defer timer.ObserveDuration()

	return s.store.VersionAsOf(ctx, key, date)
}

// Detail returns the newest version, the history and the derived ages.
func (s *Service) Detail(ctx context.Context, key security.Key) (*Detail, error) {
	if key == (security.Key{}) {
		return nil, ErrEmptyKey
	}

	timer := prometheus.NewTimer(lookupDuration.WithLabelValues("detail"))
	defer timer.ObserveDuration()

	versions, err := s.store.AllVersions(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, versionstore.ErrNotFound
	}

	newest, _ := security.Latest(versions)
	d := &Detail{Latest: newest, Versions: versions}
	latest, err := time.Parse(security.DateLayout, newest.EffectiveDate)
	if err != nil {
		// Ages need a parsable date; the versions are still returned.
		return d, nil
	}

	age := daysBetween(s.now(), latest)
	d.Age = &age

	if len(versions) > 1 {
		if prev, err := time.Parse(security.DateLayout, versions[1].EffectiveDate); err == nil {
			gap := daysBetween(latest, prev)
			d.DaysSinceLastUpdate = &gap
		}
	}
	return d, nil
}

// daysBetween returns the absolute number of calendar days between a and b.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	days := int(da.Sub(db).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}

// Snapshot returns the cached record for key.
func (s *Service) Snapshot(ctx context.Context, key security.Key) (security.Record, error) {
	if key == (security.Key{}) {
		return nil, ErrEmptyKey
	}

	timer := prometheus.NewTimer(lookupDuration.WithLabelValues("snapshot"))
	defer timer.ObserveDuration()

	return s.cache.Get(ctx, key)
}

// Scan lists up to limit cached entries.
func (s *Service) Scan(ctx context.Context, limit int) ([]snapshot.Entry, error) {
	timer := prometheus.NewTimer(lookupDuration.WithLabelValues("scan"))
	defer timer.ObserveDuration()

	return s.cache.Scan(ctx, limit)
}

// Count returns the number of cached entries.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.cache.Count(ctx)
}

// Search returns cached entries whose key column field equals value.
func (s *Service) Search(ctx context.Context, field, value string) ([]snapshot.Entry, error) {
	col := security.ModelColumn(field)
	if !security.IsKeyColumn(col) {
		return nil, fmt.Errorf("%w: %s", ErrUnindexedField, field)
	}

	timer := prometheus.NewTimer(lookupDuration.WithLabelValues("search"))
	defer timer.ObserveDuration()

	return s.cache.Search(ctx, col, value)
}

// RuleTrace returns up to limit issues pushed by reloads.
func (s *Service) RuleTrace(ctx context.Context, limit int) ([]rules.Issue, error) {
	return s.cache.RuleTrace(ctx, limit)
}
