package core

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/secmaster/internal/config"
	"github.com/JonMunkholm/secmaster/internal/rules"
	"github.com/JonMunkholm/secmaster/internal/snapshot"
	"github.com/JonMunkholm/secmaster/internal/versionstore"
)

// ErrNoInputFiles is returned when a reload directory holds no feed files.
var ErrNoInputFiles = errors.New("no input files")

// Service ties the version store, the snapshot cache and the rule engine
// together. It is safe for concurrent use.
type Service struct {
	store   versionstore.Store
	cache   *snapshot.Cache
	engine  *rules.Engine
	cfg     config.PipelineConfig
	limiter *ReloadLimiter
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now, for age calculations in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithEngine replaces the rule engine built from the pipeline config.
func WithEngine(e *rules.Engine) Option {
	return func(s *Service) { s.engine = e }
}

// NewService creates a Service over the given stores.
func NewService(store versionstore.Store, cache *snapshot.Cache, cfg config.PipelineConfig, opts ...Option) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.CacheFlushSize <= 0 {
		cfg.CacheFlushSize = snapshot.DefaultFlushSize
	}

	var ruleOpts []rules.Option
	if cfg.VerifyChecksums {
		ruleOpts = append(ruleOpts, rules.WithChecksumVerification())
	}

	s := &Service{
		store:   store,
		cache:   cache,
		engine:  rules.New(ruleOpts...),
		cfg:     cfg,
		limiter: NewReloadLimiter(1, cfg.MaxWaitTime),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the rule engine used by reloads.
func (s *Service) Engine() *rules.Engine { return s.engine }

// ReloadStatus reports whether a reload is running.
func (s *Service) ReloadStatus() ReloadLimiterStatus { return s.limiter.Status() }

// WaitForReloads blocks until a running reload finishes or ctx is done.
func (s *Service) WaitForReloads(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// Health pings both stores. A nil error means both answered.
func (s *Service) Health(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return err
	}
	return s.cache.Ping(ctx)
}
