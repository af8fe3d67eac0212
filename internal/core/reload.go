package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/secmaster/internal/feed"
	"github.com/JonMunkholm/secmaster/internal/logging"
	"github.com/JonMunkholm/secmaster/internal/rules"
	"github.com/JonMunkholm/secmaster/internal/security"
)

// Summary reports one reload run.
type Summary struct {
	RunID         string        `json:"run_id"`
	Dir           string        `json:"dir"`
	Columns       []string      `json:"columns"`
	Files         []FileResult  `json:"files"`
	Rows          int           `json:"rows"`
	RowsVersioned int64         `json:"rows_versioned"`
	RowsCached    int64         `json:"rows_cached"`
	IssueRows     int           `json:"issue_rows"`
	Warnings      int           `json:"warnings"`
	Errors        int           `json:"errors"`
	Failures      []FileFailure `json:"failures,omitempty"`
	Duration      time.Duration `json:"duration_ns"`
}

// FileResult is the outcome of loading one file.
type FileResult struct {
	File          string `json:"file"`
	Rows          int    `json:"rows"`
	RowsVersioned int64  `json:"rows_versioned"`
	RowsCached    int64  `json:"rows_cached"`
	IssueRows     int    `json:"issue_rows"`
	Warnings      int    `json:"warnings"`
	Errors        int    `json:"errors"`
	ReportFile    string `json:"report_file,omitempty"`
	Error         string `json:"error,omitempty"`

	// Lineage maps each model column to "<file>:<vendor header>".
	Lineage map[string]string `json:"lineage,omitempty"`

	err error
}

// Err returns the load error, if any.
func (r FileResult) Err() error { return r.err }

// FileFailure names a file that did not load cleanly.
type FileFailure struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// OK reports whether every file loaded cleanly.
func (s *Summary) OK() bool { return len(s.Failures) == 0 }

// Reload rebuilds both stores from every feed file in dir. An empty dir
// uses the configured input directory.
//
// The column set comes from the first file whose header validates. The
// snapshot cache is cleared and the version table recreated before any
// file is loaded. Files then load concurrently, one task per file, each
// appending to the version store in batches and pipelining the same rows
// into the cache. A failing file is recorded in the summary and does not
// stop its siblings.
//
// Reload waits up to the configured MaxWaitTime for a running reload to
// finish before failing with ErrReloadBusy.
func (s *Service) Reload(ctx context.Context, dir string) (*Summary, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()
	return s.reload(ctx, dir)
}

// TryReload is Reload without waiting: it fails with ErrReloadBusy at once
// when another reload holds the slot.
func (s *Service) TryReload(ctx context.Context, dir string) (*Summary, error) {
	if !s.limiter.TryAcquire() {
		return nil, ErrReloadBusy
	}
	defer s.limiter.Release()
	return s.reload(ctx, dir)
}

func (s *Service) reload(ctx context.Context, dir string) (*Summary, error) {
	if dir == "" {
		dir = s.cfg.InputDir
	}

	start := s.now()
	sum := &Summary{RunID: uuid.NewString(), Dir: dir}
	ctx = logging.WithRunID(ctx, sum.RunID)
	logger := logging.WithFields(ctx, "dir", dir)

	files, err := feed.ListFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("list input files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoInputFiles, dir)
	}

	columns, err := schemaColumns(files)
	if err != nil {
		return nil, err
	}
	sum.Columns = columns

	if err := s.cache.Clear(ctx); err != nil {
		return nil, fmt.Errorf("clear snapshot cache: %w", err)
	}
	if err := s.store.RecreateSchema(ctx, columns); err != nil {
		return nil, fmt.Errorf("recreate version schema: %w", err)
	}

	logger.Info("reload started",
		"files", len(files),
		"columns", len(columns),
		"checksums", s.engine.VerifiesChecksums(),
	)

	results := make([]FileResult, len(files))
	var g errgroup.Group
	g.SetLimit(s.cfg.EffectiveWorkers())
	for i, path := range files {
		g.Go(func() error {
			results[i] = s.loadFile(ctx, path, columns)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		sum.add(r)
	}
	sum.Duration = s.now().Sub(start)
	reloadDuration.Observe(sum.Duration.Seconds())

	logger.Info("reload finished",
		"rows", sum.Rows,
		"rows_versioned", sum.RowsVersioned,
		"rows_cached", sum.RowsCached,
		"issue_rows", sum.IssueRows,
		"failures", len(sum.Failures),
		"duration_ms", sum.Duration.Milliseconds(),
	)
	return sum, nil
}

func (s *Summary) add(r FileResult) {
	s.Files = append(s.Files, r)
	s.Rows += r.Rows
	s.RowsVersioned += r.RowsVersioned
	s.RowsCached += r.RowsCached
	s.IssueRows += r.IssueRows
	s.Warnings += r.Warnings
	s.Errors += r.Errors
	if r.err != nil {
		s.Failures = append(s.Failures, FileFailure{File: r.File, Error: r.Error})
	}
}

// schemaColumns returns the model columns of the first file whose header
// has every required column.
func schemaColumns(files []string) ([]string, error) {
	var firstErr error
	for _, path := range files {
		header, err := feed.ReadHeader(path)
		if err == nil {
			m := security.NewMapping(header)
			if missing := m.Missing(); len(missing) > 0 {
				err = &feed.HeaderError{File: filepath.Base(path), Missing: missing}
			} else {
				return m.Columns(), nil
			}
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, fmt.Errorf("no file has a usable header: %w", firstErr)
}

// loadFile streams one file into both stores. The two stores are written
// independently: a failure in one does not stop writes to the other.
func (s *Service) loadFile(ctx context.Context, path string, columns []string) (res FileResult) {
	name := filepath.Base(path)
	res.File = name
	logger := logging.WithFields(ctx, "file", name)
	start := time.Now()

	defer func() {
		status := "ok"
		if res.err != nil {
			status = "failed"
			res.Error = res.err.Error()
			logger.Error("file load failed", "error", res.err, "rows", res.Rows)
		} else {
			logger.Info("file loaded",
				"rows", res.Rows,
				"rows_versioned", res.RowsVersioned,
				"rows_cached", res.RowsCached,
				"issue_rows", res.IssueRows,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
		reloadFilesTotal.WithLabelValues(status).Inc()
		reloadRowsTotal.WithLabelValues(storeVersions).Add(float64(res.RowsVersioned))
		reloadRowsTotal.WithLabelValues(storeSnapshot).Add(float64(res.RowsCached))
		ruleIssuesTotal.WithLabelValues(string(rules.Warning)).Add(float64(res.Warnings))
		ruleIssuesTotal.WithLabelValues(string(rules.Error)).Add(float64(res.Errors))
	}()

	f, err := feed.Open(path)
	if err != nil {
		res.err = err
		return res
	}
	defer f.Close()

	if err := f.Validate(); err != nil {
		res.err = err
		return res
	}
	res.Lineage = f.Mapping().Lineage(name)
	if extra := missingFrom(f.Mapping().Columns(), columns); len(extra) > 0 {
		logger.Warn("columns outside the version schema are not versioned", "columns", extra)
	}

	w, err := s.store.OpenWriter(ctx)
	if err != nil {
		res.err = err
		return res
	}
	defer w.Close()

	loader := s.cache.NewLoader(name, s.cfg.CacheFlushSize)

	report := rules.NewReport(name)

	var (
		batch   = make([]security.Record, 0, s.cfg.BatchSize)
		pending []rules.Issue

		readErr, storeErr, cacheErr, reportErr error
	)

	flush := func() {
		if storeErr == nil && len(batch) > 0 {
			n, err := w.Append(ctx, batch)
			res.RowsVersioned += n
			if err != nil {
				storeErr = fmt.Errorf("append batch: %w", err)
			}
		}
		batch = batch[:0]

		if cacheErr == nil && len(pending) > 0 {
			if err := s.cache.PushIssues(ctx, pending); err != nil {
				cacheErr = fmt.Errorf("push rule trace: %w", err)
			}
		}
		pending = pending[:0]
	}

	for {
		rec, rowNum, err := f.NextRecord()
		if err == io.EOF {
			break
		}
		if err != nil {
			readErr = err
			break
		}
		res.Rows++

		batch = append(batch, rec)
		if cacheErr == nil {
			if err := loader.Add(ctx, rec); err != nil {
				cacheErr = err
			}
		}
		issues := report.Add(s.engine, rowNum, rec)
		if s.cfg.WriteReports {
			pending = append(pending, issues...)
		}

		if len(batch) >= s.cfg.BatchSize {
			flush()
		}
		if storeErr != nil && cacheErr != nil {
			break
		}
	}
	flush()

	if cacheErr == nil {
		if err := loader.Flush(ctx); err != nil {
			cacheErr = err
		}
	}
	res.RowsCached = loader.Loaded()

	counts := report.Counts()
	res.IssueRows = report.ErrorCount
	res.Warnings = counts[rules.Warning]
	res.Errors = counts[rules.Error]
	if s.cfg.WriteReports && s.cfg.ReportDir != "" {
		res.ReportFile = rules.ReportPath(s.cfg.ReportDir, name)
		if err := rules.WriteReportFile(res.ReportFile, report); err != nil {
			reportErr = err
			res.ReportFile = ""
		}
	}

	res.err = errors.Join(readErr, storeErr, cacheErr, reportErr)
	return res
}

// missingFrom returns the entries of cols absent from set.
func missingFrom(cols, set []string) []string {
	in := make(map[string]bool, len(set))
	for _, c := range set {
		in[c] = true
	}
	var out []string
	for _, c := range cols {
		if !in[c] {
			out = append(out, c)
		}
	}
	return out
}
