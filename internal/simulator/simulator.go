// Package simulator produces synthetic vendor feeds for exercising the
// versioning model.
//
// A Simulator holds a full dataset and advances it across simulated
// business days. Each day a bounded random subset of rows has a bounded
// random subset of its attribute fields regenerated with same-typed values.
// Rows that actually changed move their effective date forward one
// business day, which is what produces distinct versions of one security.
// Key fields, the effective date and originally blank fields are never
// touched.
package simulator

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/secmaster/internal/feed"
	"github.com/JonMunkholm/secmaster/internal/rules"
	"github.com/JonMunkholm/secmaster/internal/security"
)

// Simulator advances one dataset day by day. It is not safe for concurrent
// use.
type Simulator struct {
	vendor  string
	header  []string
	rows    [][]string
	mutable []int // attribute column positions
	dateIdx int
	date    time.Time

	rng    *rand.Rand
	values *Values
	engine *rules.Engine
	now    func() time.Time
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithRand sets the random source.
func WithRand(r *rand.Rand) Option {
	return func(s *Simulator) { s.rng = r }
}

// WithVendor overrides the vendor name used for output files.
func WithVendor(v string) Option {
	return func(s *Simulator) { s.vendor = v }
}

// WithEngine sets the engine used for companion reports.
func WithEngine(e *rules.Engine) Option {
	return func(s *Simulator) { s.engine = e }
}

// WithClock sets the clock used when the seed has no usable dates.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

// New creates a Simulator from a seed table. The table must carry every
// key column and the effective-date column.
func New(seed *feed.Table, opts ...Option) (*Simulator, error) {
	m := seed.Mapping()
	if missing := m.Missing(); len(missing) > 0 {
		return nil, &feed.HeaderError{File: seed.Name, Missing: missing}
	}

	s := &Simulator{
		vendor: security.VendorName(seed.Name),
		header: append([]string(nil), seed.Header...),
		rows:   make([][]string, len(seed.Rows)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if s.engine == nil {
		s.engine = rules.New()
	}
	s.values = NewValues(s.rng)

	s.dateIdx, _ = m.Index(security.ColEffectiveDate)
	for i, col := range m.Model {
		if i != s.dateIdx && !security.IsKeyColumn(col) {
			s.mutable = append(s.mutable, i)
		}
	}

	// Pad short rows so every column is addressable.
	var latest time.Time
	for i, row := range seed.Rows {
		r := make([]string, len(s.header))
		copy(r, row)
		s.rows[i] = r
		if d, err := time.Parse(security.DateLayout, strings.TrimSpace(r[s.dateIdx])); err == nil && d.After(latest) {
			latest = d
		}
	}
	if latest.IsZero() {
		n := s.now()
		latest = time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	}
	s.date = latest
	return s, nil
}

// Date returns the current simulated date.
func (s *Simulator) Date() time.Time { return s.date }

// Vendor returns the vendor name used for output files.
func (s *Simulator) Vendor() string { return s.vendor }

// Table returns a copy of the current dataset.
func (s *Simulator) Table() *feed.Table {
	rows := make([][]string, len(s.rows))
	for i, r := range s.rows {
		rows[i] = append([]string(nil), r...)
	}
	return &feed.Table{
		Name:   s.FileName(),
		Header: append([]string(nil), s.header...),
		Rows:   rows,
	}
}

// FileName returns the output file name for the current date.
func (s *Simulator) FileName() string {
	return fmt.Sprintf("%s_%s%s", s.vendor, s.date.Format(security.DateLayout), feed.Extension)
}

// DayResult summarizes one simulated day.
type DayResult struct {
	Date          time.Time `json:"date"`
	RowsSelected  int       `json:"rows_selected"`
	RowsChanged   int       `json:"rows_changed"`
	FieldsChanged int       `json:"fields_changed"`
}

// Day mutates up to rowsPerDay rows, regenerating up to fieldsPerRow
// non-blank attribute fields on each, then advances the simulated date.
func (s *Simulator) Day(rowsPerDay, fieldsPerRow int) DayResult {
	rowsPerDay = min(max(rowsPerDay, 0), len(s.rows))
	res := DayResult{RowsSelected: rowsPerDay}

	for _, idx := range s.rng.Perm(len(s.rows))[:rowsPerDay] {
		n := s.mutateRow(s.rows[idx], fieldsPerRow)
		if n == 0 {
			continue
		}
		res.RowsChanged++
		res.FieldsChanged += n

		row := s.rows[idx]
		applied := strings.TrimSpace(row[s.dateIdx])
		if applied == "" {
			continue
		}
		d, err := time.Parse(security.DateLayout, applied)
		if err != nil {
			d = s.date
		}
		row[s.dateIdx] = NextBusinessDay(d).Format(security.DateLayout)
	}

	s.date = NextBusinessDay(s.date)
	res.Date = s.date
	return res
}

// mutateRow regenerates a random sample of the row's attribute fields and
// returns how many values actually changed.
func (s *Simulator) mutateRow(row []string, fieldsPerRow int) int {
	fields := s.mutable
	if fieldsPerRow < len(fields) {
		fields = make([]int, 0, max(fieldsPerRow, 0))
		for _, j := range s.rng.Perm(len(s.mutable))[:max(fieldsPerRow, 0)] {
			fields = append(fields, s.mutable[j])
		}
	}

	changed := 0
	for _, col := range fields {
		old := row[col]
		t, ok := DetectType(old)
		if !ok {
			continue
		}
		if v := s.values.Generate(t); v != old {
			row[col] = v
			changed++
		}
	}
	return changed
}

// Output describes the files written for one simulated day.
type Output struct {
	DayResult
	File       string        `json:"file"`
	ReportFile string        `json:"report_file"`
	Report     *rules.Report `json:"-"`
}

// Run simulates days and writes, for each day, the full dataset to
// <outDir>/<vendor>_<date>.csv and its rule report next to it.
func (s *Simulator) Run(days, rowsPerDay, fieldsPerRow int, outDir string) ([]Output, error) {
	outputs := make([]Output, 0, days)
	for d := 0; d < days; d++ {
		res := s.Day(rowsPerDay, fieldsPerRow)

		tbl := s.Table()
		path := filepath.Join(outDir, tbl.Name)
		if err := feed.WriteFile(path, tbl.Header, tbl.Rows); err != nil {
			return outputs, fmt.Errorf("day %d: %w", d+1, err)
		}

		rep := s.engine.Evaluate(tbl.Name, tbl.Records())
		reportPath := rules.ReportPath(outDir, tbl.Name)
		if err := rules.WriteReportFile(reportPath, rep); err != nil {
			return outputs, fmt.Errorf("day %d: %w", d+1, err)
		}

		slog.Info("simulated day",
			"day", d+1,
			"date", res.Date.Format(security.DateLayout),
			"rows_changed", res.RowsChanged,
			"fields_changed", res.FieldsChanged,
			"issues", len(rep.Issues),
			"file", path,
		)
		outputs = append(outputs, Output{DayResult: res, File: path, ReportFile: reportPath, Report: rep})
	}
	return outputs, nil
}
