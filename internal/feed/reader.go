// Package feed reads and writes vendor security files: comma-delimited,
// one header row naming every column, UTF-8 with an optional byte-order
// mark. Rows stream through [Reader] so memory stays bounded by the
// caller's batch size regardless of file size.
package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JonMunkholm/secmaster/internal/security"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Extension is the feed file suffix.
const Extension = ".csv"

// ErrEmptyFile is returned when a file has no header row.
var ErrEmptyFile = errors.New("empty file")

// HeaderError reports required model columns missing from a file header.
type HeaderError struct {
	File    string
	Missing []string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("%s: missing required columns: %s", e.File, strings.Join(e.Missing, ", "))
}

// Reader streams rows from one feed file.
type Reader struct {
	name    string
	counter *CountingReader
	csv     *csv.Reader
	header  []string
	mapping *security.Mapping
	row     int
}

// NewReader wraps r, strips a leading BOM, replaces invalid UTF-8 and
// reads the header row. name labels errors and lineage.
func NewReader(r io.Reader, name string) (*Reader, error) {
	counter := NewCountingReader(r)
	decoded := transform.NewReader(counter, unicode.UTF8BOM.NewDecoder())

	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptyFile)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", name, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	return &Reader{
		name:    name,
		counter: counter,
		csv:     cr,
		header:  header,
		mapping: security.NewMapping(header),
	}, nil
}

// Name returns the label passed to NewReader.
func (r *Reader) Name() string { return r.name }

// Header returns the raw header row.
func (r *Reader) Header() []string { return r.header }

// Mapping returns the vendor-to-model header mapping.
func (r *Reader) Mapping() *security.Mapping { return r.mapping }

// BytesRead reports how many encoded bytes have been consumed.
func (r *Reader) BytesRead() int64 { return r.counter.BytesRead() }

// Validate checks that every key column and the effective-date column
// are present.
func (r *Reader) Validate() error {
	if missing := r.mapping.Missing(); len(missing) > 0 {
		return &HeaderError{File: r.name, Missing: missing}
	}
	return nil
}

// Next returns the next raw row, or io.EOF.
func (r *Reader) Next() ([]string, error) {
	rec, err := r.csv.Read()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%s: row %d: %w", r.name, r.row+1, err)
	}
	r.row++
	return rec, nil
}

// NextRecord returns the next row mapped to model columns together with
// its 1-indexed data row number.
func (r *Reader) NextRecord() (security.Record, int, error) {
	row, err := r.Next()
	if err != nil {
		return nil, 0, err
	}
	return r.mapping.Record(row), r.row, nil
}

// File is a Reader over an opened file.
type File struct {
	*Reader
	f *os.File
}

// Open opens path and reads its header.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feed: %w", err)
	}
	r, err := NewReader(f, filepath.Base(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{Reader: r, f: f}, nil
}

// Close closes the underlying file.
func (f *File) Close() error {
	return f.f.Close()
}

// ReadHeader returns the header row of path.
func ReadHeader(path string) ([]string, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Header(), nil
}

// Table is a fully loaded file.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

// ReadAll loads every row of r.
func ReadAll(r io.Reader, name string) (*Table, error) {
	fr, err := NewReader(r, name)
	if err != nil {
		return nil, err
	}
	t := &Table{Name: name, Header: fr.Header()}
	for {
		row, err := fr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ReadFile loads every row of the file at path.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feed: %w", err)
	}
	defer f.Close()
	return ReadAll(f, filepath.Base(path))
}

// Mapping returns the header mapping of the table.
func (t *Table) Mapping() *security.Mapping {
	return security.NewMapping(t.Header)
}

// Records maps every row to model columns.
func (t *Table) Records() []security.Record {
	m := t.Mapping()
	out := make([]security.Record, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = m.Record(row)
	}
	return out
}

// ListFiles returns the feed files directly inside dir, sorted by name.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), Extension) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
