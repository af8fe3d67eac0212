// Package rules validates the identifier fields of security rows.
//
// Each of the four identifier columns is checked on every row:
//  1. Blank value: Warning "Field is empty."
//  2. Value not matching the column's fixed format: Error
//  3. Optionally, a format-valid value whose check digit is wrong: Error
//
// Findings are data, not errors. One bad row never stops evaluation of the
// rest of a file, and the engine has no side effects; persisting a report
// is done by [WriteReport].
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JonMunkholm/secmaster/internal/identifier"
	"github.com/JonMunkholm/secmaster/internal/security"
)

// Severity classifies an Issue.
type Severity string

const (
	Warning Severity = "Warning"
	Error   Severity = "Error"
)

// Messages used in issues.
const (
	MsgEmpty = "Field is empty."
)

// Issue is one field-level finding on one row.
type Issue struct {
	RowNumber  int      `json:"row_number"`
	UniqueKey  string   `json:"unique_key"`
	Field      string   `json:"field"`
	FieldValue string   `json:"field_value"`
	Severity   Severity `json:"issue"`
	Message    string   `json:"message"`
}

// check binds an identifier column to its format.
type check struct {
	column  string
	field   string // report name, upper case
	kind    identifier.Kind
	pattern *regexp.Regexp
}

var checks = []check{
	{security.ColFIGI, "FIGI", identifier.FIGI, regexp.MustCompile(`^BBG[A-Z0-9]{8}\d$`)},
	{security.ColCUSIP, "CUSIP", identifier.CUSIP, regexp.MustCompile(`^[A-Z0-9*@#]{9}$`)},
	{security.ColSEDOL, "SEDOL", identifier.SEDOL, regexp.MustCompile(`^[A-Z0-9]{7}$`)},
	{security.ColISIN, "ISIN", identifier.ISIN, regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}\d$`)},
}

// Engine evaluates rows. The zero value is not usable; use New.
type Engine struct {
	verifyChecksums bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithChecksumVerification makes the engine recompute the check digit of
// every format-valid identifier and report mismatches as errors.
func WithChecksumVerification() Option {
	return func(e *Engine) { e.verifyChecksums = true }
}

// New creates an Engine. By default only the format is checked.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// VerifiesChecksums reports whether checksum verification is enabled.
func (e *Engine) VerifiesChecksums() bool { return e.verifyChecksums }

// Check returns the issues for one row. rowNum is the 1-indexed data row.
// All returned issues share the row's UniqueKey.
func (e *Engine) Check(rowNum int, rec security.Record) []Issue {
	var issues []Issue
	uniqueKey := rec.UniqueKey()

	for _, c := range checks {
		value := rec[c.column]
		issue := Issue{
			RowNumber:  rowNum,
			UniqueKey:  uniqueKey,
			Field:      c.field,
			FieldValue: value,
		}

		switch {
		// Whitespace-only is empty, matching the trimmed key fields of a read row.
		case strings.TrimSpace(value) == "":
			issue.Severity = Warning
			issue.Message = MsgEmpty
		case !c.pattern.MatchString(value):
			issue.Severity = Error
			issue.Message = fmt.Sprintf("Value does not match expected pattern for %s.", c.field)
		case e.verifyChecksums && !checkDigitMatches(c.kind, value):
			issue.Severity = Error
			issue.Message = fmt.Sprintf("Check digit mismatch for %s.", c.field)
		default:
			continue
		}
		issues = append(issues, issue)
	}
	return issues
}

func checkDigitMatches(k identifier.Kind, value string) bool {
	n := identifier.BodyLen(k)
	if len(value) != n+1 {
		return false
	}
	want, err := identifier.ComputeCheckDigit(k, value[:n])
	if err != nil {
		return false
	}
	return value[n] == want
}

// Report is the outcome of evaluating one file.
type Report struct {
	File       string  `json:"file"`
	TotalRows  int     `json:"total_rows"`
	ErrorCount int     `json:"error_count"` // rows with at least one issue
	Issues     []Issue `json:"issues"`
}

// NewReport starts an empty report for file.
func NewReport(file string) *Report {
	return &Report{File: file}
}

// Add evaluates one row and accumulates its issues. It returns the row's
// issues so callers streaming rows can forward them.
func (r *Report) Add(e *Engine, rowNum int, rec security.Record) []Issue {
	r.TotalRows++
	issues := e.Check(rowNum, rec)
	if len(issues) > 0 {
		r.ErrorCount++
		r.Issues = append(r.Issues, issues...)
	}
	return issues
}

// Counts returns the number of issues per severity.
func (r *Report) Counts() map[Severity]int {
	out := map[Severity]int{Warning: 0, Error: 0}
	for _, i := range r.Issues {
		out[i.Severity]++
	}
	return out
}

// Evaluate checks every record in order, numbering rows from 1.
func (e *Engine) Evaluate(file string, records []security.Record) *Report {
	rep := NewReport(file)
	for i, rec := range records {
		rep.Add(e, i+1, rec)
	}
	return rep
}
