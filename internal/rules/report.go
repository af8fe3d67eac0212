package rules

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ReportHeader is the column layout of a rule report file.
var ReportHeader = []string{"RowNumber", "UniqueKey", "Field", "FieldValue", "Issue", "Message"}

// ReportSuffix is appended to a feed file's stem to name its report.
const ReportSuffix = "_rule_report.csv"

// WriteReport writes the report's issues in ReportHeader layout.
func WriteReport(w io.Writer, rep *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ReportHeader); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}
	for _, i := range rep.Issues {
		rec := []string{
			strconv.Itoa(i.RowNumber),
			i.UniqueKey,
			i.Field,
			i.FieldValue,
			string(i.Severity),
			i.Message,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write report row %d: %w", i.RowNumber, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReportPath returns the report file path for a feed file inside dir.
func ReportPath(dir, feedFile string) string {
	base := filepath.Base(feedFile)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, stem+ReportSuffix)
}

// WriteReportFile writes rep to path, creating parent directories.
func WriteReportFile(path string, rep *Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := WriteReport(f, rep); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
