package rules

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/secmaster/internal/security"
)

func validRecord() security.Record {
	return security.Record{
		security.ColFIGI:          "BBG000BLNNH3",
		security.ColCUSIP:         "037833100",
		security.ColSEDOL:         "2046251",
		security.ColISIN:          "US0378331008",
		security.ColCompanyName:   "Apple Inc.",
		security.ColCurrency:      "USD",
		security.ColAssetClass:    "Equity",
		security.ColAssetGroup:    "Domestic Equity",
		security.ColEffectiveDate: "2024-01-02",
	}
}

func TestEngine_Check(t *testing.T) {
	tests := []struct {
		name      string
		field     string
		value     string
		wantField string
		wantSev   Severity
		wantMsg   string
	}{
		{"blank FIGI", security.ColFIGI, "", "FIGI", Warning, MsgEmpty},
		{"whitespace SEDOL", security.ColSEDOL, "   ", "SEDOL", Warning, MsgEmpty},
		{"bad FIGI", security.ColFIGI, "BADFIGI", "FIGI", Error, "Value does not match expected pattern for FIGI."},
		{"lower-case CUSIP", security.ColCUSIP, "03783310a", "CUSIP", Error, "Value does not match expected pattern for CUSIP."},
		{"short ISIN", security.ColISIN, "US03783310", "ISIN", Error, "Value does not match expected pattern for ISIN."},
	}

	e := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			rec[tt.field] = tt.value

			issues := e.Check(3, rec)
			if len(issues) != 1 {
				t.Fatalf("Check() returned %d issues, want 1: %+v", len(issues), issues)
			}
			got := issues[0]
			if got.Field != tt.wantField || got.Severity != tt.wantSev || got.Message != tt.wantMsg {
				t.Errorf("issue = %+v, want field %s severity %s message %q", got, tt.wantField, tt.wantSev, tt.wantMsg)
			}
			if got.RowNumber != 3 || got.FieldValue != tt.value {
				t.Errorf("issue row/value = %d/%q", got.RowNumber, got.FieldValue)
			}
		})
	}
}

func TestEngine_CheckValidRow(t *testing.T) {
	if issues := New().Check(1, validRecord()); len(issues) != 0 {
		t.Errorf("Check() = %+v, want none", issues)
	}
}

func TestEngine_FormatOnlyByDefault(t *testing.T) {
	rec := validRecord()
	rec[security.ColSEDOL] = "2046259" // wrong check digit, valid format

	if issues := New().Check(1, rec); len(issues) != 0 {
		t.Errorf("format-only engine reported %+v", issues)
	}

	issues := New(WithChecksumVerification()).Check(1, rec)
	if len(issues) != 1 {
		t.Fatalf("checksum engine returned %d issues, want 1", len(issues))
	}
	if issues[0].Severity != Error || issues[0].Message != "Check digit mismatch for SEDOL." {
		t.Errorf("issue = %+v", issues[0])
	}
}

func TestEngine_ChecksumVerificationAcceptsValid(t *testing.T) {
	rec := validRecord()
	rec[security.ColISIN] = "GB0002634940"
	rec[security.ColCUSIP] = "594918104"
	if issues := New(WithChecksumVerification()).Check(1, rec); len(issues) != 0 {
		t.Errorf("Check() = %+v, want none", issues)
	}
}

func TestEngine_SharedUniqueKey(t *testing.T) {
	rec := validRecord()
	rec[security.ColFIGI] = ""
	rec[security.ColCUSIP] = "BAD"
	rec[security.ColISIN] = ""

	issues := New().Check(1, rec)
	if len(issues) != 3 {
		t.Fatalf("Check() returned %d issues, want 3", len(issues))
	}
	for _, i := range issues {
		if i.UniqueKey != issues[0].UniqueKey {
			t.Errorf("UniqueKey %q differs from %q", i.UniqueKey, issues[0].UniqueKey)
		}
	}

	other := rec.Clone()
	other[security.ColCurrency] = "EUR"
	if New().Check(2, other)[0].UniqueKey == issues[0].UniqueKey {
		t.Error("rows with different key fields share a UniqueKey")
	}
}

func TestEngine_Evaluate(t *testing.T) {
	bad := validRecord()
	bad[security.ColFIGI] = ""
	bad[security.ColISIN] = "XX"
	worse := validRecord()
	worse[security.ColSEDOL] = ""

	rep := New().Evaluate("vendor_2024-01-02.csv", []security.Record{validRecord(), bad, worse})

	if rep.TotalRows != 3 {
		t.Errorf("TotalRows = %d, want 3", rep.TotalRows)
	}
	if rep.ErrorCount != 2 {
		t.Errorf("ErrorCount = %d, want 2", rep.ErrorCount)
	}
	if len(rep.Issues) != 3 {
		t.Fatalf("len(Issues) = %d, want 3", len(rep.Issues))
	}
	wantRows := []int{2, 2, 3}
	for i, is := range rep.Issues {
		if is.RowNumber != wantRows[i] {
			t.Errorf("Issues[%d].RowNumber = %d, want %d", i, is.RowNumber, wantRows[i])
		}
	}
	counts := rep.Counts()
	if counts[Warning] != 2 || counts[Error] != 1 {
		t.Errorf("Counts() = %v", counts)
	}
}

func TestWriteReport(t *testing.T) {
	bad := validRecord()
	bad[security.ColFIGI] = "BAD,FIGI"
	rep := New().Evaluate("f.csv", []security.Record{bad})

	var buf bytes.Buffer
	if err := WriteReport(&buf, rep); err != nil {
		t.Fatalf("WriteReport() error = %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse report: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("report has %d rows, want 2", len(rows))
	}
	for i, h := range ReportHeader {
		if rows[0][i] != h {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], h)
		}
	}
	want := []string{"1", rep.Issues[0].UniqueKey, "FIGI", "BAD,FIGI", "Error", "Value does not match expected pattern for FIGI."}
	for i := range want {
		if rows[1][i] != want[i] {
			t.Errorf("row[%d] = %q, want %q", i, rows[1][i], want[i])
		}
	}
}

func TestReportPath(t *testing.T) {
	got := ReportPath("reports", "/data/bloomberg_2025-02-17.csv")
	want := filepath.Join("reports", "bloomberg_2025-02-17_rule_report.csv")
	if got != want {
		t.Errorf("ReportPath() = %q, want %q", got, want)
	}
}
