package simulator

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/JonMunkholm/secmaster/internal/feed"
	"github.com/JonMunkholm/secmaster/internal/rules"
	"github.com/JonMunkholm/secmaster/internal/security"
)

func testRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func date(s string) time.Time {
	d, err := time.Parse(security.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestDetectType(t *testing.T) {
	tests := []struct {
		in     string
		want   ValueType
		wantOK bool
	}{
		{"42", TypeInteger, true},
		{"-7", TypeInteger, true},
		{"42.0", TypeFloat, true},
		{"3.14", TypeFloat, true},
		{"2024-02-29", TypeDate, true},
		{"2024-02-30", TypeString, true},
		{"hello", TypeString, true},
		{"", TypeString, false},
		{"   ", TypeString, false},
	}
	for _, tt := range tests {
		got, ok := DetectType(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("DetectType(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestValues_Domains(t *testing.T) {
	v := NewValues(testRand())
	floatRe := regexp.MustCompile(`^\d{1,3}\.\d{2}$`)
	strRe := regexp.MustCompile(`^[A-Za-z]{10}$`)

	for i := 0; i < 500; i++ {
		n, err := strconv.Atoi(v.Generate(TypeInteger))
		if err != nil || n < 0 || n > 100 {
			t.Fatalf("integer %d (err %v) out of range", n, err)
		}

		f := v.Generate(TypeFloat)
		if !floatRe.MatchString(f) {
			t.Fatalf("float %q does not have two decimals", f)
		}
		if typ, _ := DetectType(f); typ != TypeFloat {
			t.Fatalf("generated float %q detected as %v", f, typ)
		}

		d := date(v.Generate(TypeDate))
		if d.Before(dateMin) || d.After(dateMax) {
			t.Fatalf("date %v out of range", d)
		}

		if s := v.Generate(TypeString); !strRe.MatchString(s) {
			t.Fatalf("string %q", s)
		}
	}
}

func TestNextBusinessDay(t *testing.T) {
	tests := []struct{ in, want string }{
		{"2024-01-01", "2024-01-02"}, // Monday
		{"2024-01-05", "2024-01-08"}, // Friday
		{"2024-01-06", "2024-01-08"}, // Saturday
		{"2024-01-07", "2024-01-08"}, // Sunday
		{"2024-02-28", "2024-02-29"},
	}
	for _, tt := range tests {
		if got := NextBusinessDay(date(tt.in)).Format(security.DateLayout); got != tt.want {
			t.Errorf("NextBusinessDay(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func seedTable() *feed.Table {
	return &feed.Table{
		Name: "acme_2024-01-05.csv",
		Header: []string{"_FIGI", "_CUSIP", "_SEDOL", "_ISIN", "_COMPANY_NAME", "_CURRENCY",
			"_ASSET_CLASS", "_ASSET_GROUP", "__FIELD_0001", "__FIELD_0002", "APPLIED_DATE"},
		Rows: [][]string{
			{"BBG000BLNNH3", "037833100", "2046251", "US0378331008", "A", "USD", "Equity", "Options", "10", "abc", "2024-01-04"},
			{"BBG00ABCDEF3", "594918104", "B0YBKJ7", "GB0002634940", "B", "GBP", "Cash", "Money Market", "", "", "2024-01-05"},
			{"BBGZZZZZZZZ8", "38259P502", "0000000", "DE000BAY0013", "C", "EUR", "Equity", "Swaps", "1.50", "2001-01-01", "2024-01-03"},
			{"BBG123456784", "ABC*@#120", "ZZZZZZ0", "JPABCDEFGHI6", "D", "JPY", "Cash", "Swaps", "99", "x", "bogus"},
		},
	}
}

func TestNew_StartDate(t *testing.T) {
	s, err := New(seedTable())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := s.Date().Format(security.DateLayout); got != "2024-01-05" {
		t.Errorf("Date() = %s, want 2024-01-05", got)
	}
	if s.Vendor() != "acme" {
		t.Errorf("Vendor() = %q, want acme", s.Vendor())
	}

	noDates := seedTable()
	for _, r := range noDates.Rows {
		r[len(r)-1] = ""
	}
	fixed := time.Date(2030, 6, 15, 13, 0, 0, 0, time.UTC)
	s, err = New(noDates, WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := s.Date().Format(security.DateLayout); got != "2030-06-15" {
		t.Errorf("Date() without seed dates = %s, want today", got)
	}
}

func TestNew_MissingColumns(t *testing.T) {
	tbl := &feed.Table{Name: "x.csv", Header: []string{"FIGI", "APPLIED_DATE"}}
	if _, err := New(tbl); err == nil {
		t.Error("New() error = nil, want HeaderError")
	}
}

func TestDay_OnlyChangedRowsAdvance(t *testing.T) {
	seed := seedTable()
	s, err := New(seed, WithRand(testRand()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for day := 0; day < 20; day++ {
		before := s.Table()
		simDate := s.Date()
		res := s.Day(1, 2)
		after := s.Table()

		if res.RowsSelected != 1 {
			t.Fatalf("RowsSelected = %d, want 1", res.RowsSelected)
		}

		advanced := 0
		for i := range before.Rows {
			b, a := before.Rows[i], after.Rows[i]
			for c := 0; c < 8; c++ {
				if b[c] != a[c] {
					t.Fatalf("key column %d of row %d changed: %q -> %q", c, i, b[c], a[c])
				}
			}
			attrsChanged := b[8] != a[8] || b[9] != a[9]
			dateChanged := b[10] != a[10]
			if dateChanged {
				advanced++
				if !attrsChanged {
					t.Errorf("row %d date advanced without an attribute change", i)
				}
				base, err := time.Parse(security.DateLayout, b[10])
				if err != nil {
					base = simDate
				}
				if want := NextBusinessDay(base).Format(security.DateLayout); a[10] != want {
					t.Errorf("row %d date = %s, want %s", i, a[10], want)
				}
			}
			if b[8] == "" && a[8] != "" || b[9] == "" && a[9] != "" {
				t.Errorf("row %d: blank field populated", i)
			}
		}
		if advanced > 1 {
			t.Errorf("day %d: %d rows advanced, at most 1 selected", day, advanced)
		}
	}

	// Row 1 has only blank attributes and must keep its date.
	if got := s.Table().Rows[1][10]; got != "2024-01-05" {
		t.Errorf("all-blank row date = %s, want 2024-01-05", got)
	}
}

func TestDay_UnparsableAndBlankDates(t *testing.T) {
	tbl := seedTable()
	tbl.Rows = [][]string{
		{"BBG123456784", "037833100", "2046251", "US0378331008", "D", "JPY", "Cash", "Swaps", "99", "x", "bogus"},
		{"BBG00ABCDEF3", "594918104", "B0YBKJ7", "GB0002634940", "B", "GBP", "Cash", "Swaps", "5", "y", ""},
	}
	friday := func() time.Time { return date("2024-01-05") }
	s, err := New(tbl, WithRand(testRand()), WithClock(friday))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res := s.Day(2, 2)
	if res.RowsChanged != 2 {
		t.Fatalf("RowsChanged = %d, want 2", res.RowsChanged)
	}
	rows := s.Table().Rows
	if got := rows[0][10]; got != "2024-01-08" {
		t.Errorf("unparsable date = %s, want next business day after the simulated date", got)
	}
	if got := rows[1][10]; got != "" {
		t.Errorf("blank date = %q, want blank", got)
	}
}

func TestDay_RowBoundCapped(t *testing.T) {
	s, err := New(seedTable(), WithRand(testRand()))
	if err != nil {
		t.Fatal(err)
	}
	res := s.Day(100, 100)
	if res.RowsSelected != 4 {
		t.Errorf("RowsSelected = %d, want dataset size 4", res.RowsSelected)
	}
	if got := res.Date.Format(security.DateLayout); got != "2024-01-08" {
		t.Errorf("Date = %s, want 2024-01-08", got)
	}
}

func TestRun_WritesFilesAndReports(t *testing.T) {
	dir := t.TempDir()
	s, err := New(seedTable(), WithRand(testRand()))
	if err != nil {
		t.Fatal(err)
	}

	outs, err := s.Run(2, 2, 1, dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(outs) != 2 {
		t.Fatalf("Run() returned %d outputs, want 2", len(outs))
	}

	wantFiles := []string{"acme_2024-01-08.csv", "acme_2024-01-09.csv"}
	for i, out := range outs {
		if filepath.Base(out.File) != wantFiles[i] {
			t.Errorf("File = %s, want %s", filepath.Base(out.File), wantFiles[i])
		}
		tbl, err := feed.ReadFile(out.File)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		if len(tbl.Rows) != 4 {
			t.Errorf("%s has %d rows, want 4", out.File, len(tbl.Rows))
		}
		if _, err := os.Stat(out.ReportFile); err != nil {
			t.Errorf("report missing: %v", err)
		}
		if out.Report.TotalRows != 4 {
			t.Errorf("report TotalRows = %d, want 4", out.Report.TotalRows)
		}
	}
}

func TestGenerator(t *testing.T) {
	g := NewGenerator(testRand(), nil)
	tbl, err := g.Generate("vendor", 50, 10, date("2024-03-01"))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if tbl.Name != "vendor_2024-03-01.csv" {
		t.Errorf("Name = %q", tbl.Name)
	}
	if len(tbl.Header) != 19 || tbl.Header[8] != "FIELD_0001" || tbl.Header[18] != "APPLIED_DATE" {
		t.Errorf("Header = %v", tbl.Header)
	}
	if missing := tbl.Mapping().Missing(); len(missing) != 0 {
		t.Errorf("generated header missing %v", missing)
	}

	shapes := map[[2]string]string{}
	for _, row := range tbl.Rows {
		if row[18] != "2024-03-01" {
			t.Errorf("APPLIED_DATE = %q", row[18])
		}

		blanks := 0
		shape := make([]byte, 10)
		for i := 0; i < 10; i++ {
			shape[i] = '1'
			if row[8+i] == "" {
				shape[i] = '0'
				blanks++
			}
		}
		if blanks < 4 || blanks > 5 {
			t.Errorf("row has %d blank attributes, want 4-5", blanks)
		}

		pair := [2]string{row[6], row[7]}
		if prev, ok := shapes[pair]; ok && prev != string(shape) {
			t.Errorf("pair %v has inconsistent blank patterns %s and %s", pair, prev, shape)
		}
		shapes[pair] = string(shape)
	}

	if issues := len(tblIssues(t, tbl)); issues != 0 {
		t.Errorf("generated identifiers produced %d issues", issues)
	}
}

func TestPatternContext_IsPerInstance(t *testing.T) {
	r := testRand()
	a, b := NewPatternContext(), NewPatternContext()
	a.Blanks("Equity", "Options", 10, r)
	if a.Len() != 1 || b.Len() != 0 {
		t.Errorf("Len() = %d, %d; want 1, 0", a.Len(), b.Len())
	}
	first := a.Blanks("Equity", "Options", 10, r)
	second := a.Blanks("Equity", "Options", 10, r)
	if len(first) != len(second) {
		t.Error("pattern changed between calls")
	}
}

func tblIssues(t *testing.T, tbl *feed.Table) []rules.Issue {
	t.Helper()
	return rules.New(rules.WithChecksumVerification()).Evaluate(tbl.Name, tbl.Records()).Issues
}
