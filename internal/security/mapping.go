package security

import (
	"strings"
)

// Mapping translates one vendor file's header into model column names.
//
// Vendor headers may carry leading underscores and arbitrary case
// ("_FIGI", "__FIELD_0001", "APPLIED_DATE"). The model column is the header
// with leading underscores stripped, lower-cased.
type Mapping struct {
	Vendor  []string       // headers as they appear in the file
	Model   []string       // model column per header position
	byModel map[string]int // model column -> position
}

// ModelColumn normalizes a single vendor header.
func ModelColumn(header string) string {
	h := strings.TrimSpace(header)
	h = strings.TrimLeft(h, "_")
	return strings.ToLower(h)
}

// NewMapping builds a mapping for header. When two headers normalize to
// the same model column the first one wins.
func NewMapping(header []string) *Mapping {
	m := &Mapping{
		Vendor:  append([]string(nil), header...),
		Model:   make([]string, len(header)),
		byModel: make(map[string]int, len(header)),
	}
	for i, h := range header {
		col := ModelColumn(h)
		m.Model[i] = col
		if _, dup := m.byModel[col]; !dup {
			m.byModel[col] = i
		}
	}
	return m
}

// Missing returns the required model columns absent from the header:
// every key column and the effective-date column.
func (m *Mapping) Missing() []string {
	var missing []string
	for _, col := range KeyColumns {
		if _, ok := m.byModel[col]; !ok {
			missing = append(missing, col)
		}
	}
	if _, ok := m.byModel[ColEffectiveDate]; !ok {
		missing = append(missing, ColEffectiveDate)
	}
	return missing
}

// Index returns the row position of a model column.
func (m *Mapping) Index(col string) (int, bool) {
	i, ok := m.byModel[col]
	return i, ok
}

// Columns returns the distinct model columns in header order.
func (m *Mapping) Columns() []string {
	out := make([]string, 0, len(m.Model))
	for i, col := range m.Model {
		if m.byModel[col] == i {
			out = append(out, col)
		}
	}
	return out
}

// Record converts a raw row into a Record. Short rows yield blank values
// for the missing trailing columns. Key and effective-date values are
// trimmed so both stores see the same identity as Key.
func (m *Mapping) Record(row []string) Record {
	rec := make(Record, len(m.byModel))
	for col, i := range m.byModel {
		switch {
		case i >= len(row):
			rec[col] = ""
		case isIdentityColumn(col):
			rec[col] = strings.TrimSpace(row[i])
		default:
			rec[col] = row[i]
		}
	}
	return rec
}

func isIdentityColumn(col string) bool {
	if col == ColEffectiveDate {
		return true
	}
	for _, k := range KeyColumns {
		if col == k {
			return true
		}
	}
	return false
}

// Values orders a record's values by cols; absent columns are blank.
func Values(r Record, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = r[c]
	}
	return out
}

// Lineage maps each model column to the vendor field that produced it,
// formatted "<file>:<vendor header>".
func (m *Mapping) Lineage(file string) map[string]string {
	out := make(map[string]string, len(m.byModel))
	for col, i := range m.byModel {
		out[col] = file + ":" + m.Vendor[i]
	}
	return out
}

// VendorName derives the vendor from a feed file name: the part before the
// first underscore, or the name without its extension.
func VendorName(file string) string {
	base := file
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.Index(base, "_"); i >= 0 {
		return base[:i]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		return base[:i]
	}
	return base
}
