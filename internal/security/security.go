// Package security defines the security master data model: the eight-field
// business key, the per-version attribute record, and the column
// conventions shared by the feed reader, the rule engine and both stores.
package security

import (
	"strings"
)

// Model column names for the fixed business key, in file order.
const (
	ColFIGI        = "figi"
	ColCUSIP       = "cusip"
	ColSEDOL       = "sedol"
	ColISIN        = "isin"
	ColCompanyName = "company_name"
	ColCurrency    = "currency"
	ColAssetClass  = "asset_class"
	ColAssetGroup  = "asset_group"

	// ColEffectiveDate is the trailing column holding the version's date.
	ColEffectiveDate = "applied_date"
)

// DateLayout is the EffectiveDate format.
const DateLayout = "2006-01-02"

// KeySeparator joins key segments in composite keys.
const KeySeparator = "|"

// KeyColumns lists the business key columns in order.
var KeyColumns = []string{
	ColFIGI, ColCUSIP, ColSEDOL, ColISIN,
	ColCompanyName, ColCurrency, ColAssetClass, ColAssetGroup,
}

// IdentifierColumns are the four checksummed key columns.
var IdentifierColumns = KeyColumns[:4]

// Key identifies one logical security across all of its versions.
type Key struct {
	FIGI        string `json:"figi"`
	CUSIP       string `json:"cusip"`
	SEDOL       string `json:"sedol"`
	ISIN        string `json:"isin"`
	CompanyName string `json:"company_name"`
	Currency    string `json:"currency"`
	AssetClass  string `json:"asset_class"`
	AssetGroup  string `json:"asset_group"`
}

// Values returns the key segments in KeyColumns order.
func (k Key) Values() []string {
	return []string{
		k.FIGI, k.CUSIP, k.SEDOL, k.ISIN,
		k.CompanyName, k.Currency, k.AssetClass, k.AssetGroup,
	}
}

// String returns the pipe-joined composite key.
func (k Key) String() string {
	return strings.Join(k.Values(), KeySeparator)
}

// Complete reports whether every key segment is non-blank.
func (k Key) Complete() bool {
	for _, v := range k.Values() {
		if v == "" {
			return false
		}
	}
	return true
}

// KeyFromValues builds a Key from segments in KeyColumns order.
// Missing trailing segments are left blank.
func KeyFromValues(vals []string) Key {
	get := func(i int) string {
		if i < len(vals) {
			return strings.TrimSpace(vals[i])
		}
		return ""
	}
	return Key{
		FIGI:        get(0),
		CUSIP:       get(1),
		SEDOL:       get(2),
		ISIN:        get(3),
		CompanyName: get(4),
		Currency:    get(5),
		AssetClass:  get(6),
		AssetGroup:  get(7),
	}
}

// ParseKey splits a pipe-joined composite key.
func ParseKey(s string) Key {
	return KeyFromValues(strings.Split(s, KeySeparator))
}

// Record is one row's attribute values keyed by model column name.
type Record map[string]string

// Key extracts the business key from the record.
func (r Record) Key() Key {
	vals := make([]string, len(KeyColumns))
	for i, col := range KeyColumns {
		vals[i] = r[col]
	}
	return KeyFromValues(vals)
}

// EffectiveDate returns the trimmed effective-date value.
func (r Record) EffectiveDate() string {
	return strings.TrimSpace(r[ColEffectiveDate])
}

// UniqueKey correlates a row to its version: the eight key fields plus the
// effective date, pipe-joined, taken verbatim from the row.
func (r Record) UniqueKey() string {
	parts := make([]string, 0, len(KeyColumns)+1)
	for _, col := range KeyColumns {
		parts = append(parts, r[col])
	}
	parts = append(parts, r[ColEffectiveDate])
	return strings.Join(parts, KeySeparator)
}

// Clone returns a copy that shares no storage with r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Version is a security's attributes as observed on one EffectiveDate.
type Version struct {
	Key           Key    `json:"key"`
	EffectiveDate string `json:"applied_date"`
	Fields        Record `json:"fields"`
}

// NewVersion builds a Version from a full row.
func NewVersion(r Record) Version {
	return Version{
		Key:           r.Key(),
		EffectiveDate: r.EffectiveDate(),
		Fields:        r,
	}
}

// IsKeyColumn reports whether col is one of the eight key columns.
func IsKeyColumn(col string) bool {
	for _, k := range KeyColumns {
		if k == col {
			return true
		}
	}
	return false
}

// Latest picks the version with the greatest EffectiveDate, keeping the
// first seen on ties. It is the replay rule for rebuilding a snapshot.
func Latest(versions []Version) (Version, bool) {
	if len(versions) == 0 {
		return Version{}, false
	}
	best := versions[0]
	for _, v := range versions[1:] {
		if v.EffectiveDate > best.EffectiveDate {
			best = v
		}
	}
	return best, true
}
