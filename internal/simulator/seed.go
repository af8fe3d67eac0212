package simulator

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/JonMunkholm/secmaster/internal/feed"
	"github.com/JonMunkholm/secmaster/internal/identifier"
	"github.com/JonMunkholm/secmaster/internal/security"
)

// AttributeSource supplies the descriptive key attributes of generated
// securities.
type AttributeSource interface {
	CompanyName(r *rand.Rand) string
	Currency(r *rand.Rand) string
	AssetClass(r *rand.Rand) (class, group string)
}

// DefaultAttributes draws from fixed lists.
type DefaultAttributes struct{}

var currencies = []string{
	"USD", "EUR", "JPY", "GBP", "AUD", "CAD", "CHF", "CNY", "SEK", "NZD",
	"MXN", "SGD", "HKD", "NOK", "KRW", "TRY", "RUB", "INR", "BRL", "ZAR",
}

var assetClasses = []string{"Equity", "Fixed Income", "Commodity", "Real Estate", "Cash", "Derivatives"}

var assetGroups = map[string][]string{
	"Equity":       {"Domestic Equity", "International Equity", "Emerging Markets Equity"},
	"Fixed Income": {"Government Bonds", "Corporate Bonds", "Municipal Bonds", "High Yield Bonds"},
	"Commodity":    {"Energy", "Metals", "Agriculture", "Livestock"},
	"Real Estate":  {"Commercial", "Residential", "Industrial"},
	"Cash":         {"Short-Term Instruments", "Money Market"},
	"Derivatives":  {"Options", "Futures", "Swaps"},
}

var (
	namePrefixes = []string{
		"Atlas", "Beacon", "Cedar", "Delta", "Ember", "Falcon", "Granite", "Harbor",
		"Iron", "Juniper", "Keystone", "Lumen", "Meridian", "Northwind", "Orion", "Pioneer",
	}
	nameSuffixes = []string{
		"Holdings", "Capital", "Industries", "Group", "Partners", "Systems", "Resources", "Labs",
	}
	nameForms = []string{"Inc.", "Ltd", "PLC", "LLC", "Corp."}
)

func (DefaultAttributes) CompanyName(r *rand.Rand) string {
	return fmt.Sprintf("%s %s %s",
		namePrefixes[r.IntN(len(namePrefixes))],
		nameSuffixes[r.IntN(len(nameSuffixes))],
		nameForms[r.IntN(len(nameForms))])
}

func (DefaultAttributes) Currency(r *rand.Rand) string {
	return currencies[r.IntN(len(currencies))]
}

func (DefaultAttributes) AssetClass(r *rand.Rand) (string, string) {
	class := assetClasses[r.IntN(len(assetClasses))]
	groups := assetGroups[class]
	return class, groups[r.IntN(len(groups))]
}

// PatternContext remembers which attribute columns are blank for each
// (asset class, asset group) pair so securities of one kind share a shape.
type PatternContext struct {
	blanks map[[2]string]map[int]bool
}

// NewPatternContext creates an empty context.
func NewPatternContext() *PatternContext {
	return &PatternContext{blanks: make(map[[2]string]map[int]bool)}
}

// Blanks returns the blank column set for a pair, choosing 40-50% of the
// n attribute columns the first time the pair is seen.
func (p *PatternContext) Blanks(class, group string, n int, r *rand.Rand) map[int]bool {
	key := [2]string{class, group}
	if set, ok := p.blanks[key]; ok {
		return set
	}
	lo, hi := n*4/10, n*5/10
	count := lo + r.IntN(hi-lo+1)
	set := make(map[int]bool, count)
	for _, i := range r.Perm(n)[:count] {
		set[i] = true
	}
	p.blanks[key] = set
	return set
}

// Len returns the number of pairs seen.
func (p *PatternContext) Len() int { return len(p.blanks) }

// Generator builds seed datasets.
type Generator struct {
	rng      *rand.Rand
	attrs    AttributeSource
	values   *Values
	patterns *PatternContext
}

// NewGenerator creates a Generator. A nil source uses DefaultAttributes.
func NewGenerator(r *rand.Rand, attrs AttributeSource) *Generator {
	if attrs == nil {
		attrs = DefaultAttributes{}
	}
	return &Generator{
		rng:      r,
		attrs:    attrs,
		values:   NewValues(r),
		patterns: NewPatternContext(),
	}
}

// Header returns the seed header for fields attribute columns.
func Header(fields int) []string {
	h := make([]string, 0, len(security.KeyColumns)+fields+1)
	for _, col := range security.KeyColumns {
		h = append(h, strings.ToUpper(col))
	}
	for i := 1; i <= fields; i++ {
		h = append(h, fmt.Sprintf("FIELD_%04d", i))
	}
	return append(h, strings.ToUpper(security.ColEffectiveDate))
}

// Generate creates rows securities with fields attribute columns, all
// effective on date. Each attribute column has one fixed type.
func (g *Generator) Generate(vendor string, rows, fields int, date time.Time) (*feed.Table, error) {
	types := make([]ValueType, fields)
	for i := range types {
		types[i] = ValueTypes[g.rng.IntN(len(ValueTypes))]
	}

	tbl := &feed.Table{
		Name:   fmt.Sprintf("%s_%s%s", vendor, date.Format(security.DateLayout), feed.Extension),
		Header: Header(fields),
		Rows:   make([][]string, 0, rows),
	}
	for i := 0; i < rows; i++ {
		row, err := g.Row(g.patterns, types, date)
		if err != nil {
			return nil, err
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl, nil
}

// Row generates one security. Attribute columns blank for the row's
// (asset class, asset group) pair in pc are left empty.
func (g *Generator) Row(pc *PatternContext, types []ValueType, date time.Time) ([]string, error) {
	row := make([]string, 0, len(security.KeyColumns)+len(types)+1)
	for _, k := range identifier.Kinds {
		id, err := identifier.Generate(k, g.rng)
		if err != nil {
			return nil, err
		}
		row = append(row, id)
	}

	class, group := g.attrs.AssetClass(g.rng)
	row = append(row, g.attrs.CompanyName(g.rng), g.attrs.Currency(g.rng), class, group)

	blanks := pc.Blanks(class, group, len(types), g.rng)
	for i, t := range types {
		if blanks[i] {
			row = append(row, "")
			continue
		}
		row = append(row, g.values.Generate(t))
	}
	return append(row, date.Format(security.DateLayout)), nil
}
