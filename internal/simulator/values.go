package simulator

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/secmaster/internal/security"
)

// ValueType is the detected type of an attribute value.
type ValueType int

const (
	TypeString ValueType = iota
	TypeInteger
	TypeFloat
	TypeDate
)

// ValueTypes lists every type a generated column may have.
var ValueTypes = []ValueType{TypeString, TypeInteger, TypeFloat, TypeDate}

func (t ValueType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeDate:
		return "date"
	default:
		return "string"
	}
}

// DetectType classifies a value: integer, then float, then date, else
// string. Integers are only recognized without a decimal point. ok is false
// for blank values.
func DetectType(v string) (t ValueType, ok bool) {
	s := strings.TrimSpace(v)
	if s == "" {
		return TypeString, false
	}
	if !strings.Contains(s, ".") {
		if _, err := strconv.ParseInt(s, 10, 64); err == nil {
			return TypeInteger, true
		}
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return TypeFloat, true
	}
	if _, err := time.Parse(security.DateLayout, s); err == nil {
		return TypeDate, true
	}
	return TypeString, true
}

// Value domains for regenerated attributes.
var (
	dateMin = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	dateMax = time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
)

const (
	intMax       = 100
	floatMax     = 100
	stringLength = 10
	letters      = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Values generates random attribute values.
type Values struct {
	rng *rand.Rand
}

// NewValues creates a generator drawing from rng.
func NewValues(rng *rand.Rand) *Values {
	return &Values{rng: rng}
}

// Generate returns a fresh value of type t.
func (g *Values) Generate(t ValueType) string {
	switch t {
	case TypeInteger:
		return strconv.Itoa(g.rng.IntN(intMax + 1))
	case TypeFloat:
		return decimal.NewFromFloat(g.rng.Float64() * floatMax).StringFixed(2)
	case TypeDate:
		days := int(dateMax.Sub(dateMin).Hours() / 24)
		return dateMin.AddDate(0, 0, g.rng.IntN(days+1)).Format(security.DateLayout)
	default:
		b := make([]byte, stringLength)
		for i := range b {
			b[i] = letters[g.rng.IntN(len(letters))]
		}
		return string(b)
	}
}

// NextBusinessDay returns the next day after t that is not a Saturday or
// Sunday.
func NextBusinessDay(t time.Time) time.Time {
	next := t.AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
