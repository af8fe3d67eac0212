package identifier

import (
	"fmt"
	"math/rand/v2"
)

const alnum = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// FIGIPrefix is the fixed three-letter prefix of generated FIGIs.
const FIGIPrefix = "BBG"

// ISINCountries are the country prefixes used for generated ISINs.
var ISINCountries = []string{"US", "GB", "JP", "DE", "FR", "CA", "AU", "CH"}

// Generate returns a random identifier of kind k with a valid check digit.
func Generate(k Kind, r *rand.Rand) (string, error) {
	var body string
	switch k {
	case FIGI:
		body = FIGIPrefix + randomString(r, 8)
	case CUSIP:
		body = randomString(r, 8)
	case SEDOL:
		body = randomString(r, 6)
	case ISIN:
		body = ISINCountries[r.IntN(len(ISINCountries))] + randomString(r, 9)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	return Complete(k, body)
}

// GenerateN returns n identifiers of kind k.
func GenerateN(k Kind, n int, r *rand.Rand) ([]string, error) {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := Generate(k, r)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func randomString(r *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alnum[r.IntN(len(alnum))]
	}
	return string(b)
}
