package identifier

// figiCheck sums the mapped values of all body characters, mod 10.
func figiCheck(body string) (int, error) {
	sum := 0
	for i := 0; i < len(body); i++ {
		v, ok := alnumValue(body[i])
		if !ok {
			return 0, &AlphabetError{Kind: FIGI, Char: rune(body[i]), Pos: i}
		}
		sum += v
	}
	return sum % 10, nil
}

// cusipValue extends the alphanumeric mapping with the CUSIP specials.
func cusipValue(c byte) (int, bool) {
	switch c {
	case '*':
		return 36, true
	case '@':
		return 37, true
	case '#':
		return 38, true
	}
	return alnumValue(c)
}

// cusipCheck doubles values at even 1-indexed positions and folds any
// product above 9 by subtracting 9.
func cusipCheck(body string) (int, error) {
	sum := 0
	for i := 0; i < len(body); i++ {
		v, ok := cusipValue(body[i])
		if !ok {
			return 0, &AlphabetError{Kind: CUSIP, Char: rune(body[i]), Pos: i}
		}
		if (i+1)%2 == 0 {
			v *= 2
		}
		if v > 9 {
			v -= 9
		}
		sum += v
	}
	return (10 - sum%10) % 10, nil
}

var sedolWeights = [6]int{1, 3, 1, 7, 3, 9}

func sedolCheck(body string) (int, error) {
	sum := 0
	for i := 0; i < len(body); i++ {
		v, ok := alnumValue(body[i])
		if !ok {
			return 0, &AlphabetError{Kind: SEDOL, Char: rune(body[i]), Pos: i}
		}
		sum += sedolWeights[i] * v
	}
	return (10 - sum%10) % 10, nil
}

// isinCheck runs Luhn over the digit expansion of the body, where each
// letter is written out as its two-digit value.
func isinCheck(body string) (int, error) {
	digits := make([]int, 0, 2*len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if i < 2 && (c < 'A' || c > 'Z') {
			return 0, &AlphabetError{Kind: ISIN, Char: rune(c), Pos: i}
		}
		v, ok := alnumValue(c)
		if !ok {
			return 0, &AlphabetError{Kind: ISIN, Char: rune(c), Pos: i}
		}
		if v >= 10 {
			digits = append(digits, v/10, v%10)
		} else {
			digits = append(digits, v)
		}
	}

	sum := 0
	for i := 0; i < len(digits); i++ {
		d := digits[len(digits)-1-i]
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return (10 - sum%10) % 10, nil
}
