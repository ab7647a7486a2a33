package pathparse

import "strconv"

// scanner walks the raw path text. Separators are whitespace and commas.
type scanner struct {
	s   string
	pos int
}

func (sc *scanner) skipSeparators() {
	for sc.pos < len(sc.s) {
		switch sc.s[sc.pos] {
		case ' ', '\t', '\n', '\r', '\f', ',':
			sc.pos++
		default:
			return
		}
	}
}

func (sc *scanner) done() bool {
	sc.skipSeparators()
	return sc.pos >= len(sc.s)
}

func (sc *scanner) atEnd() bool { return sc.pos >= len(sc.s) }

// number reads a decimal number with optional sign, fraction and exponent.
// "1.5.5" reads as 1.5 followed by .5 and "-1-2" as -1 followed by -2.
func (sc *scanner) number() (float64, *ParseError) {
	sc.skipSeparators()
	s := sc.s
	start := sc.pos
	i := start
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0, &ParseError{Offset: start, Reason: "expected number"}
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && isDigit(s[j]) {
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			i = j
		}
	}

	v, err := strconv.ParseFloat(s[start:i], 64)
	if err != nil {
		return 0, &ParseError{Offset: start, Reason: "invalid number " + strconv.Quote(s[start:i])}
	}
	sc.pos = i
	return v, nil
}

// flag reads a single arc flag, which may be written without separators.
func (sc *scanner) flag() (float64, *ParseError) {
	sc.skipSeparators()
	if sc.pos < len(sc.s) {
		switch sc.s[sc.pos] {
		case '0':
			sc.pos++
			return 0, nil
		case '1':
			sc.pos++
			return 1, nil
		}
	}
	return 0, &ParseError{Offset: sc.pos, Reason: "expected flag"}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
