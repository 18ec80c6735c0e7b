package statement

// countPlaceholders estimates the number of bind parameters in sqlText. It is
// only used for drivers that cannot report the count themselves.
//
// Positional markers (?) are counted; numbered markers ($N, ?N) contribute
// their highest N. Markers inside string literals, quoted identifiers,
// dollar-quoted bodies and comments are ignored. Strings follow standard SQL:
// a backslash is an ordinary character except in postgres E'' strings.
// Operators spelled with ? (postgres jsonb) and MySQL # comments are not
// recognized.
func countPlaceholders(sqlText string) int {
	positional, numbered := 0, 0
	s := sqlText
	n := len(s)

	for i := 0; i < n; i++ {
		c := s[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			escapes := c == '\'' && (prev(s, i) == 'E' || prev(s, i) == 'e') && !isIdentChar(prev(s, i-1))
			i = skipQuoted(s, i, c, escapes)

		case c == '-' && i+1 < n && s[i+1] == '-':
			for i < n && s[i] != '\n' {
				i++
			}

		case c == '/' && i+1 < n && s[i+1] == '*':
			i += 2
			for i+1 < n && !(s[i] == '*' && s[i+1] == '/') {
				i++
			}
			i++

		case c == '$':
			if i+1 < n && isDigit(s[i+1]) && !isIdentChar(prev(s, i)) {
				num, end := readNumber(s, i+1)
				numbered = max(numbered, num)
				i = end - 1
				continue
			}
			if isIdentChar(prev(s, i)) {
				continue
			}
			if end, ok := skipDollarQuoted(s, i); ok {
				i = end
			}

		case c == '?':
			if i+1 < n && isDigit(s[i+1]) {
				num, end := readNumber(s, i+1)
				numbered = max(numbered, num)
				i = end - 1
				continue
			}
			positional++
		}
	}

	return max(positional, numbered)
}

// skipQuoted returns the index of the quote closing the literal opened at start.
// A doubled quote character is an escaped quote; with escapes a backslash also
// escapes the next character.
func skipQuoted(s string, start int, quote byte, escapes bool) int {
	for i := start + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if escapes {
				i++
			}
		case quote:
			if i+1 < len(s) && s[i+1] == quote {
				i++
				continue
			}
			return i
		}
	}
	return len(s)
}

// skipDollarQuoted skips a postgres $tag$...$tag$ body starting at start.
func skipDollarQuoted(s string, start int) (int, bool) {
	j := start + 1
	for j < len(s) && s[j] != '$' {
		if !isIdentChar(s[j]) {
			return start, false
		}
		j++
	}
	if j >= len(s) {
		return start, false
	}
	tag := s[start : j+1]
	for k := j + 1; k+len(tag) <= len(s); k++ {
		if s[k:k+len(tag)] == tag {
			return k + len(tag) - 1, true
		}
	}
	return len(s), true
}

func readNumber(s string, start int) (int, int) {
	num, i := 0, start
	for i < len(s) && isDigit(s[i]) {
		num = num*10 + int(s[i]-'0')
		i++
	}
	return num, i
}

func prev(s string, i int) byte {
	if i == 0 {
		return ' '
	}
	return s[i-1]
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentChar(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
