package simil

import "strings"

var soundexCode = map[byte]byte{
	'B': '1', 'F': '1', 'P': '1', 'V': '1',
	'C': '2', 'G': '2', 'J': '2', 'K': '2', 'Q': '2', 'S': '2', 'X': '2', 'Z': '2',
	'D': '3', 'T': '3',
	'L': '4',
	'M': '5', 'N': '5',
	'R': '6',
}

// Soundex returns the four-character American Soundex code for s, used as
// a blocking-key helper rather than a scoring algorithm.
func Soundex(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	var letters []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			letters = append(letters, c)
		}
	}
	if len(letters) == 0 {
		return ""
	}

	out := []byte{letters[0]}
	lastCode := soundexCode[letters[0]]

	for i := 1; i < len(letters) && len(out) < 4; i++ {
		code, isCoded := soundexCode[letters[i]]
		if !isCoded {
			if letters[i] != 'H' && letters[i] != 'W' {
				lastCode = 0
			}
			continue
		}
		if code != lastCode {
			out = append(out, code)
		}
		lastCode = code
	}

	for len(out) < 4 {
		out = append(out, '0')
	}
	return string(out)
}
