package linkpreview

import (
	"regexp"
	"strings"
)

// reURLs matches sequence of characters described by RFC 3986 having http://
// or https:// prefix. It actually allows superset of characters from RFC
// 3986, allowing some most commonly used characters like {}, etc.
var reURLs = regexp.MustCompile(`https?://[%:/?#\[\]@!$&'\(\){}*+,;=\pL\pN._~-]+`)

// trailingPunct are characters that are usually not part of url when found at
// its end
const trailingPunct = `[]()<>{},;.*_`

// closingPairs maps closing bracket to its opening counterpart
var closingPairs = map[byte]byte{')': '(', ']': '[', '>': '<', '}': '{'}

// ParseURLs extracts unique url-like (http/https scheme only) substrings from
// given text. Results may not be proper urls, since only sequence of matched
// characters are searched for. Trailing punctuation is removed, but closing
// bracket is kept if url has matching opening one, as in wikipedia links like
// https://en.wikipedia.org/wiki/Go_(programming_language).
func ParseURLs(content string) []string { return parseURLsMax(content, -1) }

func parseURLsMax(content string, maxItems int) []string {
	found := reURLs.FindAllString(content, maxItems)
	out := found[:0]
	seen := make(map[string]struct{}, len(found))
	for _, s := range found {
		s = trimURL(s)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// trimURL strips trailing punctuation from s
func trimURL(s string) string {
	for len(s) > 0 {
		c := s[len(s)-1]
		if !strings.ContainsRune(trailingPunct, rune(c)) {
			break
		}
		if open, ok := closingPairs[c]; ok && strings.IndexByte(s, open) > 0 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}
