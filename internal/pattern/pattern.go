// Package pattern extracts values from loosely structured page text.
// Every function is pure: patterns carry no cursor between calls.
package pattern

import "regexp"

// FindAll returns the first capture group of every non-overlapping match
// of re in s, in the order they appear. A pattern without a capture group
// yields whole matches.
func FindAll(re *regexp.Regexp, s string) []string {
	matches := re.FindAllStringSubmatch(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, group(m))
	}
	return out
}

// Find returns the first capture group of the first match of re in s.
func Find(re *regexp.Regexp, s string) (string, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return group(m), true
}

// EachOf returns the non-empty first-match capture of every pattern that
// matches s, in pattern order.
func EachOf(res []*regexp.Regexp, s string) []string {
	var out []string
	for _, re := range res {
		if v, ok := Find(re, s); ok && v != "" {
			out = append(out, v)
		}
	}
	return out
}

func group(m []string) string {
	if len(m) > 1 {
		return m[1]
	}
	return m[0]
}
