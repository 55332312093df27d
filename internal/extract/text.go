package extract

import (
	"strings"
	"unicode/utf8"
)

// window returns up to n characters of text starting at byte offset start.
// n <= 0 means the rest of the text.
func window(text string, start, n int) string {
	if start >= len(text) {
		return ""
	}
	rest := text[start:]
	if n <= 0 {
		return rest
	}
	i := 0
	for pos := range rest {
		if i == n {
			return rest[:pos]
		}
		i++
	}
	return rest
}

// truncate keeps at most n characters of s. n <= 0 keeps everything.
func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// collapseSpace joins the whitespace-separated fields of s with single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// indexAny returns the earliest offset in s at which any marker begins, or -1.
func indexAny(s string, markers ...string) int {
	best := -1
	for _, m := range markers {
		if i := strings.Index(s, m); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

// block extracts the text after the first start marker up to the earliest
// end marker. When no end marker follows, the block runs to the end of the
// text if untilEOF is set and is absent otherwise.
func block(text string, starts, ends []string, untilEOF bool) (string, bool) {
	begin := -1
	var marker string
	for _, s := range starts {
		if i := strings.Index(text, s); i >= 0 && (begin < 0 || i < begin) {
			begin, marker = i, s
		}
	}
	if begin < 0 {
		return "", false
	}
	body := text[begin+len(marker):]
	end := indexAny(body, ends...)
	if end < 0 {
		if !untilEOF {
			return "", false
		}
		return body, true
	}
	return body[:end], true
}
