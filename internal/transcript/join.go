// Package transcript joins and normalizes recognized ASR fragments.
package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// AppendFragment attaches one recognized fragment to accumulated text.
// Fragments that begin with closing punctuation attach without a preceding
// space so "Hello" + ". " yields "Hello." rather than "Hello .".
func AppendFragment(existing string, fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return existing
	}
	if existing == "" {
		return fragment
	}

	first, _ := utf8.DecodeRuneInString(fragment)
	if attachesWithoutSpace(first) {
		return existing + fragment
	}
	return existing + " " + fragment
}

// Join folds fragments together with AppendFragment.
func Join(fragments []string) string {
	var out string
	for _, fragment := range fragments {
		out = AppendFragment(out, fragment)
	}
	return out
}

// attachesWithoutSpace reports punctuation that binds to the preceding word.
func attachesWithoutSpace(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ';', ':', ')', ']', '}', '\'', '"', '’', '”', '…', '%':
		return true
	default:
		return unicode.Is(unicode.Pf, r)
	}
}
