package transcript

import (
	"regexp"
	"strings"
	"unicode"
)

// Options controls transcript normalization behavior.
type Options struct {
	TrailingSpace       bool
	CapitalizeSentences bool
}

// Normalize collapses whitespace and applies configured casing to text that
// is about to be delivered.
func Normalize(text string, opts Options) string {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" {
		return ""
	}

	if opts.CapitalizeSentences {
		normalized = capitalizeSentences(normalized)
	}

	if opts.TrailingSpace {
		return normalized + " "
	}
	return normalized
}

var pronounIContractionPattern = regexp.MustCompile(`\bi['’](?:m|d|ll|ve|re|s)\b`)

var pronounIWordPattern = regexp.MustCompile(`\bi\b`)

// lowercaseAbbreviations never promote the following word to a sentence start
// and stay lowercase themselves.
var lowercaseAbbreviations = map[string]struct{}{
	"dr":  {},
	"e.g": {},
	"etc": {},
	"i.e": {},
	"mr":  {},
	"mrs": {},
	"ms":  {},
	"vs":  {},
}

func capitalizeSentences(text string) string {
	runes := []rune(text)

	var out strings.Builder
	out.Grow(len(text))

	capitalizeNext := true
	for i, r := range runes {
		if capitalizeNext && unicode.IsLetter(r) {
			if shouldCapitalizeWordAt(runes, i) {
				r = unicode.ToUpper(r)
			}
			capitalizeNext = false
		}

		out.WriteRune(r)

		switch r {
		case '.':
			if isSentenceBoundaryPeriod(runes, i) {
				capitalizeNext = true
			}
		case '!', '?':
			capitalizeNext = true
		}
	}

	result := pronounIContractionPattern.ReplaceAllStringFunc(out.String(), func(match string) string {
		return "I" + match[1:]
	})
	return capitalizeStandalonePronounI(result)
}

// capitalizeStandalonePronounI uppercases the pronoun "i" while leaving
// period-joined tokens like "i.e." alone.
func capitalizeStandalonePronounI(text string) string {
	matches := pronounIWordPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var out strings.Builder
	out.Grow(len(text))

	last := 0
	for _, match := range matches {
		start, end := match[0], match[1]
		out.WriteString(text[last:start])
		if periodJoinedAt(text, start, end) {
			out.WriteString(text[start:end])
		} else {
			out.WriteString("I")
		}
		last = end
	}

	out.WriteString(text[last:])
	return out.String()
}

func periodJoinedAt(text string, start int, end int) bool {
	if end < len(text) && text[end] == '.' && end+1 < len(text) && isASCIILetter(text[end+1]) {
		return true
	}
	if start > 1 && text[start-1] == '.' && isASCIILetter(text[start-2]) {
		return true
	}
	return false
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// isSentenceBoundaryPeriod filters out decimals, embedded tokens, and common
// abbreviations so mid-sentence periods do not trigger capitalization.
func isSentenceBoundaryPeriod(runes []rune, idx int) bool {
	if idx > 0 && idx+1 < len(runes) &&
		unicode.IsDigit(runes[idx-1]) && unicode.IsDigit(runes[idx+1]) {
		return false
	}
	if idx+1 < len(runes) {
		next := runes[idx+1]
		if unicode.IsLetter(next) || unicode.IsDigit(next) || next == '.' {
			return false
		}
	}

	token := strings.ToLower(tokenBeforePeriod(runes, idx))
	if token == "" {
		return true
	}
	if _, ok := lowercaseAbbreviations[token]; ok {
		return false
	}
	return true
}

func shouldCapitalizeWordAt(runes []rune, idx int) bool {
	end := idx
	for end < len(runes) {
		r := runes[end]
		if unicode.IsLetter(r) || r == '.' {
			end++
			continue
		}
		break
	}
	token := strings.ToLower(strings.Trim(string(runes[idx:end]), "."))
	if token == "" {
		return true
	}
	_, lowercase := lowercaseAbbreviations[token]
	return !lowercase
}

func tokenBeforePeriod(runes []rune, idx int) string {
	if idx <= 0 || idx >= len(runes) {
		return ""
	}

	start := idx - 1
	for start >= 0 {
		if r := runes[start]; unicode.IsLetter(r) || r == '.' {
			start--
			continue
		}
		break
	}

	return strings.Trim(string(runes[start+1:idx]), ".")
}
