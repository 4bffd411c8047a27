package config

import (
	"fmt"
	"strings"
	"unicode"
)

// parseArgv splits a clipboard tool command string ("wl-copy", "wl-paste
// --no-newline") into an exec argv. Single and double quotes group words,
// backslash escapes the next rune, and a leading # comments the line out.
func parseArgv(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.HasPrefix(input, "#") {
		return nil, nil
	}

	var (
		argv   []string
		word   strings.Builder
		quote  rune
		escape bool
	)

	emit := func() {
		if word.Len() == 0 {
			return
		}
		argv = append(argv, word.String())
		word.Reset()
	}

	for _, r := range input {
		switch {
		case escape:
			word.WriteRune(r)
			escape = false
		case r == '\\':
			escape = true
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			word.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
		case unicode.IsSpace(r):
			emit()
		default:
			word.WriteRune(r)
		}
	}

	if escape {
		return nil, fmt.Errorf("unterminated escape sequence in command: %q", input)
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in command: %q", input)
	}

	emit()
	return argv, nil
}

// mustParseArgv backs the built-in default commands, which are known-good.
func mustParseArgv(input string) []string {
	argv, err := parseArgv(input)
	if err != nil {
		panic(err)
	}
	return argv
}
