package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Parse reads configuration content as JSONC.
func Parse(content string, base Config) (Config, []Warning, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		validatedWarnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, validatedWarnings, nil
	}

	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}
	if !strings.HasPrefix(strings.TrimSpace(normalized), "{") {
		return Config{}, nil, errors.New("config must be a JSONC object (expected '{')")
	}

	return parseJSONC(normalized, base)
}

type jsoncConfig struct {
	STT       *jsoncSTT       `json:"stt"`
	Audio     *jsoncAudio     `json:"audio"`
	Buffer    *jsoncBuffer    `json:"buffer"`
	Inject    *jsoncInject    `json:"inject"`
	History   *jsoncHistory   `json:"history"`
	Indicator *jsoncIndicator `json:"indicator"`

	ClipboardCopyCmd  *string     `json:"clipboard_copy_cmd"`
	ClipboardPasteCmd *string     `json:"clipboard_paste_cmd"`
	Debug             *jsoncDebug `json:"debug"`
}

type jsoncSTT struct {
	Endpoint   *string `json:"endpoint"`
	SampleRate *int    `json:"sample_rate"`
}

type jsoncAudio struct {
	Input    *string `json:"input"`
	Fallback *string `json:"fallback"`
}

type jsoncBuffer struct {
	SilenceMS    *int  `json:"silence_ms"`
	ConfirmMS    *int  `json:"confirm_ms"`
	MaxChars     *int  `json:"max_chars"`
	FlushOnAbort *bool `json:"flush_on_abort"`
}

type jsoncInject struct {
	OverallDeadlineMS   *int             `json:"overall_deadline_ms"`
	CandidateDeadlineMS *int             `json:"candidate_deadline_ms"`
	CooldownInitialMS   *int             `json:"cooldown_initial_ms"`
	CooldownMaxMS       *int             `json:"cooldown_max_ms"`
	SettleMS            *int             `json:"settle_ms"`
	AllowYdotool        *bool            `json:"allow_ydotool"`
	PasteShortcut       *string          `json:"paste_shortcut"`
	OnUnknownFocus      *string          `json:"on_unknown_focus"`
	Allowlist           *jsoncStringList `json:"allowlist"`
	Denylist            *jsoncStringList `json:"denylist"`
}

type jsoncHistory struct {
	Persist *bool `json:"persist"`
	MaxApps *int  `json:"max_apps"`
}

type jsoncIndicator struct {
	Enable            *bool   `json:"enable"`
	Backend           *string `json:"backend"`
	DesktopAppName    *string `json:"desktop_app_name"`
	ErrorTimeoutMS    *int    `json:"error_timeout_ms"`
	DegradedThreshold *int    `json:"degraded_threshold"`
}

type jsoncDebug struct {
	AudioDump *bool `json:"audio_dump"`
}

type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		parts := strings.Split(single, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			out = append(out, part)
		}
		*l = out
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func parseJSONC(normalized string, base Config) (Config, []Warning, error) {
	normalized = stripJSONCTrailingCommas(normalized)

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, validatedWarnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) error {
	if payload.STT != nil {
		if payload.STT.Endpoint != nil {
			cfg.STT.Endpoint = strings.TrimSpace(*payload.STT.Endpoint)
		}
		if payload.STT.SampleRate != nil {
			cfg.STT.SampleRate = *payload.STT.SampleRate
		}
	}

	if payload.Audio != nil {
		if payload.Audio.Input != nil {
			cfg.Audio.Input = *payload.Audio.Input
		}
		if payload.Audio.Fallback != nil {
			cfg.Audio.Fallback = *payload.Audio.Fallback
		}
	}

	if payload.Buffer != nil {
		if payload.Buffer.SilenceMS != nil {
			cfg.Buffer.SilenceMS = *payload.Buffer.SilenceMS
		}
		if payload.Buffer.ConfirmMS != nil {
			cfg.Buffer.ConfirmMS = *payload.Buffer.ConfirmMS
		}
		if payload.Buffer.MaxChars != nil {
			cfg.Buffer.MaxChars = *payload.Buffer.MaxChars
		}
		if payload.Buffer.FlushOnAbort != nil {
			cfg.Buffer.FlushOnAbort = *payload.Buffer.FlushOnAbort
		}
	}

	if payload.Inject != nil {
		if payload.Inject.OverallDeadlineMS != nil {
			cfg.Inject.OverallDeadlineMS = *payload.Inject.OverallDeadlineMS
		}
		if payload.Inject.CandidateDeadlineMS != nil {
			cfg.Inject.CandidateDeadlineMS = *payload.Inject.CandidateDeadlineMS
		}
		if payload.Inject.CooldownInitialMS != nil {
			cfg.Inject.CooldownInitialMS = *payload.Inject.CooldownInitialMS
		}
		if payload.Inject.CooldownMaxMS != nil {
			cfg.Inject.CooldownMaxMS = *payload.Inject.CooldownMaxMS
		}
		if payload.Inject.SettleMS != nil {
			cfg.Inject.SettleMS = *payload.Inject.SettleMS
		}
		if payload.Inject.AllowYdotool != nil {
			cfg.Inject.AllowYdotool = *payload.Inject.AllowYdotool
		}
		if payload.Inject.PasteShortcut != nil {
			cfg.Inject.PasteShortcut = strings.TrimSpace(*payload.Inject.PasteShortcut)
		}
		if payload.Inject.OnUnknownFocus != nil {
			cfg.Inject.OnUnknownFocus = strings.ToLower(strings.TrimSpace(*payload.Inject.OnUnknownFocus))
		}
		if payload.Inject.Allowlist != nil {
			cfg.Inject.Allowlist = *payload.Inject.Allowlist
		}
		if payload.Inject.Denylist != nil {
			cfg.Inject.Denylist = *payload.Inject.Denylist
		}
	}

	if payload.History != nil {
		if payload.History.Persist != nil {
			cfg.History.Persist = *payload.History.Persist
		}
		if payload.History.MaxApps != nil {
			cfg.History.MaxApps = *payload.History.MaxApps
		}
	}

	if payload.Indicator != nil {
		if payload.Indicator.Enable != nil {
			cfg.Indicator.Enable = *payload.Indicator.Enable
		}
		if payload.Indicator.Backend != nil {
			cfg.Indicator.Backend = strings.TrimSpace(*payload.Indicator.Backend)
		}
		if payload.Indicator.DesktopAppName != nil {
			cfg.Indicator.DesktopAppName = strings.TrimSpace(*payload.Indicator.DesktopAppName)
		}
		if payload.Indicator.ErrorTimeoutMS != nil {
			cfg.Indicator.ErrorTimeoutMS = *payload.Indicator.ErrorTimeoutMS
		}
		if payload.Indicator.DegradedThreshold != nil {
			cfg.Indicator.DegradedThreshold = *payload.Indicator.DegradedThreshold
		}
	}

	if payload.ClipboardCopyCmd != nil {
		argv, err := parseArgv(*payload.ClipboardCopyCmd)
		if err != nil {
			return fmt.Errorf("clipboard_copy_cmd: %w", err)
		}
		cfg.Clipboard.Copy = CommandConfig{Raw: *payload.ClipboardCopyCmd, Argv: argv}
	}
	if payload.ClipboardPasteCmd != nil {
		argv, err := parseArgv(*payload.ClipboardPasteCmd)
		if err != nil {
			return fmt.Errorf("clipboard_paste_cmd: %w", err)
		}
		cfg.Clipboard.Paste = CommandConfig{Raw: *payload.ClipboardPasteCmd, Argv: argv}
	}

	if payload.Debug != nil && payload.Debug.AudioDump != nil {
		cfg.Debug.EnableAudioDump = *payload.Debug.AudioDump
	}

	return nil
}

// normalizeJSONC blanks line and block comments while preserving string bodies
// and byte offsets for error reporting.
func normalizeJSONC(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' || ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
