// Package config resolves, parses, validates, and defaults scrivo configuration.
package config

// Config is the fully materialized runtime configuration used by scrivo.
type Config struct {
	STT       STTConfig
	Audio     AudioConfig
	Buffer    BufferConfig
	Inject    InjectConfig
	History   HistoryConfig
	Indicator IndicatorConfig
	Clipboard ClipboardConfig
	Debug     DebugConfig
}

// STTConfig controls the streaming speech-recognition endpoint.
type STTConfig struct {
	Endpoint   string
	SampleRate int
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string
	Fallback string
}

// BufferConfig controls the session buffer flush thresholds.
type BufferConfig struct {
	SilenceMS    int
	ConfirmMS    int
	MaxChars     int
	FlushOnAbort bool
}

// InjectConfig controls delivery strategy selection and timing budgets.
type InjectConfig struct {
	OverallDeadlineMS   int
	CandidateDeadlineMS int
	CooldownInitialMS   int
	CooldownMaxMS       int
	SettleMS            int
	AllowYdotool        bool
	PasteShortcut       string
	OnUnknownFocus      string
	Allowlist           []string
	Denylist            []string
}

// HistoryConfig controls persistence of learned per-application strategy state.
type HistoryConfig struct {
	Persist bool
	MaxApps int
}

// IndicatorConfig controls visual indicator behavior.
type IndicatorConfig struct {
	Enable            bool
	Backend           string
	DesktopAppName    string
	ErrorTimeoutMS    int
	DegradedThreshold int
}

// ClipboardConfig stores the clipboard read/write command lines.
type ClipboardConfig struct {
	Copy  CommandConfig
	Paste CommandConfig
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

// Unknown-focus policy values accepted by inject.on_unknown_focus.
const (
	UnknownFocusPasteOnly = "paste_only"
	UnknownFocusAllow     = "allow"
	UnknownFocusAbort     = "abort"
)
