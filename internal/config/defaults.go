package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	clipCopy := "wl-copy --trim-newline"
	clipPaste := "wl-paste --no-newline"

	return Config{
		STT: STTConfig{
			Endpoint:   "ws://127.0.0.1:2700",
			SampleRate: 16000,
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Buffer: BufferConfig{
			SilenceMS:    1500,
			ConfirmMS:    250,
			MaxChars:     5000,
			FlushOnAbort: false,
		},
		Inject: InjectConfig{
			OverallDeadlineMS:   800,
			CandidateDeadlineMS: 250,
			CooldownInitialMS:   2000,
			CooldownMaxMS:       60000,
			SettleMS:            150,
			AllowYdotool:        false,
			PasteShortcut:       "CTRL,V",
			OnUnknownFocus:      UnknownFocusPasteOnly,
		},
		History: HistoryConfig{
			Persist: true,
			MaxApps: 128,
		},
		Indicator: IndicatorConfig{
			Enable:            true,
			Backend:           "hypr",
			DesktopAppName:    "scrivo-indicator",
			ErrorTimeoutMS:    1600,
			DegradedThreshold: 3,
		},
		Clipboard: ClipboardConfig{
			Copy:  CommandConfig{Raw: clipCopy, Argv: mustParseArgv(clipCopy)},
			Paste: CommandConfig{Raw: clipPaste, Argv: mustParseArgv(clipPaste)},
		},
		Debug: DebugConfig{},
	}
}
