package config

import (
	"fmt"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.STT.Endpoint) == "" {
		return nil, fmt.Errorf("stt.endpoint must not be empty")
	}
	endpoint := strings.TrimSpace(cfg.STT.Endpoint)
	if !strings.HasPrefix(endpoint, "ws://") && !strings.HasPrefix(endpoint, "wss://") {
		return nil, fmt.Errorf("stt.endpoint must be a ws:// or wss:// URL")
	}
	if cfg.STT.SampleRate <= 0 {
		return nil, fmt.Errorf("stt.sample_rate must be > 0")
	}

	if cfg.Buffer.SilenceMS < 0 {
		return nil, fmt.Errorf("buffer.silence_ms must be >= 0")
	}
	if cfg.Buffer.ConfirmMS < 0 {
		return nil, fmt.Errorf("buffer.confirm_ms must be >= 0")
	}
	if cfg.Buffer.MaxChars <= 0 {
		return nil, fmt.Errorf("buffer.max_chars must be > 0")
	}

	if cfg.Inject.OverallDeadlineMS <= 0 {
		return nil, fmt.Errorf("inject.overall_deadline_ms must be > 0")
	}
	if cfg.Inject.CandidateDeadlineMS <= 0 {
		return nil, fmt.Errorf("inject.candidate_deadline_ms must be > 0")
	}
	if cfg.Inject.CandidateDeadlineMS > cfg.Inject.OverallDeadlineMS {
		warnings = append(warnings, Warning{
			Message: fmt.Sprintf(
				"inject.candidate_deadline_ms (%d) exceeds inject.overall_deadline_ms (%d); candidates will be clamped",
				cfg.Inject.CandidateDeadlineMS, cfg.Inject.OverallDeadlineMS,
			),
		})
	}
	if cfg.Inject.CooldownInitialMS <= 0 {
		return nil, fmt.Errorf("inject.cooldown_initial_ms must be > 0")
	}
	if cfg.Inject.CooldownMaxMS < cfg.Inject.CooldownInitialMS {
		return nil, fmt.Errorf("inject.cooldown_max_ms must be >= inject.cooldown_initial_ms")
	}
	if cfg.Inject.SettleMS < 0 {
		return nil, fmt.Errorf("inject.settle_ms must be >= 0")
	}
	if strings.TrimSpace(cfg.Inject.PasteShortcut) == "" {
		return nil, fmt.Errorf("inject.paste_shortcut must not be empty")
	}

	switch cfg.Inject.OnUnknownFocus {
	case UnknownFocusPasteOnly, UnknownFocusAllow, UnknownFocusAbort:
	default:
		return nil, fmt.Errorf(
			"inject.on_unknown_focus must be one of: %s, %s, %s",
			UnknownFocusPasteOnly, UnknownFocusAllow, UnknownFocusAbort,
		)
	}

	for _, pattern := range cfg.Inject.Denylist {
		if strings.TrimSpace(pattern) == "" {
			return nil, fmt.Errorf("inject.denylist must not contain empty patterns")
		}
	}
	for _, pattern := range cfg.Inject.Allowlist {
		if strings.TrimSpace(pattern) == "" {
			return nil, fmt.Errorf("inject.allowlist must not contain empty patterns")
		}
	}

	if cfg.History.MaxApps <= 0 {
		return nil, fmt.Errorf("history.max_apps must be > 0")
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Indicator.Backend))
	if backend == "" {
		return nil, fmt.Errorf("indicator.backend must not be empty")
	}
	if backend != "hypr" && backend != "desktop" {
		return nil, fmt.Errorf("indicator.backend must be one of: hypr, desktop")
	}
	if backend == "desktop" && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}
	if cfg.Indicator.DegradedThreshold <= 0 {
		return nil, fmt.Errorf("indicator.degraded_threshold must be > 0")
	}

	if len(cfg.Clipboard.Copy.Argv) == 0 {
		return nil, fmt.Errorf("clipboard_copy_cmd must not be empty")
	}
	if len(cfg.Clipboard.Paste.Argv) == 0 {
		return nil, fmt.Errorf("clipboard_paste_cmd must not be empty")
	}

	return warnings, nil
}
