// Package doctor runs runtime readiness diagnostics for config, tools, audio,
// the recognizer endpoint, and the accessibility bus.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/gorilla/websocket"

	"github.com/rbright/scrivo/internal/audio"
	"github.com/rbright/scrivo/internal/config"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(cfg config.Loaded) Report {
	checks := []Check{}

	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	})

	checks = append(checks, checkEnv("XDG_SESSION_TYPE", func(v string) bool {
		return strings.EqualFold(strings.TrimSpace(v), "wayland")
	}, "session type is wayland", "expected XDG_SESSION_TYPE=wayland"))

	checks = append(checks, checkEnv("HYPRLAND_INSTANCE_SIGNATURE", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "Hyprland session detected", "HYPRLAND_INSTANCE_SIGNATURE is empty"))

	checks = append(checks, checkCommand(cfg.Config.Clipboard.Copy.Argv, "clipboard.copy"))
	checks = append(checks, checkCommand(cfg.Config.Clipboard.Paste.Argv, "clipboard.paste"))
	checks = append(checks, checkBinary("hyprctl", "compositor paste path requires hyprctl"))

	if cfg.Config.Inject.AllowYdotool {
		checks = append(checks, checkBinary("ydotool", "ydotool backend is enabled"))
	}

	checks = append(checks, checkAudioSelection(cfg.Config))
	checks = append(checks, checkRecognizer(cfg.Config))
	checks = append(checks, checkAccessibilityBus())

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(cfg config.Config) Check {
	selection, err := audio.SelectDevice(context.Background(), cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkRecognizer probes the configured STT websocket endpoint with a short
// handshake and immediately closes the connection.
func checkRecognizer(cfg config.Config) Check {
	endpoint := strings.TrimSpace(cfg.STT.Endpoint)
	if endpoint == "" {
		return Check{Name: "stt.endpoint", Pass: false, Message: "stt.endpoint is empty"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return Check{Name: "stt.endpoint", Pass: false, Message: fmt.Sprintf("dial failed: %v", err)}
	}
	_ = conn.Close()
	return Check{Name: "stt.endpoint", Pass: true, Message: fmt.Sprintf("reachable at %s", endpoint)}
}

// checkAccessibilityBus resolves the AT-SPI bus address through the session
// bus, which is the same path the focus tracker takes at runtime.
func checkAccessibilityBus() Check {
	session, err := dbus.SessionBus()
	if err != nil {
		return Check{Name: "atspi.bus", Pass: false, Message: fmt.Sprintf("session bus: %v", err)}
	}

	var address string
	obj := session.Object("org.a11y.Bus", "/org/a11y/bus")
	if err := obj.Call("org.a11y.Bus.GetAddress", 0).Store(&address); err != nil {
		return Check{Name: "atspi.bus", Pass: false, Message: fmt.Sprintf("GetAddress: %v", err)}
	}
	if strings.TrimSpace(address) == "" {
		return Check{Name: "atspi.bus", Pass: false, Message: "accessibility bus address is empty"}
	}
	return Check{Name: "atspi.bus", Pass: true, Message: "accessibility bus is advertised"}
}
