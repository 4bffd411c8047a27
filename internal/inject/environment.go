package inject

import "strings"

// Profile names the detected display environment. Each profile fixes the
// baseline backend order; learned per-app ranking reorders within it.
type Profile string

const (
	ProfileHyprland Profile = "hyprland"
	ProfileWlroots  Profile = "wlroots-wayland"
	ProfileWayland  Profile = "generic-wayland"
	ProfileX11      Profile = "x11"
	ProfileHeadless Profile = "headless"
)

// DetectProfile classifies the session from environment variables.
func DetectProfile(getenv func(string) string) Profile {
	if strings.TrimSpace(getenv("HYPRLAND_INSTANCE_SIGNATURE")) != "" {
		return ProfileHyprland
	}

	sessionType := strings.ToLower(strings.TrimSpace(getenv("XDG_SESSION_TYPE")))
	wayland := sessionType == "wayland" || strings.TrimSpace(getenv("WAYLAND_DISPLAY")) != ""
	if wayland {
		desktop := strings.ToLower(getenv("XDG_CURRENT_DESKTOP"))
		if strings.Contains(desktop, "sway") || strings.Contains(desktop, "wlroots") ||
			strings.Contains(desktop, "river") || strings.Contains(desktop, "labwc") {
			return ProfileWlroots
		}
		return ProfileWayland
	}

	if sessionType == "x11" || strings.TrimSpace(getenv("DISPLAY")) != "" {
		return ProfileX11
	}
	return ProfileHeadless
}

// DefaultOrder is the profile's baseline method preference, best first. The
// noop terminator is appended by the orchestrator, never listed here.
func (p Profile) DefaultOrder() []Method {
	switch p {
	case ProfileHyprland:
		return []Method{
			MethodAtspiInsert,
			MethodAtspiPaste,
			MethodClipboardPaste,
			MethodYdotoolPaste,
			MethodClipboardOnly,
		}
	case ProfileWlroots, ProfileWayland, ProfileX11:
		// hyprctl sendshortcut is unavailable outside Hyprland, so the
		// compositor paste backend is excluded.
		return []Method{
			MethodAtspiInsert,
			MethodAtspiPaste,
			MethodYdotoolPaste,
			MethodClipboardOnly,
		}
	default:
		return nil
	}
}
