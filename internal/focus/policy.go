package focus

import "strings"

// Decision is the policy verdict for a delivery target.
type Decision int

const (
	Proceed Decision = iota
	PasteOnly
	Deny
)

func (d Decision) String() string {
	switch d {
	case PasteOnly:
		return "paste_only"
	case Deny:
		return "deny"
	default:
		return "proceed"
	}
}

// Policy screens delivery targets against configured app patterns. Deny
// patterns win over allow patterns; an empty allowlist admits everything.
type Policy struct {
	allow          []string
	deny           []string
	onUnknownFocus string
}

// NewPolicy lowercases patterns once at construction.
func NewPolicy(allowlist []string, denylist []string, onUnknownFocus string) *Policy {
	return &Policy{
		allow:          lowerAll(allowlist),
		deny:           lowerAll(denylist),
		onUnknownFocus: onUnknownFocus,
	}
}

// Evaluate returns the verdict for the given focus context.
func (p *Policy) Evaluate(target Context) Decision {
	appID := strings.ToLower(target.AppID)

	if matchesAny(appID, p.deny) {
		return Deny
	}
	if len(p.allow) > 0 && !matchesAny(appID, p.allow) {
		return Deny
	}

	if target.Editable == EditableUnknown {
		switch p.onUnknownFocus {
		case "abort":
			return Deny
		case "allow":
			return Proceed
		default:
			return PasteOnly
		}
	}

	return Proceed
}

// matchesAny applies case-insensitive substring matching, the same contract
// audio device selection uses.
func matchesAny(appID string, patterns []string) bool {
	if appID == "" {
		return false
	}
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if strings.Contains(appID, pattern) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(strings.ToLower(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
