package domain

import "strings"

// DegradationPolicyMode selects how identity resolution behaves when the profile cannot be read.
type DegradationPolicyMode string

const (
	// DegradationPolicyModeLenient falls back to a claims-only record for every read failure.
	DegradationPolicyModeLenient DegradationPolicyMode = "lenient"
	// DegradationPolicyModeDeniedOnly falls back only when the access policy rejected the read.
	// Outages and missing rows fail the resolution.
	DegradationPolicyModeDeniedOnly DegradationPolicyMode = "denied_only"
	// DegradationPolicyModeStrict never falls back.
	DegradationPolicyModeStrict DegradationPolicyMode = "strict"
)

// DegradationReason classifies why the profile read failed.
type DegradationReason string

const (
	DegradationReasonProfileDenied      DegradationReason = "profile_denied"
	DegradationReasonProfileUnavailable DegradationReason = "profile_unavailable"
	DegradationReasonProfileMissing     DegradationReason = "profile_missing"
)

// DegradationPolicy decides, per failure reason, whether a degraded identity may be issued.
// The zero value behaves as lenient.
type DegradationPolicy struct {
	mode DegradationPolicyMode
}

// NewDegradationPolicy constructs a policy, treating unknown modes as lenient.
func NewDegradationPolicy(mode DegradationPolicyMode) DegradationPolicy {
	switch mode {
	case DegradationPolicyModeStrict, DegradationPolicyModeDeniedOnly:
	default:
		mode = DegradationPolicyModeLenient
	}
	return DegradationPolicy{mode: mode}
}

// ParseDegradationPolicyMode normalises configuration input. Unrecognised values map to lenient.
func ParseDegradationPolicyMode(value string) DegradationPolicyMode {
	mode := DegradationPolicyMode(strings.ToLower(strings.TrimSpace(value)))
	switch mode {
	case DegradationPolicyModeStrict, DegradationPolicyModeDeniedOnly:
		return mode
	default:
		return DegradationPolicyModeLenient
	}
}

// Mode returns the effective mode.
func (p DegradationPolicy) Mode() DegradationPolicyMode {
	if p.mode == "" {
		return DegradationPolicyModeLenient
	}
	return p.mode
}

// AllowsFallback reports whether a claims-only record may stand in for the profile.
func (p DegradationPolicy) AllowsFallback(reason DegradationReason) bool {
	switch p.Mode() {
	case DegradationPolicyModeStrict:
		return false
	case DegradationPolicyModeDeniedOnly:
		return reason == DegradationReasonProfileDenied
	default:
		return true
	}
}
