package risk

// Severity is the closed set of report severities understood by the engine.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
	// SeverityUnknown marks a raw value outside the known set. It is weighted
	// like SeverityLow but stays distinguishable from it.
	SeverityUnknown Severity = "unknown"
)

// ParseSeverity maps a stored severity string onto the closed set. Matching is
// exact and case-sensitive; anything else is SeverityUnknown.
func ParseSeverity(raw string) Severity {
	switch Severity(raw) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(raw)
	default:
		return SeverityUnknown
	}
}

// IsValid reports whether s is one of the four known severities.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// Weight is the contribution of one report of this severity to the cluster sum.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1.5
	default:
		return 1
	}
}

func (s Severity) String() string {
	return string(s)
}
