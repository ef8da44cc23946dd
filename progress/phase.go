package progress

// Phase is a coarse classification of aggregate progress for user-facing
// messaging. It is derived purely from the progress fraction.
type Phase int

const (
	// PhaseStarting covers a run that has not made measurable progress.
	PhaseStarting Phase = iota
	// PhaseInfrastructure covers progress below 25%.
	PhaseInfrastructure
	// PhaseUserData covers progress below 50%.
	PhaseUserData
	// PhaseCoreData covers progress below 75%.
	PhaseCoreData
	// PhaseFeatures covers progress below 90%.
	PhaseFeatures
	// PhaseFinalizing covers the remainder.
	PhaseFinalizing
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseInfrastructure:
		return "infrastructure"
	case PhaseUserData:
		return "user_data"
	case PhaseCoreData:
		return "core_data"
	case PhaseFeatures:
		return "features"
	case PhaseFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (p Phase) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// PhaseFor maps a progress fraction to its phase.
func PhaseFor(fraction float64) Phase {
	switch {
	case fraction <= 0:
		return PhaseStarting
	case fraction < 0.25:
		return PhaseInfrastructure
	case fraction < 0.50:
		return PhaseUserData
	case fraction < 0.75:
		return PhaseCoreData
	case fraction < 0.90:
		return PhaseFeatures
	default:
		return PhaseFinalizing
	}
}
