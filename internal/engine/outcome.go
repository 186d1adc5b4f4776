package engine

// Outcome is how a stream cycle ended.
type Outcome int

const (
	OutcomeReconnectNeeded Outcome = iota
	OutcomeDailyResetTriggered
	OutcomeSessionComplete
	// OutcomeFatal stops the supervisor: retrying cannot succeed.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReconnectNeeded:
		return "RECONNECT_NEEDED"
	case OutcomeDailyResetTriggered:
		return "DAILY_RESET"
	case OutcomeSessionComplete:
		return "SESSION_COMPLETE"
	case OutcomeFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}
