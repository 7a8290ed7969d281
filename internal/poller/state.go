package poller

type State int

const (
	StateIdle State = iota
	StateAwaitingIntent
	StateAwaitingSend
	StatePolling
	StateConfirmed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingIntent:
		return "awaiting_intent"
	case StateAwaitingSend:
		return "awaiting_send"
	case StatePolling:
		return "polling"
	case StateConfirmed:
		return "confirmed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen without Reset.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateErrored
}
