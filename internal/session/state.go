package session

// State is the negotiation state of a session.
type State int

const (
	StateInit State = iota
	StateSignalingReady
	StateOfferPending
	StateAnswerPending
	StateConnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateSignalingReady:
		return "SIGNALING_READY"
	case StateOfferPending:
		return "OFFER_PENDING"
	case StateAnswerPending:
		return "ANSWER_PENDING"
	case StateConnected:
		return "CONNECTED"
	case StateFailed:
		return "FAILED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateClosed
}
