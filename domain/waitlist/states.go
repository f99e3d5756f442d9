package waitlist

// State is a step of one submission's lifecycle, logged on every transition.
type State string

const (
	StateReceived  State = "RECEIVED"
	StateValidated State = "VALIDATED"
	StateVerified  State = "VERIFIED"
	StateStored    State = "STORED"
	StateNotified  State = "NOTIFIED"
	StateResponded State = "RESPONDED"

	StateRejectedInvalid    State = "REJECTED_INVALID"
	StateRejectedUnverified State = "REJECTED_UNVERIFIED"
	StateRejectedDuplicate  State = "REJECTED_DUPLICATE"
	StateFailedLookup       State = "FAILED_LOOKUP"
	StateFailedPersist      State = "FAILED_PERSIST"
)

func (s State) Terminal() bool {
	switch s {
	case StateResponded, StateRejectedInvalid, StateRejectedUnverified,
		StateRejectedDuplicate, StateFailedLookup, StateFailedPersist:
		return true
	default:
		return false
	}
}
