package fri

import "fmt"

// OutcomeState is the tag byte of an outcome sent by the controller.
type OutcomeState uint8

const (
	// Accepted means the controller executed the command; the success flag tells the result.
	Accepted OutcomeState = 1
	// Rejected means the controller refused the command in its current state.
	Rejected OutcomeState = 2
	// Unrecognized means the controller didn't understand the command.
	// Malformed outcomes are classified as Unrecognized too.
	Unrecognized OutcomeState = 3
	// ControlSessionEnded means the controller terminated the control session.
	ControlSessionEnded OutcomeState = 4
	// StreamingSessionEnded means the controller terminated the real-time streaming session.
	StreamingSessionEnded OutcomeState = 5
)

const (
	successFlag   byte = 1
	noSuccessFlag byte = 0
)

// String returns the outcome state name.
func (s OutcomeState) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Unrecognized:
		return "unrecognized"
	case ControlSessionEnded:
		return "control-session-ended"
	case StreamingSessionEnded:
		return "streaming-session-ended"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(s))
	}
}

// IsSessionEnd reports whether the state is one of the session-end notifications.
func (s OutcomeState) IsSessionEnd() bool {
	return s == ControlSessionEnded || s == StreamingSessionEnded
}

// Outcome is the controller's classification of a submitted command.
type Outcome struct {
	State OutcomeState
	// CommandID is the echoed command identifier, only set for Accepted and Rejected.
	CommandID CommandID
	// Success is the controller's success flag, only meaningful for Accepted.
	Success bool
}

// NewAccepted creates an Accepted outcome for id.
func NewAccepted(id CommandID, success bool) Outcome {
	return Outcome{State: Accepted, CommandID: id, Success: success}
}

// NewRejected creates a Rejected outcome for id.
func NewRejected(id CommandID) Outcome {
	return Outcome{State: Rejected, CommandID: id}
}

// Confirms reports whether the outcome is a successful acceptance of the command id.
//
// An acceptance echoing a different identifier never confirms a command.
func (o Outcome) Confirms(id CommandID) bool {
	return o.State == Accepted && o.CommandID == id && o.Success
}

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o.State {
	case Accepted:
		return fmt.Sprintf("%s(%s, success=%t)", o.State, o.CommandID, o.Success)
	case Rejected:
		return fmt.Sprintf("%s(%s)", o.State, o.CommandID)
	default:
		return o.State.String()
	}
}

// ToBytes returns the wire representation of the outcome as the controller sends it.
func (o Outcome) ToBytes() []byte {
	switch o.State {
	case Accepted:
		flag := noSuccessFlag
		if o.Success {
			flag = successFlag
		}
		return []byte{byte(Accepted), byte(o.CommandID), flag}
	case Rejected:
		return []byte{byte(Rejected), byte(o.CommandID)}
	default:
		return []byte{byte(o.State)}
	}
}

// DecodeOutcome parses an outcome received from the controller.
//
// Only the leading bytes of the layout are interpreted, trailing bytes are ignored.
// A short Accepted/Rejected payload or an unknown tag yields an Unrecognized outcome
// together with ErrShortOutcome or ErrUnknownOutcome. The returned outcome is always
// usable to release a waiting caller, except for ErrEmptyOutcome which carries no outcome.
func DecodeOutcome(b []byte) (Outcome, error) {
	if len(b) == 0 {
		return Outcome{}, ErrEmptyOutcome
	}

	state := OutcomeState(b[0])
	switch state {
	case Accepted:
		if len(b) < 3 {
			return Outcome{State: Unrecognized}, fmt.Errorf("%w: accepted needs 3 bytes, got %d", ErrShortOutcome, len(b))
		}
		return Outcome{State: Accepted, CommandID: CommandID(b[1]), Success: b[2] == successFlag}, nil

	case Rejected:
		if len(b) < 2 {
			return Outcome{State: Unrecognized}, fmt.Errorf("%w: rejected needs 2 bytes, got %d", ErrShortOutcome, len(b))
		}
		return Outcome{State: Rejected, CommandID: CommandID(b[1])}, nil

	case Unrecognized, ControlSessionEnded, StreamingSessionEnded:
		return Outcome{State: state}, nil

	default:
		return Outcome{State: Unrecognized}, fmt.Errorf("%w: %d", ErrUnknownOutcome, b[0])
	}
}
