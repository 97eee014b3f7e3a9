package fri

import "errors"

var (
	// ErrUnknownCommand indicates that a command identifier is not part of the protocol.
	ErrUnknownCommand = errors.New("unknown command identifier")

	// ErrEmptyCommand indicates that an empty byte slice was decoded as a command.
	ErrEmptyCommand = errors.New("empty command")

	// ErrEmptyOutcome indicates that an empty chunk was received where an outcome was expected.
	ErrEmptyOutcome = errors.New("empty outcome")

	// ErrShortOutcome indicates that an Accepted or Rejected outcome is shorter than its fixed layout.
	ErrShortOutcome = errors.New("outcome payload too short")

	// ErrUnknownOutcome indicates that the outcome tag is not part of the protocol.
	ErrUnknownOutcome = errors.New("unknown outcome tag")
)

var (
	// ErrJointCount indicates that an impedance parameter set doesn't hold exactly JointCount values.
	ErrJointCount = errors.New("impedance parameters must hold one value per joint")

	// ErrInvalidPayload indicates that a command payload doesn't match its expected layout.
	ErrInvalidPayload = errors.New("invalid command payload")

	// ErrInvalidControlMode indicates an unsupported control mode selector.
	ErrInvalidControlMode = errors.New("invalid control mode")

	// ErrInvalidCommandMode indicates an unsupported client command mode selector.
	ErrInvalidCommandMode = errors.New("invalid command mode")
)

var (
	// ErrNotConnected indicates that no transport is open on the channel.
	ErrNotConnected = errors.New("channel not connected")

	// ErrAlreadyConnected indicates that connect was called while a transport is open.
	ErrAlreadyConnected = errors.New("channel already connected")

	// ErrCommandOutstanding indicates that a command was submitted while another one
	// is still waiting for its outcome. Callers must serialize commands on a channel.
	ErrCommandOutstanding = errors.New("another command is awaiting its outcome")

	// ErrReconnecting indicates that a command was submitted while an automatic reconnect runs.
	ErrReconnecting = errors.New("channel is reconnecting")

	// ErrChannelClosed indicates that the channel was closed while a command was outstanding.
	ErrChannelClosed = errors.New("channel closed")

	// ErrConnectionLost indicates that the link was lost while a command was outstanding.
	ErrConnectionLost = errors.New("connection lost")

	// ErrReplyTimeout indicates that no outcome arrived within the configured reply timeout.
	ErrReplyTimeout = errors.New("reply timeout")

	// ErrCommandFailed indicates that the controller answered, but didn't confirm the command.
	ErrCommandFailed = errors.New("command not confirmed by controller")

	// ErrOutcomeMismatch indicates that the controller echoed a different command identifier
	// than the one awaiting its outcome. It is a protocol violation.
	ErrOutcomeMismatch = errors.New("outcome echoes a different command")
)

var (
	// ErrInvalidTransition is returned when an attempt is made to move the channel
	// to a state that is not reachable from the current one.
	ErrInvalidTransition = errors.New("invalid state transition")
)
