package fri

import (
	"fmt"

	"github.com/arloliu/go-fri/internal/util"
)

// CommandID identifies a command of the controller link protocol.
type CommandID uint8

// Command identifiers as assigned by the controller application.
const (
	Connect           CommandID = 1
	Disconnect        CommandID = 2
	StartStreaming    CommandID = 3
	StopStreaming     CommandID = 4
	ActivateControl   CommandID = 5
	DeactivateControl CommandID = 6
	SetConfig         CommandID = 8
	SetControlMode    CommandID = 10
	SetCommandMode    CommandID = 12
)

var commandNames = map[CommandID]string{
	Connect:           "connect",
	Disconnect:        "disconnect",
	StartStreaming:    "start-streaming",
	StopStreaming:     "stop-streaming",
	ActivateControl:   "activate-control",
	DeactivateControl: "deactivate-control",
	SetConfig:         "set-config",
	SetControlMode:    "set-control-mode",
	SetCommandMode:    "set-command-mode",
}

// IsValid reports whether id is part of the protocol.
func (id CommandID) IsValid() bool {
	_, ok := commandNames[id]
	return ok
}

// String returns the command name.
func (id CommandID) String() string {
	if name, ok := commandNames[id]; ok {
		return name
	}

	return fmt.Sprintf("command(%d)", uint8(id))
}

// ParseCommandID returns the CommandID with the given name, as returned by CommandID.String.
func ParseCommandID(name string) (CommandID, error) {
	for id, n := range commandNames {
		if n == name {
			return id, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}

// Command is a single command sent to the controller: an identifier and an optional payload.
type Command struct {
	ID      CommandID
	Payload []byte
}

// NewCommand creates a command. The payload is copied.
func NewCommand(id CommandID, payload []byte) Command {
	cmd := Command{ID: id}
	if len(payload) > 0 {
		cmd.Payload = util.CloneSlice(payload, 0)
	}

	return cmd
}

// ToBytes returns the wire representation: the identifier byte followed by the payload.
func (c Command) ToBytes() []byte {
	buf := make([]byte, 0, 1+len(c.Payload))
	buf = append(buf, byte(c.ID))

	return append(buf, c.Payload...)
}

// String implements fmt.Stringer.
func (c Command) String() string {
	return fmt.Sprintf("%s[%d]", c.ID, len(c.Payload))
}

// DecodeCommand parses the wire representation of a command. It is the peer-side
// counterpart of Command.ToBytes.
func DecodeCommand(b []byte) (Command, error) {
	if len(b) == 0 {
		return Command{}, ErrEmptyCommand
	}

	id := CommandID(b[0])
	if !id.IsValid() {
		return Command{}, fmt.Errorf("%w: %d", ErrUnknownCommand, b[0])
	}

	return NewCommand(id, b[1:]), nil
}
