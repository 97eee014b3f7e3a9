package fri

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommand_ToBytes(t *testing.T) {
	require := require.New(t)

	require.Equal([]byte{1}, NewCommand(Connect, nil).ToBytes())
	require.Equal([]byte{12, 3}, NewCommand(SetCommandMode, CommandModePayload(TorqueCommandMode)).ToBytes())

	payload := []byte{1, 2}
	cmd := NewCommand(SetControlMode, payload)
	payload[0] = 9
	require.Equal([]byte{10, 1, 2}, cmd.ToBytes(), "payload must be copied")
}

func TestDecodeCommand(t *testing.T) {
	require := require.New(t)

	cmd, err := DecodeCommand([]byte{8, 0xAC, 0xED})
	require.NoError(err)
	require.Equal(SetConfig, cmd.ID)
	require.Equal([]byte{0xAC, 0xED}, cmd.Payload)

	cmd, err = DecodeCommand([]byte{2})
	require.NoError(err)
	require.Equal(Disconnect, cmd.ID)
	require.Empty(cmd.Payload)

	_, err = DecodeCommand(nil)
	require.ErrorIs(err, ErrEmptyCommand)

	_, err = DecodeCommand([]byte{7})
	require.ErrorIs(err, ErrUnknownCommand)
}

func TestCommandID_Names(t *testing.T) {
	require := require.New(t)

	for id := range commandNames {
		parsed, err := ParseCommandID(id.String())
		require.NoError(err)
		require.Equal(id, parsed)
	}

	require.Equal("command(99)", CommandID(99).String())
	_, err := ParseCommandID("reboot")
	require.ErrorIs(err, ErrUnknownCommand)
}
