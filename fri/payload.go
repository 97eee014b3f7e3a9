package fri

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// JointCount is the number of joints of the arm; impedance parameters carry one value per joint.
const JointCount = 7

const (
	float64Size = 8
	int32Size   = 4
)

// Block headers expected by the controller application in front of numeric payloads.
// The last byte is the length of the block that follows: 14 doubles for the impedance
// parameters, 3 ints for the link configuration.
var (
	ControlModeHeader = []byte{0xAC, 0xED, 0x00, 0x05, 0x77, 0x70}
	ConfigHeader      = []byte{0xAC, 0xED, 0x00, 0x05, 0x77, 0x0C}
)

// ControlMode selects the controller's control mode.
type ControlMode uint8

const (
	PositionControlMode       ControlMode = 1
	JointImpedanceControlMode ControlMode = 2
)

// String returns the control mode name.
func (m ControlMode) String() string {
	switch m {
	case PositionControlMode:
		return "position"
	case JointImpedanceControlMode:
		return "joint-impedance"
	default:
		return fmt.Sprintf("control-mode(%d)", uint8(m))
	}
}

// ParseControlMode returns the ControlMode with the given name.
func ParseControlMode(name string) (ControlMode, error) {
	switch name {
	case "position":
		return PositionControlMode, nil
	case "joint-impedance":
		return JointImpedanceControlMode, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidControlMode, name)
	}
}

// CommandMode selects which kind of set-points the client sends while streaming.
type CommandMode uint8

const (
	PositionCommandMode CommandMode = 1
	WrenchCommandMode   CommandMode = 2
	TorqueCommandMode   CommandMode = 3
)

// String returns the command mode name.
func (m CommandMode) String() string {
	switch m {
	case PositionCommandMode:
		return "position"
	case WrenchCommandMode:
		return "wrench"
	case TorqueCommandMode:
		return "torque"
	default:
		return fmt.Sprintf("command-mode(%d)", uint8(m))
	}
}

// ParseCommandMode returns the CommandMode with the given name.
func ParseCommandMode(name string) (CommandMode, error) {
	switch name {
	case "position":
		return PositionCommandMode, nil
	case "wrench":
		return WrenchCommandMode, nil
	case "torque":
		return TorqueCommandMode, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidCommandMode, name)
	}
}

// AppendFloat64 appends the 8-byte big-endian IEEE-754 encoding of v to buf.
func AppendFloat64(buf []byte, v float64) []byte {
	return binary.BigEndian.AppendUint64(buf, math.Float64bits(v))
}

// AppendInt32 appends the 4-byte big-endian two's complement encoding of v to buf.
func AppendInt32(buf []byte, v int32) []byte {
	return binary.BigEndian.AppendUint32(buf, uint32(v))
}

// ControlModePayload returns the single selector byte payload of SetControlMode.
func ControlModePayload(mode ControlMode) []byte {
	return []byte{byte(mode)}
}

// CommandModePayload returns the single selector byte payload of SetCommandMode.
func CommandModePayload(mode CommandMode) []byte {
	return []byte{byte(mode)}
}

// ImpedancePayload builds the SetControlMode payload switching to joint impedance control:
//
//	[JointImpedanceControlMode] + ControlModeHeader + stiffness[0..6] + damping[0..6]
//
// It returns ErrJointCount unless both slices hold exactly JointCount values.
func ImpedancePayload(stiffness []float64, damping []float64) ([]byte, error) {
	if len(stiffness) != JointCount || len(damping) != JointCount {
		return nil, fmt.Errorf("%w: got %d stiffness and %d damping values, want %d",
			ErrJointCount, len(stiffness), len(damping), JointCount)
	}

	buf := make([]byte, 0, 1+len(ControlModeHeader)+2*JointCount*float64Size)
	buf = append(buf, byte(JointImpedanceControlMode))
	buf = append(buf, ControlModeHeader...)
	for _, v := range stiffness {
		buf = AppendFloat64(buf, v)
	}
	for _, v := range damping {
		buf = AppendFloat64(buf, v)
	}

	return buf, nil
}

// DecodeImpedancePayload is the inverse of ImpedancePayload.
func DecodeImpedancePayload(payload []byte) (stiffness []float64, damping []float64, err error) {
	wantLen := 1 + len(ControlModeHeader) + 2*JointCount*float64Size
	if len(payload) != wantLen {
		return nil, nil, fmt.Errorf("%w: impedance payload is %d bytes, want %d", ErrInvalidPayload, len(payload), wantLen)
	}
	if ControlMode(payload[0]) != JointImpedanceControlMode {
		return nil, nil, fmt.Errorf("%w: mode selector %d", ErrInvalidPayload, payload[0])
	}
	if !bytes.Equal(payload[1:1+len(ControlModeHeader)], ControlModeHeader) {
		return nil, nil, fmt.Errorf("%w: bad control mode header", ErrInvalidPayload)
	}

	values := payload[1+len(ControlModeHeader):]
	stiffness = make([]float64, JointCount)
	damping = make([]float64, JointCount)
	for i := range JointCount {
		stiffness[i] = math.Float64frombits(binary.BigEndian.Uint64(values[i*float64Size:]))
		damping[i] = math.Float64frombits(binary.BigEndian.Uint64(values[(JointCount+i)*float64Size:]))
	}

	return stiffness, damping, nil
}

// ConfigPayload builds the SetConfig payload:
//
//	ConfigHeader + remotePort + sendPeriodMs + receiveMultiplier
//
// Each value is encoded as a 4-byte integer; values outside the int32 range are rejected.
func ConfigPayload(remotePort int, sendPeriodMs int, receiveMultiplier int) ([]byte, error) {
	values := [3]int{remotePort, sendPeriodMs, receiveMultiplier}

	buf := make([]byte, 0, len(ConfigHeader)+len(values)*int32Size)
	buf = append(buf, ConfigHeader...)
	for _, v := range values {
		if v < math.MinInt32 || v > math.MaxInt32 {
			return nil, fmt.Errorf("%w: %d overflows int32", ErrInvalidPayload, v)
		}
		buf = AppendInt32(buf, int32(v))
	}

	return buf, nil
}

// DecodeConfigPayload is the inverse of ConfigPayload.
func DecodeConfigPayload(payload []byte) (remotePort int, sendPeriodMs int, receiveMultiplier int, err error) {
	wantLen := len(ConfigHeader) + 3*int32Size
	if len(payload) != wantLen {
		return 0, 0, 0, fmt.Errorf("%w: config payload is %d bytes, want %d", ErrInvalidPayload, len(payload), wantLen)
	}
	if !bytes.Equal(payload[:len(ConfigHeader)], ConfigHeader) {
		return 0, 0, 0, fmt.Errorf("%w: bad config header", ErrInvalidPayload)
	}

	values := payload[len(ConfigHeader):]
	remotePort = int(int32(binary.BigEndian.Uint32(values[0:])))
	sendPeriodMs = int(int32(binary.BigEndian.Uint32(values[4:])))
	receiveMultiplier = int(int32(binary.BigEndian.Uint32(values[8:])))

	return remotePort, sendPeriodMs, receiveMultiplier, nil
}
