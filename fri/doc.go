// Package fri defines the wire model of the robot controller command link and the
// shared building blocks used by the command channel and the datagram server.
//
// Commands:
// A command is a single identifier byte followed by a command specific payload.
//   - Connect, Disconnect: session establishment and release.
//   - StartStreaming, StopStreaming: start/stop the cyclic real-time datagram exchange.
//   - ActivateControl, DeactivateControl: hand motion control to/from the driver.
//   - SetControlMode, SetCommandMode: select the controller's control and client command modes.
//   - SetConfig: configure the datagram link (remote port, send period, receive multiplier).
//
// Outcomes:
// The controller answers every command with an outcome whose first byte is a tag:
//   - Accepted: [tag, echoed command id, success flag]
//   - Rejected: [tag, echoed command id]
//   - Unrecognized: [tag]
//   - ControlSessionEnded, StreamingSessionEnded: [tag]; also sent unsolicited
//     when the controller terminates a session.
//
// DecodeOutcome never fails hard: malformed outcomes decode to Unrecognized and the
// anomaly is reported through the returned error, so a waiting caller is always released.
//
// Payload encoding:
// Real values are 8-byte IEEE-754 big-endian, integers are 4-byte big-endian two's
// complement. Payload blocks carry the controller's fixed block headers
// (ControlModeHeader, ConfigHeader).
//
// The package also provides ChannelState with its StateMgr, and TaskManager, which
// tracks every goroutine a channel or server spawns so it can be joined on close.
package fri
