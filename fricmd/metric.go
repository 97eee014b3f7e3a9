package fricmd

import (
	"sync/atomic"

	"github.com/arloliu/go-fri/fri"
)

// ChannelMetrics contains atomic metrics for a command channel.
// Metrics can be used as the value of a prometheus CounterFunc, see package metrics.
type ChannelMetrics struct {
	// CommandSendCount indicates the number of commands sent.
	CommandSendCount atomic.Uint64
	// CommandErrCount indicates the number of commands that ended with an error
	// (send failure, link loss, timeout, channel closed).
	CommandErrCount atomic.Uint64
	// ContractViolationCount indicates the number of commands submitted while another one was outstanding.
	ContractViolationCount atomic.Uint64

	// AcceptedCount indicates the number of Accepted outcomes received.
	AcceptedCount atomic.Uint64
	// RejectedCount indicates the number of Rejected outcomes received.
	RejectedCount atomic.Uint64
	// UnrecognizedCount indicates the number of Unrecognized outcomes received, malformed ones included.
	UnrecognizedCount atomic.Uint64
	// SessionEndedCount indicates the number of session-end notifications received.
	SessionEndedCount atomic.Uint64
	// ProtocolErrCount indicates the number of malformed or mismatched outcomes.
	ProtocolErrCount atomic.Uint64
	// UnsolicitedCount indicates the number of outcomes dropped because no command awaited them.
	UnsolicitedCount atomic.Uint64

	// ConnLostCount indicates the number of link losses.
	ConnLostCount atomic.Uint64
	// ReconnectCount indicates the number of automatic reconnect attempts.
	ReconnectCount atomic.Uint64
}

func (m *ChannelMetrics) incCommandSendCount() {
	m.CommandSendCount.Add(1)
}

func (m *ChannelMetrics) incCommandErrCount() {
	m.CommandErrCount.Add(1)
}

func (m *ChannelMetrics) incContractViolationCount() {
	m.ContractViolationCount.Add(1)
}

func (m *ChannelMetrics) incOutcomeCount(state fri.OutcomeState) {
	switch state {
	case fri.Accepted:
		m.AcceptedCount.Add(1)
	case fri.Rejected:
		m.RejectedCount.Add(1)
	case fri.ControlSessionEnded, fri.StreamingSessionEnded:
		m.SessionEndedCount.Add(1)
	default:
		m.UnrecognizedCount.Add(1)
	}
}

func (m *ChannelMetrics) incProtocolErrCount() {
	m.ProtocolErrCount.Add(1)
}

func (m *ChannelMetrics) incUnsolicitedCount() {
	m.UnsolicitedCount.Add(1)
}

func (m *ChannelMetrics) incConnLostCount() {
	m.ConnLostCount.Add(1)
}

func (m *ChannelMetrics) incReconnectCount() {
	m.ReconnectCount.Add(1)
}
