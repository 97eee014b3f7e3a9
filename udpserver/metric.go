package udpserver

import "sync/atomic"

// ServerMetrics contains atomic metrics for a datagram server.
type ServerMetrics struct {
	// RecvCount indicates the number of datagrams received.
	RecvCount atomic.Uint64
	// RecvErrCount indicates the number of failed reads, expired read deadlines included.
	RecvErrCount atomic.Uint64
	// SendCount indicates the number of replies sent.
	SendCount atomic.Uint64
	// SendErrCount indicates the number of replies that could not be sent.
	SendErrCount atomic.Uint64
	// CallbackPanicCount indicates the number of consumer calls that panicked.
	CallbackPanicCount atomic.Uint64
}

func (m *ServerMetrics) incRecvCount() {
	m.RecvCount.Add(1)
}

func (m *ServerMetrics) incRecvErrCount() {
	m.RecvErrCount.Add(1)
}

func (m *ServerMetrics) incSendCount() {
	m.SendCount.Add(1)
}

func (m *ServerMetrics) incSendErrCount() {
	m.SendErrCount.Add(1)
}

func (m *ServerMetrics) incCallbackPanicCount() {
	m.CallbackPanicCount.Add(1)
}
