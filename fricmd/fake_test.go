package fricmd

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-fri/fri"
)

// replyFunc scripts the controller: it returns the chunks sent back for a command,
// nil keeps the command outstanding.
type replyFunc func(cmd fri.Command) [][]byte

func acceptAll(cmd fri.Command) [][]byte {
	return [][]byte{fri.NewAccepted(cmd.ID, true).ToBytes()}
}

// fakeController is an in-memory controller reachable through its Dialer.
type fakeController struct {
	mu      sync.Mutex
	reply   replyFunc
	dialErr error
	current *fakeTransport
	sent    []fri.Command

	sentCh chan fri.Command
	dials  atomic.Int32
	closes atomic.Int32
}

func newFakeController(reply replyFunc) *fakeController {
	if reply == nil {
		reply = acceptAll
	}

	return &fakeController{reply: reply, sentCh: make(chan fri.Command, 64)}
}

func (fc *fakeController) setReply(reply replyFunc) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.reply = reply
}

func (fc *fakeController) setDialErr(err error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.dialErr = err
}

func (fc *fakeController) dialer() Dialer {
	return func(_ context.Context, host string, port int, handlers TransportHandlers) (Transport, error) {
		fc.dials.Add(1)

		fc.mu.Lock()
		defer fc.mu.Unlock()

		if fc.dialErr != nil {
			return nil, fc.dialErr
		}

		fc.current = &fakeTransport{ctrl: fc, host: host, port: port, handlers: handlers}

		return fc.current, nil
	}
}

func (fc *fakeController) sentCommands() []fri.Command {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	return append([]fri.Command(nil), fc.sent...)
}

// push delivers b to the channel as if the controller sent it unprompted.
func (fc *fakeController) push(b []byte) {
	fc.mu.Lock()
	tr := fc.current
	fc.mu.Unlock()

	if tr != nil {
		tr.handlers.OnReceive(b)
	}
}

// dropLink reports the current link as lost.
func (fc *fakeController) dropLink() {
	fc.mu.Lock()
	tr := fc.current
	fc.current = nil
	fc.mu.Unlock()

	if tr != nil {
		tr.handlers.OnConnectionLost(tr.host, tr.port)
	}
}

type fakeTransport struct {
	ctrl     *fakeController
	host     string
	port     int
	handlers TransportHandlers
	closed   atomic.Bool
}

func (t *fakeTransport) Send(b []byte) error {
	if t.closed.Load() {
		return net.ErrClosed
	}

	cmd, err := fri.DecodeCommand(b)
	if err != nil {
		return err
	}

	t.ctrl.mu.Lock()
	t.ctrl.sent = append(t.ctrl.sent, cmd)
	reply := t.ctrl.reply
	t.ctrl.mu.Unlock()

	t.ctrl.sentCh <- cmd

	for _, chunk := range reply(cmd) {
		t.handlers.OnReceive(chunk)
	}

	return nil
}

func (t *fakeTransport) Close() error {
	if t.closed.CompareAndSwap(false, true) {
		t.ctrl.closes.Add(1)
	}

	return nil
}

func (t *fakeTransport) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(t.host), Port: t.port}
}
