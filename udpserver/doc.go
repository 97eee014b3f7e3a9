// Package udpserver provides the datagram server of the FRI driver, the real-time link on
// which the controller streams its state and the client answers with set-points.
//
// The server binds one UDP port and runs a single receive loop: every received datagram is
// handed to a Consumer, and the bytes it returns are sent back to the sender before the next
// datagram is read. The exchange is strictly one reply per datagram.
//
// Usage Example:
//
//	srv := udpserver.New(ctx, 30200, udpserver.ConsumerFunc(func(unit *udpserver.ExchangeUnit) []byte {
//	    // ... decode unit.Data[:unit.N], compute the next set-point ...
//	    return reply
//	}))
//	if !srv.IsInitialized() {
//	    // ... srv.InitErr() reports why ...
//	}
//	defer srv.Close()
package udpserver
