// Package fricmd provides the command channel of the Fast Research Interface (FRI) driver,
// the reliable link over which a client configures and supervises a robot controller.
//
// The command channel complements the real-time datagram link served by package udpserver:
// it connects a session, configures the datagram link and the control mode, and starts or
// stops the streaming that runs on the datagram link.
//
// Key Features:
//   - Synchronous commands: every command blocks until the controller's outcome arrives, a session
//     ends, the link is lost or the channel is closed.
//   - Session-end notifications: unsolicited ControlSessionEnded and StreamingSessionEnded
//     notifications are dispatched to registered handlers on their own goroutine.
//   - Link loss handling: a lost link resolves an outstanding command and schedules a bounded
//     automatic reconnect.
//   - Pluggable transport: a TCP transport is used by default, any Transport can be plugged in
//     with WithDialer.
//
// Usage Example:
//
//	cfg, err := fricmd.NewChannelConfig(
//	    fricmd.WithReplyTimeout(2*time.Second),
//	    fricmd.WithStreamingSessionEndedHandler(func(ctx context.Context, ch *fricmd.Channel) {
//	        // ... restart streaming or stop the application ...
//	    }),
//	)
//	// ... handle error ...
//
//	ch, err := fricmd.NewChannel(ctx, cfg)
//	// ... handle error ...
//	defer ch.Close()
//
//	if !ch.Connect("172.31.1.147", 30000) {
//	    // ... controller unreachable or session refused ...
//	}
//	ch.SetLinkConfig(30200, 10, 1)
//	ch.SetPositionControlMode()
//	ch.SetCommandMode(fri.PositionCommandMode)
//	ch.StartStreaming()
//
// A Channel is not meant to be shared between concurrent callers: submitting a command while
// another one is outstanding fails with fri.ErrCommandOutstanding.
package fricmd
