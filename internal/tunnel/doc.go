// Package tunnel owns the client side of one desktop session.
//
// Ownership boundary:
// - connect/disconnect lifecycle over a transport.Transport
// - serialized instruction sends
// - header fast path (pong, data ack, QoS backlog)
// - request/reply correlation with timeouts and close draining
//
// Inbound messages are handled in arrival order up to the header fast path.
// Messages that carry image payloads finish decoding on their own goroutine,
// so replies and unsolicited events may complete out of arrival order.
package tunnel
