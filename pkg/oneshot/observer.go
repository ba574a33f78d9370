package oneshot

// ConnObserver receives connection lifecycle notifications. Observers
// are invoked from the event loops and must not block; slow work should
// be handed off to another goroutine.
type ConnObserver interface {
	// ConnAccepted is called when a connection has been accepted and
	// assigned an id.
	ConnAccepted(id int64, remote string)

	// ConnHeadersComplete is called once the request head has been
	// fully parsed.
	ConnHeadersComplete(id int64)

	// ConnResponded is called after the response write finishes. A
	// non-nil err means the write failed and nothing reached the peer.
	ConnResponded(id int64, err error)

	// ConnProtocolError is called when the inbound bytes cannot be
	// parsed and the connection is dropped without a response.
	ConnProtocolError(id int64, err error)

	// ConnClosed is called when the connection is gone. A non-nil err
	// carries the transport-level cause.
	ConnClosed(id int64, err error)
}
