package transport

// Observer receives connection lifecycle notifications. Implementations must
// be safe for concurrent use when the server runs more than one event loop;
// calls for a single connection never overlap, and Closed is last except
// when a write completion races a peer-initiated close.
type Observer interface {
	// Accepted is called once per connection, before any data is read.
	Accepted(id int64, remote string)
	// HeadersComplete is called when the request header block has been
	// fully parsed.
	HeadersComplete(id int64)
	// Responded is called when the response write completes; err is
	// non-nil if the write failed (the connection closes either way).
	Responded(id int64, err error)
	// ProtocolError is called when inbound bytes could not be parsed as
	// a request; no response is written.
	ProtocolError(id int64, err error)
	// Closed is called exactly once when the connection is torn down.
	Closed(id int64, err error)
}

// nopObserver is the default when no observer is configured.
type nopObserver struct{}

func (nopObserver) Accepted(int64, string)     {}
func (nopObserver) HeadersComplete(int64)      {}
func (nopObserver) Responded(int64, error)     {}
func (nopObserver) ProtocolError(int64, error) {}
func (nopObserver) Closed(int64, error)        {}
