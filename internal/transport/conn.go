package transport

import (
	"errors"
	"fmt"
	"log"

	"github.com/oneshot-http/oneshot/internal/httparse"
	"github.com/panjf2000/gnet/v2"
)

// errTrailingBytes reports input left over after a parse that claimed
// success; the parser contract treats under-consumption as a protocol error.
var errTrailingBytes = errors.New("transport: unparsed bytes after request")

// connState tracks a connection through its single request/response
// exchange. States only ever move forward; each is entered at most once.
type connState uint8

const (
	stateAccepted connState = iota
	stateReading
	stateHeadersDone
	stateWriting
	stateClosing
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateAccepted:
		return "accepted"
	case stateReading:
		return "reading"
	case stateHeadersDone:
		return "headers-done"
	case stateWriting:
		return "writing"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// Conn is the per-connection object: identity, parser, and teardown state.
// All methods run on the connection's event loop, so no locking is needed.
type Conn struct {
	id       int64
	raw      gnet.Conn
	parser   *httparse.Parser
	logger   *log.Logger
	observer Observer
	response []byte

	state       connState
	responseDue bool
}

func newConn(id int64, raw gnet.Conn, logger *log.Logger, observer Observer, response []byte) *Conn {
	c := &Conn{
		id:       id,
		raw:      raw,
		logger:   logger,
		observer: observer,
		response: response,
	}
	c.parser = httparse.New(c)
	return c
}

// to advances the teardown state machine. Illegal transitions are refused
// without changing state; they indicate a server bug, not bad input.
func (c *Conn) to(next connState) error {
	ok := false
	switch next {
	case stateReading:
		ok = c.state == stateAccepted
	case stateHeadersDone:
		ok = c.state == stateReading
	case stateWriting:
		ok = c.state == stateHeadersDone
	case stateClosing:
		ok = c.state != stateClosing && c.state != stateClosed
	case stateClosed:
		ok = c.state != stateClosed
	}
	if !ok {
		return fmt.Errorf("transport: illegal state change %s -> %s", c.state, next)
	}
	c.state = next
	return nil
}

// Feed runs a chunk of inbound bytes through the parser and, once a full
// request has been seen, issues the response write. A non-nil return means
// the connection must be closed. The buffer belongs to the event loop and
// is not retained past the call.
func (c *Conn) Feed(data []byte) error {
	if c.state >= stateWriting {
		// The single response is already on its way; anything further
		// from the peer is undefined input and is dropped.
		return nil
	}

	c.logger.Printf("[ %3d ] request (len %d)", c.id, len(data))
	if verboseLogging {
		c.logger.Printf("[ %3d ] %s", c.id, data)
	}

	consumed, err := c.parser.Execute(data)
	if err == nil && consumed < len(data) {
		err = errTrailingBytes
	}
	if err != nil {
		c.logger.Printf("[ %3d ] parsing http request: %v", c.id, err)
		c.observer.ProtocolError(c.id, err)
		_ = c.to(stateClosing)
		return err
	}

	if c.responseDue {
		c.responseDue = false
		return c.respond()
	}
	return nil
}

// respond hands the fixed response to the event loop. The close happens in
// the write-completion callback, never before the bytes are queued.
func (c *Conn) respond() error {
	if err := c.to(stateWriting); err != nil {
		c.logger.Printf("[ %3d ] %v", c.id, err)
		return err
	}
	if err := c.raw.AsyncWrite(c.response, c.onResponseWritten); err != nil {
		c.logger.Printf("[ %3d ] writing response: %v", c.id, err)
		c.observer.Responded(c.id, err)
		_ = c.to(stateClosing)
		return err
	}
	return nil
}

func (c *Conn) onResponseWritten(_ gnet.Conn, err error) error {
	if err != nil {
		c.logger.Printf("[ %3d ] writing response: %v", c.id, err)
	}
	c.observer.Responded(c.id, err)
	if terr := c.to(stateClosing); terr != nil {
		// The peer tore the connection down while the write was in
		// flight; OnClose has already run.
		return nil
	}
	_ = c.raw.Close()
	return nil
}

// OnMessageBegin implements httparse.MessageHandler.
func (c *Conn) OnMessageBegin() error {
	if verboseLogging {
		c.logger.Printf("[ %3d ] message begin", c.id)
	}
	return nil
}

// OnURL implements httparse.MessageHandler.
func (c *Conn) OnURL(fragment []byte) error {
	if verboseLogging {
		c.logger.Printf("[ %3d ] h_url: %s", c.id, fragment)
	}
	return nil
}

// OnStatus implements httparse.MessageHandler. It never fires for request
// parsing.
func (c *Conn) OnStatus(fragment []byte) error {
	if verboseLogging {
		c.logger.Printf("[ %3d ] h_status: %s", c.id, fragment)
	}
	return nil
}

// OnHeaderField implements httparse.MessageHandler.
func (c *Conn) OnHeaderField(fragment []byte) error {
	if verboseLogging {
		c.logger.Printf("[ %3d ] h_field: %s", c.id, fragment)
	}
	return nil
}

// OnHeaderValue implements httparse.MessageHandler.
func (c *Conn) OnHeaderValue(fragment []byte) error {
	if verboseLogging {
		c.logger.Printf("[ %3d ] h_value: %s", c.id, fragment)
	}
	return nil
}

// OnHeadersComplete implements httparse.MessageHandler. The body is always
// skipped; this server answers the headers alone.
func (c *Conn) OnHeadersComplete() (httparse.BodyPolicy, error) {
	if verboseLogging {
		c.logger.Printf("[ %3d ] headers complete", c.id)
	}
	if c.state == stateReading {
		if err := c.to(stateHeadersDone); err != nil {
			return httparse.BodySkip, err
		}
		c.observer.HeadersComplete(c.id)
	}
	return httparse.BodySkip, nil
}

// OnMessageComplete implements httparse.MessageHandler. It only marks the
// response as due; the write is issued after the whole chunk has parsed
// cleanly, so a request followed by garbage in the same chunk writes
// nothing.
func (c *Conn) OnMessageComplete() error {
	if verboseLogging {
		c.logger.Printf("[ %3d ] message complete", c.id)
	}
	if c.state == stateHeadersDone && !c.responseDue {
		c.responseDue = true
	}
	return nil
}
