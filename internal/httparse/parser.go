// Package httparse provides an incremental, callback-driven HTTP/1.1 request
// parser. Bytes are fed in arbitrary chunks via Execute; message boundaries
// (message begin, URL, header field/value, headers complete, message
// complete) are reported through a MessageHandler as they are recognized,
// without the full message ever being buffered.
//
// Element callbacks may fire several times for one element when it spans
// chunk boundaries; each fragment aliases the Execute input and is only
// valid for the duration of the callback. The parser keeps no reference to
// caller buffers between calls.
//
// Only requests are parsed. Chunked transfer encoding is not supported:
// the parser reads bodies solely by Content-Length, and skips them entirely
// when the handler returns BodySkip from OnHeadersComplete.
package httparse

import "fmt"

// BodyPolicy is returned by OnHeadersComplete and tells the parser how to
// treat the message body.
type BodyPolicy int

const (
	// BodyFromHeaders derives the body length from the Content-Length
	// header (absent or zero means no body).
	BodyFromHeaders BodyPolicy = iota
	// BodySkip treats the message as bodiless regardless of any declared
	// length. Remaining input is parsed as the start of the next message.
	BodySkip
)

// MessageHandler receives parse events. Returning a non-nil error from any
// callback halts parsing at the current offset; Execute then reports
// ErrCallbackAbort wrapping the returned error.
//
// A header with an empty value is reported as a single empty OnHeaderValue
// fragment, so every OnHeaderField sequence is always followed by at least
// one OnHeaderValue before the next field begins.
//
// OnStatus exists for interface parity with the classic parser callback
// table; it never fires for request parsing.
type MessageHandler interface {
	OnMessageBegin() error
	OnURL(fragment []byte) error
	OnStatus(fragment []byte) error
	OnHeaderField(fragment []byte) error
	OnHeaderValue(fragment []byte) error
	OnHeadersComplete() (BodyPolicy, error)
	OnMessageComplete() error
}

// Hard limits. A connection with no read timeout must still have bounded
// per-connection parser memory.
const (
	maxMethodLen  = 32
	maxTargetLen  = 8192
	maxHeaderLen  = 65536 // start line + header block, cumulative
	nameBufCap    = 32    // longest tracked name is "transfer-encoding" (17)
	valueBufCap   = 32
	versionBufCap = 12 // "HTTP/1.1" plus slack before we give up
)

type parserState uint8

const (
	stateStart parserState = iota
	stateMethod
	stateTarget
	stateVersion
	stateStartLineLF
	stateHeaderStart
	stateHeaderField
	stateHeaderValueOWS
	stateHeaderValue
	stateHeaderValueLF
	stateHeadersLF
	stateBody
	stateDead
)

type headerKind uint8

const (
	headerOther headerKind = iota
	headerContentLength
	headerTransferEncoding
)

// Parser is an incremental HTTP/1.1 request parser. The zero value is not
// usable; obtain one with New. A Parser is not safe for concurrent use.
type Parser struct {
	handler MessageHandler
	state   parserState

	headerLen int // bytes of start line + headers seen for this message
	methodLen int
	targetLen int

	verBuf [versionBufCap]byte
	verLen int

	// Lowercased copy of the current field name, kept only to recognize
	// the headers the parser itself must understand.
	nameBuf  [nameBufCap]byte
	nameLen  int
	nameOver bool
	curKind  headerKind

	valBuf   [valueBufCap]byte
	valLen   int
	valOver  bool
	valFired bool

	sawHeader bool

	clAccum       int64
	clDigits      bool
	contentLength int64
	hasLength     bool

	bodyRemaining int64
}

// New creates a parser bound to h. The handler binding is fixed for the
// parser's lifetime; h is the callback context for every event the parser
// emits.
func New(h MessageHandler) *Parser {
	p := &Parser{handler: h}
	p.Reset()
	return p
}

// Reset returns the parser to its initial state, ready for a new byte
// stream. The handler binding is kept.
func (p *Parser) Reset() {
	h := p.handler
	*p = Parser{handler: h}
	p.state = stateStart
}

// Dead reports whether the parser has stopped after an error and will not
// consume further input until Reset.
func (p *Parser) Dead() bool {
	return p.state == stateDead
}

func isTchar(b byte) bool {
	switch {
	case 'a' <= b && b <= 'z', 'A' <= b && b <= 'Z', '0' <= b && b <= '9':
		return true
	}
	switch b {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

// isTargetByte permits any visible byte including obs-text; SP and control
// bytes terminate or invalidate the target.
func isTargetByte(b byte) bool {
	return b > 0x20 && b != 0x7f
}

func isValueByte(b byte) bool {
	return b != 0 && b != '\r' && b != '\n'
}

func lowerASCII(b byte) byte {
	if 'A' <= b && b <= 'Z' {
		return b | 0x20
	}
	return b
}

// Execute feeds the next chunk of the byte stream to the parser and returns
// the number of bytes consumed. On a clean return the whole chunk was
// consumed (or the parser is mid-element awaiting more data). A non-nil
// error means parsing stopped at the returned offset: the input was
// malformed, a size limit was hit, or a callback halted the parse. The
// parser is dead afterwards.
//
// Size limits are enforced at the first byte past the limit: that byte is
// never consumed, no callback is fed it, and the failure offset is the same
// for any chunking of the stream.
func (p *Parser) Execute(data []byte) (int, error) {
	if p.state == stateDead {
		return 0, ErrParserDead
	}

	i := 0
	for i < len(data) {
		before := i
		beforeState := p.state

		// The start line and header block, including the terminating
		// blank line, must fit the header budget. Leading blank lines
		// and body bytes are free.
		room := maxHeaderLen - p.headerLen
		if room == 0 && p.state != stateStart && p.state != stateBody {
			return p.die(i, ErrHeaderTooLarge)
		}

		switch p.state {
		case stateStart:
			// Tolerate blank lines before the request line.
			for i < len(data) && (data[i] == '\r' || data[i] == '\n') {
				i++
			}
			if i == len(data) {
				break
			}
			if err := p.handler.OnMessageBegin(); err != nil {
				return p.abort(i, err)
			}
			p.state = stateMethod

		case stateMethod:
			for i < len(data) && isTchar(data[i]) {
				i++
				p.methodLen++
				if p.methodLen > maxMethodLen {
					return p.die(i, ErrInvalidMethod)
				}
			}
			if i == len(data) {
				break
			}
			if data[i] != ' ' || p.methodLen == 0 {
				return p.die(i, ErrInvalidMethod)
			}
			i++
			p.state = stateTarget

		case stateTarget:
			start := i
			limit := i + maxTargetLen - p.targetLen
			if limit > len(data) {
				limit = len(data)
			}
			for i < limit && isTargetByte(data[i]) {
				i++
			}
			p.targetLen += i - start
			if i > start {
				if err := p.handler.OnURL(data[start:i]); err != nil {
					return p.abort(i, err)
				}
			}
			if i == len(data) {
				break
			}
			if isTargetByte(data[i]) { // stopped by the target budget
				return p.die(i, ErrTargetTooLong)
			}
			if data[i] != ' ' || p.targetLen == 0 {
				return p.die(i, ErrInvalidTarget)
			}
			i++
			p.state = stateVersion

		case stateVersion:
			for i < len(data) && data[i] != '\r' && data[i] != '\n' {
				if p.verLen == versionBufCap {
					return p.die(i, ErrInvalidVersion)
				}
				p.verBuf[p.verLen] = data[i]
				p.verLen++
				i++
			}
			if i == len(data) {
				break
			}
			if data[i] == '\n' { // bare LF line ending
				if !p.versionOK() {
					return p.die(i, ErrInvalidVersion)
				}
				i++
				p.state = stateHeaderStart
				break
			}
			i++ // consume CR
			p.state = stateStartLineLF

		case stateStartLineLF:
			if data[i] != '\n' {
				return p.die(i, ErrInvalidVersion)
			}
			if !p.versionOK() {
				return p.die(i, ErrInvalidVersion)
			}
			i++
			p.state = stateHeaderStart

		case stateHeaderStart:
			switch b := data[i]; {
			case b == '\r':
				i++
				p.state = stateHeadersLF
			case b == '\n':
				i++
				if err := p.headersDone(); err != nil {
					return i, err
				}
			case b == ' ' || b == '\t':
				// Folded continuation of the previous header value.
				if !p.sawHeader || p.curKind != headerOther {
					return p.die(i, ErrInvalidHeader)
				}
				p.state = stateHeaderValueOWS
			case isTchar(b):
				p.nameLen = 0
				p.nameOver = false
				p.valLen = 0
				p.valOver = false
				p.valFired = false
				p.curKind = headerOther
				p.state = stateHeaderField
			default:
				return p.die(i, ErrInvalidHeader)
			}

		case stateHeaderField:
			start := i
			limit := i + room
			if limit > len(data) {
				limit = len(data)
			}
			for i < limit && isTchar(data[i]) {
				if p.nameLen < nameBufCap {
					p.nameBuf[p.nameLen] = lowerASCII(data[i])
					p.nameLen++
				} else {
					p.nameOver = true
				}
				i++
			}
			if i > start {
				if err := p.handler.OnHeaderField(data[start:i]); err != nil {
					return p.abort(i, err)
				}
			}
			if i == len(data) {
				break
			}
			if i-start == room { // stopped by the header budget
				return p.die(i, ErrHeaderTooLarge)
			}
			if data[i] != ':' {
				return p.die(i, ErrInvalidHeader)
			}
			i++
			if err := p.resolveKind(); err != nil {
				return i, err
			}
			p.state = stateHeaderValueOWS

		case stateHeaderValueOWS:
			start := i
			limit := i + room
			if limit > len(data) {
				limit = len(data)
			}
			for i < limit && (data[i] == ' ' || data[i] == '\t') {
				i++
			}
			if i == len(data) {
				break
			}
			if i-start == room {
				return p.die(i, ErrHeaderTooLarge)
			}
			p.state = stateHeaderValue

		case stateHeaderValue:
			start := i
			limit := i + room
			if limit > len(data) {
				limit = len(data)
			}
			for i < limit && isValueByte(data[i]) {
				i++
			}
			if i > start {
				frag := data[start:i]
				n, err := p.trackValue(frag)
				if err != nil {
					// Value bytes before the offending byte still
					// reach the handler.
					if n > 0 {
						p.valFired = true
						if cbErr := p.handler.OnHeaderValue(frag[:n]); cbErr != nil {
							return p.abort(start+n, cbErr)
						}
					}
					return p.die(start+n, err)
				}
				p.valFired = true
				if err := p.handler.OnHeaderValue(frag); err != nil {
					return p.abort(i, err)
				}
			}
			if i == len(data) {
				break
			}
			if i-start == room {
				return p.die(i, ErrHeaderTooLarge)
			}
			switch data[i] {
			case '\r':
				i++
				p.state = stateHeaderValueLF
			case '\n':
				i++
				if err := p.endHeaderValue(); err != nil {
					return i, err
				}
				p.state = stateHeaderStart
			default: // NUL
				return p.die(i, ErrInvalidHeader)
			}

		case stateHeaderValueLF:
			if data[i] != '\n' {
				return p.die(i, ErrInvalidHeader)
			}
			i++
			if err := p.endHeaderValue(); err != nil {
				return i, err
			}
			p.state = stateHeaderStart

		case stateHeadersLF:
			if data[i] != '\n' {
				return p.die(i, ErrInvalidHeader)
			}
			i++
			if err := p.headersDone(); err != nil {
				return i, err
			}

		case stateBody:
			n := int64(len(data) - i)
			if n > p.bodyRemaining {
				n = p.bodyRemaining
			}
			i += int(n)
			p.bodyRemaining -= n
			if p.bodyRemaining == 0 {
				if err := p.messageDone(); err != nil {
					return i, err
				}
			}
		}

		// Bytes consumed before the request line and body bytes do not
		// count against the header budget, and neither does the iteration
		// that completes a message (its counter was just reset). No
		// iteration consumes more than room bytes, so the count never
		// passes maxHeaderLen.
		if beforeState != stateStart && beforeState != stateBody && p.state != stateStart {
			p.headerLen += i - before
		}
	}

	return len(data), nil
}

// versionOK accepts HTTP/1.<digit>; anything else, including other major
// versions, is rejected.
func (p *Parser) versionOK() bool {
	v := p.verBuf[:p.verLen]
	if len(v) != 8 || string(v[:7]) != "HTTP/1." {
		return false
	}
	return '0' <= v[7] && v[7] <= '9'
}

// resolveKind classifies the just-completed field name once the colon is
// seen.
func (p *Parser) resolveKind() error {
	if p.nameOver || p.nameLen == 0 {
		if p.nameLen == 0 {
			p.state = stateDead
			return ErrInvalidHeader
		}
		p.curKind = headerOther
		return nil
	}
	switch string(p.nameBuf[:p.nameLen]) {
	case "content-length":
		if p.hasLength {
			p.state = stateDead
			return ErrContentLength
		}
		p.curKind = headerContentLength
		p.clAccum = 0
		p.clDigits = false
	case "transfer-encoding":
		p.curKind = headerTransferEncoding
	default:
		p.curKind = headerOther
	}
	return nil
}

// trackValue feeds a value fragment into the parser's own view of the
// headers it must understand. It returns how many bytes of the fragment
// were accepted; on an error that count stops at the offending byte.
func (p *Parser) trackValue(frag []byte) (int, error) {
	switch p.curKind {
	case headerContentLength:
		for j, b := range frag {
			if b < '0' || b > '9' {
				return j, ErrContentLength
			}
			if p.clAccum > (1<<63-1-9)/10 {
				return j, ErrContentLength
			}
			p.clAccum = p.clAccum*10 + int64(b-'0')
			p.clDigits = true
		}
	case headerTransferEncoding:
		for _, b := range frag {
			if p.valLen < valueBufCap {
				p.valBuf[p.valLen] = lowerASCII(b)
				p.valLen++
			} else {
				p.valOver = true
			}
		}
	}
	return len(frag), nil
}

func (p *Parser) endHeaderValue() error {
	p.sawHeader = true
	if !p.valFired {
		p.valFired = true
		if err := p.handler.OnHeaderValue(nil); err != nil {
			p.state = stateDead
			return fmt.Errorf("%w: %w", ErrCallbackAbort, err)
		}
	}
	switch p.curKind {
	case headerContentLength:
		if !p.clDigits {
			p.state = stateDead
			return ErrContentLength
		}
		p.contentLength = p.clAccum
		p.hasLength = true
	case headerTransferEncoding:
		// Bodies are only ever read by length here; anything beyond the
		// identity coding cannot be parsed.
		if p.valOver || string(p.valBuf[:p.valLen]) != "identity" {
			p.state = stateDead
			return ErrUnsupportedEncoding
		}
	}
	return nil
}

func (p *Parser) headersDone() error {
	policy, err := p.handler.OnHeadersComplete()
	if err != nil {
		p.state = stateDead
		return fmt.Errorf("%w: %w", ErrCallbackAbort, err)
	}
	if policy == BodySkip || !p.hasLength || p.contentLength == 0 {
		return p.messageDone()
	}
	p.bodyRemaining = p.contentLength
	p.state = stateBody
	return nil
}

// messageDone fires OnMessageComplete and rearms the parser for a possible
// next message in the same stream.
func (p *Parser) messageDone() error {
	if err := p.handler.OnMessageComplete(); err != nil {
		p.state = stateDead
		return fmt.Errorf("%w: %w", ErrCallbackAbort, err)
	}
	p.headerLen = 0
	p.methodLen = 0
	p.targetLen = 0
	p.verLen = 0
	p.nameLen = 0
	p.nameOver = false
	p.valLen = 0
	p.valOver = false
	p.valFired = false
	p.curKind = headerOther
	p.sawHeader = false
	p.clAccum = 0
	p.clDigits = false
	p.contentLength = 0
	p.hasLength = false
	p.bodyRemaining = 0
	p.state = stateStart
	return nil
}

func (p *Parser) die(offset int, err error) (int, error) {
	p.state = stateDead
	return offset, err
}

func (p *Parser) abort(offset int, cause error) (int, error) {
	p.state = stateDead
	return offset, fmt.Errorf("%w: %w", ErrCallbackAbort, cause)
}
