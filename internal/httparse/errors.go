package httparse

import "errors"

// Parse failures. Execute reports the byte offset it stopped at together
// with one of these (possibly wrapped); the parser is dead afterwards and
// consumes nothing until Reset.
var (
	ErrInvalidMethod       = errors.New("httparse: invalid method")
	ErrInvalidTarget       = errors.New("httparse: invalid request target")
	ErrInvalidVersion      = errors.New("httparse: invalid HTTP version")
	ErrInvalidHeader       = errors.New("httparse: invalid header line")
	ErrContentLength       = errors.New("httparse: invalid content-length")
	ErrUnsupportedEncoding = errors.New("httparse: unsupported transfer encoding")
	ErrHeaderTooLarge      = errors.New("httparse: header block too large")
	ErrTargetTooLong       = errors.New("httparse: request target too long")
	ErrCallbackAbort       = errors.New("httparse: handler aborted parse")
	ErrParserDead          = errors.New("httparse: parser is dead")
)
