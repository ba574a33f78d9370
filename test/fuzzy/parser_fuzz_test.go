package fuzzy

import (
	"errors"
	"strings"
	"testing"

	"github.com/oneshot-http/oneshot/internal/httparse"
)

// fuzzHandler tallies parse events; the invariants are asserted in the
// fuzz bodies.
type fuzzHandler struct {
	begins    int
	urlBytes  int
	statusHit bool
	fields    int
	values    int
	headers   int
	completes int
}

func (h *fuzzHandler) OnMessageBegin() error {
	h.begins++
	return nil
}

func (h *fuzzHandler) OnURL(fragment []byte) error {
	h.urlBytes += len(fragment)
	return nil
}

func (h *fuzzHandler) OnStatus(_ []byte) error {
	h.statusHit = true
	return nil
}

func (h *fuzzHandler) OnHeaderField(_ []byte) error {
	h.fields++
	return nil
}

func (h *fuzzHandler) OnHeaderValue(_ []byte) error {
	h.values++
	return nil
}

func (h *fuzzHandler) OnHeadersComplete() (httparse.BodyPolicy, error) {
	h.headers++
	return httparse.BodyFromHeaders, nil
}

func (h *fuzzHandler) OnMessageComplete() error {
	h.completes++
	return nil
}

// FuzzParserExecute fuzzes request parsing with random byte streams.
// It verifies that the parser never panics and keeps its accounting
// invariants regardless of input.
func FuzzParserExecute(f *testing.F) {
	// Seed with valid requests
	f.Add([]byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"))
	f.Add([]byte("POST /api HTTP/1.1\r\nHost: localhost\r\nContent-Length: 11\r\n\r\nhello world"))
	f.Add([]byte("PUT /resource HTTP/1.0\r\n\r\n"))
	f.Add([]byte("GET /path?query=value HTTP/1.1\r\nAccept: */*\r\n\r\n"))
	f.Add([]byte("GET / HTTP/1.1\nHost: bare-lf\n\n"))
	f.Add([]byte("GET / HTTP/1.1\r\nX-Empty:\r\n\r\n"))
	f.Add([]byte("GET / HTTP/1.1\r\nX-Folded: a\r\n b\r\n\r\n"))
	f.Add([]byte("GET /a HTTP/1.1\r\n\r\nGET /b HTTP/1.1\r\n\r\n"))

	// Seed with invalid and partial inputs
	f.Add([]byte("GET /path\r\n"))
	f.Add([]byte("INVALID\r\n"))
	f.Add([]byte("\r\n"))
	f.Add([]byte("GET"))
	f.Add([]byte(""))
	f.Add([]byte("?this is not http"))
	f.Add([]byte("GET / HTTP/9.9\r\n\r\n"))
	f.Add([]byte("POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\nhel"))
	f.Add([]byte("POST / HTTP/1.1\r\nContent-Length: 5\r\nContent-Length: 5\r\n\r\n"))
	f.Add([]byte("POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n"))
	f.Add([]byte("GET /" + strings.Repeat("a", 9000) + " HTTP/1.1\r\n\r\n"))

	f.Fuzz(func(t *testing.T, data []byte) {
		handler := &fuzzHandler{}
		parser := httparse.New(handler)

		// Should never panic
		consumed, err := parser.Execute(data)

		// Consumed bytes should never exceed input
		if consumed < 0 || consumed > len(data) {
			t.Errorf("Consumed %d bytes of %d", consumed, len(data))
		}

		// A clean return means the whole chunk was taken
		if err == nil && consumed != len(data) {
			t.Errorf("Clean return consumed %d of %d bytes", consumed, len(data))
		}

		// An error must leave the parser dead until Reset
		if err != nil {
			if !parser.Dead() {
				t.Error("Parser alive after error")
			}

			n, derr := parser.Execute([]byte("GET / HTTP/1.1\r\n\r\n"))
			if n != 0 || !errors.Is(derr, httparse.ErrParserDead) {
				t.Errorf("Dead parser consumed %d bytes, err %v", n, derr)
			}
		}

		// Request parsing must never report a status line
		if handler.statusHit {
			t.Error("OnStatus fired for a request")
		}

		// Event ordering invariants
		if handler.headers > handler.begins {
			t.Errorf("%d headers-complete events for %d messages", handler.headers, handler.begins)
		}
		if handler.completes > handler.headers {
			t.Errorf("%d message-complete events for %d header blocks", handler.completes, handler.headers)
		}

		// The target limit bounds URL bytes per message
		if handler.begins > 0 && handler.urlBytes > handler.begins*8192 {
			t.Errorf("URL bytes %d exceed limit for %d messages", handler.urlBytes, handler.begins)
		}
	})
}

// FuzzParserChunking fuzzes the same byte stream parsed whole and split
// at an arbitrary boundary. It verifies that chunking never changes
// what the parser reports.
func FuzzParserChunking(f *testing.F) {
	f.Add([]byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"), uint(7))
	f.Add([]byte("POST /api HTTP/1.1\r\nContent-Length: 4\r\n\r\nbody"), uint(25))
	f.Add([]byte("GET /a HTTP/1.1\r\n\r\nGET /b HTTP/1.1\r\n\r\n"), uint(19))
	f.Add([]byte("GET / HTTP/1.1\r\nX-Empty:\r\n\r\n"), uint(24))
	f.Add([]byte("?garbage"), uint(3))
	f.Add([]byte(""), uint(0))

	// Limit errors must surface at the same offset whatever the split.
	f.Add([]byte("GET /" + strings.Repeat("a", 9000) + " HTTP/1.1\r\n\r\n"), uint(5000))
	f.Add([]byte("GET / HTTP/1.1\r\nX-Pad: " + strings.Repeat("b", 70000) + "\r\n\r\n"), uint(1024))
	f.Add([]byte("POST / HTTP/1.1\r\nContent-Length: 123x\r\n\r\n"), uint(36))

	f.Fuzz(func(t *testing.T, data []byte, splitAt uint) {
		whole := &fuzzHandler{}
		wholeParser := httparse.New(whole)
		wholeConsumed, wholeErr := wholeParser.Execute(data)

		split := &fuzzHandler{}
		splitParser := httparse.New(split)

		n := int(splitAt % uint(len(data)+1))

		consumed, err := splitParser.Execute(data[:n])
		if err == nil {
			more, merr := splitParser.Execute(data[n:])
			consumed = n + more
			err = merr
		}

		if consumed != wholeConsumed {
			t.Errorf("Split at %d consumed %d bytes, whole parse consumed %d", n, consumed, wholeConsumed)
		}

		if (err == nil) != (wholeErr == nil) {
			t.Errorf("Split at %d error %v, whole parse error %v", n, err, wholeErr)
		}

		// Counts of begin, headers-complete, and message-complete events
		// and total URL bytes are chunking independent.
		if split.begins != whole.begins {
			t.Errorf("Split saw %d message begins, whole parse %d", split.begins, whole.begins)
		}
		if split.headers != whole.headers {
			t.Errorf("Split saw %d header completions, whole parse %d", split.headers, whole.headers)
		}
		if split.completes != whole.completes {
			t.Errorf("Split saw %d message completions, whole parse %d", split.completes, whole.completes)
		}
		if split.urlBytes != whole.urlBytes {
			t.Errorf("Split saw %d URL bytes, whole parse %d", split.urlBytes, whole.urlBytes)
		}
	})
}
