// Package oneshot provides an event-driven TCP server that answers every
// HTTP/1.1 request with a single fixed response and then closes the
// connection.
package oneshot

import (
	"io"
	"log"
	"time"
)

// DefaultResponse is the payload written to each connection when
// Config.Response is left empty: a minimal HTTP/1.1 200 with a
// twelve byte plain-text body.
const DefaultResponse = "HTTP/1.1 200 OK\r\n" +
	"Content-Type: text/plain\r\n" +
	"Content-Length: 12\r\n" +
	"\r\n" +
	"hello world\n"

// Config holds the server configuration options.
type Config struct {
	Addr             string        // Server address to bind to
	Multicore        bool          // Enable one event loop per CPU core
	NumEventLoop     int           // Number of event loops (0 to follow Multicore)
	ReusePort        bool          // Enable SO_REUSEPORT for load balancing
	TCPKeepAlive     time.Duration // TCP keep-alive period (0 to disable)
	TCPNoDelay       bool          // Disable Nagle's algorithm
	SocketRecvBuffer int           // Socket receive buffer size in bytes (0 for kernel default)
	SocketSendBuffer int           // Socket send buffer size in bytes (0 for kernel default)
	Logger           *log.Logger   // Logger for server events
	Response         []byte        // Raw bytes written after each parsed request; must not change after Start
}

// newSilentLogger creates a silent logger that discards all output
func newSilentLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Addr:         ":3000",
		Multicore:    false,
		NumEventLoop: 1, // Single loop
		ReusePort:    false,
		TCPKeepAlive: time.Minute,
		TCPNoDelay:   true,
		Logger:       newSilentLogger(),
		Response:     []byte(DefaultResponse),
	}
}

// Validate checks and normalizes the configuration values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.NumEventLoop < 0 {
		c.NumEventLoop = 0
	}
	if c.TCPKeepAlive < 0 {
		c.TCPKeepAlive = 0
	}
	if c.SocketRecvBuffer < 0 {
		c.SocketRecvBuffer = 0
	}
	if c.SocketSendBuffer < 0 {
		c.SocketSendBuffer = 0
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	if len(c.Response) == 0 {
		c.Response = []byte(DefaultResponse)
	}
	return nil
}
