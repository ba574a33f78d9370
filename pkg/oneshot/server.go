package oneshot

import (
	"context"

	"github.com/oneshot-http/oneshot/internal/transport"
)

// Server represents a one-shot HTTP/1.1 server instance.
type Server struct {
	config    Config
	observers []ConnObserver
	transport *transport.Server
}

// New creates a new Server with the provided configuration.
func New(config Config) *Server {
	if err := config.Validate(); err != nil {
		panic(err)
	}

	return &Server{
		config: config,
	}
}

// NewWithDefaults creates a new Server with default configuration.
func NewWithDefaults() *Server {
	return New(DefaultConfig())
}

// Observe registers connection observers and returns the server for
// method chaining.
func (s *Server) Observe(observers ...ConnObserver) *Server {
	s.observers = append(s.observers, observers...)
	return s
}

// Start begins accepting connections. It blocks until the server is
// stopped or the listener fails.
func (s *Server) Start() error {
	s.transport = transport.NewServer(transport.Config{
		Addr:             s.config.Addr,
		Multicore:        s.config.Multicore,
		NumEventLoop:     s.config.NumEventLoop,
		ReusePort:        s.config.ReusePort,
		TCPKeepAlive:     s.config.TCPKeepAlive,
		TCPNoDelay:       s.config.TCPNoDelay,
		SocketRecvBuffer: s.config.SocketRecvBuffer,
		SocketSendBuffer: s.config.SocketSendBuffer,
		Logger:           s.config.Logger,
		Response:         s.config.Response,
		Observer:         &connObserverAdapter{observers: s.observers},
	})

	return s.transport.Start()
}

// Stop gracefully shuts down the server without waiting for in-flight
// writes beyond the context deadline.
func (s *Server) Stop(ctx context.Context) error {
	if s.transport != nil {
		return s.transport.Stop(ctx)
	}
	return nil
}

// connObserverAdapter fans transport events out to every registered
// observer.
type connObserverAdapter struct {
	observers []ConnObserver
}

func (a *connObserverAdapter) Accepted(id int64, remote string) {
	for _, o := range a.observers {
		o.ConnAccepted(id, remote)
	}
}

func (a *connObserverAdapter) HeadersComplete(id int64) {
	for _, o := range a.observers {
		o.ConnHeadersComplete(id)
	}
}

func (a *connObserverAdapter) Responded(id int64, err error) {
	for _, o := range a.observers {
		o.ConnResponded(id, err)
	}
}

func (a *connObserverAdapter) ProtocolError(id int64, err error) {
	for _, o := range a.observers {
		o.ConnProtocolError(id, err)
	}
}

func (a *connObserverAdapter) Closed(id int64, err error) {
	for _, o := range a.observers {
		o.ConnClosed(id, err)
	}
}
