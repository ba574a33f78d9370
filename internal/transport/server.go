// Package transport implements the event-driven TCP server: it accepts
// connections, feeds inbound bytes to the request parser, writes the single
// fixed response once a request completes, and tears the connection down.
package transport

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/gnet/v2"
)

// verboseLogging gates per-event diagnostic lines; keep false outside of
// debugging sessions.
const verboseLogging = false

// Config defines the configuration options for the transport server.
type Config struct {
	Addr             string
	Multicore        bool
	NumEventLoop     int
	ReusePort        bool
	TCPKeepAlive     time.Duration
	TCPNoDelay       bool
	SocketRecvBuffer int
	SocketSendBuffer int
	Logger           *log.Logger
	// Response is written verbatim, once, to every connection that
	// delivers a complete request. It must not change after Start.
	Response []byte
	Observer Observer
}

// Server implements gnet.EventHandler. Connections are tracked in a registry
// keyed by identity; the gnet per-connection context stores only the
// identity, so a stale event can never touch freed state.
type Server struct {
	gnet.BuiltinEventEngine
	conns            sync.Map // map[int64]*Conn
	nextID           int64
	addr             string
	multicore        bool
	numEventLoop     int
	reusePort        bool
	tcpKeepAlive     time.Duration
	tcpNoDelay       bool
	socketRecvBuffer int
	socketSendBuffer int
	logger           *log.Logger
	response         []byte
	observer         Observer

	// mu guards engine and engineStarted; OnBoot and OnShutdown run on
	// the engine goroutine while Stop runs on the caller's.
	mu            sync.Mutex
	engine        gnet.Engine
	engineStarted bool
}

// NewServer creates a transport server from config.
func NewServer(config Config) *Server {
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	if config.Observer == nil {
		config.Observer = nopObserver{}
	}

	return &Server{
		addr:             config.Addr,
		multicore:        config.Multicore,
		numEventLoop:     config.NumEventLoop,
		reusePort:        config.ReusePort,
		tcpKeepAlive:     config.TCPKeepAlive,
		tcpNoDelay:       config.TCPNoDelay,
		socketRecvBuffer: config.SocketRecvBuffer,
		socketSendBuffer: config.SocketSendBuffer,
		logger:           config.Logger,
		response:         config.Response,
		observer:         config.Observer,
	}
}

// Start runs the event loop. It blocks until the engine stops.
func (s *Server) Start() error {
	options := []gnet.Option{
		gnet.WithMulticore(s.multicore),
		gnet.WithReusePort(s.reusePort),
		gnet.WithLogger(silentGnetLogger{}),
	}

	if s.numEventLoop > 0 {
		options = append(options, gnet.WithNumEventLoop(s.numEventLoop))
	}
	if s.tcpKeepAlive > 0 {
		options = append(options, gnet.WithTCPKeepAlive(s.tcpKeepAlive))
	}
	if s.tcpNoDelay {
		options = append(options, gnet.WithTCPNoDelay(gnet.TCPNoDelay))
	}
	if s.socketRecvBuffer > 0 {
		options = append(options, gnet.WithSocketRecvBuffer(s.socketRecvBuffer))
	}
	if s.socketSendBuffer > 0 {
		options = append(options, gnet.WithSocketSendBuffer(s.socketSendBuffer))
	}

	s.logger.Printf("starting server on %s", s.addr)
	return gnet.Run(s, "tcp://"+s.addr, options...)
}

// Stop closes every tracked connection and stops the engine.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Printf("shutting down listener on %s", s.addr)

	s.conns.Range(func(_, value interface{}) bool {
		if conn, ok := value.(*Conn); ok {
			_ = conn.raw.Close()
		}
		return true
	})

	s.mu.Lock()
	engine, started := s.engine, s.engineStarted
	s.mu.Unlock()
	if !started {
		return nil
	}

	stopCtx, stopCancel := context.WithTimeout(ctx, 2*time.Second)
	defer stopCancel()
	if err := engine.Stop(stopCtx); err != nil {
		s.logger.Printf("stopping engine: %v", err)
		return err
	}

	s.logger.Printf("shutdown complete")
	return nil
}

// OnBoot is called when the server is ready to accept connections.
func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.mu.Lock()
	s.engine = eng
	s.engineStarted = true
	s.mu.Unlock()

	s.logger.Printf("listening on %s (multicore: %v)", s.addr, s.multicore)
	return gnet.None
}

// OnShutdown is called when the engine is shutting down.
func (s *Server) OnShutdown(_ gnet.Engine) {
	s.mu.Lock()
	s.engineStarted = false
	s.mu.Unlock()
}

// OnOpen assigns the next identity, registers the connection, and starts
// its read phase.
func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	id := atomic.AddInt64(&s.nextID, 1) - 1
	conn := newConn(id, c, s.logger, s.observer, s.response)
	c.SetContext(id)
	s.conns.Store(id, conn)
	_ = conn.to(stateReading)

	s.observer.Accepted(id, c.RemoteAddr().String())
	if verboseLogging {
		s.logger.Printf("[ %3d ] connection from %s", id, c.RemoteAddr().String())
	}
	return nil, gnet.None
}

// OnTraffic looks the connection up by identity and feeds it the inbound
// bytes. A registry miss closes the socket rather than touching anything.
func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	id, ok := c.Context().(int64)
	if !ok {
		s.logger.Printf("connection from %s has no id", c.RemoteAddr().String())
		return gnet.Close
	}
	value, ok := s.conns.Load(id)
	if !ok {
		s.logger.Printf("[ %3d ] connection not in registry", id)
		return gnet.Close
	}
	conn := value.(*Conn)

	buf, err := c.Next(-1)
	if err != nil {
		s.logger.Printf("[ %3d ] reading request: %v", id, err)
		return gnet.Close
	}
	if len(buf) == 0 {
		return gnet.None
	}

	if err := conn.Feed(buf); err != nil {
		return gnet.Close
	}
	return gnet.None
}

// OnClose completes the teardown: final state change, observer notification,
// registry removal. After this no code path can reach the connection.
func (s *Server) OnClose(c gnet.Conn, err error) gnet.Action {
	id, ok := c.Context().(int64)
	if !ok {
		return gnet.None
	}
	value, ok := s.conns.LoadAndDelete(id)
	if !ok {
		return gnet.None
	}
	conn := value.(*Conn)
	_ = conn.to(stateClosed)

	s.observer.Closed(id, err)
	if err != nil {
		s.logger.Printf("[ %3d ] connection closed: %v", id, err)
	} else {
		s.logger.Printf("[ %3d ] connection closed", id)
	}
	return gnet.None
}

// silentGnetLogger discards all gnet output; the server does its own
// logging.
type silentGnetLogger struct{}

func (silentGnetLogger) Debugf(_ string, _ ...any) {}
func (silentGnetLogger) Infof(_ string, _ ...any)  {}
func (silentGnetLogger) Warnf(_ string, _ ...any)  {}
func (silentGnetLogger) Errorf(_ string, _ ...any) {}
func (silentGnetLogger) Fatalf(_ string, _ ...any) {}
