// Package tcp runs the broker's request/response loop over a plain TCP
// listener: one goroutine per connection, each request decoded and
// encoded through internal/wire and routed through a Dispatcher.
package tcp

import (
	"errors"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/flowforge/streambroker/internal/metrics"
	"github.com/flowforge/streambroker/internal/wire"
)

// Dispatcher runs one decoded request and returns its response payload.
type Dispatcher interface {
	Dispatch(req wire.Request) ([]byte, error)
}

// Server accepts connections on a TCP listener and serves each with the
// wire protocol until Close is called.
type Server struct {
	listener   net.Listener
	dispatcher Dispatcher
	logger     *zap.Logger
}

// Listen opens a TCP listener on addr and returns a Server ready to Serve.
func Listen(addr string, dispatcher Dispatcher, logger *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{listener: ln, dispatcher: dispatcher, logger: logger}, nil
}

// Addr returns the listener's bound address, useful when addr was ":0".
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve accepts connections until the listener is closed, handling each
// on its own goroutine. It returns nil on a clean shutdown (Close called).
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	metrics.IncrementConnections()
	defer metrics.DecrementConnections()
	defer func() { _ = conn.Close() }()

	for {
		req, err := wire.ReadRequest(conn)
		if err != nil {
			if err != io.EOF {
				s.logger.Debug("connection read failed", zap.Error(err))
			}
			return
		}

		payload, handleErr := s.dispatcher.Dispatch(req)
		status := wire.StatusFor(handleErr)
		if err := wire.WriteResponse(conn, status, payload); err != nil {
			s.logger.Debug("connection write failed", zap.Error(err))
			return
		}
	}
}
