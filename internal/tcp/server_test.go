package tcp

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flowforge/streambroker/internal/brokerr"
	"github.com/flowforge/streambroker/internal/wire"
)

type fakeDispatcher struct {
	response []byte
	err      error
	lastReq  wire.Request
}

func (f *fakeDispatcher) Dispatch(req wire.Request) ([]byte, error) {
	f.lastReq = req
	return f.response, f.err
}

func startTestServer(t *testing.T, d Dispatcher) *Server {
	t.Helper()
	s, err := Listen("127.0.0.1:0", d, zap.NewNop())
	require.NoError(t, err)
	go func() { _ = s.Serve() }()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestServeRoundTripsSuccessfulRequest(t *testing.T) {
	d := &fakeDispatcher{response: []byte("hello")}
	s := startTestServer(t, d)

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.WriteRequest(conn, wire.CodeCreateStream, []byte("payload")))

	resp, err := wire.ReadResponse(conn)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), resp.Status)
	assert.Equal(t, []byte("hello"), resp.Payload)
	assert.Equal(t, wire.CodeCreateStream, d.lastReq.Code)
	assert.Equal(t, []byte("payload"), d.lastReq.Payload)
}

func TestServeMapsDispatchErrorToStatus(t *testing.T) {
	d := &fakeDispatcher{err: brokerr.ErrNotFound(brokerr.NotFoundStream, "orders")}
	s := startTestServer(t, d)

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.WriteRequest(conn, wire.CodeDeleteStream, nil))

	resp, err := wire.ReadResponse(conn)
	require.NoError(t, err)
	assert.Equal(t, wire.StatusFor(brokerr.ErrNotFound(brokerr.NotFoundStream, "orders")), resp.Status)
	assert.Empty(t, resp.Payload)
}

func TestServeHandlesMultipleRequestsOnOneConnection(t *testing.T) {
	d := &fakeDispatcher{response: []byte("ok")}
	s := startTestServer(t, d)

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, wire.WriteRequest(conn, wire.CodePollMessages, nil))
		resp, err := wire.ReadResponse(conn)
		require.NoError(t, err)
		assert.Equal(t, uint32(0), resp.Status)
	}
}

func TestCloseStopsServeCleanly(t *testing.T) {
	d := &fakeDispatcher{}
	s, err := Listen("127.0.0.1:0", d, zap.NewNop())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve() }()

	require.NoError(t, s.Close())
	assert.NoError(t, <-done)
}
