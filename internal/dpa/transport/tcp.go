// Package transport implements one concrete dpa.Client: a length-prefixed
// TCP link to the IQRF GW daemon's coordinator port (spec.md §1 leaves
// "how a request/response packet actually reaches the coordinator" out of
// scope; this is the daemon's default choice of transport). Grounded on
// the teacher's net.Listen/net.Dial plumbing in coordinator/coordinator.go
// and modules/route/bird-adapter, generalized from gRPC dialing to a raw
// framed socket since DPA exchanges are not protobuf messages.
package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/iqrf/iqmesh-gateway/internal/dpa"
)

// TCPClient is a dpa.Client over a persistent TCP connection. Every frame
// is a 1-byte frame-kind tag and a 2-byte big-endian length prefix,
// followed by that many payload bytes; one frame per confirmation
// (optional) and one per response.
type TCPClient struct {
	mu      sync.Mutex
	conn    net.Conn
	r       *bufio.Reader
	addr    string
	timeout time.Duration
}

// Dial connects to addr (host:port). defaultTimeout is used for Execute
// calls that pass timeout<=0.
func Dial(addr string, defaultTimeout time.Duration) (*TCPClient, error) {
	conn, err := net.DialTimeout("tcp", addr, defaultTimeout)
	if err != nil {
		return nil, &dpa.TransportError{Cause: fmt.Errorf("dial %s: %w", addr, err)}
	}
	return &TCPClient{
		conn:    conn,
		r:       bufio.NewReader(conn),
		addr:    addr,
		timeout: defaultTimeout,
	}, nil
}

// Close closes the underlying connection.
func (c *TCPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// Execute implements dpa.Client. Calls are serialized by c.mu, matching
// spec.md §4.1's "the orchestrator never parallelizes these calls;
// serialization is the client's responsibility".
func (c *TCPClient) Execute(ctx context.Context, req dpa.Request, timeout time.Duration) (*dpa.Confirmation, *dpa.Response, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok || time.Until(deadline) > timeout {
		deadline = time.Now().Add(timeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, nil, &dpa.TransportError{Cause: err}
	}

	if err := writeFrame(c.conn, frameRequest, req.Payload); err != nil {
		return nil, nil, &dpa.TransportError{Cause: err}
	}

	kind, buf, err := readFrame(c.r)
	if err != nil {
		return nil, nil, classifyReadErr(err)
	}

	var conf *dpa.Confirmation
	if kind == frameConfirmation {
		conf = &dpa.Confirmation{Payload: buf}
		kind, buf, err = readFrame(c.r)
		if err != nil {
			return conf, nil, classifyReadErr(err)
		}
	}
	if kind != frameResponse {
		return conf, nil, &dpa.TransportError{Cause: fmt.Errorf("unexpected frame kind %d", kind)}
	}
	return conf, &dpa.Response{Payload: buf}, nil
}

func classifyReadErr(err error) error {
	if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
		return dpa.ErrTimeout
	}
	return &dpa.TransportError{Cause: err}
}

// Frame kinds for the length-prefixed wire format this transport defines
// over the TCP link (the real DPA serial/USB framing is out of scope per
// spec.md §1; this tag byte is this transport's own envelope, not part of
// the DPA protocol itself).
const (
	frameRequest      byte = 0
	frameConfirmation byte = 1
	frameResponse     byte = 2
)

func writeFrame(w io.Writer, kind byte, payload []byte) error {
	var hdr [3]byte
	hdr[0] = kind
	binary.BigEndian.PutUint16(hdr[1:], uint16(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r *bufio.Reader) (kind byte, payload []byte, err error) {
	var hdr [3]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint16(hdr[1:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, nil, err
	}
	return hdr[0], buf, nil
}
