package autonetwork

import (
	"context"
	"time"

	"github.com/iqrf/iqmesh-gateway/internal/dpa"
)

// respFunc produces one response body (without the 8-byte response header)
// for a request's raw payload (including its 6-byte request header).
type respFunc func(payload []byte) ([]byte, error)

// fakeClient is a scripted dpa.Client: responses are queued per (pnum,
// pcmd) pair and consumed in order, with the last queued entry repeating
// once its queue is exhausted.
type fakeClient struct {
	queues map[[2]uint8][]respFunc
	calls  map[[2]uint8]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		queues: make(map[[2]uint8][]respFunc),
		calls:  make(map[[2]uint8]int),
	}
}

// on queues one more response for the given (pnum, pcmd) pair.
func (f *fakeClient) on(pnum, pcmd uint8, fn respFunc) *fakeClient {
	key := [2]uint8{pnum, pcmd}
	f.queues[key] = append(f.queues[key], fn)
	return f
}

func (f *fakeClient) Execute(ctx context.Context, req dpa.Request, timeout time.Duration) (*dpa.Confirmation, *dpa.Response, error) {
	pnum, pcmd := req.Payload[2], req.Payload[3]
	key := [2]uint8{pnum, pcmd}

	idx := f.calls[key]
	f.calls[key]++

	queue := f.queues[key]
	if len(queue) == 0 {
		return nil, &dpa.Response{Payload: wireResp(nil)}, nil
	}
	if idx >= len(queue) {
		idx = len(queue) - 1
	}

	body, err := queue[idx](req.Payload)
	if err != nil {
		return nil, nil, err
	}
	return nil, &dpa.Response{Payload: wireResp(body)}, nil
}

// wireResp prepends the 8-byte echoed-request-header + response-code +
// dpa-value prefix every response buffer carries.
func wireResp(body []byte) []byte {
	buf := make([]byte, 8, 8+len(body))
	return append(buf, body...)
}

func ok(body []byte) respFunc {
	return func([]byte) ([]byte, error) { return body, nil }
}

// frcOK builds an FRC response body: status byte + window.
func frcOK(status uint8, window []byte) []byte {
	return append([]byte{status}, window...)
}

// bitmap30 sets the given addresses in a fresh 30-byte bitmap.
func bitmap30(addrs ...uint8) []byte {
	buf := make([]byte, 30)
	for _, a := range addrs {
		buf[a/8] |= 1 << (a % 8)
	}
	return buf
}

// le32 encodes v little-endian into 4 bytes.
func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
