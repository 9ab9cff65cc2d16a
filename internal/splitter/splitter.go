// Package splitter implements the JSON request/response multiplexer the
// orchestrator sits behind: incoming envelopes are dispatched by mType to
// a registered handler, and outgoing progress/result messages are
// published back onto the same bus (spec.md §6, out of scope per spec.md
// §1 beyond this contract). Grounded on the teacher's
// yaml.Unmarshal(req.GetConfig(), cfg)-then-wrap-errors idiom in
// modules/route/coordinator/service.go, reused here for JSON since the
// teacher has no JSON-specific analogue.
package splitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/iqrf/iqmesh-gateway/internal/dpa"
)

// Envelope is the request/response JSON envelope (spec.md §6).
type Envelope struct {
	MType string          `json:"mType"`
	Data  json.RawMessage `json:"data"`
}

// RequestData is the `data` object of an incoming request envelope.
type RequestData struct {
	MsgID         string          `json:"msgId"`
	Timeout       *int            `json:"timeout,omitempty"`
	ReturnVerbose bool            `json:"returnVerbose,omitempty"`
	Req           json.RawMessage `json:"req"`
}

// ResponseData is the `data` object of an outgoing response envelope.
type ResponseData struct {
	MsgID     string `json:"msgId"`
	Rsp       any    `json:"rsp,omitempty"`
	Raw       any    `json:"raw,omitempty"`
	Status    int    `json:"status"`
	StatusStr string `json:"statusStr"`
}

// Handler processes one parsed request payload and returns the response
// payload to embed under `rsp`. timeoutMs is the request's optional
// `timeout` field in milliseconds, nil when the request didn't set one.
type Handler func(ctx context.Context, msgID string, verbose bool, timeoutMs *int, raw json.RawMessage) (rsp any, err error)

// Bus is the JSON message multiplexer. A zero Bus is ready to use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	sink     func(ctx context.Context, env Envelope) error
}

// New creates a Bus that publishes outgoing envelopes via sink (e.g. an
// MQTT/WebSocket/stdio writer — out of scope per spec.md §1). sink may
// be nil and set later with SetSink, for callers that must construct
// the Bus before its transport exists.
func New(sink func(ctx context.Context, env Envelope) error) *Bus {
	return &Bus{handlers: map[string]Handler{}, sink: sink}
}

// SetSink installs the Bus's outgoing sink. Used when the transport
// (e.g. internal/splitter/ws.Server) itself needs a reference to the
// Bus to dispatch inbound frames, creating a construction-order cycle
// New's sink parameter alone can't break.
func (b *Bus) SetSink(sink func(ctx context.Context, env Envelope) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = sink
}

// Handle registers h for the given mType.
func (b *Bus) Handle(mType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[mType] = h
}

// Dispatch parses an incoming envelope and invokes its registered handler,
// publishing exactly one response envelope back through sink.
func (b *Bus) Dispatch(ctx context.Context, raw []byte) error {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("splitter: unmarshal envelope: %w", err)
	}

	var reqData RequestData
	if err := json.Unmarshal(env.Data, &reqData); err != nil {
		return b.publishError(ctx, env.MType, "", StatusParsing, fmt.Sprintf("failed to parse request data: %v", err))
	}

	b.mu.RLock()
	h, ok := b.handlers[env.MType]
	b.mu.RUnlock()
	if !ok {
		return b.publishError(ctx, env.MType, reqData.MsgID, StatusGeneric, fmt.Sprintf("no handler registered for %s", env.MType))
	}

	rsp, err := h(ctx, reqData.MsgID, reqData.ReturnVerbose, reqData.Timeout, reqData.Req)
	if err != nil {
		status := StatusGeneric
		if errors.Is(err, dpa.ErrBusy) {
			status = StatusBusy
		}
		return b.publishError(ctx, env.MType, reqData.MsgID, status, err.Error())
	}

	return b.publish(ctx, env.MType, ResponseData{
		MsgID:     reqData.MsgID,
		Rsp:       rsp,
		Status:    StatusOK,
		StatusStr: "ok",
	})
}

// Publish emits a response envelope directly, for components (like the
// autonetwork publisher) that produce responses outside the
// request/handler cycle, e.g. intermediate progress messages.
func (b *Bus) Publish(ctx context.Context, mType string, data ResponseData) error {
	return b.publish(ctx, mType, data)
}

func (b *Bus) publish(ctx context.Context, mType string, data ResponseData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("splitter: marshal response data: %w", err)
	}
	return b.sink(ctx, Envelope{MType: mType, Data: raw})
}

func (b *Bus) publishError(ctx context.Context, mType, msgID string, status int, msg string) error {
	return b.publish(ctx, mType, ResponseData{
		MsgID:     msgID,
		Status:    status,
		StatusStr: msg,
	})
}

// Generic service status codes (spec.md §6).
const (
	StatusOK      = 0
	StatusGeneric = 1000
	StatusParsing = 1001
	StatusBusy    = 1002
)
