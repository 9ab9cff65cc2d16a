package splitter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iqrf/iqmesh-gateway/internal/dpa"
)

func newCapturingBus() (*Bus, *[]Envelope) {
	var envs []Envelope
	bus := New(func(ctx context.Context, env Envelope) error {
		envs = append(envs, env)
		return nil
	})
	return bus, &envs
}

func envelope(t *testing.T, mType string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	env := Envelope{MType: mType, Data: raw}
	buf, err := json.Marshal(env)
	require.NoError(t, err)
	return buf
}

func Test_Dispatch_UnknownMType(t *testing.T) {
	bus, envs := newCapturingBus()

	raw := envelope(t, "mngFoo_Bar", RequestData{MsgID: "1"})
	require.NoError(t, bus.Dispatch(context.Background(), raw))

	require.Len(t, *envs, 1)
	var rsp ResponseData
	require.NoError(t, json.Unmarshal((*envs)[0].Data, &rsp))
	assert.Equal(t, StatusGeneric, rsp.Status)
}

func Test_Dispatch_ParsingError(t *testing.T) {
	bus, envs := newCapturingBus()

	raw := []byte(`{"mType":"mngFoo_Bar","data":123}`)
	require.NoError(t, bus.Dispatch(context.Background(), raw))

	require.Len(t, *envs, 1)
	var rsp ResponseData
	require.NoError(t, json.Unmarshal((*envs)[0].Data, &rsp))
	assert.Equal(t, StatusParsing, rsp.Status)
}

func Test_Dispatch_HandlerError_MapsGeneric(t *testing.T) {
	bus, envs := newCapturingBus()
	bus.Handle("mngFoo_Bar", func(ctx context.Context, msgID string, verbose bool, timeoutMs *int, raw json.RawMessage) (any, error) {
		return nil, errors.New("boom")
	})

	raw := envelope(t, "mngFoo_Bar", RequestData{MsgID: "1"})
	require.NoError(t, bus.Dispatch(context.Background(), raw))

	var rsp ResponseData
	require.NoError(t, json.Unmarshal((*envs)[0].Data, &rsp))
	assert.Equal(t, StatusGeneric, rsp.Status)
}

func Test_Dispatch_HandlerBusyError_MapsStatusBusy(t *testing.T) {
	bus, envs := newCapturingBus()
	bus.Handle("mngFoo_Bar", func(ctx context.Context, msgID string, verbose bool, timeoutMs *int, raw json.RawMessage) (any, error) {
		return nil, dpa.ErrBusy
	})

	raw := envelope(t, "mngFoo_Bar", RequestData{MsgID: "1"})
	require.NoError(t, bus.Dispatch(context.Background(), raw))

	var rsp ResponseData
	require.NoError(t, json.Unmarshal((*envs)[0].Data, &rsp))
	assert.Equal(t, StatusBusy, rsp.Status)
}

func Test_Dispatch_Success_ForwardsTimeoutAndRsp(t *testing.T) {
	bus, envs := newCapturingBus()
	var gotTimeout *int
	bus.Handle("mngFoo_Bar", func(ctx context.Context, msgID string, verbose bool, timeoutMs *int, raw json.RawMessage) (any, error) {
		gotTimeout = timeoutMs
		return map[string]string{"ok": "yes"}, nil
	})

	timeout := 5000
	raw := envelope(t, "mngFoo_Bar", RequestData{MsgID: "42", Timeout: &timeout})
	require.NoError(t, bus.Dispatch(context.Background(), raw))

	require.NotNil(t, gotTimeout)
	assert.Equal(t, 5000, *gotTimeout)

	var rsp ResponseData
	require.NoError(t, json.Unmarshal((*envs)[0].Data, &rsp))
	assert.Equal(t, StatusOK, rsp.Status)
	assert.Equal(t, "42", rsp.MsgID)
}

func Test_SetSink_InstallsLateSink(t *testing.T) {
	bus := New(nil)

	var captured Envelope
	bus.SetSink(func(ctx context.Context, env Envelope) error {
		captured = env
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), "mngFoo_Bar", ResponseData{MsgID: "1", Status: StatusOK}))
	assert.Equal(t, "mngFoo_Bar", captured.MType)
}
