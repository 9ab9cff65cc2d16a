package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/iqrf/iqmesh-gateway/internal/splitter"
)

func Test_Server_DispatchAndBroadcastRoundTrip(t *testing.T) {
	bus := splitter.New(nil)
	srv := NewServer("", bus, nil)
	bus.SetSink(srv.Sink)
	bus.Handle("mngFoo_Bar", func(ctx context.Context, msgID string, verbose bool, timeoutMs *int, raw json.RawMessage) (any, error) {
		return map[string]string{"echo": "ok"}, nil
	})

	httpSrv := httptest.NewServer(http.HandlerFunc(srv.handleConn))
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The server tracks this connection only once the handshake completes;
	// give handleConn's registration a moment to land before publishing.
	time.Sleep(20 * time.Millisecond)

	req := splitter.Envelope{
		MType: "mngFoo_Bar",
		Data:  mustMarshal(t, splitter.RequestData{MsgID: "1"}),
	}
	require.NoError(t, conn.WriteJSON(req))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env splitter.Envelope
	require.NoError(t, conn.ReadJSON(&env))

	require.Equal(t, "mngFoo_Bar", env.MType)
	var rsp splitter.ResponseData
	require.NoError(t, json.Unmarshal(env.Data, &rsp))
	require.Equal(t, "1", rsp.MsgID)
	require.Equal(t, splitter.StatusOK, rsp.Status)
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	buf, err := json.Marshal(v)
	require.NoError(t, err)
	return buf
}
