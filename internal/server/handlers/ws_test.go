package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/runsync/pkg/api"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + api.PathWS
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestWSHandler_Pings(t *testing.T) {
	ws := NewWSHandler(setupTestLogger(), 20*time.Millisecond)
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+api.PathWS, ws.Serve)
	srv := httptest.NewServer(mux)
	defer srv.Close()
	defer ws.Close()

	conn := dialWS(t, srv)
	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	// Ping обрабатывается только во время чтения
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
	assert.Eventually(t, func() bool { return ws.Connections() == 1 }, time.Second, 10*time.Millisecond)
}

func TestWSHandler_Close(t *testing.T) {
	ws := NewWSHandler(setupTestLogger(), time.Minute)
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+api.PathWS, ws.Serve)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dialWS(t, srv)
	require.Eventually(t, func() bool { return ws.Connections() == 1 }, time.Second, 10*time.Millisecond)

	ws.Close()
	assert.Equal(t, 0, ws.Connections())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	// После Close новые соединения сразу закрываются
	late := dialWS(t, srv)
	_ = late.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = late.ReadMessage()
	assert.Error(t, err)
}

func TestWSHandler_RejectsPlainHTTP(t *testing.T) {
	ws := NewWSHandler(setupTestLogger(), 0)
	defer ws.Close()

	w := httptest.NewRecorder()
	ws.Serve(w, httptest.NewRequest(http.MethodGet, api.PathWS, nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, ws.Connections())
}
