package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := hub.ServeWS(w, r, r.URL.Query().Get("session")); err != nil {
			t.Logf("serve ws: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_PublishReachesOnlyThatSession(t *testing.T) {
	hub := NewHub()
	srv := newHubServer(t, hub)

	a := dial(t, srv, "session-a")
	b := dial(t, srv, "session-b")
	require.Eventually(t, func() bool {
		return hub.ClientCount("session-a") == 1 && hub.ClientCount("session-b") == 1
	}, time.Second, 10*time.Millisecond)

	delivered := hub.Publish("session-a", Event{
		Type:     EventProgress,
		Index:    0,
		Total:    2,
		Fraction: 0.5,
		Status:   "Creating Variation 1/2...",
	})
	assert.Equal(t, 1, delivered)

	var got Event
	require.NoError(t, a.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, a.ReadJSON(&got))
	assert.Equal(t, EventProgress, got.Type)
	assert.Equal(t, "session-a", got.SessionID)
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 0.5, got.Fraction)
	assert.Equal(t, "Creating Variation 1/2...", got.Status)

	require.NoError(t, b.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := b.ReadMessage()
	assert.Error(t, err)
}

func TestHub_CloseSessionDisconnects(t *testing.T) {
	hub := NewHub()
	srv := newHubServer(t, hub)

	conn := dial(t, srv, "gone")
	require.Eventually(t, func() bool { return hub.ClientCount("gone") == 1 }, time.Second, 10*time.Millisecond)

	hub.CloseSession("gone")
	assert.Zero(t, hub.ClientCount("gone"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Zero(t, hub.Publish("gone", Event{Type: EventReset}))
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	hub := NewHub()
	srv := newHubServer(t, hub)

	conn := dial(t, srv, "s")
	require.Eventually(t, func() bool { return hub.ClientCount("s") == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount("s") == 0 }, time.Second, 10*time.Millisecond)

	open, total := hub.Connections()
	assert.Zero(t, open)
	assert.Equal(t, int64(1), total)
}
