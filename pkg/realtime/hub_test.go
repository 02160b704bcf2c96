package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dialHubConn stands up a websocket endpoint that registers the
// server-side connection with the hub, then returns the client side.
func dialHubConn(t *testing.T, hub *Hub, userID string) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	registered := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(userID, conn)
		close(registered)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { client.Close() })

	select {
	case <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("connection never registered with the hub")
	}
	return client
}

// Grant and validation dispatches for the same user routinely overlap,
// so Emit must serialize writes to each connection; gorilla/websocket
// permits only one concurrent writer per connection.
func TestEmitConcurrentDispatchesOneConnection(t *testing.T) {
	hub := NewHub(2*time.Second, nil)
	client := dialHubConn(t, hub, "emp-1")

	const dispatches = 50
	var wg sync.WaitGroup
	wg.Add(dispatches)
	for i := 0; i < dispatches; i++ {
		go func(n int) {
			defer wg.Done()
			hub.Emit("term_clearing_update", map[string]int{"n": n}, "emp-1")
		}(i)
	}

	received := 0
	for received < dispatches {
		require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, raw, err := client.ReadMessage()
		require.NoError(t, err)

		var event Event
		require.NoError(t, json.Unmarshal(raw, &event))
		assert.Equal(t, "term_clearing_update", event.Event)
		received++
	}

	wg.Wait()
	assert.Equal(t, 1, hub.Connections("emp-1"))
}

func TestEmitOnlyReachesTargetUser(t *testing.T) {
	hub := NewHub(2*time.Second, nil)
	target := dialHubConn(t, hub, "emp-1")
	bystander := dialHubConn(t, hub, "emp-2")

	hub.Emit("swtd_validation_update", map[string]string{"record_id": "swtd-1"}, "emp-1")

	require.NoError(t, target.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := target.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "swtd-1")

	require.NoError(t, bystander.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = bystander.ReadMessage()
	assert.Error(t, err)
}

func TestUnregisterClosesAndForgets(t *testing.T) {
	hub := NewHub(time.Second, nil)

	upgrader := websocket.Upgrader{}
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer client.Close()

	conn := <-conns
	hub.Register("emp-1", conn)
	require.Equal(t, 1, hub.Connections("emp-1"))

	hub.Unregister("emp-1", conn)
	assert.Zero(t, hub.Connections("emp-1"))
}
