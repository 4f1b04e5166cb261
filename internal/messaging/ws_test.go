package messaging

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sudo-init-do/agrihub/internal/workitem"
)

func newServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	e := echo.New()
	auth := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("user_id", c.QueryParam("as"))
			return next(c)
		}
	}
	e.GET("/ws/:category/:id", hub.WorkItemWS, auth)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, path string) (*websocket.Conn, int) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		require.NotNil(t, resp)
		return nil, resp.StatusCode
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn, resp.StatusCode
}

func readEvent(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var evt wsEvent
	require.NoError(t, conn.ReadJSON(&evt))
	return evt
}

func TestBroadcastReachesParticipants(t *testing.T) {
	source := workitem.NewMemory(workitem.WorkItem{
		ID: "42", Category: workitem.CategoryLabour, BasePrice: 500,
		RequesterID: "farmer-1", FulfillerID: "lab-1",
	})
	hub := NewHub(source)
	srv := newServer(t, hub)

	conn, _ := dial(t, srv, "/ws/labour/42?as=farmer-1")
	require.NotNil(t, conn)
	assert.Equal(t, EventPresenceJoin, readEvent(t, conn).Type)
	assert.Equal(t, 1, hub.Subscribers(workitem.CategoryLabour, "42"))

	hub.Broadcast(workitem.CategoryLabour, "42", EventNegotiationUpdated, map[string]string{"status": "agreed"})
	evt := readEvent(t, conn)
	assert.Equal(t, EventNegotiationUpdated, evt.Type)
	assert.Equal(t, map[string]interface{}{"status": "agreed"}, evt.Data)
}

func TestWorkItemWSRefusesOutsiders(t *testing.T) {
	source := workitem.NewMemory(workitem.WorkItem{
		ID: "7", Category: workitem.CategoryMachine, RequesterID: "farmer-1", FulfillerID: "owner-1",
	})
	srv := newServer(t, NewHub(source))

	_, code := dial(t, srv, "/ws/machine/7?as=stranger")
	assert.Equal(t, 403, code)

	_, code = dial(t, srv, "/ws/machine/8?as=farmer-1")
	assert.Equal(t, 404, code)

	_, code = dial(t, srv, "/ws/tractor/7?as=farmer-1")
	assert.Equal(t, 400, code)
}

func TestBroadcastWithoutSubscribers(t *testing.T) {
	hub := NewHub(workitem.NewMemory())
	assert.NotPanics(t, func() {
		hub.Broadcast(workitem.CategoryMachine, "1", EventPaymentUpdated, nil)
	})
	assert.Equal(t, 0, hub.Subscribers(workitem.CategoryMachine, "1"))
}
