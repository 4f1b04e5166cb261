package messaging

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/sudo-init-do/agrihub/internal/logger"
	"github.com/sudo-init-do/agrihub/internal/workitem"
)

// Event types pushed to subscribers
const (
	EventNegotiationUpdated = "negotiation_updated"
	EventPaymentUpdated     = "payment_updated"
	EventPresenceJoin       = "presence_join"
	EventPresenceLeave      = "presence_leave"
)

type wsEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Broadcaster pushes record updates to everyone watching a work item.
type Broadcaster interface {
	Broadcast(category workitem.Category, id string, eventType string, data interface{})
}

type client struct {
	conn *websocket.Conn
	// gorilla connections allow one writer at a time
	writeMu sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

type room struct {
	clients map[*client]bool
	mu      sync.RWMutex
}

// Hub holds one room per work item.
type Hub struct {
	source workitem.Source
	log    *logrus.Entry

	mu    sync.Mutex
	rooms map[string]*room
}

func NewHub(source workitem.Source) *Hub {
	return &Hub{
		source: source,
		log:    logger.NewSublogger("ws"),
		rooms:  make(map[string]*room),
	}
}

func topic(category workitem.Category, id string) string {
	return string(category) + "/" + id
}

func (h *Hub) lookup(name string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[name]
}

func (h *Hub) Broadcast(category workitem.Category, id string, eventType string, data interface{}) {
	h.broadcast(topic(category, id), wsEvent{Type: eventType, Data: data})
}

func (h *Hub) broadcast(name string, evt wsEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.log.WithError(err).WithField("type", evt.Type).Error("Failed to encode event")
		return
	}
	r := h.lookup(name)
	if r == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.clients {
		if err := c.write(payload); err != nil {
			h.log.WithError(err).WithField("topic", name).Debug("Dropped event for closed connection")
		}
	}
}

func (h *Hub) register(name string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[name]
	if !ok {
		r = &room{clients: make(map[*client]bool)}
		h.rooms[name] = r
	}
	r.mu.Lock()
	r.clients[c] = true
	r.mu.Unlock()
}

func (h *Hub) unregister(name string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[name]
	if !ok {
		return
	}
	r.mu.Lock()
	delete(r.clients, c)
	if len(r.clients) == 0 {
		delete(h.rooms, name)
	}
	r.mu.Unlock()
}

// Subscribers returns the number of open connections on a work item.
func (h *Hub) Subscribers(category workitem.Category, id string) int {
	r := h.lookup(topic(category, id))
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WorkItemWS - websocket for realtime negotiation and payment updates on a work item
func (h *Hub) WorkItemWS(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	category, err := workitem.ParseCategory(c.Param("category"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing work item id"})
	}

	// Verify participation
	item, err := h.source.Get(c.Request().Context(), category, id)
	if errors.Is(err, workitem.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "work item not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load work item"})
	}
	if _, ok := item.RoleOf(userID); !ok {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not a participant in this work item"})
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	name := topic(category, id)
	cl := &client{conn: ws}
	h.register(name, cl)
	h.broadcast(name, wsEvent{Type: EventPresenceJoin, Data: echo.Map{"user_id": userID}})

	// Server push only; client messages are discarded
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			h.unregister(name, cl)
			_ = ws.Close()
			h.broadcast(name, wsEvent{Type: EventPresenceLeave, Data: echo.Map{"user_id": userID}})
			break
		}
	}
	return nil
}
