package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/taskline/taskline/internal/models"
)

func testClient(h *Hub, buffer int) *Client {
	return &Client{
		id:     uuid.New(),
		user:   &models.User{ID: uuid.New(), Username: "tester"},
		send:   make(chan []byte, buffer),
		hub:    h,
		groups: make(map[string]struct{}),
	}
}

func receiveEvent(t *testing.T, c *Client) *Event {
	t.Helper()
	select {
	case data := <-c.send:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return &ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
		return nil
	}
}

func TestHubFanOutByGroup(t *testing.T) {
	h := NewHub(DefaultConfig(), nil, zerolog.Nop())

	projectID := uuid.New()
	subscriber := testClient(h, 8)
	other := testClient(h, 8)

	h.clients[subscriber.id] = subscriber
	h.clients[other.id] = other
	h.Subscribe(subscriber, ProjectGroup(projectID))
	h.Subscribe(other, ProjectGroup(uuid.New()))

	task := models.NewTask("Ship", "", projectID, uuid.New())
	h.fanOut(NewTaskEvent(EventTaskCreate, task, "acme"))

	got := receiveEvent(t, subscriber)
	if got.Type != EventTaskCreate {
		t.Errorf("event type = %s, want %s", got.Type, EventTaskCreate)
	}
	if got.Task == nil || got.Task.ID != task.ID {
		t.Errorf("event does not carry the task")
	}

	select {
	case data := <-other.send:
		t.Errorf("client outside the group received %s", data)
	default:
	}
}

func TestHubFanOutDeliversAtMostOnce(t *testing.T) {
	h := NewHub(DefaultConfig(), nil, zerolog.Nop())

	projectID := uuid.New()
	client := testClient(h, 8)
	h.clients[client.id] = client

	// Member of both groups the event targets.
	h.Subscribe(client, ProjectGroup(projectID))
	h.Subscribe(client, OrgGroup("acme"))

	task := models.NewTask("Ship", "", projectID, uuid.New())
	h.fanOut(NewTaskEvent(EventTaskUpdate, task, "acme"))

	receiveEvent(t, client)
	select {
	case <-client.send:
		t.Errorf("event delivered twice to a client in both groups")
	default:
	}
}

func TestHubSlowClientDropsEvent(t *testing.T) {
	h := NewHub(DefaultConfig(), nil, zerolog.Nop())

	projectID := uuid.New()
	slow := testClient(h, 1)
	h.clients[slow.id] = slow
	h.Subscribe(slow, ProjectGroup(projectID))

	task := models.NewTask("Ship", "", projectID, uuid.New())
	ev := NewTaskEvent(EventTaskCreate, task, "acme")

	// Second fan-out finds the buffer full and must not block.
	done := make(chan struct{})
	go func() {
		h.fanOut(ev)
		h.fanOut(ev)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("fan-out blocked on a full client buffer")
	}
	if len(slow.send) != 1 {
		t.Errorf("expected exactly one buffered event, got %d", len(slow.send))
	}
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub(DefaultConfig(), nil, zerolog.Nop())

	projectID := uuid.New()
	client := testClient(h, 8)
	h.clients[client.id] = client
	group := ProjectGroup(projectID)

	h.Subscribe(client, group)
	if n := h.GroupClientCount(group); n != 1 {
		t.Fatalf("group count = %d, want 1", n)
	}

	h.Unsubscribe(client, group)
	if n := h.GroupClientCount(group); n != 0 {
		t.Fatalf("group count after unsubscribe = %d, want 0", n)
	}

	task := models.NewTask("Ship", "", projectID, uuid.New())
	h.fanOut(NewTaskEvent(EventTaskCreate, task, "acme"))
	select {
	case data := <-client.send:
		t.Errorf("unsubscribed client received %s", data)
	default:
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	h := NewHub(DefaultConfig(), nil, zerolog.Nop())
	h.Start()
	defer h.Stop()

	client := testClient(h, 8)
	client.groups[OrgGroup("acme")] = struct{}{}

	h.register <- client
	waitFor(t, func() bool { return h.TotalClientCount() == 1 })
	if n := h.GroupClientCount(OrgGroup("acme")); n != 1 {
		t.Errorf("initial group not joined, count = %d", n)
	}

	h.unregister <- client
	waitFor(t, func() bool { return h.TotalClientCount() == 0 })
	if n := h.GroupClientCount(OrgGroup("acme")); n != 0 {
		t.Errorf("group not left on unregister, count = %d", n)
	}
}

func TestHubClosedClientDropsSends(t *testing.T) {
	h := NewHub(DefaultConfig(), nil, zerolog.Nop())

	client := testClient(h, 8)
	client.closeSend()

	// A control reply or fan-out racing the close must be dropped, not
	// sent on the closed channel.
	client.enqueue(map[string]any{"type": "pong"})
	if client.trySend([]byte("{}")) {
		t.Errorf("trySend succeeded on a closed client")
	}

	// Idempotent.
	client.closeSend()
}

func TestHubStopClosesConnections(t *testing.T) {
	h := NewHub(DefaultConfig(), nil, zerolog.Nop())
	h.Start()

	user := &models.User{ID: uuid.New(), Username: "tester"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.HandleWebSocket(w, r, user, OrgGroup("acme"))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return h.TotalClientCount() == 1 })

	// In flight while the hub shuts down.
	if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	stopped := make(chan struct{})
	go func() {
		h.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("hub stop did not return")
	}

	// The server side closed our connection; reads must not hang.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if e, ok := err.(interface{ Timeout() bool }); ok && e.Timeout() {
				t.Fatalf("connection still open after hub stop")
			}
			break
		}
	}
	if n := h.TotalClientCount(); n != 0 {
		t.Errorf("client count after stop = %d, want 0", n)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached within deadline")
}
