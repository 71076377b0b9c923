package broadcast

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/orc/internal/events"
)

type fakeDecider struct {
	gateID, decision, comment, revised string
	err                                 error
}

func (f *fakeDecider) DecideGate(gateID, decision, comment, revised string) error {
	f.gateID, f.decision, f.comment, f.revised = gateID, decision, comment, revised
	return f.err
}

func newTestServer(t *testing.T, pub events.Publisher, decider GateDecider) (*httptest.Server, string) {
	t.Helper()
	h := NewHandler(pub, decider, nil)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	t.Cleanup(h.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, wsURL
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, http.Header{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestHandlerSubscribeReceivesEvent(t *testing.T) {
	pub := events.NewMemoryPublisher()
	defer pub.Close()
	_, url := newTestServer(t, pub, nil)
	c := dial(t, url)

	require.NoError(t, c.WriteJSON(Message{Type: "subscribe", TaskID: "task-1"}))

	var ack Message
	require.NoError(t, c.ReadJSON(&ack))
	assert.Equal(t, "subscribed", ack.Type)

	pub.Publish(events.NewEvent(events.EventTaskStatusChanged, "task-1", events.PriorityNormal, events.TaskStatusChanged{From: "pending", To: "claimed"}))

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var raw map[string]any
	require.NoError(t, c.ReadJSON(&raw))
	assert.Equal(t, "event", raw["type"])
	assert.Equal(t, "task-1", raw["task_id"])
}

func TestHandlerUnsubscribeStopsForwarding(t *testing.T) {
	pub := events.NewMemoryPublisher()
	defer pub.Close()
	_, url := newTestServer(t, pub, nil)
	c := dial(t, url)

	require.NoError(t, c.WriteJSON(Message{Type: "subscribe", TaskID: "task-1"}))
	var ack Message
	require.NoError(t, c.ReadJSON(&ack))

	require.NoError(t, c.WriteJSON(Message{Type: "unsubscribe"}))

	pub.Publish(events.NewEvent(events.EventTaskStatusChanged, "task-1", events.PriorityNormal, nil))

	_ = c.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := c.ReadMessage()
	assert.Error(t, err) // timeout: no event should arrive after unsubscribe
}

func TestHandlerGateDecisionDispatchesToDecider(t *testing.T) {
	pub := events.NewMemoryPublisher()
	defer pub.Close()
	decider := &fakeDecider{}
	_, url := newTestServer(t, pub, decider)
	c := dial(t, url)

	require.NoError(t, c.WriteJSON(Message{Type: "gate_decision", GateID: "gate-1", Action: "approve", Comment: "looks good"}))

	var resp map[string]any
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, c.ReadJSON(&resp))
	assert.Equal(t, "gate_decision_result", resp["type"])
	assert.Equal(t, "gate-1", decider.gateID)
	assert.Equal(t, "approve", decider.decision)
	assert.Equal(t, "looks good", decider.comment)
}

func TestHandlerGateDecisionWithoutDeciderErrors(t *testing.T) {
	pub := events.NewMemoryPublisher()
	defer pub.Close()
	_, url := newTestServer(t, pub, nil)
	c := dial(t, url)

	require.NoError(t, c.WriteJSON(Message{Type: "gate_decision", GateID: "gate-1", Action: "approve"}))

	var resp map[string]any
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, c.ReadJSON(&resp))
	assert.Equal(t, "error", resp["type"])
}

func TestHandlerInvalidMessageReturnsError(t *testing.T) {
	pub := events.NewMemoryPublisher()
	defer pub.Close()
	_, url := newTestServer(t, pub, nil)
	c := dial(t, url)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("not json")))

	var resp map[string]any
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, c.ReadJSON(&resp))
	assert.Equal(t, "error", resp["type"])
}

func TestHandlerConnectionCount(t *testing.T) {
	pub := events.NewMemoryPublisher()
	defer pub.Close()
	h := NewHandler(pub, nil, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := dial(t, wsURL)
	require.NoError(t, c.WriteJSON(Message{Type: "ping"}))

	var pong map[string]any
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, c.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["type"])

	assert.Eventually(t, func() bool { return h.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)
}
