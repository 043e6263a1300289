package httpapi

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentboard/agentboard/internal/events"
)

func TestWSHandlerStreamsPublishedEvents(t *testing.T) {
	pub := events.NewMemoryPublisher()
	handler := newWSHandler(pub, nil)

	ts := httptest.NewServer(handler)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	// Give the server time to register the subscription before publishing.
	time.Sleep(50 * time.Millisecond)
	pub.Publish(events.NewEvent(events.EventTaskRunning, "task-1", nil))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received events.Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read event frame: %v", err)
	}
	if received.Type != events.EventTaskRunning || received.TaskID != "task-1" {
		t.Errorf("unexpected event: %+v", received)
	}
}
