package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oktel-workforce/internal/broadcast"
	"oktel-workforce/internal/model"
)

type feedMessage struct {
	Type     string          `json:"type"`
	Topic    string          `json:"topic"`
	WorkerID string          `json:"workerId"`
	Payload  json.RawMessage `json:"payload"`
}

func (ts *testServer) dial(t *testing.T, tok string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws?token=" + tok
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, cmd feedCommand) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(cmd))
}

func next(t *testing.T, conn *websocket.Conn) feedMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg feedMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// nextOfType skips messages until one of type typ arrives.
func nextOfType(t *testing.T, conn *websocket.Conn, typ string) feedMessage {
	t.Helper()
	for {
		msg := next(t, conn)
		if msg.Type == typ {
			return msg
		}
	}
}

func TestFeedRequiresToken(t *testing.T) {
	ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFeedDeliversRemovalToOwner(t *testing.T) {
	ts := newTestServer(t)
	manager := token(t, "m1", model.RoleManager)

	conn := ts.dial(t, token(t, "w1", model.RoleWorker))
	send(t, conn, feedCommand{Action: "subscribe", WorkerID: "w1"})
	ack := next(t, conn)
	assert.Equal(t, "subscribed", ack.Type)
	assert.Equal(t, broadcast.WorkerTopic("w1"), ack.Topic)

	resp, data := ts.do(http.MethodPost, "/employee-shifts/assign", manager,
		map[string]any{"workerId": "w1", "date": "2025-01-13", "startTime": "09:00", "endTime": "17:00"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	var entry model.ScheduleEntry
	require.NoError(t, json.Unmarshal(data, &entry))

	created := nextOfType(t, conn, string(model.EventAssignedShiftCreated))
	assert.Equal(t, "w1", created.WorkerID)

	resp, _ = ts.do(http.MethodDelete, "/employee-shifts/"+entry.ID.Hex(), manager, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	deleted := nextOfType(t, conn, string(model.EventAssignedShiftDeleted))
	var ref model.DeletedRef
	require.NoError(t, json.Unmarshal(deleted.Payload, &ref))
	assert.Equal(t, entry.ID.Hex(), ref.ID)
}

func TestFeedIgnoresForbiddenSubscriptions(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, token(t, "w1", model.RoleWorker))

	send(t, conn, feedCommand{Action: "subscribe", WorkerID: "w2"})
	send(t, conn, feedCommand{Action: "subscribe", Topic: broadcast.ManagersTopic})
	send(t, conn, feedCommand{Action: "dance", WorkerID: "w1"})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	send(t, conn, feedCommand{Action: "subscribe", WorkerID: "w1"})

	// Commands are handled in order, so the first reply answers the last command.
	ack := next(t, conn)
	assert.Equal(t, "subscribed", ack.Type)
	assert.Equal(t, broadcast.WorkerTopic("w1"), ack.Topic)
	assert.Equal(t, 0, ts.hub.Subscribers(broadcast.WorkerTopic("w2")))
	assert.Equal(t, 0, ts.hub.Subscribers(broadcast.ManagersTopic))

	resp, _ := ts.do(http.MethodPost, "/shifts/check-in", token(t, "w2", model.RoleWorker), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = ts.do(http.MethodPost, "/shifts/check-in", token(t, "w1", model.RoleWorker), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	msg := next(t, conn)
	assert.Equal(t, string(model.EventSessionCreated), msg.Type)
	assert.Equal(t, "w1", msg.WorkerID)
}

func TestFeedManagerFollowsEveryone(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, token(t, "m1", model.RoleManager))

	send(t, conn, feedCommand{Action: "subscribe", Topic: broadcast.ManagersTopic})
	ack := next(t, conn)
	assert.Equal(t, broadcast.ManagersTopic, ack.Topic)

	ts.registerSite(t, "Main Office")
	assert.Equal(t, string(model.EventLocationsUpdated), next(t, conn).Type)

	resp, _ := ts.do(http.MethodPost, "/shifts/check-in", token(t, "w7", model.RoleWorker), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	msg := next(t, conn)
	assert.Equal(t, string(model.EventSessionCreated), msg.Type)
	assert.Equal(t, "w7", msg.WorkerID)

	send(t, conn, feedCommand{Action: "unsubscribe", Topic: broadcast.ManagersTopic})
	ack = next(t, conn)
	assert.Equal(t, "unsubscribed", ack.Type)
	assert.Equal(t, 0, ts.hub.Subscribers(broadcast.ManagersTopic))
}

func TestFeedDisconnectPurgesSubscription(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, token(t, "w1", model.RoleWorker))
	send(t, conn, feedCommand{Action: "subscribe", WorkerID: "w1"})
	next(t, conn)
	require.Equal(t, 1, ts.hub.Subscribers(broadcast.WorkerTopic("w1")))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return ts.hub.Subscribers(broadcast.WorkerTopic("w1")) == 0 &&
			ts.hub.Subscribers(broadcast.LocationsTopic) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFeedClosesOnShutdown(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, token(t, "w1", model.RoleWorker))
	send(t, conn, feedCommand{Action: "subscribe", WorkerID: "w1"})
	next(t, conn)

	ts.handler.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
