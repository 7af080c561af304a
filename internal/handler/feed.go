package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"oktel-workforce/internal/broadcast"
	"oktel-workforce/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browsers connect from the UI origin; the bearer token is what authorizes the feed.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// feedCommand is a control message sent by the client.
type feedCommand struct {
	Action   string `json:"action"`
	WorkerID string `json:"workerId"`
	Topic    string `json:"topic"`
}

// feedAck confirms a subscription change. Refused requests get no reply.
type feedAck struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

// handleFeed serves the real-time event stream. Each connection is one subscription:
// it starts on the locations topic and grows as the client subscribes to workers or to
// the managers topic. The subscription is purged when the connection ends.
func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	actor, _ := identityFromContext(r.Context())
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "request_id", requestID(r.Context()), "error", err)
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe(broadcast.LocationsTopic)
	defer h.hub.Unsubscribe(sub)
	slog.Info("feed connected", "subscription", sub.ID, "worker_id", actor.WorkerID, "role", actor.Role)

	acks := make(chan feedAck, 8)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		h.readFeed(conn, sub, actor, acks)
	}()

	h.writeFeed(conn, sub, acks, readDone)
	// Unblock the reader if the writer stopped first, then wait for it.
	conn.Close()
	<-readDone
	slog.Info("feed disconnected", "subscription", sub.ID, "worker_id", actor.WorkerID)
}

func (h *Handler) readFeed(conn *websocket.Conn, sub *broadcast.Subscription, actor model.Identity, acks chan<- feedAck) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Warn("feed read failed", "subscription", sub.ID, "error", err)
			}
			return
		}
		var cmd feedCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			slog.Debug("ignoring malformed feed command", "subscription", sub.ID, "error", err)
			continue
		}
		topic, ok := feedTopic(actor, cmd)
		if !ok {
			slog.Warn("feed subscription refused", "subscription", sub.ID, "worker_id", actor.WorkerID, "action", cmd.Action, "target", cmd.WorkerID+cmd.Topic)
			continue
		}
		var ack feedAck
		switch strings.ToLower(cmd.Action) {
		case "subscribe":
			h.hub.AddTopic(sub, topic)
			ack = feedAck{Type: "subscribed", Topic: topic}
		case "unsubscribe":
			h.hub.RemoveTopic(sub, topic)
			ack = feedAck{Type: "unsubscribed", Topic: topic}
		}
		select {
		case acks <- ack:
		default:
		}
	}
}

// feedTopic maps a command to the topic it targets, or false if actor may not use it.
// Workers may follow only themselves; managers may follow any worker and the managers topic.
func feedTopic(actor model.Identity, cmd feedCommand) (string, bool) {
	switch strings.ToLower(cmd.Action) {
	case "subscribe", "unsubscribe":
	default:
		return "", false
	}
	switch {
	case cmd.WorkerID != "":
		if !actor.CanRead(cmd.WorkerID) {
			return "", false
		}
		return broadcast.WorkerTopic(cmd.WorkerID), true
	case cmd.Topic == broadcast.ManagersTopic:
		return broadcast.ManagersTopic, actor.IsManager()
	case cmd.Topic == broadcast.LocationsTopic:
		return broadcast.LocationsTopic, true
	}
	return "", false
}

// writeFeed is the connection's only writer.
func (h *Handler) writeFeed(conn *websocket.Conn, sub *broadcast.Subscription, acks <-chan feedAck, readDone <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(v any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(v); err != nil {
			slog.Warn("feed write failed", "subscription", sub.ID, "error", err)
			return false
		}
		return true
	}

	for {
		select {
		case <-readDone:
			return
		case <-h.closing:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case ack := <-acks:
			if !write(ack) {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if !write(ev) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
