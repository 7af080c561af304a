package mattermost

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"oktel-workforce/internal/broadcast"
	"oktel-workforce/internal/i18n"
	"oktel-workforce/internal/model"
)

const (
	colorCheckIn  = "#2e7d32"
	colorCheckOut = "#1565c0"
)

// Notifier posts check-in and check-out lines to a managers' channel.
type Notifier struct {
	client    *Client
	channelID string
	locale    string
}

func NewNotifier(client *Client, channelID, locale string) *Notifier {
	return &Notifier{client: client, channelID: channelID, locale: locale}
}

// Run follows the managers topic until ctx is done. Events relayed from other instances
// are skipped, since their own notifier posts them. Posting failures are logged and
// never reach the request that produced the event.
func (n *Notifier) Run(ctx context.Context, hub *broadcast.Hub) {
	sub := hub.Subscribe(broadcast.ManagersTopic)
	defer hub.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.Relayed {
				continue
			}
			if err := n.Notify(ctx, ev); err != nil && ctx.Err() == nil {
				slog.Warn("mattermost notify failed", "event", ev.Type, "worker_id", ev.WorkerID, "error", err)
			}
		}
	}
}

// Notify posts ev if it is an attendance punch; other events are ignored.
func (n *Notifier) Notify(ctx context.Context, ev model.Event) error {
	post, ok, err := n.render(ev)
	if err != nil || !ok {
		return err
	}
	_, err = n.client.CreatePost(ctx, post)
	return err
}

func (n *Notifier) render(ev model.Event) (*Post, bool, error) {
	if ev.Type != model.EventSessionCreated && ev.Type != model.EventSessionUpdated {
		return nil, false, nil
	}
	view, err := sessionView(ev.Payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode %s payload: %w", ev.Type, err)
	}

	site := func(p model.Punch) string {
		if p.SiteName != "" {
			return p.SiteName
		}
		return i18n.Translate(n.locale, "notify.unknown_site")
	}

	var msg, color string
	if ev.Type == model.EventSessionCreated {
		msg = i18n.Translate(n.locale, "notify.checked_in", map[string]any{
			"WorkerID": view.WorkerID,
			"Time":     view.CheckInDate + " " + view.CheckInClock,
			"Site":     site(view.CheckIn),
		})
		color = colorCheckIn
	} else {
		if view.CheckOut == nil {
			return nil, false, nil
		}
		msg = i18n.Translate(n.locale, "notify.checked_out", map[string]any{
			"WorkerID": view.WorkerID,
			"Time":     view.CheckOutDate + " " + view.CheckOutClock,
			"Site":     site(*view.CheckOut),
			"Hours":    fmt.Sprintf("%.2f", view.Hours),
		})
		color = colorCheckOut
	}

	return &Post{
		ChannelID: n.channelID,
		Message:   msg,
		Props:     Props{Attachments: []Attachment{{Color: color}}},
	}, true, nil
}

// sessionView accepts the payload both as published locally and after a trip through
// the redis relay, where it arrives as a generic JSON object.
func sessionView(payload any) (model.SessionView, error) {
	switch v := payload.(type) {
	case model.SessionView:
		if v.Session == nil {
			return v, fmt.Errorf("empty session")
		}
		return v, nil
	case *model.SessionView:
		if v == nil || v.Session == nil {
			return model.SessionView{}, fmt.Errorf("empty session")
		}
		return *v, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return model.SessionView{}, err
	}
	var view model.SessionView
	if err := json.Unmarshal(data, &view); err != nil {
		return model.SessionView{}, err
	}
	if view.Session == nil || view.WorkerID == "" {
		return model.SessionView{}, fmt.Errorf("empty session")
	}
	return view, nil
}
