package mattermost

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"oktel-workforce/internal/broadcast"
	"oktel-workforce/internal/i18n"
	"oktel-workforce/internal/model"
)

func TestMain(m *testing.M) {
	if err := i18n.Init("en"); err != nil {
		panic(err)
	}
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

type fakeServer struct {
	mu    sync.Mutex
	posts []Post
	auth  []string
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v4/posts", func(w http.ResponseWriter, r *http.Request) {
		var p Post
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.posts = append(f.posts, p)
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		f.mu.Unlock()
		p.ID = "post1"
		_ = json.NewEncoder(w).Encode(p)
	})
	mux.HandleFunc("GET /api/v4/channels/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "managers" {
			http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(ChannelInfo{ID: "managers", Name: "managers", TeamID: "t1"})
	})
	return mux
}

func (f *fakeServer) snapshot() []Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Post(nil), f.posts...)
}

func closedSession() *model.Session {
	in := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	return &model.Session{
		WorkerID: "w1",
		CheckIn:  model.Punch{Time: in, SiteName: "Main Office"},
		CheckOut: &model.Punch{Time: in.Add(8 * time.Hour)},
	}
}

func TestNotifyCheckInAndOut(t *testing.T) {
	fake := &fakeServer{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	n := NewNotifier(NewClient(srv.URL, "bot-token"), "managers", "en")
	ctx := context.Background()

	session := closedSession()
	view := model.NewSessionView(session, time.UTC)
	require.NoError(t, n.Notify(ctx, model.Event{Type: model.EventSessionCreated, WorkerID: "w1", Payload: view}))
	require.NoError(t, n.Notify(ctx, model.Event{Type: model.EventSessionUpdated, WorkerID: "w1", Payload: view}))
	require.NoError(t, n.Notify(ctx, model.Event{Type: model.EventAssignedShiftDeleted, WorkerID: "w1"}))

	posts := fake.snapshot()
	require.Len(t, posts, 2)
	assert.Equal(t, "managers", posts[0].ChannelID)
	assert.Equal(t, "w1 checked in at 2025-01-10 09:00 AM (Main Office)", posts[0].Message)
	assert.Equal(t, "w1 checked out at 2025-01-10 05:00 PM (no registered location), 8.00 h", posts[1].Message)
	assert.Equal(t, "Bearer bot-token", fake.auth[0])
}

func TestNotifyDecodesRelayedPayload(t *testing.T) {
	fake := &fakeServer{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	n := NewNotifier(NewClient(srv.URL, "bot-token"), "managers", "vi")

	data, err := json.Marshal(model.NewSessionView(closedSession(), time.UTC))
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))

	require.NoError(t, n.Notify(context.Background(), model.Event{Type: model.EventSessionCreated, Payload: generic}))
	posts := fake.snapshot()
	require.Len(t, posts, 1)
	assert.Equal(t, "w1 đã check-in lúc 2025-01-10 09:00 AM (Main Office)", posts[0].Message)

	err = n.Notify(context.Background(), model.Event{Type: model.EventSessionCreated, Payload: "garbage"})
	assert.Error(t, err)
}

func TestNotifyReportsAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()
	n := NewNotifier(NewClient(srv.URL, "bad"), "managers", "en")

	err := n.Notify(context.Background(), model.Event{Type: model.EventSessionCreated, Payload: model.NewSessionView(closedSession(), time.UTC)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api error 401")
}

func TestRunFollowsManagersTopic(t *testing.T) {
	fake := &fakeServer{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	hub := broadcast.NewHub(8, nil)
	n := NewNotifier(NewClient(srv.URL, "bot-token"), "managers", "en")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx, hub)
		close(done)
	}()

	require.Eventually(t, func() bool { return hub.Subscribers(broadcast.ManagersTopic) == 1 }, time.Second, 5*time.Millisecond)
	broadcast.Emit(hub, model.Event{Type: model.EventSessionCreated, WorkerID: "w1", Payload: model.NewSessionView(closedSession(), time.UTC)})
	assert.Eventually(t, func() bool { return len(fake.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Zero(t, hub.Subscribers(broadcast.ManagersTopic))
}

// fanOut stands in for the redis relay: the publishing instance's hub gets the event
// as is, every other hub gets it marked as relayed.
type fanOut struct {
	origin *broadcast.Hub
	others []*broadcast.Hub
}

func (f fanOut) Publish(topic string, ev model.Event) {
	f.origin.Publish(topic, ev)
	for _, h := range f.others {
		relayed := ev
		relayed.Relayed = true
		h.Publish(topic, relayed)
	}
}

func TestOnePostPerCheckInAcrossInstances(t *testing.T) {
	fake := &fakeServer{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	hubs := []*broadcast.Hub{broadcast.NewHub(8, nil), broadcast.NewHub(8, nil)}
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, hub := range hubs {
		n := NewNotifier(NewClient(srv.URL, "bot-token"), "managers", "en")
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Run(ctx, hub)
		}()
		require.Eventually(t, func() bool { return hub.Subscribers(broadcast.ManagersTopic) == 1 }, time.Second, 5*time.Millisecond)
	}

	pub := fanOut{origin: hubs[0], others: hubs[1:]}
	broadcast.Emit(pub, model.Event{Type: model.EventSessionCreated, WorkerID: "w1", Payload: model.NewSessionView(closedSession(), time.UTC)})

	require.Eventually(t, func() bool { return len(fake.snapshot()) >= 1 }, time.Second, 5*time.Millisecond)
	// A local event on the second instance queues behind the relayed one, so once it
	// is posted the relayed one has been handled too.
	broadcast.Emit(hubs[1], model.Event{Type: model.EventSessionCreated, WorkerID: "w2", Payload: model.NewSessionView(closedSession(), time.UTC)})
	require.Eventually(t, func() bool { return len(fake.snapshot()) >= 2 }, time.Second, 5*time.Millisecond)
	assert.Len(t, fake.snapshot(), 2)

	cancel()
	wg.Wait()
}

func TestGetChannel(t *testing.T) {
	srv := httptest.NewServer((&fakeServer{}).handler())
	defer srv.Close()
	c := NewClient(srv.URL, "bot-token")

	info, err := c.GetChannel(context.Background(), "managers")
	require.NoError(t, err)
	assert.Equal(t, "t1", info.TeamID)

	_, err = c.GetChannel(context.Background(), "missing")
	assert.Error(t, err)
}
