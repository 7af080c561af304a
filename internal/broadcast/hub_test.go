package broadcast

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oktel-workforce/internal/metrics"
	"oktel-workforce/internal/model"
)

func event(typ model.EventType, workerID string, n int) model.Event {
	return model.Event{Type: typ, WorkerID: workerID, Payload: n, At: time.Now()}
}

func TestPublishReachesEverySubscriberOfTopic(t *testing.T) {
	hub := NewHub(8, metrics.New())
	tab1 := hub.Subscribe(WorkerTopic("w1"))
	tab2 := hub.Subscribe(WorkerTopic("w1"))
	other := hub.Subscribe(WorkerTopic("w2"))
	defer hub.Unsubscribe(tab1)
	defer hub.Unsubscribe(tab2)
	defer hub.Unsubscribe(other)

	hub.Publish(WorkerTopic("w1"), event(model.EventSessionCreated, "w1", 1))

	for _, sub := range []*Subscription{tab1, tab2} {
		select {
		case ev := <-sub.Events():
			assert.Equal(t, model.EventSessionCreated, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
	assert.Empty(t, other.Events())
}

func TestPublishIsFIFOPerSubscriber(t *testing.T) {
	hub := NewHub(100, nil)
	sub := hub.Subscribe("t")
	defer hub.Unsubscribe(sub)

	for i := 0; i < 50; i++ {
		hub.Publish("t", event(model.EventSessionUpdated, "", i))
	}
	for i := 0; i < 50; i++ {
		ev := <-sub.Events()
		assert.Equal(t, i, ev.Payload)
	}
}

func TestFullQueueDropsInsteadOfBlocking(t *testing.T) {
	m := metrics.New()
	hub := NewHub(2, m)
	slow := hub.Subscribe("t")
	defer hub.Unsubscribe(slow)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			hub.Publish("t", event(model.EventSessionUpdated, "", i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BroadcastDelivered))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.BroadcastDropped))
	assert.Equal(t, 0, (<-slow.Events()).Payload)
	assert.Equal(t, 1, (<-slow.Events()).Payload)
}

func TestUnsubscribePurgesAndCloses(t *testing.T) {
	m := metrics.New()
	hub := NewHub(4, m)
	sub := hub.Subscribe("a", "b")
	assert.Equal(t, 1, hub.Subscribers("a"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Subscribers))

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)
	assert.Zero(t, hub.Subscribers("a"))
	assert.Zero(t, hub.Subscribers("b"))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Subscribers))

	_, ok := <-sub.Events()
	assert.False(t, ok)

	// Publishing to a topic with no subscribers and adding topics after close are no-ops.
	hub.Publish("a", event(model.EventSessionDeleted, "", 0))
	hub.AddTopic(sub, "c")
	assert.Zero(t, hub.Subscribers("c"))
}

func TestAddRemoveTopic(t *testing.T) {
	hub := NewHub(4, nil)
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	hub.AddTopic(sub, ManagersTopic)
	hub.Publish(ManagersTopic, event(model.EventSessionCreated, "w1", 1))
	require.Len(t, sub.Events(), 1)
	<-sub.Events()

	hub.RemoveTopic(sub, ManagersTopic)
	hub.Publish(ManagersTopic, event(model.EventSessionCreated, "w1", 2))
	assert.Empty(t, sub.Events())
}

func TestEmitRoutesByEventKind(t *testing.T) {
	hub := NewHub(4, nil)
	worker := hub.Subscribe(WorkerTopic("w1"))
	managers := hub.Subscribe(ManagersTopic)
	locations := hub.Subscribe(LocationsTopic)
	defer hub.Unsubscribe(worker)
	defer hub.Unsubscribe(managers)
	defer hub.Unsubscribe(locations)

	Emit(hub, model.Event{Type: model.EventAssignedShiftDeleted, WorkerID: "w1", Payload: model.DeletedRef{ID: "e1"}})
	Emit(hub, model.Event{Type: model.EventLocationsUpdated})

	assert.Len(t, worker.Events(), 1)
	assert.Len(t, managers.Events(), 1)
	assert.Len(t, locations.Events(), 1)
	ev := <-worker.Events()
	assert.Equal(t, model.DeletedRef{ID: "e1"}, ev.Payload)
}

func TestConcurrentSubscribePublish(t *testing.T) {
	hub := NewHub(1000, metrics.New())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub := hub.Subscribe(fmt.Sprintf("t%d", i%3))
			for j := 0; j < 10; j++ {
				hub.Publish(fmt.Sprintf("t%d", j%3), event(model.EventSessionUpdated, "", j))
			}
			hub.Unsubscribe(sub)
		}(i)
	}
	wg.Wait()
	for i := 0; i < 3; i++ {
		assert.Zero(t, hub.Subscribers(fmt.Sprintf("t%d", i)))
	}
}
