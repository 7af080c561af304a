package broadcast

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oktel-workforce/internal/metrics"
	"oktel-workforce/internal/model"
)

func TestRelayFallsBackToLocalDelivery(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	hub := NewHub(4, metrics.New())
	sub := hub.Subscribe(LocationsTopic)
	defer hub.Unsubscribe(sub)

	Emit(NewRedisRelay(client, hub), model.Event{Type: model.EventLocationsUpdated, At: time.Now()})

	select {
	case ev := <-sub.Events():
		assert.Equal(t, model.EventLocationsUpdated, ev.Type)
	default:
		require.Fail(t, "event was not delivered locally")
	}
}

func TestRelayMarksEventsFromOtherInstances(t *testing.T) {
	hub := NewHub(4, metrics.New())
	sub := hub.Subscribe(ManagersTopic)
	defer hub.Unsubscribe(sub)

	local := NewRedisRelay(nil, hub)
	remote := NewRedisRelay(nil, NewHub(4, metrics.New()))
	ev := model.Event{Type: model.EventSessionCreated, WorkerID: "w1", At: time.Now()}

	local.deliver(envelope{Origin: local.origin, Topic: ManagersTopic, Event: ev})
	local.deliver(envelope{Origin: remote.origin, Topic: ManagersTopic, Event: ev})

	own := <-sub.Events()
	assert.False(t, own.Relayed)
	foreign := <-sub.Events()
	assert.True(t, foreign.Relayed)
	assert.NotEqual(t, local.origin, remote.origin)
}
