package realtime

import (
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func testClient(h *Hub, buffer int) *Client {
	return &Client{
		hub:   h,
		send:  make(chan []byte, buffer),
		done:  make(chan struct{}),
		rooms: make(map[string]struct{}),
	}
}

func TestHub_BroadcastDeliversOncePerClient(t *testing.T) {
	t.Parallel()

	h := NewHub(nil, 8, HubMetrics{})
	c := testClient(h, 8)
	h.register(c)
	h.join(c, RoomAdmin)
	h.join(c, RoomOrder(5))

	h.Broadcast(TypeSearchingForCourier, SearchingForCourier{OrderID: 5}, RoomOrder(5), RoomAdmin)

	require.Len(t, c.send, 1)
	var env Envelope
	require.NoError(t, json.Unmarshal(<-c.send, &env))
	require.Equal(t, TypeSearchingForCourier, env.Type)
	require.JSONEq(t, `{"order_id":5}`, string(env.Data))
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	t.Parallel()

	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "dropped_test"}, []string{"reason"})
	conns := prometheus.NewGauge(prometheus.GaugeOpts{Name: "conns_test"})
	h := NewHub(nil, 1, HubMetrics{Connections: conns, Dropped: dropped})
	slow := testClient(h, 1)
	fast := testClient(h, 4)
	for _, c := range []*Client{slow, fast} {
		h.register(c)
		h.join(c, RoomCourier(1))
	}
	require.Equal(t, 2.0, testutil.ToFloat64(conns))

	h.Broadcast(TypeOfferRevoked, OfferRevoked{OrderID: 1}, RoomCourier(1))
	h.Broadcast(TypeOfferRevoked, OfferRevoked{OrderID: 2}, RoomCourier(1))

	select {
	case <-slow.done:
	default:
		t.Fatal("slow client still connected")
	}
	require.Len(t, fast.send, 2)
	require.Equal(t, 1, h.Members(RoomCourier(1)))
	require.Equal(t, 1.0, testutil.ToFloat64(dropped.WithLabelValues("overflow")))
	require.Equal(t, 1.0, testutil.ToFloat64(conns))
}

func TestHub_LeaveAndUnregister(t *testing.T) {
	t.Parallel()

	h := NewHub(nil, 0, HubMetrics{})
	c := testClient(h, 1)
	h.register(c)
	h.join(c, RoomAdmin)
	h.join(c, RoomOrder(9))
	require.Equal(t, []string{"order:9", "role:admin"}, h.roomsOf(c))

	h.leave(c, RoomAdmin)
	require.Equal(t, 0, h.Members(RoomAdmin))

	h.unregister(c)
	require.Equal(t, 0, h.Members(RoomOrder(9)))

	// после unregister комнаты не выдаются
	h.join(c, RoomAdmin)
	require.Equal(t, 0, h.Members(RoomAdmin))
}
