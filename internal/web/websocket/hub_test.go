package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/showroom-auto/showroom/internal/domain"
	"github.com/showroom-auto/showroom/internal/feed"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type fixture struct {
	hub    *Hub
	server *httptest.Server
	cancel context.CancelFunc
}

func newFixture(t *testing.T, config Config) *fixture {
	t.Helper()
	hub := NewHub(nil)
	snapshot := func(ctx context.Context) (any, error) {
		return map[string]int{"total_cars": 3}, nil
	}
	return startFixture(t, hub, config, snapshot)
}

func startFixture(t *testing.T, hub *Hub, config Config, snapshot SnapshotFunc) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	server := httptest.NewServer(NewHandler(hub, config, snapshot))

	f := &fixture{hub: hub, server: server, cancel: cancel}
	t.Cleanup(f.stop)
	return f
}

func (f *fixture) stop() {
	f.cancel()
	f.hub.Wait()
	f.server.Close()
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(f.server), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	snap := readFrame(t, conn)
	require.Equal(t, TypeSnapshot, snap.Type)
	return conn
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestSnapshotThenBroadcast(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, DefaultConfig())

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(f.server), nil)
	require.NoError(t, err)
	defer conn.Close()

	snap := readFrame(t, conn)
	assert.Equal(t, TypeSnapshot, snap.Type)
	assert.JSONEq(t, `{"total_cars":3}`, string(snap.Data))
	assert.Equal(t, 1, f.hub.ClientCount())
	assert.Equal(t, 1, f.hub.RoomSize(RoomActivity))
	assert.Equal(t, 1, f.hub.RoomSize(RoomInventory))

	activity := domain.NewActivity(domain.ActionCarCreated, domain.SubjectCar, "c1", "admin@example.com", "Added car")
	require.NoError(t, f.hub.Broadcast(RoomActivity, Message{Type: TypeActivity, Data: activity}))

	msg := readFrame(t, conn)
	assert.Equal(t, TypeActivity, msg.Type)
	var got domain.Activity
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, activity.ID, got.ID)

	conn.Close()
	assert.Eventually(t, func() bool { return f.hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	f.stop()
}

type recentActivity struct {
	Activities []*domain.Activity `json:"activities"`
}

func (r recentActivity) ActivityIDs() []string {
	ids := make([]string, len(r.Activities))
	for i, a := range r.Activities {
		ids[i] = a.ID.String()
	}
	return ids
}

func TestActivityPublishedWhileSnapshotIsBuilt(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(nil)
	broker := feed.NewLocalBroker(16, nil)
	defer broker.Close()

	listed := domain.NewActivity(domain.ActionCarCreated, domain.SubjectCar, "c1", "admin@example.com", "Added car")
	missed := domain.NewActivity(domain.ActionCarUpdated, domain.SubjectCar, "c1", "admin@example.com", "Updated car")

	// the snapshot query sees the first activity; both are published while it runs
	snapshot := func(ctx context.Context) (any, error) {
		assert.NoError(t, broker.Publish(ctx, feed.Event{Kind: feed.KindActivity, Activity: listed}))
		assert.NoError(t, broker.Publish(ctx, feed.Event{Kind: feed.KindActivity, Activity: missed}))
		// let the relay hand both to the hub before the greeting
		time.Sleep(50 * time.Millisecond)
		return recentActivity{Activities: []*domain.Activity{listed}}, nil
	}
	f := startFixture(t, hub, DefaultConfig(), snapshot)

	relayCtx, stopRelay := context.WithCancel(context.Background())
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		_ = hub.Relay(relayCtx, broker)
	}()
	assert.Eventually(t, func() bool { return broker.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(f.server), nil)
	require.NoError(t, err)
	defer conn.Close()

	snap := readFrame(t, conn)
	require.Equal(t, TypeSnapshot, snap.Type)
	var greeting recentActivity
	require.NoError(t, json.Unmarshal(snap.Data, &greeting))
	require.Len(t, greeting.Activities, 1)
	assert.Equal(t, listed.ID, greeting.Activities[0].ID)

	next := readFrame(t, conn)
	require.Equal(t, TypeActivity, next.Type)
	var got domain.Activity
	require.NoError(t, json.Unmarshal(next.Data, &got))
	assert.Equal(t, missed.ID, got.ID, "the activity already in the snapshot must not be repeated")

	later := domain.NewActivity(domain.ActionCarDeleted, domain.SubjectCar, "c1", "admin@example.com", "Removed car")
	require.NoError(t, broker.Publish(context.Background(), feed.Event{Kind: feed.KindActivity, Activity: later}))
	msg := readFrame(t, conn)
	require.Equal(t, TypeActivity, msg.Type)
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, later.ID, got.ID)

	conn.Close()
	stopRelay()
	<-relayDone
	f.stop()
}

func TestPingAndUnknownMessages(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, DefaultConfig())
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: TypePing}))
	assert.Equal(t, TypePong, readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "dance"}))
	errFrame := readFrame(t, conn)
	assert.Equal(t, TypeError, errFrame.Type)
	assert.Contains(t, string(errFrame.Data), "unknown message type")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, TypeError, readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: TypeSubscribe, Room: "gossip"}))
	errFrame = readFrame(t, conn)
	assert.Equal(t, TypeError, errFrame.Type)
	assert.Contains(t, string(errFrame.Data), "unknown room")

	conn.Close()
	f.stop()
}

func TestUnsubscribeStopsRoomMessages(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, DefaultConfig())
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: TypeUnsubscribe, Room: RoomActivity}))
	ack := readFrame(t, conn)
	require.Equal(t, TypeSubscribed, ack.Type)
	assert.JSONEq(t, `["inventory"]`, string(ack.Data))

	require.NoError(t, f.hub.Broadcast(RoomActivity, Message{Type: TypeActivity, Data: "skipped"}))
	require.NoError(t, f.hub.Broadcast(RoomInventory, Message{Type: TypeCarRemoved, Data: map[string]string{"id": "c1"}}))
	assert.Equal(t, TypeCarRemoved, readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: TypeSubscribe, Room: RoomActivity}))
	ack = readFrame(t, conn)
	assert.JSONEq(t, `["activity","inventory"]`, string(ack.Data))

	conn.Close()
	f.stop()
}

func TestRelayMapsFeedEventsToRooms(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, DefaultConfig())
	conn := f.dial(t)

	broker := feed.NewLocalBroker(8, nil)
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	relayed := make(chan error, 1)
	go func() { relayed <- f.hub.Relay(ctx, broker) }()
	assert.Eventually(t, func() bool { return broker.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	activity := domain.NewActivity(domain.ActionCarDeleted, domain.SubjectCar, "c9", "admin@example.com", "Removed car")
	for _, e := range feed.ActivityEvents(activity) {
		require.NoError(t, broker.Publish(ctx, e))
	}
	require.NoError(t, broker.Publish(ctx, feed.Event{Kind: feed.KindStats, Stats: &domain.Stats{TotalCars: 4}}))

	assert.Equal(t, TypeActivity, readFrame(t, conn).Type)
	removed := readFrame(t, conn)
	assert.Equal(t, TypeCarRemoved, removed.Type)
	assert.JSONEq(t, `{"id":"c9"}`, string(removed.Data))
	stats := readFrame(t, conn)
	assert.Equal(t, TypeStats, stats.Type)
	assert.Contains(t, string(stats.Data), `"total_cars":4`)

	cancel()
	assert.NoError(t, <-relayed)
	conn.Close()
	f.stop()
}

func TestRejectsForeignOrigin(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, Config{AllowedOrigins: []string{"https://admin.example.com"}})

	header := http.Header{"Origin": []string{"https://evil.example.net"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(f.server), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	header = http.Header{"Origin": []string{"https://admin.example.com"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(f.server), header)
	require.NoError(t, err)
	assert.Equal(t, TypeSnapshot, readFrame(t, conn).Type)
	conn.Close()
	f.stop()
}

func TestHubShutdownClosesClients(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, DefaultConfig())
	conn := f.dial(t)

	f.cancel()
	f.hub.Wait()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	resp, err := http.Get(f.server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()

	conn.Close()
	f.stop()
}
