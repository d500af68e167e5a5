package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cardtable/blackjack-server/internal/round"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type hubEnv struct {
	hub    *Hub
	server *httptest.Server
}

func newHubEnv(t *testing.T, cfg HubConfig) *hubEnv {
	t.Helper()
	hub := NewHub(cfg, zaptest.NewLogger(t))
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(r.Context(), conn, r.URL.Query().Get("room"), r.URL.Query().Get("user"))
	}))
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return &hubEnv{hub: hub, server: server}
}

func (e *hubEnv) dial(t *testing.T, room, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/?room=" + room + "&user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestHubDeliversToRoomSubscribers(t *testing.T) {
	env := newHubEnv(t, HubConfig{})
	room := round.RoomKey("r1")

	a := env.dial(t, room, "alice")
	b := env.dial(t, room, "bob")
	other := env.dial(t, round.RoomKey("r2"), "carol")
	require.Eventually(t, func() bool { return env.hub.RoomSize(room) == 2 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return env.hub.RoomSize(round.RoomKey("r2")) == 1 }, 2*time.Second, 10*time.Millisecond)

	env.hub.Publish(context.Background(), room, round.Event{
		RoundID: "r1",
		Type:    round.EventCardDrawn,
		Payload: map[string]any{"playerId": "alice", "count": 3},
	})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readEvent(t, conn)
		assert.Equal(t, "r1", msg["round"])
		assert.Equal(t, "card_drawn", msg["type"])
		assert.Equal(t, "alice", msg["playerId"])
	}

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err, "subscribers of other rooms receive nothing")
}

func TestHubPrunesClosedConnections(t *testing.T) {
	env := newHubEnv(t, HubConfig{})
	room := round.RoomKey("r1")

	conn := env.dial(t, room, "alice")
	require.Eventually(t, func() bool { return env.hub.RoomSize(room) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return env.hub.RoomSize(room) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubCloseDisconnectsSubscribers(t *testing.T) {
	env := newHubEnv(t, HubConfig{})
	room := round.RoomKey("r1")
	conn := env.dial(t, room, "alice")
	require.Eventually(t, func() bool { return env.hub.RoomSize(room) == 1 }, 2*time.Second, 10*time.Millisecond)

	env.hub.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
	assert.Zero(t, env.hub.RoomSize(room))
}

func TestHubConfigDefaults(t *testing.T) {
	cfg := HubConfig{PingInterval: time.Minute}.withDefaults()
	assert.Equal(t, time.Minute, cfg.PingInterval)
	assert.Equal(t, 2*time.Minute, cfg.PongWait)
	assert.Equal(t, DefaultHubConfig().SendBuffer, cfg.SendBuffer)
}

type collector struct {
	mu     sync.Mutex
	rooms  []string
	events []round.Event
}

func (c *collector) Publish(_ context.Context, room string, ev round.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms = append(c.rooms, room)
	c.events = append(c.events, ev)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestAsyncDeliversEveryEvent(t *testing.T) {
	sink := &collector{}
	async, err := NewAsync(sink, 4, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 100; i++ {
		async.Publish(ctx, "game:r1", round.Event{RoundID: "r1", Type: round.EventStateChanged})
	}
	cancel()

	assert.Eventually(t, func() bool { return sink.len() == 100 }, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, async.Close(time.Second))
}

func TestMultiPublishesToAll(t *testing.T) {
	a, b := &collector{}, &collector{}
	Multi{a, b}.Publish(context.Background(), "game:x", round.Event{RoundID: "x"})
	assert.Equal(t, 1, a.len())
	assert.Equal(t, 1, b.len())
}

func TestRelayDeliversOnlyForeignMessages(t *testing.T) {
	sink := &collector{}
	relay := &RedisRelay{origin: "self", local: sink, logger: zaptest.NewLogger(t)}

	foreign, err := json.Marshal(envelope{
		Origin: "other",
		Room:   "game:r1",
		Event:  round.Event{RoundID: "r1", Type: round.EventTurnChanged, Payload: map[string]any{"turnIndex": 2}},
	})
	require.NoError(t, err)
	own, err := json.Marshal(envelope{Origin: "self", Room: "game:r1", Event: round.Event{RoundID: "r1"}})
	require.NoError(t, err)

	relay.deliver(context.Background(), string(foreign))
	relay.deliver(context.Background(), string(own))
	relay.deliver(context.Background(), "not json")

	require.Equal(t, 1, sink.len())
	assert.Equal(t, "game:r1", sink.rooms[0])
	assert.Equal(t, round.EventTurnChanged, sink.events[0].Type)
	assert.Equal(t, float64(2), sink.events[0].Payload["turnIndex"])
}
