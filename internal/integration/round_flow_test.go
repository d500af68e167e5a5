package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cardtable/blackjack-server/internal/auth"
	"github.com/cardtable/blackjack-server/internal/cards"
	"github.com/cardtable/blackjack-server/internal/config"
	"github.com/cardtable/blackjack-server/internal/history"
	"github.com/cardtable/blackjack-server/internal/notify"
	"github.com/cardtable/blackjack-server/internal/repository"
	"github.com/cardtable/blackjack-server/internal/round"
	"github.com/cardtable/blackjack-server/internal/server"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

type fixedShuffler []cards.ID

func (f fixedShuffler) Shuffle() []cards.ID { return append([]cards.ID(nil), f...) }

type roundEnv struct {
	server  *httptest.Server
	hub     *notify.Hub
	journal *history.Journal
	async   *notify.Async
	archive string
}

func newRoundEnv(t *testing.T, top ...cards.ID) *roundEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cfg := config.Default()
	archive := t.TempDir()

	hub := notify.NewHub(notify.HubConfig{}, logger)
	mirror := notify.NewHub(notify.HubConfig{}, logger)
	async, err := notify.NewAsync(mirror, 4, logger)
	require.NoError(t, err)

	journal := history.NewJournal(notify.Multi{hub, async}, cfg.Game.HistoryLimit, archive, logger)
	tokens, err := auth.NewTokens("integration-secret", cfg.Auth.Issuer, time.Hour)
	require.NoError(t, err)
	accounts := auth.NewRegistry(bcrypt.MinCost)

	deck := lo.Without(cards.Standard().IDs(), top...)
	svc := round.NewService(repository.NewMemoryStore(), journal, logger,
		round.WithDirectory(accounts),
		round.WithEventLog(journal),
		round.WithShuffler(fixedShuffler(append(deck, lo.Reverse(top)...))),
	)

	cfg.Server.RateLimit.RequestsPerSecond = 0
	api := server.NewHTTPServer(cfg.Server, svc, hub, tokens, accounts, logger)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		hub.Close()
		mirror.Close()
		srv.Close()
		_ = async.Close(time.Second)
	})
	return &roundEnv{server: srv, hub: hub, journal: journal, async: async, archive: archive}
}

type response struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *roundEnv) call(t *testing.T, method, path, token string, body any) response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Less(t, resp.StatusCode, 300, "%s %s: %s", method, path, out.Message)
	return out
}

type player struct {
	ID    string
	Token string
}

func (e *roundEnv) signUp(t *testing.T, name string) player {
	t.Helper()
	out := e.call(t, http.MethodPost, "/api/auth/register", "", map[string]string{"name": name, "password": "pw-" + name})
	var s struct {
		Token string        `json:"token"`
		User  auth.Identity `json:"user"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &s))
	return player{ID: s.User.UserID, Token: s.Token}
}

func (e *roundEnv) subscribe(t *testing.T, roundID string, p player) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/api/ws/rounds/" + roundID + "?token=" + p.Token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func nextEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev map[string]any
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestFullRoundFlow(t *testing.T) {
	// Deals AH KD | 2H 3H | 4H 5H | 6H 7H, totals 14, 5, 9 and 13.
	env := newRoundEnv(t, "AH", "KD", "2H", "3H", "4H", "5H", "6H", "7H")

	owner := env.signUp(t, "dealer")
	out := env.call(t, http.MethodPost, "/api/rounds", owner.Token, nil)
	var created round.View
	require.NoError(t, json.Unmarshal(out.Data, &created))
	roundID := created.Round.ID

	players := make([]player, 4)
	for i := range players {
		players[i] = env.signUp(t, fmt.Sprintf("seat%d", i+1))
		env.call(t, http.MethodPost, "/api/rounds/join/"+created.Round.JoinCode, players[i].Token, nil)
	}

	watcher := env.subscribe(t, roundID, owner)
	require.Eventually(t, func() bool { return env.hub.RoomSize(round.RoomKey(roundID)) == 1 }, 2*time.Second, 10*time.Millisecond)

	for _, p := range players {
		env.call(t, http.MethodPost, "/api/rounds/"+roundID+"/ready", p.Token, nil)
		ev := nextEvent(t, watcher)
		assert.Equal(t, "state_changed", ev["type"])
	}

	env.call(t, http.MethodPost, "/api/rounds/"+roundID+"/start", owner.Token, nil)
	ev := nextEvent(t, watcher)
	assert.Equal(t, "game_started", ev["type"])
	assert.Equal(t, players[0].ID, ev["currentPlayerId"])

	for i, p := range players {
		env.call(t, http.MethodPost, "/api/rounds/"+roundID+"/stand", p.Token, nil)
		ev := nextEvent(t, watcher)
		if i < len(players)-1 {
			assert.Equal(t, "turn_changed", ev["type"])
			assert.Equal(t, players[i+1].ID, ev["currentPlayerId"])
			continue
		}
		assert.Equal(t, "game_finished", ev["type"])
		assert.Equal(t, players[0].ID, ev["winner"])
		assert.Equal(t, "seat1", ev["winnerName"])
		assert.Equal(t, false, ev["noWinner"])
	}

	out = env.call(t, http.MethodGet, "/api/rounds/"+roundID, players[2].Token, nil)
	var finished round.View
	require.NoError(t, json.Unmarshal(out.Data, &finished))
	assert.Equal(t, "FINISHED", finished.Round.Phase)
	require.NotNil(t, finished.Round.Winner)
	assert.Equal(t, players[0].ID, finished.Round.Winner.ID)

	_, err := os.Stat(filepath.Join(env.archive, roundID+".replay"))
	require.NoError(t, err, "finished rounds are archived")

	env.call(t, http.MethodPost, "/api/rounds/"+roundID+"/restart", players[1].Token, nil)
	ev = nextEvent(t, watcher)
	assert.Equal(t, "game_reset", ev["type"])

	out = env.call(t, http.MethodGet, "/api/rounds/"+roundID, owner.Token, nil)
	var reset round.View
	require.NoError(t, json.Unmarshal(out.Data, &reset))
	assert.Equal(t, "PRE_GAME", reset.Round.Phase)
	assert.Nil(t, reset.Round.Winner)
	for _, h := range reset.Hands {
		assert.Zero(t, h.Count)
		assert.False(t, h.Ready)
	}

	out = env.call(t, http.MethodGet, "/api/rounds/"+roundID+"/history", owner.Token, nil)
	var events []map[string]any
	require.NoError(t, json.Unmarshal(out.Data, &events))
	types := lo.Map(events, func(ev map[string]any, _ int) any { return ev["type"] })
	assert.Equal(t, []any{
		"state_changed", "state_changed", "state_changed", "state_changed",
		"state_changed", "state_changed", "state_changed", "state_changed",
		"game_started",
		"turn_changed", "turn_changed", "turn_changed",
		"game_finished",
		"game_reset",
	}, types)
}

func TestArchivedHistorySurvivesEviction(t *testing.T) {
	env := newRoundEnv(t, "AH", "KD", "2H", "3H", "4H", "5H", "6H", "7H")

	owner := env.signUp(t, "dealer")
	out := env.call(t, http.MethodPost, "/api/rounds", owner.Token, nil)
	var created round.View
	require.NoError(t, json.Unmarshal(out.Data, &created))
	roundID := created.Round.ID

	p := env.signUp(t, "guest")
	env.call(t, http.MethodPost, "/api/rounds/join/"+created.Round.JoinCode, p.Token, nil)
	env.call(t, http.MethodPost, "/api/rounds/"+roundID+"/leave", p.Token, nil)

	assert.Zero(t, env.journal.Rounds(), "finished rounds are served from the archive")

	out = env.call(t, http.MethodGet, "/api/rounds/"+roundID+"/history", owner.Token, nil)
	var events []map[string]any
	require.NoError(t, json.Unmarshal(out.Data, &events))
	require.Len(t, events, 2)
	assert.Equal(t, "game_finished", events[1]["type"])
	assert.Equal(t, p.ID, events[1]["leftBy"])
}
