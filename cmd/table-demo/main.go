// Command table-demo seats a group of bot players on a running server and plays one round,
// printing every push notification the table receives.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	addr    = flag.String("addr", "http://localhost:8080", "server base URL")
	players = flag.Int("players", 4, "number of bot players (4 to 6)")
	standAt = flag.Int("stand", 17, "bots stand once their total reaches this value")
)

type reply struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type bot struct {
	ID    string
	Name  string
	Token string
}

type client struct {
	base string
	http *http.Client
}

func (c *client) call(method, path, token string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var r reply
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, r.Message)
	}
	if out != nil && len(r.Data) > 0 {
		return json.Unmarshal(r.Data, out)
	}
	return nil
}

func (c *client) signUp(name string) (bot, error) {
	var s struct {
		Token string `json:"token"`
		User  struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"user"`
	}
	if err := c.call(http.MethodPost, "/api/auth/register", "", map[string]string{"name": name, "password": "demo-" + name}, &s); err != nil {
		return bot{}, err
	}
	return bot{ID: s.User.ID, Name: s.User.Name, Token: s.Token}, nil
}

type view struct {
	Game struct {
		ID       string `json:"id"`
		JoinCode string `json:"joinCode"`
		Finished bool   `json:"finished"`
		Winner   *struct {
			Name string `json:"name"`
		} `json:"winner"`
	} `json:"game"`
	Hands []struct {
		Player struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"player"`
		Total int `json:"totalValue"`
	} `json:"playerDecks"`
	IsYourTurn bool `json:"isYourTurn"`
}

func main() {
	flag.Parse()
	c := &client{base: strings.TrimRight(*addr, "/"), http: &http.Client{Timeout: 10 * time.Second}}

	suffix, err := gonanoid.Generate("abcdefghijklmnopqrstuvwxyz", 5)
	if err != nil {
		log.Fatal(err)
	}

	dealer, err := c.signUp("dealer-" + suffix)
	if err != nil {
		log.Fatalf("failed to register dealer: %v", err)
	}

	var created view
	if err := c.call(http.MethodPost, "/api/rounds", dealer.Token, nil, &created); err != nil {
		log.Fatalf("failed to create round: %v", err)
	}
	roundID := created.Game.ID
	log.Printf("round %s created, join code %s", roundID, created.Game.JoinCode)

	go watch(c.base, roundID, dealer.Token)

	bots := make([]bot, 0, *players)
	for i := 1; i <= *players; i++ {
		b, err := c.signUp(fmt.Sprintf("bot%d-%s", i, suffix))
		if err != nil {
			log.Fatalf("failed to register bot: %v", err)
		}
		if err := c.call(http.MethodPost, "/api/rounds/join/"+created.Game.JoinCode, b.Token, nil, nil); err != nil {
			log.Fatalf("%s failed to join: %v", b.Name, err)
		}
		if err := c.call(http.MethodPost, "/api/rounds/"+roundID+"/ready", b.Token, nil, nil); err != nil {
			log.Fatalf("%s failed to ready up: %v", b.Name, err)
		}
		bots = append(bots, b)
	}

	if err := c.call(http.MethodPost, "/api/rounds/"+roundID+"/start", dealer.Token, nil, nil); err != nil {
		log.Fatalf("failed to start round: %v", err)
	}

	for {
		var v view
		if err := c.call(http.MethodGet, "/api/rounds/"+roundID, dealer.Token, nil, &v); err != nil {
			log.Fatalf("failed to fetch round: %v", err)
		}
		if v.Game.Finished {
			if v.Game.Winner != nil {
				log.Printf("round finished, winner %s", v.Game.Winner.Name)
			} else {
				log.Printf("round finished without a winner")
			}
			for _, h := range v.Hands {
				log.Printf("  %-16s %d", h.Player.Name, h.Total)
			}
			return
		}
		if !play(c, roundID, bots) {
			log.Fatal("no bot holds the turn")
		}
	}
}

// play lets the bot holding the turn draw or stand once.
func play(c *client, roundID string, bots []bot) bool {
	for _, b := range bots {
		var v view
		if err := c.call(http.MethodGet, "/api/rounds/"+roundID, b.Token, nil, &v); err != nil {
			log.Fatalf("failed to fetch round: %v", err)
		}
		if !v.IsYourTurn {
			continue
		}

		var hand struct {
			Total int `json:"totalValue"`
		}
		if err := c.call(http.MethodGet, "/api/rounds/"+roundID+"/hand", b.Token, nil, &hand); err != nil {
			log.Fatalf("failed to fetch hand: %v", err)
		}
		action := "draw"
		if hand.Total >= *standAt {
			action = "stand"
		}
		if err := c.call(http.MethodPost, "/api/rounds/"+roundID+"/"+action, b.Token, nil, nil); err != nil {
			log.Fatalf("%s failed to %s: %v", b.Name, action, err)
		}
		log.Printf("%s (%d) -> %s", b.Name, hand.Total, action)
		return true
	}
	return false
}

func watch(base, roundID, token string) {
	url := "ws" + strings.TrimPrefix(base, "http") + "/api/ws/rounds/" + roundID + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Printf("push channel unavailable: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		log.Printf("📡 %s", msg)
	}
}
