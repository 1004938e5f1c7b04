// Bot de carga: conecta, cria ou aceita uma partida e joga lances legais
// aleatórios até o match acabar. Útil para exercitar o servidor de sessão
// com tráfego realista.
package main

import (
	"encoding/json"
	"log"
	"math/rand"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"dechecs/internal/network"
	"dechecs/internal/session/message"
)

const defaultServerAddr = "localhost:8080"

type bot struct {
	conn   *websocket.Conn
	colour int
}

func main() {
	addr := os.Getenv("SESSION_ADDR")
	if addr == "" {
		addr = defaultServerAddr
	}

	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Falha ao conectar em %s: %v", u.String(), err)
	}
	defer conn.Close()

	b := &bot{conn: conn, colour: -1}

	// Aceita uma partida existente se o ID vier por ambiente; senão cria.
	if gameID := os.Getenv("ACCEPT_GAME_ID"); gameID != "" {
		b.send(network.EventAcceptGame, map[string]string{
			"gameId":     gameID,
			"walletAddr": "0x0000000000000000000000000000000000000b07",
		})
	} else {
		b.send(network.EventCreate, map[string]any{
			"timeControl": 3,
			"wager":       0.0,
			"walletAddr":  "0x0000000000000000000000000000000000000b07",
			"nRounds":     1,
		})
	}

	b.run()
}

func (b *bot) run() {
	for {
		var msg network.Message
		if err := b.conn.ReadJSON(&msg); err != nil {
			log.Printf("Conexão encerrada: %v", err)
			return
		}

		switch msg.Type {
		case message.EventGameID:
			var p struct {
				GameID string `json:"gameId"`
			}
			json.Unmarshal(msg.Payload, &p)
			log.Printf("Partida criada: %s (exporte ACCEPT_GAME_ID=%s no oponente)", p.GameID, p.GameID)

		case message.EventStart:
			var snap message.GameSnapshot
			if err := json.Unmarshal(msg.Payload, &snap); err != nil {
				continue
			}
			b.colour = snap.Colour
			log.Printf("Rodada %d começou, jogando de %d", snap.Round, snap.Colour)
			if snap.Turn == b.colour {
				// Primeiro lance da rodada: qualquer abertura do nosso lado serve.
				moves := openersFor(b.colour)
				b.send(network.EventMove, map[string]string{"move": moves[rand.Intn(len(moves))]})
			}

		case message.EventMove:
			var mv message.MoveData
			if err := json.Unmarshal(msg.Payload, &mv); err != nil {
				continue
			}
			if mv.Turn != b.colour || len(mv.LegalMoves) == 0 {
				continue
			}
			// Um jogador real pensa; o bot só finge.
			time.Sleep(time.Duration(200+rand.Intn(800)) * time.Millisecond)
			b.send(network.EventMove, map[string]string{
				"move": mv.LegalMoves[rand.Intn(len(mv.LegalMoves))],
			})

		case message.EventMatchOver:
			var over message.MatchOverData
			json.Unmarshal(msg.Payload, &over)
			log.Printf("Match encerrado: vencedor=%d placar=%v tx=%s", over.Winner, over.MatchScore, over.TxHash)
			b.send(network.EventExit, nil)
			return

		case message.EventError:
			log.Printf("Erro do servidor: %s", string(msg.Payload))
		}
	}
}

var (
	whiteOpeners = []string{"e2e4", "d2d4", "g1f3", "c2c4"}
	blackOpeners = []string{"e7e5", "d7d5", "g8f6", "c7c5"}
)

// Rodadas ímpares começam com as pretas; a abertura tem de vir do lado certo.
func openersFor(colour int) []string {
	if colour == 1 {
		return whiteOpeners
	}
	return blackOpeners
}

func (b *bot) send(eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Falha ao montar %s: %v", eventType, err)
		return
	}
	if err := b.conn.WriteJSON(network.Message{Type: eventType, Payload: raw}); err != nil {
		log.Printf("Falha ao enviar %s: %v", eventType, err)
	}
}
