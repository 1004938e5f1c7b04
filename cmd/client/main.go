// Cliente de terminal para o servidor de sessão. Conecta no WebSocket,
// traduz comandos digitados em eventos do protocolo e imprime tudo que o
// servidor manda. Ferramenta de desenvolvimento, não o cliente real.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"dechecs/internal/network"
)

func main() {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	addr := os.Getenv("SESSION_ADDR")
	if addr == "" {
		addr = "localhost:8080"
	}
	wallet := os.Getenv("WALLET_ADDR")
	if wallet == "" {
		wallet = "0x0000000000000000000000000000000000000001"
	}

	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	log.Printf("Conectando em %s", u.String())
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Falha ao conectar: %v", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg network.Message
			if err := conn.ReadJSON(&msg); err != nil {
				log.Printf("Conexão encerrada: %v", err)
				return
			}
			fmt.Printf("<< %s %s\n", msg.Type, string(msg.Payload))
		}
	}()

	go inputLoop(conn, wallet)

	select {
	case <-done:
	case <-interrupt:
		log.Println("Interrompido, fechando conexão...")
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
}

func inputLoop(conn *websocket.Conn, wallet string) {
	fmt.Println("Comandos: create <min> <aposta> <rodadas> | cancel | details <id> | accept <id>")
	fmt.Println("          move <uci> | draw | acceptdraw | resign | flag <lado> | rematch | acceptrematch | exit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		msg, err := buildMessage(fields, wallet)
		if err != nil {
			fmt.Println("!!", err)
			continue
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("Falha de escrita: %v", err)
			return
		}
	}
}

func buildMessage(fields []string, wallet string) (network.Message, error) {
	wrap := func(eventType string, payload any) (network.Message, error) {
		raw, err := json.Marshal(payload)
		if err != nil {
			return network.Message{}, err
		}
		return network.Message{Type: eventType, Payload: raw}, nil
	}

	switch fields[0] {
	case "create":
		if len(fields) != 4 {
			return network.Message{}, fmt.Errorf("uso: create <min> <aposta> <rodadas>")
		}
		minutes, err := strconv.Atoi(fields[1])
		if err != nil {
			return network.Message{}, fmt.Errorf("minutos inválidos: %v", err)
		}
		wager, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return network.Message{}, fmt.Errorf("aposta inválida: %v", err)
		}
		rounds, err := strconv.Atoi(fields[3])
		if err != nil {
			return network.Message{}, fmt.Errorf("rodadas inválidas: %v", err)
		}
		return wrap(network.EventCreate, map[string]any{
			"timeControl": minutes,
			"wager":       wager,
			"walletAddr":  wallet,
			"nRounds":     rounds,
		})

	case "cancel":
		return wrap(network.EventCancel, map[string]any{"createdOnContract": false})

	case "details":
		if len(fields) != 2 {
			return network.Message{}, fmt.Errorf("uso: details <id>")
		}
		return wrap(network.EventGetGameDetails, map[string]string{"gameId": fields[1]})

	case "accept":
		if len(fields) != 2 {
			return network.Message{}, fmt.Errorf("uso: accept <id>")
		}
		return wrap(network.EventAcceptGame, map[string]string{
			"gameId":     fields[1],
			"walletAddr": wallet,
		})

	case "move":
		if len(fields) != 2 {
			return network.Message{}, fmt.Errorf("uso: move <uci>")
		}
		return wrap(network.EventMove, map[string]string{"move": fields[1]})

	case "draw":
		return wrap(network.EventOfferDraw, nil)
	case "acceptdraw":
		return wrap(network.EventAcceptDraw, nil)
	case "resign":
		return wrap(network.EventResign, nil)
	case "flag":
		if len(fields) != 2 {
			return network.Message{}, fmt.Errorf("uso: flag <lado: 0 pretas, 1 brancas>")
		}
		side, err := strconv.Atoi(fields[1])
		if err != nil {
			return network.Message{}, fmt.Errorf("lado inválido: %v", err)
		}
		return wrap(network.EventFlag, map[string]int{"flaggedSide": side})
	case "rematch":
		return wrap(network.EventOfferRematch, nil)
	case "acceptrematch":
		return wrap(network.EventAcceptRematch, nil)
	case "exit":
		return wrap(network.EventExit, nil)
	}

	return network.Message{}, fmt.Errorf("comando desconhecido: %s", fields[0])
}
