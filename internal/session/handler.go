package session

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"dechecs/internal/game"
	"dechecs/internal/network"
	"dechecs/internal/services/broker"
	"dechecs/internal/session/message"
	"dechecs/internal/stats"
)

// Payloads dos eventos de entrada. Campos ausentes viram zero e são
// validados pelos controllers.
type createPayload struct {
	TimeControl int     `json:"timeControl"`
	Wager       float64 `json:"wager"`
	WalletAddr  string  `json:"walletAddr"`
	NRounds     int     `json:"nRounds"`
}

type cancelPayload struct {
	CreatedOnContract bool `json:"createdOnContract"`
}

type gameDetailsPayload struct {
	GameID string `json:"gameId"`
}

type acceptGamePayload struct {
	GameID     string `json:"gameId"`
	WalletAddr string `json:"walletAddr"`
}

type movePayload struct {
	Move string `json:"move"`
}

type flagPayload struct {
	FlaggedSide int `json:"flaggedSide"` // 0 pretas, 1 brancas.
}

// faultEvent é o payload publicado no broker quando um handler falha de
// verdade (pânico ou erro inesperado), para observabilidade externa.
type faultEvent struct {
	ConnID string `json:"connId"`
	Event  string `json:"event"`
	Error  string `json:"error"`
}

// GameHandler implementa network.EventHandler: roteia cada evento do
// protocolo para o controller certo e devolve mensagens aos clientes.
// Também implementa Emitter para os controllers.
type GameHandler struct {
	games  *GameController
	play   *PlayController
	broker Publisher
	log    *zap.SugaredLogger

	mu      sync.RWMutex
	clients map[string]*network.Client
}

func NewGameHandler(games *GameController, play *PlayController, pub Publisher, log *zap.SugaredLogger) *GameHandler {
	return &GameHandler{
		games:   games,
		play:    play,
		broker:  pub,
		log:     log,
		clients: make(map[string]*network.Client),
	}
}

func (h *GameHandler) OnConnect(c *network.Client) {
	h.mu.Lock()
	h.clients[c.ID()] = c
	h.mu.Unlock()

	stats.ConnectionsTotal.Inc()
	h.log.Infof("Cliente %s conectado", c.ID())
}

func (h *GameHandler) OnDisconnect(c *network.Client) {
	h.mu.Lock()
	delete(h.clients, c.ID())
	h.mu.Unlock()

	h.log.Infof("Cliente %s desconectado", c.ID())
	go func() {
		defer h.recoverFault(c.ID(), "disconnect")
		if err := h.games.HandleExit(context.Background(), c.ID()); err != nil {
			h.fault(c.ID(), "disconnect", err)
		}
	}()
}

// OnMessage despacha cada evento em goroutine própria: partidas distintas
// nunca se bloqueiam, e a serialização por partida fica a cargo do registry.
func (h *GameHandler) OnMessage(c *network.Client, msg network.Message) {
	go h.dispatch(c.ID(), msg)
}

func (h *GameHandler) dispatch(connID string, msg network.Message) {
	defer h.recoverFault(connID, msg.Type)
	ctx := context.Background()

	var err error
	switch msg.Type {
	case network.EventCreate:
		var p createPayload
		if err = decode(msg.Payload, &p); err == nil {
			err = h.games.Create(ctx, connID, p.TimeControl, p.Wager, p.WalletAddr, p.NRounds)
		}

	case network.EventCancel:
		var p cancelPayload
		if err = decode(msg.Payload, &p); err == nil {
			err = h.games.CancelGame(ctx, connID, p.CreatedOnContract)
		}

	case network.EventGetGameDetails:
		var p gameDetailsPayload
		if err = decode(msg.Payload, &p); err == nil {
			err = h.games.GetGameDetails(ctx, connID, p.GameID)
		}

	case network.EventAcceptGame:
		var p acceptGamePayload
		if err = decode(msg.Payload, &p); err == nil {
			err = h.games.AcceptGame(ctx, connID, p.GameID, p.WalletAddr)
		}

	case network.EventMove:
		var p movePayload
		if err = decode(msg.Payload, &p); err == nil {
			err = h.play.Move(ctx, connID, p.Move)
		}

	case network.EventOfferDraw:
		err = h.play.OfferDraw(ctx, connID)

	case network.EventAcceptDraw:
		err = h.play.AcceptDraw(ctx, connID)

	case network.EventResign:
		err = h.play.Resign(ctx, connID)

	case network.EventFlag:
		var p flagPayload
		if err = decode(msg.Payload, &p); err == nil {
			err = h.play.Flag(ctx, connID, game.Colour(p.FlaggedSide))
		}

	case network.EventOfferRematch:
		err = h.games.OfferRematch(ctx, connID)

	case network.EventAcceptRematch:
		err = h.games.AcceptRematch(ctx, connID)

	case network.EventExit:
		err = h.games.HandleExit(ctx, connID)

	default:
		err = fmt.Errorf("%w: unknown event %q", ErrBadPayload, msg.Type)
	}

	if err == nil {
		return
	}
	if isExpected(err) {
		h.Emit(connID, message.Error(err.Error()))
		return
	}
	h.fault(connID, msg.Type, err)
}

// Emit entrega a mensagem sem bloquear. Um cliente com buffer de envio
// cheio perde a mensagem em vez de travar a partida dos outros.
func (h *GameHandler) Emit(connID string, msg network.Message) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case c.Send() <- msg:
	default:
		h.log.Warnf("Buffer de envio cheio, mensagem %s descartada para %s", msg.Type, connID)
	}
}

// fault trata um erro real: o cliente de origem recebe um aviso genérico
// e o incidente vai para o broker; os demais jogadores não são afetados.
func (h *GameHandler) fault(connID, event string, err error) {
	h.log.Errorf("Falha no evento %s de %s: %v", event, connID, err)
	stats.FaultsTotal.Inc()
	h.Emit(connID, message.Error("Internal server error"))
	if pubErr := h.broker.Publish(broker.TopicFault, faultEvent{
		ConnID: connID,
		Event:  event,
		Error:  err.Error(),
	}); pubErr != nil {
		h.log.Warnf("Falha ao publicar evento de falha no broker: %v", pubErr)
	}
}

func (h *GameHandler) recoverFault(connID, event string) {
	if r := recover(); r != nil {
		h.log.Errorf("Pânico no evento %s de %s: %v\n%s", event, connID, r, debug.Stack())
		h.fault(connID, event, fmt.Errorf("panic: %v", r))
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", ErrBadPayload)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}
