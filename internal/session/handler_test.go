package session

import (
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"

	"dechecs/internal/network"
	"dechecs/internal/services/broker"
)

func newTestHandler(f *fixture) *GameHandler {
	return NewGameHandler(f.games, f.play, f.pub, zap.NewNop().Sugar())
}

func inbound(t *testing.T, eventType string, payload any) network.Message {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return network.Message{Type: eventType, Payload: raw}
}

func (p *fakePublisher) published(topic string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.topics {
		if t == topic {
			return true
		}
	}
	return false
}

func TestDispatchRoutesCreate(t *testing.T) {
	f := newFixture(t)
	h := newTestHandler(f)

	h.dispatch("alice", inbound(t, network.EventCreate, createPayload{
		TimeControl: 5, Wager: 1.0, WalletAddr: "0xAAA", NRounds: 1,
	}))

	if _, err := f.reg.GetByConn(f.ctx, "alice"); err != nil {
		t.Fatalf("partida não criada: %v", err)
	}
	if f.pub.published(broker.TopicFault) {
		t.Fatal("criação normal não publica falha")
	}
}

func TestDispatchExpectedErrorIsNotAFault(t *testing.T) {
	f := newFixture(t)
	h := newTestHandler(f)

	// Sem partida: resign é um erro de protocolo, não uma falha.
	h.dispatch("alice", inbound(t, network.EventResign, nil))
	if f.pub.published(broker.TopicFault) {
		t.Fatal("erro esperado publicado como falha")
	}

	h.dispatch("alice", network.Message{Type: "bogusEvent"})
	if f.pub.published(broker.TopicFault) {
		t.Fatal("evento desconhecido publicado como falha")
	}

	h.dispatch("alice", network.Message{Type: network.EventMove, Payload: []byte("{broken")})
	if f.pub.published(broker.TopicFault) {
		t.Fatal("payload malformado publicado como falha")
	}
}

func TestDispatchUnexpectedErrorPublishesFault(t *testing.T) {
	f := newFixture(t)
	h := newTestHandler(f)
	f.startedGame(t, 1)
	f.engine.errs["e2e4"] = errors.New("engine exploded")

	h.dispatch("bob", inbound(t, network.EventMove, movePayload{Move: "e2e4"}))

	if !f.pub.published(broker.TopicFault) {
		t.Fatal("falha real não chegou ao broker")
	}
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	f := newFixture(t)
	h := newTestHandler(f)
	f.startedGame(t, 1)
	f.engine.panics = true

	h.dispatch("bob", inbound(t, network.EventMove, movePayload{Move: "e2e4"})) // Não pode derrubar o teste.

	if !f.pub.published(broker.TopicFault) {
		t.Fatal("pânico não chegou ao broker")
	}

	// A outra partida continua funcional.
	f.engine.panics = false
	h.dispatch("carol", inbound(t, network.EventCreate, createPayload{
		TimeControl: 5, Wager: 0, WalletAddr: "0xCCC", NRounds: 1,
	}))
	if _, err := f.reg.GetByConn(f.ctx, "carol"); err != nil {
		t.Fatalf("handler inutilizado após pânico: %v", err)
	}
}
