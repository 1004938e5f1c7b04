package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dechecs/internal/game"
	"dechecs/internal/network"
	"dechecs/internal/registry"
	"dechecs/internal/rules"
	"dechecs/internal/services/broker"
	"dechecs/internal/session/message"
	"dechecs/internal/stats"
)

// Settler é a superfície do cliente de liquidação que o controller consome.
type Settler interface {
	DeclareWinner(ctx context.Context, gameID, winnerAddr string) (string, error)
	DeclareDraw(ctx context.Context, gameID string) (string, error)
	Refund(ctx context.Context, gameID string) (string, error)
}

// Publisher é a superfície do broker que o controller consome.
type Publisher interface {
	Publish(topic string, payload any) error
}

// Emitter entrega uma mensagem para a conexão de um jogador. Deve ser
// não-bloqueante: um jogador com buffer cheio não pode travar a partida.
type Emitter interface {
	Emit(connID string, msg network.Message)
}

// settlementEvent é o payload publicado no broker quando uma liquidação
// resolve (confirmada ou pendente), para as demais instâncias observarem.
type settlementEvent struct {
	GameID  string `json:"gameId"`
	Kind    string `json:"kind"` // "winner", "draw" ou "refund".
	Outcome int    `json:"outcome,omitempty"`
	TxHash  string `json:"txHash,omitempty"`
	Status  string `json:"status"` // "confirmed" ou "pending".
	Error   string `json:"error,omitempty"`
}

// GameController orquestra o ciclo de vida das partidas: criação,
// cancelamento, aceite, rematch, saída e o gatilho de liquidação.
type GameController struct {
	registry *registry.Registry
	settler  Settler
	broker   Publisher
	emitter  Emitter
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewGameController(reg *registry.Registry, settler Settler, pub Publisher, emitter Emitter, log *zap.SugaredLogger) *GameController {
	return &GameController{
		registry: reg,
		settler:  settler,
		broker:   pub,
		emitter:  emitter,
		log:      log,
		now:      time.Now,
	}
}

// SetEmitter injeta o emissor depois da construção. O GameHandler é o
// emissor concreto, mas também depende do controller, então a amarração
// fecha em dois passos na montagem.
func (gc *GameController) SetEmitter(e Emitter) { gc.emitter = e }

// startingSide alterna o lado que começa a cada rodada.
func startingSide(round int) game.Colour {
	if round%2 == 0 {
		return game.ColourWhite
	}
	return game.ColourBlack
}

// Create abre uma partida nova com o criador no lado das pretas e devolve
// a identidade ao chamador via evento gameId.
func (gc *GameController) Create(ctx context.Context, connID string, timeControl int, wager float64, walletAddr string, nRounds int) error {
	if timeControl < 1 || nRounds < 1 || wager < 0 {
		return fmt.Errorf("%w: invalid game configuration", ErrInvalidState)
	}
	if _, err := gc.registry.GetByConn(ctx, connID); err == nil {
		return ErrAlreadyInGame
	}

	g := game.New(uuid.NewString(), connID, timeControl, wager, walletAddr, nRounds)
	if err := gc.registry.Create(ctx, g); err != nil {
		return err
	}

	stats.GamesCreatedTotal.Inc()
	gc.log.Infof("Partida %s criada por %s (tc=%dm, wager=%.4f, rounds=%d)", g.ID, connID, timeControl, wager, nRounds)
	gc.emitter.Emit(connID, message.GameID(g.ID))
	return nil
}

// CancelGame remove uma partida ainda aberta. Só o criador pode cancelar.
// Se a aposta já foi escrowada no contrato, o reembolso passa pelo mesmo
// guard settling/settled da liquidação, para nunca reembolsar duas vezes.
func (gc *GameController) CancelGame(ctx context.Context, connID string, createdOnContract bool) error {
	g, err := gc.registry.GetByConn(ctx, connID)
	if err != nil {
		return err
	}
	err = gc.registry.Mutate(ctx, g.ID, func(g *game.Game) error {
		if g.Creator() != connID || g.State != game.StateOpen {
			return ErrNotCancellable
		}
		if g.Settlement != game.SettlementNone {
			return ErrNotCancellable
		}
		// Sai de "open" ainda sob o lock; um acceptGame concorrente
		// perde a corrida em vez de ressuscitar a partida.
		g.State = game.StateCancelled
		if createdOnContract {
			g.Settlement = game.SettlementSettling
		}
		return nil
	})
	if err != nil {
		return err
	}

	if createdOnContract {
		txHash, err := gc.settler.Refund(ctx, g.ID)
		if err != nil {
			// Fica em settling para retry do operador; a partida não some.
			gc.log.Errorf("Reembolso da partida %s falhou: %v", g.ID, err)
			stats.SettlementFailuresTotal.Inc()
			gc.emitter.Emit(connID, message.Error("Refund pending: the on-chain call failed and will be retried by an operator"))
			gc.publishSettlement(settlementEvent{GameID: g.ID, Kind: "refund", Status: "pending", Error: err.Error()})
			return nil
		}
		if err := gc.registry.Mutate(ctx, g.ID, func(g *game.Game) error {
			g.Settlement = game.SettlementSettled
			return nil
		}); err != nil {
			gc.log.Warnf("Falha ao marcar partida %s como settled: %v", g.ID, err)
		}
		gc.publishSettlement(settlementEvent{GameID: g.ID, Kind: "refund", TxHash: txHash, Status: "confirmed"})
	}

	gc.log.Infof("Partida %s cancelada por %s", g.ID, connID)
	return gc.registry.Remove(ctx, g.ID)
}

// GetGameDetails emite a projeção pública da partida para o solicitante.
func (gc *GameController) GetGameDetails(ctx context.Context, connID, gameID string) error {
	g, err := gc.registry.Get(ctx, gameID)
	if err != nil {
		return err
	}
	gc.emitter.Emit(connID, message.GameInfo(message.GameInfoData{
		ID:          g.ID,
		State:       g.State,
		TimeControl: g.TimeControl,
		Wager:       g.Wager,
		NRounds:     g.NRounds,
	}))
	return nil
}

// AcceptGame vincula o segundo jogador (lado das brancas), inicializa os
// relógios e emite o estado completo para os dois.
func (gc *GameController) AcceptGame(ctx context.Context, connID, gameID, walletAddr string) error {
	now := gc.now()
	var snap *game.Game
	err := gc.registry.Mutate(ctx, gameID, func(g *game.Game) error {
		if g.State != game.StateOpen {
			return fmt.Errorf("%w: game is not open", ErrInvalidState)
		}
		if len(g.Players) >= 2 {
			return fmt.Errorf("%w: game already has two players", ErrInvalidState)
		}
		if g.Creator() == connID {
			return fmt.Errorf("%w: cannot accept your own game", ErrInvalidState)
		}
		g.Players = append(g.Players, connID)
		g.WalletAddrs[connID] = walletAddr
		g.MatchScore[connID] = 0
		g.State = game.StateInProgress
		g.Round = 0
		g.FEN = rules.StartFEN(startingSide(0))
		g.Moves = nil
		g.ResetClocks(now)
		snap = g.Clone()
		return nil
	})
	if err != nil {
		return err
	}

	gc.log.Infof("Partida %s aceita por %s", gameID, connID)
	for _, p := range snap.Players {
		gc.emitter.Emit(p, message.Start(message.SnapshotFor(snap, p)))
		gc.emitter.Emit(p, message.Timer(message.TimerFor(snap)))
	}
	return nil
}

// OfferRematch registra a oferta de revanche numa partida terminada. Uma
// oferta do outro lado já pendente vale como aceite.
func (gc *GameController) OfferRematch(ctx context.Context, connID string) error {
	g, err := gc.registry.GetByConn(ctx, connID)
	if err != nil {
		return err
	}
	var accept bool
	if err := gc.registry.Mutate(ctx, g.ID, func(g *game.Game) error {
		if !g.Finished {
			return fmt.Errorf("%w: rematch only applies to a finished game", ErrInvalidState)
		}
		if offerer, ok := g.Offers[game.OfferRematch]; ok && offerer != connID {
			accept = true
			return nil
		}
		// Uma nova oferta do mesmo lado supersede a anterior.
		g.Offers[game.OfferRematch] = connID
		return nil
	}); err != nil {
		return err
	}
	if accept {
		return gc.AcceptRematch(ctx, connID)
	}
	if opp, ok := g.Opponent(connID); ok {
		gc.emitter.Emit(opp, message.RematchOffer())
	}
	return nil
}

// AcceptRematch cria uma partida NOVA com as cores trocadas e a mesma
// configuração, e desativa a antiga.
func (gc *GameController) AcceptRematch(ctx context.Context, connID string) error {
	g, err := gc.registry.GetByConn(ctx, connID)
	if err != nil {
		return err
	}
	if err := gc.registry.Mutate(ctx, g.ID, func(old *game.Game) error {
		offerer, ok := old.Offers[game.OfferRematch]
		if !ok || offerer == connID {
			return ErrNoOffer
		}
		if !old.Finished || len(old.Players) != 2 {
			return fmt.Errorf("%w: rematch only applies to a finished game", ErrInvalidState)
		}
		// Consome a oferta sob o lock: um segundo aceite cai em ErrNoOffer.
		delete(old.Offers, game.OfferRematch)
		g = old.Clone()
		return nil
	}); err != nil {
		return err
	}

	// Cores trocadas: quem era brancas vira pretas.
	next := game.New(uuid.NewString(), g.Players[1], g.TimeControl, g.Wager, g.WalletAddrs[g.Players[1]], g.NRounds)
	next.Players = append(next.Players, g.Players[0])
	next.WalletAddrs[g.Players[0]] = g.WalletAddrs[g.Players[0]]
	next.MatchScore[g.Players[0]] = 0
	next.State = game.StateInProgress
	next.FEN = rules.StartFEN(startingSide(0))
	next.ResetClocks(gc.now())

	if err := gc.registry.Remove(ctx, g.ID); err != nil {
		gc.log.Warnf("Falha ao remover partida antiga %s no rematch: %v", g.ID, err)
	}
	if err := gc.registry.Create(ctx, next); err != nil {
		return err
	}

	stats.GamesCreatedTotal.Inc()
	gc.log.Infof("Rematch: partida %s substitui %s com cores trocadas", next.ID, g.ID)
	for _, p := range next.Players {
		gc.emitter.Emit(p, message.Start(message.SnapshotFor(next, p)))
		gc.emitter.Emit(p, message.Timer(message.TimerFor(next)))
	}
	return nil
}

// HandleExit trata desconexão ou saída explícita. Idempotente: sem partida
// ativa, não faz nada.
func (gc *GameController) HandleExit(ctx context.Context, connID string) error {
	g, err := gc.registry.GetByConn(ctx, connID)
	if err != nil {
		if err == registry.ErrNotFound {
			return nil
		}
		return err
	}

	switch g.State {
	case game.StateOpen:
		// Sem oponente ainda: remoção pura, nenhuma liquidação.
		gc.log.Infof("Partida aberta %s removida após saída de %s", g.ID, connID)
		return gc.registry.Remove(ctx, g.ID)

	case game.StateInProgress:
		winner, _ := g.Opponent(connID)
		if err := gc.registry.Mutate(ctx, g.ID, func(g *game.Game) error {
			g.State = game.StateAbandoned
			g.Finished = true
			return nil
		}); err != nil {
			return err
		}
		gc.log.Infof("Partida %s abandonada por %s; %s vence", g.ID, connID, winner)
		// A liquidação roda até o fim (sucesso ou falha reportada) antes
		// de a partida sumir do registro.
		gc.Settle(ctx, g.ID, game.OutcomeAbandoned, winner)
		return gc.registry.Remove(ctx, g.ID)

	default:
		// Terminada: a partida só estava viva para responder rematch.
		return gc.registry.Remove(ctx, g.ID)
	}
}

// Settle é o único caminho para a liquidação on-chain. A transição para
// "settling" acontece sob o lock do registro, ANTES da chamada externa:
// um gatilho duplicado encontra o estado e é rejeitado em silêncio. Uma
// falha deixa a partida em "settling" para retry do operador; o protocolo
// não tenta de novo sozinho.
func (gc *GameController) Settle(ctx context.Context, gameID string, outcome game.Outcome, winnerConnID string) error {
	var (
		proceed      bool
		players      []string
		winnerWallet string
		winnerColour = -1
		scores       [2]float64
	)
	err := gc.registry.Mutate(ctx, gameID, func(g *game.Game) error {
		if g.Settlement != game.SettlementNone {
			return nil // Já em settling/settled: gatilho duplicado.
		}
		g.Settlement = game.SettlementSettling
		g.Finished = true
		if g.State == game.StateInProgress {
			g.State = game.StateFinished
		}
		proceed = true
		players = append([]string(nil), g.Players...)
		scores = g.ScorePair()
		if winnerConnID != "" {
			winnerWallet = g.WalletAddrs[winnerConnID]
			if c, ok := g.ColourOf(winnerConnID); ok {
				winnerColour = int(c)
			}
		}
		return nil
	})
	if err != nil || !proceed {
		return err
	}

	kind := "draw"
	var txHash string
	var settleErr error
	if winnerConnID != "" {
		kind = "winner"
		txHash, settleErr = gc.settler.DeclareWinner(ctx, gameID, winnerWallet)
	} else {
		txHash, settleErr = gc.settler.DeclareDraw(ctx, gameID)
	}

	if settleErr != nil {
		// O desfecho do match já é conhecido pelos jogadores; só o passo
		// on-chain ficou pendente. Aviso não-fatal para os dois.
		gc.log.Errorf("Liquidação da partida %s falhou: %v", gameID, settleErr)
		stats.SettlementFailuresTotal.Inc()
		for _, p := range players {
			gc.emitter.Emit(p, message.Error("Settlement pending: the on-chain call failed and will be retried by an operator"))
		}
		gc.publishSettlement(settlementEvent{GameID: gameID, Kind: kind, Outcome: int(outcome), Status: "pending", Error: settleErr.Error()})
		return nil
	}

	if err := gc.registry.Mutate(ctx, gameID, func(g *game.Game) error {
		g.Settlement = game.SettlementSettled
		return nil
	}); err != nil {
		gc.log.Warnf("Falha ao marcar partida %s como settled: %v", gameID, err)
	}

	stats.SettlementsTotal.Inc()
	for _, p := range players {
		gc.emitter.Emit(p, message.MatchOver(message.MatchOverData{
			Winner:     winnerColour,
			Outcome:    int(outcome),
			MatchScore: scores,
			TxHash:     txHash,
		}))
	}
	gc.publishSettlement(settlementEvent{GameID: gameID, Kind: kind, Outcome: int(outcome), TxHash: txHash, Status: "confirmed"})
	return nil
}

func (gc *GameController) publishSettlement(ev settlementEvent) {
	if err := gc.broker.Publish(broker.TopicSettlement, ev); err != nil {
		gc.log.Warnf("Falha ao publicar evento de liquidação da partida %s: %v", ev.GameID, err)
	}
}
