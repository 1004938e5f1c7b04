package session

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"dechecs/internal/game"
	"dechecs/internal/registry"
	"dechecs/internal/rules"
	"dechecs/internal/session/message"
	"dechecs/internal/stats"
)

// roundEnd captura, ainda sob o lock do registro, tudo que as emissões
// pós-lock precisam saber sobre o fim de uma rodada.
type roundEnd struct {
	round      int // Índice da rodada concluída.
	winner     int // Cor vencedora da rodada, -1 no empate.
	outcome    game.Outcome
	matchOver  bool
	matchWin   string // connID do vencedor do match ("" = empate).
	scores     [2]float64
	nextSnap   *game.Game // Estado da rodada seguinte, quando o match continua.
	players    []string
}

// PlayController orquestra o jogo em andamento: lances, relógios, ofertas
// de empate, desistência e reclamação de tempo.
type PlayController struct {
	registry *registry.Registry
	engine   rules.Engine
	games    *GameController
	emitter  Emitter
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewPlayController(reg *registry.Registry, engine rules.Engine, games *GameController, emitter Emitter, log *zap.SugaredLogger) *PlayController {
	return &PlayController{
		registry: reg,
		engine:   engine,
		games:    games,
		emitter:  emitter,
		log:      log,
		now:      time.Now,
	}
}

// SetEmitter injeta o emissor depois da construção, como no GameController.
func (pc *PlayController) SetEmitter(e Emitter) { pc.emitter = e }

// Move valida e aplica um lance do jogador. O relógio do autor é debitado
// com o tempo decorrido desde o fim do lance anterior; se o relógio zera
// no processo, a rodada termina por tempo em vez de aplicar o lance.
func (pc *PlayController) Move(ctx context.Context, connID, uci string) error {
	now := pc.now()
	var (
		end     *roundEnd
		moveMsg *message.MoveData
		timer   message.TimerData
		players []string
	)
	g, err := pc.registry.GetByConn(ctx, connID)
	if err != nil {
		return err
	}
	err = pc.registry.Mutate(ctx, g.ID, func(g *game.Game) error {
		if g.State != game.StateInProgress {
			return ErrGameNotInProgress
		}
		side, ok := g.ColourOf(connID)
		if !ok || g.SideToMove() != side {
			return ErrNotYourTurn
		}

		g.ChargeTime(side, now.UnixMilli()-g.LastTurnUnixMs)
		if g.RemainingMs(side) <= 0 {
			end = pc.applyRoundEnd(g, int(side.Other()), game.OutcomeTimeout, now)
			return nil
		}

		res, err := pc.engine.ApplyMove(g.FEN, uci)
		if err != nil {
			return err
		}
		g.FEN = res.FEN
		g.Moves = append(g.Moves, uci)
		g.LastTurnUnixMs = now.UnixMilli()
		delete(g.Offers, game.OfferDraw)

		moveMsg = &message.MoveData{
			Turn:       int(g.SideToMove()),
			Move:       uci,
			Castles:    res.Castles,
			IsCheck:    res.Check,
			EnPassant:  res.EnPassant,
			LegalMoves: res.LegalMoves,
			MoveStack:  append([]string(nil), g.Moves...),
		}
		timer = message.TimerFor(g)
		players = append([]string(nil), g.Players...)

		switch res.Terminal {
		case rules.TerminalCheckmate:
			end = pc.applyRoundEnd(g, int(side), game.OutcomeCheckmate, now)
		case rules.TerminalStalemate:
			end = pc.applyRoundEnd(g, -1, game.OutcomeStalemate, now)
		case rules.TerminalDraw:
			end = pc.applyRoundEnd(g, -1, game.OutcomeDrawRule, now)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if moveMsg != nil {
		stats.MovesTotal.Inc()
		for _, p := range players {
			pc.emitter.Emit(p, message.Move(*moveMsg))
			pc.emitter.Emit(p, message.Timer(timer))
		}
	}
	if end != nil {
		pc.finishRound(ctx, g.ID, end)
	}
	return nil
}

// OfferDraw registra a oferta de empate da rodada. Uma oferta do outro
// lado já pendente vale como aceite.
func (pc *PlayController) OfferDraw(ctx context.Context, connID string) error {
	now := pc.now()
	var end *roundEnd
	g, err := pc.registry.GetByConn(ctx, connID)
	if err != nil {
		return err
	}
	err = pc.registry.Mutate(ctx, g.ID, func(g *game.Game) error {
		if g.State != game.StateInProgress {
			return ErrGameNotInProgress
		}
		if offerer, ok := g.Offers[game.OfferDraw]; ok && offerer != connID {
			end = pc.applyRoundEnd(g, -1, game.OutcomeAgreement, now)
			return nil
		}
		g.Offers[game.OfferDraw] = connID
		return nil
	})
	if err != nil {
		return err
	}
	if end != nil {
		pc.finishRound(ctx, g.ID, end)
		return nil
	}
	if opp, ok := g.Opponent(connID); ok {
		pc.emitter.Emit(opp, message.DrawOffer())
	}
	return nil
}

// AcceptDraw encerra a rodada por acordo, meio ponto para cada lado.
func (pc *PlayController) AcceptDraw(ctx context.Context, connID string) error {
	now := pc.now()
	var end *roundEnd
	g, err := pc.registry.GetByConn(ctx, connID)
	if err != nil {
		return err
	}
	err = pc.registry.Mutate(ctx, g.ID, func(g *game.Game) error {
		if g.State != game.StateInProgress {
			return ErrGameNotInProgress
		}
		offerer, ok := g.Offers[game.OfferDraw]
		if !ok || offerer == connID {
			return ErrNoOffer
		}
		end = pc.applyRoundEnd(g, -1, game.OutcomeAgreement, now)
		return nil
	})
	if err != nil {
		return err
	}
	pc.finishRound(ctx, g.ID, end)
	return nil
}

// Resign encerra a rodada com vitória do oponente.
func (pc *PlayController) Resign(ctx context.Context, connID string) error {
	now := pc.now()
	var end *roundEnd
	g, err := pc.registry.GetByConn(ctx, connID)
	if err != nil {
		return err
	}
	err = pc.registry.Mutate(ctx, g.ID, func(g *game.Game) error {
		if g.State != game.StateInProgress {
			return ErrGameNotInProgress
		}
		side, ok := g.ColourOf(connID)
		if !ok {
			return ErrGameNotInProgress
		}
		end = pc.applyRoundEnd(g, int(side.Other()), game.OutcomeResignation, now)
		return nil
	})
	if err != nil {
		return err
	}
	pc.log.Infof("Partida %s: %s desistiu da rodada %d", g.ID, connID, end.round)
	pc.finishRound(ctx, g.ID, end)
	return nil
}

// Flag reclama que o relógio do lado indicado zerou. O tempo decorrido é
// recomputado no servidor; o sinal do cliente nunca é confiado às cegas e
// a reclamação é rejeitada enquanto o relógio apontado for positivo.
func (pc *PlayController) Flag(ctx context.Context, connID string, flaggedSide game.Colour) error {
	if flaggedSide != game.ColourBlack && flaggedSide != game.ColourWhite {
		return fmt.Errorf("%w: unknown side %d", ErrInvalidState, flaggedSide)
	}
	now := pc.now()
	var end *roundEnd
	g, err := pc.registry.GetByConn(ctx, connID)
	if err != nil {
		return err
	}
	err = pc.registry.Mutate(ctx, g.ID, func(g *game.Game) error {
		if g.State != game.StateInProgress {
			return ErrGameNotInProgress
		}
		if _, ok := g.ColourOf(connID); !ok {
			return ErrGameNotInProgress
		}
		// Só o relógio do lado a jogar corre.
		g.ChargeTime(g.SideToMove(), now.UnixMilli()-g.LastTurnUnixMs)
		g.LastTurnUnixMs = now.UnixMilli()
		if g.RemainingMs(flaggedSide) > 0 {
			return fmt.Errorf("%w: flagged side still has time", ErrInvalidState)
		}
		end = pc.applyRoundEnd(g, int(flaggedSide.Other()), game.OutcomeTimeout, now)
		return nil
	})
	if err != nil {
		return err
	}
	pc.finishRound(ctx, g.ID, end)
	return nil
}

// applyRoundEnd pontua a rodada concluída e ou prepara a próxima ou marca
// o match como decidido. Deve rodar sob o lock do registro. O match acaba
// quando todas as rodadas foram jogadas ou quando a diferença de placar
// excede as rodadas restantes.
func (pc *PlayController) applyRoundEnd(g *game.Game, winnerColour int, outcome game.Outcome, now time.Time) *roundEnd {
	if winnerColour >= 0 {
		g.MatchScore[g.PlayerByColour(game.Colour(winnerColour))] += 1.0
	} else {
		for _, p := range g.Players {
			g.MatchScore[p] += 0.5
		}
	}
	delete(g.Offers, game.OfferDraw)
	g.Round++

	end := &roundEnd{
		round:   g.Round - 1,
		winner:  winnerColour,
		outcome: outcome,
		scores:  g.ScorePair(),
		players: append([]string(nil), g.Players...),
	}

	remaining := g.NRounds - g.Round
	lead := math.Abs(end.scores[0] - end.scores[1])
	if g.Round >= g.NRounds || lead > float64(remaining) {
		// Sai de "inProgress" ainda sob o lock; um segundo evento
		// conclusivo na janela até a liquidação é rejeitado.
		g.State = game.StateFinished
		g.Finished = true
		end.matchOver = true
		switch {
		case end.scores[0] > end.scores[1]:
			end.matchWin = g.PlayerByColour(game.ColourBlack)
		case end.scores[1] > end.scores[0]:
			end.matchWin = g.PlayerByColour(game.ColourWhite)
		}
		return end
	}

	g.FEN = rules.StartFEN(startingSide(g.Round))
	g.Moves = nil
	g.ResetClocks(now)
	end.nextSnap = g.Clone()
	return end
}

// finishRound emite o resultado da rodada e ou abre a seguinte ou dispara
// a liquidação do match.
func (pc *PlayController) finishRound(ctx context.Context, gameID string, end *roundEnd) {
	result := message.RoundResultData{
		Round:      end.round,
		Winner:     end.winner,
		Outcome:    int(end.outcome),
		MatchScore: end.scores,
	}
	for _, p := range end.players {
		pc.emitter.Emit(p, message.RoundResult(result))
	}

	if end.matchOver {
		if err := pc.games.Settle(ctx, gameID, end.outcome, end.matchWin); err != nil {
			pc.log.Errorf("Liquidação da partida %s após rodada %d falhou: %v", gameID, end.round, err)
		}
		return
	}

	for _, p := range end.players {
		pc.emitter.Emit(p, message.Start(message.SnapshotFor(end.nextSnap, p)))
		pc.emitter.Emit(p, message.Timer(message.TimerFor(end.nextSnap)))
	}
}
