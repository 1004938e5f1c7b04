// Package message constrói os eventos que vão no sentido servidor -> cliente.
package message

import (
	"encoding/json"

	"dechecs/internal/game"
	"dechecs/internal/network"
)

// Eventos emitidos pelo servidor.
const (
	EventGameID       = "gameId"
	EventGameInfo     = "gameInfo"
	EventStart        = "start"
	EventMove         = "move"
	EventTimer        = "timer"
	EventRoundResult  = "roundResult"
	EventMatchOver    = "matchOver"
	EventDrawOffer    = "drawOffer"
	EventRematchOffer = "rematchOffer"
	EventError        = "error"
)

// MoveData é a atualização por lance enviada aos dois jogadores.
type MoveData struct {
	Turn       int      `json:"turn"` // Lado a jogar APÓS o lance (0 pretas, 1 brancas).
	Move       string   `json:"move"`
	Castles    string   `json:"castles,omitempty"` // "K" ou "Q".
	IsCheck    bool     `json:"isCheck"`
	EnPassant  bool     `json:"enPassant"`
	LegalMoves []string `json:"legalMoves"`
	MoveStack  []string `json:"moveStack"`
}

// TimerData carrega os tempos restantes em segundos, já grampeados em zero.
type TimerData struct {
	White int64 `json:"white"`
	Black int64 `json:"black"`
}

// RoundResultData anuncia a conclusão de uma rodada.
type RoundResultData struct {
	Round      int        `json:"round"`  // Índice da rodada concluída.
	Winner     int        `json:"winner"` // Cor vencedora, -1 no empate.
	Outcome    int        `json:"outcome"`
	MatchScore [2]float64 `json:"matchScore"` // (pretas, brancas).
}

// MatchOverData anuncia o desfecho do match após a liquidação confirmar.
type MatchOverData struct {
	Winner     int        `json:"winner"` // Cor vencedora, -1 no empate.
	Outcome    int        `json:"outcome"`
	MatchScore [2]float64 `json:"matchScore"`
	TxHash     string     `json:"txHash,omitempty"`
}

// GameInfoData é a projeção pública de uma partida (página de join).
type GameInfoData struct {
	ID          string  `json:"id"`
	State       string  `json:"state"`
	TimeControl int     `json:"timeControl"`
	Wager       float64 `json:"wager"`
	NRounds     int     `json:"nRounds"`
}

// GameSnapshot é o estado completo da sessão, do ponto de vista de UM
// destinatário (a cor é dele).
type GameSnapshot struct {
	ID          string     `json:"id"`
	Colour      int        `json:"colour"`
	State       string     `json:"state"`
	Round       int        `json:"round"`
	NRounds     int        `json:"nRounds"`
	TimeControl int        `json:"timeControl"`
	Wager       float64    `json:"wager"`
	FEN         string     `json:"fen"`
	Turn        int        `json:"turn"`
	MatchScore  [2]float64 `json:"matchScore"`
	TrWhite     int64      `json:"trWhite"` // Segundos.
	TrBlack     int64      `json:"trBlack"`
}

func wrap(eventType string, payload any) network.Message {
	raw, _ := json.Marshal(payload)
	return network.Message{Type: eventType, Payload: raw}
}

func GameID(id string) network.Message {
	return wrap(EventGameID, map[string]string{"gameId": id})
}

func GameInfo(data GameInfoData) network.Message { return wrap(EventGameInfo, data) }

func Start(snap GameSnapshot) network.Message { return wrap(EventStart, snap) }

func Move(data MoveData) network.Message { return wrap(EventMove, data) }

func Timer(data TimerData) network.Message { return wrap(EventTimer, data) }

func RoundResult(data RoundResultData) network.Message { return wrap(EventRoundResult, data) }

func MatchOver(data MatchOverData) network.Message { return wrap(EventMatchOver, data) }

func DrawOffer() network.Message { return wrap(EventDrawOffer, nil) }

func RematchOffer() network.Message { return wrap(EventRematchOffer, nil) }

// Error cria o evento de erro escopado à conexão de origem.
func Error(errorMsg string) network.Message {
	return wrap(EventError, map[string]string{"error": errorMsg})
}

// TimerFor projeta os relógios de uma partida, grampeando em zero na leitura.
func TimerFor(g *game.Game) TimerData {
	return TimerData{
		White: clampSeconds(g.TrWhiteMs),
		Black: clampSeconds(g.TrBlackMs),
	}
}

// SnapshotFor projeta o estado da partida para um destinatário.
func SnapshotFor(g *game.Game, connID string) GameSnapshot {
	colour, _ := g.ColourOf(connID)
	return GameSnapshot{
		ID:          g.ID,
		Colour:      int(colour),
		State:       g.State,
		Round:       g.Round,
		NRounds:     g.NRounds,
		TimeControl: g.TimeControl,
		Wager:       g.Wager,
		FEN:         g.FEN,
		Turn:        int(g.SideToMove()),
		MatchScore:  g.ScorePair(),
		TrWhite:     clampSeconds(g.TrWhiteMs),
		TrBlack:     clampSeconds(g.TrBlackMs),
	}
}

func clampSeconds(ms int64) int64 {
	if ms < 0 {
		return 0
	}
	return ms / 1000
}
