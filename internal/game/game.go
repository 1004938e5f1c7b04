package game

import (
	"strings"
	"time"
)

// Estados do ciclo de vida de uma partida.
const (
	StateOpen       = "open"        // Criada, esperando um oponente aceitar.
	StateInProgress = "in-progress" // Dois jogadores, relógios rodando.
	StateFinished   = "finished"    // Match concluído (aguardando rematch ou saída).
	StateAbandoned  = "abandoned"   // Um jogador saiu no meio da partida.
	StateCancelled  = "cancelled"   // Criador cancelou antes de alguém aceitar.
)

// Estados da liquidação on-chain. A transição para SettlementSettling acontece
// ANTES da chamada externa, para que um gatilho duplicado seja rejeitado.
const (
	SettlementNone     = ""
	SettlementSettling = "settling"
	SettlementSettled  = "settled"
)

// Tipos de oferta pendente. No máximo uma oferta por tipo por partida.
const (
	OfferDraw    = "draw"
	OfferRematch = "rematch"
)

// Colour identifica o lado de um jogador. Os valores seguem o protocolo
// do cliente: 0 = pretas, 1 = brancas.
type Colour int

const (
	ColourBlack Colour = 0
	ColourWhite Colour = 1
)

func (c Colour) Other() Colour {
	if c == ColourBlack {
		return ColourWhite
	}
	return ColourBlack
}

func (c Colour) String() string {
	if c == ColourWhite {
		return "white"
	}
	return "black"
}

// Outcome codifica como uma rodada (ou o match) terminou. Os códigos 11+ são
// desfechos de protocolo; os menores vêm do motor de regras.
type Outcome int

const (
	OutcomeNone      Outcome = 0
	OutcomeCheckmate Outcome = 1
	OutcomeStalemate Outcome = 2
	OutcomeDrawRule  Outcome = 3 // Repetição, material insuficiente, regra dos 50 lances.

	OutcomeTimeout     Outcome = 11
	OutcomeResignation Outcome = 12
	OutcomeAgreement   Outcome = 13
	OutcomeAbandoned   Outcome = 14
)

// Game é uma partida entre dois jogadores, possivelmente com várias rodadas.
// A forma serializada (JSON) é o registro autoritativo no cache; a struct em
// memória só é mutada através do registry.
type Game struct {
	ID      string   `json:"id"`
	Players []string `json:"players"` // [0] pretas, [1] brancas.

	WalletAddrs map[string]string `json:"walletAddrs"` // connID -> endereço de carteira.

	TimeControl int     `json:"timeControl"` // Minutos por lado, por rodada.
	Wager       float64 `json:"wager"`
	NRounds     int     `json:"nRounds"`

	State      string `json:"state"`
	Settlement string `json:"settlement"`
	Finished   bool   `json:"finished"`

	Round      int                `json:"round"`
	MatchScore map[string]float64 `json:"matchScore"` // connID -> pontos (meio ponto no empate).

	FEN   string   `json:"fen"`
	Moves []string `json:"moves"` // Histórico UCI da rodada atual.

	TrWhiteMs int64 `json:"trWhiteMs"` // Tempo restante em milissegundos.
	TrBlackMs int64 `json:"trBlackMs"`

	LastTurnUnixMs int64 `json:"lastTurnUnixMs"` // Fim do último lance (ou início da rodada).

	Offers map[string]string `json:"offers"` // tipo de oferta -> connID ofertante.
}

// New cria uma partida em estado aberto, com apenas o criador vinculado.
func New(id, creatorConnID string, timeControl int, wager float64, walletAddr string, nRounds int) *Game {
	return &Game{
		ID:          id,
		Players:     []string{creatorConnID},
		WalletAddrs: map[string]string{creatorConnID: walletAddr},
		TimeControl: timeControl,
		Wager:       wager,
		NRounds:     nRounds,
		State:       StateOpen,
		MatchScore:  map[string]float64{creatorConnID: 0},
		Offers:      make(map[string]string),
	}
}

// Creator é o primeiro participante (lado das pretas).
func (g *Game) Creator() string { return g.Players[0] }

// ColourOf devolve o lado de um participante.
func (g *Game) ColourOf(connID string) (Colour, bool) {
	for i, p := range g.Players {
		if p == connID {
			return Colour(i), true
		}
	}
	return 0, false
}

// PlayerByColour devolve o connID do lado pedido ("" se ainda não vinculado).
func (g *Game) PlayerByColour(c Colour) string {
	if int(c) >= len(g.Players) {
		return ""
	}
	return g.Players[int(c)]
}

// Opponent devolve o outro participante da partida.
func (g *Game) Opponent(connID string) (string, bool) {
	for _, p := range g.Players {
		if p != connID {
			return p, true
		}
	}
	return "", false
}

// SideToMove é derivado do FEN autoritativo (campo 2: "w" ou "b").
func (g *Game) SideToMove() Colour {
	fields := strings.Fields(g.FEN)
	if len(fields) >= 2 && fields[1] == "b" {
		return ColourBlack
	}
	return ColourWhite
}

// RemainingMs devolve o tempo restante bruto de um lado.
func (g *Game) RemainingMs(c Colour) int64 {
	if c == ColourWhite {
		return g.TrWhiteMs
	}
	return g.TrBlackMs
}

// ChargeTime debita o tempo decorrido do relógio de um lado.
// O valor armazenado nunca fica negativo.
func (g *Game) ChargeTime(c Colour, elapsedMs int64) {
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	if c == ColourWhite {
		g.TrWhiteMs = max(0, g.TrWhiteMs-elapsedMs)
	} else {
		g.TrBlackMs = max(0, g.TrBlackMs-elapsedMs)
	}
}

// ResetClocks devolve ambos os relógios ao controle de tempo da partida.
func (g *Game) ResetClocks(now time.Time) {
	allot := int64(g.TimeControl) * 60 * 1000
	g.TrWhiteMs = allot
	g.TrBlackMs = allot
	g.LastTurnUnixMs = now.UnixMilli()
}

// ScorePair devolve o placar do match na ordem (pretas, brancas).
func (g *Game) ScorePair() [2]float64 {
	var pair [2]float64
	for i, p := range g.Players {
		if i < 2 {
			pair[i] = g.MatchScore[p]
		}
	}
	return pair
}

// Clone devolve uma cópia profunda, para projeções de leitura fora do registry.
func (g *Game) Clone() *Game {
	c := *g
	c.Players = append([]string(nil), g.Players...)
	c.Moves = append([]string(nil), g.Moves...)
	c.WalletAddrs = make(map[string]string, len(g.WalletAddrs))
	for k, v := range g.WalletAddrs {
		c.WalletAddrs[k] = v
	}
	c.MatchScore = make(map[string]float64, len(g.MatchScore))
	for k, v := range g.MatchScore {
		c.MatchScore[k] = v
	}
	c.Offers = make(map[string]string, len(g.Offers))
	for k, v := range g.Offers {
		c.Offers[k] = v
	}
	return &c
}
