// Package rules adapta a biblioteca de xadrez à interface que o servidor
// consome: aplicar um lance UCI sobre um FEN e detectar posições terminais.
// O servidor nunca fala com a biblioteca diretamente.
package rules

import (
	"errors"
	"fmt"
	"strings"

	chess "github.com/corentings/chess/v2"

	"dechecs/internal/game"
)

// ErrIllegalMove indica um lance rejeitado pelo motor de regras.
var ErrIllegalMove = errors.New("illegal move")

const startBoard = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR"

// Terminal classifica o desfecho detectado após um lance.
type Terminal int

const (
	TerminalNone Terminal = iota
	TerminalCheckmate
	TerminalStalemate
	TerminalDraw // Empate por regra: repetição, material, 50 lances.
)

// MoveResult é o resultado de um lance legal.
type MoveResult struct {
	FEN        string
	Check      bool
	EnPassant  bool
	Castles    string // "K", "Q" ou "".
	LegalMoves []string
	Terminal   Terminal
}

// Engine é a interface consumida pelos controllers. A implementação concreta
// fica atrás dela para que os testes dos controllers usem um motor falso.
type Engine interface {
	ApplyMove(fen, uci string) (*MoveResult, error)
}

// ChessEngine implementa Engine sobre corentings/chess.
type ChessEngine struct{}

func NewEngine() *ChessEngine { return &ChessEngine{} }

// StartFEN devolve a posição inicial com o lado indicado a jogar. Rodadas
// alternam o lado que começa, o que em FEN é só o segundo campo.
func StartFEN(side game.Colour) string {
	turn := "w"
	if side == game.ColourBlack {
		turn = "b"
	}
	return fmt.Sprintf("%s %s KQkq - 0 1", startBoard, turn)
}

// ApplyMove valida e aplica um lance UCI sobre a posição dada.
func (e *ChessEngine) ApplyMove(fen, uci string) (*MoveResult, error) {
	option, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("invalid board state: %w", err)
	}
	g := chess.NewGame(option)

	uci = strings.ToLower(strings.TrimSpace(uci))
	if err := g.PushNotationMove(uci, chess.UCINotation{}, nil); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}

	moves := g.Moves()
	last := moves[len(moves)-1]

	res := &MoveResult{
		FEN:       g.FEN(),
		Check:     last.HasTag(chess.Check),
		EnPassant: last.HasTag(chess.EnPassant),
	}
	if last.HasTag(chess.KingSideCastle) {
		res.Castles = "K"
	} else if last.HasTag(chess.QueenSideCastle) {
		res.Castles = "Q"
	}

	for _, mv := range g.ValidMoves() {
		res.LegalMoves = append(res.LegalMoves, mv.String())
	}

	switch g.Outcome() {
	case chess.NoOutcome:
		res.Terminal = TerminalNone
	case chess.Draw:
		if g.Method() == chess.Stalemate {
			res.Terminal = TerminalStalemate
		} else {
			res.Terminal = TerminalDraw
		}
	default:
		// WhiteWon/BlackWon a partir de um lance só acontece por mate.
		res.Terminal = TerminalCheckmate
	}
	return res, nil
}
