package rules

import (
	"errors"
	"strings"
	"testing"

	"dechecs/internal/game"
)

func TestStartFEN(t *testing.T) {
	white := StartFEN(game.ColourWhite)
	if !strings.Contains(white, " w ") {
		t.Fatalf("StartFEN(brancas) = %q, esperava campo 'w'", white)
	}
	black := StartFEN(game.ColourBlack)
	if !strings.Contains(black, " b ") {
		t.Fatalf("StartFEN(pretas) = %q, esperava campo 'b'", black)
	}
}

func TestApplyLegalMove(t *testing.T) {
	e := NewEngine()
	res, err := e.ApplyMove(StartFEN(game.ColourWhite), "e2e4")
	if err != nil {
		t.Fatalf("lance legal rejeitado: %v", err)
	}
	if !strings.Contains(res.FEN, " b ") {
		t.Fatalf("FEN após e2e4 = %q, esperava pretas a jogar", res.FEN)
	}
	if res.Terminal != TerminalNone {
		t.Fatalf("Terminal = %v, esperava partida em andamento", res.Terminal)
	}
	if res.Check || res.EnPassant || res.Castles != "" {
		t.Fatalf("e2e4 não tem tags especiais: %+v", res)
	}
	if len(res.LegalMoves) == 0 {
		t.Fatal("esperava lances legais para as pretas")
	}
}

func TestApplyIllegalMove(t *testing.T) {
	e := NewEngine()
	if _, err := e.ApplyMove(StartFEN(game.ColourWhite), "e2e5"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("err = %v, esperava ErrIllegalMove", err)
	}
	// Lance das pretas com as brancas a jogar.
	if _, err := e.ApplyMove(StartFEN(game.ColourWhite), "e7e5"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("err = %v, esperava ErrIllegalMove", err)
	}
}

func TestFoolsMateIsCheckmate(t *testing.T) {
	e := NewEngine()
	fen := StartFEN(game.ColourWhite)
	for _, uci := range []string{"f2f3", "e7e5", "g2g4"} {
		res, err := e.ApplyMove(fen, uci)
		if err != nil {
			t.Fatalf("lance %s: %v", uci, err)
		}
		fen = res.FEN
	}

	res, err := e.ApplyMove(fen, "d8h4")
	if err != nil {
		t.Fatalf("lance de mate rejeitado: %v", err)
	}
	if res.Terminal != TerminalCheckmate {
		t.Fatalf("Terminal = %v, esperava xeque-mate", res.Terminal)
	}
	if !res.Check {
		t.Fatal("mate deveria marcar xeque")
	}
	if len(res.LegalMoves) != 0 {
		t.Fatalf("mate não tem lances legais, veio %v", res.LegalMoves)
	}
}

func TestCastlingTag(t *testing.T) {
	e := NewEngine()
	// Brancas prontas para o roque curto.
	fen := "rnbqkbnr/pppppppp/8/8/8/5NP1/PPPPPPBP/RNBQK2R w KQkq - 0 1"
	res, err := e.ApplyMove(fen, "e1g1")
	if err != nil {
		t.Fatalf("roque rejeitado: %v", err)
	}
	if res.Castles != "K" {
		t.Fatalf("Castles = %q, esperava K", res.Castles)
	}
}
