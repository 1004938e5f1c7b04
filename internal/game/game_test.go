package game

import (
	"testing"
	"time"
)

func TestChargeTimeNeverGoesNegative(t *testing.T) {
	g := New("g1", "alice", 1, 0.5, "0xA", 3)
	g.ResetClocks(time.UnixMilli(0))

	g.ChargeTime(ColourWhite, 90_000) // Mais que o minuto alocado.
	if g.TrWhiteMs != 0 {
		t.Fatalf("TrWhiteMs = %d, esperava 0", g.TrWhiteMs)
	}
	if g.TrBlackMs != 60_000 {
		t.Fatalf("TrBlackMs = %d, esperava intocado", g.TrBlackMs)
	}

	g.ChargeTime(ColourBlack, -500) // Relógio atrasado não devolve tempo.
	if g.TrBlackMs != 60_000 {
		t.Fatalf("TrBlackMs = %d, esperava 60000", g.TrBlackMs)
	}
}

func TestSideToMoveFromFEN(t *testing.T) {
	g := New("g1", "alice", 5, 0, "0xA", 1)

	g.FEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	if g.SideToMove() != ColourWhite {
		t.Fatal("esperava brancas a jogar")
	}
	g.FEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR b KQkq - 0 1"
	if g.SideToMove() != ColourBlack {
		t.Fatal("esperava pretas a jogar")
	}
}

func TestScorePairOrder(t *testing.T) {
	g := New("g1", "alice", 5, 0, "0xA", 4)
	g.Players = append(g.Players, "bob")
	g.MatchScore["alice"] = 1.5
	g.MatchScore["bob"] = 0.5

	pair := g.ScorePair()
	if pair[0] != 1.5 || pair[1] != 0.5 {
		t.Fatalf("ScorePair() = %v, esperava (pretas=1.5, brancas=0.5)", pair)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	g := New("g1", "alice", 5, 0, "0xA", 1)
	g.Moves = []string{"e2e4"}

	c := g.Clone()
	c.Moves = append(c.Moves, "e7e5")
	c.MatchScore["alice"] = 9
	c.Offers[OfferDraw] = "alice"

	if len(g.Moves) != 1 {
		t.Fatalf("Moves do original mudou: %v", g.Moves)
	}
	if g.MatchScore["alice"] != 0 {
		t.Fatal("MatchScore do original mudou")
	}
	if _, ok := g.Offers[OfferDraw]; ok {
		t.Fatal("Offers do original mudou")
	}
}

func TestOpponentAndColour(t *testing.T) {
	g := New("g1", "alice", 5, 0, "0xA", 1)
	g.Players = append(g.Players, "bob")

	if opp, ok := g.Opponent("alice"); !ok || opp != "bob" {
		t.Fatalf("Opponent(alice) = %q, %v", opp, ok)
	}
	if c, ok := g.ColourOf("alice"); !ok || c != ColourBlack {
		t.Fatalf("ColourOf(alice) = %v, esperava pretas", c)
	}
	if c, ok := g.ColourOf("bob"); !ok || c != ColourWhite {
		t.Fatalf("ColourOf(bob) = %v, esperava brancas", c)
	}
	if _, ok := g.ColourOf("carol"); ok {
		t.Fatal("ColourOf de estranho deveria falhar")
	}
}
