package ratelimit

import (
	"testing"
	"time"
)

func TestConsumeUntilEmpty(t *testing.T) {
	b := NewTokenBucket(3, 1, time.Hour)

	for i := 0; i < 3; i++ {
		if !b.ConsumeToken() {
			t.Fatalf("token %d: esperava admissão", i)
		}
	}
	if b.ConsumeToken() {
		t.Fatal("bucket vazio deveria rejeitar")
	}
	if got := b.Tokens(); got != 0 {
		t.Fatalf("Tokens() = %d, esperava 0", got)
	}
}

func TestRefillNeverExceedsCapacity(t *testing.T) {
	b := NewTokenBucket(5, 3, time.Hour)

	b.refill()
	if got := b.Tokens(); got != 5 {
		t.Fatalf("Tokens() = %d, esperava manter a capacidade 5", got)
	}

	b.ConsumeToken()
	b.ConsumeToken()
	b.refill()
	if got := b.Tokens(); got != 5 {
		t.Fatalf("Tokens() = %d, esperava voltar ao teto 5", got)
	}
}

func TestRefillPartial(t *testing.T) {
	b := NewTokenBucket(10, 2, time.Hour)
	for i := 0; i < 10; i++ {
		b.ConsumeToken()
	}

	b.refill()
	if got := b.Tokens(); got != 2 {
		t.Fatalf("Tokens() = %d, esperava 2 após um ciclo", got)
	}
}

func TestStopRefillerIsIdempotent(t *testing.T) {
	b := NewTokenBucket(1, 1, time.Millisecond)
	b.StartRefiller()
	b.StopRefiller()
	b.StopRefiller() // Não pode entrar em pânico.
}
