// Package ratelimit implementa o token bucket que controla a admissão de
// novas conexões. Ficar sem tokens é uma rejeição normal, não um erro.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket guarda um contador de tokens limitado pela capacidade.
// ConsumeToken é o único escritor do lado do consumo; o refiller é o único
// escritor do lado do reabastecimento. Ambos disputam o mesmo mutex, então
// qualquer número de goroutines de conexão pode chamar ConsumeToken.
type TokenBucket struct {
	mu     sync.Mutex
	tokens int

	capacity     int
	refillAmount int
	interval     time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewTokenBucket cria um bucket cheio. O refiller só roda depois de
// StartRefiller.
func NewTokenBucket(capacity, refillAmount int, interval time.Duration) *TokenBucket {
	return &TokenBucket{
		tokens:       capacity,
		capacity:     capacity,
		refillAmount: refillAmount,
		interval:     interval,
		stop:         make(chan struct{}),
	}
}

// ConsumeToken decrementa o contador se houver ao menos um token.
// Nunca bloqueia.
func (b *TokenBucket) ConsumeToken() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Tokens devolve o contador atual.
func (b *TokenBucket) Tokens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// StartRefiller inicia o laço periódico de reabastecimento. Deve ser chamado
// uma vez, na subida do processo.
func (b *TokenBucket) StartRefiller() {
	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.refill()
			case <-b.stop:
				return
			}
		}
	}()
}

// StopRefiller encerra o laço de reabastecimento. Seguro chamar mais de
// uma vez.
func (b *TokenBucket) StopRefiller() {
	b.stopOnce.Do(func() { close(b.stop) })
}

func (b *TokenBucket) refill() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens += b.refillAmount
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
}
