package registry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"dechecs/internal/game"
)

// fakeCache é um Cache em memória para os testes do registro.
type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), raw...), nil
}

func (c *fakeCache) Set(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = append([]byte(nil), value...)
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *fakeCache) Keys(ctx context.Context, prefix string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []string
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func newTestRegistry() (*Registry, *fakeCache) {
	cache := newFakeCache()
	return New(cache, zap.NewNop().Sugar()), cache
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	r, cache := newTestRegistry()

	g := game.New("g1", "alice", 5, 0.5, "0xA", 3)
	if err := r.Create(ctx, g); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := r.Get(ctx, "g1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "g1" || got.Creator() != "alice" {
		t.Fatalf("Get devolveu %+v", got)
	}

	// A forma serializada tem que estar no cache.
	if raw, _ := cache.Get(ctx, "game:g1"); raw == nil {
		t.Fatal("partida não persistida no cache")
	}

	// Get devolve cópia: mutar o resultado não vaza para o registro.
	got.State = game.StateFinished
	again, _ := r.Get(ctx, "g1")
	if again.State != game.StateOpen {
		t.Fatal("mutação na cópia vazou para o registro")
	}
}

func TestGetByConn(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry()

	g := game.New("g1", "alice", 5, 0, "0xA", 1)
	if err := r.Create(ctx, g); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := r.GetByConn(ctx, "alice")
	if err != nil || got.ID != "g1" {
		t.Fatalf("GetByConn(alice) = %v, %v", got, err)
	}
	if _, err := r.GetByConn(ctx, "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByConn(bob) err = %v, esperava ErrNotFound", err)
	}
}

func TestMutatePersistsAndIndexes(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry()

	if err := r.Create(ctx, game.New("g1", "alice", 5, 0, "0xA", 1)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	err := r.Mutate(ctx, "g1", func(g *game.Game) error {
		g.Players = append(g.Players, "bob")
		g.MatchScore["bob"] = 0
		g.State = game.StateInProgress
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	// O segundo jogador entra no índice conexão->partida.
	got, err := r.GetByConn(ctx, "bob")
	if err != nil || got.ID != "g1" {
		t.Fatalf("GetByConn(bob) = %v, %v", got, err)
	}
}

func TestMutateErrorDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry()

	if err := r.Create(ctx, game.New("g1", "alice", 5, 0, "0xA", 1)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	boom := errors.New("boom")
	if err := r.Mutate(ctx, "g1", func(g *game.Game) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Mutate err = %v", err)
	}
}

func TestLookupRevalidatesFromCache(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()

	// Primeira "instância" cria e persiste.
	first := New(cache, zap.NewNop().Sugar())
	if err := first.Create(ctx, game.New("g1", "alice", 5, 0, "0xA", 1)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Segunda instância, mapa local vazio: tem que achar pelo cache.
	second := New(cache, zap.NewNop().Sugar())
	got, err := second.Get(ctx, "g1")
	if err != nil || got.ID != "g1" {
		t.Fatalf("Get via cache = %v, %v", got, err)
	}
	byConn, err := second.GetByConn(ctx, "alice")
	if err != nil || byConn.ID != "g1" {
		t.Fatalf("GetByConn via cache = %v, %v", byConn, err)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	r, cache := newTestRegistry()

	if err := r.Create(ctx, game.New("g1", "alice", 5, 0, "0xA", 1)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Remove(ctx, "g1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if _, err := r.Get(ctx, "g1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get após Remove err = %v", err)
	}
	if _, err := r.GetByConn(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByConn após Remove err = %v", err)
	}
	if raw, _ := cache.Get(ctx, "game:g1"); raw != nil {
		t.Fatal("chave ainda no cache após Remove")
	}
}

// gateCache segura escritas no ponto exato da persistência para exercitar
// interleavings de Mutate e Remove.
type gateCache struct {
	*fakeCache
	beforeSet func(key string)
}

func (c *gateCache) Set(ctx context.Context, key string, value []byte) error {
	if c.beforeSet != nil {
		c.beforeSet(key)
	}
	return c.fakeCache.Set(ctx, key, value)
}

func TestRemoveDuringMutateDoesNotResurrect(t *testing.T) {
	ctx := context.Background()
	cache := &gateCache{fakeCache: newFakeCache()}
	r := New(cache, zap.NewNop().Sugar())

	if err := r.Create(ctx, game.New("g1", "alice", 5, 0, "0xA", 1)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	cache.beforeSet = func(string) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}

	done := make(chan error, 2)
	go func() {
		done <- r.Mutate(ctx, "g1", func(g *game.Game) error {
			g.Round = 7
			return nil
		})
	}()
	<-entered
	go func() {
		done <- r.Remove(ctx, "g1")
	}()
	// Janela para o Remove alcançar o lock da partida.
	time.Sleep(20 * time.Millisecond)
	close(release)
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("operação concorrente: %v", err)
		}
	}

	if raw, _ := cache.Get(ctx, "game:g1"); raw != nil {
		t.Fatal("a persistência em voo ressuscitou a chave removida")
	}
	// Uma instância nova não pode reidratar a partida removida.
	fresh := New(cache.fakeCache, zap.NewNop().Sugar())
	if _, err := fresh.GetByConn(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByConn após Remove err = %v, esperava ErrNotFound", err)
	}
}

func TestMutateAfterRemoveFails(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry()

	if err := r.Create(ctx, game.New("g1", "alice", 5, 0, "0xA", 1)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Remove(ctx, "g1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	err := r.Mutate(ctx, "g1", func(g *game.Game) error { return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Mutate após Remove err = %v, esperava ErrNotFound", err)
	}
}

func TestClearWipesEverything(t *testing.T) {
	ctx := context.Background()
	r, cache := newTestRegistry()

	for _, id := range []string{"g1", "g2", "g3"} {
		if err := r.Create(ctx, game.New(id, "conn-"+id, 5, 0, "0xA", 1)); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}
	if err := r.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	ids, err := r.ActiveIDs(ctx)
	if err != nil {
		t.Fatalf("ActiveIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("ActiveIDs após Clear = %v", ids)
	}
	if keys, _ := cache.Keys(ctx, KeyPrefix); len(keys) != 0 {
		t.Fatalf("chaves remanescentes: %v", keys)
	}
}

func TestActiveIDs(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry()

	if err := r.Create(ctx, game.New("g1", "alice", 5, 0, "0xA", 1)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	ids, err := r.ActiveIDs(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "g1" {
		t.Fatalf("ActiveIDs = %v, %v", ids, err)
	}
}
