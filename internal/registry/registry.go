// Package registry é o dono exclusivo do estado das partidas. Controllers
// obtêm acesso mutável de curta duração via Mutate; leituras devolvem cópias.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"dechecs/internal/game"
)

// ErrNotFound indica que a partida não existe nem em memória nem no cache.
var ErrNotFound = errors.New("game not found")

// KeyPrefix é o prefixo das chaves de partida no cache. A limpeza de
// shutdown varre este prefixo.
const KeyPrefix = "game:"

// entry serializa eventos concorrentes para a MESMA partida. Partidas
// diferentes têm entries (e mutexes) diferentes, então não contendem.
type entry struct {
	mu      sync.Mutex
	removed bool // Marcada sob mu; mutações enfileiradas desistem.
	game    *game.Game
}

// Registry mapeia identidade de partida e de conexão para o estado da
// partida. O cache externo é a forma autoritativa; o mapa local é
// revalidado contra ele em caso de miss.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	byConn  map[string]string // connID -> gameID, índice derivado.

	cache Cache
	log   *zap.SugaredLogger
}

func New(cache Cache, log *zap.SugaredLogger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		byConn:  make(map[string]string),
		cache:   cache,
		log:     log,
	}
}

func key(id string) string { return KeyPrefix + id }

// Create registra uma partida nova e persiste a forma autoritativa.
func (r *Registry) Create(ctx context.Context, g *game.Game) error {
	if err := r.persist(ctx, g); err != nil {
		return err
	}
	r.mu.Lock()
	r.entries[g.ID] = &entry{game: g}
	for _, p := range g.Players {
		r.byConn[p] = g.ID
	}
	r.mu.Unlock()
	return nil
}

// Get devolve uma cópia da partida (projeção de leitura).
func (r *Registry) Get(ctx context.Context, id string) (*game.Game, error) {
	e, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, ErrNotFound
	}
	return e.game.Clone(), nil
}

// GetByConn devolve uma cópia da partida em que a conexão participa.
func (r *Registry) GetByConn(ctx context.Context, connID string) (*game.Game, error) {
	r.mu.RLock()
	id, ok := r.byConn[connID]
	r.mu.RUnlock()
	if !ok {
		// Revalida contra o cache: a conexão pode ter sido vinculada por
		// outra instância antes de um reconnect cair aqui.
		var err error
		id, err = r.scanForConn(ctx, connID)
		if err != nil {
			return nil, err
		}
	}
	return r.Get(ctx, id)
}

// Mutate aplica fn sob o lock da partida e persiste o resultado. Dois
// eventos concorrentes para a mesma partida são aplicados em alguma ordem
// serial; nenhum estado intermediário fica visível.
func (r *Registry) Mutate(ctx context.Context, id string, fn func(*game.Game) error) error {
	e, err := r.lookup(ctx, id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return ErrNotFound
	}
	if err := fn(e.game); err != nil {
		return err
	}
	if err := r.persist(ctx, e.game); err != nil {
		return err
	}
	r.syncIndex(e.game)
	return nil
}

// Remove apaga a partida do registro, do índice e do cache. Segura o lock
// da partida antes de apagar a chave: uma mutação em voo termina de
// persistir primeiro e a chave apagada não reaparece.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if ok {
		e.mu.Lock()
		e.removed = true
		r.mu.Lock()
		for _, p := range e.game.Players {
			if r.byConn[p] == id {
				delete(r.byConn, p)
			}
		}
		delete(r.entries, id)
		r.mu.Unlock()
		e.mu.Unlock()
	}
	if err := r.cache.Del(ctx, key(id)); err != nil {
		return fmt.Errorf("cache del: %w", err)
	}
	return nil
}

// Clear remove todas as partidas do cache (limpeza de shutdown).
func (r *Registry) Clear(ctx context.Context) error {
	r.mu.Lock()
	r.entries = make(map[string]*entry)
	r.byConn = make(map[string]string)
	r.mu.Unlock()

	keys, err := r.cache.Keys(ctx, KeyPrefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := r.cache.Del(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// ActiveIDs lista as partidas presentes no cache (usado pelo endpoint de
// estatísticas, que enxerga todas as instâncias).
func (r *Registry) ActiveIDs(ctx context.Context) ([]string, error) {
	keys, err := r.cache.Keys(ctx, KeyPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, KeyPrefix))
	}
	return ids, nil
}

// lookup encontra (ou revalida a partir do cache) a entry de uma partida.
func (r *Registry) lookup(ctx context.Context, id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	raw, err := r.cache.Get(ctx, key(id))
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	var g game.Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("corrupt cache entry for %s: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Outra goroutine pode ter revalidado enquanto decodificávamos.
	if e, ok := r.entries[id]; ok {
		return e, nil
	}
	e = &entry{game: &g}
	r.entries[id] = e
	for _, p := range g.Players {
		r.byConn[p] = id
	}
	return e, nil
}

// scanForConn procura no cache uma partida que contenha a conexão.
func (r *Registry) scanForConn(ctx context.Context, connID string) (string, error) {
	keys, err := r.cache.Keys(ctx, KeyPrefix)
	if err != nil {
		return "", fmt.Errorf("cache scan: %w", err)
	}
	for _, k := range keys {
		raw, err := r.cache.Get(ctx, k)
		if err != nil || raw == nil {
			continue
		}
		var g game.Game
		if err := json.Unmarshal(raw, &g); err != nil {
			continue
		}
		for _, p := range g.Players {
			if p == connID {
				return g.ID, nil
			}
		}
	}
	return "", ErrNotFound
}

func (r *Registry) persist(ctx context.Context, g *game.Game) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	if err := r.cache.Set(ctx, key(g.ID), raw); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// syncIndex mantém o índice conexão->partida alinhado após uma mutação
// (acceptGame vincula o segundo jogador).
func (r *Registry) syncIndex(g *game.Game) {
	r.mu.Lock()
	for _, p := range g.Players {
		r.byConn[p] = g.ID
	}
	r.mu.Unlock()
}
