package registry

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache é o armazenamento efêmero compartilhado entre instâncias do servidor.
// A forma serializada no cache é autoritativa; o índice em memória do
// Registry é só um cache de desempenho por cima dela.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error) // (nil, nil) quando a chave não existe.
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Entradas órfãs (instância que caiu sem limpar) expiram sozinhas.
const cacheTTL = 24 * time.Hour

// RedisCache implementa Cache sobre um cliente go-redis.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	return c.rdb.Set(ctx, key, value, cacheTTL).Err()
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// Keys varre o keyspace por prefixo usando SCAN (KEYS bloquearia o Redis).
func (c *RedisCache) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}
