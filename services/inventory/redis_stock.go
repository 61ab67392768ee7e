package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// decreaseScript retira ARGV[1] unidades de KEYS[1] de forma atômica.
// Retorna -1 se a chave não existe, -2 se o estoque é insuficiente, ou o saldo restante.
var decreaseScript = redis.NewScript(`
local stock = tonumber(redis.call('get', KEYS[1]))
if not stock then
    return -1
end
local qty = tonumber(ARGV[1])
if stock < qty then
    return -2
end
return redis.call('decrby', KEYS[1], qty)
`)

// increaseScript devolve ARGV[1] unidades; -1 se a chave não existe
var increaseScript = redis.NewScript(`
if redis.call('exists', KEYS[1]) == 0 then
    return -1
end
return redis.call('incrby', KEYS[1], tonumber(ARGV[1]))
`)

// RedisStockStore guarda os contadores de estoque no Redis.
// O catálogo continua no PostgreSQL; Seed copia os saldos iniciais.
type RedisStockStore struct {
	client *redis.Client
}

func NewRedisStockStore(client *redis.Client) *RedisStockStore {
	return &RedisStockStore{client: client}
}

func stockKey(id int64) string {
	return fmt.Sprintf("inventory:stock:{%d}", id)
}

// Seed grava o saldo de cada tipo que ainda não tem contador no Redis
func (s *RedisStockStore) Seed(ctx context.Context, types []TicketType) error {
	pipe := s.client.Pipeline()
	for _, tt := range types {
		pipe.SetNX(ctx, stockKey(tt.ID), tt.AvailableQty, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to seed redis stock: %w", err)
	}
	return nil
}

func (s *RedisStockStore) Decrease(ctx context.Context, id int64, quantity int) (int, error) {
	code, err := decreaseScript.Run(ctx, s.client, []string{stockKey(id)}, quantity).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to run decrease script: %w", err)
	}
	return scriptResult(code)
}

func (s *RedisStockStore) Increase(ctx context.Context, id int64, quantity int) (int, error) {
	code, err := increaseScript.Run(ctx, s.client, []string{stockKey(id)}, quantity).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to run increase script: %w", err)
	}
	return scriptResult(code)
}

func (s *RedisStockStore) Available(ctx context.Context, id int64) (int, error) {
	val, err := s.client.Get(ctx, stockKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrTicketTypeNotFound
		}
		return 0, fmt.Errorf("failed to read redis stock: %w", err)
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid stock value %q: %w", val, err)
	}
	return n, nil
}

func scriptResult(code int64) (int, error) {
	switch {
	case code == -1:
		return 0, ErrTicketTypeNotFound
	case code == -2:
		return 0, ErrInsufficientStock
	case code < 0:
		return 0, fmt.Errorf("unknown result code from stock script: %d", code)
	default:
		return int(code), nil
	}
}
