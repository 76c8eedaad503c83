package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"sales-engine/internal/domain"
)

// Product stock lives in a hash per store/product with the fields name,
// quantity and reserved. All mutations run as Lua so that concurrent
// instances never oversell.
const (
	reserveScript = `
        if redis.call('EXISTS', KEYS[1]) == 0 then
            return -1
        end
        local quantity = tonumber(redis.call('HGET', KEYS[1], 'quantity') or '0')
        local reserved = tonumber(redis.call('HGET', KEYS[1], 'reserved') or '0')
        local wanted = tonumber(ARGV[1])

        if quantity - reserved < wanted then
            return 0
        end
        redis.call('HINCRBY', KEYS[1], 'reserved', wanted)
        return 1
    `

	unreserveScript = `
        local reserved = tonumber(redis.call('HGET', KEYS[1], 'reserved') or '0')
        local released = tonumber(ARGV[1])
        if released > reserved then
            released = reserved
        end
        redis.call('HSET', KEYS[1], 'reserved', reserved - released)
        return released
    `

	sellScript = `
        local reserved = tonumber(redis.call('HGET', KEYS[1], 'reserved') or '0')
        local sold = tonumber(ARGV[1])
        if reserved < sold then
            return 0
        end
        redis.call('HINCRBY', KEYS[1], 'reserved', -sold)
        redis.call('HINCRBY', KEYS[1], 'quantity', -sold)
        return 1
    `
)

type RedisInventory struct {
	client *redis.Client
}

func NewRedisInventory(client *redis.Client) *RedisInventory {
	return &RedisInventory{client: client}
}

func productKey(storeID, productID string) string {
	return fmt.Sprintf("store:%s:product:%s", storeID, productID)
}

// SeedProduct sets the name and quantity of product. Units already reserved
// stay reserved.
func (r *RedisInventory) SeedProduct(ctx context.Context, product domain.Product) error {
	key := productKey(product.StoreID, product.ID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "name", product.Name, "quantity", product.Quantity)
		pipe.HSetNX(ctx, key, "reserved", 0)
		return nil
	})
	return err
}

func (r *RedisInventory) Reserve(ctx context.Context, storeID, productID string, qty int) (bool, error) {
	result, err := r.client.Eval(ctx, reserveScript, []string{productKey(storeID, productID)}, qty).Int64()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

func (r *RedisInventory) Unreserve(ctx context.Context, storeID, productID string, qty int) error {
	return r.client.Eval(ctx, unreserveScript, []string{productKey(storeID, productID)}, qty).Err()
}

func (r *RedisInventory) Sell(ctx context.Context, storeID, productID string, qty int) error {
	result, err := r.client.Eval(ctx, sellScript, []string{productKey(storeID, productID)}, qty).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return fmt.Errorf("sell %d of %s: not reserved", qty, productID)
	}
	return nil
}

func (r *RedisInventory) GetProduct(ctx context.Context, storeID, productID string) (*domain.Product, error) {
	fields, err := r.client.HGetAll(ctx, productKey(storeID, productID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, domain.NewNotFoundError(fmt.Sprintf("product %s not found", productID))
	}

	quantity, err := parseCount(fields, "quantity")
	if err != nil {
		return nil, err
	}
	reserved, err := parseCount(fields, "reserved")
	if err != nil {
		return nil, err
	}

	return &domain.Product{
		ID:       productID,
		StoreID:  storeID,
		Name:     fields["name"],
		Quantity: quantity,
		Reserved: reserved,
	}, nil
}

func parseCount(fields map[string]string, name string) (int, error) {
	raw, ok := fields[name]
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("corrupt %s field %q: %w", name, raw, err)
	}
	return n, nil
}
