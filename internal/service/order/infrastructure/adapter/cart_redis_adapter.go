package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"storefront/internal/pkg/redis"
	"storefront/internal/service/order/domain"
)

const removeCartLinesScriptName = "remove_cart_lines"

// CartRedisAdapter 是 port.CartProvider 接口的 Redis 实现。
// 每个用户的购物车是一个 hash：field 为 "productId|shopId|size"，value 为 JSON 编码的数量与单价。
type CartRedisAdapter struct {
	redisClient *redis.Client
}

type cartEntry struct {
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unitPrice"`
}

// NewCartRedisAdapter 创建适配器，并预加载清理购物车的 Lua 脚本
func NewCartRedisAdapter(redisClient *redis.Client) (*CartRedisAdapter, error) {
	if err := redisClient.LoadScriptFromContent(removeCartLinesScriptName, removeCartLinesScript); err != nil {
		return nil, fmt.Errorf("failed to load cart script: %w", err)
	}
	return &CartRedisAdapter{redisClient: redisClient}, nil
}

func cartKey(userID string) string {
	return fmt.Sprintf("cart:{%s}", userID)
}

func cartField(k domain.InventoryKey) string {
	return k.ProductID + "|" + k.ShopID + "|" + k.Size
}

func parseCartField(field string) (domain.InventoryKey, error) {
	parts := strings.Split(field, "|")
	if len(parts) != 3 {
		return domain.InventoryKey{}, fmt.Errorf("malformed cart field %q", field)
	}
	return domain.InventoryKey{ProductID: parts[0], ShopID: parts[1], Size: parts[2]}, nil
}

func encodeCartEntry(l domain.CartLine) (string, error) {
	b, err := json.Marshal(cartEntry{Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Load 读取购物车，按库存键排序返回
func (a *CartRedisAdapter) Load(ctx context.Context, userID string) ([]domain.CartLine, error) {
	fields, err := a.redisClient.GetClient().HGetAll(ctx, cartKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load cart of user %s: %w", userID, err)
	}

	lines := make([]domain.CartLine, 0, len(fields))
	for field, value := range fields {
		key, err := parseCartField(field)
		if err != nil {
			return nil, err
		}
		var e cartEntry
		if err := json.Unmarshal([]byte(value), &e); err != nil {
			return nil, fmt.Errorf("decode cart line %q: %w", field, err)
		}
		lines = append(lines, domain.CartLine{
			ProductID: key.ProductID,
			ShopID:    key.ShopID,
			Size:      key.Size,
			Quantity:  e.Quantity,
			UnitPrice: e.UnitPrice,
		})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Key().Less(lines[j].Key()) })
	return lines, nil
}

// Save 覆盖写入购物车行（购物车服务与测试使用）
func (a *CartRedisAdapter) Save(ctx context.Context, userID string, lines []domain.CartLine) error {
	values := make(map[string]any, len(lines))
	for _, l := range lines {
		v, err := encodeCartEntry(l)
		if err != nil {
			return err
		}
		values[cartField(l.Key())] = v
	}
	if len(values) == 0 {
		return nil
	}
	return a.redisClient.GetClient().HSet(ctx, cartKey(userID), values).Err()
}

// Remove 只删除内容与结算时一致的行；结算期间被修改过的行保留在购物车中
func (a *CartRedisAdapter) Remove(ctx context.Context, userID string, lines []domain.CartLine) error {
	if len(lines) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(lines)*2)
	for _, l := range lines {
		v, err := encodeCartEntry(l)
		if err != nil {
			return err
		}
		args = append(args, cartField(l.Key()), v)
	}

	result, err := a.redisClient.RunScript(ctx, removeCartLinesScriptName, []string{cartKey(userID)}, args...)
	if err != nil {
		return fmt.Errorf("cart adapter failed to run script: %w", err)
	}
	if _, ok := result.(int64); !ok {
		return fmt.Errorf("unexpected result type from Lua script: %T", result)
	}
	return nil
}

var removeCartLinesScript = `
-- KEYS[1]: 购物车 hash, 例如: cart:{user-1}
-- ARGV: field1, value1, field2, value2, ...
-- 返回实际删除的行数

local removed = 0
for i = 1, #ARGV, 2 do
    if redis.call('hget', KEYS[1], ARGV[i]) == ARGV[i + 1] then
        redis.call('hdel', KEYS[1], ARGV[i])
        removed = removed + 1
    end
end
return removed
`
