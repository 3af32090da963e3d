package application

import (
	"context"
	"sync"

	"storefront/internal/pkg/logger"
)

// compensations 记录已完成步骤的补偿动作，按注册的逆序执行
type compensations struct {
	mu    sync.Mutex
	funcs []func(ctx context.Context)
}

func (c *compensations) add(comp func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funcs = append([]func(context.Context){comp}, c.funcs...)
}

func (c *compensations) trigger(ctx context.Context, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	logger.Ctx(ctx).Info().Str("user_id", userID).Int("count", len(c.funcs)).Msg("[Order: checkout] executing compensation functions")
	for _, comp := range c.funcs {
		comp(ctx)
	}
	c.funcs = nil
}
