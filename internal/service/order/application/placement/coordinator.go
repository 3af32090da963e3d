package placement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
)

// Coordinator 负责管理整个下单责任链的事务生命周期：
// 开启事务、执行拆单/写订单/预占库存，成功提交，任何错误都回滚。
type Coordinator struct {
	store  domain.Store
	tracer trace.Tracer
	chain  Handler
	now    func() time.Time
}

type Option func(*Coordinator)

// WithIDGenerator 替换订单 ID 生成器
func WithIDGenerator(newID func() string) Option {
	return func(c *Coordinator) {
		c.chain = buildChain(newID)
	}
}

// WithClock 替换时间来源
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCoordinator(store domain.Store, tracer trace.Tracer, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		tracer: tracer,
		chain:  buildChain(nil),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// buildChain 负责构建和连接责任链中的所有处理器
func buildChain(newID func() string) Handler {
	chain := new(SplitHandler)
	chain.
		SetNext(NewHeaderWriter(newID)).
		SetNext(new(LineWriter)).
		SetNext(new(AggregateHandler)).
		SetNext(new(ReservationHandler))
	return chain
}

// PlaceOrder 在一个事务中完成一次下单。
// 调用方需要保证支付已预授权；本方法不做任何重试。
func (c *Coordinator) PlaceOrder(ctx context.Context, userID string, lines []domain.CartLine) (result *domain.CreationResult, err error) {
	if err := domain.ValidateCart(userID, lines); err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "placement.PlaceOrder", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.Int("cart.lines", len(lines)),
	))
	defer span.End()

	// 1. 开启事务
	tx, err := c.store.Begin(ctx)
	if err != nil {
		err = asTransactionError("begin", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin transaction failed")
		return nil, fmt.Errorf("place order for user %s: %w", userID, err)
	}

	pc := &PlacementContext{
		Ctx:    ctx,
		Tracer: c.tracer,
		Tx:     tx,
		UserID: userID,
		Lines:  lines,
		Now:    c.now(),
		state:  StateStarted,
	}

	// 2. 使用 defer 来确保无论过程如何（包括 panic），事务都会被收尾
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic recovered: %v", r)
		}
		if err == nil {
			return
		}

		failedAt := pc.state
		if rbErr := tx.Rollback(); rbErr != nil {
			err = errors.Join(err, asTransactionError("rollback", rbErr))
		}
		pc.advance(StateRolledBack)
		result = nil

		span.RecordError(err)
		span.SetStatus(codes.Error, "order placement rolled back")
		span.SetAttributes(attribute.String("placement.failed_at", string(failedAt)))
		logger.Ctx(ctx).Warn().Err(err).
			Str("user_id", userID).
			Str("failed_at", string(failedAt)).
			Bool("retryable", domain.IsRetryable(err)).
			Msg("【事务处理器】=> 检测到错误，事务已回滚")

		err = fmt.Errorf("place order for user %s (failed after %s): %w", userID, failedAt, err)
	}()

	// 3. 执行责任链
	if err = c.chain.Handle(pc); err != nil {
		return nil, err
	}

	// 4. 提交
	if err = tx.Commit(); err != nil {
		err = asTransactionError("commit", err)
		return nil, err
	}
	pc.advance(StateCommitted)

	result = pc.Result()
	span.SetAttributes(attribute.StringSlice("order.ids", result.OrderIDs))
	logger.Ctx(ctx).Info().
		Str("user_id", userID).
		Strs("order_ids", result.OrderIDs).
		Msg("【事务处理器】=> 流程成功，事务提交。")
	return result, nil
}

// asTransactionError 保留存储层已经分类好的事务错误（例如可重试的锁超时），否则包装为不可重试
func asTransactionError(op string, err error) error {
	var txErr *domain.TransactionError
	if errors.As(err, &txErr) {
		return err
	}
	return &domain.TransactionError{Op: op, Err: err}
}
