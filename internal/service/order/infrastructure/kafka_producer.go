package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/order/domain"
)

// OrderEventProducer 实现 port.OrderEventPublisher，把 OrderPlaced 事件写入 Kafka。
// 消息 key 为订单 ID，同一订单的后续事件落在同一分区。
type OrderEventProducer struct {
	writer *kafka.Writer
}

func NewOrderEventProducer(writer *kafka.Writer) *OrderEventProducer {
	return &OrderEventProducer{writer: writer}
}

func (p *OrderEventProducer) PublishOrderPlaced(ctx context.Context, event *domain.OrderPlaced) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal order placed event")
	}

	if err := mq.ProduceMessage(ctx, p.writer, []byte(event.OrderID), eventBytes); err != nil {
		return errors.Wrapf(err, "produce order placed event for order %s", event.OrderID)
	}
	logger.Ctx(ctx).Debug().Str("order_id", event.OrderID).Str("topic", p.writer.Topic).Msg("[Order: events] OrderPlaced published")
	return nil
}

func (p *OrderEventProducer) Close() error {
	return p.writer.Close()
}
