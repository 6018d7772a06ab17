package data

import (
	"context"
	"encoding/json"
	"fmt"

	"msg-billing/internal/biz"
	"msg-billing/internal/conf"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"github.com/go-kratos/kratos/v2/log"
)

// 默认账本事件 topic
const defaultLedgerTopic = "ledger_events"

// rocketmqPublisher 通过 RocketMQ 发送账本事件
type rocketmqPublisher struct {
	p     rocketmq.Producer
	topic string
	log   *log.Helper
}

// noopPublisher RocketMQ 未启用时只记录日志
type noopPublisher struct {
	log *log.Helper
}

// NewEventPublisher 创建账本事件发布器；RocketMQ 未启用或启动失败时退化为 noop
func NewEventPublisher(c *conf.Bootstrap, logger log.Logger) (biz.EventPublisher, func(), error) {
	helper := log.NewHelper(logger)
	if c.Data == nil || c.Data.Rocketmq == nil || !c.Data.Rocketmq.Enabled {
		helper.Info("RocketMQ disabled, ledger events will only be logged")
		return &noopPublisher{log: helper}, func() {}, nil
	}
	mq := c.Data.Rocketmq

	group := mq.ProducerGroupName
	if group == "" {
		group = mq.GroupName + "_producer"
	}
	p, err := rocketmq.NewProducer(
		producer.WithNsResolver(primitive.NewPassthroughResolver(mq.NameServers)),
		producer.WithGroupName(group),
		producer.WithRetry(int(mq.RetryTimes)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("init rocketmq producer: %w", err)
	}
	if err := p.Start(); err != nil {
		// 不阻断启动，开发环境中 RocketMQ 可能不可用
		helper.Errorf("Failed to start RocketMQ producer, falling back to noop: %v", err)
		return &noopPublisher{log: helper}, func() {}, nil
	}

	topic := mq.LedgerTopic
	if topic == "" {
		topic = defaultLedgerTopic
	}
	cleanup := func() {
		if err := p.Shutdown(); err != nil {
			helper.Errorf("failed to shutdown rocketmq producer: %v", err)
		}
	}
	return &rocketmqPublisher{p: p, topic: topic, log: helper}, cleanup, nil
}

// PublishLedgerEvent 同步发送，key 为 client_id，tag 为流水类型
func (r *rocketmqPublisher) PublishLedgerEvent(ctx context.Context, event *biz.LedgerEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal ledger event: %w", err)
	}
	msg := primitive.NewMessage(r.topic, body)
	msg.WithKeys([]string{event.ClientID, event.EventID})
	msg.WithTag(event.Type)

	res, err := r.p.SendSync(ctx, msg)
	if err != nil {
		return fmt.Errorf("send ledger event: %w", err)
	}
	if res.Status != primitive.SendOK {
		return fmt.Errorf("send ledger event: status=%d", res.Status)
	}
	return nil
}

func (n *noopPublisher) PublishLedgerEvent(ctx context.Context, event *biz.LedgerEvent) error {
	n.log.Debugf("ledger event: client_id=%s, type=%s, unit=%s, amount=%s, ref=%s/%s",
		event.ClientID, event.Type, event.Unit, event.Amount, event.ReferenceType, event.ReferenceID)
	return nil
}
