package server

import (
	"context"
	"encoding/json"

	"msg-billing/internal/biz"
	"msg-billing/internal/conf"
	"msg-billing/internal/constants"
	billingErrors "msg-billing/internal/errors"
	"msg-billing/internal/metrics"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/go-kratos/kratos/v2/log"
)

// 默认 topic
const (
	defaultMessageStatusTopic = "message_status"
	defaultInvoicePaidTopic   = "invoice_paid"
)

// MQConsumerServer 消费消息状态和账单支付事件，驱动结算回调
type MQConsumerServer struct {
	c          rocketmq.PushConsumer
	settlement *biz.SettlementUseCase
	conf       *conf.Data_RocketMQ
	log        *log.Helper
	metrics    *metrics.BillingMetrics
	enabled    bool
}

// NewMQConsumerServer creates a RocketMQ consumer server
func NewMQConsumerServer(c *conf.Bootstrap, settlement *biz.SettlementUseCase, logger log.Logger) *MQConsumerServer {
	helper := log.NewHelper(logger)
	if c.Data == nil || c.Data.Rocketmq == nil || !c.Data.Rocketmq.Enabled {
		return &MQConsumerServer{log: helper, enabled: false}
	}
	mq := c.Data.Rocketmq

	r, err := rocketmq.NewPushConsumer(
		consumer.WithNsResolver(primitive.NewPassthroughResolver(mq.NameServers)),
		consumer.WithGroupName(mq.GroupName),
		consumer.WithRetry(int(mq.RetryTimes)),
		consumer.WithConsumeMessageBatchMaxSize(32),
	)
	if err != nil {
		helper.Errorf("init consumer error: %v", err)
		return &MQConsumerServer{log: helper, enabled: false}
	}

	return &MQConsumerServer{
		c:          r,
		settlement: settlement,
		conf:       mq,
		log:        helper,
		metrics:    metrics.GetMetrics(),
		enabled:    true,
	}
}

func (s *MQConsumerServer) messageStatusTopic() string {
	if s.conf.MessageStatusTopic != "" {
		return s.conf.MessageStatusTopic
	}
	return defaultMessageStatusTopic
}

func (s *MQConsumerServer) invoicePaidTopic() string {
	if s.conf.InvoicePaidTopic != "" {
		return s.conf.InvoicePaidTopic
	}
	return defaultInvoicePaidTopic
}

// Start starts the consumer
func (s *MQConsumerServer) Start(ctx context.Context) error {
	if !s.enabled || s.c == nil {
		s.log.Infof("MQConsumerServer is disabled, skipping startup")
		return nil
	}

	subscriptions := map[string]func(context.Context, ...*primitive.MessageExt) (consumer.ConsumeResult, error){
		s.messageStatusTopic(): s.handleMessageStatus,
		s.invoicePaidTopic():   s.handleInvoicePaid,
	}
	for topic, handler := range subscriptions {
		if err := s.c.Subscribe(topic, consumer.MessageSelector{}, handler); err != nil {
			// 不返回错误，避免导致整个应用启动失败
			s.log.Errorf("Failed to subscribe to topic %s: %v", topic, err)
			return nil
		}
		s.log.Infof("MQConsumerServer subscribed, topic: %s", topic)
	}

	if err := s.c.Start(); err != nil {
		s.log.Errorf("Failed to start RocketMQ consumer: %v", err)
		return nil
	}
	return nil
}

// Stop stops the consumer
func (s *MQConsumerServer) Stop(ctx context.Context) error {
	if !s.enabled || s.c == nil {
		return nil
	}
	s.log.Info("Stopping MQConsumerServer")
	return s.c.Shutdown()
}

// handleMessageStatus 消息最终失败时退款；退款本身幂等，重复投递安全
func (s *MQConsumerServer) handleMessageStatus(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
	topic := s.messageStatusTopic()
	for _, msg := range msgs {
		var event biz.MessageStatusEvent
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			s.log.Errorf("Unmarshal message status failed: %v, body: %s", err, string(msg.Body))
			s.observe(topic, constants.ResultFailed)
			continue
		}
		if _, err := s.settlement.OnMessageStatus(ctx, &event); err != nil {
			if billingErrors.IsBusiness(err) {
				s.log.Warnf("Message status dropped: message_ref=%s, status=%s, error=%v", event.MessageRef, event.Status, err)
				s.observe(topic, constants.ResultFailed)
				continue
			}
			s.log.Errorf("OnMessageStatus failed: message_ref=%s, error=%v", event.MessageRef, err)
			s.observe(topic, constants.ResultFailed)
			return consumer.ConsumeRetryLater, nil
		}
		s.observe(topic, constants.ResultSuccess)
	}
	return consumer.ConsumeSuccess, nil
}

// handleInvoicePaid 账单已支付：结算入账；已完成的账单为 no-op
func (s *MQConsumerServer) handleInvoicePaid(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
	topic := s.invoicePaidTopic()
	for _, msg := range msgs {
		var event biz.InvoicePaidEvent
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			s.log.Errorf("Unmarshal invoice paid failed: %v, body: %s", err, string(msg.Body))
			s.observe(topic, constants.ResultFailed)
			continue
		}
		ok, err := s.settlement.ReconcileInvoice(ctx, event.InvoiceID)
		if err != nil {
			if billingErrors.IsBusiness(err) {
				s.log.Warnf("Invoice paid dropped: invoice_id=%s, error=%v", event.InvoiceID, err)
				s.observe(topic, constants.ResultFailed)
				continue
			}
			s.log.Errorf("ReconcileInvoice failed: invoice_id=%s, error=%v", event.InvoiceID, err)
			s.observe(topic, constants.ResultFailed)
			return consumer.ConsumeRetryLater, nil
		}
		if !ok {
			s.observe(topic, constants.ResultNoop)
			continue
		}
		s.observe(topic, constants.ResultSuccess)
	}
	return consumer.ConsumeSuccess, nil
}

func (s *MQConsumerServer) observe(topic, result string) {
	if s.metrics != nil {
		s.metrics.EventConsumeTotal.WithLabelValues(topic, result).Inc()
	}
}
