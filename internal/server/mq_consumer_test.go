package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"msg-billing/internal/biz"
	"msg-billing/internal/conf"
	"msg-billing/internal/data"

	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/glebarez/sqlite"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newConsumerFixture(t *testing.T) (*MQConsumerServer, *biz.LedgerUseCase, *biz.SettlementUseCase) {
	t.Helper()
	l := log.NewStdLogger(io.Discard)

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, data.Migrate(db))

	bc := &conf.Bootstrap{}
	cfg := biz.NewBillingConfig(bc)
	events, cleanup, err := data.NewEventPublisher(bc, l)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	d := data.NewDataWith(db, nil, l)
	ledgerRepo := data.NewLedgerRepo(d, l)
	settings := biz.NewSettingsUseCase(data.NewSettingsRepo(d, l), cfg, l)
	ledger := biz.NewLedgerUseCase(ledgerRepo, settings, events, cfg, l)
	settlement := biz.NewSettlementUseCase(ledger, ledgerRepo, data.NewTopUpRepo(d, l), l)

	s := &MQConsumerServer{
		settlement: settlement,
		conf:       &conf.Data_RocketMQ{},
		log:        log.NewHelper(l),
	}
	return s, ledger, settlement
}

func message(t *testing.T, v interface{}) *primitive.MessageExt {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return &primitive.MessageExt{Message: primitive.Message{Body: body}}
}

func TestMQConsumer_Disabled(t *testing.T) {
	s := NewMQConsumerServer(&conf.Bootstrap{}, nil, log.NewStdLogger(io.Discard))
	assert.NoError(t, s.Start(context.Background()))
	assert.NoError(t, s.Stop(context.Background()))
}

func TestMQConsumer_Topics(t *testing.T) {
	s := &MQConsumerServer{conf: &conf.Data_RocketMQ{}}
	assert.Equal(t, defaultMessageStatusTopic, s.messageStatusTopic())
	assert.Equal(t, defaultInvoicePaidTopic, s.invoicePaidTopic())

	s.conf.MessageStatusTopic = "sms_status"
	assert.Equal(t, "sms_status", s.messageStatusTopic())
}

func TestMQConsumer_InvoicePaid(t *testing.T) {
	ctx := context.Background()
	s, ledger, settlement := newConsumerFixture(t)

	_, err := settlement.CreatePendingTopUp(ctx, "c1", "500", decimal.NewFromInt(20))
	require.NoError(t, err)

	msg := message(t, biz.InvoicePaidEvent{InvoiceID: "500"})
	res, err := s.handleInvoicePaid(ctx, msg, msg)
	require.NoError(t, err)
	assert.Equal(t, consumer.ConsumeSuccess, res)

	account, err := ledger.GetAccount(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(20)))
}

func TestMQConsumer_MessageStatus(t *testing.T) {
	ctx := context.Background()
	s, ledger, _ := newConsumerFixture(t)

	_, err := ledger.TopUp(ctx, "c1", decimal.NewFromInt(1), "seed", "")
	require.NoError(t, err)
	_, err = ledger.Debit(ctx, "c1", "m1", decimal.RequireFromString("0.25"))
	require.NoError(t, err)

	res, err := s.handleMessageStatus(ctx,
		&primitive.MessageExt{Message: primitive.Message{Body: []byte("not json")}},
		message(t, biz.MessageStatusEvent{MessageRef: "m1", Status: "sent"}),
		message(t, biz.MessageStatusEvent{Status: "failed"}),
		message(t, biz.MessageStatusEvent{MessageRef: "m1", Status: "failed"}),
		message(t, biz.MessageStatusEvent{MessageRef: "m1", Status: "failed"}),
	)
	require.NoError(t, err)
	assert.Equal(t, consumer.ConsumeSuccess, res)

	account, err := ledger.GetAccount(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(1)))
}
