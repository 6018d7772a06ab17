package service

import (
	"context"
	nethttp "net/http"

	"github.com/go-kratos/kratos/v2/transport/http"
)

// HTTP 路由对应的 operation（用于中间件和日志）
const (
	OperationBillingServiceGetAccount       = "/billing.v1.BillingService/GetAccount"
	OperationBillingServiceListTransactions = "/billing.v1.BillingService/ListTransactions"
	OperationBillingServiceQuote            = "/billing.v1.BillingService/Quote"
	OperationBillingServiceCheckBalance     = "/billing.v1.BillingService/CheckBalance"
	OperationBillingServiceCharge           = "/billing.v1.BillingService/Charge"
	OperationBillingServiceRefund           = "/billing.v1.BillingService/Refund"
	OperationBillingServiceAddCredits       = "/billing.v1.BillingService/AddCredits"
	OperationBillingServiceCreateTopUp      = "/billing.v1.BillingService/CreateTopUp"
	OperationBillingServiceGetTopUp         = "/billing.v1.BillingService/GetTopUp"
	OperationBillingServiceGetPlatformCost  = "/billing.v1.BillingService/GetPlatformCost"
	OperationBillingServiceListVolumeTiers  = "/billing.v1.BillingService/ListVolumeTiers"

	OperationBillingInternalServiceInvoicePaid   = "/billing.v1.BillingInternalService/InvoicePaid"
	OperationBillingInternalServiceMessageStatus = "/billing.v1.BillingInternalService/MessageStatus"
	OperationBillingInternalServiceTopUp         = "/billing.v1.BillingInternalService/TopUp"
	OperationBillingInternalServiceSaveSettings  = "/billing.v1.BillingInternalService/SaveSettings"
)

// RegisterBillingServiceHTTPServer 注册对外路由
func RegisterBillingServiceHTTPServer(s *http.Server, srv *BillingService) {
	r := s.Route("/")
	r.GET("/v1/clients/{client_id}/account", handle(OperationBillingServiceGetAccount, srv.GetAccount, bindVars[GetAccountRequest]))
	r.GET("/v1/clients/{client_id}/transactions", handle(OperationBillingServiceListTransactions, srv.ListTransactions, bindQuery[ListTransactionsRequest], bindVars[ListTransactionsRequest]))
	r.POST("/v1/quotes", handle(OperationBillingServiceQuote, srv.Quote, bindBody[QuoteRequest]))
	r.POST("/v1/balance-checks", handle(OperationBillingServiceCheckBalance, srv.CheckBalance, bindBody[BalanceCheckRequest]))
	r.POST("/v1/charges", handle(OperationBillingServiceCharge, srv.Charge, bindBody[ChargeRequest]))
	r.POST("/v1/messages/{message_ref}/refund", handle(OperationBillingServiceRefund, srv.Refund, bindVars[RefundRequest]))
	r.POST("/v1/clients/{client_id}/credits", handle(OperationBillingServiceAddCredits, srv.AddCredits, bindBody[AddCreditsRequest], bindVars[AddCreditsRequest]))
	r.POST("/v1/topups", handle(OperationBillingServiceCreateTopUp, srv.CreateTopUp, bindBody[CreateTopUpRequest]))
	r.GET("/v1/topups/{invoice_id}", handle(OperationBillingServiceGetTopUp, srv.GetTopUp, bindVars[GetTopUpRequest]))
	r.GET("/v1/platform-costs", handle(OperationBillingServiceGetPlatformCost, srv.GetPlatformCost, bindQuery[PlatformCostRequest]))
	r.GET("/v1/platform-tiers", handle(OperationBillingServiceListVolumeTiers, srv.ListVolumeTiers, bindQuery[VolumeTiersRequest]))
}

// RegisterBillingInternalServiceHTTPServer 注册内部路由（支付回调、发送回调、管理端）
func RegisterBillingInternalServiceHTTPServer(s *http.Server, srv *BillingInternalService) {
	r := s.Route("/internal")
	r.POST("/v1/invoices/{invoice_id}/paid", handle(OperationBillingInternalServiceInvoicePaid, srv.InvoicePaid, bindVars[InvoicePaidRequest]))
	r.POST("/v1/messages/{message_ref}/status", handle(OperationBillingInternalServiceMessageStatus, srv.MessageStatus, bindBody[MessageStatusRequest], bindVars[MessageStatusRequest]))
	r.POST("/v1/clients/{client_id}/topup", handle(OperationBillingInternalServiceTopUp, srv.TopUp, bindBody[DirectTopUpRequest], bindVars[DirectTopUpRequest]))
	r.PUT("/v1/clients/{client_id}/settings", handle(OperationBillingInternalServiceSaveSettings, srv.SaveSettings, bindBody[SaveSettingsRequest], bindVars[SaveSettingsRequest]))
}

type binder[Req any] func(ctx http.Context, in *Req) error

func bindBody[Req any](ctx http.Context, in *Req) error  { return ctx.Bind(in) }
func bindVars[Req any](ctx http.Context, in *Req) error  { return ctx.BindVars(in) }
func bindQuery[Req any](ctx http.Context, in *Req) error { return ctx.BindQuery(in) }

// handle 绑定请求、经过 server 中间件链调用 srv 方法并返回 JSON
func handle[Req, Reply any](operation string, call func(context.Context, *Req) (*Reply, error), binds ...binder[Req]) http.HandlerFunc {
	return func(ctx http.Context) error {
		var in Req
		for _, bind := range binds {
			if err := bind(ctx, &in); err != nil {
				return err
			}
		}
		http.SetOperation(ctx, operation)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(ctx, req.(*Req))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(nethttp.StatusOK, out)
	}
}
