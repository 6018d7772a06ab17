package main

import "msg-billing/internal/biz"

// CronApp Cron 应用结构
type CronApp struct {
	audit *biz.AuditUseCase
}
