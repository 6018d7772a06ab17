package conf

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bootstrap 服务启动配置（configs/config.yaml）
type Bootstrap struct {
	Server  *Server  `json:"server"`
	Data    *Data    `json:"data"`
	Billing *Billing `json:"billing"`
	Cron    *Cron    `json:"cron"`
}

// Server 服务端配置
type Server struct {
	Http *Server_HTTP `json:"http"`
}

// Server_HTTP HTTP 服务配置
type Server_HTTP struct {
	Network string    `json:"network"`
	Addr    string    `json:"addr"`
	Timeout *Duration `json:"timeout"`
}

// Data 数据层配置
type Data struct {
	Database *Data_Database `json:"database"`
	Redis    *Data_Redis    `json:"redis"`
	Rocketmq *Data_RocketMQ `json:"rocketmq"`
}

// Data_Database 数据库配置
type Data_Database struct {
	Driver          string    `json:"driver"`
	Source          string    `json:"source"`
	MaxOpenConns    int       `json:"max_open_conns"`
	MaxIdleConns    int       `json:"max_idle_conns"`
	ConnMaxLifetime *Duration `json:"conn_max_lifetime"`
	AutoMigrate     bool      `json:"auto_migrate"`
}

// Data_Redis Redis 配置
type Data_Redis struct {
	Addr         string    `json:"addr"`
	Password     string    `json:"password"`
	Db           int       `json:"db"`
	ReadTimeout  *Duration `json:"read_timeout"`
	WriteTimeout *Duration `json:"write_timeout"`
}

// Data_RocketMQ RocketMQ 配置
type Data_RocketMQ struct {
	Enabled            bool     `json:"enabled"`
	NameServers        []string `json:"name_servers"`
	GroupName          string   `json:"group_name"`
	ProducerGroupName  string   `json:"producer_group_name"`
	RetryTimes         int32    `json:"retry_times"`
	LedgerTopic        string   `json:"ledger_topic"`
	MessageStatusTopic string   `json:"message_status_topic"`
	InvoicePaidTopic   string   `json:"invoice_paid_topic"`
}

// Billing 计费配置
type Billing struct {
	DefaultMode         string                     `json:"default_mode"`
	DefaultCurrency     string                     `json:"default_currency"`
	DefaultRates        map[string]decimal.Decimal `json:"default_rates"`
	LowBalanceThreshold decimal.Decimal            `json:"low_balance_threshold"`
	RefundCreditTtl     *Duration                  `json:"refund_credit_ttl"`
	LockWaitTimeout     *Duration                  `json:"lock_wait_timeout"`
}

// Cron 定时任务配置
type Cron struct {
	AuditSpec         string    `json:"audit_spec"`
	ExpiryReportSpec  string    `json:"expiry_report_spec"`
	JobLockExpiry     *Duration `json:"job_lock_expiry"`
	ExpiryReportAhead *Duration `json:"expiry_report_ahead"`
}

// Duration 支持 "5s"、"1m" 形式的时长配置
type Duration struct {
	time.Duration
}

// UnmarshalJSON 解析字符串或纳秒数
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration: %s", string(b))
	}
}

// AsDuration 返回 time.Duration，nil 时为 0
func (d *Duration) AsDuration() time.Duration {
	if d == nil {
		return 0
	}
	return d.Duration
}
