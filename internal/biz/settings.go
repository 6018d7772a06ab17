package biz

import (
	"context"
	"strings"
	"time"

	"msg-billing/internal/constants"
	billingErrors "msg-billing/internal/errors"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// BillingSettings 客户计费设置领域对象
type BillingSettings struct {
	ClientID  string
	Mode      string // per_message / per_segment / wallet / plan
	Currency  string
	UpdatedAt time.Time
}

// Unit 该计费模式下的计量单位
func (s *BillingSettings) Unit() string {
	if s.Mode == constants.BillingModePlan {
		return constants.UnitCredit
	}
	return constants.UnitCurrency
}

// IsValidBillingMode 校验计费模式
func IsValidBillingMode(mode string) bool {
	switch mode {
	case constants.BillingModePerMessage, constants.BillingModePerSegment,
		constants.BillingModeWallet, constants.BillingModePlan:
		return true
	}
	return false
}

// SettingsRepo 计费设置数据层接口（定义在 biz 层）
type SettingsRepo interface {
	GetBillingSettings(ctx context.Context, clientID string) (*BillingSettings, error)
	SaveBillingSettings(ctx context.Context, settings *BillingSettings) error
}

// SettingsUseCase 计费设置业务逻辑
// 账本只读取计费设置，写入只来自管理端
type SettingsUseCase struct {
	repo SettingsRepo
	conf *BillingConfig
	log  *log.Helper
}

// NewSettingsUseCase 创建计费设置 UseCase
func NewSettingsUseCase(repo SettingsRepo, conf *BillingConfig, logger log.Logger) *SettingsUseCase {
	return &SettingsUseCase{
		repo: repo,
		conf: conf,
		log:  log.NewHelper(logger),
	}
}

// Get 获取客户计费设置，不存在时返回默认设置
func (uc *SettingsUseCase) Get(ctx context.Context, clientID string) (*BillingSettings, error) {
	if clientID == "" {
		return nil, billingErrors.ErrInvalidClientID
	}
	settings, err := uc.repo.GetBillingSettings(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return &BillingSettings{
			ClientID: clientID,
			Mode:     uc.conf.DefaultMode,
			Currency: uc.conf.DefaultCurrency,
		}, nil
	}
	if !IsValidBillingMode(settings.Mode) {
		uc.log.Warnf("Unknown billing mode, falling back to default: client_id=%s, mode=%s", clientID, settings.Mode)
		settings.Mode = uc.conf.DefaultMode
	}
	if settings.Currency == "" {
		settings.Currency = uc.conf.DefaultCurrency
	}
	return settings, nil
}

// Save 保存客户计费设置（管理端调用）
func (uc *SettingsUseCase) Save(ctx context.Context, settings *BillingSettings) error {
	if settings == nil || settings.ClientID == "" {
		return billingErrors.ErrInvalidClientID
	}
	if !IsValidBillingMode(settings.Mode) {
		return errors.BadRequest("INVALID_BILLING_MODE", "unknown billing mode: "+settings.Mode)
	}
	settings.Currency = strings.ToUpper(settings.Currency)
	if settings.Currency == "" {
		settings.Currency = uc.conf.DefaultCurrency
	}
	return uc.repo.SaveBillingSettings(ctx, settings)
}
