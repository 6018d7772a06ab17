package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"msg-billing/internal/biz"
	"msg-billing/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redsync/redsync/v4"
)

type jobLocker struct {
	data *Data
	log  *log.Helper
}

// NewJobLocker 创建基于 redsync 的定时任务锁
func NewJobLocker(data *Data, logger log.Logger) biz.JobLocker {
	return &jobLocker{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// Acquire 只尝试一次，被占用返回 biz.ErrJobLocked
func (l *jobLocker) Acquire(ctx context.Context, name string, expiry time.Duration) (func(), error) {
	if l.data.rs == nil {
		return nil, errors.New("job locker requires redis")
	}
	mutex := l.data.rs.NewMutex(
		constants.RedisKeyJobLock+name,
		redsync.WithExpiry(expiry),
		redsync.WithTries(1),
	)
	if err := mutex.LockContext(ctx); err != nil {
		// 单次尝试失败（已被占用或节点不可达）都按已锁定处理，下个周期再试
		return nil, fmt.Errorf("%w: %v", biz.ErrJobLocked, err)
	}
	return func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if ok, err := mutex.UnlockContext(unlockCtx); !ok || err != nil {
			l.log.Warnf("Failed to release job lock: job=%s, error=%v", name, err)
		}
	}, nil
}
