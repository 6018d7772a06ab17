package biz

import (
	"sort"
	"time"
)

// CreditTranche 套餐额度批次领域对象
type CreditTranche struct {
	ID        string
	ClientID  string
	PlanRef   string
	Total     int64
	Remaining int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Active 未过期且有剩余
func (t *CreditTranche) Active(now time.Time) bool {
	return t.Remaining > 0 && t.ExpiresAt.After(now)
}

// Headroom 可退回的空间
func (t *CreditTranche) Headroom() int64 {
	if t.Total <= t.Remaining {
		return 0
	}
	return t.Total - t.Remaining
}

// CreditAllocation 单个批次上的额度变动
type CreditAllocation struct {
	TrancheID string
	Delta     int64 // 扣减为负，退回为正
	Remaining int64 // 变动后的剩余
}

// sortByExpiry 按过期时间升序（相同时按 ID）
func sortByExpiry(tranches []*CreditTranche) {
	sort.SliceStable(tranches, func(i, j int) bool {
		if tranches[i].ExpiresAt.Equal(tranches[j].ExpiresAt) {
			return tranches[i].ID < tranches[j].ID
		}
		return tranches[i].ExpiresAt.Before(tranches[j].ExpiresAt)
	})
}

// AllocateDebit 按最早过期优先贪心扣减额度
// 可用额度不足时返回 false，且不产生任何分配（全有或全无）
func AllocateDebit(tranches []*CreditTranche, credits int64, now time.Time) ([]CreditAllocation, bool) {
	active := make([]*CreditTranche, 0, len(tranches))
	var available int64
	for _, t := range tranches {
		if t.Active(now) {
			active = append(active, t)
			available += t.Remaining
		}
	}
	if credits <= 0 || available < credits {
		return nil, false
	}
	sortByExpiry(active)

	need := credits
	allocations := make([]CreditAllocation, 0, len(active))
	for _, t := range active {
		if need == 0 {
			break
		}
		take := t.Remaining
		if take > need {
			take = need
		}
		allocations = append(allocations, CreditAllocation{
			TrancheID: t.ID,
			Delta:     -take,
			Remaining: t.Remaining - take,
		})
		need -= take
	}
	return allocations, true
}

// AllocateRefund 退回额度：按最早的未来过期时间依次填满批次空间
// 额度不绑定原批次；无法放下的部分作为 overflow 返回，由调用方新建批次
func AllocateRefund(tranches []*CreditTranche, credits int64, now time.Time) ([]CreditAllocation, int64) {
	live := make([]*CreditTranche, 0, len(tranches))
	for _, t := range tranches {
		if t.ExpiresAt.After(now) {
			live = append(live, t)
		}
	}
	sortByExpiry(live)

	left := credits
	allocations := make([]CreditAllocation, 0, len(live))
	for _, t := range live {
		if left <= 0 {
			break
		}
		room := t.Headroom()
		if room == 0 {
			continue
		}
		give := room
		if give > left {
			give = left
		}
		allocations = append(allocations, CreditAllocation{
			TrancheID: t.ID,
			Delta:     give,
			Remaining: t.Remaining + give,
		})
		left -= give
	}
	return allocations, left
}

// OverflowExpiry 退回溢出额度的新批次过期时间：沿用最晚的未过期批次，否则 now + ttl
func OverflowExpiry(tranches []*CreditTranche, now time.Time, ttl time.Duration) time.Time {
	var latest time.Time
	for _, t := range tranches {
		if t.ExpiresAt.After(now) && t.ExpiresAt.After(latest) {
			latest = t.ExpiresAt
		}
	}
	if latest.IsZero() {
		return now.Add(ttl)
	}
	return latest
}
