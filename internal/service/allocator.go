package service

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/d60-Lab/payout-engine/internal/ledger"
)

// Allocation 单个持有人的分配结果
type Allocation struct {
	Address string
	Balance decimal.Decimal
	Amount  decimal.Decimal
}

// Allocate 按持仓比例切分 total（最小单位整数）。
//
// 每人先得 floor(total*balance/supply)，舍入余量整体给余额最大的持有人，
// 余额相同时给地址字典序最小者。份额为 0 的持有人不出现在结果中。
// 结果按地址排序，金额之和恒等于 total。
func Allocate(holders []ledger.Holder, total decimal.Decimal) ([]Allocation, error) {
	if total.Sign() <= 0 || !total.IsInteger() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, total)
	}

	sorted := make([]ledger.Holder, 0, len(holders))
	seen := make(map[string]struct{}, len(holders))
	supply := decimal.Zero
	for _, h := range holders {
		if h.Balance.IsNegative() {
			return nil, fmt.Errorf("negative balance %s for %s", h.Balance, h.Address)
		}
		if _, dup := seen[h.Address]; dup {
			return nil, fmt.Errorf("duplicate holder %s", h.Address)
		}
		seen[h.Address] = struct{}{}
		if h.Balance.IsZero() {
			continue
		}
		sorted = append(sorted, h)
		supply = supply.Add(h.Balance)
	}
	if supply.IsZero() {
		return nil, ErrNoEligibleHolders
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Address < sorted[j].Address })

	out := make([]Allocation, len(sorted))
	allocated := decimal.Zero
	largest := 0
	for i, h := range sorted {
		share, _ := total.Mul(h.Balance).QuoRem(supply, 0)
		out[i] = Allocation{Address: h.Address, Balance: h.Balance, Amount: share}
		allocated = allocated.Add(share)
		// 严格大于：相同余额保留字典序更小的地址
		if h.Balance.GreaterThan(sorted[largest].Balance) {
			largest = i
		}
	}
	out[largest].Amount = out[largest].Amount.Add(total.Sub(allocated))

	res := out[:0]
	for _, a := range out {
		if a.Amount.IsPositive() {
			res = append(res, a)
		}
	}
	return res, nil
}
