// Package ledger 链上账本客户端：查询持有人与单笔转账。
// 网络与超时错误返回 ErrUnavailable，链上拒绝返回 ErrRejected。
package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnavailable 账本不可达或超时
	ErrUnavailable = errors.New("ledger unavailable")
	// ErrRejected 账本拒绝转账（余额不足、账户冻结等）
	ErrRejected = errors.New("transfer rejected")
)

// Holder 持有人及其余额（最小单位）
type Holder struct {
	Address string          `json:"address"`
	Balance decimal.Decimal `json:"balance"`
}

// TransferRequest 转账请求；Reference 作为幂等键透传给支持的账本
type TransferRequest struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	AssetID   string          `json:"asset_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
}

// TransferResult 转账回执
type TransferResult struct {
	TxID string `json:"tx_id"`
}

// Client 分发引擎依赖的账本接口
type Client interface {
	GetHolders(ctx context.Context, assetID string) ([]Holder, error)
	Transfer(ctx context.Context, req TransferRequest) (TransferResult, error)
}
