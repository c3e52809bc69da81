package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/d60-Lab/payout-engine/internal/ledger"
)

var tracer = otel.Tracer("github.com/d60-Lab/payout-engine/internal/service")

// SnapshotReader 读取某资产当前全部持有人及余额
type SnapshotReader struct {
	client  ledger.Client
	codec   ledger.AddressCodec
	timeout time.Duration
}

// NewSnapshotReader codec 为 nil 时按原样使用地址
func NewSnapshotReader(client ledger.Client, codec ledger.AddressCodec, timeout time.Duration) *SnapshotReader {
	if codec == nil {
		codec = ledger.RawCodec{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SnapshotReader{client: client, codec: codec, timeout: timeout}
}

// Snapshot 返回完整物化、按地址排序、余额为正的持有人列表。
// 同一账户的不同地址写法会被合并。
func (r *SnapshotReader) Snapshot(ctx context.Context, assetID string) ([]ledger.Holder, error) {
	ctx, span := tracer.Start(ctx, "distribution.snapshot", trace.WithAttributes(attribute.String("asset.id", assetID)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := r.client.GetHolders(ctx, assetID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: get holders of %s: %v", ErrLedgerUnavailable, assetID, err)
	}

	merged := make(map[string]decimal.Decimal, len(raw))
	for _, h := range raw {
		if h.Balance.IsNegative() || !h.Balance.IsInteger() {
			return nil, fmt.Errorf("%w: malformed balance %s for %s", ErrLedgerUnavailable, h.Balance, h.Address)
		}
		if h.Balance.IsZero() {
			continue
		}
		addr, err := r.codec.Normalize(h.Address)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed holder address: %v", ErrLedgerUnavailable, err)
		}
		merged[addr] = merged[addr].Add(h.Balance)
	}

	holders := make([]ledger.Holder, 0, len(merged))
	for addr, bal := range merged {
		holders = append(holders, ledger.Holder{Address: addr, Balance: bal})
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i].Address < holders[j].Address })
	span.SetAttributes(attribute.Int("holders", len(holders)))
	return holders, nil
}

// Normalize 按快照同样的规则规范化地址；无法解析时原样返回
func (r *SnapshotReader) Normalize(addr string) string {
	if n, err := r.codec.Normalize(addr); err == nil {
		return n
	}
	return addr
}
