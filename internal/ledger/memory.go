package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// TransferRecord 已受理的一笔转账
type TransferRecord struct {
	TransferRequest
	TxID string
}

// MemoryLedger 进程内账本，用于测试与 cmd/distbench。
// 转账会真实扣减余额，出款账户需先用 SetBalance 注资。
type MemoryLedger struct {
	mu        sync.Mutex
	balances  map[string]map[string]decimal.Decimal
	failTo    map[string]error
	holderErr error
	latency   time.Duration
	transfers []TransferRecord
	seq       int

	onHolders  func(assetID string)
	onTransfer func(req TransferRequest)
}

// NewMemoryLedger 创建空账本
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]map[string]decimal.Decimal),
		failTo:   make(map[string]error),
	}
}

// SetBalance 设置余额
func (m *MemoryLedger) SetBalance(assetID, addr string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts(assetID)[addr] = amount
}

// Balance 查询余额
func (m *MemoryLedger) Balance(assetID, addr string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts(assetID)[addr]
}

// FailTransfersTo 使转给 addr 的转账均返回 err
func (m *MemoryLedger) FailTransfersTo(addr string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failTo, addr)
		return
	}
	m.failTo[addr] = err
}

// FailHolders 使 GetHolders 返回 err，传 nil 恢复
func (m *MemoryLedger) FailHolders(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holderErr = err
}

// SetLatency 每次调用延迟 d，遵循 ctx 取消
func (m *MemoryLedger) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// OnHolders 注册在每次 GetHolders 开始时执行的钩子
func (m *MemoryLedger) OnHolders(fn func(assetID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onHolders = fn
}

// OnTransfer 注册在每次 Transfer 开始时执行的钩子
func (m *MemoryLedger) OnTransfer(fn func(req TransferRequest)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTransfer = fn
}

// Transfers 按受理顺序返回转账记录副本
func (m *MemoryLedger) Transfers() []TransferRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TransferRecord, len(m.transfers))
	copy(out, m.transfers)
	return out
}

func (m *MemoryLedger) GetHolders(ctx context.Context, assetID string) ([]Holder, error) {
	m.mu.Lock()
	hook, latency := m.onHolders, m.latency
	m.mu.Unlock()

	if hook != nil {
		hook(assetID)
	}
	if err := wait(ctx, latency); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holderErr != nil {
		return nil, m.holderErr
	}
	holders := make([]Holder, 0, len(m.balances[assetID]))
	for addr, bal := range m.balances[assetID] {
		if bal.Sign() > 0 {
			holders = append(holders, Holder{Address: addr, Balance: bal})
		}
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i].Address < holders[j].Address })
	return holders, nil
}

func (m *MemoryLedger) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	m.mu.Lock()
	hook, latency := m.onTransfer, m.latency
	m.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	if err := wait(ctx, latency); err != nil {
		return TransferResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failTo[req.To]; ok {
		return TransferResult{}, err
	}
	if req.Amount.Sign() <= 0 {
		return TransferResult{}, fmt.Errorf("%w: non-positive amount %s", ErrRejected, req.Amount)
	}
	accounts := m.accounts(req.AssetID)
	if accounts[req.From].LessThan(req.Amount) {
		return TransferResult{}, fmt.Errorf("%w: insufficient funds in %s", ErrRejected, req.From)
	}
	accounts[req.From] = accounts[req.From].Sub(req.Amount)
	accounts[req.To] = accounts[req.To].Add(req.Amount)

	m.seq++
	txID := fmt.Sprintf("mem-tx-%06d", m.seq)
	m.transfers = append(m.transfers, TransferRecord{TransferRequest: req, TxID: txID})
	return TransferResult{TxID: txID}, nil
}

func (m *MemoryLedger) accounts(assetID string) map[string]decimal.Decimal {
	acc, ok := m.balances[assetID]
	if !ok {
		acc = make(map[string]decimal.Decimal)
		m.balances[assetID] = acc
	}
	return acc
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	case <-t.C:
		return nil
	}
}

var _ Client = (*MemoryLedger)(nil)
