package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/payout-engine/internal/events"
	"github.com/d60-Lab/payout-engine/internal/ledger"
	"github.com/d60-Lab/payout-engine/internal/model"
)

func TestCreateDistribution_ReturnsPendingAndSubmits(t *testing.T) {
	f := newFixture(t)
	p := f.seedProject(t, map[string]int64{"A": 1})

	d, err := f.svc.CreateDistribution(context.Background(), p.ID, decimal.NewFromInt(500), map[string]any{"round": "2024-Q1"})
	require.NoError(t, err)
	assert.Equal(t, model.DistributionStatusPending, d.Status)
	assert.Equal(t, testAsset, d.AssetID)
	assert.Equal(t, testTreasury, d.SourceAddress)
	assert.Equal(t, []string{d.ID}, f.scheduler.Submitted())

	got, err := f.distributions.GetByID(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-Q1", got.Metadata["round"])
}

func TestCreateDistribution_RejectsInvalidAmount(t *testing.T) {
	f := newFixture(t)
	p := f.seedProject(t, map[string]int64{"A": 1})
	ctx := context.Background()

	for _, amt := range []decimal.Decimal{decimal.NewFromInt(-5), decimal.Zero, decimal.RequireFromString("0.5")} {
		_, err := f.svc.CreateDistribution(ctx, p.ID, amt, nil)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}

	list, err := f.distributions.ListByProject(ctx, p.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.scheduler.Submitted())
}

func TestCreateDistribution_UnknownProject(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateDistribution(context.Background(), "nope", decimal.NewFromInt(10), nil)
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestCreateDistribution_QueueFullKeepsPendingRow(t *testing.T) {
	f := newFixture(t)
	p := f.seedProject(t, map[string]int64{"A": 1})
	f.scheduler.err = ErrQueueFull

	d, err := f.svc.CreateDistribution(context.Background(), p.ID, decimal.NewFromInt(10), nil)
	require.NoError(t, err)

	got, err := f.distributions.GetByID(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DistributionStatusPending, got.Status)
}

func TestProcess_AllPaymentsSucceed(t *testing.T) {
	f := newFixture(t)
	p := f.seedProject(t, map[string]int64{"A": 100, "B": 300, "C": 600})

	d := f.createAndProcess(t, p.ID, 1000)
	assert.Equal(t, model.DistributionStatusCompleted, d.Status)
	require.NotNil(t, d.CompletedAt)
	require.NotNil(t, d.ProcessingStartedAt)
	assert.Nil(t, d.ErrorDetail)
	assert.Equal(t, 3, d.HolderCount)
	assert.Equal(t, 3, d.CompletedCount)
	assert.Equal(t, 0, d.FailedCount)

	pays := f.paymentsOf(t, d.ID)
	require.Len(t, pays, 3)
	for addr, want := range map[string]int64{"A": 100, "B": 300, "C": 600} {
		assert.Equal(t, want, pays[addr].Amount.IntPart(), addr)
		assert.Equal(t, model.PaymentStatusCompleted, pays[addr].Status)
		require.NotNil(t, pays[addr].TxID)
	}
	assert.True(t, pays["B"].Balance.Equal(decimal.NewFromInt(300)))

	// 国库本身不参与分配
	_, ok := pays[testTreasury]
	assert.False(t, ok)
	assert.True(t, f.ledger.Balance(testAsset, "C").Equal(decimal.NewFromInt(1200)))

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.TypeDistributionCompleted, f.publisher.events[0].Type)
	assert.True(t, f.publisher.events[0].MovedAmount.Equal(decimal.NewFromInt(1000)))
	assert.Empty(t, f.notifier.alerts)
}

func TestProcess_NoEligibleHolders(t *testing.T) {
	f := newFixture(t)
	p := f.seedProject(t, nil)

	d := f.createAndProcess(t, p.ID, 1000)
	assert.Equal(t, model.DistributionStatusFailed, d.Status)
	require.NotNil(t, d.ErrorDetail)
	assert.Contains(t, *d.ErrorDetail, ErrNoEligibleHolders.Error())
	require.NotNil(t, d.CompletedAt)
	assert.Empty(t, f.paymentsOf(t, d.ID))
	assert.Empty(t, f.ledger.Transfers())

	require.Len(t, f.notifier.alerts, 1)
	assert.Equal(t, d.ID, f.notifier.alerts[0].DistributionID)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.TypeDistributionFailed, f.publisher.events[0].Type)
}

func TestProcess_LedgerUnavailableBeforePayments(t *testing.T) {
	f := newFixture(t)
	p := f.seedProject(t, map[string]int64{"A": 1})
	f.ledger.FailHolders(ledger.ErrUnavailable)

	d := f.createAndProcess(t, p.ID, 1000)
	assert.Equal(t, model.DistributionStatusFailed, d.Status)
	require.NotNil(t, d.ErrorDetail)
	assert.Contains(t, *d.ErrorDetail, ErrLedgerUnavailable.Error())
	assert.Empty(t, f.paymentsOf(t, d.ID))
}

func TestProcess_PartialFailure(t *testing.T) {
	f := newFixture(t)
	p := f.seedProject(t, map[string]int64{"A": 100, "B": 300, "C": 600})
	f.ledger.FailTransfersTo("B", ledger.ErrRejected)

	d := f.createAndProcess(t, p.ID, 1000)
	assert.Equal(t, model.DistributionStatusFailed, d.Status)
	assert.Nil(t, d.ErrorDetail)
	assert.Equal(t, 2, d.CompletedCount)
	assert.Equal(t, 1, d.FailedCount)

	pays := f.paymentsOf(t, d.ID)
	assert.Equal(t, model.PaymentStatusCompleted, pays["A"].Status)
	assert.Equal(t, model.PaymentStatusFailed, pays["B"].Status)
	assert.Equal(t, model.PaymentStatusCompleted, pays["C"].Status)
	require.NotNil(t, pays["B"].ErrorCode)
	assert.Equal(t, model.PaymentErrorTransferRejected, *pays["B"].ErrorCode)
	require.NotNil(t, pays["B"].ErrorDetail)
	assert.Nil(t, pays["B"].TxID)

	sum, err := f.query.GetDistributionSummary(context.Background(), d.ID)
	require.NoError(t, err)
	assert.True(t, sum.MovedAmount.Equal(decimal.NewFromInt(700)))
	assert.True(t, sum.FailedAmount.Equal(decimal.NewFromInt(300)))

	require.Len(t, f.notifier.alerts, 1)
	assert.Equal(t, 1, f.notifier.alerts[0].Failed)
}

func TestProcess_TransferTimeoutIsFailedPayment(t *testing.T) {
	f := newFixture(t)
	p := f.seedProject(t, map[string]int64{"A": 1, "B": 1})
	f.svc = NewDistributionService(DistributionDeps{
		Projects:      f.projects,
		Distributions: f.distributions,
		Payments:      f.payments,
		Snapshot:      NewSnapshotReader(f.ledger, nil, time.Second),
		Executor:      NewPaymentExecutor(f.ledger, f.payments, 10*time.Millisecond),
		Scheduler:     f.scheduler,
	})
	f.ledger.OnTransfer(func(req ledger.TransferRequest) {
		if req.To == "B" {
			time.Sleep(50 * time.Millisecond)
		}
	})

	d := f.createAndProcess(t, p.ID, 10)
	assert.Equal(t, model.DistributionStatusFailed, d.Status)
	pays := f.paymentsOf(t, d.ID)
	assert.Equal(t, model.PaymentStatusCompleted, pays["A"].Status)
	assert.Equal(t, model.PaymentStatusFailed, pays["B"].Status)
	assert.Equal(t, model.PaymentErrorLedgerUnavailable, *pays["B"].ErrorCode)
}

func TestProcess_PaymentsBecomeVisibleAtomically(t *testing.T) {
	f := newFixture(t)
	balances := make(map[string]int64)
	for _, a := range []string{"h01", "h02", "h03", "h04", "h05", "h06", "h07", "h08"} {
		balances[a] = 10
	}
	p := f.seedProject(t, balances)
	ctx := context.Background()

	d, err := f.svc.CreateDistribution(ctx, p.ID, decimal.NewFromInt(800), nil)
	require.NoError(t, err)

	var seenAtSnapshot int64 = -1
	var mu sync.Mutex
	var seenAtTransfer []int64
	f.ledger.OnHolders(func(string) {
		n, err := f.payments.CountByDistribution(ctx, d.ID)
		require.NoError(t, err)
		seenAtSnapshot = n
	})
	f.ledger.OnTransfer(func(ledger.TransferRequest) {
		n, err := f.payments.CountByDistribution(ctx, d.ID)
		assert.NoError(t, err)
		mu.Lock()
		seenAtTransfer = append(seenAtTransfer, n)
		mu.Unlock()
	})

	require.NoError(t, f.svc.Process(ctx, d.ID))
	assert.Equal(t, int64(0), seenAtSnapshot)
	require.Len(t, seenAtTransfer, 8)
	for _, n := range seenAtTransfer {
		assert.Equal(t, int64(8), n)
	}
}

func TestProcess_ResumeExecutesOnlyPendingPayments(t *testing.T) {
	f := newFixture(t)
	p := f.seedProject(t, map[string]int64{"A": 1, "B": 1, "C": 1})
	ctx := context.Background()

	// 模拟崩溃：processing 状态，A 已完成、B 已失败、C 仍为 pending
	d := &model.Distribution{ProjectID: p.ID, AssetID: testAsset, SourceAddress: testTreasury, TotalAmount: decimal.NewFromInt(9)}
	require.NoError(t, f.distributions.Create(ctx, d))
	_, err := f.distributions.MarkProcessing(ctx, d.ID, time.Now())
	require.NoError(t, err)
	batch := []*model.Payment{
		{DistributionID: d.ID, HolderAddress: "A", Balance: decimal.NewFromInt(1), Amount: decimal.NewFromInt(3)},
		{DistributionID: d.ID, HolderAddress: "B", Balance: decimal.NewFromInt(1), Amount: decimal.NewFromInt(3)},
		{DistributionID: d.ID, HolderAddress: "C", Balance: decimal.NewFromInt(1), Amount: decimal.NewFromInt(3)},
	}
	require.NoError(t, f.payments.CreateBatch(ctx, batch))
	require.NoError(t, f.payments.Complete(ctx, d.ID, "A", "tx-before-crash", time.Now()))
	require.NoError(t, f.payments.Fail(ctx, d.ID, "B", model.PaymentErrorLedgerUnavailable, "timeout", time.Now()))

	require.NoError(t, f.svc.Process(ctx, d.ID))

	transfers := f.ledger.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, "C", transfers[0].To)

	got, err := f.distributions.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DistributionStatusFailed, got.Status)
	assert.Equal(t, 2, got.CompletedCount)
	assert.Equal(t, 1, got.FailedCount)

	pays := f.paymentsOf(t, d.ID)
	assert.Equal(t, "tx-before-crash", *pays["A"].TxID)
	assert.Equal(t, model.PaymentStatusFailed, pays["B"].Status)

	// 再次处理终态分发：不产生任何转账
	require.NoError(t, f.svc.Process(ctx, d.ID))
	assert.Len(t, f.ledger.Transfers(), 1)
}

func TestProcess_ConcurrentCallsTransferOnce(t *testing.T) {
	f := newFixture(t)
	p := f.seedProject(t, map[string]int64{"A": 1, "B": 2, "C": 3})
	ctx := context.Background()
	d, err := f.svc.CreateDistribution(ctx, p.ID, decimal.NewFromInt(60), nil)
	require.NoError(t, err)
	f.ledger.SetLatency(5 * time.Millisecond)

	var wg sync.WaitGroup
	var errs atomic.Int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.svc.Process(ctx, d.ID); err != nil {
				errs.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, errs.Load())

	// 第一次调用未必在其他调用之前拿到锁，未拿到锁的调用直接返回；补一次确保完成
	require.NoError(t, f.svc.Process(ctx, d.ID))
	assert.Len(t, f.ledger.Transfers(), 3)

	got, err := f.distributions.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DistributionStatusCompleted, got.Status)
}

func TestProcess_NotFound(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Process(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrDistributionNotFound)
}

func TestResume(t *testing.T) {
	f := newFixture(t)
	p := f.seedProject(t, map[string]int64{"A": 1})
	ctx := context.Background()

	_, err := f.svc.Resume(ctx, "missing")
	assert.ErrorIs(t, err, ErrDistributionNotFound)

	d, err := f.svc.CreateDistribution(ctx, p.ID, decimal.NewFromInt(10), nil)
	require.NoError(t, err)
	_, err = f.svc.Resume(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{d.ID, d.ID}, f.scheduler.Submitted())

	require.NoError(t, f.svc.Process(ctx, d.ID))
	_, err = f.svc.Resume(ctx, d.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
