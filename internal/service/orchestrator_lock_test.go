package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/payout-engine/internal/ledger"
	"github.com/d60-Lab/payout-engine/internal/model"
)

func (f *fixture) withLocker(locker Locker, workers int) {
	f.svc = NewDistributionService(DistributionDeps{
		Projects:       f.projects,
		Distributions:  f.distributions,
		Payments:       f.payments,
		Snapshot:       NewSnapshotReader(f.ledger, nil, time.Second),
		Executor:       NewPaymentExecutor(f.ledger, f.payments, 5*time.Second),
		Scheduler:      f.scheduler,
		Locker:         locker,
		Events:         f.publisher,
		Notifier:       f.notifier,
		PaymentWorkers: workers,
	})
}

func transfersPerHolder(mem *ledger.MemoryLedger) map[string]int {
	out := make(map[string]int)
	for _, tr := range mem.Transfers() {
		out[tr.To]++
	}
	return out
}

func TestProcess_ExpiredLockDoesNotPayTwice(t *testing.T) {
	f := newFixture(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	f.withLocker(NewRedisLocker(client, 300*time.Millisecond), 4)

	p := f.seedProject(t, map[string]int64{"A": 1, "B": 1})
	ctx := context.Background()
	d, err := f.svc.CreateDistribution(ctx, p.ID, decimal.NewFromInt(10), nil)
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.ledger.OnTransfer(func(req ledger.TransferRequest) {
		if req.To == "A" {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
	})

	firstDone := make(chan error, 1)
	go func() { firstDone <- f.svc.Process(ctx, d.ID) }()
	<-entered

	// 第一个执行者停顿超过锁 TTL，第二个执行者拿到锁
	mr.FastForward(time.Second)
	err = f.svc.Process(ctx, d.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "A is still in flight")

	close(release)
	err = <-firstDone
	if err != nil {
		assert.ErrorIs(t, err, ErrLockLost)
	}

	require.NoError(t, f.svc.Process(ctx, d.ID))
	assert.Equal(t, map[string]int{"A": 1, "B": 1}, transfersPerHolder(f.ledger))

	got, err := f.distributions.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DistributionStatusCompleted, got.Status)
}

func seedProcessing(t *testing.T, f *fixture, holders ...string) *model.Distribution {
	t.Helper()
	ctx := context.Background()
	d := &model.Distribution{ProjectID: "proj-1", AssetID: testAsset, SourceAddress: testTreasury, TotalAmount: decimal.NewFromInt(int64(3 * len(holders)))}
	require.NoError(t, f.distributions.Create(ctx, d))
	_, err := f.distributions.MarkProcessing(ctx, d.ID, time.Now())
	require.NoError(t, err)
	batch := make([]*model.Payment, len(holders))
	for i, h := range holders {
		batch[i] = &model.Payment{DistributionID: d.ID, HolderAddress: h, Balance: decimal.NewFromInt(1), Amount: decimal.NewFromInt(3)}
	}
	require.NoError(t, f.payments.CreateBatch(ctx, batch))
	return d
}

func TestProcess_UnsettledClaimIsNotResent(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, map[string]int64{"A": 1, "B": 1})
	ctx := context.Background()
	d := seedProcessing(t, f, "A", "B")

	// 崩溃前 A 已认领并可能已发出转账
	ok, err := f.payments.Claim(ctx, d.ID, "A", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.svc.Process(ctx, d.ID))
	assert.Equal(t, map[string]int{"B": 1}, transfersPerHolder(f.ledger))

	pays := f.paymentsOf(t, d.ID)
	assert.Equal(t, model.PaymentStatusFailed, pays["A"].Status)
	require.NotNil(t, pays["A"].ErrorCode)
	assert.Equal(t, model.PaymentErrorOutcomeUnknown, *pays["A"].ErrorCode)
	assert.Equal(t, model.PaymentStatusCompleted, pays["B"].Status)

	got, err := f.distributions.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DistributionStatusFailed, got.Status)
	require.Len(t, f.notifier.alerts, 1)
}

func TestProcess_RecentClaimStaysPending(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, map[string]int64{"A": 1, "B": 1})
	ctx := context.Background()
	d := seedProcessing(t, f, "A", "B")

	ok, err := f.payments.Claim(ctx, d.ID, "A", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	err = f.svc.Process(ctx, d.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, map[string]int{"B": 1}, transfersPerHolder(f.ledger))

	pays := f.paymentsOf(t, d.ID)
	assert.Equal(t, model.PaymentStatusPending, pays["A"].Status)
	got, err := f.distributions.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DistributionStatusProcessing, got.Status)
}

func TestProcess_LostLeaseStopsScheduling(t *testing.T) {
	f := newFixture(t)
	lease := &stubLease{lost: make(chan struct{})}
	f.withLocker(stubLocker{lease: lease}, 1)
	f.seedProject(t, map[string]int64{"A": 1, "B": 1, "C": 1})
	ctx := context.Background()
	d := seedProcessing(t, f, "A", "B", "C")

	f.ledger.OnTransfer(func(req ledger.TransferRequest) {
		if req.To == "A" {
			lease.lose()
		}
	})

	err := f.svc.Process(ctx, d.ID)
	assert.ErrorIs(t, err, ErrLockLost)
	// 单 worker：A 在途时锁丢失，之后不再发起新的转账
	transfers := transfersPerHolder(f.ledger)
	assert.Equal(t, 1, transfers["A"])
	assert.LessOrEqual(t, len(transfers), 2)
	assert.Equal(t, model.PaymentStatusCompleted, f.paymentsOf(t, d.ID)["A"].Status)
	assert.Zero(t, transfers["C"])
}

func TestProcess_PaymentProgressRefreshesDistribution(t *testing.T) {
	f := newFixture(t)
	f.withLocker(NewLocalLocker(), 1)
	f.seedProject(t, map[string]int64{"A": 1, "B": 1})
	ctx := context.Background()
	d := seedProcessing(t, f, "A", "B")
	started, err := f.distributions.GetByID(ctx, d.ID)
	require.NoError(t, err)

	var refreshed bool
	var claimed []*model.Distribution
	f.ledger.OnTransfer(func(req ledger.TransferRequest) {
		if req.To == "A" {
			time.Sleep(5 * time.Millisecond)
			return
		}
		cur, err := f.distributions.GetByID(ctx, d.ID)
		if assert.NoError(t, err) {
			refreshed = cur.UpdatedAt.After(started.UpdatedAt)
		}
		// 仍在推进的分发不会被恢复巡检当作卡住认领
		claimed, err = f.distributions.ClaimStale(ctx, started.UpdatedAt.Add(time.Millisecond), 10)
		assert.NoError(t, err)
	})

	require.NoError(t, f.svc.Process(ctx, d.ID))
	assert.True(t, refreshed, "settled payment must refresh distribution updated_at")
	assert.Empty(t, claimed)
}

type stubLease struct {
	lost chan struct{}
	once sync.Once
}

func (l *stubLease) Lost() <-chan struct{} { return l.lost }
func (l *stubLease) Release()              {}
func (l *stubLease) lose()                 { l.once.Do(func() { close(l.lost) }) }

type stubLocker struct{ lease *stubLease }

func (s stubLocker) TryLock(context.Context, string) (Lease, bool, error) { return s.lease, true, nil }
