package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/payout-engine/internal/events"
	"github.com/d60-Lab/payout-engine/internal/ledger"
	"github.com/d60-Lab/payout-engine/internal/model"
	"github.com/d60-Lab/payout-engine/internal/notifier"
	"github.com/d60-Lab/payout-engine/internal/repository"
	"github.com/d60-Lab/payout-engine/internal/testutil"
)

const (
	testAsset    = "TKN"
	testTreasury = "treasury"
)

type recordingScheduler struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (s *recordingScheduler) Submit(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.ids = append(s.ids, id)
	return nil
}

func (s *recordingScheduler) Submitted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.DistributionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.DistributionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notifier.Alert
}

func (n *recordingNotifier) Notify(_ context.Context, a notifier.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

type fixture struct {
	db            *gorm.DB
	ledger        *ledger.MemoryLedger
	projects      repository.ProjectRepository
	distributions repository.DistributionRepository
	payments      repository.PaymentRepository
	users         repository.UserRepository
	scheduler     *recordingScheduler
	publisher     *recordingPublisher
	notifier      *recordingNotifier
	svc           DistributionService
	query         QueryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	f := &fixture{
		db:            db,
		ledger:        ledger.NewMemoryLedger(),
		projects:      repository.NewProjectRepository(db),
		distributions: repository.NewDistributionRepository(db),
		payments:      repository.NewPaymentRepository(db),
		users:         repository.NewUserRepository(db),
		scheduler:     &recordingScheduler{},
		publisher:     &recordingPublisher{},
		notifier:      &recordingNotifier{},
	}
	f.svc = NewDistributionService(DistributionDeps{
		Projects:       f.projects,
		Distributions:  f.distributions,
		Payments:       f.payments,
		Snapshot:       NewSnapshotReader(f.ledger, nil, time.Second),
		Executor:       NewPaymentExecutor(f.ledger, f.payments, time.Second),
		Scheduler:      f.scheduler,
		Locker:         NewLocalLocker(),
		Events:         f.publisher,
		Notifier:       f.notifier,
		PaymentWorkers: 4,
	})
	f.query = NewQueryService(f.distributions, f.payments, f.users, nil, nil)
	return f
}

// seedProject 创建项目，为国库注资并设置持有人余额
func (f *fixture) seedProject(t *testing.T, balances map[string]int64) *model.Project {
	t.Helper()
	p := &model.Project{ID: "proj-1", Name: "Solar Farm", AssetID: testAsset, TreasuryAddress: testTreasury}
	require.NoError(t, f.projects.Create(context.Background(), p))
	f.ledger.SetBalance(testAsset, testTreasury, decimal.NewFromInt(1_000_000_000))
	for addr, bal := range balances {
		f.ledger.SetBalance(testAsset, addr, decimal.NewFromInt(bal))
	}
	return p
}

func (f *fixture) createAndProcess(t *testing.T, projectID string, amount int64) *model.Distribution {
	t.Helper()
	ctx := context.Background()
	d, err := f.svc.CreateDistribution(ctx, projectID, decimal.NewFromInt(amount), nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.Process(ctx, d.ID))
	got, err := f.distributions.GetByID(ctx, d.ID)
	require.NoError(t, err)
	return got
}

func (f *fixture) paymentsOf(t *testing.T, distributionID string) map[string]*model.Payment {
	t.Helper()
	list, err := f.payments.ListByDistribution(context.Background(), distributionID)
	require.NoError(t, err)
	out := make(map[string]*model.Payment, len(list))
	for _, p := range list {
		out[p.HolderAddress] = p
	}
	return out
}
