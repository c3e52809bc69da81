package service

import (
	"context"
	"fmt"
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

func TestNormalizePage(t *testing.T) {
	cases := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, 10, 0},
		{-3, -7, 10, 0},
		{1, 5, 1, 5},
		{100, 0, 100, 0},
		{5000, 20, 100, 20},
	}
	for _, c := range cases {
		l, o := NormalizePage(c.limit, c.offset)
		assert.Equal(t, c.wantLimit, l, "limit %d", c.limit)
		assert.Equal(t, c.wantOffset, o, "offset %d", c.offset)
	}
}

func TestQuery_GetDistributionNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.query.GetDistribution(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrDistributionNotFound)

	_, err = f.query.GetDistributionSummary(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrDistributionNotFound)

	_, err = f.query.GetDistributionPayments(context.Background(), "missing", 10, 0)
	assert.ErrorIs(t, err, ErrDistributionNotFound)
}

func TestQuery_ProjectDistributionsClampsLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 105; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		d := &model.Distribution{ProjectID: "p1", AssetID: testAsset, SourceAddress: testTreasury, TotalAmount: mustAmount(1), CreatedAt: at, UpdatedAt: at}
		require.NoError(t, f.distributions.Create(ctx, d))
	}

	list, err := f.query.GetProjectDistributions(ctx, "p1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 10)

	list, err = f.query.GetProjectDistributions(ctx, "p1", 1000, -1)
	require.NoError(t, err)
	assert.Len(t, list, 100)

	list, err = f.query.GetProjectDistributions(ctx, "p1", 10, 100)
	require.NoError(t, err)
	assert.Len(t, list, 5)

	list, err = f.query.GetProjectDistributions(ctx, "other", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestQuery_HolderPaymentsWithProfile(t *testing.T) {
	f := newFixture(t)
	p := f.seedProject(t, map[string]int64{"alice": 1, "bob": 3})
	ctx := context.Background()
	require.NoError(t, f.users.Create(ctx, &model.User{ID: "u1", Username: "alice", Email: "alice@example.com", WalletAddress: "alice"}))

	f.createAndProcess(t, p.ID, 40)
	f.createAndProcess(t, p.ID, 80)

	res, err := f.query.GetHolderPayments(ctx, "alice", 0, 0)
	require.NoError(t, err)
	require.NotNil(t, res.Profile)
	assert.Equal(t, "alice", res.Profile.Username)
	require.Len(t, res.Payments, 2)
	total := res.Payments[0].Amount.Add(res.Payments[1].Amount)
	assert.True(t, total.Equal(decimal.NewFromInt(30)))

	res, err = f.query.GetHolderPayments(ctx, "bob", 1, 0)
	require.NoError(t, err)
	assert.Nil(t, res.Profile)
	assert.Len(t, res.Payments, 1)

	res, err = f.query.GetHolderPayments(ctx, "nobody", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Payments)
}

func TestQuery_HolderAddressIsNormalized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	checksummed := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

	d := &model.Distribution{ProjectID: "p", AssetID: testAsset, SourceAddress: testTreasury, TotalAmount: mustAmount(5)}
	require.NoError(t, f.distributions.Create(ctx, d))
	require.NoError(t, f.payments.CreateBatch(ctx, []*model.Payment{
		{DistributionID: d.ID, HolderAddress: checksummed, Balance: mustAmount(1), Amount: mustAmount(5)},
	}))

	q := NewQueryService(f.distributions, f.payments, nil, ledger.EVMCodec{}, nil)
	res, err := q.GetHolderPayments(ctx, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, checksummed, res.Address)
	assert.Len(t, res.Payments, 1)
}

func TestQuery_DistributionPaymentsPaging(t *testing.T) {
	f := newFixture(t)
	balances := make(map[string]int64)
	for i := 0; i < 15; i++ {
		balances[fmt.Sprintf("h%02d", i)] = 1
	}
	p := f.seedProject(t, balances)
	d := f.createAndProcess(t, p.ID, 150)

	page, err := f.query.GetDistributionPayments(context.Background(), d.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, page, 10)
	assert.Equal(t, "h00", page[0].HolderAddress)

	page, err = f.query.GetDistributionPayments(context.Background(), d.ID, 10, 10)
	require.NoError(t, err)
	assert.Len(t, page, 5)
}

func TestQuery_CachesTerminalDistributions(t *testing.T) {
	f := newFixture(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewQueryCache(client, time.Minute)
	q := NewQueryService(f.distributions, f.payments, f.users, nil, cache)
	ctx := context.Background()

	p := f.seedProject(t, map[string]int64{"A": 1})
	pending, err := f.svc.CreateDistribution(ctx, p.ID, mustAmount(10), nil)
	require.NoError(t, err)

	_, err = q.GetDistribution(ctx, pending.ID)
	require.NoError(t, err)
	assert.False(t, mr.Exists(distributionCacheKey(pending.ID)), "pending distribution must not be cached")

	require.NoError(t, f.svc.Process(ctx, pending.ID))
	got, err := q.GetDistribution(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DistributionStatusCompleted, got.Status)
	assert.True(t, mr.Exists(distributionCacheKey(pending.ID)))

	cached, err := q.GetDistribution(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, got.ID, cached.ID)
	assert.True(t, cached.TotalAmount.Equal(decimal.NewFromInt(10)))
	hits, _ := cache.Stats()
	assert.GreaterOrEqual(t, hits, int64(1))

	sum, err := q.GetDistributionSummary(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Completed)
	assert.True(t, mr.Exists(summaryCacheKey(pending.ID)))

	// TTL 到期后回源
	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(distributionCacheKey(pending.ID)))
}
