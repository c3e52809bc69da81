package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/d60-Lab/payout-engine/internal/ledger"
	"github.com/d60-Lab/payout-engine/internal/model"
	"github.com/d60-Lab/payout-engine/internal/repository"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// DistributionSummary 分发的汇总视图
type DistributionSummary struct {
	DistributionID string                   `json:"distribution_id"`
	Status         model.DistributionStatus `json:"status"`
	TotalAmount    decimal.Decimal          `json:"total_amount"`
	MovedAmount    decimal.Decimal          `json:"moved_amount"`
	FailedAmount   decimal.Decimal          `json:"failed_amount"`
	PendingAmount  decimal.Decimal          `json:"pending_amount"`
	Payments       int                      `json:"payments"`
	Completed      int                      `json:"completed"`
	Failed         int                      `json:"failed"`
	Pending        int                      `json:"pending"`
	ErrorDetail    *string                  `json:"error_detail,omitempty"`
}

// HolderProfile 持有人的展示信息（来自用户表，可能不存在）
type HolderProfile struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// HolderPayments 持有人的收款记录
type HolderPayments struct {
	Address  string           `json:"address"`
	Profile  *HolderProfile   `json:"profile,omitempty"`
	Payments []*model.Payment `json:"payments"`
}

// QueryService 只读查询
type QueryService interface {
	GetDistribution(ctx context.Context, id string) (*model.Distribution, error)
	GetProjectDistributions(ctx context.Context, projectID string, limit, offset int) ([]*model.Distribution, error)
	GetHolderPayments(ctx context.Context, address string, limit, offset int) (*HolderPayments, error)
	GetDistributionPayments(ctx context.Context, id string, limit, offset int) ([]*model.Payment, error)
	GetDistributionSummary(ctx context.Context, id string) (*DistributionSummary, error)
}

type queryService struct {
	distributions repository.DistributionRepository
	payments      repository.PaymentRepository
	users         repository.UserRepository
	codec         ledger.AddressCodec
	cache         *QueryCache
}

// NewQueryService users、codec、cache 均可为 nil
func NewQueryService(distributions repository.DistributionRepository, payments repository.PaymentRepository, users repository.UserRepository, codec ledger.AddressCodec, cache *QueryCache) QueryService {
	if codec == nil {
		codec = ledger.RawCodec{}
	}
	return &queryService{distributions: distributions, payments: payments, users: users, codec: codec, cache: cache}
}

// NormalizePage limit 缺省为 10，上限 100；offset 小于 0 视为 0
func NormalizePage(limit, offset int) (int, int) {
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *queryService) GetDistribution(ctx context.Context, id string) (*model.Distribution, error) {
	if d, ok := s.cache.GetDistribution(ctx, id); ok {
		return d, nil
	}
	d, err := s.distributions.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDistributionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	s.cache.SetDistribution(ctx, d)
	return d, nil
}

func (s *queryService) GetProjectDistributions(ctx context.Context, projectID string, limit, offset int) ([]*model.Distribution, error) {
	limit, offset = NormalizePage(limit, offset)
	return s.distributions.ListByProject(ctx, projectID, offset, limit)
}

func (s *queryService) GetHolderPayments(ctx context.Context, address string, limit, offset int) (*HolderPayments, error) {
	limit, offset = NormalizePage(limit, offset)
	if norm, err := s.codec.Normalize(address); err == nil {
		address = norm
	}
	items, err := s.payments.ListByHolder(ctx, address, offset, limit)
	if err != nil {
		return nil, err
	}
	res := &HolderPayments{Address: address, Payments: items}
	if s.users != nil {
		u, err := s.users.GetByWalletAddress(ctx, address)
		switch {
		case err == nil:
			res.Profile = &HolderProfile{UserID: u.ID, Username: u.Username}
		case !errors.Is(err, repository.ErrNotFound):
			return nil, err
		}
	}
	return res, nil
}

func (s *queryService) GetDistributionPayments(ctx context.Context, id string, limit, offset int) ([]*model.Payment, error) {
	if _, err := s.GetDistribution(ctx, id); err != nil {
		return nil, err
	}
	limit, offset = NormalizePage(limit, offset)
	return s.payments.PageByDistribution(ctx, id, offset, limit)
}

func (s *queryService) GetDistributionSummary(ctx context.Context, id string) (*DistributionSummary, error) {
	if sum, ok := s.cache.GetSummary(ctx, id); ok {
		return sum, nil
	}
	d, err := s.GetDistribution(ctx, id)
	if err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByDistribution(ctx, id)
	if err != nil {
		return nil, err
	}
	t := tallyPayments(payments)
	sum := &DistributionSummary{
		DistributionID: d.ID,
		Status:         d.Status,
		TotalAmount:    d.TotalAmount,
		MovedAmount:    t.Moved,
		FailedAmount:   t.Failing,
		PendingAmount:  t.Waiting,
		Payments:       len(payments),
		Completed:      t.Completed,
		Failed:         t.Failed,
		Pending:        t.Pending,
		ErrorDetail:    d.ErrorDetail,
	}
	s.cache.SetSummary(ctx, sum)
	return sum, nil
}
