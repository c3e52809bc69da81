package service

import "errors"

var (
	ErrInvalidAmount        = errors.New("amount must be a positive integer in minor units")
	ErrLedgerUnavailable    = errors.New("ledger unavailable")
	ErrNoEligibleHolders    = errors.New("no eligible holders")
	ErrTransferRejected     = errors.New("transfer rejected")
	ErrDistributionNotFound = errors.New("distribution not found")
	ErrProjectNotFound      = errors.New("project not found")
	ErrQueueFull            = errors.New("distribution queue full")
	ErrInvalidTransition    = errors.New("invalid distribution status transition")
	// ErrPaymentClaimed Payment 已被认领（本轮或此前的执行者已发起转账）
	ErrPaymentClaimed = errors.New("payment already claimed")
	// ErrLockLost 处理过程中分发锁续期失败，停止发起新的转账
	ErrLockLost = errors.New("distribution lock lost")
)
