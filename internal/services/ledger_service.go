package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/keeper-escrow/backend/internal/ledger"
	"github.com/keeper-escrow/backend/internal/models"
	"github.com/keeper-escrow/backend/internal/ton"
)

// LedgerService exposes balances of the service ledger and lets admins fund accounts.
type LedgerService struct {
	store Store
	log   *zap.Logger
}

func NewLedgerService(store Store, log *zap.Logger) *LedgerService {
	return &LedgerService{store: store, log: log}
}

func (s *LedgerService) Balance(ctx context.Context, account, asset string) (*models.LedgerBalance, error) {
	raw, err := normalizeAccount(account, asset)
	if err != nil {
		return nil, err
	}
	balance, err := s.store.Balance(ctx, raw, asset)
	if err != nil {
		return nil, err
	}
	return &models.LedgerBalance{Account: raw, Asset: asset, Balance: balance}, nil
}

// Credit mints amount into account and returns the new balance.
func (s *LedgerService) Credit(ctx context.Context, actor, account, asset string, amount uint64) (*models.LedgerBalance, error) {
	raw, err := normalizeAccount(account, asset)
	if err != nil {
		return nil, err
	}
	if err := s.store.Credit(ctx, raw, asset, amount); err != nil {
		return nil, err
	}

	s.log.Info("ledger credited",
		zap.String("actor", actor),
		zap.String("account", raw),
		zap.String("asset", asset),
		zap.Uint64("amount", amount),
	)
	return s.Balance(ctx, raw, asset)
}

func normalizeAccount(account, asset string) (string, error) {
	if account == "" || asset == "" {
		return "", ledger.ErrMissingAccountInfo
	}
	raw, err := ton.NormalizeAddress(account)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return raw, nil
}
