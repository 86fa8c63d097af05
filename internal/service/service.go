// Package service реализует бизнес-логику сервиса coinvault: вход, сохранение прогресса и вывод монет.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/mmeshcher/coinvault/internal/model"
	"github.com/mmeshcher/coinvault/internal/validation"
)

// Repository описывает контракт хранилища учётных записей, используемый сервисом.
type Repository interface {
	Close() error
	LoginOrCreate(ctx context.Context, wallet string, grant int64) (*model.Account, error)
	SaveProgress(ctx context.Context, wallet string, coin, highScore *int64) error
	GetAccount(ctx context.Context, wallet string) (*model.Account, error)
	Debit(ctx context.Context, wallet string, amount int64) (int64, error)
}

// Signer подписывает произвольную последовательность байт ключом сервиса.
type Signer interface {
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
}

// Service содержит бизнес-логику сервиса coinvault.
type Service struct {
	repo     Repository
	signer   Signer
	vault    common.Address
	sellRate *big.Int
	nonces   *NonceSource
	logger   *zap.Logger
}

// NewService создаёт сервис. vault — адрес контракта, проверяющего заявки, sellRate — монет за единицу нативной валюты.
func NewService(repo Repository, signer Signer, vault string, sellRate int64, logger *zap.Logger) (*Service, error) {
	if !validation.IsValidWallet(vault) {
		return nil, fmt.Errorf("invalid vault address %q", vault)
	}
	if sellRate <= 0 {
		return nil, fmt.Errorf("sell rate must be positive, got %d", sellRate)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:     repo,
		signer:   signer,
		vault:    common.HexToAddress(vault),
		sellRate: big.NewInt(sellRate),
		nonces:   NewNonceSource(),
		logger:   logger,
	}, nil
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Login возвращает баланс и рекорд кошелька; новый кошелёк получает model.NewAccountGrant монет.
func (s *Service) Login(ctx context.Context, address string) (*model.Account, error) {
	if !validation.IsValidWallet(address) {
		return nil, fmt.Errorf("%w: invalid address", model.ErrValidation)
	}

	wallet := validation.NormalizeWallet(address)
	acc, err := s.repo.LoginOrCreate(ctx, wallet, model.NewAccountGrant)
	if err != nil {
		return nil, err
	}

	if acc.Created {
		s.logger.Info("new account created", zap.String("wallet", wallet), zap.Int64("grant", acc.Coin))
	} else {
		s.logger.Info("login", zap.String("wallet", wallet), zap.Int64("balance", acc.Coin))
	}

	return acc, nil
}

// Save перезаписывает баланс и рекорд кошелька. Переданные значения не проверяются на честность,
// отклоняются только отрицательные.
func (s *Service) Save(ctx context.Context, wallet string, coin, highScore *int64) error {
	if !validation.IsValidWallet(wallet) {
		return fmt.Errorf("%w: invalid wallet", model.ErrValidation)
	}
	if (coin != nil && *coin < 0) || (highScore != nil && *highScore < 0) {
		return fmt.Errorf("%w: negative coin or high score", model.ErrValidation)
	}

	normalized := validation.NormalizeWallet(wallet)
	if err := s.repo.SaveProgress(ctx, normalized, coin, highScore); err != nil {
		return err
	}

	fields := []zap.Field{zap.String("wallet", normalized)}
	if coin != nil {
		fields = append(fields, zap.Int64("coin", *coin))
	}
	s.logger.Info("progress saved", fields...)

	return nil
}

// Balance возвращает учётную запись кошелька без изменения её состояния.
func (s *Service) Balance(ctx context.Context, wallet string) (*model.Account, error) {
	if !validation.IsValidWallet(wallet) {
		return nil, fmt.Errorf("%w: invalid wallet", model.ErrValidation)
	}
	return s.repo.GetAccount(ctx, validation.NormalizeWallet(wallet))
}

// classifyStoreError оставляет доменные ошибки хранилища как есть, остальные сводит к ErrStoreTransaction.
func classifyStoreError(err error) error {
	switch {
	case errors.Is(err, model.ErrAccountNotFound),
		errors.Is(err, model.ErrInsufficientBalance),
		errors.Is(err, model.ErrValidation),
		errors.Is(err, model.ErrStoreTransaction):
		return err
	default:
		return fmt.Errorf("%w: %v", model.ErrStoreTransaction, err)
	}
}
