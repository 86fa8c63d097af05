package service

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/mmeshcher/coinvault/internal/chain"
	"github.com/mmeshcher/coinvault/internal/model"
	"github.com/mmeshcher/coinvault/internal/validation"
)

// weiPerUnit — 10^18, число базовых единиц в одной единице нативной валюты.
var weiPerUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// ToOnChainAmount переводит монеты в базовые единицы сети: floor(amount * 10^18 / sellRate).
func ToOnChainAmount(amount int64, sellRate *big.Int) *big.Int {
	v := new(big.Int).Mul(big.NewInt(amount), weiPerUnit)
	return v.Quo(v, sellRate)
}

// Withdraw списывает amount монет с кошелька и возвращает подписанную заявку для контракта хранилища.
// Подпись вычисляется один раз до списания и вне транзакции хранилища.
// Если списание не удалось, подпись отбрасывается.
func (s *Service) Withdraw(ctx context.Context, wallet string, amount int64) (*model.WithdrawResult, error) {
	if !validation.IsValidWallet(wallet) {
		return nil, fmt.Errorf("%w: invalid wallet", model.ErrValidation)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", model.ErrValidation)
	}

	normalized := validation.NormalizeWallet(wallet)

	amountOnChain := ToOnChainAmount(amount, s.sellRate)
	if amountOnChain.Sign() == 0 {
		return nil, fmt.Errorf("%w: amount is below one base unit", model.ErrValidation)
	}

	nonce := s.nonces.Next()

	digest, err := chain.ClaimDigest(common.HexToAddress(normalized), amountOnChain, nonce, s.vault)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrSigning, err)
	}

	signature, err := s.signer.SignMessage(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrSigning, err)
	}

	newBalance, err := s.repo.Debit(ctx, normalized, amount)
	if err != nil {
		return nil, classifyStoreError(err)
	}

	s.logger.Info("withdrawal authorized",
		zap.String("wallet", normalized),
		zap.Int64("amount", amount),
		zap.String("amountOnChain", amountOnChain.String()),
		zap.Uint64("nonce", nonce),
		zap.Int64("newBalance", newBalance),
	)

	return &model.WithdrawResult{
		ClaimData: model.Claim{
			User:         wallet,
			Amount:       amountOnChain.String(),
			Nonce:        nonce,
			Signature:    hexutil.Encode(signature),
			VaultAddress: s.vault.Hex(),
		},
		NewBalance: newBalance,
	}, nil
}
