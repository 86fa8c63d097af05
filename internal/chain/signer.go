// Package chain содержит взаимодействие с EVM-сетью: подпись заявок на вывод
// и клиент контракта выплат розыгрыша.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer хранит приватный ключ сервиса и подписывает сообщения по схеме EIP-191 (personal_sign).
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner создаёт подписанта из hex-представления приватного ключа (префикс 0x допускается).
func NewSigner(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address возвращает адрес, соответствующий ключу подписанта.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignMessage подписывает сообщение с префиксом "\x19Ethereum Signed Message:\n<len>".
// V в подписи приводится к 27/28, как ожидает ecrecover в контракте.
func (s *Signer) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(accounts.TextHash(message), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	return sig, nil
}

// RecoverMessageSigner восстанавливает адрес подписанта сообщения, подписанного SignMessage.
func RecoverMessageSigner(message, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, errors.New("invalid signature length")
	}

	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(message), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}
