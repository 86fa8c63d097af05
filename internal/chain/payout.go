package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// PayoutABI описывает используемую часть интерфейса контракта призового фонда.
const PayoutABI = `[
	{"type":"function","name":"payoutWinner","stateMutability":"nonpayable",
	 "inputs":[{"name":"_winner","type":"address"},{"name":"_amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"getBalance","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

// ErrPayoutReverted возвращается, если транзакция выплаты попала в блок со статусом ошибки.
var ErrPayoutReverted = errors.New("payout transaction reverted")

// PayoutContract — клиент контракта призового фонда розыгрыша.
type PayoutContract struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	key      *ecdsa.PrivateKey
	chainID  *big.Int
}

// DialPayoutContract подключается к RPC и привязывает контракт по адресу.
func DialPayoutContract(ctx context.Context, rpcURL, address, hexKey string) (*PayoutContract, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid payout contract address %q", address)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse payout key: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(PayoutABI))
	if err != nil {
		return nil, fmt.Errorf("parse payout abi: %w", err)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("get chain id: %w", err)
	}

	addr := common.HexToAddress(address)
	return &PayoutContract{
		client:   client,
		contract: bind.NewBoundContract(addr, parsed, client, client, client),
		key:      key,
		chainID:  chainID,
	}, nil
}

// Balance возвращает текущий баланс призового фонда (getBalance) в базовых единицах.
func (p *PayoutContract) Balance(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getBalance"); err != nil {
		return nil, fmt.Errorf("call getBalance: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("getBalance returned %d values", len(out))
	}

	balance := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return balance, nil
}

// Payout отправляет payoutWinner(winner, amount) и ждёт включения транзакции в блок.
func (p *PayoutContract) Payout(ctx context.Context, winner string, amount *big.Int) (string, error) {
	if !common.IsHexAddress(winner) {
		return "", fmt.Errorf("invalid winner address %q", winner)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(p.key, p.chainID)
	if err != nil {
		return "", fmt.Errorf("create transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := p.contract.Transact(opts, "payoutWinner", common.HexToAddress(winner), amount)
	if err != nil {
		return "", fmt.Errorf("send payoutWinner: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, p.client, tx)
	if err != nil {
		return tx.Hash().Hex(), fmt.Errorf("wait payout receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return tx.Hash().Hex(), ErrPayoutReverted
	}

	return tx.Hash().Hex(), nil
}

// Close закрывает соединение с RPC.
func (p *PayoutContract) Close() {
	p.client.Close()
}
