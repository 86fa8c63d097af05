package chain

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const uint256Size = 32

// ErrAmountOverflow возвращается, если сумма не помещается в uint256.
var ErrAmountOverflow = errors.New("amount does not fit into uint256")

// ClaimDigest вычисляет keccak256 плотной упаковки (address, uint256, uint256, address),
// совпадающий с abi.encodePacked(user, amount, nonce, vault) в контракте хранилища.
func ClaimDigest(user common.Address, amount *big.Int, nonce uint64, vault common.Address) ([]byte, error) {
	if amount == nil || amount.Sign() < 0 || amount.BitLen() > 8*uint256Size {
		return nil, ErrAmountOverflow
	}

	packed := make([]byte, 0, 2*common.AddressLength+2*uint256Size)
	packed = append(packed, user.Bytes()...)
	packed = append(packed, amount.FillBytes(make([]byte, uint256Size))...)
	packed = append(packed, new(big.Int).SetUint64(nonce).FillBytes(make([]byte, uint256Size))...)
	packed = append(packed, vault.Bytes()...)

	return crypto.Keccak256(packed), nil
}
