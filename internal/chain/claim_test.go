package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimDigest_PackedLayout(t *testing.T) {
	user := common.HexToAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	vault := common.HexToAddress("0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359")
	amount, _ := new(big.Int).SetString("1000000000000000000", 10)
	nonce := uint64(1700000000123)

	got, err := ClaimDigest(user, amount, nonce, vault)
	require.NoError(t, err)

	// 20 + 32 + 32 + 20 байт без выравнивания адресов.
	packed := append([]byte{}, user.Bytes()...)
	packed = append(packed, common.LeftPadBytes(amount.Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(new(big.Int).SetUint64(nonce).Bytes(), 32)...)
	packed = append(packed, vault.Bytes()...)
	require.Len(t, packed, 104)

	assert.Equal(t, crypto.Keccak256(packed), got)
}

// Векторы посчитаны вне Go: keccak256 от abi.encodePacked(address,uint256,uint256,address)
// и personal_sign ключом testKeyHex (RFC 6979, low-s, V = 27/28).
func TestClaimDigest_KnownVectors(t *testing.T) {
	user := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	vault := common.HexToAddress("0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359")

	tests := []struct {
		name   string
		amount string
		nonce  uint64
		digest string
	}{
		{
			name:   "one native unit",
			amount: "1000000000000000000",
			nonce:  1700000000123,
			digest: "0xf4dc17dd2e29b59e3978407ccd115c514a53f07a0208cbac573b199e674acdea",
		},
		{
			name:   "one coin at default rate",
			amount: "909090909090909",
			nonce:  1,
			digest: "0xad21002188dacd1ea2d9c5e7d7887e2b554f44b9281335b49a0c3e41ae775962",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, ok := new(big.Int).SetString(tt.amount, 10)
			require.True(t, ok)

			got, err := ClaimDigest(user, amount, tt.nonce, vault)
			require.NoError(t, err)
			assert.Equal(t, tt.digest, hexutil.Encode(got))
		})
	}
}

func TestClaimSignature_KnownVector(t *testing.T) {
	s, err := NewSigner(testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, "0x970E8128AB834E8EAC17Ab8E3812F010678CF791", s.Address().Hex())

	digest := hexutil.MustDecode("0xf4dc17dd2e29b59e3978407ccd115c514a53f07a0208cbac573b199e674acdea")

	sig, err := s.SignMessage(context.Background(), digest)
	require.NoError(t, err)
	assert.Equal(t,
		"0x7a145dd86dafe9fd26760cb8faba27bd8caec15f48b6d3acf60d28a58b32d4ac"+
			"73fb8857be350077c18cf046b3d55a7abd80511f86ab1eacef1acf20e503bca11c",
		hexutil.Encode(sig))
}

func TestClaimDigest_FieldOrderMatters(t *testing.T) {
	a := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	b := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	d1, err := ClaimDigest(a, big.NewInt(1), 2, b)
	require.NoError(t, err)
	d2, err := ClaimDigest(b, big.NewInt(1), 2, a)
	require.NoError(t, err)
	d3, err := ClaimDigest(a, big.NewInt(2), 1, b)
	require.NoError(t, err)

	assert.NotEqual(t, d1, d2)
	assert.NotEqual(t, d1, d3)
}

func TestClaimDigest_Overflow(t *testing.T) {
	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)

	_, err := ClaimDigest(common.Address{}, tooBig, 1, common.Address{})
	assert.ErrorIs(t, err, ErrAmountOverflow)

	_, err = ClaimDigest(common.Address{}, big.NewInt(-1), 1, common.Address{})
	assert.ErrorIs(t, err, ErrAmountOverflow)
}
