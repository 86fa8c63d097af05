// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// IsValidWallet проверяет, что строка является hex-адресом кошелька EVM (с префиксом 0x).
// Адрес в смешанном регистре должен иметь корректную контрольную сумму EIP-55.
func IsValidWallet(wallet string) bool {
	if !strings.HasPrefix(wallet, "0x") && !strings.HasPrefix(wallet, "0X") {
		return false
	}
	if !common.IsHexAddress(wallet) {
		return false
	}

	digits := wallet[2:]
	if digits == strings.ToLower(digits) || digits == strings.ToUpper(digits) {
		return true
	}
	return digits == common.HexToAddress(wallet).Hex()[2:]
}

// NormalizeWallet приводит адрес кошелька к нижнему регистру, чтобы 0xABC и 0xabc были одной записью.
func NormalizeWallet(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}
