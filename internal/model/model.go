// Package model содержит доменные сущности сервиса coinvault.
package model

import (
	"errors"
	"time"
)

// NewAccountGrant — количество монет, начисляемое кошельку при первом входе.
const NewAccountGrant int64 = 20

var (
	// ErrValidation возвращается при отсутствующих или некорректных полях запроса.
	ErrValidation = errors.New("validation error")
	// ErrAccountNotFound возвращается, если для кошелька нет учётной записи.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInsufficientBalance возвращается при попытке вывода суммы, превышающей баланс.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrSigning возвращается, если не удалось подписать заявку на вывод.
	ErrSigning = errors.New("signing failure")
	// ErrStoreTransaction возвращается, если транзакция хранилища не завершилась (конкуренция или недоступность).
	ErrStoreTransaction = errors.New("store transaction failure")
)

// Account описывает учётную запись игрока, привязанную к адресу кошелька.
type Account struct {
	Wallet     string
	Coin       int64
	HighScore  int64
	LastLogin  time.Time
	LastUpdate time.Time
	// Created выставляется, если запись была создана текущим вызовом входа.
	Created bool
}

// Claim — подписанная заявка, которую клиент передаёт в контракт хранилища.
type Claim struct {
	User         string `json:"user"`
	Amount       string `json:"amount"`
	Nonce        uint64 `json:"nonce"`
	Signature    string `json:"signature"`
	VaultAddress string `json:"vaultAddress"`
}

// WithdrawResult содержит заявку на вывод и баланс после списания.
type WithdrawResult struct {
	ClaimData  Claim `json:"claimData"`
	NewBalance int64 `json:"newBalance"`
}

// Player — участник очереди розыгрыша.
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Wallet string `json:"wallet"`
}
