package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mmeshcher/coinvault/internal/model"
)

type memoryAccount struct {
	mu  sync.Mutex
	acc model.Account
}

// MemoryRepository хранит учётные записи в памяти процесса.
// Каждый кошелёк защищён собственным мьютексом, поэтому операции над разными кошельками не блокируют друг друга.
type MemoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]*memoryAccount
	now      func() time.Time
}

// NewMemoryRepository создаёт пустое in-memory хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts: make(map[string]*memoryAccount),
		now:      time.Now,
	}
}

func (r *MemoryRepository) lookup(wallet string) *memoryAccount {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.accounts[wallet]
}

// slot возвращает запись кошелька, создавая её через init, если её ещё нет.
func (r *MemoryRepository) slot(wallet string, init func(*model.Account)) (*memoryAccount, bool) {
	if a := r.lookup(wallet); a != nil {
		return a, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.accounts[wallet]; ok {
		return a, false
	}

	a := &memoryAccount{acc: model.Account{Wallet: wallet}}
	init(&a.acc)
	r.accounts[wallet] = a
	return a, true
}

// Close ничего не освобождает и нужен для совместимости с PostgresRepository.
func (r *MemoryRepository) Close() error {
	return nil
}

// LoginOrCreate возвращает учётную запись кошелька, создавая её с начальным балансом grant при первом входе.
func (r *MemoryRepository) LoginOrCreate(ctx context.Context, wallet string, grant int64) (*model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := r.now()
	a, created := r.slot(wallet, func(acc *model.Account) {
		acc.Coin = grant
	})

	a.mu.Lock()
	defer a.mu.Unlock()

	a.acc.LastLogin = now
	acc := a.acc
	acc.Created = created
	return &acc, nil
}

// SaveProgress перезаписывает переданные поля учётной записи; nil-поля остаются без изменений.
func (r *MemoryRepository) SaveProgress(ctx context.Context, wallet string, coin, highScore *int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if (coin != nil && *coin < 0) || (highScore != nil && *highScore < 0) {
		return fmt.Errorf("%w: negative coin or high score", model.ErrValidation)
	}

	a, _ := r.slot(wallet, func(*model.Account) {})

	a.mu.Lock()
	defer a.mu.Unlock()

	if coin != nil {
		a.acc.Coin = *coin
	}
	if highScore != nil {
		a.acc.HighScore = *highScore
	}
	a.acc.LastUpdate = r.now()
	return nil
}

// GetAccount возвращает копию учётной записи кошелька.
func (r *MemoryRepository) GetAccount(ctx context.Context, wallet string) (*model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a := r.lookup(wallet)
	if a == nil {
		return nil, model.ErrAccountNotFound
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	acc := a.acc
	return &acc, nil
}

// Debit атомарно проверяет баланс и списывает amount монет, возвращая новый баланс.
func (r *MemoryRepository) Debit(ctx context.Context, wallet string, amount int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	a := r.lookup(wallet)
	if a == nil {
		return 0, model.ErrAccountNotFound
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.acc.Coin < amount {
		return 0, model.ErrInsufficientBalance
	}

	a.acc.Coin -= amount
	a.acc.LastUpdate = r.now()
	return a.acc.Coin, nil
}
