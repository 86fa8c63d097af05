package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/coinvault/internal/model"
)

// newTestPostgres подключается к базе из TEST_DATABASE_URI и удаляет тестовый кошелёк.
// Без переменной окружения тест пропускается.
func newTestPostgres(t *testing.T) *PostgresRepository {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URI")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URI is not set")
	}

	repo, err := NewPostgresRepository(dsn)
	require.NoError(t, err)

	cleanup := func() {
		_, err := repo.pool.Exec(context.Background(), `DELETE FROM accounts WHERE wallet = $1`, testWallet)
		require.NoError(t, err)
	}
	cleanup()
	t.Cleanup(func() {
		cleanup()
		repo.Close()
	})

	return repo
}

func TestPostgres_ConcurrentFirstLogin(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acc, err := repo.LoginOrCreate(ctx, testWallet, model.NewAccountGrant)
			if err != nil || !acc.Created {
				return
			}
			mu.Lock()
			created++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	acc, err := repo.GetAccount(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, model.NewAccountGrant, acc.Coin)
}

func TestPostgres_SaveProgressPartial(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveProgress(ctx, testWallet, ptr(10), ptr(500)))
	require.NoError(t, repo.SaveProgress(ctx, testWallet, ptr(3), nil))

	acc, err := repo.GetAccount(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, int64(3), acc.Coin)
	assert.Equal(t, int64(500), acc.HighScore)

	err = repo.SaveProgress(ctx, testWallet, ptr(-1), nil)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestPostgres_InsufficientDebitDoesNotMutate(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()
	require.NoError(t, repo.SaveProgress(ctx, testWallet, ptr(10), nil))

	_, err := repo.Debit(ctx, testWallet, 11)
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)

	acc, err := repo.GetAccount(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, int64(10), acc.Coin)
}

func TestPostgres_ConcurrentDoubleDebit(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()
	require.NoError(t, repo.SaveProgress(ctx, testWallet, ptr(100), nil))

	amounts := []int64{70, 60}
	errs := make([]error, len(amounts))

	var wg sync.WaitGroup
	for i, amount := range amounts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = repo.Debit(ctx, testWallet, amount)
		}()
	}
	wg.Wait()

	succeeded, rejected := 0, 0
	var spent int64
	for i, err := range errs {
		switch {
		case err == nil:
			succeeded++
			spent = amounts[i]
		case errors.Is(err, model.ErrInsufficientBalance):
			rejected++
		default:
			t.Fatalf("unexpected debit error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	acc, err := repo.GetAccount(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, 100-spent, acc.Coin)
}

func TestPostgres_ManyConcurrentDebits(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()
	require.NoError(t, repo.SaveProgress(ctx, testWallet, ptr(100), nil))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Debit(ctx, testWallet, 7); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 14, ok)
	acc, err := repo.GetAccount(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, int64(2), acc.Coin)
}
