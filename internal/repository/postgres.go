// Package repository содержит реализации хранилища учётных записей (PostgreSQL и in-memory).
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mmeshcher/coinvault/internal/model"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var retryDelays = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

// dbPool — часть pgxpool.Pool, которой пользуется репозиторий.
type dbPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresRepository предоставляет доступ к учётным записям в PostgreSQL.
type PostgresRepository struct {
	pool dbPool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresRepository{pool: pool}, nil
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(retryDelays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) {
			return err
		}

		if i == len(retryDelays) {
			break
		}

		timer := time.NewTimer(retryDelays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w: %v", model.ErrStoreTransaction, err)
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// LoginOrCreate возвращает учётную запись кошелька, создавая её с начальным балансом grant при первом входе.
// Вставка и обновление last_login выполняются одним upsert, поэтому параллельный первый вход создаёт ровно одну запись.
func (r *PostgresRepository) LoginOrCreate(ctx context.Context, wallet string, grant int64) (*model.Account, error) {
	acc := model.Account{Wallet: wallet}
	var lastUpdate *time.Time

	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO accounts (wallet, coin, high_score, last_login)
			 VALUES ($1, $2, 0, now())
			 ON CONFLICT (wallet) DO UPDATE SET last_login = now()
			 RETURNING coin, high_score, last_login, last_update, (xmax = 0)`,
			wallet, grant,
		).Scan(&acc.Coin, &acc.HighScore, &acc.LastLogin, &lastUpdate, &acc.Created)
	})
	if err != nil {
		return nil, fmt.Errorf("login account: %w", err)
	}

	if lastUpdate != nil {
		acc.LastUpdate = *lastUpdate
	}

	return &acc, nil
}

// SaveProgress перезаписывает переданные поля учётной записи; nil-поля остаются без изменений.
// Если записи нет, она создаётся с переданными значениями.
func (r *PostgresRepository) SaveProgress(ctx context.Context, wallet string, coin, highScore *int64) error {
	err := r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO accounts (wallet, coin, high_score, last_update)
			 VALUES ($1, COALESCE($2::bigint, 0), COALESCE($3::bigint, 0), now())
			 ON CONFLICT (wallet) DO UPDATE SET
			     coin = COALESCE($2::bigint, accounts.coin),
			     high_score = COALESCE($3::bigint, accounts.high_score),
			     last_update = now()`,
			wallet, coin, highScore,
		)
		return err
	})
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: negative coin or high score", model.ErrValidation)
		}
		return fmt.Errorf("save progress: %w", err)
	}

	return nil
}

// GetAccount возвращает учётную запись кошелька.
func (r *PostgresRepository) GetAccount(ctx context.Context, wallet string) (*model.Account, error) {
	acc := model.Account{Wallet: wallet}
	var lastLogin, lastUpdate *time.Time

	err := r.pool.QueryRow(ctx,
		`SELECT coin, high_score, last_login, last_update FROM accounts WHERE wallet = $1`,
		wallet,
	).Scan(&acc.Coin, &acc.HighScore, &lastLogin, &lastUpdate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	if lastLogin != nil {
		acc.LastLogin = *lastLogin
	}
	if lastUpdate != nil {
		acc.LastUpdate = *lastUpdate
	}

	return &acc, nil
}

// Debit атомарно списывает amount монет и возвращает новый баланс.
// Строка кошелька блокируется на время транзакции, что сериализует параллельные списания одного кошелька.
func (r *PostgresRepository) Debit(ctx context.Context, wallet string, amount int64) (int64, error) {
	var newBalance int64

	err := r.withRetry(ctx, func() error {
		var err error
		newBalance, err = r.debitTx(ctx, wallet, amount)
		return err
	})
	if err != nil {
		return 0, err
	}

	return newBalance, nil
}

func (r *PostgresRepository) debitTx(ctx context.Context, wallet string, amount int64) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current int64
	err = tx.QueryRow(ctx, `SELECT coin FROM accounts WHERE wallet = $1 FOR UPDATE`, wallet).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, model.ErrAccountNotFound
		}
		return 0, fmt.Errorf("lock account for update: %w", err)
	}

	if current < amount {
		return 0, model.ErrInsufficientBalance
	}

	var newBalance int64
	err = tx.QueryRow(ctx,
		`UPDATE accounts SET coin = coin - $2, last_update = now() WHERE wallet = $1 RETURNING coin`,
		wallet, amount,
	).Scan(&newBalance)
	if err != nil {
		return 0, fmt.Errorf("decrement coin: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return newBalance, nil
}
