// Package main запускает HTTP-сервер сервиса coinvault.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/coinvault/internal/chain"
	"github.com/mmeshcher/coinvault/internal/config"
	"github.com/mmeshcher/coinvault/internal/handler"
	"github.com/mmeshcher/coinvault/internal/matchmaking"
	"github.com/mmeshcher/coinvault/internal/repository"
	"github.com/mmeshcher/coinvault/internal/service"
)

// roundLockMargin покрывает чтение баланса и ожидание транзакции выплаты.
const roundLockMargin = 5 * time.Minute

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}
	if err := cfg.Validate(); err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var repo service.Repository
	if cfg.DatabaseURI != "" {
		repo, err = repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
	} else {
		sugar.Warn("DATABASE_URI is not set, balances are kept in memory")
		repo = repository.NewMemoryRepository()
	}

	signer, err := chain.NewSigner(cfg.SignerPrivateKey)
	if err != nil {
		sugar.Fatalw("signer initialization error", "error", err.Error())
	}
	sugar.Infow("claim signer loaded", "address", signer.Address().Hex(), "vault", cfg.VaultAddress)

	svc, err := service.NewService(repo, signer, cfg.VaultAddress, cfg.SellRate, logger)
	if err != nil {
		sugar.Fatalw("service initialization error", "error", err.Error())
	}
	defer svc.Close()

	// С Redis очередь, события и блокировка розыгрыша общие для всех экземпляров сервиса.
	var (
		bus   matchmaking.Bus   = matchmaking.NewLocalBus()
		queue matchmaking.Queue = matchmaking.NewMemoryQueue()
		lock  matchmaking.RoundLock
	)
	if cfg.RedisURL != "" {
		rdb, err := matchmaking.NewRedisClient(ctx, cfg.RedisURL, logger)
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}
		defer rdb.Close()
		bus = matchmaking.NewRedisBus(rdb, logger)
		queue = matchmaking.NewRedisQueue(rdb)
		lock = matchmaking.NewRedisRoundLock(rdb, cfg.SpinResetDelay+roundLockMargin)
	}

	var contract matchmaking.PayoutContract
	if cfg.MatchmakingEnabled() {
		payout, err := chain.DialPayoutContract(ctx, cfg.RPCURL, cfg.PayoutContractAddress, cfg.PayoutPrivateKey)
		if err != nil {
			sugar.Fatalw("payout contract initialization error", "error", err.Error())
		}
		defer payout.Close()
		contract = payout
	} else {
		sugar.Warn("payout contract is not configured, lottery runs without payouts")
	}

	lottery := matchmaking.NewLottery(queue, bus, contract, lock, cfg.SpinResetDelay, logger)
	hub := matchmaking.NewHub(queue, lottery, bus, logger)

	h := handler.NewHandler(svc, logger, hub)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	if err := hub.Start(ctx); err != nil {
		sugar.Fatalw("matchmaking initialization error", "error", err.Error())
	}

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting coinvault server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		hub.Shutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		lottery.Stop()
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
