package matchmaking

import (
	"context"
	"math/big"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/coinvault/internal/model"
)

// MinPlayers — размер очереди, при котором запускается розыгрыш.
const MinPlayers = 2

// PayoutContract — контракт призового фонда.
type PayoutContract interface {
	Balance(ctx context.Context) (*big.Int, error)
	Payout(ctx context.Context, winner string, amount *big.Int) (string, error)
}

// Lottery выбирает случайного победителя из очереди и выплачивает ему весь призовой фонд.
// Одновременно выполняется не более одного розыгрыша: в процессе за это отвечает флаг running,
// между экземплярами сервиса — RoundLock.
type Lottery struct {
	queue      Queue
	bus        Bus
	contract   PayoutContract
	lock       RoundLock
	resetDelay time.Duration
	pick       func(n int) int
	logger     *zap.Logger

	running atomic.Bool
	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

// NewLottery создаёт розыгрыш. contract может быть nil: тогда победитель выбирается без выплаты.
// lock может быть nil, если сервис работает в одном экземпляре.
func NewLottery(queue Queue, bus Bus, contract PayoutContract, lock RoundLock, resetDelay time.Duration, logger *zap.Logger) *Lottery {
	return &Lottery{
		queue:      queue,
		bus:        bus,
		contract:   contract,
		lock:       lock,
		resetDelay: resetDelay,
		pick:       rand.IntN,
		logger:     logger,
	}
}

// TryStart запускает розыгрыш в фоне, если в очереди достаточно игроков и розыгрыш ещё не идёт.
// После Stop новые розыгрыши не запускаются.
func (l *Lottery) TryStart(ctx context.Context) bool {
	n, err := l.queue.Len(ctx)
	if err != nil {
		l.logger.Error("read queue length", zap.Error(err))
		return false
	}
	if n < MinPlayers {
		return false
	}
	if !l.running.CompareAndSwap(false, true) {
		return false
	}

	if l.lock != nil {
		ok, err := l.lock.Acquire(ctx)
		if err != nil {
			l.logger.Error("acquire round lock", zap.Error(err))
		}
		if !ok {
			l.running.Store(false)
			return false
		}
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.release()
		l.running.Store(false)
		return false
	}
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		defer l.running.Store(false)
		defer l.release()
		l.run(ctx)
	}()
	return true
}

// Wait дожидается завершения текущего розыгрыша.
func (l *Lottery) Wait() {
	l.wg.Wait()
}

// Stop запрещает запуск новых розыгрышей и дожидается завершения текущего.
func (l *Lottery) Stop() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	l.wg.Wait()
}

func (l *Lottery) release() {
	if l.lock == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.lock.Release(ctx); err != nil {
		l.logger.Error("release round lock", zap.Error(err))
	}
}

func (l *Lottery) run(ctx context.Context) {
	players, err := l.queue.Players(ctx)
	if err != nil {
		l.logger.Error("read queue", zap.Error(err))
		return
	}
	if len(players) < MinPlayers {
		return
	}

	idx := l.pick(len(players))
	winner := players[idx]

	l.publish(ctx, EventStartSpin, idx)
	l.logger.Info("lottery winner selected",
		zap.Int("index", idx),
		zap.String("player", winner.Name),
		zap.String("wallet", winner.Wallet),
	)

	l.payout(ctx, winner)

	timer := time.NewTimer(l.resetDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return
	case <-timer.C:
	}

	if err := l.queue.Reset(ctx); err != nil {
		l.logger.Error("reset queue", zap.Error(err))
	}
	l.publish(ctx, EventUpdatePlayers, []model.Player{})
}

func (l *Lottery) payout(ctx context.Context, winner model.Player) {
	if l.contract == nil {
		l.logger.Warn("payout contract not configured, skipping payout")
		return
	}

	balance, err := l.contract.Balance(ctx)
	if err != nil {
		l.logger.Error("read prize pool balance", zap.Error(err))
		return
	}
	if balance.Sign() <= 0 {
		l.logger.Info("prize pool is empty, skipping payout")
		return
	}

	txHash, err := l.contract.Payout(ctx, winner.Wallet, balance)
	if err != nil {
		l.logger.Error("payout winner", zap.Error(err), zap.String("wallet", winner.Wallet), zap.String("tx", txHash))
		return
	}

	l.logger.Info("prize paid",
		zap.String("wallet", winner.Wallet),
		zap.String("amount", balance.String()),
		zap.String("tx", txHash),
	)
}

func (l *Lottery) publish(ctx context.Context, name string, data any) {
	ev, err := NewEvent(name, data)
	if err != nil {
		l.logger.Error("encode event", zap.Error(err), zap.String("event", name))
		return
	}
	if err := l.bus.Publish(ctx, ev); err != nil {
		l.logger.Error("publish event", zap.Error(err), zap.String("event", name))
	}
}
