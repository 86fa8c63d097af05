package matchmaking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mmeshcher/coinvault/internal/model"
)

// Ключи Redis, общие для всех экземпляров сервиса.
const (
	RedisQueueOrderKey   = "coinvault:queue:order"
	RedisQueuePlayersKey = "coinvault:queue:players"
	RedisRoundLockKey    = "coinvault:round"
)

const maxTxAttempts = 10

// RedisQueue хранит очередь в Redis: порядок в списке ID, данные игроков в хеше по ID.
// Несколько экземпляров сервиса с одним Redis видят одну очередь.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue создаёт очередь поверх клиента Redis.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

// watch выполняет оптимистичную транзакцию, повторяя её при конкурентном изменении ключей.
func (q *RedisQueue) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxAttempts; i++ {
		err := q.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("queue transaction: %w", redis.TxFailedErr)
}

// Join добавляет игрока в конец общей очереди.
func (q *RedisQueue) Join(ctx context.Context, p model.Player) ([]model.Player, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	err = q.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, RedisQueuePlayersKey, p.ID).Result()
		if err != nil || exists {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, RedisQueuePlayersKey, p.ID, data)
			pipe.RPush(ctx, RedisQueueOrderKey, p.ID)
			return nil
		})
		return err
	}, RedisQueuePlayersKey)
	if err != nil {
		return nil, fmt.Errorf("join queue: %w", err)
	}

	return q.Players(ctx)
}

// Remove удаляет игрока из общей очереди.
func (q *RedisQueue) Remove(ctx context.Context, id string) ([]model.Player, bool, error) {
	var removed *redis.IntCmd

	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, RedisQueueOrderKey, 0, id)
		removed = pipe.HDel(ctx, RedisQueuePlayersKey, id)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("leave queue: %w", err)
	}

	players, err := q.Players(ctx)
	if err != nil {
		return nil, false, err
	}
	return players, removed.Val() > 0, nil
}

// Players возвращает игроков в порядке входа в очередь.
func (q *RedisQueue) Players(ctx context.Context) ([]model.Player, error) {
	ids, err := q.client.LRange(ctx, RedisQueueOrderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read queue order: %w", err)
	}
	if len(ids) == 0 {
		return []model.Player{}, nil
	}

	values, err := q.client.HMGet(ctx, RedisQueuePlayersKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("read queue players: %w", err)
	}

	players := make([]model.Player, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// ID удалён между чтением порядка и чтением игроков.
			continue
		}
		var p model.Player
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode queue player: %w", err)
		}
		players = append(players, p)
	}
	return players, nil
}

// Len возвращает количество игроков в общей очереди.
func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.HLen(ctx, RedisQueuePlayersKey).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return int(n), nil
}

// Reset очищает общую очередь.
func (q *RedisQueue) Reset(ctx context.Context) error {
	if err := q.client.Del(ctx, RedisQueueOrderKey, RedisQueuePlayersKey).Err(); err != nil {
		return fmt.Errorf("reset queue: %w", err)
	}
	return nil
}

// RoundLock гарантирует, что розыгрыш одновременно проводит только один экземпляр сервиса.
type RoundLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// RedisRoundLock — блокировка розыгрыша на ключе Redis с истечением по ttl.
// Снимается только тем, кто её взял.
type RedisRoundLock struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.Mutex
	token string
}

// NewRedisRoundLock создаёт блокировку. ttl должен покрывать выплату и паузу перед сбросом очереди.
func NewRedisRoundLock(client *redis.Client, ttl time.Duration) *RedisRoundLock {
	return &RedisRoundLock{client: client, ttl: ttl}
}

// Acquire пытается взять блокировку. false означает, что розыгрыш уже идёт на другом экземпляре.
func (l *RedisRoundLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, RedisRoundLockKey, token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire round lock: %w", err)
	}
	if ok {
		l.mu.Lock()
		l.token = token
		l.mu.Unlock()
	}
	return ok, nil
}

// Release снимает блокировку, если она всё ещё принадлежит этому экземпляру.
func (l *RedisRoundLock) Release(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()

	if token == "" {
		return nil
	}

	err := l.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, RedisRoundLockKey).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if current != token {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, RedisRoundLockKey)
			return nil
		})
		return err
	}, RedisRoundLockKey)
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("release round lock: %w", err)
	}
	return nil
}
