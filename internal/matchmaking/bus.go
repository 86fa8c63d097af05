package matchmaking

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Имена событий, которыми обмениваются сервер и клиенты.
const (
	EventJoinQueue     = "joinQueue"
	EventUpdatePlayers = "updatePlayers"
	EventStartSpin     = "startSpin"
	EventError         = "error"
)

// RedisChannel — канал pub/sub, через который экземпляры сервиса делятся событиями розыгрыша.
const RedisChannel = "coinvault:matchmaking"

// Event — сообщение websocket-протокола.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent сериализует data и упаковывает его в событие name.
func NewEvent(name string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Data: raw}, nil
}

// Bus доставляет события всем подписчикам.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, handler func(Event)) error
}

// LocalBus рассылает события подписчикам внутри процесса.
type LocalBus struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(Event)
}

// NewLocalBus создаёт шину без подписчиков.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[int]func(Event))}
}

// Publish синхронно вызывает всех подписчиков.
func (b *LocalBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

// Subscribe регистрирует обработчик до отмены ctx.
func (b *LocalBus) Subscribe(ctx context.Context, handler func(Event)) error {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = handler
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()

	return nil
}

// RedisBus передаёт события через Redis pub/sub, чтобы клиенты всех экземпляров получали одни и те же обновления.
// Используется вместе с RedisQueue и RedisRoundLock: события описывают общую очередь.
type RedisBus struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedisBus создаёт шину поверх клиента Redis.
func NewRedisBus(client *redis.Client, log *zap.Logger) *RedisBus {
	return &RedisBus{client: client, log: log}
}

// NewRedisClient подключается к Redis по URL и проверяет соединение.
func NewRedisClient(ctx context.Context, url string, log *zap.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	log.Info("redis connected", zap.String("addr", opts.Addr))
	return client, nil
}

// Publish публикует событие в RedisChannel.
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, RedisChannel, data).Err()
}

// Subscribe подписывается на RedisChannel и вызывает handler до отмены ctx.
func (b *RedisBus) Subscribe(ctx context.Context, handler func(Event)) error {
	pubsub := b.client.Subscribe(ctx, RedisChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.log.Error("failed to unmarshal matchmaking event", zap.Error(err))
					continue
				}
				handler(event)
			}
		}
	}()

	return nil
}
