// Package matchmaking реализует очередь игроков, розыгрыш призового фонда
// и рассылку событий подключённым клиентам по websocket.
package matchmaking

import (
	"context"
	"sync"

	"github.com/mmeshcher/coinvault/internal/model"
)

// Queue — упорядоченный список игроков, ожидающих розыгрыша.
// Все экземпляры сервиса, обслуживающие одну игру, должны видеть одну и ту же очередь.
type Queue interface {
	// Join добавляет игрока в конец очереди и возвращает её снимок.
	// Повторное добавление игрока с тем же ID игнорируется.
	Join(ctx context.Context, p model.Player) ([]model.Player, error)
	// Remove удаляет игрока по ID. Второе значение сообщает, был ли игрок в очереди.
	Remove(ctx context.Context, id string) ([]model.Player, bool, error)
	Players(ctx context.Context) ([]model.Player, error)
	Len(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}

// MemoryQueue хранит очередь в памяти процесса. Подходит для одного экземпляра сервиса.
type MemoryQueue struct {
	mu      sync.Mutex
	players []model.Player
}

// NewMemoryQueue создаёт пустую очередь в памяти.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Join добавляет игрока в конец очереди.
func (q *MemoryQueue) Join(_ context.Context, p model.Player) ([]model.Player, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, existing := range q.players {
		if existing.ID == p.ID {
			return q.snapshot(), nil
		}
	}
	q.players = append(q.players, p)
	return q.snapshot(), nil
}

// Remove удаляет игрока по ID.
func (q *MemoryQueue) Remove(_ context.Context, id string) ([]model.Player, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, p := range q.players {
		if p.ID == id {
			q.players = append(q.players[:i], q.players[i+1:]...)
			return q.snapshot(), true, nil
		}
	}
	return q.snapshot(), false, nil
}

// Players возвращает копию текущего списка игроков.
func (q *MemoryQueue) Players(_ context.Context) ([]model.Player, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshot(), nil
}

// Len возвращает количество игроков в очереди.
func (q *MemoryQueue) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.players), nil
}

// Reset очищает очередь.
func (q *MemoryQueue) Reset(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.players = nil
	return nil
}

func (q *MemoryQueue) snapshot() []model.Player {
	out := make([]model.Player, len(q.players))
	copy(out, q.players)
	return out
}
