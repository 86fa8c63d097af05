package matchmaking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/coinvault/internal/model"
)

func createTestPlayers() []model.Player {
	return []model.Player{
		{ID: "p1", Name: "alice", Wallet: "0x00000000000000000000000000000000000000a1"},
		{ID: "p2", Name: "bob", Wallet: "0x00000000000000000000000000000000000000b2"},
		{ID: "p3", Name: "carol", Wallet: "0x00000000000000000000000000000000000000c3"},
	}
}

// queueLen и joinAll упрощают тесты, где ошибка очереди означает провал теста.
func queueLen(t *testing.T, q Queue) int {
	t.Helper()
	n, err := q.Len(context.Background())
	require.NoError(t, err)
	return n
}

func joinAll(t *testing.T, q Queue, players ...model.Player) {
	t.Helper()
	for _, p := range players {
		_, err := q.Join(context.Background(), p)
		require.NoError(t, err)
	}
}

// testQueueContract проверяет поведение, общее для всех реализаций Queue.
func testQueueContract(t *testing.T, newQueue func() Queue) {
	ctx := context.Background()

	t.Run("join keeps order and ignores repeated id", func(t *testing.T) {
		q := newQueue()
		players := createTestPlayers()

		snap, err := q.Join(ctx, players[0])
		require.NoError(t, err)
		assert.Equal(t, []model.Player{players[0]}, snap)

		snap, err = q.Join(ctx, players[1])
		require.NoError(t, err)
		assert.Equal(t, players[:2], snap)

		snap, err = q.Join(ctx, players[0])
		require.NoError(t, err)
		assert.Len(t, snap, 2)
		assert.Equal(t, 2, queueLen(t, q))
	})

	t.Run("remove", func(t *testing.T) {
		q := newQueue()
		players := createTestPlayers()
		joinAll(t, q, players...)

		snap, removed, err := q.Remove(ctx, "p2")
		require.NoError(t, err)
		assert.True(t, removed)
		assert.Equal(t, []model.Player{players[0], players[2]}, snap)

		_, removed, err = q.Remove(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, removed)
		assert.Equal(t, 2, queueLen(t, q))
	})

	t.Run("reset", func(t *testing.T) {
		q := newQueue()
		joinAll(t, q, createTestPlayers()...)

		require.NoError(t, q.Reset(ctx))
		assert.Equal(t, 0, queueLen(t, q))

		players, err := q.Players(ctx)
		require.NoError(t, err)
		assert.Empty(t, players)
	})
}

func TestMemoryQueue(t *testing.T) {
	testQueueContract(t, func() Queue { return NewMemoryQueue() })
}

func TestMemoryQueue_SnapshotIsCopy(t *testing.T) {
	q := NewMemoryQueue()
	joinAll(t, q, createTestPlayers()[0])

	snap, err := q.Players(context.Background())
	require.NoError(t, err)
	snap[0].Name = "mallory"

	again, err := q.Players(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", again[0].Name)
}
