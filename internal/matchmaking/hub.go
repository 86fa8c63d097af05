package matchmaking

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mmeshcher/coinvault/internal/model"
	"github.com/mmeshcher/coinvault/internal/validation"
)

const (
	sendBuffer = 16
	writeWait  = 10 * time.Second
)

type joinRequest struct {
	Name   string `json:"name"`
	Wallet string `json:"wallet"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Hub обслуживает websocket-подключения игроков и рассылает им события очереди.
type Hub struct {
	queue    Queue
	lottery  *Lottery
	bus      Bus
	logger   *zap.Logger
	upgrader websocket.Upgrader

	ctx     context.Context
	mu      sync.RWMutex
	closed  bool
	clients map[string]*client
}

// NewHub создаёт хаб поверх очереди, розыгрыша и шины событий.
func NewHub(queue Queue, lottery *Lottery, bus Bus, logger *zap.Logger) *Hub {
	return &Hub{
		queue:   queue,
		lottery: lottery,
		bus:     bus,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ctx:     context.Background(),
		clients: make(map[string]*client),
	}
}

// Start подписывает хаб на шину событий. ctx ограничивает время жизни подписки и запущенных розыгрышей.
func (h *Hub) Start(ctx context.Context) error {
	h.ctx = ctx
	return h.bus.Subscribe(ctx, h.broadcast)
}

// Shutdown закрывает все подключения и перестаёт принимать новые.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, c := range h.clients {
		c.close()
		delete(h.clients, id)
	}
}

// ServeHTTP переводит соединение на websocket и обрабатывает сообщения клиента до его отключения.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id := uuid.NewString()
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[id] = c
	h.mu.Unlock()

	go h.writeLoop(c)

	players, err := h.queue.Players(h.ctx)
	if err != nil {
		h.logger.Error("read queue", zap.Error(err))
		players = []model.Player{}
	}
	h.sendTo(id, c, EventUpdatePlayers, players)
	h.readLoop(id, c)
}

func (h *Hub) readLoop(id string, c *client) {
	defer h.disconnect(id, c)

	for {
		var ev Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			return
		}

		switch ev.Name {
		case EventJoinQueue:
			h.join(id, c, ev.Data)
		default:
			h.sendTo(id, c, EventError, "unknown event "+ev.Name)
		}
	}
}

func (h *Hub) join(id string, c *client, data json.RawMessage) {
	var req joinRequest
	if err := json.Unmarshal(data, &req); err != nil || !validation.IsValidWallet(req.Wallet) {
		h.sendTo(id, c, EventError, "invalid join request")
		return
	}

	if h.isClosed() {
		return
	}

	players, err := h.queue.Join(h.ctx, model.Player{
		ID:     id,
		Name:   req.Name,
		Wallet: validation.NormalizeWallet(req.Wallet),
	})
	if err != nil {
		h.logger.Error("join queue", zap.Error(err), zap.String("id", id))
		h.sendTo(id, c, EventError, "queue unavailable")
		return
	}
	h.logger.Info("player joined queue", zap.String("id", id), zap.String("name", req.Name), zap.Int("queue", len(players)))

	h.publish(h.ctx, EventUpdatePlayers, players)
	h.lottery.TryStart(h.ctx)
}

func (h *Hub) disconnect(id string, c *client) {
	h.mu.Lock()
	if _, ok := h.clients[id]; ok {
		delete(h.clients, id)
		c.close()
	}
	h.mu.Unlock()

	// Игрок убирается из общей очереди и при остановке сервера, когда h.ctx уже отменён.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(h.ctx), writeWait)
	defer cancel()

	players, removed, err := h.queue.Remove(ctx, id)
	if err != nil {
		h.logger.Error("leave queue", zap.Error(err), zap.String("id", id))
		return
	}
	if removed {
		h.publish(ctx, EventUpdatePlayers, players)
	}
}

func (h *Hub) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (h *Hub) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping message for slow client", zap.String("id", id), zap.String("event", ev.Name))
		}
	}
}

func (h *Hub) sendTo(id string, c *client, name string, payload any) {
	ev, err := NewEvent(name, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.clients[id] != c {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) publish(ctx context.Context, name string, payload any) {
	ev, err := NewEvent(name, payload)
	if err != nil {
		h.logger.Error("encode event", zap.Error(err), zap.String("event", name))
		return
	}
	if err := h.bus.Publish(ctx, ev); err != nil {
		h.logger.Error("publish event", zap.Error(err), zap.String("event", name))
	}
}
