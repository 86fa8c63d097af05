package service

import (
	"sync"
	"time"
)

// NonceSource выдаёт строго возрастающие nonce на основе текущего времени в миллисекундах.
// Два запроса в одну миллисекунду получают разные значения.
type NonceSource struct {
	mu   sync.Mutex
	last uint64
	now  func() time.Time
}

// NewNonceSource создаёт источник nonce на системных часах.
func NewNonceSource() *NonceSource {
	return &NonceSource{now: time.Now}
}

// Next возвращает следующий nonce.
func (n *NonceSource) Next() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	v := uint64(n.now().UnixMilli())
	if v <= n.last {
		v = n.last + 1
	}
	n.last = v
	return v
}
