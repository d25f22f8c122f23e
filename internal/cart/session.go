package cart

import (
	"sync"

	"github.com/mmeshcher/khaman-storefront/internal/model"
)

// PendingGuestOrder — гостевой заказ, ожидающий привязки к учётной записи.
type PendingGuestOrder struct {
	OrderID      int64
	PointsEarned int64
}

// Session хранит состояние корзины одного посетителя: строки, зеркало баланса
// баллов и отложенный гостевой заказ. Все мутации идут через Engine под
// мьютексом сессии — намерения одного посетителя выполняются последовательно.
type Session struct {
	mu sync.Mutex

	id      string
	lines   []model.CartLine
	balance int64
	pending *PendingGuestOrder
}

// ID возвращает идентификатор сессии.
func (s *Session) ID() string {
	return s.id
}

// Store выдаёт сессии корзин по идентификатору из cookie.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore создаёт пустое хранилище сессий.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

// Get возвращает сессию по идентификатору, создавая её при первом обращении.
func (st *Store) Get(id string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		s = &Session{id: id}
		st.sessions[id] = s
	}
	return s
}
