// Package cart реализует машину состояний корзины и оформления заказа.
//
// Всё состояние корзины живёт в памяти в объекте Session; движок Engine —
// единственная точка входа для каждого намерения пользователя (добавить,
// убрать, обменять баллы, оформить). Удалённые записи выполняются первыми,
// локальное зеркало баллов меняется только после их успеха, поэтому
// расхождение зеркала с хранилищем невозможно.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/mmeshcher/khaman-storefront/internal/model"
)

// ErrInsufficientPoints возвращается при попытке обмена с недостаточным балансом баллов.
var (
	ErrInsufficientPoints = errors.New("insufficient reward points")
	// ErrEmptyCart возвращается при оформлении пустой корзины.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrLineNotFound возвращается по неизвестному идентификатору строки корзины.
	ErrLineNotFound = errors.New("cart line not found")
)

// ProfileStore — контракт хранилища профилей лояльности.
// Дельта может быть отрицательной (списание при обмене награды).
type ProfileStore interface {
	IncrementPoints(ctx context.Context, userID int64, delta int64) error
}

// OrderLedger — контракт журнала заказов.
type OrderLedger interface {
	CreateOrder(ctx context.Context, userID *int64, items []model.CartLine, totalCents, pointsEarned int64, status model.OrderStatus) (int64, error)
	PatchOrderUser(ctx context.Context, orderID, userID int64) error
}

// CheckoutResult описывает итог оформления заказа.
type CheckoutResult struct {
	OrderID      int64
	TotalCents   int64
	PointsEarned int64
	Guest        bool
}

// Snapshot — снимок корзины для слоя представления: строки, оплачиваемый итог,
// баллы за заказ и текущее зеркало баланса.
type Snapshot struct {
	Lines        []model.CartLine
	TotalCents   int64
	PointsToEarn int64
	Balance      int64
}

// Engine выполняет намерения пользователя над сессией корзины.
type Engine struct {
	profiles ProfileStore
	ledger   OrderLedger
}

// NewEngine создаёт движок корзины с указанными адаптерами хранилищ.
func NewEngine(profiles ProfileStore, ledger OrderLedger) *Engine {
	return &Engine{
		profiles: profiles,
		ledger:   ledger,
	}
}

// AddItem добавляет позицию меню в корзину: существующая строка той же позиции
// увеличивает количество, иначе появляется новая строка. Строки наград никогда
// не объединяются с обычными. Операция всегда успешна.
func (e *Engine) AddItem(s *Session, item model.MenuItem) model.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strconv.FormatInt(item.ID, 10)
	for i := range s.lines {
		if !s.lines[i].IsReward && s.lines[i].ID == id {
			s.lines[i].Quantity++
			return s.lines[i]
		}
	}

	line := model.CartLine{
		ID:         id,
		Name:       item.Name,
		PriceCents: item.PriceCents,
		Image:      item.Image,
		Quantity:   1,
	}
	s.lines = append(s.lines, line)
	return line
}

// Redeem обменивает баллы на награду. При нехватке баллов возвращает
// ErrInsufficientPoints без каких-либо изменений. Сначала списываются баллы в
// хранилище, затем обновляется зеркало и в корзину добавляется строка награды
// с нулевой ценой и уникальным идентификатором.
func (e *Engine) Redeem(ctx context.Context, s *Session, userID int64, reward model.RewardDefinition, image string) (model.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.balance < reward.Cost {
		return model.CartLine{}, ErrInsufficientPoints
	}

	if err := e.profiles.IncrementPoints(ctx, userID, -reward.Cost); err != nil {
		return model.CartLine{}, fmt.Errorf("debit points: %w", err)
	}
	s.balance -= reward.Cost

	line := model.CartLine{
		ID:         "reward_" + reward.ID + "_" + uuid.NewString(),
		Name:       reward.Name,
		PriceCents: 0,
		Image:      image,
		Quantity:   1,
		IsReward:   true,
		PointsCost: reward.Cost,
	}
	s.lines = append(s.lines, line)

	return line, nil
}

// RemoveLine убирает одну единицу строки: количество больше единицы уменьшается,
// последняя единица удаляет строку. Удаление единицы награды возвращает её
// стоимость в баллах — в хранилище (для авторизованных) и в зеркало.
// Возвращает количество возвращённых баллов.
func (e *Engine) RemoveLine(ctx context.Context, s *Session, userID *int64, lineID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.lines {
		if s.lines[i].ID == lineID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return 0, ErrLineNotFound
	}

	var refund int64
	if s.lines[idx].IsReward {
		refund = s.lines[idx].PointsCost
		if userID != nil {
			if err := e.profiles.IncrementPoints(ctx, *userID, refund); err != nil {
				return 0, fmt.Errorf("refund points: %w", err)
			}
		}
		s.balance += refund
	}

	if s.lines[idx].Quantity > 1 {
		s.lines[idx].Quantity--
	} else {
		s.lines = append(s.lines[:idx], s.lines[idx+1:]...)
	}

	return refund, nil
}

// Checkout оформляет заказ из текущей корзины. Итог считается только по
// оплачиваемым строкам (награды бесплатны), начисление — 10 баллов за каждую
// целую денежную единицу итога, с усечением вниз.
//
// Авторизованный путь создаёт заказ, начисляет баллы и очищает корзину.
// Гостевой путь создаёт заказ без владельца, запоминает его для последующей
// привязки и баллы не начисляет — начислять некому.
func (e *Engine) Checkout(ctx context.Context, s *Session, userID *int64) (CheckoutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.lines) == 0 {
		return CheckoutResult{}, ErrEmptyCart
	}

	total := totalCents(s.lines)
	points := total / 10

	snapshot := make([]model.CartLine, len(s.lines))
	copy(snapshot, s.lines)

	if userID == nil {
		orderID, err := e.ledger.CreateOrder(ctx, nil, snapshot, total, points, model.OrderStatusGuestPending)
		if err != nil {
			return CheckoutResult{}, fmt.Errorf("create guest order: %w", err)
		}

		s.pending = &PendingGuestOrder{OrderID: orderID, PointsEarned: points}
		s.lines = nil

		return CheckoutResult{OrderID: orderID, TotalCents: total, PointsEarned: points, Guest: true}, nil
	}

	orderID, err := e.ledger.CreateOrder(ctx, userID, snapshot, total, points, model.OrderStatusPending)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("create order: %w", err)
	}

	if points > 0 {
		if err := e.profiles.IncrementPoints(ctx, *userID, points); err != nil {
			return CheckoutResult{}, fmt.Errorf("credit points: %w", err)
		}
		s.balance += points
	}
	s.lines = nil

	return CheckoutResult{OrderID: orderID, TotalCents: total, PointsEarned: points}, nil
}

// AttachGuestOrder привязывает отложенный гостевой заказ к учётной записи и
// начисляет заработанные им баллы. Повторный вызов без отложенного заказа —
// no-op. Отметка снимается после привязки и до начисления, поэтому двойное
// начисление за один заказ невозможно.
func (e *Engine) AttachGuestOrder(ctx context.Context, s *Session, userID int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return 0, false, nil
	}

	p := *s.pending
	if err := e.ledger.PatchOrderUser(ctx, p.OrderID, userID); err != nil {
		return 0, false, fmt.Errorf("attach guest order: %w", err)
	}
	s.pending = nil

	if p.PointsEarned > 0 {
		if err := e.profiles.IncrementPoints(ctx, userID, p.PointsEarned); err != nil {
			return 0, true, fmt.Errorf("credit guest points: %w", err)
		}
		s.balance += p.PointsEarned
	}

	return p.PointsEarned, true, nil
}

// View возвращает снимок корзины.
func (e *Engine) View(s *Session) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]model.CartLine, len(s.lines))
	copy(lines, s.lines)

	total := totalCents(lines)

	return Snapshot{
		Lines:        lines,
		TotalCents:   total,
		PointsToEarn: total / 10,
		Balance:      s.balance,
	}
}

// SetBalance выставляет зеркало баланса по свежепрочитанному профилю.
func (e *Engine) SetBalance(s *Session, points int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = points
}

// Reset очищает корзину и зеркало баланса при выходе пользователя.
// Отложенный гостевой заказ сохраняется: его ещё можно привязать при
// следующем входе в рамках той же сессии.
func (e *Engine) Reset(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = nil
	s.balance = 0
}

func totalCents(lines []model.CartLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.PriceCents * int64(l.Quantity)
	}
	return total
}
