// Package service реализует бизнес-логику витрины заказов.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mmeshcher/khaman-storefront/internal/cart"
	"github.com/mmeshcher/khaman-storefront/internal/model"
	"github.com/mmeshcher/khaman-storefront/internal/repository"
	"github.com/mmeshcher/khaman-storefront/internal/rewards"
)

// ErrInvalidCredentials возвращается при неверной паре email/пароль.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, email string, passwordHash []byte) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, userID int64) (*model.User, error)
	CreateProfile(ctx context.Context, userID int64, displayName, email string) error
	GetProfile(ctx context.Context, userID int64) (*model.UserProfile, error)
	IncrementPoints(ctx context.Context, userID int64, delta int64) error
	ListMenuItems(ctx context.Context) ([]model.MenuItem, error)
	GetMenuItem(ctx context.Context, id int64) (*model.MenuItem, error)
	CreateOrder(ctx context.Context, userID *int64, items []model.CartLine, totalCents, pointsEarned int64, status model.OrderStatus) (int64, error)
	PatchOrderUser(ctx context.Context, orderID, userID int64) error
	ListOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
}

// Service содержит бизнес-логику витрины: учётные записи, меню, награды и
// намерения корзины, которые она проводит через движок.
type Service struct {
	repo     Repository
	engine   *cart.Engine
	sessions *cart.Store
}

// NewService создаёт сервис поверх указанного репозитория.
func NewService(repo Repository) *Service {
	return &Service{
		repo:     repo,
		engine:   cart.NewEngine(repo, repo),
		sessions: cart.NewStore(),
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Register создаёт учётную запись и профиль лояльности с нулевым балансом.
func (s *Service) Register(ctx context.Context, name, email, password string) (int64, error) {
	hashed := hashPassword(email, password)

	id, err := s.repo.CreateUser(ctx, email, hashed)
	if err != nil {
		return 0, err
	}

	if err := s.repo.CreateProfile(ctx, id, name, email); err != nil {
		return 0, err
	}

	return id, nil
}

// Authenticate проверяет email и пароль пользователя и возвращает его идентификатор.
func (s *Service) Authenticate(ctx context.Context, email, password string) (int64, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}

	hashed := hashPassword(email, password)
	if !hashEqual(hashed, u.PasswordHash) {
		return 0, ErrInvalidCredentials
	}

	return u.ID, nil
}

func hashPassword(email, password string) []byte {
	sum := sha256.Sum256([]byte(email + ":" + password))
	return sum[:]
}

func hashEqual(a, b []byte) bool {
	return hex.EncodeToString(a) == hex.EncodeToString(b)
}

// Profile возвращает профиль лояльности пользователя. Отсутствующий профиль
// восстанавливается профилем по умолчанию и пользователю не сообщается.
func (s *Service) Profile(ctx context.Context, userID int64) (*model.UserProfile, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repository.ErrProfileNotFound) {
		return nil, err
	}

	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateProfile(ctx, userID, "Guest", u.Email); err != nil {
		return nil, err
	}

	return s.repo.GetProfile(ctx, userID)
}

// Menu возвращает позиции меню, упорядоченные по идентификатору.
func (s *Service) Menu(ctx context.Context) ([]model.MenuItem, error) {
	return s.repo.ListMenuItems(ctx)
}

// Rewards возвращает каталог наград с изображениями привязанных позиций меню.
func (s *Service) Rewards(ctx context.Context) ([]model.RewardOffer, error) {
	items, err := s.repo.ListMenuItems(ctx)
	if err != nil {
		return nil, err
	}

	images := make(map[int64]string, len(items))
	for _, it := range items {
		images[it.ID] = it.Image
	}

	defs := rewards.Catalog()
	offers := make([]model.RewardOffer, 0, len(defs))
	for _, d := range defs {
		offers = append(offers, model.RewardOffer{
			ID:    d.ID,
			Name:  d.Name,
			Cost:  d.Cost,
			Image: images[d.LinkedMenuID],
		})
	}

	return offers, nil
}

// OrdersByUser возвращает историю заказов пользователя от новых к старым.
func (s *Service) OrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.repo.ListOrdersByUser(ctx, userID)
}

// CartView возвращает снимок корзины сессии. Для авторизованного пользователя
// зеркало баланса предварительно сверяется с профилем — это единственный
// механизм сверки зеркала с хранилищем.
func (s *Service) CartView(ctx context.Context, sessionID string, userID *int64) (cart.Snapshot, error) {
	sess := s.sessions.Get(sessionID)

	if userID != nil {
		p, err := s.Profile(ctx, *userID)
		if err != nil {
			return cart.Snapshot{}, err
		}
		s.engine.SetBalance(sess, p.RewardPoints)
	}

	return s.engine.View(sess), nil
}

// AddToCart добавляет позицию меню в корзину сессии.
func (s *Service) AddToCart(ctx context.Context, sessionID string, menuItemID int64) error {
	item, err := s.repo.GetMenuItem(ctx, menuItemID)
	if err != nil {
		return err
	}

	s.engine.AddItem(s.sessions.Get(sessionID), *item)
	return nil
}

// RemoveFromCart убирает одну единицу строки корзины и возвращает количество
// возвращённых баллов, если строка была наградой.
func (s *Service) RemoveFromCart(ctx context.Context, sessionID string, userID *int64, lineID string) (int64, error) {
	return s.engine.RemoveLine(ctx, s.sessions.Get(sessionID), userID, lineID)
}

// RedeemReward обменивает баллы пользователя на награду из каталога.
func (s *Service) RedeemReward(ctx context.Context, sessionID string, userID int64, rewardID string) error {
	reward, err := rewards.Find(rewardID)
	if err != nil {
		return err
	}

	var image string
	if item, err := s.repo.GetMenuItem(ctx, reward.LinkedMenuID); err == nil {
		image = item.Image
	}

	sess := s.sessions.Get(sessionID)

	p, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	s.engine.SetBalance(sess, p.RewardPoints)

	if _, err := s.engine.Redeem(ctx, sess, userID, reward, image); err != nil {
		return err
	}
	return nil
}

// Checkout оформляет заказ из корзины сессии.
func (s *Service) Checkout(ctx context.Context, sessionID string, userID *int64) (cart.CheckoutResult, error) {
	return s.engine.Checkout(ctx, s.sessions.Get(sessionID), userID)
}

// OnLogin вызывается после успешного входа или регистрации: сверяет зеркало
// баланса и привязывает отложенный гостевой заказ, если он есть. Возвращает
// количество начисленных за гостевой заказ баллов и признак привязки.
func (s *Service) OnLogin(ctx context.Context, sessionID string, userID int64) (int64, bool, error) {
	sess := s.sessions.Get(sessionID)

	p, err := s.Profile(ctx, userID)
	if err != nil {
		return 0, false, fmt.Errorf("fetch profile: %w", err)
	}
	s.engine.SetBalance(sess, p.RewardPoints)

	return s.engine.AttachGuestOrder(ctx, sess, userID)
}

// OnLogout очищает корзину и зеркало баланса сессии.
func (s *Service) OnLogout(sessionID string) {
	s.engine.Reset(s.sessions.Get(sessionID))
}
