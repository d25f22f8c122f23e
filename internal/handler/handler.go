// Package handler содержит HTTP-обработчики API витрины заказов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mmeshcher/khaman-storefront/internal/cart"
	"github.com/mmeshcher/khaman-storefront/internal/middleware"
	"github.com/mmeshcher/khaman-storefront/internal/model"
	"github.com/mmeshcher/khaman-storefront/internal/repository"
	"github.com/mmeshcher/khaman-storefront/internal/rewards"
	"github.com/mmeshcher/khaman-storefront/internal/service"
	"github.com/mmeshcher/khaman-storefront/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Register(ctx context.Context, name, email, password string) (int64, error)
	Authenticate(ctx context.Context, email, password string) (int64, error)
	Profile(ctx context.Context, userID int64) (*model.UserProfile, error)
	Menu(ctx context.Context) ([]model.MenuItem, error)
	Rewards(ctx context.Context) ([]model.RewardOffer, error)
	OrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	CartView(ctx context.Context, sessionID string, userID *int64) (cart.Snapshot, error)
	AddToCart(ctx context.Context, sessionID string, menuItemID int64) error
	RemoveFromCart(ctx context.Context, sessionID string, userID *int64, lineID string) (int64, error)
	RedeemReward(ctx context.Context, sessionID string, userID int64, rewardID string) error
	Checkout(ctx context.Context, sessionID string, userID *int64) (cart.CheckoutResult, error)
	OnLogin(ctx context.Context, sessionID string, userID int64) (int64, bool, error)
	OnLogout(sessionID string)
}

// Handler реализует HTTP-обработчики API витрины заказов.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	validate       *validatorv10.Validate
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		validate:       validation.New(),
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// userIDPtr возвращает идентификатор пользователя из контекста или nil для гостя.
func userIDPtr(ctx context.Context) *int64 {
	if id, ok := middleware.GetUserIDFromContext(ctx); ok {
		return &id
	}
	return nil
}

func cents(v int64) float64 {
	return float64(v) / 100
}

type registerRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type authResponse struct {
	UserID         int64 `json:"user_id"`
	AttachedOrder  bool  `json:"attached_order"`
	AttachedPoints int64 `json:"attached_points"`
}

// Register обрабатывает регистрацию нового пользователя. Отложенный гостевой
// заказ текущей сессии привязывается к созданной учётной записи.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := validation.BindJSON(w, r, &req, h.validate); err != nil {
		return
	}

	userID, err := h.service.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	h.finishSignIn(w, r, userID)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login выполняет аутентификацию пользователя и установку cookie. Отложенный
// гостевой заказ текущей сессии привязывается к учётной записи.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := validation.BindJSON(w, r, &req, h.validate); err != nil {
		return
	}

	userID, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	h.finishSignIn(w, r, userID)
}

// finishSignIn завершает вход: привязывает отложенный гостевой заказ сессии.
// Неудачная привязка не отменяет сам вход — она отражается в ответе нулями.
func (h *Handler) finishSignIn(w http.ResponseWriter, r *http.Request, userID int64) {
	resp := authResponse{UserID: userID}

	if sessionID, ok := middleware.GetSessionIDFromContext(r.Context()); ok {
		points, attached, err := h.service.OnLogin(r.Context(), sessionID, userID)
		if err != nil {
			h.logger.Error("attach guest order error", zap.Error(err), zap.Int64("userID", userID))
		} else {
			resp.AttachedOrder = attached
			resp.AttachedPoints = points
		}
	}

	h.writeJSON(w, resp)
}

// Logout сбрасывает cookie авторизации и очищает корзину сессии.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID, ok := middleware.GetSessionIDFromContext(r.Context()); ok {
		h.service.OnLogout(sessionID)
	}

	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusOK)
}

type menuItemResponse struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
}

// GetMenu возвращает позиции меню, упорядоченные по идентификатору.
func (h *Handler) GetMenu(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Menu(r.Context())
	if err != nil {
		h.logger.Error("get menu error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]menuItemResponse, 0, len(items))
	for _, it := range items {
		resp = append(resp, menuItemResponse{
			ID:    it.ID,
			Name:  it.Name,
			Price: cents(it.PriceCents),
			Image: it.Image,
		})
	}

	h.writeJSON(w, resp)
}

type rewardResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Cost  int64  `json:"cost"`
	Image string `json:"image,omitempty"`
}

// GetRewards возвращает каталог наград программы лояльности.
func (h *Handler) GetRewards(w http.ResponseWriter, r *http.Request) {
	offers, err := h.service.Rewards(r.Context())
	if err != nil {
		h.logger.Error("get rewards error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]rewardResponse, 0, len(offers))
	for _, o := range offers {
		resp = append(resp, rewardResponse{
			ID:    o.ID,
			Name:  o.Name,
			Cost:  o.Cost,
			Image: o.Image,
		})
	}

	h.writeJSON(w, resp)
}

type profileResponse struct {
	DisplayName  string `json:"display_name"`
	Email        string `json:"email"`
	RewardPoints int64  `json:"reward_points"`
	CreatedAt    string `json:"created_at"`
}

// GetProfile возвращает профиль лояльности текущего пользователя.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	p, err := h.service.Profile(r.Context(), userID)
	if err != nil {
		h.logger.Error("get profile error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, profileResponse{
		DisplayName:  p.DisplayName,
		Email:        p.Email,
		RewardPoints: p.RewardPoints,
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
	})
}

type orderLineResponse struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	Quantity   int     `json:"quantity"`
	IsReward   bool    `json:"is_reward,omitempty"`
	PointsCost int64   `json:"points_cost,omitempty"`
}

type orderResponse struct {
	ID           int64               `json:"id"`
	Items        []orderLineResponse `json:"items"`
	Total        float64             `json:"total"`
	PointsEarned int64               `json:"points_earned"`
	Status       string              `json:"status"`
	CreatedAt    string              `json:"created_at"`
}

// GetOrders возвращает историю заказов текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orders, err := h.service.OrdersByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get orders error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		lines := make([]orderLineResponse, 0, len(o.Items))
		for _, l := range o.Items {
			lines = append(lines, orderLineResponse{
				ID:         l.ID,
				Name:       l.Name,
				Price:      cents(l.PriceCents),
				Quantity:   l.Quantity,
				IsReward:   l.IsReward,
				PointsCost: l.PointsCost,
			})
		}
		resp = append(resp, orderResponse{
			ID:           o.ID,
			Items:        lines,
			Total:        cents(o.TotalCents),
			PointsEarned: o.PointsEarned,
			Status:       string(o.Status),
			CreatedAt:    o.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, resp)
}

type cartLineResponse struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	Image      string  `json:"image"`
	Quantity   int     `json:"quantity"`
	IsReward   bool    `json:"is_reward,omitempty"`
	PointsCost int64   `json:"points_cost,omitempty"`
}

type cartResponse struct {
	Items        []cartLineResponse `json:"items"`
	Total        float64            `json:"total"`
	PointsToEarn int64              `json:"points_to_earn"`
	RewardPoints int64              `json:"reward_points"`
}

// GetCart возвращает снимок корзины: строки, итог, баллы за заказ и баланс.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	snap, err := h.service.CartView(r.Context(), sessionID, userIDPtr(r.Context()))
	if err != nil {
		h.logger.Error("get cart error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	lines := make([]cartLineResponse, 0, len(snap.Lines))
	for _, l := range snap.Lines {
		lines = append(lines, cartLineResponse{
			ID:         l.ID,
			Name:       l.Name,
			Price:      cents(l.PriceCents),
			Image:      l.Image,
			Quantity:   l.Quantity,
			IsReward:   l.IsReward,
			PointsCost: l.PointsCost,
		})
	}

	h.writeJSON(w, cartResponse{
		Items:        lines,
		Total:        cents(snap.TotalCents),
		PointsToEarn: snap.PointsToEarn,
		RewardPoints: snap.Balance,
	})
}

type addItemRequest struct {
	MenuItemID int64 `json:"menuItemId" validate:"required,gt=0"`
}

// AddCartItem добавляет позицию меню в корзину.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req addItemRequest
	if err := validation.BindJSON(w, r, &req, h.validate); err != nil {
		return
	}

	if err := h.service.AddToCart(r.Context(), sessionID, req.MenuItemID); err != nil {
		if errors.Is(err, repository.ErrMenuItemNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("add cart item error", zap.Error(err), zap.Int64("menuItemID", req.MenuItemID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type removeLineResponse struct {
	RefundedPoints int64 `json:"refunded_points"`
}

// RemoveCartItem убирает одну единицу строки корзины.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request, lineID string) {
	sessionID, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	refunded, err := h.service.RemoveFromCart(r.Context(), sessionID, userIDPtr(r.Context()), lineID)
	if err != nil {
		if errors.Is(err, cart.ErrLineNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("remove cart item error", zap.Error(err), zap.String("lineID", lineID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, removeLineResponse{RefundedPoints: refunded})
}

type redeemRequest struct {
	RewardID string `json:"rewardId" validate:"required"`
}

// RedeemReward обменивает баллы текущего пользователя на награду.
// Гостям обмен недоступен: у них нет баланса для списания.
func (h *Handler) RedeemReward(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	sessionID, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req redeemRequest
	if err := validation.BindJSON(w, r, &req, h.validate); err != nil {
		return
	}

	if err := h.service.RedeemReward(r.Context(), sessionID, userID, req.RewardID); err != nil {
		switch {
		case errors.Is(err, rewards.ErrRewardNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, cart.ErrInsufficientPoints):
			http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
		default:
			h.logger.Error("redeem reward error", zap.Error(err), zap.String("rewardID", req.RewardID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

type checkoutResponse struct {
	OrderID       int64   `json:"order_id"`
	Total         float64 `json:"total"`
	PointsEarned  int64   `json:"points_earned"`
	Guest         bool    `json:"guest"`
	PointsWaiting int64   `json:"points_waiting,omitempty"`
}

// Checkout оформляет заказ из корзины. Гостевой заказ получает приглашение
// войти: заработанные баллы ждут привязки к учётной записи.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	res, err := h.service.Checkout(r.Context(), sessionID, userIDPtr(r.Context()))
	if err != nil {
		if errors.Is(err, cart.ErrEmptyCart) {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		h.logger.Error("checkout error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := checkoutResponse{
		OrderID:      res.OrderID,
		Total:        cents(res.TotalCents),
		PointsEarned: res.PointsEarned,
		Guest:        res.Guest,
	}
	if res.Guest {
		resp.PointsWaiting = res.PointsEarned
	}

	h.writeJSON(w, resp)
}
