package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/khaman-storefront/internal/cart"
	"github.com/mmeshcher/khaman-storefront/internal/middleware"
	"github.com/mmeshcher/khaman-storefront/internal/model"
	"github.com/mmeshcher/khaman-storefront/internal/repository"
	"github.com/mmeshcher/khaman-storefront/internal/rewards"
	"github.com/mmeshcher/khaman-storefront/internal/service"
)

type stubService struct {
	registerID     int64
	registerErr    error
	authID         int64
	authErr        error
	profile        *model.UserProfile
	profileErr     error
	menu           []model.MenuItem
	menuErr        error
	offers         []model.RewardOffer
	orders         []model.Order
	ordersErr      error
	snapshot       cart.Snapshot
	addErr         error
	removeRefund   int64
	removeErr      error
	redeemErr      error
	checkoutRes    cart.CheckoutResult
	checkoutErr    error
	loginPoints    int64
	loginAttached  bool
	loginErr       error
	logoutSessions []string
}

func (s *stubService) Register(_ context.Context, _, _, _ string) (int64, error) {
	return s.registerID, s.registerErr
}

func (s *stubService) Authenticate(_ context.Context, _, _ string) (int64, error) {
	return s.authID, s.authErr
}

func (s *stubService) Profile(_ context.Context, _ int64) (*model.UserProfile, error) {
	return s.profile, s.profileErr
}

func (s *stubService) Menu(_ context.Context) ([]model.MenuItem, error) {
	return s.menu, s.menuErr
}

func (s *stubService) Rewards(_ context.Context) ([]model.RewardOffer, error) {
	return s.offers, nil
}

func (s *stubService) OrdersByUser(_ context.Context, _ int64) ([]model.Order, error) {
	return s.orders, s.ordersErr
}

func (s *stubService) CartView(_ context.Context, _ string, _ *int64) (cart.Snapshot, error) {
	return s.snapshot, nil
}

func (s *stubService) AddToCart(_ context.Context, _ string, _ int64) error {
	return s.addErr
}

func (s *stubService) RemoveFromCart(_ context.Context, _ string, _ *int64, _ string) (int64, error) {
	return s.removeRefund, s.removeErr
}

func (s *stubService) RedeemReward(_ context.Context, _ string, _ int64, _ string) error {
	return s.redeemErr
}

func (s *stubService) Checkout(_ context.Context, _ string, _ *int64) (cart.CheckoutResult, error) {
	return s.checkoutRes, s.checkoutErr
}

func (s *stubService) OnLogin(_ context.Context, _ string, _ int64) (int64, bool, error) {
	return s.loginPoints, s.loginAttached, s.loginErr
}

func (s *stubService) OnLogout(sessionID string) {
	s.logoutSessions = append(s.logoutSessions, sessionID)
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()
	return NewHandler(svc, zap.NewNop(), middleware.NewAuthMiddleware("test-secret"))
}

// authCookie возвращает валидную cookie авторизации для указанного пользователя.
func authCookie(t *testing.T, h *Handler, userID int64) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	h.authMiddleware.SetAuthCookie(rec, userID)
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("cookie авторизации не установлена")
	}
	return cookies[0]
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svc        *stubService
		wantStatus int
	}{
		{
			name:       "успешная регистрация",
			body:       `{"name":"Priya","email":"priya@example.com","password":"secret1"}`,
			svc:        &stubService{registerID: 1},
			wantStatus: http.StatusOK,
		},
		{
			name:       "повторный email",
			body:       `{"name":"Priya","email":"priya@example.com","password":"secret1"}`,
			svc:        &stubService{registerErr: repository.ErrUserExists},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "некорректный email",
			body:       `{"name":"Priya","email":"not-an-email","password":"secret1"}`,
			svc:        &stubService{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "короткий пароль",
			body:       `{"name":"Priya","email":"priya@example.com","password":"123"}`,
			svc:        &stubService{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "битый JSON",
			body:       `{"name":`,
			svc:        &stubService{},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, tt.svc)

			req := httptest.NewRequest(http.MethodPost, "/api/user/register", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Register(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("статус ответа: ожидалось %d, получено %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestRegisterSetsAuthCookie(t *testing.T) {
	h := newTestHandler(t, &stubService{registerID: 5})

	body := `{"name":"Priya","email":"priya@example.com","password":"secret1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/user/register", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус ответа: ожидалось 200, получено %d", rec.Code)
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Error("после регистрации должна устанавливаться cookie авторизации")
	}
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svc        *stubService
		wantStatus int
	}{
		{
			name:       "успешный вход",
			body:       `{"email":"priya@example.com","password":"secret1"}`,
			svc:        &stubService{authID: 1},
			wantStatus: http.StatusOK,
		},
		{
			name:       "неверные учётные данные",
			body:       `{"email":"priya@example.com","password":"wrong"}`,
			svc:        &stubService{authErr: service.ErrInvalidCredentials},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "пустой пароль",
			body:       `{"email":"priya@example.com","password":""}`,
			svc:        &stubService{},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, tt.svc)

			req := httptest.NewRequest(http.MethodPost, "/api/user/login", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Login(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("статус ответа: ожидалось %d, получено %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestLoginReportsAttachedOrder(t *testing.T) {
	svc := &stubService{authID: 3, loginPoints: 69, loginAttached: true}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body := `{"email":"priya@example.com","password":"secret1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/user/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус ответа: ожидалось 200, получено %d", rec.Code)
	}

	var resp authResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("ошибка разбора ответа: %v", err)
	}
	if !resp.AttachedOrder {
		t.Error("ответ должен сообщать о привязанном гостевом заказе")
	}
	if resp.AttachedPoints != 69 {
		t.Errorf("начисленные баллы: ожидалось 69, получено %d", resp.AttachedPoints)
	}
}

func TestGetMenu(t *testing.T) {
	svc := &stubService{
		menu: []model.MenuItem{
			{ID: 1, Name: "Sev Khaman", PriceCents: 899, Image: "/img/sev-khaman.jpg"},
			{ID: 3, Name: "Dhokla", PriceCents: 699, Image: "/img/dhokla.jpg"},
		},
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/menu", nil)
	rec := httptest.NewRecorder()
	h.GetMenu(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус ответа: ожидалось 200, получено %d", rec.Code)
	}

	var items []menuItemResponse
	if err := json.NewDecoder(rec.Body).Decode(&items); err != nil {
		t.Fatalf("ошибка разбора ответа: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("количество позиций: ожидалось 2, получено %d", len(items))
	}
	if items[0].Price != 8.99 {
		t.Errorf("цена в рублях: ожидалось 8.99, получено %v", items[0].Price)
	}
}

func TestGetProfile(t *testing.T) {
	svc := &stubService{
		profile: &model.UserProfile{
			UserID:       1,
			DisplayName:  "Priya",
			Email:        "priya@example.com",
			RewardPoints: 300,
			CreatedAt:    time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
		},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
	req.AddCookie(authCookie(t, h, 1))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус ответа: ожидалось 200, получено %d", rec.Code)
	}

	var resp profileResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("ошибка разбора ответа: %v", err)
	}
	if resp.RewardPoints != 300 {
		t.Errorf("баланс баллов: ожидалось 300, получено %d", resp.RewardPoints)
	}
}

func TestGetProfileUnauthorized(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("статус ответа: ожидалось 401, получено %d", rec.Code)
	}
}

func TestGetOrdersEmpty(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/user/orders", nil)
	req.AddCookie(authCookie(t, h, 1))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("пустая история: ожидалось 204, получено %d", rec.Code)
	}
}

func TestGetCart(t *testing.T) {
	svc := &stubService{
		snapshot: cart.Snapshot{
			Lines: []model.CartLine{
				{ID: "3", Name: "Dhokla", PriceCents: 699, Quantity: 2},
			},
			TotalCents:   1398,
			PointsToEarn: 139,
			Balance:      50,
		},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/cart/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус ответа: ожидалось 200, получено %d", rec.Code)
	}

	var resp cartResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("ошибка разбора ответа: %v", err)
	}
	if resp.Total != 13.98 {
		t.Errorf("итог корзины: ожидалось 13.98, получено %v", resp.Total)
	}
	if resp.PointsToEarn != 139 {
		t.Errorf("баллы за заказ: ожидалось 139, получено %d", resp.PointsToEarn)
	}
}

func TestAddCartItem(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svc        *stubService
		wantStatus int
	}{
		{
			name:       "успешное добавление",
			body:       `{"menuItemId":3}`,
			svc:        &stubService{},
			wantStatus: http.StatusOK,
		},
		{
			name:       "неизвестная позиция",
			body:       `{"menuItemId":99}`,
			svc:        &stubService{addErr: repository.ErrMenuItemNotFound},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "нулевой идентификатор",
			body:       `{"menuItemId":0}`,
			svc:        &stubService{},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, tt.svc)
			router := h.SetupRouter()

			req := httptest.NewRequest(http.MethodPost, "/api/cart/items", bytes.NewReader([]byte(tt.body)))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("статус ответа: ожидалось %d, получено %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestRemoveCartItem(t *testing.T) {
	svc := &stubService{removeRefund: 300}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodDelete, "/api/cart/items/reward_chutney_abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус ответа: ожидалось 200, получено %d", rec.Code)
	}

	var resp removeLineResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("ошибка разбора ответа: %v", err)
	}
	if resp.RefundedPoints != 300 {
		t.Errorf("возвращённые баллы: ожидалось 300, получено %d", resp.RefundedPoints)
	}
}

func TestRemoveCartItemNotFound(t *testing.T) {
	svc := &stubService{removeErr: cart.ErrLineNotFound}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodDelete, "/api/cart/items/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("статус ответа: ожидалось 404, получено %d", rec.Code)
	}
}

func TestRedeemReward(t *testing.T) {
	tests := []struct {
		name       string
		svc        *stubService
		authorized bool
		wantStatus int
	}{
		{
			name:       "успешный обмен",
			svc:        &stubService{},
			authorized: true,
			wantStatus: http.StatusOK,
		},
		{
			name:       "гость не может обменивать баллы",
			svc:        &stubService{},
			authorized: false,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "недостаточно баллов",
			svc:        &stubService{redeemErr: cart.ErrInsufficientPoints},
			authorized: true,
			wantStatus: http.StatusPaymentRequired,
		},
		{
			name:       "неизвестная награда",
			svc:        &stubService{redeemErr: rewards.ErrRewardNotFound},
			authorized: true,
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, tt.svc)
			router := h.SetupRouter()

			body := `{"rewardId":"chutney"}`
			req := httptest.NewRequest(http.MethodPost, "/api/cart/rewards", strings.NewReader(body))
			if tt.authorized {
				req.AddCookie(authCookie(t, h, 1))
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("статус ответа: ожидалось %d, получено %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestCheckout(t *testing.T) {
	tests := []struct {
		name       string
		svc        *stubService
		wantStatus int
	}{
		{
			name: "гостевое оформление",
			svc: &stubService{
				checkoutRes: cart.CheckoutResult{OrderID: 1, TotalCents: 1398, PointsEarned: 139, Guest: true},
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "пустая корзина",
			svc:        &stubService{checkoutErr: cart.ErrEmptyCart},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, tt.svc)
			router := h.SetupRouter()

			req := httptest.NewRequest(http.MethodPost, "/api/cart/checkout", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("статус ответа: ожидалось %d, получено %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestCheckoutGuestReportsWaitingPoints(t *testing.T) {
	svc := &stubService{
		checkoutRes: cart.CheckoutResult{OrderID: 7, TotalCents: 1398, PointsEarned: 139, Guest: true},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/cart/checkout", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp checkoutResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("ошибка разбора ответа: %v", err)
	}
	if !resp.Guest {
		t.Error("гостевое оформление должно помечаться в ответе")
	}
	if resp.PointsWaiting != 139 {
		t.Errorf("отложенные баллы: ожидалось 139, получено %d", resp.PointsWaiting)
	}
}

func TestLogout(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/user/logout", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус ответа: ожидалось 200, получено %d", rec.Code)
	}
	if len(svc.logoutSessions) != 1 {
		t.Errorf("корзина сессии должна очищаться при выходе, вызовов: %d", len(svc.logoutSessions))
	}
}

func TestRouterNotFound(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("статус ответа: ожидалось 404, получено %d", rec.Code)
	}
}
