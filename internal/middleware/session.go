package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const sessionIDKey contextKey = "cartSessionID"

const (
	cartCookieName = "cart_session"
	cartCookieTTL  = 30 * 24 * time.Hour
)

// CartSession выдаёт каждому посетителю идентификатор сессии корзины в cookie
// и кладёт его в контекст запроса. Гости и авторизованные пользователи
// обслуживаются одинаково: корзина привязана к сессии, а не к учётной записи.
func CartSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sid string
		if cookie, err := r.Cookie(cartCookieName); err == nil && cookie.Value != "" {
			sid = cookie.Value
		} else {
			sid = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     cartCookieName,
				Value:    sid,
				Path:     "/",
				Expires:  time.Now().Add(cartCookieTTL),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		ctx := context.WithValue(r.Context(), sessionIDKey, sid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSessionIDFromContext извлекает идентификатор сессии корзины из контекста запроса.
func GetSessionIDFromContext(ctx context.Context) (string, bool) {
	sid, ok := ctx.Value(sessionIDKey).(string)
	return sid, ok
}
