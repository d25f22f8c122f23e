package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCartSession_IssuesCookieForNewVisitor(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid, ok := GetSessionIDFromContext(r.Context())
		if !ok || sid == "" {
			t.Fatalf("session id not in context")
		}
		seen = sid
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/cart", nil)

	CartSession(next).ServeHTTP(w, r)

	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no session cookie issued")
	}
	if cookies[0].Name != "cart_session" || cookies[0].Value != seen {
		t.Fatalf("cookie %s=%s, want cart_session=%s", cookies[0].Name, cookies[0].Value, seen)
	}
}

func TestCartSession_ReusesExistingCookie(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid, _ := GetSessionIDFromContext(r.Context())
		if sid != "existing-session" {
			t.Fatalf("session id = %q, want existing-session", sid)
		}
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	r.AddCookie(&http.Cookie{Name: "cart_session", Value: "existing-session"})

	CartSession(next).ServeHTTP(w, r)

	if len(w.Result().Cookies()) != 0 {
		t.Fatalf("no new cookie expected for returning visitor")
	}
}
