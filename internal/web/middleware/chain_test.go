package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func tag(name string, order *[]string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*order = append(*order, name)
			next.ServeHTTP(w, r)
		})
	}
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func TestChainOrder(t *testing.T) {
	var order []string
	chain := NewChain(tag("first", &order)).Use(tag("second", &order), tag("third", &order))

	chain.Then(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"first", "second", "third", "handler"}, order)
}

func TestEmptyChain(t *testing.T) {
	w := httptest.NewRecorder()
	NewChain().Then(http.HandlerFunc(okHandler)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "ok", w.Body.String())
}

func TestConditional(t *testing.T) {
	var order []string
	mw := Conditional(Not(Or(PathPrefix("/media/"), IsWebSocket)), tag("applied", &order))
	h := mw(http.HandlerFunc(okHandler))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/cars", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/media/cars/1.png", nil))

	ws := httptest.NewRequest(http.MethodGet, "/admin/feed", nil)
	ws.Header.Set("Upgrade", "websocket")
	ws.Header.Set("Connection", "keep-alive, Upgrade")
	h.ServeHTTP(httptest.NewRecorder(), ws)

	assert.Equal(t, []string{"applied"}, order)
}
