package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMiddlewareExtractsHeader(t *testing.T) {
	var got string
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = Actor(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(Header, "user-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "user-123", got)
}

func TestRequireRejectsAnonymous(t *testing.T) {
	handler := Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAllowsAuthenticated(t *testing.T) {
	called := false
	handler := Middleware(Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(Header, "user-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, called)
}
