package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aiser/queryengine/api"
	"github.com/aiser/queryengine/api/handlers"
)

type stubQueryHandlers struct{ called string }

func (s *stubQueryHandlers) HandleQuery(w http.ResponseWriter, r *http.Request) {
	s.called = "query"
	w.WriteHeader(http.StatusOK)
}

func (s *stubQueryHandlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	s.called = "stream"
	w.WriteHeader(http.StatusOK)
}

func TestNewRouter_MountsHealthAndQueryRoutes(t *testing.T) {
	qh := &stubQueryHandlers{}
	health := handlers.NewHealthHandler(nil)
	router := api.NewRouter(qh, health)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/queries", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, "query", qh.called)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/queries/stream", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, "stream", qh.called)
}

func TestNewRouter_AppliesMiddlewareInOrder(t *testing.T) {
	qh := &stubQueryHandlers{}
	health := handlers.NewHealthHandler(nil)
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	router := api.NewRouter(qh, health, mw("first"), mw("second"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, []string{"first", "second"}, order)
}
