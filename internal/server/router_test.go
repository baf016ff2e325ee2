package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desertthunder/upsync/internal/shared"
)

type routesHandler struct{}

func (routesHandler) Routes() []string { return []string{"GET /a", "/b"} }

func (routesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("custom"))
}

func TestBasicRouter(t *testing.T) {
	t.Run("Method Patterns", func(t *testing.T) {
		r := NewBasicRouter()
		r.HandleFunc(http.MethodGet, "/items/{id}", func(w http.ResponseWriter, req *http.Request) {
			w.Write([]byte("get " + req.PathValue("id")))
		})
		r.HandleFunc("post", "/items/{id}", func(w http.ResponseWriter, req *http.Request) {
			w.Write([]byte("post " + req.PathValue("id")))
		})

		for method, want := range map[string]string{http.MethodGet: "get 7", http.MethodPost: "post 7"} {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(method, "/items/7", nil))
			if rec.Body.String() != want {
				t.Errorf("%s: expected %q, got %q", method, want, rec.Body.String())
			}
		}

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/items/7", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})

	t.Run("Middleware Order", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, req)
				})
			}
		}

		r := NewBasicRouter()
		r.Use(mark("first"), mark("second"))
		r.HandleFunc("", "/", func(w http.ResponseWriter, req *http.Request) { order = append(order, "handler") })

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		if got := strings.Join(order, ","); got != "first,second,handler" {
			t.Errorf("unexpected order %s", got)
		}
	})

	t.Run("Custom Handler", func(t *testing.T) {
		r := NewBasicRouter()
		r.Handler(routesHandler{})

		for _, path := range []string{"/a", "/b"} {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			if rec.Body.String() != "custom" {
				t.Errorf("%s: expected custom handler, got %q", path, rec.Body.String())
			}
		}
	})
}

func TestMiddleware(t *testing.T) {
	logger := shared.NewDiscardLogger()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get(RequestIDHeader)))
	})

	t.Run("RequestID Generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RequestID()(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		id := rec.Header().Get(RequestIDHeader)
		if id == "" || rec.Body.String() != id {
			t.Errorf("expected generated id echoed, header %q body %q", id, rec.Body.String())
		}
	})

	t.Run("RequestID Reused", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc")
		rec := httptest.NewRecorder()
		RequestID()(ok).ServeHTTP(rec, req)

		if rec.Header().Get(RequestIDHeader) != "abc" {
			t.Errorf("expected caller id, got %q", rec.Header().Get(RequestIDHeader))
		}
	})

	t.Run("Recover", func(t *testing.T) {
		boom := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") })
		rec := httptest.NewRecorder()
		Logging(logger)(Recover(logger)(boom)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})

	t.Run("CORS Preflight", func(t *testing.T) {
		rec := httptest.NewRecorder()
		CORS("")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/tasks", nil))

		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rec.Code)
		}
		if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Errorf("expected wildcard origin, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
		}
	})
}
