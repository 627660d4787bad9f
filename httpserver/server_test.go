package httpserver

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := New(&HTTPServerConfig{
		Log:                      slog.New(slog.NewTextHandler(io.Discard, nil)),
		DrainDuration:            time.Millisecond,
		GracefulShutdownDuration: time.Second,
	}, func(r chi.Router) {
		r.Get("/echo", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		})
	})
	require.NoError(t, err)
	return srv
}

func get(srv *Server, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestServerRoutes(t *testing.T) {
	srv := newTestServer(t)

	w := get(srv, "/echo")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	w = get(srv, "/livez")
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(srv, "/readyz")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDrainUndrain(t *testing.T) {
	srv := newTestServer(t)

	w := get(srv, "/drain")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "draining")

	w = get(srv, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// Draining twice reports the current state without toggling it.
	w = get(srv, "/drain")
	assert.Contains(t, w.Body.String(), "already draining")

	w = get(srv, "/undrain")
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(srv, "/readyz")
	assert.Equal(t, http.StatusOK, w.Code)
}
