package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/emilythestrangee/reddit-clone/backend/internal/auth"
	"github.com/emilythestrangee/reddit-clone/backend/internal/config"
	"github.com/emilythestrangee/reddit-clone/backend/internal/handlers"
	"github.com/emilythestrangee/reddit-clone/backend/internal/voting"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeDB struct {
	status string
}

func (f fakeDB) Health() map[string]string { return map[string]string{"status": f.status} }
func (f fakeDB) Close() error              { return nil }
func (f fakeDB) GetDB() *gorm.DB           { return nil }

type fakeIdentifier struct {
	id int
}

func (f fakeIdentifier) Identify(*gin.Context) (int, error) {
	if f.id == 0 {
		return 0, auth.ErrNoSession
	}
	return f.id, nil
}

type fixedVoter struct{}

func (fixedVoter) Apply(context.Context, int, int, voting.Value) (voting.Result, error) {
	return voting.Result{Score: 7, Outcome: voting.Created}, nil
}

func newTestServer(userID int, dbStatus string) *gin.Engine {
	cfg := config.Config{Port: "0", CORSOrigin: "http://localhost:3000", VotesPerSecond: 0.001}
	h := handlers.NewHandler(handlers.Deps{Voter: fixedVoter{}, Log: zerolog.Nop()})
	return New(cfg, fakeDB{status: dbStatus}, h, fakeIdentifier{id: userID}, zerolog.Nop()).RegisterRoutes()
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := serve(newTestServer(0, "up"), "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"up"}`, w.Body.String())

	w = serve(newTestServer(0, "down"), "GET", "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetrics(t *testing.T) {
	w := serve(newTestServer(0, "up"), "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestVoteRoute_RequiresAuth(t *testing.T) {
	w := serve(newTestServer(0, "up"), "POST", "/api/posts/1/vote", `{"inputVoteValue":1}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"code":401,"success":false,"message":"not authenticated"}`, w.Body.String())
}

func TestVoteRoute(t *testing.T) {
	w := serve(newTestServer(4, "up"), "POST", "/api/posts/1/vote", `{"inputVoteValue":1}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code":200,"success":true,"message":"voted successfully","score":7}`, w.Body.String())
}

func TestVoteRoute_RateLimited(t *testing.T) {
	r := newTestServer(4, "up")
	for i := 0; i < voteBurst; i++ {
		w := serve(r, "POST", "/api/posts/1/vote", `{"inputVoteValue":1}`)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i)
	}
	w := serve(r, "POST", "/api/posts/1/vote", `{"inputVoteValue":1}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestMe_Anonymous(t *testing.T) {
	w := serve(newTestServer(0, "up"), "GET", "/api/me", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":null}`, w.Body.String())
}

func TestCORS(t *testing.T) {
	r := newTestServer(0, "up")
	w := httptest.NewRecorder()
	req := httptest.NewRequest("OPTIONS", "/api/posts", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	r.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}
