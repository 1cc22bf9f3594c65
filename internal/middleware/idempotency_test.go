package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"checkout_back_end/internal/kv"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIdempotentRouter(t *testing.T) (*gin.Engine, *atomic.Int64) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	guard := NewIdempotencyGuard(kv.NewMemoryStore(), 24*time.Hour)
	var handlerRuns atomic.Int64

	r := gin.New()
	r.POST("/checkout_sessions", guard.Guard("checkout_create"), func(c *gin.Context) {
		n := handlerRuns.Add(1)
		c.JSON(http.StatusCreated, gin.H{"run": n})
	})
	return r, &handlerRuns
}

func postJSON(r *gin.Engine, body, idemKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/checkout_sessions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGuard_ReplayReturnsCachedResponse(t *testing.T) {
	r, runs := newIdempotentRouter(t)
	body := `{"items":[{"sku":"TSHIRT-M","quantity":1}]}`

	first := postJSON(r, body, "cle-1")
	require.Equal(t, http.StatusCreated, first.Code)

	second := postJSON(r, body, "cle-1")
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String(), "rejeu octet pour octet")
	assert.Equal(t, int64(1), runs.Load(), "le handler ne tourne qu'une fois")
}

func TestGuard_SameKeyDifferentParams(t *testing.T) {
	r, runs := newIdempotentRouter(t)

	first := postJSON(r, `{"items":[{"sku":"TSHIRT-M","quantity":1}]}`, "cle-2")
	require.Equal(t, http.StatusCreated, first.Code)

	conflict := postJSON(r, `{"items":[{"sku":"MUG","quantity":2}]}`, "cle-2")
	assert.Equal(t, http.StatusConflict, conflict.Code)
	assert.Equal(t, int64(1), runs.Load())
}

func TestGuard_TransportFieldsIgnoredInComparison(t *testing.T) {
	r, runs := newIdempotentRouter(t)

	first := postJSON(r, `{"items":[{"sku":"MUG","quantity":1}]}`, "cle-3")
	require.Equal(t, http.StatusCreated, first.Code)

	// controller/action/format et les champs _xxx sont du transport :
	// mêmes paramètres effectifs, donc rejeu et pas 409
	replay := postJSON(r, `{"controller":"checkout","action":"create","_trace":"abc","items":[{"sku":"MUG","quantity":1}]}`, "cle-3")
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, first.Body.String(), replay.Body.String())
	assert.Equal(t, int64(1), runs.Load())
}

func TestGuard_KeyOrderDoesNotMatter(t *testing.T) {
	r, runs := newIdempotentRouter(t)

	first := postJSON(r, `{"a":1,"b":2}`, "cle-4")
	require.Equal(t, http.StatusCreated, first.Code)

	replay := postJSON(r, `{"b":2,"a":1}`, "cle-4")
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, int64(1), runs.Load())
}

func TestGuard_NoHeaderBypasses(t *testing.T) {
	r, runs := newIdempotentRouter(t)
	body := `{"items":[{"sku":"MUG","quantity":1}]}`

	postJSON(r, body, "")
	postJSON(r, body, "")
	assert.Equal(t, int64(2), runs.Load())
}

func TestGuard_ServerErrorNotCached(t *testing.T) {
	gin.SetMode(gin.TestMode)
	guard := NewIdempotencyGuard(kv.NewMemoryStore(), 24*time.Hour)

	var handlerRuns atomic.Int64
	r := gin.New()
	r.POST("/checkout_sessions", guard.Guard("checkout_create"), func(c *gin.Context) {
		if handlerRuns.Add(1) == 1 {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "indisponible"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})

	body := `{"items":[{"sku":"MUG","quantity":1}]}`
	first := postJSON(r, body, "cle-5")
	require.Equal(t, http.StatusInternalServerError, first.Code)

	// Une 5xx n'est pas un résultat : la re-tentative ré-exécute
	second := postJSON(r, body, "cle-5")
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, int64(2), handlerRuns.Load())
}

func TestGuard_DistinctEndpointsDistinctScopes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	guard := NewIdempotencyGuard(kv.NewMemoryStore(), 24*time.Hour)

	var createRuns, completeRuns atomic.Int64
	r := gin.New()
	r.POST("/checkout_sessions", guard.Guard("checkout_create"), func(c *gin.Context) {
		createRuns.Add(1)
		c.JSON(http.StatusCreated, gin.H{"op": "create"})
	})
	r.POST("/checkout_sessions/s1/complete", guard.Guard("checkout_complete"), func(c *gin.Context) {
		completeRuns.Add(1)
		c.JSON(http.StatusCreated, gin.H{"op": "complete"})
	})

	send := func(path string) {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
		req.Header.Set("Idempotency-Key", "cle-partagee")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	// La même clé sur deux endpoints différents ne se télescope pas
	send("/checkout_sessions")
	send("/checkout_sessions/s1/complete")
	assert.Equal(t, int64(1), createRuns.Load())
	assert.Equal(t, int64(1), completeRuns.Load())
}
