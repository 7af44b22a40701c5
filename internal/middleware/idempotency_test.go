package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go-leave/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func setupIdempotencyRouterWithClient(client *redis.Client, userID string, handlerHits *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/leave-requests", func(c *gin.Context) {
		c.Set("user_id_validated", userID)
		c.Next()
	}, middleware.Idempotency(client), func(c *gin.Context) {
		*handlerHits++
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})
	return r
}

func TestIdempotency(t *testing.T) {
	userID := uuid.New().String()

	t.Run("request without key passes through", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		hits := 0
		r := setupIdempotencyRouterWithClient(client, userID, &hits)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/leave-requests", strings.NewReader(`{}`))
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, 1, hits)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cached response is replayed without hitting the handler", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		hits := 0
		r := setupIdempotencyRouterWithClient(client, userID, &hits)

		idempKey := uuid.New().String()
		cacheKey := "idemp:/leave-requests:" + userID + ":" + idempKey
		mock.ExpectGet(cacheKey).SetVal(`{"id":"cached"}`)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/leave-requests", strings.NewReader(`{}`))
		req.Header.Set("Idempotency-Key", idempKey)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0, hits)
		assert.Contains(t, w.Body.String(), "cached")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupt cache entry falls through to the handler", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		hits := 0
		r := setupIdempotencyRouterWithClient(client, userID, &hits)

		idempKey := uuid.New().String()
		cacheKey := "idemp:/leave-requests:" + userID + ":" + idempKey
		mock.ExpectGet(cacheKey).SetVal(`{"id":"cach`)
		mock.ExpectSetNX(cacheKey+":lock", "locked", 30*time.Second).SetVal(true)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/leave-requests", strings.NewReader(`{}`))
		req.Header.Set("Idempotency-Key", idempKey)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, 1, hits)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("first attempt acquires the lock and proceeds", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		hits := 0
		r := setupIdempotencyRouterWithClient(client, userID, &hits)

		idempKey := uuid.New().String()
		cacheKey := "idemp:/leave-requests:" + userID + ":" + idempKey
		mock.ExpectGet(cacheKey).RedisNil()
		mock.ExpectSetNX(cacheKey+":lock", "locked", 30*time.Second).SetVal(true)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/leave-requests", strings.NewReader(`{}`))
		req.Header.Set("Idempotency-Key", idempKey)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, 1, hits)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("concurrent duplicate is rejected while the lock is held", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		hits := 0
		r := setupIdempotencyRouterWithClient(client, userID, &hits)

		idempKey := uuid.New().String()
		cacheKey := "idemp:/leave-requests:" + userID + ":" + idempKey
		mock.ExpectGet(cacheKey).RedisNil()
		mock.ExpectSetNX(cacheKey+":lock", "locked", 30*time.Second).SetVal(false)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/leave-requests", strings.NewReader(`{}`))
		req.Header.Set("Idempotency-Key", idempKey)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, 0, hits)
		assert.Contains(t, w.Body.String(), "PROCESSING")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
