package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestMiddleware_RejectsOverLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.POST("/ensure", Middleware(PerMinute(2), IPKeyFunc), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		router.ServeHTTP(last, httptest.NewRequest(http.MethodPost, "/ensure", nil))
		codes = append(codes, last.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "2", last.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "30", last.Header().Get("Retry-After"))
}

func TestTokenBucketLimiter(t *testing.T) {
	l := NewTokenBucketLimiter(rate.Limit(5), 3)
	assert.Equal(t, rate.Limit(5), l.Limit())
	assert.Equal(t, 3, l.Burst())
}
