package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func bodyEchoRouter(limit int64) *gin.Engine {
	r := gin.New()
	r.Use(MaxBodySize(limit))
	r.POST("/test", func(c *gin.Context) {
		b, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too large")
			return
		}
		c.String(http.StatusOK, string(b))
	})
	return r
}

func TestMaxBodySize_Allowed(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewReader([]byte("hello world")))
	bodyEchoRouter(1024).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello world", w.Body.String())
}

func TestMaxBodySize_Exceeded(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(strings.Repeat("x", 64)))
	bodyEchoRouter(16).ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestMaxBodySize_ExactLimit(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(strings.Repeat("y", 16)))
	bodyEchoRouter(16).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
