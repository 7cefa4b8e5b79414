package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/chaos-io/bgremover/util"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	old := util.Logger
	util.Logger = zap.New(core)
	defer func() { util.Logger = old }()

	r := gin.New()
	r.Use(Logger())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusTeapot, "pong") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping?x=1", nil))

	entries := logs.FilterMessage("request").All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "GET", fields["method"])
		assert.Equal(t, "/ping", fields["path"])
		assert.Equal(t, "x=1", fields["query"])
		assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.Use(CORS())
	r.POST("/remove_background", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/remove_background", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/remove_background", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Requester-Id")
}
