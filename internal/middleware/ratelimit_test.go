package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/marcho78/prompt2json/internal/quota"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(ledger *quota.Ledger, estimatedTokens int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/generate", func(c *gin.Context) {
		decision, ok := ApplyRateLimit(c, ledger, estimatedTokens, "generate-prompt")
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"usage": decision})
	})
	return router
}

func newTestLedger() *quota.Ledger {
	return quota.NewLedger(quota.NewMemoryStore(), quota.Config{
		Anonymous: quota.TierLimits{
			DailyRequests:       10,
			DailyTokens:         50000,
			MaxTokensPerRequest: 5000,
		},
		Registered: quota.TierLimits{
			DailyRequests:       50,
			DailyTokens:         200000,
			MaxTokensPerRequest: 10000,
		},
		WarningThreshold: 0.8,
		EndpointLimits: map[string]quota.EndpointLimit{
			"generate-prompt": {Anonymous: 10, Registered: 30},
		},
	})
}

func doRequest(router *gin.Engine) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/generate", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set("User-Agent", "test-agent")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestApplyRateLimit_AdmitsAndSetsHeaders(t *testing.T) {
	router := newTestRouter(newTestLedger(), 1000)

	w := doRequest(router)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "daily", w.Header().Get("X-RateLimit-Type"))
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit-Requests"))
	assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining-Requests"))
	assert.Equal(t, "50000", w.Header().Get("X-RateLimit-Limit-Tokens"))
	assert.Equal(t, "49000", w.Header().Get("X-RateLimit-Remaining-Tokens"))
	assert.Equal(t, "anonymous", w.Header().Get("X-RateLimit-User-Type"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}

func TestApplyRateLimit_RejectsWithRetryAfter(t *testing.T) {
	router := newTestRouter(newTestLedger(), 1000)

	for i := 0; i < 10; i++ {
		w := doRequest(router)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doRequest(router)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining-Requests"))

	var body quota.LimitError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, quota.KindEndpointLimitExceeded, body.Kind)
}

func TestApplyRateLimit_OversizedRequestIs400(t *testing.T) {
	router := newTestRouter(newTestLedger(), 6000)

	w := doRequest(router)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Header().Get("Retry-After"))

	var body quota.LimitError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, quota.KindRequestTooLarge, body.Kind)

	// Nothing was consumed
	w = doRequest(newTestRouter(newTestLedger(), 1000))
	require.Equal(t, http.StatusOK, w.Code)
}
