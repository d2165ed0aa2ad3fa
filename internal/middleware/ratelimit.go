package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marcho78/prompt2json/internal/identity"
	"github.com/marcho78/prompt2json/internal/quota"
)

// Ledger calls must never hang a request on a slow counter store; a
// timeout is treated as a store failure (fail-open).
const ledgerTimeout = 500 * time.Millisecond

// ApplyRateLimit admits or rejects the current request against the quota
// ledger. Called by billable handlers after they estimate token cost and
// before any expensive work. Returns the decision and true when admitted;
// on rejection it writes the error response and aborts.
func ApplyRateLimit(c *gin.Context, ledger *quota.Ledger, estimatedTokens int64, endpoint string) (*quota.Decision, bool) {
	userID := CurrentUserID(c)
	key := identity.FromRequest(c, userID)
	registered := identity.IsRegistered(key)

	// For the async request logger
	c.Set("identity", key)
	c.Set("endpoint", endpoint)
	c.Set("estimated_tokens", estimatedTokens)

	ctx, cancel := context.WithTimeout(c.Request.Context(), ledgerTimeout)
	defer cancel()

	decision, err := ledger.CheckAndConsume(ctx, key, estimatedTokens, endpoint, registered)
	if err != nil {
		limitErr, ok := quota.AsLimitError(err)
		if !ok {
			// The ledger only fails with limit errors; anything else is a
			// programming error, not a user-facing condition.
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Rate limit check failed"})
			c.Abort()
			return nil, false
		}

		setLimitHeaders(c, ledger, key, registered)

		status := http.StatusTooManyRequests
		if limitErr.Kind == quota.KindRequestTooLarge {
			status = http.StatusBadRequest
		} else {
			retryAfter := int(time.Until(limitErr.ResetTime).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
		}

		c.JSON(status, limitErr)
		c.Abort()
		return nil, false
	}

	setDecisionHeaders(c, decision)
	return decision, true
}

// GetUsageStats returns the read-only usage snapshot for the caller.
func GetUsageStats(c *gin.Context, ledger *quota.Ledger) *quota.Snapshot {
	key := identity.FromRequest(c, CurrentUserID(c))

	ctx, cancel := context.WithTimeout(c.Request.Context(), ledgerTimeout)
	defer cancel()

	return ledger.UsageStats(ctx, key, identity.IsRegistered(key))
}

func setDecisionHeaders(c *gin.Context, d *quota.Decision) {
	c.Header("X-RateLimit-Type", "daily")
	c.Header("X-RateLimit-Limit-Requests", fmt.Sprintf("%d", d.Limits.DailyRequests))
	c.Header("X-RateLimit-Remaining-Requests", fmt.Sprintf("%d", d.Usage.RequestsRemaining))
	c.Header("X-RateLimit-Limit-Tokens", fmt.Sprintf("%d", d.Limits.DailyTokens))
	c.Header("X-RateLimit-Remaining-Tokens", fmt.Sprintf("%d", d.Usage.TokensRemaining))
	c.Header("X-RateLimit-Reset", d.ResetTime.Format(time.RFC3339))
	c.Header("X-RateLimit-User-Type", d.UserType)
}

// setLimitHeaders reports current usage on a rejected request.
func setLimitHeaders(c *gin.Context, ledger *quota.Ledger, key string, registered bool) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ledgerTimeout)
	defer cancel()

	snap := ledger.UsageStats(ctx, key, registered)

	c.Header("X-RateLimit-Type", "daily")
	c.Header("X-RateLimit-Limit-Requests", fmt.Sprintf("%d", snap.Limits.DailyRequests))
	c.Header("X-RateLimit-Remaining-Requests", fmt.Sprintf("%d", snap.Usage.RequestsRemaining))
	c.Header("X-RateLimit-Limit-Tokens", fmt.Sprintf("%d", snap.Limits.DailyTokens))
	c.Header("X-RateLimit-Remaining-Tokens", fmt.Sprintf("%d", snap.Usage.TokensRemaining))
	c.Header("X-RateLimit-Reset", snap.ResetTime.Format(time.RFC3339))
	c.Header("X-RateLimit-User-Type", snap.UserType)
}
