package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marcho78/prompt2json/internal/middleware"
	"github.com/marcho78/prompt2json/internal/quota"
)

type UsageHandler struct {
	ledger *quota.Ledger
}

func NewUsageHandler(ledger *quota.Ledger) *UsageHandler {
	return &UsageHandler{ledger: ledger}
}

// Handles GET /api/v1/usage
func (h *UsageHandler) Get(c *gin.Context) {
	snap := middleware.GetUsageStats(c, h.ledger)

	resp := gin.H{
		"user_type": snap.UserType,
		"limits":    snap.Limits,
		"usage":     snap.Usage,
		"percentages": gin.H{
			"requests": snap.RequestUsagePercent,
			"tokens":   snap.TokenUsagePercent,
		},
		"reset_time": snap.ResetTime.Format(time.RFC3339),
	}
	if snap.Degraded {
		resp["degraded"] = true
	}
	if snap.UserType == "anonymous" {
		resp["upgrade_benefits"] = upgradeBenefits()
	}

	c.JSON(http.StatusOK, resp)
}

// Handles GET /api/v1/usage/simple, a condensed view for client dashboards.
func (h *UsageHandler) GetSimple(c *gin.Context) {
	snap := middleware.GetUsageStats(c, h.ledger)

	worst := snap.RequestUsagePercent
	if snap.TokenUsagePercent > worst {
		worst = snap.TokenUsagePercent
	}

	c.JSON(http.StatusOK, gin.H{
		"user_type":          snap.UserType,
		"requests_remaining": snap.Usage.RequestsRemaining,
		"tokens_remaining":   snap.Usage.TokensRemaining,
		"usage_percent":      worst,
		"warning_level":      warningLevel(worst),
		"message":            usageMessage(snap),
		"reset_time":         snap.ResetTime.Format(time.RFC3339),
	})
}

func warningLevel(percent float64) string {
	switch {
	case percent >= 95:
		return "high"
	case percent >= 80:
		return "medium"
	default:
		return "low"
	}
}

func usageMessage(snap *quota.Snapshot) string {
	switch warningLevel(maxPercent(snap)) {
	case "high":
		if snap.UserType == "anonymous" {
			return "You've nearly exhausted today's free quota. Register for 5x more usage."
		}
		return "You've nearly exhausted today's quota. Limits reset at midnight UTC."
	case "medium":
		return "You're approaching today's limit. Usage resets at midnight UTC."
	default:
		return "You have plenty of quota remaining today."
	}
}

func maxPercent(snap *quota.Snapshot) float64 {
	if snap.TokenUsagePercent > snap.RequestUsagePercent {
		return snap.TokenUsagePercent
	}
	return snap.RequestUsagePercent
}

func upgradeBenefits() gin.H {
	return gin.H{
		"daily_requests":         "10 -> 50",
		"daily_tokens":           "50,000 -> 200,000",
		"max_tokens_per_request": "5,000 -> 10,000",
		"register_url":           "/api/v1/auth/register",
	}
}
