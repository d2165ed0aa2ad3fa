package quota

import (
	"context"
	"fmt"
	"log"
	"time"
)

const counterTTL = 24 * time.Hour

// TierLimits is the immutable limit profile for one user class.
type TierLimits struct {
	DailyRequests       int64 `json:"daily_requests"`
	DailyTokens         int64 `json:"daily_tokens"`
	MaxTokensPerRequest int64 `json:"max_tokens_per_request"`
}

// EndpointLimit is a per-endpoint daily request cap layered on top of the
// global daily allowance. Zero means no cap for that tier.
type EndpointLimit struct {
	Anonymous  int64 `json:"anonymous"`
	Registered int64 `json:"registered"`
}

// Config holds the full limit configuration. Immutable after startup.
type Config struct {
	Anonymous        TierLimits               `json:"anonymous"`
	Registered       TierLimits               `json:"registered"`
	WarningThreshold float64                  `json:"warning_threshold"`
	EndpointLimits   map[string]EndpointLimit `json:"endpoint_limits"`
}

// Usage holds one identity's consumed and remaining quota for the day.
// Remaining figures are floored at zero for reporting.
type Usage struct {
	RequestsUsed      int64 `json:"requests_used"`
	TokensUsed        int64 `json:"tokens_used"`
	RequestsRemaining int64 `json:"requests_remaining"`
	TokensRemaining   int64 `json:"tokens_remaining"`
}

// Decision is the outcome of an admitted request.
type Decision struct {
	UserType            string     `json:"user_type"`
	Limits              TierLimits `json:"limits"`
	Usage               Usage      `json:"usage"`
	NearRequestLimit    bool       `json:"near_request_limit"`
	NearTokenLimit      bool       `json:"near_token_limit"`
	RequestUsagePercent float64    `json:"request_usage_percent"`
	TokenUsagePercent   float64    `json:"token_usage_percent"`
	ResetTime           time.Time  `json:"reset_time"`
	Degraded            bool       `json:"degraded,omitempty"`
}

// Snapshot is the read-only usage view for dashboards.
type Snapshot struct {
	UserType            string     `json:"user_type"`
	Limits              TierLimits `json:"limits"`
	Usage               Usage      `json:"usage"`
	RequestUsagePercent float64    `json:"request_usage_percent"`
	TokenUsagePercent   float64    `json:"token_usage_percent"`
	ResetTime           time.Time  `json:"reset_time"`
	Degraded            bool       `json:"degraded,omitempty"`
}

// Ledger tracks per-identity daily request and token counters and decides
// admission against tiered limits. It holds no mutable state of its own;
// all counters live in the Store.
type Ledger struct {
	store Store
	cfg   Config
	now   func() time.Time
}

func NewLedger(store Store, cfg Config) *Ledger {
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = 0.8
	}

	return &Ledger{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// CheckAndConsume evaluates an admission decision for one request and, if
// admitted, atomically records its consumption. Check order: endpoint
// sub-limit, per-request token ceiling, daily request ceiling, daily token
// ceiling. A rejection never mutates counters.
//
// The commit uses guarded increments: each counter is incremented
// atomically and rolled back if the result overshot its ceiling, so two
// concurrent calls for the same identity can never jointly exceed a limit.
// A store failure is fail-open: counters read as zero, the decision is
// flagged degraded, and the request is admitted.
func (l *Ledger) CheckAndConsume(ctx context.Context, key string, estimatedTokens int64, endpoint string, registered bool) (*Decision, error) {
	limits := l.tier(registered)
	reset := l.nextReset()
	date := l.date()

	requestKey := fmt.Sprintf("limit:daily:requests:%s:%s", key, date)
	tokenKey := fmt.Sprintf("limit:daily:tokens:%s:%s", key, date)

	endpointCap := l.endpointCap(endpoint, registered)
	endpointKey := fmt.Sprintf("limit:endpoint:%s:%s:%s", endpoint, key, date)

	degraded := false

	// 1. Endpoint sub-limit
	if endpointCap > 0 {
		endpointUsed, ok := l.read(ctx, endpointKey)
		degraded = degraded || !ok

		if endpointUsed >= endpointCap {
			return nil, l.endpointExceeded(endpoint, endpointCap, endpointUsed, reset)
		}
	}

	// 2. Per-request token ceiling
	if estimatedTokens > limits.MaxTokensPerRequest {
		return nil, l.requestTooLarge(estimatedTokens, limits, registered, reset)
	}

	// 3. Daily request ceiling
	requestsUsed, ok := l.read(ctx, requestKey)
	degraded = degraded || !ok

	if requestsUsed >= limits.DailyRequests {
		return nil, l.requestsExceeded(requestsUsed, limits, registered, reset)
	}

	// 4. Daily token ceiling
	tokensUsed, ok := l.read(ctx, tokenKey)
	degraded = degraded || !ok

	if tokensUsed+estimatedTokens > limits.DailyTokens {
		return nil, l.tokensExceeded(tokensUsed, estimatedTokens, limits, registered, reset)
	}

	// 5. Commit. Guarded increments in check order, rolled back in reverse
	// when a guard trips under concurrency.
	if endpointCap > 0 {
		n, err := l.store.IncrBy(ctx, endpointKey, 1, counterTTL)
		switch {
		case err != nil:
			log.Printf("quota: endpoint counter increment failed for %s: %v", key, err)
			degraded = true
		case n > endpointCap:
			l.rollback(ctx, endpointKey, 1)
			return nil, l.endpointExceeded(endpoint, endpointCap, n-1, reset)
		}
	}

	n, err := l.store.IncrBy(ctx, requestKey, 1, counterTTL)
	switch {
	case err != nil:
		log.Printf("quota: request counter increment failed for %s: %v", key, err)
		degraded = true
		requestsUsed++
	case n > limits.DailyRequests:
		l.rollback(ctx, requestKey, 1)
		if endpointCap > 0 {
			l.rollback(ctx, endpointKey, 1)
		}
		return nil, l.requestsExceeded(n-1, limits, registered, reset)
	default:
		requestsUsed = n
	}

	m, err := l.store.IncrBy(ctx, tokenKey, estimatedTokens, counterTTL)
	switch {
	case err != nil:
		log.Printf("quota: token counter increment failed for %s: %v", key, err)
		degraded = true
		tokensUsed += estimatedTokens
	case m > limits.DailyTokens:
		l.rollback(ctx, tokenKey, estimatedTokens)
		l.rollback(ctx, requestKey, 1)
		if endpointCap > 0 {
			l.rollback(ctx, endpointKey, 1)
		}
		return nil, l.tokensExceeded(m-estimatedTokens, estimatedTokens, limits, registered, reset)
	default:
		tokensUsed = m
	}

	if degraded {
		log.Printf("quota: degraded admission for %s (counter store unavailable)", key)
	}

	requestPercent := percent(requestsUsed, limits.DailyRequests)
	tokenPercent := percent(tokensUsed, limits.DailyTokens)

	return &Decision{
		UserType:            userType(registered),
		Limits:              limits,
		Usage:               usage(requestsUsed, tokensUsed, limits),
		NearRequestLimit:    requestPercent >= l.cfg.WarningThreshold*100,
		NearTokenLimit:      tokenPercent >= l.cfg.WarningThreshold*100,
		RequestUsagePercent: requestPercent,
		TokenUsagePercent:   tokenPercent,
		ResetTime:           reset,
		Degraded:            degraded,
	}, nil
}

// UsageStats returns the current counters without mutating anything.
func (l *Ledger) UsageStats(ctx context.Context, key string, registered bool) *Snapshot {
	limits := l.tier(registered)
	date := l.date()

	requestsUsed, reqOK := l.read(ctx, fmt.Sprintf("limit:daily:requests:%s:%s", key, date))
	tokensUsed, tokOK := l.read(ctx, fmt.Sprintf("limit:daily:tokens:%s:%s", key, date))

	return &Snapshot{
		UserType:            userType(registered),
		Limits:              limits,
		Usage:               usage(requestsUsed, tokensUsed, limits),
		RequestUsagePercent: percent(requestsUsed, limits.DailyRequests),
		TokenUsagePercent:   percent(tokensUsed, limits.DailyTokens),
		ResetTime:           l.nextReset(),
		Degraded:            !reqOK || !tokOK,
	}
}

// read fetches a counter, treating a store failure as zero usage
// (fail-open). The bool is false when the store was unavailable.
func (l *Ledger) read(ctx context.Context, counterKey string) (int64, bool) {
	val, err := l.store.Get(ctx, counterKey)
	if err != nil {
		log.Printf("quota: counter read failed for %s: %v", counterKey, err)
		return 0, false
	}
	return val, true
}

func (l *Ledger) rollback(ctx context.Context, counterKey string, delta int64) {
	if err := l.store.DecrBy(ctx, counterKey, delta); err != nil {
		log.Printf("quota: counter rollback failed for %s: %v", counterKey, err)
	}
}

func (l *Ledger) tier(registered bool) TierLimits {
	if registered {
		return l.cfg.Registered
	}
	return l.cfg.Anonymous
}

func (l *Ledger) endpointCap(endpoint string, registered bool) int64 {
	limit, ok := l.cfg.EndpointLimits[endpoint]
	if !ok {
		return 0
	}
	if registered {
		return limit.Registered
	}
	return limit.Anonymous
}

func (l *Ledger) date() string {
	return l.now().UTC().Format("2006-01-02")
}

// nextReset is the next UTC midnight strictly after now. All identities
// share this boundary.
func (l *Ledger) nextReset() time.Time {
	now := l.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

func (l *Ledger) endpointExceeded(endpoint string, cap, used int64, reset time.Time) *LimitError {
	return &LimitError{
		Kind:      KindEndpointLimitExceeded,
		Message:   fmt.Sprintf("You've reached your daily limit for %s. Try again tomorrow.", endpoint),
		Endpoint:  endpoint,
		Limit:     cap,
		Used:      used,
		ResetTime: reset,
	}
}

func (l *Ledger) requestTooLarge(requested int64, limits TierLimits, registered bool, reset time.Time) *LimitError {
	tips := []string{
		"Try using 'simple' complexity mode",
		"Reduce input text length",
	}
	if registered {
		tips = append(tips, "Consider breaking into smaller requests")
	} else {
		tips = append(tips, "Register for free to get higher limits")
	}

	return &LimitError{
		Kind:      KindRequestTooLarge,
		Message:   fmt.Sprintf("This request requires %d tokens, but the limit is %d.", requested, limits.MaxTokensPerRequest),
		Limit:     limits.MaxTokensPerRequest,
		Requested: requested,
		ResetTime: reset,
		Tips:      tips,
	}
}

func (l *Ledger) requestsExceeded(used int64, limits TierLimits, registered bool, reset time.Time) *LimitError {
	msg := fmt.Sprintf("You've reached your daily limit of %d requests. Please try again tomorrow.", limits.DailyRequests)
	upgradeURL := ""
	if !registered {
		msg += " Register for free to get 5x more usage."
		upgradeURL = "/api/v1/auth/register"
	}

	return &LimitError{
		Kind:       KindDailyRequestLimitExceeded,
		Message:    msg,
		Limit:      limits.DailyRequests,
		Used:       used,
		ResetTime:  reset,
		UpgradeURL: upgradeURL,
	}
}

func (l *Ledger) tokensExceeded(used, requested int64, limits TierLimits, registered bool, reset time.Time) *LimitError {
	msg := "You've used your daily token allowance. Try simpler prompts or wait until tomorrow."
	tips := []string{
		"Use 'simple' complexity for fewer tokens",
		"Optimize your prompts to use fewer tokens",
	}
	if !registered {
		msg += " Register for free to get 4x more tokens."
		tips = append(tips, fmt.Sprintf("Register for free to get %d daily tokens", l.cfg.Registered.DailyTokens))
	}

	return &LimitError{
		Kind:      KindDailyTokenLimitExceeded,
		Message:   msg,
		Limit:     limits.DailyTokens,
		Used:      used,
		Requested: requested,
		ResetTime: reset,
		Tips:      tips,
	}
}

func usage(requestsUsed, tokensUsed int64, limits TierLimits) Usage {
	return Usage{
		RequestsUsed:      requestsUsed,
		TokensUsed:        tokensUsed,
		RequestsRemaining: floor(limits.DailyRequests - requestsUsed),
		TokensRemaining:   floor(limits.DailyTokens - tokensUsed),
	}
}

func userType(registered bool) string {
	if registered {
		return "registered"
	}
	return "anonymous"
}

func percent(used, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(used) / float64(limit) * 100
}

func floor(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
