package quota

import (
	"errors"
	"fmt"
	"time"
)

// Kind tags the machine-readable rejection category.
type Kind string

const (
	KindEndpointLimitExceeded     Kind = "ENDPOINT_REQUEST_LIMIT_EXCEEDED"
	KindRequestTooLarge           Kind = "REQUEST_TOO_LARGE"
	KindDailyRequestLimitExceeded Kind = "DAILY_REQUEST_LIMIT_EXCEEDED"
	KindDailyTokenLimitExceeded   Kind = "DAILY_TOKEN_LIMIT_EXCEEDED"
)

// LimitError is an expected, client-correctable admission rejection.
// It is an ordinary outcome of CheckAndConsume, never a server fault.
type LimitError struct {
	Kind       Kind      `json:"error"`
	Message    string    `json:"message"`
	Endpoint   string    `json:"endpoint,omitempty"`
	Limit      int64     `json:"limit"`
	Used       int64     `json:"used,omitempty"`
	Requested  int64     `json:"requested,omitempty"`
	ResetTime  time.Time `json:"reset_time"`
	Tips       []string  `json:"tips,omitempty"`
	UpgradeURL string    `json:"upgrade_url,omitempty"`
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// AsLimitError unwraps err into a LimitError if it is one.
func AsLimitError(err error) (*LimitError, bool) {
	var le *LimitError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
