package models

import (
	"time"

	"github.com/google/uuid"
)

// Represents a logged API request
type RequestLog struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Timestamp       time.Time  `gorm:"index" json:"timestamp"`
	UserID          *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Identity        string     `gorm:"index" json:"identity"`
	Method          string     `json:"method"`
	Path            string     `gorm:"index" json:"path"`
	Endpoint        string     `gorm:"index" json:"endpoint"`
	StatusCode      int        `gorm:"index" json:"status_code"`
	ResponseTimeMs  int        `json:"response_time_ms"`
	EstimatedTokens int64      `json:"estimated_tokens"`
	IPAddress       string     `json:"ip_address"`
	UserAgent       string     `json:"user_agent"`
}

func (RequestLog) TableName() string {
	return "request_logs"
}
