package middleware

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/marcho78/prompt2json/internal/models"
	"github.com/marcho78/prompt2json/internal/repository"
	"github.com/marcho78/prompt2json/internal/storage"
)

// Buffered channel for async logging
var logChannel chan models.RequestLog

const logRetention = 30 * 24 * time.Hour

// Initializes the request logger
func InitRequestLogger(db *storage.Postgres, bufferSize int) {
	logChannel = make(chan models.RequestLog, bufferSize)
	repo := repository.NewRequestLogRepository(db)

	// Start background worker to batch insert logs
	go func() {
		batch := make([]*models.RequestLog, 0, 100)
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case entry := <-logChannel:
				batch = append(batch, &entry)

				// Insert when batch is full
				if len(batch) >= 100 {
					insertBatch(repo, batch)
					batch = make([]*models.RequestLog, 0, 100)
				}
			case <-ticker.C:
				// Periodically insert remaining logs
				if len(batch) > 0 {
					insertBatch(repo, batch)
					batch = make([]*models.RequestLog, 0, 100)
				}
			}
		}
	}()

	// Daily retention sweep
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for range ticker.C {
			deleted, err := repo.DeleteOldLogs(context.Background(), time.Now().Add(-logRetention))
			if err != nil {
				log.Printf("Failed to prune old request logs: %v", err)
				continue
			}
			if deleted > 0 {
				log.Printf("Pruned %d request logs older than %v", deleted, logRetention)
			}
		}
	}()
}

// Inserts a batch of logs into the database
func insertBatch(repo *repository.RequestLogRepository, logs []*models.RequestLog) {
	if len(logs) == 0 {
		return
	}

	if err := repo.CreateBatch(context.Background(), logs); err != nil {
		// Log error but dont block
		log.Printf("Failed to insert request logs: %v", err)
	}
}

// Logs all HTTP requests
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Process request
		c.Next()

		// Calculate duration
		duration := time.Since(start)

		// Extract user ID if authenticated
		var userID *uuid.UUID
		if idStr := CurrentUserID(c); idStr != "" {
			if id, err := uuid.Parse(idStr); err == nil {
				userID = &id
			}
		}

		// Create log entry
		logEntry := models.RequestLog{
			Timestamp:       start,
			UserID:          userID,
			Identity:        c.GetString("identity"),
			Method:          c.Request.Method,
			Path:            c.Request.URL.Path,
			Endpoint:        c.GetString("endpoint"),
			StatusCode:      c.Writer.Status(),
			ResponseTimeMs:  int(duration.Milliseconds()),
			EstimatedTokens: c.GetInt64("estimated_tokens"),
			IPAddress:       c.ClientIP(),
			UserAgent:       c.Request.UserAgent(),
		}

		// Send to channel for async processing
		select {
		case logChannel <- logEntry:
			// Successfully queued
		default:
			// Channel full, skip logging to avoid blocking
			log.Println("Request log channel full, skipping log entry")
		}
	}
}
