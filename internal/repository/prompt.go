package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/marcho78/prompt2json/internal/models"
	"github.com/marcho78/prompt2json/internal/storage"
	"gorm.io/gorm"
)

type PromptRepository struct {
	db *storage.Postgres
}

func NewPromptRepository(db *storage.Postgres) *PromptRepository {
	return &PromptRepository{db: db}
}

// Inserts a generated prompt for a registered user
func (r *PromptRepository) Create(ctx context.Context, prompt *models.GeneratedPrompt) error {
	return r.db.DB.WithContext(ctx).Create(prompt).Error
}

// Retrieves a prompt by id
func (r *PromptRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.GeneratedPrompt, error) {
	var prompt models.GeneratedPrompt
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&prompt).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &prompt, err
}

// Retrieves a user's prompt history, newest first
func (r *PromptRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.GeneratedPrompt, error) {
	var prompts []models.GeneratedPrompt
	err := r.db.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&prompts).Error

	return prompts, err
}

func (r *PromptRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	result := r.db.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.GeneratedPrompt{})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

// Retrieves active templates, optionally filtered by category
func (r *PromptRepository) ListTemplates(ctx context.Context, category string) ([]models.PromptTemplate, error) {
	var templates []models.PromptTemplate

	query := r.db.DB.WithContext(ctx).Where("is_active = ?", true)
	if category != "" {
		query = query.Where("category = ?", category)
	}

	err := query.Order("name ASC").Find(&templates).Error
	return templates, err
}
