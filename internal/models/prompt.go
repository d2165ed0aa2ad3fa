package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Represents a structured prompt generated for a registered user
type GeneratedPrompt struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	UserID      uuid.UUID       `gorm:"type:uuid;index;not null" json:"user_id"`
	Description string          `gorm:"type:text;not null" json:"description"`
	TargetLLM   string          `gorm:"not null" json:"target_llm"`
	Complexity  string          `gorm:"not null" json:"complexity"`
	PromptData  json.RawMessage `gorm:"type:jsonb;not null" json:"prompt_data"`
	Metadata    json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (p *GeneratedPrompt) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	return nil
}

func (GeneratedPrompt) TableName() string {
	return "generated_prompts"
}

// Represents a reusable prompt template
type PromptTemplate struct {
	ID           uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	Name         string          `gorm:"uniqueIndex;not null" json:"name"`
	Description  string          `gorm:"type:text;not null" json:"description"`
	Category     string          `gorm:"index" json:"category"`
	TemplateData json.RawMessage `gorm:"type:jsonb;not null" json:"template_data"`
	Complexity   string          `gorm:"default:'medium'" json:"complexity"`
	IsActive     bool            `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (t *PromptTemplate) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	return nil
}

func (PromptTemplate) TableName() string {
	return "prompt_templates"
}
