package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/marcho78/prompt2json/internal/middleware"
	"github.com/marcho78/prompt2json/internal/models"
	"github.com/marcho78/prompt2json/internal/quota"
	"github.com/marcho78/prompt2json/internal/repository"
	"github.com/marcho78/prompt2json/internal/service"
	"github.com/marcho78/prompt2json/internal/tokens"
)

const maxBatchSize = 10

type PromptHandler struct {
	generator *service.PromptGenerator
	ledger    *quota.Ledger
	prompts   *repository.PromptRepository
	limits    quota.Config
}

func NewPromptHandler(generator *service.PromptGenerator, ledger *quota.Ledger, prompts *repository.PromptRepository, limits quota.Config) *PromptHandler {
	return &PromptHandler{
		generator: generator,
		ledger:    ledger,
		prompts:   prompts,
		limits:    limits,
	}
}

type GenerateRequest struct {
	Description       string   `json:"description" binding:"required,min=10"`
	TargetLLM         string   `json:"target_llm"`
	Complexity        string   `json:"complexity"`
	IncludeExamples   *bool    `json:"include_examples"`
	OptimizationGoals []string `json:"optimization_goals"`
}

func (r *GenerateRequest) applyDefaults() {
	if r.TargetLLM == "" {
		r.TargetLLM = "claude"
	}
	if r.Complexity == "" {
		r.Complexity = "medium"
	}
}

func (r *GenerateRequest) includeExamples() bool {
	if r.IncludeExamples == nil {
		return true
	}
	return *r.IncludeExamples
}

// Handles POST /api/v1/generate-prompt
func (h *PromptHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.applyDefaults()

	estimated := h.capEstimate(tokens.EstimateGeneration(req.Description, req.Complexity, req.includeExamples(), len(req.OptimizationGoals)))

	decision, ok := middleware.ApplyRateLimit(c, h.ledger, estimated, "generate-prompt")
	if !ok {
		return
	}

	result := h.generator.Generate(req.Description, req.TargetLLM, req.Complexity, req.includeExamples())
	h.persist(c, &req, result)

	c.JSON(http.StatusOK, gin.H{
		"prompt":   result.Prompt,
		"metadata": result.Metadata,
		"usage":    decision,
	})
}

// Handles POST /api/v1/batch-generate. The whole batch is admitted as a
// single request whose cost is the sum of its items.
func (h *PromptHandler) BatchGenerate(c *gin.Context) {
	var req struct {
		Requests []GenerateRequest `json:"requests" binding:"required,min=1,dive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Requests) > maxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Batch size exceeds maximum of 10"})
		return
	}

	var estimated int64
	for i := range req.Requests {
		req.Requests[i].applyDefaults()
		item := &req.Requests[i]
		estimated += tokens.EstimateGeneration(item.Description, item.Complexity, item.includeExamples(), len(item.OptimizationGoals))
	}
	estimated = h.capEstimate(estimated)

	decision, ok := middleware.ApplyRateLimit(c, h.ledger, estimated, "batch-generate")
	if !ok {
		return
	}

	results := make([]*service.GenerateResult, 0, len(req.Requests))
	for i := range req.Requests {
		item := &req.Requests[i]
		result := h.generator.Generate(item.Description, item.TargetLLM, item.Complexity, item.includeExamples())
		h.persist(c, item, result)
		results = append(results, result)
	}

	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"count":   len(results),
		"usage":   decision,
	})
}

// Handles POST /api/v1/optimize-prompt
func (h *PromptHandler) Optimize(c *gin.Context) {
	var req struct {
		Prompt      map[string]interface{} `json:"prompt" binding:"required"`
		TargetModel string                 `json:"target_model"`
		Criteria    []string               `json:"optimization_criteria"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TargetModel == "" {
		req.TargetModel = "claude"
	}
	if len(req.Criteria) == 0 {
		req.Criteria = []string{"clarity", "brevity"}
	}

	// Optimization reads the prompt and writes a rewritten copy, so cost
	// roughly doubles the prompt size.
	raw, _ := json.Marshal(req.Prompt)
	estimated := h.capEstimate(tokens.Estimate(string(raw)) * 2)

	decision, ok := middleware.ApplyRateLimit(c, h.ledger, estimated, "optimize-prompt")
	if !ok {
		return
	}

	result := h.generator.Optimize(req.Prompt, req.TargetModel, req.Criteria)

	c.JSON(http.StatusOK, gin.H{
		"optimized_prompt": result.Optimized,
		"improvements":     result.Improvements,
		"tokens_before":    result.TokensBefore,
		"tokens_after":     result.TokensAfter,
		"usage":            decision,
	})
}

// Handles POST /api/v1/convert-prompt
func (h *PromptHandler) Convert(c *gin.Context) {
	var req struct {
		Prompt       map[string]interface{} `json:"prompt" binding:"required"`
		SourceFormat string                 `json:"source_format"`
		TargetFormat string                 `json:"target_format" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	raw, _ := json.Marshal(req.Prompt)
	estimated := h.capEstimate(tokens.Estimate(string(raw)))

	decision, ok := middleware.ApplyRateLimit(c, h.ledger, estimated, "convert-prompt")
	if !ok {
		return
	}

	converted := h.generator.Convert(req.Prompt, req.SourceFormat, req.TargetFormat)

	c.JSON(http.StatusOK, gin.H{
		"converted_prompt": converted,
		"target_format":    req.TargetFormat,
		"usage":            decision,
	})
}

// Handles POST /api/v1/merge-prompts
func (h *PromptHandler) Merge(c *gin.Context) {
	var req struct {
		Prompts []map[string]interface{} `json:"prompts" binding:"required,min=2,max=5"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	raw, _ := json.Marshal(req.Prompts)
	estimated := h.capEstimate(tokens.Estimate(string(raw)))

	decision, ok := middleware.ApplyRateLimit(c, h.ledger, estimated, "merge-prompts")
	if !ok {
		return
	}

	merged := h.generator.Merge(req.Prompts)

	c.JSON(http.StatusOK, gin.H{
		"merged_prompt": merged,
		"source_count":  len(req.Prompts),
		"usage":         decision,
	})
}

// Handles POST /api/v1/test-prompt
func (h *PromptHandler) Test(c *gin.Context) {
	var req struct {
		Prompt      map[string]interface{} `json:"prompt" binding:"required"`
		TestInput   string                 `json:"test_input" binding:"required"`
		TargetModel string                 `json:"target_model"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TargetModel == "" {
		req.TargetModel = "claude"
	}

	raw, _ := json.Marshal(req.Prompt)
	estimated := h.capEstimate(tokens.Estimate(string(raw)) + tokens.Estimate(req.TestInput) + 500)

	decision, ok := middleware.ApplyRateLimit(c, h.ledger, estimated, "test-prompt")
	if !ok {
		return
	}

	result := h.generator.Test(req.Prompt, req.TestInput, req.TargetModel)

	c.JSON(http.StatusOK, gin.H{
		"result": result,
		"usage":  decision,
	})
}

// Handles POST /api/v1/analyze-prompt
func (h *PromptHandler) Analyze(c *gin.Context) {
	var req struct {
		Prompt map[string]interface{} `json:"prompt" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	raw, _ := json.Marshal(req.Prompt)
	estimated := h.capEstimate(tokens.Estimate(string(raw)))

	decision, ok := middleware.ApplyRateLimit(c, h.ledger, estimated, "analyze-prompt")
	if !ok {
		return
	}

	analysis := h.generator.Analyze(req.Prompt)

	c.JSON(http.StatusOK, gin.H{
		"analysis": analysis,
		"usage":    decision,
	})
}

// Handles GET /api/v1/prompts (registered users only)
func (h *PromptHandler) List(c *gin.Context) {
	userID, err := uuid.Parse(middleware.CurrentUserID(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	prompts, err := h.prompts.ListByUser(c.Request.Context(), userID, 50, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch prompts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"prompts": prompts, "count": len(prompts)})
}

// Handles GET /api/v1/prompts/:id (registered users only)
func (h *PromptHandler) Get(c *gin.Context) {
	userID, err := uuid.Parse(middleware.CurrentUserID(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid prompt ID"})
		return
	}

	prompt, err := h.prompts.FindByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch prompt"})
		return
	}
	if prompt == nil || prompt.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Prompt not found"})
		return
	}

	c.JSON(http.StatusOK, prompt)
}

// Handles DELETE /api/v1/prompts/:id (registered users only)
func (h *PromptHandler) Delete(c *gin.Context) {
	userID, err := uuid.Parse(middleware.CurrentUserID(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid prompt ID"})
		return
	}

	if err := h.prompts.Delete(c.Request.Context(), id, userID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Prompt not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Prompt deleted"})
}

// Handles GET /api/v1/templates
func (h *PromptHandler) Templates(c *gin.Context) {
	templates, err := h.prompts.ListTemplates(c.Request.Context(), c.Query("category"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch templates"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"templates": templates, "count": len(templates)})
}

// Estimates are clamped to the largest per-request ceiling so a pathological
// payload still produces a bounded charge.
func (h *PromptHandler) capEstimate(estimated int64) int64 {
	if ceiling := h.limits.Registered.MaxTokensPerRequest; ceiling > 0 && estimated > ceiling {
		return ceiling
	}
	if estimated < 1 {
		return 1
	}
	return estimated
}

// Generated prompts are saved for registered users only. A failed save is
// logged and never fails the request.
func (h *PromptHandler) persist(c *gin.Context, req *GenerateRequest, result *service.GenerateResult) {
	userID, err := uuid.Parse(middleware.CurrentUserID(c))
	if err != nil {
		return
	}

	promptData, _ := json.Marshal(result.Prompt)
	metadata, _ := json.Marshal(result.Metadata)

	record := &models.GeneratedPrompt{
		UserID:      userID,
		Description: req.Description,
		TargetLLM:   req.TargetLLM,
		Complexity:  req.Complexity,
		PromptData:  promptData,
		Metadata:    metadata,
	}

	if err := h.prompts.Create(c.Request.Context(), record); err != nil {
		log.Printf("prompt: failed to save generated prompt for user %s: %v", userID, err)
	}
}
