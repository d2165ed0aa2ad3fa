package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_TaskClassification(t *testing.T) {
	g := NewPromptGenerator()

	tests := []struct {
		description string
		wantTask    string
	}{
		{"Extract names and dates from legal contracts", "data_extraction"},
		{"Analyze customer feedback for sentiment trends", "analysis"},
		{"Classify support tickets by urgency", "classification"},
		{"Write code to validate email addresses", "code_generation"},
		{"Write a short story about a lighthouse keeper", "creative_writing"},
		{"Help me with my daily planning", "general"},
	}

	for _, tt := range tests {
		t.Run(tt.wantTask, func(t *testing.T) {
			result := g.Generate(tt.description, "claude", "medium", false)
			assert.Equal(t, tt.wantTask, result.Prompt.Task)
		})
	}
}

func TestGenerate_ComplexityShapesPrompt(t *testing.T) {
	g := NewPromptGenerator()
	desc := "Extract invoice line items from scanned documents"

	simple := g.Generate(desc, "claude", "simple", false)
	assert.Nil(t, simple.Prompt.Components)
	assert.Len(t, simple.Prompt.Instructions.Steps, 3)

	complexResult := g.Generate(desc, "claude", "complex", true)
	require.NotNil(t, complexResult.Prompt.Components)
	assert.True(t, complexResult.Prompt.Components.ChainOfThought.Enabled)
	assert.Len(t, complexResult.Prompt.Instructions.Steps, 5)
	assert.NotEmpty(t, complexResult.Prompt.Examples)
}

func TestGenerate_Metadata(t *testing.T) {
	g := NewPromptGenerator()

	result := g.Generate("Analyze quarterly sales data", "gpt-4", "medium", true)

	assert.Greater(t, result.Metadata.EstimatedTokens, int64(0))
	assert.Equal(t, []string{"gpt-4"}, result.Metadata.TargetModels)
	assert.Equal(t, "1.0", result.Metadata.Version)
	assert.NotEmpty(t, result.Metadata.Suggestions)
}

func TestOptimize(t *testing.T) {
	g := NewPromptGenerator()

	prompt := map[string]interface{}{
		"task":     "analysis",
		"examples": []interface{}{map[string]interface{}{"input": "a", "output": "b"}},
	}

	result := g.Optimize(prompt, "claude", []string{"clarity", "brevity"})

	assert.Contains(t, result.Optimized, "system_message")
	assert.NotContains(t, result.Optimized, "examples")
	assert.Len(t, result.Improvements, 2)
	assert.Greater(t, result.TokensBefore, int64(0))
	assert.Greater(t, result.TokensAfter, int64(0))

	// Input prompt is not mutated
	assert.Contains(t, prompt, "examples")
	assert.NotContains(t, prompt, "system_message")
}

func TestConvert(t *testing.T) {
	g := NewPromptGenerator()

	prompt := map[string]interface{}{"system_message": "You are an assistant."}
	converted := g.Convert(prompt, "openai", "claude")

	assert.Equal(t, "claude", converted["target_format"])
	assert.Contains(t, converted["system_message"], "thoughtful")
}

func TestMerge(t *testing.T) {
	g := NewPromptGenerator()

	merged := g.Merge([]map[string]interface{}{
		{"instructions": map[string]interface{}{"primary_goal": "extract entities", "steps": []interface{}{"step one"}}},
		{"instructions": map[string]interface{}{"primary_goal": "classify them", "steps": []interface{}{"step two"}}},
	})

	instr := merged["instructions"].(map[string]interface{})
	assert.Equal(t, "extract entities; classify them", instr["primary_goal"])
	assert.Len(t, instr["steps"], 2)
}

func TestTestPrompt(t *testing.T) {
	g := NewPromptGenerator()

	good := map[string]interface{}{
		"system_message": "You are an analyst.",
		"instructions": map[string]interface{}{
			"primary_goal": "analyze",
			"steps":        []interface{}{"read", "analyze", "report"},
		},
		"output_format": map[string]interface{}{"type": "object"},
	}

	result := g.Test(good, "sample input", "claude")
	assert.Equal(t, "pass", result.Result)
	assert.Equal(t, 1.0, result.Score)

	bare := map[string]interface{}{"task": "x"}
	result = g.Test(bare, "sample input", "claude")
	assert.Equal(t, "fail", result.Result)
	assert.NotEmpty(t, result.Notes)
}

func TestAnalyze(t *testing.T) {
	g := NewPromptGenerator()

	result := g.Analyze(map[string]interface{}{
		"task":         "analysis",
		"instructions": map[string]interface{}{"primary_goal": "x"},
	})

	assert.Equal(t, 0.5, result.CompletenessScore)
	assert.Greater(t, result.EstimatedTokens, int64(0))
	assert.NotEmpty(t, result.Recommendations)
}
