package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	assert.Equal(t, int64(1), Estimate(""))
	assert.Equal(t, int64(1), Estimate("hi"))

	// 40 chars of plain text -> ~10 tokens
	text := "the quick brown fox jumps over the dog!"
	got := Estimate(text)
	assert.GreaterOrEqual(t, got, int64(9))
	assert.LessOrEqual(t, got, int64(12))

	// Punctuation-dense JSON estimates higher than plain text of the
	// same length
	js := `{"a":[1,2],"b":{"c":"d"},"e":"f"}`
	plain := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	assert.Greater(t, Estimate(js), Estimate(plain))
}

func TestCount_ClaudeHeuristic(t *testing.T) {
	e := NewEstimator()

	got := e.Count("this is a prompt about weather forecasting", "claude")
	assert.Equal(t, int64(10), got)

	assert.Equal(t, int64(1), e.Count("", "anthropic"))
}

func TestCount_UnknownProviderFallsBack(t *testing.T) {
	e := NewEstimator()
	text := "some description text for an unknown provider"
	assert.Equal(t, Estimate(text), e.Count(text, "llama"))
}

func TestEstimateGeneration(t *testing.T) {
	desc := "Create a prompt that summarizes legal contracts into bullet points"

	simple := EstimateGeneration(desc, "simple", false, 0)
	assert.Equal(t, int64(1500+len(desc)/4), simple)

	medium := EstimateGeneration(desc, "medium", false, 0)
	assert.Equal(t, int64(3000+len(desc)/4), medium)

	complexEst := EstimateGeneration(desc, "complex", true, 2)
	assert.Equal(t, int64(5000+len(desc)/4+1000+400), complexEst)

	// Unknown complexity gets the default base
	other := EstimateGeneration(desc, "", false, 0)
	assert.Equal(t, int64(2000+len(desc)/4), other)
}
