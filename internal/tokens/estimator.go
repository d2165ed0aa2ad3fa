package tokens

import (
	"regexp"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	whitespace   = regexp.MustCompile(`\s+`)
	specialChars = regexp.MustCompile(`[{}()\[\].,;:!?"'\-]`)
)

// Estimator counts tokens in text for different LLM providers. OpenAI
// models use tiktoken; other providers fall back to a character heuristic.
type Estimator struct {
	once     sync.Once
	encoding *tiktoken.Tiktoken
}

func NewEstimator() *Estimator {
	return &Estimator{}
}

// Counts the tokens text would consume on the given provider.
func (e *Estimator) Count(text, provider string) int64 {
	switch strings.ToLower(provider) {
	case "openai", "gpt-4", "gpt-3.5":
		return e.countOpenAI(text)
	case "claude", "anthropic":
		// Claude tokenizes similarly to GPT models, ~4 chars per token
		n := int64(len(text) / 4)
		if n < 1 {
			n = 1
		}
		return n
	default:
		return Estimate(text)
	}
}

func (e *Estimator) countOpenAI(text string) int64 {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			e.encoding = enc
		}
	})

	if e.encoding == nil {
		return Estimate(text)
	}

	return int64(len(e.encoding.Encode(text, nil, nil)))
}

// Estimate is the provider-agnostic fallback: ~4 characters per token,
// adjusted for punctuation-dense text like code and JSON.
func Estimate(text string) int64 {
	cleaned := whitespace.ReplaceAllString(strings.TrimSpace(text), " ")

	charCount := int64(len(cleaned))
	special := int64(len(specialChars.FindAllString(text, -1)))

	estimated := charCount/4 + special/2
	if estimated < 1 {
		estimated = 1
	}

	return estimated
}

// EstimateGeneration predicts the cost of a prompt-generation request from
// its complexity and inputs. The result is capped by the caller's tier.
func EstimateGeneration(description, complexity string, includeExamples bool, optimizationGoals int) int64 {
	var estimated int64
	switch complexity {
	case "simple":
		estimated = 1500
	case "complex":
		estimated = 5000
	case "medium", "moderate":
		estimated = 3000
	default:
		estimated = 2000
	}

	estimated += int64(len(description) / 4)

	if includeExamples {
		estimated += 1000
	}

	estimated += int64(optimizationGoals) * 200

	return estimated
}
