package llm

import (
	"errors"
	"strings"

	"github.com/codereliant/pod-doctor/internal/models"
)

// Validation errors
var (
	ErrEmptyResponse     = errors.New("generation service returned empty text")
	ErrMalformedResponse = errors.New("generation service returned malformed response")
)

// Validate checks that a completion carries usable text and converts it into
// a RecommendationResponse. It is the last line of defense against a degraded
// upstream returning a technically-200 but useless payload.
func Validate(res CompletionResponse, fallbackModel string) (models.RecommendationResponse, error) {
	if len(res.Choices) == 0 {
		return models.RecommendationResponse{}, ErrMalformedResponse
	}

	text := strings.TrimSpace(res.Choices[0].Message.Content)
	if text == "" {
		return models.RecommendationResponse{}, ErrEmptyResponse
	}

	model := res.Model
	if model == "" {
		model = fallbackModel
	}

	return models.RecommendationResponse{
		Text:  text,
		Model: model,
	}, nil
}
