package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/franckalain/macrotrack/internal/models"
)

var requiredFields = []string{"calories", "protein", "carbs", "fat", "details"}

// StripCodeFences removes Markdown code-fence markers and surrounding whitespace.
func StripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// ParseContent decodes the model's message content into a result.
// Any failure is reported as KindInvalidJSON.
func ParseContent(content string) (*models.AnalysisResult, error) {
	cleaned := StripCodeFences(content)

	// Check the keys first; a missing number would otherwise decode as zero.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, NewError(KindInvalidJSON, "content is not a JSON object", err)
	}
	for _, field := range requiredFields {
		v, ok := raw[field]
		if !ok || string(v) == "null" {
			return nil, NewError(KindInvalidJSON, fmt.Sprintf("missing required field %q", field), nil)
		}
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, NewError(KindInvalidJSON, "content does not match result schema", err)
	}
	if result.Calories < 0 || result.Protein < 0 || result.Carbs < 0 || result.Fat < 0 {
		return nil, NewError(KindInvalidJSON, "negative nutrition value", nil)
	}
	result.Details = strings.TrimSpace(result.Details)
	return &result, nil
}

// parseCompletion decodes a 200 response body and parses its first choice.
func parseCompletion(body []byte) (*models.AnalysisResult, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, NewError(KindInvalidResponse, "failed to decode completion envelope", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil ||
		strings.TrimSpace(*resp.Choices[0].Message.Content) == "" {
		return nil, NewError(KindNoContent, "completion has no message content", nil)
	}
	return ParseContent(*resp.Choices[0].Message.Content)
}

// apiErrorMessage extracts the upstream error message, falling back to the raw body.
func apiErrorMessage(body []byte) string {
	var e apiErrorBody
	if err := json.Unmarshal(body, &e); err == nil && e.Error != nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(body))
}
