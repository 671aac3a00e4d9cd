package analysis

import (
	"fmt"
	"strings"

	"github.com/franckalain/macrotrack/internal/models"
)

// Fixed model parameters.
const (
	Temperature     = 0.7
	MaxOutputTokens = 500
)

// SystemPrompt primes the model as a nutrition analyst returning strict JSON.
const SystemPrompt = `You are a professional nutrition analyst. For the food described or shown, identify:
- the type of dish (salad, stir-fry, main course, snack, dessert, beverage)
- the preparation method
- the main visible or stated ingredients

Estimate calories and macronutrients for the portion size given by the user.

Respond with a single JSON object and nothing else, using exactly these keys:
{"calories": integer, "protein": integer, "carbs": integer, "fat": integer, "details": string}

"protein", "carbs" and "fat" are grams. "details" is a 2-4 word description of the identified food.
All numbers are whole, non-negative integers.`

// ValidateRequest checks the request invariant: a non-blank name or an image.
func ValidateRequest(req models.AnalysisRequest) error {
	if strings.TrimSpace(req.Name) == "" && !req.HasImage() {
		return NewError(KindInvalidInput, "food name or image required", nil)
	}
	return nil
}

// UserPrompt returns the main request text for req.
func UserPrompt(req models.AnalysisRequest) string {
	if req.HasImage() {
		return fmt.Sprintf("Analyze nutritional information for %dg of food in this image", req.Amount())
	}
	return fmt.Sprintf("Analyze nutritional information for %dg of %s", req.Amount(), strings.TrimSpace(req.Name))
}

// UserNotes returns extra context the user typed, or "" when there is none.
// With an image the name is a hint; without one it is already in UserPrompt.
func UserNotes(req models.AnalysisRequest) string {
	var notes []string
	if req.HasImage() {
		if n := strings.TrimSpace(req.Name); n != "" {
			notes = append(notes, "Food name: "+n)
		}
	}
	if d := strings.TrimSpace(req.Description); d != "" {
		notes = append(notes, "Description: "+d)
	}
	return strings.Join(notes, "\n")
}

// chat completion wire types

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type textPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type imageURL struct {
	URL string `json:"url"`
}

type imagePart struct {
	Type     string   `json:"type"`
	ImageURL imageURL `json:"image_url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiErrorBody struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// buildChatRequest assembles the completion body. img is nil for text requests.
func buildChatRequest(model string, req models.AnalysisRequest, img *OptimizedImage) chatRequest {
	system := chatMessage{Role: "system", Content: SystemPrompt}

	var user chatMessage
	notes := UserNotes(req)
	switch {
	case img != nil:
		parts := []any{
			textPart{Type: "text", Text: UserPrompt(req)},
			imagePart{Type: "image_url", ImageURL: imageURL{URL: img.DataURL()}},
		}
		if notes != "" {
			parts = append(parts, textPart{Type: "text", Text: notes})
		}
		user = chatMessage{Role: "user", Content: parts}
	case notes != "":
		user = chatMessage{Role: "user", Content: []any{
			textPart{Type: "text", Text: UserPrompt(req)},
			textPart{Type: "text", Text: notes},
		}}
	default:
		user = chatMessage{Role: "user", Content: UserPrompt(req)}
	}

	return chatRequest{
		Model:       model,
		Messages:    []chatMessage{system, user},
		Temperature: Temperature,
		MaxTokens:   MaxOutputTokens,
	}
}
