package models

import (
	"time"
)

// DefaultAmountGrams is the portion size used when a caller supplies none.
const DefaultAmountGrams = 100

// AnalysisRequest describes one food item to analyze.
// It is built per user action and consumed by a single Analyze call.
type AnalysisRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	AmountGrams int    `json:"amount_grams"`
	Image       []byte `json:"-"` // raw photo bytes, nil when absent
}

// HasImage reports whether a photo is attached.
func (r AnalysisRequest) HasImage() bool {
	return len(r.Image) > 0
}

// Amount returns the portion size, substituting DefaultAmountGrams for
// missing or non-positive values.
func (r AnalysisRequest) Amount() int {
	if r.AmountGrams <= 0 {
		return DefaultAmountGrams
	}
	return r.AmountGrams
}

// AnalysisResult is the nutrition estimate returned by the remote model.
type AnalysisResult struct {
	Calories int    `json:"calories"` // kcal
	Protein  int    `json:"protein"`  // grams
	Carbs    int    `json:"carbs"`    // grams
	Fat      int    `json:"fat"`      // grams
	Details  string `json:"details"`  // short description of the identified food
}

// Entry sources
const (
	SourceManual = "manual"
	SourcePhoto  = "photo"
)

// FoodEntry is a confirmed food-log record
type FoodEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	AmountGrams int    `json:"amount_grams"`

	Calories int    `json:"calories"`
	Protein  int    `json:"protein"`
	Carbs    int    `json:"carbs"`
	Fat      int    `json:"fat"`
	Details  string `json:"details"`

	Source     string    `json:"source"`
	ConsumedAt time.Time `json:"consumed_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MacroGoals holds the daily targets
type MacroGoals struct {
	Calories  int       `json:"calories"`
	Protein   int       `json:"protein"`
	Carbs     int       `json:"carbs"`
	Fat       int       `json:"fat"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsZero reports whether no goal has been set.
func (g MacroGoals) IsZero() bool {
	return g.Calories == 0 && g.Protein == 0 && g.Carbs == 0 && g.Fat == 0
}
