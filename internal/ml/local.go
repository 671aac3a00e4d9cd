package ml

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/franckalain/macrotrack/internal/analysis"
	"github.com/franckalain/macrotrack/internal/models"
)

// LocalConfig holds configuration for the local model
type LocalConfig struct {
	BaseConfig
	// LatencyMS simulates upstream latency
	LatencyMS int `json:"latency_ms"`
}

// Load loads the local configuration
func (c *LocalConfig) Load() error {
	if err := c.LoadConfig(c.ConfigPath, "local", c); err != nil {
		return err
	}

	if c.LatencyMS == 0 {
		if v := os.Getenv("LOCAL_LATENCY_MS"); v != "" {
			ms, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid LOCAL_LATENCY_MS: %w", err)
			}
			c.LatencyMS = ms
		}
	}
	return nil
}

// LocalModel produces stable estimates without any network access.
// The same name or image always yields the same per-100g values.
type LocalModel struct {
	config LocalConfig
}

// LocalModelFactory implements ModelFactory for local models
type LocalModelFactory struct {
	config LocalConfig
}

// NewLocalModelFactory creates a new local model factory
func NewLocalModelFactory(config LocalConfig) *LocalModelFactory {
	return &LocalModelFactory{config: config}
}

// CreateModel creates a new local model instance
func (f *LocalModelFactory) CreateModel() (Model, error) {
	return &LocalModel{
		config: f.config,
	}, nil
}

// Load initializes the local model
func (m *LocalModel) Load(ctx context.Context) error {
	return nil
}

// Analyze derives macros from a hash of the input
func (m *LocalModel) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	if err := analysis.ValidateRequest(req); err != nil {
		return nil, err
	}

	h := fnv.New64a()
	details := strings.TrimSpace(req.Name)
	if req.HasImage() {
		img, err := analysis.OptimizeImage(req.Image, analysis.MaxImageBytes)
		if err != nil {
			return nil, analysis.NewError(analysis.KindInvalidInput, "unreadable image", err)
		}
		h.Write(img.Data)
		if details == "" {
			details = "photographed meal"
		}
	} else {
		h.Write([]byte(strings.ToLower(details)))
	}

	if m.config.LatencyMS > 0 {
		t := time.NewTimer(time.Duration(m.config.LatencyMS) * time.Millisecond)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	sum := h.Sum64()
	// per 100g
	protein := int(sum % 30)
	carbs := int((sum >> 8) % 60)
	fat := int((sum >> 16) % 25)

	grams := req.Amount()
	scale := func(v int) int { return v * grams / models.DefaultAmountGrams }
	protein, carbs, fat = scale(protein), scale(carbs), scale(fat)

	return &models.AnalysisResult{
		Calories: 4*protein + 4*carbs + 9*fat,
		Protein:  protein,
		Carbs:    carbs,
		Fat:      fat,
		Details:  details,
	}, nil
}

func (m *LocalModel) Name() string { return "local" }
