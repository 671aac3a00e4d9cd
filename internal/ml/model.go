package ml

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/franckalain/macrotrack/internal/models"
)

// Model estimates nutrition for a food description or photo
type Model interface {
	// Load initializes the model with its configuration
	Load(ctx context.Context) error
	// Analyze returns the nutrition estimate for one request.
	// Failures are classified *analysis.Error values.
	Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error)
	// Name identifies the back-end in logs and metrics
	Name() string
}

// ModelFactory creates a new model instance based on configuration
type ModelFactory interface {
	// CreateModel creates a new model instance
	CreateModel() (Model, error)
}

// NewModel creates a model of the given type. configPath optionally points at
// a JSON file with the model's settings.
func NewModel(modelType, configPath string, logger *zap.Logger) (Model, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := BaseConfig{ConfigPath: configPath, logger: logger}

	var factory ModelFactory
	switch modelType {
	case "openai":
		config := OpenAIConfig{BaseConfig: base}
		if err := config.Load(); err != nil {
			return nil, fmt.Errorf("failed to load OpenAI config: %w", err)
		}
		factory = NewOpenAIModelFactory(config, logger)
	case "google":
		config := GoogleConfig{BaseConfig: base}
		if err := config.Load(); err != nil {
			return nil, fmt.Errorf("failed to load Google config: %w", err)
		}
		factory = NewGoogleModelFactory(config, logger)
	case "local":
		config := LocalConfig{BaseConfig: base}
		if err := config.Load(); err != nil {
			return nil, fmt.Errorf("failed to load local config: %w", err)
		}
		factory = NewLocalModelFactory(config)
	default:
		return nil, fmt.Errorf("unsupported model type: %s", modelType)
	}
	return factory.CreateModel()
}
