package ml

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/franckalain/macrotrack/internal/analysis"
	"github.com/franckalain/macrotrack/internal/connectivity"
	"github.com/franckalain/macrotrack/internal/models"
)

// OpenAIConfig holds configuration for a chat-completion back-end
type OpenAIConfig struct {
	BaseConfig
	Endpoint     string `json:"endpoint"`
	Model        string `json:"model"`
	APIKey       string `json:"api_key"`
	ProbeAddress string `json:"probe_address"`
}

// Load loads the OpenAI configuration
func (c *OpenAIConfig) Load() error {
	if err := c.LoadConfig(c.ConfigPath, "openai", c); err != nil {
		return err
	}

	c.Endpoint = envDefault(c.Endpoint, "OPENAI_ENDPOINT")
	c.Model = envDefault(c.Model, "OPENAI_MODEL")
	c.APIKey = envDefault(c.APIKey, "OPENAI_API_KEY")
	c.ProbeAddress = envDefault(c.ProbeAddress, "OPENAI_PROBE_ADDRESS")

	if c.Endpoint == "" {
		c.Endpoint = analysis.DefaultEndpoint
	}
	if c.Model == "" {
		c.Model = analysis.DefaultModel
	}
	return nil
}

// OpenAIModel implements the Model interface on top of analysis.Client
type OpenAIModel struct {
	config OpenAIConfig
	client *analysis.Client
	logger *zap.Logger
}

// OpenAIModelFactory implements ModelFactory for OpenAI models
type OpenAIModelFactory struct {
	config OpenAIConfig
	logger *zap.Logger
}

// NewOpenAIModelFactory creates a new OpenAI model factory
func NewOpenAIModelFactory(config OpenAIConfig, logger *zap.Logger) *OpenAIModelFactory {
	return &OpenAIModelFactory{config: config, logger: logger}
}

// CreateModel creates a new OpenAI model instance
func (f *OpenAIModelFactory) CreateModel() (Model, error) {
	return &OpenAIModel{
		config: f.config,
		logger: f.logger,
	}, nil
}

// Load builds the client and its connectivity probe
func (m *OpenAIModel) Load(ctx context.Context) error {
	if m.config.APIKey == "" {
		return fmt.Errorf("missing API key: set api_key or OPENAI_API_KEY")
	}

	probe := &connectivity.Probe{Address: m.config.ProbeAddress, Timeout: connectivity.DefaultTimeout}
	if probe.Address == "" {
		var err error
		probe, err = connectivity.NewProbe(m.config.Endpoint)
		if err != nil {
			return fmt.Errorf("invalid endpoint %q: %w", m.config.Endpoint, err)
		}
	}

	m.client = analysis.New(analysis.Config{
		Endpoint: m.config.Endpoint,
		APIKey:   m.config.APIKey,
		Model:    m.config.Model,
	}, probe, nil, m.logger.Named("openai"))

	m.logger.Info("openai model loaded",
		zap.String("endpoint", m.config.Endpoint),
		zap.String("model", m.config.Model),
		zap.String("probe", probe.Address))
	return nil
}

// Analyze forwards to the analysis client
func (m *OpenAIModel) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	if m.client == nil {
		return nil, analysis.NewError(analysis.KindUnknown, "model not loaded", nil)
	}
	return m.client.Analyze(ctx, req)
}

func (m *OpenAIModel) Name() string { return "openai/" + m.config.Model }
