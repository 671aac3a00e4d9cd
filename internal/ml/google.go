package ml

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/franckalain/macrotrack/internal/analysis"
	"github.com/franckalain/macrotrack/internal/connectivity"
	"github.com/franckalain/macrotrack/internal/metrics"
	"github.com/franckalain/macrotrack/internal/models"
)

const defaultGoogleModel = "gemini-1.5-flash"

// GoogleConfig holds configuration for the Google model
type GoogleConfig struct {
	BaseConfig
	ProjectID       string `json:"project_id"`
	Location        string `json:"location"`
	CredentialsFile string `json:"credentials_file"`
	Model           string `json:"model"`
}

// Load loads the Google configuration
func (c *GoogleConfig) Load() error {
	if err := c.LoadConfig(c.ConfigPath, "google", c); err != nil {
		return err
	}

	// Fall back to environment variables if not set
	c.ProjectID = envDefault(c.ProjectID, "GOOGLE_PROJECT_ID")
	c.Location = envDefault(c.Location, "GOOGLE_LOCATION")
	c.CredentialsFile = envDefault(c.CredentialsFile, "GOOGLE_CREDENTIALS_FILE")
	c.Model = envDefault(c.Model, "GOOGLE_MODEL")
	if c.Model == "" {
		c.Model = defaultGoogleModel
	}
	return nil
}

// GoogleModel implements the Model interface for Google's Vertex AI
type GoogleModel struct {
	config   GoogleConfig
	client   *genai.Client
	model    *genai.GenerativeModel
	probe    analysis.ConnectivityProbe
	throttle *analysis.Throttler
	logger   *zap.Logger
}

// GoogleModelFactory implements ModelFactory for Google models
type GoogleModelFactory struct {
	config GoogleConfig
	logger *zap.Logger
}

// NewGoogleModelFactory creates a new Google model factory
func NewGoogleModelFactory(config GoogleConfig, logger *zap.Logger) *GoogleModelFactory {
	return &GoogleModelFactory{config: config, logger: logger}
}

// CreateModel creates a new Google model instance
func (f *GoogleModelFactory) CreateModel() (Model, error) {
	return &GoogleModel{
		config:   f.config,
		throttle: analysis.NewThrottler(analysis.MinRequestInterval, analysis.SystemClock{}),
		logger:   f.logger,
	}, nil
}

// Load initializes the Google model
func (m *GoogleModel) Load(ctx context.Context) error {
	if m.config.ProjectID == "" || m.config.Location == "" {
		return fmt.Errorf("project_id and location are required")
	}

	opts := []option.ClientOption{}
	if m.config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(m.config.CredentialsFile))
	}

	client, err := genai.NewClient(ctx, m.config.ProjectID, m.config.Location, opts...)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	model := client.GenerativeModel(m.config.Model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(analysis.SystemPrompt)}}
	model.SetTemperature(analysis.Temperature)
	model.SetMaxOutputTokens(analysis.MaxOutputTokens)
	model.ResponseMIMEType = "application/json"

	m.client = client
	m.model = model
	m.probe = &connectivity.Probe{
		Address: m.config.Location + "-aiplatform.googleapis.com:443",
		Timeout: connectivity.DefaultTimeout,
	}
	m.logger.Info("google model loaded",
		zap.String("project", m.config.ProjectID),
		zap.String("location", m.config.Location),
		zap.String("model", m.config.Model))
	return nil
}

// Analyze sends one request to Gemini
func (m *GoogleModel) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	start := time.Now()
	result, err := m.analyze(ctx, req)

	outcome := "ok"
	if err != nil {
		outcome = analysis.KindOf(err).String()
		if ctx.Err() != nil {
			outcome = "canceled"
		}
	}
	metrics.AnalysesTotal.WithLabelValues(m.config.Model, outcome).Inc()
	metrics.RequestDurationSeconds.WithLabelValues(m.config.Model).Observe(time.Since(start).Seconds())
	return result, err
}

func (m *GoogleModel) analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	if m.model == nil {
		return nil, analysis.NewError(analysis.KindUnknown, "model not loaded", nil)
	}
	if !analysis.IsReachable(ctx, m.probe) {
		return nil, analysis.NewError(analysis.KindNoConnection, "network unreachable", nil)
	}
	if err := analysis.ValidateRequest(req); err != nil {
		return nil, err
	}

	parts := []genai.Part{genai.Text(analysis.UserPrompt(req))}
	if notes := analysis.UserNotes(req); notes != "" {
		parts = append(parts, genai.Text(notes))
	}
	if req.HasImage() {
		img, err := analysis.OptimizeImage(req.Image, analysis.MaxImageBytes)
		if err != nil {
			return nil, analysis.NewError(analysis.KindInvalidInput, "unreadable image", err)
		}
		metrics.ImageBytes.Observe(float64(len(img.Data)))
		parts = append(parts, genai.Blob{MIMEType: "image/jpeg", Data: img.Data})
	}

	waited, err := m.throttle.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if waited > 0 {
		metrics.ThrottleWaitSeconds.Observe(waited.Seconds())
	}

	callCtx, cancel := context.WithTimeout(ctx, analysis.RequestTimeout)
	defer cancel()

	resp, err := m.model.GenerateContent(callCtx, parts...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyGoogleError(err)
	}

	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return nil, analysis.NewError(analysis.KindNoContent, "empty response", nil)
	}
	return analysis.ParseContent(text)
}

func (m *GoogleModel) Name() string { return "google/" + m.config.Model }

// Close releases the Vertex AI client. It is a no-op before Load.
func (m *GoogleModel) Close() error {
	if m.client == nil {
		return nil
	}
	err := m.client.Close()
	m.client, m.model = nil, nil
	return err
}

func classifyGoogleError(err error) error {
	switch status.Code(err) {
	case codes.ResourceExhausted:
		metrics.AttemptsTotal.WithLabelValues("rate_limited").Inc()
		return analysis.NewError(analysis.KindRateLimitExceeded, "quota exhausted", err)
	default:
		metrics.AttemptsTotal.WithLabelValues("api_error").Inc()
		return analysis.NewError(analysis.KindAPIError, "vertex request failed", err)
	}
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
