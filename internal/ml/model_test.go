package ml

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/franckalain/macrotrack/internal/analysis"
	"github.com/franckalain/macrotrack/internal/models"
)

func TestNewModelUnsupported(t *testing.T) {
	_, err := NewModel("carrier-pigeon", "", nil)
	assert.ErrorContains(t, err, "unsupported model type")
}

func TestLocalModelDeterministic(t *testing.T) {
	m, err := NewModel("local", "", zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, m.Load(context.Background()))
	assert.Equal(t, "local", m.Name())

	ctx := context.Background()
	a, err := m.Analyze(ctx, models.AnalysisRequest{Name: "Apple"})
	require.NoError(t, err)
	b, err := m.Analyze(ctx, models.AnalysisRequest{Name: " apple "})
	require.NoError(t, err)
	assert.Equal(t, a.Protein, b.Protein)
	assert.Equal(t, a.Carbs, b.Carbs)
	assert.Equal(t, a.Fat, b.Fat)
	assert.Equal(t, 4*a.Protein+4*a.Carbs+9*a.Fat, a.Calories)

	double, err := m.Analyze(ctx, models.AnalysisRequest{Name: "apple", AmountGrams: 200})
	require.NoError(t, err)
	assert.Equal(t, 2*a.Protein, double.Protein)
	assert.Equal(t, 2*a.Carbs, double.Carbs)
	assert.Equal(t, 2*a.Fat, double.Fat)
}

func TestLocalModelValidates(t *testing.T) {
	m := &LocalModel{}
	ctx := context.Background()

	_, err := m.Analyze(ctx, models.AnalysisRequest{Name: "   "})
	assert.ErrorIs(t, err, analysis.ErrInvalidInput)

	_, err = m.Analyze(ctx, models.AnalysisRequest{Image: []byte("not an image")})
	assert.ErrorIs(t, err, analysis.ErrInvalidInput)
}

func TestLocalModelImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for x := 0; x < 32; x++ {
		for y := 0; y < 32; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 8), uint8(y * 8), 90, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	m := &LocalModel{}
	res, err := m.Analyze(context.Background(), models.AnalysisRequest{Image: buf.Bytes()})
	require.NoError(t, err)
	assert.Equal(t, "photographed meal", res.Details)
}

func TestLocalModelCanceled(t *testing.T) {
	m := &LocalModel{config: LocalConfig{LatencyMS: 10_000}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Analyze(ctx, models.AnalysisRequest{Name: "toast"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenAIConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openai.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"endpoint":"http://127.0.0.1:9/v1/chat/completions","model":"gpt-test","api_key":"sk-file"}`), 0o600))
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg := OpenAIConfig{BaseConfig: BaseConfig{ConfigPath: path}}
	require.NoError(t, cfg.Load())
	assert.Equal(t, "gpt-test", cfg.Model)
	assert.Equal(t, "sk-file", cfg.APIKey, "file values win over env")
	assert.Equal(t, "http://127.0.0.1:9/v1/chat/completions", cfg.Endpoint)
}

func TestOpenAIConfigEnvFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("OPENAI_ENDPOINT", "")

	cfg := OpenAIConfig{}
	require.NoError(t, cfg.Load())
	assert.Equal(t, "sk-env", cfg.APIKey)
	assert.Equal(t, analysis.DefaultModel, cfg.Model)
	assert.Equal(t, analysis.DefaultEndpoint, cfg.Endpoint)
}

func TestOpenAIModelRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	m, err := NewModel("openai", "", nil)
	require.NoError(t, err)
	assert.ErrorContains(t, m.Load(context.Background()), "missing API key")
}

func TestOpenAIModelNotLoaded(t *testing.T) {
	m := &OpenAIModel{}
	_, err := m.Analyze(context.Background(), models.AnalysisRequest{Name: "rice"})
	assert.ErrorIs(t, err, analysis.ErrUnknown)
}

func TestBadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "google.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	_, err := NewModel("google", path, nil)
	assert.ErrorContains(t, err, "failed to parse")

	_, err = NewModel("google", filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.ErrorContains(t, err, "failed to read")
}

func TestGoogleModelRequiresProject(t *testing.T) {
	t.Setenv("GOOGLE_PROJECT_ID", "")
	t.Setenv("GOOGLE_LOCATION", "")
	m, err := NewModel("google", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "google/"+defaultGoogleModel, m.Name())
	assert.Error(t, m.Load(context.Background()))
}

var _ io.Closer = (*GoogleModel)(nil)

func TestGoogleModelCloseBeforeLoad(t *testing.T) {
	m := &GoogleModel{}
	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close())
}

func TestClassifyGoogleError(t *testing.T) {
	quota := status.Error(codes.ResourceExhausted, "quota exceeded")
	err := classifyGoogleError(quota)
	assert.ErrorIs(t, err, analysis.ErrRateLimitExceeded)
	assert.ErrorIs(t, err, quota)

	for _, cause := range []error{
		errors.New("connection reset"),
		status.Error(codes.Internal, "backend error"),
		status.Error(codes.InvalidArgument, "bad image"),
	} {
		err := classifyGoogleError(cause)
		assert.ErrorIs(t, err, analysis.ErrAPIError, "%v", cause)
		assert.Equal(t, analysis.KindAPIError, analysis.KindOf(err))
	}
}

func TestResponseText(t *testing.T) {
	assert.Empty(t, responseText(nil))
	assert.Empty(t, responseText(&genai.GenerateContentResponse{}))
	assert.Empty(t, responseText(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{}},
	}))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{
				genai.Text(`{"calories": 95,`),
				genai.Blob{MIMEType: "image/png", Data: []byte{1}},
				genai.Text(` "protein": 1}`),
			}}},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("ignored")}}},
		},
	}
	assert.Equal(t, `{"calories": 95, "protein": 1}`, responseText(resp))
}
