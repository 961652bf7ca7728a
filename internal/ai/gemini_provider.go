package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"resumescan/internal/config"
	appErrors "resumescan/internal/errors"
	"resumescan/internal/schema"
	"resumescan/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

// DefaultJobTitle is used when a resume is analyzed without a target role.
const DefaultJobTitle = "General Application"

// AnalysisRequest is the input to one analysis call
type AnalysisRequest struct {
	ResumeText     string
	JobTitle       string
	JobDescription string
}

// TokenUsage represents token usage information from AI responses
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// Analyzer turns resume text into a validated analysis
type Analyzer interface {
	Analyze(ctx context.Context, req AnalysisRequest) (types.AnalysisResult, *TokenUsage, error)
}

// ModelInfo represents information about the AI model
type ModelInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version,omitempty"`
	Available   bool   `json:"available"`
	Error       string `json:"error,omitempty"`
}

// modelClient is the subset of genai.Models used here
type modelClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	Get(ctx context.Context, model string, config *genai.GetModelConfig) (*genai.Model, error)
}

// GeminiAnalyzer implements Analyzer on the Gemini API
type GeminiAnalyzer struct {
	models         modelClient
	config         config.AIConfig
	prompts        *PromptSet
	circuitBreaker *AICircuitBreaker
	modelBreaker   *ModelCircuitBreaker
	validator      *schema.Validator
	logger         *appErrors.Logger
}

var _ Analyzer = (*GeminiAnalyzer)(nil)

// NewGeminiAnalyzer creates a Gemini-backed analyzer. Each analyzer owns its
// client; nothing is shared through package state.
func NewGeminiAnalyzer(ctx context.Context, cfg config.AIConfig, prompts *PromptSet, logger *appErrors.Logger) (*GeminiAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, appErrors.NewConfigError(appErrors.ErrCodeMissingAPIKey,
			"Gemini API key is not configured", nil)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, appErrors.NewAIError(appErrors.ErrCodeAIServiceFailed,
			"Failed to create Gemini client", err)
	}

	return newGeminiAnalyzer(client.Models, cfg, prompts, logger), nil
}

func newGeminiAnalyzer(models modelClient, cfg config.AIConfig, prompts *PromptSet, logger *appErrors.Logger) *GeminiAnalyzer {
	if logger == nil {
		logger = appErrors.NewNopLogger()
	}
	if prompts == nil {
		prompts = NewPromptSet(cfg.Prompts)
	}
	logger.Debug("Initializing Gemini analyzer",
		"model", cfg.Model,
		"temperature", cfg.Temperature,
		"timeout", cfg.Timeout,
		"use_system_prompts", cfg.UseSystemPrompts,
		"circuit_breaker", cfg.CircuitBreaker.Enabled)

	return &GeminiAnalyzer{
		models:         models,
		config:         cfg,
		prompts:        prompts,
		circuitBreaker: NewAICircuitBreaker("Analyze", cfg.CircuitBreaker, logger),
		modelBreaker:   NewModelCircuitBreaker("Analyze", cfg.CircuitBreaker, logger),
		validator:      schema.AnalysisValidator,
		logger:         logger,
	}
}

// Prompts exposes the prompt set so a watcher can swap it
func (g *GeminiAnalyzer) Prompts() *PromptSet {
	return g.prompts
}

// Analyze makes exactly one model call. Retrying is left to the caller.
func (g *GeminiAnalyzer) Analyze(ctx context.Context, req AnalysisRequest) (types.AnalysisResult, *TokenUsage, error) {
	if strings.TrimSpace(req.ResumeText) == "" {
		return types.AnalysisResult{}, nil, appErrors.NewValidationError(appErrors.ErrCodeInvalidRequest,
			"resume text is required", nil)
	}
	if strings.TrimSpace(req.JobTitle) == "" {
		req.JobTitle = DefaultJobTitle
	}

	ctx, span := otel.Tracer("resumescan.ai.gemini").Start(ctx, "gemini.analyze_resume")
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.provider", "gemini"),
		attribute.String("ai.model", g.config.Model),
		attribute.Float64("ai.temperature", float64(g.config.Temperature)),
		attribute.Int("input.resume_length", len(req.ResumeText)),
		attribute.Int("input.job_description_length", len(req.JobDescription)),
	)

	prompts := g.prompts.Load()
	genaiConfig := g.buildAnalysisConfig(prompts.System)
	userPrompt := renderUserPrompt(prompts.User, req)

	resp, err := g.circuitBreaker.Execute(func() (*genai.GenerateContentResponse, error) {
		return g.models.GenerateContent(ctx, g.config.Model, genai.Text(userPrompt), genaiConfig)
	})
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return types.AnalysisResult{}, nil, appErrors.NewAIError(appErrors.ErrCodeModelError,
			"Failed to generate resume analysis", err)
	}

	usage := extractTokenUsage(resp)
	if usage != nil {
		span.SetAttributes(
			attribute.Int64("ai.tokens.input", usage.InputTokens),
			attribute.Int64("ai.tokens.output", usage.OutputTokens),
			attribute.Int64("ai.tokens.total", usage.TotalTokens),
		)
	}

	text := ""
	if resp != nil {
		text = resp.Text()
	}
	result, err := g.decode(text)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return types.AnalysisResult{}, usage, err
	}

	span.SetAttributes(
		attribute.Bool("success", true),
		attribute.Int("output.overall_score", result.OverallScore),
	)
	return result, usage, nil
}

// decode validates raw model output against the analysis schema before
// unmarshalling it. A document that fails validation yields no result.
func (g *GeminiAnalyzer) decode(text string) (types.AnalysisResult, error) {
	raw := []byte(cleanJSON(text))
	if !json.Valid(raw) {
		return types.AnalysisResult{}, appErrors.NewAIError(appErrors.ErrCodeModelError,
			"response is not valid JSON", nil).WithContext("response_length", len(text))
	}

	if err := g.validator.Validate(raw); err != nil {
		var ve *schema.ValidationError
		if errors.As(err, &ve) {
			g.logger.Warn("Model output failed schema validation", "violations", ve.Paths())
			return types.AnalysisResult{}, appErrors.NewSchemaViolation(ve.Paths())
		}
		return types.AnalysisResult{}, appErrors.NewInternalError(appErrors.ErrCodeAIServiceFailed,
			"Failed to validate model output", err)
	}

	raw, err := integralNumbers(raw)
	if err != nil {
		return types.AnalysisResult{}, appErrors.NewAIError(appErrors.ErrCodeModelError,
			"response is not valid JSON", err)
	}

	var result types.AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return types.AnalysisResult{}, appErrors.NewAIError(appErrors.ErrCodeModelError,
			"response is not valid JSON", err)
	}
	return result, nil
}

// integralNumbers rewrites integral numbers written with a fraction or an
// exponent, such as 72.0 or 7.2e1, as plain integers so they decode into
// int fields.
func integralNumbers(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return json.Marshal(normalizeNumbers(doc))
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
	case json.Number:
		if _, err := t.Int64(); err == nil {
			return t
		}
		if f, err := t.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return json.Number(strconv.FormatInt(int64(f), 10))
		}
	}
	return v
}

// buildAnalysisConfig requests JSON output constrained by the analysis schema
func (g *GeminiAnalyzer) buildAnalysisConfig(systemPrompt string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema.Analysis.ToGenai(),
	}
	if g.config.Temperature > 0 {
		temperature := g.config.Temperature
		cfg.Temperature = &temperature
	}
	if g.config.UseSystemPrompts && systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	return cfg
}

// cleanJSON strips a Markdown code fence the model sometimes wraps output in
func cleanJSON(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// GetModelInfo checks the readiness and availability of the configured model
func (g *GeminiAnalyzer) GetModelInfo(ctx context.Context) *ModelInfo {
	modelInfo := &ModelInfo{Name: g.config.Model}

	timeout := g.config.ModelCheckTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	model, err := g.modelBreaker.ExecuteModel(func() (*genai.Model, error) {
		return g.models.Get(checkCtx, g.config.Model, &genai.GetModelConfig{})
	})
	if err != nil {
		modelInfo.Error = fmt.Sprintf("Failed to get model info: %v", err)
		g.logger.Warn("Model availability check failed", "model", g.config.Model, "error", err.Error())
		return modelInfo
	}

	modelInfo.Available = true
	modelInfo.DisplayName = model.DisplayName
	modelInfo.Version = model.Version
	return modelInfo
}

// GetCircuitBreakerStats returns circuit breaker statistics
func (g *GeminiAnalyzer) GetCircuitBreakerStats() map[string]any {
	return map[string]any{
		"ai_operations":    g.circuitBreaker.GetStats(),
		"model_operations": g.modelBreaker.GetModelStats(),
		"overall_healthy":  g.circuitBreaker.IsHealthy() && g.modelBreaker.IsModelHealthy(),
	}
}

// IsRetryableError reports whether a failed model call is worth repeating.
// Client errors other than 429 are permanent.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.Code)
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return retryableStatus(gErr.Code)
	}

	// Network errors, deadlines and an open breaker are transient.
	return true
}

func retryableStatus(code int) bool {
	switch {
	case code == http.StatusTooManyRequests:
		return true
	case code >= 400 && code < 500:
		return false
	default:
		return true
	}
}

// extractTokenUsage extracts token usage information from Gemini API response
func extractTokenUsage(result *genai.GenerateContentResponse) *TokenUsage {
	if result == nil || result.UsageMetadata == nil {
		return nil
	}

	usage := result.UsageMetadata
	return &TokenUsage{
		InputTokens:  int64(usage.PromptTokenCount),
		OutputTokens: int64(usage.CandidatesTokenCount),
		TotalTokens:  int64(usage.TotalTokenCount),
	}
}
