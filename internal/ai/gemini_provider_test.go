package ai

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"

	"resumescan/internal/config"
	appErrors "resumescan/internal/errors"
	"resumescan/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

type fakeModels struct {
	text  string
	err   error
	model *genai.Model

	calls      int
	lastPrompt string
	lastConfig *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, _ string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.lastConfig = cfg
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.lastPrompt = contents[0].Parts[0].Text
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: f.text}}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     120,
			CandidatesTokenCount: 80,
			TotalTokenCount:      200,
		},
	}, nil
}

func (f *fakeModels) Get(_ context.Context, name string, _ *genai.GetModelConfig) (*genai.Model, error) {
	if f.model == nil {
		return nil, stderrors.New("model not found")
	}
	return f.model, nil
}

func sampleAnalysis() types.AnalysisResult {
	section := func(score int) types.Feedback {
		return types.Feedback{Score: score, Tips: []types.Tip{{Kind: types.TipGood, Tip: "Clear headings"}}}
	}
	return types.AnalysisResult{
		OverallScore:    82,
		EstimatedSalary: "$90,000 - $110,000",
		ExtractedSkills: []string{"Go", "PostgreSQL"},
		ATS:             section(80),
		ToneAndStyle:    section(75),
		Content:         section(70),
		Structure:       section(90),
		Skills:          section(85),
	}
}

func sampleJSON(t *testing.T, mutate func(map[string]any)) string {
	t.Helper()
	raw, err := json.Marshal(sampleAnalysis())
	require.NoError(t, err)
	if mutate == nil {
		return string(raw)
	}
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	mutate(doc)
	raw, err = json.Marshal(doc)
	require.NoError(t, err)
	return string(raw)
}

func testAIConfig() config.AIConfig {
	return config.AIConfig{
		Provider:         "gemini",
		Model:            "gemini-2.5-flash",
		Temperature:      0.2,
		UseSystemPrompts: true,
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	models := &fakeModels{text: sampleJSON(t, nil)}
	analyzer := newGeminiAnalyzer(models, testAIConfig(), nil, nil)

	result, usage, err := analyzer.Analyze(context.Background(), AnalysisRequest{
		ResumeText: "Jane Doe\nGo developer",
	})
	require.NoError(t, err)

	assert.Equal(t, sampleAnalysis(), result)
	require.NotNil(t, usage)
	assert.Equal(t, int64(200), usage.TotalTokens)
	assert.Equal(t, 1, models.calls)

	assert.Equal(t, "application/json", models.lastConfig.ResponseMIMEType)
	require.NotNil(t, models.lastConfig.ResponseSchema)
	assert.Equal(t, genai.TypeObject, models.lastConfig.ResponseSchema.Type)
	assert.NotNil(t, models.lastConfig.SystemInstruction)

	assert.Contains(t, models.lastPrompt, "<resume_content>\nJane Doe\nGo developer\n</resume_content>")
	assert.Contains(t, models.lastPrompt, `"`+DefaultJobTitle+`"`)
	assert.NotContains(t, models.lastPrompt, "Target job description")
}

func TestAnalyzeIncludesJobContext(t *testing.T) {
	models := &fakeModels{text: sampleJSON(t, nil)}
	analyzer := newGeminiAnalyzer(models, testAIConfig(), nil, nil)

	_, _, err := analyzer.Analyze(context.Background(), AnalysisRequest{
		ResumeText:     "resume",
		JobTitle:       "Staff Engineer",
		JobDescription: "Own the platform",
	})
	require.NoError(t, err)
	assert.Contains(t, models.lastPrompt, `"Staff Engineer"`)
	assert.Contains(t, models.lastPrompt, "Target job description:\nOwn the platform")
}

func TestAnalyzeStripsCodeFence(t *testing.T) {
	models := &fakeModels{text: "```json\n" + sampleJSON(t, nil) + "\n```"}
	analyzer := newGeminiAnalyzer(models, testAIConfig(), nil, nil)

	result, _, err := analyzer.Analyze(context.Background(), AnalysisRequest{ResumeText: "resume"})
	require.NoError(t, err)
	assert.Equal(t, 82, result.OverallScore)
}

func TestAnalyzeAcceptsIntegralFloatScores(t *testing.T) {
	raw := sampleJSON(t, nil)
	raw = strings.Replace(raw, `"overallScore":82`, `"overallScore":82.0`, 1)
	raw = strings.Replace(raw, `"score":80`, `"score":80.0`, 1)
	require.Contains(t, raw, `82.0`)
	require.Contains(t, raw, `80.0`)

	analyzer := newGeminiAnalyzer(&fakeModels{text: raw}, testAIConfig(), nil, nil)
	result, _, err := analyzer.Analyze(context.Background(), AnalysisRequest{ResumeText: "resume"})
	require.NoError(t, err)
	assert.Equal(t, sampleAnalysis(), result)
}

func TestNormalizeNumbersKeepsFractions(t *testing.T) {
	out, err := integralNumbers([]byte(`{"a":72.0,"b":[1e2,2.5],"c":"72.0","d":[]}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":72,"b":[100,2.5],"c":"72.0","d":[]}`, string(out))
}

func TestAnalyzeFailures(t *testing.T) {
	upstream := stderrors.New("connection reset")

	tests := []struct {
		name           string
		models         *fakeModels
		req            AnalysisRequest
		wantCode       string
		wantViolations []string
		wantCalls      int
	}{
		{
			name:      "empty resume text",
			models:    &fakeModels{},
			req:       AnalysisRequest{ResumeText: "   "},
			wantCode:  appErrors.ErrCodeInvalidRequest,
			wantCalls: 0,
		},
		{
			name:      "transport failure",
			models:    &fakeModels{err: upstream},
			req:       AnalysisRequest{ResumeText: "resume"},
			wantCode:  appErrors.ErrCodeModelError,
			wantCalls: 1,
		},
		{
			name:      "not json",
			models:    &fakeModels{text: "I cannot help with that"},
			req:       AnalysisRequest{ResumeText: "resume"},
			wantCode:  appErrors.ErrCodeModelError,
			wantCalls: 1,
		},
		{
			name: "score out of range",
			models: &fakeModels{text: sampleJSON(t, func(doc map[string]any) {
				doc["overallScore"] = 150
			})},
			req:            AnalysisRequest{ResumeText: "resume"},
			wantCode:       appErrors.ErrCodeSchemaViolation,
			wantViolations: []string{"overallScore"},
			wantCalls:      1,
		},
		{
			name: "salary is a number",
			models: &fakeModels{text: sampleJSON(t, func(doc map[string]any) {
				doc["estimatedSalary"] = 90000
			})},
			req:            AnalysisRequest{ResumeText: "resume"},
			wantCode:       appErrors.ErrCodeSchemaViolation,
			wantViolations: []string{"estimatedSalary"},
			wantCalls:      1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := newGeminiAnalyzer(tt.models, testAIConfig(), nil, nil)

			result, _, err := analyzer.Analyze(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, appErrors.CodeOf(err))
			assert.Equal(t, types.AnalysisResult{}, result)
			assert.Equal(t, tt.wantCalls, tt.models.calls)

			if tt.wantViolations != nil {
				appErr, ok := appErrors.As(err)
				require.True(t, ok)
				for _, field := range tt.wantViolations {
					found := false
					for _, v := range appErr.Violations {
						if strings.HasPrefix(v, field+":") {
							found = true
						}
					}
					assert.True(t, found, "expected violation for %s in %v", field, appErr.Violations)
				}
			}
		})
	}
}

func TestAnalyzeTransportErrorKeepsCause(t *testing.T) {
	upstream := genai.APIError{Code: 503, Message: "overloaded"}
	analyzer := newGeminiAnalyzer(&fakeModels{err: upstream}, testAIConfig(), nil, nil)

	_, _, err := analyzer.Analyze(context.Background(), AnalysisRequest{ResumeText: "resume"})
	require.Error(t, err)
	assert.True(t, IsRetryableError(err))
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad request", genai.APIError{Code: 400}, false},
		{"permission denied", genai.APIError{Code: 403}, false},
		{"rate limited", genai.APIError{Code: 429}, true},
		{"unavailable", genai.APIError{Code: 503}, true},
		{"googleapi not found", &googleapi.Error{Code: 404}, false},
		{"googleapi server error", &googleapi.Error{Code: 500}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"unclassified", stderrors.New("boom"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}

func TestRenderUserPromptLeavesRequestTextAlone(t *testing.T) {
	out := renderUserPrompt("T={{jobTitle}} D={{jobDescription}} R={{resume}}", AnalysisRequest{
		ResumeText:     "mentions {{jobTitle}}",
		JobTitle:       "SRE",
		JobDescription: "contains {{resume}}",
	})
	assert.Equal(t, "T=SRE D=Target job description:\ncontains {{resume}} R=mentions {{jobTitle}}", out)
}

func TestGetModelInfo(t *testing.T) {
	analyzer := newGeminiAnalyzer(&fakeModels{model: &genai.Model{DisplayName: "Gemini Flash", Version: "001"}}, testAIConfig(), nil, nil)
	info := analyzer.GetModelInfo(context.Background())
	assert.True(t, info.Available)
	assert.Equal(t, "Gemini Flash", info.DisplayName)

	analyzer = newGeminiAnalyzer(&fakeModels{}, testAIConfig(), nil, nil)
	info = analyzer.GetModelInfo(context.Background())
	assert.False(t, info.Available)
	assert.NotEmpty(t, info.Error)
}

func TestCleanJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, cleanJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSON("```\n{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, cleanJSON("  {\"a\":1}  "))
}
