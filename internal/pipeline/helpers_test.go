package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"resumescan/internal/ai"
	appErrors "resumescan/internal/errors"
	"resumescan/internal/extract"
	"resumescan/internal/fetch"
	"resumescan/internal/schema"
	"resumescan/internal/store"
	"resumescan/internal/types"

	"github.com/stretchr/testify/require"
)

// buildPDF assembles a one-page PDF whose page content is stream.
func buildPDF(stream string) []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

var (
	textPDF  = buildPDF("BT /F1 12 Tf 72 712 Td (Jane Doe Backend Engineer Go PostgreSQL) Tj ET")
	blankPDF = buildPDF("72 72 100 100 re f")
)

func sampleResult(score int) types.AnalysisResult {
	section := types.Feedback{Score: score, Tips: []types.Tip{{Kind: types.TipImprove, Tip: "Quantify impact"}}}
	return types.AnalysisResult{
		OverallScore:    score,
		EstimatedSalary: "$80,000 - $95,000",
		ExtractedSkills: []string{"Go", "PostgreSQL"},
		ATS:             section,
		ToneAndStyle:    section,
		Content:         section,
		Structure:       section,
		Skills:          section,
	}
}

func resultJSON(t *testing.T, score int) string {
	t.Helper()
	raw, err := json.Marshal(sampleResult(score))
	require.NoError(t, err)
	return string(raw)
}

// fileServer serves PDFs by path; unknown paths are 404.
func fileServer(t *testing.T, files map[string][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// rawAnalyzer stands in for the model: respond returns the raw document the
// model would produce, which then goes through the real schema check.
type rawAnalyzer struct {
	respond func(req ai.AnalysisRequest) (string, error)

	mu       sync.Mutex
	requests []ai.AnalysisRequest
}

func staticAnalyzer(raw string) *rawAnalyzer {
	return &rawAnalyzer{respond: func(ai.AnalysisRequest) (string, error) { return raw, nil }}
}

func (a *rawAnalyzer) Analyze(_ context.Context, req ai.AnalysisRequest) (types.AnalysisResult, *ai.TokenUsage, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()

	raw, err := a.respond(req)
	if err != nil {
		return types.AnalysisResult{}, nil, appErrors.NewAIError(appErrors.ErrCodeModelError,
			"Failed to generate resume analysis", err)
	}

	if err := schema.AnalysisValidator.Validate([]byte(raw)); err != nil {
		var ve *schema.ValidationError
		if errors.As(err, &ve) {
			return types.AnalysisResult{}, nil, appErrors.NewSchemaViolation(ve.Paths())
		}
		return types.AnalysisResult{}, nil, appErrors.NewAIError(appErrors.ErrCodeModelError,
			"response is not valid JSON", err)
	}

	var result types.AnalysisResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return types.AnalysisResult{}, nil, appErrors.NewAIError(appErrors.ErrCodeModelError,
			"response is not valid JSON", err)
	}
	return result, &ai.TokenUsage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150}, nil
}

func (a *rawAnalyzer) calls() []ai.AnalysisRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ai.AnalysisRequest(nil), a.requests...)
}

// countingStore counts creates and status-affecting writes.
type countingStore struct {
	store.Store
	creates atomic.Int64
	updates atomic.Int64
}

func (s *countingStore) Create(ctx context.Context, p store.CreateParams) (*types.Job, error) {
	s.creates.Add(1)
	return s.Store.Create(ctx, p)
}

func (s *countingStore) SetStatus(ctx context.Context, id string, status types.Status, reason string) error {
	s.updates.Add(1)
	return s.Store.SetStatus(ctx, id, status, reason)
}

func (s *countingStore) Fail(ctx context.Context, id, code, reason string) error {
	s.updates.Add(1)
	return s.Store.Fail(ctx, id, code, reason)
}

func (s *countingStore) BeginProcessing(ctx context.Context, id string) (*types.Job, error) {
	s.updates.Add(1)
	return s.Store.BeginProcessing(ctx, id)
}

func (s *countingStore) Complete(ctx context.Context, id string, result types.AnalysisResult) error {
	s.updates.Add(1)
	return s.Store.Complete(ctx, id, result)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []StatusEvent
	err    error
}

func (p *recordingPublisher) PublishStatus(_ context.Context, event StatusEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) statuses() []types.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Status, len(p.events))
	for i, e := range p.events {
		out[i] = e.Status
	}
	return out
}

type harness struct {
	store     *countingStore
	publisher *recordingPublisher
	orch      *Orchestrator
}

func newHarness(t *testing.T, analyzer ai.Analyzer) *harness {
	t.Helper()
	h := &harness{
		store:     &countingStore{Store: store.NewMemory()},
		publisher: &recordingPublisher{},
	}
	orch, err := NewOrchestrator(Deps{
		Store:     h.store,
		Fetcher:   fetch.NewHTTPFetcher(0, 0),
		Extractor: extract.NewPDFExtractor(nil),
		Analyzer:  analyzer,
		Publisher: h.publisher,
	})
	require.NoError(t, err)
	h.orch = orch
	return h
}

func (h *harness) create(t *testing.T, ref, title string) *types.Job {
	t.Helper()
	job, err := h.store.Create(context.Background(), store.CreateParams{
		OwnerID:       "owner-1",
		FileReference: ref,
		FileName:      "resume.pdf",
		Title:         title,
	})
	require.NoError(t, err)
	return job
}

func (h *harness) get(t *testing.T, id string) *types.Job {
	t.Helper()
	job, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return job
}

// funcRunner adapts a function to JobRunner.
type funcRunner func(ctx context.Context, id string) error

func (f funcRunner) Run(ctx context.Context, id string) error { return f(ctx, id) }
