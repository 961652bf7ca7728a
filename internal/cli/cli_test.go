package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"resumescan/internal/config"
	"resumescan/internal/errors"
	"resumescan/internal/fetch"
	"resumescan/internal/store"
	"resumescan/internal/types"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			DefaultFormat:    "json",
			SupportedFormats: []string{"json", "text", "markdown"},
		},
		Storage:  config.StorageConfig{AllowedPrefixes: []string{"https://utfs.io/"}},
		Database: config.DatabaseConfig{Driver: "memory"},
	}
}

func execute(t *testing.T, cfg *config.Config, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	return Execute(context.Background(), cfg, errors.NewNopLogger())
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)

	if !strings.HasPrefix(buf.String(), "resumescan version dev\n") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestSubmitWritesJob(t *testing.T) {
	out := filepath.Join(t.TempDir(), "job.json")

	err := execute(t, testConfig(), "submit",
		"--owner", "user-1",
		"--file-reference", "https://utfs.io/f/abc.pdf",
		"--file-name", "Jane Doe.pdf",
		"--output", out,
		"--format", "json")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var view types.JobView
	if err := json.Unmarshal(data, &view); err != nil {
		t.Fatalf("output is not a job: %v", err)
	}
	if view.Status != types.StatusPending || view.Title != "Jane Doe" || view.ID == "" {
		t.Errorf("unexpected job: %+v", view)
	}
}

func TestSubmitRejectsForeignStorage(t *testing.T) {
	err := execute(t, testConfig(), "submit",
		"--owner", "user-1",
		"--file-reference", "https://example.com/abc.pdf",
		"--output", "")
	if code := errors.CodeOf(err); code != errors.ErrCodeInvalidFileSource {
		t.Errorf("expected %s, got %v", errors.ErrCodeInvalidFileSource, err)
	}
}

func TestWorkerRequiresQueue(t *testing.T) {
	err := execute(t, testConfig(), "worker")
	if code := errors.CodeOf(err); code != errors.ErrCodeInvalidConfig {
		t.Errorf("expected %s, got %v", errors.ErrCodeInvalidConfig, err)
	}
}

func TestNewFetcherRoutesSchemes(t *testing.T) {
	f, err := newFetcher(context.Background(), testConfig())
	if err != nil {
		t.Fatal(err)
	}
	router, ok := f.(*fetch.Router)
	if !ok {
		t.Fatalf("expected *fetch.Router, got %T", f)
	}
	schemes := router.Schemes()
	slices.Sort(schemes)
	if !slices.Equal(schemes, []string{"file", "http", "https"}) {
		t.Errorf("schemes = %v", schemes)
	}
}

func TestOpenStoreDefaultsToMemory(t *testing.T) {
	st, err := openStore(context.Background(), testConfig(), errors.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := st.(*store.Memory); !ok {
		t.Errorf("expected memory store, got %T", st)
	}
}

func TestWithFriendlyMessage(t *testing.T) {
	err := withFriendlyMessage(errors.NewIOError(errors.ErrCodeEmptyDocument, "no text", nil))
	if !strings.HasPrefix(err.Error(), "This PDF contains no readable text.") {
		t.Errorf("unexpected message: %v", err)
	}
	if errors.CodeOf(err) != errors.ErrCodeEmptyDocument {
		t.Errorf("code lost through wrapping: %v", err)
	}

	usage := errors.NewValidationError(errors.ErrCodeInvalidFormat, "not a PDF", nil)
	if withFriendlyMessage(usage) != error(usage) {
		t.Error("usage errors should be returned unchanged")
	}
}

func TestFriendlyView(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	job, err := st.Create(ctx, store.CreateParams{OwnerID: "user-1", FileReference: "https://utfs.io/f/a.pdf"})
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Fail(ctx, job.ID, errors.ErrCodeCorruptDocument, "malformed xref table"); err != nil {
		t.Fatal(err)
	}
	job, err = st.Get(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}

	v := friendlyView(job)
	if v.Error == nil || v.Error.Code != errors.ErrCodeCorruptDocument {
		t.Fatalf("unexpected error view: %+v", v.Error)
	}
	if strings.Contains(v.Error.Message, "xref") {
		t.Errorf("internal reason leaked: %q", v.Error.Message)
	}
}

func TestRunRequiresAPIKey(t *testing.T) {
	err := execute(t, testConfig(), "run", "some-id", "--format", "json")
	if code := errors.CodeOf(err); code != errors.ErrCodeMissingAPIKey {
		t.Errorf("expected %s, got %v", errors.ErrCodeMissingAPIKey, err)
	}
}
