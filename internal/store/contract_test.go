package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	appErrors "resumescan/internal/errors"
	"resumescan/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult(score int) types.AnalysisResult {
	section := types.Feedback{Score: score, Tips: []types.Tip{{Kind: types.TipImprove, Tip: "Quantify impact"}}}
	return types.AnalysisResult{
		OverallScore:    score,
		EstimatedSalary: "$80,000 - $95,000",
		ExtractedSkills: []string{"Go"},
		ATS:             section,
		ToneAndStyle:    section,
		Content:         section,
		Structure:       section,
		Skills:          section,
	}
}

func newParams(owner string) CreateParams {
	return CreateParams{
		OwnerID:       owner,
		FileReference: "https://utfs.io/f/" + owner + ".pdf",
		FileName:      "resume.pdf",
	}
}

// runStoreContract exercises behaviour every Store implementation shares.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("create starts pending with defaults", func(t *testing.T) {
		s := newStore(t)
		job, err := s.Create(ctx, newParams("owner-a"))
		require.NoError(t, err)

		assert.NotEmpty(t, job.ID)
		assert.Equal(t, types.StatusPending, job.Status())
		assert.Nil(t, job.Analysis())
		assert.Equal(t, "resume", job.Title)
		assert.Equal(t, types.DefaultCompanyName, job.CompanyName)

		got, err := s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, types.StatusPending, got.Status())
	})

	t.Run("create rejects missing owner", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(ctx, CreateParams{FileReference: "https://utfs.io/f/x"})
		assert.Equal(t, appErrors.ErrCodeInvalidRequest, appErrors.CodeOf(err))
	})

	t.Run("unknown id", func(t *testing.T) {
		s := newStore(t)
		missing := "00000000-0000-0000-0000-000000000000"

		_, err := s.Get(ctx, missing)
		assert.Equal(t, appErrors.ErrCodeJobNotFound, appErrors.CodeOf(err))
		assert.Equal(t, appErrors.ErrCodeJobNotFound, appErrors.CodeOf(s.SetStatus(ctx, missing, types.StatusFailed, "x")))
		assert.Equal(t, appErrors.ErrCodeJobNotFound, appErrors.CodeOf(s.Complete(ctx, missing, sampleResult(50))))
		_, err = s.BeginProcessing(ctx, missing)
		assert.Equal(t, appErrors.ErrCodeJobNotFound, appErrors.CodeOf(err))
	})

	t.Run("complete writes status and payload together", func(t *testing.T) {
		s := newStore(t)
		job, err := s.Create(ctx, newParams("owner-b"))
		require.NoError(t, err)

		_, err = s.BeginProcessing(ctx, job.ID)
		require.NoError(t, err)
		require.NoError(t, s.Complete(ctx, job.ID, sampleResult(77)))

		got, err := s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, types.StatusCompleted, got.Status())
		require.NotNil(t, got.Analysis())
		assert.Equal(t, sampleResult(77), *got.Analysis())
	})

	t.Run("failed clears payload and keeps code", func(t *testing.T) {
		s := newStore(t)
		job, err := s.Create(ctx, newParams("owner-c"))
		require.NoError(t, err)
		_, err = s.BeginProcessing(ctx, job.ID)
		require.NoError(t, err)
		require.NoError(t, s.Complete(ctx, job.ID, sampleResult(60)))

		require.NoError(t, s.Fail(ctx, job.ID, appErrors.ErrCodeDownloadFailed, "Failed to download PDF: 404 Not Found"))

		got, err := s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, types.StatusFailed, got.Status())
		assert.Nil(t, got.Analysis())
		failure, ok := got.Failure()
		require.True(t, ok)
		assert.Equal(t, appErrors.ErrCodeDownloadFailed, failure.Code)
		assert.Equal(t, "Failed to download PDF: 404 Not Found", failure.Reason)
	})

	t.Run("complete requires processing", func(t *testing.T) {
		s := newStore(t)
		job, err := s.Create(ctx, newParams("owner-g"))
		require.NoError(t, err)

		err = s.Complete(ctx, job.ID, sampleResult(10))
		assert.Equal(t, appErrors.ErrCodeJobConflict, appErrors.CodeOf(err), "pending job")

		_, err = s.BeginProcessing(ctx, job.ID)
		require.NoError(t, err)
		require.NoError(t, s.Complete(ctx, job.ID, sampleResult(80)))

		err = s.Complete(ctx, job.ID, sampleResult(20))
		assert.Equal(t, appErrors.ErrCodeJobConflict, appErrors.CodeOf(err), "completed job")
		got, err := s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, 80, got.Analysis().OverallScore)

		other, err := s.Create(ctx, newParams("owner-g"))
		require.NoError(t, err)
		_, err = s.BeginProcessing(ctx, other.ID)
		require.NoError(t, err)
		require.NoError(t, s.Fail(ctx, other.ID, appErrors.ErrCodeModelError, "timed out"))
		err = s.Complete(ctx, other.ID, sampleResult(30))
		assert.Equal(t, appErrors.ErrCodeJobConflict, appErrors.CodeOf(err), "failed job")
		got, err = s.Get(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, types.StatusFailed, got.Status())
	})

	t.Run("empty lists survive a round trip", func(t *testing.T) {
		s := newStore(t)
		job, err := s.Create(ctx, newParams("owner-h"))
		require.NoError(t, err)

		empty := types.Feedback{Score: 35, Tips: []types.Tip{}}
		result := types.AnalysisResult{
			OverallScore:    35,
			ExtractedSkills: []string{},
			ATS:             empty,
			ToneAndStyle:    empty,
			Content:         empty,
			Structure:       empty,
			Skills:          empty,
		}
		want, err := json.Marshal(result)
		require.NoError(t, err)

		_, err = s.BeginProcessing(ctx, job.ID)
		require.NoError(t, err)
		require.NoError(t, s.Complete(ctx, job.ID, result))

		got, err := s.Get(ctx, job.ID)
		require.NoError(t, err)
		out, err := json.Marshal(got.View().AnalysisPayload)
		require.NoError(t, err)
		assert.JSONEq(t, string(want), string(out))
	})

	t.Run("set status refuses completed", func(t *testing.T) {
		s := newStore(t)
		job, err := s.Create(ctx, newParams("owner-d"))
		require.NoError(t, err)

		err = s.SetStatus(ctx, job.ID, types.StatusCompleted, "")
		assert.Equal(t, appErrors.ErrCodeInvalidRequest, appErrors.CodeOf(err))

		require.NoError(t, s.SetStatus(ctx, job.ID, types.StatusProcessing, ""))
		got, err := s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, types.StatusProcessing, got.Status())
	})

	t.Run("begin processing is a compare and swap", func(t *testing.T) {
		s := newStore(t)
		job, err := s.Create(ctx, newParams("owner-e"))
		require.NoError(t, err)

		started, err := s.BeginProcessing(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, types.StatusProcessing, started.Status())

		_, err = s.BeginProcessing(ctx, job.ID)
		assert.Equal(t, appErrors.ErrCodeJobConflict, appErrors.CodeOf(err))

		require.NoError(t, s.Fail(ctx, job.ID, appErrors.ErrCodeModelError, "boom"))
		_, err = s.BeginProcessing(ctx, job.ID)
		require.NoError(t, err, "a failed job may be started again")

		require.NoError(t, s.Complete(ctx, job.ID, sampleResult(90)))
		_, err = s.BeginProcessing(ctx, job.ID)
		assert.Equal(t, appErrors.ErrCodeJobConflict, appErrors.CodeOf(err))
	})

	t.Run("concurrent begin processing has one winner", func(t *testing.T) {
		s := newStore(t)
		job, err := s.Create(ctx, newParams("owner-f"))
		require.NoError(t, err)

		var wins, conflicts atomic.Int32
		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.BeginProcessing(ctx, job.ID)
				switch appErrors.CodeOf(err) {
				case "":
					wins.Add(1)
				case appErrors.ErrCodeJobConflict:
					conflicts.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(15), conflicts.Load())
	})

	t.Run("list by owner is scoped and limited", func(t *testing.T) {
		s := newStore(t)
		owner := fmt.Sprintf("owner-list-%p", t)
		for range 3 {
			_, err := s.Create(ctx, newParams(owner))
			require.NoError(t, err)
		}
		_, err := s.Create(ctx, newParams(owner+"-other"))
		require.NoError(t, err)

		jobs, err := s.ListByOwner(ctx, owner, 0)
		require.NoError(t, err)
		assert.Len(t, jobs, 3)
		for _, j := range jobs {
			assert.Equal(t, owner, j.OwnerID)
		}
		for i := 1; i < len(jobs); i++ {
			assert.False(t, jobs[i].CreatedAt.After(jobs[i-1].CreatedAt), "newest first")
		}

		jobs, err = s.ListByOwner(ctx, owner, 2)
		require.NoError(t, err)
		assert.Len(t, jobs, 2)
	})
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(*testing.T) Store { return NewMemory() })
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	job, err := s.Create(ctx, newParams("owner"))
	require.NoError(t, err)
	_, err = s.BeginProcessing(ctx, job.ID)
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, job.ID, sampleResult(70)))

	first, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	first.Title = "mutated"
	c := first.State.(types.Completed)
	c.Result.ExtractedSkills[0] = "mutated"

	second, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "resume", second.Title)
	assert.Equal(t, "Go", second.Analysis().ExtractedSkills[0])
}

func TestCreateParamsNormalize(t *testing.T) {
	tests := []struct {
		name        string
		params      CreateParams
		wantTitle   string
		wantCompany string
		wantErr     bool
	}{
		{
			name:        "title from file name",
			params:      CreateParams{OwnerID: "u", FileReference: "ref", FileName: "Jane Doe CV.pdf"},
			wantTitle:   "Jane Doe CV",
			wantCompany: types.DefaultCompanyName,
		},
		{
			name:        "explicit values kept",
			params:      CreateParams{OwnerID: "u", FileReference: "ref", Title: " Backend Engineer ", CompanyName: "Acme"},
			wantTitle:   "Backend Engineer",
			wantCompany: "Acme",
		},
		{name: "missing reference", params: CreateParams{OwnerID: "u"}, wantErr: true},
		{name: "blank owner", params: CreateParams{OwnerID: "   ", FileReference: "ref"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.params.Normalize()
			if tt.wantErr {
				require.Error(t, err)
				appErr, ok := appErrors.As(err)
				require.True(t, ok)
				assert.NotEmpty(t, appErr.Violations)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTitle, got.Title)
			assert.Equal(t, tt.wantCompany, got.CompanyName)
		})
	}
}
