package types

import (
	"encoding/json"
	"time"
)

// Status is the persisted lifecycle status of a resume analysis job.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// JobState is the lifecycle state of a job. Exactly one of Pending,
// Processing, Completed or Failed.
type JobState interface {
	Status() Status
	isJobState()
}

// Pending is the state of a freshly created job.
type Pending struct{}

// Processing is held while a run owns the job.
type Processing struct {
	StartedAt time.Time
}

// Completed carries the analysis. It is the only state with a payload.
type Completed struct {
	Result      AnalysisResult
	CompletedAt time.Time
}

// Failed records why the last run did not complete.
type Failed struct {
	Code     string
	Reason   string
	FailedAt time.Time
}

func (Pending) Status() Status    { return StatusPending }
func (Processing) Status() Status { return StatusProcessing }
func (Completed) Status() Status  { return StatusCompleted }
func (Failed) Status() Status     { return StatusFailed }

func (Pending) isJobState()    {}
func (Processing) isJobState() {}
func (Completed) isJobState()  {}
func (Failed) isJobState()     {}

// DefaultCompanyName is used when a job is created without a company.
const DefaultCompanyName = "AI Analyzed"

// Job is a persisted resume analysis request.
type Job struct {
	ID             string
	OwnerID        string
	FileReference  string
	FileName       string
	Title          string
	JobDescription string
	CompanyName    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	State          JobState
}

// Status returns the status derived from the job state.
func (j *Job) Status() Status {
	if j.State == nil {
		return StatusPending
	}
	return j.State.Status()
}

// Analysis returns the result for a completed job and nil otherwise.
func (j *Job) Analysis() *AnalysisResult {
	if c, ok := j.State.(Completed); ok {
		r := c.Result.Clone()
		return &r
	}
	return nil
}

// Failure returns the failed state when the job is FAILED.
func (j *Job) Failure() (Failed, bool) {
	f, ok := j.State.(Failed)
	return f, ok
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	out := *j
	if c, ok := j.State.(Completed); ok {
		c.Result = c.Result.Clone()
		out.State = c
	}
	return &out
}

// JobError is the error view of a failed job.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JobView is the wire representation of a job.
type JobView struct {
	ID              string          `json:"id"`
	OwnerID         string          `json:"ownerId"`
	FileReference   string          `json:"fileReference"`
	FileName        string          `json:"fileName,omitempty"`
	Title           string          `json:"title,omitempty"`
	JobDescription  string          `json:"jobDescription,omitempty"`
	CompanyName     string          `json:"companyName,omitempty"`
	Status          Status          `json:"status"`
	AnalysisPayload *AnalysisResult `json:"analysisPayload"`
	Error           *JobError       `json:"error,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// View flattens the job state. The failure message is the stored reason;
// callers that face end users replace it with friendly text.
func (j *Job) View() JobView {
	v := JobView{
		ID:              j.ID,
		OwnerID:         j.OwnerID,
		FileReference:   j.FileReference,
		FileName:        j.FileName,
		Title:           j.Title,
		JobDescription:  j.JobDescription,
		CompanyName:     j.CompanyName,
		Status:          j.Status(),
		AnalysisPayload: j.Analysis(),
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
	if f, ok := j.Failure(); ok {
		v.Error = &JobError{Code: f.Code, Message: f.Reason}
	}
	return v
}

func (j *Job) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.View())
}
