package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	appErrors "resumescan/internal/errors"
	"resumescan/internal/fetch"
	"resumescan/internal/store"
	"resumescan/internal/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// healthHandler reports store reachability, model availability and
// circuit breaker state
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.healthCheckTimeout())
	defer cancel()

	response := map[string]any{
		"status":  "healthy",
		"service": "resumescan",
		"version": s.Version,
	}
	overallHealthy := true

	storeStatus := map[string]any{"available": true}
	if err := s.Store.Ping(ctx); err != nil {
		storeStatus["available"] = false
		storeStatus["error"] = err.Error()
		overallHealthy = false
	}
	response["store"] = storeStatus

	if s.Models != nil {
		modelInfo := s.Models.GetModelInfo(ctx)
		response["ai_model"] = modelInfo
		if modelInfo == nil || !modelInfo.Available {
			overallHealthy = false
		}

		breakers := s.Models.GetCircuitBreakerStats()
		response["circuit_breakers"] = breakers
		if healthy, ok := breakers["overall_healthy"].(bool); ok && !healthy {
			overallHealthy = false
		}
	}

	status := http.StatusOK
	if !overallHealthy {
		response["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

func (s *Server) healthCheckTimeout() time.Duration {
	if s.HealthTimeout > 0 {
		return s.HealthTimeout
	}
	return 10 * time.Second
}

// statsHandler provides server statistics including rate limiting info
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"service": "resumescan",
		"version": s.Version,
		"server": map[string]any{
			"max_request_size_bytes": s.MaxRequestSize,
			"queue_enabled":          s.Queue != nil,
		},
	}

	if s.RateLimiter != nil {
		response["rate_limiting"] = s.RateLimiter.GetStats()
	} else {
		response["rate_limiting"] = map[string]any{"enabled": false}
	}
	if s.ScanLimiter != nil {
		response["scan_limiting"] = s.ScanLimiter.GetStats()
	} else {
		response["scan_limiting"] = map[string]any{"enabled": false}
	}

	if s.RateLimit != nil {
		response["rate_limit_config"] = map[string]any{
			"enabled":          s.RateLimit.Enabled,
			"requests_per_min": s.RateLimit.RequestsPerMin,
			"burst_capacity":   s.RateLimit.BurstCapacity,
			"by_ip":            s.RateLimit.ByIP,
			"by_api_key":       s.RateLimit.ByAPIKey,
		}
	}

	if s.Dispatcher != nil {
		response["dispatcher"] = s.Dispatcher.Stats()
	}

	writeJSON(w, http.StatusOK, response)
}

// createResumeHandler stores a PENDING job. With ?run=async the analysis is
// triggered straight away.
func (s *Server) createResumeHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.Observability.Tracer("resumescan.api").Start(r.Context(), "api.create_resume")
	defer span.End()

	var req store.CreateParams
	if err := parseJSONRequest(r, &req); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "validation"))
		writeErrorResponse(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	params, err := req.Normalize()
	if err != nil {
		span.RecordError(err)
		s.writeAppError(w, err)
		return
	}
	if err := fetch.ValidateReference(params.FileReference, s.AllowedPrefixes); err != nil {
		span.RecordError(err)
		s.writeAppError(w, err)
		return
	}
	refundScan, ok := s.allowScan(w, r, params.OwnerID)
	if !ok {
		span.SetStatus(codes.Error, "scan limit exceeded")
		return
	}

	job, err := s.Store.Create(ctx, params)
	if err != nil {
		refundScan()
		span.RecordError(err)
		s.writeAppError(w, err)
		return
	}
	span.SetAttributes(attribute.String("resume.id", job.ID))
	s.Logger.Info("Resume created", "resume_id", job.ID, "owner_id", job.OwnerID)

	if r.URL.Query().Get("run") != "async" {
		writeJSON(w, http.StatusCreated, s.view(job))
		return
	}
	if err := s.trigger(ctx, job.ID); err != nil {
		span.RecordError(err)
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.view(job))
}

// getResumeHandler returns one job with its current status.
func (s *Server) getResumeHandler(w http.ResponseWriter, r *http.Request) {
	job, err := s.Store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(job))
}

// listResumesHandler lists an owner's jobs, newest first.
func (s *Server) listResumesHandler(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("ownerId")
	if ownerID == "" {
		writeErrorResponse(w, "Missing owner", "ownerId query parameter is required", http.StatusBadRequest)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeErrorResponse(w, "Invalid limit", "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	jobs, err := s.Store.ListByOwner(r.Context(), ownerID, limit)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	views := make([]types.JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, s.view(job))
	}
	writeJSON(w, http.StatusOK, ListResponse{Resumes: views, Count: len(views)})
}

// analyzeResumeHandler triggers a run for a PENDING or FAILED job. A
// COMPLETED job is returned as is; a PROCESSING one is a conflict.
func (s *Server) analyzeResumeHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.Observability.Tracer("resumescan.api").Start(r.Context(), "api.analyze_resume")
	defer span.End()

	id := r.PathValue("id")
	span.SetAttributes(attribute.String("resume.id", id))

	job, err := s.Store.Get(ctx, id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	switch job.Status() {
	case types.StatusCompleted:
		writeJSON(w, http.StatusOK, s.view(job))
		return
	case types.StatusProcessing:
		s.writeAppError(w, appErrors.NewValidationError(appErrors.ErrCodeJobConflict, "resume is already being analyzed", nil))
		return
	}

	if err := s.trigger(ctx, id); err != nil {
		span.RecordError(err)
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.view(job))
}

// trigger hands id to the queue when one is configured and to the
// in-process dispatcher otherwise.
func (s *Server) trigger(ctx context.Context, id string) error {
	if s.Queue != nil {
		return s.Queue.Enqueue(ctx, id)
	}
	if s.Dispatcher == nil {
		return appErrors.NewConfigError(appErrors.ErrCodeInvalidConfig, "no analysis runner configured", nil)
	}
	if !s.Dispatcher.Dispatch(id) {
		return appErrors.NewValidationError(appErrors.ErrCodeJobConflict, "resume is already being analyzed", nil).
			WithContext("resume_id", id)
	}
	return nil
}

// view renders a job for clients. Failure reasons are replaced with the
// friendly message for their code.
func (s *Server) view(job *types.Job) types.JobView {
	v := job.View()
	if v.Error != nil {
		v.Error.Message = appErrors.FriendlyMessage(appErrors.NewInternalError(v.Error.Code, v.Error.Message, nil))
	}
	return v
}

// parseJSONRequest parses JSON request body into the provided struct
func parseJSONRequest(r *http.Request, v any) error {
	if r.Header.Get("Content-Type") != "application/json" {
		return fmt.Errorf("content-type must be application/json")
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return fmt.Errorf("request body too large (limit is %d bytes)", maxBytesErr.Limit)
		}
		return fmt.Errorf("failed to read request body: %w", err)
	}
	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Printf("Failed to close request body: %v", err)
		}
	}()

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	return nil
}

// statusFor maps an application error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case appErrors.ErrCodeInvalidRequest, appErrors.ErrCodeInvalidFileSource:
		return http.StatusBadRequest
	case appErrors.ErrCodeJobNotFound:
		return http.StatusNotFound
	case appErrors.ErrCodeJobConflict:
		return http.StatusConflict
	case appErrors.ErrCodeQueueFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError writes err as an ErrorResponse. Internal details are
// logged, not returned.
func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	appErr, ok := appErrors.As(err)
	if !ok {
		s.Logger.LogError(err, "Request failed")
		writeErrorResponse(w, "Internal error", appErrors.FriendlyMessage(err), http.StatusInternalServerError)
		return
	}

	status := statusFor(appErr.Code)
	message := appErr.Message
	if status >= http.StatusInternalServerError {
		s.Logger.LogError(err, "Request failed")
		message = appErrors.FriendlyMessage(err)
	}

	writeJSONError(w, status, ErrorResponse{
		Error:      http.StatusText(status),
		Message:    message,
		Code:       appErr.Code,
		Violations: appErr.Violations,
	})
}

// writeErrorResponse writes a standardized error response
func writeErrorResponse(w http.ResponseWriter, error, message string, statusCode int) {
	writeJSONError(w, statusCode, ErrorResponse{
		Error:   error,
		Message: message,
	})
}

func writeJSONError(w http.ResponseWriter, statusCode int, response ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	err := json.NewEncoder(w).Encode(response)
	if err != nil {
		log.Printf("Failed to encode error response: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
