// Package fetch downloads uploaded files from the storage backends a file
// reference can point at.
package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	appErrors "resumescan/internal/errors"
)

// Fetcher retrieves the bytes behind a file reference.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, ref string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, ref string) ([]byte, error) {
	return f(ctx, ref)
}

// Router dispatches on the URL scheme of the reference.
type Router struct {
	schemes map[string]Fetcher
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{schemes: make(map[string]Fetcher)}
}

// Handle registers f for the given schemes.
func (r *Router) Handle(f Fetcher, schemes ...string) *Router {
	for _, s := range schemes {
		r.schemes[strings.ToLower(s)] = f
	}
	return r
}

// Schemes lists the registered schemes.
func (r *Router) Schemes() []string {
	out := make([]string, 0, len(r.schemes))
	for s := range r.schemes {
		out = append(out, s)
	}
	return out
}

func (r *Router) Fetch(ctx context.Context, ref string) ([]byte, error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" {
		return nil, appErrors.NewNetworkError(appErrors.ErrCodeDownloadFailed,
			"Failed to download PDF: invalid file reference", err).WithContext("reference", ref)
	}
	f, ok := r.schemes[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, appErrors.NewNetworkError(appErrors.ErrCodeDownloadFailed,
			fmt.Sprintf("Failed to download PDF: unsupported scheme %q", u.Scheme), nil)
	}
	return f.Fetch(ctx, ref)
}

// ValidateReference checks ref against the allowed prefixes. An empty list
// allows everything.
func ValidateReference(ref string, allowedPrefixes []string) error {
	if strings.TrimSpace(ref) == "" {
		return appErrors.NewValidationError(appErrors.ErrCodeInvalidFileSource, "File reference is required", nil)
	}
	if len(allowedPrefixes) == 0 {
		return nil
	}
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(ref, prefix) {
			return nil
		}
	}
	return appErrors.NewValidationError(appErrors.ErrCodeInvalidFileSource, "Invalid file source", nil).
		WithContext("reference", ref)
}

func downloadFailed(message string, cause error) *appErrors.AppError {
	return appErrors.NewNetworkError(appErrors.ErrCodeDownloadFailed, message, cause)
}
