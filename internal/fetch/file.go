package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
)

// FileFetcher reads file:// references from the local filesystem.
type FileFetcher struct {
	maxBytes int64
}

func NewFileFetcher(maxBytes int64) *FileFetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &FileFetcher{maxBytes: maxBytes}
}

func (f *FileFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := url.Parse(ref)
	if err != nil {
		return nil, downloadFailed("Failed to download PDF: invalid file reference", err)
	}

	file, err := os.Open(u.Path)
	if err != nil {
		return nil, downloadFailed("Failed to download PDF: cannot open file", err)
	}
	defer func() {
		_ = file.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(file, f.maxBytes+1))
	if err != nil {
		return nil, downloadFailed("Failed to download PDF: reading file", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, downloadFailed(fmt.Sprintf("Failed to download PDF: file exceeds %d bytes", f.maxBytes), nil)
	}
	return data, nil
}

// FileReference converts a local path into a file:// reference.
func FileReference(path string) string {
	return (&url.URL{Scheme: "file", Path: path}).String()
}
