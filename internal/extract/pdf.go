// Package extract turns uploaded documents into plain text.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	appErrors "resumescan/internal/errors"
)

// Extractor converts raw document bytes into plain text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// PDFExtractor reads text from PDF documents.
type PDFExtractor struct {
	logger *appErrors.Logger
}

// NewPDFExtractor returns a PDF extractor. logger may be nil.
func NewPDFExtractor(logger *appErrors.Logger) *PDFExtractor {
	if logger == nil {
		logger = appErrors.NewNopLogger()
	}
	return &PDFExtractor{logger: logger}
}

// Extract returns the text of every page joined by newlines. Documents that
// cannot be parsed yield CORRUPT_DOCUMENT and documents without text yield
// EMPTY_DOCUMENT.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", appErrors.NewContextError(err)
	}
	if len(data) == 0 {
		return "", emptyDocument()
	}

	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = appErrors.NewIOError(appErrors.ErrCodeCorruptDocument,
				"Failed to extract text from PDF", fmt.Errorf("pdf parser panic: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", appErrors.NewIOError(appErrors.ErrCodeCorruptDocument, "Failed to extract text from PDF", err)
	}

	var (
		sb       strings.Builder
		pageErr  error
		numPages = reader.NumPage()
	)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", appErrors.NewContextError(err)
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.Debug("Skipping unreadable PDF page", "page", i, "error", err.Error())
			if pageErr == nil {
				pageErr = fmt.Errorf("page %d: %w", i, err)
			}
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(pageText)
	}

	text = strings.TrimSpace(sb.String())
	if text == "" {
		if pageErr != nil {
			return "", appErrors.NewIOError(appErrors.ErrCodeCorruptDocument, "Failed to extract text from PDF", pageErr)
		}
		return "", emptyDocument()
	}

	e.logger.Debug("Extracted PDF text", "pages", numPages, "chars", len(text))
	return text, nil
}

func emptyDocument() error {
	return appErrors.NewIOError(appErrors.ErrCodeEmptyDocument,
		"This PDF contains no readable text. It might be a scanned image.", nil)
}
