package common

import (
	"fmt"
	"slices"

	"resumescan/internal/formatters"
)

// ValidateOutputFormat checks format against the configured formats and
// against what the formatter registry can render.
func ValidateOutputFormat(format string, supportedFormats []string) error {
	available := GetSupportedFormats(supportedFormats)
	if slices.Contains(available, format) {
		return nil
	}

	return fmt.Errorf("unsupported output format '%s'. Supported formats: %v",
		format, available)
}

// GetSupportedFormats returns the configured formats the registry can
// render, in configured order. With nothing configured every registered
// format is returned, sorted.
func GetSupportedFormats(supportedFormats []string) []string {
	registered := formatters.GlobalRegistry.GetSupportedFormats()
	if len(supportedFormats) == 0 {
		slices.Sort(registered)
		return registered
	}

	out := make([]string, 0, len(supportedFormats))
	for _, format := range supportedFormats {
		if slices.Contains(registered, format) {
			out = append(out, format)
		}
	}
	return out
}
