package formatters

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"resumescan/internal/types"
)

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	registry.RegisterFormatter("json", "any", &JSONFormatter{})
	registry.RegisterFormatter("text", "AnalysisResult", &AnalysisTextFormatter{})
	registry.RegisterFormatter("markdown", "AnalysisResult", &AnalysisMarkdownFormatter{})
	registry.RegisterFormatter("text", "JobView", &JobTextFormatter{})
	registry.RegisterFormatter("markdown", "JobView", &JobMarkdownFormatter{})
	registry.RegisterFormatter("text", "JobList", &JobListTextFormatter{})
	registry.RegisterFormatter("markdown", "JobList", &JobListTextFormatter{})

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	dataType := getDataType(data)

	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		if formatter, exists := formatters["any"]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all supported formats
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	return formats
}

func getDataType(data any) string {
	switch data.(type) {
	case types.AnalysisResult, *types.AnalysisResult:
		return "AnalysisResult"
	case types.JobView:
		return "JobView"
	case []types.JobView:
		return "JobList"
	default:
		return "any"
	}
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData) + "\n", nil
}

func (jf *JSONFormatter) SupportedType() string {
	return "any"
}

func asResult(data any) (types.AnalysisResult, error) {
	switch v := data.(type) {
	case types.AnalysisResult:
		return v, nil
	case *types.AnalysisResult:
		if v != nil {
			return *v, nil
		}
	}
	return types.AnalysisResult{}, fmt.Errorf("expected AnalysisResult, got %T", data)
}

// AnalysisTextFormatter renders an analysis as plain text
type AnalysisTextFormatter struct{}

func (atf *AnalysisTextFormatter) Format(data any) (string, error) {
	result, err := asResult(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder
	writeAnalysisText(&output, result)
	return output.String(), nil
}

func (atf *AnalysisTextFormatter) SupportedType() string {
	return "AnalysisResult"
}

func writeAnalysisText(output *strings.Builder, result types.AnalysisResult) {
	output.WriteString("=== RESUME ANALYSIS ===\n\n")
	fmt.Fprintf(output, "Overall Score: %d/100\n", result.OverallScore)
	if result.EstimatedSalary != "" {
		fmt.Fprintf(output, "Estimated Salary: %s\n", result.EstimatedSalary)
	}
	if len(result.ExtractedSkills) > 0 {
		fmt.Fprintf(output, "Skills: %s\n", strings.Join(result.ExtractedSkills, ", "))
	}
	output.WriteString("\n")

	for _, section := range result.Sections() {
		fmt.Fprintf(output, "=== %s ===\n", strings.ToUpper(section.Name))
		fmt.Fprintf(output, "Score: %d/100\n", section.Feedback.Score)
		for _, tip := range section.Feedback.Tips {
			marker := "-"
			if tip.Kind == types.TipGood {
				marker = "+"
			}
			fmt.Fprintf(output, "  %s %s\n", marker, tip.Tip)
			if tip.Explanation != nil && *tip.Explanation != "" {
				fmt.Fprintf(output, "      %s\n", *tip.Explanation)
			}
		}
		output.WriteString("\n")
	}
}

// AnalysisMarkdownFormatter renders an analysis as markdown
type AnalysisMarkdownFormatter struct{}

func (amf *AnalysisMarkdownFormatter) Format(data any) (string, error) {
	result, err := asResult(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder
	writeAnalysisMarkdown(&output, result, "#")
	return output.String(), nil
}

func (amf *AnalysisMarkdownFormatter) SupportedType() string {
	return "AnalysisResult"
}

func writeAnalysisMarkdown(output *strings.Builder, result types.AnalysisResult, level string) {
	fmt.Fprintf(output, "%s Resume Analysis\n\n", level)
	fmt.Fprintf(output, "**Overall Score:** %d/100\n\n", result.OverallScore)
	if result.EstimatedSalary != "" {
		fmt.Fprintf(output, "**Estimated Salary:** %s\n\n", result.EstimatedSalary)
	}
	if len(result.ExtractedSkills) > 0 {
		fmt.Fprintf(output, "**Skills:** %s\n\n", strings.Join(result.ExtractedSkills, ", "))
	}

	output.WriteString("| Section | Score |\n|---|---|\n")
	for _, section := range result.Sections() {
		fmt.Fprintf(output, "| %s | %d |\n", section.Name, section.Feedback.Score)
	}
	output.WriteString("\n")

	for _, section := range result.Sections() {
		if len(section.Feedback.Tips) == 0 {
			continue
		}
		fmt.Fprintf(output, "%s# %s\n\n", level, section.Name)
		for _, tip := range section.Feedback.Tips {
			label := "Improve"
			if tip.Kind == types.TipGood {
				label = "Good"
			}
			fmt.Fprintf(output, "- **%s:** %s", label, tip.Tip)
			if tip.Explanation != nil && *tip.Explanation != "" {
				fmt.Fprintf(output, " _%s_", *tip.Explanation)
			}
			output.WriteString("\n")
		}
		output.WriteString("\n")
	}
}

// JobTextFormatter renders a job and, once completed, its analysis
type JobTextFormatter struct{}

func (jtf *JobTextFormatter) Format(data any) (string, error) {
	job, ok := data.(types.JobView)
	if !ok {
		return "", fmt.Errorf("expected JobView, got %T", data)
	}

	var output strings.Builder
	fmt.Fprintf(&output, "Resume:  %s\n", job.ID)
	fmt.Fprintf(&output, "Owner:   %s\n", job.OwnerID)
	if job.Title != "" {
		fmt.Fprintf(&output, "Title:   %s\n", job.Title)
	}
	fmt.Fprintf(&output, "Status:  %s\n", job.Status)
	fmt.Fprintf(&output, "Updated: %s\n", job.UpdatedAt.Format(time.RFC3339))
	if job.Error != nil {
		fmt.Fprintf(&output, "Error:   %s (%s)\n", job.Error.Message, job.Error.Code)
	}
	if job.AnalysisPayload != nil {
		output.WriteString("\n")
		writeAnalysisText(&output, *job.AnalysisPayload)
	}
	return output.String(), nil
}

func (jtf *JobTextFormatter) SupportedType() string {
	return "JobView"
}

// JobMarkdownFormatter renders a job as markdown
type JobMarkdownFormatter struct{}

func (jmf *JobMarkdownFormatter) Format(data any) (string, error) {
	job, ok := data.(types.JobView)
	if !ok {
		return "", fmt.Errorf("expected JobView, got %T", data)
	}

	var output strings.Builder
	title := job.Title
	if title == "" {
		title = job.ID
	}
	fmt.Fprintf(&output, "# %s\n\n", title)
	fmt.Fprintf(&output, "- **ID:** `%s`\n", job.ID)
	fmt.Fprintf(&output, "- **Status:** %s\n", job.Status)
	if job.CompanyName != "" {
		fmt.Fprintf(&output, "- **Company:** %s\n", job.CompanyName)
	}
	if job.Error != nil {
		fmt.Fprintf(&output, "- **Error:** %s (`%s`)\n", job.Error.Message, job.Error.Code)
	}
	output.WriteString("\n")
	if job.AnalysisPayload != nil {
		writeAnalysisMarkdown(&output, *job.AnalysisPayload, "##")
	}
	return output.String(), nil
}

func (jmf *JobMarkdownFormatter) SupportedType() string {
	return "JobView"
}

// JobListTextFormatter renders one line per job
type JobListTextFormatter struct{}

func (jlf *JobListTextFormatter) Format(data any) (string, error) {
	jobs, ok := data.([]types.JobView)
	if !ok {
		return "", fmt.Errorf("expected []JobView, got %T", data)
	}
	if len(jobs) == 0 {
		return "No resumes found.\n", nil
	}

	var output strings.Builder
	for _, job := range jobs {
		score := "-"
		if job.AnalysisPayload != nil {
			score = fmt.Sprintf("%d", job.AnalysisPayload.OverallScore)
		}
		fmt.Fprintf(&output, "%s  %-10s  %3s  %s\n", job.ID, job.Status, score, job.Title)
	}
	return output.String(), nil
}

func (jlf *JobListTextFormatter) SupportedType() string {
	return "JobList"
}

// Global formatter registry
var GlobalRegistry = NewFormatterRegistry()
