package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPromptsFromFiles(t *testing.T) {
	tempDir := t.TempDir()

	systemPromptContent := "Test system prompt for analysis"
	userPromptContent := "Review this resume:\n{{resume}}\n"

	systemPromptFile := filepath.Join(tempDir, "system.analyze.md")
	userPromptFile := filepath.Join(tempDir, "user.analyze.md")

	if err := os.WriteFile(systemPromptFile, []byte(systemPromptContent), 0600); err != nil {
		t.Fatalf("Failed to create test system prompt file: %v", err)
	}
	if err := os.WriteFile(userPromptFile, []byte(userPromptContent), 0600); err != nil {
		t.Fatalf("Failed to create test user prompt file: %v", err)
	}

	config := &Config{
		AI: AIConfig{
			Prompts: PromptConfig{
				System:     "inline system prompt",
				SystemFile: systemPromptFile,
				UserFile:   userPromptFile,
			},
		},
	}

	if err := config.loadPromptsFromFiles(); err != nil {
		t.Fatalf("Failed to load prompts from files: %v", err)
	}

	if config.AI.Prompts.System != systemPromptContent {
		t.Errorf("Expected system prompt '%s', got '%s'", systemPromptContent, config.AI.Prompts.System)
	}
	if config.AI.Prompts.User != strings.TrimSpace(userPromptContent) {
		t.Errorf("Expected trimmed user prompt, got '%s'", config.AI.Prompts.User)
	}
	if config.AI.Prompts.SystemFile != systemPromptFile {
		t.Error("Expected system prompt file path to be preserved")
	}
}

func TestLoadPromptsFromFilesRejectsUserPromptWithoutPlaceholder(t *testing.T) {
	tempDir := t.TempDir()
	userPromptFile := filepath.Join(tempDir, "user.md")
	if err := os.WriteFile(userPromptFile, []byte("no placeholder here"), 0600); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	config := &Config{AI: AIConfig{Prompts: PromptConfig{UserFile: userPromptFile}}}
	err := config.loadPromptsFromFiles()
	if err == nil {
		t.Fatal("Expected error for user prompt without placeholder")
	}
	if !strings.Contains(err.Error(), ResumePlaceholder) {
		t.Errorf("Expected error to mention placeholder, got: %v", err)
	}
}

func TestLoadPromptFile(t *testing.T) {
	tempDir := t.TempDir()

	emptyFile := filepath.Join(tempDir, "empty.md")
	if err := os.WriteFile(emptyFile, []byte("   \n\t  "), 0600); err != nil {
		t.Fatalf("Failed to create empty test file: %v", err)
	}

	validFile := filepath.Join(tempDir, "valid.md")
	if err := os.WriteFile(validFile, []byte("\n  Valid content  \n"), 0600); err != nil {
		t.Fatalf("Failed to create valid test file: %v", err)
	}

	tests := []struct {
		name        string
		path        string
		want        string
		expectError string
	}{
		{name: "valid file", path: validFile, want: "Valid content"},
		{name: "empty file", path: emptyFile, expectError: "is empty"},
		{name: "missing file", path: filepath.Join(tempDir, "missing.md"), expectError: "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadPromptFile(tt.path)
			if tt.expectError != "" {
				if err == nil || !strings.Contains(err.Error(), tt.expectError) {
					t.Fatalf("Expected error containing '%s', got %v", tt.expectError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected '%s', got '%s'", tt.want, got)
			}
		})
	}
}
