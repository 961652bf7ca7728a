package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// LoadPromptFile reads a prompt template from disk. Relative paths are
// resolved against the working directory and empty files are rejected.
func LoadPromptFile(filePath string) (string, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for prompt file '%s': %w", filePath, err)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("prompt file not found: %s", absPath)
		}
		return "", fmt.Errorf("failed to read prompt file '%s': %w", absPath, err)
	}

	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return "", fmt.Errorf("prompt file '%s' is empty", absPath)
	}
	return trimmed, nil
}

// loadPromptsFromFiles replaces inline prompts with file contents when a
// file path is configured. The path is kept so the prompt watcher can
// reload it.
func (c *Config) loadPromptsFromFiles() error {
	p := &c.AI.Prompts
	loaded := 0

	if p.SystemFile != "" {
		content, err := LoadPromptFile(p.SystemFile)
		if err != nil {
			return fmt.Errorf("system prompt: %w", err)
		}
		p.System = content
		log.Printf("[CONFIG] Loaded system prompt from file: %s (%d characters)", p.SystemFile, len(content))
		loaded++
	}

	if p.UserFile != "" {
		content, err := LoadPromptFile(p.UserFile)
		if err != nil {
			return fmt.Errorf("user prompt: %w", err)
		}
		if err := ValidateUserPrompt(content); err != nil {
			return fmt.Errorf("user prompt file '%s': %w", p.UserFile, err)
		}
		p.User = content
		log.Printf("[CONFIG] Loaded user prompt from file: %s (%d characters)", p.UserFile, len(content))
		loaded++
	}

	if loaded == 0 && p.System == "" && p.User == "" {
		log.Println("[CONFIG] No custom prompts configured - using built-in defaults")
	}
	return nil
}

// ResumePlaceholder marks where the resume text goes in a user prompt.
const ResumePlaceholder = "{{resume}}"

// ValidateUserPrompt checks that a custom user prompt has somewhere to put
// the resume.
func ValidateUserPrompt(prompt string) error {
	if !strings.Contains(prompt, ResumePlaceholder) {
		return fmt.Errorf("prompt must contain the %s placeholder", ResumePlaceholder)
	}
	return nil
}
