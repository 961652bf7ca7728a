package ai

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"resumescan/internal/config"
	"resumescan/internal/errors"

	"github.com/fsnotify/fsnotify"
)

// PromptWatcher reloads prompt files into a PromptSet when they change on
// disk. A file that fails to load leaves the previous prompts in place.
type PromptWatcher struct {
	mu sync.Mutex

	cfg     config.PromptConfig
	prompts *PromptSet

	fsWatcher     *fsnotify.Watcher
	debounceDelay time.Duration
	debounceTimer *time.Timer

	stopChan   chan struct{}
	reloadChan chan struct{}
	done       chan struct{}

	logger  *errors.Logger
	running bool
}

// NewPromptWatcher watches cfg.SystemFile and cfg.UserFile
func NewPromptWatcher(cfg config.PromptConfig, prompts *PromptSet, debounceDelay time.Duration, logger *errors.Logger) *PromptWatcher {
	if debounceDelay == 0 {
		debounceDelay = time.Second
	}
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	return &PromptWatcher{
		cfg:           cfg,
		prompts:       prompts,
		debounceDelay: debounceDelay,
		stopChan:      make(chan struct{}),
		reloadChan:    make(chan struct{}, 1),
		done:          make(chan struct{}),
		logger:        logger,
	}
}

func (pw *PromptWatcher) files() []string {
	var files []string
	if pw.cfg.SystemFile != "" {
		files = append(files, pw.cfg.SystemFile)
	}
	if pw.cfg.UserFile != "" {
		files = append(files, pw.cfg.UserFile)
	}
	return files
}

// Start begins watching. It is a no-op when no prompt files are configured.
func (pw *PromptWatcher) Start() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.running {
		return fmt.Errorf("prompt watcher is already running")
	}
	files := pw.files()
	if len(files) == 0 {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch directories so editors that replace files by rename are seen.
	dirs := map[string]bool{}
	for _, file := range files {
		dir := filepath.Dir(file)
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	pw.fsWatcher = watcher
	pw.running = true
	go pw.watchLoop()

	pw.logger.Info("Prompt file watcher started", "files", files, "debounce_delay", pw.debounceDelay)
	return nil
}

// Stop stops the watcher and waits for its loop to exit
func (pw *PromptWatcher) Stop() error {
	pw.mu.Lock()
	if !pw.running {
		pw.mu.Unlock()
		return nil
	}
	close(pw.stopChan)
	if pw.debounceTimer != nil {
		pw.debounceTimer.Stop()
	}
	pw.running = false
	pw.mu.Unlock()

	<-pw.done
	err := pw.fsWatcher.Close()
	pw.logger.Info("Prompt file watcher stopped")
	return err
}

func (pw *PromptWatcher) watchLoop() {
	defer close(pw.done)
	for {
		select {
		case event, ok := <-pw.fsWatcher.Events:
			if !ok {
				return
			}
			if pw.isWatched(event) {
				pw.scheduleReload()
			}

		case err, ok := <-pw.fsWatcher.Errors:
			if !ok {
				return
			}
			pw.logger.LogError(err, "Prompt watcher error")

		case <-pw.reloadChan:
			if err := pw.Reload(); err != nil {
				pw.logger.LogError(err, "Prompt reload failed, keeping previous prompts")
			}

		case <-pw.stopChan:
			return
		}
	}
}

func (pw *PromptWatcher) isWatched(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	for _, file := range pw.files() {
		if filepath.Clean(event.Name) == filepath.Clean(file) {
			return true
		}
	}
	return false
}

func (pw *PromptWatcher) scheduleReload() {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.debounceTimer != nil {
		pw.debounceTimer.Stop()
	}
	pw.debounceTimer = time.AfterFunc(pw.debounceDelay, func() {
		select {
		case pw.reloadChan <- struct{}{}:
		default:
		}
	})
}

// Reload reads both prompt files and swaps them in together
func (pw *PromptWatcher) Reload() error {
	next := pw.prompts.Load()

	if pw.cfg.SystemFile != "" {
		content, err := config.LoadPromptFile(pw.cfg.SystemFile)
		if err != nil {
			return err
		}
		next.System = content
	}
	if pw.cfg.UserFile != "" {
		content, err := config.LoadPromptFile(pw.cfg.UserFile)
		if err != nil {
			return err
		}
		if err := config.ValidateUserPrompt(content); err != nil {
			return fmt.Errorf("user prompt file '%s': %w", pw.cfg.UserFile, err)
		}
		next.User = content
	}

	pw.prompts.Store(next)
	pw.logger.Info("Prompts reloaded from files",
		"system_length", len(next.System),
		"user_length", len(next.User))
	return nil
}
