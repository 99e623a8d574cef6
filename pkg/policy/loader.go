package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Header directives recognised in the leading comment block of a .rego
// file, e.g. "# severity: error" or "# tags: account, region".
const (
	severityDirective = "severity:"
	tagsDirective     = "tags:"
)

// reloadDelay coalesces the burst of events editors emit on save.
const reloadDelay = 500 * time.Millisecond

// Loader reads custom guardrail policies from disk. Parsed files are
// cached by modification time, so a reload only re-reads what changed.
type Loader struct {
	logger zerolog.Logger

	mu    sync.Mutex
	cache map[string]cachedPolicy

	watcher *fsnotify.Watcher
}

type cachedPolicy struct {
	modTime time.Time
	policy  Policy
}

// NewLoader creates a policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "policy-loader").Logger(),
		cache:  make(map[string]cachedPolicy),
	}
}

// LoadFromPaths loads every policy found under paths. Each path may be a
// file or a directory, which is walked recursively. Any file that cannot
// be parsed fails the whole load: a guardrail set with a silently missing
// member would admit documents it was meant to reject.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Policy, error) {
	var loaded []Policy
	for _, path := range paths {
		policies, err := l.loadFromPath(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", path, err)
		}
		loaded = append(loaded, policies...)
	}

	l.logger.Info().
		Int("total", len(loaded)).
		Int("sources", len(paths)).
		Msg("Custom guardrails loaded")

	return loaded, nil
}

func (l *Loader) loadFromPath(ctx context.Context, path string) ([]Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		p, err := l.loadFromFile(ctx, path)
		if err != nil {
			return nil, err
		}
		return []Policy{*p}, nil
	}
	return l.loadFromDirectory(ctx, path)
}

func (l *Loader) loadFromDirectory(ctx context.Context, dirPath string) ([]Policy, error) {
	var policies []Policy
	err := filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isPolicyFile(path) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		p, err := l.loadFromFile(ctx, path)
		if err != nil {
			return err
		}
		policies = append(policies, *p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	return policies, nil
}

func (l *Loader) loadFromFile(_ context.Context, filePath string) (*Policy, error) {
	if !isPolicyFile(filePath) {
		return nil, fmt.Errorf("unsupported file type: %s", filePath)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	l.mu.Lock()
	cached, ok := l.cache[filePath]
	l.mu.Unlock()
	if ok && cached.modTime.Equal(info.ModTime()) {
		p := cached.policy
		return &p, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var p *Policy
	if strings.HasSuffix(filePath, ".json") {
		p, err = parseJSONPolicy(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filePath, err)
		}
	} else {
		p = parseRegoPolicy(filePath, data)
	}
	if p.Metadata == nil {
		p.Metadata = map[string]interface{}{}
	}
	p.Metadata["source"] = filePath

	l.mu.Lock()
	l.cache[filePath] = cachedPolicy{modTime: info.ModTime(), policy: *p}
	l.mu.Unlock()

	l.logger.Debug().
		Str("path", filePath).
		Str("policy", p.Name).
		Str("severity", string(p.Severity)).
		Msg("Guardrail parsed")

	return p, nil
}

func isPolicyFile(path string) bool {
	switch filepath.Ext(path) {
	case ".rego", ".json":
		return true
	}
	return false
}

// parseRegoPolicy names the policy after its file and reads description,
// severity and tags from the leading comment block.
func parseRegoPolicy(filePath string, data []byte) *Policy {
	content := string(data)
	h := parseHeader(content)

	return &Policy{
		Name:        strings.TrimSuffix(filepath.Base(filePath), ".rego"),
		Description: h.description,
		Rego:        content,
		Severity:    h.severity,
		Enabled:     true,
		Tags:        append([]string{"custom"}, h.tags...),
		CreatedAt:   time.Now(),
	}
}

// parseJSONPolicy decodes a Policy written out as JSON.
func parseJSONPolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse JSON policy: %w", err)
	}
	if p.Name == "" || p.Rego == "" {
		return nil, errors.New("JSON policy requires name and rego")
	}
	if p.Severity == "" {
		p.Severity = SeverityWarning
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	return &p, nil
}

type header struct {
	description string
	severity    Severity
	tags        []string
}

// parseHeader scans comments up to the first line of code. Directive
// lines are consumed; the remaining comment text becomes the description.
func parseHeader(content string) header {
	h := header{severity: SeverityWarning}
	var description []string

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		comment, ok := strings.CutPrefix(trimmed, "#")
		if !ok {
			if len(description) > 0 || h.tags != nil {
				break
			}
			// Code before any comment: allow a header after the package
			// clause but nothing deeper.
			if strings.HasPrefix(trimmed, "package ") || strings.HasPrefix(trimmed, "import ") {
				continue
			}
			break
		}

		comment = strings.TrimSpace(comment)
		switch {
		case comment == "":
		case strings.HasPrefix(comment, severityDirective):
			if sev := parseSeverity(strings.TrimPrefix(comment, severityDirective)); sev != "" {
				h.severity = sev
			}
		case strings.HasPrefix(comment, tagsDirective):
			for _, tag := range strings.Split(strings.TrimPrefix(comment, tagsDirective), ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					h.tags = append(h.tags, tag)
				}
			}
		default:
			description = append(description, comment)
		}
	}

	h.description = strings.Join(description, " ")
	return h
}

func parseSeverity(s string) Severity {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return sev
	}
	return ""
}

// Watch reloads the policies under paths whenever a policy file is
// written, created, removed or renamed, and hands the fresh set to
// reloadFn. A failed reload is logged and the previous set stays active.
// Watching stops when ctx is done or StopWatching is called.
func (l *Loader) Watch(ctx context.Context, paths []string, reloadFn func([]Policy) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	for _, path := range paths {
		if err := addWatch(watcher, path); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
	}
	l.watcher = watcher

	go l.processEvents(ctx, watcher, paths, reloadFn)

	l.logger.Info().Strs("paths", paths).Msg("Watching custom guardrails")
	return nil
}

// addWatch registers path, and every directory below it, with w.
func addWatch(w *fsnotify.Watcher, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return w.Add(path)
	}
	return filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(p)
		}
		return nil
	})
}

func (l *Loader) processEvents(ctx context.Context, w *fsnotify.Watcher, paths []string, reloadFn func([]Policy) error) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

	for {
		select {
		case <-ctx.Done():
			_ = w.Close()
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if event.Op&relevant == 0 || !isPolicyFile(event.Name) {
				continue
			}
			l.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Guardrail file changed")

			l.mu.Lock()
			delete(l.cache, event.Name)
			l.mu.Unlock()

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDelay, func() {
				if err := l.reload(ctx, paths, reloadFn); err != nil {
					l.logger.Error().Err(err).Msg("Guardrail reload failed, keeping previous set")
				}
			})

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (l *Loader) reload(ctx context.Context, paths []string, reloadFn func([]Policy) error) error {
	if ctx.Err() != nil {
		return nil
	}
	policies, err := l.LoadFromPaths(ctx, paths)
	if err != nil {
		return err
	}
	if err := reloadFn(policies); err != nil {
		return fmt.Errorf("failed to apply reloaded policies: %w", err)
	}
	l.logger.Info().Int("count", len(policies)).Msg("Custom guardrails reloaded")
	return nil
}

// StopWatching stops the watcher started by Watch.
func (l *Loader) StopWatching() error {
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}
