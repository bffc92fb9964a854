package templating

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
	"text/template"

	"github.com/yegors/interview-scribe/pkg/logger"
)

// Engine handles template loading, caching, and rendering
type Engine struct {
	templateCache map[string]*template.Template
	cacheMutex    sync.RWMutex
	funcs         template.FuncMap
	logger        *logger.Logger
}

// NewEngine creates a new template engine
func NewEngine(log *logger.Logger) *Engine {
	return &Engine{
		templateCache: make(map[string]*template.Template),
		funcs: template.FuncMap{
			"trim":  strings.TrimSpace,
			"words": func(s string) int { return len(strings.Fields(s)) },
			"lines": func(s string) int {
				if s == "" {
					return 0
				}
				return strings.Count(s, "\n") + 1
			},
		},
		logger: log.Named("template-engine"),
	}
}

// RenderFile renders the template stored at templatePath
func (e *Engine) RenderFile(templatePath string, data any) (string, error) {
	tmpl, err := e.getTemplate(templatePath, func() (string, error) {
		content, err := os.ReadFile(templatePath)
		if err != nil {
			return "", fmt.Errorf("failed to read template file '%s': %w", templatePath, err)
		}
		return string(content), nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to get template: %w", err)
	}
	return e.execute(templatePath, tmpl, data)
}

// RenderText renders an in-memory template, cached under name
func (e *Engine) RenderText(name, text string, data any) (string, error) {
	tmpl, err := e.getTemplate(name, func() (string, error) { return text, nil })
	if err != nil {
		return "", fmt.Errorf("failed to get template: %w", err)
	}
	return e.execute(name, tmpl, data)
}

func (e *Engine) execute(name string, tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	rendered := buf.String()
	e.logger.Debug("Template rendered successfully",
		logger.String("template", name),
		logger.Int("rendered_length", len(rendered)))

	return rendered, nil
}

// getTemplate retrieves a template from cache or loads it with load
func (e *Engine) getTemplate(name string, load func() (string, error)) (*template.Template, error) {
	e.cacheMutex.RLock()
	if tmpl, exists := e.templateCache[name]; exists {
		e.cacheMutex.RUnlock()
		return tmpl, nil
	}
	e.cacheMutex.RUnlock()

	e.cacheMutex.Lock()
	defer e.cacheMutex.Unlock()

	// Double-check in case another goroutine loaded it while we were waiting
	if tmpl, exists := e.templateCache[name]; exists {
		return tmpl, nil
	}

	content, err := load()
	if err != nil {
		return nil, err
	}
	tmpl, err := e.parse(name, content)
	if err != nil {
		return nil, err
	}

	e.templateCache[name] = tmpl
	e.logger.Debug("Template loaded and cached", logger.String("template", name))

	return tmpl, nil
}

func (e *Engine) parse(name, content string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(e.funcs).Option("missingkey=error").Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", name, err)
	}
	return tmpl, nil
}

// ReloadTemplate forces a template file to be reloaded from disk
func (e *Engine) ReloadTemplate(templatePath string) error {
	content, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read template file '%s': %w", templatePath, err)
	}
	tmpl, err := e.parse(templatePath, string(content))
	if err != nil {
		return err
	}

	e.cacheMutex.Lock()
	e.templateCache[templatePath] = tmpl
	e.cacheMutex.Unlock()

	e.logger.Info("Template reloaded", logger.String("template_path", templatePath))
	return nil
}

// CachedCount returns the number of parsed templates held in the cache
func (e *Engine) CachedCount() int {
	e.cacheMutex.RLock()
	defer e.cacheMutex.RUnlock()
	return len(e.templateCache)
}
