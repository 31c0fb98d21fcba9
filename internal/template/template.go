// Package template renders per-controller command templates.
package template

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"runcommand/internal/target"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TemplateEngine parses each distinct command once and renders it per target
type TemplateEngine struct {
	templates map[string]*template.Template
}

// NewTemplateEngine parses every templated command up front so syntax errors
// surface before any connection is made.
func NewTemplateEngine(commands []string) (*TemplateEngine, error) {
	te := &TemplateEngine{templates: make(map[string]*template.Template)}
	for _, c := range commands {
		if !IsTemplate(c) {
			continue
		}
		if _, ok := te.templates[c]; ok {
			continue
		}
		tmpl, err := template.New("command").Funcs(templateFuncs()).Option("missingkey=error").Parse(c)
		if err != nil {
			return nil, fmt.Errorf("invalid command template %q: %w", c, err)
		}
		te.templates[c] = tmpl
	}
	return te, nil
}

// TemplateContext provides data available in templates
type TemplateContext struct {
	Host     string // controller IPv4 address
	Port     int
	Name     string // inventory name, or the address for plain lists
	Hostname string // hostname reported by the device
}

// NewContext creates a template context for a target once its hostname is known
func NewContext(t target.Target, hostname string) TemplateContext {
	return TemplateContext{
		Host:     t.Host,
		Port:     t.Port,
		Name:     t.Original,
		Hostname: hostname,
	}
}

// Render returns the command for this context. Plain commands are returned
// unchanged.
func (te *TemplateEngine) Render(command string, ctx TemplateContext) (string, error) {
	tmpl, ok := te.templates[command]
	if !ok {
		return command, nil
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("failed to render command template %q: %w", command, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"upper":   strings.ToUpper,
		"lower":   strings.ToLower,
		"title":   cases.Title(language.English).String,
		"trim":    strings.TrimSpace,
		"replace": strings.ReplaceAll,
	}
}

// IsTemplate checks if a command string contains template syntax
func IsTemplate(command string) bool {
	return strings.Contains(command, "{{") && strings.Contains(command, "}}")
}
