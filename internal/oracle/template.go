package oracle

import (
	"fmt"
	"strings"
	"text/template"
)

// Template renders a prompt from frozen context. Rendering is deterministic:
// the same data always yields the same prompt on every validator.
type Template struct {
	tmpl *template.Template
}

// MustTemplate parses text or panics. Intended for package-level prompts.
func MustTemplate(name, text string) *Template {
	return &Template{tmpl: template.Must(template.New(name).Option("missingkey=error").Parse(text))}
}

func (t *Template) Render(data any) (string, error) {
	var sb strings.Builder
	if err := t.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", t.tmpl.Name(), err)
	}
	return sb.String(), nil
}
