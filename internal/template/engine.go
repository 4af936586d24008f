// Package template renders review request emails with Liquid.
package template

import (
	"fmt"
	"strings"

	"github.com/osteele/liquid"
)

// Engine holds a compiled review request template
type Engine struct {
	subject *liquid.Template
	html    *liquid.Template
	text    *liquid.Template
}

// NewEngine compiles tmpl. A template without an HTML or text part renders
// that part empty.
func NewEngine(tmpl Template) (*Engine, error) {
	le := liquid.NewEngine()
	le.RegisterFilter("first_name", func(s string) string {
		if fields := strings.Fields(s); len(fields) > 0 {
			return fields[0]
		}
		return s
	})

	e := &Engine{}
	var err error
	if e.subject, err = parse(le, "subject", tmpl.Subject); err != nil {
		return nil, err
	}
	if e.html, err = parse(le, "html", tmpl.HTML); err != nil {
		return nil, err
	}
	if e.text, err = parse(le, "text", tmpl.Text); err != nil {
		return nil, err
	}
	return e, nil
}

func parse(le *liquid.Engine, name, src string) (*liquid.Template, error) {
	if src == "" {
		return nil, nil
	}
	t, err := le.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("invalid %s template: %w", name, err)
	}
	return t, nil
}

// Render renders a review request for one customer
func (e *Engine) Render(req ReviewRequest) (*RenderResult, error) {
	b := req.bindings()
	result := &RenderResult{}

	var err error
	if result.Subject, err = render(e.subject, b); err != nil {
		return nil, fmt.Errorf("failed to render subject: %w", err)
	}
	result.Subject = strings.TrimSpace(result.Subject)

	if result.HTML, err = render(e.html, b); err != nil {
		return nil, fmt.Errorf("failed to render html: %w", err)
	}
	if result.Text, err = render(e.text, b); err != nil {
		return nil, fmt.Errorf("failed to render text: %w", err)
	}
	return result, nil
}

func render(t *liquid.Template, b map[string]any) (string, error) {
	if t == nil {
		return "", nil
	}
	out, err := t.RenderString(b)
	if err != nil {
		return "", err
	}
	return out, nil
}
