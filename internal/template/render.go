package template

import (
	"strings"
)

// Preview is a template rendered for one recipient
type Preview struct {
	Header string `json:"header,omitempty"`
	Body   string `json:"body"`
	Footer string `json:"footer,omitempty"`
}

// Bind pairs the ordered variables with positional values
func Bind(vars []string, values []string) map[string]string {
	out := make(map[string]string, len(vars))
	for i, v := range vars {
		if i < len(values) {
			out[v] = values[i]
		}
	}
	return out
}

// Render substitutes values into the template's text components.
// Placeholders without a value are left unchanged.
func Render(t *Template, values map[string]string) Preview {
	var p Preview
	if c := t.Component(ComponentHeader); c != nil && (c.Format == "" || strings.EqualFold(c.Format, "TEXT")) {
		p.Header = renderText(c.Text, values)
	}
	if c := t.Component(ComponentBody); c != nil {
		p.Body = renderText(c.Text, values)
	}
	if c := t.Component(ComponentFooter); c != nil {
		p.Footer = c.Text
	}
	return p
}

func renderText(text string, values map[string]string) string {
	return varPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		if val, ok := values[name]; ok {
			return val
		}
		return match
	})
}
