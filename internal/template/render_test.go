package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	tmpl := &Template{
		Components: []Component{
			{Type: "HEADER", Format: "TEXT", Text: "Hi {{1}}"},
			{Type: "BODY", Text: "Your code is {{ code }}. Valid until {{date}}."},
			{Type: "FOOTER", Text: "Reply STOP"},
		},
	}
	vars := tmpl.Variables()
	values := Bind(vars, []string{"Ana", "X1"})

	got := Render(tmpl, values)

	assert.Equal(t, "Hi Ana", got.Header)
	assert.Equal(t, "Your code is X1. Valid until {{date}}.", got.Body)
	assert.Equal(t, "Reply STOP", got.Footer)
}

func TestRenderMediaHeaderSkipped(t *testing.T) {
	tmpl := &Template{
		Components: []Component{
			{Type: "HEADER", Format: "IMAGE"},
			{Type: "BODY", Text: "Hello"},
		},
	}
	got := Render(tmpl, nil)
	assert.Empty(t, got.Header)
	assert.Equal(t, "Hello", got.Body)
}

func TestBind(t *testing.T) {
	assert.Equal(t, map[string]string{"1": "a"}, Bind([]string{"1", "2"}, []string{"a"}))
	assert.Empty(t, Bind(nil, []string{"a"}))
}
