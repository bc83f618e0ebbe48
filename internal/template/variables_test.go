package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractVariables(t *testing.T) {
	tests := []struct {
		name       string
		components []Component
		want       []string
	}{
		{
			name: "numeric before named",
			components: []Component{
				{Type: "BODY", Text: "Hi {{2}}, from {{1}} and {{name}}"},
			},
			want: []string{"1", "2", "name"},
		},
		{
			name: "numeric order not string order",
			components: []Component{
				{Type: "BODY", Text: "{{10}} {{2}} {{1}}"},
			},
			want: []string{"1", "2", "10"},
		},
		{
			name: "header and body deduplicated",
			components: []Component{
				{Type: "HEADER", Text: "Order {{1}}"},
				{Type: "BODY", Text: "Dear {{ 1 }}, your code is {{code}}"},
			},
			want: []string{"1", "code"},
		},
		{
			name: "footer and buttons ignored",
			components: []Component{
				{Type: "BODY", Text: "Hello {{1}}"},
				{Type: "FOOTER", Text: "Reply {{stop}}"},
				{Type: "BUTTONS", Text: "{{url}}"},
			},
			want: []string{"1"},
		},
		{
			name: "lowercase component type",
			components: []Component{
				{Type: "body", Text: "{{nome}}"},
			},
			want: []string{"nome"},
		},
		{
			name: "whitespace only token skipped",
			components: []Component{
				{Type: "BODY", Text: "{{ }} and {{a}}"},
			},
			want: []string{"a"},
		},
		{
			name:       "no components",
			components: nil,
			want:       nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractVariables(tt.components))
		})
	}
}

func TestExtractVariablesDistinct(t *testing.T) {
	got := ExtractVariables([]Component{
		{Type: "HEADER", Text: "{{x}}{{x}}"},
		{Type: "BODY", Text: "{{x}} {{y}} {{ y }}"},
	})
	assert.Equal(t, []string{"x", "y"}, got)
}

func TestCompareTokens(t *testing.T) {
	assert.Negative(t, CompareTokens("2", "10"))
	assert.Positive(t, CompareTokens("10", "2"))
	assert.Zero(t, CompareTokens("3", "3"))
	assert.Negative(t, CompareTokens("a", "b"))
	// Mixed pairs use string order
	assert.Negative(t, CompareTokens("10", "a"))
	assert.Negative(t, CompareTokens("2", "name"))
}
