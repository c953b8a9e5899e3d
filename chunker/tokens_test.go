package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApproxCounter(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{text: "", want: 0},
		{text: "a", want: 1},
		{text: "abcd", want: 1},
		{text: "abcde", want: 2},
		{text: "人工智能", want: 1},
		{text: "人工智能新", want: 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ApproxCounter{}.Count(tt.text), "text %q", tt.text)
	}
}

func TestApproxCounter_Monotonic(t *testing.T) {
	text := "Regulators opened a new inquiry into cloud pricing."
	c := ApproxCounter{}
	for i := range len(text) {
		assert.LessOrEqual(t, c.Count(text[:i]), c.Count(text[:i+1]))
	}
}
