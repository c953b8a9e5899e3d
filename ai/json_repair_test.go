package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "valid json untouched",
			input: `{"label":"positive","score":0.8}`,
			want:  `{"label":"positive","score":0.8}`,
		},
		{
			name:  "missing opening quote",
			input: `{"label":"positive", score":0.8}`,
			want:  `{"label":"positive", "score":0.8}`,
		},
		{
			name:  "missing quote after brace",
			input: `{label":"negative"}`,
			want:  `{"label":"negative"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, repairJSON(tt.input))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type answer struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
	}

	t.Run("fenced and broken", func(t *testing.T) {
		var got answer
		err := DecodeJSON("```json\n{\"label\":\"mixed\", score\":0.1}\n```", &got)
		require.NoError(t, err)
		assert.Equal(t, answer{Label: "mixed", Score: 0.1}, got)
	})

	t.Run("not json", func(t *testing.T) {
		var got answer
		err := DecodeJSON("I think it is positive", &got)
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})
}
