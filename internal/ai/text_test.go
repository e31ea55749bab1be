package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripThinking(t *testing.T) {
	cases := map[string]string{
		"<think>plan\nmore</think>\nAnswer.": "Answer.",
		"no block":                           "no block",
		"Answer.<think>unterminated":         "Answer.",
		"<think>a</think>x<think>b</think>y": "xy",
	}
	for in, want := range cases {
		assert.Equal(t, want, StripThinking(in), in)
	}
}

func TestExtractJSON(t *testing.T) {
	got, err := ExtractJSON("Sure!\n```json\n{\"emotion\": \"joy\"}\n```\nbye")
	require.NoError(t, err)
	assert.Equal(t, `{"emotion": "joy"}`, got)

	got, err = ExtractJSON(`<think>{"no": 1}</think> result: {"core_concept": "heat"} done`)
	require.NoError(t, err)
	assert.Equal(t, `{"core_concept": "heat"}`, got)

	_, err = ExtractJSON("nothing here")
	assert.Error(t, err)

	var v map[string]any
	assert.Error(t, DecodeJSON("{not json}", &v))
}
