package segment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "simple sentences",
			input:    "Hello world. How are you? I'm fine!",
			expected: []string{"Hello world.", "How are you?", "I'm fine!"},
		},
		{
			name:     "newlines between sentences",
			input:    "First sentence.\nSecond sentence.\n\nThird sentence.",
			expected: []string{"First sentence.", "Second sentence.", "Third sentence."},
		},
		{
			name:     "mixed punctuation runs",
			input:    "Really?! Yes... Of course.",
			expected: []string{"Really?!", "Yes...", "Of course."},
		},
		{
			name:     "closing quote stays with sentence",
			input:    `She said "Hello." Then she left.`,
			expected: []string{`She said "Hello."`, "Then she left."},
		},
		{
			name:     "decimals and domains do not split",
			input:    "Pi is 3.14 roughly. Visit example.com today.",
			expected: []string{"Pi is 3.14 roughly.", "Visit example.com today."},
		},
		{
			name:     "no boundary is one sentence",
			input:    "  a line without an ending  ",
			expected: []string{"a line without an ending"},
		},
		{
			name:     "trailing remainder kept",
			input:    "Done. And then",
			expected: []string{"Done.", "And then"},
		},
		{
			name:     "whitespace only",
			input:    " \n\t ",
			expected: nil,
		},
		{
			name:     "empty",
			input:    "",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Sentences(tt.input))
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 2, EstimateTokens("one"))           // ceil(1.33)
	assert.Equal(t, 3, EstimateTokens("one two"))       // ceil(2.66)
	assert.Equal(t, 4, EstimateTokens("one two three")) // ceil(3.99)
	assert.Equal(t, 14, EstimateTokens(strings.Repeat("w ", 10)))
}

func TestSplitEmpty(t *testing.T) {
	assert.Empty(t, Split("", 100))
	assert.Empty(t, Split("   \n ", 100))
}

func TestSplitGreedyAccumulation(t *testing.T) {
	// Each sentence is 2 words -> 3 tokens.
	text := "One two. Three four. Five six. Seven eight."

	segments := Split(text, 6)
	require.Len(t, segments, 2)

	assert.Equal(t, "One two. Three four.", segments[0].Text)
	assert.Equal(t, 6, segments[0].EstimatedTokens)
	assert.Equal(t, "Five six. Seven eight.", segments[1].Text)

	for i, s := range segments {
		assert.Equal(t, i, s.Index)
	}
}

func TestSplitOversizedSentenceEmittedAlone(t *testing.T) {
	long := strings.TrimSpace(strings.Repeat("word ", 20)) + "."
	text := "Short one. " + long + " Short two."

	segments := Split(text, 5)
	require.Len(t, segments, 3)
	assert.Equal(t, "Short one.", segments[0].Text)
	assert.Equal(t, long, segments[1].Text)
	assert.Greater(t, segments[1].EstimatedTokens, 5)
	assert.Equal(t, "Short two.", segments[2].Text)
}

func TestSplitHardLimit(t *testing.T) {
	long := strings.TrimSpace(strings.Repeat("word ", 20)) + "."

	segments := Options{MaxTokens: 8, HardLimit: 8}.Split(long)
	require.NotEmpty(t, segments)
	for _, s := range segments {
		assert.LessOrEqual(t, s.EstimatedTokens, 8)
	}

	var words []string
	for _, s := range segments {
		words = append(words, strings.Fields(s.Text)...)
	}
	assert.Equal(t, strings.Fields(long), words)
}

func TestSplitBudgetAndLossless(t *testing.T) {
	text := `It was a bright cold day in April, and the clocks were striking thirteen.
Winston Smith, his chin nuzzled into his breast in an effort to escape the vile wind,
slipped quickly through the glass doors of Victory Mansions. Not quickly enough!
Was it? The hallway smelt of boiled cabbage and old rag mats.`

	for _, budget := range []int{1, 5, 12, 20, 40, 1000} {
		segments := Split(text, budget)

		var rejoined []string
		for _, s := range segments {
			sentences := Sentences(s.Text)
			if len(sentences) > 1 {
				assert.LessOrEqual(t, s.EstimatedTokens, budget, "budget %d", budget)
			}
			rejoined = append(rejoined, sentences...)
		}
		assert.Equal(t, Sentences(text), rejoined, "budget %d", budget)
	}
}

func TestSplitDefaultBudget(t *testing.T) {
	segments := Split("One. Two. Three.", 0)
	require.Len(t, segments, 1)
	assert.Equal(t, "One. Two. Three.", segments[0].Text)
}

func TestSplitDeterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 50)
	assert.Equal(t, Split(text, 30), Split(text, 30))
}
