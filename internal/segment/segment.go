// Package segment splits chapter text into bounded segments, one per
// synthesis request.
package segment

import (
	"math"
	"strings"
	"unicode"
)

// TokenFactor approximates tokens per word. It is not a tokenizer.
const TokenFactor = 1.33

// DefaultMaxTokens is used when a non-positive budget is requested.
const DefaultMaxTokens = 4000

// Segment is one slice of chapter text queued for a single synthesis call.
type Segment struct {
	Index           int    // Position within the chapter (0-based, gapless)
	Text            string // Sentences joined by a single space
	EstimatedTokens int    // Sum of the sentence estimates
}

// Options controls segmentation.
type Options struct {
	// MaxTokens is the nominal budget per segment.
	MaxTokens int

	// HardLimit, when positive, splits any single sentence whose estimate
	// exceeds it on word boundaries. Zero keeps oversized sentences whole.
	HardLimit int
}

// Split segments text under maxTokens. Oversized sentences are emitted alone.
func Split(text string, maxTokens int) []Segment {
	return Options{MaxTokens: maxTokens}.Split(text)
}

// Split segments text according to the options.
func (o Options) Split(text string) []Segment {
	budget := o.MaxTokens
	if budget <= 0 {
		budget = DefaultMaxTokens
	}

	var (
		segments []Segment
		current  []string
		tokens   int
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		segments = append(segments, Segment{
			Index:           len(segments),
			Text:            strings.Join(current, " "),
			EstimatedTokens: tokens,
		})
		current = nil
		tokens = 0
	}

	for _, sentence := range o.sentences(text) {
		cost := EstimateTokens(sentence)
		if len(current) > 0 && tokens+cost > budget {
			flush()
		}
		current = append(current, sentence)
		tokens += cost
	}
	flush()

	return segments
}

// sentences returns the sentence sequence, applying HardLimit if set.
func (o Options) sentences(text string) []string {
	all := Sentences(text)
	if o.HardLimit <= 0 {
		return all
	}

	out := make([]string, 0, len(all))
	for _, s := range all {
		if EstimateTokens(s) <= o.HardLimit {
			out = append(out, s)
			continue
		}
		out = append(out, splitWords(s, o.HardLimit)...)
	}
	return out
}

// splitWords breaks a sentence into word runs whose estimate fits limit.
// A run always holds at least one word.
func splitWords(sentence string, limit int) []string {
	var (
		pieces []string
		run    []string
	)
	for _, w := range strings.Fields(sentence) {
		if len(run) > 0 && estimateWords(len(run)+1) > limit {
			pieces = append(pieces, strings.Join(run, " "))
			run = nil
		}
		run = append(run, w)
	}
	if len(run) > 0 {
		pieces = append(pieces, strings.Join(run, " "))
	}
	return pieces
}

// EstimateTokens returns ceil(wordCount * TokenFactor).
func EstimateTokens(text string) int {
	return estimateWords(len(strings.Fields(text)))
}

func estimateWords(n int) int {
	return int(math.Ceil(float64(n) * TokenFactor))
}

// Sentences splits text on terminal punctuation. A run of '.', '!' or '?'
// ends a sentence when followed by whitespace or the end of the text;
// closing quotes and brackets stay with the sentence they close. Text with
// no boundary is returned as a single sentence. Whitespace-only input
// yields nil.
func Sentences(text string) []string {
	runes := []rune(text)

	var out []string
	lastStart := 0

	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}

		end := i + 1
		for end < len(runes) && isTerminal(runes[end]) {
			end++
		}
		for end < len(runes) && isCloser(runes[end]) {
			end++
		}

		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			// "3.14", "example.com", "?!x" and friends.
			i = end - 1
			continue
		}

		if s := strings.TrimSpace(string(runes[lastStart:end])); s != "" {
			out = append(out, s)
		}
		lastStart = end
		i = end - 1
	}

	if lastStart < len(runes) {
		if s := strings.TrimSpace(string(runes[lastStart:])); s != "" {
			out = append(out, s)
		}
	}

	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '»':
		return true
	}
	return false
}
