// Package chunker splits narration text into bounded-length units
// along sentence boundaries. Units are what the scheduler hands to the
// synthesis provider one request at a time, so the split is
// deterministic: the same text always yields the same units.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxLength is the soft per-unit length budget, in runes.
// A single sentence longer than the budget is never split; it becomes
// an oversized unit of its own.
const DefaultMaxLength = 1500

// defaultTerminals are the sentence-terminal marks recognized out of
// the box: the Devanagari danda, question mark and exclamation mark.
var defaultTerminals = []rune{'।', '?', '!'}

// Chunker splits text into sentences and packs them into units.
type Chunker struct {
	maxLength int
	terminals map[rune]struct{}
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithMaxLength sets the per-unit length budget in runes. Values < 1
// fall back to the default.
func WithMaxLength(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxLength = n
		}
	}
}

// WithTerminalRunes replaces the sentence-terminal set.
func WithTerminalRunes(runes ...rune) Option {
	return func(c *Chunker) {
		if len(runes) == 0 {
			return
		}
		c.terminals = make(map[rune]struct{}, len(runes))
		for _, r := range runes {
			c.terminals[r] = struct{}{}
		}
	}
}

// New creates a Chunker with the default terminal set and length
// budget, then applies opts.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		maxLength: DefaultMaxLength,
		terminals: make(map[rune]struct{}, len(defaultTerminals)),
	}
	for _, r := range defaultTerminals {
		c.terminals[r] = struct{}{}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chunk splits text with the default Chunker configuration and the
// given length budget.
func Chunk(text string, maxLength int) []string {
	return New(WithMaxLength(maxLength)).Chunk(text)
}

// SplitSentences splits text at terminal marks, keeping each mark
// attached to the sentence it ends. Sentences are trimmed and empty
// ones dropped. Text after the last terminal mark becomes a final
// sentence of its own.
func (c *Chunker) SplitSentences(text string) []string {
	var sentences []string
	var buf strings.Builder

	flush := func() {
		s := strings.TrimSpace(buf.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		buf.Reset()
	}

	for _, r := range text {
		buf.WriteRune(r)
		if _, ok := c.terminals[r]; ok {
			flush()
		}
	}
	flush()

	return sentences
}

// Chunk splits text into sentences and greedily packs them into units
// joined by single spaces. A unit is closed as soon as appending the
// next sentence would make it reach or exceed the length budget; the
// budget is a soft target, so one oversized sentence still comes
// through whole. Empty input yields no units.
func (c *Chunker) Chunk(text string) []string {
	sentences := c.SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var units []string
	var buf string
	var bufLen int

	for _, sentence := range sentences {
		n := utf8.RuneCountInString(sentence)
		if buf == "" {
			buf, bufLen = sentence, n
			continue
		}
		if bufLen+1+n >= c.maxLength {
			units = append(units, buf)
			buf, bufLen = sentence, n
			continue
		}
		buf += " " + sentence
		bufLen += 1 + n
	}
	if buf != "" {
		units = append(units, buf)
	}

	return units
}
