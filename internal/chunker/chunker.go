// Package chunker splits page text into paragraph-aligned chunks that fit a
// model's context window.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxChars is the chunk budget used when none is given.
	DefaultMaxChars = 4000

	// Separator joins paragraphs inside a chunk and partial outputs after it.
	Separator = "\n\n"
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// TextChunk is one ordered, 1-indexed segment of the input.
type TextChunk struct {
	Content   string
	Index     int
	SizeChars int
}

// Chunk splits text on blank lines and packs paragraphs greedily into chunks
// of at most maxChars characters. A paragraph is never split: one longer than
// maxChars becomes its own oversized chunk.
func Chunk(text string, maxChars int) []TextChunk {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []TextChunk
	var current string

	flush := func() {
		if current == "" {
			return
		}
		chunks = append(chunks, TextChunk{
			Content:   current,
			Index:     len(chunks) + 1,
			SizeChars: utf8.RuneCountInString(current),
		})
		current = ""
	}

	for _, p := range paragraphBreak.Split(text, -1) {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if current == "" {
			current = p
			continue
		}
		if utf8.RuneCountInString(current)+len(Separator)+utf8.RuneCountInString(p) > maxChars {
			flush()
			current = p
			continue
		}
		current += Separator + p
	}
	flush()

	return chunks
}

// Join concatenates chunk contents in order with the paragraph separator.
func Join(chunks []TextChunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, Separator)
}
