// Package chunker splits decoded file text into bounded, self-describing
// chunks. Each chunk carries a "File: <path>" header so it remains
// meaningful when retrieved in isolation.
package chunker

import (
	"fmt"
	"path"
	"strings"
)

const (
	// MaxChunkSize is the soft cap on accumulated content before a chunk
	// boundary is forced.
	MaxChunkSize = 4000

	// MinChunkSize discards noise below this trimmed length: single import
	// lines, stray braces, empty sections.
	MinChunkSize = 50
)

// Chunk is one bounded slice of a source file.
type Chunk struct {
	SourcePath string // File the chunk came from
	Text       string // Header line, blank line, then content
	Index      int    // Position within the file (0, 1, 2...)
}

// typeDefMarkers start a new chunk when they open a line mid-buffer, so type
// and class definitions land at chunk starts across the common languages.
var typeDefMarkers = []string{
	"class ",
	"type ",
	"struct ",
	"interface ",
	"public class ",
	"export class ",
}

// Splitter is a pure chunking function holder; it keeps no state between
// calls, so splitting the same input twice yields identical chunks.
type Splitter struct{}

// NewSplitter creates a Splitter.
func NewSplitter() *Splitter {
	return &Splitter{}
}

// Split divides file text into chunks. Markdown files are pre-split at
// section boundaries first; everything else goes straight through the
// line-accumulation pass.
func (s *Splitter) Split(text, filePath string) []Chunk {
	var chunks []Chunk
	if isMarkdownPath(filePath) {
		for _, section := range splitMarkdownSections(text) {
			chunks = s.accumulate(section, filePath, chunks)
		}
		return chunks
	}
	return s.accumulate(text, filePath, chunks)
}

// accumulate runs the line-accumulation pass over text, appending emitted
// chunks to chunks. Boundaries: size cap exceeded, a type-definition marker
// on a non-empty buffer, or a run of three blank lines.
func (s *Splitter) accumulate(text, filePath string, chunks []Chunk) []Chunk {
	text = normalizeLineEndings(text)
	lines := strings.Split(text, "\n")

	var buf []string
	size := 0

	flush := func() {
		content := strings.TrimSpace(strings.Join(buf, "\n"))
		buf = buf[:0]
		size = 0
		if len(content) < MinChunkSize {
			return
		}
		chunks = append(chunks, Chunk{
			SourcePath: filePath,
			Text:       fmt.Sprintf("File: %s\n\n%s", filePath, content),
			Index:      len(chunks),
		})
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if isTypeDefinition(trimmed) && len(buf) > 0 {
			flush()
		}

		if trimmed == "" && endsWithBlankRun(buf, 2) {
			flush()
			continue
		}

		buf = append(buf, line)
		size += len(line) + 1

		if size > MaxChunkSize {
			flush()
		}
	}
	flush()

	return chunks
}

func normalizeLineEndings(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

func isTypeDefinition(trimmed string) bool {
	for _, marker := range typeDefMarkers {
		if strings.HasPrefix(trimmed, marker) {
			return true
		}
	}
	return false
}

// endsWithBlankRun reports whether the last n buffered lines are all blank
// and the buffer holds something non-blank before them.
func endsWithBlankRun(buf []string, n int) bool {
	if len(buf) < n {
		return false
	}
	for i := len(buf) - n; i < len(buf); i++ {
		if strings.TrimSpace(buf[i]) != "" {
			return false
		}
	}
	for i := 0; i < len(buf)-n; i++ {
		if strings.TrimSpace(buf[i]) != "" {
			return true
		}
	}
	return false
}

func isMarkdownPath(filePath string) bool {
	switch strings.ToLower(path.Ext(filePath)) {
	case ".md", ".markdown":
		return true
	}
	return false
}
