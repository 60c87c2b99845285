package chunker

import (
	"fmt"
	"strings"
	"testing"
)

// contentOf strips the "File: <path>" header and the blank line after it.
func contentOf(t *testing.T, c Chunk) string {
	t.Helper()
	prefix := fmt.Sprintf("File: %s\n\n", c.SourcePath)
	if !strings.HasPrefix(c.Text, prefix) {
		t.Fatalf("chunk missing header, text starts with %q", c.Text[:min(40, len(c.Text))])
	}
	return strings.TrimPrefix(c.Text, prefix)
}

func TestSplitHeaderInvariant(t *testing.T) {
	input := strings.Repeat("x := compute(input)\n", 20)

	s := NewSplitter()
	chunks := s.Split(input, "pkg/calc.go")
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}

	for i, c := range chunks {
		if !strings.HasPrefix(c.Text, "File: pkg/calc.go\n\n") {
			t.Errorf("chunk %d does not start with file header: %q", i, c.Text[:30])
		}
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
	}
}

func TestSplitMinimumSize(t *testing.T) {
	// A single import line trims to well under 50 chars and is discarded.
	s := NewSplitter()
	chunks := s.Split("import os\n", "tiny.py")
	if len(chunks) != 0 {
		t.Errorf("expected noise below minimum size to be dropped, got %d chunks", len(chunks))
	}

	// 50+ chars of content survives.
	chunks = s.Split(strings.Repeat("a", 60), "ok.py")
	if len(chunks) != 1 {
		t.Errorf("expected one chunk for 60-char content, got %d", len(chunks))
	}
}

func TestSplitSizeCap(t *testing.T) {
	// ~6000 chars of uniform lines must split into two chunks at the cap.
	line := strings.Repeat("v", 59) // 60 chars per line with newline
	input := strings.Repeat(line+"\n", 100)

	s := NewSplitter()
	chunks := s.Split(input, "big.py")

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks for 6000-char input, got %d", len(chunks))
	}
	for i, c := range chunks {
		content := contentOf(t, c)
		if len(content) < MinChunkSize {
			t.Errorf("chunk %d below minimum: %d chars", i, len(content))
		}
		// Cap plus one trailing line of slack.
		if len(content) > MaxChunkSize+len(line)+1 {
			t.Errorf("chunk %d exceeds size cap: %d chars", i, len(content))
		}
	}
}

func TestSplitTypeDefinitionBoundary(t *testing.T) {
	input := `helper_result = prepare_everything_for_later_use(settings)
more_setup_code_goes_here = initialize(helper_result)

class Processor:
    def run(self):
        return transform(self.data, self.config, self.extras)
`
	s := NewSplitter()
	chunks := s.Split(input, "proc.py")

	if len(chunks) != 2 {
		t.Fatalf("expected class definition to start a new chunk, got %d chunks", len(chunks))
	}
	second := contentOf(t, chunks[1])
	if !strings.HasPrefix(second, "class Processor:") {
		t.Errorf("second chunk should start at class definition, got %q", second[:min(30, len(second))])
	}
}

func TestSplitBlankRunBoundary(t *testing.T) {
	first := strings.Repeat("first_section_line = value\n", 4)
	second := strings.Repeat("second_section_line = value\n", 4)
	input := first + "\n\n\n" + second

	s := NewSplitter()
	chunks := s.Split(input, "sections.py")

	if len(chunks) != 2 {
		t.Fatalf("expected blank run to split into 2 chunks, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0].Text, "first_section_line") {
		t.Error("first chunk missing first section")
	}
	if strings.Contains(chunks[1].Text, "first_section_line") {
		t.Error("second chunk should not contain first section")
	}
}

func TestSplitNormalizesLineEndings(t *testing.T) {
	input := "line_one_with_enough_content_to_keep = 1\r\nline_two_with_enough_content_to_keep = 2\r\n"

	s := NewSplitter()
	chunks := s.Split(input, "crlf.py")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if strings.Contains(chunks[0].Text, "\r") {
		t.Error("chunk text still contains carriage returns")
	}
}

func TestSplitIdempotent(t *testing.T) {
	input := strings.Repeat("def handler(event):\n    return dispatch(event)\n\n", 50)

	s := NewSplitter()
	first := s.Split(input, "handlers.py")
	second := s.Split(input, "handlers.py")

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestSplitEmptyInput(t *testing.T) {
	s := NewSplitter()
	if chunks := s.Split("", "empty.py"); len(chunks) != 0 {
		t.Errorf("expected no chunks for empty input, got %d", len(chunks))
	}
	if chunks := s.Split("\n\n\n\n", "blank.py"); len(chunks) != 0 {
		t.Errorf("expected no chunks for blank input, got %d", len(chunks))
	}
}

func TestSplitMarkdownSections(t *testing.T) {
	input := `# Project Overview

This project ingests repositories and answers questions about their code.

## Installation

Run the installer script and configure the environment variables listed in
the configuration reference before starting the server.

## Usage

Point the tool at a repository URL and wait for ingestion to complete before
asking questions in the chat window.
`
	s := NewSplitter()
	chunks := s.Split(input, "README.md")

	if len(chunks) != 3 {
		t.Fatalf("expected one chunk per section, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0].Text, "Project Overview") {
		t.Error("first chunk missing overview section")
	}
	if !strings.Contains(chunks[1].Text, "## Installation") {
		t.Error("second chunk missing installation heading")
	}
	if strings.Contains(chunks[1].Text, "## Usage") {
		t.Error("installation chunk leaked into usage section")
	}
	for i, c := range chunks {
		if !strings.HasPrefix(c.Text, "File: README.md\n\n") {
			t.Errorf("markdown chunk %d missing file header", i)
		}
	}
}

func TestSplitMarkdownWithoutHeadings(t *testing.T) {
	input := "Plain markdown text without any headings, long enough to clear the minimum chunk size filter.\n"

	s := NewSplitter()
	chunks := s.Split(input, "NOTES.md")
	if len(chunks) != 1 {
		t.Fatalf("expected single chunk for heading-less markdown, got %d", len(chunks))
	}
}
