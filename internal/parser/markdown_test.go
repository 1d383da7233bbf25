package parser

import (
	"strings"
	"testing"
)

func TestMarkdownParser_HeadingsBecomeBlocks(t *testing.T) {
	input := `# Title

Intro text.

## Section A

Section A content.

## Section B

Section B content.
`
	p := &MarkdownParser{}
	page, err := p.Parse(strings.NewReader(input), "doc.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if page.Title != "Title" {
		t.Errorf("expected title from h1 %q, got %q", "Title", page.Title)
	}
	want := []string{"Title", "Intro text.", "Section A", "Section A content.", "Section B", "Section B content."}
	if len(page.Blocks) != len(want) {
		t.Fatalf("expected %d blocks, got %d: %q", len(want), len(page.Blocks), page.Blocks)
	}
	for i, w := range want {
		if page.Blocks[i] != w {
			t.Errorf("block[%d]: expected %q, got %q", i, w, page.Blocks[i])
		}
	}
}

func TestMarkdownParser_NoHeadingsKeepsNameTitle(t *testing.T) {
	input := "Just some plain text.\n\nAnother paragraph here."

	p := &MarkdownParser{}
	page, err := p.Parse(strings.NewReader(input), "plain.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Title != "plain" {
		t.Errorf("expected title %q, got %q", "plain", page.Title)
	}
	if len(page.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(page.Blocks))
	}
}

func TestMarkdownParser_InlineMarkupNotDuplicated(t *testing.T) {
	p := &MarkdownParser{}
	page, err := p.Parse(strings.NewReader("Some *emphasis* and `code`."), "inline.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(page.Blocks))
	}
	if page.Blocks[0] != "Some emphasis and code." {
		t.Errorf("expected plain text, got %q", page.Blocks[0])
	}
}

func TestMarkdownParser_CodeBlocks(t *testing.T) {
	input := "# API Reference\n\nList of endpoints:\n\n```\nGET /api/users\nPOST /api/users\n```\n\nMore text after code.\n"

	p := &MarkdownParser{}
	page, err := p.Parse(strings.NewReader(input), "api.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := page.Text()
	if !strings.Contains(text, "GET /api/users\nPOST /api/users") {
		t.Errorf("expected code block content in text, got %q", text)
	}
	if !strings.Contains(text, "More text after code.") {
		t.Errorf("expected post-code text, got %q", text)
	}
}

func TestMarkdownParser_Lists(t *testing.T) {
	p := &MarkdownParser{}
	page, err := p.Parse(strings.NewReader("- one\n- two\n"), "list.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Text() != "one\ntwo" {
		t.Errorf("expected list items on separate lines, got %q", page.Text())
	}
}

func TestMarkdownParser_EmptyInput(t *testing.T) {
	p := &MarkdownParser{}
	page, err := p.Parse(strings.NewReader(""), "empty.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Blocks) != 0 {
		t.Errorf("expected 0 blocks for empty input, got %d", len(page.Blocks))
	}
}
