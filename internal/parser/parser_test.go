package parser

import (
	"testing"
)

func TestParse_CaptureFields(t *testing.T) {
	input := []byte(`---
title: Go Blog
url: https://go.dev/blog
visibility: unlisted
tags:
  - go
  - reading
collections: work, later
recipients:
  - aabbccdd
---
Worth rereading [[effective-go]]. #classic
`)
	c, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Title != "Go Blog" {
		t.Errorf("title = %q, want %q", c.Title, "Go Blog")
	}
	if c.URL != "https://go.dev/blog" {
		t.Errorf("url = %q", c.URL)
	}
	if c.Visibility != "unlisted" {
		t.Errorf("visibility = %q", c.Visibility)
	}
	if len(c.Tags) != 3 || c.Tags[0] != "go" || c.Tags[1] != "reading" || c.Tags[2] != "classic" {
		t.Errorf("tags = %v, want [go reading classic]", c.Tags)
	}
	if len(c.Collections) != 2 || c.Collections[0] != "work" || c.Collections[1] != "later" {
		t.Errorf("collections = %v, want [work later]", c.Collections)
	}
	if len(c.Recipients) != 1 || c.Recipients[0] != "aabbccdd" {
		t.Errorf("recipients = %v", c.Recipients)
	}
	if len(c.Refs) != 1 || c.Refs[0] != "effective-go" {
		t.Errorf("refs = %v, want [effective-go]", c.Refs)
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	input := []byte("# Just a heading\nSome text.\n")
	c, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Frontmatter != nil {
		t.Errorf("expected nil frontmatter, got %v", c.Frontmatter)
	}
	if c.Title != "Just a heading" {
		t.Errorf("title = %q, want %q", c.Title, "Just a heading")
	}
	if c.URL != "" {
		t.Errorf("url = %q, want empty", c.URL)
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	input := []byte("---\n: invalid: yaml: {{{\n---\nBody\n")
	c, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Invalid YAML falls back to treating everything as body.
	if c.Frontmatter != nil {
		t.Errorf("expected nil frontmatter on invalid YAML")
	}
}

func TestExtractRefs_Basic(t *testing.T) {
	body := "See [[save-a]] and [[save-b|alias]].\nAlso [[save-a]] again."
	refs := extractRefs(body)
	if len(refs) != 2 {
		t.Fatalf("len(refs) = %d, want 2", len(refs))
	}
	if refs[0] != "save-a" || refs[1] != "save-b" {
		t.Errorf("refs = %v", refs)
	}
}

func TestExtractRefs_EmptyTarget(t *testing.T) {
	refs := extractRefs("see [[ ]] and [[|alias]]")
	if len(refs) != 0 {
		t.Errorf("expected no refs, got %v", refs)
	}
}

func TestExtractTags_InlineAndFrontmatter(t *testing.T) {
	fm := map[string]any{
		"tags": []any{"alpha"},
	}
	body := "Some text #beta and #alpha again."
	tags := extractTags(body, fm)
	// alpha from FM, beta from body; alpha not duplicated.
	if len(tags) != 2 || tags[0] != "alpha" || tags[1] != "beta" {
		t.Errorf("tags = %v, want [alpha beta]", tags)
	}
}

func TestDeriveTitle_FrontmatterOverH1(t *testing.T) {
	fm := map[string]any{"title": "FM Title"}
	body := "# H1 Title\ntext"
	title := deriveTitle(fm, body)
	if title != "FM Title" {
		t.Errorf("title = %q, want %q", title, "FM Title")
	}
}

func TestDeriveTitle_H1Fallback(t *testing.T) {
	title := deriveTitle(nil, "some text\n# My Heading\nmore")
	if title != "My Heading" {
		t.Errorf("title = %q, want %q", title, "My Heading")
	}
}

func TestStringList_ScalarAndList(t *testing.T) {
	fm := map[string]any{
		"collections": "a, b , ,c",
		"recipients":  []any{"x", " ", "y"},
	}
	if got := stringList(fm, "collections"); len(got) != 3 || got[2] != "c" {
		t.Errorf("collections = %v, want [a b c]", got)
	}
	if got := stringList(fm, "recipients"); len(got) != 2 || got[1] != "y" {
		t.Errorf("recipients = %v, want [x y]", got)
	}
	if got := stringList(nil, "anything"); got != nil {
		t.Errorf("nil frontmatter should give nil, got %v", got)
	}
}
