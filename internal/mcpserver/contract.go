package mcpserver

// CaptureFormatContract describes the canonical Markdown capture format
// that LLM consumers should follow when creating saves. The same format
// is accepted by the inbox watcher for dropped files.
const CaptureFormatContract = `# Othala Capture Format Contract

Every Markdown capture handed to Othala MUST follow this structure.

## Structure

` + "```" + `markdown
---
url: https://example.com/article     # REQUIRED for link/image/pdf saves
title: Human-readable title          # OPTIONAL – derived from first H1 if absent
slug: my-save                        # OPTIONAL – derived from the URL if absent
type: link                           # OPTIONAL – link | image | pdf | note
visibility: private                  # OPTIONAL – private | shared | unlisted | public
tags:                                # OPTIONAL – YAML list; inline #tags also count
  - tag-one
  - tag-two
collections:                         # OPTIONAL – collection slugs to join
  - reading-list
recipients:                          # OPTIONAL – hex encryption keys, shared only
  - 64-hex-chars
---

Body text in standard Markdown. For type: note the body IS the save.

Use [[refs]] to reference other saves by slug (without any extension).
Use [[target|alias]] for display text that differs from the target.
` + "```" + `

## Rules

1. **YAML frontmatter is optional but recommended.** When present, the
   ` + "```" + `---` + "```" + ` fences must be the first thing in the document.
2. **` + "`" + `url` + "`" + ` is required for every save that is not a note.** A capture with
   no url becomes a ` + "`" + `type: note` + "`" + ` save automatically.
3. **Tags** are lowercase, kebab-case (e.g. ` + "`" + `home-lab` + "`" + `, ` + "`" + `to-read` + "`" + `).
   Inline ` + "`" + `#tags` + "`" + ` in the body merge with the frontmatter list.
4. **Refs** use double brackets: ` + "`" + `[[other-save]]` + "`" + `. The target is the save
   slug. Refs drive the backlinks view.
5. **Visibility** defaults to inheriting from member collections, falling
   back to private. Setting it pins the record. ` + "`" + `shared` + "`" + ` requires at least
   one recipient key.
6. **Encoding** is UTF-8 with a trailing newline.
7. **No HTML** unless absolutely necessary; prefer Markdown equivalents.

## Media

- Upload media via the ` + "`" + `upload_media` + "`" + ` tool. It returns a ` + "`" + `markdownImage` + "`" + ` field ready to paste into the body.
- Media names are content-addressed; uploading the same bytes twice returns the same name.
- Reference in bodies using the absolute path: ` + "`" + `![description](/media/<name>)` + "`" + `
- Supported formats: png, jpg, jpeg, gif, webp, svg, pdf.
- Do **not** invent media names — always use the name returned by the upload.

## Example

` + "```" + `markdown
---
url: https://go.dev/blog/error-handling
title: Error handling and Go
tags:
  - go
  - to-read
collections:
  - reading-list
---

Classic piece on explicit errors. Pairs well with [[errors-are-values]].

![Gopher sketch](/media/3f2a1b4c5d6e7f80.png)

#reference
` + "```" + `
`
