// Package markdown renders Markdown documents to HTML.
//
// Rendering uses blackfriday v2 with its common extensions (tables, fenced
// code, autolinks, strikethrough). Raw HTML in the source is passed through
// unchanged and no typographic substitutions are applied.
//
// Usage:
//
//	html := markdown.Render([]byte("# Title\n\nhello\n"))
package markdown
