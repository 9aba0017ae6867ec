// Package render turns a structurer.Result into documents for people:
// Markdown, an HTML page and the downloadable JSON file.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"prompt_json_structurer/structurer"
)

// DownloadFilename is the name offered when saving a result.
const DownloadFilename = "optimized-prompt.json"

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// JSON pretty-prints r in its wire form.
func JSON(r structurer.Result) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Markdown lays out r as a document. Degraded results lead with the
// diagnosis and end with the raw model reply.
func Markdown(r structurer.Result) string {
	doc := r.Document()
	var b strings.Builder

	if d, ok := r.(structurer.DegradedResult); ok {
		b.WriteString("# Could not structure this prompt\n\n")
		fmt.Fprintf(&b, "> **Error:** %s\n\n", d.Error)
	} else {
		b.WriteString("# Optimized JSON Structure\n\n")
	}

	writeText(&b, "Original Prompt", doc.OriginalPrompt, "No prompt recorded")
	writeText(&b, "Task", doc.Task, "No specific task identified")
	writeText(&b, "Style", doc.Style, "No specific style specified")
	writeText(&b, "Output Format", doc.OutputFormat, "No format specified")
	writeText(&b, "Audience", doc.Audience, "No audience specified")
	writeList(&b, "Entities", doc.Entities)
	writeList(&b, "Subtasks", doc.Subtasks)
	writeList(&b, "Constraints", doc.Constraints)
	writeList(&b, "Examples", doc.Examples)
	writeList(&b, "Expansion", doc.Expansion)

	if d, ok := r.(structurer.DegradedResult); ok {
		b.WriteString("## Raw Response\n\n")
		writeFence(&b, "text", d.RawResponse)
	} else if data, err := JSON(r); err == nil {
		b.WriteString("## JSON\n\n")
		writeFence(&b, "json", string(data))
	}
	return b.String()
}

// HTML renders Markdown(r) into a standalone page. Raw HTML in model text is
// not passed through.
func HTML(r structurer.Result) (string, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(r)), &body); err != nil {
		return "", err
	}
	title := "Optimized JSON Structure"
	if structurer.IsDegraded(r) {
		title = "Could not structure this prompt"
	}
	var page strings.Builder
	page.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">")
	fmt.Fprintf(&page, "<title>%s</title>", html.EscapeString(title))
	page.WriteString("</head><body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body></html>\n")
	return page.String(), nil
}

func writeText(b *strings.Builder, title, value, placeholder string) {
	fmt.Fprintf(b, "## %s\n\n", title)
	if strings.TrimSpace(value) == "" {
		fmt.Fprintf(b, "_%s_\n\n", placeholder)
		return
	}
	b.WriteString(value)
	b.WriteString("\n\n")
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", strings.ReplaceAll(item, "\n", " "))
	}
	b.WriteString("\n")
}

// writeFence picks a fence longer than any backtick run inside content.
func writeFence(b *strings.Builder, lang, content string) {
	fence := "```"
	for strings.Contains(content, fence) {
		fence += "`"
	}
	fmt.Fprintf(b, "%s%s\n%s\n%s\n", fence, lang, strings.TrimRight(content, "\n"), fence)
}
