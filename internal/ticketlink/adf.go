package ticketlink

import (
	"fmt"
	"strings"

	"github.com/ctreminiom/go-atlassian/v2/pkg/infra/models"
)

// adfToText flattens an Atlassian Document Format node tree into plain-ish
// markdown, same shape the Context Pipeline's other documents arrive in
// after HTML stripping. Unsupported node types are kept as a placeholder
// rather than silently dropped.
func adfToText(node *models.CommentNodeScheme) string {
	if node == nil {
		return ""
	}
	var b strings.Builder
	renderADFNode(&b, node, false)
	return strings.TrimSpace(b.String())
}

func renderADFNode(b *strings.Builder, node *models.CommentNodeScheme, inList bool) {
	if node == nil {
		return
	}
	switch node.Type {
	case "doc":
		renderADFChildren(b, node, false)
	case "paragraph":
		renderADFChildren(b, node, false)
		b.WriteString("\n")
	case "heading":
		renderADFChildren(b, node, false)
		b.WriteString("\n")
	case "text":
		b.WriteString(applyADFMarks(node.Text, node.Marks))
	case "hardBreak":
		b.WriteString(" ")
	case "bulletList", "orderedList":
		for _, item := range node.Content {
			b.WriteString("- ")
			renderADFChildren(b, item, true)
			b.WriteString("\n")
		}
	case "listItem":
		renderADFChildren(b, node, inList)
	case "codeBlock":
		renderADFChildren(b, node, false)
		b.WriteString("\n")
	case "blockquote", "mediaSingle", "mediaGroup", "table":
		b.WriteString("[" + node.Type + "]\n")
	case "mention":
		b.WriteString(attrText(node, "text", "@mention"))
	default:
		if len(node.Content) > 0 {
			renderADFChildren(b, node, inList)
		} else {
			fmt.Fprintf(b, "[%s]", node.Type)
		}
	}
}

func renderADFChildren(b *strings.Builder, node *models.CommentNodeScheme, inList bool) {
	for _, child := range node.Content {
		renderADFNode(b, child, inList)
	}
}

func applyADFMarks(text string, marks []*models.MarkScheme) string {
	for _, mark := range marks {
		if mark == nil {
			continue
		}
		switch mark.Type {
		case "strong":
			text = "**" + text + "**"
		case "em":
			text = "*" + text + "*"
		case "code":
			text = "`" + text + "`"
		}
	}
	return text
}

func attrText(node *models.CommentNodeScheme, key, fallback string) string {
	if node.Attrs == nil {
		return fallback
	}
	v, ok := node.Attrs[key]
	if !ok {
		return fallback
	}
	s, ok := v.(string)
	if !ok {
		return fallback
	}
	return s
}
