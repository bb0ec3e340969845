// Package render converts a block tree into the HTML fragment served to the
// frontend and fed to the PDF exporter.
package render

import (
	"fmt"
	"html"
	"strings"

	"github.com/Sharknia/tuum-prism/internal/block"
)

// Renderer renders block trees to HTML. ShowUnsupported controls whether
// blocks the pipeline does not understand are surfaced as visible
// placeholders; production keeps them silent.
type Renderer struct {
	ShowUnsupported bool
}

// New creates a renderer.
func New(showUnsupported bool) *Renderer {
	return &Renderer{ShowUnsupported: showUnsupported}
}

// HTML renders a full post body. Headings receive the same anchor ids the
// table of contents links to, so in-page navigation works without any
// client-side id generation.
func (r *Renderer) HTML(blocks []block.Block) string {
	anchors := map[string]string{}
	for _, item := range block.ExtractTOC(blocks) {
		anchors[item.BlockID] = item.ID
	}
	return r.renderBlocks(blocks, anchors)
}

func (r *Renderer) renderBlocks(blocks []block.Block, anchors map[string]string) string {
	var sb strings.Builder
	for _, unit := range block.GroupSiblings(blocks) {
		if unit.Group != nil {
			sb.WriteString(r.renderGroup(unit.Group, anchors))
			continue
		}
		sb.WriteString(r.renderBlock(*unit.Block, anchors))
	}
	return sb.String()
}

func (r *Renderer) renderGroup(g *block.ListGroup, anchors map[string]string) string {
	tag := "ul"
	class := "notion-list notion-ul"
	if g.ItemType == block.TypeNumberedItem {
		tag = "ol"
		class = "notion-list notion-ol"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<%s class=\"%s\">\n", tag, class)
	for _, item := range g.Items {
		sb.WriteString("<li>")
		sb.WriteString(renderSpans(item.RichText))
		if len(item.Children) > 0 {
			sb.WriteString(r.renderChildren(item.Children, anchors))
		}
		sb.WriteString("</li>\n")
	}
	fmt.Fprintf(&sb, "</%s>\n", tag)
	return sb.String()
}

func (r *Renderer) renderChildren(children []block.Block, anchors map[string]string) string {
	return fmt.Sprintf("<div class=\"notion-indent\">\n%s</div>\n", r.renderBlocks(children, anchors))
}

func (r *Renderer) renderBlock(b block.Block, anchors map[string]string) string {
	switch b.Type {
	case block.TypeParagraph:
		out := fmt.Sprintf("<p>%s</p>\n", renderSpans(b.RichText))
		if len(b.Children) > 0 {
			out += r.renderChildren(b.Children, anchors)
		}
		return out
	case block.TypeHeading1, block.TypeHeading2, block.TypeHeading3:
		return r.renderHeading(b, anchors)
	case block.TypeQuote:
		inner := fmt.Sprintf("<p>%s</p>\n", renderSpans(b.RichText))
		if len(b.Children) > 0 {
			inner += r.renderBlocks(b.Children, anchors)
		}
		return fmt.Sprintf("<blockquote>\n%s</blockquote>\n", inner)
	case block.TypeCallout:
		var sb strings.Builder
		sb.WriteString("<aside class=\"notion-callout\">")
		if b.Icon != "" {
			fmt.Fprintf(&sb, "<span class=\"notion-callout-icon\">%s</span>", html.EscapeString(b.Icon))
		}
		fmt.Fprintf(&sb, "<div class=\"notion-callout-body\"><p>%s</p>\n", renderSpans(b.RichText))
		if len(b.Children) > 0 {
			sb.WriteString(r.renderBlocks(b.Children, anchors))
		}
		sb.WriteString("</div></aside>\n")
		return sb.String()
	case block.TypeToggle:
		var sb strings.Builder
		fmt.Fprintf(&sb, "<details class=\"notion-toggle\"><summary>%s</summary>\n", renderSpans(b.RichText))
		if len(b.Children) > 0 {
			sb.WriteString(r.renderBlocks(b.Children, anchors))
		}
		sb.WriteString("</details>\n")
		return sb.String()
	case block.TypeToDo:
		checked := ""
		if b.Checked {
			checked = " checked"
		}
		out := fmt.Sprintf("<div class=\"notion-todo\"><input type=\"checkbox\" disabled%s><span>%s</span></div>\n",
			checked, renderSpans(b.RichText))
		if len(b.Children) > 0 {
			out += r.renderChildren(b.Children, anchors)
		}
		return out
	case block.TypeDivider:
		return "<hr>\n"
	case block.TypeImage:
		return renderImage(b)
	case block.TypeCode:
		return renderCode(b)
	case block.TypeBookmark:
		return renderBookmark(b)
	case block.TypeTable:
		return renderTable(b)
	case block.TypeTableRow:
		// Rows outside a table have nothing to attach to.
		return ""
	case block.TypeColumnList:
		return fmt.Sprintf("<div class=\"notion-columns\">\n%s</div>\n", r.renderBlocks(b.Children, anchors))
	case block.TypeColumn:
		return fmt.Sprintf("<div class=\"notion-column\">\n%s</div>\n", r.renderBlocks(b.Children, anchors))
	case block.TypeBulletedItem, block.TypeNumberedItem:
		// List items always arrive inside a group; a stray one renders as a
		// single-item list.
		return r.renderGroup(&block.ListGroup{ItemType: b.Type, Items: []block.Block{b}}, anchors)
	case block.TypeUnsupported:
		if r.ShowUnsupported {
			return fmt.Sprintf("<div class=\"notion-unsupported\">unsupported block: %s</div>\n", html.EscapeString(b.ID))
		}
		return ""
	}
	return ""
}

func (r *Renderer) renderHeading(b block.Block, anchors map[string]string) string {
	level := 1
	switch b.Type {
	case block.TypeHeading2:
		level = 2
	case block.TypeHeading3:
		level = 3
	}
	content := renderSpans(b.RichText)
	if id, ok := anchors[b.ID]; ok {
		return fmt.Sprintf("<h%d id=\"%s\">%s</h%d>\n", level, html.EscapeString(id), content, level)
	}
	return fmt.Sprintf("<h%d>%s</h%d>\n", level, content, level)
}

func renderImage(b block.Block) string {
	url, ok := b.ImageURL()
	if !ok {
		return ""
	}
	caption := block.JoinSpans(b.Image.Caption)
	var sb strings.Builder
	sb.WriteString("<figure class=\"notion-image\">")
	fmt.Fprintf(&sb, "<img src=\"%s\" alt=\"%s\" loading=\"lazy\">", html.EscapeString(url), html.EscapeString(caption))
	if caption != "" {
		fmt.Fprintf(&sb, "<figcaption>%s</figcaption>", html.EscapeString(caption))
	}
	sb.WriteString("</figure>\n")
	return sb.String()
}

func renderCode(b block.Block) string {
	lang := "plaintext"
	if b.Code != nil && b.Code.Language != "" {
		lang = b.Code.Language
	}
	return fmt.Sprintf("<pre><code class=\"language-%s\">%s</code></pre>\n",
		html.EscapeString(lang), html.EscapeString(block.JoinSpans(b.RichText)))
}

func renderBookmark(b block.Block) string {
	if b.Bookmark == nil || b.Bookmark.URL == "" {
		return ""
	}
	label := block.JoinSpans(b.Bookmark.Caption)
	if label == "" {
		label = b.Bookmark.URL
	}
	return fmt.Sprintf("<a class=\"notion-bookmark\" href=\"%s\" target=\"_blank\" rel=\"noopener noreferrer\">%s</a>\n",
		html.EscapeString(b.Bookmark.URL), html.EscapeString(label))
}

func renderTable(b block.Block) string {
	if b.Table == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("<table>\n")
	for rowIdx, row := range b.Children {
		if row.Type != block.TypeTableRow || row.TableRow == nil {
			continue
		}
		sb.WriteString("<tr>\n")
		for colIdx, cell := range row.TableRow.Cells {
			tag := "td"
			if (b.Table.HasColumnHeader && rowIdx == 0) || (b.Table.HasRowHeader && colIdx == 0) {
				tag = "th"
			}
			fmt.Fprintf(&sb, "<%s>%s</%s>\n", tag, renderSpans(cell), tag)
		}
		sb.WriteString("</tr>\n")
	}
	sb.WriteString("</table>\n")
	return sb.String()
}

func renderSpans(spans []block.Span) string {
	var sb strings.Builder
	for _, s := range spans {
		sb.WriteString(renderSpan(s))
	}
	return sb.String()
}

// renderSpan wraps escaped text with its marks, innermost first, so that a
// bold link comes out as <a><strong>text</strong></a>.
func renderSpan(s block.Span) string {
	out := html.EscapeString(s.Text)
	a := s.Annotations

	if a.Code {
		out = fmt.Sprintf("<code>%s</code>", out)
	}
	if a.Bold {
		out = fmt.Sprintf("<strong>%s</strong>", out)
	}
	if a.Italic {
		out = fmt.Sprintf("<em>%s</em>", out)
	}
	if a.Strikethrough {
		out = fmt.Sprintf("<s>%s</s>", out)
	}
	if a.Underline {
		out = fmt.Sprintf("<u>%s</u>", out)
	}
	if a.Color != "" {
		out = fmt.Sprintf("<span class=\"notion-color-%s\">%s</span>", html.EscapeString(a.Color), out)
	}
	if s.Href != "" {
		out = fmt.Sprintf("<a href=\"%s\">%s</a>", html.EscapeString(s.Href), out)
	}
	return out
}
