// Package block defines the content tree produced by the CMS and the pure
// transforms that run over it: text extraction, reading time, table of
// contents, and render grouping. Trees are treated as immutable values;
// transforms return new trees and never modify their input.
package block

import (
	"strings"
	"time"
)

// Type is the closed set of block kinds the pipeline understands. Anything
// the CMS returns outside this set decodes to TypeUnsupported.
type Type string

const (
	TypeParagraph    Type = "paragraph"
	TypeHeading1     Type = "heading_1"
	TypeHeading2     Type = "heading_2"
	TypeHeading3     Type = "heading_3"
	TypeBulletedItem Type = "bulleted_list_item"
	TypeNumberedItem Type = "numbered_list_item"
	TypeQuote        Type = "quote"
	TypeCallout      Type = "callout"
	TypeToggle       Type = "toggle"
	TypeToDo         Type = "to_do"
	TypeDivider      Type = "divider"
	TypeImage        Type = "image"
	TypeCode         Type = "code"
	TypeBookmark     Type = "bookmark"
	TypeTable        Type = "table"
	TypeTableRow     Type = "table_row"
	TypeColumnList   Type = "column_list"
	TypeColumn       Type = "column"
	TypeUnsupported  Type = "unsupported"
)

// Annotations are the formatting flags carried by a rich text span.
type Annotations struct {
	Bold          bool   `json:"bold,omitempty"`
	Italic        bool   `json:"italic,omitempty"`
	Code          bool   `json:"code,omitempty"`
	Strikethrough bool   `json:"strikethrough,omitempty"`
	Underline     bool   `json:"underline,omitempty"`
	Color         string `json:"color,omitempty"`
}

// Span is one run of rich text. Adjacent spans concatenate to form the
// block's visible text, so span order is significant.
type Span struct {
	Text        string      `json:"text"`
	Annotations Annotations `json:"annotations,omitempty"`
	Href        string      `json:"href,omitempty"`
}

// ImageKind says where an image currently lives: on the CMS's time-limited
// file host or at a stable external URL.
type ImageKind string

const (
	ImageInternal ImageKind = "file"
	ImageExternal ImageKind = "external"
)

// Image is the payload of an image block. Exactly one of the two kinds is
// meaningful; ExpiresAt is only set for internal files.
type Image struct {
	Kind      ImageKind `json:"kind"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	Caption   []Span    `json:"caption,omitempty"`
}

// Code is the payload of a code block.
type Code struct {
	Language string `json:"language"`
	Caption  []Span `json:"caption,omitempty"`
}

// Bookmark is the payload of a bookmark block.
type Bookmark struct {
	URL     string `json:"url"`
	Caption []Span `json:"caption,omitempty"`
}

// Table is the payload of a table block; rows arrive as table_row children.
type Table struct {
	HasColumnHeader bool `json:"hasColumnHeader"`
	HasRowHeader    bool `json:"hasRowHeader"`
}

// TableRow is the payload of a table_row block.
type TableRow struct {
	Cells [][]Span `json:"cells"`
}

// Block is one node of the content tree. RichText holds the node's own text
// for every text-bearing type; payload pointers are set only for the types
// that carry them. Children is the recursively hydrated subtree.
type Block struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	RichText    []Span    `json:"richText,omitempty"`
	Checked     bool      `json:"checked,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	Image       *Image    `json:"image,omitempty"`
	Code        *Code     `json:"code,omitempty"`
	Bookmark    *Bookmark `json:"bookmark,omitempty"`
	Table       *Table    `json:"table,omitempty"`
	TableRow    *TableRow `json:"tableRow,omitempty"`
	HasChildren bool      `json:"hasChildren,omitempty"`
	Children    []Block   `json:"children,omitempty"`
}

// JoinSpans concatenates the plain text of a span list in order.
func JoinSpans(spans []Span) string {
	if len(spans) == 0 {
		return ""
	}
	var b strings.Builder
	for _, s := range spans {
		b.WriteString(s.Text)
	}
	return b.String()
}

// PlainText returns the text a reader would see for this single block,
// without descending into children. The switch is exhaustive over Type so
// that a new block kind cannot silently contribute the wrong text.
func (b Block) PlainText() string {
	switch b.Type {
	case TypeParagraph, TypeHeading1, TypeHeading2, TypeHeading3,
		TypeBulletedItem, TypeNumberedItem, TypeQuote, TypeCallout,
		TypeToggle, TypeToDo, TypeCode:
		return JoinSpans(b.RichText)
	case TypeImage:
		if b.Image != nil {
			return JoinSpans(b.Image.Caption)
		}
		return ""
	case TypeBookmark:
		if b.Bookmark != nil {
			return JoinSpans(b.Bookmark.Caption)
		}
		return ""
	case TypeTableRow:
		if b.TableRow == nil {
			return ""
		}
		var sb strings.Builder
		for _, cell := range b.TableRow.Cells {
			sb.WriteString(JoinSpans(cell))
		}
		return sb.String()
	case TypeDivider, TypeTable, TypeColumnList, TypeColumn, TypeUnsupported:
		return ""
	}
	return ""
}

// ImageURL returns the current source URL of an image block, internal or
// external, and whether the block carries one at all.
func (b Block) ImageURL() (string, bool) {
	if b.Type != TypeImage || b.Image == nil || b.Image.URL == "" {
		return "", false
	}
	return b.Image.URL, true
}
