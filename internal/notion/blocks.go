package notion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sharknia/tuum-prism/internal/block"
)

// rawSpan is one rich text run as the API serializes it.
type rawSpan struct {
	PlainText   string `json:"plain_text"`
	Href        string `json:"href"`
	Annotations struct {
		Bold          bool   `json:"bold"`
		Italic        bool   `json:"italic"`
		Code          bool   `json:"code"`
		Strikethrough bool   `json:"strikethrough"`
		Underline     bool   `json:"underline"`
		Color         string `json:"color"`
	} `json:"annotations"`
}

func decodeSpans(raw []rawSpan) []block.Span {
	if len(raw) == 0 {
		return nil
	}
	spans := make([]block.Span, len(raw))
	for i, r := range raw {
		spans[i] = block.Span{
			Text: r.PlainText,
			Href: r.Href,
			Annotations: block.Annotations{
				Bold:          r.Annotations.Bold,
				Italic:        r.Annotations.Italic,
				Code:          r.Annotations.Code,
				Strikethrough: r.Annotations.Strikethrough,
				Underline:     r.Annotations.Underline,
				Color:         normalizeColor(r.Annotations.Color),
			},
		}
	}
	return spans
}

// normalizeColor drops the API's "default" marker so the zero value means
// unstyled.
func normalizeColor(c string) string {
	if c == "default" {
		return ""
	}
	return c
}

type textPayload struct {
	RichText []rawSpan `json:"rich_text"`
	Checked  bool      `json:"checked"`
	Language string    `json:"language"`
	Caption  []rawSpan `json:"caption"`
	Icon     *struct {
		Emoji string `json:"emoji"`
	} `json:"icon"`
}

type imagePayload struct {
	Type string `json:"type"`
	File *struct {
		URL        string    `json:"url"`
		ExpiryTime time.Time `json:"expiry_time"`
	} `json:"file"`
	External *struct {
		URL string `json:"url"`
	} `json:"external"`
	Caption []rawSpan `json:"caption"`
}

type bookmarkPayload struct {
	URL     string    `json:"url"`
	Caption []rawSpan `json:"caption"`
}

type tablePayload struct {
	HasColumnHeader bool `json:"has_column_header"`
	HasRowHeader    bool `json:"has_row_header"`
}

type tableRowPayload struct {
	Cells [][]rawSpan `json:"cells"`
}

// decodeRawBlock maps one API block object onto the internal model. The
// payload lives under a key named after the block type; types outside the
// closed set decode to block.TypeUnsupported with no payload.
func decodeRawBlock(data json.RawMessage) (block.Block, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return block.Block{}, fmt.Errorf("decode block envelope: %w", err)
	}

	var id, typeName string
	var hasChildren bool
	if raw, ok := envelope["id"]; ok {
		_ = json.Unmarshal(raw, &id)
	}
	if raw, ok := envelope["type"]; ok {
		_ = json.Unmarshal(raw, &typeName)
	}
	if raw, ok := envelope["has_children"]; ok {
		_ = json.Unmarshal(raw, &hasChildren)
	}
	if id == "" || typeName == "" {
		return block.Block{}, fmt.Errorf("block object missing id or type")
	}

	b := block.Block{ID: id, Type: block.Type(typeName), HasChildren: hasChildren}
	payload := envelope[typeName]

	switch b.Type {
	case block.TypeParagraph, block.TypeHeading1, block.TypeHeading2,
		block.TypeHeading3, block.TypeBulletedItem, block.TypeNumberedItem,
		block.TypeQuote, block.TypeToggle:
		var p textPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return block.Block{}, fmt.Errorf("decode %s payload: %w", typeName, err)
		}
		b.RichText = decodeSpans(p.RichText)

	case block.TypeToDo:
		var p textPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return block.Block{}, fmt.Errorf("decode to_do payload: %w", err)
		}
		b.RichText = decodeSpans(p.RichText)
		b.Checked = p.Checked

	case block.TypeCallout:
		var p textPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return block.Block{}, fmt.Errorf("decode callout payload: %w", err)
		}
		b.RichText = decodeSpans(p.RichText)
		if p.Icon != nil {
			b.Icon = p.Icon.Emoji
		}

	case block.TypeCode:
		var p textPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return block.Block{}, fmt.Errorf("decode code payload: %w", err)
		}
		b.RichText = decodeSpans(p.RichText)
		b.Code = &block.Code{Language: p.Language, Caption: decodeSpans(p.Caption)}

	case block.TypeImage:
		var p imagePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return block.Block{}, fmt.Errorf("decode image payload: %w", err)
		}
		img := &block.Image{Caption: decodeSpans(p.Caption)}
		switch {
		case p.Type == "file" && p.File != nil:
			img.Kind = block.ImageInternal
			img.URL = p.File.URL
			img.ExpiresAt = p.File.ExpiryTime
		case p.Type == "external" && p.External != nil:
			img.Kind = block.ImageExternal
			img.URL = p.External.URL
		}
		b.Image = img

	case block.TypeBookmark:
		var p bookmarkPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return block.Block{}, fmt.Errorf("decode bookmark payload: %w", err)
		}
		b.Bookmark = &block.Bookmark{URL: p.URL, Caption: decodeSpans(p.Caption)}

	case block.TypeTable:
		var p tablePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return block.Block{}, fmt.Errorf("decode table payload: %w", err)
		}
		b.Table = &block.Table{HasColumnHeader: p.HasColumnHeader, HasRowHeader: p.HasRowHeader}

	case block.TypeTableRow:
		var p tableRowPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return block.Block{}, fmt.Errorf("decode table_row payload: %w", err)
		}
		row := &block.TableRow{Cells: make([][]block.Span, len(p.Cells))}
		for i, cell := range p.Cells {
			row.Cells[i] = decodeSpans(cell)
		}
		b.TableRow = row

	case block.TypeDivider, block.TypeColumnList, block.TypeColumn:
		// No payload worth keeping.

	default:
		b.Type = block.TypeUnsupported
	}

	return b, nil
}
