package notion

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state a post carries in the CMS. Only Updated
// posts are publicly visible; About marks the single profile page.
type Status string

const (
	StatusWriting     Status = "Writing"
	StatusReady       Status = "Ready"
	StatusUpdated     Status = "Updated"
	StatusAbout       Status = "About"
	StatusToBeDeleted Status = "ToBeDeleted"
	StatusDeleted     Status = "Deleted"
	StatusError       Status = "Error"
)

// statusProperty is the CMS-side name of the status select. The workspace
// this frontend was built for labels it in Korean.
const (
	statusProperty    = "상태"
	systemLogProperty = "systemLog"
)

// Post is the page-level metadata of one article.
type Post struct {
	ID          string    `json:"id"`
	Idx         int       `json:"idx"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	Series      string    `json:"series,omitempty"`
	Date        time.Time `json:"date,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Status      Status    `json:"status"`
	SystemLog   string    `json:"systemLog,omitempty"`
}

// rawPage is a page object as returned by the API; properties stay raw
// until the mapper picks them apart.
type rawPage struct {
	ID             string                     `json:"id"`
	LastEditedTime time.Time                  `json:"last_edited_time"`
	Properties     map[string]json.RawMessage `json:"properties"`
}

type rawProperty struct {
	Type     string    `json:"type"`
	Title    []rawSpan `json:"title"`
	RichText []rawSpan `json:"rich_text"`
	Select   *struct {
		Name string `json:"name"`
	} `json:"select"`
	MultiSelect []struct {
		Name string `json:"name"`
	} `json:"multi_select"`
	UniqueID *struct {
		Number int `json:"number"`
	} `json:"unique_id"`
	Date *struct {
		Start string `json:"start"`
	} `json:"date"`
}

func unmarshalPage(raw json.RawMessage, page *rawPage) error {
	if err := json.Unmarshal(raw, page); err != nil {
		return fmt.Errorf("decode page object: %w", err)
	}
	return nil
}

func (p rawPage) property(name string) rawProperty {
	var prop rawProperty
	if raw, ok := p.Properties[name]; ok {
		_ = json.Unmarshal(raw, &prop)
	}
	return prop
}

func (p rawProperty) text() string {
	switch p.Type {
	case "title":
		return joinRawSpans(p.Title)
	case "rich_text":
		return joinRawSpans(p.RichText)
	}
	return ""
}

func (p rawProperty) selectName() string {
	if p.Type == "select" && p.Select != nil {
		return p.Select.Name
	}
	return ""
}

func (p rawProperty) multiSelectNames() []string {
	if p.Type != "multi_select" || len(p.MultiSelect) == 0 {
		return nil
	}
	names := make([]string, len(p.MultiSelect))
	for i, s := range p.MultiSelect {
		names[i] = s.Name
	}
	return names
}

func (p rawProperty) uniqueID() int {
	if p.Type == "unique_id" && p.UniqueID != nil {
		return p.UniqueID.Number
	}
	return 0
}

func (p rawProperty) date() time.Time {
	if p.Type == "date" && p.Date != nil && p.Date.Start != "" {
		if t, err := time.Parse(time.RFC3339, p.Date.Start); err == nil {
			return t
		}
		if t, err := time.Parse("2006-01-02", p.Date.Start); err == nil {
			return t
		}
	}
	return time.Time{}
}

func joinRawSpans(spans []rawSpan) string {
	out := ""
	for _, s := range spans {
		out += s.PlainText
	}
	return out
}

// mapStatus defaults unknown or missing status names to Writing, which
// keeps the page invisible.
func mapStatus(name string) Status {
	switch Status(name) {
	case StatusWriting, StatusReady, StatusUpdated, StatusAbout,
		StatusToBeDeleted, StatusDeleted, StatusError:
		return Status(name)
	}
	return StatusWriting
}

// mapPost turns a raw page into a Post entity.
func mapPost(page rawPage) Post {
	return Post{
		ID:          page.ID,
		Idx:         page.property("IDX").uniqueID(),
		Title:       page.property("title").text(),
		Description: page.property("description").text(),
		Tags:        page.property("tags").multiSelectNames(),
		Series:      page.property("series").selectName(),
		Date:        page.property("date").date(),
		UpdatedAt:   page.LastEditedTime,
		Status:      mapStatus(page.property(statusProperty).selectName()),
		SystemLog:   page.property(systemLogProperty).text(),
	}
}

// PublishedDate is the post's sort date: the explicit date property when
// set, otherwise the last edit time.
func (p Post) PublishedDate() time.Time {
	if !p.Date.IsZero() {
		return p.Date
	}
	return p.UpdatedAt
}
