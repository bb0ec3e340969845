package export

import (
	"context"
	"fmt"
	"html/template"

	"github.com/Sharknia/tuum-prism/internal/block"
	"github.com/Sharknia/tuum-prism/internal/notion"
	"github.com/Sharknia/tuum-prism/internal/render"
)

// Service exports hydrated posts as PDF documents.
type Service struct {
	renderer *render.Renderer
}

// NewService creates an export service.
func NewService(renderer *render.Renderer) *Service {
	return &Service{renderer: renderer}
}

// ExportPDF renders the post into a standalone HTML document and prints it
// through headless Chrome.
func (s *Service) ExportPDF(ctx context.Context, post notion.Post, blocks []block.Block) (*Result, error) {
	data := TemplateData{
		Title:       post.Title,
		Description: post.Description,
		Tags:        post.Tags,
		Series:      post.Series,
		Date:        post.PublishedDate(),
		ReadingTime: block.ReadingTime(blocks),
		ContentHTML: template.HTML(s.renderer.HTML(blocks)),
	}

	html, err := RenderPostHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	return printPDF(ctx, html, post.Title)
}
