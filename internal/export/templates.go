package export

import (
	"bytes"
	"html/template"
	"time"
)

// TemplateData holds everything the standalone post document needs.
type TemplateData struct {
	Title       string
	Description string
	Tags        []string
	Series      string
	Date        time.Time
	ReadingTime int
	ContentHTML template.HTML
}

var postTemplate = template.Must(template.New("post").Parse(postTemplateText))

// RenderPostHTML renders the standalone document handed to the PDF printer.
func RenderPostHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := postTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const postTemplateText = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: -apple-system, 'Segoe UI', sans-serif; line-height: 1.7; max-width: 760px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .tag { background: #eef; border-radius: 3px; padding: 0 0.4em; margin-right: 0.3em; }
    pre { background: #f5f5f5; padding: 1rem; overflow-x: auto; }
    blockquote { border-left: 3px solid #ccc; margin-left: 0; padding-left: 1rem; color: #555; }
    figure { margin: 1rem 0; }
    figure img { max-width: 100%; }
    figcaption { color: #666; font-size: 0.85em; }
    table { border-collapse: collapse; }
    th, td { border: 1px solid #ccc; padding: 0.3rem 0.6rem; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  {{if .Description}}<p>{{.Description}}</p>{{end}}
  <div class="meta">
    {{if .Series}}{{.Series}} | {{end}}{{if not .Date.IsZero}}{{.Date.Format "Jan 2, 2006"}} | {{end}}{{.ReadingTime}} min read
    {{range .Tags}}<span class="tag">{{.}}</span>{{end}}
  </div>
  <div>{{.ContentHTML}}</div>
</body>
</html>`
