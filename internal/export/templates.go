package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var collectionTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"join":  strings.Join,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/collection.html")
	if err != nil {
		// Fallback to built-in template if file not found
		collectionTemplate = template.Must(template.New("collection").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	collectionTemplate = template.Must(template.New("collection").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for collection template rendering
type TemplateData struct {
	Title       string
	DisplayName string
	ExportedAt  time.Time
	Sites       []Site
}

// RenderCollectionHTML renders the collection template with provided data
func RenderCollectionHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := collectionTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .site { padding: 0.5rem 0; border-bottom: 1px solid #eee; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.DisplayName}} | {{.ExportedAt.Format "Jan 2, 2006"}} | {{len .Sites}} sites</div>
  {{range .Sites}}<div class="site"><a href="{{.URL}}">{{.Name}}</a>{{if .Description}} | {{.Description}}{{end}}</div>{{end}}
</body>
</html>`
