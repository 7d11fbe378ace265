package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// csvHeader is the column order a later CSV import expects.
var csvHeader = []string{"Name", "URL", "Category", "Tags", "Description", "Favorite", "Pinned"}

// Export renders the sites in the requested format.
func Export(req Request, sites []Site) (*Result, error) {
	base := sanitizeFilename(req.Title)
	switch req.Format {
	case FormatJSON:
		return exportJSON(base, sites)
	case FormatCSV:
		return exportCSV(base, sites)
	case FormatHTML:
		html, err := renderHTML(req, sites)
		if err != nil {
			return nil, err
		}
		return &Result{
			Data:     []byte(html),
			Filename: base + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		html, err := renderHTML(req, sites)
		if err != nil {
			return nil, err
		}
		return exportPDF(html, base)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}

func exportJSON(base string, sites []Site) (*Result, error) {
	dump := struct {
		ExportedAt time.Time `json:"exportedAt"`
		Count      int       `json:"count"`
		Sites      []Site    `json:"sites"`
	}{
		ExportedAt: time.Now().UTC(),
		Count:      len(sites),
		Sites:      sites,
	}
	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return &Result{
		Data:     data,
		Filename: base + ".json",
		MimeType: "application/json",
	}, nil
}

func exportCSV(base string, sites []Site) (*Result, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, site := range sites {
		record := []string{
			site.Name,
			site.URL,
			strings.Join(site.Categories, ";"),
			strings.Join(site.Tags, ";"),
			site.Description,
			formatBool(site.IsFavorite),
			formatBool(site.IsPinned),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return &Result{
		Data:     buf.Bytes(),
		Filename: base + ".csv",
		MimeType: "text/csv; charset=utf-8",
	}, nil
}

func renderHTML(req Request, sites []Site) (string, error) {
	html, err := RenderCollectionHTML(TemplateData{
		Title:       req.Title,
		DisplayName: req.DisplayName,
		ExportedAt:  time.Now().UTC(),
		Sites:       sites,
	})
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return html, nil
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// sanitizeFilename creates a safe filename from a title
func sanitizeFilename(title string) string {
	result := ""
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			result += string(r)
		case r == ' ':
			result += "-"
		case r == '-', r == '_':
			result += string(r)
		}
	}

	if len(result) > 50 {
		result = result[:50]
	}

	if result == "" {
		result = "sitekeeper-export"
	}

	return result
}
