package importer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// Format identifies a recognized upload format.
type Format string

const (
	FormatJSON      Format = "json"
	FormatCSV       Format = "csv"
	FormatBookmarks Format = "bookmarks"
	FormatNotion    Format = "notion"
)

// Source hints accepted from the client, matching the upload buttons.
const (
	SourceAuto      = "auto"
	SourceNotion    = "notion"
	SourceBookmarks = "bookmarks"
	SourceFile      = "file"
)

var ErrUnsupportedFormat = errors.New("unsupported import format")

// ParsedSite is one row extracted from an upload, before tier checks and
// duplicate resolution.
type ParsedSite struct {
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	Description string   `json:"description,omitempty"`
	Pricing     string   `json:"pricing,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	IsFavorite  bool     `json:"isFavorite,omitempty"`
	IsPinned    bool     `json:"isPinned,omitempty"`
}

const netscapeMarker = "<!DOCTYPE NETSCAPE-Bookmark-file-1>"

// Detect picks the parser for an upload from the source hint, the filename
// extension and a content sniff. PDF uploads are rejected: the original app
// accepted the extension in its file picker but never shipped a parser.
func Detect(filename string, data []byte, source string) (Format, error) {
	switch source {
	case SourceNotion:
		return FormatNotion, nil
	case SourceBookmarks:
		return FormatBookmarks, nil
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".json":
		return FormatJSON, nil
	case ".csv":
		return FormatCSV, nil
	case ".pdf":
		return "", fmt.Errorf("%w: pdf", ErrUnsupportedFormat)
	}

	head := strings.TrimSpace(string(data[:min(len(data), 512)]))
	switch {
	case strings.HasPrefix(head, strings.ToUpper(netscapeMarker)) || strings.Contains(strings.ToUpper(head), "NETSCAPE-BOOKMARK-FILE"):
		return FormatBookmarks, nil
	case strings.HasPrefix(head, "{") || strings.HasPrefix(head, "["):
		return FormatJSON, nil
	case ext == ".html" || ext == ".htm":
		if bytes.Contains(data, []byte("notion")) || bytes.Contains(data, []byte("Notion")) {
			return FormatNotion, nil
		}
		return FormatBookmarks, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
}

// Parse dispatches to the format-specific extractor.
func Parse(format Format, data []byte) ([]ParsedSite, error) {
	switch format {
	case FormatJSON:
		return ParseJSON(data)
	case FormatCSV:
		return ParseCSV(data)
	case FormatBookmarks:
		return ParseBookmarksHTML(data)
	case FormatNotion:
		return ParseNotionHTML(data)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

// ParseJSON accepts either a full export dump ({"sites": [...]}) or a bare
// array of site objects.
func ParseJSON(data []byte) ([]ParsedSite, error) {
	var dump struct {
		Sites []ParsedSite `json:"sites"`
	}
	if err := json.Unmarshal(data, &dump); err == nil && dump.Sites != nil {
		return sanitize(dump.Sites), nil
	}

	var sites []ParsedSite
	if err := json.Unmarshal(data, &sites); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return sanitize(sites), nil
}

// ParseCSV maps rows through a case-insensitive header. Multi-valued cells
// (categories, tags) split on ";" or ",".
func ParseCSV(data []byte) ([]ParsedSite, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("parse csv header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	cell := func(record []string, names ...string) string {
		for _, name := range names {
			if idx, ok := columns[name]; ok && idx < len(record) {
				return strings.TrimSpace(record[idx])
			}
		}
		return ""
	}

	sites := make([]ParsedSite, 0)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv row: %w", err)
		}
		site := ParsedSite{
			Name:        cell(record, "name", "title"),
			URL:         cell(record, "url", "link"),
			Description: cell(record, "description", "notes"),
			Pricing:     cell(record, "pricing"),
			Categories:  splitList(cell(record, "category", "categories")),
			Tags:        splitList(cell(record, "tags", "tag")),
			IsFavorite:  parseBool(cell(record, "favorite", "is_favorite")),
			IsPinned:    parseBool(cell(record, "pinned", "is_pinned")),
		}
		sites = append(sites, site)
	}
	return sanitize(sites), nil
}

// ParseBookmarksHTML walks a Netscape bookmark export. Folder headings (H3)
// become categories for the links nested under them.
func ParseBookmarksHTML(data []byte) ([]ParsedSite, error) {
	tokenizer := html.NewTokenizer(bytes.NewReader(data))

	var folders []string
	var sites []ParsedSite
	var current *ParsedSite
	var inFolderHeading bool

	for {
		tokenType := tokenizer.Next()
		if tokenType == html.ErrorToken {
			if tokenizer.Err() == io.EOF {
				break
			}
			return nil, fmt.Errorf("parse bookmarks html: %w", tokenizer.Err())
		}

		token := tokenizer.Token()
		switch tokenType {
		case html.StartTagToken:
			switch token.Data {
			case "h3":
				inFolderHeading = true
				folders = append(folders, "")
			case "a":
				site := ParsedSite{}
				for _, attr := range token.Attr {
					switch strings.ToLower(attr.Key) {
					case "href":
						site.URL = strings.TrimSpace(attr.Val)
					case "tags":
						site.Tags = splitList(attr.Val)
					}
				}
				if len(folders) > 0 {
					if name := folders[len(folders)-1]; name != "" && !isRootFolder(name) {
						site.Categories = []string{name}
					}
				}
				current = &site
			case "dl":
				// Folder bodies open with DL; the matching heading is already
				// on the stack.
			}
		case html.TextToken:
			text := strings.TrimSpace(token.Data)
			if text == "" {
				continue
			}
			if inFolderHeading && len(folders) > 0 {
				folders[len(folders)-1] = strings.TrimSpace(folders[len(folders)-1] + " " + text)
			} else if current != nil {
				current.Name = strings.TrimSpace(current.Name + " " + text)
			}
		case html.EndTagToken:
			switch token.Data {
			case "h3":
				inFolderHeading = false
			case "a":
				if current != nil && current.URL != "" {
					if current.Name == "" {
						current.Name = ExtractDomain(current.URL)
					}
					sites = append(sites, *current)
				}
				current = nil
			case "dl":
				if len(folders) > 0 {
					folders = folders[:len(folders)-1]
				}
			}
		}
	}
	return sanitize(sites), nil
}

// ParseNotionHTML extracts links from a Notion HTML export. Database exports
// render as tables (first cell is the title, first anchor the URL); plain
// pages fall back to every external anchor.
func ParseNotionHTML(data []byte) ([]ParsedSite, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse notion html: %w", err)
	}

	sites := make([]ParsedSite, 0)
	seen := make(map[string]struct{})

	var fromTables func(n *html.Node)
	fromTables = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			name := ""
			href := ""
			var walk func(c *html.Node)
			walk = func(c *html.Node) {
				if c.Type == html.ElementNode && c.Data == "a" && href == "" {
					href = attrValue(c, "href")
				}
				if c.Type == html.TextNode && name == "" {
					if text := strings.TrimSpace(c.Data); text != "" {
						name = text
					}
				}
				for child := c.FirstChild; child != nil; child = child.NextSibling {
					walk(child)
				}
			}
			walk(n)
			if isExternalLink(href) {
				if _, dup := seen[href]; !dup {
					seen[href] = struct{}{}
					if name == "" {
						name = ExtractDomain(href)
					}
					sites = append(sites, ParsedSite{Name: name, URL: href})
				}
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			fromTables(child)
		}
	}
	fromTables(root)
	if len(sites) > 0 {
		return sanitize(sites), nil
	}

	var fromAnchors func(n *html.Node)
	fromAnchors = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := attrValue(n, "href")
			if isExternalLink(href) {
				if _, dup := seen[href]; !dup {
					seen[href] = struct{}{}
					name := strings.TrimSpace(textContent(n))
					if name == "" {
						name = ExtractDomain(href)
					}
					sites = append(sites, ParsedSite{Name: name, URL: href})
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			fromAnchors(child)
		}
	}
	fromAnchors(root)
	return sanitize(sites), nil
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if strings.EqualFold(attr.Key, key) {
			return strings.TrimSpace(attr.Val)
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(c *html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		for child := c.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return b.String()
}

func isExternalLink(href string) bool {
	return strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://")
}

func isRootFolder(name string) bool {
	switch strings.ToLower(name) {
	case "bookmarks", "bookmarks bar", "bookmarks menu", "other bookmarks":
		return true
	}
	return false
}

// sanitize drops rows without a URL and fills missing names from the domain.
func sanitize(sites []ParsedSite) []ParsedSite {
	out := make([]ParsedSite, 0, len(sites))
	for _, site := range sites {
		site.URL = strings.TrimSpace(site.URL)
		if site.URL == "" {
			continue
		}
		site.Name = strings.TrimSpace(site.Name)
		if site.Name == "" {
			site.Name = ExtractDomain(site.URL)
		}
		out = append(out, site)
	}
	return out
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	raw = strings.ReplaceAll(raw, ";", ",")
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "1", "y":
		return true
	}
	return false
}
