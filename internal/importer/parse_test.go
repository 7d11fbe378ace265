package importer

import (
	"errors"
	"testing"
)

func TestDetect(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		data     string
		source   string
		want     Format
	}{
		{"source hint notion", "export.html", "<html>", SourceNotion, FormatNotion},
		{"source hint bookmarks", "export.html", "<html>", SourceBookmarks, FormatBookmarks},
		{"json extension", "sites.json", "{}", SourceAuto, FormatJSON},
		{"csv extension", "sites.csv", "Name,URL", SourceFile, FormatCSV},
		{"netscape sniff", "export.html", netscapeMarker + "\n<DL>", SourceAuto, FormatBookmarks},
		{"json sniff", "dump", `[{"url":"x"}]`, SourceAuto, FormatJSON},
		{"notion html sniff", "export.html", `<html class="notion-page">`, SourceAuto, FormatNotion},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Detect(tc.filename, []byte(tc.data), tc.source)
			if err != nil {
				t.Fatalf("Detect() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("Detect() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDetectRejectsPDF(t *testing.T) {
	_, err := Detect("report.pdf", []byte("%PDF-1.7"), SourceFile)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat for pdf, got %v", err)
	}
}

func TestParseJSONDumpAndArray(t *testing.T) {
	dump := `{"sites":[{"name":"GitHub","url":"https://github.com","tags":["code"]}]}`
	sites, err := ParseJSON([]byte(dump))
	if err != nil {
		t.Fatalf("ParseJSON(dump) error = %v", err)
	}
	if len(sites) != 1 || sites[0].Name != "GitHub" {
		t.Errorf("unexpected dump result: %+v", sites)
	}

	array := `[{"url":"https://example.com"}]`
	sites, err = ParseJSON([]byte(array))
	if err != nil {
		t.Fatalf("ParseJSON(array) error = %v", err)
	}
	if len(sites) != 1 || sites[0].Name != "example.com" {
		t.Errorf("expected name filled from domain, got %+v", sites)
	}
}

func TestParseCSV(t *testing.T) {
	data := "Name,URL,Category,Tags,Favorite\n" +
		"GitHub,https://github.com,Dev Tools,\"code;git\",true\n" +
		",https://example.com,,,\n"

	sites, err := ParseCSV([]byte(data))
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if len(sites) != 2 {
		t.Fatalf("expected 2 sites, got %d", len(sites))
	}
	first := sites[0]
	if first.Name != "GitHub" || !first.IsFavorite {
		t.Errorf("unexpected first row: %+v", first)
	}
	if len(first.Categories) != 1 || first.Categories[0] != "Dev Tools" {
		t.Errorf("unexpected categories: %v", first.Categories)
	}
	if len(first.Tags) != 2 || first.Tags[0] != "code" || first.Tags[1] != "git" {
		t.Errorf("unexpected tags: %v", first.Tags)
	}
	if sites[1].Name != "example.com" {
		t.Errorf("expected name from domain, got %q", sites[1].Name)
	}
}

func TestParseCSVSkipsURLlessRows(t *testing.T) {
	data := "name,url\nNo Link,\nLinked,https://example.com\n"
	sites, err := ParseCSV([]byte(data))
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if len(sites) != 1 || sites[0].Name != "Linked" {
		t.Errorf("expected only the linked row, got %+v", sites)
	}
}

func TestParseBookmarksHTML(t *testing.T) {
	data := `<!DOCTYPE NETSCAPE-Bookmark-file-1>
<TITLE>Bookmarks</TITLE>
<H1>Bookmarks</H1>
<DL><p>
  <DT><H3>Bookmarks Bar</H3>
  <DL><p>
    <DT><H3>Dev Tools</H3>
    <DL><p>
      <DT><A HREF="https://github.com" TAGS="code,git">GitHub</A>
      <DT><A HREF="https://stackoverflow.com">Stack Overflow</A>
    </DL><p>
    <DT><A HREF="https://news.ycombinator.com">Hacker News</A>
  </DL><p>
</DL><p>`

	sites, err := ParseBookmarksHTML([]byte(data))
	if err != nil {
		t.Fatalf("ParseBookmarksHTML() error = %v", err)
	}
	if len(sites) != 3 {
		t.Fatalf("expected 3 sites, got %d: %+v", len(sites), sites)
	}

	github := sites[0]
	if github.Name != "GitHub" || github.URL != "https://github.com" {
		t.Errorf("unexpected first bookmark: %+v", github)
	}
	if len(github.Categories) != 1 || github.Categories[0] != "Dev Tools" {
		t.Errorf("folder should become category, got %v", github.Categories)
	}
	if len(github.Tags) != 2 {
		t.Errorf("TAGS attribute should split, got %v", github.Tags)
	}

	// Root-level folders like "Bookmarks Bar" are not categories.
	hn := sites[2]
	if len(hn.Categories) != 0 {
		t.Errorf("root folder must not become a category, got %v", hn.Categories)
	}
}

func TestParseNotionHTMLTable(t *testing.T) {
	data := `<html><body><table>
<tr><th>Name</th><th>Link</th></tr>
<tr><td>GitHub</td><td><a href="https://github.com">github.com</a></td></tr>
<tr><td>Internal</td><td><a href="notion://page">page</a></td></tr>
<tr><td>Docs</td><td><a href="https://docs.example.com">docs</a></td></tr>
</table></body></html>`

	sites, err := ParseNotionHTML([]byte(data))
	if err != nil {
		t.Fatalf("ParseNotionHTML() error = %v", err)
	}
	if len(sites) != 2 {
		t.Fatalf("expected 2 external links, got %d: %+v", len(sites), sites)
	}
	if sites[0].Name != "GitHub" || sites[0].URL != "https://github.com" {
		t.Errorf("unexpected first row: %+v", sites[0])
	}
}

func TestParseNotionHTMLAnchorFallback(t *testing.T) {
	data := `<html><body>
<p>See <a href="https://example.com">Example</a> and <a href="/local">local</a>.</p>
<p>Also <a href="https://example.com">Example again</a>.</p>
</body></html>`

	sites, err := ParseNotionHTML([]byte(data))
	if err != nil {
		t.Fatalf("ParseNotionHTML() error = %v", err)
	}
	if len(sites) != 1 {
		t.Fatalf("expected deduped single link, got %+v", sites)
	}
	if sites[0].Name != "Example" {
		t.Errorf("unexpected name: %q", sites[0].Name)
	}
}

func TestParseUnknownFormat(t *testing.T) {
	if _, err := Parse(Format("xml"), nil); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
