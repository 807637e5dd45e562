// Package export summarizes scrape results and index-check reports for
// download or terminal display.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/serpdesk/serpdesk/internal/indexing"
	"github.com/serpdesk/serpdesk/internal/serp"
)

// ScrapeSummary contains aggregated metrics about one scrape result set.
type ScrapeSummary struct {
	Query           string
	Timestamp       time.Time
	TotalResults    int
	FetchErrors     int
	WithDescription int
	TotalHeadings   int
	Domains         map[string]int
}

// SummarizeScrape aggregates one scrape result.
func SummarizeScrape(r *serp.Result) ScrapeSummary {
	s := ScrapeSummary{
		Query:     r.Query,
		Timestamp: r.Timestamp,
		Domains:   make(map[string]int),
	}

	for _, entry := range r.Organic {
		s.TotalResults++
		if entry.FetchError != "" {
			s.FetchErrors++
		}
		if entry.Description != "" && entry.FetchError == "" {
			s.WithDescription++
		}
		s.TotalHeadings += len(entry.Headings)
		if host := hostOf(entry.URL); host != "" {
			s.Domains[host]++
		}
	}
	return s
}

// ReportSummary contains aggregated metrics about one index-check report.
type ReportSummary struct {
	TaskID       string
	Size         int
	Processed    int
	Indexed      int
	Unindexed    int
	IndexedShare float64
	ErrorCodes   map[int]int
}

// SummarizeReport aggregates a completed check report.
func SummarizeReport(rep *indexing.Report) ReportSummary {
	s := ReportSummary{
		TaskID:     rep.ID,
		Size:       rep.Size,
		Processed:  rep.ProcessedCount,
		Indexed:    len(rep.IndexedLinks),
		Unindexed:  len(rep.UnindexedLinks),
		ErrorCodes: make(map[int]int),
	}
	for _, link := range rep.UnindexedLinks {
		s.ErrorCodes[link.ErrorCode]++
	}
	if total := s.Indexed + s.Unindexed; total > 0 {
		s.IndexedShare = float64(s.Indexed) / float64(total)
	}
	return s
}

// WriteJSON writes v to the provided writer as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

// WriteScrapeText writes a human-readable scrape summary to the provided writer.
func WriteScrapeText(w io.Writer, summary ScrapeSummary) error {
	const textTmpl = `Scrape Summary
--------------
Query:         {{.Query}}
Time:          {{.Timestamp.Format "2006-01-02 15:04:05"}}
Results:       {{.TotalResults}}
Fetch Errors:  {{.FetchErrors}}
Descriptions:  {{.WithDescription}}
Headings:      {{.TotalHeadings}}

Domains:
{{- range $host, $count := .Domains}}
  {{$host}}: {{$count}}
{{- else}}
  None
{{- end}}
`

	t, err := template.New("scrapeText").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render summary: %w", err)
	}
	return nil
}

// WriteReportText writes a human-readable index-check summary to the provided
// writer.
func WriteReportText(w io.Writer, summary ReportSummary) error {
	const textTmpl = `Index Check Summary
-------------------
Task:          {{.TaskID}}
Size:          {{.Size}}
Processed:     {{.Processed}}
Indexed:       {{.Indexed}}
Unindexed:     {{.Unindexed}}
Indexed Rate:  {{printf "%.0f%%" (mulf .IndexedShare 100)}}

Error Codes:
{{- range $code, $count := .ErrorCodes}}
  {{$code}}: {{$count}}
{{- else}}
  None
{{- end}}
`

	t, err := template.New("reportText").
		Funcs(template.FuncMap{"mulf": func(a, b float64) float64 { return a * b }}).
		Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render summary: %w", err)
	}
	return nil
}

// Filename builds a download name for a scrape export, e.g.
// scrape_best-coffee_2026-09-01.json.
func Filename(query string, t time.Time) string {
	return fmt.Sprintf("scrape_%s_%s.json", slugify(query), t.Format("2006-01-02"))
}

func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		slug = "query"
	}
	if len(slug) > 40 {
		slug = strings.TrimRight(slug[:40], "-")
	}
	return slug
}

func hostOf(raw string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if i := strings.IndexAny(trimmed, "/?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return strings.TrimPrefix(strings.ToLower(trimmed), "www.")
}
