package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/serpdesk/serpdesk/internal/indexing"
	"github.com/serpdesk/serpdesk/internal/serp"
)

func TestSummarizeScrape(t *testing.T) {
	result := &serp.Result{
		Query:     "best coffee",
		Timestamp: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
		Organic: []serp.OrganicResult{
			{URL: "https://www.beans.test/a", Description: "roastery", Headings: []serp.Heading{
				{Tag: "h1", Text: "Beans"}, {Tag: "h2", Text: "Roasts"},
			}},
			{URL: "https://beans.test/b", Description: "shop"},
			{URL: "https://broken.test/", FetchError: "connection refused", Title: "Error fetching page"},
		},
	}

	summary := SummarizeScrape(result)

	if summary.TotalResults != 3 {
		t.Errorf("expected 3 results, got %d", summary.TotalResults)
	}
	if summary.FetchErrors != 1 {
		t.Errorf("expected 1 fetch error, got %d", summary.FetchErrors)
	}
	if summary.WithDescription != 2 {
		t.Errorf("expected 2 descriptions, got %d", summary.WithDescription)
	}
	if summary.TotalHeadings != 2 {
		t.Errorf("expected 2 headings, got %d", summary.TotalHeadings)
	}
	if summary.Domains["beans.test"] != 2 {
		t.Errorf("expected www-stripped domain grouping, got %v", summary.Domains)
	}
}

func TestSummarizeReport(t *testing.T) {
	rep := &indexing.Report{
		ID:             "T1",
		Size:           4,
		ProcessedCount: 4,
		IndexedLinks: []indexing.IndexedLink{
			{URL: "https://a.test"},
			{URL: "https://b.test"},
			{URL: "https://c.test"},
		},
		UnindexedLinks: []indexing.UnindexedLink{
			{URL: "https://d.test", ErrorCode: 404},
		},
	}

	summary := SummarizeReport(rep)

	if summary.Indexed != 3 || summary.Unindexed != 1 {
		t.Errorf("expected 3 indexed and 1 unindexed, got %d/%d", summary.Indexed, summary.Unindexed)
	}
	if summary.IndexedShare != 0.75 {
		t.Errorf("expected 75%% indexed, got %v", summary.IndexedShare)
	}
	if summary.ErrorCodes[404] != 1 {
		t.Errorf("expected error code tally, got %v", summary.ErrorCodes)
	}
}

func TestWriteJSON(t *testing.T) {
	summary := ScrapeSummary{TotalResults: 5}
	var buf bytes.Buffer
	if err := WriteJSON(&buf, summary); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), `"TotalResults": 5`) {
		t.Errorf("expected JSON to contain TotalResults: 5")
	}
}

func TestWriteScrapeText(t *testing.T) {
	summary := ScrapeSummary{
		Query:        "best coffee",
		TotalResults: 10,
		FetchErrors:  1,
		Domains:      map[string]int{"beans.test": 2},
	}
	var buf bytes.Buffer
	if err := WriteScrapeText(&buf, summary); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Results:       10") {
		t.Errorf("expected result count in text output, got:\n%s", out)
	}
	if !strings.Contains(out, "beans.test: 2") {
		t.Errorf("expected domain tally in text output, got:\n%s", out)
	}
}

func TestWriteReportText(t *testing.T) {
	summary := ReportSummary{
		TaskID:       "T1",
		Indexed:      3,
		Unindexed:    1,
		IndexedShare: 0.75,
		ErrorCodes:   map[int]int{404: 1},
	}
	var buf bytes.Buffer
	if err := WriteReportText(&buf, summary); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Indexed Rate:  75%") {
		t.Errorf("expected indexed rate in text output, got:\n%s", out)
	}
	if !strings.Contains(out, "404: 1") {
		t.Errorf("expected error code tally, got:\n%s", out)
	}
}

func TestFilename(t *testing.T) {
	got := Filename("Best Coffee, Berlin!", time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	want := "scrape_best-coffee-berlin_2026-09-01.json"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if got := Filename("???", time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)); got != "scrape_query_2026-09-01.json" {
		t.Errorf("empty slug fallback: got %q", got)
	}
}
