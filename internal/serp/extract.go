package serp

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selector strategies tried in order against the result page. Google rotates
// its markup; the first strategy yielding at least one link wins.
var linkStrategies = []string{
	"div.yuRUbf a",
	`div.g a[href^="http"]`,
	"h3 a",
}

// organicLinks extracts up to max organic result URLs from a Google result
// page. Links back to Google properties and YouTube are skipped, duplicates
// keep their first position. ErrNoResults when no strategy matches anything.
func organicLinks(html []byte, max int) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	for _, strategy := range linkStrategies {
		var links []string
		seen := make(map[string]struct{})

		doc.Find(strategy).Each(func(_ int, sel *goquery.Selection) {
			href, ok := sel.Attr("href")
			if !ok || !keepLink(href) {
				return
			}
			if _, dup := seen[href]; dup {
				return
			}
			seen[href] = struct{}{}
			links = append(links, href)
		})

		if len(links) > 0 {
			if len(links) > max {
				links = links[:max]
			}
			return links, nil
		}
	}
	return nil, ErrNoResults
}

func keepLink(href string) bool {
	u, err := url.Parse(href)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, "google.") || strings.Contains(host, "youtube.com") {
		return false
	}
	return true
}

type pageMeta struct {
	title       string
	description string
	headings    []Heading
}

// pageMetadata pulls the title, meta description and every h1..h6 heading in
// document order out of a fetched page.
func pageMetadata(html []byte) (*pageMeta, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	meta := &pageMeta{
		title: strings.TrimSpace(doc.Find("title").First().Text()),
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		meta.description = strings.TrimSpace(desc)
	}
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}
		tag := ""
		if node := sel.Get(0); node != nil {
			tag = node.Data
		}
		meta.headings = append(meta.headings, Heading{Tag: tag, Text: text})
	})
	return meta, nil
}
