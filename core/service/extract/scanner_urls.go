package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"mvdan.cc/xurls/v2"
)

var strictURL = xurls.Strict()

// ExtractURLs returns the absolute http(s) URLs in text, in order of
// appearance. Duplicates are kept. When text contains HTML anchors, href
// values the lexical scan missed (entity-encoded ones, say) are appended.
func ExtractURLs(text string) []string {
	if text == "" {
		return nil
	}

	var urls []string
	seen := make(map[string]struct{})
	for _, m := range strictURL.FindAllString(text, -1) {
		if !isWebURL(m) {
			continue
		}
		urls = append(urls, m)
		seen[m] = struct{}{}
	}

	for _, href := range anchorHrefs(text) {
		if _, ok := seen[href]; ok {
			continue
		}
		seen[href] = struct{}{}
		urls = append(urls, href)
	}
	return urls
}

func anchorHrefs(text string) []string {
	if !strings.Contains(strings.ToLower(text), "<a") {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return nil
	}

	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if isWebURL(href) {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs
}

func isWebURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}
