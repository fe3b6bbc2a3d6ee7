package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// scriptText returns the text of every inline <script> element of an HTML
// page, joined by newlines. Pages without inline scripts (or bodies that
// are not HTML at all) are returned unchanged so patterns can still run.
func scriptText(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return body
	}

	var b strings.Builder
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		b.WriteString(s.Text())
		b.WriteByte('\n')
	})

	if strings.TrimSpace(b.String()) == "" {
		return body
	}
	return b.String()
}
