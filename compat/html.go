package compat

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// metaContents returns the content attribute of every <meta name=...> tag
// in page, in document order.
func metaContents(page []byte, name string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}
	var out []string
	doc.Find("meta[name]").Each(func(_ int, s *goquery.Selection) {
		if !strings.EqualFold(s.AttrOr("name", ""), name) {
			return
		}
		if content, ok := s.Attr("content"); ok {
			out = append(out, strings.TrimSpace(content))
		}
	})
	return out, nil
}
