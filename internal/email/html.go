package email

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var multiNewlineRegex = regexp.MustCompile(`\n{3,}`)

// htmlToText renders an HTML body as readable plain text: strips non-content
// elements, keeps block boundaries as newlines, and collapses whitespace.
func htmlToText(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head, meta, link").Remove()

	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	text := strings.Join(lines, "\n")
	text = multiNewlineRegex.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text), nil
}
