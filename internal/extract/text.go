package extract

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

// postText renders the visible text of a post body: text nodes and link
// text in document order, emoji images as their alt text, scripts and
// styles dropped.
func postText(sel *goquery.Selection) string {
	body := sel.Clone()
	body.Find("script, style, noscript").Remove()
	body.Find("img[alt]").Each(func(_ int, img *goquery.Selection) {
		alt, _ := img.Attr("alt")
		img.ReplaceWithHtml(html.EscapeString(alt))
	})
	return normalizeText(body.Text())
}

// normalizeText applies NFC normalization and collapses runs of
// whitespace within lines. Blank lines are squeezed to one.
func normalizeText(s string) string {
	s = norm.NFC.String(s)

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
