// Package extract turns rendered timeline and search markup into records.
// Everything here is a pure function of its input.
package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/feedscrape/internal/model"
	"github.com/sells-group/feedscrape/internal/selector"
)

// DefaultBaseURL is used for canonical post URLs when none is configured.
const DefaultBaseURL = "https://x.com"

var handleRe = regexp.MustCompile(`@([A-Za-z0-9_]{1,15})`)

// Skip describes a container that could not be turned into a record.
type Skip struct {
	Index  int
	Reason string
}

// Result is the outcome of one extraction pass.
type Result struct {
	Records []model.Record
	// Containers is how many post containers were found.
	Containers int
	// Skipped lists malformed containers in document order.
	Skipped []Skip
	// Degraded is set when some field of some record could not be read.
	Degraded bool
	// Strategy is the index of the container matcher that matched, or -1.
	Strategy int
}

// Extractor reads records out of HTML with a fixed selector set.
type Extractor struct {
	baseURL    string
	selectors  selector.PostSelectors
	permalinks *PermalinkFilter
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithBaseURL sets the origin used to build canonical post URLs.
func WithBaseURL(base string) Option {
	return func(e *Extractor) {
		if base != "" {
			e.baseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// WithSelectors replaces the default post selectors.
func WithSelectors(sel selector.PostSelectors) Option {
	return func(e *Extractor) { e.selectors = sel }
}

// WithPermalinkFilter replaces the default permalink filter.
func WithPermalinkFilter(f *PermalinkFilter) Option {
	return func(e *Extractor) { e.permalinks = f }
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		baseURL:    DefaultBaseURL,
		selectors:  selector.Default().Post,
		permalinks: NewPermalinkFilter(nil),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract parses html and returns the posts it contains, in document order,
// deduplicated by ID with the first occurrence kept. Markup without any
// recognizable container yields an empty result, not an error. q supplies
// the channel handle when a post's author cannot be read from the markup.
func (e *Extractor) Extract(html string, q model.ScrapeQuery) Result {
	res := Result{Records: []model.Record{}, Strategy: -1}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return res
	}

	containers, idx := e.selectors.Container.Find(doc.Selection)
	res.Strategy = idx
	res.Containers = containers.Length()

	seen := make(map[string]struct{}, res.Containers)
	containers.Each(func(i int, c *goquery.Selection) {
		rec, degraded, reason := e.parseContainer(c, q)
		if reason != "" {
			res.Skipped = append(res.Skipped, Skip{Index: i, Reason: reason})
			return
		}
		if degraded {
			res.Degraded = true
		}
		if _, dup := seen[rec.ID]; dup {
			return
		}
		seen[rec.ID] = struct{}{}
		res.Records = append(res.Records, rec)
	})
	return res
}

// parseContainer never panics; a panic in a selector or attribute lookup
// turns into a skip.
func (e *Extractor) parseContainer(c *goquery.Selection, q model.ScrapeQuery) (rec model.Record, degraded bool, skip string) {
	defer func() {
		if r := recover(); r != nil {
			rec, degraded, skip = model.Record{}, false, fmt.Sprintf("panic: %v", r)
		}
	}()

	linkHandle, id := e.permalink(c)
	if id == "" {
		return model.Record{}, false, "no permalink"
	}
	rec.ID = id

	display, handle := authorOf(e.selectors.AuthorBlock.First(c))
	switch {
	case handle != "":
	case linkHandle != "":
		handle = linkHandle
	case q.Kind == model.KindChannel:
		handle = q.Target
	default:
		degraded = true
	}
	rec.AuthorHandle = handle
	rec.DisplayName = display

	if body := e.selectors.Text.First(c); body.Length() > 0 {
		rec.Text = postText(body)
	}

	ts, ok := timestampOf(e.selectors.Timestamp.First(c))
	if !ok {
		degraded = true
	}
	rec.Timestamp = ts

	urlHandle := linkHandle
	if urlHandle == "" {
		urlHandle = handle
	}
	if urlHandle != "" {
		rec.URL = e.baseURL + "/" + urlHandle + "/status/" + id
	} else {
		rec.URL = e.baseURL + "/i/web/status/" + id
	}

	var counts [4]int64
	for i, chain := range []selector.Chain{
		e.selectors.Replies, e.selectors.Reposts, e.selectors.Likes, e.selectors.Views,
	} {
		n, ok := countOf(chain.First(c))
		if !ok {
			degraded = true
		}
		counts[i] = n
	}
	rec.Metrics = model.Metrics{Replies: counts[0], Reposts: counts[1], Likes: counts[2], Views: counts[3]}

	rec.MediaURLs = e.media(c)
	return rec, degraded, ""
}

func (e *Extractor) permalink(c *goquery.Selection) (handle, id string) {
	for _, m := range e.selectors.Permalink {
		m.Find(c).EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			handle, id, _ = e.permalinks.Parse(href)
			return id == ""
		})
		if id != "" {
			return handle, id
		}
	}
	return "", ""
}

// authorOf reads "Display Name@handle·2h" style author blocks.
func authorOf(block *goquery.Selection) (display, handle string) {
	if block.Length() == 0 {
		return "", ""
	}
	text := normalizeText(block.Text())
	at := strings.Index(text, "@")
	if at < 0 {
		return text, ""
	}
	display = strings.TrimSpace(text[:at])
	if m := handleRe.FindStringSubmatch(text[at:]); m != nil {
		handle = m[1]
	}
	return display, handle
}

func timestampOf(sel *goquery.Selection) (time.Time, bool) {
	raw, ok := sel.Attr("datetime")
	if !ok {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, false
	}
	return ts.UTC(), true
}

// countOf reads an engagement count from its button. A missing button is a
// zero count.
func countOf(sel *goquery.Selection) (int64, bool) {
	if sel.Length() == 0 {
		return 0, true
	}
	text := strings.TrimSpace(sel.Text())
	if text == "" {
		label, _ := sel.Attr("aria-label")
		text = countFromLabel(label)
	}
	return ParseCount(text)
}

func (e *Extractor) media(c *goquery.Selection) []string {
	var urls []string
	seen := make(map[string]struct{})
	for _, m := range e.selectors.Media {
		m.Find(c).Each(func(_ int, s *goquery.Selection) {
			src := s.AttrOr("src", "")
			if goquery.NodeName(s) == "video" {
				src = s.AttrOr("poster", src)
			}
			if src == "" || strings.HasPrefix(src, "blob:") {
				return
			}
			if _, ok := seen[src]; ok {
				return
			}
			seen[src] = struct{}{}
			urls = append(urls, src)
		})
	}
	return urls
}
