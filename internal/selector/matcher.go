// Package selector holds the ordered fallback selector strategies used to
// find elements in the platform's rendered markup.
package selector

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Strategy is how a Matcher's expression is interpreted.
type Strategy int

const (
	// CSS is a CSS selector.
	CSS Strategy = iota
	// XPath is an XPath expression. Only live browser pages evaluate it.
	XPath
	// Text matches the innermost elements whose text contains the expression.
	Text
)

func (s Strategy) String() string {
	switch s {
	case CSS:
		return "css"
	case XPath:
		return "xpath"
	case Text:
		return "text"
	default:
		return "unknown"
	}
}

// Matcher is one selector strategy.
type Matcher struct {
	Strategy Strategy
	Expr     string
}

// ByCSS, ByXPath and ByText build matchers.
func ByCSS(expr string) Matcher   { return Matcher{Strategy: CSS, Expr: expr} }
func ByXPath(expr string) Matcher { return Matcher{Strategy: XPath, Expr: expr} }
func ByText(expr string) Matcher  { return Matcher{Strategy: Text, Expr: expr} }

func (m Matcher) String() string {
	return m.Strategy.String() + "(" + m.Expr + ")"
}

// XPathExpr renders the matcher as XPath for browser-side lookup. CSS
// matchers return ok=false.
func (m Matcher) XPathExpr() (string, bool) {
	switch m.Strategy {
	case XPath:
		return m.Expr, true
	case Text:
		return "//*[contains(normalize-space(.), " + xpathLiteral(m.Expr) + ") and not(*[contains(normalize-space(.), " + xpathLiteral(m.Expr) + ")])]", true
	default:
		return "", false
	}
}

func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	return `concat("` + strings.Join(parts, `", '"', "`) + `")`
}

// Find evaluates m under sel. XPath matchers never match parsed documents.
func (m Matcher) Find(sel *goquery.Selection) *goquery.Selection {
	switch m.Strategy {
	case CSS:
		return sel.Find(m.Expr)
	case Text:
		return sel.Find("*").FilterFunction(func(_ int, s *goquery.Selection) bool {
			if !strings.Contains(s.Text(), m.Expr) {
				return false
			}
			inner := false
			s.Children().EachWithBreak(func(_ int, c *goquery.Selection) bool {
				inner = strings.Contains(c.Text(), m.Expr)
				return !inner
			})
			return !inner
		})
	default:
		return sel.Slice(0, 0)
	}
}

type matcherYAML struct {
	CSS   string `yaml:"css,omitempty"`
	XPath string `yaml:"xpath,omitempty"`
	Text  string `yaml:"text,omitempty"`
}

// UnmarshalYAML accepts {css: ...}, {xpath: ...} or {text: ...}.
func (m *Matcher) UnmarshalYAML(node *yaml.Node) error {
	var raw matcherYAML
	if err := node.Decode(&raw); err != nil {
		return eris.Wrap(err, "selector: decode matcher")
	}
	set := 0
	for _, expr := range []string{raw.CSS, raw.XPath, raw.Text} {
		if expr != "" {
			set++
		}
	}
	if set != 1 {
		return eris.Errorf("selector: matcher at line %d needs exactly one of css, xpath, text", node.Line)
	}
	switch {
	case raw.CSS != "":
		*m = ByCSS(raw.CSS)
	case raw.XPath != "":
		*m = ByXPath(raw.XPath)
	default:
		*m = ByText(raw.Text)
	}
	return nil
}

// MarshalYAML writes the same shape UnmarshalYAML reads.
func (m Matcher) MarshalYAML() (any, error) {
	switch m.Strategy {
	case XPath:
		return matcherYAML{XPath: m.Expr}, nil
	case Text:
		return matcherYAML{Text: m.Expr}, nil
	default:
		return matcherYAML{CSS: m.Expr}, nil
	}
}

// Chain is an ordered list of fallback matchers. The first matcher with a
// match wins.
type Chain []Matcher

// Find returns the matches of the first matcher in the chain that matches
// under sel, and that matcher's index. It returns an empty selection and -1
// when nothing matches.
func (c Chain) Find(sel *goquery.Selection) (*goquery.Selection, int) {
	for i, m := range c {
		if found := m.Find(sel); found.Length() > 0 {
			return found, i
		}
	}
	return sel.Slice(0, 0), -1
}

// First returns the first element matched by the chain.
func (c Chain) First(sel *goquery.Selection) *goquery.Selection {
	found, _ := c.Find(sel)
	return found.First()
}

// Matches reports whether any matcher in the chain matches under sel.
func (c Chain) Matches(sel *goquery.Selection) bool {
	_, idx := c.Find(sel)
	return idx >= 0
}
