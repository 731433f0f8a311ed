package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// QueryKind selects between a channel timeline and a platform search.
type QueryKind string

const (
	KindChannel QueryKind = "channel"
	KindSearch  QueryKind = "search"
)

// ScrapeQuery is one logical request for content.
type ScrapeQuery struct {
	Kind      QueryKind `json:"kind"`
	Target    string    `json:"target,omitempty"`
	Queries   []string  `json:"queries,omitempty"`
	IsDefault bool      `json:"isDefault"`
}

// Normalize returns a canonical copy of q: trimmed fields, lowercase channel
// handle without a leading "@", and empty terms dropped in order.
func (q ScrapeQuery) Normalize() (ScrapeQuery, error) {
	out := ScrapeQuery{
		Kind:      QueryKind(strings.ToLower(strings.TrimSpace(string(q.Kind)))),
		Target:    strings.TrimSpace(q.Target),
		IsDefault: q.IsDefault,
	}
	for _, term := range q.Queries {
		term = strings.Join(strings.Fields(term), " ")
		if term != "" {
			out.Queries = append(out.Queries, term)
		}
	}

	switch out.Kind {
	case KindChannel:
		out.Target = strings.ToLower(strings.TrimPrefix(out.Target, "@"))
		if out.Target == "" {
			return ScrapeQuery{}, eris.New("model: channel query needs a target")
		}
		if strings.ContainsAny(out.Target, "/?# ") {
			return ScrapeQuery{}, eris.Errorf("model: invalid channel handle %q", out.Target)
		}
	case KindSearch:
		if len(out.Queries) == 0 {
			return ScrapeQuery{}, eris.New("model: no search queries provided")
		}
	default:
		return ScrapeQuery{}, eris.Errorf("model: unknown query kind %q", q.Kind)
	}
	return out, nil
}

// Key derives the cache key. Callers pass a normalized query; equal
// normalized fields always produce the same key. Every field is length
// prefixed, so no term content can imitate a field boundary.
func (q ScrapeQuery) Key() string {
	h := sha256.New()
	field := func(s string) {
		h.Write([]byte(strconv.Itoa(len(s))))
		h.Write([]byte{':'})
		h.Write([]byte(s))
	}
	field(string(q.Kind))
	field(q.Target)
	field(strconv.Itoa(len(q.Queries)))
	for _, term := range q.Queries {
		field(term)
	}
	field(strconv.FormatBool(q.IsDefault))
	return hex.EncodeToString(h.Sum(nil))
}

// Terms returns the query terms to scrape. A channel query without terms
// yields a single empty term meaning the channel timeline itself.
func (q ScrapeQuery) Terms() []string {
	if len(q.Queries) == 0 {
		return []string{""}
	}
	return q.Queries
}

func (q ScrapeQuery) String() string {
	var b strings.Builder
	b.WriteString(string(q.Kind))
	if q.Target != "" {
		b.WriteString(":")
		b.WriteString(q.Target)
	}
	if len(q.Queries) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(q.Queries, ", "))
		b.WriteString("]")
	}
	if q.IsDefault {
		b.WriteString(" default")
	}
	return b.String()
}
