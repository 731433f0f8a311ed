package model

import "time"

// Metrics are engagement counts shown on a post.
type Metrics struct {
	Replies int64 `json:"replies"`
	Reposts int64 `json:"reposts"`
	Likes   int64 `json:"likes"`
	Views   int64 `json:"views"`
}

// Record is one extracted post. ID is the natural key.
type Record struct {
	ID           string    `json:"id"`
	AuthorHandle string    `json:"authorHandle"`
	DisplayName  string    `json:"displayName"`
	Text         string    `json:"text"`
	Timestamp    time.Time `json:"timestamp"`
	URL          string    `json:"url"`
	Metrics      Metrics   `json:"metrics"`
	MediaURLs    []string  `json:"mediaUrls,omitempty"`
	// Query is the term that surfaced the record; empty for a channel timeline.
	Query string `json:"query,omitempty"`
}

// ResultSet is the outcome of one ScrapeQuery. It is not mutated after
// construction; cache hits return a copy with FromCache set.
type ResultSet struct {
	Query     ScrapeQuery `json:"query"`
	Records   []Record    `json:"records"`
	FetchedAt time.Time   `json:"fetchedAt"`
	FromCache bool        `json:"fromCache"`
}

// NewResultSet builds a ResultSet stamped at fetchedAt (UTC).
func NewResultSet(q ScrapeQuery, records []Record, fetchedAt time.Time) ResultSet {
	if records == nil {
		records = []Record{}
	}
	return ResultSet{Query: q, Records: records, FetchedAt: fetchedAt.UTC()}
}

// Cached returns rs marked as served from cache.
func (rs ResultSet) Cached() ResultSet {
	rs.FromCache = true
	return rs
}

// Len returns the number of records.
func (rs ResultSet) Len() int {
	return len(rs.Records)
}

// ByTerm groups records by the term that surfaced them, in query order.
// The channel timeline is keyed by the channel target.
func (rs ResultSet) ByTerm() map[string][]Record {
	out := make(map[string][]Record)
	for _, term := range rs.Query.Terms() {
		key := term
		if key == "" {
			key = rs.Query.Target
		}
		out[key] = []Record{}
	}
	for _, r := range rs.Records {
		key := r.Query
		if key == "" {
			key = rs.Query.Target
		}
		out[key] = append(out[key], r)
	}
	return out
}
