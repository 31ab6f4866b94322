// Package analytics keeps a short in-memory history of searches and
// summarises it for the dashboard.
package analytics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultHistory is how many searches the tracker remembers.
	DefaultHistory = 100

	popularLimit       = 5
	recentLimit        = 10
	slowResponseMillis = 2000
)

// Search is one recorded search.
type Search struct {
	Query        string    `json:"query"`
	ResultCount  int       `json:"resultCount"`
	ResponseTime int64     `json:"responseTime"` // milliseconds
	Live         bool      `json:"isLiveSearch"`
	MultiQuery   bool      `json:"isMultiQuery"`
	Timestamp    time.Time `json:"timestamp"`
}

// PopularQuery counts how often a query was searched, ignoring case.
type PopularQuery struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// Stats summarises the remembered searches.
type Stats struct {
	TotalSearches       int            `json:"totalSearches"`
	AverageResponseTime int64          `json:"averageResponseTime"`
	AverageResults      int            `json:"averageResults"`
	PopularQueries      []PopularQuery `json:"popularQueries"`
	RecentSearches      []Search       `json:"recentSearches"`
	LiveSearchCount     int            `json:"liveSearchCount"`
	MultiQueryCount     int            `json:"multiQueryCount"`
	Insights            []Insight      `json:"insights"`
}

// Insight is a short observation about search behaviour.
type Insight struct {
	Level   string `json:"type"`
	Message string `json:"message"`
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	limit   int
	history []Search
	now     func() time.Time
}

// NewTracker remembers up to limit searches; limit <= 0 means DefaultHistory.
func NewTracker(limit int) *Tracker {
	if limit <= 0 {
		limit = DefaultHistory
	}
	return &Tracker{limit: limit, now: time.Now}
}

// Record appends a search, dropping the oldest once the history is full.
func (t *Tracker) Record(query string, results int, took time.Duration, live bool) {
	s := Search{
		Query:        query,
		ResultCount:  results,
		ResponseTime: took.Milliseconds(),
		Live:         live,
		MultiQuery:   strings.Contains(query, ","),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	s.Timestamp = t.now()
	t.history = append(t.history, s)
	if over := len(t.history) - t.limit; over > 0 {
		t.history = append([]Search(nil), t.history[over:]...)
	}
}

// Stats computes the summary. An empty history yields zero values and no
// insights.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	history := append([]Search(nil), t.history...)
	t.mu.Unlock()

	st := Stats{
		TotalSearches:  len(history),
		PopularQueries: []PopularQuery{},
		RecentSearches: []Search{},
		Insights:       []Insight{},
	}
	if len(history) == 0 {
		return st
	}

	var took int64
	results := 0
	counts := map[string]int{}
	var order []string
	for _, s := range history {
		took += s.ResponseTime
		results += s.ResultCount
		if s.Live {
			st.LiveSearchCount++
		}
		if s.MultiQuery {
			st.MultiQueryCount++
		}
		q := strings.ToLower(s.Query)
		if _, ok := counts[q]; !ok {
			order = append(order, q)
		}
		counts[q]++
	}
	n := len(history)
	st.AverageResponseTime = took / int64(n)
	st.AverageResults = (results*2 + n) / (2 * n)

	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	for _, q := range order[:min(popularLimit, len(order))] {
		st.PopularQueries = append(st.PopularQueries, PopularQuery{Query: q, Count: counts[q]})
	}

	for i := n - 1; i >= 0 && len(st.RecentSearches) < recentLimit; i-- {
		st.RecentSearches = append(st.RecentSearches, history[i])
	}

	st.Insights = insights(st)
	return st
}

func insights(st Stats) []Insight {
	out := []Insight{}
	if st.AverageResponseTime > slowResponseMillis {
		out = append(out, Insight{Level: "warning", Message: "Search response times are high. Consider narrowing the folder or using fewer terms."})
	}
	if st.AverageResults < 5 {
		out = append(out, Insight{Level: "info", Message: "Searches return few results. Try broader or fewer terms."})
	}
	if st.LiveSearchCount*100 > st.TotalSearches*80 {
		out = append(out, Insight{Level: "success", Message: "Most searches use live results."})
	}
	return out
}

// Reset forgets every recorded search.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = nil
}
