// Package cache holds recent first-page search results.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/cwoolley/playbook/internal/domain"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultTTL      = 5 * time.Minute
	DefaultCapacity = 50
)

// Key identifies a cached search. Owner partitions entries between callers
// so one caller never sees pages listed with another caller's credentials.
type Key struct {
	Query          string
	FolderID       string
	SelectedFolder string
	FileType       string
	NameFilter     string
	Owner          string
}

func (k Key) String() string {
	s := strings.Join([]string{k.Query, k.FolderID, k.SelectedFolder, k.FileType, k.NameFilter}, "|")
	if k.Owner != "" {
		s += "|" + k.Owner
	}
	return s
}

// Owner derives a Key.Owner from a credential without keeping the
// credential itself.
func Owner(credential string) string {
	if credential == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:8])
}

// Entry is one cached result page.
type Entry struct {
	Files         []domain.FileRecord
	NextPageToken string
	StoredAt      time.Time
}

// Recorder observes hits and misses.
type Recorder interface {
	Hit()
	Miss()
}

type nopRecorder struct{}

func (nopRecorder) Hit()  {}
func (nopRecorder) Miss() {}

// Cache is an expiring LRU of result pages. StoredAt is checked against the
// injected clock as well, so expiry follows WithClock in tests.
type Cache struct {
	ttl      time.Duration
	lru      *expirable.LRU[string, Entry]
	now      func() time.Time
	recorder Recorder
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithRecorder reports hits and misses.
func WithRecorder(r Recorder) Option {
	return func(c *Cache) { c.recorder = r }
}

// New creates a cache. Non-positive ttl or capacity fall back to the defaults.
func New(ttl time.Duration, capacity int, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{
		ttl:      ttl,
		lru:      expirable.NewLRU[string, Entry](capacity, nil, ttl),
		now:      time.Now,
		recorder: nopRecorder{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns a live entry and marks it most recently used.
// Expired entries are removed and reported as absent.
func (c *Cache) Get(k Key) (Entry, bool) {
	key := k.String()
	e, ok := c.lru.Get(key)
	if !ok {
		c.recorder.Miss()
		return Entry{}, false
	}
	if c.now().Sub(e.StoredAt) > c.ttl {
		c.lru.Remove(key)
		c.recorder.Miss()
		return Entry{}, false
	}
	c.recorder.Hit()
	return e, true
}

// Set stores files under k, evicting the least recently used entry when full.
func (c *Cache) Set(k Key, files []domain.FileRecord, nextPageToken string) {
	c.lru.Add(k.String(), Entry{Files: files, NextPageToken: nextPageToken, StoredAt: c.now()})
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.lru.Purge()
}
