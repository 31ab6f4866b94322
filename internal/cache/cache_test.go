package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cwoolley/playbook/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

type countingRecorder struct{ hits, misses int }

func (r *countingRecorder) Hit()  { r.hits++ }
func (r *countingRecorder) Miss() { r.misses++ }

func key(q string) Key { return Key{Query: q, FolderID: "root"} }

func files(names ...string) []domain.FileRecord {
	out := make([]domain.FileRecord, len(names))
	for i, n := range names {
		out[i] = domain.FileRecord{ID: n, Name: n}
	}
	return out
}

func TestKey_String(t *testing.T) {
	k := Key{Query: "po, 2024", FolderID: "root", SelectedFolder: "f1", FileType: "documents", NameFilter: "po"}
	assert.Equal(t, "po, 2024|root|f1|documents|po", k.String())

	k.Owner = Owner("token-a")
	assert.Equal(t, "po, 2024|root|f1|documents|po|"+k.Owner, k.String())
}

func TestOwner(t *testing.T) {
	assert.Empty(t, Owner(""))
	assert.Len(t, Owner("token-a"), 16)
	assert.Equal(t, Owner("token-a"), Owner("token-a"))
	assert.NotEqual(t, Owner("token-a"), Owner("token-b"))
	assert.NotContains(t, Owner("token-a"), "token")
}

func TestCache_OwnersDoNotShareEntries(t *testing.T) {
	c := New(DefaultTTL, DefaultCapacity)
	a := Key{Query: "steel", Owner: Owner("token-a")}
	b := Key{Query: "steel", Owner: Owner("token-b")}

	c.Set(a, files("private"), "")
	_, ok := c.Get(b)
	assert.False(t, ok)
	e, ok := c.Get(a)
	require.True(t, ok)
	assert.Equal(t, "private", e.Files[0].ID)
}

func TestCache_GetWithinTTL(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := New(DefaultTTL, DefaultCapacity, WithClock(clock.Now))

	c.Set(key("a"), files("1"), "next")
	clock.Advance(4 * time.Minute)

	e, ok := c.Get(key("a"))
	require.True(t, ok)
	assert.Equal(t, "next", e.NextPageToken)
	assert.Len(t, e.Files, 1)
}

func TestCache_GetAfterTTLRemovesEntry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := New(DefaultTTL, DefaultCapacity, WithClock(clock.Now))

	c.Set(key("a"), files("1"), "")
	clock.Advance(5*time.Minute + time.Second)

	_, ok := c.Get(key("a"))
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New(DefaultTTL, 50)
	for i := 0; i < 50; i++ {
		c.Set(key(fmt.Sprint(i)), files("f"), "")
	}

	// Touch 0 so that 1 becomes the least recently used.
	_, ok := c.Get(key("0"))
	require.True(t, ok)

	c.Set(key("50"), files("f"), "")

	assert.Equal(t, 50, c.Len())
	_, ok = c.Get(key("1"))
	assert.False(t, ok, "entry 1 should have been evicted")
	for _, k := range []string{"0", "2", "49", "50"} {
		_, ok := c.Get(key(k))
		assert.True(t, ok, k)
	}
}

func TestCache_SetExistingKeyRefreshes(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := New(time.Minute, 2, WithClock(clock.Now))

	c.Set(key("a"), files("1"), "")
	c.Set(key("b"), files("2"), "")
	clock.Advance(50 * time.Second)
	c.Set(key("a"), files("3"), "")
	clock.Advance(20 * time.Second)

	e, ok := c.Get(key("a"))
	require.True(t, ok)
	assert.Equal(t, "3", e.Files[0].ID)
	_, ok = c.Get(key("b"))
	assert.False(t, ok)
}

func TestCache_RecordsHitsAndMisses(t *testing.T) {
	rec := &countingRecorder{}
	c := New(0, 0, WithRecorder(rec))

	_, _ = c.Get(key("a"))
	c.Set(key("a"), files("1"), "")
	_, _ = c.Get(key("a"))

	assert.Equal(t, 1, rec.hits)
	assert.Equal(t, 1, rec.misses)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(DefaultTTL, 10)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := key(fmt.Sprint(i % 5))
			c.Set(k, files("f"), "")
			_, _ = c.Get(k)
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 10)
}

func TestCache_Clear(t *testing.T) {
	c := New(DefaultTTL, DefaultCapacity)
	c.Set(key("a"), files("1"), "")
	c.Clear()
	assert.Equal(t, 0, c.Len())
}
