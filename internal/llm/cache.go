package llm

import (
	"sync"

	"github.com/hardgate/internal/fsutil"
)

// Cache is an on-disk prompt to response mapping stored as one JSON file.
// Every write re-reads the file first so concurrent runs do not drop entries.
type Cache struct {
	path string
	mu   sync.Mutex
}

// NewCache returns a cache backed by path. An empty path disables caching.
func NewCache(path string) *Cache {
	return &Cache{path: path}
}

func (c *Cache) load() map[string]string {
	entries := map[string]string{}
	if _, err := fsutil.ReadJSON(c.path, &entries); err != nil {
		logCacheProblem("read", c.path, err)
		return map[string]string{}
	}
	return entries
}

// Get returns the cached response for prompt.
func (c *Cache) Get(prompt string) (string, bool) {
	if c == nil || c.path == "" {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, ok := c.load()[prompt]
	return resp, ok
}

// Put stores response under prompt.
func (c *Cache) Put(prompt, response string) error {
	if c == nil || c.path == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.load()
	entries[prompt] = response
	return fsutil.WriteJSONAtomic(c.path, entries)
}
