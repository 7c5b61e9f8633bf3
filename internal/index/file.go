package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/hardgate/internal/fsutil"
)

// fileBackend keeps each collection in <dir>/<collection>.json. The file is
// re-read before every write so concurrent processes do not drop records.
type fileBackend struct {
	dir string
	mu  sync.Mutex
}

type collectionFile struct {
	Records []stored `json:"records"`
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

func newFileBackend(dir string) (*fileBackend, error) {
	if dir == "" {
		return nil, fmt.Errorf("index persist directory is not set")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	return &fileBackend{dir: dir}, nil
}

func (f *fileBackend) name() string { return "file:" + f.dir }

func (f *fileBackend) path(collection string) string {
	return filepath.Join(f.dir, unsafeName.ReplaceAllString(collection, "_")+".json")
}

func (f *fileBackend) load(collection string) (collectionFile, error) {
	var cf collectionFile
	if _, err := fsutil.ReadJSON(f.path(collection), &cf); err != nil {
		return cf, fmt.Errorf("read collection %s: %w", collection, err)
	}
	return cf, nil
}

func (f *fileBackend) add(_ context.Context, collection string, rec Record, vector []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cf, err := f.load(collection)
	if err != nil {
		return err
	}
	cf.Records = append(cf.Records, stored{Record: rec, Embedding: vector})
	return fsutil.WriteJSONAtomic(f.path(collection), cf)
}

func (f *fileBackend) search(_ context.Context, collection string, vector []float32, n int, where map[string]string) ([]Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cf, err := f.load(collection)
	if err != nil {
		return nil, err
	}
	return rank(cf.Records, vector, n, where), nil
}

func (f *fileBackend) list(_ context.Context, collection string, where map[string]string) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cf, err := f.load(collection)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range cf.Records {
		if satisfies(r.Metadata, where) {
			out = append(out, r.Record)
		}
	}
	return out, nil
}

func (f *fileBackend) get(_ context.Context, collection, id string) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cf, err := f.load(collection)
	if err != nil {
		return nil, err
	}
	for _, r := range cf.Records {
		if r.ID == id {
			rec := r.Record
			return &rec, nil
		}
	}
	return nil, nil
}

func (f *fileBackend) close() error { return nil }
