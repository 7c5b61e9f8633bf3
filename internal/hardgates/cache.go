package hardgates

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hardgate/internal/fsutil"
	"github.com/hardgate/internal/taxonomy"
)

// RecordCache stores validated records on disk. An empty dir disables it.
type RecordCache struct {
	dir string
}

// NewRecordCache returns a cache rooted at dir.
func NewRecordCache(dir string) *RecordCache {
	return &RecordCache{dir: dir}
}

// CacheKey identifies an analysis by project, file count and the sorted
// special folder names.
func CacheKey(project string, fileCount int, folders []string) string {
	sorted := append([]string(nil), folders...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", project, fileCount, strings.Join(sorted, ","))))
	return hex.EncodeToString(sum[:])
}

func (c *RecordCache) path(key string) string {
	return filepath.Join(c.dir, "analysis_"+key+".json")
}

// Get returns the cached record for key.
func (c *RecordCache) Get(key string) (*taxonomy.AnalysisRecord, bool) {
	if c == nil || c.dir == "" {
		return nil, false
	}
	var rec taxonomy.AnalysisRecord
	ok, err := fsutil.ReadJSON(c.path(key), &rec)
	if err != nil || !ok {
		return nil, false
	}
	return &rec, true
}

// Put stores rec under key.
func (c *RecordCache) Put(key string, rec *taxonomy.AnalysisRecord) error {
	if c == nil || c.dir == "" {
		return nil
	}
	return fsutil.WriteJSONAtomic(c.path(key), rec)
}
