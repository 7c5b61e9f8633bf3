// Package index stores rendered reports with their embeddings so they can be
// searched by meaning or filtered by metadata later on.
//
// Documents live in named collections, one for analysis reports and one for
// OpenShift assessments. Three backends are available: a JSON file per
// collection, a Chroma server, and a Postgres table. When the index is
// disabled every operation succeeds with an empty result.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hardgate/internal/config"
	"github.com/hardgate/internal/embedding"
	"github.com/hardgate/internal/logging"
)

// Metadata keys written for every stored report.
const (
	MetaComponent  = "component_name"
	MetaFilePath   = "file_path"
	MetaReportType = "report_type"
	MetaStoredAt   = "stored_at"
)

// Report types.
const (
	TypeAnalysis = "analysis"
	TypeOCP      = "ocp_assessment"
	TypeInsights = "migration_insights"
)

var (
	// ErrUnknownCollection is returned for a collection name the index was not configured with.
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrNotFound is returned by Get for a missing id.
	ErrNotFound = errors.New("report not found")
)

// Record is a stored document.
type Record struct {
	ID       string            `json:"id"`
	Document string            `json:"document"`
	Metadata map[string]string `json:"metadata"`
}

// Match is a query hit. Similarity is 1 - Distance, clamped to [0,1].
type Match struct {
	Record
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
}

// Similar is a ranked hit as shown by the reports command and the API.
type Similar struct {
	Rank          int     `json:"rank"`
	ID            string  `json:"id"`
	ComponentName string  `json:"component_name"`
	FilePath      string  `json:"file_path"`
	Similarity    float64 `json:"similarity_score"`
	Snippet       string  `json:"snippet,omitempty"`
	Context       string  `json:"relevant_context,omitempty"`
	Document      string  `json:"document"`
}

// Index is the report index.
type Index interface {
	Enabled() bool
	Store(ctx context.Context, collection, document string, metadata map[string]string) (string, error)
	Query(ctx context.Context, collection, text string, n int) ([]Match, error)
	Filter(ctx context.Context, collection string, criteria map[string]string) ([]Record, error)
	ListComponents(ctx context.Context, collection string) ([]string, error)
	Get(ctx context.Context, collection, id string) (*Record, error)
	// FindSimilar ranks reports against the stored report id, or against
	// text when id is empty.
	FindSimilar(ctx context.Context, collection, id, text string, n int) ([]Similar, error)
	// ContextSearch ranks reports against a free-text description, dropping
	// hits below minScore and, when component is set, other components.
	ContextSearch(ctx context.Context, collection, text string, n int, minScore float64, component string) ([]Similar, error)
	Close() error
}

// Collections names the two configured collections.
type Collections struct {
	Analysis string
	OCP      string
}

// CollectionsFrom reads the collection names from cfg.
func CollectionsFrom(cfg config.IndexConfig) Collections {
	return Collections{Analysis: cfg.AnalysisCollection, OCP: cfg.OCPCollection}
}

// Resolve maps "analysis", "ocp" or a configured collection name to the
// collection name.
func (c Collections) Resolve(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", TypeAnalysis, "insights", TypeInsights:
		return c.Analysis, nil
	case "ocp", TypeOCP:
		return c.OCP, nil
	}
	if kind == c.Analysis || kind == c.OCP {
		return kind, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownCollection, kind)
}

func (c Collections) valid(name string) error {
	if name == "" || (name != c.Analysis && name != c.OCP) {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	return nil
}

// ReportMetadata builds the metadata stored beside a report.
func ReportMetadata(component, filePath, reportType string) map[string]string {
	return map[string]string{
		MetaComponent:  component,
		MetaFilePath:   filePath,
		MetaReportType: reportType,
	}
}

// backend persists records and ranks them against a query vector.
type backend interface {
	name() string
	add(ctx context.Context, collection string, rec Record, vector []float32) error
	search(ctx context.Context, collection string, vector []float32, n int, where map[string]string) ([]Match, error)
	list(ctx context.Context, collection string, where map[string]string) ([]Record, error)
	get(ctx context.Context, collection, id string) (*Record, error)
	close() error
}

// New opens the configured backend. A backend that cannot be reached leaves
// the index disabled rather than failing the run.
func New(ctx context.Context, cfg *config.Config, embedder embedding.Embedder) (Index, error) {
	if !cfg.Index.Enabled {
		log.Info().Msg("Report index disabled by configuration")
		return Disabled{}, nil
	}

	var (
		b   backend
		err error
	)
	switch cfg.Index.Backend {
	case "", "file":
		b, err = newFileBackend(cfg.Index.PersistDir)
	case "chroma":
		b, err = newChromaBackend(ctx, cfg.Index.ChromaURL, cfg.Index.ChromaAPIKey)
	case "postgres":
		b, err = newPostgresBackend(ctx, cfg.DatabaseURL)
	default:
		return nil, &config.Error{Field: "index.backend", Msg: fmt.Sprintf("unsupported backend %q", cfg.Index.Backend)}
	}
	if err != nil {
		log.Warn().Err(err).Str("backend", cfg.Index.Backend).Msg("Report index unavailable, storage disabled")
		logging.GetCurrentLogger().LogError("report index", err)
		return Disabled{}, nil
	}

	log.Info().Str("backend", b.name()).Str("embedder", embedder.Name()).Msg("Report index ready")
	return newReportIndex(b, embedder, CollectionsFrom(cfg.Index)), nil
}

type reportIndex struct {
	backend     backend
	embedder    embedding.Embedder
	collections Collections
	now         func() time.Time
}

func newReportIndex(b backend, e embedding.Embedder, c Collections) *reportIndex {
	return &reportIndex{backend: b, embedder: e, collections: c, now: time.Now}
}

func (ix *reportIndex) Enabled() bool { return true }

// Store embeds the document and persists it. An embedding failure stores a
// zero vector so the report stays reachable through Filter.
func (ix *reportIndex) Store(ctx context.Context, collection, document string, metadata map[string]string) (string, error) {
	if err := ix.collections.valid(collection); err != nil {
		return "", err
	}

	vector := ix.embed(ctx, document)
	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	if _, ok := meta[MetaStoredAt]; !ok {
		meta[MetaStoredAt] = ix.now().UTC().Format(time.RFC3339)
	}

	rec := Record{ID: uuid.NewString(), Document: document, Metadata: meta}
	if err := ix.backend.add(ctx, collection, rec, vector); err != nil {
		return "", fmt.Errorf("store report in %s: %w", collection, err)
	}

	log.Info().Str("collection", collection).Str("component", meta[MetaComponent]).Str("id", rec.ID).Msg("Stored report")
	logging.GetCurrentLogger().Log("Stored %s report for component '%s' with ID: %s", collection, meta[MetaComponent], rec.ID)
	return rec.ID, nil
}

func (ix *reportIndex) embed(ctx context.Context, text string) []float32 {
	vectors, err := ix.embedder.Embed(ctx, []string{text})
	if err != nil || len(vectors) != 1 || len(vectors[0]) == 0 {
		if err == nil {
			err = errors.New("empty embedding")
		}
		log.Warn().Err(err).Str("embedder", ix.embedder.Name()).Msg("Embedding failed, using zero vector")
		return make([]float32, ix.embedder.Dimension())
	}
	return vectors[0]
}

func (ix *reportIndex) Query(ctx context.Context, collection, text string, n int) ([]Match, error) {
	return ix.query(ctx, collection, text, n, nil)
}

func (ix *reportIndex) query(ctx context.Context, collection, text string, n int, where map[string]string) ([]Match, error) {
	if err := ix.collections.valid(collection); err != nil {
		return nil, err
	}
	if n <= 0 {
		n = 5
	}
	matches, err := ix.backend.search(ctx, collection, ix.embed(ctx, text), n, where)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return matches, nil
}

func (ix *reportIndex) Filter(ctx context.Context, collection string, criteria map[string]string) ([]Record, error) {
	if err := ix.collections.valid(collection); err != nil {
		return nil, err
	}
	records, err := ix.backend.list(ctx, collection, criteria)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", collection, err)
	}
	return records, nil
}

func (ix *reportIndex) ListComponents(ctx context.Context, collection string) ([]string, error) {
	records, err := ix.Filter(ctx, collection, nil)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		name := r.Metadata[MetaComponent]
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (ix *reportIndex) Get(ctx context.Context, collection, id string) (*Record, error) {
	if err := ix.collections.valid(collection); err != nil {
		return nil, err
	}
	rec, err := ix.backend.get(ctx, collection, id)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

func (ix *reportIndex) FindSimilar(ctx context.Context, collection, id, text string, n int) ([]Similar, error) {
	if id == "" && text == "" {
		return nil, errors.New("either a report id or report content is required")
	}
	if id != "" {
		rec, err := ix.Get(ctx, collection, id)
		if err != nil {
			return nil, err
		}
		text = rec.Document
	}

	matches, err := ix.query(ctx, collection, text, n, nil)
	if err != nil {
		return nil, err
	}
	out := make([]Similar, 0, len(matches))
	for i, m := range matches {
		s := similarFrom(m, i+1)
		s.Snippet = truncate(m.Document, 200)
		out = append(out, s)
	}
	return out, nil
}

func (ix *reportIndex) ContextSearch(ctx context.Context, collection, text string, n int, minScore float64, component string) ([]Similar, error) {
	var where map[string]string
	if component != "" {
		where = map[string]string{MetaComponent: component}
	}
	matches, err := ix.query(ctx, collection, text, n, where)
	if err != nil {
		return nil, err
	}

	var out []Similar
	for _, m := range matches {
		if m.Similarity < minScore {
			continue
		}
		s := similarFrom(m, len(out)+1)
		s.Context = bestParagraph(text, m.Document)
		out = append(out, s)
	}
	return out, nil
}

func (ix *reportIndex) Close() error {
	return ix.backend.close()
}

func similarFrom(m Match, rank int) Similar {
	return Similar{
		Rank:          rank,
		ID:            m.ID,
		ComponentName: orUnknown(m.Metadata[MetaComponent]),
		FilePath:      orUnknown(m.Metadata[MetaFilePath]),
		Similarity:    m.Similarity,
		Document:      m.Document,
	}
}

// bestParagraph returns the paragraph of doc sharing the most words with
// the query, or the head of the document.
func bestParagraph(query, doc string) string {
	queryWords := wordSet(query)
	best, bestScore := "", -1.0
	for _, p := range strings.Split(doc, "\n\n") {
		if strings.TrimSpace(p) == "" {
			continue
		}
		common := 0
		for w := range wordSet(p) {
			if queryWords[w] {
				common++
			}
		}
		score := float64(common) / math.Max(1, float64(len(queryWords)))
		if score > bestScore {
			best, bestScore = p, score
		}
	}
	if best == "" {
		return truncate(doc, 300)
	}
	return best
}

func wordSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = true
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// satisfies reports whether meta satisfies every equality criterion.
func satisfies(meta, where map[string]string) bool {
	for k, v := range where {
		if meta[k] != v {
			return false
		}
	}
	return true
}

// Similarity is the cosine similarity of a and b clamped to [0,1]. Zero
// or mismatched vectors score 0.
func Similarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return clamp(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

type stored struct {
	Record
	Embedding []float32 `json:"embedding"`
}

// rank orders records by similarity to query, keeping insertion order on ties.
func rank(records []stored, query []float32, n int, where map[string]string) []Match {
	var out []Match
	for _, r := range records {
		if !satisfies(r.Metadata, where) {
			continue
		}
		sim := Similarity(query, r.Embedding)
		out = append(out, Match{Record: r.Record, Distance: 1 - sim, Similarity: sim})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Disabled is the index used when storage is turned off.
type Disabled struct{}

func (Disabled) Enabled() bool { return false }
func (Disabled) Store(context.Context, string, string, map[string]string) (string, error) {
	return "", nil
}
func (Disabled) Query(context.Context, string, string, int) ([]Match, error) { return nil, nil }
func (Disabled) Filter(context.Context, string, map[string]string) ([]Record, error) {
	return nil, nil
}
func (Disabled) ListComponents(context.Context, string) ([]string, error) { return nil, nil }
func (Disabled) Get(context.Context, string, string) (*Record, error)     { return nil, nil }
func (Disabled) FindSimilar(context.Context, string, string, string, int) ([]Similar, error) {
	return nil, nil
}
func (Disabled) ContextSearch(context.Context, string, string, int, float64, string) ([]Similar, error) {
	return nil, nil
}
func (Disabled) Close() error { return nil }
