package index

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hardgate/internal/config"
	"github.com/hardgate/internal/embedding"
)

// wordEmbedder hashes words into a small bag-of-words vector.
type wordEmbedder struct{}

func (wordEmbedder) Name() string   { return "words" }
func (wordEmbedder) Dimension() int { return 16 }
func (wordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, 16)
		for _, w := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			h.Write([]byte(w))
			v[h.Sum32()%16]++
		}
		out[i] = v
	}
	return out, nil
}

var testCollections = Collections{Analysis: "analysis_reports", OCP: "ocp_assessment_reports"}

func newFileIndex(t *testing.T, e embedding.Embedder) *reportIndex {
	t.Helper()
	b, err := newFileBackend(t.TempDir())
	require.NoError(t, err)
	return newReportIndex(b, e, testCollections)
}

const (
	paymentsReport = "# Payments\n\nUses kafka and redis for settlement events.\n\nLogging is structured."
	ledgerReport   = "# Ledger\n\nBatch jobs on AutoSys write to NAS shares.\n\nNo health checks."
)

func TestStoreAndQuery_ExactDocumentRanksFirst(t *testing.T) {
	ctx := context.Background()
	ix := newFileIndex(t, wordEmbedder{})

	id, err := ix.Store(ctx, "analysis_reports", paymentsReport, ReportMetadata("payments", "out/payments.md", TypeAnalysis))
	require.NoError(t, err)
	_, err = ix.Store(ctx, "analysis_reports", ledgerReport, ReportMetadata("ledger", "out/ledger.md", TypeAnalysis))
	require.NoError(t, err)

	matches, err := ix.Query(ctx, "analysis_reports", paymentsReport, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, id, matches[0].ID)
	assert.GreaterOrEqual(t, matches[0].Similarity, 0.99)
	assert.InDelta(t, 1-matches[0].Similarity, matches[0].Distance, 1e-9)
	assert.NotEmpty(t, matches[0].Metadata[MetaStoredAt])
}

func TestFilterListAndGet(t *testing.T) {
	ctx := context.Background()
	ix := newFileIndex(t, wordEmbedder{})

	id, err := ix.Store(ctx, "analysis_reports", paymentsReport, ReportMetadata("payments", "a.md", TypeAnalysis))
	require.NoError(t, err)
	_, err = ix.Store(ctx, "analysis_reports", ledgerReport, ReportMetadata("ledger", "b.md", TypeAnalysis))
	require.NoError(t, err)
	_, err = ix.Store(ctx, "ocp_assessment_reports", "ocp", ReportMetadata("billing", "c.html", TypeOCP))
	require.NoError(t, err)

	records, err := ix.Filter(ctx, "analysis_reports", map[string]string{MetaComponent: "payments"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, paymentsReport, records[0].Document)

	names, err := ix.ListComponents(ctx, "analysis_reports")
	require.NoError(t, err)
	assert.Equal(t, []string{"ledger", "payments"}, names)

	rec, err := ix.Get(ctx, "analysis_reports", id)
	require.NoError(t, err)
	assert.Equal(t, "a.md", rec.Metadata[MetaFilePath])

	_, err = ix.Get(ctx, "analysis_reports", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnknownCollection(t *testing.T) {
	ix := newFileIndex(t, wordEmbedder{})
	_, err := ix.Store(context.Background(), "other", "doc", nil)
	assert.ErrorIs(t, err, ErrUnknownCollection)
	_, err = ix.Query(context.Background(), "", "doc", 3)
	assert.ErrorIs(t, err, ErrUnknownCollection)
}

func TestCollectionsResolve(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "analysis_reports", false},
		{"analysis", "analysis_reports", false},
		{"OCP", "ocp_assessment_reports", false},
		{"migration_insights", "analysis_reports", false},
		{"ocp_assessment_reports", "ocp_assessment_reports", false},
		{"other", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := testCollections.Resolve(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownCollection)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindSimilar(t *testing.T) {
	ctx := context.Background()
	ix := newFileIndex(t, wordEmbedder{})

	id, err := ix.Store(ctx, "analysis_reports", paymentsReport, ReportMetadata("payments", "a.md", TypeAnalysis))
	require.NoError(t, err)
	_, err = ix.Store(ctx, "analysis_reports", ledgerReport, ReportMetadata("ledger", "b.md", TypeAnalysis))
	require.NoError(t, err)

	similar, err := ix.FindSimilar(ctx, "analysis_reports", id, "", 2)
	require.NoError(t, err)
	require.Len(t, similar, 2)
	assert.Equal(t, 1, similar[0].Rank)
	assert.Equal(t, "payments", similar[0].ComponentName)
	assert.True(t, strings.HasPrefix(paymentsReport, similar[0].Snippet))

	_, err = ix.FindSimilar(ctx, "analysis_reports", "", "", 2)
	assert.Error(t, err)
}

func TestContextSearch(t *testing.T) {
	ctx := context.Background()
	ix := newFileIndex(t, wordEmbedder{})

	_, err := ix.Store(ctx, "analysis_reports", paymentsReport, ReportMetadata("payments", "a.md", TypeAnalysis))
	require.NoError(t, err)
	_, err = ix.Store(ctx, "analysis_reports", ledgerReport, ReportMetadata("ledger", "b.md", TypeAnalysis))
	require.NoError(t, err)

	hits, err := ix.ContextSearch(ctx, "analysis_reports", "kafka and redis for settlement events", 5, 0.3, "")
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "payments", hits[0].ComponentName)
	assert.Equal(t, "Uses kafka and redis for settlement events.", hits[0].Context)
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Similarity, 0.3)
	}

	hits, err = ix.ContextSearch(ctx, "analysis_reports", "kafka", 5, 0, "ledger")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "ledger", hits[0].ComponentName)
}

func TestStore_UnreachableEndpointStillFilterable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx := context.Background()
	e := embedding.NewEndpoint(config.EmbeddingConfig{EndpointURL: srv.URL, EndpointTimeout: 1, FallbackDim: 8})
	dir := t.TempDir()
	b, err := newFileBackend(dir)
	require.NoError(t, err)
	ix := newReportIndex(b, e, testCollections)

	_, err = ix.Store(ctx, "analysis_reports", paymentsReport, ReportMetadata("payments", "a.md", TypeAnalysis))
	require.NoError(t, err)

	var cf collectionFile
	data, err := os.ReadFile(filepath.Join(dir, "analysis_reports.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &cf))
	require.Len(t, cf.Records, 1)
	assert.Equal(t, make([]float32, 8), cf.Records[0].Embedding)

	records, err := ix.Filter(ctx, "analysis_reports", map[string]string{MetaComponent: "payments"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	matches, err := ix.Query(ctx, "analysis_reports", "payments", 3)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Zero(t, matches[0].Similarity)
}

func TestNew_Disabled(t *testing.T) {
	cfg := &config.Config{Index: config.IndexConfig{Enabled: false}}
	ix, err := New(context.Background(), cfg, wordEmbedder{})
	require.NoError(t, err)
	assert.False(t, ix.Enabled())

	id, err := ix.Store(context.Background(), "anything", "doc", nil)
	assert.NoError(t, err)
	assert.Empty(t, id)
	names, err := ix.ListComponents(context.Background(), "anything")
	assert.NoError(t, err)
	assert.Empty(t, names)
}

func TestNew_FileBackend(t *testing.T) {
	cfg := &config.Config{Index: config.IndexConfig{
		Enabled: true, Backend: "file", PersistDir: t.TempDir(),
		AnalysisCollection: "analysis_reports", OCPCollection: "ocp_assessment_reports",
	}}
	ix, err := New(context.Background(), cfg, wordEmbedder{})
	require.NoError(t, err)
	assert.True(t, ix.Enabled())
	require.NoError(t, ix.Close())
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2}, []float32{1, 2}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite clamps to zero", []float32{1, 0}, []float32{-1, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
		})
	}
}

// fakeChroma serves the subset of the Chroma v1 API the backend uses.
type fakeChroma struct {
	mu      sync.Mutex
	records []stored
	created []map[string]any
}

func (f *fakeChroma) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/api/v1/heartbeat":
		w.Write([]byte(`{"nanosecond heartbeat": 1}`))
	case r.URL.Path == "/api/v1/collections" && r.Method == http.MethodGet:
		if len(f.created) == 0 {
			w.Write([]byte(`[]`))
			return
		}
		json.NewEncoder(w).Encode([]map[string]string{{"id": "col-1", "name": "analysis_reports"}})
	case r.URL.Path == "/api/v1/collections" && r.Method == http.MethodPost:
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.created = append(f.created, body)
		w.Write([]byte(`{"id": "col-1"}`))
	case r.URL.Path == "/api/v1/collections/col-1/upsert":
		var body struct {
			IDs        []string            `json:"ids"`
			Documents  []string            `json:"documents"`
			Metadatas  []map[string]string `json:"metadatas"`
			Embeddings [][]float32         `json:"embeddings"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		for i := range body.IDs {
			f.records = append(f.records, stored{
				Record:    Record{ID: body.IDs[i], Document: body.Documents[i], Metadata: body.Metadatas[i]},
				Embedding: body.Embeddings[i],
			})
		}
		w.Write([]byte(`true`))
	case r.URL.Path == "/api/v1/collections/col-1/query":
		var body struct {
			Query [][]float32       `json:"query_embeddings"`
			N     int               `json:"n_results"`
			Where map[string]string `json:"where"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		ranked := rank(f.records, body.Query[0], body.N, body.Where)
		resp := map[string]any{"ids": [][]string{{}}, "documents": [][]string{{}}, "metadatas": [][]map[string]string{{}}, "distances": [][]float64{{}}}
		for _, m := range ranked {
			resp["ids"].([][]string)[0] = append(resp["ids"].([][]string)[0], m.ID)
			resp["documents"].([][]string)[0] = append(resp["documents"].([][]string)[0], m.Document)
			resp["metadatas"].([][]map[string]string)[0] = append(resp["metadatas"].([][]map[string]string)[0], m.Metadata)
			resp["distances"].([][]float64)[0] = append(resp["distances"].([][]float64)[0], m.Distance)
		}
		json.NewEncoder(w).Encode(resp)
	case r.URL.Path == "/api/v1/collections/col-1/get":
		var body struct {
			IDs   []string          `json:"ids"`
			Where map[string]string `json:"where"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		resp := chromaGetResponse{}
		for _, rec := range f.records {
			if len(body.IDs) > 0 && rec.ID != body.IDs[0] {
				continue
			}
			if !satisfies(rec.Metadata, body.Where) {
				continue
			}
			resp.IDs = append(resp.IDs, rec.ID)
			resp.Documents = append(resp.Documents, rec.Document)
			resp.Metadatas = append(resp.Metadatas, rec.Metadata)
		}
		json.NewEncoder(w).Encode(resp)
	default:
		http.NotFound(w, r)
	}
}

func TestChromaBackend(t *testing.T) {
	fake := &fakeChroma{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	cfg := &config.Config{Index: config.IndexConfig{
		Enabled: true, Backend: "chroma", ChromaURL: srv.URL,
		AnalysisCollection: "analysis_reports", OCPCollection: "ocp_assessment_reports",
	}}
	ix, err := New(ctx, cfg, wordEmbedder{})
	require.NoError(t, err)
	require.True(t, ix.Enabled())
	defer ix.Close()

	id, err := ix.Store(ctx, "analysis_reports", paymentsReport, ReportMetadata("payments", "a.md", TypeAnalysis))
	require.NoError(t, err)
	_, err = ix.Store(ctx, "analysis_reports", ledgerReport, ReportMetadata("ledger", "b.md", TypeAnalysis))
	require.NoError(t, err)

	require.Len(t, fake.created, 1)
	assert.Equal(t, map[string]any{"hnsw:space": "cosine"}, fake.created[0]["metadata"])

	matches, err := ix.Query(ctx, "analysis_reports", paymentsReport, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, id, matches[0].ID)
	assert.GreaterOrEqual(t, matches[0].Similarity, 0.99)

	rec, err := ix.Get(ctx, "analysis_reports", id)
	require.NoError(t, err)
	assert.Equal(t, "payments", rec.Metadata[MetaComponent])

	names, err := ix.ListComponents(ctx, "analysis_reports")
	require.NoError(t, err)
	assert.Equal(t, []string{"ledger", "payments"}, names)
}

func TestNew_UnreachableChromaDisablesIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := &config.Config{Index: config.IndexConfig{Enabled: true, Backend: "chroma", ChromaURL: srv.URL}}
	ix, err := New(context.Background(), cfg, wordEmbedder{})
	require.NoError(t, err)
	assert.False(t, ix.Enabled())
}

func TestWhereClause(t *testing.T) {
	assert.Nil(t, whereClause(nil))
	assert.Equal(t, map[string]any{"a": "1"}, whereClause(map[string]string{"a": "1"}))
	assert.Equal(t, map[string]any{"$and": []map[string]any{{"a": "1"}, {"b": "2"}}},
		whereClause(map[string]string{"b": "2", "a": "1"}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))

	got := truncate(strings.Repeat("ü", 10), 5)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "üü...", got)
}
