package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	errNotFound = errors.New("resource not found")
	errConflict = errors.New("resource conflict")
)

// chromaBackend talks to a Chroma server over its v1 REST API. Collections
// are created with cosine distance so distances map onto similarity.
type chromaBackend struct {
	httpClient *http.Client
	transport  *http.Transport
	baseURL    string
	apiKey     string

	mu  sync.Mutex
	ids map[string]string
}

func newChromaBackend(ctx context.Context, rawURL, apiKey string) (*chromaBackend, error) {
	if rawURL == "" {
		return nil, errors.New("chroma url is not set")
	}
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	c := &chromaBackend{
		httpClient: &http.Client{Timeout: 30 * time.Second, Transport: transport},
		transport:  transport,
		baseURL:    strings.TrimRight(rawURL, "/") + "/api/v1",
		apiKey:     apiKey,
		ids:        make(map[string]string),
	}

	const maxAttempts = 3
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = c.doRequest(ctx, http.MethodGet, c.baseURL+"/heartbeat", nil, nil); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 250 * time.Millisecond):
		}
	}
	if err != nil {
		c.transport.CloseIdleConnections()
		return nil, fmt.Errorf("chroma heartbeat: %w", err)
	}
	log.Info().Str("url", rawURL).Msg("Chroma connection established")
	return c, nil
}

func (c *chromaBackend) name() string { return "chroma:" + c.baseURL }

func (c *chromaBackend) collectionID(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	id, ok := c.ids[name]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := c.findCollection(ctx, name)
	if err != nil {
		return "", err
	}
	if id == "" {
		if id, err = c.createCollection(ctx, name); err != nil {
			return "", err
		}
	}
	c.mu.Lock()
	c.ids[name] = id
	c.mu.Unlock()
	return id, nil
}

func (c *chromaBackend) findCollection(ctx context.Context, name string) (string, error) {
	var cols []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	endpoint := fmt.Sprintf("%s/collections?name=%s", c.baseURL, url.QueryEscape(name))
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &cols); err != nil {
		if errors.Is(err, errNotFound) {
			return "", nil
		}
		return "", err
	}
	for _, col := range cols {
		if col.Name == name {
			return col.ID, nil
		}
	}
	return "", nil
}

func (c *chromaBackend) createCollection(ctx context.Context, name string) (string, error) {
	payload := map[string]any{
		"name":     name,
		"metadata": map[string]any{"hnsw:space": "cosine"},
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/collections", payload, &resp); err != nil {
		if errors.Is(err, errConflict) {
			return c.findCollection(ctx, name)
		}
		return "", err
	}
	return resp.ID, nil
}

func (c *chromaBackend) add(ctx context.Context, collection string, rec Record, vector []float32) error {
	id, err := c.collectionID(ctx, collection)
	if err != nil {
		return err
	}
	payload := map[string]any{
		"ids":        []string{rec.ID},
		"documents":  []string{rec.Document},
		"metadatas":  []map[string]string{rec.Metadata},
		"embeddings": [][]float32{vector},
	}
	endpoint := fmt.Sprintf("%s/collections/%s/upsert", c.baseURL, url.PathEscape(id))
	if err := c.doRequest(ctx, http.MethodPost, endpoint, payload, nil); err != nil {
		if !errors.Is(err, errNotFound) {
			return err
		}
		fallback := fmt.Sprintf("%s/collections/%s/add", c.baseURL, url.PathEscape(id))
		return c.doRequest(ctx, http.MethodPost, fallback, payload, nil)
	}
	return nil
}

func (c *chromaBackend) search(ctx context.Context, collection string, vector []float32, n int, where map[string]string) ([]Match, error) {
	id, err := c.collectionID(ctx, collection)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"query_embeddings": [][]float32{vector},
		"n_results":        n,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	if w := whereClause(where); w != nil {
		body["where"] = w
	}
	var resp struct {
		IDs       [][]string            `json:"ids"`
		Distances [][]float64           `json:"distances"`
		Metadatas [][]map[string]string `json:"metadatas"`
		Documents [][]string            `json:"documents"`
	}
	endpoint := fmt.Sprintf("%s/collections/%s/query", c.baseURL, url.PathEscape(id))
	if err := c.doRequest(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	out := make([]Match, 0, len(resp.IDs[0]))
	for i, rid := range resp.IDs[0] {
		m := Match{Record: Record{ID: rid}, Distance: 1}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			m.Document = resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			m.Metadata = resp.Metadatas[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			m.Distance = resp.Distances[0][i]
		}
		m.Similarity = clamp(1 - m.Distance)
		out = append(out, m)
	}
	return out, nil
}

type chromaGetResponse struct {
	IDs       []string            `json:"ids"`
	Documents []string            `json:"documents"`
	Metadatas []map[string]string `json:"metadatas"`
}

func (c *chromaBackend) fetch(ctx context.Context, collection string, body map[string]any) ([]Record, error) {
	id, err := c.collectionID(ctx, collection)
	if err != nil {
		return nil, err
	}
	body["include"] = []string{"documents", "metadatas"}
	var resp chromaGetResponse
	endpoint := fmt.Sprintf("%s/collections/%s/get", c.baseURL, url.PathEscape(id))
	if err := c.doRequest(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(resp.IDs))
	for i, rid := range resp.IDs {
		rec := Record{ID: rid}
		if i < len(resp.Documents) {
			rec.Document = resp.Documents[i]
		}
		if i < len(resp.Metadatas) {
			rec.Metadata = resp.Metadatas[i]
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c *chromaBackend) list(ctx context.Context, collection string, where map[string]string) ([]Record, error) {
	body := map[string]any{}
	if w := whereClause(where); w != nil {
		body["where"] = w
	}
	return c.fetch(ctx, collection, body)
}

func (c *chromaBackend) get(ctx context.Context, collection, id string) (*Record, error) {
	records, err := c.fetch(ctx, collection, map[string]any{"ids": []string{id}})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// whereClause turns equality criteria into a Chroma where filter. More than
// one key needs an explicit $and.
func whereClause(where map[string]string) map[string]any {
	switch len(where) {
	case 0:
		return nil
	case 1:
		for k, v := range where {
			return map[string]any{k: v}
		}
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	clauses := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		clauses = append(clauses, map[string]any{k: where[k]})
	}
	return map[string]any{"$and": clauses}
}

func (c *chromaBackend) doRequest(ctx context.Context, method, endpoint string, body any, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode == http.StatusConflict:
		return errConflict
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chroma %s %s failed: %s", method, endpoint, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *chromaBackend) close() error {
	c.transport.CloseIdleConnections()
	return nil
}
