package searchindex

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/CARBONMOLECULE09/bear-code/internal/model"
)

// MemoryIndex is an in-process Index that ranks entries by query term overlap.
// It is used for tests and for running without a vector backend.
type MemoryIndex struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]model.VectorEntry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{namespaces: make(map[string]map[string]model.VectorEntry)}
}

func (m *MemoryIndex) Upsert(ctx context.Context, namespace string, entry model.VectorEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.ID == "" {
		return fmt.Errorf("vector entry id is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[string]model.VectorEntry)
		m.namespaces[namespace] = ns
	}
	entry.Metadata = cloneMeta(entry.Metadata)
	ns[entry.ID] = entry
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, namespace, query string, limit int, filters map[string]interface{}) ([]model.SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := tokenize(query)

	m.mu.RLock()
	var hits []model.SearchHit
	for id, e := range m.namespaces[namespace] {
		if !matchesFilters(e.Metadata, filters) {
			continue
		}
		score := overlap(terms, tokenize(e.Text))
		if score == 0 {
			continue
		}
		hits = append(hits, model.SearchHit{ID: id, Score: score, Text: e.Text, Metadata: cloneMeta(e.Metadata)})
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].Score > hits[j].Score
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryIndex) Delete(ctx context.Context, namespace, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.namespaces[namespace], id)
	return nil
}

func (m *MemoryIndex) Describe(ctx context.Context, namespace string) (model.IndexStats, error) {
	if err := ctx.Err(); err != nil {
		return model.IndexStats{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return model.IndexStats{Namespace: namespace, VectorCount: int64(len(m.namespaces[namespace]))}, nil
}

// Has reports whether id is stored in namespace.
func (m *MemoryIndex) Has(namespace, id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.namespaces[namespace][id]
	return ok
}

func (m *MemoryIndex) HealthPing(ctx context.Context) error { return ctx.Err() }

func tokenize(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}) {
		out[f] = struct{}{}
	}
	return out
}

// overlap is the fraction of query terms present in the document.
func overlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	var n int
	for t := range query {
		if _, ok := doc[t]; ok {
			n++
		}
	}
	return float64(n) / float64(len(query))
}

func matchesFilters(meta, filters map[string]interface{}) bool {
	for _, k := range filterableKeys {
		want, ok := filters[k].(string)
		if !ok || want == "" {
			continue
		}
		if got, _ := meta[k].(string); got != want {
			return false
		}
	}
	return true
}

func cloneMeta(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
