package searchindex

import (
	"context"
	"hash/fnv"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CARBONMOLECULE09/bear-code/internal/model"
)

// hashEmbedder produces a deterministic bag-of-words vector.
type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 32)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[h.Sum32()%32]++
	}
	return vec, nil
}

func TestWeaviateIndex_UpsertQueryDelete(t *testing.T) {
	url := os.Getenv("WEAVIATE_URL")
	if url == "" {
		t.Skip("WEAVIATE_URL not set; skipping weaviate integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, BootstrapWeaviate(ctx, url))
	idx, err := NewWeaviateIndex(url, hashEmbedder{})
	require.NoError(t, err)

	ns := "it-" + uuid.NewString()[:8]
	id := uuid.NewString()
	e := model.VectorEntry{ID: id, Text: "func readConfig(path string) error", Metadata: map[string]interface{}{
		model.MetaDocumentID: "doc-1",
		model.MetaLanguage:   "go",
	}}
	require.NoError(t, idx.Upsert(ctx, ns, e))
	require.NoError(t, idx.Upsert(ctx, ns, e))

	hits, err := idx.Query(ctx, ns, "readConfig path", 5, map[string]interface{}{model.MetaLanguage: "go"})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, id, hits[0].ID)
	assert.Equal(t, "doc-1", hits[0].DocumentID())

	stats, err := idx.Describe(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.VectorCount)
	assert.Equal(t, 32, stats.Dimension)

	require.NoError(t, idx.Delete(ctx, ns, id))
	require.NoError(t, idx.Delete(ctx, ns, id))
}
