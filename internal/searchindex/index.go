package searchindex

import (
	"context"

	"github.com/CARBONMOLECULE09/bear-code/internal/model"
)

//go:generate mockgen -source=index.go -destination=index_mock.go -package=searchindex

// Embeddings produces vector representations for text.
type Embeddings interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// filterableKeys are the metadata keys Query filters on. Other filter keys,
// and non-string or empty values, are ignored by every backend.
var filterableKeys = []string{model.MetaLanguage, "fileName", "filePath", "projectName"}

// Index is a similarity index partitioned into namespaces (one per user).
// Upsert is idempotent by entry ID. Delete of a missing ID succeeds.
type Index interface {
	Upsert(ctx context.Context, namespace string, entry model.VectorEntry) error
	Query(ctx context.Context, namespace, query string, limit int, filters map[string]interface{}) ([]model.SearchHit, error)
	Delete(ctx context.Context, namespace, id string) error
	Describe(ctx context.Context, namespace string) (model.IndexStats, error)
}
