package searchindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-openapi/strfmt"
	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	gql "github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/CARBONMOLECULE09/bear-code/internal/model"
)

// ClassName is the multi-tenant Weaviate class holding code vectors. Tenant = user id.
const ClassName = "CodeVector"

// DefaultAlpha balances keyword (0) and vector (1) scoring in hybrid queries.
const DefaultAlpha float32 = 0.75

// weavNative is an Index backed by the Weaviate Go client.
type weavNative struct {
	client   *weaviate.Client
	embedder Embeddings
	alpha    float32
	tenants  sync.Map // tenant name -> struct{}
}

// NewWeaviateIndex constructs an Index backed by Weaviate at baseURL.
// baseURL should be host:port (without scheme), e.g., "localhost:8082".
func NewWeaviateIndex(baseURL string, emb Embeddings) (Index, error) {
	if emb == nil {
		return nil, errors.New("weaviate index requires an embeddings provider")
	}
	cl, err := newClient(baseURL)
	if err != nil {
		return nil, err
	}
	return &weavNative{client: cl, embedder: emb, alpha: DefaultAlpha}, nil
}

func newClient(baseURL string) (*weaviate.Client, error) {
	return weaviate.NewClient(weaviate.Config{Scheme: "http", Host: baseURL})
}

func (w *weavNative) Upsert(ctx context.Context, namespace string, entry model.VectorEntry) error {
	vec, err := w.embedder.Embed(ctx, entry.Text)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if err := w.ensureTenant(ctx, namespace); err != nil {
		return err
	}

	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	props := map[string]interface{}{
		model.MetaDocumentID: entry.DocumentID(),
		model.MetaUserID:     namespace,
		"text":               entry.Text,
		"metadata":           string(meta),
	}
	for _, k := range filterableKeys {
		if s, ok := entry.Metadata[k].(string); ok && s != "" {
			props[k] = s
		}
	}

	// Batch import replaces an object with the same id, which makes this an upsert.
	obj := &models.Object{
		Class:      ClassName,
		ID:         strfmt.UUID(entry.ID),
		Properties: props,
		Vector:     vec,
		Tenant:     namespace,
	}
	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(obj).Do(ctx)
	if err != nil {
		return err
	}
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("weaviate upsert %s: %s", entry.ID, r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (w *weavNative) Query(ctx context.Context, namespace, query string, limit int, where map[string]interface{}) ([]model.SearchHit, error) {
	vec, err := w.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if err := w.ensureTenant(ctx, namespace); err != nil {
		return nil, err
	}

	hy := (&gql.HybridArgumentBuilder{}).
		WithQuery(query).
		WithVector(vec).
		WithAlpha(w.alpha).
		WithProperties([]string{"text"})

	req := w.client.GraphQL().Get().
		WithClassName(ClassName).
		WithTenant(namespace).
		WithHybrid(hy).
		WithLimit(limit).
		WithFields(
			gql.Field{Name: model.MetaDocumentID},
			gql.Field{Name: "text"},
			gql.Field{Name: "metadata"},
			gql.Field{Name: "_additional", Fields: []gql.Field{{Name: "id"}, {Name: "score"}}},
		)
	if wb := buildWhere(where); wb != nil {
		req = req.WithWhere(wb)
	}

	resp, err := req.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate graphql: %s", formatGraphQLErrors(resp.Errors))
	}

	items := classItems(resp.Data, "Get")
	out := make([]model.SearchHit, 0, len(items))
	for _, m := range items {
		hit := model.SearchHit{Metadata: map[string]interface{}{}}
		if raw, ok := m["metadata"].(string); ok && raw != "" {
			_ = json.Unmarshal([]byte(raw), &hit.Metadata)
		}
		if docID, ok := m[model.MetaDocumentID].(string); ok && docID != "" {
			hit.Metadata[model.MetaDocumentID] = docID
		}
		hit.Text, _ = m["text"].(string)
		if add, ok := m["_additional"].(map[string]interface{}); ok {
			hit.ID, _ = add["id"].(string)
			hit.Score = parseScore(add["score"])
		}
		out = append(out, hit)
	}
	return out, nil
}

func (w *weavNative) Delete(ctx context.Context, namespace, id string) error {
	if namespace == "" || id == "" {
		return nil
	}
	if err := w.ensureTenant(ctx, namespace); err != nil {
		return err
	}
	err := w.client.Data().Deleter().
		WithClassName(ClassName).
		WithTenant(namespace).
		WithID(id).
		Do(ctx)
	if isStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}

func (w *weavNative) Describe(ctx context.Context, namespace string) (model.IndexStats, error) {
	stats := model.IndexStats{Namespace: namespace}
	if err := w.ensureTenant(ctx, namespace); err != nil {
		return stats, err
	}

	agg, err := w.client.GraphQL().Aggregate().
		WithClassName(ClassName).
		WithTenant(namespace).
		WithFields(gql.Field{Name: "meta", Fields: []gql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return stats, err
	}
	if len(agg.Errors) > 0 {
		return stats, fmt.Errorf("weaviate graphql: %s", formatGraphQLErrors(agg.Errors))
	}
	if items := classItems(agg.Data, "Aggregate"); len(items) > 0 {
		if meta, ok := items[0]["meta"].(map[string]interface{}); ok {
			if c, ok := meta["count"].(float64); ok {
				stats.VectorCount = int64(c)
			}
		}
	}
	if stats.VectorCount == 0 {
		return stats, nil
	}

	sample, err := w.client.GraphQL().Get().
		WithClassName(ClassName).
		WithTenant(namespace).
		WithLimit(1).
		WithFields(gql.Field{Name: "_additional", Fields: []gql.Field{{Name: "vector"}}}).
		Do(ctx)
	if err != nil {
		return stats, err
	}
	if items := classItems(sample.Data, "Get"); len(items) > 0 {
		if add, ok := items[0]["_additional"].(map[string]interface{}); ok {
			if v, ok := add["vector"].([]interface{}); ok {
				stats.Dimension = len(v)
			}
		}
	}
	return stats, nil
}

// HealthPing implements health.HealthPinger via the Weaviate readiness endpoint.
func (w *weavNative) HealthPing(ctx context.Context) error {
	ready, err := w.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return err
	}
	if !ready {
		return errors.New("weaviate not ready")
	}
	return nil
}

// ensureTenant creates the tenant if it does not already exist. Known tenants are cached.
func (w *weavNative) ensureTenant(ctx context.Context, tenant string) error {
	if tenant == "" {
		return errors.New("empty namespace")
	}
	if _, ok := w.tenants.Load(tenant); ok {
		return nil
	}
	// Check existing tenants first to avoid 409 errors
	ex, err := w.client.Schema().TenantsGetter().WithClassName(ClassName).Do(ctx)
	if err == nil {
		for _, t := range ex {
			if t.Name == tenant {
				w.tenants.Store(tenant, struct{}{})
				return nil
			}
		}
	}
	if err := w.client.Schema().TenantsCreator().
		WithClassName(ClassName).
		WithTenants(models.Tenant{Name: tenant}).
		Do(ctx); err != nil && !isStatus(err, http.StatusConflict) {
		return fmt.Errorf("create tenant: %w", err)
	}
	w.tenants.Store(tenant, struct{}{})
	return nil
}

func buildWhere(in map[string]interface{}) *filters.WhereBuilder {
	var ops []*filters.WhereBuilder
	for _, k := range filterableKeys {
		s, ok := in[k].(string)
		if !ok || s == "" {
			continue
		}
		ops = append(ops, filters.Where().WithPath([]string{k}).WithOperator(filters.Equal).WithValueText(s))
	}
	switch len(ops) {
	case 0:
		return nil
	case 1:
		return ops[0]
	default:
		return filters.Where().WithOperator(filters.And).WithOperands(ops)
	}
}

// classItems extracts data[root][ClassName] as a list of objects.
func classItems(data map[string]models.JSONObject, root string) []map[string]interface{} {
	rootData, ok := data[root].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := rootData[ClassName].([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

func parseScore(v interface{}) float64 {
	switch s := v.(type) {
	case float64:
		return s
	case string:
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	return 0
}

func isStatus(err error, code int) bool {
	var we *fault.WeaviateClientError
	return errors.As(err, &we) && we.StatusCode == code
}

// formatGraphQLErrors returns compact string with messages extracted for logging.
func formatGraphQLErrors(errs interface{}) string {
	if b, err := json.Marshal(errs); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", errs)
}
