package searchindex

import (
	"context"
	"fmt"
	"time"

	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// codeVectorClass is the desired schema of ClassName. Vectors are supplied by the caller.
func codeVectorClass() *models.Class {
	return &models.Class{
		Class:      ClassName,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "documentId", DataType: []string{"text"}},
			{Name: "userId", DataType: []string{"text"}},
			{Name: "text", DataType: []string{"text"}},
			{Name: "metadata", DataType: []string{"text"}},
			{Name: "language", DataType: []string{"text"}},
			{Name: "fileName", DataType: []string{"text"}},
			{Name: "filePath", DataType: []string{"text"}},
			{Name: "projectName", DataType: []string{"text"}},
		},
		MultiTenancyConfig: &models.MultiTenancyConfig{Enabled: true},
	}
}

// BootstrapWeaviate ensures the code vector class exists with multi-tenancy enabled.
// If the class exists without multi-tenancy it is dropped and recreated.
func BootstrapWeaviate(ctx context.Context, baseURL string) error {
	cl, err := newClient(baseURL)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := ensureMTClass(cctx, cl, codeVectorClass()); err != nil {
		return fmt.Errorf("bootstrap %s: %w", ClassName, err)
	}
	return nil
}

func ensureMTClass(ctx context.Context, cl *weaviate.Client, desired *models.Class) error {
	ex, err := cl.Schema().ClassGetter().WithClassName(desired.Class).Do(ctx)
	if err == nil && ex != nil {
		if ex.MultiTenancyConfig != nil && ex.MultiTenancyConfig.Enabled {
			return ensureProperties(ctx, cl, ex, desired)
		}
		if err := cl.Schema().ClassDeleter().WithClassName(desired.Class).Do(ctx); err != nil {
			return fmt.Errorf("delete class %s: %w", desired.Class, err)
		}
	}
	if err := cl.Schema().ClassCreator().WithClass(desired).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", desired.Class, err)
	}
	return nil
}

// ensureProperties adds properties missing from an existing class.
func ensureProperties(ctx context.Context, cl *weaviate.Client, existing, desired *models.Class) error {
	have := make(map[string]bool, len(existing.Properties))
	for _, p := range existing.Properties {
		have[p.Name] = true
	}
	for _, p := range desired.Properties {
		if have[p.Name] {
			continue
		}
		if err := cl.Schema().PropertyCreator().WithClassName(desired.Class).WithProperty(p).Do(ctx); err != nil {
			return fmt.Errorf("add property %s: %w", p.Name, err)
		}
	}
	return nil
}
