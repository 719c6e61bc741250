// Package search keeps a full-text index over protected resource descriptions.
// The index holds no media and no secrets; results are resource IDs that the
// caller must still authorize.
package search

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
	"github.com/TheEntropyCollective/mediavault/pkg/metadata"
)

const (
	documentType = "resource"

	// DefaultLimit caps results when the caller passes no limit.
	DefaultLimit = 50
	// MaxLimit is the largest result page served.
	MaxLimit = 500
)

// resourceDocument is what gets indexed for one resource.
type resourceDocument struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	CatalogRef  string `json:"catalog_ref"`
	CreatedBy   string `json:"created_by"`
}

// Type implements bleve's Classifier so documents land in the resource mapping.
func (resourceDocument) Type() string {
	return documentType
}

// Index is an in-memory bleve index of resources. It is safe for concurrent use.
type Index struct {
	index   bleve.Index
	queries atomic.Int64
}

// NewIndex creates an empty in-memory index.
func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(createIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create search index: %w", err)
	}
	return &Index{index: idx}, nil
}

// createIndexMapping creates the bleve index mapping for resources
func createIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	resourceMapping := bleve.NewDocumentMapping()

	nameField := bleve.NewTextFieldMapping()
	nameField.Store = false
	nameField.Index = true
	nameField.Analyzer = standard.Name
	resourceMapping.AddFieldMappingsAt("name", nameField)

	descriptionField := bleve.NewTextFieldMapping()
	descriptionField.Store = false
	descriptionField.Index = true
	descriptionField.Analyzer = standard.Name
	resourceMapping.AddFieldMappingsAt("description", descriptionField)

	// Catalog references and creators match exactly
	catalogField := bleve.NewTextFieldMapping()
	catalogField.Store = false
	catalogField.Index = true
	catalogField.Analyzer = keyword.Name
	resourceMapping.AddFieldMappingsAt("catalog_ref", catalogField)

	creatorField := bleve.NewTextFieldMapping()
	creatorField.Store = false
	creatorField.Index = true
	creatorField.Analyzer = keyword.Name
	resourceMapping.AddFieldMappingsAt("created_by", creatorField)

	indexMapping.AddDocumentMapping(documentType, resourceMapping)
	indexMapping.DefaultType = documentType

	return indexMapping
}

// Index adds or replaces the document for resource.
func (i *Index) Index(resource *metadata.Resource) error {
	doc := resourceDocument{
		Name:        resource.Name,
		Description: resource.Description,
		CatalogRef:  resource.CatalogRef,
		CreatedBy:   resource.CreatedBy,
	}
	if err := i.index.Index(resource.ID, doc); err != nil {
		return fmt.Errorf("failed to index resource %s: %w", resource.ID, err)
	}
	return nil
}

// Remove drops a resource from the index. Unknown IDs are ignored.
func (i *Index) Remove(resourceID string) error {
	if err := i.index.Delete(resourceID); err != nil {
		return fmt.Errorf("failed to remove resource %s from index: %w", resourceID, err)
	}
	return nil
}

// Rebuild indexes every resource in the store in one batch.
func (i *Index) Rebuild(ctx context.Context, resources metadata.ResourceStore) (int, error) {
	all, err := resources.ListResources(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list resources for indexing: %w", err)
	}

	batch := i.index.NewBatch()
	for _, resource := range all {
		err := batch.Index(resource.ID, resourceDocument{
			Name:        resource.Name,
			Description: resource.Description,
			CatalogRef:  resource.CatalogRef,
			CreatedBy:   resource.CreatedBy,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to batch resource %s: %w", resource.ID, err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return 0, fmt.Errorf("failed to apply index batch: %w", err)
	}
	return len(all), nil
}

// buildQuery matches free text against name and description, fuzzily and by
// prefix, and exact catalog references or creators.
func buildQuery(text string) query.Query {
	var queries []query.Query
	for _, field := range []string{"name", "description"} {
		match := bleve.NewMatchQuery(text)
		match.SetField(field)
		match.SetFuzziness(1)
		queries = append(queries, match)
	}

	terms := strings.Fields(strings.ToLower(text))
	if len(terms) == 1 {
		for _, field := range []string{"name", "description"} {
			prefix := bleve.NewPrefixQuery(terms[0])
			prefix.SetField(field)
			queries = append(queries, prefix)
		}
	}

	for _, field := range []string{"catalog_ref", "created_by"} {
		term := bleve.NewTermQuery(text)
		term.SetField(field)
		queries = append(queries, term)
	}

	return bleve.NewDisjunctionQuery(queries...)
}

// Search returns the IDs of resources matching text, best match first.
func (i *Index) Search(text string, limit int) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("search query cannot be empty: %w", vaulterr.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	i.queries.Add(1)

	request := bleve.NewSearchRequestOptions(buildQuery(text), limit, 0, false)
	result, err := i.index.Search(request)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Stats reports index size and query volume
type Stats struct {
	Documents uint64 `json:"documents"`
	Queries   int64  `json:"queries"`
}

// Stats returns current index statistics.
func (i *Index) Stats() (Stats, error) {
	count, err := i.index.DocCount()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count indexed documents: %w", err)
	}
	return Stats{Documents: count, Queries: i.queries.Load()}, nil
}

// Close releases the index.
func (i *Index) Close() error {
	return i.index.Close()
}
