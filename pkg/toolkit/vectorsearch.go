package toolkit

import (
	"context"
	"fmt"

	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
)

// WeaviateSearcher is the optional Weaviate-backed implementation of
// VectorSearcher (spec §4.3 search_vulnerability_patterns /
// get_exploit_examples), grounded on the weaviate-go-client/v5 dependency
// jinterlante1206-AleutianLocal pulls in for its own RAG layer
// (services/trace/weaviate). That package's client.go body was filtered
// from the retrieval pack, so the query here is built directly against the
// published v5 GraphQL-Get/near-text API rather than ported line-for-line.
type WeaviateSearcher struct {
	client        *weaviate.Client
	patternsClass string
	exploitsClass string
}

// NewWeaviateSearcher builds a searcher over two pre-existing Weaviate
// classes: one for general vulnerability patterns, one for exploit
// examples. Both are expected to carry "title", "summary", and "severity"
// text properties.
func NewWeaviateSearcher(client *weaviate.Client, patternsClass, exploitsClass string) *WeaviateSearcher {
	return &WeaviateSearcher{client: client, patternsClass: patternsClass, exploitsClass: exploitsClass}
}

func (w *WeaviateSearcher) search(ctx context.Context, class, concept string, topK int, severityFilter string) ([]PatternMatch, error) {
	if topK <= 0 {
		topK = 5
	}
	nearText := graphql.NewNearTextArgumentBuilder().WithConcepts([]string{concept})

	fields := []graphql.Field{
		{Name: "title"}, {Name: "summary"}, {Name: "severity"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	builder := w.client.GraphQL().Get().
		WithClassName(class).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(topK)

	if severityFilter != "" {
		builder = builder.WithWhere(filters.Where().
			WithPath([]string{"severity"}).
			WithOperator(filters.Equal).
			WithValueText(severityFilter))
	}

	resp, err := builder.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate query: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate query: %s", resp.Errors[0].Message)
	}
	return parsePatternMatches(resp.Data, class)
}

// parsePatternMatches walks the generic GraphQL response shape the v5
// client returns (map[string]any keyed by "Get" -> class -> []object) into
// PatternMatch values.
func parsePatternMatches(data map[string]any, class string) ([]PatternMatch, error) {
	get, ok := data["Get"].(map[string]any)
	if !ok {
		return nil, nil
	}
	rows, ok := get[class].([]any)
	if !ok {
		return nil, nil
	}
	out := make([]PatternMatch, 0, len(rows))
	for _, r := range rows {
		obj, ok := r.(map[string]any)
		if !ok {
			continue
		}
		m := PatternMatch{
			Title:    stringField(obj, "title"),
			Summary:  stringField(obj, "summary"),
			Severity: stringField(obj, "severity"),
		}
		if add, ok := obj["_additional"].(map[string]any); ok {
			if certainty, ok := add["certainty"].(float64); ok {
				m.Score = float32(certainty)
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func stringField(obj map[string]any, key string) string {
	if v, ok := obj[key].(string); ok {
		return v
	}
	return ""
}

// SearchPatterns implements VectorSearcher.
func (w *WeaviateSearcher) SearchPatterns(query string, topK int, severityFilter string) ([]PatternMatch, error) {
	return w.search(context.Background(), w.patternsClass, query, topK, severityFilter)
}

// SearchExploitExamples implements VectorSearcher.
func (w *WeaviateSearcher) SearchExploitExamples(vulnType string, topK int) ([]PatternMatch, error) {
	return w.search(context.Background(), w.exploitsClass, vulnType, topK, "")
}
