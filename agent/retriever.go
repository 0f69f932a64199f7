package agent

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/clearclaim/claim-agent/search"
)

const stageRetriever = "retriever"

const defaultMaxResults = 10

// Searcher is the narrow contract the retriever needs from the vector
// store. search.Store satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
}

// Retriever invokes the external similarity search and normalizes its
// results into ranked candidate fragments. A failing search is
// recovered locally into an empty result set; the error never crosses
// the stage boundary.
type Retriever struct {
	searcher Searcher
	logger   *log.Logger
}

func NewRetriever(searcher Searcher, logger *log.Logger) *Retriever {
	if logger == nil {
		logger = log.Default()
	}
	return &Retriever{searcher: searcher, logger: logger}
}

func (r *Retriever) Retrieve(ctx context.Context, rec *StepRecorder, searchQuery string, maxResults int) (RetrievalResult, error) {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	rec.Record(stageRetriever, "initiate_search",
		"Starting search for relevant document chunks",
		map[string]any{"search_query": searchQuery, "max_results": maxResults})

	if r.searcher == nil {
		return RetrievalResult{}, fmt.Errorf("searcher is not configured")
	}

	hits, err := r.searcher.Search(ctx, searchQuery, maxResults)
	if err != nil {
		r.logger.Printf("vector search failed: %v", err)
		rec.Record(stageRetriever, "search_failed",
			fmt.Sprintf("Search failed due to error: %v", err),
			map[string]any{"error": err.Error(), "total_found": 0})
		return RetrievalResult{
			Fragments:   []CandidateFragment{},
			Sources:     []SourceCitation{},
			SearchQuery: searchQuery,
		}, nil
	}

	rec.Record(stageRetriever, "search_completed",
		fmt.Sprintf("Found %d relevant chunks", len(hits)),
		map[string]any{"results_count": len(hits)})

	sources := make([]SourceCitation, 0, len(hits))
	fragments := make([]CandidateFragment, 0, len(hits))
	for _, hit := range hits {
		sources = append(sources, SourceCitation{
			Text:       hit.Text,
			Document:   hit.Document,
			Page:       hit.Page,
			Confidence: hit.Score,
		})
		fragments = append(fragments, CandidateFragment{
			Text:       hit.Text,
			Document:   hit.Document,
			Confidence: hit.Score,
			Page:       hit.Page,
		})
	}

	// Rank descending by confidence; ties keep the backend's order.
	sort.SliceStable(fragments, func(i, j int) bool {
		return fragments[i].Confidence > fragments[j].Confidence
	})

	topConfidence := 0.0
	if len(fragments) > 0 {
		topConfidence = fragments[0].Confidence
	}
	rec.Record(stageRetriever, "process_results",
		"Successfully processed and ranked search results",
		map[string]any{"top_confidence": topConfidence})

	return RetrievalResult{
		Fragments:   fragments,
		Sources:     sources,
		TotalFound:  len(hits),
		SearchQuery: searchQuery,
	}, nil
}
