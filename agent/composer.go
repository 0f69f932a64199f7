package agent

import (
	"fmt"
	"log"
	"strings"
)

const stageComposer = "response_composer"

const maxSources = 5

// ResponseComposer turns an evaluation into the final user-facing
// answer: enriched justification, deduplicated capped citations, and a
// qualitative confidence label.
type ResponseComposer struct {
	logger *log.Logger
}

func NewResponseComposer(logger *log.Logger) *ResponseComposer {
	if logger == nil {
		logger = log.Default()
	}
	return &ResponseComposer{logger: logger}
}

func (c *ResponseComposer) Compose(rec *StepRecorder, evaluation EvaluationResult, sources []SourceCitation, originalQuery string) (FinalResponse, ComposeMetadata, error) {
	rec.Record(stageComposer, "start_response_generation",
		"Beginning generation of structured response",
		map[string]any{"decision": evaluation.Decision})

	justification := c.buildJustification(evaluation.Decision, evaluation.Justification, evaluation.Evidence, originalQuery)
	formatted := c.formatSources(sources, evaluation.Evidence)

	response := FinalResponse{
		Decision:        evaluation.Decision,
		Amount:          evaluation.Amount,
		Justification:   justification,
		Sources:         formatted,
		ConfidenceScore: evaluation.ConfidenceScore,
		// ProcessingTimeMs is stamped by the orchestrator.
	}

	metadata := ComposeMetadata{
		SourcesUsed:     len(formatted),
		EvidencePieces:  len(evaluation.Evidence),
		ConfidenceLevel: ConfidenceLevel(evaluation.ConfidenceScore),
	}

	rec.Record(stageComposer, "response_generated",
		"Successfully generated structured response",
		map[string]any{
			"decision":      evaluation.Decision,
			"sources_count": len(formatted),
			"confidence":    evaluation.ConfidenceScore,
		})

	return response, metadata, nil
}

// buildJustification concatenates base justification, a
// decision-specific framing sentence, up to three numbered evidence
// excerpts, and a restatement of the query. Missing parts are omitted.
func (c *ResponseComposer) buildJustification(decision Decision, base string, evidence []Evidence, originalQuery string) string {
	parts := make([]string, 0, 4)
	if base != "" {
		parts = append(parts, base)
	}

	switch decision {
	case DecisionApproved:
		parts = append(parts, "The following policy provisions support this decision:")
	case DecisionRejected:
		parts = append(parts, "This claim is not covered due to the following policy restrictions:")
	case DecisionRequiresMoreInfo:
		parts = append(parts, "Additional documentation is needed due to:")
	}

	references := make([]string, 0, 3)
	for _, item := range evidence {
		if len(references) == 3 {
			break
		}
		if item.Text == "" {
			continue
		}
		document := item.Document
		if document == "" {
			document = "Policy Document"
		}
		references = append(references, fmt.Sprintf("%d. %s: %q", len(references)+1, document, truncate(item.Text, 100)))
	}
	if len(references) > 0 {
		parts = append(parts, strings.Join(references, "\n"))
	}

	if originalQuery != "" {
		parts = append(parts, fmt.Sprintf("This assessment is based on your query: %q", originalQuery))
	}

	return strings.Join(parts, "\n\n")
}

// formatSources keeps the retriever's top sources verbatim and then
// synthesizes citations for evidence documents the retriever did not
// surface, up to the cap of five.
func (c *ResponseComposer) formatSources(sources []SourceCitation, evidence []Evidence) []SourceCitation {
	formatted := make([]SourceCitation, 0, maxSources)
	seen := make(map[string]struct{})
	for _, source := range sources {
		if len(formatted) == maxSources {
			break
		}
		formatted = append(formatted, source)
		seen[source.Document] = struct{}{}
	}

	for _, item := range evidence {
		if len(formatted) == maxSources {
			break
		}
		if item.Document == "" {
			continue
		}
		if _, ok := seen[item.Document]; ok {
			continue
		}
		seen[item.Document] = struct{}{}
		formatted = append(formatted, SourceCitation{
			Text:       truncate(item.Text, 500),
			Document:   item.Document,
			Page:       item.Page,
			Confidence: item.Confidence,
		})
	}

	return formatted
}

// ConfidenceLevel maps a confidence score to its qualitative band.
func ConfidenceLevel(score float64) string {
	switch {
	case score >= 0.8:
		return "high"
	case score >= 0.6:
		return "medium"
	case score >= 0.4:
		return "low"
	default:
		return "very_low"
	}
}
