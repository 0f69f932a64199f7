package agent_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/clearclaim/claim-agent/agent"
)

func TestComposeJustificationSections(t *testing.T) {
	composer := agent.NewResponseComposer(discardLogger())

	evaluation := agent.EvaluationResult{
		Decision:        agent.DecisionRejected,
		Justification:   "Procedure not covered under current policy terms.",
		ConfidenceScore: 0.3,
		Evidence: []agent.Evidence{
			{Kind: agent.EvidenceCoverage, Text: "Cosmetic procedures are excluded from the plan.", Document: "exclusions.pdf"},
		},
	}

	response, metadata, err := composer.Compose(agent.NewStepRecorder(), evaluation, nil, "is rhinoplasty covered?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(response.Justification, "Procedure not covered") {
		t.Fatal("expected base justification in output")
	}
	if !strings.Contains(response.Justification, "policy restrictions") {
		t.Fatal("expected rejection framing sentence")
	}
	if !strings.Contains(response.Justification, "1. exclusions.pdf:") {
		t.Fatal("expected numbered evidence reference")
	}
	if !strings.Contains(response.Justification, "is rhinoplasty covered?") {
		t.Fatal("expected query restatement")
	}

	if metadata.ConfidenceLevel != "very_low" {
		t.Fatalf("expected very_low confidence level, got %q", metadata.ConfidenceLevel)
	}
}

func TestComposeCapsSourcesAtFive(t *testing.T) {
	composer := agent.NewResponseComposer(discardLogger())

	sources := make([]agent.SourceCitation, 0, 7)
	for i := 0; i < 7; i++ {
		sources = append(sources, agent.SourceCitation{Document: "policy.pdf", Text: "clause", Confidence: 0.5})
	}

	response, metadata, err := composer.Compose(agent.NewStepRecorder(), agent.EvaluationResult{Decision: agent.DecisionApproved}, sources, "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(response.Sources) != 5 {
		t.Fatalf("expected 5 sources, got %d", len(response.Sources))
	}
	if metadata.SourcesUsed != 5 {
		t.Fatalf("expected sources_used 5, got %d", metadata.SourcesUsed)
	}
}

func TestComposeSynthesizesEvidenceCitations(t *testing.T) {
	composer := agent.NewResponseComposer(discardLogger())

	page := 12
	evaluation := agent.EvaluationResult{
		Decision: agent.DecisionRequiresMoreInfo,
		Evidence: []agent.Evidence{
			{Kind: agent.EvidenceExclusion, Text: strings.Repeat("waiting period clause ", 40), Document: "exclusions.pdf", Confidence: 0.7, Page: &page},
		},
	}
	sources := []agent.SourceCitation{
		{Document: "schedule.pdf", Text: "benefit schedule", Confidence: 0.9},
	}

	response, _, err := composer.Compose(agent.NewStepRecorder(), evaluation, sources, "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(response.Sources) != 2 {
		t.Fatalf("expected retrieved + synthesized source, got %d", len(response.Sources))
	}

	synthesized := response.Sources[1]
	if synthesized.Document != "exclusions.pdf" {
		t.Fatalf("expected synthesized citation for exclusions.pdf, got %q", synthesized.Document)
	}
	if len(synthesized.Text) != 503 || !strings.HasSuffix(synthesized.Text, "...") {
		t.Fatalf("expected 500-char truncation, got %d chars", len(synthesized.Text))
	}
	if synthesized.Page == nil || *synthesized.Page != 12 {
		t.Fatalf("expected page carried over, got %v", synthesized.Page)
	}
}

func TestComposeDoesNotDuplicateKnownDocuments(t *testing.T) {
	composer := agent.NewResponseComposer(discardLogger())

	evaluation := agent.EvaluationResult{
		Decision: agent.DecisionApproved,
		Evidence: []agent.Evidence{
			{Kind: agent.EvidenceCoverage, Text: "clause", Document: "schedule.pdf", Confidence: 0.9},
		},
	}
	sources := []agent.SourceCitation{
		{Document: "schedule.pdf", Text: "benefit schedule", Confidence: 0.9},
	}

	response, _, err := composer.Compose(agent.NewStepRecorder(), evaluation, sources, "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(response.Sources) != 1 {
		t.Fatalf("expected no duplicate citation, got %d sources", len(response.Sources))
	}
}

func TestComposeTruncatesOnRuneBoundaries(t *testing.T) {
	composer := agent.NewResponseComposer(discardLogger())

	// 99 ASCII bytes followed by multi-byte runes puts the 100-byte
	// excerpt cut inside a rune; 200 three-byte runes does the same for
	// the 500-byte citation cut.
	excerptText := strings.Repeat("a", 99) + strings.Repeat("条項", 10)
	citationText := strings.Repeat("条", 200)

	evaluation := agent.EvaluationResult{
		Decision: agent.DecisionRequiresMoreInfo,
		Evidence: []agent.Evidence{
			{Kind: agent.EvidenceCoverage, Text: excerptText, Document: "terms.pdf", Confidence: 0.8},
			{Kind: agent.EvidenceExclusion, Text: citationText, Document: "exclusions.pdf", Confidence: 0.7},
		},
	}

	response, _, err := composer.Compose(agent.NewStepRecorder(), evaluation, nil, "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !utf8.ValidString(response.Justification) {
		t.Fatal("justification contains invalid UTF-8")
	}
	if !strings.Contains(response.Justification, strings.Repeat("a", 99)+"...") {
		t.Fatal("expected excerpt cut back to the rune boundary")
	}

	for _, source := range response.Sources {
		if !utf8.ValidString(source.Text) {
			t.Fatalf("citation for %s contains invalid UTF-8", source.Document)
		}
	}
	citation := response.Sources[1]
	if citation.Document != "exclusions.pdf" {
		t.Fatalf("expected exclusions.pdf citation, got %q", citation.Document)
	}
	if !strings.HasSuffix(citation.Text, "条...") {
		t.Fatal("expected citation cut back to the rune boundary")
	}
	if len(citation.Text) != 501 {
		t.Fatalf("expected 498 bytes plus ellipsis, got %d", len(citation.Text))
	}
}

func TestConfidenceLevelBands(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{0.95, "high"},
		{0.8, "high"},
		{0.7, "medium"},
		{0.6, "medium"},
		{0.45, "low"},
		{0.39, "very_low"},
		{0.0, "very_low"},
	}

	for _, tc := range cases {
		if got := agent.ConfidenceLevel(tc.score); got != tc.want {
			t.Fatalf("score %v: expected %q, got %q", tc.score, tc.want, got)
		}
	}
}
