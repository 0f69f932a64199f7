package agent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/clearclaim/claim-agent/agent"
	"github.com/clearclaim/claim-agent/search"
)

type failingEvaluator struct {
	err   error
	panic bool
}

func (e *failingEvaluator) Evaluate(rec *agent.StepRecorder, structured agent.StructuredQuery, fragments []agent.CandidateFragment) (agent.EvaluationResult, error) {
	if e.panic {
		panic("evaluator blew up")
	}
	return agent.EvaluationResult{}, e.err
}

var _ agent.DecisionEvaluator = (*failingEvaluator)(nil)

func newPipeline(searcher agent.Searcher) *agent.Orchestrator {
	return agent.New(searcher, discardLogger())
}

func TestRunWaitingPeriodScenario(t *testing.T) {
	searcher := &stubSearcher{results: []search.Result{
		{Text: "Knee surgery and joint procedures are covered and eligible for reimbursement.", Document: "coverage.pdf", Score: 0.9},
		{Text: "A waiting period of 24 months applies to pre-existing orthopedic conditions.", Document: "exclusions.pdf", Score: 0.8},
	}}

	orch := newPipeline(searcher)
	result := orch.Run(context.Background(), "46-year-old male, knee surgery in Pune, 3-month-old insurance policy", 5, true)

	if result.FinalResponse.Decision == agent.DecisionApproved {
		t.Fatalf("waiting-period exclusion must not approve, got %s", result.FinalResponse.Decision)
	}
	if searcher.lastQuery != "knee surgery Pune age 46 3 month policy" {
		t.Fatalf("unexpected search query: %q", searcher.lastQuery)
	}
	if result.Metadata == nil {
		t.Fatal("expected compose metadata when requested")
	}
	if result.TotalTimeMs != result.FinalResponse.ProcessingTimeMs {
		t.Fatalf("expected matching timings, got %d vs %d", result.TotalTimeMs, result.FinalResponse.ProcessingTimeMs)
	}

	stagesSeen := map[string]bool{}
	for _, step := range result.Steps {
		stagesSeen[step.StageName] = true
	}
	for _, stage := range orch.Status().StageNames {
		if !stagesSeen[stage] {
			t.Fatalf("expected trace steps from stage %q", stage)
		}
	}
}

func TestRunWithEmptyRetrieval(t *testing.T) {
	searcher := &stubSearcher{err: errors.New("vector store down")}
	orch := newPipeline(searcher)

	result := orch.Run(context.Background(), "knee surgery claim", 5, false)

	if result.FinalResponse.Decision == agent.DecisionApproved {
		t.Fatalf("empty retrieval must not approve, got %s", result.FinalResponse.Decision)
	}
	if len(result.FinalResponse.Sources) != 0 {
		t.Fatalf("expected no sources, got %d", len(result.FinalResponse.Sources))
	}

	found := false
	for _, step := range result.Steps {
		if step.Action == "search_failed" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a search_failed trace step")
	}
}

func TestRunConvertsStageError(t *testing.T) {
	orch := agent.NewOrchestrator(
		agent.NewQueryStructurer(discardLogger()),
		agent.NewRetriever(&stubSearcher{}, discardLogger()),
		&failingEvaluator{err: errors.New("rule table corrupted")},
		agent.NewResponseComposer(discardLogger()),
		discardLogger(),
	)

	result := orch.Run(context.Background(), "knee surgery claim", 5, true)

	resp := result.FinalResponse
	if resp.Decision != agent.DecisionError {
		t.Fatalf("expected error decision, got %s", resp.Decision)
	}
	if resp.ConfidenceScore != 0.0 {
		t.Fatalf("expected zero confidence, got %v", resp.ConfidenceScore)
	}
	if len(resp.Sources) != 0 {
		t.Fatalf("expected no sources, got %d", len(resp.Sources))
	}
	if result.Metadata != nil {
		t.Fatal("expected no metadata on failure")
	}

	last := result.Steps[len(result.Steps)-1]
	if last.StageName != "orchestrator" || last.Action != "error_handling" {
		t.Fatalf("expected trailing error_handling step, got %s/%s", last.StageName, last.Action)
	}
	// Steps from the stages before the failure are preserved.
	if result.Steps[0].Action != "parse_query" {
		t.Fatalf("expected partial trace to survive, first step %q", result.Steps[0].Action)
	}
}

func TestRunRecoversPanic(t *testing.T) {
	orch := agent.NewOrchestrator(
		agent.NewQueryStructurer(discardLogger()),
		agent.NewRetriever(&stubSearcher{}, discardLogger()),
		&failingEvaluator{panic: true},
		agent.NewResponseComposer(discardLogger()),
		discardLogger(),
	)

	result := orch.Run(context.Background(), "knee surgery claim", 5, false)
	if result.FinalResponse.Decision != agent.DecisionError {
		t.Fatalf("expected error decision after panic, got %s", result.FinalResponse.Decision)
	}
}

func TestStatusReportsFourStages(t *testing.T) {
	orch := newPipeline(&stubSearcher{})
	status := orch.Status()

	if status.StageCount != 4 || len(status.StageNames) != 4 {
		t.Fatalf("expected 4 stages, got %+v", status)
	}
}

func TestValidateReportsHealthyPipeline(t *testing.T) {
	orch := newPipeline(&stubSearcher{})
	report := orch.Validate(context.Background())

	if report.OverallStatus != "ok" {
		t.Fatalf("expected ok status, got %q", report.OverallStatus)
	}
	structurer, ok := report.Stages["query_structurer"]
	if !ok {
		t.Fatal("expected structurer stage result")
	}
	if !structurer.Extracted {
		t.Fatal("expected smoke query to extract structured data")
	}
}
