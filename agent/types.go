// Package agent implements the four-stage claim query pipeline:
// structure the query, retrieve policy fragments, evaluate coverage
// rules, compose the final answer. The Orchestrator sequences the
// stages, collects the trace, and converts any stage failure into a
// well-formed error response.
package agent

type Decision string

const (
	DecisionApproved         Decision = "approved"
	DecisionRejected         Decision = "rejected"
	DecisionRequiresMoreInfo Decision = "requires_more_info"
	DecisionError            Decision = "error"
)

const (
	GenderMale   = "male"
	GenderFemale = "female"
)

const (
	UnitDay   = "day"
	UnitMonth = "month"
	UnitYear  = "year"
)

type PolicyDuration struct {
	Value int    `json:"value"`
	Unit  string `json:"unit"`
}

// StructuredQuery is the structurer's output. Extraction is
// best-effort: absent fields stay at their zero value (nil pointers,
// empty strings). SearchQuery falls back to the raw query when nothing
// was extracted.
type StructuredQuery struct {
	OriginalQuery  string          `json:"original_query"`
	Age            *int            `json:"age,omitempty"`
	Gender         string          `json:"gender,omitempty"`
	Procedure      string          `json:"procedure,omitempty"`
	Location       string          `json:"location,omitempty"`
	PolicyDuration *PolicyDuration `json:"policy_duration,omitempty"`
	SearchKeywords []string        `json:"search_keywords"`
	SearchQuery    string          `json:"search_query"`
}

// CandidateFragment is one retrieved span of policy text, ranked by
// the retriever in descending confidence order.
type CandidateFragment struct {
	Text       string  `json:"text"`
	Document   string  `json:"document"`
	Confidence float64 `json:"confidence"`
	Page       *int    `json:"page,omitempty"`
}

type EvidenceKind string

const (
	EvidenceCoverage  EvidenceKind = "coverage"
	EvidenceExclusion EvidenceKind = "exclusion"
)

type Evidence struct {
	Kind       EvidenceKind `json:"kind"`
	Text       string       `json:"text"`
	Document   string       `json:"document"`
	Reason     string       `json:"reason,omitempty"`
	Score      float64      `json:"score"`
	Confidence float64      `json:"confidence"`
	Page       *int         `json:"page,omitempty"`
}

type CoverageAnalysis struct {
	Score      float64    `json:"score"`
	IsCovered  bool       `json:"is_covered"`
	Supporting []Evidence `json:"supporting_chunks"`
}

type ExclusionAnalysis struct {
	Score         float64    `json:"score"`
	HasExclusions bool       `json:"has_exclusions"`
	Reasons       []Evidence `json:"exclusion_reasons"`
}

type ConditionAnalysis struct {
	ConditionsMet bool            `json:"conditions_met"`
	Conditions    map[string]bool `json:"conditions"`
}

// EvaluationResult is the evaluator's decision together with the
// analysis that produced it. Built once, immutable afterward.
type EvaluationResult struct {
	Decision        Decision          `json:"decision"`
	Amount          *float64          `json:"amount,omitempty"`
	Justification   string            `json:"justification"`
	ConfidenceScore float64           `json:"confidence_score"`
	Evidence        []Evidence        `json:"supporting_evidence"`
	Coverage        CoverageAnalysis  `json:"coverage"`
	Exclusions      ExclusionAnalysis `json:"exclusions"`
	Conditions      ConditionAnalysis `json:"policy_conditions"`
}

type SourceCitation struct {
	Text       string  `json:"clause_text"`
	Document   string  `json:"document_name"`
	Page       *int    `json:"page_number,omitempty"`
	Confidence float64 `json:"confidence_score"`
}

type FinalResponse struct {
	Decision         Decision         `json:"decision"`
	Amount           *float64         `json:"amount,omitempty"`
	Justification    string           `json:"justification"`
	Sources          []SourceCitation `json:"sources"`
	ConfidenceScore  float64          `json:"confidence_score"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
}

// AgentStep is one trace record. Steps are append-only and ordered by
// emission time across the whole run.
type AgentStep struct {
	StageName string         `json:"stage_name"`
	Action    string         `json:"action"`
	Reasoning string         `json:"reasoning"`
	Output    map[string]any `json:"output"`
}

// RetrievalResult carries both the ranked fragments consumed by the
// evaluator and the verbatim source citations consumed by the
// composer.
type RetrievalResult struct {
	Fragments   []CandidateFragment `json:"fragments"`
	Sources     []SourceCitation    `json:"sources"`
	TotalFound  int                 `json:"total_found"`
	SearchQuery string              `json:"search_query_used"`
}

type ComposeMetadata struct {
	SourcesUsed     int    `json:"sources_used"`
	EvidencePieces  int    `json:"evidence_pieces"`
	ConfidenceLevel string `json:"confidence_level"`
}

// Result is one full pipeline run: the response, the cumulative trace,
// and the wall-clock duration.
type Result struct {
	FinalResponse FinalResponse    `json:"final_response"`
	Steps         []AgentStep      `json:"agent_steps"`
	TotalTimeMs   int64            `json:"total_processing_time_ms"`
	Metadata      *ComposeMetadata `json:"metadata,omitempty"`
}
