package agent

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"unicode/utf8"
)

const stageEvaluator = "evaluator"

// Rules is the evaluator's read-only rule table: keyword lists,
// thresholds, and the fixed approval amount. A Rules value is never
// mutated after construction, so a single instance is safe to share
// across concurrent runs.
type Rules struct {
	CoverageKeywords  []string
	ExclusionKeywords []string
	ProcedureCoverage map[string][]string

	CoverageThreshold    float64
	ExclusionThreshold   float64
	AgeLimitPenalty      float64
	WaitingPeriodPenalty float64

	// ApprovedAmount is a fixed constant, not derived from policy
	// terms. Real payout calculation would need the policy schedule.
	ApprovedAmount float64
}

func DefaultRules() Rules {
	return Rules{
		CoverageKeywords: []string{
			"covered", "eligible", "included", "benefits", "payable",
			"reimbursement", "compensation", "claim",
		},
		ExclusionKeywords: []string{
			"excluded", "not covered", "limitation", "restriction",
			"pre-existing", "waiting period", "deductible",
		},
		ProcedureCoverage: map[string][]string{
			"knee surgery":     {"orthopedic", "surgical", "knee", "joint"},
			"heart surgery":    {"cardiac", "cardiovascular", "heart"},
			"cancer treatment": {"oncology", "chemotherapy", "radiation"},
			"diabetes":         {"endocrine", "diabetes", "insulin"},
		},
		CoverageThreshold:    2.0,
		ExclusionThreshold:   1.0,
		AgeLimitPenalty:      1.0,
		WaitingPeriodPenalty: 2.0,
		ApprovedAmount:       50000.0,
	}
}

// ConditionRule is one pluggable policy-condition check. The default
// rule set reports every condition satisfied; real checks can be
// swapped in without touching the evaluator's control flow.
type ConditionRule interface {
	Name() string
	Satisfied(structured StructuredQuery, fragments []CandidateFragment) bool
}

type staticConditionRule struct {
	name    string
	verdict bool
}

func (r staticConditionRule) Name() string { return r.name }

func (r staticConditionRule) Satisfied(StructuredQuery, []CandidateFragment) bool {
	return r.verdict
}

// DefaultConditionRules returns the placeholder rule set: every
// condition passes.
func DefaultConditionRules() []ConditionRule {
	return []ConditionRule{
		staticConditionRule{name: "waiting_period_clear", verdict: true},
		staticConditionRule{name: "age_eligible", verdict: true},
		staticConditionRule{name: "location_covered", verdict: true},
		staticConditionRule{name: "procedure_pre_approved", verdict: true},
	}
}

// Evaluator applies deterministic coverage rules over retrieved
// fragments. Evaluate is a pure function of its inputs: no external
// calls, no hidden state.
type Evaluator struct {
	rules      Rules
	conditions []ConditionRule
	logger     *log.Logger
}

func NewEvaluator(rules Rules, conditions []ConditionRule, logger *log.Logger) *Evaluator {
	if conditions == nil {
		conditions = DefaultConditionRules()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Evaluator{rules: rules, conditions: conditions, logger: logger}
}

func (e *Evaluator) Evaluate(rec *StepRecorder, structured StructuredQuery, fragments []CandidateFragment) (EvaluationResult, error) {
	rec.Record(stageEvaluator, "start_evaluation",
		"Beginning evaluation of retrieved information",
		map[string]any{"chunks_to_evaluate": len(fragments)})

	coverage := e.analyzeCoverage(fragments, structured.Procedure)
	exclusions := e.checkExclusions(fragments, structured)
	conditions := e.evaluateConditions(structured, fragments)

	result := e.decide(coverage, exclusions, conditions)
	result.ConfidenceScore = e.confidence(coverage, exclusions)
	result.Coverage = coverage
	result.Exclusions = exclusions
	result.Conditions = conditions

	rec.Record(stageEvaluator, "complete_evaluation",
		"Completed evaluation and decision making",
		map[string]any{
			"decision":   result.Decision,
			"confidence": result.ConfidenceScore,
		})

	return result, nil
}

func (e *Evaluator) analyzeCoverage(fragments []CandidateFragment, procedure string) CoverageAnalysis {
	score := 0.0
	supporting := make([]Evidence, 0, len(fragments))

	procedureTerms := e.rules.ProcedureCoverage[strings.ToLower(procedure)]

	for _, fragment := range fragments {
		text := strings.ToLower(fragment.Text)

		generic := 0
		for _, keyword := range e.rules.CoverageKeywords {
			if strings.Contains(text, keyword) {
				generic++
			}
		}

		specific := 0
		for _, keyword := range procedureTerms {
			if strings.Contains(text, keyword) {
				specific++
			}
		}

		// Procedure-specific matches weigh double.
		chunkScore := float64(generic + specific*2)
		if chunkScore > 0 {
			score += chunkScore * fragment.Confidence
			supporting = append(supporting, Evidence{
				Kind:       EvidenceCoverage,
				Text:       truncate(fragment.Text, 200),
				Document:   fragment.Document,
				Score:      chunkScore,
				Confidence: fragment.Confidence,
				Page:       fragment.Page,
			})
		}
	}

	sort.SliceStable(supporting, func(i, j int) bool {
		return supporting[i].Score > supporting[j].Score
	})
	if len(supporting) > 3 {
		supporting = supporting[:3]
	}

	return CoverageAnalysis{
		Score:      score,
		IsCovered:  score > e.rules.CoverageThreshold,
		Supporting: supporting,
	}
}

func (e *Evaluator) checkExclusions(fragments []CandidateFragment, structured StructuredQuery) ExclusionAnalysis {
	score := 0.0
	reasons := make([]Evidence, 0)

	for _, fragment := range fragments {
		text := strings.ToLower(fragment.Text)

		found := make([]string, 0)
		for _, keyword := range e.rules.ExclusionKeywords {
			if strings.Contains(text, keyword) {
				found = append(found, keyword)
			}
		}

		if len(found) > 0 {
			score += float64(len(found)) * fragment.Confidence
			reasons = append(reasons, Evidence{
				Kind:       EvidenceExclusion,
				Reason:     fmt.Sprintf("Found exclusion terms: %s", strings.Join(found, ", ")),
				Text:       truncate(fragment.Text, 200),
				Document:   fragment.Document,
				Confidence: fragment.Confidence,
				Page:       fragment.Page,
			})
		}

		if structured.Age != nil && (strings.Contains(text, "age limit") || strings.Contains(text, "maximum age")) {
			score += e.rules.AgeLimitPenalty
			reasons = append(reasons, Evidence{
				Kind:       EvidenceExclusion,
				Reason:     fmt.Sprintf("Age-related exclusion may apply (age: %d)", *structured.Age),
				Text:       truncate(fragment.Text, 200),
				Document:   fragment.Document,
				Confidence: fragment.Confidence,
				Page:       fragment.Page,
			})
		}

		if underTwelveMonths(structured.PolicyDuration) &&
			(strings.Contains(text, "waiting period") || strings.Contains(text, "pre-existing")) {
			score += e.rules.WaitingPeriodPenalty
			reasons = append(reasons, Evidence{
				Kind:       EvidenceExclusion,
				Reason:     fmt.Sprintf("Waiting period may apply (policy: %d %s)", structured.PolicyDuration.Value, structured.PolicyDuration.Unit),
				Text:       truncate(fragment.Text, 200),
				Document:   fragment.Document,
				Confidence: fragment.Confidence,
				Page:       fragment.Page,
			})
		}
	}

	if len(reasons) > 3 {
		reasons = reasons[:3]
	}

	return ExclusionAnalysis{
		Score:         score,
		HasExclusions: score > e.rules.ExclusionThreshold,
		Reasons:       reasons,
	}
}

func (e *Evaluator) evaluateConditions(structured StructuredQuery, fragments []CandidateFragment) ConditionAnalysis {
	conditions := make(map[string]bool, len(e.conditions))
	allMet := true
	for _, rule := range e.conditions {
		satisfied := rule.Satisfied(structured, fragments)
		conditions[rule.Name()] = satisfied
		if !satisfied {
			allMet = false
		}
	}
	return ConditionAnalysis{ConditionsMet: allMet, Conditions: conditions}
}

func (e *Evaluator) decide(coverage CoverageAnalysis, exclusions ExclusionAnalysis, conditions ConditionAnalysis) EvaluationResult {
	var result EvaluationResult

	switch {
	case coverage.IsCovered && !exclusions.HasExclusions && conditions.ConditionsMet:
		amount := e.rules.ApprovedAmount
		result.Decision = DecisionApproved
		result.Amount = &amount
		result.Justification = "Coverage approved based on policy terms and conditions."
	case coverage.IsCovered && exclusions.HasExclusions:
		result.Decision = DecisionRequiresMoreInfo
		result.Justification = "Coverage may be available but exclusions need to be reviewed."
	case !coverage.IsCovered:
		result.Decision = DecisionRejected
		result.Justification = "Procedure not covered under current policy terms."
	default:
		result.Decision = DecisionRequiresMoreInfo
		result.Justification = "Additional information required to make coverage determination."
	}

	evidence := make([]Evidence, 0, len(coverage.Supporting)+len(exclusions.Reasons))
	evidence = append(evidence, coverage.Supporting...)
	evidence = append(evidence, exclusions.Reasons...)
	result.Evidence = evidence

	return result
}

func (e *Evaluator) confidence(coverage CoverageAnalysis, exclusions ExclusionAnalysis) float64 {
	base := minFloat(coverage.Score/5.0, 1.0) - minFloat(exclusions.Score/3.0, 0.5)

	if len(coverage.Supporting) > 2 {
		base += 0.1
	}

	return clamp(base, 0.1, 1.0)
}

// underTwelveMonths reports whether the policy is younger than a year:
// month-denominated durations below 12 or day-denominated below 365.
func underTwelveMonths(duration *PolicyDuration) bool {
	if duration == nil {
		return false
	}
	switch duration.Unit {
	case UnitMonth:
		return duration.Value < 12
	case UnitDay:
		return duration.Value < 365
	}
	return false
}

// truncate cuts text to at most limit bytes without splitting a rune,
// appending an ellipsis when anything was removed.
func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
