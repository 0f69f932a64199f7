package agent

// StepRecorder accumulates the trace for a single pipeline run. The
// orchestrator creates a fresh recorder per run and hands it to every
// stage, so no stage holds trace state across requests.
type StepRecorder struct {
	steps []AgentStep
}

func NewStepRecorder() *StepRecorder {
	return &StepRecorder{steps: make([]AgentStep, 0, 8)}
}

func (r *StepRecorder) Record(stage, action, reasoning string, output map[string]any) {
	if output == nil {
		output = map[string]any{}
	}
	r.steps = append(r.steps, AgentStep{
		StageName: stage,
		Action:    action,
		Reasoning: reasoning,
		Output:    output,
	})
}

// Steps returns a copy so a caller cannot mutate recorded history.
func (r *StepRecorder) Steps() []AgentStep {
	out := make([]AgentStep, len(r.steps))
	copy(out, r.steps)
	return out
}
