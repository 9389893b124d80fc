package conversation

type outcome int

const (
	outcomeAdvance outcome = iota
	outcomeFallback
	outcomeGoto
	outcomeEnd
)

// Result is returned by step handlers to choose the next step.
type Result struct {
	outcome  outcome
	flow     FlowID
	step     int
	stepName string
	messages []Message
	state    any
	hasState bool
}

// Advance moves to the next step of the active flow. Advancing past the last
// step ends the flow.
func Advance() Result {
	return Result{outcome: outcomeAdvance}
}

// Fallback keeps the session on the current step and increments its retry
// counter. Without messages the step prompt is rendered again.
func Fallback(msgs ...Message) Result {
	return Result{outcome: outcomeFallback, messages: msgs}
}

// Goto jumps to a step of a flow. Jumping into another flow discards the
// current flow state; jumping inside the same flow keeps it.
func Goto(flow FlowID, step int) Result {
	return Result{outcome: outcomeGoto, flow: flow, step: step}
}

// GotoStep jumps to the step of a flow with the given name. It follows the
// same state rules as Goto.
func GotoStep(flow FlowID, name string) Result {
	return Result{outcome: outcomeGoto, flow: flow, stepName: name}
}

// End terminates the flow after sending msgs and drops the session.
func End(msgs ...Message) Result {
	return Result{outcome: outcomeEnd, messages: msgs}
}

// WithState seeds the flow state of a Goto target.
func (r Result) WithState(v any) Result {
	r.state = v
	r.hasState = true
	return r
}

func (r Result) String() string {
	switch r.outcome {
	case outcomeAdvance:
		return "advance"
	case outcomeFallback:
		return "fallback"
	case outcomeGoto:
		return "goto"
	case outcomeEnd:
		return "end"
	default:
		return "unknown"
	}
}
