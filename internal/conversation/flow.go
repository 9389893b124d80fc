package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// FlowID names a flow in the graph.
type FlowID string

// Kind is the behaviour of a step.
type Kind int

const (
	// Capture renders its prompt and waits for the next inbound event.
	Capture Kind = iota
	// Action runs its handler as soon as the step is entered.
	Action
	// Terminal renders its prompt and ends the flow.
	Terminal
)

func (k Kind) String() string {
	switch k {
	case Capture:
		return "capture"
	case Action:
		return "action"
	case Terminal:
		return "terminal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// PromptFunc renders the messages sent when a step is entered.
type PromptFunc func(ctx context.Context, t *Turn) []Message

// Handler decides what happens after a step runs.
type Handler func(ctx context.Context, t *Turn) Result

// Step is one unit of dialogue.
type Step struct {
	Name   string
	Kind   Kind
	Prompt PromptFunc
	// Labels are the buttons the step offers. The handler reads the
	// selection through Turn.Choice.
	Labels Labels
	Handle Handler
}

// Flow is a statically defined sequence of steps.
type Flow struct {
	ID FlowID
	// Keywords reset any session to this flow at step 0.
	Keywords []string
	// Welcome marks the flow used for first contact and for onboarding.
	Welcome bool
	// Onboarding flows may run before the user has accepted the terms.
	Onboarding bool
	Steps      []Step
}

// Ask builds a capture step.
func Ask(name string, prompt PromptFunc, labels Labels, handle Handler) Step {
	return Step{Name: name, Kind: Capture, Prompt: prompt, Labels: labels, Handle: handle}
}

// Do builds an action step.
func Do(name string, handle Handler) Step {
	return Step{Name: name, Kind: Action, Handle: handle}
}

// Finish builds a terminal step.
func Finish(name string, prompt PromptFunc) Step {
	return Step{Name: name, Kind: Terminal, Prompt: prompt}
}

// Static returns a prompt that always renders the same messages.
func Static(msgs ...Message) PromptFunc {
	return func(context.Context, *Turn) []Message {
		return msgs
	}
}

// Graph is the immutable registry of flows.
type Graph struct {
	flows    map[FlowID]*Flow
	keywords map[string]FlowID
	welcome  FlowID
}

// NewGraph validates the flows and indexes their triggers.
func NewGraph(flows ...*Flow) (*Graph, error) {
	g := &Graph{
		flows:    make(map[FlowID]*Flow, len(flows)),
		keywords: make(map[string]FlowID),
	}

	for _, f := range flows {
		if f == nil {
			continue
		}
		if f.ID == "" {
			return nil, errors.New("flow without id")
		}
		if _, ok := g.flows[f.ID]; ok {
			return nil, fmt.Errorf("duplicate flow %q", f.ID)
		}
		if len(f.Steps) == 0 {
			return nil, fmt.Errorf("flow %q has no steps", f.ID)
		}
		names := make(map[string]bool, len(f.Steps))
		for i, s := range f.Steps {
			if s.Kind != Terminal && s.Handle == nil {
				return nil, fmt.Errorf("flow %q step %d (%s) has no handler", f.ID, i, s.Kind)
			}
			if s.Name != "" {
				if names[s.Name] {
					return nil, fmt.Errorf("flow %q has two steps named %q", f.ID, s.Name)
				}
				names[s.Name] = true
			}
		}
		for _, kw := range f.Keywords {
			key := strings.ToLower(strings.TrimSpace(kw))
			if key == "" {
				continue
			}
			if other, ok := g.keywords[key]; ok {
				return nil, fmt.Errorf("keyword %q is bound to both %q and %q", kw, other, f.ID)
			}
			g.keywords[key] = f.ID
		}
		if f.Welcome {
			if g.welcome != "" {
				return nil, fmt.Errorf("flows %q and %q are both marked as welcome", g.welcome, f.ID)
			}
			g.welcome = f.ID
		}
		g.flows[f.ID] = f
	}

	if g.welcome == "" {
		return nil, errors.New("no welcome flow registered")
	}

	return g, nil
}

// Flow looks up a flow by id.
func (g *Graph) Flow(id FlowID) (*Flow, bool) {
	f, ok := g.flows[id]
	return f, ok
}

// Index returns the position of the named step.
func (f *Flow) Index(name string) (int, bool) {
	for i, s := range f.Steps {
		if s.Name == name {
			return i, true
		}
	}
	return 0, false
}

// Welcome returns the first-contact flow.
func (g *Graph) Welcome() FlowID {
	return g.welcome
}

// Trigger returns the flow whose keyword equals the input, ignoring case.
func (g *Graph) Trigger(input string) (FlowID, bool) {
	id, ok := g.keywords[strings.ToLower(strings.TrimSpace(input))]
	return id, ok
}

// step returns the step at index or false when the pointer is stale.
func (g *Graph) step(id FlowID, index int) (*Flow, *Step, bool) {
	f, ok := g.flows[id]
	if !ok || index < 0 || index >= len(f.Steps) {
		return nil, nil, false
	}
	return f, &f.Steps[index], true
}
