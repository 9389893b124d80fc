package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const user = "51900000001"

type noteState struct {
	Notes map[string]string `json:"notes"`
}

func testGraph(t *testing.T) *Graph {
	t.Helper()

	welcome := &Flow{
		ID:         "welcome",
		Welcome:    true,
		Onboarding: true,
		Keywords:   []string{"!start", "menu"},
		Steps: []Step{
			Ask("menu", Static(Buttons{Body: "menu", Labels: []string{"Notas", "Otro"}}), Labels{"Notas", "Otro"},
				func(_ context.Context, t *Turn) Result {
					switch choice, _ := t.Choice(); choice {
					case "Notas":
						return Goto("notes", 0).WithState(noteState{Notes: map[string]string{"origin": "menu"}})
					case "Otro":
						return Goto("loop", 0)
					}
					return Fallback(Say("elige una opción"))
				}),
		},
	}

	notes := &Flow{
		ID:       "notes",
		Keywords: []string{"!notas"},
		Steps: []Step{
			Ask("first", Static(Say("primera nota")), nil, func(_ context.Context, t *Turn) Result {
				st, err := State[noteState](t)
				if err != nil {
					return End(Say(err.Error()))
				}
				if st.Notes == nil {
					st.Notes = map[string]string{}
				}
				st.Notes["first"] = t.Input()
				if err := t.Store(st); err != nil {
					return End(Say(err.Error()))
				}
				return Advance()
			}),
			Ask("second", Static(Say("segunda nota")), Labels{"Repetir"}, func(_ context.Context, t *Turn) Result {
				if _, ok := t.Choice(); ok {
					return GotoStep("notes", "first")
				}
				if t.Input() == "perdido" {
					return GotoStep("notes", "missing")
				}
				return Advance()
			}),
			Finish("done", Static(Say("listo"))),
		},
	}

	loop := &Flow{
		ID: "loop",
		Steps: []Step{
			Do("spin", func(context.Context, *Turn) Result { return Goto("loop", 0) }),
		},
	}

	g, err := NewGraph(welcome, notes, loop)
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	return g
}

type fixture struct {
	dispatcher *Dispatcher
	sessions   *memorySessions
	sender     *recordingSender
	logs       *observer.ObservedLogs
}

func newFixture(t *testing.T, members Members) *fixture {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	f := &fixture{sessions: newMemorySessions(), sender: &recordingSender{}, logs: logs}

	d, err := NewDispatcher(Options{
		Graph:    testGraph(t),
		Sessions: f.sessions,
		Members:  members,
		Events:   &memoryEvents{},
		Sender:   f.sender,
		Logger:   zap.New(core),
		Apology:  Say("lo sentimos"),
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	f.dispatcher = d
	return f
}

func (f *fixture) dispatch(t *testing.T, ev Event) {
	t.Helper()
	if err := f.dispatcher.Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("dispatch %q: %v", ev.Body, err)
	}
}

func (f *fixture) session(t *testing.T) *Session {
	t.Helper()
	s, _ := f.sessions.GetSession(context.Background(), user)
	return s
}

func TestFirstContactEntersWelcome(t *testing.T) {
	f := newFixture(t, staticMembers{user: true})

	f.dispatch(t, text(user, "hola"))

	s := f.session(t)
	if s == nil || s.Flow != "welcome" || s.Step != 0 {
		t.Fatalf("expected welcome session, got %+v", s)
	}
	if got := f.sender.texts(); len(got) != 1 || got[0] != "menu" {
		t.Fatalf("expected menu prompt, got %v", got)
	}
}

func TestKeywordResetsSessionCaseInsensitive(t *testing.T) {
	f := newFixture(t, staticMembers{user: true})

	f.dispatch(t, text(user, "hola"))
	f.dispatch(t, text(user, "Notas"))
	f.dispatch(t, text(user, "uno"))

	if s := f.session(t); s.Flow != "notes" || s.Step != 1 {
		t.Fatalf("expected notes step 1, got %+v", s)
	}

	f.dispatch(t, text(user, "  MENU "))

	s := f.session(t)
	if s.Flow != "welcome" || s.Step != 0 || len(s.State) != 0 {
		t.Fatalf("expected fresh welcome session, got %+v", s)
	}
}

func TestFallbackDoesNotAdvance(t *testing.T) {
	f := newFixture(t, staticMembers{user: true})

	f.dispatch(t, text(user, "hola"))
	f.sender.reset()
	f.dispatch(t, text(user, "nada que ver"))
	f.dispatch(t, text(user, "tampoco"))

	s := f.session(t)
	if s.Flow != "welcome" || s.Step != 0 {
		t.Fatalf("expected to stay on welcome step 0, got %+v", s)
	}
	if s.Retries != 2 {
		t.Fatalf("expected 2 retries, got %d", s.Retries)
	}
	if got := f.sender.texts(); len(got) != 2 || got[0] != "elige una opción" {
		t.Fatalf("unexpected fallback messages: %v", got)
	}
}

func TestGotoSeedsStateAndSameFlowReentryKeepsIt(t *testing.T) {
	f := newFixture(t, staticMembers{user: true})

	f.dispatch(t, text(user, "hola"))
	f.dispatch(t, text(user, "notas"))
	f.dispatch(t, text(user, "uno"))
	f.dispatch(t, text(user, "Repetir"))

	s := f.session(t)
	if s.Flow != "notes" || s.Step != 0 {
		t.Fatalf("expected re-entry at notes step 0, got %+v", s)
	}
	if !strings.Contains(string(s.State), `"origin":"menu"`) || !strings.Contains(string(s.State), `"first":"uno"`) {
		t.Fatalf("expected state to survive same-flow goto, got %s", s.State)
	}

	f.dispatch(t, text(user, "dos"))
	s = f.session(t)
	if strings.Count(string(s.State), `"first"`) != 1 || !strings.Contains(string(s.State), `"first":"dos"`) {
		t.Fatalf("expected overwrite by key, got %s", s.State)
	}

	f.dispatch(t, text(user, "fin"))
	if s := f.session(t); s != nil {
		t.Fatalf("expected session to be dropped after terminal step, got %+v", s)
	}
	texts := f.sender.texts()
	if texts[len(texts)-1] != "listo" {
		t.Fatalf("expected terminal prompt, got %v", texts)
	}
}

func TestKeywordTriggerStartsWithEmptyState(t *testing.T) {
	f := newFixture(t, staticMembers{user: true})

	f.dispatch(t, text(user, "!NOTAS"))

	s := f.session(t)
	if s.Flow != "notes" || len(s.State) != 0 {
		t.Fatalf("expected notes flow without state, got %+v", s)
	}
}

func TestCorruptSessionRestartsOnboarding(t *testing.T) {
	f := newFixture(t, staticMembers{user: true})
	_ = f.sessions.SaveSession(context.Background(), &Session{UserID: user, Flow: "removed", Step: 3})

	f.dispatch(t, text(user, "hola"))

	s := f.session(t)
	if s.Flow != "welcome" || s.Step != 0 {
		t.Fatalf("expected welcome after corrupt session, got %+v", s)
	}

	entries := f.logs.FilterMessage("restarting onboarding").All()
	if len(entries) != 1 {
		t.Fatalf("expected one restart log, got %d", len(entries))
	}
	if !strings.Contains(entries[0].ContextMap()["error"].(string), ErrSessionCorrupt.Error()) {
		t.Fatalf("expected session-corrupt in log, got %v", entries[0].ContextMap())
	}
}

func TestStepIndexOutOfRangeIsCorrupt(t *testing.T) {
	f := newFixture(t, staticMembers{user: true})
	_ = f.sessions.SaveSession(context.Background(), &Session{UserID: user, Flow: "notes", Step: 9})

	f.dispatch(t, text(user, "hola"))

	if s := f.session(t); s.Flow != "welcome" {
		t.Fatalf("expected welcome, got %+v", s)
	}
}

func TestGotoUnknownStepNameIsCorrupt(t *testing.T) {
	f := newFixture(t, staticMembers{user: true})

	f.dispatch(t, text(user, "!notas"))
	f.dispatch(t, text(user, "uno"))
	err := f.dispatcher.Dispatch(context.Background(), text(user, "perdido"))
	if !errors.Is(err, ErrSessionCorrupt) {
		t.Fatalf("expected session corrupt, got %v", err)
	}
	if s := f.session(t); s != nil {
		t.Fatalf("expected session to be dropped, got %+v", s)
	}
	if texts := f.sender.texts(); texts[len(texts)-1] != "lo sentimos" {
		t.Fatalf("expected apology, got %v", texts)
	}
}

func TestFlowIndex(t *testing.T) {
	g := testGraph(t)
	notes, _ := g.Flow("notes")

	if i, ok := notes.Index("done"); !ok || i != 2 {
		t.Fatalf("expected done at 2, got %d, %v", i, ok)
	}
	if _, ok := notes.Index("missing"); ok {
		t.Fatal("unknown step name must not resolve")
	}
}

func TestTermsRequiredOutsideOnboarding(t *testing.T) {
	f := newFixture(t, staticMembers{})
	_ = f.sessions.SaveSession(context.Background(), &Session{UserID: user, Flow: "notes", Step: 0})

	f.dispatch(t, text(user, "algo"))

	if s := f.session(t); s.Flow != "welcome" {
		t.Fatalf("expected redirect to onboarding, got %+v", s)
	}
}

func TestActionCycleIsBounded(t *testing.T) {
	f := newFixture(t, staticMembers{user: true})

	f.dispatch(t, text(user, "hola"))
	err := f.dispatcher.Dispatch(context.Background(), text(user, "Otro"))
	if err == nil || !strings.Contains(err.Error(), "exceeded") {
		t.Fatalf("expected transition limit error, got %v", err)
	}
	if s := f.session(t); s != nil {
		t.Fatalf("expected session to be dropped, got %+v", s)
	}
	texts := f.sender.texts()
	if texts[len(texts)-1] != "lo sentimos" {
		t.Fatalf("expected apology, got %v", texts)
	}
}

func TestRedeliveredEventIsIgnored(t *testing.T) {
	f := newFixture(t, staticMembers{user: true})

	f.dispatch(t, text(user, "hola"))

	ev := text(user, "Notas")
	ev.ID = "wamid.1"
	f.dispatch(t, ev)
	f.dispatch(t, ev)

	if s := f.session(t); s.Flow != "notes" || s.Step != 0 {
		t.Fatalf("expected a single transition, got %+v", s)
	}
}

func TestDispatchRequiresSender(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.dispatcher.Dispatch(context.Background(), Event{Body: "hola"}); err == nil {
		t.Fatalf("expected error for event without sender")
	}
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, errors.New("busy")
}

func TestLockFailureSkipsProcessing(t *testing.T) {
	sessions := newMemorySessions()
	d, err := NewDispatcher(Options{
		Graph:    testGraph(t),
		Sessions: sessions,
		Sender:   &recordingSender{},
		Locker:   failingLocker{},
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	if err := d.Dispatch(context.Background(), text(user, "hola")); err == nil {
		t.Fatalf("expected lock error")
	}
	if s, _ := sessions.GetSession(context.Background(), user); s != nil {
		t.Fatalf("expected no session, got %+v", s)
	}
}

func TestNewGraphValidation(t *testing.T) {
	handler := func(context.Context, *Turn) Result { return Advance() }

	tests := []struct {
		name  string
		flows []*Flow
		want  string
	}{
		{name: "no welcome", flows: []*Flow{{ID: "a", Steps: []Step{Do("x", handler)}}}, want: "no welcome"},
		{name: "duplicate keyword", flows: []*Flow{
			{ID: "a", Welcome: true, Keywords: []string{"Hola"}, Steps: []Step{Do("x", handler)}},
			{ID: "b", Keywords: []string{"hola"}, Steps: []Step{Do("x", handler)}},
		}, want: "keyword"},
		{name: "missing handler", flows: []*Flow{{ID: "a", Welcome: true, Steps: []Step{{Name: "x", Kind: Capture}}}}, want: "no handler"},
		{name: "empty flow", flows: []*Flow{{ID: "a", Welcome: true}}, want: "no steps"},
		{name: "duplicate step name", flows: []*Flow{{ID: "a", Welcome: true, Steps: []Step{Do("x", handler), Do("x", handler)}}}, want: "two steps named"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraph(tt.flows...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
