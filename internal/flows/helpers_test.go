package flows

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spigell/worky/internal/ai"
	"github.com/spigell/worky/internal/analysis"
	"github.com/spigell/worky/internal/conversation"
	"github.com/spigell/worky/internal/credits"
	"github.com/spigell/worky/internal/jobs"
	"github.com/spigell/worky/internal/media"
	"github.com/spigell/worky/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testUser = "51999000111"

type recorder struct {
	mu   sync.Mutex
	sent []conversation.Message
}

func (r *recorder) Send(_ context.Context, _ string, msg conversation.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

// bodies flattens every sent message into its visible text.
func (r *recorder) bodies() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, m := range r.sent {
		switch v := m.(type) {
		case conversation.Text:
			out = append(out, v.Body)
		case conversation.Buttons:
			out = append(out, v.Body+" ["+strings.Join(v.Labels, "|")+"]")
		case conversation.List:
			rows := make([]string, 0)
			for _, s := range v.Sections {
				for _, row := range s.Rows {
					rows = append(rows, row.ID+"="+row.Title)
				}
			}
			out = append(out, v.Header+" {"+strings.Join(rows, "|")+"}")
		case conversation.Media:
			out = append(out, v.Caption+" <"+v.URL+">")
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

type fakeAnalyzer struct {
	records *store.SQLiteStore

	cv      *store.CVAnalysis
	cvErr   error
	cvCalls []string

	listings *jobs.Listings
	jobsErr  error

	questionErr error
	questions   int
	feedback    *ai.Feedback
}

func (f *fakeAnalyzer) AnalyzeCV(_ context.Context, userID, documentURL, role, _ string) (*store.CVAnalysis, error) {
	f.cvCalls = append(f.cvCalls, role+"@"+documentURL)
	if f.cvErr != nil && f.cv == nil {
		return nil, f.cvErr
	}
	rec := *f.cv
	rec.UserID = userID
	rec.Position = role
	return &rec, f.cvErr
}

func (f *fakeAnalyzer) SearchJobs(context.Context, string, string, string) (*jobs.Listings, error) {
	if f.jobsErr != nil {
		return nil, f.jobsErr
	}
	if f.listings == nil {
		return &jobs.Listings{}, nil
	}
	out := &jobs.Listings{}
	for _, l := range f.listings.Items {
		copied := *l
		out.Items = append(out.Items, &copied)
	}
	out.AssignIDs()
	return out, nil
}

func (f *fakeAnalyzer) Question(_ context.Context, role string, number int, previous []string) (string, error) {
	if f.questionErr != nil {
		return "", f.questionErr
	}
	f.questions++
	return fmt.Sprintf("Pregunta %d para %s (%d previas)", number, role, len(previous)), nil
}

func (f *fakeAnalyzer) Score(context.Context, string, string, string) *ai.Feedback {
	return f.feedback
}

func (f *fakeAnalyzer) RecordInterview(ctx context.Context, userID, role string, answers []analysis.Answer, started time.Time) (*store.Interview, error) {
	iv := analysis.BuildInterview(userID, role, answers, started, time.Now())
	if err := f.records.AppendInterview(ctx, iv); err != nil {
		return iv, fmt.Errorf("%w: %v", analysis.ErrNotPersisted, err)
	}
	return iv, nil
}

type fakeMedia struct {
	saved      []string
	saveErr    error
	transcript string
}

func (f *fakeMedia) Save(_ context.Context, _, mimeType string, category media.Category, name string) (*media.Stored, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.saved = append(f.saved, string(category)+"/"+name)
	return &media.Stored{
		URL:      "https://files.test/" + string(category) + "/" + name,
		Name:     name,
		Category: category,
		MimeType: mimeType,
		Data:     []byte("stored:" + name),
	}, nil
}

func (f *fakeMedia) Transcribe(context.Context, media.Audio) (string, bool) {
	return f.transcript, f.transcript != ""
}

type fakePayments struct {
	results []credits.Verification
	calls   int
	// images verified from stored bytes, urls verified by download
	images []string
	urls   []string
}

func (f *fakePayments) VerifyPayment(_ context.Context, url, _ string, _ float64) credits.Verification {
	f.urls = append(f.urls, url)
	return f.next()
}

func (f *fakePayments) VerifyImage(_ context.Context, image []byte, _ string, _ float64) credits.Verification {
	f.images = append(f.images, string(image))
	return f.next()
}

func (f *fakePayments) next() credits.Verification {
	f.calls++
	if len(f.results) == 0 {
		return credits.Verification{Status: credits.StatusError, Error: "no result"}
	}
	res := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return res
}

type harness struct {
	t          *testing.T
	store      *store.SQLiteStore
	sender     *recorder
	analysis   *fakeAnalyzer
	media      *fakeMedia
	payments   *fakePayments
	dispatcher *conversation.Dispatcher
	seq        int
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := store.NewSQLite(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	h := &harness{
		t:      t,
		store:  st,
		sender: &recorder{},
		analysis: &fakeAnalyzer{
			records: st,
			cv:      &store.CVAnalysis{ID: "an-1", ReportURL: "https://reports.test/an-1.pdf"},
			feedback: &ai.Feedback{
				Score:       7,
				Summary:     "Buena respuesta",
				Strengths:   []string{"Claridad"},
				Weaknesses:  []string{"Pocos ejemplos"},
				Suggestions: []string{"Usa el método STAR"},
			},
		},
		media:    &fakeMedia{transcript: "Trabajé tres años como analista"},
		payments: &fakePayments{},
	}

	graph, err := New(Deps{
		Users:    st,
		Analysis: h.analysis,
		Media:    h.media,
		Ledger:   credits.NewLedger(st, true, zap.NewNop()),
		Payments: h.payments,
		Config:   Config{WelcomeCredits: 1},
	})
	require.NoError(t, err)

	h.dispatcher, err = conversation.NewDispatcher(conversation.Options{
		Graph:    graph,
		Sessions: st,
		Members:  st,
		Events:   st,
		Sender:   h.sender,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)

	return h
}

// register creates an onboarded user with the given balance.
func (h *harness) register(balance int) {
	h.t.Helper()
	ctx := context.Background()
	require.NoError(h.t, h.store.SaveUser(ctx, &store.User{Phone: testUser, Email: "ana@uni.edu.pe", TermsAccepted: true}))
	if balance > 0 {
		require.NoError(h.t, h.store.Credit(ctx, testUser, balance, "seed"))
	}
}

func (h *harness) dispatch(ev conversation.Event) {
	h.t.Helper()
	h.seq++
	ev.ID = fmt.Sprintf("wamid.%d", h.seq)
	if ev.From == "" {
		ev.From = testUser
	}
	require.NoError(h.t, h.dispatcher.Dispatch(context.Background(), ev))
}

func (h *harness) text(body string) {
	h.t.Helper()
	h.dispatch(conversation.Event{Body: body, Type: conversation.EventText})
}

func (h *harness) file(kind conversation.EventType, mimeType string) {
	h.t.Helper()
	h.dispatch(conversation.Event{
		Type: kind,
		URL:  fmt.Sprintf("https://lookaside.test/%d", h.seq+1),
		File: &conversation.File{ID: fmt.Sprintf("media-%d", h.seq+1), MimeType: mimeType},
	})
}

func (h *harness) session() *conversation.Session {
	h.t.Helper()
	sess, err := h.store.GetSession(context.Background(), testUser)
	require.NoError(h.t, err)
	return sess
}

func (h *harness) requireAt(flow conversation.FlowID, step int) {
	h.t.Helper()
	sess := h.session()
	require.NotNil(h.t, sess, "expected a session at %s/%d", flow, step)
	require.Equal(h.t, flow, sess.Flow)
	require.Equal(h.t, step, sess.Step)
}

func (h *harness) balance() int {
	h.t.Helper()
	n, err := h.store.Balance(context.Background(), testUser)
	require.NoError(h.t, err)
	return n
}

// saw reports whether any sent message contains substr.
func (h *harness) saw(substr string) bool {
	for _, body := range h.sender.bodies() {
		if strings.Contains(body, substr) {
			return true
		}
	}
	return false
}

func (h *harness) requireSaw(substr string) {
	h.t.Helper()
	require.Truef(h.t, h.saw(substr), "no message contains %q; sent: %q", substr, h.sender.bodies())
}
