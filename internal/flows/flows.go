// Package flows defines the recruiting assistant dialogue: onboarding, CV
// review, job search, interview simulation and credit purchases. Every flow
// reaches its collaborators through Deps, which is built once at startup.
package flows

import (
	"context"
	"errors"
	"time"

	"github.com/spigell/worky/internal/ai"
	"github.com/spigell/worky/internal/analysis"
	"github.com/spigell/worky/internal/conversation"
	"github.com/spigell/worky/internal/credits"
	"github.com/spigell/worky/internal/jobs"
	"github.com/spigell/worky/internal/media"
	"github.com/spigell/worky/internal/store"
	"go.uber.org/zap"
)

const (
	FlowWelcome   conversation.FlowID = "welcome"
	FlowTerms     conversation.FlowID = "terms"
	FlowEmail     conversation.FlowID = "email"
	FlowCV        conversation.FlowID = "cv"
	FlowJobs      conversation.FlowID = "jobs"
	FlowInterview conversation.FlowID = "interview"
	FlowCredits   conversation.FlowID = "credits"
	FlowPlans     conversation.FlowID = "plans"
	FlowPay       conversation.FlowID = "pay"
	FlowFallback  conversation.FlowID = "fallback"
	FlowThanks    conversation.FlowID = "thanks"
)

// Users is the part of the document store the onboarding flows use.
type Users interface {
	TermsAccepted(ctx context.Context, phone string) (bool, error)
	GetUser(ctx context.Context, phone string) (*store.User, error)
	SaveUser(ctx context.Context, u *store.User) error
}

// Analyzer runs CV analysis, job search and interview scoring.
type Analyzer interface {
	AnalyzeCV(ctx context.Context, userID, documentURL, role, name string) (*store.CVAnalysis, error)
	SearchJobs(ctx context.Context, userID, documentURL, role string) (*jobs.Listings, error)
	Question(ctx context.Context, role string, number int, previous []string) (string, error)
	Score(ctx context.Context, role, question, transcript string) *ai.Feedback
	RecordInterview(ctx context.Context, userID, role string, answers []analysis.Answer, started time.Time) (*store.Interview, error)
}

// MediaPipeline stores captured media and transcribes answers.
type MediaPipeline interface {
	Save(ctx context.Context, providerURL, mimeType string, category media.Category, name string) (*media.Stored, error)
	Transcribe(ctx context.Context, audio media.Audio) (string, bool)
}

// Ledger gates billable actions and books purchases.
type Ledger interface {
	Balance(ctx context.Context, phone string) (int, error)
	CanSpend(ctx context.Context, phone string) (bool, error)
	Charge(ctx context.Context, phone, key string) (bool, error)
	Redeem(ctx context.Context, phone string, p credits.Purchase) (int, error)
	Reject(ctx context.Context, phone string, p credits.Purchase) error
	Grant(ctx context.Context, phone string, n int, key string) error
}

// PaymentVerifier checks a payment screenshot against the plan price.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, imageURL, mimeType string, expected float64) credits.Verification
	VerifyImage(ctx context.Context, image []byte, mimeType string, expected float64) credits.Verification
}

// Config holds the flow settings that come from configuration.
type Config struct {
	WelcomeCredits int    `mapstructure:"welcome-credits"`
	PayeePhone     string `mapstructure:"payee-phone"`
	PayeeName      string `mapstructure:"payee-name"`
}

// Deps is the dependency context shared by all flows.
type Deps struct {
	Users    Users
	Analysis Analyzer
	Media    MediaPipeline
	Ledger   Ledger
	Payments PaymentVerifier
	Plans    credits.Catalog
	Config   Config
	Logger   *zap.Logger
	Now      func() time.Time
}

func (d *Deps) validate() error {
	switch {
	case d.Users == nil:
		return errors.New("users store is required")
	case d.Analysis == nil:
		return errors.New("analyzer is required")
	case d.Media == nil:
		return errors.New("media pipeline is required")
	case d.Ledger == nil:
		return errors.New("ledger is required")
	case d.Payments == nil:
		return errors.New("payment verifier is required")
	}
	return nil
}

type builder struct {
	Deps
}

// New builds the flow graph.
func New(d Deps) (*conversation.Graph, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	if len(d.Plans) == 0 {
		d.Plans = credits.DefaultCatalog()
	}
	if err := d.Plans.Validate(); err != nil {
		return nil, err
	}
	if d.Config.PayeePhone == "" {
		d.Config.PayeePhone = DefaultPayeePhone
	}
	if d.Config.PayeeName == "" {
		d.Config.PayeeName = DefaultPayeeName
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	b := &builder{Deps: d}
	return conversation.NewGraph(
		b.welcome(),
		b.terms(),
		b.email(),
		b.cv(),
		b.jobs(),
		b.interview(),
		b.credits(),
		b.plans(),
		b.pay(),
		b.fallback(),
		b.thanks(),
	)
}

// gate sends users without credits to the credits flow before a billable
// action asks for any input.
func (b *builder) gate(ctx context.Context, t *conversation.Turn) conversation.Result {
	ok, err := b.Ledger.CanSpend(ctx, t.UserID())
	if err != nil {
		t.Logger.Error("checking balance failed", zap.Error(err))
		return conversation.Goto(FlowFallback, 0)
	}
	if !ok {
		t.Logger.Info("no credits left")
		return conversation.Goto(FlowCredits, 0)
	}
	return conversation.Advance()
}

// charge takes the credit for a finished billable action. The inbound event id
// keys the debit so a redelivery cannot charge twice.
func (b *builder) charge(ctx context.Context, t *conversation.Turn, fallbackKey string) {
	key := t.Event.ID
	if key == "" {
		key = fallbackKey
	}
	charged, err := b.Ledger.Charge(ctx, t.UserID(), key)
	if err != nil {
		t.Logger.Error("charging credit failed", zap.Error(err))
		return
	}
	if !charged {
		t.Logger.Warn("balance was empty when charging", zap.String("key", key))
	}
}

// failed reports an integration error to the user and moves to the fallback flow.
func failed(ctx context.Context, t *conversation.Turn, body string, err error) conversation.Result {
	t.Logger.Error("flow step failed", zap.Error(err))
	t.Send(ctx, conversation.Say(body))
	return conversation.Goto(FlowFallback, 0)
}

func home() conversation.Result {
	return conversation.Goto(FlowWelcome, 0)
}
