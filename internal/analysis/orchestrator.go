package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spigell/worky/internal/ai"
	"github.com/spigell/worky/internal/filtering"
	"github.com/spigell/worky/internal/jobs"
	"github.com/spigell/worky/internal/store"
	"github.com/spigell/worky/internal/utils"
	"go.uber.org/zap"
)

// Service is the upstream CV analysis and job matching API.
type Service interface {
	AnalyzeCV(ctx context.Context, documentURL, role, name string) (*CVResult, error)
	MatchJobs(ctx context.Context, cv *CVResult, role, phone string) (*jobs.Listings, error)
}

// Recorder persists analysis and interview records.
type Recorder interface {
	AppendCVAnalysis(ctx context.Context, a *store.CVAnalysis) error
	AppendInterview(ctx context.Context, iv *store.Interview) error
}

type Options struct {
	Service   Service
	Questions ai.QuestionGenerator
	Scorer    ai.AnswerScorer
	Records   Recorder
	Filters   []filtering.Filter
	Logger    *zap.Logger
	Now       func() time.Time
}

// Orchestrator sequences the external calls behind CV review, job search and
// interview simulation.
type Orchestrator struct {
	service   Service
	questions ai.QuestionGenerator
	scorer    ai.AnswerScorer
	records   Recorder
	filters   []filtering.Filter
	logger    *zap.Logger
	now       func() time.Time
}

func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Service == nil {
		return nil, errors.New("analysis service is required")
	}
	if opts.Records == nil {
		return nil, errors.New("recorder is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Filters == nil {
		opts.Filters = filtering.Default(filtering.Config{})
	}

	return &Orchestrator{
		service:   opts.Service,
		questions: opts.Questions,
		scorer:    opts.Scorer,
		records:   opts.Records,
		filters:   opts.Filters,
		logger:    opts.Logger,
		now:       opts.Now,
	}, nil
}

// AnalyzeCV runs the analysis and appends it to the user's history. When the
// analysis succeeds but storing it fails, the record is returned together with
// an error wrapping ErrNotPersisted.
func (o *Orchestrator) AnalyzeCV(ctx context.Context, userID, documentURL, role, name string) (*store.CVAnalysis, error) {
	res, err := o.service.AnalyzeCV(ctx, documentURL, role, name)
	if err != nil {
		return nil, err
	}

	record := &store.CVAnalysis{
		ID:        utils.FirstNonEmpty(res.AnalysisID, uuid.NewString()),
		UserID:    userID,
		Position:  role,
		SourceURL: res.SourceURL,
		ReportURL: res.ReportURL(),
		Candidate: res.Candidate,
		Results:   res.Results,
		CreatedAt: o.now().UTC(),
	}

	if err := o.records.AppendCVAnalysis(ctx, record); err != nil {
		o.logger.Error("cv analysis not saved",
			zap.String("user", userID),
			zap.String("analysis_id", record.ID),
			zap.Error(err),
		)
		return record, fmt.Errorf("%w: %v", ErrNotPersisted, err)
	}

	o.logger.Info("cv analyzed",
		zap.String("user", userID),
		zap.String("analysis_id", record.ID),
		zap.Float64("score", record.Results.OverallScore),
	)
	return record, nil
}

// SearchJobs analyzes the CV, asks for matching listings and keeps only the
// valid ones, numbered for selection.
func (o *Orchestrator) SearchJobs(ctx context.Context, userID, documentURL, role string) (*jobs.Listings, error) {
	res, err := o.service.AnalyzeCV(ctx, documentURL, role, "")
	if err != nil {
		return nil, err
	}

	listings, err := o.service.MatchJobs(ctx, res, role, userID)
	if err != nil {
		return nil, err
	}

	return o.ValidateAndFilterJobs(ctx, listings)
}

// ValidateAndFilterJobs drops listings that cannot be shown and assigns ids.
func (o *Orchestrator) ValidateAndFilterJobs(ctx context.Context, l *jobs.Listings) (*jobs.Listings, error) {
	initial := l.Len()
	out, err := filtering.Run(ctx, o.logger, o.filters, l)
	if err != nil {
		return nil, fmt.Errorf("filter listings: %w", err)
	}
	out.AssignIDs()

	o.logger.Debug("listings filtered",
		zap.Int("initial", initial),
		zap.Int("left", out.Len()),
		zap.Any("by_company", out.ReportByCompany()),
	)
	return out, nil
}
