// Package store is the SQLite document store behind the conversation: sessions,
// users, the credit ledger and the append-only analysis, interview and
// transaction records.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/spigell/worky/internal/conversation"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User is a registered messaging identity.
type User struct {
	Phone           string
	Name            string
	Email           string
	Credits         int
	TotalCVAnalyzed int
	TermsAccepted   bool
	LastInterviewAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CVAnalysis is one analysis run appended to a user's history.
type CVAnalysis struct {
	ID        string          `json:"analysisId"`
	UserID    string          `json:"userId"`
	Position  string          `json:"jobPosition"`
	SourceURL string          `json:"cvUrl"`
	ReportURL string          `json:"pdfReportUrl"`
	Candidate CandidateInfo   `json:"candidateInfo"`
	Results   AnalysisResults `json:"analysisResults"`
	CreatedAt time.Time       `json:"analyzedAt"`
}

// CandidateInfo holds the fields the analysis service extracted from a CV.
type CandidateInfo struct {
	Name                string `json:"candidateName"`
	ContactInfo         any    `json:"contactInfo,omitempty"`
	ProfessionalSummary string `json:"professionalSummary,omitempty"`
	WorkExperience      any    `json:"workExperience,omitempty"`
	Education           any    `json:"education,omitempty"`
	Skills              any    `json:"skills,omitempty"`
	RawText             string `json:"rawText,omitempty"`
}

// AnalysisResults holds the score and recommendation fields of an analysis.
type AnalysisResults struct {
	OverallScore          float64 `json:"overallScore"`
	FeedbackSummary       string  `json:"feedbackSummary,omitempty"`
	Strengths             any     `json:"strengths,omitempty"`
	AreasForImprovement   any     `json:"areasForImprovement,omitempty"`
	FormattingAndLanguage any     `json:"formattingAndLanguage,omitempty"`
	KeywordAnalysis       any     `json:"keywordAnalysis,omitempty"`
	ATSCompliance         any     `json:"atsCompliance,omitempty"`
	ReportURL             string  `json:"pdf_url,omitempty"`
}

// Interview is one completed interview simulation.
type Interview struct {
	ID          string           `json:"interviewId"`
	UserID      string           `json:"userId"`
	Position    string           `json:"jobPosition"`
	Entries     []InterviewEntry `json:"questions"`
	StartedAt   time.Time        `json:"startedAt"`
	CompletedAt time.Time        `json:"completedAt"`
}

// InterviewEntry is a question with the user's transcribed answer and its score.
type InterviewEntry struct {
	Number      int      `json:"questionNumber"`
	Question    string   `json:"questionText"`
	Transcript  string   `json:"transcription"`
	MediaURL    string   `json:"mediaUrl,omitempty"`
	Score       int      `json:"score"`
	Summary     string   `json:"summary"`
	Strengths   []string `json:"strengths,omitempty"`
	Weaknesses  []string `json:"weaknesses,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// TransactionStatus is the verification state of a plan purchase.
type TransactionStatus string

const (
	TransactionPending  TransactionStatus = "pending"
	TransactionVerified TransactionStatus = "verified"
	TransactionRejected TransactionStatus = "rejected"
)

// Transaction is a user's attempt to redeem a payment plan.
type Transaction struct {
	ID        string
	UserID    string
	PlanID    string
	Amount    float64
	Credits   int
	ProofURL  string
	Status    TransactionStatus
	Detail    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository is everything the conversation needs from durable storage.
type Repository interface {
	conversation.SessionStore
	conversation.Members
	conversation.EventLog

	GetUser(ctx context.Context, phone string) (*User, error)
	SaveUser(ctx context.Context, u *User) error

	Balance(ctx context.Context, phone string) (int, error)
	Credit(ctx context.Context, phone string, n int, key string) error
	Debit(ctx context.Context, phone string, key string) (bool, error)

	AppendCVAnalysis(ctx context.Context, a *CVAnalysis) error
	ListCVAnalyses(ctx context.Context, phone string) ([]*CVAnalysis, error)
	AppendInterview(ctx context.Context, iv *Interview) error
	ListInterviews(ctx context.Context, phone string) ([]*Interview, error)
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, id string) (*Transaction, error)

	Ping(ctx context.Context) error
	Close() error
}
