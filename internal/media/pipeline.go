package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/worky/internal/utils"
	"go.uber.org/zap"
)

// Fetcher downloads provider media.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Pipeline downloads, persists and transcribes media for the flows.
type Pipeline struct {
	fetcher     Fetcher
	storage     Storage
	transcriber Transcriber
	logger      *zap.Logger
	// settle is waited after persisting, before the URL is handed to an
	// external service that reads it back.
	settle time.Duration
}

// NewPipeline wires a pipeline. A nil transcriber makes every transcription
// come back empty.
func NewPipeline(fetcher Fetcher, storage Storage, transcriber Transcriber, settle time.Duration, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		fetcher:     fetcher,
		storage:     storage,
		transcriber: transcriber,
		settle:      settle,
		logger:      logger,
	}
}

// Stored is media that now has a public URL.
type Stored struct {
	URL      string
	Name     string
	Category Category
	MimeType string
	Data     []byte
}

// Fetch downloads provider media.
func (p *Pipeline) Fetch(ctx context.Context, url string) ([]byte, error) {
	return p.fetcher.Fetch(ctx, url)
}

// Persist stores bytes under category and returns the public URL.
func (p *Pipeline) Persist(ctx context.Context, data []byte, category Category, name string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("nothing to persist")
	}

	url, err := p.storage.Save(ctx, category, name, data)
	if err != nil {
		return "", fmt.Errorf("persist %s/%s: %w", category, name, err)
	}

	p.logger.Debug("media persisted",
		zap.String("category", string(category)),
		zap.String("name", name),
		zap.Int("bytes", len(data)),
	)
	return url, nil
}

// Save fetches provider media and persists it.
func (p *Pipeline) Save(ctx context.Context, providerURL, mimeType string, category Category, name string) (*Stored, error) {
	data, err := p.Fetch(ctx, providerURL)
	if err != nil {
		return nil, err
	}

	url, err := p.Persist(ctx, data, category, name)
	if err != nil {
		return nil, err
	}

	if err := utils.WaitFor(ctx, p.settle); err != nil {
		return nil, err
	}

	return &Stored{URL: url, Name: name, Category: category, MimeType: mimeType, Data: data}, nil
}

// Transcribe returns the transcript and true, or false on any failure.
// Callers substitute a placeholder instead of aborting.
func (p *Pipeline) Transcribe(ctx context.Context, audio Audio) (string, bool) {
	if p.transcriber == nil {
		return "", false
	}

	text, err := p.transcriber.Transcribe(ctx, audio)
	if err != nil {
		p.logger.Warn("transcription failed",
			zap.String("transcriber", p.transcriber.Name()),
			zap.Error(err),
		)
		return "", false
	}
	if text == "" {
		p.logger.Info("transcription returned no text", zap.String("transcriber", p.transcriber.Name()))
		return "", false
	}

	return text, true
}
