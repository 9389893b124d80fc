package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/worky/internal/ai/gemini"
	"github.com/spigell/worky/internal/analysis"
	"github.com/spigell/worky/internal/conversation"
	"github.com/spigell/worky/internal/credits"
	"github.com/spigell/worky/internal/filtering"
	"github.com/spigell/worky/internal/flows"
	"github.com/spigell/worky/internal/locker"
	"github.com/spigell/worky/internal/media"
	"github.com/spigell/worky/internal/secrets"
	"github.com/spigell/worky/internal/store"

	"go.uber.org/zap"
)

const apology = "⚠️ *Ocurrió un error inesperado.*\n\nEscribe *menu* para volver al inicio."

// bot is the conversation core with every collaborator it needs.
type bot struct {
	store      *store.SQLiteStore
	local      *media.Local
	dispatcher *conversation.Dispatcher
	closers    []func() error
}

// newBot wires the store, media, analysis, credits and flows behind one
// dispatcher that replies through sender.
func newBot(ctx context.Context, config *Config, logger *zap.Logger, sender conversation.Sender, fetcher media.Fetcher) (*bot, error) {
	b := &bot{}

	db, err := store.NewSQLite(config.Store.Path, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	b.store = db
	b.closers = append(b.closers, db.Close)

	lock, err := b.newLocker(ctx, config.Locker, logger)
	if err != nil {
		b.Close()
		return nil, err
	}

	storage, err := b.newStorage(ctx, config.Media, logger)
	if err != nil {
		b.Close()
		return nil, err
	}

	transcriber, err := b.newTranscriber(ctx, config.Media.Transcriber)
	if err != nil {
		b.Close()
		return nil, err
	}
	if transcriber == nil {
		logger.Warn("transcription disabled", zap.String("hint", "set media.transcriber.provider"))
	}

	pipeline := media.NewPipeline(fetcher, storage, transcriber, config.Media.Settle, logger.Named("media"))

	generator, err := newGenerator(ctx, config.AI, logger)
	if err != nil {
		b.Close()
		return nil, err
	}
	maxLog := config.AI.Gemini.MaxLogLength
	interviewer := gemini.NewInterviewer(generator, logger.Named("interviewer"), maxLog)
	receipts := gemini.NewReceiptReader(generator, logger.Named("receipts"), maxLog)

	service, err := analysis.New(config.Analysis, logger.Named("analysis"))
	if err != nil {
		b.Close()
		return nil, err
	}

	filters := filtering.Default(config.Filtering)
	for _, status := range filtering.Describe(filters) {
		logger.Debug("job filter", zap.String("filter", status.Name), zap.Bool("enabled", status.Enabled), zap.String("reason", status.Reason))
	}

	orchestrator, err := analysis.NewOrchestrator(analysis.Options{
		Service:   service,
		Questions: interviewer,
		Scorer:    interviewer,
		Records:   db,
		Filters:   filters,
		Logger:    logger.Named("orchestrator"),
	})
	if err != nil {
		b.Close()
		return nil, err
	}

	ledger := credits.NewLedger(db, config.Credits.Enforce, logger.Named("credits"))
	verifier := credits.NewVerifier(pipeline, receipts, config.Credits.Recipients, logger.Named("payments"))

	graph, err := flows.New(flows.Deps{
		Users:    db,
		Analysis: orchestrator,
		Media:    pipeline,
		Ledger:   ledger,
		Payments: verifier,
		Plans:    config.Credits.Plans,
		Config:   config.Flows,
		Logger:   logger.Named("flows"),
	})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("building flows: %w", err)
	}

	dispatcher, err := conversation.NewDispatcher(conversation.Options{
		Graph:          graph,
		Sessions:       db,
		Members:        db,
		Events:         db,
		Locker:         lock,
		Sender:         sender,
		Logger:         logger.Named("dispatcher"),
		Apology:        conversation.Say(apology),
		MaxTransitions: config.Conversation.MaxTransitions,
	})
	if err != nil {
		b.Close()
		return nil, err
	}
	b.dispatcher = dispatcher

	return b, nil
}

// Close releases every client in reverse order of creation.
func (b *bot) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}

func (b *bot) newLocker(ctx context.Context, cfg *LockerConfig, logger *zap.Logger) (conversation.Locker, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "local":
		return locker.NewLocal(), nil
	case "redis":
		if cfg.Redis == nil {
			return nil, errors.New("locker.redis is required for the redis backend")
		}
		r, err := locker.NewRedis(ctx, locker.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.TTL,
		}, logger.Named("locker"))
		if err != nil {
			return nil, fmt.Errorf("connecting locker: %w", err)
		}
		b.closers = append(b.closers, r.Close)
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported locker backend: %s", cfg.Backend)
	}
}

func (b *bot) newStorage(ctx context.Context, cfg *MediaConfig, logger *zap.Logger) (media.Storage, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "local":
		b.local = media.NewLocal(cfg.Dir, cfg.PublicURL, logger.Named("storage"))
		return b.local, nil
	case "ftp":
		if cfg.FTP == nil {
			return nil, errors.New("media.ftp is required for the ftp backend")
		}
		password, err := secrets.Optional(secrets.Source{
			Name:  "ftp password",
			Value: cfg.FTP.Password,
			File:  cfg.FTP.PasswordFile,
		})
		if err != nil {
			return nil, err
		}
		return media.NewFTP(media.FTPConfig{
			Addr:      cfg.FTP.Addr,
			User:      cfg.FTP.User,
			Password:  password,
			Dir:       cfg.FTP.Dir,
			PublicURL: cfg.FTP.PublicURL,
			Timeout:   cfg.FTP.Timeout,
		})
	case "gcs":
		if cfg.GCS == nil {
			return nil, errors.New("media.gcs is required for the gcs backend")
		}
		g, err := media.NewGCS(ctx, media.GCSConfig{
			Bucket:          cfg.GCS.Bucket,
			Prefix:          cfg.GCS.Prefix,
			CredentialsFile: cfg.GCS.CredentialsFile,
			PublicBaseURL:   cfg.GCS.PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, g.Close)
		return g, nil
	default:
		return nil, fmt.Errorf("unsupported media backend: %s", cfg.Backend)
	}
}

func (b *bot) newTranscriber(ctx context.Context, cfg *TranscriberConfig) (media.Transcriber, error) {
	if cfg == nil {
		return nil, nil
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "":
		return nil, nil
	case "assemblyai":
		key, err := secrets.Load(secrets.Source{
			Name:  "assemblyai api key",
			Value: cfg.APIKey,
			Env:   "ASSEMBLYAI_API_KEY",
			File:  cfg.APIKeyFile,
		})
		if err != nil {
			return nil, err
		}
		return media.NewAssemblyAI(key, cfg.Language)
	case "google":
		g, err := media.NewGoogleSpeech(ctx, cfg.CredentialsFile, cfg.Language)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, g.Close)
		return g, nil
	default:
		return nil, fmt.Errorf("unsupported transcription provider: %s", cfg.Provider)
	}
}

func newGenerator(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (*gemini.Generator, error) {
	if cfg == nil || cfg.Gemini == nil {
		return nil, errors.New("ai.gemini configuration is required")
	}
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.Gemini.APIKey,
		Env:   "GEMINI_API_KEY",
		File:  cfg.Gemini.APIKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
	}

	genLogger := logger.With(
		zap.String("provider", "gemini"),
		zap.String("model", cfg.Gemini.Model),
		zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries),
	)

	return gemini.NewGenerator(ctx, gemini.Config{
		APIKey:        apiKey,
		Model:         cfg.Gemini.Model,
		FallbackModel: cfg.Gemini.FallbackModel,
		MaxRetries:    cfg.Gemini.MaxRetries,
		Temperature:   cfg.Gemini.Temperature,
		MaxLogLength:  cfg.Gemini.MaxLogLength,
	}, genLogger)
}
