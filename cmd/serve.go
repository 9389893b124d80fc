package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spigell/worky/internal/conversation"
	"github.com/spigell/worky/internal/logger"
	"github.com/spigell/worky/internal/media"
	"github.com/spigell/worky/internal/secrets"
	"github.com/spigell/worky/internal/server"
	"github.com/spigell/worky/internal/whatsapp"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the WhatsApp webhook and the media endpoints",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address, overrides server.addr")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := loadConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the worky", zap.String("version", version))
	logConfig(logger, config)

	if config.WhatsApp == nil {
		logger.Fatal("whatsapp section is required")
	}

	token, err := secrets.Load(secrets.Source{
		Name:  "whatsapp token",
		Value: config.WhatsApp.Token,
		File:  config.WhatsApp.TokenFile,
	})
	if err != nil {
		logger.Fatal("loading whatsapp token", zap.Error(err),
			zap.String("hint", "set META_JWT_TOKEN or whatsapp.token-file"))
	}
	appSecret, err := secrets.Optional(secrets.Source{
		Name:  "whatsapp app secret",
		Value: config.WhatsApp.AppSecret,
		File:  config.WhatsApp.AppSecretFile,
	})
	if err != nil {
		logger.Fatal("loading whatsapp app secret", zap.Error(err))
	}
	if appSecret == "" {
		logger.Warn("webhook signatures are not checked", zap.String("hint", "set whatsapp.app-secret"))
	}

	waConfig := config.WhatsApp.Config
	waConfig.Token = token
	client, err := whatsapp.New(waConfig, logger.Named("whatsapp"))
	if err != nil {
		logger.Fatal("creating whatsapp client", zap.Error(err))
	}

	downloader := media.NewDownloader(token, config.WhatsApp.DownloadTimeout)

	b, err := newBot(ctx, config, logger, client, downloader)
	if err != nil {
		logger.Fatal("building the bot", zap.Error(err))
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("closing clients", zap.Error(err))
		}
	}()

	// queued events finish after a shutdown signal, bounded by inbox.Close
	inbox := conversation.NewInbox(context.WithoutCancel(ctx), func(ctx context.Context, ev conversation.Event) error {
		if err := client.Resolve(ctx, &ev); err != nil {
			// handlers report the missing file to the user
			logger.Warn("resolving media failed", zap.String("user", ev.From), zap.String("event", ev.ID), zap.Error(err))
		}
		return b.dispatcher.Dispatch(ctx, ev)
	}, config.Conversation.EventTimeout, logger.Named("inbox"))

	serverConfig := config.Server
	serverConfig.MediaDir = config.Media.Dir
	serverConfig.VerifyToken = config.WhatsApp.VerifyToken
	serverConfig.AppSecret = appSecret

	srv, err := server.New(serverConfig, inbox, b.store, logger.Named("server"))
	if err != nil {
		logger.Fatal("creating the server", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		maintain(gctx, b, config, logger.Named("maintenance"))
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := inbox.Close(shutdownCtx); err != nil {
		logger.Warn("pending events were not finished", zap.Error(err))
	}

	logger.Info("stopped")
}

// maintain removes expired local media and old processed event ids until ctx
// is done.
func maintain(ctx context.Context, b *bot, config *Config, logger *zap.Logger) {
	interval := config.Media.CleanupInterval
	if interval <= 0 {
		logger.Info("maintenance disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			cleanup(ctx, b, config, logger, now)
		}
	}
}

func cleanup(ctx context.Context, b *bot, config *Config, logger *zap.Logger, now time.Time) {
	if b.local != nil && config.Media.Retention > 0 {
		removed, err := b.local.Cleanup(config.Media.Retention, now)
		if err != nil {
			logger.Warn("media cleanup failed", zap.Error(err))
		} else if removed > 0 {
			logger.Info("expired media removed", zap.Int("count", removed))
		}
	}

	if config.Conversation.EventRetention > 0 {
		pruned, err := b.store.PruneEvents(ctx, now.Add(-config.Conversation.EventRetention).Unix())
		if err != nil {
			logger.Warn("pruning events failed", zap.Error(err))
		} else if pruned > 0 {
			logger.Debug("processed events pruned", zap.Int64("count", pruned))
		}
	}
}

func loadConfig() (*Config, error) {
	config, err := getConfig()
	if err != nil {
		return nil, err
	}
	if config == nil {
		return nil, errors.New("config is required")
	}

	switch {
	case config.Store == nil, config.Locker == nil, config.Media == nil,
		config.AI == nil, config.Credits == nil, config.Conversation == nil:
		return nil, errors.New("incomplete configuration")
	}

	return config, nil
}

// logConfig dumps the effective configuration without credentials.
func logConfig(logger *zap.Logger, config *Config) {
	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))
}

func redacted(config *Config) Config {
	c := *config
	if c.WhatsApp != nil {
		wa := *c.WhatsApp
		wa.Token, wa.VerifyToken, wa.AppSecret = mask(wa.Token), mask(wa.VerifyToken), mask(wa.AppSecret)
		c.WhatsApp = &wa
	}
	if c.AI != nil && c.AI.Gemini != nil {
		ai := *c.AI
		gm := *ai.Gemini
		gm.APIKey = mask(gm.APIKey)
		ai.Gemini = &gm
		c.AI = &ai
	}
	if c.Media != nil {
		m := *c.Media
		if m.FTP != nil {
			ftp := *m.FTP
			ftp.Password = mask(ftp.Password)
			m.FTP = &ftp
		}
		if m.Transcriber != nil {
			tr := *m.Transcriber
			tr.APIKey = mask(tr.APIKey)
			m.Transcriber = &tr
		}
		c.Media = &m
	}
	if c.Locker != nil && c.Locker.Redis != nil {
		l := *c.Locker
		r := *l.Redis
		r.Password = mask(r.Password)
		l.Redis = &r
		c.Locker = &l
	}
	return c
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}
