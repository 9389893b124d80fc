package cmd

import (
	"errors"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spigell/worky/internal/analysis"
	"github.com/spigell/worky/internal/credits"
	"github.com/spigell/worky/internal/filtering"
	"github.com/spigell/worky/internal/flows"
	"github.com/spigell/worky/internal/server"
	"github.com/spigell/worky/internal/whatsapp"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "worky"
)

type Config struct {
	Server       server.Config       `mapstructure:"server"`
	WhatsApp     *WhatsAppConfig     `mapstructure:"whatsapp"`
	Store        *StoreConfig        `mapstructure:"store"`
	Locker       *LockerConfig       `mapstructure:"locker"`
	Media        *MediaConfig        `mapstructure:"media"`
	Analysis     analysis.Config     `mapstructure:"analysis"`
	Filtering    filtering.Config    `mapstructure:"filtering"`
	AI           *AIConfig           `mapstructure:"ai"`
	Credits      *CreditsConfig      `mapstructure:"credits"`
	Flows        flows.Config        `mapstructure:"flows"`
	Conversation *ConversationConfig `mapstructure:"conversation"`
}

type WhatsAppConfig struct {
	whatsapp.Config `mapstructure:",squash"`

	Token           string        `mapstructure:"token"`
	TokenFile       string        `mapstructure:"token-file"`
	VerifyToken     string        `mapstructure:"verify-token"`
	AppSecret       string        `mapstructure:"app-secret"`
	AppSecretFile   string        `mapstructure:"app-secret-file"`
	DownloadTimeout time.Duration `mapstructure:"download-timeout"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type LockerConfig struct {
	// Backend is "local" or "redis".
	Backend string        `mapstructure:"backend"`
	Redis   *RedisConfig  `mapstructure:"redis"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type MediaConfig struct {
	// Backend is "local", "ftp" or "gcs".
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	// PublicURL is where the bot's own file endpoints are reachable.
	PublicURL       string             `mapstructure:"public-url"`
	Settle          time.Duration      `mapstructure:"settle"`
	Retention       time.Duration      `mapstructure:"retention"`
	CleanupInterval time.Duration      `mapstructure:"cleanup-interval"`
	FTP             *FTPConfig         `mapstructure:"ftp"`
	GCS             *GCSConfig         `mapstructure:"gcs"`
	Transcriber     *TranscriberConfig `mapstructure:"transcriber"`
}

type FTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	PasswordFile string        `mapstructure:"password-file"`
	Dir          string        `mapstructure:"dir"`
	PublicURL    string        `mapstructure:"public-url"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	CredentialsFile string `mapstructure:"credentials-file"`
	PublicBaseURL   string `mapstructure:"public-base-url"`
}

type TranscriberConfig struct {
	// Provider is "assemblyai", "google" or empty to disable transcription.
	Provider        string `mapstructure:"provider"`
	Language        string `mapstructure:"language"`
	APIKey          string `mapstructure:"api-key"`
	APIKeyFile      string `mapstructure:"api-key-file"`
	CredentialsFile string `mapstructure:"credentials-file"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey        string  `mapstructure:"api-key"`
	APIKeyFile    string  `mapstructure:"api-key-file"`
	Model         string  `mapstructure:"model"`
	FallbackModel string  `mapstructure:"fallback-model"`
	MaxRetries    int     `mapstructure:"max-retries"`
	Temperature   float32 `mapstructure:"temperature"`
	MaxLogLength  int     `mapstructure:"max-log-length"`
}

type CreditsConfig struct {
	Enforce    bool            `mapstructure:"enforce"`
	Plans      credits.Catalog `mapstructure:"plans"`
	Recipients []string        `mapstructure:"recipients"`
}

type ConversationConfig struct {
	EventTimeout   time.Duration `mapstructure:"event-timeout"`
	MaxTransitions int           `mapstructure:"max-transitions"`
	EventRetention time.Duration `mapstructure:"event-retention"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "worky is a WhatsApp recruiting assistant: CV review, job search and interview practice",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

// legacyEnv maps configuration keys to the variable names older deployments
// already export.
var legacyEnv = map[string]string{
	"server.addr":              "PORT",
	"whatsapp.token":           "META_JWT_TOKEN",
	"whatsapp.phone-number-id": "META_NUMBER_ID",
	"whatsapp.verify-token":    "META_VERIFY_TOKEN",
	"whatsapp.version":         "META_VERSION",
	"analysis.base-url":        "BASE_URL_WORKI",
	"analysis.jobs-url":        "URL_JOBS",
	"media.public-url":         "URL_BASE_BOT",
	"media.ftp.addr":           "FTP_HOST",
	"media.ftp.user":           "FTP_USER",
	"media.ftp.password":       "FTP_PASSWORD",
	"media.ftp.dir":            "FTP_UPLOAD_DIR",
	"media.ftp.public-url":     "PDF_PUBLIC_URL",
	"flows.payee-phone":        "YAPE_RECIPIENT_PHONE",
	"flows.payee-name":         "YAPE_RECIPIENT_NAME",
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is worky.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Config needed only for commands that run the bot.
	if serveCmd.CalledAs() == "" && consoleCmd.CalledAs() == "" {
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	setDefaults()

	viper.SetEnvPrefix(strings.ToUpper(app))
	viper.SetEnvKeyReplacer(envReplacer)
	viper.AutomaticEnv()

	for key, env := range legacyEnv {
		// explicit names replace the automatic one, so it is listed first
		if err := viper.BindEnv(key, envName(key), env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
	}

	// A missing default config file is fine: everything can come from the environment.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

var envReplacer = strings.NewReplacer(".", "_", "-", "_")

// envName is the variable AutomaticEnv would read for key.
func envName(key string) string {
	return strings.ToUpper(app) + "_" + envReplacer.Replace(strings.ToUpper(key))
}

func setDefaults() {
	viper.SetDefault("server.addr", ":3008")
	viper.SetDefault("store.path", "worky.db")
	viper.SetDefault("locker.backend", "local")
	viper.SetDefault("locker.ttl", "5m")
	viper.SetDefault("media.backend", "local")
	viper.SetDefault("media.dir", "data")
	viper.SetDefault("media.public-url", "http://localhost:3008")
	viper.SetDefault("media.settle", "2s")
	viper.SetDefault("media.retention", "24h")
	viper.SetDefault("media.cleanup-interval", "1h")
	viper.SetDefault("media.transcriber.language", "es")
	viper.SetDefault("analysis.timeout", analysis.DefaultTimeout)
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	viper.SetDefault("ai.gemini.fallback-model", "gemini-2.0-flash")
	viper.SetDefault("ai.gemini.max-retries", 3)
	viper.SetDefault("ai.gemini.max-log-length", 2000)
	viper.SetDefault("credits.enforce", true)
	viper.SetDefault("flows.welcome-credits", 1)
	viper.SetDefault("conversation.event-timeout", "10m")
	viper.SetDefault("conversation.event-retention", "72h")
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
