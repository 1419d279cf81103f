package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log     LogConfig        `yaml:"log" mapstructure:"log"`
	Source  SourceConfig     `yaml:"source" mapstructure:"source"`
	OCR     OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Extract ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Batch   BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Output  OutputConfig     `yaml:"output" mapstructure:"output"`
	Server  ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitor MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	// File, when set, receives a copy of every log entry.
	File string `yaml:"file" mapstructure:"file"`
}

// SourceConfig controls bill discovery.
type SourceConfig struct {
	Root       string   `yaml:"root" mapstructure:"root"`
	DirName    string   `yaml:"dir_name" mapstructure:"dir_name"`
	Extensions []string `yaml:"extensions" mapstructure:"extensions"`
}

// OCRConfig configures text extraction from bill files.
type OCRConfig struct {
	// Provider is one of local (pdftotext), native (pure Go) or mistral.
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	// Fallback names a second provider used when identifiers are missing. Empty disables it.
	Fallback       string  `yaml:"fallback" mapstructure:"fallback"`
	MistralKey     string  `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel   string  `yaml:"mistral_model" mapstructure:"mistral_model"`
	MistralRPS     float64 `yaml:"mistral_rps" mapstructure:"mistral_rps"`
	MistralRetries int     `yaml:"mistral_retries" mapstructure:"mistral_retries"`
}

// ExtractConfig tunes field extraction.
type ExtractConfig struct {
	LabelLookahead  int    `yaml:"label_lookahead" mapstructure:"label_lookahead"`
	AnchorLookahead int    `yaml:"anchor_lookahead" mapstructure:"anchor_lookahead"`
	AmountWindow    int    `yaml:"amount_window" mapstructure:"amount_window"`
	TaxonomyFile    string `yaml:"taxonomy_file" mapstructure:"taxonomy_file"`
}

// BatchConfig controls the worker pool.
type BatchConfig struct {
	ChunkSize           int `yaml:"chunk_size" mapstructure:"chunk_size"`
	Workers             int `yaml:"workers" mapstructure:"workers"`
	MaxTasksPerWorker   int `yaml:"max_tasks_per_worker" mapstructure:"max_tasks_per_worker"`
	DocumentTimeoutSecs int `yaml:"document_timeout_secs" mapstructure:"document_timeout_secs"`
}

// WorkerCount resolves Workers, where 0 means one per CPU.
func (b BatchConfig) WorkerCount() int {
	if b.Workers > 0 {
		return b.Workers
	}
	return runtime.NumCPU()
}

// DocumentTimeout returns the per-document guard, zero when disabled.
func (b BatchConfig) DocumentTimeout() time.Duration {
	if b.DocumentTimeoutSecs <= 0 {
		return 0
	}
	return time.Duration(b.DocumentTimeoutSecs) * time.Second
}

// OutputConfig selects the record sink.
type OutputConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	// MaxUploadMB caps the size of an uploaded bill.
	MaxUploadMB int `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// MonitoringConfig configures post-run alerts.
type MonitoringConfig struct {
	WebhookURL              string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	UnreadableRateThreshold float64 `yaml:"unreadable_rate_threshold" mapstructure:"unreadable_rate_threshold"`
	FilenameBillNoThreshold float64 `yaml:"filename_bill_no_threshold" mapstructure:"filename_bill_no_threshold"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BILLS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("source.root", ".")
	v.SetDefault("source.dir_name", "Bills")
	v.SetDefault("source.extensions", []string{".pdf", ".txt"})
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.fallback", "")
	v.SetDefault("ocr.mistral_api_key", "")
	v.SetDefault("ocr.mistral_model", "pixtral-large-latest")
	v.SetDefault("ocr.mistral_rps", 2.0)
	v.SetDefault("ocr.mistral_retries", 3)
	v.SetDefault("extract.label_lookahead", 10)
	v.SetDefault("extract.anchor_lookahead", 8)
	v.SetDefault("extract.amount_window", 5)
	v.SetDefault("extract.taxonomy_file", "")
	v.SetDefault("batch.chunk_size", 500)
	v.SetDefault("batch.workers", 0)
	v.SetDefault("batch.max_tasks_per_worker", 50)
	v.SetDefault("batch.document_timeout_secs", 120)
	v.SetDefault("output.driver", "csv")
	v.SetDefault("output.path", "lnt_bills_output.csv")
	v.SetDefault("output.database_url", "")
	v.SetDefault("output.table", "bills")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 32)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.unreadable_rate_threshold", 0.10)
	v.SetDefault("monitoring.filename_bill_no_threshold", 0.25)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs before it starts work.
// mode is one of extract, parse, serve or count.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "extract":
		switch c.Output.Driver {
		case "csv", "xlsx", "sqlite":
			if c.Output.Path == "" {
				problems = append(problems, "output.path is required")
			}
		case "postgres":
			if c.Output.DatabaseURL == "" {
				problems = append(problems, "output.database_url is required")
			}
		default:
			problems = append(problems, fmt.Sprintf("unknown output.driver %q", c.Output.Driver))
		}
		if c.Batch.ChunkSize <= 0 {
			problems = append(problems, "batch.chunk_size must be > 0")
		}
		if c.Batch.Workers < 0 {
			problems = append(problems, "batch.workers must be >= 0")
		}
		if c.Batch.MaxTasksPerWorker < 0 {
			problems = append(problems, "batch.max_tasks_per_worker must be >= 0")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "parse", "count":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode != "count" {
		for _, p := range []string{c.OCR.Provider, c.OCR.Fallback} {
			switch p {
			case "", "local", "native":
			case "mistral":
				if c.OCR.MistralKey == "" {
					problems = append(problems, "ocr.mistral_api_key is required for the mistral provider")
				}
			default:
				problems = append(problems, fmt.Sprintf("unknown ocr provider %q", p))
			}
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return eris.Wrapf(err, "config: open log file %s", cfg.File)
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.Lock(f),
			zapCfg.Level,
		)
		logger = logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}

	zap.ReplaceGlobals(logger)

	return nil
}
