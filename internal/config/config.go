package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	Correction CorrectionConfig `yaml:"correction" mapstructure:"correction"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Template   TemplateConfig   `yaml:"template" mapstructure:"template"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the feedback log and result archive backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// OCRConfig configures the Tesseract collaborator.
type OCRConfig struct {
	Language       string  `yaml:"language" mapstructure:"language"`
	TessdataPrefix string  `yaml:"tessdata_prefix" mapstructure:"tessdata_prefix"`
	TokenFloor     float64 `yaml:"token_floor" mapstructure:"token_floor"`
	PSM            int     `yaml:"psm" mapstructure:"psm"`
}

// CatalogConfig points at the declarative field and template catalogs.
type CatalogConfig struct {
	FieldsFile   string `yaml:"fields_file" mapstructure:"fields_file"`
	TemplatesDir string `yaml:"templates_dir" mapstructure:"templates_dir"`
}

// CorrectionConfig locates the correction model store.
type CorrectionConfig struct {
	ModelPath string `yaml:"model_path" mapstructure:"model_path"`
	LockPath  string `yaml:"lock_path" mapstructure:"lock_path"` // defaults to model_path + ".lock"
}

// ExtractionConfig tunes the zone locator cascade and status derivation.
// Confidences are on the 0..100 scale.
type ExtractionConfig struct {
	AnchorMinConfidence    float64 `yaml:"anchor_min_confidence" mapstructure:"anchor_min_confidence"`
	ValueMinConfidence     float64 `yaml:"value_min_confidence" mapstructure:"value_min_confidence"`
	ScanMinConfidence      float64 `yaml:"scan_min_confidence" mapstructure:"scan_min_confidence"`
	LineTolerancePx        int     `yaml:"line_tolerance_px" mapstructure:"line_tolerance_px"`
	MaxMultiword           int     `yaml:"max_multiword" mapstructure:"max_multiword"`
	FallbackConfidence     float64 `yaml:"fallback_confidence" mapstructure:"fallback_confidence"`
	ExpansionStart         int     `yaml:"expansion_start" mapstructure:"expansion_start"`
	ExpansionStep          int     `yaml:"expansion_step" mapstructure:"expansion_step"`
	ExpansionMax           int     `yaml:"expansion_max" mapstructure:"expansion_max"`
	HighConfidence         float64 `yaml:"high_confidence" mapstructure:"high_confidence"`
	MinConfidence          float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	LowConfidenceThreshold float64 `yaml:"low_confidence_threshold" mapstructure:"low_confidence_threshold"`
	TimeoutSecs            int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// TemplateConfig tunes template scoring. Weights sum to 1.
type TemplateConfig struct {
	TextWeight         float64 `yaml:"text_weight" mapstructure:"text_weight"`
	StructuralWeight   float64 `yaml:"structural_weight" mapstructure:"structural_weight"`
	OverlapRatio       float64 `yaml:"overlap_ratio" mapstructure:"overlap_ratio"`
	MinScore           float64 `yaml:"min_score" mapstructure:"min_score"`
	TokenMinConfidence float64 `yaml:"token_min_confidence" mapstructure:"token_min_confidence"`
}

// BatchConfig configures directory processing.
type BatchConfig struct {
	Concurrency   int     `yaml:"concurrency" mapstructure:"concurrency"`
	DocsPerSecond float64 `yaml:"docs_per_second" mapstructure:"docs_per_second"` // 0 = unlimited
}

// ServerConfig configures the HTTP intake server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures the extraction quality checker run by serve.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinAvgConfidence     float64 `yaml:"min_avg_confidence" mapstructure:"min_avg_confidence"`
	FeedbackBacklog      int     `yaml:"feedback_backlog" mapstructure:"feedback_backlog"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RECEIPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
	if cfg.Correction.LockPath == "" && cfg.Correction.ModelPath != "" {
		cfg.Correction.LockPath = cfg.Correction.ModelPath + ".lock"
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "receipt-ocr.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("ocr.language", "spa")
	v.SetDefault("ocr.token_floor", 20)
	v.SetDefault("ocr.psm", 6)
	v.SetDefault("catalog.fields_file", "")
	v.SetDefault("catalog.templates_dir", "templates")
	v.SetDefault("correction.model_path", "data/correction_model.json")
	v.SetDefault("correction.lock_path", "")

	ext := DefaultExtractionConfig()
	v.SetDefault("extraction.anchor_min_confidence", ext.AnchorMinConfidence)
	v.SetDefault("extraction.value_min_confidence", ext.ValueMinConfidence)
	v.SetDefault("extraction.scan_min_confidence", ext.ScanMinConfidence)
	v.SetDefault("extraction.line_tolerance_px", ext.LineTolerancePx)
	v.SetDefault("extraction.max_multiword", ext.MaxMultiword)
	v.SetDefault("extraction.fallback_confidence", ext.FallbackConfidence)
	v.SetDefault("extraction.expansion_start", ext.ExpansionStart)
	v.SetDefault("extraction.expansion_step", ext.ExpansionStep)
	v.SetDefault("extraction.expansion_max", ext.ExpansionMax)
	v.SetDefault("extraction.high_confidence", ext.HighConfidence)
	v.SetDefault("extraction.min_confidence", ext.MinConfidence)
	v.SetDefault("extraction.low_confidence_threshold", ext.LowConfidenceThreshold)
	v.SetDefault("extraction.timeout_secs", ext.TimeoutSecs)

	tmpl := DefaultTemplateConfig()
	v.SetDefault("template.text_weight", tmpl.TextWeight)
	v.SetDefault("template.structural_weight", tmpl.StructuralWeight)
	v.SetDefault("template.overlap_ratio", tmpl.OverlapRatio)
	v.SetDefault("template.min_score", tmpl.MinScore)
	v.SetDefault("template.token_min_confidence", tmpl.TokenMinConfidence)

	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.docs_per_second", 0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.min_avg_confidence", 60)
	v.SetDefault("monitoring.feedback_backlog", 50)
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
	// stdout carries the result document; logs go to stderr.
	zapCfg.OutputPaths = []string{"stderr"}

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
