package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultExtractionConfig returns the cascade tuning used when no
// configuration file is present.
func DefaultExtractionConfig() ExtractionConfig {
	return ExtractionConfig{
		AnchorMinConfidence:    70,
		ValueMinConfidence:     50,
		ScanMinConfidence:      60,
		LineTolerancePx:        30,
		MaxMultiword:           4,
		FallbackConfidence:     30,
		ExpansionStart:         50,
		ExpansionStep:          25,
		ExpansionMax:           150,
		HighConfidence:         85,
		MinConfidence:          60,
		LowConfidenceThreshold: 50,
		TimeoutSecs:            60,
	}
}

// DefaultTemplateConfig returns the template scoring defaults.
func DefaultTemplateConfig() TemplateConfig {
	return TemplateConfig{
		TextWeight:         0.6,
		StructuralWeight:   0.4,
		OverlapRatio:       0.3,
		MinScore:           0.4,
		TokenMinConfidence: 30,
	}
}

// Validate checks that the configuration is usable for the given command.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "extract", "batch", "serve", "feedback", "retrain", "results", "export", "catalog":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "extract", "batch", "serve":
		errs = append(errs, c.Extraction.problems()...)
		errs = append(errs, c.Template.problems()...)
		if c.OCR.TokenFloor < 0 || c.OCR.TokenFloor > 100 {
			errs = append(errs, "ocr.token_floor must be between 0 and 100")
		}
	case "retrain":
		if c.Correction.ModelPath == "" {
			errs = append(errs, "correction.model_path is required")
		}
	}

	if mode == "batch" || mode == "serve" {
		if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 64 {
			errs = append(errs, "batch.concurrency must be between 1 and 64")
		}
		if c.Batch.DocsPerSecond < 0 {
			errs = append(errs, "batch.docs_per_second must be >= 0")
		}
	}
	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (e ExtractionConfig) problems() []string {
	var errs []string
	confidences := []struct {
		name string
		v    float64
	}{
		{"anchor_min_confidence", e.AnchorMinConfidence},
		{"value_min_confidence", e.ValueMinConfidence},
		{"scan_min_confidence", e.ScanMinConfidence},
		{"fallback_confidence", e.FallbackConfidence},
		{"high_confidence", e.HighConfidence},
		{"min_confidence", e.MinConfidence},
		{"low_confidence_threshold", e.LowConfidenceThreshold},
	}
	for _, c := range confidences {
		if c.v < 0 || c.v > 100 {
			errs = append(errs, fmt.Sprintf("extraction.%s must be between 0 and 100", c.name))
		}
	}
	if e.ExpansionStart <= 0 || e.ExpansionStep <= 0 || e.ExpansionMax < e.ExpansionStart {
		errs = append(errs, "extraction.expansion_* must satisfy 0 < start <= max and step > 0")
	}
	if e.MaxMultiword < 2 {
		errs = append(errs, "extraction.max_multiword must be >= 2")
	}
	if e.LineTolerancePx < 0 {
		errs = append(errs, "extraction.line_tolerance_px must be >= 0")
	}
	if e.TimeoutSecs < 0 {
		errs = append(errs, "extraction.timeout_secs must be >= 0")
	}
	return errs
}

func (t TemplateConfig) problems() []string {
	var errs []string
	if t.TextWeight < 0 || t.StructuralWeight < 0 {
		errs = append(errs, "template weights must be >= 0")
	}
	if sum := t.TextWeight + t.StructuralWeight; math.Abs(sum-1) > 0.01 {
		errs = append(errs, fmt.Sprintf("template weights should sum to 1, got %.2f", sum))
	}
	if t.OverlapRatio <= 0 || t.OverlapRatio > 1 {
		errs = append(errs, "template.overlap_ratio must be in (0, 1]")
	}
	if t.MinScore < 0 || t.MinScore > 1 {
		errs = append(errs, "template.min_score must be between 0 and 1")
	}
	return errs
}
