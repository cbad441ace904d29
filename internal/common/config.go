package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	OCR      OCRConfig
	Pipeline PipelineConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN             string
	MaxConns        int
	MaxConnLifetime time.Duration
	DialTimeout     time.Duration
}

// OCRConfig holds recognition-related configuration
type OCRConfig struct {
	Tesseract        string // binary name or absolute path
	Language         string
	PSM              int
	OEM              int
	TessdataDir      string
	PreprocessBin    string // external native preprocessing binary; empty disables tier 2
	ArtifactCacheDir string
}

// PipelineConfig holds orchestrator-related configuration
type PipelineConfig struct {
	MinOCRConfidence float64
	RequireAmount    bool
	RequireDueDate   bool
	RequireVendor    bool
	Workers          int
	ProcessTimeout   time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		OCR: OCRConfig{
			Tesseract:        getEnv("TESSERACT_BIN", "tesseract"),
			Language:         getEnv("TESSERACT_LANG", "eng"),
			PSM:              getEnvAsInt("TESSERACT_PSM", 6),
			OEM:              getEnvAsInt("TESSERACT_OEM", 1),
			TessdataDir:      getEnv("TESSDATA_PREFIX", ""),
			PreprocessBin:    getEnv("PREPROCESS_BIN", ""),
			ArtifactCacheDir: getEnv("ARTIFACT_CACHE_DIR", "./tmp"),
		},
		Pipeline: PipelineConfig{
			MinOCRConfidence: getEnvAsFloat64("MIN_OCR_CONFIDENCE", 30.0),
			RequireAmount:    getEnvAsBool("REQUIRE_AMOUNT", true),
			RequireDueDate:   getEnvAsBool("REQUIRE_DUE_DATE", false),
			RequireVendor:    getEnvAsBool("REQUIRE_VENDOR", false),
			Workers:          getEnvAsInt("PIPELINE_WORKERS", 4),
			ProcessTimeout:   getEnvAsDuration("PIPELINE_PROCESS_TIMEOUT", 3*time.Minute),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
