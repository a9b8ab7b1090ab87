package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// AppConfig holds the complete application configuration.
type AppConfig struct {
	// DataPath holds <school>_school.json, <school>.jsonl and <school>_temperatures.jsonl files.
	DataPath string
	LogDir   string
	// ChartRegistry is an optional YAML file of chart definitions loaded over the built-in ones.
	ChartRegistry             string
	MaxInheritanceDepth       int
	AggregationParallelism    int
	HTTPAddr                  string
	EnableMermaidCharts       bool
	IgnoreSingleSeriesFailure bool
}

// Load loads the configuration from .env files and environment variables.
func Load() (*AppConfig, error) {
	// 1. Try to load from the executable's directory (highest priority for MCP servers)
	exePath, err := os.Executable()
	exeDir := ""
	if err == nil {
		exeDir = filepath.Dir(exePath)
		envPath := filepath.Join(exeDir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}

	// 2. Fallback to current working directory (useful for development/go run)
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables or binary-relative .env")
	}

	// 3. Resolve Data Paths
	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		if exeDir != "" {
			dataPath = exeDir
		} else {
			dataPath = "."
		}
	}
	logDir := getEnv("LOGS_FOLDER", filepath.Join(dataPath, "logs"))

	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Warn().Err(err).Str("path", logDir).Msg("Failed to create log directory")
	}

	// 4. Numeric settings
	depth, err := getEnvInt("MAX_INHERITANCE_DEPTH", 20)
	if err != nil {
		return nil, err
	}
	parallelism, err := getEnvInt("AGGREGATION_PARALLELISM", 4)
	if err != nil {
		return nil, err
	}
	if depth <= 0 || parallelism <= 0 {
		return nil, fmt.Errorf("MAX_INHERITANCE_DEPTH and AGGREGATION_PARALLELISM must be positive, got %d and %d", depth, parallelism)
	}

	registry := getEnv("CHART_REGISTRY", "")
	if registry != "" {
		if _, err := os.Stat(registry); err != nil {
			return nil, fmt.Errorf("CHART_REGISTRY: %w", err)
		}
	}

	cfg := &AppConfig{
		DataPath:                  dataPath,
		LogDir:                    logDir,
		ChartRegistry:             registry,
		MaxInheritanceDepth:       depth,
		AggregationParallelism:    parallelism,
		HTTPAddr:                  getEnv("HTTP_ADDR", ":8085"),
		EnableMermaidCharts:       getEnvBool("ENABLE_MERMAID_CHARTS", false),
		IgnoreSingleSeriesFailure: getEnvBool("IGNORE_SINGLE_SERIES_FAILURE", false),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
