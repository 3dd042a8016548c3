// Package config loads veritest configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration values.
type Config struct {
	// HTTP server
	ServerPort string

	// SurrealDB connection (audit log store)
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// NATS (durable export queue)
	NATSURL       string
	ExportStream  string
	ExportSubject string

	// Jira tracker
	JiraBaseURL     string
	JiraProjectKey  string
	JiraIssueType   string
	UserSecretName  string
	TokenSecretName string
	FieldMapPath    string

	// Export batching
	BatchSize int

	// Generation (Gemini via langchaingo)
	GeminiAPIKey string
	GeminiModel  string
	ResultsPath  string

	// AWS Secrets Manager
	AWSRegion string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		ServerPort: getEnv("VERITEST_SERVER_PORT", "8585"),

		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "veritest"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "audit"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		NATSURL:       getEnv("NATS_URL", "nats://localhost:4222"),
		ExportStream:  getEnv("VERITEST_EXPORT_STREAM", "EXPORTS"),
		ExportSubject: getEnv("VERITEST_EXPORT_SUBJECT", "exports.batch"),

		JiraBaseURL:     getEnv("JIRA_BASE_URL", ""),
		JiraProjectKey:  getEnv("JIRA_PROJECT_KEY", "HQA"),
		JiraIssueType:   getEnv("JIRA_ISSUE_TYPE", "Test Case"),
		UserSecretName:  getEnv("JIRA_USER_SECRET", "jira-api-user"),
		TokenSecretName: getEnv("JIRA_TOKEN_SECRET", "jira-api-token"),
		FieldMapPath:    getEnv("VERITEST_FIELD_MAP", ""),

		BatchSize: getEnvInt("VERITEST_BATCH_SIZE", 50),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("VERITEST_GEMINI_MODEL", "gemini-1.5-pro"),
		ResultsPath:  getEnv("VERITEST_RESULTS_PATH", "veritest_results.json"),

		AWSRegion: getEnv("AWS_REGION", "eu-central-1"),

		LogFile:  getEnv("VERITEST_LOG_FILE", "/tmp/veritest.log"),
		LogLevel: parseLogLevel(getEnv("VERITEST_LOG_LEVEL", "INFO")),
	}
}

// Validate checks settings the server cannot run without. A failure here is
// fatal at startup: the process must not serve traffic half-configured.
func (c Config) Validate() error {
	var missing []string
	if c.JiraBaseURL == "" {
		missing = append(missing, "JIRA_BASE_URL")
	}
	if c.NATSURL == "" {
		missing = append(missing, "NATS_URL")
	}
	if c.SurrealDBURL == "" {
		missing = append(missing, "SURREALDB_URL")
	}
	if c.UserSecretName == "" || c.TokenSecretName == "" {
		missing = append(missing, "JIRA_USER_SECRET/JIRA_TOKEN_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("invalid batch size: %d", c.BatchSize)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
