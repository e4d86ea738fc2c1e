// Package config provides settings, credential and job-file loading for meno-sync.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrMissingCredential is returned when a token is neither in the environment nor on disk.
var ErrMissingCredential = errors.New("missing credential")

// Settings holds process-wide configuration.
type Settings struct {
	// Job file
	JobsFile string

	// Credentials
	NotionToken       string
	NotionTokenFile   string
	AirtableToken     string
	AirtableTokenFile string

	// Backends
	NotionBaseURL     string
	AirtableBaseURL   string
	NotionPageDelay   time.Duration
	AirtableRateLimit int

	// Retry policy shared by both clients
	MaxRetries int
	RetryDelay time.Duration
	CoolDown   time.Duration

	// Linking
	DeferredLinks bool

	// Logging
	LogLevel  string
	LogFormat string

	// Artifacts
	ArtifactDir    string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// Run ledger; empty disables it.
	LedgerDSN string
}

// LoadSettings loads configuration from environment.
func LoadSettings() *Settings {
	return &Settings{
		JobsFile:          getEnv("MENO_JOBS_FILE", "conf/NotionAirtableMigrationConfig.json"),
		NotionToken:       getEnv("MENO_NOTION_TOKEN", ""),
		NotionTokenFile:   getEnv("MENO_NOTION_TOKEN_FILE", "conf/Notion_Token.txt"),
		AirtableToken:     getEnv("MENO_AIRTABLE_TOKEN", ""),
		AirtableTokenFile: getEnv("MENO_AIRTABLE_TOKEN_FILE", "conf/Airtable_Token.txt"),
		NotionBaseURL:     getEnv("MENO_NOTION_URL", "https://api.notion.com"),
		AirtableBaseURL:   getEnv("MENO_AIRTABLE_URL", "https://api.airtable.com"),
		NotionPageDelay:   getEnvDuration("MENO_NOTION_PAGE_DELAY", 500*time.Millisecond),
		AirtableRateLimit: getEnvInt("MENO_AIRTABLE_RATE_LIMIT", 5),
		MaxRetries:        getEnvInt("MENO_HTTP_MAX_RETRIES", 3),
		RetryDelay:        getEnvDuration("MENO_HTTP_RETRY_DELAY", 30*time.Second),
		CoolDown:          getEnvDuration("MENO_HTTP_COOL_DOWN", 3*time.Second),
		DeferredLinks:     getEnvBool("MENO_DEFERRED_LINKS", false),
		LogLevel:          getEnv("MENO_LOG_LEVEL", "info"),
		LogFormat:         getEnv("MENO_LOG_FORMAT", "text"),
		ArtifactDir:       getEnv("MENO_ARTIFACT_DIR", "runs"),
		MinioEndpoint:     getEnv("MENO_MINIO_ENDPOINT", ""),
		MinioAccessKey:    getEnv("MENO_MINIO_ACCESS_KEY", ""),
		MinioSecretKey:    getEnv("MENO_MINIO_SECRET_KEY", ""),
		MinioBucket:       getEnv("MENO_MINIO_BUCKET", "meno-sync"),
		MinioUseSSL:       getEnvBool("MENO_MINIO_USE_SSL", false),
		LedgerDSN:         getEnv("MENO_LEDGER_DSN", ""),
	}
}

// Tokens returns the Notion and Airtable tokens. Environment values win over
// token files. Both are read once per run.
func (s *Settings) Tokens() (notion, airtable string, err error) {
	notion, err = readToken(s.NotionToken, s.NotionTokenFile)
	if err != nil {
		return "", "", errors.Wrap(err, "notion token")
	}
	airtable, err = readToken(s.AirtableToken, s.AirtableTokenFile)
	if err != nil {
		return "", "", errors.Wrap(err, "airtable token")
	}
	return notion, airtable, nil
}

func readToken(value, path string) (string, error) {
	if value != "" {
		return value, nil
	}
	if path == "" {
		return "", ErrMissingCredential
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Wrapf(ErrMissingCredential, "%s does not exist", path)
		}
		return "", errors.Wrapf(err, "read %s", path)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", errors.Wrapf(ErrMissingCredential, "%s is empty", path)
	}
	return token, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
