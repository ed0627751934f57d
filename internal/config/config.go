package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileEnvVar names the optional YAML file whose keys mirror the env vars.
const FileEnvVar = "SHADEQC_CONFIG"

type Config struct {
	HTTPAddr  string
	OutputDir string

	SourceLocation        string
	SourceTimeoutMs       int
	SourceIDPrefix        string
	SourceWatch           bool
	SourceWatchDebounceMs int

	LogLevel    string
	LogFormat   string
	ReportTitle string

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	MailListenerProvider     string
	MailListenerLabel        string
	MailListenerIntervalSec  int
	MailListenerFetchMax     int
	MailListenerProcessBatch int
	MailListenerAutoExport   bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	vars := lookup{}
	if path := strings.TrimSpace(os.Getenv(FileEnvVar)); path != "" {
		vars.file, err = readFile(path)
		if err != nil {
			return Config{}, err
		}
	}

	cfg := Config{
		HTTPAddr:  vars.getEnv("HTTP_ADDR", ":8080"),
		OutputDir: vars.getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		SourceLocation:        vars.getEnv("SOURCE_LOCATION", filepath.Join(cwd, "data", "inspection_data.csv")),
		SourceTimeoutMs:       vars.getEnvInt("SOURCE_TIMEOUT_MS", 15000),
		SourceIDPrefix:        vars.getEnv("SOURCE_ID_PREFIX", "csv"),
		SourceWatch:           vars.getEnvBool("SOURCE_WATCH", false),
		SourceWatchDebounceMs: vars.getEnvInt("SOURCE_WATCH_DEBOUNCE_MS", 500),

		LogLevel:    vars.getEnv("LOG_LEVEL", "info"),
		LogFormat:   vars.getEnv("LOG_FORMAT", "text"),
		ReportTitle: vars.getEnv("REPORT_TITLE", "Shade Grouping QC Report"),

		GmailClientID:     vars.getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: vars.getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  vars.getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: vars.getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     vars.getEnv("IMAP_HOST", ""),
		IMAPPort:     vars.getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   vars.getEnvBool("IMAP_SECURE", true),
		IMAPUser:     vars.getEnv("IMAP_USER", ""),
		IMAPPassword: vars.getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: vars.getEnvBool("IMAP_MARK_SEEN", false),

		MailListenerProvider:     vars.getEnv("MAIL_LISTENER_PROVIDER", "imap"),
		MailListenerLabel:        vars.getEnv("MAIL_LISTENER_LABEL", "INBOX"),
		MailListenerIntervalSec:  vars.getEnvInt("MAIL_LISTENER_INTERVAL_SEC", 60),
		MailListenerFetchMax:     vars.getEnvInt("MAIL_LISTENER_FETCH_MAX", 20),
		MailListenerProcessBatch: vars.getEnvInt("MAIL_LISTENER_PROCESS_BATCH", 20),
		MailListenerAutoExport:   vars.getEnvBool("MAIL_LISTENER_AUTO_EXPORT", true),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.SourceTimeoutMs) * time.Millisecond
}

func (c Config) SourceWatchDebounce() time.Duration {
	return time.Duration(c.SourceWatchDebounceMs) * time.Millisecond
}

// readFile loads a flat YAML mapping. Scalar values of any type are kept in
// their string form so they parse the same way env vars do.
func readFile(path string) (map[string]string, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(blob, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(k))] = fmt.Sprint(v)
	}
	return out, nil
}

// lookup resolves a key from the environment first, then the config file.
type lookup struct {
	file map[string]string
}

func (l lookup) getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	if value, ok := l.file[key]; ok {
		return value
	}
	return fallback
}

func (l lookup) getEnvInt(key string, fallback int) int {
	value := l.getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (l lookup) getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(l.getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
