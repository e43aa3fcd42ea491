package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath     string
	RawMailDir string
	OutputDir  string

	LogLevel string
	LogJSON  bool
	HTTPAddr string

	ChapterName         string
	ReferenceRosterPath string
	PhoneCountryCode    string

	GeminiAPIKey    string
	GeminiModel     string
	GeminiGrounding bool
	AITimeoutMs     int
	AICleanMaxChars int
	AIMatchMinScore float64

	MatchMinScore   float64
	MatchMaxResults int

	SheetURL           string
	SheetsAPIKey       string
	SheetsTimeoutMs    int
	SheetsRateLimitRPS int

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

	ListenerProvider     string
	ListenerLabel        string
	ListenerIntervalSec  int
	ListenerFetchMax     int
	ListenerProcessBatch int
	ListenerSheetSync    bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "askgive.db")),
		RawMailDir: getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogJSON:  getEnvBool("LOG_JSON", false),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		ChapterName:         getEnv("CHAPTER_NAME", "BNI Platina"),
		ReferenceRosterPath: getEnv("REFERENCE_ROSTER_PATH", ""),
		PhoneCountryCode:    getEnv("PHONE_COUNTRY_CODE", "91"),

		GeminiAPIKey:    firstNonEmpty(getEnv("GEMINI_API_KEY", ""), getEnv("API_KEY", "")),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiGrounding: getEnvBool("GEMINI_GROUNDING", true),
		AITimeoutMs:     getEnvInt("AI_TIMEOUT_MS", 60000),
		AICleanMaxChars: getEnvInt("AI_CLEAN_MAX_CHARS", 30000),
		AIMatchMinScore: getEnvFloat("AI_MATCH_MIN_SCORE", 60),

		MatchMinScore:   getEnvFloat("MATCH_MIN_SCORE", 0.35),
		MatchMaxResults: getEnvInt("MATCH_MAX_RESULTS", 10),

		SheetURL:           getEnv("SHEET_URL", ""),
		SheetsAPIKey:       getEnv("SHEETS_API_KEY", ""),
		SheetsTimeoutMs:    getEnvInt("SHEETS_TIMEOUT_MS", 30000),
		SheetsRateLimitRPS: getEnvInt("SHEETS_RATE_LIMIT_RPS", 2),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		ListenerProvider:     getEnv("LISTENER_PROVIDER", "gmail"),
		ListenerLabel:        getEnv("LISTENER_LABEL", "INBOX"),
		ListenerIntervalSec:  getEnvInt("LISTENER_INTERVAL_SEC", 300),
		ListenerFetchMax:     getEnvInt("LISTENER_FETCH_MAX", 20),
		ListenerProcessBatch: getEnvInt("LISTENER_PROCESS_BATCH", 20),
		ListenerSheetSync:    getEnvBool("LISTENER_SHEET_SYNC", false),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

// GoogleOAuthConfigured reports whether a refresh token flow is available for
// Gmail and the Sheets API.
func (c Config) GoogleOAuthConfigured() bool {
	return strings.TrimSpace(c.GmailClientID) != "" &&
		strings.TrimSpace(c.GmailClientSecret) != "" &&
		strings.TrimSpace(c.GmailRefreshToken) != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
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
