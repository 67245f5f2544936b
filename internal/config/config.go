package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	DataDir        string
	DatabasePath   string
	TemplatesDir   string
	InvitationsDir string
	QRCodesDir     string
	FontsDir       string
	// FontPaths overrides the platform font chain when set.
	FontPaths []string

	JPEGQuality   int
	InvitationDPI int
	QRDefaultSize int
	ScanLocation  string

	LogLevel string
	HTTPAddr string

	WhatsAppEnabled    bool
	WhatsAppDataDir    string
	DefaultCountryCode string
}

// LoadConfig loads configuration from a .env file, environment variables
// or defaults. A missing .env file is not an error.
func LoadConfig(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}

	dataDir := getEnv("DATA_DIR", "data")
	cfg := &Config{
		DataDir:        dataDir,
		DatabasePath:   getEnv("DATABASE_PATH", filepath.Join(dataDir, "invitations.db")),
		TemplatesDir:   getEnv("TEMPLATES_DIR", "templates"),
		InvitationsDir: getEnv("INVITATIONS_DIR", "invitations"),
		QRCodesDir:     getEnv("QRCODES_DIR", "qrcodes"),
		FontsDir:       getEnv("FONTS_DIR", "fonts"),
		FontPaths:      getEnvList("FONT_PATHS"),
		ScanLocation:   getEnv("SCAN_LOCATION", "Main entrance"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),

		WhatsAppDataDir:    getEnv("WHATSAPP_DATA_DIR", filepath.Join(dataDir, "whatsapp")),
		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", ""),
	}

	var err error
	if cfg.JPEGQuality, err = getEnvInt("JPEG_QUALITY", 95); err != nil {
		return nil, err
	}
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		return nil, fmt.Errorf("JPEG_QUALITY must be between 1 and 100, got %d", cfg.JPEGQuality)
	}
	if cfg.InvitationDPI, err = getEnvInt("INVITATION_DPI", 300); err != nil {
		return nil, err
	}
	if cfg.QRDefaultSize, err = getEnvInt("QR_DEFAULT_SIZE", 300); err != nil {
		return nil, err
	}
	if cfg.WhatsAppEnabled, err = getEnvBool("WHATSAPP_ENABLED", false); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnsureDirs creates the working directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.TemplatesDir, c.InvitationsDir, c.QRCodesDir, c.FontsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
