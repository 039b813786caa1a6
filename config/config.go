package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// AppConfig holds environment driven configuration values.
// Paths are resolved relative to the working directory, which is treated as the service root.
type AppConfig struct {
	AppPort string
	// Storage
	UploadsDir     string
	StaticRoot     string
	MaxFileSizeMB  int64
	MaxFieldSizeMB int64
	// TLS material
	TLSKeyPath  string
	TLSCertPath string
	// HTTP surface
	RateLimitPerMinute int
	AllowedOrigins     []string
	GinMode            string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

// MaxFileBytes is the per-file upload limit in bytes.
func (c AppConfig) MaxFileBytes() int64 { return c.MaxFileSizeMB << 20 }

// MaxFieldBytes is the limit for a single non-file form field in bytes.
func (c AppConfig) MaxFieldBytes() int64 { return c.MaxFieldSizeMB << 20 }

// DefaultPath is where Load looks for the optional JSON config file.
var DefaultPath = filepath.Join("config", "config.json")

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
//
// Precedence: config/config.json -> defaults -> environment variable overrides.
func Load() (AppConfig, error) {
	if loaded {
		return cfg, nil
	}
	c, err := LoadFrom(DefaultPath)
	if err != nil {
		return c, err
	}
	cfg = c
	loaded = true
	return cfg, nil
}

// LoadFrom builds a validated configuration using the JSON file at path (missing file is fine).
func LoadFrom(path string) (AppConfig, error) {
	var c AppConfig
	if err := loadJSONConfig(path, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(&c)
	if err := applyEnvOverrides(&c); err != nil {
		return c, err
	}
	if err := Validate(c); err != nil {
		return c, err
	}
	return c, nil
}

// Validate reports every configuration problem at once.
func Validate(c AppConfig) error {
	var result error

	port, err := strconv.Atoi(strings.TrimPrefix(c.AppPort, ":"))
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("AppPort %q: must be a number", c.AppPort))
	} else if port < 1 || port > 65535 {
		result = multierror.Append(result, fmt.Errorf("AppPort %d: must be between 1 and 65535", port))
	}
	if strings.TrimSpace(c.UploadsDir) == "" {
		result = multierror.Append(result, errors.New("UploadsDir: must not be empty"))
	}
	if strings.TrimSpace(c.StaticRoot) == "" {
		result = multierror.Append(result, errors.New("StaticRoot: must not be empty"))
	}
	if c.TLSKeyPath == "" || c.TLSCertPath == "" {
		result = multierror.Append(result, errors.New("TLSKeyPath/TLSCertPath: both must be set"))
	}
	if c.MaxFileSizeMB <= 0 {
		result = multierror.Append(result, fmt.Errorf("MaxFileSizeMB %d: must be positive", c.MaxFileSizeMB))
	}
	if c.MaxFieldSizeMB <= 0 {
		result = multierror.Append(result, fmt.Errorf("MaxFieldSizeMB %d: must be positive", c.MaxFieldSizeMB))
	}
	if c.RateLimitPerMinute < 0 {
		result = multierror.Append(result, fmt.Errorf("RateLimitPerMinute %d: must not be negative", c.RateLimitPerMinute))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error", "dpanic", "panic", "fatal":
	default:
		result = multierror.Append(result, fmt.Errorf("LogLevel %q: unknown level", c.LogLevel))
	}
	return result
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads JSON file into cfg if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if v, ok := m[key]; ok {
			if f, ok := v.(float64); ok {
				return int(f)
			}
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		if v, ok := m[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
		return false
	}
	getStringSlice := func(m map[string]any, key string) []string {
		arr, ok := m[key].([]any)
		if !ok {
			return nil
		}
		res := make([]string, 0, len(arr))
		for _, it := range arr {
			if s, ok := it.(string); ok {
				res = append(res, s)
			}
		}
		return res
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.StaticRoot = getString(app, "StaticRoot")
		out.GinMode = getString(app, "GinMode")
		out.RateLimitPerMinute = getInt(app, "RateLimitPerMinute")
		if list := getStringSlice(app, "AllowedOrigins"); len(list) > 0 {
			out.AllowedOrigins = list
		}
	}

	if t, ok := raw["tls"].(map[string]any); ok {
		out.TLSKeyPath = getString(t, "KeyPath")
		out.TLSCertPath = getString(t, "CertPath")
	}

	if up, ok := raw["upload"].(map[string]any); ok {
		out.UploadsDir = getString(up, "Dir")
		out.MaxFileSizeMB = int64(getInt(up, "MaxFileSizeMB"))
		out.MaxFieldSizeMB = int64(getInt(up, "MaxFieldSizeMB"))
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}

	// Flat keys for backward compatibility; grouped sections win.
	if out.AppPort == "" {
		out.AppPort = getString(raw, "AppPort")
	}
	if out.UploadsDir == "" {
		out.UploadsDir = getString(raw, "UploadsDir")
	}
	if out.TLSKeyPath == "" {
		out.TLSKeyPath = getString(raw, "TLSKeyPath")
	}
	if out.TLSCertPath == "" {
		out.TLSCertPath = getString(raw, "TLSCertPath")
	}
	if out.LogLevel == "" {
		out.LogLevel = getString(raw, "LogLevel")
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "3000"
	}
	if c.UploadsDir == "" {
		c.UploadsDir = "uploads"
	}
	if c.StaticRoot == "" {
		c.StaticRoot = "."
	}
	if c.TLSKeyPath == "" {
		c.TLSKeyPath = "key.pem"
	}
	if c.TLSCertPath == "" {
		c.TLSCertPath = "cert.pem"
	}
	if c.MaxFileSizeMB == 0 {
		c.MaxFileSizeMB = 10000
	}
	if c.MaxFieldSizeMB == 0 {
		c.MaxFieldSizeMB = 50
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 120
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) error {
	var result error
	parseInt := func(key string, set func(int64)) {
		v := getEnv(key, "")
		if v == "" {
			return
		}
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("env %s: invalid integer %q", key, v))
			return
		}
		set(i)
	}

	if v := getEnv("PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("UPLOADS_DIR", ""); v != "" {
		c.UploadsDir = v
	}
	if v := getEnv("STATIC_ROOT", ""); v != "" {
		c.StaticRoot = v
	}
	if v := getEnv("TLS_KEY_PATH", ""); v != "" {
		c.TLSKeyPath = v
	}
	if v := getEnv("TLS_CERT_PATH", ""); v != "" {
		c.TLSCertPath = v
	}
	parseInt("MAX_FILE_SIZE_MB", func(i int64) { c.MaxFileSizeMB = i })
	parseInt("MAX_FIELD_SIZE_MB", func(i int64) { c.MaxFieldSizeMB = i })
	parseInt("RATE_LIMIT_PER_MINUTE", func(i int64) { c.RateLimitPerMinute = int(i) })
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	// Logging env overrides
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	parseInt("LOG_MAX_SIZE_MB", func(i int64) { c.LogMaxSizeMB = int(i) })
	parseInt("LOG_MAX_BACKUPS", func(i int64) { c.LogMaxBackups = int(i) })
	parseInt("LOG_MAX_AGE_DAYS", func(i int64) { c.LogMaxAgeDays = int(i) })
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
	return result
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
