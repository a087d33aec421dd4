package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds all runtime configuration for the callshell agent.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir  string
	HTTPPort int
	BaseURL  string // remote consultation site, e.g. "https://astro5star.com"

	LogLevel   string
	LogFormat  string // "text" or "json"
	LogFile    string // optional rotating log file; stdout if empty
	LogMaxSize int    // MB per rotated log file

	RingtoneAsset string // bundled incoming-call sound; platform default on failure
	PlayerCmd     string // command template for looping audio playback
	VibratorCmd   string // command template for driving the vibration motor
	NotifyCmd     string // command template for posting notifications
	LauncherCmd   string // command for opening the page host on a URL
	PermissionCmd string // command for checking and prompting platform grants
	PromptCmd     string // command for raising the full-screen call surface
	WakeLockCmd   string // command for acquiring and releasing the partial wake lock

	BridgeSecret string // hex-encoded 32-byte secret for page bridge token signing
	SessionKey   string // hex-encoded 32-byte key for sealing the stored session token
}

// defaults
const (
	defaultDataDir    = "./data"
	defaultHTTPPort   = 8787
	defaultBaseURL    = "https://astro5star.com"
	defaultLogLevel   = "info"
	defaultLogFormat  = "text"
	defaultLogMaxSize = 20
	defaultRingtone   = "assets/incoming_call.ogg"
)

// envPrefix is the prefix for all callshell environment variables.
const envPrefix = "CALLSHELL_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("callshell", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the session store and call log")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "local HTTP listen port (push ingress, page bridge, action callbacks)")
	fs.StringVar(&cfg.BaseURL, "base-url", defaultBaseURL, "base URL of the embedded consultation site")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.LogFile, "log-file", "", "path to a rotating log file (stdout if empty)")
	fs.IntVar(&cfg.LogMaxSize, "log-max-size", defaultLogMaxSize, "maximum size in MB of the log file before rotation")
	fs.StringVar(&cfg.RingtoneAsset, "ringtone", defaultRingtone, "path to the bundled incoming-call ringtone")
	fs.StringVar(&cfg.PlayerCmd, "player-cmd", "", "command for looping ringtone playback ({file} is substituted)")
	fs.StringVar(&cfg.VibratorCmd, "vibrator-cmd", "", "command for driving the vibration motor ({pattern} is substituted)")
	fs.StringVar(&cfg.NotifyCmd, "notify-cmd", "", "command for posting platform notifications")
	fs.StringVar(&cfg.LauncherCmd, "launcher-cmd", "", "command for opening the page host on a URL (cold start)")
	fs.StringVar(&cfg.PermissionCmd, "permission-cmd", "", "command for checking and prompting platform grants")
	fs.StringVar(&cfg.PromptCmd, "prompt-cmd", "", "command for raising the full-screen call surface")
	fs.StringVar(&cfg.WakeLockCmd, "wakelock-cmd", "", "command for acquiring and releasing the partial wake lock")
	fs.StringVar(&cfg.BridgeSecret, "bridge-secret", "", "hex-encoded 32-byte secret for signing page bridge tokens (auto-generated if empty)")
	fs.StringVar(&cfg.SessionKey, "session-key", "", "hex-encoded 32-byte key for sealing the stored session token at rest")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the
	// command line. CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	envMap := map[string]string{
		"data-dir":       envPrefix + "DATA_DIR",
		"http-port":      envPrefix + "HTTP_PORT",
		"base-url":       envPrefix + "BASE_URL",
		"log-level":      envPrefix + "LOG_LEVEL",
		"log-format":     envPrefix + "LOG_FORMAT",
		"log-file":       envPrefix + "LOG_FILE",
		"log-max-size":   envPrefix + "LOG_MAX_SIZE",
		"ringtone":       envPrefix + "RINGTONE",
		"player-cmd":     envPrefix + "PLAYER_CMD",
		"vibrator-cmd":   envPrefix + "VIBRATOR_CMD",
		"notify-cmd":     envPrefix + "NOTIFY_CMD",
		"launcher-cmd":   envPrefix + "LAUNCHER_CMD",
		"permission-cmd": envPrefix + "PERMISSION_CMD",
		"prompt-cmd":     envPrefix + "PROMPT_CMD",
		"wakelock-cmd":   envPrefix + "WAKELOCK_CMD",
		"bridge-secret":  envPrefix + "BRIDGE_SECRET",
		"session-key":    envPrefix + "SESSION_KEY",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "base-url":
			cfg.BaseURL = val
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "log-file":
			cfg.LogFile = val
		case "log-max-size":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.LogMaxSize = v
			}
		case "ringtone":
			cfg.RingtoneAsset = val
		case "player-cmd":
			cfg.PlayerCmd = val
		case "vibrator-cmd":
			cfg.VibratorCmd = val
		case "notify-cmd":
			cfg.NotifyCmd = val
		case "launcher-cmd":
			cfg.LauncherCmd = val
		case "permission-cmd":
			cfg.PermissionCmd = val
		case "prompt-cmd":
			cfg.PromptCmd = val
		case "wakelock-cmd":
			cfg.WakeLockCmd = val
		case "bridge-secret":
			cfg.BridgeSecret = val
		case "session-key":
			cfg.SessionKey = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base-url must be an absolute URL, got %q", c.BaseURL)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	if c.LogMaxSize < 1 {
		return fmt.Errorf("log-max-size must be at least 1 MB, got %d", c.LogMaxSize)
	}

	return nil
}

// BridgeSecretBytes returns the decoded 32-byte bridge signing secret.
// If no secret is configured, it generates a random key and stores the
// hex-encoded value back in the config for the process lifetime.
func (c *Config) BridgeSecretBytes() ([]byte, error) {
	if c.BridgeSecret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating bridge secret: %w", err)
		}
		c.BridgeSecret = hex.EncodeToString(key)
		slog.Warn("no bridge-secret configured, generated ephemeral key (page must reconnect after restart)")
		return key, nil
	}
	key, err := hex.DecodeString(c.BridgeSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding bridge secret: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("bridge secret must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// SessionKeyBytes returns the decoded 32-byte session sealing key, or nil
// if no key is configured (the token is then stored unsealed).
func (c *Config) SessionKeyBytes() ([]byte, error) {
	if c.SessionKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("decoding session key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("session key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// LogWriter returns the destination for log output. When a log file is
// configured it is wrapped with size-based rotation.
func (c *Config) LogWriter() io.Writer {
	if c.LogFile == "" {
		return os.Stdout
	}
	return &lumberjack.Logger{
		Filename:   c.LogFile,
		MaxSize:    c.LogMaxSize,
		MaxBackups: 3,
		Compress:   true,
	}
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
