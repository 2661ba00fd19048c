package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Options for loading config. ConfigPath is relative to the working directory
// if not absolute; empty means DefaultConfigFile.
type Options struct {
	ConfigPath   string
	SkipValidate bool
	// Overrides apply last (flags > env > dotenv > file > defaults).
	Overrides *Overrides
}

// Overrides holds CLI flag values. Only non-nil fields are applied.
type Overrides struct {
	MaxArchiveBytes *int64
	MaxMembers      *int
	MaxMemberBytes  *int64
	MaxDepth        *int
	DocumentTypes   []string
	WorkspaceDir    *string
	StateDir        *string
	Listen          *string
	LogLevel        *string
	LogFormat       *string
}

// Load builds config with precedence defaults → config file → .env.local →
// .env → DOCINTAKE_* env vars → Overrides. Errors carry the CONFIG_INVALID
// prefix so callers can exit 2.
func Load(opts Options) (*Config, error) {
	cfg := Default()

	if err := loadDotEnvFiles(".env.local", ".env"); err != nil {
		return nil, fmt.Errorf("CONFIG_INVALID: failed loading dotenv files: %w", err)
	}

	path := opts.ConfigPath
	if path == "" {
		path = DefaultConfigFile
	}
	if err := decodeFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if opts.Overrides != nil {
		applyOverrides(&cfg, opts.Overrides)
	}

	if !opts.SkipValidate {
		if err := Validate(&cfg); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// decodeFile merges the file at path into cfg. A missing file is not an
// error. Unknown keys are rejected.
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("CONFIG_INVALID: cannot read config file %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		meta, err := toml.Decode(string(data), cfg)
		if err != nil {
			return fmt.Errorf("CONFIG_INVALID: malformed TOML in %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("CONFIG_INVALID: unknown key %q in %s", undecoded[0].String(), path)
		}
		return nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("CONFIG_INVALID: malformed YAML in %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v, ok := lookupEnv("DOCINTAKE_MAX_ARCHIVE_BYTES"); ok {
		n, err := parseBytes("DOCINTAKE_MAX_ARCHIVE_BYTES", v)
		if err != nil {
			return err
		}
		cfg.Limits.MaxArchiveBytes = n
	}
	if v, ok := lookupEnv("DOCINTAKE_MAX_MEMBER_BYTES"); ok {
		n, err := parseBytes("DOCINTAKE_MAX_MEMBER_BYTES", v)
		if err != nil {
			return err
		}
		cfg.Limits.MaxMemberBytes = n
	}
	if v, ok := lookupEnv("DOCINTAKE_MAX_MEMBERS"); ok {
		n, err := parseInt("DOCINTAKE_MAX_MEMBERS", v)
		if err != nil {
			return err
		}
		cfg.Limits.MaxMembers = n
	}
	if v, ok := lookupEnv("DOCINTAKE_MAX_DEPTH"); ok {
		n, err := parseInt("DOCINTAKE_MAX_DEPTH", v)
		if err != nil {
			return err
		}
		cfg.Limits.MaxDepth = n
	}
	if v, ok := lookupEnv("DOCINTAKE_DOCUMENT_TYPES"); ok {
		cfg.Documents.Types = splitCSV(v)
	}
	if v, ok := lookupEnv("DOCINTAKE_WORKSPACE_DIR"); ok {
		cfg.Workspace.BaseDir = v
	}
	if v, ok := lookupEnv("DOCINTAKE_STATE_DIR"); ok {
		cfg.State.Dir = v
	}
	if v, ok := lookupEnv("DOCINTAKE_HISTORY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CONFIG_INVALID: DOCINTAKE_HISTORY=%q is not a boolean", v)
		}
		cfg.State.History = b
	}
	if v, ok := lookupEnv("DOCINTAKE_LISTEN"); ok {
		cfg.Server.Listen = v
	}
	if v, ok := lookupEnv("DOCINTAKE_MAX_UPLOAD_BYTES"); ok {
		n, err := parseBytes("DOCINTAKE_MAX_UPLOAD_BYTES", v)
		if err != nil {
			return err
		}
		cfg.Server.MaxUploadBytes = n
	}
	if v, ok := lookupEnv("DOCINTAKE_RATE_LIMIT_RPS"); ok {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CONFIG_INVALID: DOCINTAKE_RATE_LIMIT_RPS=%q is not a number", v)
		}
		cfg.Server.RateLimitRPS = rps
	}
	if v, ok := lookupEnv("DOCINTAKE_RATE_LIMIT_BURST"); ok {
		n, err := parseInt("DOCINTAKE_RATE_LIMIT_BURST", v)
		if err != nil {
			return err
		}
		cfg.Server.RateLimitBurst = n
	}
	if v, ok := lookupEnv("DOCINTAKE_TRUSTED_PROXIES"); ok {
		cfg.Server.TrustedProxies = splitCSV(v)
	}
	if v, ok := lookupEnv("DOCINTAKE_TEXT_WORKERS"); ok {
		n, err := parseInt("DOCINTAKE_TEXT_WORKERS", v)
		if err != nil {
			return err
		}
		cfg.Text.Workers = n
	}
	if v, ok := lookupEnv("DOCINTAKE_LOG_LEVEL"); ok {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v, ok := lookupEnv("DOCINTAKE_LOG_FORMAT"); ok {
		cfg.Log.Format = strings.ToLower(v)
	}
	return nil
}

func applyOverrides(cfg *Config, o *Overrides) {
	if o.MaxArchiveBytes != nil {
		cfg.Limits.MaxArchiveBytes = *o.MaxArchiveBytes
	}
	if o.MaxMembers != nil {
		cfg.Limits.MaxMembers = *o.MaxMembers
	}
	if o.MaxMemberBytes != nil {
		cfg.Limits.MaxMemberBytes = *o.MaxMemberBytes
	}
	if o.MaxDepth != nil {
		cfg.Limits.MaxDepth = *o.MaxDepth
	}
	if len(o.DocumentTypes) > 0 {
		cfg.Documents.Types = append([]string(nil), o.DocumentTypes...)
	}
	if o.WorkspaceDir != nil {
		cfg.Workspace.BaseDir = *o.WorkspaceDir
	}
	if o.StateDir != nil {
		cfg.State.Dir = *o.StateDir
	}
	if o.Listen != nil {
		cfg.Server.Listen = *o.Listen
	}
	if o.LogLevel != nil {
		cfg.Log.Level = *o.LogLevel
	}
	if o.LogFormat != nil {
		cfg.Log.Format = *o.LogFormat
	}
}

// lookupEnv treats set-but-blank variables as unset.
func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func parseInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("CONFIG_INVALID: %s=%q is not an integer", key, value)
	}
	return n, nil
}

// parseBytes accepts plain byte counts and human sizes such as "50MiB".
func parseBytes(key, value string) (int64, error) {
	n, err := humanize.ParseBytes(value)
	if err != nil || n > 1<<62 {
		return 0, fmt.Errorf("CONFIG_INVALID: %s=%q is not a byte size", key, value)
	}
	return int64(n), nil
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SaveFile writes cfg as YAML, or TOML when path ends in ".toml".
func SaveFile(path string, cfg Config) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("config path is required")
	}

	var buf bytes.Buffer
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
	} else {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write config file %s: %w", path, err)
	}
	return nil
}
