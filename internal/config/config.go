package config

import (
	"path/filepath"

	"docintake/internal/model"
)

const (
	DefaultConfigFile = ".docintake.yaml"
	DefaultStateDir   = ".docintake"
	runsDBFile        = "runs.sqlite"
)

// Config is the effective docintake configuration.
type Config struct {
	Version   int                    `yaml:"version" toml:"version" json:"version"`
	Limits    model.ExtractionLimits `yaml:"limits" toml:"limits" json:"limits"`
	Documents Documents              `yaml:"documents" toml:"documents" json:"documents"`
	Workspace Workspace              `yaml:"workspace" toml:"workspace" json:"workspace"`
	State     State                  `yaml:"state" toml:"state" json:"state"`
	Server    Server                 `yaml:"server" toml:"server" json:"server"`
	Text      Text                   `yaml:"text" toml:"text" json:"text"`
	Log       Log                    `yaml:"log" toml:"log" json:"log"`
}

type Documents struct {
	// Types lists collected suffixes such as ".pdf".
	Types []string `yaml:"types" toml:"types" json:"types"`
}

type Workspace struct {
	// BaseDir is the parent of per-request workspaces; empty means the
	// system temp dir.
	BaseDir string `yaml:"base_dir" toml:"base_dir" json:"base_dir"`
}

type State struct {
	Dir string `yaml:"dir" toml:"dir" json:"dir"`
	// History disables the sqlite run store when false.
	History bool `yaml:"history" toml:"history" json:"history"`
}

type Server struct {
	Listen         string   `yaml:"listen" toml:"listen" json:"listen"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes" toml:"max_upload_bytes" json:"max_upload_bytes"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" toml:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst" toml:"rate_limit_burst" json:"rate_limit_burst"`
	TrustedProxies []string `yaml:"trusted_proxies" toml:"trusted_proxies" json:"trusted_proxies"`
}

type Text struct {
	Workers  int   `yaml:"workers" toml:"workers" json:"workers"`
	MaxBytes int64 `yaml:"max_bytes" toml:"max_bytes" json:"max_bytes"`
}

type Log struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	Format string `yaml:"format" toml:"format" json:"format"`
}

// DBPath returns the sqlite file backing the run history.
func (c Config) DBPath() string {
	return filepath.Join(c.State.Dir, runsDBFile)
}
