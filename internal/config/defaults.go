package config

import "docintake/internal/model"

var (
	LogLevels  = []string{"debug", "info", "warn", "error"}
	LogFormats = []string{"text", "json"}
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Version: 1,
		Limits:  model.DefaultLimits(),
		Documents: Documents{
			Types: []string{".pdf", ".txt"},
		},
		State: State{
			Dir:     DefaultStateDir,
			History: true,
		},
		Server: Server{
			Listen:         "127.0.0.1:8080",
			MaxUploadBytes: 64 << 20,
			RateLimitRPS:   5,
			RateLimitBurst: 10,
			TrustedProxies: []string{"127.0.0.1/32", "::1/128"},
		},
		Text: Text{
			Workers:  4,
			MaxBytes: 8 << 20,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}
