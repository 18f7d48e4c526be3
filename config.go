package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// AppConfig holds all server configuration.
// Priority (lowest → highest): defaults < env vars < JSON config file < CLI flags.
type AppConfig struct {
	// Server
	DB   string `json:"db" env:"DB"`     // database connection string
	Dev  bool   `json:"dev" env:"DEV"`   // dev mode: development logger, db dumps on errors
	Addr string `json:"addr" env:"ADDR"` // HTTP listen address

	// Logging (extended diagnostics, off by default)
	LogRequests bool `json:"log_requests" env:"LOG_REQUESTS"`
	LogDB       bool `json:"log_db" env:"LOG_DB"`
	LogWS       bool `json:"log_ws" env:"LOG_WS"`
	LogDebug    bool `json:"log_debug" env:"LOG_DEBUG"`

	// AI backend
	AIProvider         string `json:"ai_provider" env:"AI_PROVIDER"`       // ollama | openai | claude | gemini | groq | openai-compatible
	AIModel            string `json:"ai_model" env:"AI_MODEL"`             // model name
	AIURL              string `json:"ai_url" env:"AI_URL"`                 // Ollama server or openai-compatible base URL
	AIAPIKey           string `json:"ai_api_key" env:"AI_API_KEY"`         // default credential for new games
	AITemperature      string `json:"ai_temperature" env:"AI_TEMPERATURE"` // float 0-1 as string
	AIRatePerMinute    int    `json:"ai_rate_per_minute" env:"AI_RATE_PER_MINUTE"`
	StorytellerEnabled bool   `json:"storyteller_enabled" env:"STORYTELLER_ENABLED"`

	// Game
	EventChance   float64       `json:"event_chance" env:"EVENT_CHANCE"`     // probability of a dawn event
	HistoryLimit  int           `json:"history_limit" env:"HISTORY_LIMIT"`   // messages shown to an agent per turn
	SaveRetention time.Duration `json:"save_retention" env:"SAVE_RETENTION"` // 0 keeps saves forever
	Seed          uint64        `json:"seed" env:"SEED"`                     // 0 picks a random seed
}

func (cfg AppConfig) toLogConfig() LogConfig {
	return LogConfig{
		Dev:         cfg.Dev,
		LogRequests: cfg.LogRequests,
		LogDB:       cfg.LogDB,
		LogWS:       cfg.LogWS,
		Debug:       cfg.LogDebug,
	}
}

func defaultConfig() AppConfig {
	return AppConfig{
		DB:              "whitefire.db",
		Addr:            ":8080",
		AIProvider:      "ollama",
		AIModel:         "llama3.1",
		AIURL:           "http://localhost:11434",
		AIRatePerMinute: 30,
		EventChance:     0.3,
		HistoryLimit:    40,
		SaveRetention:   30 * 24 * time.Hour,
	}
}

// loadConfig builds a config by layering: defaults → env vars → JSON config file.
// CLI flag overrides are applied separately by flagValues.applyTo after flag.Parse.
func loadConfig(configPath string) (AppConfig, error) {
	cfg := defaultConfig()

	// Layer 1: env vars. Unset variables leave the defaults alone.
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	// Layer 2: JSON config file. Only fields present in the file override env vars.
	if data, err := os.ReadFile(configPath); err == nil {
		var overlay map[string]json.RawMessage
		if err := json.Unmarshal(data, &overlay); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", configPath, err)
		}
		if err := applyJSONOverlay(&cfg, overlay); err != nil {
			return cfg, fmt.Errorf("apply %s: %w", configPath, err)
		}
		logger.Infof("Config: loaded from %s", configPath)
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read %s: %w", configPath, err)
	}

	return cfg, nil
}

// applyJSONOverlay only sets fields that are explicitly present in the JSON map.
func applyJSONOverlay(cfg *AppConfig, m map[string]json.RawMessage) error {
	var firstErr error
	set := func(key string, dst any) {
		if v, ok := m[key]; ok && firstErr == nil {
			if err := json.Unmarshal(v, dst); err != nil {
				firstErr = fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	set("db", &cfg.DB)
	set("dev", &cfg.Dev)
	set("addr", &cfg.Addr)
	set("log_requests", &cfg.LogRequests)
	set("log_db", &cfg.LogDB)
	set("log_ws", &cfg.LogWS)
	set("log_debug", &cfg.LogDebug)
	set("ai_provider", &cfg.AIProvider)
	set("ai_model", &cfg.AIModel)
	set("ai_url", &cfg.AIURL)
	set("ai_api_key", &cfg.AIAPIKey)
	set("ai_temperature", &cfg.AITemperature)
	set("ai_rate_per_minute", &cfg.AIRatePerMinute)
	set("storyteller_enabled", &cfg.StorytellerEnabled)
	set("event_chance", &cfg.EventChance)
	set("history_limit", &cfg.HistoryLimit)
	set("seed", &cfg.Seed)

	// Durations are written as Go duration strings ("720h").
	var retention string
	set("save_retention", &retention)
	if firstErr == nil && retention != "" {
		d, err := time.ParseDuration(retention)
		if err != nil {
			return fmt.Errorf("save_retention: %w", err)
		}
		cfg.SaveRetention = d
	}
	return firstErr
}

// validate rejects settings the server cannot run with.
func (cfg AppConfig) validate() error {
	if cfg.EventChance < 0 || cfg.EventChance > 1 {
		return fmt.Errorf("event_chance %.2f outside [0,1]: %w", cfg.EventChance, ErrInvalidConfig)
	}
	if cfg.HistoryLimit < 0 {
		return fmt.Errorf("history_limit %d is negative: %w", cfg.HistoryLimit, ErrInvalidConfig)
	}
	if cfg.SaveRetention < 0 {
		return fmt.Errorf("save_retention %s is negative: %w", cfg.SaveRetention, ErrInvalidConfig)
	}
	return nil
}

// flagValues holds pointers to all registered CLI flags.
type flagValues struct {
	configPath         *string
	db                 *string
	dev                *bool
	addr               *string
	logRequests        *bool
	logDB              *bool
	logWS              *bool
	logDebug           *bool
	aiProvider         *string
	aiModel            *string
	aiURL              *string
	aiAPIKey           *string
	aiTemperature      *string
	aiRatePerMinute    *int
	storytellerEnabled *bool
	eventChance        *float64
	historyLimit       *int
	saveRetention      *time.Duration
	seed               *uint64
}

// registerFlags registers all CLI flags on fs and returns pointers to their values.
// Parse fs after this, then applyTo to layer them over the loaded config.
func registerFlags(fs *flag.FlagSet) flagValues {
	return flagValues{
		configPath:         fs.String("config", "config.json", "path to JSON config file"),
		db:                 fs.String("db", "", "database connection string"),
		dev:                fs.Bool("dev", false, "enable development mode (development logger, db dumps on error)"),
		addr:               fs.String("addr", "", "HTTP listen address (e.g. :8080)"),
		logRequests:        fs.Bool("log-requests", false, "log HTTP requests and responses"),
		logDB:              fs.Bool("log-db", false, "log database dumps"),
		logWS:              fs.Bool("log-ws", false, "log WebSocket messages"),
		logDebug:           fs.Bool("log-debug", false, "enable debug logging"),
		aiProvider:         fs.String("ai-provider", "", "AI provider (ollama|openai|claude|gemini|groq|openai-compatible)"),
		aiModel:            fs.String("ai-model", "", "AI model name"),
		aiURL:              fs.String("ai-url", "", "Ollama server URL or openai-compatible base URL"),
		aiAPIKey:           fs.String("ai-api-key", "", "default AI credential"),
		aiTemperature:      fs.String("ai-temperature", "", "sampling temperature 0-1"),
		aiRatePerMinute:    fs.Int("ai-rate-per-minute", 0, "maximum AI calls per minute (0 = unlimited)"),
		storytellerEnabled: fs.Bool("storyteller", false, "narrate deaths with the AI storyteller"),
		eventChance:        fs.Float64("event-chance", 0, "probability of a random event at dawn"),
		historyLimit:       fs.Int("history-limit", 0, "messages shown to an agent per turn"),
		saveRetention:      fs.Duration("save-retention", 0, "delete saves older than this (0 = keep)"),
		seed:               fs.Uint64("seed", 0, "random seed (0 = random)"),
	}
}

// applyTo overlays any CLI flags that were explicitly set onto cfg.
// Flags that were not passed on the command line are ignored (env/JSON values win).
func (fv flagValues) applyTo(fs *flag.FlagSet, cfg *AppConfig) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "db":
			cfg.DB = *fv.db
		case "dev":
			cfg.Dev = *fv.dev
		case "addr":
			cfg.Addr = *fv.addr
		case "log-requests":
			cfg.LogRequests = *fv.logRequests
		case "log-db":
			cfg.LogDB = *fv.logDB
		case "log-ws":
			cfg.LogWS = *fv.logWS
		case "log-debug":
			cfg.LogDebug = *fv.logDebug
		case "ai-provider":
			cfg.AIProvider = *fv.aiProvider
		case "ai-model":
			cfg.AIModel = *fv.aiModel
		case "ai-url":
			cfg.AIURL = *fv.aiURL
		case "ai-api-key":
			cfg.AIAPIKey = *fv.aiAPIKey
		case "ai-temperature":
			cfg.AITemperature = *fv.aiTemperature
		case "ai-rate-per-minute":
			cfg.AIRatePerMinute = *fv.aiRatePerMinute
		case "storyteller":
			cfg.StorytellerEnabled = *fv.storytellerEnabled
		case "event-chance":
			cfg.EventChance = *fv.eventChance
		case "history-limit":
			cfg.HistoryLimit = *fv.historyLimit
		case "save-retention":
			cfg.SaveRetention = *fv.saveRetention
		case "seed":
			cfg.Seed = *fv.seed
		}
	})
}
