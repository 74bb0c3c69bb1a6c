// Package config loads the settings shared by the knowledge CLI and web
// server. Sources are applied in this order, later ones winning:
//  1. Defaults
//  2. Configuration file (JSON)
//  3. A .env file in the working directory
//  4. Environment variables
//
// Command line flags are applied on top by the CLI.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/teilomillet/knowledge/rag"
)

// Config holds all configuration for the knowledge assistant.
type Config struct {
	// Logging
	LogLevel  rag.LogLevel `json:"log_level" env:"KNOWLEDGE_LOG_LEVEL"`
	LogFormat string       `json:"log_format" env:"KNOWLEDGE_LOG_FORMAT" validate:"oneof=text json"`

	// Vector store
	DBType         string `json:"db_type" env:"KNOWLEDGE_DB_TYPE" validate:"oneof=chromem memory milvus"`
	DBAddress      string `json:"db_address" env:"KNOWLEDGE_DB_ADDRESS" validate:"required_if=DBType milvus"`
	Collection     string `json:"collection" env:"KNOWLEDGE_COLLECTION" validate:"required"`
	ProcessedTexts string `json:"processed_texts" env:"KNOWLEDGE_PROCESSED_TEXTS"`

	// Document processing
	Chunker           string `json:"chunker" env:"KNOWLEDGE_CHUNKER" validate:"oneof=recursive sentence"`
	ChunkSize         int    `json:"chunk_size" env:"KNOWLEDGE_CHUNK_SIZE" validate:"gt=0"`
	ChunkOverlap      int    `json:"chunk_overlap" env:"KNOWLEDGE_CHUNK_OVERLAP" validate:"gte=0,ltfield=ChunkSize"`
	TokenEncoding     string `json:"token_encoding" env:"KNOWLEDGE_TOKEN_ENCODING"`
	BatchSize         int    `json:"batch_size" env:"KNOWLEDGE_BATCH_SIZE" validate:"gt=0"`
	RequestsPerMinute int    `json:"requests_per_minute" env:"KNOWLEDGE_REQUESTS_PER_MINUTE" validate:"gte=0"`
	Concurrency       int    `json:"concurrency" env:"KNOWLEDGE_CONCURRENCY" validate:"gt=0"`
	IncludeText       bool   `json:"include_text" env:"KNOWLEDGE_INCLUDE_TEXT"`

	// Embeddings
	EmbeddingProvider string `json:"embedding_provider" env:"KNOWLEDGE_EMBEDDING_PROVIDER" validate:"required"`
	EmbeddingModel    string `json:"embedding_model" env:"KNOWLEDGE_EMBEDDING_MODEL"`
	APIKey            string `json:"api_key,omitempty" env:"OPENAI_API_KEY"`
	BaseURL           string `json:"base_url,omitempty" env:"OPENAI_BASE_URL" validate:"omitempty,url"`

	// Retrieval
	TopK     int     `json:"top_k" env:"KNOWLEDGE_TOP_K" validate:"gt=0"`
	MinScore float64 `json:"min_score" env:"KNOWLEDGE_MIN_SCORE"`
	Hybrid   bool    `json:"hybrid" env:"KNOWLEDGE_HYBRID"`

	// Chat
	ChatProvider  string `json:"chat_provider" env:"KNOWLEDGE_CHAT_PROVIDER" validate:"required"`
	ChatModel     string `json:"chat_model" env:"KNOWLEDGE_CHAT_MODEL" validate:"required"`
	ChatMaxTokens int    `json:"chat_max_tokens" env:"KNOWLEDGE_CHAT_MAX_TOKENS" validate:"gt=0"`
	Summarizer    string `json:"summarizer" env:"KNOWLEDGE_SUMMARIZER" validate:"oneof=none goal extractive"`
	MaxHistory    int    `json:"max_history" env:"KNOWLEDGE_MAX_HISTORY" validate:"gt=0"`

	// Timeout bounds single requests to remote services.
	Timeout time.Duration `json:"timeout" env:"KNOWLEDGE_TIMEOUT" validate:"gt=0"`
}

// Default returns the configuration used when no file or environment
// variable says otherwise.
func Default() *Config {
	return &Config{
		LogLevel:          rag.LogLevelInfo,
		LogFormat:         "text",
		DBType:            "chromem",
		DBAddress:         "knowledge_index",
		Collection:        "knowledge",
		ProcessedTexts:    rag.DefaultProcessedTextsFile,
		Chunker:           "recursive",
		ChunkSize:         500,
		ChunkOverlap:      100,
		TokenEncoding:     "cl100k_base",
		BatchSize:         64,
		RequestsPerMinute: 3000,
		Concurrency:       4,
		EmbeddingProvider: "openai",
		EmbeddingModel:    "text-embedding-3-small",
		TopK:              3,
		ChatProvider:      "openai",
		ChatModel:         "gpt-4",
		ChatMaxTokens:     1024,
		Summarizer:        "goal",
		MaxHistory:        20,
		Timeout:           30 * time.Second,
	}
}

// SearchPaths lists the configuration files LoadConfig looks for, in order.
// $KNOWLEDGE_CONFIG, when set, replaces the list.
func SearchPaths() []string {
	if path := os.Getenv("KNOWLEDGE_CONFIG"); path != "" {
		return []string{path}
	}
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".knowledge", "config.json"),
			filepath.Join(home, ".config", "knowledge", "config.json"),
		)
	}
	return append(paths, "knowledge.json")
}

// LoadConfig loads the first configuration file found in SearchPaths, or
// only path when it is not empty, then applies .env and environment
// overrides and validates the result. A missing file is not an error unless
// path was given explicitly.
//
// Example usage:
//
//	cfg, err := config.LoadConfig("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Using collection: %s\n", cfg.Collection)
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	candidates := SearchPaths()
	if path != "" {
		candidates = []string{path}
	}
	for _, candidate := range candidates {
		err := cfg.loadFile(candidate)
		if err == nil {
			rag.GlobalLogger.Debug("Loaded configuration", "path", candidate)
			break
		}
		if errors.Is(err, fs.ErrNotExist) && path == "" {
			continue
		}
		return nil, err
	}

	// A missing .env file is the common case.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

var validate = validator.New()

// Validate checks field constraints and reports every violation at once.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]error, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Errorf("%s: failed %q validation (value %v)", fe.Field(), fe.Tag(), fe.Value())
			}
			return fmt.Errorf("invalid configuration: %w", errors.Join(msgs...))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Save persists the configuration to a JSON file at the specified path,
// creating parent directories as needed. The API key is never written.
func (c *Config) Save(path string) error {
	out := *c
	out.APIKey = ""
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
