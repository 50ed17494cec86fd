package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// LLM backend (chat completions, used for grounded synthesis)
	LLMBaseURL   string
	LLMModelName string
	LLMAPIKey    string

	// Embeddings backend
	EmbeddingBaseURL   string
	EmbeddingModelName string

	// Storage
	DBPath           string
	DocsDir          string
	ChunksExportPath string

	// Qdrant
	QdrantURL        string
	QdrantCollection string
	QdrantVectorSize int

	// Retrieval defaults. Per-request overrides take precedence.
	TopKLexical    int
	TopKDense      int
	RRFK           int
	NeighborRadius int
	FinalK         int
	MaxAnswerChars int

	// Reranker (optional cross-encoder service)
	RerankEnabled bool
	RerankURL     string
	RerankModel   string
	RerankTopK    int
	MinScore      float64

	// Synthesis
	AbstainThreshold float64
	StrictCitations  bool
	MaxContextChars  int
	CiteN            int

	// Logging
	LogLevel  slog.Level
	LogFormat string

	APIPort string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or project root, it will be loaded automatically.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	// Check current directory first, then walk up to find project root (where go.mod is)
	_ = godotenv.Load() // Try current directory

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ { // Limit search depth
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break // Reached filesystem root
			}
			dir = parent
		}
	}

	cfg := &Config{
		LLMBaseURL:         getEnv("LLM_BASE_URL", "http://localhost:11434"),
		LLMModelName:       getEnv("LLM_MODEL", "llama3.1:8b"),
		LLMAPIKey:          getEnv("LLM_API_KEY", "dummy-key"),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "granite-embedding-278m-multilingual"),
		DBPath:             getEnv("DB_PATH", "./data/localrag.db"),
		DocsDir:            getEnv("DOCS_DIR", ""),
		ChunksExportPath:   getEnv("CHUNKS_EXPORT_PATH", "./data/chunks.jsonl"),
		QdrantURL:          getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection:   getEnv("QDRANT_COLLECTION", "chunks"),
		APIPort:            getEnv("API_PORT", "9000"),
		RerankURL:          getEnv("RERANK_URL", ""),
		RerankModel:        getEnv("RERANK_MODEL", ""),
	}

	cfg.TopKLexical, err = getEnvInt("TOP_K_LEXICAL", 40)
	if err != nil {
		return nil, err
	}
	cfg.TopKDense, err = getEnvInt("TOP_K_DENSE", 40)
	if err != nil {
		return nil, err
	}
	cfg.RRFK, err = getEnvInt("RRF_K", 60)
	if err != nil {
		return nil, err
	}
	cfg.NeighborRadius, err = getEnvInt("NEIGHBOR_RADIUS", 1)
	if err != nil {
		return nil, err
	}
	cfg.FinalK, err = getEnvInt("FINAL_K", 8)
	if err != nil {
		return nil, err
	}
	cfg.MaxAnswerChars, err = getEnvInt("MAX_ANSWER_CHARS", 1500)
	if err != nil {
		return nil, err
	}
	cfg.RerankTopK, err = getEnvInt("RERANK_TOP_K", 50)
	if err != nil {
		return nil, err
	}
	cfg.MinScore, err = getEnvFloat("MIN_SCORE", 0)
	if err != nil {
		return nil, err
	}
	cfg.AbstainThreshold, err = getEnvFloat("ABSTAIN_THRESHOLD", 0.70)
	if err != nil {
		return nil, err
	}
	cfg.MaxContextChars, err = getEnvInt("MAX_CONTEXT_CHARS", 24000)
	if err != nil {
		return nil, err
	}
	cfg.CiteN, err = getEnvInt("CITE_N", 3)
	if err != nil {
		return nil, err
	}
	cfg.RerankEnabled = getEnvBool("RERANK_ENABLED", false)
	cfg.StrictCitations = getEnvBool("STRICT_CITATIONS", false)

	cfg.LogLevel = parseLogLevel(getEnv("LOG_LEVEL", "info"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))

	// The reranker needs its service URL when enabled.
	if cfg.RerankEnabled && cfg.RerankURL == "" {
		return nil, fmt.Errorf("RERANK_URL is required when RERANK_ENABLED is true")
	}

	// Note: This must match the output vector size of the embeddings model.
	// If the vector size changes, the Qdrant collection must be recreated.
	vectorSizeStr := getEnv("QDRANT_VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE is required")
	}
	vectorSize, err := strconv.Atoi(vectorSizeStr)
	if err != nil {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be a valid integer: %w", err)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be greater than 0")
	}
	cfg.QdrantVectorSize = vectorSize

	if cfg.DocsDir == "" {
		return nil, fmt.Errorf("DOCS_DIR is required")
	}

	// Create ./data directory if it doesn't exist (for future DB file)
	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// parseLogLevel converts a level name to a slog.Level. Unknown names fall
// back to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}

// getEnvFloat gets a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	return f, nil
}

// getEnvBool gets a boolean environment variable or returns a default value.
// Accepts "true"/"1" as true and "false"/"0" as false.
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	switch value {
	case "true", "1":
		return true
	case "false", "0":
		return false
	default:
		return defaultValue
	}
}
