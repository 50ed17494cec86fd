package config

import (
	"os"
	"testing"
)

// setEnv sets an environment variable, ignoring errors (for test setup)
func setEnv(key, value string) {
	_ = os.Setenv(key, value)
}

// unsetEnv unsets an environment variable, ignoring errors (for test cleanup)
func unsetEnv(key string) {
	_ = os.Unsetenv(key)
}

var configEnvVars = []string{
	"DOCS_DIR", "QDRANT_VECTOR_SIZE",
	"LLM_BASE_URL", "LLM_API_KEY", "LLM_MODEL",
	"EMBEDDING_BASE_URL", "EMBEDDING_MODEL_NAME",
	"DB_PATH", "CHUNKS_EXPORT_PATH", "QDRANT_URL", "QDRANT_COLLECTION", "API_PORT",
	"TOP_K_LEXICAL", "TOP_K_DENSE", "RRF_K", "NEIGHBOR_RADIUS", "FINAL_K",
	"MAX_ANSWER_CHARS", "RERANK_ENABLED", "RERANK_URL", "RERANK_MODEL",
	"RERANK_TOP_K", "MIN_SCORE", "ABSTAIN_THRESHOLD", "STRICT_CITATIONS",
}

func withCleanEnv(t *testing.T) {
	t.Helper()
	originalEnv := make(map[string]string)
	for _, key := range configEnvVars {
		originalEnv[key] = os.Getenv(key)
		unsetEnv(key)
	}
	t.Cleanup(func() {
		for key, value := range originalEnv {
			if value != "" {
				setEnv(key, value)
			} else {
				unsetEnv(key)
			}
		}
	})
}

func TestLoad(t *testing.T) {
	withCleanEnv(t)

	tests := []struct {
		name        string
		setupEnv    func(*testing.T)
		wantErr     bool
		checkConfig func(*Config) bool
	}{
		{
			name: "valid config with all required fields",
			setupEnv: func(t *testing.T) {
				setEnv("DOCS_DIR", t.TempDir())
				setEnv("QDRANT_VECTOR_SIZE", "768")
			},
			wantErr: false,
			checkConfig: func(cfg *Config) bool {
				return cfg.DocsDir != "" &&
					cfg.QdrantVectorSize == 768 &&
					cfg.FinalK == 8 &&
					cfg.TopKLexical == 40 &&
					cfg.NeighborRadius == 1 &&
					!cfg.RerankEnabled
			},
		},
		{
			name: "missing DOCS_DIR",
			setupEnv: func(t *testing.T) {
				setEnv("QDRANT_VECTOR_SIZE", "768")
			},
			wantErr: true,
		},
		{
			name: "missing QDRANT_VECTOR_SIZE",
			setupEnv: func(t *testing.T) {
				setEnv("DOCS_DIR", t.TempDir())
			},
			wantErr: true,
		},
		{
			name: "non-numeric QDRANT_VECTOR_SIZE",
			setupEnv: func(t *testing.T) {
				setEnv("DOCS_DIR", t.TempDir())
				setEnv("QDRANT_VECTOR_SIZE", "lots")
			},
			wantErr: true,
		},
		{
			name: "zero QDRANT_VECTOR_SIZE",
			setupEnv: func(t *testing.T) {
				setEnv("DOCS_DIR", t.TempDir())
				setEnv("QDRANT_VECTOR_SIZE", "0")
			},
			wantErr: true,
		},
		{
			name: "retrieval overrides",
			setupEnv: func(t *testing.T) {
				setEnv("DOCS_DIR", t.TempDir())
				setEnv("QDRANT_VECTOR_SIZE", "768")
				setEnv("FINAL_K", "12")
				setEnv("TOP_K_LEXICAL", "60")
				setEnv("NEIGHBOR_RADIUS", "2")
				setEnv("MIN_SCORE", "0.35")
				setEnv("ABSTAIN_THRESHOLD", "0.8")
			},
			wantErr: false,
			checkConfig: func(cfg *Config) bool {
				return cfg.FinalK == 12 &&
					cfg.TopKLexical == 60 &&
					cfg.NeighborRadius == 2 &&
					cfg.MinScore == 0.35 &&
					cfg.AbstainThreshold == 0.8
			},
		},
		{
			name: "invalid FINAL_K",
			setupEnv: func(t *testing.T) {
				setEnv("DOCS_DIR", t.TempDir())
				setEnv("QDRANT_VECTOR_SIZE", "768")
				setEnv("FINAL_K", "eight")
			},
			wantErr: true,
		},
		{
			name: "reranker enabled without URL",
			setupEnv: func(t *testing.T) {
				setEnv("DOCS_DIR", t.TempDir())
				setEnv("QDRANT_VECTOR_SIZE", "768")
				setEnv("RERANK_ENABLED", "true")
			},
			wantErr: true,
		},
		{
			name: "reranker enabled with URL",
			setupEnv: func(t *testing.T) {
				setEnv("DOCS_DIR", t.TempDir())
				setEnv("QDRANT_VECTOR_SIZE", "768")
				setEnv("RERANK_ENABLED", "1")
				setEnv("RERANK_URL", "http://localhost:9200")
				setEnv("RERANK_MODEL", "bge-reranker-base")
			},
			wantErr: false,
			checkConfig: func(cfg *Config) bool {
				return cfg.RerankEnabled &&
					cfg.RerankURL == "http://localhost:9200" &&
					cfg.RerankModel == "bge-reranker-base"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range configEnvVars {
				unsetEnv(key)
			}
			setEnv("DB_PATH", t.TempDir()+"/localrag.db")
			tt.setupEnv(t)

			cfg, err := Load()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if tt.checkConfig != nil && !tt.checkConfig(cfg) {
				t.Errorf("Load() config = %+v", cfg)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	withCleanEnv(t)

	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"false", true, false},
		{"0", true, false},
		{"", true, true},
		{"", false, false},
		{"garbage", true, true},
	}

	for _, tt := range tests {
		unsetEnv("STRICT_CITATIONS")
		if tt.value != "" {
			setEnv("STRICT_CITATIONS", tt.value)
		}
		if got := getEnvBool("STRICT_CITATIONS", tt.def); got != tt.want {
			t.Errorf("getEnvBool(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}
