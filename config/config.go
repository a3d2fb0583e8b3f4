// Package config loads the knowledge store configuration from YAML,
// optional .env files and POLICYKB_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/poiesic/policykb/ai"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig indicates a configuration value is out of range.
var ErrInvalidConfig = errors.New("invalid config")

// EnvPrefix prefixes every environment override.
const EnvPrefix = "POLICYKB_"

// StoreConfig locates the knowledge store.
type StoreConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// IngestionConfig controls snapshot ingestion.
type IngestionConfig struct {
	BaseDir      string `yaml:"base_dir"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	// AuditLog is the CSV file each run appends to. Empty disables it.
	AuditLog string `yaml:"audit_log"`
	// ImagePattern matches image filenames inside a snapshot folder.
	ImagePattern string `yaml:"image_pattern"`
}

// RetrievalConfig holds retrieval defaults.
type RetrievalConfig struct {
	SimilarityThreshold float32 `yaml:"similarity_threshold"`
	VectorWeight        float32 `yaml:"vector_weight"`
	DefaultLimit        int     `yaml:"default_limit"`
	NeighborWindow      int     `yaml:"neighbor_window"`
	// Dimension, when positive, is the embedding length every query must have.
	Dimension int `yaml:"dimension"`
}

// AIConfig configures the embedding service.
type AIConfig struct {
	EmbeddingHost     string  `yaml:"embedding_host"`
	EmbeddingModel    string  `yaml:"embedding_model"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Config is the root configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	AI        AIConfig        `yaml:"ai"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		Store: StoreConfig{Path: "policykb.db"},
		Ingestion: IngestionConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
		},
		Retrieval: RetrievalConfig{
			SimilarityThreshold: 0.6,
			VectorWeight:        0.7,
			DefaultLimit:        10,
			NeighborWindow:      1,
		},
		AI: AIConfig{
			EmbeddingHost:  aiDefaults.EmbeddingHost,
			EmbeddingModel: aiDefaults.EmbeddingModel,
			APIKeyEnv:      "OPENAI_API_KEY",
			Burst:          aiDefaults.Burst,
		},
	}
}

// Load reads a config from path. If the file does not exist, returns defaults.
// Keys absent from the file keep their default values.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set.
// Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("%w: store.path is required", ErrInvalidConfig)
	}
	if err := ai.ValidateChunking(c.Ingestion.ChunkSize, c.Ingestion.ChunkOverlap); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	r := c.Retrieval
	if r.SimilarityThreshold < -1 || r.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: retrieval.similarity_threshold %v not in [-1, 1]", ErrInvalidConfig, r.SimilarityThreshold)
	}
	if r.VectorWeight < 0 || r.VectorWeight > 1 {
		return fmt.Errorf("%w: retrieval.vector_weight %v not in [0, 1]", ErrInvalidConfig, r.VectorWeight)
	}
	if r.DefaultLimit < 0 {
		return fmt.Errorf("%w: retrieval.default_limit cannot be negative", ErrInvalidConfig)
	}
	if r.NeighborWindow < 0 {
		return fmt.Errorf("%w: retrieval.neighbor_window cannot be negative", ErrInvalidConfig)
	}
	if r.Dimension < 0 {
		return fmt.Errorf("%w: retrieval.dimension cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// EmbeddingConfig builds the ai.Config for the embedding service.
// The API token is read from the variable named by APIKeyEnv.
func (c *Config) EmbeddingConfig() *ai.Config {
	opts := []ai.ConfigOption{
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithRateLimit(c.AI.RequestsPerSecond, c.AI.Burst),
	}
	if c.AI.APIKeyEnv != "" {
		if token := os.Getenv(c.AI.APIKeyEnv); token != "" {
			opts = append(opts, ai.WithAPIToken(token))
		}
	}
	return ai.NewConfig(opts...)
}

// applyEnv overrides fields from POLICYKB_* variables.
func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"STORE_PATH":      &cfg.Store.Path,
		"BASE_DIR":        &cfg.Ingestion.BaseDir,
		"AUDIT_LOG":       &cfg.Ingestion.AuditLog,
		"IMAGE_PATTERN":   &cfg.Ingestion.ImagePattern,
		"EMBEDDING_HOST":  &cfg.AI.EmbeddingHost,
		"EMBEDDING_MODEL": &cfg.AI.EmbeddingModel,
		"API_KEY_ENV":     &cfg.AI.APIKeyEnv,
	}
	for key, field := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*field = v
		}
	}

	ints := map[string]*int{
		"CHUNK_SIZE":      &cfg.Ingestion.ChunkSize,
		"CHUNK_OVERLAP":   &cfg.Ingestion.ChunkOverlap,
		"DEFAULT_LIMIT":   &cfg.Retrieval.DefaultLimit,
		"NEIGHBOR_WINDOW": &cfg.Retrieval.NeighborWindow,
		"DIMENSION":       &cfg.Retrieval.Dimension,
	}
	for key, field := range ints {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s%s: %w", ErrInvalidConfig, EnvPrefix, key, err)
			}
			*field = n
		}
	}

	floats := map[string]*float32{
		"SIMILARITY_THRESHOLD": &cfg.Retrieval.SimilarityThreshold,
		"VECTOR_WEIGHT":        &cfg.Retrieval.VectorWeight,
	}
	for key, field := range floats {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(v, 32)
			if err != nil {
				return fmt.Errorf("%w: %s%s: %w", ErrInvalidConfig, EnvPrefix, key, err)
			}
			*field = float32(f)
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "REQUESTS_PER_SECOND"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %sREQUESTS_PER_SECOND: %w", ErrInvalidConfig, EnvPrefix, err)
		}
		cfg.AI.RequestsPerSecond = f
	}
	return nil
}
