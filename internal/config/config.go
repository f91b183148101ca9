package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// ProjectConfigFile is the per-tree configuration file looked up in the watch root.
	ProjectConfigFile = ".lfsearch.yaml"

	// DefaultDataDirName is the data directory created under the watch root
	// when persist.data_dir is not set.
	DefaultDataDirName = ".lfsearch"

	envPrefix = "LFS_"
)

// Config is the complete lfsearch configuration. One value is built by Load
// and handed to every component at construction.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
	Lexical    LexicalConfig    `yaml:"lexical" json:"lexical"`
	Vector     VectorConfig     `yaml:"vector" json:"vector"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Persist    PersistConfig    `yaml:"persist" json:"persist"`
	Workers    WorkersConfig    `yaml:"workers" json:"workers"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// WatchConfig configures the watched document tree.
type WatchConfig struct {
	Root         string        `yaml:"root" json:"root"`
	Extensions   []string      `yaml:"extensions" json:"extensions"`
	Debounce     time.Duration `yaml:"debounce" json:"debounce"`
	MaxFileSize  int64         `yaml:"max_file_size" json:"max_file_size"`
	Ignore       []string      `yaml:"ignore" json:"ignore"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
}

// LexicalConfig holds the BM25 parameters.
type LexicalConfig struct {
	K1       float64 `yaml:"k1" json:"k1"`
	B        float64 `yaml:"b" json:"b"`
	MinScore float64 `yaml:"min_score" json:"min_score"`
}

// VectorConfig configures chunking and the vector backend.
type VectorConfig struct {
	// Backend is "exact" (brute-force cosine over the snapshot) or "hnsw".
	Backend       string     `yaml:"backend" json:"backend"`
	Dimensions    int        `yaml:"dimensions" json:"dimensions"`
	ChunkSize     int        `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap  int        `yaml:"chunk_overlap" json:"chunk_overlap"`
	MinChunkSize  int        `yaml:"min_chunk_size" json:"min_chunk_size"`
	MinSimilarity float64    `yaml:"min_similarity" json:"min_similarity"`
	HNSW          HNSWConfig `yaml:"hnsw" json:"hnsw"`
}

// HNSWConfig tunes the approximate nearest neighbour graph.
type HNSWConfig struct {
	M        int `yaml:"m" json:"m"`
	EfSearch int `yaml:"ef_search" json:"ef_search"`

	// CompactRatio triggers a graph rebuild once this fraction of nodes
	// belongs to chunks no longer present in any snapshot.
	CompactRatio float64 `yaml:"compact_ratio" json:"compact_ratio"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider  string        `yaml:"provider" json:"provider"`
	Model     string        `yaml:"model" json:"model"`
	Endpoint  string        `yaml:"endpoint" json:"endpoint"`
	CacheSize int           `yaml:"cache_size" json:"cache_size"`
	BatchSize int           `yaml:"batch_size" json:"batch_size"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// SearchConfig configures retrieval and fusion.
type SearchConfig struct {
	MaxCandidates int           `yaml:"max_candidates" json:"max_candidates"`
	FinalResults  int           `yaml:"final_results" json:"final_results"`
	RRFK          int           `yaml:"rrf_k" json:"rrf_k"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	MaxK          int           `yaml:"max_k" json:"max_k"`
	LexicalWeight float64       `yaml:"lexical_weight" json:"lexical_weight"`
	VectorWeight  float64       `yaml:"vector_weight" json:"vector_weight"`
}

// CacheConfig configures the query result cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	Size    int           `yaml:"size" json:"size"`
	TTL     time.Duration `yaml:"ttl" json:"ttl"`
}

// PersistConfig configures on-disk artifacts.
type PersistConfig struct {
	DataDir          string        `yaml:"data_dir" json:"data_dir"`
	AutosaveInterval time.Duration `yaml:"autosave_interval" json:"autosave_interval"`
	// Telemetry enables the query metrics database in the data directory.
	Telemetry bool `yaml:"telemetry" json:"telemetry"`
}

// WorkersConfig sizes the indexing worker pool.
type WorkersConfig struct {
	Size int `yaml:"size" json:"size"`
}

// ServerConfig configures the MCP front end.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	Addr      string `yaml:"addr" json:"addr"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	workers := runtime.NumCPU()
	if workers > 4 {
		workers = 4
	}
	return &Config{
		Version: 1,
		Watch: WatchConfig{
			Root:         ".",
			Extensions:   []string{".txt", ".md", ".pdf"},
			Debounce:     time.Second,
			MaxFileSize:  10 * 1024 * 1024,
			Ignore:       []string{".git/", "node_modules/", "*.tmp", "*.swp", "*~"},
			PollInterval: 2 * time.Second,
		},
		Lexical: LexicalConfig{
			K1: 1.5,
			B:  0.75,
		},
		Vector: VectorConfig{
			Backend:       "exact",
			Dimensions:    512,
			ChunkSize:     500,
			ChunkOverlap:  100,
			MinChunkSize:  100,
			MinSimilarity: 0.3,
			HNSW: HNSWConfig{
				M:            16,
				EfSearch:     64,
				CompactRatio: 0.3,
			},
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "static",
			Model:     "static-hash-v1",
			Endpoint:  "http://localhost:11434",
			CacheSize: 4096,
			BatchSize: 32,
			Timeout:   30 * time.Second,
		},
		Search: SearchConfig{
			MaxCandidates: 20,
			FinalResults:  10,
			RRFK:          60,
			Timeout:       30 * time.Second,
			MaxK:          50,
			LexicalWeight: 1.0,
			VectorWeight:  1.0,
		},
		Cache: CacheConfig{
			Enabled: true,
			Size:    256,
			TTL:     300 * time.Second,
		},
		Persist: PersistConfig{
			AutosaveInterval: 300 * time.Second,
			Telemetry:        true,
		},
		Workers: WorkersConfig{
			Size: workers,
		},
		Server: ServerConfig{
			Transport: "stdio",
			Addr:      "127.0.0.1:8000",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
// $XDG_CONFIG_HOME/lfsearch/config.yaml, else ~/.config/lfsearch/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "lfsearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "lfsearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "lfsearch", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// Load builds the effective configuration for the tree rooted at root.
// Sources, in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/lfsearch/config.yaml)
//  3. Project config (<root>/.lfsearch.yaml)
//  4. Environment variables (LFS_*), including those from <root>/.env
func Load(root string) (*Config, error) {
	cfg := NewConfig()
	cfg.Watch.Root = root

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromFile(root); err != nil {
		return nil, err
	}

	// .env never overrides variables already present in the environment.
	if envPath := filepath.Join(root, ".env"); fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.resolvePaths(root); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile merges <dir>/.lfsearch.yaml when present.
func (c *Config) loadFromFile(dir string) error {
	path := filepath.Join(dir, ProjectConfigFile)
	if !fileExists(path) {
		return nil
	}
	return c.loadYAML(path)
}

// loadYAML decodes path on top of the current values. Keys absent from the
// file keep their previous value, so explicit zeros (e.g. a weight of 0)
// are honoured.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// resolvePaths makes the watch root absolute and fills the data dir default.
func (c *Config) resolvePaths(base string) error {
	root := c.Watch.Root
	if root == "" {
		root = base
	}
	if !filepath.IsAbs(root) {
		// Relative roots in a project file are relative to that project.
		root = filepath.Join(base, root)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve watch root: %w", err)
	}
	c.Watch.Root = abs

	if c.Persist.DataDir == "" {
		c.Persist.DataDir = filepath.Join(abs, DefaultDataDirName)
	} else if !filepath.IsAbs(c.Persist.DataDir) {
		c.Persist.DataDir = filepath.Join(abs, c.Persist.DataDir)
	}
	return nil
}

// IsSupported reports whether path has one of the configured extensions.
func (c *Config) IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range c.Watch.Extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Lexical.K1 > 0 && c.Lexical.K1 <= 10, "lexical.k1 must be in (0, 10], got %g", c.Lexical.K1)
	check(c.Lexical.B >= 0 && c.Lexical.B <= 1, "lexical.b must be in [0, 1], got %g", c.Lexical.B)
	check(c.Vector.ChunkOverlap >= 0, "vector.chunk_overlap must be non-negative, got %d", c.Vector.ChunkOverlap)
	check(c.Vector.ChunkSize > c.Vector.ChunkOverlap,
		"vector.chunk_size (%d) must be greater than vector.chunk_overlap (%d)", c.Vector.ChunkSize, c.Vector.ChunkOverlap)
	check(c.Vector.MinChunkSize >= 0, "vector.min_chunk_size must be non-negative, got %d", c.Vector.MinChunkSize)
	check(c.Vector.MinSimilarity >= 0 && c.Vector.MinSimilarity <= 1,
		"vector.min_similarity must be in [0, 1], got %g", c.Vector.MinSimilarity)
	check(c.Vector.Dimensions > 0, "vector.dimensions must be positive, got %d", c.Vector.Dimensions)
	check(c.Vector.Backend == "exact" || c.Vector.Backend == "hnsw",
		"vector.backend must be 'exact' or 'hnsw', got %q", c.Vector.Backend)
	check(c.Vector.HNSW.M > 0, "vector.hnsw.m must be positive, got %d", c.Vector.HNSW.M)
	check(c.Vector.HNSW.EfSearch > 0, "vector.hnsw.ef_search must be positive, got %d", c.Vector.HNSW.EfSearch)
	check(c.Vector.HNSW.CompactRatio > 0 && c.Vector.HNSW.CompactRatio <= 1,
		"vector.hnsw.compact_ratio must be in (0, 1], got %g", c.Vector.HNSW.CompactRatio)

	provider := strings.ToLower(c.Embeddings.Provider)
	check(provider == "static" || provider == "ollama",
		"embeddings.provider must be 'static' or 'ollama', got %q", c.Embeddings.Provider)
	check(c.Embeddings.CacheSize >= 0, "embeddings.cache_size must be non-negative, got %d", c.Embeddings.CacheSize)

	check(c.Search.RRFK > 0, "search.rrf_k must be positive, got %d", c.Search.RRFK)
	check(c.Search.MaxK >= 1, "search.max_k must be at least 1, got %d", c.Search.MaxK)
	check(c.Search.MaxCandidates >= 1, "search.max_candidates must be at least 1, got %d", c.Search.MaxCandidates)
	check(c.Search.FinalResults >= 1 && c.Search.FinalResults <= c.Search.MaxK,
		"search.final_results must be in [1, %d], got %d", c.Search.MaxK, c.Search.FinalResults)
	check(c.Search.Timeout > 0, "search.timeout must be positive, got %s", c.Search.Timeout)
	check(c.Search.LexicalWeight >= 0, "search.lexical_weight must be non-negative, got %g", c.Search.LexicalWeight)
	check(c.Search.VectorWeight >= 0, "search.vector_weight must be non-negative, got %g", c.Search.VectorWeight)
	check(c.Search.LexicalWeight+c.Search.VectorWeight > 0, "search.lexical_weight and search.vector_weight cannot both be zero")

	check(!c.Cache.Enabled || c.Cache.Size > 0, "cache.size must be positive when the cache is enabled, got %d", c.Cache.Size)
	check(c.Watch.Debounce >= 0, "watch.debounce must be non-negative, got %s", c.Watch.Debounce)
	check(c.Watch.MaxFileSize > 0, "watch.max_file_size must be positive, got %d", c.Watch.MaxFileSize)
	check(len(c.Watch.Extensions) > 0, "watch.extensions must not be empty")
	for _, ext := range c.Watch.Extensions {
		check(strings.HasPrefix(ext, ".") && len(ext) > 1, "watch.extensions entries must start with '.', got %q", ext)
	}
	check(c.Persist.AutosaveInterval >= 0, "persist.autosave_interval must be non-negative, got %s", c.Persist.AutosaveInterval)
	check(c.Workers.Size >= 1, "workers.size must be at least 1, got %d", c.Workers.Size)

	transport := strings.ToLower(c.Server.Transport)
	check(transport == "stdio" || transport == "http", "server.transport must be 'stdio' or 'http', got %q", c.Server.Transport)

	level := strings.ToLower(c.Logging.Level)
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	check(validLevels[level], "logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level)

	return errors.Join(errs...)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// FindProjectRoot walks up from startDir looking for a .lfsearch.yaml or a
// .git directory. It returns startDir itself when neither is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if fileExists(filepath.Join(currentDir, ProjectConfigFile)) ||
			dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
