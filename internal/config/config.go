package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dshills/afterimage-mcp/internal/budget"
	"github.com/dshills/afterimage-mcp/internal/chunkcache"
	"github.com/dshills/afterimage-mcp/internal/chunker"
	"github.com/dshills/afterimage-mcp/internal/embedder"
	"github.com/dshills/afterimage-mcp/internal/filter"
	"github.com/dshills/afterimage-mcp/internal/injector"
	"github.com/dshills/afterimage-mcp/internal/scorer"
	"github.com/dshills/afterimage-mcp/internal/searcher"
	"github.com/dshills/afterimage-mcp/internal/summarizer"
	"github.com/dshills/afterimage-mcp/internal/tokens"
)

const (
	// EnvPrefix prefixes every environment override, e.g. AFTERIMAGE_INJECTION_MAX_TOKENS
	EnvPrefix = "AFTERIMAGE"

	// EnvConfigPath names the config file when no explicit path is given
	EnvConfigPath = "AFTERIMAGE_CONFIG"
)

// Config is the full runtime configuration
type Config struct {
	Injection  InjectionConfig  `mapstructure:"injection" json:"injection"`
	Tokens     TokensConfig     `mapstructure:"tokens" json:"tokens"`
	Storage    StorageConfig    `mapstructure:"storage" json:"storage"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings" json:"embeddings"`
	Search     SearchConfig     `mapstructure:"search" json:"search"`
	Filter     FilterConfig     `mapstructure:"filter" json:"filter"`
	Hook       HookConfig       `mapstructure:"hook" json:"hook"`
	Logging    LoggingConfig    `mapstructure:"logging" json:"logging"`

	// Path is the config file that was read, empty when none was found
	Path string `mapstructure:"-" json:"-"`
}

// InjectionConfig controls the relevance and injection engine
type InjectionConfig struct {
	Enabled         bool                `mapstructure:"enabled" json:"enabled"`
	MaxTokens       int                 `mapstructure:"max_tokens" json:"max_tokens"`
	Tier            string              `mapstructure:"tier" json:"tier,omitempty"`
	MaxCandidates   int                 `mapstructure:"max_candidates" json:"max_candidates"`
	FallbackOnError bool                `mapstructure:"fallback_on_error" json:"fallback_on_error"`
	LogErrors       bool                `mapstructure:"log_errors" json:"log_errors"`
	FallbackTopN    int                 `mapstructure:"fallback_top_n" json:"fallback_top_n"`
	Chunking        ChunkingConfig      `mapstructure:"chunking" json:"chunking"`
	Scoring         ScoringConfig       `mapstructure:"scoring" json:"scoring"`
	Summarization   SummarizationConfig `mapstructure:"summarization" json:"summarization"`
	Cache           CacheConfig         `mapstructure:"cache" json:"cache"`
}

// ChunkingConfig sizes semantic units
type ChunkingConfig struct {
	Enabled        bool `mapstructure:"enabled" json:"enabled"`
	MaxChunkTokens int  `mapstructure:"max_chunk_tokens" json:"max_chunk_tokens"`
	BlockLines     int  `mapstructure:"block_lines" json:"block_lines"`
}

// ScoringConfig holds the relevance factor weights and cutoffs
type ScoringConfig struct {
	Weights              scorer.Weights `mapstructure:"weights" json:"weights"`
	MinRelevanceScore    float64        `mapstructure:"min_relevance_score" json:"min_relevance_score"`
	RecencyHalfLifeHours float64        `mapstructure:"recency_half_life_hours" json:"recency_half_life_hours"`
}

// SummarizationConfig controls grouping of similar snippets
type SummarizationConfig struct {
	Enabled               bool    `mapstructure:"enabled" json:"enabled"`
	SimilarityThreshold   float64 `mapstructure:"similarity_threshold" json:"similarity_threshold"`
	MaxIndividualSnippets int     `mapstructure:"max_individual_snippets" json:"max_individual_snippets"`
	MaxResults            int     `mapstructure:"max_results" json:"max_results"`
	SummaryModeThreshold  int     `mapstructure:"summary_mode_threshold" json:"summary_mode_threshold"`
	DeterministicOrder    bool    `mapstructure:"deterministic_order" json:"deterministic_order"`
}

// CacheConfig sizes the chunk cache
type CacheConfig struct {
	Enabled    bool `mapstructure:"enabled" json:"enabled"`
	MaxEntries int  `mapstructure:"max_entries" json:"max_entries"`
	TTLSeconds int  `mapstructure:"ttl_seconds" json:"ttl_seconds"`
}

// TokensConfig selects the token estimator
type TokensConfig struct {
	Estimator string `mapstructure:"estimator" json:"estimator"`
	Encoding  string `mapstructure:"encoding" json:"encoding"`
}

// StorageConfig locates the knowledge base
type StorageConfig struct {
	Path string `mapstructure:"path" json:"path"`
}

// EmbeddingsConfig selects the embedding provider
type EmbeddingsConfig struct {
	Provider  string `mapstructure:"provider" json:"provider"`
	APIKey    string `mapstructure:"api_key" json:"api_key,omitempty"`
	Model     string `mapstructure:"model" json:"model,omitempty"`
	CacheSize int    `mapstructure:"cache_size" json:"cache_size"`
	TimeoutMS int    `mapstructure:"timeout_ms" json:"timeout_ms"`
}

// SearchConfig tunes hybrid knowledge base search
type SearchConfig struct {
	Limit          int     `mapstructure:"limit" json:"limit"`
	Threshold      float64 `mapstructure:"threshold" json:"threshold"`
	FTSWeight      float64 `mapstructure:"fts_weight" json:"fts_weight"`
	SemanticWeight float64 `mapstructure:"semantic_weight" json:"semantic_weight"`
	ScanLimit      int     `mapstructure:"scan_limit" json:"scan_limit"`
}

// FilterConfig decides which files count as code
type FilterConfig struct {
	CodeExtensions []string `mapstructure:"code_extensions" json:"code_extensions"`
	SkipExtensions []string `mapstructure:"skip_extensions" json:"skip_extensions"`
	SkipPaths      []string `mapstructure:"skip_paths" json:"skip_paths"`
}

// HookConfig controls the deny-once behaviour of the pre-write hook
type HookConfig struct {
	SeenWritesPath string `mapstructure:"seen_writes_path" json:"seen_writes_path"`
	SeenWindow     int    `mapstructure:"seen_window" json:"seen_window"`
}

// LoggingConfig controls log level and format
type LoggingConfig struct {
	Level string `mapstructure:"level" json:"level"`
	JSON  bool   `mapstructure:"json" json:"json"`
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}

func setDefaults(v *viper.Viper) {
	inj := injector.DefaultConfig()
	sc := scorer.DefaultConfig()
	sum := summarizer.DefaultConfig()
	flt := filter.DefaultConfig()
	search := searcher.DefaultConfig()

	v.SetDefault("injection.enabled", inj.Enabled)
	v.SetDefault("injection.max_tokens", inj.MaxTokens)
	v.SetDefault("injection.tier", "")
	v.SetDefault("injection.max_candidates", inj.MaxCandidates)
	v.SetDefault("injection.fallback_on_error", inj.FallbackOnError)
	v.SetDefault("injection.log_errors", inj.LogErrors)
	v.SetDefault("injection.fallback_top_n", inj.FallbackTopN)

	v.SetDefault("injection.chunking.enabled", inj.ChunkingEnabled)
	v.SetDefault("injection.chunking.max_chunk_tokens", chunker.DefaultMaxChunkTokens)
	v.SetDefault("injection.chunking.block_lines", chunker.DefaultBlockLines)

	v.SetDefault("injection.scoring.weights.recency", sc.Weights.Recency)
	v.SetDefault("injection.scoring.weights.proximity", sc.Weights.Proximity)
	v.SetDefault("injection.scoring.weights.semantic", sc.Weights.Semantic)
	v.SetDefault("injection.scoring.weights.project", sc.Weights.Project)
	v.SetDefault("injection.scoring.min_relevance_score", sc.MinRelevance)
	v.SetDefault("injection.scoring.recency_half_life_hours", sc.HalfLife.Hours())

	v.SetDefault("injection.summarization.enabled", sum.Enabled)
	v.SetDefault("injection.summarization.similarity_threshold", sum.SimilarityThreshold)
	v.SetDefault("injection.summarization.max_individual_snippets", sum.MaxIndividualSnippets)
	v.SetDefault("injection.summarization.max_results", sum.MaxResults)
	v.SetDefault("injection.summarization.summary_mode_threshold", sum.SummaryModeThreshold)
	v.SetDefault("injection.summarization.deterministic_order", sum.DeterministicOrder)

	v.SetDefault("injection.cache.enabled", true)
	v.SetDefault("injection.cache.max_entries", chunkcache.DefaultMaxEntries)
	v.SetDefault("injection.cache.ttl_seconds", int(chunkcache.DefaultTTL.Seconds()))

	v.SetDefault("tokens.estimator", tokens.EstimatorHeuristic)
	v.SetDefault("tokens.encoding", tokens.DefaultEncoding)

	v.SetDefault("storage.path", "~/.afterimage/memory.db")

	v.SetDefault("embeddings.provider", "local")
	v.SetDefault("embeddings.api_key", "")
	v.SetDefault("embeddings.model", "")
	v.SetDefault("embeddings.cache_size", embedder.DefaultCacheSize)
	v.SetDefault("embeddings.timeout_ms", int(embedder.DefaultTimeout/time.Millisecond))

	v.SetDefault("search.limit", search.Limit)
	v.SetDefault("search.threshold", search.Threshold)
	v.SetDefault("search.fts_weight", search.FTSWeight)
	v.SetDefault("search.semantic_weight", search.SemanticWeight)
	v.SetDefault("search.scan_limit", search.ScanLimit)

	v.SetDefault("filter.code_extensions", flt.CodeExtensions)
	v.SetDefault("filter.skip_extensions", flt.SkipExtensions)
	v.SetDefault("filter.skip_paths", flt.SkipPaths)

	v.SetDefault("hook.seen_writes_path", "~/.afterimage/.seen_writes")
	v.SetDefault("hook.seen_window", 100)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		// Defaults are static and always decode
		panic(err)
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration with precedence env > file > default. path may be
// empty, in which case $AFTERIMAGE_CONFIG and then ~/.afterimage/config.yaml
// are tried. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := newViper()

	file := resolvePath(path)
	found := false
	if file != "" {
		if _, err := os.Stat(file); err == nil {
			v.SetConfigFile(file)
			if filepath.Ext(file) == "" {
				v.SetConfigType("yaml")
			}
			if err := v.ReadInConfig(); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
					return nil, fmt.Errorf("read config %s: %w", file, err)
				}
			} else {
				found = true
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat config %s: %w", file, err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if found {
		cfg.Path = file
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolvePath(path string) string {
	if path != "" {
		return ExpandHome(path)
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return ExpandHome(env)
	}
	return ExpandHome("~/.afterimage/config.yaml")
}

// ErrConfigExists is returned by WriteDefault when it would overwrite a file
var ErrConfigExists = errors.New("config file already exists")

// WriteDefault writes the default configuration as YAML and returns the path
// it wrote. path resolves like Load's. An existing file is only replaced
// when force is set.
func WriteDefault(path string, force bool) (string, error) {
	file := resolvePath(path)
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	if filepath.Ext(file) == "" {
		v.SetConfigType("yaml")
	}

	if force {
		if err := v.WriteConfigAs(file); err != nil {
			return "", fmt.Errorf("write config %s: %w", file, err)
		}
		return file, nil
	}
	if err := v.SafeWriteConfigAs(file); err != nil {
		var exists viper.ConfigFileAlreadyExistsError
		if errors.As(err, &exists) {
			return "", fmt.Errorf("%w: %s", ErrConfigExists, file)
		}
		return "", fmt.Errorf("write config %s: %w", file, err)
	}
	return file, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Storage.Path = ExpandHome(cfg.Storage.Path)
	cfg.Hook.SeenWritesPath = ExpandHome(cfg.Hook.SeenWritesPath)
	cfg.Injection.Tier = strings.ToLower(strings.TrimSpace(cfg.Injection.Tier))
	return &cfg, nil
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Validate checks value ranges. When a tier is set its ceiling replaces
// MaxTokens.
func (c *Config) Validate() error {
	inj := &c.Injection

	if inj.Tier != "" {
		tier, err := budget.ParseTier(inj.Tier)
		if err != nil {
			return &ConfigError{Field: "injection.tier", Message: err.Error()}
		}
		inj.MaxTokens = tier.Ceiling()
	}
	if inj.MaxTokens < 1 {
		return &ConfigError{Field: "injection.max_tokens", Message: "must be positive"}
	}
	if inj.MaxCandidates < 1 {
		return &ConfigError{Field: "injection.max_candidates", Message: "must be positive"}
	}
	if inj.FallbackTopN < 1 {
		return &ConfigError{Field: "injection.fallback_top_n", Message: "must be positive"}
	}
	if inj.Chunking.MaxChunkTokens < 1 {
		return &ConfigError{Field: "injection.chunking.max_chunk_tokens", Message: "must be positive"}
	}
	if inj.Chunking.BlockLines < 1 {
		return &ConfigError{Field: "injection.chunking.block_lines", Message: "must be positive"}
	}

	if err := inj.Scoring.Weights.Validate(); err != nil {
		return &ConfigError{Field: "injection.scoring.weights", Message: err.Error()}
	}
	if s := inj.Scoring.MinRelevanceScore; s < 0 || s > 1 {
		return &ConfigError{Field: "injection.scoring.min_relevance_score", Message: "must be within [0,1]"}
	}
	if inj.Scoring.RecencyHalfLifeHours <= 0 {
		return &ConfigError{Field: "injection.scoring.recency_half_life_hours", Message: "must be positive"}
	}

	if err := c.SummarizerConfig().Validate(); err != nil {
		return &ConfigError{Field: "injection.summarization", Message: err.Error()}
	}

	if inj.Cache.Enabled {
		if inj.Cache.MaxEntries < 1 {
			return &ConfigError{Field: "injection.cache.max_entries", Message: "must be positive"}
		}
		if inj.Cache.TTLSeconds < 1 {
			return &ConfigError{Field: "injection.cache.ttl_seconds", Message: "must be positive"}
		}
	}

	switch c.Tokens.Estimator {
	case tokens.EstimatorHeuristic, tokens.EstimatorTiktoken:
	default:
		return &ConfigError{Field: "tokens.estimator", Message: fmt.Sprintf("unknown estimator %q", c.Tokens.Estimator)}
	}

	switch c.Embeddings.Provider {
	case "local", "jina", "openai":
	default:
		return &ConfigError{Field: "embeddings.provider", Message: fmt.Sprintf("unknown provider %q", c.Embeddings.Provider)}
	}
	if c.Embeddings.TimeoutMS < 1 {
		return &ConfigError{Field: "embeddings.timeout_ms", Message: "must be positive"}
	}

	if c.Search.Limit < 1 {
		return &ConfigError{Field: "search.limit", Message: "must be positive"}
	}
	if c.Search.Threshold < 0 || c.Search.Threshold > 1 {
		return &ConfigError{Field: "search.threshold", Message: "must be within [0,1]"}
	}
	if c.Search.FTSWeight < 0 || c.Search.SemanticWeight < 0 || c.Search.FTSWeight+c.Search.SemanticWeight <= 0 {
		return &ConfigError{Field: "search", Message: "fts_weight and semantic_weight must be non-negative and not both zero"}
	}

	if _, err := filter.New(c.FilterConfig()); err != nil {
		return &ConfigError{Field: "filter.skip_paths", Message: err.Error()}
	}

	if c.Hook.SeenWindow < 1 {
		return &ConfigError{Field: "hook.seen_window", Message: "must be positive"}
	}
	if c.Storage.Path == "" {
		return &ConfigError{Field: "storage.path", Message: "must not be empty"}
	}
	return nil
}

// ScorerConfig converts the scoring section
func (c *Config) ScorerConfig() scorer.Config {
	return scorer.Config{
		Weights:       c.Injection.Scoring.Weights,
		MinRelevance:  c.Injection.Scoring.MinRelevanceScore,
		HalfLife:      time.Duration(c.Injection.Scoring.RecencyHalfLifeHours * float64(time.Hour)),
		MaxCandidates: c.Injection.MaxCandidates,
	}
}

// SummarizerConfig converts the summarization section
func (c *Config) SummarizerConfig() summarizer.Config {
	s := c.Injection.Summarization
	return summarizer.Config{
		Enabled:               s.Enabled,
		SimilarityThreshold:   s.SimilarityThreshold,
		MaxIndividualSnippets: s.MaxIndividualSnippets,
		MaxResults:            s.MaxResults,
		SummaryModeThreshold:  s.SummaryModeThreshold,
		DeterministicOrder:    s.DeterministicOrder,
	}
}

// InjectorConfig converts the injection section
func (c *Config) InjectorConfig() injector.Config {
	inj := c.Injection
	return injector.Config{
		Enabled:         inj.Enabled,
		MaxTokens:       inj.MaxTokens,
		MaxCandidates:   inj.MaxCandidates,
		ChunkingEnabled: inj.Chunking.Enabled,
		FallbackOnError: inj.FallbackOnError,
		LogErrors:       inj.LogErrors,
		FallbackTopN:    inj.FallbackTopN,
	}
}

// ChunkCacheConfig converts the cache section
func (c *Config) ChunkCacheConfig() chunkcache.Config {
	return chunkcache.Config{
		MaxEntries: c.Injection.Cache.MaxEntries,
		TTL:        time.Duration(c.Injection.Cache.TTLSeconds) * time.Second,
	}
}

// FilterConfig converts the filter section
func (c *Config) FilterConfig() filter.Config {
	return filter.Config{
		CodeExtensions: c.Filter.CodeExtensions,
		SkipExtensions: c.Filter.SkipExtensions,
		SkipPaths:      c.Filter.SkipPaths,
	}
}

// ChunkerOptions converts the chunking section
func (c *Config) ChunkerOptions() []chunker.Option {
	return []chunker.Option{
		chunker.WithMaxChunkTokens(c.Injection.Chunking.MaxChunkTokens),
		chunker.WithBlockLines(c.Injection.Chunking.BlockLines),
	}
}

// SearcherConfig converts the search section
func (c *Config) SearcherConfig() searcher.Config {
	cfg := searcher.DefaultConfig()
	cfg.Limit = c.Search.Limit
	cfg.Threshold = c.Search.Threshold
	cfg.FTSWeight = c.Search.FTSWeight
	cfg.SemanticWeight = c.Search.SemanticWeight
	cfg.ScanLimit = c.Search.ScanLimit
	return cfg
}

// EmbedderConfig converts the embeddings section
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:  c.Embeddings.Provider,
		APIKey:    c.Embeddings.APIKey,
		Model:     c.Embeddings.Model,
		CacheSize: c.Embeddings.CacheSize,
		Timeout:   c.EmbeddingTimeout(),
	}
}

// EmbeddingTimeout returns the per-request embedding timeout
func (c *Config) EmbeddingTimeout() time.Duration {
	return time.Duration(c.Embeddings.TimeoutMS) * time.Millisecond
}

// JSON renders the effective configuration with secrets masked
func (c *Config) JSON() ([]byte, error) {
	masked := *c
	if masked.Embeddings.APIKey != "" {
		masked.Embeddings.APIKey = "****"
	}
	return json.MarshalIndent(masked, "", "  ")
}
