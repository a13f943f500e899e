package model

import "time"

// Config holds all runtime configuration
type Config struct {
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	HTTP       HTTPConfig       `yaml:"http" mapstructure:"http"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Literature LiteratureConfig `yaml:"literature" mapstructure:"literature"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Compliance ComplianceConfig `yaml:"compliance" mapstructure:"compliance"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
}

// DatabaseConfig configures the Postgres repository
type DatabaseConfig struct {
	URL             string        `yaml:"url" mapstructure:"url"` // Empty = in-memory repository
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// HTTPConfig configures outbound HTTP clients
type HTTPConfig struct {
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent  string        `yaml:"user_agent" mapstructure:"user_agent"`
	HTTPProxy  string        `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy string        `yaml:"https_proxy" mapstructure:"https_proxy"`
	NoProxy    string        `yaml:"no_proxy" mapstructure:"no_proxy"`
}

// LLMConfig configures the AI text-completion collaborator
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama, "" (disabled)
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"-" mapstructure:"api_key"` // Never written to disk
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// LiteratureConfig configures the literature search collaborator
type LiteratureConfig struct {
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"` // PubMed E-utilities root
	APIKey         string  `yaml:"-" mapstructure:"api_key"`         // NCBI_API_KEY
	Email          string  `yaml:"email,omitempty" mapstructure:"email"`
	MaxResults     int     `yaml:"max_results" mapstructure:"max_results"`
	MaxSuggestions int     `yaml:"max_suggestions" mapstructure:"max_suggestions"`
	MinRelevance   float64 `yaml:"min_relevance" mapstructure:"min_relevance"`
	DOIFallback    bool    `yaml:"doi_fallback" mapstructure:"doi_fallback"` // Scrape DOI landing pages for missing abstracts
	RespectRobots  bool    `yaml:"respect_robots" mapstructure:"respect_robots"`
	HostRate       float64 `yaml:"host_rate" mapstructure:"host_rate"` // Requests per second per host
	HostBurst      int     `yaml:"host_burst" mapstructure:"host_burst"`
}

// CacheConfig configures caching of literature lookups
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
	RedisAddr string        `yaml:"redis_addr,omitempty" mapstructure:"redis_addr"` // Replaces the disk layer when set
}

// BatchConfig configures project-wide batch operations
type BatchConfig struct {
	ItemDelay         time.Duration `yaml:"item_delay" mapstructure:"item_delay"` // Minimum delay before each external search
	ComplianceWorkers int           `yaml:"compliance_workers" mapstructure:"compliance_workers"`
}

// ComplianceConfig configures the compliance rule engine
type ComplianceConfig struct {
	RulesFile string `yaml:"rules_file,omitempty" mapstructure:"rules_file"` // Empty = embedded catalog
}

// LogConfig configures structured logging
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json, console
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr           string   `yaml:"addr" mapstructure:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
		},
		HTTP: HTTPConfig{
			Timeout:   15 * time.Second,
			UserAgent: "Substantiate/0.1 (+https://github.com/ppiankov/substantiate)",
		},
		LLM: LLMConfig{
			Provider:  "",
			Timeout:   30,
			MaxTokens: 300,
		},
		Literature: LiteratureConfig{
			BaseURL:        "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
			MaxResults:     10,
			MaxSuggestions: 3,
			MinRelevance:   0.3,
			DOIFallback:    true,
			RespectRobots:  true,
			HostRate:       3,
			HostBurst:      1,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".substantiate-cache",
			MemoryTTL: 1 * time.Hour,
			DiskTTL:   7 * 24 * time.Hour,
		},
		Batch: BatchConfig{
			ItemDelay:         500 * time.Millisecond,
			ComplianceWorkers: 4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:*", "https://*"},
		},
	}
}
