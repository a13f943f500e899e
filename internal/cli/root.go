package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/substantiate/internal/logging"
	"github.com/ppiankov/substantiate/internal/metrics"
	"github.com/ppiankov/substantiate/internal/model"
	"github.com/ppiankov/substantiate/internal/pipeline"
	"github.com/ppiankov/substantiate/internal/storage"
)

// Version is set at build time via -ldflags
var Version = "v0.1.0"

var (
	cfgFile     string
	fixtureFile string
	verbose     bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "substantiate",
	Short: "Substantiate - claim-to-reference linking and compliance scoring",
	Long: `Substantiate links promotional claims to the reference documents that
support them, audits how well each claim is substantiated, searches the
biomedical literature for missing references and flags regulatory
compliance risks in claim wording.

Scores are decision support for a human reviewer, not a verdict.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "substantiate %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.substantiate/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&fixtureFile, "fixture", "", "YAML fixture to load into the in-memory repository when no database is configured")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("db-url", "", "Postgres connection URL (overrides SUBSTANTIATE_DATABASE_URL)")
	rootCmd.PersistentFlags().String("llm-provider", "", "AI provider (openai, anthropic, ollama); empty disables the AI fallback")
	rootCmd.PersistentFlags().String("llm-model", "", "AI model name")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("database.url", rootCmd.PersistentFlags().Lookup("db-url"))
	_ = viper.BindPFlag("llm.provider", rootCmd.PersistentFlags().Lookup("llm-provider"))
	_ = viper.BindPFlag("llm.model", rootCmd.PersistentFlags().Lookup("llm-model"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(home + "/.substantiate")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// SUBSTANTIATE_DATABASE_URL maps to database.url
	viper.SetEnvPrefix("SUBSTANTIATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig merges defaults, the config file, SUBSTANTIATE_* variables and
// flags, then fills secrets from their conventional environment variables
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	registerDefaults(cfg)
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applySecretEnv(cfg)
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// registerDefaults makes every key known to viper so AutomaticEnv can
// override keys that appear in no config file
func registerDefaults(cfg *model.Config) {
	keys := map[string]interface{}{
		"database.url":               cfg.Database.URL,
		"database.max_open_conns":    cfg.Database.MaxOpenConns,
		"database.conn_max_lifetime": cfg.Database.ConnMaxLifetime,
		"http.timeout":               cfg.HTTP.Timeout,
		"http.user_agent":            cfg.HTTP.UserAgent,
		"http.http_proxy":            cfg.HTTP.HTTPProxy,
		"http.https_proxy":           cfg.HTTP.HTTPSProxy,
		"http.no_proxy":              cfg.HTTP.NoProxy,
		"llm.provider":               cfg.LLM.Provider,
		"llm.model":                  cfg.LLM.Model,
		"llm.api_key":                cfg.LLM.APIKey,
		"llm.base_url":               cfg.LLM.BaseURL,
		"llm.timeout":                cfg.LLM.Timeout,
		"llm.max_tokens":             cfg.LLM.MaxTokens,
		"literature.base_url":        cfg.Literature.BaseURL,
		"literature.api_key":         cfg.Literature.APIKey,
		"literature.email":           cfg.Literature.Email,
		"literature.max_results":     cfg.Literature.MaxResults,
		"literature.max_suggestions": cfg.Literature.MaxSuggestions,
		"literature.min_relevance":   cfg.Literature.MinRelevance,
		"literature.doi_fallback":    cfg.Literature.DOIFallback,
		"literature.respect_robots":  cfg.Literature.RespectRobots,
		"literature.host_rate":       cfg.Literature.HostRate,
		"literature.host_burst":      cfg.Literature.HostBurst,
		"cache.enabled":              cfg.Cache.Enabled,
		"cache.dir":                  cfg.Cache.Dir,
		"cache.memory_ttl":           cfg.Cache.MemoryTTL,
		"cache.disk_ttl":             cfg.Cache.DiskTTL,
		"cache.redis_addr":           cfg.Cache.RedisAddr,
		"batch.item_delay":           cfg.Batch.ItemDelay,
		"batch.compliance_workers":   cfg.Batch.ComplianceWorkers,
		"compliance.rules_file":      cfg.Compliance.RulesFile,
		"log.level":                  cfg.Log.Level,
		"log.format":                 cfg.Log.Format,
		"server.addr":                cfg.Server.Addr,
		"server.allowed_origins":     cfg.Server.AllowedOrigins,
	}
	for k, v := range keys {
		viper.SetDefault(k, v)
	}
}

func applySecretEnv(cfg *model.Config) {
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic", "claude":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if cfg.LLM.Provider == "ollama" && cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if cfg.Literature.APIKey == "" {
		cfg.Literature.APIKey = os.Getenv("NCBI_API_KEY")
	}
	if cfg.HTTP.HTTPProxy == "" {
		cfg.HTTP.HTTPProxy = os.Getenv("HTTP_PROXY")
	}
	if cfg.HTTP.HTTPSProxy == "" {
		cfg.HTTP.HTTPSProxy = os.Getenv("HTTPS_PROXY")
	}
	if cfg.HTTP.NoProxy == "" {
		cfg.HTTP.NoProxy = os.Getenv("NO_PROXY")
	}
}

// app bundles what every command needs
type app struct {
	cfg     *model.Config
	logger  logging.Logger
	metrics *metrics.Metrics
	repo    storage.Repository
	engine  *pipeline.Engine
	db      *sql.DB
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

// newApp loads configuration and wires the repository and engine.
// Postgres is used when a database URL is configured, otherwise an
// in-memory repository seeded from --fixture.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	logging.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}

	switch {
	case cfg.Database.URL != "":
		db, err := storage.OpenPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		repo := storage.NewPostgresRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		a.db = db
		a.repo = repo
	case fixtureFile != "":
		repo, err := storage.LoadFixture(fixtureFile)
		if err != nil {
			return nil, err
		}
		a.repo = repo
	default:
		logger.Warn("no database or fixture configured; using an empty in-memory repository")
		a.repo = storage.NewMemoryRepository()
	}

	a.engine, err = pipeline.NewFromConfig(cfg, a.repo, logger, a.metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}
