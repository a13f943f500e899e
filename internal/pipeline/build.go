package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ppiankov/substantiate/internal/cache"
	"github.com/ppiankov/substantiate/internal/compliance"
	"github.com/ppiankov/substantiate/internal/literature"
	"github.com/ppiankov/substantiate/internal/llm"
	"github.com/ppiankov/substantiate/internal/logging"
	"github.com/ppiankov/substantiate/internal/metrics"
	"github.com/ppiankov/substantiate/internal/model"
	"github.com/ppiankov/substantiate/internal/storage"
)

// NewFromConfig wires an Engine with the collaborators cfg enables: the AI
// provider, the PubMed client with its cache, and the compliance catalog.
// A misconfigured AI provider is logged and disabled rather than fatal.
func NewFromConfig(cfg *model.Config, repo storage.Repository, logger logging.Logger, m *metrics.Metrics) (*Engine, error) {
	logger = logging.OrDefault(logger)

	rules, err := compliance.NewEngine(cfg.Compliance.RulesFile,
		compliance.WithWorkers(cfg.Batch.ComplianceWorkers),
		compliance.WithLogger(logger),
		compliance.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("load compliance rules: %w", err)
	}

	store := cache.New(cfg.Cache)
	lit := literature.NewClient(cfg.Literature, cfg.HTTP,
		literature.WithCache(store),
		literature.WithLogger(logger),
		literature.WithMetrics(m))

	opts := []Option{
		WithCompliance(rules),
		WithSearcher(lit),
		WithAbstractFetcher(lit),
		WithItemDelay(cfg.Batch.ItemDelay),
		WithSuggestionLimits(cfg.Literature.MaxResults, cfg.Literature.MaxSuggestions, cfg.Literature.MinRelevance),
		WithLogger(logger),
		WithMetrics(m),
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg))
	switch {
	case err != nil:
		logger.Warn("AI provider disabled", logging.String("provider", cfg.LLM.Provider), logging.Err(err))
	case provider != nil:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if !provider.IsAvailable(ctx) {
			logger.Warn("AI provider not reachable; calls will degrade to rule scores",
				logging.String("provider", provider.Name()))
		}
		cancel()
		opts = append(opts, WithMatcher(provider), WithRater(provider))
	}

	return NewEngine(repo, opts...), nil
}
